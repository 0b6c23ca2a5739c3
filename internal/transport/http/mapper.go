package http

import (
	"time"

	"github.com/chatgate/chatgate/internal/core"
	"github.com/chatgate/chatgate/internal/proto"
)

// inboundToCommand maps a wire envelope to a core command. Unknown
// actions return ok=false and are ignored by the caller: new event
// kinds must not break old sessions. Field validation stays in the
// gateway so both layers agree on what "malformed" means.
func inboundToCommand(in proto.Inbound) (core.Command, bool) {
	switch in.Action {
	case proto.ActionSubscribe:
		return core.Command{Kind: core.CommandSubscribe, Channel: in.ChannelID}, true
	case proto.ActionMessageSend:
		return core.Command{Kind: core.CommandSendMessage, Channel: in.ChannelID, Text: in.Text}, true
	case proto.ActionTypingStart:
		return core.Command{Kind: core.CommandTypingStart, Channel: in.ChannelID}, true
	case proto.ActionTypingStop:
		return core.Command{Kind: core.CommandTypingStop, Channel: in.ChannelID}, true
	default:
		return core.Command{}, false
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventMessageNew:
		return proto.Outbound{
			Event: proto.EventMessageNew,
			Data: proto.MessageData{
				ID:           event.Message.ID,
				ChannelID:    event.Message.ChannelID,
				SenderID:     event.Message.SenderID,
				Text:         event.Message.Text,
				OriginPortal: event.Message.OriginPortal,
				CreatedAt:    event.Message.CreatedAt.Format(time.RFC3339Nano),
			},
		}
	case core.EventTypingUpdate:
		return proto.Outbound{
			Event: proto.EventTypingUpdate,
			Data: proto.TypingData{
				ChannelID: event.Typing.ChannelID,
				UserID:    event.Typing.UserID,
				IsTyping:  event.Typing.IsTyping,
			},
		}
	case core.EventError:
		if event.Err == nil {
			return proto.Outbound{Event: proto.EventError, Data: proto.ErrorData{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Event: proto.EventError,
			Data:  proto.ErrorData{Code: event.Err.Code, Msg: event.Err.Message},
		}
	default:
		return proto.Outbound{Event: proto.EventError, Data: proto.ErrorData{Code: "unknown", Msg: "unknown event"}}
	}
}
