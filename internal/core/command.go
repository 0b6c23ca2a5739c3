package core

// CommandKind describes what the client wants to do. The set is closed:
// the gateway dispatches exhaustively over it, one handler per variant.
type CommandKind int

const (
	// CommandSubscribe subscribes the session to a channel.
	CommandSubscribe CommandKind = iota
	// CommandSendMessage persists and broadcasts a chat message.
	CommandSendMessage
	// CommandTypingStart broadcasts that the user started typing.
	CommandTypingStart
	// CommandTypingStop broadcasts that the user stopped typing.
	CommandTypingStop
)

// Command represents an action requested by a client.
type Command struct {
	Kind    CommandKind
	Channel string
	Text    string
}
