package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/chatgate/chatgate/internal/core"
	"github.com/chatgate/chatgate/internal/store"
)

// StoreAuthorizer decides channel access from the channel's declared
// portals, allowed roles, and membership records. Unknown channels and
// store failures both deny: the gateway's contract is fail-closed.
type StoreAuthorizer struct {
	channels store.ChannelStore
}

// NewStoreAuthorizer builds an authorizer over the channel store.
func NewStoreAuthorizer(channels store.ChannelStore) *StoreAuthorizer {
	return &StoreAuthorizer{channels: channels}
}

// CanJoin implements core.Authorizer.
//
// Public channels admit callers whose portal or role is declared on the
// channel, or who hold a membership record. Private channels require
// membership.
func (a *StoreAuthorizer) CanJoin(ctx context.Context, identity core.Identity, channelID string) (bool, error) {
	ch, err := a.channels.GetChannelByID(ctx, channelID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load channel: %w", err)
	}

	if ch.Type == store.ChannelTypePublic {
		if slices.Contains(ch.Portals, identity.Portal) || slices.Contains(ch.AllowedRoles, identity.Role) {
			return true, nil
		}
	}

	member, err := a.channels.IsMember(ctx, channelID, identity.UserID)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return member, nil
}
