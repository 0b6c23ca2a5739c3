package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDeleted is returned when mutating a soft-deleted message.
	ErrDeleted = errors.New("message deleted")
)

// ChannelType defines who a channel is visible to.
type ChannelType string

const (
	ChannelTypePublic  ChannelType = "public"
	ChannelTypePrivate ChannelType = "private"
)

// MemberRole defines a user's role inside a channel.
type MemberRole string

const (
	MemberRoleOwner  MemberRole = "owner"
	MemberRoleAdmin  MemberRole = "admin"
	MemberRoleMember MemberRole = "member"
)

// Channel is a named topic sessions subscribe to. Its ID is immutable
// once created; membership changes never alter identity.
type Channel struct {
	ID           string
	Name         string
	Type         ChannelType
	Portals      []string
	AllowedRoles []string
	CreatedBy    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ChannelMember pairs a channel with a user. At most one record exists
// per (channel, user) pair, which makes joins idempotent.
type ChannelMember struct {
	ID        string
	ChannelID string
	UserID    string
	Role      MemberRole
	JoinedAt  time.Time
}

// Message is a persisted chat message. Rows are never removed; deletion
// is recorded via DeletedAt.
type Message struct {
	ID           string     `json:"id"`
	ChannelID    string     `json:"channel_id"`
	SenderID     string     `json:"sender_id"`
	Text         string     `json:"text"`
	Attachments  []string   `json:"attachments,omitempty"`
	OriginPortal string     `json:"origin_portal"`
	Seq          int64      `json:"seq"`
	CreatedAt    time.Time  `json:"created_at"`
	EditedAt     *time.Time `json:"edited_at,omitempty"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// ChannelStore handles channel and membership persistence.
type ChannelStore interface {
	// CreateChannel creates a new channel and returns it fully populated.
	CreateChannel(ctx context.Context, name string, typ ChannelType, portals, allowedRoles []string, createdBy string) (*Channel, error)

	// GetChannelByID retrieves a channel by ID.
	GetChannelByID(ctx context.Context, id string) (*Channel, error)

	// AddMember adds a user to a channel. Adding an existing member is a no-op.
	AddMember(ctx context.Context, channelID, userID string, role MemberRole) error

	// IsMember reports whether the user has a membership record for the channel.
	IsMember(ctx context.Context, channelID, userID string) (bool, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// CreateMessage atomically persists a message and returns it with
	// identity and timestamps assigned. CreatedAt is monotonic
	// non-decreasing within a channel; Seq breaks ties.
	CreateMessage(ctx context.Context, channelID, senderID, text, originPortal string) (*Message, error)

	// GetMessageByID retrieves a message by ID, including soft-deleted ones.
	GetMessageByID(ctx context.Context, id string) (*Message, error)

	// EditMessage replaces the text of a message and stamps EditedAt.
	EditMessage(ctx context.Context, id, text string) (*Message, error)

	// SoftDeleteMessage marks a message deleted without removing the row.
	SoftDeleteMessage(ctx context.Context, id string) error
}

// Store aggregates all storage interfaces.
type Store interface {
	ChannelStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
