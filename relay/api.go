package relay

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable reports a transport error, timeout or non-2xx reply
	// from the relay. Not locally recoverable.
	ErrUnavailable = errors.New("relay unavailable")

	// ErrNotFound reports an absent resource on single lookups.
	ErrNotFound = errors.New("not found")
)

// Message is a read-only snapshot of a relay-stored message.
// ID 0 means the relay reported no identifier; such messages are never
// treated as duplicates of anything.
type Message struct {
	ID           int64  `json:"id,omitempty"`
	SenderNumber string `json:"sender_number,omitempty"`
	SenderName   string `json:"sender_name,omitempty"`
	Recipient    string `json:"recipient,omitempty"`
	GroupID      string `json:"group_id,omitempty"`
	Timestamp    int64  `json:"timestamp,omitempty"`
	IsOutgoing   bool   `json:"is_outgoing,omitempty"`
	Body         string `json:"message_body,omitempty"`
}

// Conversation is relay conversation metadata, or a placeholder
// synthesized by the resolver for contacts never messaged before.
type Conversation struct {
	ContactNumber string `json:"contact_number"`
	ContactName   string `json:"contact_name,omitempty"`
	IsGroup       bool   `json:"is_group,omitempty"`
	GroupID       string `json:"group_id,omitempty"`
	SenderName    string `json:"sender_name,omitempty"`
	LastMessageAt int64  `json:"last_message_at,omitempty"`
}

type Stats struct {
	TotalMessages      int64 `json:"total_messages"`
	TotalConversations int64 `json:"total_conversations"`
	TotalGroups        int64 `json:"total_groups"`
}

type Health struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Filter narrows ListMessages. At most one field is honored per call;
// Recipient is not supported by every relay deployment and then fails
// the call.
type Filter struct {
	Sender    string
	GroupID   string
	Recipient string
}

// Client is the access layer for the upstream relay.
type Client interface {
	// ListConversations gets all conversations, individuals and groups.
	ListConversations(ctx context.Context) ([]Conversation, error)

	// ListGroups gets group conversations only.
	ListGroups(ctx context.Context) ([]Conversation, error)

	// ListMessages gets messages matching the filter, in relay order.
	ListMessages(ctx context.Context, f Filter) ([]Message, error)

	// GetMessage gets one message by id, ErrNotFound when absent.
	GetMessage(ctx context.Context, id int64) (*Message, error)

	// SendMessage sends body to a phone number or group id and returns
	// the relay's echo of the stored message.
	SendMessage(ctx context.Context, to, body string) (*Message, error)

	// GetStats gets relay-side message statistics.
	GetStats(ctx context.Context) (*Stats, error)

	// Health probes the relay. The only unauthenticated operation.
	Health(ctx context.Context) (*Health, error)
}
