// Package view assembles per-contact conversation views over the relay.
//
// The relay only filters messages by a single field (sender, group id,
// sometimes recipient), so the engine reconstructs the full two-way history
// with a contact from several narrow fetches, deduplicates and orders the
// result.
package view

import (
	"context"

	"github.com/golang/glog"

	"github.com/mqy/sigview/relay"
)

// selfDisplayName is how the relay labels the operator's own entries.
const selfDisplayName = "Me"

// Engine computes conversation views. Stateless per request; selfNumber is
// read-only for the process lifetime.
type Engine struct {
	relay      relay.Client
	selfNumber string
}

// NewEngine returns an engine over rc. selfNumber is the operator's own
// number; when empty, identity-based self filtering and the outbox fallback
// are disabled.
func NewEngine(rc relay.Client, selfNumber string) *Engine {
	return &Engine{relay: rc, selfNumber: selfNumber}
}

// Resolve maps a contact token to conversation metadata via a single
// conversation-list fetch. An unknown token yields a synthesized placeholder
// rather than an error, so a conversation can be started with a contact
// never messaged before.
func (e *Engine) Resolve(ctx context.Context, token string) (*relay.Conversation, error) {
	convs, err := e.relay.ListConversations(ctx)
	if err != nil {
		return nil, err
	}
	for i := range convs {
		if convs[i].ContactNumber == token {
			return &convs[i], nil
		}
	}
	glog.V(2).Infof("resolve: no conversation for %q, synthesizing placeholder", token)
	return &relay.Conversation{ContactNumber: token, ContactName: token}, nil
}

// Conversations returns the relay's conversation list with self-referential
// entries removed.
func (e *Engine) Conversations(ctx context.Context) ([]relay.Conversation, error) {
	convs, err := e.relay.ListConversations(ctx)
	if err != nil {
		return nil, err
	}
	return e.FilterSelf(convs), nil
}

// FilterSelf drops conversations whose counterparty is the operator: by
// display name, by configured own number, or by relay-reported sender name.
func (e *Engine) FilterSelf(convs []relay.Conversation) []relay.Conversation {
	out := make([]relay.Conversation, 0, len(convs))
	for _, conv := range convs {
		if conv.ContactName == selfDisplayName {
			continue
		}
		if e.selfNumber != "" && conv.ContactNumber == e.selfNumber {
			continue
		}
		if conv.SenderName == selfDisplayName {
			continue
		}
		out = append(out, conv)
	}
	return out
}

// ContactProfile is contact metadata plus the message count with that
// contact.
type ContactProfile struct {
	ContactNumber string `json:"contact_number"`
	ContactName   string `json:"contact_name"`
	IsGroup       bool   `json:"is_group"`
	GroupID       string `json:"group_id,omitempty"`
	MessageCount  int    `json:"message_count"`
	LastMessageAt int64  `json:"last_message_at,omitempty"`
}

// Profile resolves a contact and counts its messages. Unknown contacts get
// a placeholder profile with a zero count.
func (e *Engine) Profile(ctx context.Context, token string) (*ContactProfile, error) {
	conv, err := e.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	var f relay.Filter
	if ClassifyConversation(conv) == Group {
		f.GroupID = token
	} else {
		f.Sender = token
	}
	msgs, err := e.relay.ListMessages(ctx, f)
	if err != nil {
		return nil, err
	}

	return &ContactProfile{
		ContactNumber: conv.ContactNumber,
		ContactName:   conv.ContactName,
		IsGroup:       conv.IsGroup,
		GroupID:       conv.GroupID,
		MessageCount:  len(msgs),
		LastMessageAt: conv.LastMessageAt,
	}, nil
}
