package view

import (
	"context"
	"errors"
	"sort"

	"github.com/golang/glog"

	"github.com/mqy/sigview/relay"
)

var errNoSelfNumber = errors.New("own number not configured")

// History returns the complete message history with a contact, merged from
// both directions, deduplicated and ordered ascending by timestamp.
//
// Group tokens need a single group-filtered fetch: the relay already holds
// the whole group timeline. Individual tokens need two halves: messages
// received from the contact (sender filter, must succeed) and messages the
// operator sent to the contact, obtained from the first sent strategy that
// succeeds. When every strategy fails the received half alone is returned;
// that is a degraded success, not an error.
func (e *Engine) History(ctx context.Context, token string) ([]relay.Message, error) {
	if Classify(token) == Group {
		return e.relay.ListMessages(ctx, relay.Filter{GroupID: token})
	}

	received, err := e.relay.ListMessages(ctx, relay.Filter{Sender: token})
	if err != nil {
		return nil, err
	}

	sent, err := e.sentTo(ctx, token)
	if err != nil {
		glog.Warningf("history: no sent-message source for %q, serving received only: %v", token, err)
		sent = nil
	}

	return merge(received, sent), nil
}

// sentStrategy is one way of obtaining the operator-sent half of an
// individual conversation.
type sentStrategy struct {
	name  string
	fetch func(ctx context.Context, token string) ([]relay.Message, error)
}

// sentTo runs the sent strategies in order of decreasing fidelity and takes
// the first success. An empty successful result is still a success.
func (e *Engine) sentTo(ctx context.Context, token string) ([]relay.Message, error) {
	strategies := []sentStrategy{
		{"recipient filter", e.sentByRecipientFilter},
		{"outbox scan", e.sentFromOutbox},
	}

	var err error
	for _, s := range strategies {
		var msgs []relay.Message
		msgs, err = s.fetch(ctx, token)
		if err == nil {
			return msgs, nil
		}
		glog.Warningf("history: sent strategy %q failed for %q: %v", s.name, token, err)
	}
	return nil, err
}

// sentByRecipientFilter asks the relay directly. Not every relay deployment
// honors the recipient filter; those fail the call and the next strategy
// takes over.
func (e *Engine) sentByRecipientFilter(ctx context.Context, token string) ([]relay.Message, error) {
	return e.relay.ListMessages(ctx, relay.Filter{Recipient: token})
}

// sentFromOutbox fetches everything the operator sent and keeps the
// messages addressed to the contact.
func (e *Engine) sentFromOutbox(ctx context.Context, token string) ([]relay.Message, error) {
	if e.selfNumber == "" {
		return nil, errNoSelfNumber
	}
	outbox, err := e.relay.ListMessages(ctx, relay.Filter{Sender: e.selfNumber})
	if err != nil {
		return nil, err
	}
	var sent []relay.Message
	for _, m := range outbox {
		if m.Recipient == token {
			sent = append(sent, m)
		}
	}
	return sent, nil
}

// merge concatenates received then sent, drops entries whose non-zero id
// was already seen, and stable-sorts by timestamp. Messages without an id
// are always kept: their uniqueness cannot be verified and dropping data
// silently is worse than a rare visible duplicate. A missing timestamp
// sorts earliest.
func merge(received, sent []relay.Message) []relay.Message {
	out := make([]relay.Message, 0, len(received)+len(sent))
	seen := make(map[int64]struct{}, len(received)+len(sent))

	for _, list := range [][]relay.Message{received, sent} {
		for _, m := range list {
			if m.ID != 0 {
				if _, dup := seen[m.ID]; dup {
					continue
				}
				seen[m.ID] = struct{}{}
			}
			out = append(out, m)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}
