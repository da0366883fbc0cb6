package view

import (
	"context"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mqy/sigview/relay"
	relay_mock "github.com/mqy/sigview/relay/mock"
)

const (
	contact = "+15551230000"
	self    = "+15559990000"
)

func msg(id, ts int64, sender, recipient, body string) relay.Message {
	return relay.Message{ID: id, Timestamp: ts, SenderNumber: sender, Recipient: recipient, Body: body}
}

func TestMergeDedupsSharedIds(t *testing.T) {
	received := []relay.Message{
		msg(1, 100, contact, self, "hi"),
		msg(2, 200, contact, self, "there"),
	}
	sent := []relay.Message{
		msg(2, 200, self, contact, "there"), // duplicate id
		msg(3, 300, self, contact, "hello"),
	}

	out := merge(received, sent)
	require.Len(t, out, 3)
	assert.Equal(t, int64(1), out[0].ID)
	assert.Equal(t, int64(2), out[1].ID)
	assert.Equal(t, int64(3), out[2].ID)
}

func TestMergeKeepsIdLessMessages(t *testing.T) {
	// Two otherwise identical messages without ids must both survive:
	// uniqueness cannot be verified, so nothing is dropped.
	received := []relay.Message{
		msg(0, 100, contact, self, "same"),
		msg(0, 100, contact, self, "same"),
	}
	sent := []relay.Message{
		msg(0, 100, self, contact, "same"),
	}

	out := merge(received, sent)
	assert.Len(t, out, 3)
}

func TestMergeSortsByTimestampAscending(t *testing.T) {
	received := []relay.Message{
		msg(5, 500, contact, self, "e"),
		msg(1, 100, contact, self, "a"),
	}
	sent := []relay.Message{
		msg(3, 300, self, contact, "c"),
	}

	out := merge(received, sent)
	require.Len(t, out, 3)
	for i := 1; i < len(out); i++ {
		assert.LessOrEqual(t, out[i-1].Timestamp, out[i].Timestamp)
	}
}

func TestMergeStableOnEqualTimestamps(t *testing.T) {
	// Equal timestamps keep inclusion order: received before sent.
	received := []relay.Message{msg(1, 100, contact, self, "received")}
	sent := []relay.Message{msg(2, 100, self, contact, "sent")}

	out := merge(received, sent)
	require.Len(t, out, 2)
	assert.Equal(t, "received", out[0].Body)
	assert.Equal(t, "sent", out[1].Body)
}

func TestMergeMissingTimestampSortsEarliest(t *testing.T) {
	received := []relay.Message{
		msg(1, 100, contact, self, "later"),
		msg(2, 0, contact, self, "earliest"),
	}

	out := merge(received, nil)
	require.Len(t, out, 2)
	assert.Equal(t, "earliest", out[0].Body)
}

func TestMergeEmptySentIsResortedReceived(t *testing.T) {
	received := []relay.Message{
		msg(2, 200, contact, self, "b"),
		msg(1, 100, contact, self, "a"),
	}

	out := merge(received, nil)
	require.Len(t, out, 2)
	assert.Equal(t, int64(1), out[0].ID)
	assert.Equal(t, int64(2), out[1].ID)
}

func TestHistoryGroupIsSingleFetch(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	groupID := "Z3JvdXBpZA=="
	want := []relay.Message{msg(7, 700, contact, "", "group msg")}

	rc := relay_mock.NewMockClient(mockCtrl)
	rc.EXPECT().ListMessages(gomock.Any(), relay.Filter{GroupID: groupID}).Return(want, nil).Times(1)

	e := NewEngine(rc, self)
	out, err := e.History(context.Background(), groupID)
	require.NoError(t, err)
	// Relay order preserved, no merge pass.
	assert.Equal(t, want, out)
}

func TestHistoryRecipientFilterSupported(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	rc := relay_mock.NewMockClient(mockCtrl)
	rc.EXPECT().ListMessages(gomock.Any(), relay.Filter{Sender: contact}).
		Return([]relay.Message{msg(1, 100, contact, self, "in")}, nil)
	rc.EXPECT().ListMessages(gomock.Any(), relay.Filter{Recipient: contact}).
		Return([]relay.Message{msg(2, 200, self, contact, "out")}, nil)

	e := NewEngine(rc, self)
	out, err := e.History(context.Background(), contact)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "in", out[0].Body)
	assert.Equal(t, "out", out[1].Body)
}

func TestHistoryRecipientFilterEmptyIsStillSuccess(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	rc := relay_mock.NewMockClient(mockCtrl)
	rc.EXPECT().ListMessages(gomock.Any(), relay.Filter{Sender: contact}).
		Return([]relay.Message{msg(1, 100, contact, self, "in")}, nil)
	// Empty but successful: the outbox fallback must not run.
	rc.EXPECT().ListMessages(gomock.Any(), relay.Filter{Recipient: contact}).
		Return([]relay.Message{}, nil)

	e := NewEngine(rc, self)
	out, err := e.History(context.Background(), contact)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestHistoryOutboxFallback(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	rc := relay_mock.NewMockClient(mockCtrl)
	rc.EXPECT().ListMessages(gomock.Any(), relay.Filter{Sender: contact}).
		Return([]relay.Message{msg(1, 100, contact, self, "in")}, nil)
	rc.EXPECT().ListMessages(gomock.Any(), relay.Filter{Recipient: contact}).
		Return(nil, errors.New("recipient filter not supported"))
	rc.EXPECT().ListMessages(gomock.Any(), relay.Filter{Sender: self}).
		Return([]relay.Message{
			msg(2, 200, self, contact, "to contact"),
			msg(3, 300, self, "+15550001111", "to someone else"),
		}, nil)

	e := NewEngine(rc, self)
	out, err := e.History(context.Background(), contact)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "in", out[0].Body)
	assert.Equal(t, "to contact", out[1].Body)
}

func TestHistoryDegradedToReceivedOnly(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	rc := relay_mock.NewMockClient(mockCtrl)
	rc.EXPECT().ListMessages(gomock.Any(), relay.Filter{Sender: contact}).
		Return([]relay.Message{msg(1, 100, contact, self, "in")}, nil)
	rc.EXPECT().ListMessages(gomock.Any(), relay.Filter{Recipient: contact}).
		Return(nil, errors.New("recipient filter not supported"))
	rc.EXPECT().ListMessages(gomock.Any(), relay.Filter{Sender: self}).
		Return(nil, errors.New("relay hiccup"))

	e := NewEngine(rc, self)
	out, err := e.History(context.Background(), contact)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "in", out[0].Body)
}

func TestHistoryNoSelfNumberSkipsOutbox(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	rc := relay_mock.NewMockClient(mockCtrl)
	rc.EXPECT().ListMessages(gomock.Any(), relay.Filter{Sender: contact}).
		Return([]relay.Message{msg(1, 100, contact, "", "in")}, nil)
	rc.EXPECT().ListMessages(gomock.Any(), relay.Filter{Recipient: contact}).
		Return(nil, errors.New("recipient filter not supported"))
	// No third fetch: the outbox strategy has no sender to filter on.

	e := NewEngine(rc, "")
	out, err := e.History(context.Background(), contact)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestHistoryReceivedFetchFailureFails(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	rc := relay_mock.NewMockClient(mockCtrl)
	rc.EXPECT().ListMessages(gomock.Any(), relay.Filter{Sender: contact}).
		Return(nil, relay.ErrUnavailable)

	e := NewEngine(rc, self)
	_, err := e.History(context.Background(), contact)
	assert.ErrorIs(t, err, relay.ErrUnavailable)
}
