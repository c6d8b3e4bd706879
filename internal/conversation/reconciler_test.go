// ABOUTME: Tests for inbound envelope reconciliation against the store
// ABOUTME: Covers ack promotion, precedence rules, duplicates, and history rebuild

package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/fold-client/internal/protocol"
)

type recordingConfirmer struct {
	confirmed []string
}

func (r *recordingConfirmer) Confirm(correlationID string) {
	r.confirmed = append(r.confirmed, correlationID)
}

func newTestReconciler(t *testing.T) (*Reconciler, *Store, *recordingConfirmer) {
	t.Helper()
	store := NewStore(nil)
	changes := NewBroadcaster(nil)
	t.Cleanup(changes.Close)

	r := NewReconciler(store, changes, nil)
	confirmer := &recordingConfirmer{}
	r.SetConfirmer(confirmer)
	return r, store, confirmer
}

func TestReconciler_AckPromotesTempID(t *testing.T) {
	r, store, confirmer := newTestReconciler(t)
	store.UpsertExchange(Message{ID: "tmp-1", Role: roleUser, Content: "hello"})

	r.Apply(&protocol.Inbound{
		Type:            protocol.TypeMessage,
		MessageID:       "srv-1",
		ClientMessageID: "tmp-1",
		ConversationID:  "conv-1",
	})

	_, ok := store.Message("tmp-1")
	assert.False(t, ok)
	msg, ok := store.Message("srv-1")
	require.True(t, ok)
	assert.Equal(t, "hello", msg.Content)

	assert.Equal(t, []string{"tmp-1"}, confirmer.confirmed)
	assert.Equal(t, "conv-1", store.ConversationID())
}

func TestReconciler_AckWithContentFinalizes(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	store.UpsertExchange(Message{ID: "tmp-1", Role: roleUser, Content: "hellp"})

	r.Apply(&protocol.Inbound{
		Type:            protocol.TypeMessage,
		MessageID:       "srv-1",
		ClientMessageID: "tmp-1",
		Content:         "hello",
	})

	msg, ok := store.Message("srv-1")
	require.True(t, ok)
	assert.Equal(t, "hello", msg.Content)
}

func TestReconciler_DuplicateAckStillConfirms(t *testing.T) {
	r, store, confirmer := newTestReconciler(t)
	store.UpsertExchange(Message{ID: "tmp-1", Role: roleUser, Content: "hello"})

	r.Apply(&protocol.Inbound{
		Type:            protocol.TypeMessage,
		MessageID:       "srv-1",
		ClientMessageID: "tmp-1",
	})
	// Redelivered ack under a fresh envelope id: the promotion already
	// happened, but the pending operation is still resolved.
	r.Apply(&protocol.Inbound{
		Type:            protocol.TypeMessage,
		MessageID:       "srv-1-redelivery",
		ClientMessageID: "tmp-1",
	})

	assert.Len(t, confirmer.confirmed, 2)
	assert.Equal(t, 1, store.Len())
	_, ok := store.Message("srv-1")
	assert.True(t, ok)
}

func TestReconciler_DuplicateEnvelopeDropped(t *testing.T) {
	r, store, _ := newTestReconciler(t)

	push := func() *protocol.Inbound {
		return &protocol.Inbound{
			Type:      protocol.TypeMessage,
			Role:      protocol.RoleAssistant,
			MessageID: "srv-1",
			Content:   "hello",
		}
	}
	r.Apply(push())
	r.Apply(push())

	assert.Equal(t, 1, store.Len())
}

func TestReconciler_EditReplacesInPlace(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	store.UpsertExchange(Message{ID: "srv-1", Role: roleUser, Content: "original"})

	r.Apply(&protocol.Inbound{
		Type:          protocol.TypeMessage,
		EditMessageID: "srv-1",
		Content:       "edited",
	})

	msg, ok := store.Message("srv-1")
	require.True(t, ok)
	assert.Equal(t, "edited", msg.Content)
	assert.True(t, msg.IsEdited)
	assert.Equal(t, 1, store.Len())
}

func TestReconciler_EditBeforeOriginalInserts(t *testing.T) {
	r, store, _ := newTestReconciler(t)

	r.Apply(&protocol.Inbound{
		Type:          protocol.TypeMessage,
		Role:          protocol.RoleAssistant,
		MessageID:     "srv-2",
		EditMessageID: "srv-ghost",
		Content:       "edited",
	})

	// Target unknown: the edit lands as a new message rather than being lost.
	msg, ok := store.Message("srv-2")
	require.True(t, ok)
	assert.Equal(t, "edited", msg.Content)
}

func TestReconciler_ResponseAppendsVersion(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	store.UpsertExchange(Message{ID: "srv-1", Role: roleUser, Content: "question"})

	r.Apply(&protocol.Inbound{
		Type:         protocol.TypeMessage,
		Role:         protocol.RoleAssistant,
		MessageID:    "srv-2",
		ResponseToID: "srv-1",
		Content:      "answer",
	})

	set, ok := store.VersionSet("srv-1")
	require.True(t, ok)
	require.Len(t, set.Versions, 1)
	assert.Equal(t, "answer", set.Versions[0].Content)
	assert.Equal(t, "srv-2", set.Versions[0].ServerMessageID)
}

func TestReconciler_SecondResponseWinsActiveSlot(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	store.UpsertExchange(Message{ID: "srv-1", Role: roleUser, Content: "question"})

	r.Apply(&protocol.Inbound{
		Type: protocol.TypeMessage, Role: protocol.RoleAssistant,
		MessageID: "srv-2", ResponseToID: "srv-1", Content: "first",
	})
	r.Apply(&protocol.Inbound{
		Type: protocol.TypeMessage, Role: protocol.RoleAssistant,
		MessageID: "srv-3", ResponseToID: "srv-1", Content: "second",
	})

	set, _ := store.VersionSet("srv-1")
	require.Len(t, set.Versions, 2)
	active, _ := set.Active()
	assert.Equal(t, "second", active.Content)
}

func TestReconciler_ResponseForSupersededParentDropped(t *testing.T) {
	r, store, _ := newTestReconciler(t)

	r.Apply(&protocol.Inbound{
		Type: protocol.TypeMessage, Role: protocol.RoleAssistant,
		MessageID: "srv-2", ResponseToID: "deleted-parent", Content: "late answer",
	})

	// The parent was rewound or deleted; the response vanishes silently.
	assert.Zero(t, store.Len())
}

func TestReconciler_ErrorBecomesSystemNotice(t *testing.T) {
	r, store, _ := newTestReconciler(t)

	r.Apply(&protocol.Inbound{
		Type:      protocol.TypeError,
		MessageID: "srv-e",
		Content:   "model unavailable",
	})

	msg, ok := store.Message("srv-e")
	require.True(t, ok)
	assert.Equal(t, roleSystem, msg.Role)
	assert.Equal(t, "model unavailable", msg.Content)
}

func TestReconciler_NotificationBecomesSystemNotice(t *testing.T) {
	r, store, _ := newTestReconciler(t)

	r.Apply(&protocol.Inbound{
		Type:      protocol.TypeNotification,
		MessageID: "srv-n",
		Content:   "conversation saved",
	})

	msg, ok := store.Message("srv-n")
	require.True(t, ok)
	assert.Equal(t, roleSystem, msg.Role)
}

func TestReconciler_StandaloneAssistantWithoutParent(t *testing.T) {
	r, store, _ := newTestReconciler(t)

	r.Apply(&protocol.Inbound{
		Type:      protocol.TypeMessage,
		Role:      protocol.RoleAssistant,
		MessageID: "srv-1",
		Content:   "unprompted",
	})

	msg, ok := store.Message("srv-1")
	require.True(t, ok)
	assert.Equal(t, roleAssistant, msg.Role)
}

func TestReconciler_ApplyHistoryRebuildsStore(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	store.UpsertExchange(Message{ID: "stale", Role: roleUser, Content: "stale local state"})

	now := time.Now()
	r.ApplyHistory("conv-1", []Message{
		{ID: "srv-1", Role: roleUser, Content: "question", CreatedAt: now},
		{ID: "srv-2", Role: roleAssistant, Content: "answer", ParentID: "srv-1", CreatedAt: now},
		{ID: "srv-3", Role: roleSystem, Content: "notice", CreatedAt: now},
	})

	assert.Equal(t, "conv-1", store.ConversationID())
	_, ok := store.Message("stale")
	assert.False(t, ok)

	set, ok := store.VersionSet("srv-1")
	require.True(t, ok)
	require.Len(t, set.Versions, 1)
	assert.Equal(t, "answer", set.Versions[0].Content)

	msgs := store.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "srv-3", msgs[2].ID)
}

func TestReconciler_ApplyHistoryOrphanResponseKeptVisible(t *testing.T) {
	r, store, _ := newTestReconciler(t)

	r.ApplyHistory("conv-1", []Message{
		{ID: "srv-2", Role: roleAssistant, Content: "orphan answer", ParentID: "missing"},
	})

	msg, ok := store.Message("srv-2")
	require.True(t, ok)
	assert.Equal(t, "orphan answer", msg.Content)
}
