// ABOUTME: Applies inbound server envelopes to the conversation store
// ABOUTME: Handles out-of-order, duplicate, and superseded deliveries

package conversation

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/fold-client/internal/dedupe"
	"github.com/2389/fold-client/internal/protocol"
)

// dedupeTTL bounds how long a server message id is remembered for duplicate
// detection. Duplicates outside the window re-apply idempotent mutations.
const (
	dedupeTTL     = 5 * time.Minute
	dedupeMaxSize = 10_000
)

// Confirmer receives completion signals for correlated operations. The
// coordinator implements it to resolve pending sends when their
// acknowledgment arrives.
type Confirmer interface {
	Confirm(correlationID string)
}

// Reconciler translates inbound envelopes into store mutations according to
// fixed precedence rules: edit-replace > versioned-append > standalone-insert.
type Reconciler struct {
	store   *Store
	changes *Broadcaster
	seen    *dedupe.Cache
	logger  *slog.Logger

	mu        sync.RWMutex
	confirmer Confirmer
}

// NewReconciler creates a reconciler over the given store and broadcaster.
func NewReconciler(store *Store, changes *Broadcaster, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:   store,
		changes: changes,
		seen:    dedupe.New(dedupeTTL, dedupeMaxSize),
		logger:  logger.With("component", "reconciler"),
	}
}

// SetConfirmer wires the coordinator in after construction (the two
// reference each other).
func (r *Reconciler) SetConfirmer(c Confirmer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirmer = c
}

func (r *Reconciler) confirm(correlationID string) {
	r.mu.RLock()
	c := r.confirmer
	r.mu.RUnlock()
	if c != nil {
		c.Confirm(correlationID)
	}
}

// Apply reconciles one inbound envelope against the store. It never returns
// an error: failure modes are logged and the envelope is dropped, leaving the
// store in its previous consistent state.
func (r *Reconciler) Apply(in *protocol.Inbound) {
	if r.seen.Duplicate(in.MessageID) {
		r.logger.Debug("dropping duplicate envelope", "message_id", in.MessageID)
		return
	}

	// A conversation id not yet recorded for the session is adopted; this is
	// how a brand-new conversation learns its server-assigned id.
	r.store.AdoptConversationID(in.ConversationID)

	// Acknowledgment of a client-originated message: promote the temp id.
	if in.ClientMessageID != "" {
		r.applyAck(in)
		return
	}

	switch in.Type {
	case protocol.TypeError:
		r.insertStandalone(in, protocol.RoleSystem)
	case protocol.TypeNotification:
		r.insertStandalone(in, protocol.RoleSystem)
	case protocol.TypeMessage:
		r.applyMessage(in)
	}
}

// applyAck promotes a temp id to the server-assigned id, exactly once, and
// resolves the pending operation. A missing temp id means the ack was
// delivered twice or the message was superseded locally; either way the
// operation is complete server-side, so it is still confirmed.
func (r *Reconciler) applyAck(in *protocol.Inbound) {
	err := r.store.ReplaceMessageID(in.ClientMessageID, in.MessageID)
	switch err {
	case nil:
		if in.Content != "" {
			// Server-finalized content wins over the optimistic copy.
			_ = r.store.UpdateContent(in.MessageID, in.Content, false)
		}
		r.changes.Publish(Change{Kind: ChangeMessage, MessageID: in.MessageID})
	case ErrNotFound, ErrConflict:
		r.logger.Debug("ack for unknown or already-promoted message",
			"client_message_id", in.ClientMessageID,
			"message_id", in.MessageID,
			"error", err)
	}
	r.confirm(in.ClientMessageID)
}

// applyMessage handles a server "message" push according to the precedence
// rules.
func (r *Reconciler) applyMessage(in *protocol.Inbound) {
	// 1. Edit replacement: the target exists, so replace content in place.
	if in.EditMessageID != "" {
		if _, ok := r.store.Message(in.EditMessageID); ok {
			_ = r.store.UpdateContent(in.EditMessageID, in.Content, true)
			r.changes.Publish(Change{Kind: ChangeEdit, MessageID: in.EditMessageID})
			return
		}
		// Edit arrived before the original (or the original is still a temp
		// id): treat it as a new insertion.
		r.logger.Debug("edit target not found, inserting as new message",
			"edit_message_id", in.EditMessageID)
		r.insertStandalone(in, in.Role)
		return
	}

	// 2. Versioned append: assistant response to a known user message. This
	// is how regenerate responses and ordinary responses both surface; the
	// version delivered last wins the active slot.
	if parent := in.Parent(); in.Role == protocol.RoleAssistant && parent != "" {
		v := Version{
			Content:         in.Content,
			CreatedAt:       timestampOrNow(in),
			ServerMessageID: messageIDOrNew(in),
		}
		if err := r.store.AppendVersion(parent, v); err != nil {
			// Parent no longer present: the exchange was deleted or rewound
			// away while this response was in flight. Drop silently.
			r.logger.Debug("dropping response for superseded parent",
				"parent_id", parent,
				"message_id", in.MessageID)
			return
		}
		r.changes.Publish(Change{Kind: ChangeVersion, MessageID: v.ServerMessageID, ParentID: parent})
		return
	}

	// 3. Standalone insert: system notices and assistant replies without an
	// explicit parent.
	r.insertStandalone(in, in.Role)
}

func (r *Reconciler) insertStandalone(in *protocol.Inbound, role string) {
	msg := Message{
		ID:             messageIDOrNew(in),
		Role:           role,
		Content:        in.Content,
		CreatedAt:      timestampOrNow(in),
		IsEdited:       in.IsEdited,
		ConversationID: in.ConversationID,
		ParentID:       in.Parent(),
	}
	r.store.UpsertExchange(msg)
	r.changes.Publish(Change{Kind: ChangeMessage, MessageID: msg.ID})
}

// ApplyHistory rebuilds the store from an authoritative message list, as
// returned by a full history load or a rewind. The local state is replaced,
// never merged.
func (r *Reconciler) ApplyHistory(conversationID string, msgs []Message) {
	r.store.Reset()
	r.store.SetConversationID(conversationID)

	for _, m := range msgs {
		if m.ConversationID == "" {
			m.ConversationID = conversationID
		}
		switch {
		case m.Role == roleUser:
			r.store.UpsertExchange(m)
		case m.Role == roleAssistant && m.ParentID != "":
			v := Version{Content: m.Content, CreatedAt: m.CreatedAt, ServerMessageID: m.ID}
			if err := r.store.AppendVersion(m.ParentID, v); err != nil {
				// Parent missing from the authoritative list itself; keep the
				// message visible rather than losing it.
				r.store.UpsertExchange(m)
			}
		default:
			r.store.UpsertExchange(m)
		}
	}

	r.changes.Publish(Change{Kind: ChangeReset})
}

func messageIDOrNew(in *protocol.Inbound) string {
	if in.MessageID != "" {
		return in.MessageID
	}
	return uuid.New().String()
}

func timestampOrNow(in *protocol.Inbound) time.Time {
	if !in.Timestamp.IsZero() {
		return in.Timestamp
	}
	return time.Now()
}
