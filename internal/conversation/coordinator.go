// ABOUTME: Operation coordinator: optimistic apply, confirm, and rollback
// ABOUTME: The only entry point UI collaborators use to mutate conversation state

package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/fold-client/internal/protocol"
)

// regeneratingPlaceholder is shown in the active version slot while a
// regenerate request is in flight.
const regeneratingPlaceholder = "Regenerating response..."

// tempIDPrefix marks client-generated message ids awaiting promotion.
const tempIDPrefix = "tmp-"

// Sender is the capability the coordinator needs from the transport: hand an
// envelope to the connection, failing fast when it is not open.
type Sender interface {
	Send(out *protocol.Outbound) bool
}

// Requester is the capability the coordinator needs from the companion REST
// API. Every outcome is an explicit error result, never an exception-style
// surprise.
type Requester interface {
	History(ctx context.Context, conversationID string) ([]Message, error)
	EditMessage(ctx context.Context, messageID, content string) error
	RegenerateResponse(ctx context.Context, parentID string) error
	SelectActiveVersion(ctx context.Context, parentID string, index int) error
	DeleteMessage(ctx context.Context, messageID string) error
	RewindTo(ctx context.Context, messageID string) ([]Message, error)
}

// Options configures a Coordinator.
type Options struct {
	Store      *Store
	Reconciler *Reconciler
	Transport  Sender
	API        Requester
	Changes    *Broadcaster
	Logger     *slog.Logger

	UserID   string
	ClientID string

	// OperationTimeout bounds every pending operation; on expiry the
	// operation fails and rolls back like any other failure.
	OperationTimeout time.Duration
}

// Coordinator applies user-initiated mutations optimistically, issues the
// corresponding request, and resolves or rolls back based on the outcome.
// No operation blocks the caller: completion is delivered through the
// broadcaster.
type Coordinator struct {
	store      *Store
	reconciler *Reconciler
	transport  Sender
	api        Requester
	changes    *Broadcaster
	logger     *slog.Logger

	userID   string
	clientID string
	timeout  time.Duration

	pending *pendingTable
}

// NewCoordinator creates a coordinator and registers it as the reconciler's
// confirmer.
func NewCoordinator(opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.OperationTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Coordinator{
		store:      opts.Store,
		reconciler: opts.Reconciler,
		transport:  opts.Transport,
		api:        opts.API,
		changes:    opts.Changes,
		logger:     logger.With("component", "coordinator"),
		userID:     opts.UserID,
		clientID:   opts.ClientID,
		timeout:    timeout,
		pending:    newPendingTable(),
	}
	if c.reconciler != nil {
		c.reconciler.SetConfirmer(c)
	}
	return c
}

// Send appends a user message with a temporary id and fires it over the
// persistent connection. Returns the temp id so callers can track the
// message until promotion. A closed connection fails fast: the message is
// marked failed and may be re-issued with Resend.
func (c *Coordinator) Send(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}

	tempID := tempIDPrefix + uuid.New().String()
	if err := c.pending.begin(tempID, OpSend); err != nil {
		return "", err
	}

	c.store.UpsertExchange(Message{
		ID:             tempID,
		Role:           roleUser,
		Content:        text,
		CreatedAt:      time.Now(),
		ConversationID: c.store.ConversationID(),
	})
	c.changes.Publish(Change{Kind: ChangeMessage, MessageID: tempID})

	return tempID, c.fire(tempID, text)
}

// Resend re-issues a previously failed send with the same temp id.
func (c *Coordinator) Resend(tempID string) error {
	msg, ok := c.store.Message(tempID)
	if !ok {
		return ErrNotFound
	}
	if !msg.Failed {
		return ErrNotFailed
	}
	if err := c.pending.begin(tempID, OpSend); err != nil {
		return err
	}

	_ = c.store.MarkFailed(tempID, false)
	c.changes.Publish(Change{Kind: ChangeMessage, MessageID: tempID})

	return c.fire(tempID, msg.Content)
}

// fire hands the send envelope to the transport and arms the timeout.
func (c *Coordinator) fire(tempID, text string) error {
	ok := c.transport.Send(&protocol.Outbound{
		UserID:         c.userID,
		Message:        text,
		ConversationID: c.store.ConversationID(),
		MessageID:      tempID,
		ClientID:       c.clientID,
	})
	if !ok {
		_ = c.store.MarkFailed(tempID, true)
		c.fail(tempID, "connection is down, message not sent")
		return ErrNotConnected
	}

	c.pending.setTimer(tempID, time.AfterFunc(c.timeout, func() {
		if c.pending.finish(tempID) {
			_ = c.store.MarkFailed(tempID, true)
			c.changes.Publish(Change{Kind: ChangeOperationFailed, MessageID: tempID, Detail: "send timed out"})
			c.logger.Warn("send timed out", "message_id", tempID)
		}
	}))
	return nil
}

// Confirm resolves the pending operation with the given correlation id.
// Implements Confirmer; called by the reconciler when an acknowledgment
// arrives.
func (c *Coordinator) Confirm(correlationID string) {
	if c.pending.finish(correlationID) {
		c.logger.Debug("operation confirmed", "correlation_id", correlationID)
	}
}

// Edit replaces a message's content in place optimistically and issues the
// edit request. On failure the prior content (and edited flag) is restored.
// The replacement response version arrives from the server via the
// reconciler; the edit itself never fabricates one.
func (c *Coordinator) Edit(messageID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	prior, ok := c.store.Message(messageID)
	if !ok {
		return ErrNotFound
	}
	if err := c.pending.begin(messageID, OpEdit); err != nil {
		return err
	}

	_ = c.store.UpdateContent(messageID, text, true)
	c.changes.Publish(Change{Kind: ChangeEdit, MessageID: messageID})

	go func() {
		ctx, cancel := c.opContext()
		defer cancel()

		if err := c.api.EditMessage(ctx, messageID, text); err != nil {
			if c.pending.finish(messageID) {
				c.store.UpsertExchange(prior) // restores content and edited flag
				c.changes.Publish(Change{Kind: ChangeOperationFailed, MessageID: messageID,
					Detail: fmt.Sprintf("edit failed: %v", err)})
			}
			return
		}
		c.Confirm(messageID)
	}()
	return nil
}

// Regenerate requests a fresh response version for the exchange rooted at
// parentID. The active version shows a placeholder while the request is in
// flight; its real content is restored either way (on success the new
// version, appended by the reconciler, holds the active slot).
func (c *Coordinator) Regenerate(parentID string) error {
	ex, ok := c.store.Exchange(parentID)
	if !ok {
		return ErrNotFound
	}
	if err := c.pending.begin(parentID, OpRegenerate); err != nil {
		return err
	}

	var priorContent, priorServerID string
	if active, hasActive := ex.Responses.Active(); hasActive {
		priorServerID = active.ServerMessageID
		priorContent, _ = c.store.SetActiveVersionContent(parentID, regeneratingPlaceholder)
		c.changes.Publish(Change{Kind: ChangeVersion, ParentID: parentID})
	}

	go func() {
		ctx, cancel := c.opContext()
		defer cancel()

		err := c.api.RegenerateResponse(ctx, parentID)

		if priorServerID != "" {
			_ = c.store.RestoreVersionContent(parentID, priorServerID, priorContent)
			c.changes.Publish(Change{Kind: ChangeVersion, ParentID: parentID})
		}
		if err != nil {
			if c.pending.finish(parentID) {
				c.changes.Publish(Change{Kind: ChangeOperationFailed, MessageID: parentID,
					Detail: fmt.Sprintf("regenerate failed: %v", err)})
			}
			return
		}
		c.Confirm(parentID)
	}()
	return nil
}

// SelectVersion changes the active version pointer locally with no network
// round trip required for display, then notifies the server best-effort for
// persistence. Local state stands regardless of the notice's outcome.
func (c *Coordinator) SelectVersion(parentID string, index int) error {
	if _, busy := c.pending.get(parentID); busy {
		return ErrBusy
	}
	if err := c.store.SetActiveVersion(parentID, index); err != nil {
		return err
	}
	c.changes.Publish(Change{Kind: ChangeVersion, ParentID: parentID})

	go func() {
		ctx, cancel := c.opContext()
		defer cancel()

		if err := c.api.SelectActiveVersion(ctx, parentID, index); err != nil {
			c.logger.Debug("version selection notice failed", "parent_id", parentID, "error", err)
		}
	}()
	return nil
}

// Delete removes an exchange or standalone message. The store is untouched
// until the server confirms; the pending state lets the UI dim the target in
// the meantime.
func (c *Coordinator) Delete(messageID string) error {
	if _, ok := c.store.Message(messageID); !ok {
		return ErrNotFound
	}
	if err := c.pending.begin(messageID, OpDelete); err != nil {
		return err
	}

	go func() {
		ctx, cancel := c.opContext()
		defer cancel()

		if err := c.api.DeleteMessage(ctx, messageID); err != nil {
			if c.pending.finish(messageID) {
				c.changes.Publish(Change{Kind: ChangeOperationFailed, MessageID: messageID,
					Detail: fmt.Sprintf("delete failed: %v", err)})
			}
			return
		}
		if c.pending.finish(messageID) {
			_ = c.store.RemoveExchange(messageID)
			c.changes.Publish(Change{Kind: ChangeRemove, MessageID: messageID})
		}
	}()
	return nil
}

// Rewind truncates the conversation back to the target message. The store is
// untouched until the server returns the authoritative resulting list, which
// replaces local state entirely; a failure leaves the previous state intact.
func (c *Coordinator) Rewind(messageID string) error {
	if _, ok := c.store.Message(messageID); !ok {
		return ErrNotFound
	}
	if err := c.pending.begin(messageID, OpRewind); err != nil {
		return err
	}

	go func() {
		ctx, cancel := c.opContext()
		defer cancel()

		msgs, err := c.api.RewindTo(ctx, messageID)
		if err != nil {
			if c.pending.finish(messageID) {
				c.changes.Publish(Change{Kind: ChangeOperationFailed, MessageID: messageID,
					Detail: fmt.Sprintf("rewind failed: %v", err)})
			}
			return
		}
		if c.pending.finish(messageID) {
			c.reconciler.ApplyHistory(c.store.ConversationID(), msgs)
		}
	}()
	return nil
}

// Open switches to a stored conversation, rebuilding the store from its full
// history. Synchronous: the caller decides what to render on failure.
func (c *Coordinator) Open(ctx context.Context, conversationID string) error {
	msgs, err := c.api.History(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("loading conversation %s: %w", conversationID, err)
	}
	c.pending.clear()
	c.reconciler.ApplyHistory(conversationID, msgs)
	return nil
}

// NewConversation resets the engine for a brand-new, unsaved conversation.
func (c *Coordinator) NewConversation() {
	c.pending.clear()
	c.store.Reset()
	c.changes.Publish(Change{Kind: ChangeReset})
}

// Pending returns the in-flight operation for a target, if any. UI
// collaborators use this to dim or disable affected messages.
func (c *Coordinator) Pending(messageID string) (PendingOperation, bool) {
	return c.pending.get(messageID)
}

// fail drops the pending operation and surfaces the failure.
func (c *Coordinator) fail(target, detail string) {
	if c.pending.finish(target) {
		c.changes.Publish(Change{Kind: ChangeOperationFailed, MessageID: target, Detail: detail})
	}
}

// opContext bounds an in-flight request. Deliberately detached from the
// caller's context: the engine does not cancel in-flight requests, it lets
// them resolve or time out and reconciles the outcome.
func (c *Coordinator) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), c.timeout)
}
