// ABOUTME: Pending-operation tracking for the coordinator
// ABOUTME: Enforces the one-in-flight-per-target concurrency guard

package conversation

import (
	"sync"
	"time"
)

// OpKind identifies a user-initiated operation.
type OpKind string

const (
	OpSend          OpKind = "send"
	OpEdit          OpKind = "edit"
	OpDelete        OpKind = "delete"
	OpRegenerate    OpKind = "regenerate"
	OpRewind        OpKind = "rewind"
	OpSelectVersion OpKind = "selectVersion"
)

// OpStatus is the lifecycle state of a pending operation.
type OpStatus string

const (
	StatusPending   OpStatus = "pending"
	StatusConfirmed OpStatus = "confirmed"
	StatusFailed    OpStatus = "failed"
)

// PendingOperation describes one in-flight user operation. At most one may
// be in flight per target message id; a conflicting operation is rejected,
// not queued.
type PendingOperation struct {
	Kind            OpKind
	TargetMessageID string
	CorrelationID   string
	Status          OpStatus
	StartedAt       time.Time
}

// pendingOp is the tracked form, carrying the timeout timer.
type pendingOp struct {
	PendingOperation
	timer *time.Timer
}

// pendingTable tracks in-flight operations keyed by target message id.
type pendingTable struct {
	mu  sync.Mutex
	ops map[string]*pendingOp
}

func newPendingTable() *pendingTable {
	return &pendingTable{ops: make(map[string]*pendingOp)}
}

// begin registers an operation for the target. Returns ErrBusy when one is
// already in flight.
func (t *pendingTable) begin(target string, kind OpKind) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.ops[target]; exists {
		return ErrBusy
	}
	t.ops[target] = &pendingOp{
		PendingOperation: PendingOperation{
			Kind:            kind,
			TargetMessageID: target,
			CorrelationID:   target,
			Status:          StatusPending,
			StartedAt:       time.Now(),
		},
	}
	return nil
}

// setTimer attaches the timeout timer to a registered operation.
func (t *pendingTable) setTimer(target string, timer *time.Timer) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if op, ok := t.ops[target]; ok {
		op.timer = timer
	}
}

// finish removes the operation for target, stopping its timer. Returns false
// when no operation was pending (already resolved or timed out).
func (t *pendingTable) finish(target string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	op, ok := t.ops[target]
	if !ok {
		return false
	}
	if op.timer != nil {
		op.timer.Stop()
	}
	delete(t.ops, target)
	return true
}

// get returns a copy of the pending operation for target.
func (t *pendingTable) get(target string) (PendingOperation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	op, ok := t.ops[target]
	if !ok {
		return PendingOperation{}, false
	}
	return op.PendingOperation, true
}

// clear drops every pending operation, stopping timers. Used on conversation
// switches; late completions find their targets gone and are dropped.
func (t *pendingTable) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for target, op := range t.ops {
		if op.timer != nil {
			op.timer.Stop()
		}
		delete(t.ops, target)
	}
}
