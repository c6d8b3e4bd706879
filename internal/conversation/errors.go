// ABOUTME: Sentinel errors for the conversation engine
// ABOUTME: Every failure mode maps to one of these or wraps one of them

package conversation

import "errors"

// ErrNotFound indicates the target message does not exist in the store.
var ErrNotFound = errors.New("message not found")

// ErrConflict indicates an id promotion would collide with an existing message.
var ErrConflict = errors.New("message id already present")

// ErrOutOfRange indicates a version index outside the version set.
var ErrOutOfRange = errors.New("version index out of range")

// ErrBusy indicates an operation is already in flight for the target message.
var ErrBusy = errors.New("operation already in progress")

// ErrEmptyMessage indicates empty or whitespace-only input, rejected before
// any network access.
var ErrEmptyMessage = errors.New("message is empty")

// ErrNotConnected indicates the persistent connection was not open at send
// time. The connection manager's own backoff handles recovery; the payload is
// not queued.
var ErrNotConnected = errors.New("not connected")

// ErrNotFailed indicates a resend was requested for a message that has not
// failed.
var ErrNotFailed = errors.New("message has not failed")
