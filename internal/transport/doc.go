// ABOUTME: Package doc for the persistent connection manager
// ABOUTME: Connect/reconnect lifecycle, envelope framing, exponential backoff

// Package transport owns the single persistent websocket connection to the
// chat server.
//
// The Manager gives the rest of the engine a reliable "fire an envelope"
// primitive regardless of reconnection churn: Send fails fast when the
// channel is not open, and an internal loop reconnects indefinitely with
// capped exponential backoff. Inbound envelopes and connection state changes
// are dispatched to registered handlers in registration order.
package transport
