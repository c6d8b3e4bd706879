// ABOUTME: Package doc for the companion REST API client
// ABOUTME: Request/response operations against the chat server's HTTP API

// Package api implements the companion request/response side of the chat
// protocol: conversation listing and history, message edit, regenerate,
// version selection, rewind, and deletion.
//
// Every call is context-aware and returns an explicit error result. A
// non-2xx response becomes an *OperationError carrying the server's error
// text, which the coordinator turns into a rollback.
package api
