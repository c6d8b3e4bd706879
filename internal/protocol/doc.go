// ABOUTME: Wire envelope types shared by the websocket transport and REST client
// ABOUTME: Defines outbound requests, inbound pushes, and strict JSON parsing

// Package protocol defines the envelope types exchanged with the chat server.
//
// Two envelope shapes exist: Outbound envelopes travel client-to-server over
// the persistent websocket connection, Inbound envelopes are pushed
// server-to-client. Parsing is strict about the minimum a consumer needs (a
// known type) and lenient about everything else, so newer servers can add
// fields without breaking older clients.
package protocol
