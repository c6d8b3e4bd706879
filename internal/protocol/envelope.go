// ABOUTME: Outbound and inbound envelope definitions for the chat wire protocol
// ABOUTME: JSON encoding, role/type constants, and defensive inbound parsing

package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Envelope types pushed by the server.
const (
	TypeMessage      = "message"
	TypeNotification = "notification"
	TypeError        = "error"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Outbound is the envelope sent client-to-server over the persistent
// connection. Type defaults to "message" when empty.
type Outbound struct {
	Type              string `json:"type,omitempty"`
	UserID            string `json:"user_id"`
	Message           string `json:"message,omitempty"`
	ConversationID    string `json:"conversation_id,omitempty"`
	MessageID         string `json:"message_id,omitempty"`
	EditMessageID     string `json:"edit_message_id,omitempty"`
	Regenerate        bool   `json:"regenerate,omitempty"`
	OriginalMessageID string `json:"original_message_id,omitempty"`
	ClientID          string `json:"client_id,omitempty"`
}

// Encode serializes the envelope, filling in the default type.
func (o *Outbound) Encode() ([]byte, error) {
	if o.Type == "" {
		o.Type = TypeMessage
	}
	data, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("encoding envelope: %w", err)
	}
	return data, nil
}

// Inbound is the envelope pushed server-to-client.
//
// MessageID is the server-assigned durable id. ClientMessageID echoes the
// correlation id the client attached to its outbound envelope; its presence
// is how a temp id gets promoted.
type Inbound struct {
	Type            string    `json:"type"`
	Role            string    `json:"role,omitempty"`
	Content         string    `json:"content,omitempty"`
	ConversationID  string    `json:"conversation_id,omitempty"`
	MessageID       string    `json:"message_id,omitempty"`
	ClientMessageID string    `json:"client_message_id,omitempty"`
	ResponseToID    string    `json:"response_to_id,omitempty"`
	ParentID        string    `json:"parent_id,omitempty"`
	EditMessageID   string    `json:"edit_message_id,omitempty"`
	IsEdited        bool      `json:"is_edited,omitempty"`
	Timestamp       time.Time `json:"timestamp,omitempty"`
}

// Parent returns the parent message id, preferring response_to_id over the
// older parent_id alias.
func (in *Inbound) Parent() string {
	if in.ResponseToID != "" {
		return in.ResponseToID
	}
	return in.ParentID
}

// ParseError reports an inbound envelope that could not be understood.
// Consumers log it and drop the single envelope.
type ParseError struct {
	Reason string
	Raw    []byte
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed envelope (%s): %s", e.Reason, truncateRaw(e.Raw))
}

// Parse decodes a server push. A missing type defaults to "message" (the
// original server omits it on plain chat pushes); an unknown type is a
// ParseError so the transport can drop the envelope without affecting state.
func Parse(data []byte) (*Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, &ParseError{Reason: err.Error(), Raw: data}
	}
	if in.Type == "" {
		in.Type = TypeMessage
	}
	switch in.Type {
	case TypeMessage, TypeNotification, TypeError:
	default:
		return nil, &ParseError{Reason: "unknown type " + in.Type, Raw: data}
	}
	if in.Type == TypeMessage && in.Role == "" {
		in.Role = RoleAssistant
	}
	return &in, nil
}

func truncateRaw(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 120 {
		return s[:117] + "..."
	}
	return s
}
