// ABOUTME: In-memory store for the active conversation
// ABOUTME: Ordered exchanges, response version sets, and active-version pointers

package conversation

import (
	"log/slog"
	"sync"
	"time"
)

// Message is a single conversation message. ID may initially be a
// client-generated temporary identifier, later promoted exactly once to a
// server-assigned identifier via ReplaceMessageID.
type Message struct {
	ID             string
	Role           string // "user", "assistant", or "system"
	Content        string
	CreatedAt      time.Time
	IsEdited       bool
	Failed         bool // send failed; eligible for resend
	ConversationID string
	ParentID       string // assistant messages: the user message they answer
}

// Version is one alternative response generated for a user message.
type Version struct {
	Content         string
	CreatedAt       time.Time
	ServerMessageID string
}

// VersionSet is the ordered set of alternative responses for one user
// message. Indices are contiguous and insertion-ordered; ActiveIndex is
// always a valid index while the set is non-empty.
type VersionSet struct {
	Versions    []Version
	ActiveIndex int
}

// Active returns the currently selected version and whether one exists.
func (vs *VersionSet) Active() (Version, bool) {
	if len(vs.Versions) == 0 {
		return Version{}, false
	}
	return vs.Versions[vs.ActiveIndex], true
}

// Exchange pairs a user message with its (possibly empty) response versions.
type Exchange struct {
	User      Message
	Responses VersionSet
}

// entry is one position in the conversation: either a user-rooted exchange
// (versions non-nil) or a standalone system/assistant message.
type entry struct {
	msg      *Message
	versions *VersionSet
}

// Store is the canonical in-memory model of the active conversation. All
// reads by UI collaborators and all writes by the reconciler and coordinator
// go through it. Mutations are serialized by a mutex because server
// envelopes arrive on the transport read goroutine while operations run on
// the caller's goroutine; invariants hold after every mutation.
type Store struct {
	mu             sync.RWMutex
	conversationID string
	entries        []*entry
	byID           map[string]*entry
	logger         *slog.Logger
}

// NewStore creates an empty store. Pass nil logger for the default.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		byID:   make(map[string]*entry),
		logger: logger.With("component", "store"),
	}
}

// ConversationID returns the server-assigned conversation id, or "" for an
// unsaved conversation.
func (s *Store) ConversationID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conversationID
}

// SetConversationID records the active conversation id (used when opening a
// stored conversation).
func (s *Store) SetConversationID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversationID = id
}

// AdoptConversationID records a server-assigned id for a brand-new
// conversation. It is a no-op when an id is already recorded.
func (s *Store) AdoptConversationID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conversationID == "" && id != "" {
		s.conversationID = id
		s.logger.Debug("conversation id adopted", "conversation_id", id)
	}
}

// UpsertExchange inserts a message at the end of the conversation, or
// updates the existing message in place when the id is already present.
// User messages root a new exchange with an empty version set; other roles
// are stored standalone.
func (s *Store) UpsertExchange(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.byID[msg.ID]; ok {
		// Update in place, preserving the version set.
		msgCopy := msg
		e.msg = &msgCopy
		return
	}

	msgCopy := msg
	e := &entry{msg: &msgCopy}
	if msg.Role == roleUser {
		e.versions = &VersionSet{}
	}
	s.entries = append(s.entries, e)
	s.byID[msg.ID] = e
}

// AppendVersion appends a response version to the exchange rooted at
// userMessageID and makes it active (latest-wins). Returns ErrNotFound if no
// such exchange exists.
func (s *Store) AppendVersion(userMessageID string, v Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byID[userMessageID]
	if !ok || e.versions == nil {
		return ErrNotFound
	}
	e.versions.Versions = append(e.versions.Versions, v)
	e.versions.ActiveIndex = len(e.versions.Versions) - 1
	return nil
}

// SetActiveVersion selects a version for display. It never contacts the
// network. Returns ErrNotFound for an unknown exchange and ErrOutOfRange for
// an invalid index.
func (s *Store) SetActiveVersion(userMessageID string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byID[userMessageID]
	if !ok || e.versions == nil {
		return ErrNotFound
	}
	if index < 0 || index >= len(e.versions.Versions) {
		return ErrOutOfRange
	}
	e.versions.ActiveIndex = index
	return nil
}

// SetActiveVersionContent overwrites the content of the active version and
// returns the previous content (used for the regenerate placeholder and its
// restoration). Returns ErrNotFound when the exchange has no versions.
func (s *Store) SetActiveVersionContent(userMessageID, content string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byID[userMessageID]
	if !ok || e.versions == nil || len(e.versions.Versions) == 0 {
		return "", ErrNotFound
	}
	v := &e.versions.Versions[e.versions.ActiveIndex]
	prev := v.Content
	v.Content = content
	return prev, nil
}

// RestoreVersionContent writes content back into the version identified by
// its server message id, regardless of which version is currently active.
func (s *Store) RestoreVersionContent(userMessageID, serverMessageID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byID[userMessageID]
	if !ok || e.versions == nil {
		return ErrNotFound
	}
	for i := range e.versions.Versions {
		if e.versions.Versions[i].ServerMessageID == serverMessageID {
			e.versions.Versions[i].Content = content
			return nil
		}
	}
	return ErrNotFound
}

// ReplaceMessageID promotes a client-generated temporary id to the
// server-assigned id. The promotion happens exactly once: ErrNotFound if the
// temp id is unknown, ErrConflict if the real id is already present.
func (s *Store) ReplaceMessageID(tempID, realID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byID[tempID]
	if !ok {
		return ErrNotFound
	}
	if _, exists := s.byID[realID]; exists {
		return ErrConflict
	}
	e.msg.ID = realID
	delete(s.byID, tempID)
	s.byID[realID] = e
	s.logger.Debug("message id promoted", "temp_id", tempID, "message_id", realID)
	return nil
}

// UpdateContent replaces a message's content in place, optionally marking it
// edited.
func (s *Store) UpdateContent(id, content string, markEdited bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	e.msg.Content = content
	if markEdited {
		e.msg.IsEdited = true
	}
	return nil
}

// MarkFailed flags or clears the failed state of a message.
func (s *Store) MarkFailed(id string, failed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	e.msg.Failed = failed
	return nil
}

// TruncateAfter drops every entry positioned after the target message.
// When inclusive is true the target entry is dropped as well.
func (s *Store) TruncateAfter(id string, inclusive bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos := -1
	for i, e := range s.entries {
		if e.msg.ID == id {
			pos = i
			break
		}
	}
	if pos == -1 {
		return ErrNotFound
	}

	cut := pos + 1
	if inclusive {
		cut = pos
	}
	for _, e := range s.entries[cut:] {
		delete(s.byID, e.msg.ID)
	}
	s.entries = s.entries[:cut]
	return nil
}

// RemoveExchange removes the entry rooted at the given message id, whether it
// is an exchange or a standalone message. The exchange's version set is
// discarded with it.
func (s *Store) RemoveExchange(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	for i, cur := range s.entries {
		if cur == e {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}
	delete(s.byID, id)
	return nil
}

// Reset clears everything; used when starting a new conversation or
// switching to a different stored one.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversationID = ""
	s.entries = nil
	s.byID = make(map[string]*entry)
}

// Message returns a copy of the message with the given id.
func (s *Store) Message(id string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.byID[id]
	if !ok {
		return Message{}, false
	}
	return *e.msg, true
}

// Exchange returns a copy of the exchange rooted at the given user message.
func (s *Store) Exchange(userMessageID string) (Exchange, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.byID[userMessageID]
	if !ok || e.versions == nil {
		return Exchange{}, false
	}
	return Exchange{User: *e.msg, Responses: copyVersionSet(e.versions)}, true
}

// VersionSet returns a copy of the version set for the given user message.
func (s *Store) VersionSet(userMessageID string) (VersionSet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.byID[userMessageID]
	if !ok || e.versions == nil {
		return VersionSet{}, false
	}
	return copyVersionSet(e.versions), true
}

// Messages returns a flattened snapshot of the conversation for rendering:
// each exchange contributes its user message followed by the active response
// version (when one exists); standalone messages appear as-is.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Message, 0, len(s.entries)*2)
	for _, e := range s.entries {
		out = append(out, *e.msg)
		if e.versions == nil {
			continue
		}
		if v, ok := e.versions.Active(); ok {
			out = append(out, Message{
				ID:             v.ServerMessageID,
				Role:           roleAssistant,
				Content:        v.Content,
				CreatedAt:      v.CreatedAt,
				ConversationID: s.conversationID,
				ParentID:       e.msg.ID,
			})
		}
	}
	return out
}

// Len returns the number of entries (exchanges plus standalone messages).
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func copyVersionSet(vs *VersionSet) VersionSet {
	out := VersionSet{ActiveIndex: vs.ActiveIndex}
	out.Versions = make([]Version, len(vs.Versions))
	copy(out.Versions, vs.Versions)
	return out
}

// Role constants mirrored from the wire protocol so the store stays free of
// transport imports.
const (
	roleUser      = "user"
	roleAssistant = "assistant"
	roleSystem    = "system"
)
