// Package types holds the normalized data model shared by the store,
// the index, the ingestor and the service: sources, conversations,
// messages, cursors and remotes.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// Role is the speaker of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// PartKind is the closed variant set that message parts normalize to.
type PartKind string

const (
	PartText       PartKind = "text"
	PartCode       PartKind = "code"
	PartToolCall   PartKind = "tool-call"
	PartToolResult PartKind = "tool-result"
	PartAttachment PartKind = "attachment-ref"
	PartRaw        PartKind = "raw"
)

// Part is a typed fragment of a message's content. Adapters may emit
// kinds outside the closed set; the Ingestor preserves those as PartRaw
// with the original tag retained in RawTag.
type Part struct {
	Kind    PartKind       `json:"kind"`
	RawTag  string         `json:"rawTag,omitempty"`
	Text    string         `json:"text,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Source is a configured origin tied to one adapter and one path.
type Source struct {
	ID         string    `json:"id"`
	Adapter    string    `json:"adapter"`
	Path       string    `json:"path"`
	Workspace  string    `json:"workspace,omitempty"`
	Enabled    bool      `json:"enabled"`
	LastSync   time.Time `json:"lastSync"`
	Cursor     []byte    `json:"cursor,omitempty"`
	RemoteName string    `json:"remoteName,omitempty"` // set on sources imported from a remote
}

// Conversation is one logical chat session.
type Conversation struct {
	ID          string         `json:"id"`
	ExternalID  string         `json:"externalId,omitempty"`
	SourceID    string         `json:"sourceId"`
	Workspace   string         `json:"workspace,omitempty"`
	Title       string         `json:"title,omitempty"`
	CreatedAt   int64          `json:"createdAt"` // epoch ms
	UpdatedAt   int64          `json:"updatedAt"` // epoch ms
	ContentHash string         `json:"contentHash"`
	Metadata    map[string]any `json:"metadata,omitempty"`

	Messages []Message `json:"messages,omitempty"` // populated on upsert/get, omitted from list summaries
}

// Message is an ordered child of a conversation.
type Message struct {
	ConversationID string         `json:"conversationId"`
	Seq            int            `json:"seq"`
	Role           Role           `json:"role"`
	Content        string         `json:"content"`
	Parts          []Part         `json:"parts,omitempty"`
	CreatedAt      int64          `json:"createdAt,omitempty"`
	Model          string         `json:"model,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Remote is a named SSH-reachable peer.
type Remote struct {
	Name           string    `json:"name"`
	ConnectionStr  string    `json:"connectionStr"` // e.g. "user@host:/path/to/.hstry"
	LastFetch      time.Time `json:"lastFetch"`
	SnapshotPath   string    `json:"snapshotPath,omitempty"`
	Enabled        bool      `json:"enabled"`
}

// Filter narrows list_conversations / search results. Zero values mean
// "no constraint" for that field.
type Filter struct {
	SourceID      string
	Workspace     string // substring match
	Role          Role
	IncludeSystem bool // conversations made up only of system messages are excluded unless set
	CreatedAfter  int64
	CreatedBefore int64
	Dedup         bool // collapse results sharing a content-hash
	Scope         Scope
	RemoteName    string // when Scope includes remote results, restrict to one remote
}

// Scope selects where a search or list draws results from.
type Scope string

const (
	ScopeLocal  Scope = "local"
	ScopeRemote Scope = "remote"
	ScopeAll    Scope = "all"
)

// Paging bounds a list_conversations result set.
type Paging struct {
	Limit  int
	Offset int
}

// UpsertOutcome reports whether upsert_conversation created a new row or
// replaced an existing one.
type UpsertOutcome string

const (
	Inserted UpsertOutcome = "inserted"
	Updated  UpsertOutcome = "updated"
)

// UpsertResult is returned by Store.UpsertConversation.
type UpsertResult struct {
	Outcome UpsertOutcome
	ID      string
}

// IndexedMessage is the row shape the Index's batch writer consumes
// when draining the maintenance queue.
type IndexedMessage struct {
	RowID          int64
	MessageID      string // conversationID + ":" + seq
	ConversationID string
	Content        string
	Role           Role
	CreatedAt      int64
}

// Stats is the global counts summary; its BySource field supplements it
// with a per-source breakdown that also names each source's adapter.
type Stats struct {
	Sources       int
	Conversations int
	Messages      int
	BySource      map[string]SourceStats
}

// SourceStats is one row of the per-source breakdown.
type SourceStats struct {
	Adapter       string
	Conversations int
	Messages      int
	LastSync      time.Time
}

// Sentinel errors forming the engine's error taxonomy. Components wrap
// these with %w so callers can errors.Is/As against them.
var (
	ErrStoreCorrupt         = errors.New("store corrupt")
	ErrStoreVersionMismatch = errors.New("store schema version mismatch")
	ErrStoreLocked          = errors.New("store locked")
	ErrStoreBusy            = errors.New("store busy")

	ErrNotFound          = errors.New("not found")
	ErrEmptyConversation = errors.New("conversation has zero messages")

	ErrUsage  = errors.New("usage error")
	ErrConfig = errors.New("config error")

	ErrAdapterNotFound        = errors.New("adapter not found")
	ErrAdapterHostUnavailable = errors.New("adapter scripting host unavailable")
	ErrAdapterProtocol        = errors.New("adapter protocol error")
	ErrAdapterTimeout         = errors.New("adapter timeout")

	ErrRemoteUnreachable     = errors.New("remote unreachable")
	ErrRemoteVersionMismatch = errors.New("remote version mismatch")

	ErrIndexCorrupt = errors.New("index corrupt")
	ErrCancelled    = errors.New("cancelled")
)

// ComputeContentHash is the deterministic digest over (role,
// normalized-content) pairs in sequence, used for identity and dedup.
// Messages must already be in sequence order.
func ComputeContentHash(messages []Message) string {
	h := sha256.New()
	for _, m := range messages {
		h.Write([]byte(string(m.Role)))
		h.Write([]byte{0})
		h.Write([]byte(normalizeForHash(m.Content)))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// normalizeForHash trims surrounding whitespace and collapses internal
// runs of whitespace so that cosmetic re-serialization of the same
// conversation by an adapter doesn't change its content-hash.
func normalizeForHash(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// Identity returns the key used for upsert matching: (source, external
// ID) when present, otherwise (source, content-hash).
func (c *Conversation) Identity() (sourceID, key string) {
	if c.ExternalID != "" {
		return c.SourceID, "ext:" + c.ExternalID
	}
	return c.SourceID, "hash:" + c.ContentHash
}
