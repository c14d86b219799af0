// Package runtime spawns an adapter subprocess per invocation, speaks
// the line-delimited JSON wire protocol over its stdio, and normalizes
// the result stream for the Ingestor. Adapters are
// untrusted third-party scripts; no in-process execution.
package runtime

import "github.com/byteowlz/hstry/internal/types"

// Op is one of the four operations an adapter subprocess supports.
type Op string

const (
	OpInfo   Op = "info"
	OpDetect Op = "detect"
	OpParse  Op = "parse"
	OpExport Op = "export"
)

// Request is one line written to the adapter's stdin.
type Request struct {
	Op      Op             `json:"op"`
	Path    string         `json:"path"`
	Options RequestOptions `json:"options,omitempty"`
}

// RequestOptions carries the optional hints an op accepts.
type RequestOptions struct {
	Since  int64  `json:"since,omitempty"` // epoch ms
	Limit  int    `json:"limit,omitempty"`
	Cursor []byte `json:"cursor,omitempty"`
}

// Response is one line read from the adapter's stdout. Exactly one of
// the fields is populated per response shape.
type Response struct {
	Manifest     *ManifestInfo     `json:"manifest,omitempty"`     // info
	Confidence   *float64          `json:"confidence,omitempty"`   // detect (null allowed)
	Conversation *ConversationWire `json:"conversation,omitempty"` // parse, one per record
	Cursor       []byte            `json:"cursor,omitempty"`       // parse, batch boundary
	Done         bool              `json:"done,omitempty"`         // parse, terminal
	Export       *ExportWire       `json:"export,omitempty"`       // export
	Error        *WireError        `json:"error,omitempty"`
}

// ManifestInfo mirrors registry.Manifest's wire shape for the info op.
type ManifestInfo struct {
	Name         string   `json:"name"`
	DisplayName  string   `json:"displayName"`
	Version      string   `json:"version"`
	DefaultPaths []string `json:"defaultPaths,omitempty"`
}

// ExportWire is the export op's payload.
type ExportWire struct {
	Format  string `json:"format"`
	Mime    string `json:"mime"`
	Content string `json:"content"`
}

// WireError is how an adapter reports a parse-time failure.
type WireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ConversationWire is the JSON schema of one adapter conversation
// record.
type ConversationWire struct {
	ExternalID string          `json:"externalId,omitempty"`
	Title      string          `json:"title,omitempty"`
	CreatedAt  int64           `json:"createdAt"`
	UpdatedAt  int64           `json:"updatedAt,omitempty"`
	Workspace  string          `json:"workspace,omitempty"`
	Messages   []MessageWire   `json:"messages"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
}

// MessageWire is the JSON schema of one message within a
// ConversationWire record.
type MessageWire struct {
	Role      types.Role     `json:"role"`
	Content   string         `json:"content"`
	Parts     []PartWire     `json:"parts,omitempty"`
	CreatedAt int64          `json:"createdAt,omitempty"`
	Model     string         `json:"model,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// PartWire is the wire form of types.Part; Kind may be any tag the
// adapter chooses, normalized to types.PartRaw if it falls outside the
// closed set.
type PartWire struct {
	Kind    string         `json:"kind"`
	Text    string         `json:"text,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}
