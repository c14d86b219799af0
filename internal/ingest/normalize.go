package ingest

import (
	"github.com/byteowlz/hstry/internal/adapter/runtime"
	"github.com/byteowlz/hstry/internal/types"
)

// closedPartKinds is the variant set the Ingestor normalizes onto;
// anything else is preserved as PartRaw with the adapter's original
// tag retained.
var closedPartKinds = map[string]types.PartKind{
	string(types.PartText):       types.PartText,
	string(types.PartCode):       types.PartCode,
	string(types.PartToolCall):   types.PartToolCall,
	string(types.PartToolResult): types.PartToolResult,
	string(types.PartAttachment): types.PartAttachment,
}

func normalizePart(w runtime.PartWire) types.Part {
	kind, ok := closedPartKinds[w.Kind]
	if !ok {
		return types.Part{Kind: types.PartRaw, RawTag: w.Kind, Text: w.Text, Payload: w.Payload}
	}
	return types.Part{Kind: kind, Text: w.Text, Payload: w.Payload}
}

func normalizeMessage(w runtime.MessageWire) types.Message {
	m := types.Message{
		Role:      w.Role,
		Content:   w.Content,
		CreatedAt: w.CreatedAt,
		Model:     w.Model,
		Metadata:  w.Metadata,
	}
	for _, p := range w.Parts {
		m.Parts = append(m.Parts, normalizePart(p))
	}
	return m
}

// normalizeConversation converts one adapter-reported record into the
// Store's normalized shape. Workspace falls back to the source's
// configured workspace label when the adapter doesn't report one.
// ID assignment and sequence numbering are left to the Store; identity
// is resolved by Conversation.Identity().
func normalizeConversation(src *types.Source, w *runtime.ConversationWire) *types.Conversation {
	conv := &types.Conversation{
		ExternalID: w.ExternalID,
		SourceID:   src.ID,
		Workspace:  w.Workspace,
		Title:      w.Title,
		CreatedAt:  w.CreatedAt,
		UpdatedAt:  w.UpdatedAt,
		Metadata:   w.Metadata,
	}
	if conv.Workspace == "" {
		conv.Workspace = src.Workspace
	}
	if conv.UpdatedAt < conv.CreatedAt {
		conv.UpdatedAt = conv.CreatedAt
	}
	for _, wm := range w.Messages {
		conv.Messages = append(conv.Messages, normalizeMessage(wm))
	}
	conv.ContentHash = types.ComputeContentHash(conv.Messages)
	return conv
}
