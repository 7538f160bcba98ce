package core

// SessionID identifies one end-to-end conversational exchange between a
// remote peer and a dialogue connection.
type SessionID string

// MediaChunk is a raw binary payload plus its mime type (audio or image).
type MediaChunk struct {
	Data     []byte
	MIMEType string
}

// SendItem is one element of the audio/text send queue. Chunk is nil for
// text items.
type SendItem struct {
	Text  string
	Chunk *MediaChunk
}

// IsText reports whether the item carries a user text turn.
func (i SendItem) IsText() bool { return i.Chunk == nil }

// SessionStats is a point-in-time snapshot of a session's counters.
// Counters only grow; they reset when a session is recreated.
type SessionStats struct {
	AudioSent     uint64 `json:"audio_sent"`
	ImagesSent    uint64 `json:"images_sent"`
	ImagesSkipped uint64 `json:"images_skipped"`
	AudioReceived uint64 `json:"audio_received"`
}
