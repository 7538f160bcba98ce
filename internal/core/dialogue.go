package core

import "context"

// DialogueConfig carries the per-session settings the dialogue endpoint needs.
type DialogueConfig struct {
	SystemInstruction string
	SpeakerVoice      string
	InputSampleRate   int
}

// DialogueEvent is one event pulled from the dialogue connection.
// Interrupted means the remote endpoint detected the user speaking over a
// prior response; such events must not be forwarded to the sink.
type DialogueEvent struct {
	Audio       []byte
	Text        string
	Interrupted bool
}

// DialogueConn is one logical connection to the remote conversational
// endpoint. Exclusively owned by a session; invalid after Close.
type DialogueConn interface {
	// SendAudio forwards a realtime audio chunk.
	SendAudio(ctx context.Context, chunk MediaChunk) error
	// SendText forwards a complete user text turn.
	SendText(ctx context.Context, text string) error
	// SendVideo forwards a realtime image/video chunk.
	SendVideo(ctx context.Context, chunk MediaChunk) error
	// Receive blocks for the next event. It must return promptly with
	// ctx.Err() once ctx is cancelled. The event sequence is infinite and
	// not restartable; any other error is fatal for the connection.
	Receive(ctx context.Context) (*DialogueEvent, error)
	Close() error
}

// DialogueProvider opens dialogue connections.
type DialogueProvider interface {
	Open(ctx context.Context, cfg DialogueConfig) (DialogueConn, error)
}
