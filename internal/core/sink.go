package core

// EventSink receives per-session notifications from the response listener.
// Every field is optional; absent callbacks are skipped.
type EventSink struct {
	OnAudio func(data []byte)
	OnText  func(text string)
	OnError func(err error)
}
