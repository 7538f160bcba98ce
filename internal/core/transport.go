package core

import "context"

// TransportHooks are the forwarding callbacks a media transport invokes for
// inbound frames. Any of them may be nil.
type TransportHooks struct {
	// OnAudioFrame receives each inbound binary frame from the audio channel.
	OnAudioFrame func(data []byte)
	// OnVideoFrame receives each inbound binary frame from the video channel.
	OnVideoFrame func(data []byte)
	// OnDisconnect fires once when the peer connection fails or closes.
	OnDisconnect func()
}

// MediaTransport wraps one peer-to-peer connection carrying audio/video
// between the core and the remote peer.
type MediaTransport interface {
	// CreateOffer creates the data channels, gathers candidates and returns
	// the local SDP offer.
	CreateOffer(ctx context.Context) (string, error)
	// SetAnswer applies the remote SDP answer, completing the handshake.
	SetAnswer(ctx context.Context, sdp string) error
	// SendAudio writes model audio back to the peer, best-effort.
	SendAudio(data []byte) error
	// Close closes both channels then the connection; tolerates either
	// being already closed.
	Close() error
}

// TransportFactory builds one MediaTransport per session.
type TransportFactory interface {
	New(sid SessionID, hooks TransportHooks) (MediaTransport, error)
}
