package rtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/keyra/aicore/internal/core"
)

// Factory builds one data-channel transport per session.
type Factory struct {
	cfg webrtc.Configuration
}

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

func NewFactory(cfg webrtc.Configuration) *Factory {
	return &Factory{cfg: cfg}
}

func (f *Factory) New(sid core.SessionID, hooks core.TransportHooks) (core.MediaTransport, error) {
	pc, err := webrtc.NewPeerConnection(f.cfg)
	if err != nil {
		return nil, err
	}

	t := &Transport{pc: pc, sid: sid, hooks: hooks}

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "rtc").Str("sid", string(sid)).Str("ice_state", s.String()).Msg("ICE state")
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("sid", string(sid)).Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed ||
			s == webrtc.PeerConnectionStateDisconnected {
			t.fireDisconnect()
		}
	})

	pc.OnDataChannel(func(ch *webrtc.DataChannel) {
		log.Info().Str("module", "rtc").Str("sid", string(sid)).Str("label", ch.Label()).Msg("remote data channel")
	})

	return t, nil
}

// Transport carries audio/video between the core and one remote peer over
// two ordered, reliable data channels.
type Transport struct {
	pc    *webrtc.PeerConnection
	sid   core.SessionID
	hooks core.TransportHooks

	audioCh *webrtc.DataChannel
	videoCh *webrtc.DataChannel

	closeOnce      sync.Once
	disconnectOnce sync.Once
}

func (t *Transport) fireDisconnect() {
	t.disconnectOnce.Do(func() {
		if t.hooks.OnDisconnect != nil {
			t.hooks.OnDisconnect()
		}
	})
}

// CreateOffer creates both data channels, gathers ICE candidates and
// returns the local SDP offer for the remote peer to answer.
func (t *Transport) CreateOffer(ctx context.Context) (string, error) {
	ordered := true
	init := &webrtc.DataChannelInit{Ordered: &ordered}

	videoCh, err := t.pc.CreateDataChannel("video", init)
	if err != nil {
		return "", fmt.Errorf("create video channel: %w", err)
	}
	audioCh, err := t.pc.CreateDataChannel("audio", init)
	if err != nil {
		return "", fmt.Errorf("create audio channel: %w", err)
	}
	t.videoCh = videoCh
	t.audioCh = audioCh

	t.bindChannel(videoCh, t.hooks.OnVideoFrame)
	t.bindChannel(audioCh, t.hooks.OnAudioFrame)

	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(t.pc)
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	local := t.pc.LocalDescription()
	log.Info().Str("module", "rtc").Str("sid", string(t.sid)).Int("sdp_bytes", len(local.SDP)).Msg("offer created")
	return local.SDP, nil
}

// bindChannel forwards inbound binary frames to fwd. Non-binary payloads
// are logged and dropped.
func (t *Transport) bindChannel(ch *webrtc.DataChannel, fwd func([]byte)) {
	label := ch.Label()
	ch.OnOpen(func() {
		log.Info().Str("module", "rtc").Str("sid", string(t.sid)).Str("label", label).Msg("channel open")
	})
	ch.OnClose(func() {
		log.Info().Str("module", "rtc").Str("sid", string(t.sid)).Str("label", label).Msg("channel closed")
	})
	ch.OnError(func(err error) {
		log.Error().Err(err).Str("module", "rtc").Str("sid", string(t.sid)).Str("label", label).Msg("channel error")
	})
	ch.OnMessage(func(msg webrtc.DataChannelMessage) {
		if msg.IsString {
			log.Warn().Str("module", "rtc").Str("sid", string(t.sid)).Str("label", label).Msg("unexpected text payload, dropping")
			return
		}
		if fwd != nil {
			fwd(msg.Data)
		}
	})
}

// SetAnswer applies the remote SDP answer, completing the handshake.
func (t *Transport) SetAnswer(ctx context.Context, sdp string) error {
	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	if err := t.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	log.Info().Str("module", "rtc").Str("sid", string(t.sid)).Int("sdp_bytes", len(sdp)).Msg("answer applied")
	return nil
}

// SendAudio writes model audio back over the audio channel. It fails when
// the channel has not opened yet; the caller decides whether that matters.
func (t *Transport) SendAudio(data []byte) error {
	ch := t.audioCh
	if ch == nil || ch.ReadyState() != webrtc.DataChannelStateOpen {
		return fmt.Errorf("audio channel not open")
	}
	return ch.Send(data)
}

// Close closes both channels then the peer connection, tolerating either
// being already closed.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		if t.videoCh != nil {
			if cerr := t.videoCh.Close(); cerr != nil {
				log.Error().Err(cerr).Str("module", "rtc").Str("sid", string(t.sid)).Msg("close video channel")
			}
		}
		if t.audioCh != nil {
			if cerr := t.audioCh.Close(); cerr != nil {
				log.Error().Err(cerr).Str("module", "rtc").Str("sid", string(t.sid)).Msg("close audio channel")
			}
		}
		err = t.pc.Close()
		if err != nil {
			log.Error().Err(err).Str("module", "rtc").Str("sid", string(t.sid)).Msg("close error")
		} else {
			log.Info().Str("module", "rtc").Str("sid", string(t.sid)).Msg("closed")
		}
	})
	return err
}
