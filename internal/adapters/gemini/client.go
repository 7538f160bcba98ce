package gemini

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/keyra/aicore/internal/core"
)

const defaultSpeakerVoice = "Zephyr"

// Client opens live dialogue connections against the Gemini Live API.
// It implements core.DialogueProvider.
type Client struct {
	api   *genai.Client
	model string
}

func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	api, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1alpha"},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Client{api: api, model: model}, nil
}

func buildLiveConfig(cfg core.DialogueConfig) *genai.LiveConnectConfig {
	voice := cfg.SpeakerVoice
	if voice == "" {
		voice = defaultSpeakerVoice
	}
	return &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: cfg.SystemInstruction}},
		},
		MediaResolution: genai.MediaResolutionMedium,
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
		RealtimeInputConfig: &genai.RealtimeInputConfig{
			AutomaticActivityDetection: &genai.AutomaticActivityDetection{
				Disabled: false,
				// Aggressive speech detection keeps perceived latency low;
				// the silence window allows short natural pauses.
				StartOfSpeechSensitivity: genai.StartSensitivityHigh,
				EndOfSpeechSensitivity:   genai.EndSensitivityHigh,
				PrefixPaddingMs:          genai.Ptr(int32(10)),
				SilenceDurationMs:        genai.Ptr(int32(200)),
			},
		},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
		EnableAffectiveDialog:    genai.Ptr(true),
	}
}

// Open connects a live session. The returned connection pumps server
// messages on a dedicated goroutine so Receive honors ctx cancellation.
func (c *Client) Open(ctx context.Context, cfg core.DialogueConfig) (core.DialogueConn, error) {
	session, err := c.api.Live.Connect(ctx, c.model, buildLiveConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("connect live session: %w", err)
	}

	conn := &Conn{
		session: session,
		events:  make(chan receiveResult, 8),
		closed:  make(chan struct{}),
	}
	go conn.readLoop()
	return conn, nil
}

type receiveResult struct {
	msg *genai.LiveServerMessage
	err error
}

// Conn wraps one live session. Implements core.DialogueConn.
type Conn struct {
	session *genai.Session
	events  chan receiveResult
	closed  chan struct{}

	closeOnce sync.Once
}

// readLoop pumps the session's infinite receive sequence into events. It
// exits when the underlying websocket errors, which Close guarantees.
func (c *Conn) readLoop() {
	for {
		msg, err := c.session.Receive()
		select {
		case c.events <- receiveResult{msg: msg, err: err}:
		case <-c.closed:
			return
		}
		if err != nil {
			return
		}
	}
}

func (c *Conn) SendAudio(ctx context.Context, chunk core.MediaChunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: chunk.Data, MIMEType: chunk.MIMEType},
	})
}

func (c *Conn) SendText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.session.SendClientContent(genai.LiveClientContentInput{
		Turns: []*genai.Content{
			{Role: "user", Parts: []*genai.Part{{Text: text}}},
		},
		TurnComplete: genai.Ptr(true),
	})
}

func (c *Conn) SendVideo(ctx context.Context, chunk core.MediaChunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Video: &genai.Blob{Data: chunk.Data, MIMEType: chunk.MIMEType},
	})
}

// Receive returns the next dialogue event, honoring ctx cancellation even
// while the underlying websocket read is blocked.
func (c *Conn) Receive(ctx context.Context) (*core.DialogueEvent, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-c.events:
		if res.err != nil {
			return nil, res.err
		}
		return mapServerMessage(res.msg), nil
	}
}

func mapServerMessage(msg *genai.LiveServerMessage) *core.DialogueEvent {
	ev := &core.DialogueEvent{}
	sc := msg.ServerContent
	if sc == nil {
		return ev
	}
	ev.Interrupted = sc.Interrupted
	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part == nil {
				continue
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				ev.Audio = append(ev.Audio, part.InlineData.Data...)
			}
			if part.Text != "" {
				ev.Text += part.Text
			}
		}
	}
	return ev
}

func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.session.Close()
		if err != nil {
			log.Error().Err(err).Str("module", "gemini").Msg("close live session")
		}
	})
	return err
}
