package app

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
)

// runResponseListener pulls events from the dialogue connection and fans
// them out to the session's sink. Cancellation is the normal exit; a fatal
// receive error stops the loop without closing the session — teardown is
// the coordinator's job, triggered by the transport disconnect or an
// explicit close.
func (e *Engine) runResponseListener(ctx context.Context, ent *sessionEntry) {
	log.Info().Str("module", "app.listener").Str("sid", string(ent.sid)).Msg("response listener started")
	defer log.Info().Str("module", "app.listener").Str("sid", string(ent.sid)).Msg("response listener stopped")

	for {
		ev, err := ent.dialogue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info().Str("module", "app.listener").Str("sid", string(ent.sid)).Msg("response listener cancelled")
				return
			}
			log.Error().Err(err).Str("module", "app.listener").Str("sid", string(ent.sid)).Msg("receive failed, listener exiting")
			return
		}

		// The peer started talking over this response; drop it whole.
		if ev.Interrupted {
			continue
		}

		if len(ev.Audio) > 0 {
			if ent.sink.OnAudio != nil {
				audio := ev.Audio
				dispatch(ent.sid, "on_audio", func() { ent.sink.OnAudio(audio) })
			}
			ent.stats.audioReceived.Add(1)
		}

		if ev.Text != "" {
			if ent.sink.OnText != nil {
				text := ev.Text
				dispatch(ent.sid, "on_text", func() { ent.sink.OnText(text) })
			}
		}
	}
}
