package app

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"
)

// statsLogInterval bounds how often a processor logs its queue/counter state.
const statsLogInterval = 30 * time.Second

// runAudioProcessor drains the audio/text queue in its own loop so a burst
// of images can never starve realtime audio. A failed send is reported to
// the sink and the loop keeps going; only cancellation stops it.
func (e *Engine) runAudioProcessor(ctx context.Context, ent *sessionEntry) {
	log.Info().Str("module", "app.processor").Str("sid", string(ent.sid)).Msg("audio processor started")
	itemsSent := 0
	lastStatsLog := time.Now()
	defer func() {
		log.Info().Str("module", "app.processor").Str("sid", string(ent.sid)).Int("items_sent", itemsSent).Msg("audio processor stopped")
	}()

	for {
		item, err := ent.audioQ.Get(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info().Str("module", "app.processor").Str("sid", string(ent.sid)).Msg("audio processor cancelled")
			}
			return
		}

		if item.IsText() {
			if err := ent.dialogue.SendText(ctx, item.Text); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				log.Error().Err(err).Str("module", "app.processor").Str("sid", string(ent.sid)).Msg("send text")
				e.notifyError(ent, err)
			} else {
				itemsSent++
			}
		} else {
			if err := ent.dialogue.SendAudio(ctx, *item.Chunk); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				log.Error().Err(err).Str("module", "app.processor").Str("sid", string(ent.sid)).Msg("send audio")
				e.notifyError(ent, err)
			} else {
				itemsSent++
				ent.stats.audioSent.Add(1)
			}
		}

		if time.Since(lastStatsLog) > statsLogInterval {
			log.Info().
				Str("module", "app.processor").
				Str("sid", string(ent.sid)).
				Int("queue_len", ent.audioQ.Len()).
				Int("items_sent", itemsSent).
				Uint64("audio_sent", ent.stats.audioSent.Load()).
				Msg("audio processor stats")
			lastStatsLog = time.Now()
		}

		// Yield so sibling loops on the same session are never starved.
		runtime.Gosched()
	}
}

// runMediaProcessor drains the media queue, forwarding image frames as
// realtime video input. Same shape as the audio processor, independent so
// neither queue blocks behind the other.
func (e *Engine) runMediaProcessor(ctx context.Context, ent *sessionEntry) {
	log.Info().Str("module", "app.processor").Str("sid", string(ent.sid)).Msg("media processor started")
	itemsSent := 0
	lastStatsLog := time.Now()
	defer func() {
		log.Info().Str("module", "app.processor").Str("sid", string(ent.sid)).Int("items_sent", itemsSent).Msg("media processor stopped")
	}()

	for {
		chunk, err := ent.mediaQ.Get(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info().Str("module", "app.processor").Str("sid", string(ent.sid)).Msg("media processor cancelled")
			}
			return
		}

		if err := ent.dialogue.SendVideo(ctx, chunk); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error().Err(err).Str("module", "app.processor").Str("sid", string(ent.sid)).Msg("send video")
			e.notifyError(ent, err)
		} else {
			itemsSent++
			ent.stats.imagesSent.Add(1)
		}

		if time.Since(lastStatsLog) > statsLogInterval {
			log.Info().
				Str("module", "app.processor").
				Str("sid", string(ent.sid)).
				Int("queue_len", ent.mediaQ.Len()).
				Int("items_sent", itemsSent).
				Uint64("images_sent", ent.stats.imagesSent.Load()).
				Uint64("images_skipped", ent.stats.imagesSkipped.Load()).
				Msg("media processor stats")
			lastStatsLog = time.Now()
		}

		runtime.Gosched()
	}
}
