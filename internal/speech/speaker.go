// Package speech speaks text aloud. Requests are fire-and-forget: Speak
// queues work for a background worker that synthesizes and plays each
// utterance in order.
package speech

import (
	"context"
	"sync"
	"time"

	"github.com/ChristianLang184/whatsword-guest-frontend/internal/log"
	"github.com/ChristianLang184/whatsword-guest-frontend/internal/metrics"
)

// Options describe how one utterance should sound.
type Options struct {
	// Lang is a BCP-47 locale such as "en-US".
	Lang  string
	Rate  float64
	Pitch float64
}

// Speaker accepts text to be spoken. Speak never blocks and never reports
// failure to the caller.
type Speaker interface {
	Speak(text string, opts Options)
}

// Nop discards every request.
type Nop struct{}

func (Nop) Speak(string, Options) {}

// Player renders synthesized WAV audio.
type Player interface {
	Play(ctx context.Context, wav []byte, opts Options) error
}

type request struct {
	text string
	opts Options
}

// Queue is a Speaker backed by a Synthesizer and a Player.
type Queue struct {
	synth   Synthesizer
	player  Player
	timeout time.Duration

	reqs   chan request
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewQueue starts the worker. size bounds how many utterances may wait;
// requests beyond that are dropped.
func NewQueue(synth Synthesizer, player Player, size int) *Queue {
	if size <= 0 {
		size = 8
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		synth:   synth,
		player:  player,
		timeout: 30 * time.Second,
		reqs:    make(chan request, size),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) Speak(text string, opts Options) {
	if text == "" || q.ctx.Err() != nil {
		return
	}
	select {
	case q.reqs <- request{text: text, opts: opts}:
	default:
		metrics.SpeakRequests.WithLabelValues("dropped").Inc()
		log.Warn().Int("queued", len(q.reqs)).Msg("speech queue full, dropping utterance")
	}
}

// Close stops the worker, abandoning queued and in-flight utterances.
func (q *Queue) Close() {
	q.once.Do(func() {
		q.cancel()
		<-q.done
	})
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		select {
		case <-q.ctx.Done():
			return
		case r := <-q.reqs:
			q.say(r)
		}
	}
}

func (q *Queue) say(r request) {
	ctx, cancel := context.WithTimeout(q.ctx, q.timeout)
	defer cancel()

	start := time.Now()
	wav, err := q.synth.Synthesize(ctx, r.text, r.opts)
	if err != nil {
		metrics.SpeakRequests.WithLabelValues("error").Inc()
		log.Warn().Err(err).Str("lang", r.opts.Lang).Msg("synthesize")
		return
	}
	metrics.SynthesisLatency.Observe(time.Since(start).Seconds())

	if err := q.player.Play(ctx, wav, r.opts); err != nil {
		metrics.SpeakRequests.WithLabelValues("error").Inc()
		log.Warn().Err(err).Msg("play")
		return
	}
	metrics.SpeakRequests.WithLabelValues("ok").Inc()
}
