package speech

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/ebitengine/oto/v3"
)

// OtoPlayer plays audio on the default output device. Only one may exist per
// process.
type OtoPlayer struct {
	ctx  *oto.Context
	rate int
}

// NewOtoPlayer opens the output device at sampleRate, mono, 16-bit.
func NewOtoPlayer(sampleRate int) (*OtoPlayer, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open audio output: %w", err)
	}
	<-ready
	return &OtoPlayer{ctx: ctx, rate: sampleRate}, nil
}

// Play decodes wav and blocks until playback finishes or ctx ends.
func (p *OtoPlayer) Play(ctx context.Context, wav []byte, opts Options) error {
	pcm, err := render(wav, p.rate, opts.Pitch)
	if err != nil {
		return err
	}
	player := p.ctx.NewPlayer(bytes.NewReader(pcm))
	defer player.Close()
	player.Play()

	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-tick.C:
		}
	}
	return nil
}

// render converts WAV bytes into PCM16 at outRate. A pitch other than 1
// raises or lowers the voice by playing it proportionally faster or slower.
func render(wav []byte, outRate int, pitch float64) ([]byte, error) {
	samples, rate, err := decodeWAV(wav)
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	if pitch > 0 && pitch != 1 {
		rate = int(float64(rate) * pitch)
	}
	return encodePCM16(resample(samples, rate, outRate)), nil
}
