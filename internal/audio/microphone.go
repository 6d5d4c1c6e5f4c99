// Package audio opens the local microphone through miniaudio.
package audio

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/ChristianLang184/whatsword-guest-frontend/internal/capture"
	"github.com/ChristianLang184/whatsword-guest-frontend/internal/log"
)

// Microphone captures 16-bit mono PCM from an input device. It serves both
// as the permission probe (Request) and as the PCM source for speech
// recognition (Open).
type Microphone struct {
	ctx        *malgo.AllocatedContext
	sampleRate uint32
	deviceName string

	closeOnce sync.Once
}

// NewMicrophone initializes the audio backend. deviceName selects an input
// by case-insensitive substring; empty means the system default.
func NewMicrophone(sampleRate int, deviceName string) (*Microphone, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return &Microphone{ctx: ctx, sampleRate: uint32(sampleRate), deviceName: deviceName}, nil
}

// Devices lists input device names.
func (m *Microphone) Devices() ([]string, error) {
	infos, err := m.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("list capture devices: %w", err)
	}
	names := make([]string, len(infos))
	for i, d := range infos {
		names[i] = d.Name()
	}
	return names, nil
}

// Request opens the device once to trigger any OS permission prompt.
func (m *Microphone) Request(ctx context.Context) (capture.AudioStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.Open(func([]byte) {})
}

// Open starts capturing and calls onData with a private copy of each buffer.
func (m *Microphone) Open(onData func(pcm []byte)) (capture.AudioStream, error) {
	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = 1
	cfg.SampleRate = m.sampleRate

	if m.deviceName != "" {
		infos, err := m.ctx.Devices(malgo.Capture)
		if err != nil {
			return nil, fmt.Errorf("list capture devices: %w", err)
		}
		names := make([]string, len(infos))
		for i, d := range infos {
			names[i] = d.Name()
		}
		i := matchDevice(names, m.deviceName)
		if i < 0 {
			return nil, fmt.Errorf("no input device matching %q", m.deviceName)
		}
		cfg.Capture.DeviceID = infos[i].ID.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) {
			buf := make([]byte, len(in))
			copy(buf, in)
			onData(buf)
		},
	}
	dev, err := malgo.InitDevice(m.ctx.Context, cfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("open capture device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("start capture device: %w", err)
	}
	log.Debug().Str("device", m.deviceName).Uint32("rate", m.sampleRate).Msg("microphone open")
	return &stream{dev: dev}, nil
}

// Close frees the audio backend.
func (m *Microphone) Close() {
	m.closeOnce.Do(func() {
		m.ctx.Uninit()
		m.ctx.Free()
	})
}

type stream struct {
	dev  *malgo.Device
	once sync.Once
}

func (s *stream) Release() {
	s.once.Do(func() {
		s.dev.Stop()
		s.dev.Uninit()
	})
}

// matchDevice returns the index of the first name containing want,
// ignoring case, or -1.
func matchDevice(names []string, want string) int {
	want = strings.ToLower(strings.TrimSpace(want))
	for i, n := range names {
		if strings.Contains(strings.ToLower(n), want) {
			return i
		}
	}
	return -1
}
