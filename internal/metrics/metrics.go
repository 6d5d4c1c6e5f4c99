// Package metrics holds the client's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UtterancesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whatsword_utterances_sent_total",
		Help: "Local final utterances handed to the session channel.",
	})

	UtterancesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "whatsword_utterances_received_total",
		Help: "Inbound utterances appended to the timeline.",
	}, []string{"kind"})

	SendDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whatsword_send_dropped_total",
		Help: "Outbound envelopes dropped because the channel was not open or the write failed.",
	})

	InboundMalformed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whatsword_inbound_malformed_total",
		Help: "Inbound payloads that could not be decoded.",
	})

	CaptureRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "whatsword_capture_restarts_total",
		Help: "Automatic capture restarts by policy.",
	}, []string{"policy"})

	CaptureErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "whatsword_capture_errors_total",
		Help: "Capture errors by normalized kind.",
	}, []string{"kind"})

	SpeakRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "whatsword_speak_requests_total",
		Help: "Spoken output requests by result.",
	}, []string{"result"})

	SynthesisLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "whatsword_tts_synthesis_seconds",
		Help:    "Time to synthesize one spoken utterance.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})

	ConnectionOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "whatsword_connection_open",
		Help: "1 while the session channel is open.",
	})
)
