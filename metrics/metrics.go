// Package metrics exposes the bot's operational counters over HTTP.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every Prometheus metric the bot records.
type Metrics struct {
	VoiceEvents           *prometheus.CounterVec
	EventsDropped         prometheus.Counter
	PipelineErrors        prometheus.Counter
	ChunksSent            prometheus.Counter
	TranscriptionDuration prometheus.Histogram
	Reconnects            prometheus.Counter
	ModelReloads          prometheus.Counter
}

// New registers the metric set with reg. Tests pass a private registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		VoiceEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicescribe_voice_events_total",
			Help: "Voice messages accepted for processing, by origin.",
		}, []string{"origin"}),
		EventsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "voicescribe_events_dropped_total",
			Help: "Voice messages dropped by the gate check.",
		}),
		PipelineErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "voicescribe_pipeline_errors_total",
			Help: "Voice messages that ended in a reported error.",
		}),
		ChunksSent: f.NewCounter(prometheus.CounterOpts{
			Name: "voicescribe_chunks_sent_total",
			Help: "Delivery chunks sent as follow-up replies.",
		}),
		TranscriptionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicescribe_transcription_duration_seconds",
			Help:    "Wall time from download completion to transcript.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		Reconnects: f.NewCounter(prometheus.CounterOpts{
			Name: "voicescribe_reconnects_total",
			Help: "Connection supervisor reconnect attempts.",
		}),
		ModelReloads: f.NewCounter(prometheus.CounterOpts{
			Name: "voicescribe_model_reloads_total",
			Help: "Successful transcription engine swaps.",
		}),
	}
}

// Serve exposes /metrics and /healthz until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger *log.Logger) error {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
