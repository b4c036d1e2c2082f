// Package voicebot orchestrates the transcription pipeline: it consumes
// platform events, gates them against the config store, runs the
// transcription and formatting adapters, and delivers the result back into
// the originating conversation.
package voicebot

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"voicescribe/metrics"
	"voicescribe/telegram"
)

const (
	initialRetryDelay = 5 * time.Second
	maxRetryDelay     = 300 * time.Second
	downloadAttempts  = 3
	sendPacing        = 500 * time.Millisecond
	floodWaitMargin   = 2 * time.Second
	errTextLimit      = 900

	statusText = "⏳ Transcribing…"
)

// Store is the slice of the config store the bot reads and mutates.
type Store interface {
	Enabled(ctx context.Context) bool
	My(ctx context.Context) bool
	Friend(ctx context.Context) bool
	SetEnabled(ctx context.Context, on bool) error
	SetMy(ctx context.Context, on bool) error
	SetFriend(ctx context.Context, on bool) error
	Model(ctx context.Context) string
	SetModel(ctx context.Context, name string) error
	TrackedUsers(ctx context.Context) []int64
	AddTracked(ctx context.Context, id int64) (bool, error)
	RemoveTracked(ctx context.Context, id int64) (bool, error)
}

// Transcriber is the transcription adapter surface.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
	Reload(model string) error
	Model() string
	Workers() int
}

// Formatter is the formatting adapter surface.
type Formatter interface {
	Format(ctx context.Context, text string) string
}

type Options struct {
	Dial        func() (telegram.Client, error)
	Store       Store
	Transcriber Transcriber
	Formatter   Formatter
	Metrics     *metrics.Metrics
	Logger      *log.Logger
	TempDir     string

	// Sleep overrides pacing/backoff waits in tests.
	Sleep func(time.Duration)
}

type Bot struct {
	dial    func() (telegram.Client, error)
	store   Store
	stt     Transcriber
	format  Formatter
	metrics *metrics.Metrics
	logger  *log.Logger
	tempDir string
	sleep   func(time.Duration)

	// In-flight voice tasks, tracked so shutdown can drain.
	tasks sync.WaitGroup
}

func New(opts Options) *Bot {
	b := &Bot{
		dial:    opts.Dial,
		store:   opts.Store,
		stt:     opts.Transcriber,
		format:  opts.Formatter,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		tempDir: opts.TempDir,
		sleep:   opts.Sleep,
	}
	if b.tempDir == "" {
		b.tempDir = "temp"
	}
	if b.sleep == nil {
		b.sleep = time.Sleep
	}
	return b
}

var errUpdatesClosed = errors.New("update stream ended")

// Run owns the session lifecycle. Transient connection failures are retried
// with exponential backoff; credential failures end the process.
func (b *Bot) Run(ctx context.Context) error {
	delay := initialRetryDelay
	for {
		err := b.runOnce(ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			return nil
		}
		if telegram.IsFatal(err) {
			return err
		}

		b.metrics.Reconnects.Inc()
		b.logger.Error("connection lost", "error", err, "retry_in", delay)
		b.sleep(delay)
		if ctx.Err() != nil {
			return nil
		}
		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
}

func (b *Bot) runOnce(ctx context.Context) error {
	client, err := b.dial()
	if err != nil {
		return err
	}
	defer client.Close()

	b.announce(client)

	for ev := range client.Updates(ctx) {
		switch {
		case ev.Voice != nil:
			b.handleVoice(ctx, client, *ev.Voice)
		case ev.Command != nil:
			b.handleCommand(ctx, client, *ev.Command)
		}
	}
	b.tasks.Wait()

	if ctx.Err() != nil {
		return context.Canceled
	}
	return errUpdatesClosed
}

func (b *Bot) announce(tg telegram.Client) {
	_, err := tg.SendMessage(
		tg.Owner(),
		"🔧 Voice transcriber is running. Send /help in Saved Messages.",
	)
	if err != nil {
		b.logger.Warn("startup message", "error", err)
	}
}

// handleVoice applies the gate check and spawns a tracked task for the
// event. A dropped event has no visible side effect.
func (b *Bot) handleVoice(ctx context.Context, tg telegram.Client, ev telegram.VoiceEvent) {
	if !b.admit(ctx, ev) {
		b.metrics.EventsDropped.Inc()
		b.logger.Debug("voice dropped", "msg", ev.MessageID, "sender", ev.SenderID)
		return
	}
	origin := "tracked"
	if ev.FromSelf {
		origin = "own"
	}
	b.metrics.VoiceEvents.WithLabelValues(origin).Inc()

	b.tasks.Add(1)
	go func() {
		defer b.tasks.Done()
		b.processVoice(ctx, tg, ev)
	}()
}

func (b *Bot) admit(ctx context.Context, ev telegram.VoiceEvent) bool {
	if !b.store.Enabled(ctx) {
		return false
	}
	if ev.FromSelf {
		return b.store.My(ctx)
	}
	if !b.store.Friend(ctx) {
		return false
	}
	for _, id := range b.store.TrackedUsers(ctx) {
		if id == ev.SenderID {
			return true
		}
	}
	return false
}

func removeQuiet(logger *log.Logger, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn("remove audio file", "path", path, "error", err)
	}
}
