package voicebot

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"voicescribe/chunk"
	"voicescribe/telegram"
)

// processVoice runs one event through download → transcribe → format →
// deliver. Every failure is recovered here and surfaced into the same
// message the success path uses; nothing escapes the task.
func (b *Bot) processVoice(ctx context.Context, tg telegram.Client, ev telegram.VoiceEvent) {
	logger := b.logger.With("msg", ev.MessageID, "chat", ev.ChatID)

	// Best-effort status so the user sees something while the pipeline runs.
	// For tracked voice the status reply is also the delivery target: if it
	// cannot be posted there is nowhere to put the result, so give up.
	statusID := 0
	if ev.FromSelf {
		if err := tg.EditCaption(ev.ChatID, ev.MessageID, statusText); err != nil {
			logger.Debug("status caption", "error", err)
		}
	} else {
		id, err := tg.Reply(ev.ChatID, ev.MessageID, statusText, true)
		if err != nil {
			logger.Warn("post status reply", "error", err)
			return
		}
		statusID = id
	}

	path, err := b.download(tg, ev)
	if err != nil {
		b.reportError(tg, ev, statusID, err)
		return
	}
	defer removeQuiet(logger, path)

	started := time.Now()
	raw, err := b.stt.Transcribe(ctx, path)
	if err != nil {
		b.reportError(tg, ev, statusID, err)
		return
	}
	b.metrics.TranscriptionDuration.Observe(time.Since(started).Seconds())

	text := b.format.Format(ctx, raw)

	if ev.FromSelf {
		err = b.deliverOwn(tg, ev, text)
	} else {
		err = b.deliverTracked(tg, ev, statusID, text)
	}
	if err != nil {
		b.reportError(tg, ev, statusID, err)
		return
	}
	logger.Info("voice delivered", "chars", len(text))
}

// download retries transient failures up to downloadAttempts times with a
// 2^attempt-second pause between tries.
func (b *Bot) download(tg telegram.Client, ev telegram.VoiceEvent) (string, error) {
	dest := filepath.Join(
		b.tempDir,
		fmt.Sprintf("voice_%d_%s.ogg", ev.MessageID, uuid.NewString()),
	)
	var lastErr error
	for attempt := 1; attempt <= downloadAttempts; attempt++ {
		path, err := tg.Download(ev.FileID, dest)
		if err == nil {
			return path, nil
		}
		lastErr = err
		if attempt < downloadAttempts {
			b.sleep(time.Duration(1<<attempt) * time.Second)
		}
	}
	return "", fmt.Errorf("download after %d attempts: %w", downloadAttempts, lastErr)
}

// deliverOwn writes the transcript into the original message's caption when
// it fits; otherwise the caption gets a truncated head and the full text
// follows as chunked replies.
func (b *Bot) deliverOwn(tg telegram.Client, ev telegram.VoiceEvent, text string) error {
	if len(text) <= telegram.CaptionLimit {
		if err := tg.EditCaption(ev.ChatID, ev.MessageID, text); err != nil {
			if _, err2 := tg.Reply(ev.ChatID, ev.MessageID, text, false); err2 != nil {
				return err2
			}
		}
		return nil
	}

	head, _, _ := strings.Cut(text, "\n\n")
	if len(head) > telegram.CaptionLimit-3 {
		head = truncate(text, telegram.CaptionLimit-3)
	}
	if err := tg.EditCaption(ev.ChatID, ev.MessageID, head+"…"); err != nil {
		b.logger.Debug("caption head", "error", err)
	}

	chunks := chunk.Split(text, telegram.MessageLimit)
	for i, c := range chunks {
		body := c
		if len(chunks) > 1 {
			body = fmt.Sprintf("📝 **Part %d/%d**\n\n%s", i+1, len(chunks), c)
		}
		if _, err := tg.Reply(ev.ChatID, ev.MessageID, body, false); err != nil {
			return err
		}
		b.metrics.ChunksSent.Inc()
		b.sleep(sendPacing)
	}
	return nil
}

// deliverTracked edits the status reply in place; oversized transcripts get
// a truncated head there and the remaining chunks as further replies. The
// text carries the sender's name and the conversation kind.
func (b *Bot) deliverTracked(tg telegram.Client, ev telegram.VoiceEvent, statusID int, text string) error {
	prefix := fmt.Sprintf("**[%s]:**\n\n", ev.SenderName)
	if ev.Kind == telegram.ChatGroup {
		prefix = fmt.Sprintf("**[%s]** (group):\n\n", ev.SenderName)
	}
	full := prefix + text

	if len(full) <= telegram.MessageLimit {
		if err := tg.EditMessage(ev.ChatID, statusID, full); err != nil {
			// The status reply may be gone; fall back to a fresh reply.
			if _, err2 := tg.Reply(ev.ChatID, ev.MessageID, full, true); err2 != nil {
				return err
			}
		}
		return nil
	}

	head := truncate(full, telegram.MessageLimit-100)
	if err := tg.EditMessage(ev.ChatID, statusID, head+"…"); err != nil {
		return err
	}
	chunks := chunk.Split(full, telegram.MessageLimit)
	for i := 1; i < len(chunks); i++ {
		body := fmt.Sprintf("📝 **Part %d/%d**\n\n%s", i+1, len(chunks), chunks[i])
		if _, err := tg.Reply(ev.ChatID, ev.MessageID, body, false); err != nil {
			return err
		}
		b.metrics.ChunksSent.Inc()
		b.sleep(sendPacing)
	}
	return nil
}

// reportError surfaces a pipeline failure into the message the success path
// would have used. Flood control is not an error: sleep out the mandated
// cooldown plus a margin and move on.
func (b *Bot) reportError(tg telegram.Client, ev telegram.VoiceEvent, statusID int, err error) {
	if wait, ok := telegram.AsFloodWait(err); ok {
		b.logger.Warn("flood wait", "duration", wait)
		b.sleep(wait + floodWaitMargin)
		return
	}

	b.metrics.PipelineErrors.Inc()
	b.logger.Error("voice processing", "msg", ev.MessageID, "error", err)

	text := "❌ Error: " + truncate(err.Error(), errTextLimit)
	switch {
	case ev.FromSelf:
		if e := tg.EditCaption(ev.ChatID, ev.MessageID, text); e != nil {
			if _, e2 := tg.Reply(ev.ChatID, ev.MessageID, text, false); e2 != nil {
				b.logger.Error("report error", "error", e2)
			}
		}
	case statusID != 0:
		if e := tg.EditMessage(ev.ChatID, statusID, text); e != nil {
			b.logger.Error("report error", "error", e)
		}
	default:
		if _, e := tg.Reply(ev.ChatID, ev.MessageID, text, true); e != nil {
			b.logger.Error("report error", "error", e)
		}
	}
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
