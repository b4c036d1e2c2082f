package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const pollTimeout = 30 // seconds, long-poll

// Session implements Client on top of the Bot API. The controlling account
// is identified by ownerID: its voice messages count as "own voice" and only
// it may issue commands.
type Session struct {
	bot     *tgbotapi.BotAPI
	ownerID int64
	http    *http.Client
	logger  *log.Logger
	stop    sync.Once
}

// NewSession authenticates against the platform. Credential failures come
// back as *AuthError so the supervisor gives up instead of retrying.
func NewSession(token string, ownerID int64, logger *log.Logger) (*Session, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, classify("connect", err)
	}
	logger.Info("authorized", "account", bot.Self.UserName, "id", bot.Self.ID)
	return &Session{
		bot:     bot,
		ownerID: ownerID,
		http:    &http.Client{Timeout: 2 * time.Minute},
		logger:  logger,
	}, nil
}

func (s *Session) Owner() int64 { return s.ownerID }

func (s *Session) Updates(ctx context.Context) <-chan Update {
	out := make(chan Update)
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeout
	updates := s.bot.GetUpdatesChan(cfg)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				s.stopPolling()
				return
			case u, ok := <-updates:
				if !ok {
					return
				}
				ev := Translate(u, s.ownerID)
				if ev == nil {
					continue
				}
				select {
				case out <- *ev:
				case <-ctx.Done():
					s.stopPolling()
					return
				}
			}
		}
	}()
	return out
}

// Translate maps a raw platform update to an event the bot consumes, or nil
// for updates it ignores. Commands are only accepted from the controlling
// account.
func Translate(u tgbotapi.Update, ownerID int64) *Update {
	m := u.Message
	if m == nil || m.Chat == nil {
		return nil
	}

	if m.Voice != nil {
		kind := ChatDirect
		if m.Chat.IsGroup() || m.Chat.IsSuperGroup() {
			kind = ChatGroup
		}
		ev := &VoiceEvent{
			MessageID:  m.MessageID,
			ChatID:     m.Chat.ID,
			Kind:       kind,
			SenderName: "User",
			FileID:     m.Voice.FileID,
		}
		if m.From != nil {
			ev.SenderID = m.From.ID
			ev.FromSelf = m.From.ID == ownerID
			if m.From.FirstName != "" {
				ev.SenderName = m.From.FirstName
			}
		}
		return &Update{Voice: ev}
	}

	if m.IsCommand() && m.From != nil && m.From.ID == ownerID {
		ev := &CommandEvent{
			MessageID: m.MessageID,
			ChatID:    m.Chat.ID,
			Private:   m.Chat.IsPrivate(),
			Command:   strings.ToLower(m.Command()),
			Args:      strings.TrimSpace(m.CommandArguments()),
		}
		if r := m.ReplyToMessage; r != nil && r.From != nil {
			ev.ReplyToID = r.From.ID
			ev.ReplyToName = r.From.FirstName
		}
		return &Update{Command: ev}
	}

	return nil
}

func (s *Session) SendMessage(chatID int64, text string) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	sent, err := s.bot.Send(msg)
	if err != nil {
		return 0, classify("send message", err)
	}
	return sent.MessageID, nil
}

func (s *Session) Reply(chatID int64, messageID int, text string, quote bool) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if quote {
		msg.ReplyToMessageID = messageID
	}
	sent, err := s.bot.Send(msg)
	if err != nil {
		return 0, classify("reply", err)
	}
	return sent.MessageID, nil
}

func (s *Session) EditMessage(chatID int64, messageID int, text string) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeMarkdown
	if _, err := s.bot.Send(edit); err != nil {
		return classify("edit message", err)
	}
	return nil
}

func (s *Session) EditCaption(chatID int64, messageID int, text string) error {
	edit := tgbotapi.NewEditMessageCaption(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeMarkdown
	if _, err := s.bot.Send(edit); err != nil {
		return classify("edit caption", err)
	}
	return nil
}

// Download fetches the voice payload to destPath and returns the final path.
func (s *Session) Download(fileID, destPath string) (string, error) {
	url, err := s.bot.GetFileDirectURL(fileID)
	if err != nil {
		return "", classify("resolve file", err)
	}

	resp, err := s.http.Get(url)
	if err != nil {
		return "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download file: unexpected status %s", resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}
	f, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("create download file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(destPath)
		return "", fmt.Errorf("write download file: %w", err)
	}
	return destPath, nil
}

// UserName resolves an identifier to a display name. Best-effort: callers
// fall back to the bare id on error.
func (s *Session) UserName(id int64) (string, error) {
	ch, err := s.bot.GetChat(tgbotapi.ChatInfoConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: id},
	})
	if err != nil {
		return "", classify("get chat", err)
	}
	name := strings.TrimSpace(strings.TrimSpace(ch.FirstName) + " " + strings.TrimSpace(ch.LastName))
	if ch.UserName != "" {
		if name == "" {
			name = "@" + ch.UserName
		} else {
			name += " (@" + ch.UserName + ")"
		}
	}
	if name == "" {
		return "", fmt.Errorf("get chat %d: empty name", id)
	}
	return name, nil
}

func (s *Session) Close() {
	s.stopPolling()
}

func (s *Session) stopPolling() {
	s.stop.Do(s.bot.StopReceivingUpdates)
}

// classify maps SDK errors to the error types the pipeline dispatches on:
// flood control and credential failures; everything else is wrapped as-is.
func classify(op string, err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.RetryAfter > 0 {
			return &FloodWaitError{RetryAfter: time.Duration(apiErr.RetryAfter) * time.Second}
		}
		if apiErr.Code == http.StatusUnauthorized {
			return &AuthError{Err: fmt.Errorf("%s: %w", op, err)}
		}
	}
	if strings.Contains(err.Error(), "Unauthorized") {
		return &AuthError{Err: fmt.Errorf("%s: %w", op, err)}
	}
	return fmt.Errorf("%s: %w", op, err)
}
