// Package telegram wraps the platform client behind a small interface so the
// bot orchestration never touches the transport SDK directly.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Platform-imposed size limits, in characters. Delivery must honor these
// exactly; oversized payloads are rejected outright.
const (
	CaptionLimit = 1024
	MessageLimit = 4096
)

type ChatKind string

const (
	ChatDirect ChatKind = "direct"
	ChatGroup  ChatKind = "group"
)

// VoiceEvent is one inbound voice message. Immutable, consumed once.
type VoiceEvent struct {
	MessageID  int
	ChatID     int64
	SenderID   int64
	SenderName string
	Kind       ChatKind
	FromSelf   bool
	FileID     string
}

// CommandEvent is a control command typed by the controlling account.
type CommandEvent struct {
	MessageID   int
	ChatID      int64
	Private     bool
	Command     string
	Args        string
	ReplyToID   int64
	ReplyToName string
}

// Update carries exactly one of the event kinds the bot consumes.
type Update struct {
	Voice   *VoiceEvent
	Command *CommandEvent
}

// Client is the platform surface the bot needs: event intake, message
// delivery with edits, media download, and best-effort user lookup.
type Client interface {
	// Updates emits translated events until the connection drops or ctx is
	// cancelled; the channel is closed in both cases.
	Updates(ctx context.Context) <-chan Update
	SendMessage(chatID int64, text string) (int, error)
	Reply(chatID int64, messageID int, text string, quote bool) (int, error)
	EditMessage(chatID int64, messageID int, text string) error
	EditCaption(chatID int64, messageID int, text string) error
	Download(fileID, destPath string) (string, error)
	UserName(id int64) (string, error)
	Owner() int64
	Close()
}

// FloodWaitError reports platform flood control: the caller must pause for
// RetryAfter before sending again. It is not a failure.
type FloodWaitError struct {
	RetryAfter time.Duration
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("flood wait %s", e.RetryAfter)
}

// AsFloodWait extracts the mandated cooldown if err is flood control.
func AsFloodWait(err error) (time.Duration, bool) {
	var fw *FloodWaitError
	if errors.As(err, &fw) {
		return fw.RetryAfter, true
	}
	return 0, false
}

// AuthError marks credential problems the supervisor must not retry.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("authorization: %v", e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// IsFatal reports whether err is unrecoverable for the connection
// supervisor.
func IsFatal(err error) bool {
	var auth *AuthError
	return errors.As(err, &auth)
}
