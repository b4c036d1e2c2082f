package voicebot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"voicescribe/stt"
	"voicescribe/telegram"
)

// Command is the closed set of control commands. Parsing to an enum and
// dispatching through a switch keeps the router exhaustive instead of
// stringly-typed.
type Command int

const (
	CmdUnknown Command = iota
	CmdEnableAll
	CmdDisableAll
	CmdMyOn
	CmdMyOff
	CmdFriendOn
	CmdFriendOff
	CmdAddTracked
	CmdDelTracked
	CmdListTracked
	CmdModel
	CmdStatus
	CmdHelp
	CmdStart
)

func ParseCommand(name string) Command {
	switch strings.ToLower(name) {
	case "voicebot_on":
		return CmdEnableAll
	case "voicebot_off":
		return CmdDisableAll
	case "my_on":
		return CmdMyOn
	case "my_off":
		return CmdMyOff
	case "friend_on":
		return CmdFriendOn
	case "friend_off":
		return CmdFriendOff
	case "addtovoicebot":
		return CmdAddTracked
	case "delfromvoicebot":
		return CmdDelTracked
	case "listvoicebot":
		return CmdListTracked
	case "model":
		return CmdModel
	case "status":
		return CmdStatus
	case "help":
		return CmdHelp
	case "start":
		return CmdStart
	default:
		return CmdUnknown
	}
}

const helpText = "📋 **Commands** (send them in Saved Messages):\n\n" +
	"**Switches:**\n" +
	"/voicebot_on — enable everything\n" +
	"/voicebot_off — disable everything\n" +
	"/my_on, /my_off — own voice messages\n" +
	"/friend_on, /friend_off — tracked senders\n\n" +
	"**Tracked senders:**\n" +
	"/addtovoicebot — add (as a reply, or with an ID)\n" +
	"/delfromvoicebot — remove\n" +
	"/listvoicebot — show the list\n\n" +
	"**Model:**\n" +
	"/model — show the active model\n" +
	"/model <name> — switch\n\n" +
	"**Info:**\n" +
	"/status — current state\n" +
	"💡 Voice messages are picked up in any chat"

const startText = "👋 **Voice transcriber**\n\n" +
	"Transcribes voice messages automatically, with punctuation and " +
	"paragraphs restored.\n\n" +
	"Commands only work in **Saved Messages**. Send /help for the list."

func (b *Bot) handleCommand(ctx context.Context, tg telegram.Client, ev telegram.CommandEvent) {
	cmd := ParseCommand(ev.Command)
	if cmd == CmdUnknown {
		return
	}
	b.logger.Info("command", "cmd", ev.Command, "chat", ev.ChatID)

	// Registry mutations are accepted anywhere so the controller can reply
	// to a message in the conversation it happened in. Everything else only
	// counts in the self chat.
	switch cmd {
	case CmdAddTracked, CmdDelTracked, CmdListTracked:
		b.handleRegistry(ctx, tg, cmd, ev)
		return
	}
	if !ev.Private {
		return
	}

	switch cmd {
	case CmdEnableAll:
		err := firstErr(
			b.store.SetEnabled(ctx, true),
			b.store.SetMy(ctx, true),
			b.store.SetFriend(ctx, true),
		)
		b.replyToggle(tg, ev, err, "✅ Everything enabled")
	case CmdDisableAll:
		b.replyToggle(tg, ev, b.store.SetEnabled(ctx, false), "❌ Everything disabled")
	case CmdMyOn:
		b.replyToggle(tg, ev, b.store.SetMy(ctx, true), "✅ Own voice → ON")
	case CmdMyOff:
		b.replyToggle(tg, ev, b.store.SetMy(ctx, false), "❌ Own voice → OFF")
	case CmdFriendOn:
		b.replyToggle(tg, ev, b.store.SetFriend(ctx, true), "✅ Tracked voice → ON")
	case CmdFriendOff:
		b.replyToggle(tg, ev, b.store.SetFriend(ctx, false), "❌ Tracked voice → OFF")
	case CmdModel:
		b.handleModel(ctx, tg, ev)
	case CmdStatus:
		b.replyStatus(ctx, tg, ev)
	case CmdHelp:
		b.replyTo(tg, ev, helpText)
	case CmdStart:
		b.replyTo(tg, ev, startText)
	}
}

func (b *Bot) replyTo(tg telegram.Client, ev telegram.CommandEvent, text string) {
	if _, err := tg.Reply(ev.ChatID, ev.MessageID, text, false); err != nil {
		b.logger.Error("command reply", "error", err)
	}
}

func (b *Bot) replyToggle(tg telegram.Client, ev telegram.CommandEvent, err error, okText string) {
	if err != nil {
		b.replyTo(tg, ev, "❌ Store error: "+err.Error())
		return
	}
	b.replyTo(tg, ev, okText)
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) handleRegistry(ctx context.Context, tg telegram.Client, cmd Command, ev telegram.CommandEvent) {
	if cmd == CmdListTracked {
		b.replyTrackedList(ctx, tg, ev)
		return
	}

	id, name, errText := targetUser(ev)
	if errText != "" {
		b.replyTo(tg, ev, errText)
		return
	}

	switch cmd {
	case CmdAddTracked:
		added, err := b.store.AddTracked(ctx, id)
		switch {
		case err != nil:
			b.replyTo(tg, ev, "❌ Store error: "+err.Error())
		case added:
			b.replyTo(tg, ev, fmt.Sprintf("✅ **%s** added\nID: `%d`", name, id))
		default:
			b.replyTo(tg, ev, fmt.Sprintf("ℹ️ **%s** is already tracked\nID: `%d`", name, id))
		}
	case CmdDelTracked:
		removed, err := b.store.RemoveTracked(ctx, id)
		switch {
		case err != nil:
			b.replyTo(tg, ev, "❌ Store error: "+err.Error())
		case removed:
			b.replyTo(tg, ev, fmt.Sprintf("✅ **%s** removed\nID: `%d`", name, id))
		default:
			b.replyTo(tg, ev, fmt.Sprintf("ℹ️ **%s** is not tracked\nID: `%d`", name, id))
		}
	}
}

// targetUser resolves the subject of a registry command: the sender of the
// replied-to message, or a numeric argument. A non-empty third return is the
// user-visible complaint for malformed input.
func targetUser(ev telegram.CommandEvent) (int64, string, string) {
	if ev.ReplyToID != 0 {
		name := ev.ReplyToName
		if name == "" {
			name = "User"
		}
		return ev.ReplyToID, name, ""
	}
	if ev.Args == "" {
		return 0, "", "ℹ️ **Usage:**\n" +
			"• Reply to a message with the command\n" +
			"• Or pass an ID: `/addtovoicebot 123456789`"
	}
	id, err := strconv.ParseInt(strings.Fields(ev.Args)[0], 10, 64)
	if err != nil {
		return 0, "", "❌ Invalid ID format"
	}
	return id, fmt.Sprintf("ID %d", id), ""
}

func (b *Bot) replyTrackedList(ctx context.Context, tg telegram.Client, ev telegram.CommandEvent) {
	ids := b.store.TrackedUsers(ctx)
	if len(ids) == 0 {
		b.replyTo(tg, ev, "📋 The list is empty. Use /addtovoicebot")
		return
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 **Tracked senders** (%d):\n", len(ids))
	for _, id := range ids {
		name, err := tg.UserName(id)
		if err != nil {
			fmt.Fprintf(&sb, "\n• ID: `%d` (unavailable)", id)
			continue
		}
		fmt.Fprintf(&sb, "\n• **%s**\n  ID: `%d`", name, id)
	}
	b.replyTo(tg, ev, sb.String())
}

func (b *Bot) handleModel(ctx context.Context, tg telegram.Client, ev telegram.CommandEvent) {
	if ev.Args == "" {
		current := b.stt.Model()
		var sb strings.Builder
		fmt.Fprintf(&sb, "🤖 **Active model:** %s\n\n**Available:**\n", current)
		for _, m := range stt.Models {
			mark := "⚪️"
			if m == current {
				mark = "✅"
			}
			fmt.Fprintf(&sb, "%s %s\n", mark, m)
		}
		sb.WriteString("\nSwitch with `/model <name>`")
		b.replyTo(tg, ev, sb.String())
		return
	}

	name := strings.ToLower(strings.Fields(ev.Args)[0])
	if !stt.KnownModel(name) {
		b.replyTo(tg, ev, fmt.Sprintf("❌ Unknown model `%s`", name))
		return
	}
	if name == b.stt.Model() {
		b.replyTo(tg, ev, fmt.Sprintf("ℹ️ Model `%s` is already active", name))
		return
	}

	statusID, err := tg.Reply(ev.ChatID, ev.MessageID, fmt.Sprintf("⏳ Loading `%s`…", name), false)
	if err != nil {
		b.logger.Error("model status reply", "error", err)
		return
	}

	// Loading can take a while; keep it off the event loop. The store's
	// model key is only written once the swap succeeded.
	b.tasks.Add(1)
	go func() {
		defer b.tasks.Done()
		if err := b.stt.Reload(name); err != nil {
			b.editStatus(tg, ev.ChatID, statusID, "❌ Load failed: "+truncate(err.Error(), errTextLimit))
			return
		}
		if err := b.store.SetModel(ctx, name); err != nil {
			b.logger.Error("persist model", "error", err)
		}
		b.metrics.ModelReloads.Inc()
		b.editStatus(tg, ev.ChatID, statusID, fmt.Sprintf("✅ Model switched → **%s**", name))
	}()
}

func (b *Bot) editStatus(tg telegram.Client, chatID int64, messageID int, text string) {
	if err := tg.EditMessage(chatID, messageID, text); err != nil {
		b.logger.Error("edit status", "error", err)
	}
}

func (b *Bot) replyStatus(ctx context.Context, tg telegram.Client, ev telegram.CommandEvent) {
	onOff := func(on bool) string {
		if on {
			return "✅"
		}
		return "❌"
	}
	b.replyTo(tg, ev, fmt.Sprintf(
		"📊 **Status:**\n\n"+
			"Global: %s\n"+
			"Own voice: %s\n"+
			"Tracked voice: %s\n"+
			"Model: `%s`\n"+
			"Workers: %d\n"+
			"Tracked senders: %d",
		onOff(b.store.Enabled(ctx)),
		onOff(b.store.My(ctx)),
		onOff(b.store.Friend(ctx)),
		b.stt.Model(),
		b.stt.Workers(),
		len(b.store.TrackedUsers(ctx)),
	))
}
