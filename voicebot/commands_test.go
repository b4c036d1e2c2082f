package voicebot

import (
	"context"
	"errors"
	"strings"
	"testing"

	"voicescribe/telegram"
)

func selfCommand(cmd, args string) telegram.CommandEvent {
	return telegram.CommandEvent{
		MessageID: 7,
		ChatID:    testOwner,
		Private:   true,
		Command:   cmd,
		Args:      args,
	}
}

func TestParseCommand(t *testing.T) {
	cases := []struct {
		name string
		want Command
	}{
		{"voicebot_on", CmdEnableAll},
		{"voicebot_off", CmdDisableAll},
		{"my_on", CmdMyOn},
		{"my_off", CmdMyOff},
		{"friend_on", CmdFriendOn},
		{"friend_off", CmdFriendOff},
		{"addtovoicebot", CmdAddTracked},
		{"delfromvoicebot", CmdDelTracked},
		{"listvoicebot", CmdListTracked},
		{"model", CmdModel},
		{"status", CmdStatus},
		{"help", CmdHelp},
		{"start", CmdStart},
		{"MODEL", CmdModel},
		{"frobnicate", CmdUnknown},
		{"", CmdUnknown},
	}
	for _, c := range cases {
		if got := ParseCommand(c.name); got != c.want {
			t.Errorf("ParseCommand(%q) = %d, want %d", c.name, got, c.want)
		}
	}
}

func TestEnableAllFlipsEveryFlag(t *testing.T) {
	st := &mockStore{}
	tg := &mockClient{}
	b, _ := newTestBot(t, st, tg, &fakeTranscriber{})

	b.handleCommand(context.Background(), tg, selfCommand("voicebot_on", ""))

	if !st.enabled || !st.my || !st.friend {
		t.Errorf("flags after enable: enabled=%v my=%v friend=%v", st.enabled, st.my, st.friend)
	}
	replies := tg.ops("reply")
	if len(replies) != 1 || !strings.Contains(replies[0].text, "enabled") {
		t.Errorf("confirmation reply = %+v", replies)
	}
}

func TestDisableAllLeavesSubFlags(t *testing.T) {
	st := &mockStore{enabled: true, my: true, friend: true}
	tg := &mockClient{}
	b, _ := newTestBot(t, st, tg, &fakeTranscriber{})

	b.handleCommand(context.Background(), tg, selfCommand("voicebot_off", ""))

	if st.enabled {
		t.Error("global flag still on")
	}
	if !st.my || !st.friend {
		t.Error("disable must only clear the global flag")
	}
}

func TestTogglesIgnoredOutsideSelfChat(t *testing.T) {
	st := &mockStore{enabled: true}
	tg := &mockClient{}
	b, _ := newTestBot(t, st, tg, &fakeTranscriber{})

	ev := selfCommand("voicebot_off", "")
	ev.Private = false
	ev.ChatID = -500
	b.handleCommand(context.Background(), tg, ev)

	if !st.enabled {
		t.Error("toggle applied outside the self chat")
	}
	if len(tg.calls) != 0 {
		t.Errorf("unexpected platform calls: %+v", tg.calls)
	}
}

func TestUnknownCommandIgnored(t *testing.T) {
	st := &mockStore{}
	tg := &mockClient{}
	b, _ := newTestBot(t, st, tg, &fakeTranscriber{})

	b.handleCommand(context.Background(), tg, selfCommand("frobnicate", ""))

	if len(tg.calls) != 0 {
		t.Errorf("unknown command produced output: %+v", tg.calls)
	}
}

func TestAddTrackedByReply(t *testing.T) {
	st := &mockStore{}
	tg := &mockClient{}
	b, _ := newTestBot(t, st, tg, &fakeTranscriber{})

	ev := telegram.CommandEvent{
		MessageID:   9,
		ChatID:      -500,
		Private:     false,
		Command:     "addtovoicebot",
		ReplyToID:   555,
		ReplyToName: "Alice",
	}
	b.handleCommand(context.Background(), tg, ev)

	if len(st.tracked) != 1 || st.tracked[0] != 555 {
		t.Fatalf("tracked = %v", st.tracked)
	}
	replies := tg.ops("reply")
	if len(replies) != 1 || !strings.Contains(replies[0].text, "Alice") {
		t.Errorf("confirmation = %+v", replies)
	}

	// Adding again is reported as already tracked.
	b.handleCommand(context.Background(), tg, ev)
	if len(st.tracked) != 1 {
		t.Errorf("duplicate add mutated the registry: %v", st.tracked)
	}
	replies = tg.ops("reply")
	if !strings.Contains(replies[1].text, "already") {
		t.Errorf("duplicate add reply = %q", replies[1].text)
	}
}

func TestAddTrackedByArgument(t *testing.T) {
	st := &mockStore{}
	tg := &mockClient{}
	b, _ := newTestBot(t, st, tg, &fakeTranscriber{})

	b.handleCommand(context.Background(), tg, selfCommand("addtovoicebot", "123456789"))

	if len(st.tracked) != 1 || st.tracked[0] != 123456789 {
		t.Errorf("tracked = %v", st.tracked)
	}
}

func TestAddTrackedRejectsBadInput(t *testing.T) {
	st := &mockStore{}
	tg := &mockClient{}
	b, _ := newTestBot(t, st, tg, &fakeTranscriber{})

	b.handleCommand(context.Background(), tg, selfCommand("addtovoicebot", ""))
	b.handleCommand(context.Background(), tg, selfCommand("addtovoicebot", "not-a-number"))

	if len(st.tracked) != 0 {
		t.Errorf("registry mutated by bad input: %v", st.tracked)
	}
	replies := tg.ops("reply")
	if len(replies) != 2 {
		t.Fatalf("expected two complaints, got %d", len(replies))
	}
	if !strings.Contains(replies[0].text, "Usage") {
		t.Errorf("missing-target reply = %q", replies[0].text)
	}
	if !strings.Contains(replies[1].text, "Invalid ID") {
		t.Errorf("bad-format reply = %q", replies[1].text)
	}
}

func TestDelTracked(t *testing.T) {
	st := &mockStore{tracked: []int64{555, 777}}
	tg := &mockClient{}
	b, _ := newTestBot(t, st, tg, &fakeTranscriber{})

	b.handleCommand(context.Background(), tg, selfCommand("delfromvoicebot", "555"))
	if len(st.tracked) != 1 || st.tracked[0] != 777 {
		t.Errorf("tracked after remove = %v", st.tracked)
	}

	b.handleCommand(context.Background(), tg, selfCommand("delfromvoicebot", "555"))
	replies := tg.ops("reply")
	if !strings.Contains(replies[1].text, "not tracked") {
		t.Errorf("missing-user reply = %q", replies[1].text)
	}
}

func TestListTrackedDegradesOnLookupFailure(t *testing.T) {
	st := &mockStore{tracked: []int64{555, 777}}
	tg := &mockClient{userNames: map[int64]string{555: "Alice (@alice)"}}
	b, _ := newTestBot(t, st, tg, &fakeTranscriber{})

	b.handleCommand(context.Background(), tg, selfCommand("listvoicebot", ""))

	replies := tg.ops("reply")
	if len(replies) != 1 {
		t.Fatalf("expected one listing reply, got %d", len(replies))
	}
	text := replies[0].text
	if !strings.Contains(text, "Alice (@alice)") {
		t.Errorf("resolved name missing: %q", text)
	}
	if !strings.Contains(text, "`777` (unavailable)") {
		t.Errorf("unresolvable id not listed bare: %q", text)
	}
}

func TestListTrackedEmpty(t *testing.T) {
	st := &mockStore{}
	tg := &mockClient{}
	b, _ := newTestBot(t, st, tg, &fakeTranscriber{})

	b.handleCommand(context.Background(), tg, selfCommand("listvoicebot", ""))

	replies := tg.ops("reply")
	if len(replies) != 1 || !strings.Contains(replies[0].text, "empty") {
		t.Errorf("empty-list reply = %+v", replies)
	}
}

func TestModelListShowsActive(t *testing.T) {
	st := &mockStore{model: "base"}
	tg := &mockClient{}
	tr := &fakeTranscriber{model: "base"}
	b, _ := newTestBot(t, st, tg, tr)

	b.handleCommand(context.Background(), tg, selfCommand("model", ""))

	replies := tg.ops("reply")
	if len(replies) != 1 {
		t.Fatalf("expected one listing, got %d", len(replies))
	}
	if !strings.Contains(replies[0].text, "✅ base") {
		t.Errorf("active model not marked: %q", replies[0].text)
	}
	if !strings.Contains(replies[0].text, "large-v3") {
		t.Errorf("model catalog incomplete: %q", replies[0].text)
	}
}

func TestModelSwitchPersistsAfterReload(t *testing.T) {
	st := &mockStore{model: "base"}
	tg := &mockClient{}
	tr := &fakeTranscriber{model: "base"}
	b, _ := newTestBot(t, st, tg, tr)

	b.handleCommand(context.Background(), tg, selfCommand("model", "large-v3"))
	b.tasks.Wait()

	if got := tr.reloads; len(got) != 1 || got[0] != "large-v3" {
		t.Fatalf("reloads = %v", got)
	}
	if len(st.modelSets) != 1 || st.modelSets[0] != "large-v3" {
		t.Errorf("store writes = %v, want exactly one after the reload", st.modelSets)
	}
	edits := tg.ops("edit")
	if len(edits) != 1 || !strings.Contains(edits[0].text, "large-v3") {
		t.Errorf("completion edit = %+v", edits)
	}
}

func TestModelSwitchFailureKeepsStoredModel(t *testing.T) {
	st := &mockStore{model: "base"}
	tg := &mockClient{}
	tr := &fakeTranscriber{model: "base", reloadErr: errors.New("weights not found")}
	b, _ := newTestBot(t, st, tg, tr)

	b.handleCommand(context.Background(), tg, selfCommand("model", "large-v3"))
	b.tasks.Wait()

	if len(st.modelSets) != 0 {
		t.Errorf("failed reload wrote the store: %v", st.modelSets)
	}
	edits := tg.ops("edit")
	if len(edits) != 1 || !strings.Contains(edits[0].text, "Load failed") {
		t.Errorf("failure edit = %+v", edits)
	}
}

func TestModelSwitchRejectsUnknown(t *testing.T) {
	st := &mockStore{model: "base"}
	tg := &mockClient{}
	tr := &fakeTranscriber{model: "base"}
	b, _ := newTestBot(t, st, tg, tr)

	b.handleCommand(context.Background(), tg, selfCommand("model", "gpt-5"))
	b.tasks.Wait()

	if len(tr.reloads) != 0 {
		t.Errorf("unknown model reached the engine: %v", tr.reloads)
	}
	replies := tg.ops("reply")
	if len(replies) != 1 || !strings.Contains(replies[0].text, "Unknown model") {
		t.Errorf("rejection reply = %+v", replies)
	}
}

func TestModelSwitchNoopWhenAlreadyActive(t *testing.T) {
	st := &mockStore{model: "base"}
	tg := &mockClient{}
	tr := &fakeTranscriber{model: "base"}
	b, _ := newTestBot(t, st, tg, tr)

	b.handleCommand(context.Background(), tg, selfCommand("model", "base"))
	b.tasks.Wait()

	if len(tr.reloads) != 0 {
		t.Errorf("noop switch reloaded the engine: %v", tr.reloads)
	}
	replies := tg.ops("reply")
	if len(replies) != 1 || !strings.Contains(replies[0].text, "already active") {
		t.Errorf("noop reply = %+v", replies)
	}
}

func TestStatusReportsState(t *testing.T) {
	st := &mockStore{enabled: true, my: true, friend: false, tracked: []int64{1, 2, 3}}
	tg := &mockClient{}
	tr := &fakeTranscriber{model: "small"}
	b, _ := newTestBot(t, st, tg, tr)

	b.handleCommand(context.Background(), tg, selfCommand("status", ""))

	replies := tg.ops("reply")
	if len(replies) != 1 {
		t.Fatalf("expected one status reply, got %d", len(replies))
	}
	text := replies[0].text
	for _, want := range []string{"`small`", "Workers: 2", "Tracked senders: 3"} {
		if !strings.Contains(text, want) {
			t.Errorf("status missing %q: %q", want, text)
		}
	}
}
