package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/louisbranch/webchat/internal/webchat"
	"github.com/louisbranch/webchat/internal/webchat/branch"
	"github.com/louisbranch/webchat/internal/webchat/client"
)

func newTestModel(t *testing.T) *Model {
	t.Helper()
	c := client.New(client.Config{
		StoreBaseURL:  "http://127.0.0.1:1",
		DisableDuplex: true,
	})
	model := NewModel(Options{Client: c, ChatID: "c1"})
	resized, _ := model.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return resized.(*Model)
}

func pathEntry(id, text string, out *bool, nav *branch.Nav) branch.Entry {
	return branch.Entry{
		Message: webchat.Message{
			ID:         id,
			ChatID:     "c1",
			Timestamp:  time.Unix(1_700_000_000, 0).UTC(),
			IsOutgoing: out,
			Text:       text,
		},
		Nav: nav,
	}
}

func TestViewRendersVisiblePath(t *testing.T) {
	model := newTestModel(t)
	truth := true
	falsth := false

	updated, _ := model.Update(PathMsg{ChatID: "c1", Entries: []branch.Entry{
		pathEntry("m1", "hello there", &truth, nil),
		pathEntry("m2", "hi back", &falsth, nil),
		pathEntry("m3", "joined the chat", nil, nil),
	}})
	view := updated.(*Model).View()

	for _, want := range []string{"hello there", "hi back", "joined the chat"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
}

func TestViewShowsBranchPosition(t *testing.T) {
	model := newTestModel(t)
	falsth := false

	updated, _ := model.Update(PathMsg{ChatID: "c1", Entries: []branch.Entry{
		pathEntry("m2", "second draft", &falsth, &branch.Nav{
			Current: 2, Total: 3, CanPrev: true, CanNext: true, GroupID: "m1",
		}),
	}})
	view := updated.(*Model).View()

	if !strings.Contains(view, "2/3") {
		t.Fatalf("view missing branch position:\n%s", view)
	}
}

func TestPathForOtherChatIgnored(t *testing.T) {
	model := newTestModel(t)
	truth := true

	updated, _ := model.Update(PathMsg{ChatID: "other", Entries: []branch.Entry{
		pathEntry("m1", "wrong room", &truth, nil),
	}})
	if view := updated.(*Model).View(); strings.Contains(view, "wrong room") {
		t.Fatal("path for another chat leaked into the view")
	}
}

func TestStateChangeReachesStatusLine(t *testing.T) {
	model := newTestModel(t)

	updated, _ := model.Update(StateMsg{State: client.StateConnectedPolling})
	if view := updated.(*Model).View(); !strings.Contains(view, "connected(polling)") {
		t.Fatalf("status line missing state:\n%s", view)
	}
}

func TestRelayDropsBeforeAttach(t *testing.T) {
	relay := &Relay{}
	// Must not panic without a program attached.
	relay.Path("c1", nil)
	relay.Chats(nil)
	relay.State(client.StateIdle)
}
