package main

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"foundry/pkg/notify"
)

func TestNotificationRows(t *testing.T) {
	ns := []notify.Notification{
		{ID: "n1", Type: notify.TypeEscalation, Title: "Forge failed code-generation", ProjectKey: "atlas", Priority: 1, IssueID: "X-1"},
		{ID: "n2", Type: notify.TypeStatusUpdate, Title: "Sage completed requirements-analysis", ProjectKey: "atlas", Priority: 2, IssueID: "X-2"},
	}

	rows := notificationRows(ns)
	if len(rows) != 2 {
		t.Fatalf("%d rows, want 2", len(rows))
	}
	if rows[0][0] != "p1" || rows[0][1] != "escalation" || rows[0][3] != "X-1" {
		t.Errorf("row[0] = %v", rows[0])
	}
	if rows[1][4] != "Sage completed requirements-analysis" {
		t.Errorf("row[1] = %v", rows[1])
	}
}

func TestNotificationColumnsMinimumTitleWidth(t *testing.T) {
	cols := notificationColumns(40)
	if cols[len(cols)-1].Width < 20 {
		t.Errorf("title column collapsed to %d", cols[len(cols)-1].Width)
	}
}

func TestModelQuitKeys(t *testing.T) {
	keys := []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune("q")},
		{Type: tea.KeyCtrlC},
	}
	for _, key := range keys {
		m := newModel()
		_, cmd := m.Update(key)
		if cmd == nil {
			t.Fatalf("key %q produced no command", key.String())
		}
		if msg := cmd(); msg != tea.Quit() {
			t.Errorf("key %q produced %v, want quit", key.String(), msg)
		}
	}
}

func TestStateMsgPopulatesTable(t *testing.T) {
	m := newModel()
	updated, _ := m.Update(stateMsg{
		notifications: []notify.Notification{
			{ID: "n1", Type: notify.TypeQA, Title: "needs rework", ProjectKey: "atlas", Priority: 1, IssueID: "X-1"},
		},
	})

	view := updated.(Model).View()
	if !strings.Contains(view, "needs rework") {
		t.Errorf("view missing notification: %q", view)
	}
	if !strings.Contains(view, "1 unread") {
		t.Errorf("view missing summary: %q", view)
	}
}

func TestFetchStateReadsSnapshots(t *testing.T) {
	home := t.TempDir()
	t.Setenv("FOUNDRY_HOME", home)

	queue := notify.New(filepath.Join(home, "notifications.json"))
	if _, err := queue.Add(notify.TypeInfo, "hello", "", "atlas", 3, ""); err != nil {
		t.Fatal(err)
	}

	msg := fetchStateCmd()()
	state, ok := msg.(stateMsg)
	if !ok {
		t.Fatalf("msg = %T", msg)
	}
	if len(state.notifications) != 1 || state.notifications[0].Title != "hello" {
		t.Errorf("notifications = %+v", state.notifications)
	}
}

func TestTickTriggersRefresh(t *testing.T) {
	m := newModel()
	_, cmd := m.Update(tickMsg(time.Now()))
	if cmd == nil {
		t.Fatal("tick produced no refresh command")
	}
}
