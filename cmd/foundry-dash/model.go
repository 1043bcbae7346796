package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"foundry/pkg/notify"
	"foundry/pkg/registry"
)

// tickMsg triggers a periodic data refresh from the state snapshots.
type tickMsg time.Time

// stateMsg carries freshly loaded notifications and projects.
type stateMsg struct {
	notifications []notify.Notification
	projects      []registry.ProjectState
}

// tickCmd returns a command that sends a tickMsg after 2 seconds.
func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// statePaths returns the queue and registry snapshot paths from env or
// ~/.foundry defaults.
func statePaths() (queuePath, registryPath string) {
	home := os.Getenv("FOUNDRY_HOME")
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return "", ""
		}
		home = filepath.Join(userHome, ".foundry")
	}
	queuePath = filepath.Join(home, "notifications.json")
	if v := os.Getenv("FOUNDRY_QUEUE_PATH"); v != "" {
		queuePath = v
	}
	registryPath = filepath.Join(home, "registry.json")
	if v := os.Getenv("FOUNDRY_REGISTRY_PATH"); v != "" {
		registryPath = v
	}
	return queuePath, registryPath
}

// fetchStateCmd loads the snapshots off the Bubble Tea event loop.
func fetchStateCmd() tea.Cmd {
	return func() tea.Msg {
		queuePath, registryPath := statePaths()
		queue, _ := notify.Open(queuePath)
		reg, _ := registry.Open(registryPath)
		return stateMsg{
			notifications: queue.GetUnread("", 0),
			projects:      reg.List(),
		}
	}
}

// Model is the Bubble Tea model for the foundry dashboard.
type Model struct {
	table         table.Model
	notifications []notify.Notification
	projects      []registry.ProjectState
	status        string
	width         int
	height        int
}

// newModel creates a Model with an empty notification table.
func newModel() Model {
	t := table.New(
		table.WithColumns(notificationColumns(80)),
		table.WithFocused(true),
	)
	t.SetStyles(tableStyles())
	return Model{table: t}
}

// notificationColumns sizes the table columns for the given total width.
func notificationColumns(width int) []table.Column {
	title := width - 46
	if title < 20 {
		title = 20
	}
	return []table.Column{
		{Title: "Pri", Width: 3},
		{Title: "Type", Width: 13},
		{Title: "Project", Width: 12},
		{Title: "Issue", Width: 10},
		{Title: "Title", Width: title},
	}
}

// notificationRows converts unread notifications, already in delivery order,
// into table rows.
func notificationRows(ns []notify.Notification) []table.Row {
	rows := make([]table.Row, 0, len(ns))
	for _, n := range ns {
		rows = append(rows, table.Row{
			fmt.Sprintf("p%d", n.Priority),
			string(n.Type),
			n.ProjectKey,
			n.IssueID,
			n.Title,
		})
	}
	return rows
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(fetchStateCmd(), tickCmd())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetColumns(notificationColumns(msg.Width))
		m.table.SetHeight(msg.Height - 6)
		return m, nil

	case tickMsg:
		return m, tea.Batch(fetchStateCmd(), tickCmd())

	case stateMsg:
		m.notifications = msg.notifications
		m.projects = msg.projects
		m.table.SetRows(notificationRows(msg.notifications))
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m.markSelectedRead()
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// markSelectedRead marks the highlighted notification read and refreshes.
func (m Model) markSelectedRead() (tea.Model, tea.Cmd) {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.notifications) {
		return m, nil
	}
	id := m.notifications[idx].ID

	queuePath, _ := statePaths()
	queue, _ := notify.Open(queuePath)
	if err := queue.MarkRead(id); err != nil {
		m.status = fmt.Sprintf("mark read: %v", err)
		return m, nil
	}
	m.status = "marked read"
	return m, fetchStateCmd()
}

// View implements tea.Model.
func (m Model) View() string {
	header := titleStyle.Render("foundry") + "  " + subtitleStyle.Render(m.summaryLine())
	help := helpStyle.Render("↑/↓ move · r mark read · q quit")
	body := m.table.View()
	if len(m.notifications) == 0 {
		body = emptyStyle.Render("no unread notifications")
	}
	status := ""
	if m.status != "" {
		status = "\n" + statusStyle.Render(m.status)
	}
	return fmt.Sprintf("%s\n\n%s\n%s%s\n", header, body, help, status)
}

// summaryLine renders the project counts shown next to the title.
func (m Model) summaryLine() string {
	active := 0
	for _, p := range m.projects {
		if p.Status == registry.StatusActive {
			active++
		}
	}
	return fmt.Sprintf("%d unread · %d/%d projects active", len(m.notifications), active, len(m.projects))
}
