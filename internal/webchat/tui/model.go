// Package tui is the terminal conversation view: one chat's visible path in
// a viewport, a textarea for composing, and branch navigation on the last
// edit point.
package tui

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/louisbranch/webchat/internal/webchat"
	"github.com/louisbranch/webchat/internal/webchat/branch"
	"github.com/louisbranch/webchat/internal/webchat/client"
)

// PathMsg carries a re-resolved visible path into the program.
type PathMsg struct {
	ChatID  string
	Entries []branch.Entry
}

// ChatsMsg carries a chat list change into the program.
type ChatsMsg struct {
	Chats []webchat.Chat
}

// StateMsg carries a connection state change into the program.
type StateMsg struct {
	State client.State
}

type sendResultMsg struct {
	chatID string
	err    error
}

type loadedMsg struct {
	err error
}

// Relay bridges client callbacks to a running program. Callbacks fire before
// the program exists, so the relay drops anything delivered before Attach.
type Relay struct {
	mu      sync.Mutex
	program *tea.Program
}

// Attach points the relay at a running program.
func (r *Relay) Attach(p *tea.Program) {
	r.mu.Lock()
	r.program = p
	r.mu.Unlock()
}

func (r *Relay) send(msg tea.Msg) {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// Path adapts client.Config.OnPath.
func (r *Relay) Path(chatID string, entries []branch.Entry) {
	r.send(PathMsg{ChatID: chatID, Entries: entries})
}

// Chats adapts client.Config.OnChats.
func (r *Relay) Chats(chats []webchat.Chat) {
	r.send(ChatsMsg{Chats: chats})
}

// State adapts client.Config.OnState.
func (r *Relay) State(state client.State) {
	r.send(StateMsg{State: state})
}

// Options configure the conversation view.
type Options struct {
	Client *client.Client
	Relay  *Relay
	// ChatID selects the conversation. Empty starts a fresh one; the store
	// assigns an id on the first send.
	ChatID string
	Title  string
}

// Run starts the conversation UI and blocks until it exits.
func Run(ctx context.Context, opts Options) error {
	model := NewModel(opts)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if opts.Relay != nil {
		opts.Relay.Attach(program)
	}
	_, err := program.Run()
	return err
}

// Model implements the conversation UI.
type Model struct {
	client *client.Client
	chatID string
	title  string

	viewport viewport.Model
	input    textarea.Model

	entries []branch.Entry
	chats   []webchat.Chat
	state   client.State
	status  string
	width   int
	height  int
	ready   bool
}

// NewModel builds the initial model. The first layout happens on the first
// window size message.
func NewModel(opts Options) *Model {
	input := textarea.New()
	input.Placeholder = "Write a message"
	input.Prompt = "> "
	input.SetHeight(inputHeight)
	input.ShowLineNumbers = false
	input.CharLimit = 0
	input.Focus()

	title := opts.Title
	if title == "" {
		title = "webchat"
	}
	return &Model{
		client: opts.Client,
		chatID: opts.ChatID,
		title:  title,
		input:  input,
		state:  opts.Client.State(),
	}
}

// Init subscribes to the chat and loads its recent history.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.loadHistory())
}

func (m *Model) loadHistory() tea.Cmd {
	chatID := m.chatID
	c := m.client
	return func() tea.Msg {
		if chatID == "" {
			return loadedMsg{}
		}
		c.SubscribeToChat(chatID)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, err := c.GetMessages(ctx, chatID, 0)
		return loadedMsg{err: err}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		m.refreshViewport()
		return m, nil

	case tea.KeyMsg:
		return m.updateKey(msg)

	case PathMsg:
		if msg.ChatID == m.chatID || m.chatID == "" {
			m.entries = msg.Entries
			m.refreshViewport()
			m.viewport.GotoBottom()
		}
		return m, nil

	case ChatsMsg:
		m.chats = msg.Chats
		return m, nil

	case StateMsg:
		m.state = msg.State
		return m, nil

	case loadedMsg:
		if msg.err != nil {
			m.status = "load failed: " + msg.err.Error()
		}
		return m, nil

	case sendResultMsg:
		if msg.err != nil {
			m.status = "send failed: " + msg.err.Error()
		} else {
			m.status = ""
			if m.chatID == "" {
				m.chatID = msg.chatID
			}
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit
	case "enter":
		return m, m.submit()
	case "ctrl+p":
		m.navigate(branch.Prev)
		return m, nil
	case "ctrl+n":
		m.navigate(branch.Next)
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) submit() tea.Cmd {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return nil
	}
	m.input.Reset()
	m.status = "sending..."
	c := m.client
	chatID := m.chatID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		msg, err := c.SendMessage(ctx, text, chatID, client.SendOptions{})
		if err != nil {
			return sendResultMsg{err: err}
		}
		if chatID == "" {
			// First send of a fresh conversation; adopt the assigned chat
			// and start receiving its feed.
			c.SubscribeToChat(msg.ChatID)
		}
		return sendResultMsg{chatID: msg.ChatID}
	}
}

// navigate moves the last branch point's selection. The resolved path comes
// back through the path handler.
func (m *Model) navigate(dir branch.Direction) {
	for i := len(m.entries) - 1; i >= 0; i-- {
		if nav := m.entries[i].Nav; nav != nil {
			m.client.Navigate(m.chatID, nav.GroupID, dir)
			return
		}
	}
}

func (m *Model) layout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	m.input.SetWidth(m.width)
	viewportHeight := m.height - inputHeight - chromeHeight
	if viewportHeight < 1 {
		viewportHeight = 1
	}
	if !m.ready {
		m.viewport = viewport.New(m.width, viewportHeight)
		m.ready = true
	} else {
		m.viewport.Width = m.width
		m.viewport.Height = viewportHeight
	}
}
