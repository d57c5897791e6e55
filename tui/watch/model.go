// Package watch is the bubbletea viewer behind `live watch --tui`.
package watch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/projectify/live/pkg/cache"
	"github.com/projectify/live/pkg/live"
	"github.com/projectify/live/pkg/protocol"
	"github.com/projectify/live/tui/theme"
)

type keyMap struct {
	Quit key.Binding
	Top  key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "quit")),
	Top:  key.NewBinding(key.WithKeys("g", "home"), key.WithHelp("g", "top")),
}

// Model shows the live value of one resource.
type Model struct {
	resource protocol.Resource
	feed     *Feed
	theme    *theme.Theme

	conn       live.State
	cacheState cache.State
	value      cache.Value[json.RawMessage]
	updates    int
	seen       bool

	viewport viewport.Model
	ready    bool
}

// New creates the viewer for res reading from feed.
func New(res protocol.Resource, feed *Feed) Model {
	return Model{
		resource: res,
		feed:     feed,
		theme:    theme.DefaultTheme,
	}
}

// Updates returns how many values were received.
func (m Model) Updates() int {
	return m.updates
}

func (m Model) Init() tea.Cmd {
	return m.feed.wait()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		height := msg.Height - 3
		if height < 1 {
			height = 1
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.viewport.SetContent(m.body())
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Top):
			m.viewport.GotoTop()
			return m, nil
		}

	case batchMsg:
		for _, inner := range msg {
			m = m.apply(inner)
		}
		if m.ready {
			m.viewport.SetContent(m.body())
		}
		return m, m.feed.wait()
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) apply(msg tea.Msg) Model {
	switch msg := msg.(type) {
	case ValueMsg:
		m.value = msg.Value
		m.cacheState = msg.State
		m.updates++
		m.seen = m.seen || msg.Value.Present()
	case ConnMsg:
		m.conn = msg.State
	}
	return m
}

func (m Model) body() string {
	raw := m.value.Or(nil)
	if raw == nil {
		if m.seen {
			return m.theme.Muted.Render("resource is gone")
		}
		return m.theme.Muted.Render("waiting for a value...")
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return string(raw)
	}
	return out.String()
}

func (m Model) connStyle() lipgloss.Style {
	switch m.conn {
	case live.StateOpened, live.StateReopened:
		return m.theme.Success
	case live.StateErrored:
		return m.theme.Error
	case live.StateConnecting:
		return m.theme.Warning
	}
	return m.theme.Muted
}

func (m Model) header() string {
	return strings.Join([]string{
		m.theme.Header.Render(m.resource.String()),
		m.connStyle().Render(m.conn.String()),
		m.theme.Info.Render(m.cacheState.String()),
	}, "  ")
}

func (m Model) footer() string {
	return m.theme.Muted.Render(fmt.Sprintf("%d updates  %s  %s", m.updates, keys.Top.Help().Key+" "+keys.Top.Help().Desc, keys.Quit.Help().Key+" "+keys.Quit.Help().Desc))
}

func (m Model) View() string {
	if !m.ready {
		return m.header() + "\n" + m.body() + "\n"
	}
	return m.header() + "\n\n" + m.viewport.View() + "\n" + m.footer()
}
