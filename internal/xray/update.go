package xray

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// headerLines is the space the view reserves above and below the list.
const headerLines = 12

// Update handles messages and updates the model (Bubbletea interface).
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.clamp()
		return m, nil

	case tea.KeyMsg:
		if m.searching {
			return m.handleSearchKey(msg)
		}
		return m.handleKeyMsg(msg)
	}
	return m, nil
}

func (m Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		m.quitting = true
		return m, tea.Quit
	case tea.KeyEnter:
		m.searching = false
		m.search.Blur()
		return m, nil
	case tea.KeyEsc:
		m.searching = false
		m.search.Blur()
		m.search.Reset()
		m.cursor, m.offset = 0, 0
		return m, nil
	}

	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	m.cursor, m.offset = 0, 0
	return m, cmd
}

// handleKeyMsg handles keyboard input.
func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		m.quitting = true
		return m, tea.Quit

	case "esc":
		if m.current == viewList {
			if m.search.Value() != "" {
				m.search.Reset()
				m.cursor, m.offset = 0, 0
				return m, nil
			}
			m.quitting = true
			return m, tea.Quit
		}
		return m.back(), nil

	case "backspace", "left", "h":
		return m.back(), nil

	case "up", "k":
		m.cursor--
		m.clamp()
	case "down", "j":
		m.cursor++
		m.clamp()
	case "pgup":
		m.cursor -= m.pageSize()
		m.clamp()
	case "pgdown":
		m.cursor += m.pageSize()
		m.clamp()
	case "home", "g":
		m.cursor = 0
		m.clamp()
	case "end", "G":
		m.cursor = len(m.items()) - 1
		m.clamp()

	case "enter", "right", "l":
		items := m.items()
		if m.cursor < len(items) {
			return m.open(items[m.cursor].id), nil
		}

	case "p":
		if m.current == viewModule {
			m.parents = !m.parents
			m.cursor, m.offset = 0, 0
		}

	case "c":
		if m.current == viewComponents {
			return m.back(), nil
		}
		m.current = viewComponents
		m.cursor, m.offset = 0, 0

	case "/":
		if m.current == viewList {
			m.searching = true
			m.search.Focus()
			return m, nil
		}
	}
	return m, nil
}

// open pushes a module onto the navigation history.
func (m Model) open(id string) Model {
	m.history = append(append([]string(nil), m.history...), id)
	m.current = viewModule
	m.parents = false
	m.cursor, m.offset = 0, 0
	return m
}

// back pops one level: components view to the previous screen, a module to
// its predecessor, the first module to the home list.
func (m Model) back() Model {
	switch {
	case m.current == viewComponents:
		if len(m.history) > 0 {
			m.current = viewModule
		} else {
			m.current = viewList
		}
	case len(m.history) > 1:
		m.history = m.history[:len(m.history)-1]
		m.current = viewModule
	case len(m.history) == 1:
		m.history = nil
		m.current = viewList
	}
	m.parents = false
	m.cursor, m.offset = 0, 0
	return m
}

func (m Model) pageSize() int {
	if n := m.height - headerLines; n > 1 {
		return n
	}
	return 1
}

// clamp keeps the cursor on an item and scrolls it into view.
func (m *Model) clamp() {
	n := len(m.items())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	page := m.pageSize()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+page {
		m.offset = m.cursor - page + 1
	}
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
