package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/wasm-ipint/compile"
	"github.com/wippyai/wasm-ipint/ipint"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("#666666"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const listWidth = 28

type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Filter   key.Binding
	Clear    key.Binding
	Quit     key.Binding
}

var keys = keyMap{
	Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "prev")),
	Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "next")),
	PageUp:   key.NewBinding(key.WithKeys("pgup", "b"), key.WithHelp("pgup", "scroll up")),
	PageDown: key.NewBinding(key.WithKeys("pgdown", " "), key.WithHelp("pgdn", "scroll down")),
	Filter:   key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "filter")),
	Clear:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "clear")),
	Quit:     key.NewBinding(key.WithKeys("ctrl+c", "q"), key.WithHelp("q", "quit")),
}

type interactiveModel struct {
	err      error
	res      *compile.Result
	opts     compile.Options
	filename string
	visible  []int // indexes into res.Functions
	filter   textinput.Model
	view     viewport.Model
	selected int
	ready    bool
}

type loadedMsg struct {
	err error
	res *compile.Result
}

func newInteractiveModel(filename string, opts compile.Options) *interactiveModel {
	ti := textinput.New()
	ti.Prompt = "/"
	ti.Placeholder = "func index"
	ti.Width = listWidth - 4
	return &interactiveModel{
		filename: filename,
		opts:     opts,
		filter:   ti,
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadModule
}

func (m *interactiveModel) loadModule() tea.Msg {
	res, err := load(context.Background(), m.filename, m.opts)
	return loadedMsg{res: res, err: err}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		w, h := max(msg.Width-listWidth-4, 10), max(msg.Height-6, 3)
		if !m.ready {
			m.view = viewport.New(w, h)
			m.ready = true
		} else {
			m.view.Width, m.view.Height = w, h
		}
		m.refresh()

	case loadedMsg:
		m.err = msg.err
		m.res = msg.res
		m.applyFilter()

	case tea.KeyMsg:
		if m.filter.Focused() {
			switch msg.String() {
			case "enter":
				m.filter.Blur()
				return m, nil
			case "esc":
				m.filter.Blur()
				m.filter.SetValue("")
				m.applyFilter()
				return m, nil
			}
			var cmd tea.Cmd
			m.filter, cmd = m.filter.Update(msg)
			m.applyFilter()
			return m, cmd
		}

		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			if m.selected > 0 {
				m.selected--
				m.refresh()
			}
		case key.Matches(msg, keys.Down):
			if m.selected < len(m.visible)-1 {
				m.selected++
				m.refresh()
			}
		case key.Matches(msg, keys.Filter):
			return m, m.filter.Focus()
		case key.Matches(msg, keys.Clear):
			m.filter.SetValue("")
			m.applyFilter()
		case key.Matches(msg, keys.PageUp):
			m.view.HalfPageUp()
		case key.Matches(msg, keys.PageDown):
			m.view.HalfPageDown()
		}
	}
	return m, nil
}

func (m *interactiveModel) applyFilter() {
	m.visible = m.visible[:0]
	if m.res == nil {
		return
	}
	want := strings.TrimSpace(m.filter.Value())
	imported := m.res.Module.NumImportedFuncs()
	for i := range m.res.Functions {
		if want == "" || strings.Contains(fmt.Sprint(imported+i), want) {
			m.visible = append(m.visible, i)
		}
	}
	m.selected = min(m.selected, max(len(m.visible)-1, 0))
	m.refresh()
}

// refresh loads the selected function's dump into the viewport.
func (m *interactiveModel) refresh() {
	if !m.ready {
		return
	}
	md := m.current()
	if md == nil {
		m.view.SetContent(errorStyle.Render("not compiled"))
		return
	}
	var b strings.Builder
	b.WriteString(summarize(md))
	b.WriteString("\n\n")
	if err := md.Dump(&b); err != nil {
		b.WriteString(errorStyle.Render(err.Error()))
	}
	m.view.SetContent(b.String())
	m.view.GotoTop()
}

func (m *interactiveModel) current() *ipint.FunctionMetadata {
	if m.res == nil || len(m.visible) == 0 {
		return nil
	}
	return m.res.Functions[m.visible[m.selected]]
}

func (m *interactiveModel) View() string {
	if m.res == nil {
		if m.err != nil {
			return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
		}
		return "Compiling module..."
	}
	if !m.ready {
		return "Initializing..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("IPInt Metadata"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	if m.err != nil {
		b.WriteString("  ")
		b.WriteString(errorStyle.Render(m.err.Error()))
	}
	b.WriteString("\n")

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		paneStyle.Width(listWidth).Height(m.view.Height).Render(m.listView()),
		paneStyle.Render(m.view.View()),
	))
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑/↓ select • pgup/pgdn scroll • / filter • esc clear • q quit"))
	return b.String()
}

func (m *interactiveModel) listView() string {
	var b strings.Builder
	if m.filter.Focused() || m.filter.Value() != "" {
		b.WriteString(m.filter.View())
		b.WriteString("\n")
	}

	imported := m.res.Module.NumImportedFuncs()
	rows := max(m.view.Height-2, 1)
	start := max(m.selected-rows+1, 0)
	for i := start; i < len(m.visible) && i < start+rows; i++ {
		fn := m.visible[i]
		label := fmt.Sprintf("func[%d]", imported+fn)
		if md := m.res.Functions[fn]; md != nil {
			label += fmt.Sprintf(" %dB", len(md.Metadata))
		} else {
			label += " failed"
		}
		if i == m.selected {
			b.WriteString(selectedStyle.Render("> " + label))
		} else {
			b.WriteString("  " + funcStyle.Render(label))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func runInteractive(filename string, opts compile.Options) error {
	p := tea.NewProgram(newInteractiveModel(filename, opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
