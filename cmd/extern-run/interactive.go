package main

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/extern-runtime/host"
	"github.com/wippyai/extern-runtime/symbol"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	consoleStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1).
			Width(72)
)

const consoleLines = 12

// consoleBuffer keeps the last lines written by the host logger.
type consoleBuffer struct {
	lines []string
	mu    sync.Mutex
}

func (c *consoleBuffer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		c.lines = append(c.lines, line)
	}
	if over := len(c.lines) - 256; over > 0 {
		c.lines = c.lines[over:]
	}
	return len(p), nil
}

func (c *consoleBuffer) Sync() error { return nil }

func (c *consoleBuffer) tail(n int) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.lines) <= n {
		return append([]string(nil), c.lines...)
	}
	return append([]string(nil), c.lines[len(c.lines)-n:]...)
}

type interactiveModel struct {
	err      error
	rt       *host.Runtime
	sess     *session
	console  *consoleBuffer
	result   string
	items    []methodInfo
	inputs   []textinput.Model
	tick     time.Duration
	selected int
	focusIdx int
	state    modelState
	running  bool
}

type methodInfo struct {
	class    string
	selector string
	params   []paramInfo
	rec      host.Record
	n        int
}

type paramInfo struct {
	name    string
	witType wit.Type
	typeStr string
}

type modelState int

const (
	stateSelectMethod modelState = iota
	stateInputArgs
	stateShowResult
)

type callResultMsg struct {
	err    error
	result string
}

type tickMsg struct{}

func newInteractiveModel(sess *session, console *consoleBuffer, tick time.Duration) *interactiveModel {
	m := &interactiveModel{
		rt:      sess.rt,
		sess:    sess,
		console: console,
		tick:    tick,
		state:   stateSelectMethod,
	}
	m.refresh()
	return m
}

func (m *interactiveModel) Init() tea.Cmd {
	return nil
}

// refresh rebuilds the method list from the live instances.
func (m *interactiveModel) refresh() {
	m.items = m.items[:0]
	for _, n := range m.sess.ids() {
		rec := m.sess.instances[n]
		name := m.rt.ClassName(rec)
		desc, _, ok := m.rt.Class(name)
		if !ok {
			continue
		}
		for _, meth := range desc.Methods {
			mi := methodInfo{n: n, rec: rec, class: name, selector: meth.Selector}
			for i, t := range meth.Signature() {
				mi.params = append(mi.params, paramInfo{
					name:    fmt.Sprintf("arg%d", i),
					witType: t,
					typeStr: witTypeStr(t),
				})
			}
			m.items = append(m.items, mi)
		}
	}
	if m.selected >= len(m.items) {
		m.selected = max(len(m.items)-1, 0)
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.state == stateInputArgs {
			switch msg.String() {
			case "ctrl+c":
				return m, tea.Quit
			case "enter":
				return m, m.send()
			case "tab":
				if len(m.inputs) > 1 {
					m.inputs[m.focusIdx].Blur()
					m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
					m.inputs[m.focusIdx].Focus()
				}
				return m, nil
			case "esc":
				m.state = stateSelectMethod
				m.inputs = nil
				return m, nil
			}
			var cmds []tea.Cmd
			for i := range m.inputs {
				var cmd tea.Cmd
				m.inputs[i], cmd = m.inputs[i].Update(msg)
				cmds = append(cmds, cmd)
			}
			return m, tea.Batch(cmds...)
		}

		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "up", "k":
			if m.state == stateSelectMethod && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectMethod && m.selected < len(m.items)-1 {
				m.selected++
			}

		case "n":
			m.err = nil
			if names := m.rt.Classes(); len(names) > 0 {
				m.err = m.sess.exec("new " + names[0])
			}
			m.refresh()

		case "f":
			if len(m.items) > 0 && m.state == stateSelectMethod {
				m.err = m.sess.exec(fmt.Sprintf("free $%d", m.items[m.selected].n))
				m.refresh()
			}

		case "a":
			m.rt.Advance(ms(m.tick))

		case "r":
			m.running = !m.running
			if m.running {
				return m, m.scheduleTick()
			}

		case "enter":
			switch m.state {
			case stateSelectMethod:
				if len(m.items) == 0 {
					return m, nil
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.send()
				}
				m.state = stateInputArgs

			case stateShowResult:
				m.state = stateSelectMethod
				m.result = ""
				m.err = nil
			}

		case "esc":
			if m.state == stateShowResult {
				m.state = stateSelectMethod
				m.result = ""
				m.err = nil
			}
		}

	case tickMsg:
		if m.running {
			m.rt.Advance(ms(m.tick))
			return m, m.scheduleTick()
		}

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	return m, nil
}

func (m *interactiveModel) scheduleTick() tea.Cmd {
	return tea.Tick(m.tick, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m *interactiveModel) prepareInputs() {
	it := m.items[m.selected]
	m.inputs = make([]textinput.Model, len(it.params))
	for i, p := range it.params {
		ti := textinput.New()
		ti.Placeholder = p.typeStr
		ti.Prompt = p.name + ": "
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

// send snapshots the selection and the field values; the returned command
// runs off the UI goroutine.
func (m *interactiveModel) send() tea.Cmd {
	it := m.items[m.selected]
	values := make([]string, len(m.inputs))
	for i, input := range m.inputs {
		values[i] = input.Value()
	}
	rt := m.rt

	return func() tea.Msg {
		var args []host.Atom
		for i, v := range values {
			atoms, err := convertArg(rt, v, it.params[i].witType)
			if err != nil {
				return callResultMsg{err: fmt.Errorf("%s: %w", it.params[i].name, err)}
			}
			args = append(args, atoms...)
		}

		if err := rt.Send(it.rec, it.selector, args...); err != nil {
			return callResultMsg{err: err}
		}
		return callResultMsg{result: fmt.Sprintf("sent %s to $%d", it.selector, it.n)}
	}
}

// convertArg turns one input field into atoms. An empty field sends nothing
// so the host default applies.
func convertArg(rt *host.Runtime, value string, t wit.Type) ([]host.Atom, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	switch t.(type) {
	case wit.S64:
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, err
		}
		return []host.Atom{host.Long(v)}, nil
	case wit.F64:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, err
		}
		return []host.Atom{host.Float(v)}, nil
	case wit.String:
		ref, err := symbol.Intern(rt, value)
		if err != nil {
			return nil, err
		}
		return []host.Atom{ref.Atom()}, nil
	default:
		return parseAtoms(rt, strings.Fields(value))
	}
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Extern Runner"))
	fmt.Fprintf(&b, " t=%gms", m.rt.Now())
	if m.running {
		b.WriteString(" (running)")
	}
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectMethod:
		if len(m.items) == 0 {
			b.WriteString("No instances. Press n to create one.\n")
		} else {
			b.WriteString("Select a method to send:\n\n")
		}
		for i, it := range m.items {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + m.formatItem(it)))
			} else {
				b.WriteString("  " + m.formatItem(it))
			}
			b.WriteString("\n")
		}
		if m.err != nil {
			b.WriteString("\n")
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter send • n new • f free • a advance • r run • q quit"))

	case stateInputArgs:
		it := m.items[m.selected]
		fmt.Fprintf(&b, "Sending %s to $%d\n\n", funcStyle.Render(it.selector), it.n)
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(it.params[i].typeStr))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter send • esc back"))

	case stateShowResult:
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	b.WriteString("\n\n")
	b.WriteString(consoleStyle.Render(strings.Join(m.console.tail(consoleLines), "\n")))
	return b.String()
}

func (m *interactiveModel) formatItem(it methodInfo) string {
	var params []string
	for _, p := range it.params {
		params = append(params, typeStyle.Render(p.typeStr))
	}
	return fmt.Sprintf("$%d %s.", it.n, it.class) +
		funcStyle.Render(it.selector) + "(" + strings.Join(params, ", ") + ")"
}

func witTypeStr(t wit.Type) string {
	switch v := t.(type) {
	case wit.S64:
		return "s64"
	case wit.F64:
		return "f64"
	case wit.String:
		return "string"
	case *wit.TypeDef:
		if l, ok := v.Kind.(*wit.List); ok {
			return "list<" + witTypeStr(l.Type) + ">"
		}
		if v.Name != nil {
			return *v.Name
		}
		return "typedef"
	default:
		return fmt.Sprintf("%T", t)
	}
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func runInteractive(sess *session, console *consoleBuffer, tick time.Duration) error {
	p := tea.NewProgram(newInteractiveModel(sess, console, tick), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
