package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/wippyai/wasi-hostbridge/runtime"
)

const maxShownBody = 4 << 10

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#90EE90"))

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

var cmdConsole = cli.Command{
	Name:  "console",
	Usage: "send requests interactively through the runtime",
	Flags: []cli.Flag{
		cli.DurationFlag{
			Name:   "timeout",
			Value:  30 * time.Second,
			Usage:  "per request timeout",
			EnvVar: "HOSTBRIDGE_TIMEOUT",
		},
	},
	Action: console,
}

func console(c *cli.Context) error {
	// Logs would tear the alternate screen.
	installLogger(zap.NewNop())

	rt, release, err := localRuntime()
	if err != nil {
		return err
	}
	defer release()

	p := tea.NewProgram(newConsoleModel(rt, c.Duration("timeout")), tea.WithAltScreen())
	_, err = p.Run()
	return err
}

type exchangeMsg struct {
	ex  *exchange
	err error
}

type consoleModel struct {
	rt      *runtime.Runtime
	timeout time.Duration
	input   textinput.Model
	spinner spinner.Model
	last    *exchange
	err     error
	history []string
	loading bool
}

func newConsoleModel(rt *runtime.Runtime, timeout time.Duration) *consoleModel {
	ti := textinput.New()
	ti.Placeholder = "GET http://127.0.0.1:8080/path"
	ti.Prompt = "> "
	ti.Width = 72
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = headerStyle

	return &consoleModel{
		rt:      rt,
		timeout: timeout,
		input:   ti,
		spinner: sp,
	}
}

func (m *consoleModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit

		case "enter":
			line := strings.TrimSpace(m.input.Value())
			if m.loading || line == "" {
				return m, nil
			}
			m.loading = true
			m.err = nil
			m.history = append(m.history, line)
			m.input.SetValue("")
			return m, tea.Batch(m.spinner.Tick, m.send(line))

		case "up":
			if !m.loading && len(m.history) > 0 {
				m.input.SetValue(m.history[len(m.history)-1])
				m.input.CursorEnd()
			}
			return m, nil
		}

	case exchangeMsg:
		m.loading = false
		m.last = msg.ex
		m.err = msg.err
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// send runs the request off the UI loop. Only one request is in flight,
// so the runtime is never driven concurrently.
func (m *consoleModel) send(line string) tea.Cmd {
	method, target, payload := parseLine(line)
	rt, timeout := m.rt, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		ex, err := fetch(ctx, rt, method, target, payload)
		return exchangeMsg{ex: ex, err: err}
	}
}

func (m *consoleModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("hostbridge console"))
	b.WriteString("\n\n")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")

	switch {
	case m.loading:
		b.WriteString(m.spinner.View())
		b.WriteString(" sending...\n")
	case m.err != nil:
		b.WriteString(failStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	case m.last != nil:
		b.WriteString(renderExchange(m.last))
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter send • ↑ last request • esc quit"))
	return b.String()
}

func renderExchange(ex *exchange) string {
	var b strings.Builder

	status := fmt.Sprintf("%s %s → %d (%s)", ex.Method, ex.URL, ex.Status, ex.Elapsed.Round(time.Millisecond))
	if ex.Status >= 400 {
		b.WriteString(failStyle.Render(status))
	} else {
		b.WriteString(okStyle.Render(status))
	}
	b.WriteString("\n\n")

	for _, f := range ex.Headers {
		b.WriteString(headerStyle.Render(string(f.Name)))
		b.WriteString(": ")
		b.Write(f.Value)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	body := ex.Body
	if len(body) > maxShownBody {
		body = body[:maxShownBody]
	}
	b.Write(body)
	if len(ex.Body) > maxShownBody {
		b.WriteString(helpStyle.Render(fmt.Sprintf("\n… %d more bytes", len(ex.Body)-maxShownBody)))
	}
	b.WriteString("\n")
	return b.String()
}
