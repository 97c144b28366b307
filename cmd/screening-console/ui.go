package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/koscakluka/ema-screening/core/analysis"
	"github.com/koscakluka/ema-screening/core/events"
	"github.com/koscakluka/ema-screening/core/gateway"
	"github.com/muesli/reflow/wordwrap"
)

var (
	titleStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	interviewerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	patientStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	noticeStyle      = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("8"))
	errorStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	recordingStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	helpStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type serverMessage events.Message

type disconnected struct{ err error }

type sent struct{ err error }

type line struct {
	speaker string
	text    string
	style   lipgloss.Style
}

// recorder is the part of miniaudio.Recorder the model uses.
type recorder interface {
	Start()
	Stop() ([]byte, error)
	Recording() bool
}

type model struct {
	client   *client
	recorder recorder

	viewport viewport.Model
	spinner  spinner.Model
	ready    bool
	width    int

	lines    []line
	thinking bool
	status   string
	done     bool
}

func newModel(c *client, r recorder) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	status := "Connected."
	if c.welcome != "" {
		status = c.welcome
	}
	return model{
		client:   c,
		recorder: r,
		spinner:  s,
		status:   status,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.send(func() error {
		return m.client.sendControl(gateway.FrameSpeakText, "")
	}))
}

func (m model) send(fn func() error) tea.Cmd {
	return func() tea.Msg { return sent{err: fn()} }
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		height := msg.Height - 4
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.refresh()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			_ = m.client.sendControl(gateway.FrameEndSession, "")
			return m, tea.Quit
		case " ":
			if m.done {
				break
			}
			if !m.recorder.Recording() {
				m.recorder.Start()
				m.status = "Recording, press space to send."
				break
			}
			wav, err := m.recorder.Stop()
			if err != nil {
				m.status = err.Error()
				break
			}
			m.status = "Sending..."
			cmds = append(cmds, m.send(func() error { return m.client.sendAudio(wav) }))
		case "r":
			cmds = append(cmds, m.send(func() error {
				return m.client.sendControl(gateway.FrameSpeakText, "")
			}))
		}

	case sent:
		if msg.err != nil {
			m.status = errorStyle.Render("Failed to send: " + msg.err.Error())
		}

	case serverMessage:
		m.handle(events.Message(msg))
		m.refresh()

	case disconnected:
		m.status = errorStyle.Render("Disconnected.")
		if msg.err != nil {
			m.status = errorStyle.Render("Disconnected: " + msg.err.Error())
		}
		m.done = true

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *model) handle(message events.Message) {
	switch events.Kind(message.Type) {
	case events.KindTaskStarted:
		m.status = "Listening to your answer..."
	case events.KindUserTranscript:
		m.lines = append(m.lines, line{speaker: "You", text: message.Text, style: patientStyle})
	case events.KindProcessing:
		m.thinking = true
		m.status = message.Message
	case events.KindAIResponse:
		m.thinking = false
		m.status = "Press space to answer."
		m.lines = append(m.lines, line{speaker: "Dr. Smith", text: message.Text, style: interviewerStyle})
	case events.KindAIAudio:
	case events.KindAssessmentComplete:
		m.done = true
		m.status = message.Message
		m.lines = append(m.lines, line{speaker: "Report", text: report(message), style: titleStyle})
	case events.KindError:
		m.thinking = false
		m.status = errorStyle.Render(message.Message)
	}
}

func report(message events.Message) string {
	if message.Report == nil {
		return message.Message
	}
	r := message.Report
	var b strings.Builder
	b.WriteString(r.Summary)
	if r.Scores != (analysis.DomainScores{}) {
		fmt.Fprintf(&b, "\nMemory %d, Language %d, Orientation %d, Reasoning %d, Attention %d",
			r.Scores.Memory, r.Scores.Language, r.Scores.Orientation, r.Scores.Reasoning, r.Scores.Attention)
	}
	if r.OverallRisk != "" {
		fmt.Fprintf(&b, "\nOverall risk: %s", r.OverallRisk)
	}
	for _, recommendation := range r.Recommendations {
		b.WriteString("\n- " + recommendation)
	}
	return b.String()
}

func (m *model) refresh() {
	if !m.ready {
		return
	}
	width := max(m.width-2, 20)

	var b strings.Builder
	for _, l := range m.lines {
		b.WriteString(l.style.Render(l.speaker + ":"))
		b.WriteString("\n")
		b.WriteString(wordwrap.String(l.text, width))
		b.WriteString("\n\n")
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m model) View() string {
	if !m.ready {
		return "Connecting..."
	}

	status := m.status
	switch {
	case m.recorder.Recording():
		status = recordingStyle.Render("● REC ") + status
	case m.thinking:
		status = m.spinner.View() + " " + status
	}

	help := "space record/send • r repeat question • q quit"
	if m.done {
		help = "q quit"
	}
	return fmt.Sprintf("%s\n%s\n%s\n%s",
		titleStyle.Render("Cognitive health screening"),
		m.viewport.View(),
		noticeStyle.Render(status),
		helpStyle.Render(help))
}
