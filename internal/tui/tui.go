// Package tui is the terminal front end. It renders the machine's state and
// turns key presses into machine actions; generation runs in tea.Cmds and is
// applied when its message comes back.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tatianab/devil-deal/internal/engine"
	"github.com/tatianab/devil-deal/internal/game"
	"github.com/tatianab/devil-deal/internal/models"
)

type inputMode int

const (
	modeKeys inputMode = iota
	modeArgument
)

// Argument form fields.
const (
	fieldQuote = iota
	fieldExplain
	fieldCounter
	fieldCount
)

type model struct {
	machine  *game.Machine
	provider string

	mode    inputMode
	fields  [fieldCount]textinput.Model
	focus   int
	spinner spinner.Model
	view    viewport.Model

	// cancel aborts the outstanding generation request.
	cancel context.CancelFunc
	status string
	err    error
	width  int
	height int
}

var (
	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EEEEEE")).
			Background(lipgloss.Color("#5F5F87")).
			Bold(true).
			PaddingLeft(1)

	devilStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F5F"))

	gameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	coordStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#5FAFAF"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF8700"))

	stateStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("#3C3C3C")).
			PaddingLeft(2).
			Foreground(lipgloss.Color("#AAAAAA"))

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Bold(true).
			Underline(true)
)

// NewModel returns the root model. provider is shown in the side panel.
func NewModel(m *game.Machine, provider string) model {
	placeholders := [fieldCount]string{
		"Quote a sentence, e.g. P2-S0 (optional)",
		"What is wrong with it?",
		"What do you want instead? (optional)",
	}
	var fields [fieldCount]textinput.Model
	for i := range fields {
		ti := textinput.New()
		ti.Placeholder = placeholders[i]
		ti.CharLimit = 400
		ti.Width = 60
		fields[i] = ti
	}
	fields[fieldQuote].CharLimit = 16

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return model{
		machine:  m,
		provider: provider,
		fields:   fields,
		spinner:  sp,
		view:     viewport.New(80, 20),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, func() tea.Msg { return startMsg{} })
}

type startMsg struct{}

type offerMsg struct {
	ticket game.Ticket
	doc    *engine.Document
	err    error
}

type negotiationMsg struct {
	ticket game.Ticket
	doc    *engine.Document
	err    error
}

type eventMsg struct {
	ticket game.Ticket
	doc    *engine.Document
	err    error
}

// fetch runs req in the background and wraps the result with wrap.
func (m *model) fetch(req game.Request, wrap func(*engine.Document, error) tea.Msg) tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	machine := m.machine
	return func() tea.Msg {
		defer cancel()
		doc, err := machine.Fetch(ctx, req)
		return wrap(doc, err)
	}
}

func (m *model) requestOffer() tea.Cmd {
	req, err := m.machine.BeginOffer()
	if err != nil {
		m.err = err
		return nil
	}
	m.status = "The devil is drafting a contract..."
	return m.fetch(req, func(doc *engine.Document, err error) tea.Msg {
		return offerMsg{ticket: req.Ticket, doc: doc, err: err}
	})
}

func (m *model) requestEvent() tea.Cmd {
	req, err := m.machine.BeginEvent()
	if err != nil {
		m.err = err
		return nil
	}
	m.status = "Something stirs in the night..."
	return m.fetch(req, func(doc *engine.Document, err error) tea.Msg {
		return eventMsg{ticket: req.Ticket, doc: doc, err: err}
	})
}

func (m *model) submitArgument() tea.Cmd {
	arg := game.Argument{
		Explain: m.fields[fieldExplain].Value(),
		Counter: m.fields[fieldCounter].Value(),
	}
	if q := strings.TrimSpace(m.fields[fieldQuote].Value()); q != "" {
		c, err := models.ParseCoord(q)
		if err != nil {
			m.err = err
			return nil
		}
		arg.Quote = &c
	}
	if strings.TrimSpace(arg.Explain) == "" && strings.TrimSpace(arg.Counter) == "" {
		m.err = errors.New("say something: an explanation or a counter-proposal")
		return nil
	}
	req, err := m.machine.BeginNegotiation(arg)
	if err != nil {
		m.err = err
		return nil
	}
	m.leaveForm()
	m.status = "The devil considers your words..."
	return m.fetch(req, func(doc *engine.Document, err error) tea.Msg {
		return negotiationMsg{ticket: req.Ticket, doc: doc, err: err}
	})
}

func (m *model) openForm() tea.Cmd {
	m.mode = modeArgument
	m.focus = fieldQuote
	for i := range m.fields {
		m.fields[i].Reset()
		m.fields[i].Blur()
	}
	return m.fields[m.focus].Focus()
}

func (m *model) leaveForm() {
	m.mode = modeKeys
	for i := range m.fields {
		m.fields[i].Blur()
	}
}

func (m *model) cycleFocus(step int) tea.Cmd {
	m.fields[m.focus].Blur()
	m.focus = (m.focus + step + fieldCount) % fieldCount
	return m.fields[m.focus].Focus()
}

// reportFallback shows the generation failure behind a fallback, verbatim,
// if completing a request produced a new one.
func (m *model) reportFallback(before error) {
	if f := m.machine.LastFailure(); f != nil && f != before {
		m.err = fmt.Errorf("using fallback content: %w", f)
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case startMsg:
		m.machine.StartRun()
		cmds = append(cmds, m.requestOffer())

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.view.Width = int(float64(msg.Width) * 0.70)
		m.view.Height = max(5, msg.Height-9)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case offerMsg:
		before := m.machine.LastFailure()
		if err := m.machine.CompleteOffer(msg.ticket, msg.doc, msg.err); err != nil {
			return m, nil
		}
		m.status = ""
		m.reportFallback(before)
		m.view.GotoTop()

	case negotiationMsg:
		out, err := m.machine.CompleteNegotiation(msg.ticket, msg.doc, msg.err)
		if errors.Is(err, game.ErrStaleResult) {
			return m, nil
		}
		m.status = ""
		if err != nil {
			m.err = fmt.Errorf("the devil did not answer, that attempt is spent: %w", err)
		} else if out.Defused {
			m.status = fmt.Sprintf("Loophole %s defused.", out.FlawID)
		}
		m.view.GotoBottom()

	case eventMsg:
		before := m.machine.LastFailure()
		if err := m.machine.CompleteEvent(msg.ticket, msg.doc, msg.err); err != nil {
			return m, nil
		}
		m.status = ""
		m.reportFallback(before)

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.machine.Abandon()
			return m, tea.Quit
		}
		if m.mode == modeArgument {
			cmds = append(cmds, m.argumentKey(msg))
		} else {
			cmd, quit := m.actionKey(msg)
			if quit {
				m.machine.Abandon()
				return m, tea.Quit
			}
			cmds = append(cmds, cmd)
		}
	}

	_, isKey := msg.(tea.KeyMsg)
	if !isKey && m.mode == modeArgument {
		var cmd tea.Cmd
		m.fields[m.focus], cmd = m.fields[m.focus].Update(msg)
		cmds = append(cmds, cmd)
	}

	m.view.SetContent(m.renderMain())
	if !isKey || m.mode == modeKeys {
		var cmd tea.Cmd
		m.view, cmd = m.view.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m *model) argumentKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEsc:
		m.leaveForm()
		return nil
	case tea.KeyTab, tea.KeyDown:
		return m.cycleFocus(1)
	case tea.KeyShiftTab, tea.KeyUp:
		return m.cycleFocus(-1)
	case tea.KeyEnter:
		if m.focus < fieldCounter {
			return m.cycleFocus(1)
		}
		m.err = nil
		return m.submitArgument()
	}
	var cmd tea.Cmd
	m.fields[m.focus], cmd = m.fields[m.focus].Update(msg)
	return cmd
}

// actionKey handles a key outside the argument form and reports whether the
// program should quit.
func (m *model) actionKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	key := msg.String()
	if key == "q" {
		return nil, true
	}
	if key == "esc" {
		if m.machine.Pending() {
			m.machine.Cancel()
			if m.cancel != nil {
				m.cancel()
			}
			m.status = "Request cancelled."
			if m.machine.Phase() == game.PhaseAwaitingOffer {
				m.status = "Request cancelled. Press g to ask again."
			}
			return nil, false
		}
		return nil, true
	}
	m.err = nil

	switch m.machine.Phase() {
	case game.PhaseAwaitingOffer:
		if key == "g" && !m.machine.Pending() {
			return m.requestOffer(), false
		}
	case game.PhaseOfferReady:
		switch key {
		case "n":
			if m.machine.NegotiationsLeft() == 0 {
				m.err = game.ErrNoAttemptsLeft
				return nil, false
			}
			return m.openForm(), false
		case "a":
			if _, err := m.machine.Accept(); err != nil {
				m.err = err
				return nil, false
			}
			if m.machine.Phase() == game.PhaseSettled {
				return m.requestEvent(), false
			}
		case "r":
			if _, err := m.machine.Reject(); err != nil {
				m.err = err
				return nil, false
			}
			return m.requestEvent(), false
		}
	case game.PhaseSettled:
		if key == "g" {
			return m.requestEvent(), false
		}
	case game.PhaseEventPending:
		if ev, ok := m.machine.Event(); ok {
			if _, ok := ev.ChoiceByID(key); ok {
				if _, err := m.machine.ChooseEvent(key); err != nil {
					m.err = err
				}
			}
		} else if key == "g" && !m.machine.Pending() {
			return m.requestEvent(), false
		}
	case game.PhaseRoundEnd:
		if r, ok := m.machine.Report(); ok && r.More && key == "n" {
			if err := m.machine.NextRound(); err != nil {
				m.err = err
				return nil, false
			}
			return m.requestOffer(), false
		}
		if key == "s" {
			m.machine.StartRun()
			return m.requestOffer(), false
		}
	case game.PhaseFailed:
		if key == "s" {
			m.machine.StartRun()
			return m.requestOffer(), false
		}
	}
	return nil, false
}

func (m model) View() string {
	body := lipgloss.JoinHorizontal(lipgloss.Top, m.view.View(), m.renderState())

	var bottom []string
	if m.status != "" {
		line := m.status
		if m.machine.Pending() {
			line = m.spinner.View() + " " + line
		}
		bottom = append(bottom, gameStyle.Render(line))
	}
	if m.err != nil {
		bottom = append(bottom, errorStyle.Render("! "+m.err.Error()))
	}
	if m.mode == modeArgument {
		for i := range m.fields {
			bottom = append(bottom, m.fields[i].View())
		}
	}
	bottom = append(bottom, helpStyle.Render(m.help()))

	return "\n" + lipgloss.JoinVertical(lipgloss.Left, body, "\n"+strings.Join(bottom, "\n")) + "\n"
}

func (m model) help() string {
	if m.mode == modeArgument {
		return "tab: next field  enter: submit  esc: back"
	}
	if m.machine.Pending() {
		return "esc: cancel  q: quit"
	}
	switch m.machine.Phase() {
	case game.PhaseAwaitingOffer:
		return "g: ask for a contract  q: quit"
	case game.PhaseOfferReady:
		return "n: negotiate  a: accept  r: reject  ↑/↓: scroll  q: quit"
	case game.PhaseSettled:
		return "g: continue  q: quit"
	case game.PhaseEventPending:
		if ev, ok := m.machine.Event(); ok {
			ids := make([]string, 0, len(ev.Choices))
			for _, c := range ev.Choices {
				ids = append(ids, strings.ToLower(c.ID))
			}
			return strings.Join(ids, "/") + ": choose  q: quit"
		}
		return "g: try again  q: quit"
	case game.PhaseRoundEnd:
		if r, ok := m.machine.Report(); ok && r.More {
			return "n: next round  s: new run  q: quit"
		}
		return "s: new run  q: quit"
	case game.PhaseFailed:
		return "s: new run  q: quit"
	}
	return "q: quit"
}

func (m model) renderMain() string {
	width := max(20, m.view.Width-2)
	var b strings.Builder

	if c, ok := m.machine.Contract(); ok {
		b.WriteString(devilStyle.Bold(true).Render(fmt.Sprintf("%s (%s devil)", c.Devil.Name, c.Devil.Tier)))
		b.WriteString("\n\n")
		b.WriteString(gameStyle.Width(width).Render(c.DisplayText))
		b.WriteString("\n\n")
		b.WriteString(titleStyle.Render("CONTRACT"))
		b.WriteString("\n")
		b.WriteString(gameStyle.Width(width).Render(c.Offer.Summary))
		b.WriteString("\n\n")
		for _, p := range c.TextIndex.Paragraphs {
			for _, s := range p.Sentences {
				coord := models.Coord{Paragraph: p.Index, Sentence: s.Index}
				b.WriteString(coordStyle.Render(coord.String()))
				b.WriteString(" ")
				b.WriteString(gameStyle.Width(width - 8).Render(s.Text))
				b.WriteString("\n")
			}
		}
		if c.Probe.Present {
			b.WriteString("\n")
			b.WriteString(errorStyle.Width(width).Render(c.Probe.WarningText))
			b.WriteString("\n")
		}
	}

	if log := m.machine.Log(); len(log) > 0 {
		b.WriteString("\n")
		b.WriteString(titleStyle.Render("NEGOTIATION"))
		b.WriteString("\n")
		for _, e := range log {
			if e.Speaker == models.SpeakerPlayer {
				b.WriteString(userStyle.Width(width).Render("> " + e.Text))
			} else {
				b.WriteString(devilStyle.Width(width).Render(e.Text))
			}
			b.WriteString("\n")
		}
	}

	if s, ok := m.machine.Settlement(); ok {
		b.WriteString("\n")
		b.WriteString(titleStyle.Render("SETTLEMENT"))
		b.WriteString("\n")
		b.WriteString(renderSettlement(s))
	}

	if ev, ok := m.machine.Event(); ok {
		b.WriteString("\n")
		b.WriteString(titleStyle.Render("EVENT"))
		b.WriteString("\n")
		b.WriteString(gameStyle.Width(width).Render(ev.Text))
		b.WriteString("\n")
		for _, c := range ev.Choices {
			fmt.Fprintf(&b, "[%s] %s\n", strings.ToLower(c.ID), c.Text)
		}
	}

	if r, ok := m.machine.Report(); ok {
		b.WriteString("\n")
		b.WriteString(titleStyle.Render("OUTCOME"))
		b.WriteString("\n")
		if r.Outcome == game.OutcomeSoulLost {
			b.WriteString(devilStyle.Bold(true).Render("Your soul is forfeit."))
		} else {
			b.WriteString(gameStyle.Bold(true).Render(fmt.Sprintf("You survived round %d.", r.Rounds)))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderSettlement(s game.Settlement) string {
	if !s.Accepted {
		return "You walked away. Nothing changed.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Signed: %s\n", formatDeltas(s.Base))
	for _, t := range s.Triggered {
		if t.Fatal {
			fmt.Fprintf(&b, "  %s sprang: your soul is gone\n", t.ID)
			continue
		}
		fmt.Fprintf(&b, "  %s sprang: %s\n", t.ID, formatDeltas(t.Penalty))
	}
	for _, id := range s.Skipped {
		fmt.Fprintf(&b, "  %s was defused\n", id)
	}
	return b.String()
}

func formatDeltas(d models.Deltas) string {
	var parts []string
	for _, f := range []struct {
		name string
		v    int
	}{{"gold", d.Gold}, {"happiness", d.Happiness}, {"soul", d.Soul}} {
		if f.v != 0 {
			parts = append(parts, fmt.Sprintf("%s %+d", f.name, f.v))
		}
	}
	if len(parts) == 0 {
		return "no change"
	}
	return strings.Join(parts, ", ")
}

func (m model) renderState() string {
	res := m.machine.Resources()

	var b strings.Builder
	b.WriteString(titleStyle.Render("ROUND"))
	fmt.Fprintf(&b, "\n%d\n\n", m.machine.Round())

	b.WriteString(titleStyle.Render("RESOURCES"))
	fmt.Fprintf(&b, "\nGold: %d\nHappiness: %d\nSoul: %d\n\n", res.Gold, res.Happiness, res.Soul)

	b.WriteString(titleStyle.Render("DEAL"))
	fmt.Fprintf(&b, "\nNegotiations left: %d\n", m.machine.NegotiationsLeft())
	if n := m.machine.FlawCount(); n > 0 {
		fmt.Fprintf(&b, "Loopholes: %d (%d defused)\n", n, len(m.machine.Defused()))
	}
	b.WriteString("\n")

	b.WriteString(titleStyle.Render("GENERATOR"))
	fmt.Fprintf(&b, "\n%s\n", m.provider)
	if m.machine.UsedFallback() {
		b.WriteString("(fallback content in use)\n")
	}

	width := max(20, int(float64(m.width)*0.27))
	return stateStyle.Width(width).Height(m.view.Height).Render(b.String())
}

// Run starts the interactive program. It returns when the player quits.
func Run(m *game.Machine, provider string) error {
	p := tea.NewProgram(NewModel(m, provider), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
