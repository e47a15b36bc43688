package ui

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/Dicklesworthstone/sysmoni/internal/config"
	"github.com/Dicklesworthstone/sysmoni/internal/history"
	"github.com/Dicklesworthstone/sysmoni/internal/model"
	"github.com/Dicklesworthstone/sysmoni/internal/procctl"
	"github.com/Dicklesworthstone/sysmoni/internal/scheduler"
)

// Backend is what the UI needs from the monitor. The UI never queries the
// OS itself.
type Backend interface {
	LatestSnapshot() *model.SystemSnapshot
	History(name string) []history.Point
	TerminateProcess(pid int32, forceful bool) error
	Updates(buffer int) (<-chan scheduler.Update, func())
	CommandResults(buffer int) (<-chan procctl.Result, func())
}

const tableRows = 15

type keyMap struct {
	Quit, Up, Down, Sort, Stop, Kill key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Quit, k.Up, k.Down, k.Sort, k.Stop, k.Kill}
}

func (k keyMap) FullHelp() [][]key.Binding { return [][]key.Binding{k.ShortHelp()} }

var keys = keyMap{
	Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Up:   key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down: key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Sort: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sort")),
	Stop: key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "stop")),
	Kill: key.NewBinding(key.WithKeys("K"), key.WithHelp("K", "kill")),
}

// Model renders the latest snapshot published by the monitor.
type Model struct {
	backend Backend
	filter  *regexp.Regexp
	sortKey string

	latest  *model.SystemSnapshot
	rows    []model.Process
	cursor  int
	status  string
	lastErr error

	help          help.Model
	updates       <-chan scheduler.Update
	results       <-chan procctl.Result
	unsubscribe   []func()
	width, height int
}

func New(b Backend, cfg config.Config) (*Model, error) {
	var filter *regexp.Regexp
	if cfg.Filter != "" {
		re, err := regexp.Compile(cfg.Filter)
		if err != nil {
			return nil, fmt.Errorf("filter: %w", err)
		}
		filter = re
	}
	updates, cancelUpdates := b.Updates(1)
	results, cancelResults := b.CommandResults(8)
	m := &Model{
		backend:     b,
		filter:      filter,
		sortKey:     cfg.Sort,
		help:        help.New(),
		updates:     updates,
		results:     results,
		unsubscribe: []func(){cancelUpdates, cancelResults},
		width:       120,
		height:      40,
	}
	m.setSnapshot(b.LatestSnapshot())
	return m, nil
}

// Messages
type tickMsg struct{}

func tickCmd() tea.Cmd { return tea.Tick(time.Second/5, func(time.Time) tea.Msg { return tickMsg{} }) }

func (m *Model) Init() tea.Cmd { return tickCmd() }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.close()
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			m.move(-1)
		case key.Matches(msg, keys.Down):
			m.move(1)
		case key.Matches(msg, keys.Sort):
			m.sortKey = nextSort(m.sortKey)
			m.refreshRows()
		case key.Matches(msg, keys.Stop):
			m.terminate(false)
		case key.Matches(msg, keys.Kill):
			m.terminate(true)
		}
	case tickMsg:
		m.poll()
		return m, tickCmd()
	}
	return m, nil
}

func (m *Model) poll() {
	select {
	case u, ok := <-m.updates:
		if ok {
			m.lastErr = u.Err
			if u.Snapshot != nil {
				m.setSnapshot(u.Snapshot)
			}
		}
	default:
	}
	for {
		select {
		case r, ok := <-m.results:
			if !ok {
				return
			}
			m.status = describeResult(r)
		default:
			return
		}
	}
}

func (m *Model) setSnapshot(s *model.SystemSnapshot) {
	if s == nil {
		return
	}
	m.latest = s
	m.refreshRows()
}

func (m *Model) refreshRows() {
	if m.latest == nil {
		return
	}
	var selected int32 = -1
	if m.cursor < len(m.rows) {
		selected = m.rows[m.cursor].PID
	}
	m.rows = visibleProcesses(m.latest.Processes, m.filter, m.sortKey)
	m.cursor = 0
	for i, p := range m.rows {
		if p.PID == selected {
			m.cursor = i
			break
		}
	}
}

func (m *Model) move(d int) {
	m.cursor = max(0, min(m.cursor+d, len(m.rows)-1))
}

func (m *Model) terminate(forceful bool) {
	if m.cursor >= len(m.rows) {
		return
	}
	p := m.rows[m.cursor]
	verb := "stop"
	if forceful {
		verb = "kill"
	}
	if err := m.backend.TerminateProcess(p.PID, forceful); err != nil {
		m.status = fmt.Sprintf("%s %d (%s): %v", verb, p.PID, p.Name, err)
		return
	}
	m.status = fmt.Sprintf("%s %d (%s) requested", verb, p.PID, p.Name)
}

func (m *Model) close() {
	for _, f := range m.unsubscribe {
		f()
	}
}

func describeResult(r procctl.Result) string {
	verb := "stop"
	if r.Forceful {
		verb = "kill"
	}
	switch {
	case r.Err == nil:
		return fmt.Sprintf("%s %d: sent", verb, r.PID)
	case errors.Is(r.Err, procctl.ErrPermissionDenied):
		return fmt.Sprintf("%s %d: permission denied", verb, r.PID)
	case errors.Is(r.Err, procctl.ErrNotFound):
		return fmt.Sprintf("%s %d: process already gone", verb, r.PID)
	case errors.Is(r.Err, procctl.ErrUnsupported):
		return fmt.Sprintf("%s %d: not supported here", verb, r.PID)
	}
	return fmt.Sprintf("%s %d: %v", verb, r.PID, r.Err)
}

// Styles
var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("45"))
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("81")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	cursorStyle = lipgloss.NewStyle().Reverse(true)
	gaugeFill   = "█"
	gaugeEmpty  = "░"
	cardStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("60")).
			Padding(0, 1).
			MarginRight(1)
)

func (m *Model) View() string {
	s := m.latest
	if s == nil {
		return titleStyle.Render("sysmoni") + "  " + subtleStyle.Render("waiting for first sample…")
	}
	header := titleStyle.Render("sysmoni") + "  " +
		subtleStyle.Render(s.Timestamp.Format("Mon Jan 2 15:04:05 MST 2006"))

	line1 := lipgloss.JoinHorizontal(lipgloss.Top, m.cpuCard(s), memCard(s))
	row2 := []string{diskCard(s), netCard(s)}
	if len(s.GPUs) > 0 {
		row2 = append(row2, gpuCard(s))
	}
	line2 := lipgloss.JoinHorizontal(lipgloss.Top, row2...)
	procs := card(fmt.Sprintf("Processes (%d, sort: %s)", len(m.rows), m.sortKey), m.renderTable())

	return lipgloss.JoinVertical(lipgloss.Left, header, line1, line2, procs, m.footer(s))
}

func (m *Model) cpuCard(s *model.SystemSnapshot) string {
	c := s.CPU
	lines := []string{gaugeBar(c.Total, 28)}
	extra := fmt.Sprintf("%d cores  %s  %s", c.LogicalCores, fmtFloat(c.FrequencyMHz, " MHz"), fmtFloat(c.TemperatureC, "°C"))
	if c.Load != nil {
		extra += fmt.Sprintf("  load %.2f %.2f %.2f", c.Load.Load1, c.Load.Load5, c.Load.Load15)
	}
	lines = append(lines, extra)
	if pts := m.backend.History(history.CPUTotal); len(pts) > 0 {
		lines = append(lines, subtleStyle.Render(sparkline(pts, 36, 100)))
	}
	if len(s.Fans) > 0 {
		fans := make([]string, 0, len(s.Fans))
		for _, f := range s.Fans {
			fans = append(fans, truncate(f.Label, 14)+" "+fmtRPM(f.RPM))
		}
		lines = append(lines, subtleStyle.Render(strings.Join(fans, "  ")))
	}
	title := "CPU"
	if c.ModelName != "" {
		title += " · " + truncate(c.ModelName, 32)
	}
	return card(title, strings.Join(lines, "\n"))
}

func memCard(s *model.SystemSnapshot) string {
	mem := s.Memory
	return card("Memory", fmt.Sprintf("%s  %s/%s\nSwap %s  cache %s",
		gaugeBar(ratio(mem.UsedBytes, mem.TotalBytes), 28),
		fmtBytes(mem.UsedBytes), fmtBytes(mem.TotalBytes),
		fmtPct(ratio(mem.SwapUsed, mem.SwapTotal)),
		fmtBytes(mem.Cached)))
}

func diskCard(s *model.SystemSnapshot) string {
	if len(s.Disks) == 0 {
		return card("Disks", subtleStyle.Render(na))
	}
	lines := make([]string, 0, len(s.Disks))
	for _, d := range s.Disks {
		lines = append(lines, fmt.Sprintf("%-10s %-7s %9s  R %10s  W %10s  busy %6s  %s",
			truncate(d.Name, 10), d.Kind, fmtBytes(d.CapacityBytes),
			fmtRate(d.ReadBytesPS), fmtRate(d.WriteBytesPS), fmtPct(d.BusyPercent), fmtMs(d.ResponseMs)))
	}
	return card("Disks", strings.Join(lines, "\n"))
}

func netCard(s *model.SystemSnapshot) string {
	if len(s.Networks) == 0 {
		return card("Network", subtleStyle.Render(na))
	}
	lines := make([]string, 0, len(s.Networks))
	for _, n := range s.Networks {
		lines = append(lines, fmt.Sprintf("%-10s %-8s RX %10s  TX %10s",
			truncate(n.Name, 10), n.Kind, fmtRate(n.RxBytesPS), fmtRate(n.TxBytesPS)))
	}
	return card("Network", strings.Join(lines, "\n"))
}

func gpuCard(s *model.SystemSnapshot) string {
	lines := make([]string, 0, len(s.GPUs))
	for _, g := range s.GPUs {
		lines = append(lines, fmt.Sprintf("%-12s %6s mem %s/%s %s",
			truncate(g.Name, 12), fmtPct(g.Util),
			fmtBytes(g.MemUsedBytes), fmtBytes(g.MemTotalBytes), fmtFloat(g.TempC, "°C")))
	}
	return card("GPU", strings.Join(lines, "\n"))
}

func card(title, body string) string {
	titleStr := labelStyle.Render(title)
	content := titleStr + "\n" + body
	return cardStyle.Render(content)
}

func (m *Model) renderTable() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-7s %-7s %-10s %7s %9s %11s %-8s %s\n", "pid", "ppid", "user", "cpu", "rss", "disk", "state", "cmd")

	limit := tableRows
	if m.height > 0 {
		limit = max(3, min(tableRows, m.height-20))
	}
	start := max(0, min(m.cursor-limit+1, len(m.rows)-limit))
	end := min(len(m.rows), start+limit)
	for i := start; i < end; i++ {
		p := m.rows[i]
		line := fmt.Sprintf("%-7d %-7d %-10s %7s %9s %11s %-8s %s",
			p.PID, p.PPID, truncate(p.User, 10), fmtPct(p.CPU), fmtBytes(p.RSSBytes),
			fmtRate(sumRates(p.ReadBytesPS, p.WriteBytesPS)), p.Status, truncate(p.Name, 24))
		if i == m.cursor {
			line = cursorStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Model) footer(s *model.SystemSnapshot) string {
	parts := []string{m.help.View(keys)}
	if m.status != "" {
		parts = append(parts, m.status)
	}
	if m.lastErr != nil {
		parts = append(parts, warnStyle.Render("sampling: "+m.lastErr.Error()))
	}
	for _, is := range s.Issues {
		if is.Kind == model.IssueTransient {
			parts = append(parts, warnStyle.Render(is.Resource+" unavailable"))
		}
	}
	parts = append(parts, subtleStyle.Render("updated "+humanize.Time(s.Timestamp)))
	return strings.Join(parts, "  │  ")
}

// RunTUI starts the Bubble Tea program and blocks until the user quits or
// ctx is cancelled.
func RunTUI(ctx context.Context, b Backend, cfg config.Config) error {
	m, err := New(b, cfg)
	if err != nil {
		return err
	}
	defer m.close()
	prog := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = prog.Run()
	if ctx.Err() != nil {
		return nil
	}
	return err
}
