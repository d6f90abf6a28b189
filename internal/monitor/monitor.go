// Package monitor implements the live dashboard TUI using BubbleTea. It
// polls the service API and shows per-sensor sparklines coloured against
// the alert threshold, summary stats and the recent alerts.
package monitor

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/luki/sensorstream/internal/chart"
	"github.com/luki/sensorstream/internal/sensor"
)

const (
	historyPoints = 300
	gaugeW        = 12
)

// ── Messages ─────────────────────────────────────────────────────────

type tickMsg time.Time

type snapshotMsg Snapshot

type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

// ── Model ────────────────────────────────────────────────────────────

// Model is the BubbleTea model for the live monitor.
type Model struct {
	client    *Client
	interval  time.Duration
	threshold float64

	snap      Snapshot
	order     []sensor.ID
	err       error
	width     int
	height    int
	scroll    int
	startTime time.Time
	paused    bool
}

// New creates the initial model. threshold colours the sparklines until
// the first poll reports the service's own threshold.
func New(client *Client, interval time.Duration, threshold uint8) Model {
	return Model{
		client:    client,
		interval:  interval,
		threshold: float64(threshold),
		startTime: time.Now(),
	}
}

// ── Commands ─────────────────────────────────────────────────────────

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) pollCmd() tea.Cmd {
	client, timeout := m.client, m.interval
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		snap, err := client.Fetch(ctx, historyPoints)
		if err != nil {
			return errMsg{err}
		}
		return snapshotMsg(snap)
	}
}

// ── Init / Update ────────────────────────────────────────────────────

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.pollCmd(), m.tickCmd())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			if m.scroll > 0 {
				m.scroll--
			}
		case "down", "j":
			m.scroll++
		case "home":
			m.scroll = 0
		case " ", "p":
			m.paused = !m.paused
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		if m.paused {
			return m, m.tickCmd()
		}
		return m, tea.Batch(m.pollCmd(), m.tickCmd())

	case snapshotMsg:
		m.snap = Snapshot(msg)
		m.order = sortedIDs(m.snap)
		if m.snap.Threshold > 0 {
			m.threshold = float64(m.snap.Threshold)
		}
		m.err = nil

	case errMsg:
		m.err = msg.err
	}

	return m, nil
}

func sortedIDs(s Snapshot) []sensor.ID {
	ids := make([]sensor.ID, 0, len(s.Sensors))
	for id := range s.Sensors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ── Color palette ────────────────────────────────────────────────────

var (
	colorTitleBg  = lipgloss.Color("17")
	colorTitleFg  = lipgloss.Color("51")
	colorBorder   = lipgloss.Color("62")
	colorHeading  = lipgloss.Color("147")
	colorLabel    = lipgloss.Color("252")
	colorDim      = lipgloss.Color("240")
	colorFooterBg = lipgloss.Color("235")
	colorOk       = lipgloss.Color("78")
	colorWarn     = lipgloss.Color("220")
	colorAlert    = lipgloss.Color("208")
	colorErr      = lipgloss.Color("196")
)

// ── View ─────────────────────────────────────────────────────────────

func (m Model) View() string {
	if m.width == 0 {
		return "  Initializing..."
	}

	contentWidth := max(m.width-2, 40)

	var sections []string
	sections = append(sections, m.renderTitleBar(contentWidth))

	if m.err != nil {
		errBox := lipgloss.NewStyle().
			Foreground(colorErr).
			Bold(true).
			Width(contentWidth).
			Padding(0, 1).
			Render(fmt.Sprintf(" ERROR: %v", m.err))
		sections = append(sections, errBox)
	}

	sections = append(sections, m.renderStats(contentWidth))

	if len(m.order) == 0 {
		waiting := lipgloss.NewStyle().
			Foreground(colorDim).
			Width(contentWidth).
			Align(lipgloss.Center).
			Padding(2, 0).
			Render("Waiting for sensor data...")
		sections = append(sections, waiting)
	} else {
		sections = append(sections, m.renderSensorPanel(contentWidth))
	}

	sections = append(sections, m.renderAlerts(contentWidth))
	sections = append(sections, m.renderFooter(contentWidth))

	content := lipgloss.JoinVertical(lipgloss.Left, sections...)

	lines := strings.Split(content, "\n")
	visibleLines := max(m.height, 5)
	maxScroll := max(len(lines)-visibleLines, 0)
	start := min(m.scroll, maxScroll)
	end := min(start+visibleLines, len(lines))

	return strings.Join(lines[start:end], "\n")
}

func (m Model) renderTitleBar(width int) string {
	logo := lipgloss.NewStyle().
		Bold(true).
		Foreground(colorTitleFg).
		Render("SENSORSTREAM MONITOR")

	dimS := lipgloss.NewStyle().Foreground(colorDim)
	statusParts := []string{dimS.Render("up " + fmtDuration(time.Since(m.startTime)))}

	if src := m.snap.Source; src.State != "" {
		text := src.State
		if src.Command != "" {
			text += " " + src.Command
		}
		if src.Restarts > 0 {
			text += fmt.Sprintf(" (%d restarts)", src.Restarts)
		}
		statusParts = append(statusParts, lipgloss.NewStyle().Foreground(colorLabel).Render(text))
	}
	if !m.snap.Time.IsZero() {
		statusParts = append(statusParts, dimS.Render(m.snap.Time.Format("15:04:05")))
	}
	if m.paused {
		statusParts = append(statusParts, lipgloss.NewStyle().Foreground(colorErr).Bold(true).Render("PAUSED"))
	}

	sep := dimS.Render(" │ ")
	right := strings.Join(statusParts, sep)
	gap := max(width-lipgloss.Width(logo)-lipgloss.Width(right)-4, 1)

	return lipgloss.NewStyle().
		Background(colorTitleBg).
		Width(width).
		Padding(0, 1).
		Render(logo + strings.Repeat(" ", gap) + right)
}

func (m Model) renderStats(width int) string {
	s := m.snap.Stats
	dimS := lipgloss.NewStyle().Foreground(colorDim)
	valS := lipgloss.NewStyle().Foreground(colorLabel)

	line := dimS.Render("sensors ") + valS.Render(fmt.Sprintf("%d", s.TotalSensors)) +
		dimS.Render("   avg ") + valS.Render(fmt.Sprintf("%.1f°C", s.AvgTemperature)) +
		dimS.Render("   min ") + valS.Render(fmt.Sprintf("%d°C", s.MinTemperature)) +
		dimS.Render("   max ") + valS.Render(fmt.Sprintf("%d°C", s.MaxTemperature)) +
		dimS.Render("   threshold ") + lipgloss.NewStyle().Foreground(colorAlert).Render(fmt.Sprintf("%.0f°C", m.threshold))

	return lipgloss.NewStyle().Width(width).Padding(0, 1).Render(line)
}

func (m Model) renderSensorPanel(totalWidth int) string {
	innerWidth := max(totalWidth-4, 30)
	chartWidth := min(max(innerWidth-56-gaugeW-1, 15), 140)

	const labelW, tempW = 11, 6

	dimS := lipgloss.NewStyle().Foreground(colorDim)
	valS := lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	frameL := lipgloss.NewStyle().Foreground(colorBorder).Render("▕")
	frameR := lipgloss.NewStyle().Foreground(colorBorder).Render("▏")

	rows := []string{lipgloss.NewStyle().Bold(true).Foreground(colorHeading).Render("Sensors")}

	lastPts := m.snap.History[m.order[len(m.order)-1]]
	for _, id := range m.order {
		agg := m.snap.Sensors[id]
		pts := m.snap.History[id]
		if len(pts) > len(lastPts) {
			lastPts = pts
		}

		rangeMin := math.Max(0, float64(agg.Min)-5)
		rangeMax := math.Max(float64(agg.Max), m.threshold) + 5

		label := lipgloss.NewStyle().
			Foreground(colorLabel).
			Width(labelW).
			Render(id.String())
		temp := lipgloss.NewStyle().
			Width(tempW).
			Align(lipgloss.Right).
			Render(chart.RenderTempValue(float64(agg.Temperature), m.threshold))

		spark := chart.RenderSparkline(pts, chartWidth, rangeMin, rangeMax, m.threshold)

		stats := dimS.Render(" lo") + valS.Render(fmt.Sprintf("%4d", agg.Min)) +
			dimS.Render(" hi") + valS.Render(fmt.Sprintf("%4d", agg.Max)) +
			dimS.Render(" n") + valS.Render(fmt.Sprintf("%6d", agg.Count)) +
			dimS.Render(" "+agg.LastUpdate.Local().Format("15:04:05"))

		gauge := chart.RenderThresholdScale(float64(agg.Temperature), rangeMin, rangeMax, m.threshold, gaugeW)

		rows = append(rows, label+" "+temp+" "+gauge+" "+frameL+spark+frameR+stats)
	}

	if timeline := chart.RenderTimeline(lastPts, chartWidth); strings.TrimSpace(timeline) != "" {
		rows = append(rows, strings.Repeat(" ", labelW+tempW+gaugeW+4)+timeline)
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Padding(0, 1).
		Width(totalWidth).
		Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m Model) renderAlerts(totalWidth int) string {
	rows := []string{lipgloss.NewStyle().Bold(true).Foreground(colorHeading).Render("Alerts")}

	if len(m.snap.Alerts) == 0 {
		rows = append(rows, lipgloss.NewStyle().Foreground(colorDim).Render("none"))
	}
	for _, a := range m.snap.Alerts {
		ts := lipgloss.NewStyle().Foreground(colorDim).Render(a.Timestamp.Local().Format("15:04:05"))
		msg := lipgloss.NewStyle().Foreground(colorAlert).Render(a.Message)
		rows = append(rows, ts+"  "+msg)
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Padding(0, 1).
		Width(totalWidth).
		Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m Model) renderFooter(width int) string {
	okS := lipgloss.NewStyle().Foreground(colorOk).Render("██")
	warnS := lipgloss.NewStyle().Foreground(colorWarn).Render("██")
	alertS := lipgloss.NewStyle().Foreground(colorAlert).Render("██")
	tickS := lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Render("│")

	dimS := lipgloss.NewStyle().Foreground(colorDim)
	legend := okS + dimS.Render(" ok ") +
		warnS + dimS.Render(" warm ") +
		alertS + dimS.Render(" alert ") +
		tickS + dimS.Render(" 1min")

	labelS := lipgloss.NewStyle().Foreground(colorLabel)
	keys := dimS.Render("q") + labelS.Render(":quit") +
		dimS.Render("  j/k") + labelS.Render(":scroll") +
		dimS.Render("  p") + labelS.Render(":pause")

	gap := max(width-lipgloss.Width(legend)-lipgloss.Width(keys)-4, 1)

	return lipgloss.NewStyle().
		Background(colorFooterBg).
		Width(width).
		Padding(0, 1).
		Render(legend + strings.Repeat(" ", gap) + keys)
}

func fmtDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

// Run opens the dashboard full-screen and blocks until the user quits.
func Run(client *Client, interval time.Duration, threshold uint8) error {
	p := tea.NewProgram(New(client, interval, threshold), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
