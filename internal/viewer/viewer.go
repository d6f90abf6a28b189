// Package viewer implements the journal browser TUI with time scrubbing,
// day navigation and sparkline windows.
package viewer

import (
	"errors"
	"fmt"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/luki/sensorstream/internal/chart"
	"github.com/luki/sensorstream/internal/journal"
)

const alertRows = 10

// ErrNoData is returned by Run when dir holds no journal days.
var ErrNoData = errors.New("no journal data")

// Run launches the viewer over the CSV journal in dir.
func Run(dir string, threshold uint8) error {
	days, err := journal.ListDays(dir)
	if err != nil || len(days) == 0 {
		return fmt.Errorf("%w in %s", ErrNoData, dir)
	}

	p := tea.NewProgram(
		initModel(dir, days, threshold),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	_, err = p.Run()
	return err
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
	colorCursor   = lipgloss.Color("214")
	colorAlert    = lipgloss.Color("208")
	colorErr      = lipgloss.Color("196")
)

// ── Model ────────────────────────────────────────────────────────────

type model struct {
	dir       string
	days      []string // newest first
	dayIdx    int
	threshold float64
	data      dayData
	cursor    int // index into data.timeSlots
	scroll    int
	width     int
	height    int
	err       error
}

func initModel(dir string, days []string, threshold uint8) model {
	m := model{dir: dir, days: days, threshold: float64(threshold)}
	m.loadDay()
	return m
}

func (m *model) loadDay() {
	entries, err := journal.LoadDay(m.dir, m.days[m.dayIdx])
	if err != nil {
		m.err = err
		m.data = dayData{}
		return
	}
	m.err = nil
	m.data = indexDay(entries)
	m.cursor = max(len(m.data.timeSlots)-1, 0)
	m.scroll = 0
}

// ── Init / Update ────────────────────────────────────────────────────

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	last := len(m.data.timeSlots) - 1

	switch msg := msg.(type) {

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit

		case "left", "h":
			m.cursor = max(m.cursor-1, 0)
		case "right", "l":
			m.cursor = max(min(m.cursor+1, last), 0)
		case "shift+left", "H":
			m.cursor = max(m.cursor-30, 0)
		case "shift+right", "L":
			m.cursor = max(min(m.cursor+30, last), 0)
		case "home":
			m.cursor = 0
		case "end":
			m.cursor = max(last, 0)

		case "[":
			if m.dayIdx < len(m.days)-1 {
				m.dayIdx++
				m.loadDay()
			}
		case "]":
			if m.dayIdx > 0 {
				m.dayIdx--
				m.loadDay()
			}

		case "up", "k":
			m.scroll = max(m.scroll-1, 0)
		case "down", "j":
			m.scroll++
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	}

	return m, nil
}

// ── View ─────────────────────────────────────────────────────────────

func (m model) View() string {
	if m.width == 0 {
		return "  Loading..."
	}

	contentWidth := max(m.width-2, 40)

	sections := []string{m.renderTitle(contentWidth)}

	if m.err != nil {
		sections = append(sections, lipgloss.NewStyle().
			Foreground(colorErr).
			Bold(true).
			Padding(0, 1).
			Render(fmt.Sprintf("ERROR: %v", m.err)))
	}

	if len(m.data.timeSlots) == 0 {
		sections = append(sections, lipgloss.NewStyle().
			Foreground(colorDim).
			Padding(2, 0).
			Align(lipgloss.Center).
			Width(contentWidth).
			Render("No data for this day."))
	} else {
		sections = append(sections,
			m.renderCursorInfo(contentWidth),
			m.renderSensors(contentWidth),
			m.renderAlerts(contentWidth),
		)
	}

	sections = append(sections, m.renderFooter(contentWidth))

	lines := strings.Split(lipgloss.JoinVertical(lipgloss.Left, sections...), "\n")
	visibleLines := max(m.height, 5)
	start := min(m.scroll, max(len(lines)-visibleLines, 0))
	end := min(start+visibleLines, len(lines))

	return strings.Join(lines[start:end], "\n")
}

func (m model) renderTitle(width int) string {
	logo := lipgloss.NewStyle().
		Bold(true).
		Foreground(colorTitleFg).
		Render("SENSORSTREAM JOURNAL")

	dayText := lipgloss.NewStyle().
		Foreground(colorCursor).
		Bold(true).
		Render(m.days[m.dayIdx])

	nav := lipgloss.NewStyle().
		Foreground(colorDim).
		Render(fmt.Sprintf("  [ %d/%d ]", m.dayIdx+1, len(m.days)))

	dataInfo := ""
	if slots := m.data.timeSlots; len(slots) > 0 {
		dataInfo = lipgloss.NewStyle().
			Foreground(colorDim).
			Render(fmt.Sprintf("  %s - %s  (%d readings, %d sensors, %d alerts)",
				slots[0].Format("15:04:05"), slots[len(slots)-1].Format("15:04:05"),
				m.data.readings, len(m.data.sensors), len(m.data.alerts)))
	}

	right := dayText + nav + dataInfo
	gap := max(width-lipgloss.Width(logo)-lipgloss.Width(right)-4, 1)

	return lipgloss.NewStyle().
		Background(colorTitleBg).
		Width(width).
		Padding(0, 1).
		Render(logo + strings.Repeat(" ", gap) + right)
}

func (m model) renderCursorInfo(width int) string {
	t := m.data.timeSlots[m.cursor]
	ts := lipgloss.NewStyle().
		Foreground(colorCursor).
		Bold(true).
		Render(t.Format("15:04:05"))

	pos := lipgloss.NewStyle().
		Foreground(colorDim).
		Render(fmt.Sprintf("  %d/%d", m.cursor+1, len(m.data.timeSlots)))

	return lipgloss.NewStyle().
		Padding(0, 1).
		Render("  " + ts + pos + "  " + m.renderScrubber(max(width-30, 10)))
}

func (m model) renderScrubber(width int) string {
	slots := m.data.timeSlots
	if len(slots) == 0 || width <= 0 {
		return ""
	}

	pos := 0
	if len(slots) > 1 {
		pos = min(m.cursor*(width-1)/(len(slots)-1), width-1)
	}

	dimS := lipgloss.NewStyle().Foreground(lipgloss.Color("237"))
	curS := lipgloss.NewStyle().Foreground(colorCursor).Bold(true)
	tickS := lipgloss.NewStyle().Foreground(lipgloss.Color("239"))

	var sb strings.Builder
	for i := 0; i < width; i++ {
		if i == pos {
			sb.WriteString(curS.Render("◆"))
			continue
		}
		slotIdx := 0
		if len(slots) > 1 && width > 1 {
			slotIdx = i * (len(slots) - 1) / (width - 1)
		}
		if slotIdx > 0 && slots[slotIdx].Hour() != slots[slotIdx-1].Hour() {
			sb.WriteString(tickS.Render("│"))
			continue
		}
		sb.WriteString(dimS.Render("─"))
	}
	return sb.String()
}

func (m model) renderSensors(totalWidth int) string {
	cursorTime := m.data.timeSlots[m.cursor]

	innerWidth := max(totalWidth-4, 30)
	chartWidth := min(max(innerWidth-50, 15), 140)

	const labelW, tempW = 11, 6

	dimS := lipgloss.NewStyle().Foreground(colorDim)
	valS := lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	frameL := lipgloss.NewStyle().Foreground(colorBorder).Render("▕")
	frameR := lipgloss.NewStyle().Foreground(colorBorder).Render("▏")

	rows := []string{
		lipgloss.NewStyle().Bold(true).Foreground(colorHeading).Render("Sensors"),
		lipgloss.NewStyle().Foreground(lipgloss.Color("237")).Render(strings.Repeat("─", innerWidth)),
	}

	for _, id := range m.data.sensors {
		pts := m.data.series[id]
		if len(pts) == 0 {
			continue
		}

		minV, maxV, sum := math.MaxFloat64, -math.MaxFloat64, 0.0
		for _, p := range pts {
			minV = math.Min(minV, p.temp)
			maxV = math.Max(maxV, p.temp)
			sum += p.temp
		}
		rangeMin := math.Max(0, minV-5)
		rangeMax := math.Max(maxV, m.threshold) + 5

		sparkPts := buildSparkWindow(pts, m.cursor, chartWidth, m.data.timeSlots)

		label := lipgloss.NewStyle().
			Foreground(colorLabel).
			Bold(true).
			Width(labelW).
			Render(id.String())
		temp := lipgloss.NewStyle().
			Width(tempW).
			Align(lipgloss.Right).
			Render(chart.RenderTempValue(findTempAtTime(pts, cursorTime), m.threshold))
		spark := chart.RenderSparkline(sparkPts, chartWidth, rangeMin, rangeMax, m.threshold)

		stats := dimS.Render("avg") + valS.Render(fmt.Sprintf("%5.1f", sum/float64(len(pts)))) +
			dimS.Render(" lo") + valS.Render(fmt.Sprintf("%4.0f", minV)) +
			dimS.Render(" pk") + valS.Render(fmt.Sprintf("%4.0f", maxV))

		rows = append(rows, label+" "+temp+" "+frameL+spark+frameR+" "+stats)
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Padding(0, 1).
		Width(totalWidth).
		Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m model) renderAlerts(totalWidth int) string {
	rows := []string{lipgloss.NewStyle().Bold(true).Foreground(colorHeading).Render("Alerts until cursor")}

	alerts := m.data.alertsUntil(m.data.timeSlots[m.cursor], alertRows)
	if len(alerts) == 0 {
		rows = append(rows, lipgloss.NewStyle().Foreground(colorDim).Render("none"))
	}
	for _, a := range alerts {
		ts := lipgloss.NewStyle().Foreground(colorDim).Render(a.Time.Format("15:04:05"))
		rows = append(rows, ts+"  "+lipgloss.NewStyle().Foreground(colorAlert).Render(a.Message))
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Padding(0, 1).
		Width(totalWidth).
		Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m model) renderFooter(width int) string {
	dimS := lipgloss.NewStyle().Foreground(colorDim)
	keyS := lipgloss.NewStyle().Foreground(colorLabel)

	keys := dimS.Render("q") + keyS.Render(":quit") +
		dimS.Render("  h/l") + keyS.Render(":scrub") +
		dimS.Render("  H/L") + keyS.Render(":skip 30") +
		dimS.Render("  home/end") + keyS.Render(":jump") +
		dimS.Render("  [/]") + keyS.Render(":day") +
		dimS.Render("  j/k") + keyS.Render(":scroll")

	return lipgloss.NewStyle().
		Background(colorFooterBg).
		Width(width).
		Padding(0, 1).
		Render(keys)
}
