// Package chart renders sparklines, time axes and gauges for sensor
// temperatures, coloured against a single alert threshold.
package chart

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/luki/sensorstream/internal/history"
)

// WarnRatio is the fraction of the threshold at which readings turn yellow.
const WarnRatio = 0.85

var sparkBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

var (
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("236"))
	tickStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
)

// Level classifies a temperature against the alert threshold.
type Level int

const (
	Normal Level = iota
	Warm
	Alert
)

// LevelOf returns the band v falls in.
func LevelOf(v, threshold float64) Level {
	switch {
	case v >= threshold:
		return Alert
	case v >= threshold*WarnRatio:
		return Warm
	default:
		return Normal
	}
}

// TempColor returns the display colour for v.
func TempColor(v, threshold float64) lipgloss.Color {
	switch LevelOf(v, threshold) {
	case Alert:
		return lipgloss.Color("208") // orange
	case Warm:
		return lipgloss.Color("220") // yellow
	default:
		return lipgloss.Color("78") // soft green
	}
}

func tempStyle(v, threshold float64) lipgloss.Style {
	style := lipgloss.NewStyle().Foreground(TempColor(v, threshold))
	if LevelOf(v, threshold) == Alert {
		style = style.Bold(true)
	}
	return style
}

// RenderSparkline renders points as coloured blocks, right-aligned in
// width cells. A tick replaces the block at each minute boundary.
func RenderSparkline(points []history.Point, width int, rangeMin, rangeMax, threshold float64) string {
	if width <= 0 {
		return ""
	}
	if len(points) == 0 {
		return dimStyle.Render(strings.Repeat("╌", width))
	}
	if len(points) > width {
		points = points[len(points)-width:]
	}

	span := rangeMax - rangeMin
	if span <= 0 {
		span = 1
	}

	var sb strings.Builder
	sb.WriteString(dimStyle.Render(strings.Repeat("╌", width-len(points))))

	for i, p := range points {
		if minuteTick(points, i) {
			sb.WriteString(tickStyle.Render("│"))
			continue
		}
		norm := math.Max(0, math.Min(1, (p.Temp-rangeMin)/span))
		idx := min(int(norm*7), 7)
		sb.WriteString(tempStyle(p.Temp, threshold).Render(string(sparkBlocks[idx])))
	}
	return sb.String()
}

// minuteTick reports whether points[i] is the first sample of a minute.
func minuteTick(points []history.Point, i int) bool {
	p := points[i]
	if p.Time.IsZero() {
		return false
	}
	if p.Time.Second() == 0 {
		return true
	}
	return i > 0 && !points[i-1].Time.IsZero() && p.Time.Minute() != points[i-1].Time.Minute()
}

// RenderTimeline renders HH:MM labels aligned with the sparkline's minute
// ticks. Labels that would overlap are dropped.
func RenderTimeline(points []history.Point, width int) string {
	if len(points) == 0 || width <= 0 {
		return ""
	}
	if len(points) > width {
		points = points[len(points)-width:]
	}
	padLen := width - len(points)

	line := []rune(strings.Repeat(" ", width))
	lastEnd := -1
	for i, p := range points {
		if !minuteTick(points, i) {
			continue
		}
		label := p.Time.Format("15:04")
		start := max(padLen+i-2, 0)
		end := start + len(label)
		if end > width || start <= lastEnd+1 {
			continue
		}
		copy(line[start:], []rune(label))
		lastEnd = end
	}
	return tickStyle.Render(string(line))
}

// RenderThresholdScale renders a gauge from rangeMin to rangeMax with
// markers for the warm and alert bands and a diamond at current.
func RenderThresholdScale(current, rangeMin, rangeMax, threshold float64, width int) string {
	if width <= 0 {
		return ""
	}
	span := rangeMax - rangeMin
	if span <= 0 {
		span = 1
	}
	pos := func(v float64) int {
		return int(float64(width-1) * (v - rangeMin) / span)
	}

	warnPos, alertPos := -1, -1
	if w := threshold * WarnRatio; w > rangeMin {
		warnPos = pos(w)
	}
	if threshold > rangeMin {
		alertPos = pos(threshold)
	}
	curPos := min(max(pos(current), 0), width-1)

	var sb strings.Builder
	for i := 0; i < width; i++ {
		switch i {
		case curPos:
			sb.WriteString(lipgloss.NewStyle().Foreground(TempColor(current, threshold)).Bold(true).Render("◆"))
		case alertPos:
			sb.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Render("▪"))
		case warnPos:
			sb.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Render("▪"))
		default:
			sb.WriteString(dimStyle.Render("·"))
		}
	}
	return sb.String()
}

// RenderTempValue renders a temperature with its band colour.
func RenderTempValue(temp, threshold float64) string {
	return tempStyle(temp, threshold).Render(fmt.Sprintf("%3.0f°C", temp))
}
