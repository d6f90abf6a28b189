package viewer

import (
	"sort"
	"time"

	"github.com/luki/sensorstream/internal/history"
	"github.com/luki/sensorstream/internal/journal"
	"github.com/luki/sensorstream/internal/sensor"
)

type dataPoint struct {
	time time.Time
	temp float64
}

// dayData is one journal day indexed for scrubbing.
type dayData struct {
	readings  int
	sensors   []sensor.ID
	timeSlots []time.Time
	series    map[sensor.ID][]dataPoint
	// alerts are sorted oldest first.
	alerts []journal.Entry
}

func indexDay(entries []journal.Entry) dayData {
	d := dayData{series: make(map[sensor.ID][]dataPoint)}
	timeSet := make(map[int64]time.Time)

	for _, e := range entries {
		switch e.Kind {
		case journal.KindAlert:
			d.alerts = append(d.alerts, e)
		case journal.KindReading:
			d.readings++
			timeSet[e.Time.UnixMilli()] = e.Time
			d.series[e.Sensor] = append(d.series[e.Sensor], dataPoint{time: e.Time, temp: float64(e.Temp)})
		}
	}

	for id, pts := range d.series {
		d.sensors = append(d.sensors, id)
		sort.SliceStable(pts, func(i, j int) bool { return pts[i].time.Before(pts[j].time) })
	}
	sort.Slice(d.sensors, func(i, j int) bool { return d.sensors[i] < d.sensors[j] })

	for _, t := range timeSet {
		d.timeSlots = append(d.timeSlots, t)
	}
	sort.Slice(d.timeSlots, func(i, j int) bool { return d.timeSlots[i].Before(d.timeSlots[j]) })
	sort.SliceStable(d.alerts, func(i, j int) bool { return d.alerts[i].Time.Before(d.alerts[j].Time) })
	return d
}

// alertsUntil returns up to n alerts raised at or before t, newest first.
func (d dayData) alertsUntil(t time.Time, n int) []journal.Entry {
	var out []journal.Entry
	for i := len(d.alerts) - 1; i >= 0 && len(out) < n; i-- {
		if !d.alerts[i].Time.After(t) {
			out = append(out, d.alerts[i])
		}
	}
	return out
}

// findTempAtTime returns the reading nearest to t. pts must be non-empty.
func findTempAtTime(pts []dataPoint, t time.Time) float64 {
	best := pts[0].temp
	bestDiff := absDuration(pts[0].time.Sub(t))
	for _, p := range pts {
		diff := absDuration(p.time.Sub(t))
		if diff < bestDiff {
			bestDiff = diff
			best = p.temp
		}
		if p.time.After(t) && diff > bestDiff {
			break
		}
	}
	return best
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// buildSparkWindow returns the sensor's points among the width time slots
// ending at cursorIdx.
func buildSparkWindow(pts []dataPoint, cursorIdx int, width int, timeSlots []time.Time) []history.Point {
	if len(pts) == 0 || len(timeSlots) == 0 {
		return nil
	}

	tempMap := make(map[int64]float64, len(pts))
	for _, p := range pts {
		tempMap[p.time.UnixMilli()] = p.temp
	}

	var result []history.Point
	for slotIdx := max(cursorIdx-width+1, 0); slotIdx <= cursorIdx && slotIdx < len(timeSlots); slotIdx++ {
		t := timeSlots[slotIdx]
		if temp, ok := tempMap[t.UnixMilli()]; ok {
			result = append(result, history.Point{Temp: temp, Time: t})
		}
	}
	return result
}
