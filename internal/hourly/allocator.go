// Package hourly reconstructs an hour-by-hour cost curve from sparse samples.
//
// Samples report a cumulative total at irregular instants. Each sample's delta
// is spread over the wall-clock interval since the previous sample in
// proportion to how much of that interval falls in each hour, so the curve
// conserves total cost without spiking at sample instants.
package hourly

import (
	"time"

	"github.com/wesm/vibepulse/internal/models"
)

// Allocate distributes the deltas of samples across the hours of the day that
// begins at startOfDay, returning one point per hour from midnight through the
// hour containing end. Samples must be sorted by RecordedAt; any that precede
// the running cursor are treated as occurring at the cursor.
//
// An empty slice is returned when there are no samples or start is not before end.
func Allocate(tool models.Tool, samples []models.Sample, startOfDay, end time.Time) []models.SeriesPoint {
	if !startOfDay.Before(end) || len(samples) == 0 {
		return nil
	}

	loc := startOfDay.Location()
	endHour := end.In(loc).Hour()
	totals := make([]float64, endHour+1)

	add := func(at time.Time, amount float64) {
		hour := at.In(loc).Hour()
		if hour >= 0 && hour < len(totals) {
			totals[hour] += amount
		}
	}

	cursor := startOfDay
	for _, sample := range samples {
		current := sample.RecordedAt
		if current.Before(cursor) {
			current = cursor
		}
		delta := max(0, sample.DeltaCost)

		if delta > 0 {
			if current.After(cursor) {
				spread(cursor, current, delta, loc, add)
			} else {
				add(current, delta)
			}
		}

		cursor = current
	}

	points := make([]models.SeriesPoint, 0, len(totals))
	for hour, cost := range totals {
		points = append(points, models.SeriesPoint{
			Tool: tool,
			Date: hourStart(startOfDay, hour, loc),
			Cost: cost,
		})
	}
	return points
}

// spread allocates amount over [from, to) split at every hour boundary.
func spread(from, to time.Time, amount float64, loc *time.Location, add func(time.Time, float64)) {
	total := to.Sub(from).Seconds()

	for slice := from; slice.Before(to); {
		next := nextHourBoundary(slice, loc)
		sliceEnd := to
		if next.Before(to) {
			sliceEnd = next
		}

		add(slice, amount*sliceEnd.Sub(slice).Seconds()/total)
		slice = sliceEnd
	}
}

// nextHourBoundary returns the first wall-clock hour boundary strictly after t.
func nextHourBoundary(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	into := time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second +
		time.Duration(local.Nanosecond())
	return t.Add(time.Hour - into)
}

func hourStart(day time.Time, hour int, loc *time.Location) time.Time {
	local := day.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, loc)
}
