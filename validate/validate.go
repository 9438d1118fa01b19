// Package validate holds the per entity rules run over a resolved
// feed.
//
// Every rule is a plain function of an entity and read only lookups,
// returning the findings it produced. Rules never see each other's
// output, so they can run in any order or concurrently. Run executes
// all of them.
package validate

import (
	"tidbyt.dev/gtfsfeed/model"
)

// The period a feed claims to cover. Dates are YYYYMMDD. An empty
// bound is open.
type Window struct {
	Start string
	End   string
}

func (w Window) IsZero() bool {
	return w.Start == "" && w.End == ""
}

// Whether [start, end] overlaps the window at all.
func (w Window) Intersects(start, end string) bool {
	if w.End != "" && start > w.End {
		return false
	}
	if w.Start != "" && end < w.Start {
		return false
	}
	return true
}

// Whether [start, end] lies entirely within the window.
func (w Window) Contains(start, end string) bool {
	if w.Start != "" && start < w.Start {
		return false
	}
	if w.End != "" && end > w.End {
		return false
	}
	return true
}

// Geographic bounding box, in degrees.
type BBox struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

func (b BBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Severity choices that are a matter of local policy rather than
// correctness.
type Policy struct {
	// Calendars with no active weekday only make sense when service
	// is defined entirely through exceptions.
	ZeroWeekday model.Severity
}

func DefaultPolicy() Policy {
	return Policy{ZeroWeekday: model.SeverityWarning}
}
