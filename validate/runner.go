package validate

import (
	"runtime"

	"golang.org/x/sync/errgroup"

	"tidbyt.dev/gtfsfeed/model"
	"tidbyt.dev/gtfsfeed/resolve"
	"tidbyt.dev/gtfsfeed/storage"
)

type Options struct {
	// Period the feed claims to cover. Zero to skip window checks.
	Window Window

	// Stops outside this box are flagged. Nil to skip.
	Region *BBox

	Policy Policy

	// Plausibility limits. Zero disables.
	MaxSpeedKmh         float64
	MaxParentDistanceKm float64

	// Number of concurrent per stop and per trip jobs. Defaults to
	// the number of CPUs.
	Workers int
}

// Runs every rule over the feed. Findings are returned grouped by rule
// family, with entities in the order they were loaded, regardless of
// how work was scheduled.
func Run(reader storage.FeedReader, idx *resolve.Index, opts Options) []model.Finding {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	findings := []model.Finding{}

	findings = append(findings, ValidateAgencies(reader.Agencies())...)
	if idx.FeedInfo != nil {
		findings = append(findings, ValidateFeedInfo(idx.FeedInfo)...)
	}
	for _, cal := range reader.Calendars() {
		findings = append(findings, ValidateCalendar(cal, opts.Policy)...)
	}
	for _, route := range reader.Routes() {
		findings = append(findings, ValidateRoute(route, idx.TripsByRoute[route.ID])...)
	}

	stops := reader.Stops()
	stopResults := make([][]model.Finding, len(stops))
	g := &errgroup.Group{}
	g.SetLimit(workers)
	for i, stop := range stops {
		i, stop := i, stop
		g.Go(func() error {
			res := ValidateStop(stop, opts.Region)
			if stop.ParentStation != "" {
				res = append(res, ValidateStation(stop, idx.Stops[stop.ParentStation], opts.MaxParentDistanceKm)...)
			}
			stopResults[i] = res
			return nil
		})
	}
	g.Wait()
	for _, res := range stopResults {
		findings = append(findings, res...)
	}

	for _, point := range reader.ShapePoints() {
		findings = append(findings, ValidateShapePoint(point)...)
	}

	trips := reader.Trips()
	tripResults := make([][]model.Finding, len(trips))
	g = &errgroup.Group{}
	g.SetLimit(workers)
	for i, trip := range trips {
		i, trip := i, trip
		g.Go(func() error {
			stopTimes := idx.StopTimesByTrip[trip.ID]
			res := ValidateTrip(trip, stopTimes, idx, opts.Window)
			res = append(res, ValidateTripSpeed(trip, stopTimes, idx.Stops, opts.MaxSpeedKmh)...)
			tripResults[i] = res
			return nil
		})
	}
	g.Wait()
	for _, res := range tripResults {
		findings = append(findings, res...)
	}

	return findings
}
