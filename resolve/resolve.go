// Package resolve cross links the tables of a loaded feed.
//
// Resolve builds id lookups once. Validators receive the resulting
// Index and never look ids up in the store themselves. The Index is
// not modified after Resolve returns, so it can be shared between
// goroutines freely.
package resolve

import (
	"tidbyt.dev/gtfsfeed/model"
	"tidbyt.dev/gtfsfeed/storage"
)

type Index struct {
	Agencies  map[string]*model.Agency
	Stops     map[string]*model.Stop
	Routes    map[string]*model.Route
	Calendars map[string]*model.Calendar
	Trips     map[string]*model.Trip

	// Stop times per trip, in the order they were declared.
	StopTimesByTrip map[string][]*model.StopTime

	// Trips per route, in the order they were declared.
	TripsByRoute map[string][]*model.Trip

	// Shape points per shape, in the order they were declared.
	ShapePoints map[string][]*model.ShapePoint

	// Stops referenced as parent_station by some other stop.
	Parents map[string]bool

	// Nil if feed_info.txt was absent.
	FeedInfo *model.FeedInfo
}

type Result struct {
	Index    *Index
	Findings []model.Finding
}

// Builds indices for the feed and checks every reference resolves.
func Resolve(reader storage.FeedReader) *Result {
	idx := &Index{
		Agencies:        map[string]*model.Agency{},
		Stops:           map[string]*model.Stop{},
		Routes:          map[string]*model.Route{},
		Calendars:       map[string]*model.Calendar{},
		Trips:           map[string]*model.Trip{},
		StopTimesByTrip: map[string][]*model.StopTime{},
		TripsByRoute:    map[string][]*model.Trip{},
		ShapePoints:     map[string][]*model.ShapePoint{},
		Parents:         map[string]bool{},
		FeedInfo:        reader.FeedInfo(),
	}
	findings := []model.Finding{}

	agencies := reader.Agencies()
	for _, a := range agencies {
		idx.Agencies[a.ID] = a
	}
	if len(agencies) == 0 {
		findings = append(findings, model.Fatal(
			model.KindEmptyTable, model.EntityAgency, "", "",
			"at least one agency is required",
		))
	}

	stops := reader.Stops()
	for _, s := range stops {
		idx.Stops[s.ID] = s
	}
	for _, s := range stops {
		if s.ParentStation == "" {
			continue
		}
		idx.Parents[s.ParentStation] = true
		if _, found := idx.Stops[s.ParentStation]; !found {
			findings = append(findings, dangling(model.EntityStop, s.ID, "parent_station", s.ParentStation))
		}
	}

	for _, c := range reader.Calendars() {
		idx.Calendars[c.ServiceID] = c
	}

	for _, p := range reader.ShapePoints() {
		idx.ShapePoints[p.ShapeID] = append(idx.ShapePoints[p.ShapeID], p)
	}

	agencyRouted := map[string]bool{}
	for _, r := range reader.Routes() {
		idx.Routes[r.ID] = r
		idx.TripsByRoute[r.ID] = nil

		// agency_id may only be left out when there's exactly
		// one agency.
		if r.AgencyID == "" {
			if len(agencies) == 1 {
				agencyRouted[agencies[0].ID] = true
			} else if len(agencies) > 1 {
				findings = append(findings, model.Fatal(
					model.KindDanglingReference, model.EntityRoute, r.ID, "agency_id",
					"agency_id is required when the feed has multiple agencies",
				))
			}
			continue
		}
		if _, found := idx.Agencies[r.AgencyID]; !found {
			findings = append(findings, dangling(model.EntityRoute, r.ID, "agency_id", r.AgencyID))
			continue
		}
		agencyRouted[r.AgencyID] = true
	}

	shapeUsed := map[string]bool{}
	for _, t := range reader.Trips() {
		idx.Trips[t.ID] = t

		if _, found := idx.Routes[t.RouteID]; found {
			idx.TripsByRoute[t.RouteID] = append(idx.TripsByRoute[t.RouteID], t)
		} else {
			findings = append(findings, dangling(model.EntityTrip, t.ID, "route_id", t.RouteID))
		}

		if _, found := idx.Calendars[t.ServiceID]; !found {
			findings = append(findings, dangling(model.EntityTrip, t.ID, "service_id", t.ServiceID))
		}

		if t.ShapeID != "" {
			shapeUsed[t.ShapeID] = true
			if _, found := idx.ShapePoints[t.ShapeID]; !found {
				findings = append(findings, dangling(model.EntityTrip, t.ID, "shape_id", t.ShapeID))
			}
		}
	}

	stopVisited := map[string]bool{}
	for _, st := range reader.StopTimes() {
		id := model.StopTimeID(st.TripID, st.StopSequence)

		if _, found := idx.Trips[st.TripID]; found {
			idx.StopTimesByTrip[st.TripID] = append(idx.StopTimesByTrip[st.TripID], st)
		} else {
			findings = append(findings, dangling(model.EntityStopTime, id, "trip_id", st.TripID))
		}

		if _, found := idx.Stops[st.StopID]; found {
			stopVisited[st.StopID] = true
		} else {
			findings = append(findings, dangling(model.EntityStopTime, id, "stop_id", st.StopID))
		}
	}

	// Orphans. Stations are referenced through their children
	// rather than by stop_times. Unused routes are reported by
	// the route validator.
	for _, s := range stops {
		if stopVisited[s.ID] || idx.Parents[s.ID] {
			continue
		}
		findings = append(findings, model.Warning(
			model.KindOrphan, model.EntityStop, s.ID, "",
			"stop '%s' is not served by any stop_time", s.ID,
		))
	}

	if len(agencies) > 1 {
		for _, a := range agencies {
			if !agencyRouted[a.ID] {
				findings = append(findings, model.Warning(
					model.KindOrphan, model.EntityAgency, a.ID, "",
					"agency '%s' operates no routes", a.ID,
				))
			}
		}
	}

	seenShape := map[string]bool{}
	for _, p := range reader.ShapePoints() {
		if shapeUsed[p.ShapeID] || seenShape[p.ShapeID] {
			continue
		}
		seenShape[p.ShapeID] = true
		findings = append(findings, model.Warning(
			model.KindOrphan, model.EntityShapePoint, p.ShapeID, "",
			"shape '%s' is not used by any trip", p.ShapeID,
		))
	}

	return &Result{
		Index:    idx,
		Findings: findings,
	}
}

func dangling(entityType string, entityID string, field string, target string) model.Finding {
	return model.Fatal(
		model.KindDanglingReference, entityType, entityID, field,
		"%s '%s' references unknown %s '%s'", entityType, entityID, field, target,
	)
}
