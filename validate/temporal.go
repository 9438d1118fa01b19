package validate

import (
	"sort"

	"tidbyt.dev/gtfsfeed/model"
	"tidbyt.dev/gtfsfeed/resolve"
)

// Sequence, timing and service window checks for a single trip.
// stopTimes must be the trip's stop times in declared order.
func ValidateTrip(trip *model.Trip, stopTimes []*model.StopTime, idx *resolve.Index, window Window) []model.Finding {
	findings := []model.Finding{}

	if len(stopTimes) < 2 {
		findings = append(findings, model.Warning(
			model.KindTooFewStopTimes, model.EntityTrip, trip.ID, "",
			"trip '%s' has %d stop_times, at least 2 expected", trip.ID, len(stopTimes),
		))
	}

	for i, st := range stopTimes {
		if i > 0 && st.StopSequence <= stopTimes[i-1].StopSequence {
			findings = append(findings, model.Fatal(
				model.KindNonMonotonicSequence, model.EntityTrip, trip.ID, "stop_sequence",
				"stop_sequence %d follows %d", st.StopSequence, stopTimes[i-1].StopSequence,
			))
		}

		if st.Arrival > st.Departure {
			findings = append(findings, model.Fatal(
				model.KindArrivalAfterDeparture, model.EntityStopTime, model.StopTimeID(st.TripID, st.StopSequence), "arrival_time",
				"arrival_time %s is after departure_time %s", st.Arrival, st.Departure,
			))
		}
	}

	sorted := append([]*model.StopTime(nil), stopTimes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StopSequence < sorted[j].StopSequence
	})
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if prev.Departure > cur.Arrival {
			findings = append(findings, model.Fatal(
				model.KindTimeTravel, model.EntityStopTime, model.StopTimeID(cur.TripID, cur.StopSequence), "arrival_time",
				"arrival_time %s is before departure_time %s at stop_sequence %d",
				cur.Arrival, prev.Departure, prev.StopSequence,
			))
		}
	}

	cal := idx.Calendars[trip.ServiceID]
	if cal == nil || window.IsZero() || cal.StartDate > cal.EndDate {
		return findings
	}
	if !window.Intersects(cal.StartDate, cal.EndDate) {
		findings = append(findings, model.Fatal(
			model.KindServiceOutsideFeedWindow, model.EntityTrip, trip.ID, "service_id",
			"service '%s' (%s-%s) never runs within feed window %s-%s",
			cal.ServiceID, cal.StartDate, cal.EndDate, window.Start, window.End,
		))
	} else if !window.Contains(cal.StartDate, cal.EndDate) {
		findings = append(findings, model.Warning(
			model.KindServicePartiallyOutsideFeedWindow, model.EntityTrip, trip.ID, "service_id",
			"service '%s' (%s-%s) extends beyond feed window %s-%s",
			cal.ServiceID, cal.StartDate, cal.EndDate, window.Start, window.End,
		))
	}

	return findings
}

func ValidateCalendar(cal *model.Calendar, policy Policy) []model.Finding {
	findings := []model.Finding{}

	if cal.StartDate > cal.EndDate {
		findings = append(findings, model.Fatal(
			model.KindCalendarDateInversion, model.EntityCalendar, cal.ServiceID, "start_date",
			"start_date %s is after end_date %s", cal.StartDate, cal.EndDate,
		))
	}

	if cal.Weekday == 0 {
		f := model.Warning(
			model.KindNoActiveWeekday, model.EntityCalendar, cal.ServiceID, "",
			"service '%s' is not active on any day of the week", cal.ServiceID,
		)
		f.Severity = policy.ZeroWeekday
		findings = append(findings, f)
	}

	return findings
}

// Routes are expected to have at least one trip.
func ValidateRoute(route *model.Route, trips []*model.Trip) []model.Finding {
	if len(trips) > 0 {
		return []model.Finding{}
	}
	return []model.Finding{model.Warning(
		model.KindOrphan, model.EntityRoute, route.ID, "",
		"route '%s' has no trips", route.ID,
	)}
}

func ValidateFeedInfo(info *model.FeedInfo) []model.Finding {
	findings := []model.Finding{}

	if info.StartDate != "" && info.EndDate != "" && info.StartDate > info.EndDate {
		findings = append(findings, model.Fatal(
			model.KindCalendarDateInversion, model.EntityFeedInfo, info.PublisherName, "feed_start_date",
			"feed_start_date %s is after feed_end_date %s", info.StartDate, info.EndDate,
		))
	}

	if info.PublisherURL != "" && !ValidURL(info.PublisherURL) {
		findings = append(findings, model.Warning(
			model.KindInvalidURL, model.EntityFeedInfo, info.PublisherName, "feed_publisher_url",
			"feed_publisher_url '%s' is not an absolute http(s) URL", info.PublisherURL,
		))
	}

	return findings
}
