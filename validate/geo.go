package validate

import (
	"sort"

	"tidbyt.dev/gtfsfeed/model"
	"tidbyt.dev/gtfsfeed/storage"
)

// Generic nodes and boarding areas may leave coordinates out, in
// which case they're zero.
func hasCoordinates(stop *model.Stop) bool {
	if stop.LocationType != model.LocationTypeGenericNode && stop.LocationType != model.LocationTypeBoardingArea {
		return true
	}
	return stop.Lat != 0 || stop.Lon != 0
}

func coordinateFindings(entityType, id, latField, lonField string, lat, lon float64) []model.Finding {
	findings := []model.Finding{}
	// Negated so that NaN is out of range.
	if !(lat >= -90 && lat <= 90) {
		findings = append(findings, model.Fatal(
			model.KindInvalidCoordinate, entityType, id, latField,
			"latitude %g is outside [-90, 90]", lat,
		))
	}
	if !(lon >= -180 && lon <= 180) {
		findings = append(findings, model.Fatal(
			model.KindInvalidCoordinate, entityType, id, lonField,
			"longitude %g is outside [-180, 180]", lon,
		))
	}
	return findings
}

// Checks a stop's position. region may be nil to skip the regional
// bounds check.
func ValidateStop(stop *model.Stop, region *BBox) []model.Finding {
	if !hasCoordinates(stop) {
		return []model.Finding{}
	}

	findings := coordinateFindings(model.EntityStop, stop.ID, "stop_lat", "stop_lon", stop.Lat, stop.Lon)
	if len(findings) > 0 {
		return findings
	}

	if stop.Lat == 0 && stop.Lon == 0 {
		return append(findings, model.Warning(
			model.KindNullIsland, model.EntityStop, stop.ID, "",
			"stop is at (0, 0)",
		))
	}

	if region != nil && !region.Contains(stop.Lat, stop.Lon) {
		findings = append(findings, model.Warning(
			model.KindOutsideRegion, model.EntityStop, stop.ID, "",
			"stop at (%g, %g) is outside region [%g, %g]x[%g, %g]",
			stop.Lat, stop.Lon, region.MinLat, region.MaxLat, region.MinLon, region.MaxLon,
		))
	}

	return findings
}

// Flags stops placed implausibly far from their parent station. A
// maxKm of 0 disables the check.
func ValidateStation(stop *model.Stop, parent *model.Stop, maxKm float64) []model.Finding {
	if parent == nil || maxKm <= 0 || !hasCoordinates(stop) || !hasCoordinates(parent) {
		return []model.Finding{}
	}

	dist := storage.HaversineDistance(stop.Lat, stop.Lon, parent.Lat, parent.Lon)
	if dist <= maxKm {
		return []model.Finding{}
	}

	return []model.Finding{model.Warning(
		model.KindParentStationTooFar, model.EntityStop, stop.ID, "parent_station",
		"stop is %.2f km from parent station '%s', more than %g km", dist, parent.ID, maxKm,
	)}
}

// Shortest travel time assumed between consecutive stops. Timetables
// are often rounded to the minute, making zero second hops common.
const minHopSeconds = 60

// Flags consecutive stops of a trip that would require travelling
// faster than maxKmh. A maxKmh of 0 disables the check.
func ValidateTripSpeed(trip *model.Trip, stopTimes []*model.StopTime, stops map[string]*model.Stop, maxKmh float64) []model.Finding {
	findings := []model.Finding{}
	if maxKmh <= 0 {
		return findings
	}

	sorted := append([]*model.StopTime(nil), stopTimes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StopSequence < sorted[j].StopSequence
	})

	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		from, to := stops[prev.StopID], stops[cur.StopID]
		if from == nil || to == nil || !hasCoordinates(from) || !hasCoordinates(to) {
			continue
		}

		seconds := int(cur.Arrival - prev.Departure)
		if seconds < minHopSeconds {
			seconds = minHopSeconds
		}

		dist := storage.HaversineDistance(from.Lat, from.Lon, to.Lat, to.Lon)
		speed := dist / (float64(seconds) / 3600)
		if speed > maxKmh {
			findings = append(findings, model.Warning(
				model.KindImplausibleSpeed, model.EntityStopTime, model.StopTimeID(cur.TripID, cur.StopSequence), "arrival_time",
				"trip '%s' travels %.1f km from '%s' to '%s' at %.0f km/h",
				trip.ID, dist, from.ID, to.ID, speed,
			))
		}
	}

	return findings
}

func ValidateShapePoint(point *model.ShapePoint) []model.Finding {
	return coordinateFindings(
		model.EntityShapePoint, model.ShapePointID(point.ShapeID, point.Sequence),
		"shape_pt_lat", "shape_pt_lon", point.Lat, point.Lon,
	)
}
