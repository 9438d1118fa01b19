package storage

import (
	"fmt"

	"tidbyt.dev/gtfsfeed/model"
)

// In memory, insertion ordered, implementation of FeedWriter and
// FeedReader. This is the entity store all validation runs against.
//
// Each collection is append-only. Primary keys are tracked per table
// and a repeated key is rejected with ErrDuplicateKey, leaving the
// store unchanged.

type stopTimeKey struct {
	TripID       string
	StopSequence uint32
}

type shapePointKey struct {
	ShapeID  string
	Sequence uint32
}

type MemoryStore struct {
	agencies    []*model.Agency
	stops       []*model.Stop
	routes      []*model.Route
	calendars   []*model.Calendar
	trips       []*model.Trip
	stopTimes   []*model.StopTime
	shapePoints []*model.ShapePoint
	feedInfo    *model.FeedInfo

	agencyKeys    map[string]bool
	stopKeys      map[string]bool
	routeKeys     map[string]bool
	calendarKeys  map[string]bool
	tripKeys      map[string]bool
	stopTimeKeys  map[stopTimeKey]bool
	shapePointKey map[shapePointKey]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		agencyKeys:    map[string]bool{},
		stopKeys:      map[string]bool{},
		routeKeys:     map[string]bool{},
		calendarKeys:  map[string]bool{},
		tripKeys:      map[string]bool{},
		stopTimeKeys:  map[stopTimeKey]bool{},
		shapePointKey: map[shapePointKey]bool{},
	}
}

func (s *MemoryStore) WriteAgency(agency *model.Agency) error {
	if s.agencyKeys[agency.ID] {
		return fmt.Errorf("agency_id '%s': %w", agency.ID, ErrDuplicateKey)
	}
	s.agencyKeys[agency.ID] = true
	s.agencies = append(s.agencies, agency)
	return nil
}

func (s *MemoryStore) WriteStop(stop *model.Stop) error {
	if s.stopKeys[stop.ID] {
		return fmt.Errorf("stop_id '%s': %w", stop.ID, ErrDuplicateKey)
	}
	s.stopKeys[stop.ID] = true
	s.stops = append(s.stops, stop)
	return nil
}

func (s *MemoryStore) WriteRoute(route *model.Route) error {
	if s.routeKeys[route.ID] {
		return fmt.Errorf("route_id '%s': %w", route.ID, ErrDuplicateKey)
	}
	s.routeKeys[route.ID] = true
	s.routes = append(s.routes, route)
	return nil
}

func (s *MemoryStore) WriteCalendar(cal *model.Calendar) error {
	if s.calendarKeys[cal.ServiceID] {
		return fmt.Errorf("service_id '%s': %w", cal.ServiceID, ErrDuplicateKey)
	}
	s.calendarKeys[cal.ServiceID] = true
	s.calendars = append(s.calendars, cal)
	return nil
}

func (s *MemoryStore) BeginTrips() error {
	return nil
}

func (s *MemoryStore) WriteTrip(trip *model.Trip) error {
	if s.tripKeys[trip.ID] {
		return fmt.Errorf("trip_id '%s': %w", trip.ID, ErrDuplicateKey)
	}
	s.tripKeys[trip.ID] = true
	s.trips = append(s.trips, trip)
	return nil
}

func (s *MemoryStore) EndTrips() error {
	return nil
}

func (s *MemoryStore) BeginStopTimes() error {
	return nil
}

func (s *MemoryStore) WriteStopTime(stopTime *model.StopTime) error {
	key := stopTimeKey{stopTime.TripID, stopTime.StopSequence}
	if s.stopTimeKeys[key] {
		return fmt.Errorf(
			"stop_sequence %d for trip_id '%s': %w",
			stopTime.StopSequence, stopTime.TripID, ErrDuplicateKey,
		)
	}
	s.stopTimeKeys[key] = true
	s.stopTimes = append(s.stopTimes, stopTime)
	return nil
}

func (s *MemoryStore) EndStopTimes() error {
	return nil
}

func (s *MemoryStore) WriteShapePoint(point *model.ShapePoint) error {
	key := shapePointKey{point.ShapeID, point.Sequence}
	if s.shapePointKey[key] {
		return fmt.Errorf(
			"shape_pt_sequence %d for shape_id '%s': %w",
			point.Sequence, point.ShapeID, ErrDuplicateKey,
		)
	}
	s.shapePointKey[key] = true
	s.shapePoints = append(s.shapePoints, point)
	return nil
}

func (s *MemoryStore) WriteFeedInfo(info *model.FeedInfo) error {
	if s.feedInfo != nil {
		return fmt.Errorf("feed_info: %w", ErrDuplicateKey)
	}
	s.feedInfo = info
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) Agencies() []*model.Agency {
	return append([]*model.Agency(nil), s.agencies...)
}

func (s *MemoryStore) Stops() []*model.Stop {
	return append([]*model.Stop(nil), s.stops...)
}

func (s *MemoryStore) Routes() []*model.Route {
	return append([]*model.Route(nil), s.routes...)
}

func (s *MemoryStore) Calendars() []*model.Calendar {
	return append([]*model.Calendar(nil), s.calendars...)
}

func (s *MemoryStore) Trips() []*model.Trip {
	return append([]*model.Trip(nil), s.trips...)
}

func (s *MemoryStore) StopTimes() []*model.StopTime {
	return append([]*model.StopTime(nil), s.stopTimes...)
}

func (s *MemoryStore) ShapePoints() []*model.ShapePoint {
	return append([]*model.ShapePoint(nil), s.shapePoints...)
}

func (s *MemoryStore) FeedInfo() *model.FeedInfo {
	return s.feedInfo
}
