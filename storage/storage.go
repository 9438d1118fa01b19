package storage

import (
	"errors"

	"tidbyt.dev/gtfsfeed/model"
)

// Returned by MemoryStore when a record's primary key has already been
// written.
var ErrDuplicateKey = errors.New("duplicate key")

// Writes GTFS records for a single feed.
//
// As stop_times.txt tends to be very large, BeginStopTimes() and
// EndStopTimes() are called before and after all calls to
// WriteStopTime(), allowing transactions/batching/whathaveyou. Same
// goes for trips.
type FeedWriter interface {
	WriteAgency(agency *model.Agency) error
	WriteStop(stop *model.Stop) error
	WriteRoute(route *model.Route) error
	WriteCalendar(cal *model.Calendar) error
	BeginTrips() error
	WriteTrip(trip *model.Trip) error
	EndTrips() error
	BeginStopTimes() error
	WriteStopTime(stopTime *model.StopTime) error
	EndStopTimes() error
	WriteShapePoint(point *model.ShapePoint) error
	WriteFeedInfo(info *model.FeedInfo) error
	Close() error
}

// Read access to a fully loaded feed. All collections are returned in
// the order records were written.
type FeedReader interface {
	Agencies() []*model.Agency
	Stops() []*model.Stop
	Routes() []*model.Route
	Calendars() []*model.Calendar
	Trips() []*model.Trip
	StopTimes() []*model.StopTime
	ShapePoints() []*model.ShapePoint

	// Nil if feed_info.txt was absent.
	FeedInfo() *model.FeedInfo
}
