package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Holds all external facing entity types and constants.

type LocationType int8

const (
	LocationTypeStop LocationType = iota
	LocationTypeStation
	LocationTypeEntranceExit
	LocationTypeGenericNode
	LocationTypeBoardingArea
)

type RouteType int

const (
	RouteTypeTram       RouteType = 0
	RouteTypeSubway     RouteType = 1
	RouteTypeRail       RouteType = 2
	RouteTypeBus        RouteType = 3
	RouteTypeFerry      RouteType = 4
	RouteTypeCable      RouteType = 5
	RouteTypeAerial     RouteType = 6
	RouteTypeFunicular  RouteType = 7
	RouteTypeTrolleybus RouteType = 11
	RouteTypeMonorail   RouteType = 12
)

// Valid reports whether t is one of the basic GTFS route types.
func (t RouteType) Valid() bool {
	if t >= RouteTypeTram && t <= RouteTypeFunicular {
		return true
	}
	return t == RouteTypeTrolleybus || t == RouteTypeMonorail
}

type Agency struct {
	ID       string
	Name     string
	URL      string
	Timezone string
	Lang     string
}

type Stop struct {
	ID            string
	Code          string
	Name          string
	Desc          string
	Lat           float64
	Lon           float64
	LocationType  LocationType
	ParentStation string
}

type Route struct {
	ID        string
	AgencyID  string
	ShortName string
	LongName  string
	Desc      string
	Type      RouteType
	URL       string
	Color     string
	TextColor string
}

// Service pattern. Weekday is a bitmask with bit (1 << time.Weekday)
// set for each active day.
type Calendar struct {
	ServiceID string
	StartDate string
	EndDate   string
	Weekday   int8
}

func (c *Calendar) Active(day time.Weekday) bool {
	return c.Weekday&(1<<day) != 0
}

type Trip struct {
	ID          string
	RouteID     string
	ServiceID   string
	Headsign    string
	ShortName   string
	DirectionID int8
	ShapeID     string
}

type StopTime struct {
	TripID       string
	StopID       string
	StopSequence uint32
	Arrival      ServiceTime
	Departure    ServiceTime
	Headsign     string
}

type ShapePoint struct {
	ShapeID  string
	Lat      float64
	Lon      float64
	Sequence uint32
}

type FeedInfo struct {
	PublisherName string
	PublisherURL  string
	Lang          string
	StartDate     string
	EndDate       string
	Version       string
}

// Seconds elapsed since the start of the service day. Values of 24
// hours or more denote trips running past midnight.
type ServiceTime int32

// Parses a GTFS H:MM:SS or HH:MM:SS time. Hours may exceed 23.
func ParseServiceTime(s string) (ServiceTime, error) {
	split := strings.Split(s, ":")
	if len(split) != 3 {
		return 0, fmt.Errorf("found %d parts in '%s'", len(split), s)
	}

	hms := [3]int{}
	for i, str := range split {
		if str == "" || (i > 0 && len(str) != 2) {
			return 0, fmt.Errorf("malformed component in '%s' pos %d", s, i)
		}
		j, err := strconv.Atoi(str)
		if err != nil {
			return 0, fmt.Errorf("non-integer in '%s' pos %d", s, i)
		}
		hms[i] = j
	}

	if hms[0] < 0 || hms[0] > 99 {
		return 0, fmt.Errorf("invalid hour in '%s'", s)
	}
	if hms[1] < 0 || hms[1] > 59 {
		return 0, fmt.Errorf("invalid minute in '%s'", s)
	}
	if hms[2] < 0 || hms[2] > 59 {
		return 0, fmt.Errorf("invalid second in '%s'", s)
	}

	return ServiceTime(hms[0]*3600 + hms[1]*60 + hms[2]), nil
}

func (t ServiceTime) Duration() time.Duration {
	return time.Duration(t) * time.Second
}

// Formats as HH:MM:SS.
func (t ServiceTime) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t/3600, (t/60)%60, t%60)
}

// Layout of GTFS dates.
const DateLayout = "20060102"

// Parses a GTFS YYYYMMDD date.
func ParseDate(s string) (time.Time, error) {
	if len(s) != 8 {
		return time.Time{}, fmt.Errorf("date '%s' is not on form YYYYMMDD", s)
	}
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// Identifies a stop_time in findings.
func StopTimeID(tripID string, stopSequence uint32) string {
	return fmt.Sprintf("%s#%d", tripID, stopSequence)
}

// Identifies a shape point in findings.
func ShapePointID(shapeID string, sequence uint32) string {
	return fmt.Sprintf("%s#%d", shapeID, sequence)
}
