package model

import (
	"fmt"
)

type Severity int

const (
	SeverityWarning Severity = iota
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityFatal:
		return "fatal"
	case SeverityWarning:
		return "warning"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	switch string(b) {
	case "fatal":
		*s = SeverityFatal
	case "warning":
		*s = SeverityWarning
	default:
		return fmt.Errorf("unknown severity '%s'", string(b))
	}
	return nil
}

// Kind identifies the rule that produced a Finding.
type Kind string

const (
	// Entity loading
	KindMissingField   Kind = "MissingField"
	KindTypeMismatch   Kind = "TypeMismatch"
	KindDuplicateKey   Kind = "DuplicateKey"
	KindMissingTable   Kind = "MissingTable"
	KindMalformedTable Kind = "MalformedTable"
	KindEmptyTable     Kind = "EmptyTable"

	// Reference resolution
	KindDanglingReference Kind = "DanglingReference"
	KindOrphan            Kind = "Orphan"

	// Temporal and sequence rules
	KindNonMonotonicSequence              Kind = "NonMonotonicSequence"
	KindArrivalAfterDeparture             Kind = "ArrivalAfterDeparture"
	KindTimeTravel                        Kind = "TimeTravel"
	KindTooFewStopTimes                   Kind = "TooFewStopTimes"
	KindServiceOutsideFeedWindow          Kind = "ServiceOutsideFeedWindow"
	KindServicePartiallyOutsideFeedWindow Kind = "ServicePartiallyOutsideFeedWindow"
	KindCalendarDateInversion             Kind = "CalendarDateInversion"
	KindNoActiveWeekday                   Kind = "NoActiveWeekday"

	// Geospatial rules
	KindInvalidCoordinate   Kind = "InvalidCoordinate"
	KindOutsideRegion       Kind = "OutsideRegion"
	KindNullIsland          Kind = "NullIsland"
	KindParentStationTooFar Kind = "ParentStationTooFar"
	KindImplausibleSpeed    Kind = "ImplausibleSpeed"

	// Agency rules
	KindInconsistentTimezone Kind = "InconsistentTimezone"
	KindInvalidURL           Kind = "InvalidURL"
)

// Entity types, named after the GTFS file holding them.
const (
	EntityAgency     = "agency"
	EntityStop       = "stops"
	EntityRoute      = "routes"
	EntityCalendar   = "calendar"
	EntityTrip       = "trips"
	EntityStopTime   = "stop_times"
	EntityShapePoint = "shapes"
	EntityFeedInfo   = "feed_info"
)

// A single validation result.
type Finding struct {
	Severity   Severity `json:"severity"`
	Kind       Kind     `json:"kind"`
	EntityType string   `json:"entity_type"`
	EntityID   string   `json:"entity_id"`
	Field      string   `json:"field,omitempty"`
	Message    string   `json:"message"`
}

func (f Finding) String() string {
	id := f.EntityID
	if f.Field != "" {
		id += "." + f.Field
	}
	return fmt.Sprintf("%s [%s %s] %s: %s", f.Severity, f.EntityType, id, f.Kind, f.Message)
}

func Fatal(kind Kind, entityType, entityID, field, format string, args ...interface{}) Finding {
	return Finding{
		Severity:   SeverityFatal,
		Kind:       kind,
		EntityType: entityType,
		EntityID:   entityID,
		Field:      field,
		Message:    fmt.Sprintf(format, args...),
	}
}

func Warning(kind Kind, entityType, entityID, field, format string, args ...interface{}) Finding {
	return Finding{
		Severity:   SeverityWarning,
		Kind:       kind,
		EntityType: entityType,
		EntityID:   entityID,
		Field:      field,
		Message:    fmt.Sprintf(format, args...),
	}
}

// Accumulates findings across pipeline stages. Not safe for
// concurrent use; parallel stages return slices which are appended
// afterwards.
type Findings struct {
	list []Finding
}

func (fs *Findings) Add(f Finding) {
	fs.list = append(fs.list, f)
}

func (fs *Findings) Extend(list []Finding) {
	fs.list = append(fs.list, list...)
}

func (fs *Findings) List() []Finding {
	out := make([]Finding, len(fs.list))
	copy(out, fs.list)
	return out
}

func (fs *Findings) Len() int {
	return len(fs.list)
}

func (fs *Findings) Count(severity Severity) int {
	n := 0
	for _, f := range fs.list {
		if f.Severity == severity {
			n++
		}
	}
	return n
}

func (fs *Findings) HasFatal() bool {
	return fs.Count(SeverityFatal) > 0
}

// Promotes all warnings to fatal. Returns number of findings
// promoted.
func (fs *Findings) Promote() int {
	n := 0
	for i := range fs.list {
		if fs.list[i].Severity == SeverityWarning {
			fs.list[i].Severity = SeverityFatal
			n++
		}
	}
	return n
}
