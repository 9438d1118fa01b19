package storage

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"tidbyt.dev/gtfsfeed/model"
)

type SQLiteConfig struct {
	OnDisk bool
	Path   string
}

// Exports an assembled feed into a SQLite database, one table per
// GTFS file.
type SQLiteFeedWriter struct {
	db                  *sql.DB
	stopTimeInsertQuery *sql.Stmt
	stopTimeInsertTx    *sql.Tx
}

var sqliteSchema = []struct {
	name  string
	query string
}{
	{"agency", `
CREATE TABLE agency (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    url TEXT NOT NULL,
    timezone TEXT NOT NULL,
    lang TEXT
);`},
	{"stops", `
CREATE TABLE stops (
    id TEXT PRIMARY KEY,
    code TEXT,
    name TEXT NOT NULL,
    description TEXT,
    lat REAL NOT NULL,
    lon REAL NOT NULL,
    location_type INTEGER NOT NULL,
    parent_station TEXT
);
CREATE INDEX stops_parent_station ON stops (parent_station);
`},
	{"routes", `
CREATE TABLE routes (
    id TEXT PRIMARY KEY,
    agency_id TEXT,
    short_name TEXT,
    long_name TEXT,
    description TEXT,
    type INTEGER NOT NULL,
    url TEXT,
    color TEXT,
    text_color TEXT
);`},
	{"calendar", `
CREATE TABLE calendar (
    service_id TEXT PRIMARY KEY,
    start_date TEXT NOT NULL,
    end_date TEXT NOT NULL,
    monday integer NOT NULL,
    tuesday integer NOT NULL,
    wednesday integer NOT NULL,
    thursday integer NOT NULL,
    friday integer NOT NULL,
    saturday integer NOT NULL,
    sunday integer NOT NULL
);`},
	{"trips", `
CREATE TABLE trips (
    id TEXT PRIMARY KEY,
    route_id TEXT NOT NULL,
    service_id TEXT NOT NULL,
    headsign TEXT,
    short_name TEXT,
    direction_id INTEGER,
    shape_id TEXT
);
CREATE INDEX trips_route_id ON trips (route_id);
CREATE INDEX trips_service_id ON trips (service_id);
`},
	{"stop_times", `
CREATE TABLE stop_times (
    trip_id TEXT NOT NULL,
    stop_id TEXT NOT NULL,
    stop_sequence INTEGER NOT NULL,
    arrival_time TEXT NOT NULL,
    departure_time TEXT NOT NULL,
    headsign TEXT,
PRIMARY KEY (trip_id, stop_sequence)
);
CREATE INDEX stop_times_stop_id ON stop_times (stop_id);
`},
	{"shapes", `
CREATE TABLE shapes (
    shape_id TEXT NOT NULL,
    lat REAL NOT NULL,
    lon REAL NOT NULL,
    sequence INTEGER NOT NULL,
PRIMARY KEY (shape_id, sequence)
);`},
	{"feed_info", `
CREATE TABLE feed_info (
    publisher_name TEXT NOT NULL,
    publisher_url TEXT NOT NULL,
    lang TEXT NOT NULL,
    start_date TEXT,
    end_date TEXT,
    version TEXT
);`},
}

// Creates a writer backed by a fresh database. With OnDisk set, any
// existing file at Path is replaced.
func NewSQLiteFeedWriter(cfg ...SQLiteConfig) (*SQLiteFeedWriter, error) {
	sourceName := ":memory:"
	if len(cfg) > 0 && cfg[0].OnDisk {
		sourceName = cfg[0].Path
		// delete file if it exists
		if _, err := os.Stat(sourceName); err == nil {
			err := os.Remove(sourceName)
			if err != nil {
				return nil, fmt.Errorf("removing existing database: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", sourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// An in-memory database lives and dies with its connection.
	db.SetMaxOpenConns(1)

	for _, table := range sqliteSchema {
		_, err = db.Exec(table.query)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("creating %s table: %w", table.name, err)
		}
	}

	return &SQLiteFeedWriter{
		db: db,
	}, nil
}

// Exposes the underlying database, for inspection of the export.
func (f *SQLiteFeedWriter) DB() *sql.DB {
	return f.db
}

func (f *SQLiteFeedWriter) WriteAgency(a *model.Agency) error {
	_, err := f.db.Exec(`
INSERT INTO agency (id, name, url, timezone, lang)
VALUES (?, ?, ?, ?, ?)`,
		a.ID,
		a.Name,
		a.URL,
		a.Timezone,
		a.Lang,
	)
	if err != nil {
		return fmt.Errorf("inserting agency: %w", err)
	}
	return nil
}

func (f *SQLiteFeedWriter) WriteStop(stop *model.Stop) error {
	_, err := f.db.Exec(`
INSERT INTO stops (id, code, name, description, lat, lon, location_type, parent_station)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		stop.ID,
		stop.Code,
		stop.Name,
		stop.Desc,
		stop.Lat,
		stop.Lon,
		stop.LocationType,
		stop.ParentStation,
	)
	if err != nil {
		return fmt.Errorf("inserting stop: %w", err)
	}
	return nil
}

func (f *SQLiteFeedWriter) WriteRoute(route *model.Route) error {
	_, err := f.db.Exec(`
INSERT INTO routes (id, agency_id, short_name, long_name, description, type, url, color, text_color)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		route.ID,
		route.AgencyID,
		route.ShortName,
		route.LongName,
		route.Desc,
		route.Type,
		route.URL,
		route.Color,
		route.TextColor,
	)
	if err != nil {
		return fmt.Errorf("inserting route: %w", err)
	}
	return nil
}

func (f *SQLiteFeedWriter) WriteCalendar(cal *model.Calendar) error {
	d := weekdayFlags(cal.Weekday)
	_, err := f.db.Exec(`
INSERT INTO calendar (service_id, start_date, end_date, monday, tuesday, wednesday, thursday, friday, saturday, sunday)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cal.ServiceID,
		cal.StartDate,
		cal.EndDate,
		d[0], d[1], d[2], d[3], d[4], d[5], d[6],
	)
	if err != nil {
		return fmt.Errorf("inserting calendar: %w", err)
	}
	return nil
}

func (f *SQLiteFeedWriter) BeginTrips() error {
	return nil
}

func (f *SQLiteFeedWriter) WriteTrip(trip *model.Trip) error {
	_, err := f.db.Exec(`
INSERT INTO trips (id, route_id, service_id, headsign, short_name, direction_id, shape_id)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		trip.ID,
		trip.RouteID,
		trip.ServiceID,
		trip.Headsign,
		trip.ShortName,
		trip.DirectionID,
		trip.ShapeID,
	)
	if err != nil {
		return fmt.Errorf("inserting trip: %w", err)
	}
	return nil
}

func (f *SQLiteFeedWriter) EndTrips() error {
	return nil
}

func (f *SQLiteFeedWriter) BeginStopTimes() error {
	// transaction with prepared statement.
	var err error
	f.stopTimeInsertTx, err = f.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning stop_time insert transaction: %w", err)
	}

	f.stopTimeInsertQuery, err = f.stopTimeInsertTx.Prepare(`
INSERT INTO stop_times (trip_id, stop_id, stop_sequence, arrival_time, departure_time, headsign)
VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		f.stopTimeInsertTx.Rollback()
		f.stopTimeInsertTx = nil
		return fmt.Errorf("preparing stop_time insert: %w", err)
	}

	return nil
}

func (f *SQLiteFeedWriter) WriteStopTime(stopTime *model.StopTime) error {
	if f.stopTimeInsertQuery == nil {
		return fmt.Errorf("WriteStopTime called outside BeginStopTimes/EndStopTimes")
	}

	_, err := f.stopTimeInsertQuery.Exec(
		stopTime.TripID,
		stopTime.StopID,
		stopTime.StopSequence,
		stopTime.Arrival.String(),
		stopTime.Departure.String(),
		stopTime.Headsign,
	)
	if err != nil {
		f.stopTimeInsertQuery.Close()
		f.stopTimeInsertTx.Rollback()
		f.stopTimeInsertTx = nil
		f.stopTimeInsertQuery = nil
		return fmt.Errorf("inserting stop_time: %w", err)
	}

	return nil
}

func (f *SQLiteFeedWriter) EndStopTimes() error {
	if f.stopTimeInsertTx == nil {
		return fmt.Errorf("EndStopTimes called without BeginStopTimes")
	}

	// commit transaction and clean up
	f.stopTimeInsertQuery.Close()
	err := f.stopTimeInsertTx.Commit()
	f.stopTimeInsertTx = nil
	f.stopTimeInsertQuery = nil
	if err != nil {
		return fmt.Errorf("committing stop_time insert transaction: %w", err)
	}

	return nil
}

func (f *SQLiteFeedWriter) WriteShapePoint(point *model.ShapePoint) error {
	_, err := f.db.Exec(`
INSERT INTO shapes (shape_id, lat, lon, sequence)
VALUES (?, ?, ?, ?)`,
		point.ShapeID,
		point.Lat,
		point.Lon,
		point.Sequence,
	)
	if err != nil {
		return fmt.Errorf("inserting shape point: %w", err)
	}
	return nil
}

func (f *SQLiteFeedWriter) WriteFeedInfo(info *model.FeedInfo) error {
	_, err := f.db.Exec(`
INSERT INTO feed_info (publisher_name, publisher_url, lang, start_date, end_date, version)
VALUES (?, ?, ?, ?, ?, ?)`,
		info.PublisherName,
		info.PublisherURL,
		info.Lang,
		info.StartDate,
		info.EndDate,
		info.Version,
	)
	if err != nil {
		return fmt.Errorf("inserting feed_info: %w", err)
	}
	return nil
}

func (f *SQLiteFeedWriter) Close() error {
	if f.stopTimeInsertTx != nil {
		f.stopTimeInsertQuery.Close()
		f.stopTimeInsertTx.Rollback()
	}
	return f.db.Close()
}
