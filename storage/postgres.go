package storage

import (
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"tidbyt.dev/gtfsfeed/model"
)

const (
	PSQLTripBatchSize     = 10000
	PSQLStopTimeBatchSize = 5000
)

// Exports an assembled feed into Postgres. Several feeds can share a
// database; every row is keyed by the feed's identifier and any rows
// previously exported under the same identifier are replaced.
//
// The whole export, including removal of the old rows, runs in a
// single transaction committed by Close. If any write failed, Close
// rolls back and the previous export is left untouched.
type PSQLFeedWriter struct {
	id          string
	db          *sql.DB
	tx          *sql.Tx
	err         error
	tripBuf     []model.Trip
	stopTimeBuf []model.StopTime
}

var psqlTables = []struct {
	name  string
	query string
}{
	{"agency", `
CREATE TABLE IF NOT EXISTS agency (
    feed TEXT NOT NULL,
    id TEXT NOT NULL,
    name TEXT NOT NULL,
    url TEXT NOT NULL,
    timezone TEXT NOT NULL,
    lang TEXT,
    PRIMARY KEY(feed, id)
);`},
	{"stops", `
CREATE TABLE IF NOT EXISTS stops (
    feed TEXT NOT NULL,
    id TEXT NOT NULL,
    code TEXT,
    name TEXT NOT NULL,
    description TEXT,
    lat DOUBLE PRECISION NOT NULL,
    lon DOUBLE PRECISION NOT NULL,
    location_type INTEGER NOT NULL,
    parent_station TEXT,
    PRIMARY KEY(feed, id)
);`},
	{"routes", `
CREATE TABLE IF NOT EXISTS routes (
    feed TEXT NOT NULL,
    id TEXT NOT NULL,
    agency_id TEXT,
    short_name TEXT,
    long_name TEXT,
    description TEXT,
    type INTEGER NOT NULL,
    url TEXT,
    color TEXT,
    text_color TEXT,
    PRIMARY KEY(feed, id)
);`},
	{"calendar", `
CREATE TABLE IF NOT EXISTS calendar (
    feed TEXT NOT NULL,
    service_id TEXT NOT NULL,
    start_date TEXT NOT NULL,
    end_date TEXT NOT NULL,
    monday INTEGER NOT NULL,
    tuesday INTEGER NOT NULL,
    wednesday INTEGER NOT NULL,
    thursday INTEGER NOT NULL,
    friday INTEGER NOT NULL,
    saturday INTEGER NOT NULL,
    sunday INTEGER NOT NULL,
    PRIMARY KEY(feed, service_id)
);`},
	{"trips", `
CREATE TABLE IF NOT EXISTS trips (
    feed TEXT NOT NULL,
    id TEXT NOT NULL,
    route_id TEXT NOT NULL,
    service_id TEXT NOT NULL,
    headsign TEXT,
    short_name TEXT,
    direction_id INTEGER,
    shape_id TEXT,
    PRIMARY KEY(feed, id)
);`},
	{"stop_times", `
CREATE TABLE IF NOT EXISTS stop_times (
    feed TEXT NOT NULL,
    trip_id TEXT NOT NULL,
    stop_id TEXT NOT NULL,
    stop_sequence INTEGER NOT NULL,
    arrival_time TEXT NOT NULL,
    departure_time TEXT NOT NULL,
    headsign TEXT,
    PRIMARY KEY(feed, trip_id, stop_sequence)
);
CREATE INDEX IF NOT EXISTS stop_times_stop_id ON stop_times (stop_id);
`},
	{"shapes", `
CREATE TABLE IF NOT EXISTS shapes (
    feed TEXT NOT NULL,
    shape_id TEXT NOT NULL,
    lat DOUBLE PRECISION NOT NULL,
    lon DOUBLE PRECISION NOT NULL,
    sequence INTEGER NOT NULL,
    PRIMARY KEY(feed, shape_id, sequence)
);`},
	{"feed_info", `
CREATE TABLE IF NOT EXISTS feed_info (
    feed TEXT NOT NULL,
    publisher_name TEXT NOT NULL,
    publisher_url TEXT NOT NULL,
    lang TEXT NOT NULL,
    start_date TEXT,
    end_date TEXT,
    version TEXT,
    PRIMARY KEY(feed)
);`},
}

// Creates a Postgres writer using the provided connection string,
// exporting under the given feed identifier.
func NewPSQLFeedWriter(connStr string, feedID string) (*PSQLFeedWriter, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	// Create tables if they don't exist
	for _, table := range psqlTables {
		_, err := db.Exec(table.query)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("creating %s table: %w", table.name, err)
		}
	}

	tx, err := db.Begin()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("starting transaction: %w", err)
	}

	// In case feed already exists, delete all records
	for _, table := range psqlTables {
		_, err := tx.Exec(`DELETE FROM `+table.name+` WHERE feed = $1`, feedID)
		if err != nil {
			tx.Rollback()
			db.Close()
			return nil, fmt.Errorf("deleting %s records: %w", table.name, err)
		}
	}

	return &PSQLFeedWriter{
		id: feedID,
		db: db,
		tx: tx,
	}, nil
}

// Records the first failure, so that Close knows to roll back.
func (w *PSQLFeedWriter) fail(err error) error {
	if err != nil && w.err == nil {
		w.err = err
	}
	return err
}

func (w *PSQLFeedWriter) WriteAgency(a *model.Agency) error {
	_, err := w.tx.Exec(`
INSERT INTO agency (feed, id, name, url, timezone, lang)
VALUES ($1, $2, $3, $4, $5, $6)`,
		w.id,
		a.ID,
		a.Name,
		a.URL,
		a.Timezone,
		a.Lang,
	)
	if err != nil {
		return w.fail(fmt.Errorf("inserting agency: %w", err))
	}
	return nil
}

func (w *PSQLFeedWriter) WriteStop(stop *model.Stop) error {
	var parentStation sql.NullString
	if stop.ParentStation != "" {
		parentStation = sql.NullString{
			String: stop.ParentStation,
			Valid:  true,
		}
	}
	_, err := w.tx.Exec(`
INSERT INTO stops (feed, id, code, name, description, lat, lon, location_type, parent_station)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		w.id,
		stop.ID,
		stop.Code,
		stop.Name,
		stop.Desc,
		stop.Lat,
		stop.Lon,
		stop.LocationType,
		parentStation,
	)
	if err != nil {
		return w.fail(fmt.Errorf("inserting stop: %w", err))
	}
	return nil
}

func (w *PSQLFeedWriter) WriteRoute(route *model.Route) error {
	_, err := w.tx.Exec(`
INSERT INTO routes (feed, id, agency_id, short_name, long_name, description, type, url, color, text_color)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		w.id,
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
		return w.fail(fmt.Errorf("inserting route: %w", err))
	}
	return nil
}

func (w *PSQLFeedWriter) WriteCalendar(cal *model.Calendar) error {
	d := weekdayFlags(cal.Weekday)
	_, err := w.tx.Exec(`
INSERT INTO calendar (feed, service_id, start_date, end_date, monday, tuesday, wednesday, thursday, friday, saturday, sunday)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		w.id,
		cal.ServiceID,
		cal.StartDate,
		cal.EndDate,
		d[0], d[1], d[2], d[3], d[4], d[5], d[6],
	)
	if err != nil {
		return w.fail(fmt.Errorf("inserting calendar: %w", err))
	}
	return nil
}

func (w *PSQLFeedWriter) BeginTrips() error {
	return nil
}

func (w *PSQLFeedWriter) WriteTrip(trip *model.Trip) error {
	w.tripBuf = append(w.tripBuf, *trip)

	if len(w.tripBuf) >= PSQLTripBatchSize {
		err := w.flushTrips()
		if err != nil {
			return w.fail(fmt.Errorf("flushing trips: %w", err))
		}
	}

	return nil
}

func (w *PSQLFeedWriter) EndTrips() error {
	if len(w.tripBuf) > 0 {
		err := w.flushTrips()
		if err != nil {
			return w.fail(fmt.Errorf("flushing trips: %w", err))
		}
	}
	return nil
}

func (w *PSQLFeedWriter) flushTrips() error {
	stmt, err := w.tx.Prepare(pq.CopyIn(
		"trips", "feed", "id", "route_id", "service_id", "headsign", "short_name", "direction_id", "shape_id",
	))
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, trip := range w.tripBuf {
		_, err = stmt.Exec(
			w.id, trip.ID, trip.RouteID, trip.ServiceID, trip.Headsign, trip.ShortName, trip.DirectionID, trip.ShapeID,
		)
		if err != nil {
			return fmt.Errorf("COPY trip: %w", err)
		}
	}

	_, err = stmt.Exec()
	if err != nil {
		return fmt.Errorf("executing statement: %w", err)
	}

	w.tripBuf = nil

	return nil
}

func (w *PSQLFeedWriter) BeginStopTimes() error {
	return nil
}

func (w *PSQLFeedWriter) WriteStopTime(stopTime *model.StopTime) error {
	w.stopTimeBuf = append(w.stopTimeBuf, *stopTime)

	if len(w.stopTimeBuf) >= PSQLStopTimeBatchSize {
		err := w.flushStopTimes()
		if err != nil {
			return w.fail(fmt.Errorf("flushing stop_times: %w", err))
		}
	}

	return nil
}

func (w *PSQLFeedWriter) EndStopTimes() error {
	if len(w.stopTimeBuf) > 0 {
		err := w.flushStopTimes()
		if err != nil {
			return w.fail(fmt.Errorf("flushing stop_times: %w", err))
		}
	}
	return nil
}

func (w *PSQLFeedWriter) flushStopTimes() error {
	stmt, err := w.tx.Prepare(pq.CopyIn(
		"stop_times", "feed", "trip_id", "stop_id", "stop_sequence", "arrival_time", "departure_time", "headsign",
	))
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, stopTime := range w.stopTimeBuf {
		_, err = stmt.Exec(
			w.id,
			stopTime.TripID,
			stopTime.StopID,
			stopTime.StopSequence,
			stopTime.Arrival.String(),
			stopTime.Departure.String(),
			stopTime.Headsign,
		)
		if err != nil {
			return fmt.Errorf("COPY stop_time: %w", err)
		}
	}

	_, err = stmt.Exec()
	if err != nil {
		return fmt.Errorf("executing statement: %w", err)
	}

	w.stopTimeBuf = nil

	return nil
}

func (w *PSQLFeedWriter) WriteShapePoint(point *model.ShapePoint) error {
	_, err := w.tx.Exec(`
INSERT INTO shapes (feed, shape_id, lat, lon, sequence)
VALUES ($1, $2, $3, $4, $5)`,
		w.id,
		point.ShapeID,
		point.Lat,
		point.Lon,
		point.Sequence,
	)
	if err != nil {
		return w.fail(fmt.Errorf("inserting shape point: %w", err))
	}
	return nil
}

func (w *PSQLFeedWriter) WriteFeedInfo(info *model.FeedInfo) error {
	_, err := w.tx.Exec(`
INSERT INTO feed_info (feed, publisher_name, publisher_url, lang, start_date, end_date, version)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		w.id,
		info.PublisherName,
		info.PublisherURL,
		info.Lang,
		info.StartDate,
		info.EndDate,
		info.Version,
	)
	if err != nil {
		return w.fail(fmt.Errorf("inserting feed_info: %w", err))
	}
	return nil
}

func (w *PSQLFeedWriter) Close() error {
	if w.err != nil {
		w.tx.Rollback()
		w.db.Close()
		return fmt.Errorf("rolled back export of '%s': %w", w.id, w.err)
	}

	if err := w.tx.Commit(); err != nil {
		w.db.Close()
		return fmt.Errorf("committing: %w", err)
	}

	_, err := w.db.Exec(`ANALYZE`)
	if err != nil {
		w.db.Close()
		return fmt.Errorf("analyzing: %w", err)
	}
	if err := w.db.Close(); err != nil {
		return fmt.Errorf("failed to close db: %w", err)
	}
	return nil
}
