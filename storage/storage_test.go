package storage_test

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/gtfsfeed/model"
	"tidbyt.dev/gtfsfeed/storage"
	"tidbyt.dev/gtfsfeed/testutil"
)

// Tests of the FeedWriter implementations. The in-memory and sqlite
// implementations are always run, while postgres requires
// testutil.PostgresConnStr to be set.

func writeSample(t *testing.T, w storage.FeedWriter) {
	require.NoError(t, w.WriteAgency(&model.Agency{ID: "ctm", Name: "CTM", URL: "https://ctm.ma", Timezone: "Africa/Casablanca", Lang: "ar"}))
	require.NoError(t, w.WriteStop(&model.Stop{ID: "fes", Name: "Fès", Lat: 34.0461, Lon: -4.999, LocationType: model.LocationTypeStation}))
	require.NoError(t, w.WriteStop(&model.Stop{ID: "fes_q1", Code: "Q1", Name: "Fès, quai 1", Desc: "Gare routière", Lat: 34.0462, Lon: -4.9991, ParentStation: "fes"}))
	require.NoError(t, w.WriteStop(&model.Stop{ID: "oujda", Name: "Oujda", Lat: 34.6765, Lon: -1.9095}))
	require.NoError(t, w.WriteRoute(&model.Route{ID: "fo", AgencyID: "ctm", ShortName: "FO", LongName: "Fès - Oujda", Type: model.RouteTypeBus, Color: "FFCC00"}))
	require.NoError(t, w.WriteCalendar(&model.Calendar{ServiceID: "daily", StartDate: "20240101", EndDate: "20241231", Weekday: 0x7f}))
	require.NoError(t, w.BeginTrips())
	require.NoError(t, w.WriteTrip(&model.Trip{ID: "fo1", RouteID: "fo", ServiceID: "daily", Headsign: "Oujda", DirectionID: 1}))
	require.NoError(t, w.EndTrips())
	require.NoError(t, w.BeginStopTimes())
	require.NoError(t, w.WriteStopTime(&model.StopTime{TripID: "fo1", StopID: "fes_q1", StopSequence: 1, Arrival: 22 * 3600, Departure: 22*3600 + 600}))
	require.NoError(t, w.WriteStopTime(&model.StopTime{TripID: "fo1", StopID: "oujda", StopSequence: 2, Arrival: 27*3600 + 1800, Departure: 27*3600 + 1800}))
	require.NoError(t, w.EndStopTimes())
	require.NoError(t, w.WriteShapePoint(&model.ShapePoint{ShapeID: "s", Lat: 34.0462, Lon: -4.9991, Sequence: 1}))
	require.NoError(t, w.WriteFeedInfo(&model.FeedInfo{PublisherName: "CTM", PublisherURL: "https://ctm.ma", Lang: "ar", StartDate: "20240101", EndDate: "20241231", Version: "v1"}))
}

func countRows(t *testing.T, db *sql.DB, where string, args ...interface{}) map[string]int {
	counts := map[string]int{}
	for _, table := range []string{"agency", "stops", "routes", "calendar", "trips", "stop_times", "shapes", "feed_info"} {
		var n int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table+where, args...).Scan(&n))
		counts[table] = n
	}
	return counts
}

var sampleCounts = map[string]int{
	"agency":     1,
	"stops":      3,
	"routes":     1,
	"calendar":   1,
	"trips":      1,
	"stop_times": 2,
	"shapes":     1,
	"feed_info":  1,
}

func TestMemoryStore(t *testing.T) {
	s := storage.NewMemoryStore()

	// Empty collections are nil
	assert.Nil(t, s.Agencies())
	assert.Nil(t, s.StopTimes())
	assert.Nil(t, s.FeedInfo())

	writeSample(t, s)

	stops := []string{}
	for _, stop := range s.Stops() {
		stops = append(stops, stop.ID)
	}
	assert.Equal(t, []string{"fes", "fes_q1", "oujda"}, stops)
	assert.Equal(t, 1, len(s.Agencies()))
	assert.Equal(t, 1, len(s.Routes()))
	assert.Equal(t, 1, len(s.Calendars()))
	assert.Equal(t, 1, len(s.Trips()))
	assert.Equal(t, 2, len(s.StopTimes()))
	assert.Equal(t, 1, len(s.ShapePoints()))
	assert.Equal(t, "v1", s.FeedInfo().Version)
	assert.Equal(t, model.ServiceTime(27*3600+1800), s.StopTimes()[1].Arrival)

	// Callers get copies of the collections
	list := s.Stops()
	list[0] = nil
	assert.NotNil(t, s.Stops()[0])
}

func TestMemoryStoreDuplicateKey(t *testing.T) {
	s := storage.NewMemoryStore()
	writeSample(t, s)

	for _, tc := range []struct {
		name  string
		write func() error
	}{
		{"agency", func() error { return s.WriteAgency(&model.Agency{ID: "ctm"}) }},
		{"stop", func() error { return s.WriteStop(&model.Stop{ID: "oujda"}) }},
		{"route", func() error { return s.WriteRoute(&model.Route{ID: "fo"}) }},
		{"calendar", func() error { return s.WriteCalendar(&model.Calendar{ServiceID: "daily"}) }},
		{"trip", func() error { return s.WriteTrip(&model.Trip{ID: "fo1"}) }},
		{"stop_time", func() error { return s.WriteStopTime(&model.StopTime{TripID: "fo1", StopSequence: 2}) }},
		{"shape_point", func() error { return s.WriteShapePoint(&model.ShapePoint{ShapeID: "s", Sequence: 1}) }},
		{"feed_info", func() error { return s.WriteFeedInfo(&model.FeedInfo{}) }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.write()
			require.Error(t, err)
			assert.True(t, errors.Is(err, storage.ErrDuplicateKey))
		})
	}

	// Nothing was added
	assert.Equal(t, 3, len(s.Stops()))
	assert.Equal(t, 2, len(s.StopTimes()))
	assert.Equal(t, "v1", s.FeedInfo().Version)

	// Same sequence on another trip is fine
	assert.NoError(t, s.WriteStopTime(&model.StopTime{TripID: "fo2", StopSequence: 2}))
	assert.NoError(t, s.WriteShapePoint(&model.ShapePoint{ShapeID: "s2", Sequence: 1}))
}

func TestSQLiteFeedWriter(t *testing.T) {
	w, err := storage.NewSQLiteFeedWriter()
	require.NoError(t, err)
	defer w.Close()

	writeSample(t, w)
	assert.Equal(t, sampleCounts, countRows(t, w.DB(), ""))

	var name, desc, parent string
	var locationType int
	require.NoError(t, w.DB().QueryRow(
		"SELECT name, description, parent_station, location_type FROM stops WHERE id = ?", "fes_q1",
	).Scan(&name, &desc, &parent, &locationType))
	assert.Equal(t, "Fès, quai 1", name)
	assert.Equal(t, "Gare routière", desc)
	assert.Equal(t, "fes", parent)
	assert.Equal(t, 0, locationType)

	var arrival, departure string
	require.NoError(t, w.DB().QueryRow(
		"SELECT arrival_time, departure_time FROM stop_times WHERE trip_id = ? AND stop_sequence = ?", "fo1", 2,
	).Scan(&arrival, &departure))
	assert.Equal(t, "27:30:00", arrival)
	assert.Equal(t, "27:30:00", departure)

	var monday, sunday int
	require.NoError(t, w.DB().QueryRow("SELECT monday, sunday FROM calendar").Scan(&monday, &sunday))
	assert.Equal(t, 1, monday)
	assert.Equal(t, 1, sunday)
}

func TestSQLiteFeedWriterStopTimeOutsideTransaction(t *testing.T) {
	w, err := storage.NewSQLiteFeedWriter()
	require.NoError(t, err)
	defer w.Close()

	assert.Error(t, w.WriteStopTime(&model.StopTime{TripID: "t", StopID: "s"}))
	assert.Error(t, w.EndStopTimes())

	// A failed insert aborts the batch
	require.NoError(t, w.BeginStopTimes())
	require.NoError(t, w.WriteStopTime(&model.StopTime{TripID: "t", StopID: "s", StopSequence: 1}))
	assert.Error(t, w.WriteStopTime(&model.StopTime{TripID: "t", StopID: "s", StopSequence: 1}))
	assert.Error(t, w.EndStopTimes())

	var n int
	require.NoError(t, w.DB().QueryRow("SELECT COUNT(*) FROM stop_times").Scan(&n))
	assert.Equal(t, 0, n)
}

func TestSQLiteFeedWriterOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.db")

	w, err := storage.NewSQLiteFeedWriter(storage.SQLiteConfig{OnDisk: true, Path: path})
	require.NoError(t, err)
	writeSample(t, w)
	require.NoError(t, w.Close())

	_, err = os.Stat(path)
	require.NoError(t, err)

	// Exporting again replaces the database
	w, err = storage.NewSQLiteFeedWriter(storage.SQLiteConfig{OnDisk: true, Path: path})
	require.NoError(t, err)
	writeSample(t, w)
	assert.Equal(t, sampleCounts, countRows(t, w.DB(), ""))
	require.NoError(t, w.Close())
}

func TestPSQLFeedWriter(t *testing.T) {
	if testutil.PostgresConnStr == "" {
		t.Skip("GTFSFEED_TEST_POSTGRES not set")
	}

	for i := 0; i < 2; i++ {
		w, err := storage.NewPSQLFeedWriter(testutil.PostgresConnStr, "storage-test")
		require.NoError(t, err)
		writeSample(t, w)
		require.NoError(t, w.Close())
	}

	db, err := sql.Open("postgres", testutil.PostgresConnStr)
	require.NoError(t, err)
	defer db.Close()

	// Second export replaced the first
	assert.Equal(t, sampleCounts, countRows(t, db, " WHERE feed = $1", "storage-test"))

	var arrival string
	require.NoError(t, db.QueryRow(
		"SELECT arrival_time FROM stop_times WHERE feed = $1 AND stop_sequence = 2", "storage-test",
	).Scan(&arrival))
	assert.Equal(t, "27:30:00", arrival)
}

func TestPSQLFeedWriterRollback(t *testing.T) {
	if testutil.PostgresConnStr == "" {
		t.Skip("GTFSFEED_TEST_POSTGRES not set")
	}

	w, err := storage.NewPSQLFeedWriter(testutil.PostgresConnStr, "storage-rollback")
	require.NoError(t, err)
	writeSample(t, w)
	require.NoError(t, w.Close())

	// Second export fails halfway through
	w, err = storage.NewPSQLFeedWriter(testutil.PostgresConnStr, "storage-rollback")
	require.NoError(t, err)
	require.NoError(t, w.WriteAgency(&model.Agency{ID: "ctm", Name: "CTM", URL: "https://ctm.ma", Timezone: "Africa/Casablanca"}))
	assert.Error(t, w.WriteAgency(&model.Agency{ID: "ctm", Name: "CTM", URL: "https://ctm.ma", Timezone: "Africa/Casablanca"}))
	assert.Error(t, w.Close())

	db, err := sql.Open("postgres", testutil.PostgresConnStr)
	require.NoError(t, err)
	defer db.Close()

	// First export is intact
	assert.Equal(t, sampleCounts, countRows(t, db, " WHERE feed = $1", "storage-rollback"))
}
