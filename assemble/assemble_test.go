package assemble

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/gtfsfeed/model"
	"tidbyt.dev/gtfsfeed/parse"
	"tidbyt.dev/gtfsfeed/storage"
	"tidbyt.dev/gtfsfeed/validate"
)

func buildStore(t *testing.T) *storage.MemoryStore {
	s := storage.NewMemoryStore()
	require.NoError(t, s.WriteAgency(&model.Agency{ID: "oncf", Name: "ONCF", URL: "http://www.oncf.ma", Timezone: "Africa/Casablanca", Lang: "fr"}))
	require.NoError(t, s.WriteStop(&model.Stop{ID: "rabat", Name: "Rabat Ville", Lat: 34.0154, Lon: -6.8369, LocationType: model.LocationTypeStation}))
	require.NoError(t, s.WriteStop(&model.Stop{ID: "rabat_1", Name: "Rabat Ville, voie 1", Lat: 34.0155, Lon: -6.837, ParentStation: "rabat"}))
	require.NoError(t, s.WriteStop(&model.Stop{ID: "casa", Code: "CV", Name: "Casa Voyageurs", Desc: "Gare", Lat: 33.5895, Lon: -7.5908}))
	require.NoError(t, s.WriteStop(&model.Stop{ID: "node", LocationType: model.LocationTypeGenericNode, ParentStation: "rabat"}))
	require.NoError(t, s.WriteRoute(&model.Route{ID: "al_boraq", AgencyID: "oncf", ShortName: "AB", LongName: "Al Boraq", Type: model.RouteTypeRail, Color: "E30613", TextColor: "FFFFFF"}))
	require.NoError(t, s.WriteCalendar(&model.Calendar{ServiceID: "wd", StartDate: "20240101", EndDate: "20241231", Weekday: 0x3e}))
	require.NoError(t, s.WriteCalendar(&model.Calendar{ServiceID: "we", StartDate: "20240106", EndDate: "20250105", Weekday: 0x41}))
	require.NoError(t, s.WriteCalendar(&model.Calendar{ServiceID: "unused", StartDate: "20200101", EndDate: "20301231", Weekday: 0x7f}))
	require.NoError(t, s.WriteTrip(&model.Trip{ID: "t1", RouteID: "al_boraq", ServiceID: "wd", Headsign: "Casa Voyageurs", DirectionID: 1, ShapeID: "sh"}))
	require.NoError(t, s.WriteTrip(&model.Trip{ID: "t2", RouteID: "al_boraq", ServiceID: "we"}))
	for _, st := range []*model.StopTime{
		{TripID: "t1", StopID: "rabat_1", StopSequence: 1, Arrival: 8 * 3600, Departure: 8*3600 + 300},
		{TripID: "t1", StopID: "casa", StopSequence: 2, Arrival: 9 * 3600, Departure: 9 * 3600, Headsign: "Terminus"},
		{TripID: "t2", StopID: "rabat_1", StopSequence: 1, Arrival: 23 * 3600, Departure: 23 * 3600},
		{TripID: "t2", StopID: "casa", StopSequence: 2, Arrival: 24*3600 + 900, Departure: 24*3600 + 900},
	} {
		require.NoError(t, s.WriteStopTime(st))
	}
	require.NoError(t, s.WriteShapePoint(&model.ShapePoint{ShapeID: "sh", Lat: 34.0155, Lon: -6.837, Sequence: 1}))
	require.NoError(t, s.WriteShapePoint(&model.ShapePoint{ShapeID: "sh", Lat: 33.5895, Lon: -7.5908, Sequence: 2}))
	return s
}

func fileMap(feed *Feed) map[string]string {
	out := map[string]string{}
	for _, f := range feed.Files() {
		out[f.Name] = string(f.Data)
	}
	return out
}

func TestAssembleBlocked(t *testing.T) {
	s := buildStore(t)
	findings := []model.Finding{
		model.Warning(model.KindOrphan, model.EntityStop, "x", "", "orphan"),
		model.Fatal(model.KindDanglingReference, model.EntityTrip, "t", "route_id", "dangling"),
		model.Fatal(model.KindTimeTravel, model.EntityStopTime, "t#2", "arrival_time", "time travel"),
	}

	feed, err := Assemble(s, findings, Options{})
	assert.Nil(t, feed)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAssemblyBlocked))

	var blocked *BlockedError
	require.True(t, errors.As(err, &blocked))
	assert.Equal(t, 2, blocked.Fatal)
	assert.Equal(t, model.KindDanglingReference, blocked.First.Kind)
}

func TestAssembleWarningsDoNotBlock(t *testing.T) {
	feed, err := Assemble(buildStore(t), []model.Finding{
		model.Warning(model.KindOutsideRegion, model.EntityStop, "casa", "", "outside"),
	}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 4, len(feed.Stops))
}

func TestAssembleTables(t *testing.T) {
	feed, err := Assemble(buildStore(t), nil, Options{Version: "v1"})
	require.NoError(t, err)

	names := []string{}
	for _, f := range feed.Files() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{
		"agency.txt",
		"stops.txt",
		"routes.txt",
		"calendar.txt",
		"trips.txt",
		"stop_times.txt",
		"shapes.txt",
		"feed_info.txt",
	}, names)

	files := fileMap(feed)
	assert.Equal(t, "agency_id,agency_name,agency_url,agency_timezone,agency_lang\n"+
		"oncf,ONCF,http://www.oncf.ma,Africa/Casablanca,fr\n", files["agency.txt"])
	assert.Equal(t, "service_id,start_date,end_date,monday,tuesday,wednesday,thursday,friday,saturday,sunday\n"+
		"wd,20240101,20241231,1,1,1,1,1,0,0\n"+
		"we,20240106,20250105,0,0,0,0,0,1,1\n"+
		"unused,20200101,20301231,1,1,1,1,1,1,1\n", files["calendar.txt"])
	assert.Equal(t, "trip_id,stop_id,stop_sequence,arrival_time,departure_time,stop_headsign\n"+
		"t1,rabat_1,1,08:00:00,08:05:00,\n"+
		"t1,casa,2,09:00:00,09:00:00,Terminus\n"+
		"t2,rabat_1,1,23:00:00,23:00:00,\n"+
		"t2,casa,2,24:15:00,24:15:00,\n", files["stop_times.txt"])
	assert.Contains(t, files["stops.txt"], "casa,CV,Casa Voyageurs,Gare,33.5895,-7.5908,0,\n")
	assert.Contains(t, files["stops.txt"], "node,,,,,,3,rabat\n")
}

func TestAssembleWithoutShapes(t *testing.T) {
	s := storage.NewMemoryStore()
	require.NoError(t, s.WriteAgency(&model.Agency{ID: "a", Name: "A", URL: "http://a.example.com", Timezone: "UTC"}))

	feed, err := Assemble(s, nil, Options{})
	require.NoError(t, err)
	assert.NotContains(t, fileMap(feed), "shapes.txt")
}

func TestAssembleNoAgency(t *testing.T) {
	_, err := Assemble(storage.NewMemoryStore(), nil, Options{})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrAssemblyBlocked))
}

func TestAssembleSynthesizesFeedInfo(t *testing.T) {
	feed, err := Assemble(buildStore(t), nil, Options{})
	require.NoError(t, err)

	// Range of calendars in use, ignoring "unused"
	assert.Equal(t, "ONCF", feed.FeedInfo.PublisherName)
	assert.Equal(t, "http://www.oncf.ma", feed.FeedInfo.PublisherURL)
	assert.Equal(t, "fr", feed.FeedInfo.Lang)
	assert.Equal(t, "20240101", feed.FeedInfo.StartDate)
	assert.Equal(t, "20250105", feed.FeedInfo.EndDate)
	assert.Equal(t, 16, len(feed.FeedInfo.Version))

	// Version is a function of content
	again, err := Assemble(buildStore(t), nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, feed.FeedInfo.Version, again.FeedInfo.Version)

	s := buildStore(t)
	require.NoError(t, s.WriteStop(&model.Stop{ID: "extra", Name: "Extra", Lat: 33, Lon: -7}))
	other, err := Assemble(s, nil, Options{})
	require.NoError(t, err)
	assert.NotEqual(t, feed.FeedInfo.Version, other.FeedInfo.Version)
}

func TestAssembleSynthesizedFeedInfoInvalidURL(t *testing.T) {
	s := storage.NewMemoryStore()
	require.NoError(t, s.WriteAgency(&model.Agency{ID: "oncf", Name: "ONCF", URL: "www.oncf.ma", Timezone: "Africa/Casablanca", Lang: "fr"}))

	feed, err := Assemble(s, nil, Options{})
	require.NoError(t, err)

	// Kept for the report, but not written
	require.NotNil(t, feed.FeedInfo)
	assert.Equal(t, "www.oncf.ma", feed.FeedInfo.PublisherURL)
	assert.Equal(t, 16, len(feed.FeedInfo.Version))
	assert.NotContains(t, fileMap(feed), "feed_info.txt")

	// A stored record is written as is
	require.NoError(t, s.WriteFeedInfo(&model.FeedInfo{PublisherName: "ONCF", PublisherURL: "www.oncf.ma", Lang: "fr"}))
	feed, err = Assemble(s, nil, Options{})
	require.NoError(t, err)
	assert.Contains(t, fileMap(feed), "feed_info.txt")
}

func TestAssembleFeedInfoOverrides(t *testing.T) {
	s := buildStore(t)
	require.NoError(t, s.WriteFeedInfo(&model.FeedInfo{
		PublisherName: "Transit Maroc",
		PublisherURL:  "https://transit.example.ma",
		Lang:          "ar",
		StartDate:     "20240101",
		EndDate:       "20241231",
		Version:       "2024.1",
	}))

	feed, err := Assemble(s, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, &model.FeedInfo{
		PublisherName: "Transit Maroc",
		PublisherURL:  "https://transit.example.ma",
		Lang:          "ar",
		StartDate:     "20240101",
		EndDate:       "20241231",
		Version:       "2024.1",
	}, feed.FeedInfo)

	feed, err = Assemble(s, nil, Options{
		Window:  validate.Window{End: "20250630"},
		Version: "2024.2",
	})
	require.NoError(t, err)
	assert.Equal(t, "Transit Maroc", feed.FeedInfo.PublisherName)
	assert.Equal(t, "20240101", feed.FeedInfo.StartDate)
	assert.Equal(t, "20250630", feed.FeedInfo.EndDate)
	assert.Equal(t, "2024.2", feed.FeedInfo.Version)
	assert.Equal(t,
		"feed_publisher_name,feed_publisher_url,feed_lang,feed_start_date,feed_end_date,feed_version\n"+
			"Transit Maroc,https://transit.example.ma,ar,20240101,20250630,2024.2\n",
		fileMap(feed)["feed_info.txt"],
	)

	// The stored record is left untouched
	assert.Equal(t, "2024.1", s.FeedInfo().Version)
}

func TestWriteZipIsReproducible(t *testing.T) {
	a, err := Assemble(buildStore(t), nil, Options{})
	require.NoError(t, err)
	b, err := Assemble(buildStore(t), nil, Options{})
	require.NoError(t, err)

	bufA, bufB := &bytes.Buffer{}, &bytes.Buffer{}
	require.NoError(t, a.WriteZip(bufA))
	require.NoError(t, b.WriteZip(bufB))
	assert.Equal(t, bufA.Bytes(), bufB.Bytes())

	bufC := &bytes.Buffer{}
	require.NoError(t, a.WriteZip(bufC))
	assert.Equal(t, bufA.Bytes(), bufC.Bytes())
}

func TestRoundTrip(t *testing.T) {
	original := buildStore(t)
	feed, err := Assemble(original, nil, Options{})
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	require.NoError(t, feed.WriteZip(buf))

	files, err := parse.ReadZip(buf.Bytes())
	require.NoError(t, err)

	reloaded := storage.NewMemoryStore()
	results, err := parse.LoadFeed(reloaded, files)
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, 0, len(r.Errors), r.Table)
	}

	assert.Equal(t, original.Agencies(), reloaded.Agencies())
	assert.Equal(t, original.Stops(), reloaded.Stops())
	assert.Equal(t, original.Routes(), reloaded.Routes())
	assert.Equal(t, original.Calendars(), reloaded.Calendars())
	assert.Equal(t, original.Trips(), reloaded.Trips())
	assert.Equal(t, original.StopTimes(), reloaded.StopTimes())
	assert.Equal(t, original.ShapePoints(), reloaded.ShapePoints())
	assert.Equal(t, feed.FeedInfo, reloaded.FeedInfo())

	// And assembling the reloaded feed changes nothing
	again, err := Assemble(reloaded, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, feed.Files(), again.Files())
}

func TestExportSQLite(t *testing.T) {
	feed, err := Assemble(buildStore(t), nil, Options{})
	require.NoError(t, err)

	w, err := storage.NewSQLiteFeedWriter()
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, feed.Export(w))

	for table, expected := range map[string]int{
		"agency":     1,
		"stops":      4,
		"routes":     1,
		"calendar":   3,
		"trips":      2,
		"stop_times": 4,
		"shapes":     2,
		"feed_info":  1,
	} {
		var n int
		require.NoError(t, w.DB().QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
		assert.Equal(t, expected, n, table)
	}

	var arrival string
	require.NoError(t, w.DB().QueryRow(`SELECT arrival_time FROM stop_times WHERE trip_id = 't2' AND stop_sequence = 2`).Scan(&arrival))
	assert.Equal(t, "24:15:00", arrival)
}

func TestExportMemoryStore(t *testing.T) {
	feed, err := Assemble(buildStore(t), nil, Options{})
	require.NoError(t, err)

	s := storage.NewMemoryStore()
	require.NoError(t, feed.Export(s))
	assert.Equal(t, feed.StopTimes, s.StopTimes())
	assert.Equal(t, feed.FeedInfo, s.FeedInfo())
}
