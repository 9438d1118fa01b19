// Package assemble turns a validated entity store into a canonical
// GTFS feed.
package assemble

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"

	"tidbyt.dev/gtfsfeed/model"
	"tidbyt.dev/gtfsfeed/parse"
	"tidbyt.dev/gtfsfeed/storage"
	"tidbyt.dev/gtfsfeed/validate"
)

var ErrAssemblyBlocked = errors.New("assembly blocked by fatal findings")

// Returned by Assemble when the findings contain at least one Fatal.
type BlockedError struct {
	Fatal int
	First model.Finding
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("%s: %d fatal, first: %s", ErrAssemblyBlocked, e.Fatal, e.First)
}

func (e *BlockedError) Is(target error) bool {
	return target == ErrAssemblyBlocked
}

type Options struct {
	// Overrides feed_start_date and feed_end_date where set.
	Window validate.Window

	// Overrides feed_version where set.
	Version string
}

// A feed ready to be written. Collections are in load order.
type Feed struct {
	Agencies    []*model.Agency
	Stops       []*model.Stop
	Routes      []*model.Route
	Calendars   []*model.Calendar
	Trips       []*model.Trip
	StopTimes   []*model.StopTime
	ShapePoints []*model.ShapePoint
	FeedInfo    *model.FeedInfo

	files []File
}

// A serialized GTFS file.
type File struct {
	Name string
	Data []byte
}

// Builds the canonical feed, refusing if any finding is Fatal.
func Assemble(reader storage.FeedReader, findings []model.Finding, opts Options) (*Feed, error) {
	blocked := &BlockedError{}
	for _, f := range findings {
		if f.Severity != model.SeverityFatal {
			continue
		}
		if blocked.Fatal == 0 {
			blocked.First = f
		}
		blocked.Fatal++
	}
	if blocked.Fatal > 0 {
		return nil, blocked
	}

	feed := &Feed{
		Agencies:    reader.Agencies(),
		Stops:       reader.Stops(),
		Routes:      reader.Routes(),
		Calendars:   reader.Calendars(),
		Trips:       reader.Trips(),
		StopTimes:   reader.StopTimes(),
		ShapePoints: reader.ShapePoints(),
	}
	if len(feed.Agencies) == 0 {
		// Resolve reports this as fatal, but Assemble may be
		// handed any findings.
		return nil, fmt.Errorf("feed has no agency")
	}

	files := []File{}
	for _, table := range []struct {
		name    string
		marshal func() ([]byte, error)
	}{
		{"agency.txt", feed.marshalAgencies},
		{"stops.txt", feed.marshalStops},
		{"routes.txt", feed.marshalRoutes},
		{"calendar.txt", feed.marshalCalendars},
		{"trips.txt", feed.marshalTrips},
		{"stop_times.txt", feed.marshalStopTimes},
		{"shapes.txt", feed.marshalShapes},
	} {
		if table.name == "shapes.txt" && len(feed.ShapePoints) == 0 {
			continue
		}
		data, err := table.marshal()
		if err != nil {
			return nil, fmt.Errorf("marshaling %s: %w", table.name, err)
		}
		files = append(files, File{Name: table.name, Data: data})
	}

	feed.FeedInfo = buildFeedInfo(reader.FeedInfo(), feed, opts, files)
	if reader.FeedInfo() == nil && !validate.ValidURL(feed.FeedInfo.PublisherURL) {
		// A synthesized record would fail validation once reloaded.
		// Left out, it is synthesized again the same way.
		feed.files = files
		return feed, nil
	}
	data, err := gocsv.MarshalBytes([]*parse.FeedInfoCSV{{
		PublisherName: feed.FeedInfo.PublisherName,
		PublisherURL:  feed.FeedInfo.PublisherURL,
		Lang:          feed.FeedInfo.Lang,
		StartDate:     feed.FeedInfo.StartDate,
		EndDate:       feed.FeedInfo.EndDate,
		Version:       feed.FeedInfo.Version,
	}})
	if err != nil {
		return nil, fmt.Errorf("marshaling feed_info.txt: %w", err)
	}
	feed.files = append(files, File{Name: "feed_info.txt", Data: data})

	return feed, nil
}

// The stored feed_info, or one derived from the first agency and the
// calendars in use. Configured values take precedence.
func buildFeedInfo(stored *model.FeedInfo, feed *Feed, opts Options, files []File) *model.FeedInfo {
	info := &model.FeedInfo{}
	if stored != nil {
		*info = *stored
	} else {
		agency := feed.Agencies[0]
		info.PublisherName = agency.Name
		info.PublisherURL = agency.URL
		info.Lang = agency.Lang
		if info.Lang == "" {
			info.Lang = "und"
		}
		info.StartDate, info.EndDate = serviceRange(feed)
	}

	if opts.Window.Start != "" {
		info.StartDate = opts.Window.Start
	}
	if opts.Window.End != "" {
		info.EndDate = opts.Window.End
	}
	if opts.Version != "" {
		info.Version = opts.Version
	}
	if info.Version == "" {
		info.Version = digest(files)
	}

	return info
}

// Earliest start and latest end of calendars referenced by trips.
func serviceRange(feed *Feed) (string, string) {
	used := map[string]bool{}
	for _, t := range feed.Trips {
		used[t.ServiceID] = true
	}

	start, end := "", ""
	for _, c := range feed.Calendars {
		if !used[c.ServiceID] {
			continue
		}
		if start == "" || c.StartDate < start {
			start = c.StartDate
		}
		if end == "" || c.EndDate > end {
			end = c.EndDate
		}
	}
	return start, end
}

// Content hash of the serialized tables, truncated.
func digest(files []File) string {
	h := sha256.New()
	for _, f := range files {
		fmt.Fprintf(h, "%s\n%d\n", f.Name, len(f.Data))
		h.Write(f.Data)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// The serialized GTFS files, in canonical order.
func (f *Feed) Files() []File {
	return append([]File(nil), f.files...)
}

// Writes the feed as a zip archive. Identical feeds produce identical
// archives.
func (f *Feed) WriteZip(w io.Writer) error {
	zw := zip.NewWriter(w)
	for _, file := range f.files {
		// No timestamps, to keep archives reproducible.
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:   file.Name,
			Method: zip.Deflate,
		})
		if err != nil {
			return fmt.Errorf("creating %s: %w", file.Name, err)
		}
		if _, err := fw.Write(file.Data); err != nil {
			return fmt.Errorf("writing %s: %w", file.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("closing zip: %w", err)
	}
	return nil
}

// Writes every entity of the feed to writer, in canonical order. The
// writer is not closed.
func (f *Feed) Export(writer storage.FeedWriter) error {
	for _, a := range f.Agencies {
		if err := writer.WriteAgency(a); err != nil {
			return fmt.Errorf("exporting agency '%s': %w", a.ID, err)
		}
	}
	for _, s := range f.Stops {
		if err := writer.WriteStop(s); err != nil {
			return fmt.Errorf("exporting stop '%s': %w", s.ID, err)
		}
	}
	for _, r := range f.Routes {
		if err := writer.WriteRoute(r); err != nil {
			return fmt.Errorf("exporting route '%s': %w", r.ID, err)
		}
	}
	for _, c := range f.Calendars {
		if err := writer.WriteCalendar(c); err != nil {
			return fmt.Errorf("exporting calendar '%s': %w", c.ServiceID, err)
		}
	}

	if err := writer.BeginTrips(); err != nil {
		return fmt.Errorf("beginning trips: %w", err)
	}
	for _, t := range f.Trips {
		if err := writer.WriteTrip(t); err != nil {
			return fmt.Errorf("exporting trip '%s': %w", t.ID, err)
		}
	}
	if err := writer.EndTrips(); err != nil {
		return fmt.Errorf("ending trips: %w", err)
	}

	if err := writer.BeginStopTimes(); err != nil {
		return fmt.Errorf("beginning stop_times: %w", err)
	}
	for _, st := range f.StopTimes {
		if err := writer.WriteStopTime(st); err != nil {
			return fmt.Errorf("exporting stop_time '%s': %w", model.StopTimeID(st.TripID, st.StopSequence), err)
		}
	}
	if err := writer.EndStopTimes(); err != nil {
		return fmt.Errorf("ending stop_times: %w", err)
	}

	for _, p := range f.ShapePoints {
		if err := writer.WriteShapePoint(p); err != nil {
			return fmt.Errorf("exporting shape point '%s': %w", model.ShapePointID(p.ShapeID, p.Sequence), err)
		}
	}

	if err := writer.WriteFeedInfo(f.FeedInfo); err != nil {
		return fmt.Errorf("exporting feed_info: %w", err)
	}

	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (f *Feed) marshalAgencies() ([]byte, error) {
	rows := make([]*parse.AgencyCSV, 0, len(f.Agencies))
	for _, a := range f.Agencies {
		rows = append(rows, &parse.AgencyCSV{
			ID:       a.ID,
			Name:     a.Name,
			URL:      a.URL,
			Timezone: a.Timezone,
			Lang:     a.Lang,
		})
	}
	return gocsv.MarshalBytes(rows)
}

func (f *Feed) marshalStops() ([]byte, error) {
	rows := make([]*parse.StopCSV, 0, len(f.Stops))
	for _, s := range f.Stops {
		row := &parse.StopCSV{
			ID:            s.ID,
			Code:          s.Code,
			Name:          s.Name,
			Desc:          s.Desc,
			LocationType:  strconv.Itoa(int(s.LocationType)),
			ParentStation: s.ParentStation,
		}
		if !(s.Lat == 0 && s.Lon == 0 && s.LocationType >= model.LocationTypeGenericNode) {
			row.Lat = formatFloat(s.Lat)
			row.Lon = formatFloat(s.Lon)
		}
		rows = append(rows, row)
	}
	return gocsv.MarshalBytes(rows)
}

func (f *Feed) marshalRoutes() ([]byte, error) {
	rows := make([]*parse.RouteCSV, 0, len(f.Routes))
	for _, r := range f.Routes {
		rows = append(rows, &parse.RouteCSV{
			ID:        r.ID,
			AgencyID:  r.AgencyID,
			ShortName: r.ShortName,
			LongName:  r.LongName,
			Desc:      r.Desc,
			Type:      strconv.Itoa(int(r.Type)),
			URL:       r.URL,
			Color:     r.Color,
			TextColor: r.TextColor,
		})
	}
	return gocsv.MarshalBytes(rows)
}

func (f *Feed) marshalCalendars() ([]byte, error) {
	rows := make([]*parse.CalendarCSV, 0, len(f.Calendars))
	for _, c := range f.Calendars {
		rows = append(rows, &parse.CalendarCSV{
			ServiceID: c.ServiceID,
			StartDate: c.StartDate,
			EndDate:   c.EndDate,
			Monday:    formatFlag(c.Active(time.Monday)),
			Tuesday:   formatFlag(c.Active(time.Tuesday)),
			Wednesday: formatFlag(c.Active(time.Wednesday)),
			Thursday:  formatFlag(c.Active(time.Thursday)),
			Friday:    formatFlag(c.Active(time.Friday)),
			Saturday:  formatFlag(c.Active(time.Saturday)),
			Sunday:    formatFlag(c.Active(time.Sunday)),
		})
	}
	return gocsv.MarshalBytes(rows)
}

func (f *Feed) marshalTrips() ([]byte, error) {
	rows := make([]*parse.TripCSV, 0, len(f.Trips))
	for _, t := range f.Trips {
		rows = append(rows, &parse.TripCSV{
			ID:          t.ID,
			RouteID:     t.RouteID,
			ServiceID:   t.ServiceID,
			Headsign:    t.Headsign,
			ShortName:   t.ShortName,
			DirectionID: strconv.Itoa(int(t.DirectionID)),
			ShapeID:     t.ShapeID,
		})
	}
	return gocsv.MarshalBytes(rows)
}

func (f *Feed) marshalStopTimes() ([]byte, error) {
	rows := make([]*parse.StopTimeCSV, 0, len(f.StopTimes))
	for _, st := range f.StopTimes {
		rows = append(rows, &parse.StopTimeCSV{
			TripID:        st.TripID,
			StopID:        st.StopID,
			StopSequence:  strconv.FormatUint(uint64(st.StopSequence), 10),
			ArrivalTime:   st.Arrival.String(),
			DepartureTime: st.Departure.String(),
			Headsign:      st.Headsign,
		})
	}
	return gocsv.MarshalBytes(rows)
}

func (f *Feed) marshalShapes() ([]byte, error) {
	rows := make([]*parse.ShapeCSV, 0, len(f.ShapePoints))
	for _, p := range f.ShapePoints {
		rows = append(rows, &parse.ShapeCSV{
			ID:       p.ShapeID,
			Lat:      formatFloat(p.Lat),
			Lon:      formatFloat(p.Lon),
			Sequence: strconv.FormatUint(uint64(p.Sequence), 10),
		})
	}
	return gocsv.MarshalBytes(rows)
}
