package parse

import (
	"io"
	"time"

	"github.com/gocarina/gocsv"

	"tidbyt.dev/gtfsfeed/model"
	"tidbyt.dev/gtfsfeed/storage"
)

type CalendarCSV struct {
	ServiceID string `csv:"service_id"`
	StartDate string `csv:"start_date"`
	EndDate   string `csv:"end_date"`
	Monday    string `csv:"monday"`
	Tuesday   string `csv:"tuesday"`
	Wednesday string `csv:"wednesday"`
	Thursday  string `csv:"thursday"`
	Friday    string `csv:"friday"`
	Saturday  string `csv:"saturday"`
	Sunday    string `csv:"sunday"`
}

// start_date after end_date is accepted here and flagged by the
// calendar validator.
func ParseCalendar(writer storage.FeedWriter, data io.Reader) (*LoadResult, error) {
	t := newTableLoader("calendar.txt")

	calendarCsv := []*CalendarCSV{}
	if err := gocsv.Unmarshal(data, &calendarCsv); err != nil {
		t.malformed(err)
		return t.result, nil
	}

	for i, c := range calendarCsv {
		r := t.row(i + 1)
		r.key = c.ServiceID

		r.required("service_id", c.ServiceID)

		var weekday int8
		for _, d := range []struct {
			field string
			value string
			day   time.Weekday
		}{
			{"monday", c.Monday, time.Monday},
			{"tuesday", c.Tuesday, time.Tuesday},
			{"wednesday", c.Wednesday, time.Wednesday},
			{"thursday", c.Thursday, time.Thursday},
			{"friday", c.Friday, time.Friday},
			{"saturday", c.Saturday, time.Saturday},
			{"sunday", c.Sunday, time.Sunday},
		} {
			if !r.required(d.field, d.value) {
				continue
			}
			switch d.value {
			case "1":
				weekday |= 1 << d.day
			case "0":
			default:
				r.fail(model.KindTypeMismatch, d.field, d.value, "%s must be 0 or 1, got '%s'", d.field, d.value)
			}
		}

		startDate := r.date("start_date", c.StartDate, true)
		endDate := r.date("end_date", c.EndDate, true)

		err := t.commit(r, "service_id", func() error {
			return writer.WriteCalendar(&model.Calendar{
				ServiceID: c.ServiceID,
				StartDate: startDate,
				EndDate:   endDate,
				Weekday:   weekday,
			})
		})
		if err != nil {
			return nil, err
		}
	}

	return t.result, nil
}
