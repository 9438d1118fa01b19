package parse

import (
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"

	"tidbyt.dev/gtfsfeed/model"
	"tidbyt.dev/gtfsfeed/storage"
)

type StopTimeCSV struct {
	TripID        string `csv:"trip_id"`
	StopID        string `csv:"stop_id"`
	StopSequence  string `csv:"stop_sequence"`
	ArrivalTime   string `csv:"arrival_time"`
	DepartureTime string `csv:"departure_time"`
	Headsign      string `csv:"stop_headsign"`
}

// Wraps failures of the writer, so they can be told apart from
// failures to read the CSV.
type writeError struct {
	err error
}

func (e writeError) Error() string {
	return e.err.Error()
}

// Ordering of stop_times and arrival/departure consistency are left
// to the trip validator, which sees all of a trip's stop_times at
// once.
func ParseStopTimes(writer storage.FeedWriter, data io.Reader) (*LoadResult, error) {
	t := newTableLoader("stop_times.txt")

	i := 0
	err := gocsv.UnmarshalToCallbackWithError(data, func(st *StopTimeCSV) error {
		i += 1
		r := t.row(i)
		if st.TripID != "" && st.StopSequence != "" {
			r.key = st.TripID + "#" + strings.TrimSpace(st.StopSequence)
		}

		seq := r.uint("stop_sequence", st.StopSequence)
		r.required("trip_id", st.TripID)
		r.required("stop_id", st.StopID)
		arrival := r.time("arrival_time", st.ArrivalTime)
		departure := r.time("departure_time", st.DepartureTime)

		err := t.commit(r, "stop_sequence", func() error {
			return writer.WriteStopTime(&model.StopTime{
				TripID:       st.TripID,
				StopID:       st.StopID,
				StopSequence: seq,
				Arrival:      arrival,
				Departure:    departure,
				Headsign:     st.Headsign,
			})
		})
		if err != nil {
			return writeError{err}
		}
		return nil
	})

	if err != nil {
		if we, ok := err.(writeError); ok {
			return nil, we.err
		}
		t.malformed(errors.Wrap(err, "unmarshaling stop_times csv"))
	}

	return t.result, nil
}
