package parse

import (
	"io"

	"github.com/gocarina/gocsv"

	"tidbyt.dev/gtfsfeed/model"
	"tidbyt.dev/gtfsfeed/storage"
)

type TripCSV struct {
	ID          string `csv:"trip_id"`
	RouteID     string `csv:"route_id"`
	ServiceID   string `csv:"service_id"`
	Headsign    string `csv:"trip_headsign"`
	ShortName   string `csv:"trip_short_name"`
	DirectionID string `csv:"direction_id"`
	ShapeID     string `csv:"shape_id"`
	// BlockID              string `csv:"block_id"`
	// WheelchairAccessible int8   `csv:"wheelchair_accessible"`
	// BikesAllowed         int8   `csv:"bikes_allowed"`
}

func ParseTrips(writer storage.FeedWriter, data io.Reader) (*LoadResult, error) {
	t := newTableLoader("trips.txt")

	tripCsv := []*TripCSV{}
	if err := gocsv.Unmarshal(data, &tripCsv); err != nil {
		t.malformed(err)
		return t.result, nil
	}

	for i, tr := range tripCsv {
		r := t.row(i + 1)
		r.key = tr.ID

		r.required("trip_id", tr.ID)
		r.required("route_id", tr.RouteID)
		r.required("service_id", tr.ServiceID)
		directionID := r.enum("direction_id", tr.DirectionID, 0, 1)

		err := t.commit(r, "trip_id", func() error {
			return writer.WriteTrip(&model.Trip{
				ID:          tr.ID,
				RouteID:     tr.RouteID,
				ServiceID:   tr.ServiceID,
				Headsign:    tr.Headsign,
				ShortName:   tr.ShortName,
				DirectionID: int8(directionID),
				ShapeID:     tr.ShapeID,
			})
		})
		if err != nil {
			return nil, err
		}
	}

	return t.result, nil
}
