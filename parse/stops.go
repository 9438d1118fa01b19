package parse

import (
	"io"

	"github.com/gocarina/gocsv"

	"tidbyt.dev/gtfsfeed/model"
	"tidbyt.dev/gtfsfeed/storage"
)

type StopCSV struct {
	ID   string `csv:"stop_id"`
	Code string `csv:"stop_code"`
	Name string `csv:"stop_name"`
	Desc string `csv:"stop_desc"`
	Lat  string `csv:"stop_lat"`
	Lon  string `csv:"stop_lon"`
	// ZoneID        string  `csv:"zone_id"`
	// URL           string `csv:"stop_url"`
	LocationType  string `csv:"location_type"`
	ParentStation string `csv:"parent_station"`
	// Timezone      string  `csv:"stop_timezone"`
	// WheelchairBoarding string `csv:"wheelchair_boarding"`
}

// Coordinate ranges are not checked here. That's for the geospatial
// validator, which knows about regions.
func ParseStops(writer storage.FeedWriter, data io.Reader) (*LoadResult, error) {
	t := newTableLoader("stops.txt")

	stopCsv := []*StopCSV{}
	if err := gocsv.Unmarshal(data, &stopCsv); err != nil {
		t.malformed(err)
		return t.result, nil
	}

	for i, st := range stopCsv {
		r := t.row(i + 1)
		r.key = st.ID

		r.required("stop_id", st.ID)

		locationType := model.LocationType(r.enum("location_type", st.LocationType, 0, 4))

		// stop_name, stop_lat and stop_lon are "[o]ptional for
		// locations which are generic nodes (location_type=3) or
		// boarding areas (location_type=4)" and otherwise
		// required.
		needed := locationType != model.LocationTypeGenericNode && locationType != model.LocationTypeBoardingArea
		if needed {
			r.required("stop_name", st.Name)
		}
		lat := r.float("stop_lat", st.Lat, needed)
		lon := r.float("stop_lon", st.Lon, needed)

		err := t.commit(r, "stop_id", func() error {
			return writer.WriteStop(&model.Stop{
				ID:            st.ID,
				Code:          st.Code,
				Name:          st.Name,
				Desc:          st.Desc,
				Lat:           lat,
				Lon:           lon,
				LocationType:  locationType,
				ParentStation: st.ParentStation,
			})
		})
		if err != nil {
			return nil, err
		}
	}

	return t.result, nil
}
