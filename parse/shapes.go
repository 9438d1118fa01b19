package parse

import (
	"io"
	"strings"

	"github.com/gocarina/gocsv"

	"tidbyt.dev/gtfsfeed/model"
	"tidbyt.dev/gtfsfeed/storage"
)

type ShapeCSV struct {
	ID       string `csv:"shape_id"`
	Lat      string `csv:"shape_pt_lat"`
	Lon      string `csv:"shape_pt_lon"`
	Sequence string `csv:"shape_pt_sequence"`
	// DistTraveled string `csv:"shape_dist_traveled"`
}

func ParseShapes(writer storage.FeedWriter, data io.Reader) (*LoadResult, error) {
	t := newTableLoader("shapes.txt")

	shapeCsv := []*ShapeCSV{}
	if err := gocsv.Unmarshal(data, &shapeCsv); err != nil {
		t.malformed(err)
		return t.result, nil
	}

	for i, sh := range shapeCsv {
		r := t.row(i + 1)
		if sh.ID != "" && sh.Sequence != "" {
			r.key = sh.ID + "#" + strings.TrimSpace(sh.Sequence)
		}

		r.required("shape_id", sh.ID)
		lat := r.float("shape_pt_lat", sh.Lat, true)
		lon := r.float("shape_pt_lon", sh.Lon, true)
		seq := r.uint("shape_pt_sequence", sh.Sequence)

		err := t.commit(r, "shape_pt_sequence", func() error {
			return writer.WriteShapePoint(&model.ShapePoint{
				ShapeID:  sh.ID,
				Lat:      lat,
				Lon:      lon,
				Sequence: seq,
			})
		})
		if err != nil {
			return nil, err
		}
	}

	return t.result, nil
}
