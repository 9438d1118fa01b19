package parse

import (
	"encoding/hex"
	"io"
	"strconv"

	"github.com/gocarina/gocsv"

	"tidbyt.dev/gtfsfeed/model"
	"tidbyt.dev/gtfsfeed/storage"
)

type RouteCSV struct {
	ID        string `csv:"route_id"`
	AgencyID  string `csv:"agency_id"`
	ShortName string `csv:"route_short_name"`
	LongName  string `csv:"route_long_name"`
	Desc      string `csv:"route_desc"`
	Type      string `csv:"route_type"`
	URL       string `csv:"route_url"`
	Color     string `csv:"route_color"`
	TextColor string `csv:"route_text_color"`
	// SortOrder string `csv:"route_sort_order"`
	// ContinuousPickup string `csv:"continuous_pickup"`
	// ContinuousDropOff string `csv:"continuous_drop_off"`
}

func validRouteColor(color string) bool {
	if len(color) != 6 {
		return false
	}
	if _, err := hex.DecodeString(color); err != nil {
		return false
	}
	return true
}

// agency_id is not resolved here; the resolver owns all cross table
// references.
func ParseRoutes(writer storage.FeedWriter, data io.Reader) (*LoadResult, error) {
	t := newTableLoader("routes.txt")

	routeCsv := []*RouteCSV{}
	if err := gocsv.Unmarshal(data, &routeCsv); err != nil {
		t.malformed(err)
		return t.result, nil
	}

	for i, rt := range routeCsv {
		r := t.row(i + 1)
		r.key = rt.ID

		r.required("route_id", rt.ID)

		// ShortName or LongName is required
		if rt.ShortName == "" && rt.LongName == "" {
			r.fail(model.KindMissingField, "route_short_name", "", "either route_short_name or route_long_name required")
		}

		var routeType model.RouteType
		if r.required("route_type", rt.Type) {
			rtype, err := strconv.Atoi(rt.Type)
			if err != nil || !model.RouteType(rtype).Valid() {
				r.fail(model.KindTypeMismatch, "route_type", rt.Type, "invalid route_type '%s'", rt.Type)
			}
			routeType = model.RouteType(rtype)
		}

		if rt.Color != "" && !validRouteColor(rt.Color) {
			r.fail(model.KindTypeMismatch, "route_color", rt.Color, "invalid route_color '%s'", rt.Color)
		}
		if rt.TextColor != "" && !validRouteColor(rt.TextColor) {
			r.fail(model.KindTypeMismatch, "route_text_color", rt.TextColor, "invalid route_text_color '%s'", rt.TextColor)
		}

		err := t.commit(r, "route_id", func() error {
			return writer.WriteRoute(&model.Route{
				ID:        rt.ID,
				AgencyID:  rt.AgencyID,
				ShortName: rt.ShortName,
				LongName:  rt.LongName,
				Desc:      rt.Desc,
				Type:      routeType,
				URL:       rt.URL,
				Color:     rt.Color,
				TextColor: rt.TextColor,
			})
		})
		if err != nil {
			return nil, err
		}
	}

	return t.result, nil
}
