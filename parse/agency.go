package parse

import (
	"io"
	"time"
	_ "time/tzdata"

	"github.com/gocarina/gocsv"

	"tidbyt.dev/gtfsfeed/model"
	"tidbyt.dev/gtfsfeed/storage"
)

type AgencyCSV struct {
	ID       string `csv:"agency_id"`
	Name     string `csv:"agency_name"`
	URL      string `csv:"agency_url"`
	Timezone string `csv:"agency_timezone"`
	Lang     string `csv:"agency_lang"`
	// Phone    string `csv:"agency_phone"`
	// FareURL  string `csv:"agency_fare_url"`
	// Email    string `csv:"agency_email"`
}

func ParseAgency(writer storage.FeedWriter, data io.Reader) (*LoadResult, error) {
	t := newTableLoader("agency.txt")

	agencyCsv := []*AgencyCSV{}
	if err := gocsv.Unmarshal(data, &agencyCsv); err != nil {
		t.malformed(err)
		return t.result, nil
	}

	for i, a := range agencyCsv {
		r := t.row(i + 1)
		r.key = a.ID

		r.required("agency_name", a.Name)
		r.required("agency_url", a.URL)
		if r.required("agency_timezone", a.Timezone) {
			if _, err := time.LoadLocation(a.Timezone); err != nil {
				r.fail(model.KindTypeMismatch, "agency_timezone", a.Timezone, "agency_timezone '%s' is invalid", a.Timezone)
			}
		}

		err := t.commit(r, "agency_id", func() error {
			return writer.WriteAgency(&model.Agency{
				ID:       a.ID,
				Name:     a.Name,
				URL:      a.URL,
				Timezone: a.Timezone,
				Lang:     a.Lang,
			})
		})
		if err != nil {
			return nil, err
		}
	}

	return t.result, nil
}
