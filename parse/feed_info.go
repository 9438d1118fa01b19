package parse

import (
	"io"

	"github.com/gocarina/gocsv"

	"tidbyt.dev/gtfsfeed/model"
	"tidbyt.dev/gtfsfeed/storage"
)

type FeedInfoCSV struct {
	PublisherName string `csv:"feed_publisher_name"`
	PublisherURL  string `csv:"feed_publisher_url"`
	Lang          string `csv:"feed_lang"`
	StartDate     string `csv:"feed_start_date"`
	EndDate       string `csv:"feed_end_date"`
	Version       string `csv:"feed_version"`
	// DefaultLang  string `csv:"default_lang"`
	// ContactEmail string `csv:"feed_contact_email"`
	// ContactURL   string `csv:"feed_contact_url"`
}

// feed_info.txt holds at most one record. Any further records are
// rejected as duplicates.
func ParseFeedInfo(writer storage.FeedWriter, data io.Reader) (*LoadResult, error) {
	t := newTableLoader("feed_info.txt")

	feedInfoCsv := []*FeedInfoCSV{}
	if err := gocsv.Unmarshal(data, &feedInfoCsv); err != nil {
		t.malformed(err)
		return t.result, nil
	}

	for i, fi := range feedInfoCsv {
		r := t.row(i + 1)
		r.key = model.EntityFeedInfo

		r.required("feed_publisher_name", fi.PublisherName)
		r.required("feed_publisher_url", fi.PublisherURL)
		r.required("feed_lang", fi.Lang)
		startDate := r.date("feed_start_date", fi.StartDate, false)
		endDate := r.date("feed_end_date", fi.EndDate, false)

		err := t.commit(r, "feed_info", func() error {
			return writer.WriteFeedInfo(&model.FeedInfo{
				PublisherName: fi.PublisherName,
				PublisherURL:  fi.PublisherURL,
				Lang:          fi.Lang,
				StartDate:     startDate,
				EndDate:       endDate,
				Version:       fi.Version,
			})
		})
		if err != nil {
			return nil, err
		}
	}

	return t.result, nil
}
