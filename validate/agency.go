package validate

import (
	"net/url"

	"tidbyt.dev/gtfsfeed/model"
)

// Absolute http(s) URL with a host.
func ValidURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// All agencies in a feed must share a timezone. The first agency's
// timezone is taken as the feed's.
func ValidateAgencies(agencies []*model.Agency) []model.Finding {
	findings := []model.Finding{}

	for i, a := range agencies {
		if i > 0 && a.Timezone != agencies[0].Timezone {
			findings = append(findings, model.Fatal(
				model.KindInconsistentTimezone, model.EntityAgency, a.ID, "agency_timezone",
				"agency_timezone '%s' differs from '%s'", a.Timezone, agencies[0].Timezone,
			))
		}

		if !ValidURL(a.URL) {
			findings = append(findings, model.Warning(
				model.KindInvalidURL, model.EntityAgency, a.ID, "agency_url",
				"agency_url '%s' is not an absolute http(s) URL", a.URL,
			))
		}
	}

	return findings
}
