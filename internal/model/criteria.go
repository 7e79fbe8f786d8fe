package model

import (
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
)

// MatchMode controls how strictly place titles must match the search keywords.
type MatchMode string

const (
	MatchAll          MatchMode = "all"
	MatchOnlyIncludes MatchMode = "only_includes"
	MatchOnlyExact    MatchMode = "only_exact"
)

// WebsiteFilter restricts results by whether a place lists a website.
type WebsiteFilter string

const (
	WebsiteAllPlaces      WebsiteFilter = "allPlaces"
	WebsiteWithWebsite    WebsiteFilter = "withWebsite"
	WebsiteWithoutWebsite WebsiteFilter = "withoutWebsite"
)

// DefaultLanguage is used when criteria carry no language tag.
const DefaultLanguage = "en"

// SearchCriteria is the input for one business search. Field names on the wire
// match the Google Maps scraper actor input so criteria can be forwarded as-is.
type SearchCriteria struct {
	Keywords         []string      `json:"searchStringsArray" yaml:"searchStringsArray"`
	Location         string        `json:"locationQuery" yaml:"locationQuery"`
	MaxResults       int           `json:"maxCrawledPlacesPerSearch" yaml:"maxCrawledPlacesPerSearch"`
	Language         string        `json:"language" yaml:"language"`
	DeeperCityScrape bool          `json:"deeperCityScrape" yaml:"deeperCityScrape"`
	MatchMode        MatchMode     `json:"searchMatching" yaml:"searchMatching"`
	MinRating        string        `json:"placeMinimumStars" yaml:"placeMinimumStars"`
	SkipClosed       bool          `json:"skipClosedPlaces" yaml:"skipClosedPlaces"`
	WebsiteFilter    WebsiteFilter `json:"website" yaml:"website"`
}

// WithDefaults returns a copy of c with empty optional fields filled in.
// Keywords are trimmed and the keyword slice is never shared with c.
func (c SearchCriteria) WithDefaults() SearchCriteria {
	out := c
	out.Keywords = make([]string, 0, len(c.Keywords))
	for _, k := range c.Keywords {
		out.Keywords = append(out.Keywords, strings.TrimSpace(k))
	}
	out.Location = strings.TrimSpace(c.Location)
	if out.Language == "" {
		out.Language = DefaultLanguage
	}
	if out.MatchMode == "" {
		out.MatchMode = MatchAll
	}
	if out.WebsiteFilter == "" {
		out.WebsiteFilter = WebsiteAllPlaces
	}
	return out
}

// Validate reports the first problem that would make the criteria unusable.
func (c SearchCriteria) Validate() error {
	if len(c.Keywords) == 0 {
		return eris.New("criteria: at least one keyword is required")
	}
	for i, k := range c.Keywords {
		if strings.TrimSpace(k) == "" {
			return eris.Errorf("criteria: keyword %d is empty", i)
		}
	}
	if c.MaxResults <= 0 {
		return eris.Errorf("criteria: max results must be positive, got %d", c.MaxResults)
	}
	if c.Language != "" {
		if _, err := language.Parse(c.Language); err != nil {
			return eris.Wrapf(err, "criteria: invalid language %q", c.Language)
		}
	}
	switch c.MatchMode {
	case "", MatchAll, MatchOnlyIncludes, MatchOnlyExact:
	default:
		return eris.Errorf("criteria: unknown match mode %q", c.MatchMode)
	}
	switch c.WebsiteFilter {
	case "", WebsiteAllPlaces, WebsiteWithWebsite, WebsiteWithoutWebsite:
	default:
		return eris.Errorf("criteria: unknown website filter %q", c.WebsiteFilter)
	}
	return nil
}
