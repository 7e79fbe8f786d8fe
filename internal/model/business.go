package model

import "time"

// Coordinate is a WGS84 latitude/longitude pair.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// RawBusiness is a place as returned by the search actor.
type RawBusiness struct {
	Title            string     `json:"title"`
	Price            string     `json:"price"`
	Website          string     `json:"website"`
	PhoneUnformatted string     `json:"phoneUnformatted"`
	Location         Coordinate `json:"location"`
	State            *string    `json:"state"`
}

// EnrichedBusiness is a RawBusiness plus the email addresses found for its domain.
// Build it with Enrich so HasEmails always agrees with Emails.
type EnrichedBusiness struct {
	RawBusiness
	Emails    []string `json:"emails"`
	HasEmails bool     `json:"hasEmails"`
}

// Enrich attaches emails to raw. The email slice is copied.
func Enrich(raw RawBusiness, emails []string) EnrichedBusiness {
	out := EnrichedBusiness{
		RawBusiness: raw,
		Emails:      make([]string, len(emails)),
	}
	copy(out.Emails, emails)
	out.HasEmails = len(out.Emails) > 0
	return out
}

// Location is a stored coordinate row. Each one is owned by a single business.
type Location struct {
	ID  string  `json:"id"`
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Email is a stored email row owned by a single business.
type Email struct {
	ID         string `json:"id"`
	Address    string `json:"address"`
	BusinessID string `json:"businessId"`
}

// PersistedBusiness is a business as stored, with its location and email rows.
type PersistedBusiness struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Price            string    `json:"price"`
	Website          string    `json:"website"`
	PhoneUnformatted string    `json:"phoneUnformatted"`
	State            *string   `json:"state"`
	HasEmails        bool      `json:"hasEmails"`
	Location         Location  `json:"location"`
	Emails           []Email   `json:"emails"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Addresses returns the email addresses in row order.
func (b PersistedBusiness) Addresses() []string {
	out := make([]string, 0, len(b.Emails))
	for _, e := range b.Emails {
		out = append(out, e.Address)
	}
	return out
}
