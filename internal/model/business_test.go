package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnrich_HasEmailsFollowsEmails(t *testing.T) {
	raw := RawBusiness{Title: "Bella Italia", Website: "https://bellaitalia.co.uk"}

	tests := []struct {
		name   string
		emails []string
		want   bool
	}{
		{name: "nil", emails: nil, want: false},
		{name: "empty", emails: []string{}, want: false},
		{name: "one", emails: []string{"info@bellaitalia.co.uk"}, want: true},
		{name: "many", emails: []string{"a@x.com", "b@x.com"}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Enrich(raw, tt.emails)
			assert.Equal(t, tt.want, got.HasEmails)
			assert.Len(t, got.Emails, len(tt.emails))
			assert.NotNil(t, got.Emails)
			assert.Equal(t, "Bella Italia", got.Title)
		})
	}
}

func TestEnrich_CopiesEmails(t *testing.T) {
	emails := []string{"a@example.com"}
	got := Enrich(RawBusiness{}, emails)
	emails[0] = "changed@example.com"
	assert.Equal(t, "a@example.com", got.Emails[0])
}

func TestPersistedBusiness_Addresses(t *testing.T) {
	b := PersistedBusiness{Emails: []Email{{Address: "a@x.com"}, {Address: "b@x.com"}}}
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, b.Addresses())
	assert.Empty(t, PersistedBusiness{}.Addresses())
}
