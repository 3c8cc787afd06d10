package sites

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsBusinessSite(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want bool
	}{
		{"independent .no site", "https://www.joesbakery.no/", true},
		{"independent .com site", "https://fjordcatering.com/menu", true},
		{"scheme-less independent site", "bakerihuset.no", true},
		// Domains merely ending in a short deny entry stay independent.
		{"fedex is not x.com", "https://www.fedex.com/", true},
		{"xerox is not x.com", "https://xerox.com/", true},
		{"rolex is not x.com", "https://www.rolex.com/", true},
		{"tubing is not bing.com", "https://tubing.com/", true},
		{"x.com itself", "https://x.com/somebusiness", false},
		{"x.com subdomain", "https://www.x.com/somebusiness", false},
		{"facebook page", "https://www.facebook.com/somebusiness", false},
		{"facebook regional tld", "https://facebook.de/somebusiness", false},
		{"instagram profile", "https://instagram.com/kafe.oslo", false},
		{"google maps link", "https://www.google.com/maps/place/x", false},
		{"resdiary white-label subdomain", "https://booking.resdiary.com/abc123", false},
		{"bookatable", "https://www.bookatable.no/r/123", false},
		{"tripadvisor", "https://www.tripadvisor.no/Restaurant_Review", false},
		{"delivery platform", "https://wolt.com/nb/nor/oslo/restaurant/x", false},
		{"directory entry", "https://www.gulesider.no/f/bedrift", false},
		{"empty string", "", false},
		{"sentinel", "Not found", false},
		{"malformed url", "http://%zz^", false},
		{"single label host", "https://localhost/", false},
		{"whitespace only", "   ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsBusinessSite(tt.url))
		})
	}
}

func TestCleanWebsite(t *testing.T) {
	// Business sites pass through byte-for-byte, everything else becomes "".
	assert.Equal(t, "https://www.joesbakery.no/", CleanWebsite("https://www.joesbakery.no/"))
	assert.Equal(t, " https://www.joesbakery.no/ ", CleanWebsite(" https://www.joesbakery.no/ "))
	assert.Equal(t, "", CleanWebsite("https://www.facebook.com/somebusiness"))
	assert.Equal(t, "", CleanWebsite("https://booking.resdiary.com/abc123"))
	assert.Equal(t, "", CleanWebsite(""))
	assert.Equal(t, "", CleanWebsite("Not found"))
	assert.Equal(t, "", CleanWebsite("http://%zz^"))
}

func TestMainDomain(t *testing.T) {
	assert.Equal(t, "joesbakery.no", mainDomain("www.joesbakery.no"))
	assert.Equal(t, "resdiary.com", mainDomain("booking.resdiary.com"))
	assert.Equal(t, "", mainDomain("localhost"))
}
