package model

import "time"

// NotFound is the sentinel stored for any field extraction never produced.
const NotFound = "Not found"

// BusinessRecord is one scraped business listing. A record survives to the
// workbook only when its cleaned Website is empty: businesses that already
// run an independent site are discarded before persistence.
type BusinessRecord struct {
	Name          string
	Address       string
	Website       string
	Phone         string
	Email         string
	ContactPerson string
	BusinessPhone string
	Rating        string
	Hours         string
	PriceLevel    string
	Industry      string
}

// NewBusinessRecord returns a record with every field at the sentinel.
func NewBusinessRecord() BusinessRecord {
	return BusinessRecord{
		Name:          NotFound,
		Address:       NotFound,
		Website:       NotFound,
		Phone:         NotFound,
		Email:         NotFound,
		ContactPerson: NotFound,
		BusinessPhone: NotFound,
		Rating:        NotFound,
		Hours:         NotFound,
		PriceLevel:    NotFound,
	}
}

// NeedsContact reports whether the enrichment pass still has work to do for
// this record.
func (r BusinessRecord) NeedsContact() bool {
	return r.ContactPerson == "" || r.ContactPerson == NotFound ||
		r.BusinessPhone == "" || r.BusinessPhone == NotFound
}

// IndustryRunResult aggregates one industry's records and timing telemetry.
type IndustryRunResult struct {
	Industry  string
	Records   []BusinessRecord
	Started   time.Time
	Finished  time.Time
	Found     int // listing URLs discovered
	Processed int // listings extracted
	Kept      int // records retained (no real website)
	Filtered  int // records discarded for having a real website
	Err       string
}

// Duration is the wall-clock time the industry took.
func (r IndustryRunResult) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}
