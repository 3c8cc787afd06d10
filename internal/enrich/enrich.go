// Package enrich fills in contact person and business phone for previously
// scraped leads by looking each business up in the Proff.no company registry.
// Progress is checkpointed after every record so an interrupt or crash never
// loses completed work.
package enrich

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/briandowns/spinner"
	"github.com/charmbracelet/log"
	"golang.org/x/net/html"

	"mapleads/internal/config"
	"mapleads/internal/extract"
	"mapleads/internal/model"
	"mapleads/internal/workbook"
)

// Leadership roles in lookup priority order. The first role found on the
// company page supplies the contact person.
var roleLabels = []string{
	"Daglig leder",
	"Innehaver",
	"Styreleder",
	"Styrets leder",
	"Kontaktperson",
	"Forretningsfører",
}

// Session is the slice of the browser manager the enricher drives.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Pane() extract.Pane
}

// Enricher walks the records of a scraped workbook and resolves the missing
// contact fields through registry lookups.
type Enricher struct {
	cfg     *config.Config
	session Session
	cp      *workbook.Checkpointer

	sleep func(time.Duration)
}

func New(cfg *config.Config, session Session, cp *workbook.Checkpointer) *Enricher {
	return &Enricher{cfg: cfg, session: session, cp: cp, sleep: time.Sleep}
}

// Run enriches records in place. Records that already carry both contact
// fields are skipped. Cancellation between records is graceful: the final
// checkpoint still runs and no error is returned for the interrupt itself.
func (e *Enricher) Run(ctx context.Context, records []model.BusinessRecord) error {
	pending := 0
	for _, r := range records {
		if r.NeedsContact() {
			pending++
		}
	}
	log.Info("enrichment starting", "records", len(records), "pending", pending)

	// Exactly one final checkpoint, whatever path ends the run.
	defer func() {
		if err := e.cp.Save(records); err != nil {
			log.Error("final checkpoint failed, attempting emergency save", "err", err)
			e.cp.EmergencySave(records)
		}
	}()

	spin := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	done := 0
	for i := range records {
		if ctx.Err() != nil {
			log.Warn("enrichment interrupted, progress checkpointed", "completed", done, "pending", pending-done)
			return nil
		}
		if !records[i].NeedsContact() {
			continue
		}

		done++
		spin.Suffix = fmt.Sprintf(" [%d/%d] %s", done, pending, records[i].Name)
		spin.Start()
		e.enrichRecord(ctx, &records[i])
		spin.Stop()

		if err := e.cp.Save(records); err != nil {
			log.Error("checkpoint failed", "record", records[i].Name, "err", err)
		}
		e.sleep(e.cfg.RandomDelay())
	}
	log.Info("enrichment finished", "looked_up", done)
	return nil
}

// enrichRecord performs one registry lookup. Lookup failures leave the
// sentinel values in place; the record is never an error.
func (e *Enricher) enrichRecord(ctx context.Context, rec *model.BusinessRecord) {
	if err := e.session.Navigate(ctx, SearchURL(rec.Name)); err != nil {
		log.Warn("registry search failed", "name", rec.Name, "err", err)
		return
	}
	searchHTML, err := e.pageHTML(ctx)
	if err != nil {
		log.Warn("registry search page unreadable", "name", rec.Name, "err", err)
		return
	}

	hit := CompanyLink(searchHTML, rec.Name)
	if hit == "" {
		log.Debug("no registry hit", "name", rec.Name)
		return
	}
	if err := e.session.Navigate(ctx, hit); err != nil {
		log.Warn("company page navigation failed", "name", rec.Name, "url", hit, "err", err)
		return
	}
	companyHTML, err := e.pageHTML(ctx)
	if err != nil {
		log.Warn("company page unreadable", "name", rec.Name, "err", err)
		return
	}

	if person := ContactPerson(companyHTML); person != "" {
		rec.ContactPerson = person
	}
	if phone := BusinessPhone(companyHTML); phone != "" {
		rec.BusinessPhone = phone
	}
	log.Info("record enriched", "name", rec.Name, "contact", rec.ContactPerson, "phone", rec.BusinessPhone)
}

func (e *Enricher) pageHTML(ctx context.Context) (string, error) {
	var page string
	err := e.session.Pane().Eval(ctx,
		`document.documentElement ? document.documentElement.outerHTML : ''`, &page)
	return page, err
}

// SearchURL builds the registry search URL for a business name.
func SearchURL(name string) string {
	return "https://www.proff.no/sok?q=" + url.QueryEscape(strings.TrimSpace(name))
}

// CompanyLink picks the search hit to follow: the first company-profile link
// sharing a name token with the business, else the first profile link at all.
func CompanyLink(page, name string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return ""
	}
	tokens := nameTokens(name)

	var first, matched string
	doc.Find(`a[href*="/selskap/"], a[href*="/company/"]`).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, ok := a.Attr("href")
		if !ok || href == "" {
			return true
		}
		href = absoluteLink(href)
		if first == "" {
			first = href
		}
		text := strings.ToLower(a.Text())
		for _, tok := range tokens {
			if strings.Contains(text, tok) {
				matched = href
				return false
			}
		}
		return true
	})
	if matched != "" {
		return matched
	}
	return first
}

func absoluteLink(href string) string {
	if strings.HasPrefix(href, "/") {
		return "https://www.proff.no" + href
	}
	return href
}

// nameTokens lowercases the distinctive words of a business name, dropping
// legal-form suffixes and short noise words.
func nameTokens(name string) []string {
	var tokens []string
	for _, tok := range strings.Fields(strings.ToLower(name)) {
		tok = strings.Trim(tok, ".,&-")
		switch tok {
		case "as", "asa", "da", "ans", "enk", "og", "the":
			continue
		}
		if len(tok) < 3 {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// ContactPerson extracts the highest-priority leadership name from a company
// page. For each role label the candidate is taken from the text trailing the
// label, then the next sibling element, then the element following the
// label's parent.
func ContactPerson(page string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return ""
	}
	for _, role := range roleLabels {
		if name := personForRole(doc, role); name != "" {
			return name
		}
	}
	return ""
}

func personForRole(doc *goquery.Document, role string) string {
	var found string
	doc.Find("*").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		own := strings.TrimSpace(ownText(el))
		if !strings.HasPrefix(own, role) {
			return true
		}

		// Trailing text on the label element itself.
		if rest := strings.TrimSpace(strings.TrimLeft(strings.TrimPrefix(own, role), ":：-–")); rest != "" {
			if looksLikePersonName(rest) {
				found = rest
				return false
			}
		}
		// Next sibling, then the element after the label's parent.
		for _, cand := range []*goquery.Selection{el.Next(), el.Parent().Next()} {
			text := strings.TrimSpace(cand.Text())
			if looksLikePersonName(text) {
				found = text
				return false
			}
		}
		return true
	})
	return found
}

// ownText is the element's direct text, excluding child element text.
func ownText(el *goquery.Selection) string {
	var b strings.Builder
	for _, node := range el.Nodes {
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
			}
		}
	}
	return b.String()
}

var personDisallowed = []string{"adresse", "telefon", "proff", "org", "regnskap", "vis "}

// looksLikePersonName accepts short capitalized multi-word strings and
// rejects anything shaped like an address line or UI label.
func looksLikePersonName(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) < 4 || len(s) > 60 {
		return false
	}
	if strings.ContainsAny(s, "0123456789@/") {
		return false
	}
	lower := strings.ToLower(s)
	for _, bad := range personDisallowed {
		if strings.Contains(lower, bad) {
			return false
		}
	}
	words := strings.Fields(s)
	if len(words) < 2 || len(words) > 4 {
		return false
	}
	for _, w := range words {
		r := []rune(w)
		if !unicode.IsUpper(r[0]) {
			return false
		}
	}
	return true
}

var telHrefPattern = regexp.MustCompile(`(?i)tel:([+\d\s]+)`)

// BusinessPhone extracts the company switchboard number: tel links first,
// then text near a Telefon label, then a page-wide sweep.
func BusinessPhone(page string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return ""
	}

	var fromTel string
	doc.Find(`a[href^="tel:"]`).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if m := telHrefPattern.FindStringSubmatch(href); len(m) == 2 {
			if phone := extract.PhoneFromText(m[1]); phone != "" {
				fromTel = phone
				return false
			}
		}
		return true
	})
	if fromTel != "" {
		return fromTel
	}

	var fromLabel string
	doc.Find("*").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		own := strings.TrimSpace(ownText(el))
		if !strings.HasPrefix(own, "Telefon") {
			return true
		}
		for _, cand := range []string{strings.TrimPrefix(own, "Telefon"), el.Next().Text(), el.Parent().Text()} {
			if phone := extract.PhoneFromText(cand); phone != "" {
				fromLabel = phone
				return false
			}
		}
		return true
	})
	if fromLabel != "" {
		return fromLabel
	}

	return extract.SweepPhone(doc.Text())
}
