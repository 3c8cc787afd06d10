// Package extract pulls business fields out of a loaded listing page. The
// markup is unstable and partially localized (English/Norwegian), so every
// field runs a cascade of independent strategies and the first plausible
// match wins; conflicting signals are never reconciled. A failing strategy is
// swallowed and the cascade moves on, so no listing ever errors out of the
// run because of a selector.
package extract

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"

	"mapleads/internal/model"
)

// Pane is the minimal surface extractors need from a live browser tab. The
// session manager provides the chromedp-backed implementation; tests feed
// canned values.
type Pane interface {
	Eval(ctx context.Context, js string, out any) error
}

// Strategy is one named attempt at a field: a JS expression evaluating to a
// string, empty on miss.
type Strategy struct {
	Name string
	JS   string
}

// Cascade is an ordered list of strategies. The cascade itself is a value so
// tests can exercise it directly.
type Cascade []Strategy

// First runs the cascade and returns the first non-empty trimmed result.
// Evaluation errors are logged at debug level and treated as a miss.
func (c Cascade) First(ctx context.Context, pane Pane) string {
	for _, s := range c {
		var out string
		if err := pane.Eval(ctx, s.JS, &out); err != nil {
			log.Debug("strategy failed", "strategy", s.Name, "err", err)
			continue
		}
		if out = strings.TrimSpace(out); out != "" {
			return out
		}
	}
	return ""
}

// labeledControlJS builds a strategy body that prefers the accessible label,
// then the text content, then the raw data attribute of the first element
// matching sel.
func labeledControlJS(sel string) string {
	return fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return '';
		const label = el.getAttribute('aria-label');
		if (label && label.trim()) return label.trim();
		if (el.textContent && el.textContent.trim()) return el.textContent.trim();
		return el.getAttribute('data-item-id') || '';
	})()`, sel)
}

func textJS(sel string) string {
	return fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		return el && el.textContent ? el.textContent.trim() : '';
	})()`, sel)
}

func hrefJS(sel string) string {
	return fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		return el ? (el.href || el.getAttribute('href') || '') : '';
	})()`, sel)
}

var (
	NameCascade = Cascade{
		{"headline", textJS("h1.DUwDvf")},
		{"headline-class", textJS(`h1[class*="fontHeadline"]`)},
		{"main-heading", textJS(`div[role="main"] h1`)},
		{"page-title", `document.title || ''`},
	}

	AddressCascade = Cascade{
		{"address-control", labeledControlJS(`button[data-item-id="address"]`)},
		{"address-item", labeledControlJS(`[data-item-id="address"]`)},
		{"address-label-en", labeledControlJS(`button[aria-label^="Address"]`)},
		{"address-label-no", labeledControlJS(`button[aria-label^="Adresse"]`)},
	}

	WebsiteCascade = Cascade{
		{"authority-link", hrefJS(`a[data-item-id="authority"]`)},
		{"website-link", hrefJS(`a[data-item-id="website"]`)},
		{"website-label-en", hrefJS(`a[aria-label^="Website"]`)},
		{"website-label-no", hrefJS(`a[aria-label^="Nettsted"]`)},
		// Generic outbound anchor, excluding links back to the mapping
		// service itself and non-navigational pseudo-links.
		{"outbound-anchor", `(() => {
			const anchors = document.querySelectorAll('a[href^="http"]');
			for (const a of anchors) {
				const href = a.href || '';
				if (!href || href.startsWith('javascript:')) continue;
				if (href.includes('google.com') || href.includes('google.no')) continue;
				if (href.includes('/maps/')) continue;
				return href;
			}
			return '';
		})()`},
	}

	PhoneCascade = Cascade{
		{"phone-control", labeledControlJS(`button[data-item-id^="phone:tel"]`)},
		{"phone-item", labeledControlJS(`div[data-item-id^="phone"]`)},
		{"phone-label-en", labeledControlJS(`button[aria-label^="Phone"]`)},
		{"phone-label-no", labeledControlJS(`button[aria-label^="Telefon"]`)},
		{"tel-link", hrefJS(`a[href^="tel:"]`)},
	}

	RatingCascade = Cascade{
		{"rating-badge", textJS("span.MW4etd")},
		{"rating-row", textJS(`div.F7nice span[aria-hidden="true"]`)},
		{"rating-label", labeledControlJS(`span[role="img"][aria-label*="stj"]`)},
		{"rating-label-en", labeledControlJS(`span[role="img"][aria-label*="star"]`)},
	}

	HoursCascade = Cascade{
		{"hours-control", labeledControlJS(`button[data-item-id="oh"]`)},
		{"hours-table", textJS("div.t39EBf")},
		{"hours-label-no", labeledControlJS(`div[aria-label*="pningstider"]`)},
		{"hours-label-en", labeledControlJS(`div[aria-label*="Hours"]`)},
	}

	PriceCascade = Cascade{
		{"price-label-en", labeledControlJS(`span[aria-label*="Price"]`)},
		{"price-label-no", labeledControlJS(`span[aria-label*="Pris"]`)},
		{"price-span", textJS(`span.mgr77e`)},
	}
)

// Page-wide sweep used when no phone selector yields anything.
const phoneSweepJS = `(() => document.body && document.body.innerText ? document.body.innerText : '')()`

// Phone patterns in priority order: Norwegian international format first,
// generic international second, bare local digit groups last.
var phonePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\+47[\s\d]{8,}`),
	regexp.MustCompile(`\+\d{1,3}[\s\d]{6,}`),
	regexp.MustCompile(`\b\d{2,3}\s?\d{2}\s?\d{2}\s?\d{2,3}\b`),
}

// Placeholder label text that must never be mistaken for a number.
var phonePlaceholders = []string{
	"legg til telefonnummer",
	"add phone number",
	"phone:",
	"telefon:",
}

var (
	ratingPattern = regexp.MustCompile(`\d[.,]\d`)
	digitPattern  = regexp.MustCompile(`\d`)
)

// Fields extracts the best-effort field set from the listing page at
// listingURL. Every field independently degrades to the sentinel.
func Fields(ctx context.Context, pane Pane, listingURL string) model.BusinessRecord {
	rec := model.NewBusinessRecord()

	if name := extractName(ctx, pane, listingURL); name != "" {
		rec.Name = name
	}
	if addr := cleanAddress(AddressCascade.First(ctx, pane)); addr != "" {
		rec.Address = addr
	}
	if site := ensureScheme(WebsiteCascade.First(ctx, pane)); site != "" {
		rec.Website = site
	}
	if phone := extractPhone(ctx, pane); phone != "" {
		rec.Phone = phone
	}
	if rating := ratingPattern.FindString(RatingCascade.First(ctx, pane)); rating != "" {
		rec.Rating = rating
	}
	if hours := cleanHours(HoursCascade.First(ctx, pane)); hours != "" {
		rec.Hours = hours
	}
	if price := cleanPrice(PriceCascade.First(ctx, pane)); price != "" {
		rec.PriceLevel = price
	}
	return rec
}

func extractName(ctx context.Context, pane Pane, listingURL string) string {
	for _, s := range NameCascade {
		var out string
		if err := pane.Eval(ctx, s.JS, &out); err != nil {
			continue
		}
		if name := cleanName(out); name != "" {
			return name
		}
	}
	return nameFromSlug(listingURL)
}

// cleanName strips the mapping service's title suffixes and rejects trivial
// or generic results.
func cleanName(raw string) string {
	name := strings.TrimSpace(raw)
	for _, suffix := range []string{" - Google Maps", " – Google Maps", " - Google Søk"} {
		name = strings.TrimSuffix(name, suffix)
	}
	name = strings.TrimSpace(name)
	if len(name) <= 2 {
		return ""
	}
	switch strings.ToLower(name) {
	case "google maps", "maps", "resultater", "results":
		return ""
	}
	return name
}

// nameFromSlug decodes the business name embedded in a /maps/place/ URL.
func nameFromSlug(listingURL string) string {
	const marker = "/maps/place/"
	idx := strings.Index(listingURL, marker)
	if idx < 0 {
		return ""
	}
	slug := listingURL[idx+len(marker):]
	if cut := strings.IndexAny(slug, "/?@"); cut >= 0 {
		slug = slug[:cut]
	}
	decoded, err := url.QueryUnescape(strings.ReplaceAll(slug, "+", " "))
	if err != nil {
		decoded = strings.ReplaceAll(slug, "+", " ")
	}
	return cleanName(decoded)
}

func cleanAddress(raw string) string {
	addr := strings.TrimSpace(raw)
	for _, prefix := range []string{"Address:", "Adresse:"} {
		addr = strings.TrimSpace(strings.TrimPrefix(addr, prefix))
	}
	return addr
}

func extractPhone(ctx context.Context, pane Pane) string {
	for _, s := range PhoneCascade {
		var out string
		if err := pane.Eval(ctx, s.JS, &out); err != nil {
			continue
		}
		if phone := PhoneFromText(out); phone != "" {
			return phone
		}
	}
	// Last resort: sweep the page text for anything phone-shaped.
	var body string
	if err := pane.Eval(ctx, phoneSweepJS, &body); err != nil {
		return ""
	}
	return SweepPhone(body)
}

// PhoneFromText applies the prioritized phone patterns to a candidate string,
// rejecting known placeholder label text.
func PhoneFromText(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	lower := strings.ToLower(text)
	for _, placeholder := range phonePlaceholders {
		if lower == placeholder {
			return ""
		}
	}
	text = strings.TrimPrefix(text, "tel:")
	for _, pattern := range phonePatterns {
		if m := strings.TrimSpace(pattern.FindString(text)); m != "" {
			return m
		}
	}
	return ""
}

// SweepPhone returns the first pattern match in a free-text body carrying at
// least 8 digits. Shared with the enrichment pass, which sweeps registry
// pages the same way.
func SweepPhone(body string) string {
	for _, pattern := range phonePatterns {
		for _, m := range pattern.FindAllString(body, 5) {
			if len(digitPattern.FindAllString(m, -1)) >= 8 {
				return strings.TrimSpace(m)
			}
		}
	}
	return ""
}

func cleanHours(raw string) string {
	hours := strings.TrimSpace(raw)
	for _, prefix := range []string{"Hours:", "Åpningstider:"} {
		hours = strings.TrimSpace(strings.TrimPrefix(hours, prefix))
	}
	return strings.Join(strings.Fields(hours), " ")
}

func cleanPrice(raw string) string {
	price := strings.TrimSpace(raw)
	for _, prefix := range []string{"Price:", "Pris:", "Prisnivå:"} {
		price = strings.TrimSpace(strings.TrimPrefix(price, prefix))
	}
	return price
}

// ensureScheme normalizes an extracted website href to carry a scheme.
func ensureScheme(raw string) string {
	site := strings.TrimSpace(raw)
	if site == "" {
		return ""
	}
	if !strings.Contains(site, "://") {
		site = "https://" + site
	}
	return site
}
