// Package sites decides whether a URL points at an independent business
// website or at a platform, social network, aggregator or search engine.
// False positives here silently drop valid leads and false negatives pollute
// the output with aggregator links, so the classifier stays pure and
// exhaustively tested.
package sites

import (
	"net/url"
	"strings"
)

// denyList holds hostname patterns identifying non-independent sites, in
// three forms keyed off their shape. "name." matches that label under any TLD
// and any subdomain (facebook.com, facebook.de, m.facebook.com). "name.tld"
// matches that exact registrable domain and its subdomains only, so short
// entries like x.com cannot swallow fedex.com or xerox.com. A bare fragment
// like "resdiary" matches anywhere in the host, catching white-label
// subdomains (booking.resdiary.com).
var denyList = []string{
	// map / search engines
	"google.",
	"bing.com",
	"yahoo.com",
	"duckduckgo.com",
	// social networks
	"facebook.",
	"instagram.com",
	"twitter.com",
	"x.com",
	"linkedin.com",
	"tiktok.com",
	"youtube.com",
	"pinterest.",
	// delivery platforms
	"foodora.",
	"wolt.com",
	"just-eat.",
	"ubereats.com",
	"deliveroo.",
	// review / booking aggregators
	"tripadvisor.",
	"yelp.",
	"trustpilot.",
	"booking.com",
	"opentable.",
	"thefork.",
	// regional restaurant booking vendor and its white-label subdomains
	"resdiary",
	"bookatable.",
	// business directories
	"gulesider.no",
	"1881.no",
	"proff.no",
	"finn.no",
}

// hostDenied applies the deny patterns to a lowercased hostname.
func hostDenied(host string) bool {
	dotted := "." + host
	for _, deny := range denyList {
		switch {
		case !strings.Contains(deny, "."):
			// Bare vendor fragment: anywhere in the host.
			if strings.Contains(host, deny) {
				return true
			}
		case strings.HasSuffix(deny, "."):
			// Label prefix: the name as a whole label, any TLD, any depth.
			if strings.Contains(dotted+".", "."+deny) {
				return true
			}
		default:
			// Exact registrable domain, including its subdomains.
			if host == deny || strings.HasSuffix(dotted, "."+deny) {
				return true
			}
		}
	}
	return false
}

// IsBusinessSite reports whether raw looks like an independent business
// website. Missing, sentinel and unparseable input all classify as false;
// malformed URLs never error, they degrade to "not a business site".
func IsBusinessSite(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "not found") {
		return false
	}

	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}

	if hostDenied(host) {
		return false
	}
	if mainDomain(host) == "" {
		return false
	}
	return true
}

// CleanWebsite returns raw unchanged when it classifies as a business site
// and the empty string otherwise. This is the only output the pipeline
// consumes: an empty cleaned website is what keeps a record in the run.
func CleanWebsite(raw string) string {
	if IsBusinessSite(raw) {
		return raw
	}
	return ""
}

// mainDomain reduces a hostname to its last two labels, stripping a leading
// www first. Single-label hosts reduce to "" and get rejected upstream.
func mainDomain(host string) string {
	host = strings.TrimPrefix(host, "www.")
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return ""
	}
	return labels[len(labels)-2] + "." + labels[len(labels)-1]
}
