// Package config builds the immutable run configuration. Defaults come from
// constants, a .env file (when present) and environment variables; CLI flags
// override on top in main. Components never read globals, they get a *Config.
package config

import (
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
)

const (
	defaultIndustry    = "restaurant"
	defaultSearchLat   = 59.9139
	defaultSearchLng   = 10.7522
	defaultZoom        = 14
	defaultUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"
	defaultLocale      = "nb-NO,nb;q=0.9,en;q=0.8"
	fastTestAttempts   = 3
	fastTestListingCap = 5
)

// Config is the run-wide configuration, constructed once at startup.
type Config struct {
	IndustriesFile string
	ProxiesFile    string
	OutputDir      string
	DebugDir       string

	SearchLat float64
	SearchLng float64
	Zoom      int

	Headless  bool
	UserAgent string
	Locale    string

	NavTimeout       time.Duration
	DelayMin         time.Duration
	DelayMax         time.Duration
	MaxScrollTries   int
	IndustryRetries  int
	RotateEvery      int // businesses processed before the session is rebuilt
	ListingCap       int // 0 means unbounded
	FastTest         bool
	UseProxies       bool
	ConsentLanguages []string
}

// Load assembles the configuration from defaults and the environment.
// A .env file in the working directory is honoured when present.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		IndustriesFile:   envOr("INDUSTRIES_FILE", "industries.txt"),
		ProxiesFile:      envOr("PROXIES_FILE", "proxies.txt"),
		OutputDir:        envOr("OUTPUT_DIR", "output"),
		DebugDir:         envOr("DEBUG_DIR", "debug"),
		SearchLat:        envFloat("SEARCH_LAT", defaultSearchLat),
		SearchLng:        envFloat("SEARCH_LNG", defaultSearchLng),
		Zoom:             envInt("SEARCH_ZOOM", defaultZoom),
		Headless:         envBool("HEADLESS", true),
		UserAgent:        envOr("USER_AGENT", defaultUserAgent),
		Locale:           envOr("ACCEPT_LANGUAGE", defaultLocale),
		NavTimeout:       envDuration("NAV_TIMEOUT_MS", 25000),
		DelayMin:         envDuration("DELAY_MIN_MS", 1200),
		DelayMax:         envDuration("DELAY_MAX_MS", 3500),
		MaxScrollTries:   envInt("MAX_SCROLL_ATTEMPTS", 25),
		IndustryRetries:  envInt("INDUSTRY_RETRIES", 3),
		RotateEvery:      envInt("ROTATE_EVERY", 50),
		ListingCap:       envInt("LISTING_CAP", 0),
		FastTest:         envBool("FAST_TEST", false),
		UseProxies:       envBool("USE_PROXIES", false),
		ConsentLanguages: []string{"Godta alle", "Accept all"},
	}
	if cfg.DelayMax < cfg.DelayMin {
		cfg.DelayMin, cfg.DelayMax = cfg.DelayMax, cfg.DelayMin
	}
	if cfg.FastTest {
		cfg.ApplyFastTest()
	}
	return cfg
}

// ApplyFastTest shrinks the run to a smoke-test footprint.
func (c *Config) ApplyFastTest() {
	c.FastTest = true
	c.MaxScrollTries = fastTestAttempts
	if c.ListingCap == 0 || c.ListingCap > fastTestListingCap {
		c.ListingCap = fastTestListingCap
	}
}

// RandomDelay picks a pacing delay inside the configured bounds.
func (c *Config) RandomDelay() time.Duration {
	if c.DelayMax <= c.DelayMin {
		return c.DelayMin
	}
	return c.DelayMin + time.Duration(rand.Int63n(int64(c.DelayMax-c.DelayMin)))
}

// SearchURL builds the maps search URL for one industry, centered on the
// configured coordinate.
func (c *Config) SearchURL(industry string) string {
	return fmt.Sprintf("https://www.google.com/maps/search/%s/@%f,%f,%dz",
		strings.ReplaceAll(strings.TrimSpace(industry), " ", "+"),
		c.SearchLat, c.SearchLng, c.Zoom)
}

// LoadIndustries reads the line-delimited industries file. A missing file is
// not an error: the run degrades to the built-in default term.
func LoadIndustries(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn("industries file missing, using default", "path", path, "default", defaultIndustry)
		return []string{defaultIndustry}
	}
	var industries []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		industries = append(industries, line)
	}
	if len(industries) == 0 {
		return []string{defaultIndustry}
	}
	return industries
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envDuration(key string, defaultMs int) time.Duration {
	ms := envInt(key, defaultMs)
	if ms < 0 {
		ms = defaultMs
	}
	return time.Duration(ms) * time.Millisecond
}
