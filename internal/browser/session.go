// Package browser owns the automated-browser lifecycle: one chromedp session
// at a time, anti-detection setup, consent negotiation, crash and block
// detection, and rotation. Every other component borrows the live page
// through the Pane surface; only this package creates or destroys it.
package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"mapleads/internal/config"
	"mapleads/internal/extract"
)

// Waits applied before retrying after a failure. A suspected adversarial
// block gets a much longer cool-down than a plain renderer crash.
const (
	crashBackoff = 10 * time.Second
	blockBackoff = 70 * time.Second
)

// Navigator spoofing applied to every new document before site scripts run.
const stealthJS = `
Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
Object.defineProperty(navigator, 'languages', {get: () => ['nb-NO', 'nb', 'en']});
Object.defineProperty(navigator, 'plugins', {get: () => [1, 2, 3]});
window.chrome = window.chrome || {runtime: {}};
`

var crashMarkers = []string{
	"aw, snap",
	"status_breakpoint",
	"out of memory",
	"he's dead, jim",
}

var sessionErrorMarkers = []string{
	"target closed",
	"browser closed",
	"session closed",
	"websocket",
	"crashed",
	"out of memory",
	"page not found in context",
}

var blockMarkers = []string{
	"unusual traffic",
	"uvanlig trafikk",
	"/sorry/",
	"captcha",
	"automated queries",
	"automatiske forespørsler",
}

// Session is one owned browser instance plus its active tab.
type Session struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc

	proxy    config.ProxyEndpoint
	hasProxy bool
}

// Manager creates, recycles and destroys the single active Session.
type Manager struct {
	cfg     *config.Config
	proxies *config.ProxyPool

	session   *Session
	processed int    // cumulative businesses processed, drives rotation
	searchURL string // last known search URL, re-entered after recovery

	// confirm blocks on the operator; injectable so tests never prompt.
	confirm func(prompt string)
}

func NewManager(cfg *config.Config, proxies *config.ProxyPool) *Manager {
	return &Manager{cfg: cfg, proxies: proxies, confirm: promptOperator}
}

// Start launches the browser session. Call Close when done.
func (m *Manager) Start(ctx context.Context) error {
	return m.launch(ctx)
}

// Close tears down the active session, if any.
func (m *Manager) Close() {
	if m.session == nil {
		return
	}
	m.session.tabCancel()
	m.session.allocCancel()
	m.session = nil
}

// Pane returns the JS-eval surface of the live tab for the extractor and
// discoverer. Valid until the session rotates or recovers.
func (m *Manager) Pane() extract.Pane {
	return &pane{m: m}
}

// pane adapts the active session to the extract.Pane interface.
type pane struct{ m *Manager }

func (p *pane) Eval(ctx context.Context, js string, out any) error {
	s := p.m.session
	if s == nil {
		return fmt.Errorf("no active browser session")
	}
	evalCtx, cancel := mergeDeadline(ctx, s.tabCtx)
	defer cancel()
	return chromedp.Run(evalCtx, chromedp.Evaluate(js, out))
}

// mergeDeadline runs tab actions under the caller's cancellation without
// losing the tab context chromedp needs.
func mergeDeadline(caller, tab context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(tab)
	stop := context.AfterFunc(caller, cancel)
	return merged, func() { stop(); cancel() }
}

func (m *Manager) launch(ctx context.Context) error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", m.cfg.Headless),
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("lang", "nb-NO"),
		chromedp.WindowSize(1366, 900),
		chromedp.UserAgent(m.cfg.UserAgent),
	)

	s := &Session{}
	if m.cfg.UseProxies {
		if ep, ok := m.proxies.Pick(); ok {
			opts = append(opts, chromedp.ProxyServer(ep.Addr()))
			s.proxy, s.hasProxy = ep, true
			log.Info("session using proxy", "proxy", ep.Addr())
		}
	}

	s.allocCtx, s.allocCancel = chromedp.NewExecAllocator(ctx, opts...)
	s.tabCtx, s.tabCancel = chromedp.NewContext(s.allocCtx)

	if err := chromedp.Run(s.tabCtx, m.fingerprintActions()...); err != nil {
		s.tabCancel()
		s.allocCancel()
		return fmt.Errorf("browser setup failed: %w", err)
	}
	m.session = s
	return nil
}

// fingerprintActions applies the anti-detection page setup: UA + locale
// override, header set, consent cookie pre-seed, navigator spoofing.
func (m *Manager) fingerprintActions() []chromedp.Action {
	return []chromedp.Action{
		network.Enable(),
		emulation.SetUserAgentOverride(m.cfg.UserAgent).
			WithAcceptLanguage(m.cfg.Locale).
			WithPlatform("Win32"),
		network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": m.cfg.Locale,
			"Sec-CH-UA":       `"Chromium";v="122", "Google Chrome";v="122"`,
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			expiry := cdp.TimeSinceEpoch(time.Now().AddDate(1, 0, 0))
			return network.SetCookie("CONSENT", "YES+cb.20240101-00-p0.no+FX+999").
				WithDomain(".google.com").
				WithPath("/").
				WithExpires(&expiry).
				Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthJS).Do(ctx)
			return err
		}),
	}
}

// Navigate loads url with the configured timeout. Timeouts are tolerated (the
// page may still be partially usable); a detected crash page triggers one
// reload-and-retry; consent interstitials are negotiated before returning.
func (m *Manager) Navigate(ctx context.Context, url string) error {
	if m.session == nil {
		return fmt.Errorf("no active browser session")
	}

	if err := m.navigateOnce(ctx, url); err != nil {
		return err
	}

	if m.onCrashPage(ctx) {
		log.Warn("crash page detected after navigation, reloading once", "url", url)
		navCtx, cancel := context.WithTimeout(m.session.tabCtx, m.cfg.NavTimeout)
		_ = chromedp.Run(navCtx, chromedp.Reload())
		cancel()
		if err := m.navigateOnce(ctx, url); err != nil {
			return err
		}
	}

	return m.AcceptConsent(ctx, url)
}

func (m *Manager) navigateOnce(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(m.session.tabCtx, m.cfg.NavTimeout)
	defer cancel()

	err := chromedp.Run(navCtx, chromedp.Navigate(url))
	if err == nil {
		return nil
	}
	if navCtx.Err() == context.DeadlineExceeded {
		// Slow page, not a dead one. Whatever rendered is still usable.
		log.Warn("navigation timed out, continuing with partial page", "url", url)
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("navigate %s: %w", url, err)
}

// onCrashPage scans title and body text for renderer crash markers.
func (m *Manager) onCrashPage(ctx context.Context) bool {
	var title, body string
	if err := m.Pane().Eval(ctx, `document.title || ''`, &title); err != nil {
		return false
	}
	_ = m.Pane().Eval(ctx, `document.body ? document.body.innerText.slice(0, 2000) : ''`, &body)
	text := strings.ToLower(title + " " + body)
	for _, marker := range crashMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// DetectBlock reports whether the current page shows an "unusual traffic"
// style block. The signal is advisory: callers decide whether to continue.
func (m *Manager) DetectBlock(ctx context.Context) bool {
	var loc, body string
	_ = m.Pane().Eval(ctx, `location.href`, &loc)
	_ = m.Pane().Eval(ctx, `document.body ? document.body.innerText.slice(0, 3000) : ''`, &body)
	return looksBlocked(loc, body)
}

func looksBlocked(url, body string) bool {
	text := strings.ToLower(url + " " + body)
	for _, marker := range blockMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// IsSessionError reports whether err indicates the browser itself died and a
// relaunch is the right recovery.
func IsSessionError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range sessionErrorMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// SetSearchURL records the search URL recovery should return to.
func (m *Manager) SetSearchURL(url string) { m.searchURL = url }

// Recover relaunches the browser after a session-level failure, waits out a
// suspected block, and re-enters the last search URL. The caller retries the
// current item afterwards.
func (m *Manager) Recover(ctx context.Context, cause error) error {
	blocked := false
	if cause != nil && looksBlocked("", cause.Error()) {
		blocked = true
	}
	if !blocked && m.session != nil {
		blocked = m.DetectBlock(ctx)
	}

	m.CaptureDebug(ctx, failureReason(blocked))
	m.Close()

	wait := crashBackoff
	if blocked {
		wait = blockBackoff
		log.Warn("suspected adversarial block, backing off", "wait", wait)
	} else {
		log.Warn("browser session lost, relaunching", "wait", wait, "cause", cause)
	}
	select {
	case <-time.After(wait):
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := m.launch(ctx); err != nil {
		return fmt.Errorf("session relaunch failed: %w", err)
	}
	if m.searchURL != "" {
		return m.Navigate(ctx, m.searchURL)
	}
	return nil
}

func failureReason(blocked bool) string {
	if blocked {
		return "blocked"
	}
	return "crashed"
}

// NoteProcessed counts one processed business and rotates the session when
// the configured interval is reached.
func (m *Manager) NoteProcessed(ctx context.Context) error {
	m.processed++
	if m.cfg.RotateEvery <= 0 || m.processed%m.cfg.RotateEvery != 0 {
		return nil
	}
	log.Info("rotation interval reached, recycling session", "processed", m.processed)
	m.Close()
	if err := m.launch(ctx); err != nil {
		return err
	}
	if m.searchURL != "" {
		return m.Navigate(ctx, m.searchURL)
	}
	return nil
}
