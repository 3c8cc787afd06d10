package browser

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chromedp/chromedp"
)

const consentAttempts = 4

// Click strategies tried in order against a consent interstitial: exact
// button text in both run languages, known stable identifiers, then a
// generic form submit.
const consentClickJS = `((labels) => {
	for (const label of labels) {
		for (const btn of document.querySelectorAll('button')) {
			if (btn.textContent && btn.textContent.trim() === label) {
				btn.click();
				return 'text:' + label;
			}
		}
	}
	for (const sel of ['#L2AGLb', 'button[aria-label="Accept all"]', 'button[aria-label="Godta alle"]']) {
		const btn = document.querySelector(sel);
		if (btn) {
			btn.click();
			return 'selector:' + sel;
		}
	}
	const submit = document.querySelector('form[action*="consent"] button[type="submit"], form[action*="consent"] input[type="submit"]');
	if (submit) {
		submit.click();
		return 'form-submit';
	}
	return '';
})`

// AcceptConsent negotiates a consent interstitial when the tab landed on
// one. Automated bypass is attempted a bounded number of times; if all of it
// fails the run blocks on explicit operator confirmation rather than failing
// silently.
func (m *Manager) AcceptConsent(ctx context.Context, originURL string) error {
	for attempt := 1; attempt <= consentAttempts; attempt++ {
		var loc string
		if err := m.Pane().Eval(ctx, `location.href`, &loc); err != nil {
			return nil // no page to negotiate with; let the caller find out
		}
		if !onConsentDomain(loc) {
			return nil
		}
		log.Info("consent wall detected", "attempt", attempt, "url", loc)

		var clicked string
		labelsJS := fmt.Sprintf("%s(%s)", consentClickJS, jsStringArray(m.cfg.ConsentLanguages))
		if err := m.Pane().Eval(ctx, labelsJS, &clicked); err == nil && clicked != "" {
			log.Info("consent accepted", "via", clicked)
			m.settle(ctx)
			continue
		}

		// No clickable control: follow the continue redirect directly.
		if target := continueTarget(loc); target != "" {
			log.Info("consent bypass via continue parameter", "target", target)
			navCtx, cancel := context.WithTimeout(m.session.tabCtx, m.cfg.NavTimeout)
			_ = chromedp.Run(navCtx, chromedp.Navigate(target))
			cancel()
			m.settle(ctx)
			continue
		}
		m.settle(ctx)
	}

	var loc string
	_ = m.Pane().Eval(ctx, `location.href`, &loc)
	if !onConsentDomain(loc) {
		return nil
	}

	// Deliberate human-in-the-loop escape hatch: automated bypass exhausted.
	m.CaptureDebug(ctx, "consent")
	m.confirm("Consent wall could not be bypassed automatically.\n" +
		"Resolve it in the browser window, then press Enter to continue...")
	if originURL != "" {
		return m.navigateOnce(ctx, originURL)
	}
	return nil
}

func (m *Manager) settle(ctx context.Context) {
	select {
	case <-time.After(m.cfg.RandomDelay()):
	case <-ctx.Done():
	}
}

func onConsentDomain(loc string) bool {
	u, err := url.Parse(loc)
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(u.Hostname()), "consent.")
}

// continueTarget extracts the post-consent redirect URL from a consent page
// address, when present.
func continueTarget(loc string) string {
	u, err := url.Parse(loc)
	if err != nil {
		return ""
	}
	return u.Query().Get("continue")
}

func jsStringArray(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = fmt.Sprintf("%q", item)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

// promptOperator blocks until the operator acknowledges on stdin.
func promptOperator(prompt string) {
	fmt.Fprintln(os.Stderr, prompt)
	_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
}
