package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chromedp/chromedp"
)

// debugSnapshot is the JSON descriptor written alongside the screenshot and
// HTML dump whenever a crash, block, consent failure or stagnation is
// captured.
type debugSnapshot struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	BodyText  string    `json:"body_text"`
	Blocked   bool      `json:"blocked"`
	Crashed   bool      `json:"crashed"`
	UserAgent string    `json:"user_agent"`
	Captured  time.Time `json:"captured"`
	Reason    string    `json:"reason"`
}

// CaptureDebug writes a screenshot, a full HTML dump and a JSON descriptor of
// the current page into the debug directory, prefixed with the reason and a
// timestamp. Best effort: failures are logged, never propagated.
func (m *Manager) CaptureDebug(ctx context.Context, reason string) {
	if m.session == nil {
		return
	}
	if err := os.MkdirAll(m.cfg.DebugDir, 0o755); err != nil {
		log.Warn("cannot create debug dir", "dir", m.cfg.DebugDir, "err", err)
		return
	}
	prefix := fmt.Sprintf("%s_%s", reason, time.Now().Format("20060102_150405"))

	capCtx, cancel := context.WithTimeout(m.session.tabCtx, 15*time.Second)
	defer cancel()

	var shot []byte
	if err := chromedp.Run(capCtx, chromedp.CaptureScreenshot(&shot)); err == nil {
		writeArtifact(filepath.Join(m.cfg.DebugDir, prefix+".png"), shot)
	} else {
		log.Debug("screenshot capture failed", "err", err)
	}

	var html string
	if err := chromedp.Run(capCtx, chromedp.OuterHTML("html", &html)); err == nil {
		writeArtifact(filepath.Join(m.cfg.DebugDir, prefix+".html"), []byte(html))
	}

	snap := debugSnapshot{
		UserAgent: m.cfg.UserAgent,
		Captured:  time.Now(),
		Reason:    reason,
		Crashed:   reason == "crashed",
	}
	_ = m.Pane().Eval(ctx, `location.href`, &snap.URL)
	_ = m.Pane().Eval(ctx, `document.title || ''`, &snap.Title)
	_ = m.Pane().Eval(ctx, `document.body ? document.body.innerText.slice(0, 1500) : ''`, &snap.BodyText)
	snap.Blocked = looksBlocked(snap.URL, snap.BodyText)

	if data, err := json.MarshalIndent(snap, "", "  "); err == nil {
		writeArtifact(filepath.Join(m.cfg.DebugDir, prefix+".json"), data)
	}
	log.Info("debug artifacts captured", "reason", reason, "prefix", prefix)
}

func writeArtifact(path string, data []byte) {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Warn("debug artifact write failed", "path", path, "err", err)
	}
}
