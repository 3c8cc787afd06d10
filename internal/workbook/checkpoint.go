package workbook

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"mapleads/internal/model"
)

// Checkpointer persists enrichment progress after every record: a stable
// progress workbook, a timestamped backup of each save, and an emergency
// fallback used only when the normal save path fails during shutdown.
type Checkpointer struct {
	dir string
}

func NewCheckpointer(dir string) *Checkpointer {
	return &Checkpointer{dir: dir}
}

// ProgressPath is the stable filename overwritten on every checkpoint.
func (c *Checkpointer) ProgressPath() string {
	return filepath.Join(c.dir, "enrichment_progress.xlsx")
}

// Save overwrites the progress workbook and drops a timestamped backup copy.
// The backup failing is logged but does not fail the checkpoint.
func (c *Checkpointer) Save(records []model.BusinessRecord) error {
	if err := WriteTo(c.ProgressPath(), records, nil); err != nil {
		return err
	}
	backup := filepath.Join(c.dir, fmt.Sprintf("enrichment_backup_%s.xlsx", time.Now().Format("20060102_150405")))
	if err := WriteTo(backup, records, nil); err != nil {
		log.Warn("backup checkpoint failed", "path", backup, "err", err)
	}
	return nil
}

// EmergencySave is the last-ditch path used when Save fails during shutdown.
// It never returns an error; there is nothing left to do with one.
func (c *Checkpointer) EmergencySave(records []model.BusinessRecord) {
	path := filepath.Join(c.dir, fmt.Sprintf("enrichment_emergency_%d.xlsx", time.Now().UnixMilli()))
	if err := WriteTo(path, records, nil); err != nil {
		log.Error("emergency save failed, progress lost", "path", path, "err", err)
		return
	}
	log.Warn("progress preserved via emergency save", "path", path)
}
