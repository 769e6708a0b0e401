// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/repcoach/engine/internal/util"
	"github.com/repcoach/engine/pkg/core"
)

// export writes the finished session to a recording file and remembers
// where it went. Called with b.mu held.
func (b *Backend) export(record *SessionRecord) error {
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create recordings directory: %w", err)
	}

	path := filepath.Join(b.cfg.OutputDir, b.recordingFilename(record))
	rec := core.Recording{
		Session: record.Session,
		Frames:  record.Frames,
		Summary: record.Summary,
	}
	if err := writeRecording(path, rec, b.cfg.CompressOutput); err != nil {
		return err
	}

	b.exports[record.Session.ID] = exportInfo{
		path: path,
		meta: buildMetadata(record),
	}
	return nil
}

// recordingFilename builds "<exercise>_<id>_<start>.json", with ".gz"
// appended when compression is on. The exercise and session ID are
// sanitized for the filesystem.
func (b *Backend) recordingFilename(record *SessionRecord) string {
	base := util.SafeFilename(fmt.Sprintf("%s_%s", record.Session.Exercise, record.Session.ID))
	name := fmt.Sprintf("%s_%s.json", base, record.Session.StartedAt.Format("20060102_150405"))
	if b.cfg.CompressOutput {
		name += ".gz"
	}
	return name
}

// buildMetadata derives the upload fields from the buffered data. The
// summary wins when present; the fallbacks cover sessions that were
// never finalized.
func buildMetadata(record *SessionRecord) core.UploadMetadata {
	meta := core.UploadMetadata{
		SessionID: record.Session.ID,
		Exercise:  string(record.Session.Exercise),
		Subject:   record.Session.Subject,
		Tag:       record.Session.Tag,
		RepCount:  len(record.Reps),
	}
	if n := len(record.Frames); n > 0 {
		meta.Duration = record.Frames[n-1].RelativeTime
	}
	if record.Summary != nil {
		meta.Duration = record.Summary.Duration
		meta.RepCount = record.Summary.RepCount
	}
	return meta
}

func writeRecording(path string, rec core.Recording, compress bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create recording file: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	if compress {
		gz := gzip.NewWriter(f)
		defer gz.Close()
		w = gz
	}
	return json.NewEncoder(w).Encode(rec)
}
