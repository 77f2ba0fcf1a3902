package spool

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/tournamentfeed/internal/domain"
	apperrors "github.com/pscheid92/tournamentfeed/internal/platform/errors"
)

// Writer drops envelopes into the spool directory. Files are written under a
// dot-prefixed temporary name and renamed into place, so a poller only ever
// sees complete files. Names sort by creation time.
type Writer struct {
	dir    string
	prefix string
	ext    string
	clock  clockwork.Clock
}

func NewWriter(dir, prefix, ext string, clock clockwork.Clock) *Writer {
	return &Writer{dir: dir, prefix: prefix, ext: ext, clock: clock}
}

// Write stores env and returns the final path.
func (w *Writer) Write(env domain.Envelope) (string, error) {
	data, err := env.Encode()
	if err != nil {
		return "", apperrors.ValidationError(err.Error())
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", apperrors.SpoolIOError("create spool directory", err).WithField("dir", w.dir)
	}

	name := fmt.Sprintf("%s%d_%s%s", w.prefix, w.clock.Now().UnixNano(), uuid.NewString(), w.ext)
	final := filepath.Join(w.dir, name)

	tmp, err := os.CreateTemp(w.dir, ".spool-*.tmp")
	if err != nil {
		return "", apperrors.SpoolIOError("create temp file", err).WithField("dir", w.dir)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", apperrors.SpoolIOError("write temp file", err).WithField("file", tmpName)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", apperrors.SpoolIOError("close temp file", err).WithField("file", tmpName)
	}
	if err := os.Rename(tmpName, final); err != nil {
		_ = os.Remove(tmpName)
		return "", apperrors.SpoolIOError("rename spool file", err).WithField("file", final)
	}
	return final, nil
}
