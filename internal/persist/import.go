package persist

import (
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/Chinzzii/docstore/internal/metrics"
	"github.com/Chinzzii/docstore/internal/store"
)

// Replacer swaps in a new Database wholesale, persisting it first.
// It's implemented by *store.Store.
type Replacer interface {
	Replace(store.Database) error
}

// ImportResult is the outcome of a bulk import.
type ImportResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ImportFrom reads the file at |path| and, if it decodes as a Database,
// replaces both the backing file and the Database held by |r| with it.
// A failed import leaves existing state untouched.
func (g *Gateway) ImportFrom(path string, r Replacer) ImportResult {
	var res = g.importFrom(path, r)

	var fields = log.Fields{"from": path, "path": g.path, "message": res.Message}
	if res.Success {
		metrics.ImportsTotal.WithLabelValues(metrics.Ok).Inc()
		log.WithFields(fields).Info("imported database")
	} else {
		metrics.ImportsTotal.WithLabelValues(metrics.Fail).Inc()
		log.WithFields(fields).Warn("import failed")
	}
	return res
}

func (g *Gateway) importFrom(path string, r Replacer) ImportResult {
	if path == "" {
		return ImportResult{Message: "no import file given"}
	}
	var b, err = afero.ReadFile(g.fs, path)
	if err != nil {
		return ImportResult{Message: errors.WithMessage(err, "reading import file").Error()}
	}
	db, err := Decode(b)
	if err != nil {
		return ImportResult{Message: err.Error()}
	}
	if err = r.Replace(db); err != nil {
		return ImportResult{Message: err.Error()}
	}

	var records int
	for _, seq := range db {
		records += len(seq)
	}
	return ImportResult{
		Success: true,
		Message: fmt.Sprintf("imported %d records across %d resources", records, len(db)),
	}
}
