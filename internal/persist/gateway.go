// Package persist bridges a store.Database to a single JSON file.
package persist

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/natefinch/atomic"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/tailscale/hujson"

	"github.com/Chinzzii/docstore/internal/metrics"
	"github.com/Chinzzii/docstore/internal/store"
)

// ErrMalformed is returned when file content is not a JSON object mapping
// resource names to arrays of records.
var ErrMalformed = errors.New("malformed database file")

// Gateway reads and writes a store.Database as one pretty-printed JSON file.
// It implements store.Persister.
type Gateway struct {
	fs       afero.Fs              // fs holds the backing file
	path     string                // path of the backing file
	defaults func() store.Database // defaults builds the bootstrap Database

	mu     sync.Mutex // mu protects digest
	digest *[sha256.Size]byte
}

var _ store.Persister = &Gateway{} // Gateway is-a Persister.

// Option configures a Gateway.
type Option func(*Gateway)

// WithDefaults replaces the Database written when the file is missing,
// empty or corrupt.
func WithDefaults(fn func() store.Database) Option {
	return func(g *Gateway) { g.defaults = fn }
}

// NewGateway returns a Gateway over |path| of |fs|.
func NewGateway(fs afero.Fs, path string, opts ...Option) *Gateway {
	var g = &Gateway{fs: fs, path: path, defaults: DefaultDatabase}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Path returns the backing file path.
func (g *Gateway) Path() string { return g.path }

// Load returns the Database held by the backing file. If the file is
// missing, empty, or doesn't decode, the default Database is written in its
// place and returned. Only a file which exists but can't be read is an error.
func (g *Gateway) Load() (store.Database, error) {
	var b, err = afero.ReadFile(g.fs, g.path)

	if os.IsNotExist(err) {
		return g.bootstrap("missing"), nil
	} else if err != nil {
		return nil, errors.WithMessage(err, "reading database file")
	} else if len(bytes.TrimSpace(b)) == 0 {
		return g.bootstrap("empty"), nil
	}

	var sum = sha256.Sum256(b)
	db, err := Decode(b)
	if err != nil {
		log.WithFields(log.Fields{"path": g.path, "err": err}).Warn("database file is corrupt")
		return g.bootstrap("corrupt"), nil
	}
	g.remember(sum)

	log.WithFields(log.Fields{
		"path":      g.path,
		"resources": len(db),
		"size":      humanize.Bytes(uint64(len(b))),
	}).Info("loaded database")
	return db, nil
}

// Read returns the Database held by the backing file, without any
// bootstrapping: a missing, empty or corrupt file is an error.
func (g *Gateway) Read() (store.Database, error) {
	var b, err = afero.ReadFile(g.fs, g.path)
	if err != nil {
		return nil, errors.WithMessage(err, "reading database file")
	}
	var sum = sha256.Sum256(b)

	db, err := Decode(b)
	if err != nil {
		return nil, err
	}
	g.remember(sum)
	return db, nil
}

// ReadIfChanged is like Read, but returns a nil Database and nil error if
// the file content is identical to what this Gateway last read or wrote.
// It's suited as the loader of store.Store.Reload.
func (g *Gateway) ReadIfChanged() (store.Database, error) {
	var b, err = afero.ReadFile(g.fs, g.path)
	if err != nil {
		return nil, errors.WithMessage(err, "reading database file")
	}
	var sum = sha256.Sum256(b)

	g.mu.Lock()
	var same = g.digest != nil && *g.digest == sum
	g.mu.Unlock()

	if same {
		return nil, nil
	}
	db, err := Decode(b)
	if err != nil {
		return nil, err
	}
	g.remember(sum)
	return db, nil
}

// Save writes |db| to a temporary file and renames it over the backing
// file, so that readers never observe a partial snapshot. Failures are
// logged and returned; callers decide whether to surface them.
func (g *Gateway) Save(db store.Database) error {
	var b, err = Encode(db)
	if err == nil {
		err = g.write(b)
	}
	if err != nil {
		metrics.SavesTotal.WithLabelValues(metrics.Fail).Inc()
		log.WithFields(log.Fields{"path": g.path, "err": err}).Error("failed to save database")
		return err
	}

	metrics.SavesTotal.WithLabelValues(metrics.Ok).Inc()
	metrics.SavedBytesTotal.Add(float64(len(b)))
	log.WithFields(log.Fields{
		"path": g.path,
		"size": humanize.Bytes(uint64(len(b))),
	}).Debug("saved database")
	return nil
}

// Export writes |db| to |path| of the local filesystem, atomically.
func (g *Gateway) Export(path string, db store.Database) error {
	var b, err = Encode(db)
	if err != nil {
		return err
	}
	return errors.WithMessage(atomic.WriteFile(path, bytes.NewReader(b)), "exporting database")
}

func (g *Gateway) write(b []byte) error {
	if err := g.fs.MkdirAll(filepath.Dir(g.path), 0755); err != nil {
		return errors.WithMessage(err, "creating database directory")
	}
	var next = g.path + ".next"

	// Remember the content before it lands, so a watcher notified of the
	// rename recognizes it as our own.
	g.remember(sha256.Sum256(b))

	if err := afero.WriteFile(g.fs, next, b, 0644); err != nil {
		return errors.WithMessage(err, "writing next database file")
	} else if err = g.fs.Rename(next, g.path); err != nil {
		return errors.WithMessage(err, "renaming next => current")
	}
	return nil
}

func (g *Gateway) bootstrap(reason string) store.Database {
	var db = g.defaults()
	log.WithFields(log.Fields{"path": g.path, "reason": reason}).Info("writing default database")

	// Save logs its own failure. The default is served from memory regardless.
	_ = g.Save(db)
	return db
}

func (g *Gateway) remember(sum [sha256.Size]byte) {
	g.mu.Lock()
	g.digest = &sum
	g.mu.Unlock()
}

// Decode parses a Database from |b|. Comments and trailing commas, as
// commonly left by hand edits, are tolerated. Numbers decode as json.Number
// so that they round-trip unchanged.
func Decode(b []byte) (store.Database, error) {
	var std, err = hujson.Standardize(append([]byte(nil), b...))
	if err != nil {
		return nil, errors.WithMessage(ErrMalformed, err.Error())
	}

	var dec = json.NewDecoder(bytes.NewReader(std))
	dec.UseNumber()

	var db store.Database
	if err = dec.Decode(&db); err != nil {
		return nil, errors.WithMessage(ErrMalformed, err.Error())
	} else if err = dec.Decode(&struct{}{}); err != io.EOF {
		return nil, errors.WithMessage(ErrMalformed, "unexpected trailing content")
	} else if db == nil {
		return nil, errors.WithMessage(ErrMalformed, "expected an object of resources")
	}

	for name, seq := range db {
		if seq == nil {
			db[name] = []store.Record{}
		}
		for i, rec := range seq {
			if rec == nil {
				return nil, errors.WithMessagef(ErrMalformed, "%s[%d] is not an object", name, i)
			}
		}
	}
	return db, nil
}

// Encode renders |db| as indented JSON, without HTML escaping.
func Encode(db store.Database) ([]byte, error) {
	var buf bytes.Buffer
	var enc = json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")

	if err := enc.Encode(db); err != nil {
		return nil, errors.WithMessage(err, "encoding database")
	}
	return buf.Bytes(), nil
}
