package persist

import (
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/Chinzzii/docstore/internal/store"
)

// DefaultDatabase is the built-in bootstrap content: a "Batch" collection
// seeded with a first batch, and empty collections for the other resources
// of an exam manager.
func DefaultDatabase() store.Database {
	return store.Database{
		"Batch":    {{"batch_no": "1", "id": "1"}},
		"Class":    {},
		"Exam":     {},
		"Question": {},
		"Result":   {},
		"Subject":  {},
		"User":     {},
	}
}

// LoadSeed reads an alternative bootstrap Database from |path| of |fs|.
// The returned func yields a fresh copy on each call.
func LoadSeed(fs afero.Fs, path string) (func() store.Database, error) {
	var b, err = afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.WithMessage(err, "reading seed file")
	}
	seed, err := Decode(b)
	if err != nil {
		return nil, errors.WithMessagef(err, "decoding seed file %s", path)
	}
	return seed.Clone, nil
}
