package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chinzzii/docstore/internal/store"
)

func TestRecordTable(t *testing.T) {
	var headers, rows = recordTable([]store.Record{
		{"id": json.Number("2"), "name": "English", "tags": []any{"a", "b"}},
		{"id": "x", "name": "Math", "level": nil},
	})

	assert.Equal(t, []string{"id", "level", "name", "tags"}, headers)
	assert.Equal(t, [][]string{
		{"2", "<none>", "English", `["a","b"]`},
		{"x", "null", "Math", "<none>"},
	}, rows)
}

func TestRecordTableEmpty(t *testing.T) {
	var headers, rows = recordTable(nil)
	assert.Equal(t, []string{"id"}, headers)
	assert.Empty(t, rows)
}

func TestStatRows(t *testing.T) {
	var db = store.Database{
		"Subject": {{"id": json.Number("1")}, {"id": "7"}, {"id": "abc"}},
		"Batch":   {{"id": "1", "batch_no": "1"}},
		"Exam":    {},
		"Result":  {{"id": json.Number("1e19")}},
	}
	assert.Equal(t, [][]string{
		{"Batch", "1", "2"},
		{"Exam", "0", "1"},
		{"Result", "1", "<overflow>"},
		{"Subject", "3", "8"},
	}, statRows(db))

	var buf bytes.Buffer
	require.NoError(t, writeStat(&buf, db))
	require.Contains(t, buf.String(), "Subject")
	require.Contains(t, buf.String(), "Batch")
}
