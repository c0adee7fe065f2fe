package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"

	"github.com/Chinzzii/docstore/internal/client"
	"github.com/Chinzzii/docstore/internal/config"
	"github.com/Chinzzii/docstore/internal/store"
)

type cmdList struct {
	Server string   `long:"server" short:"s" env:"DOCSTORE_SERVER" default:"localhost:5000" description:"Address of a running server"`
	Filter []string `long:"filter" short:"f" description:"Equality filter as field=value; may be repeated"`
	Sort   string   `long:"sort" description:"Field to sort by"`
	Order  string   `long:"order" default:"asc" choice:"asc" choice:"desc" description:"Sort order"`
	Limit  int      `long:"limit" short:"n" description:"Maximum number of records; zero lists all"`
	Format string   `long:"format" short:"o" default:"table" choice:"table" choice:"json" description:"Output format"`
	Args   struct {
		Resource string `positional-arg-name:"resource" required:"yes"`
	} `positional-args:"yes"`
}

func (cmd *cmdList) Execute([]string) error {
	if err := config.InitLog(Config.Log); err != nil {
		return err
	}

	var opts = client.ListOptions{
		Filters: make(map[string]string),
		Sort:    cmd.Sort,
		Desc:    store.ParseOrder(cmd.Order),
		Limit:   cmd.Limit,
	}
	for _, f := range cmd.Filter {
		var kv = strings.SplitN(f, "=", 2)
		if len(kv) != 2 || kv[0] == "" {
			return errors.Errorf("invalid filter %q (expected field=value)", f)
		}
		opts.Filters[kv[0]] = kv[1]
	}

	var c = client.New(config.NormalizeServerURL(cmd.Server))
	if Config.Auth.Key != "" {
		c.APIKey, c.Header = Config.Auth.Key, Config.Auth.Header
	}

	var records, err = c.List(cmd.Args.Resource, opts)
	if err == client.ErrNotFound {
		return errors.Errorf("resource %q is not served by %s", cmd.Args.Resource, c.BaseURL)
	} else if err != nil {
		return err
	}

	switch cmd.Format {
	case "json":
		var enc = json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	default:
		return writeRecords(os.Stdout, records)
	}
}

// writeRecords writes |records| as a table to |w|.
func writeRecords(w io.Writer, records []store.Record) error {
	var headers, rows = recordTable(records)

	var table = tablewriter.NewWriter(w)
	table.Header(headers)
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

// recordTable returns the union of fields of |records| as column headers,
// with "id" first and the rest in sorted order, and a row of each record.
// Fields a record lacks are rendered as "<none>".
func recordTable(records []store.Record) ([]string, [][]string) {
	var seen = map[string]bool{"id": true}
	var headers []string

	for _, rec := range records {
		for field := range rec {
			if !seen[field] {
				seen[field] = true
				headers = append(headers, field)
			}
		}
	}
	sort.Strings(headers)
	headers = append([]string{"id"}, headers...)

	var rows = make([][]string, 0, len(records))
	for _, rec := range records {
		var row = make([]string, len(headers))
		for i, field := range headers {
			row[i] = cell(rec, field)
		}
		rows = append(rows, row)
	}
	return headers, rows
}

func cell(rec store.Record, field string) string {
	var v, ok = rec[field]
	if !ok {
		return "<none>"
	}
	switch v := v.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case nil:
		return "null"
	}
	var b, err = json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
