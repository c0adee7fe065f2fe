package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/Chinzzii/docstore/internal/config"
	"github.com/Chinzzii/docstore/internal/store"
)

type fileArg struct {
	File string `positional-arg-name:"file" required:"yes"`
}

type cmdImport struct {
	Args fileArg `positional-args:"yes"`
}

func (cmd *cmdImport) Execute([]string) error {
	if err := config.InitLog(Config.Log); err != nil {
		return err
	}

	var gw, err = openGateway(afero.NewOsFs())
	if err != nil {
		return err
	}
	db, err := gw.Load()
	if err != nil {
		return err
	}
	// Offline imports always surface write failures.
	var st = store.New(db, gw, store.WithStrictPersistence(true))

	var result = gw.ImportFrom(cmd.Args.File, st)
	if !result.Success {
		return errors.New(result.Message)
	}
	fmt.Println(result.Message)
	return nil
}

type cmdExport struct {
	Args fileArg `positional-args:"yes"`
}

func (cmd *cmdExport) Execute([]string) error {
	if err := config.InitLog(Config.Log); err != nil {
		return err
	}

	var gw, err = openGateway(afero.NewOsFs())
	if err != nil {
		return err
	}
	db, err := gw.Read()
	if err != nil {
		return err
	}
	return gw.Export(cmd.Args.File, db)
}

type cmdStat struct{}

func (cmdStat) Execute([]string) error {
	if err := config.InitLog(Config.Log); err != nil {
		return err
	}

	var fs = afero.NewOsFs()
	var gw, err = openGateway(fs)
	if err != nil {
		return err
	}
	db, err := gw.Read()
	if err != nil {
		return err
	}
	info, err := fs.Stat(gw.Path())
	if err != nil {
		return errors.WithMessage(err, "stat of database file")
	}

	if err = writeStat(os.Stdout, db); err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", gw.Path(), humanize.Bytes(uint64(info.Size())))
	return nil
}

// writeStat writes a table of the resources of |db| to |w|.
func writeStat(w io.Writer, db store.Database) error {
	var table = tablewriter.NewWriter(w)
	table.Header([]string{"Resource", "Records", "Next ID"})

	for _, row := range statRows(db) {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

func statRows(db store.Database) [][]string {
	var names []string
	for name := range db {
		names = append(names, name)
	}
	sort.Strings(names)

	var out [][]string
	for _, name := range names {
		var next = "<overflow>"
		if id, err := store.NextID(db[name]); err == nil {
			next = strconv.FormatInt(id, 10)
		}
		out = append(out, []string{name, strconv.Itoa(len(db[name])), next})
	}
	return out
}
