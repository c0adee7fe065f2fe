// cmd/server/main.go
package main

import (
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/Chinzzii/docstore/internal/config"
)

// Config is the top-level configuration shared by every command.
var Config = new(config.Config)

func main() {
	var parser = flags.NewParser(Config, flags.Default)

	_, _ = parser.AddCommand("serve", "Serve the database over HTTP", `
Serve the JSON database file over a REST API, one route group per resource
present at startup, until signaled to exit (via SIGTERM or SIGINT). With
--store.watch, edits made to the file by other programs replace the in-memory
database.
`, &cmdServe{})

	_, _ = parser.AddCommand("import", "Replace the database with a file", `
Replace the content of the database file with the content of another JSON
database file. The server need not be running; a running server with
--store.watch enabled picks up the change.
`, &cmdImport{})

	_, _ = parser.AddCommand("export", "Write a snapshot of the database", `
Write the current content of the database file to another path, atomically.
`, &cmdExport{})

	_, _ = parser.AddCommand("stat", "Summarize the database file", `
Print a table of the resources of the database file, with their record
counts and the next id each would assign, followed by the file size.
`, &cmdStat{})

	_, _ = parser.AddCommand("list", "List records of a running server", `
List records of a resource from a running server, printed as a table.
Filters, sorting and limits are applied by the server.
`, &cmdList{})

	config.AddPrintConfigCmd(parser)
	config.MustParseConfig(parser, os.Args[1:])
}
