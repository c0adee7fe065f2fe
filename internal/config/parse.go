package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"
)

// IniFilename is the optional INI file merged beneath flags and environment.
const IniFilename = "docstore.ini"

// IniSearchPath returns the directories searched for IniFilename, in order.
func IniSearchPath() []string {
	return []string{
		".",
		filepath.Join(os.Getenv("HOME"), ".config", "docstore"),
		filepath.Join(os.Getenv("UserProfile"), ".config", "docstore"),
	}
}

// ParseIni merges the first IniFilename found on the search path into the
// Parser's options. A missing file is not an error.
func ParseIni(parser *flags.Parser, dirs []string) error {
	// Allow unknown options while parsing an INI file.
	var origOptions = parser.Options
	parser.Options |= flags.IgnoreUnknown
	defer func() { parser.Options = origOptions }()

	var iniParser = flags.NewIniParser(parser)

	for _, dir := range dirs {
		var path = filepath.Join(dir, IniFilename)

		if err := iniParser.ParseFile(path); err == nil {
			log.WithField("path", path).Debug("parsed config file")
			return nil
		} else if os.IsNotExist(err) {
			// Pass.
		} else {
			return err
		}
	}
	return nil
}

// MustParseConfig parses the combination of an optional INI file,
// environment bindings, and explicit flags, executing the selected command.
// It exits the process on any parse or command failure.
func MustParseConfig(parser *flags.Parser, args []string) {
	if err := ParseIni(parser, IniSearchPath()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if _, err := parser.ParseArgs(args); err != nil {
		var flagErr, ok = err.(*flags.Error)
		if !ok {
			// The command itself failed.
			log.WithField("err", err).Fatal("command failed")
		}

		switch flagErr.Type {
		case flags.ErrDuplicatedFlag, flags.ErrTag, flags.ErrInvalidTag, flags.ErrShortNameTooLong, flags.ErrMarshal:
			// A developer error in the configuration object, rather than input error.
			panic(err)

		case flags.ErrCommandRequired:
			os.Stderr.WriteString("\n")
			parser.WriteHelp(os.Stderr)
			os.Exit(1)

		case flags.ErrHelp:
			if parser.Options&flags.PrintErrors == 0 {
				parser.WriteHelp(os.Stderr)
			}
			os.Exit(0)

		default:
			// go-flags has already printed a helpful message.
			os.Exit(1)
		}
	}
}

// AddPrintConfigCmd registers "print-config", which dumps the effective
// configuration as an INI file. Its output is a valid docstore.ini.
func AddPrintConfigCmd(parser *flags.Parser) {
	_, _ = parser.AddCommand("print-config", "Show the effective configuration", `
Resolve the configuration from `+IniFilename+`, environment variables and flags,
in increasing order of precedence, and write it to stdout as an INI file
suitable for use as `+IniFilename+`. Options left at their defaults are
written commented out.
`, &printConfig{parser: parser, out: os.Stdout})
}

type printConfig struct {
	parser *flags.Parser
	out    io.Writer
}

func (p *printConfig) Execute([]string) error {
	flags.NewIniParser(p.parser).Write(p.out,
		flags.IniIncludeComments|flags.IniCommentDefaults|flags.IniIncludeDefaults)
	return nil
}
