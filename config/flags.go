package config

import (
	"flag"
	"io"
)

// Flags command line options. Non-empty values override the YAML config.
type Flags struct {
	ConfigPath string
	Setup      bool
	ListenAddr string
	Storage    string
	DataDir    string
	LogLevel   string
}

// ParseFlags parses args (without the program name).
func ParseFlags(args []string) (Flags, error) {
	var f Flags
	fs := flag.NewFlagSet("folio", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&f.ConfigPath, "config", "", "path to yaml config")
	fs.BoolVar(&f.Setup, "setup", false, "run the interactive config wizard and write config.gen.yaml")
	fs.StringVar(&f.ListenAddr, "addr", "", "http listen address, example: :8080")
	fs.StringVar(&f.Storage, "storage", "", "storage driver: memory, wal, sqlite3 or postgres")
	fs.StringVar(&f.DataDir, "datadir", "", "directory for the WAL or the sqlite database")
	fs.StringVar(&f.LogLevel, "loglevel", "", "log level: debug or info")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	return f, nil
}
