package main

import (
	"os"

	flags "github.com/jessevdk/go-flags"
)

// cliOptions are the command-line flags node accepts, on top of the JSON
// config file loaded from ConfigFile. Grounded on flokicoin's
// flokicoind-cli/config.go use of go-flags struct tags.
type cliOptions struct {
	ConfigFile string `short:"c" long:"config" description:"Path to configuration file" default:"config.json"`
	KeyFile    string `short:"k" long:"key" description:"Path to node identity keystore file" default:"node.key"`
	GenKey     bool   `long:"genkey" description:"Generate a new node identity key and exit"`
	GenCerts   string `long:"gencerts" description:"Generate CA + node TLS certs into the given directory and exit"`
}

// parseCLI parses os.Args, printing usage and exiting on --help or a parse
// error (go-flags' own behavior via flags.Default).
func parseCLI() *cliOptions {
	var opts cliOptions
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
	return &opts
}
