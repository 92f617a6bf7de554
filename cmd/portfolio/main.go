// Command portfolio imports a transaction ledger, refreshes prices and
// reports holdings, either from the command line or as an HTTP service.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	commander.Register(&importCmd{}, "ledger")
	commander.Register(&resetCmd{}, "ledger")
	commander.Register(&refreshCmd{}, "prices")
	commander.Register(&holdingsCmd{}, "reports")
	commander.Register(&tickersCmd{}, "reports")
	commander.Register(&backupCmd{}, "maintenance")
	commander.Register(&serveCmd{}, "server")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
