package main

import (
	"os"

	flags "github.com/jessevdk/go-flags"
)

type options struct {
	Serve   ServeCommand   `command:"serve" description:"Run the authorization engine and node configuration endpoint"`
	Migrate MigrateCommand `command:"migrate" description:"Apply migrations to the backing store"`
}

func main() {
	parser := flags.NewParser(&options{}, flags.HelpFlag|flags.PassDoubleDash)

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			parser.WriteHelp(os.Stdout)
			os.Exit(0)
		}
		os.Exit(1)
	}
}
