// cmd/evaepic/main.go
//
// Entry point for the evaepic CLI. With no subcommand it opens the
// dashboard; the other subcommands run headless, inspect the frame journal
// or serve the scripted mock backend.

package main

import (
	"fmt"
	"os"
	"strings"
)

const usage = `usage: evaepic <command> [flags]

commands:
  tui           open the negotiation dashboard (default)
  run           run one negotiation headless and print the outcome
  replay        re-derive a recorded run from the journal
  runs          list recorded runs
  mock-backend  serve a scripted negotiation backend

run "evaepic <command> -h" for command flags`

func main() {
	args := os.Args[1:]
	command := "tui"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}
	var err error
	switch command {
	case "tui":
		err = runTUI(args)
	case "run":
		err = runHeadless(args)
	case "replay":
		err = runReplay(args)
	case "runs":
		err = runList(args)
	case "mock-backend":
		err = runMockBackend(args)
	case "help", "-h", "--help":
		fmt.Println(usage)
		return
	default:
		die("unknown command %q\n\n%s", command, usage)
	}
	if err != nil {
		die("%s: %v", command, err)
	}
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
