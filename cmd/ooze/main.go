package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ooze-lang/ooze"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ooze <command> [scripts...]\n")
		fmt.Fprintf(os.Stderr, "\nCommands:\n")
		fmt.Fprintf(os.Stderr, "  run <scripts...>    Parse the scripts and evaluate main()\n")
		fmt.Fprintf(os.Stderr, "  repl [scripts...]   Parse the scripts and start an interactive session\n")
	}
	flag.Parse()

	env := ooze.NewEnv()
	os.Exit(ooze.Main(flag.Args(), env, os.Stdin, os.Stdout, os.Stderr))
}
