// Binary amoeba evaluates a Datalog source file against its paired SQLite
// database and prints the results of its @output queries.
package main

import (
	"flag"
	"os"

	log "github.com/golang/glog"

	"github.com/Dune-Z/Seminaive-Datalog/engine"
	"github.com/Dune-Z/Seminaive-Datalog/parse"
)

var (
	source  = flag.String("source", "", "path to a .amo source file (required)")
	verbose = flag.Bool("verbose", false, "log stratification and iteration progress")
)

func main() {
	flag.Usage = func() {
		os.Stderr.WriteString("Usage: amoeba --source <path.amo> [--verbose]\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *source == "" {
		flag.Usage()
		os.Exit(2)
	}

	text, err := os.ReadFile(*source)
	if err != nil {
		log.Exitf("reading %s: %v", *source, err)
	}

	program, err := parse.Program(string(text))
	if err != nil {
		log.Exitf("parsing %s: %v", *source, err)
	}

	runtime, err := engine.NewRuntime(*source, program, *verbose)
	if err != nil {
		log.Exitf("initializing runtime for %s: %v", *source, err)
	}

	if err := runtime.Eval(); err != nil {
		log.Exitf("evaluating %s: %v", *source, err)
	}
}
