// Command xmlkit is a thin front-end over the xmlkit package, kept
// minimal, and exists only to give the ambient logging/config stack
// somewhere to live, the way a small cmd/ front-end does for a library's
// code generator.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/xmlkit-go/xmlkit/xmlkit"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	fs := flag.NewFlagSet("xmlkit", flag.ExitOnError)
	validating := fs.Bool("validate", false, "validate against a DOCTYPE or xsi:schemaLocation grammar")
	includeDefaults := fs.Bool("defaults", false, "materialize grammar-declared default attributes")
	canonical := fs.Bool("canon", false, "print the canonical (W3C C14N) form instead of a diagnostic summary")
	fs.Parse(os.Args[1:])

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: xmlkit [-validate] [-defaults] [-canon] FILE")
		os.Exit(2)
	}
	path := fs.Arg(0)

	opts := xmlkit.Options{
		Validating:               *validating,
		IncludeDefaultAttributes: *includeDefaults,
	}
	if *validating {
		opts.GrammarHandler = xmlkit.DefaultGrammarHandler(*validating)
	}

	result, err := xmlkit.Parse(path, nil, opts)
	if err != nil {
		log.Error("parse failed", "path", path, "error", err)
		os.Exit(1)
	}
	for _, verr := range result.Errors {
		log.Warn("validation fault", "path", path, "error", verr)
	}

	if *canonical {
		out, err := xmlkit.Canonicalize(result.Document)
		if err != nil {
			log.Error("canonicalize failed", "path", path, "error", err)
			os.Exit(1)
		}
		os.Stdout.Write(out)
		return
	}

	log.Info("parsed", "path", path, "validationFaults", len(result.Errors))
	if *validating && len(result.Errors) > 0 {
		os.Exit(1)
	}
}
