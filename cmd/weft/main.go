// Weft CLI - inspect, verify, and store serialized IR bundles.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: weft [options] <command> [args]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  dump <file>         Decode a bundle or raw bytecode stream and print the IR\n")
		fmt.Fprintf(os.Stderr, "  verify <file>       Decode a bundle and report whether it is well-formed\n")
		fmt.Fprintf(os.Stderr, "  store put <file>    Add a bundle to the content store\n")
		fmt.Fprintf(os.Stderr, "  store get <hash>    Print a stored bundle's IR\n")
		fmt.Fprintf(os.Stderr, "  store list          List stored bundles\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nThe store path comes from weft.toml (see manifest).\n")
	}
	flag.Parse()

	if *verbose {
		commonlog.Configure(1, nil)
	} else {
		commonlog.Configure(0, nil)
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	switch args[0] {
	case "dump":
		handleDumpCommand(args[1:])
	case "verify":
		handleVerifyCommand(args[1:])
	case "store":
		handleStoreCommand(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n", args[0])
		flag.Usage()
		os.Exit(2)
	}
}
