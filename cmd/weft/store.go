package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/chazu/weft/bundle"
	"github.com/chazu/weft/manifest"
	"github.com/chazu/weft/store"
	"github.com/chazu/weft/til"
)

// openStore locates the store path through the manifest (falling back to
// .weft/bundles.db in the current directory) and opens it.
func openStore() (*store.Store, error) {
	path := filepath.Join(".weft", "bundles.db")
	if m, err := manifest.FindAndLoad("."); err == nil && m != nil {
		path = m.Store.Path
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return store.Open(path)
}

// handleStoreCommand processes the `weft store` subcommand.
func handleStoreCommand(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: weft store put|get|list ...")
		os.Exit(2)
	}

	s, err := openStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	switch args[0] {
	case "put":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "Usage: weft store put <file>")
			os.Exit(2)
		}
		data, err := os.ReadFile(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		b, err := bundle.Unmarshal(data)
		if err != nil {
			// A raw bytecode stream: wrap it on the way in.
			b = bundle.New(filepath.Base(args[1]), data)
		}
		if err := b.Verify(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := s.Put(b); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(b.HashString())

	case "get":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "Usage: weft store get <hash>")
			os.Exit(2)
		}
		b, err := s.Get(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		e, err := decodePayload(b.Payload)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(til.Print(e))
		fmt.Println()

	case "list":
		entries, err := s.List()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		for _, e := range entries {
			fmt.Printf("%s  %s\n", e.Hash, e.Name)
		}

	default:
		fmt.Fprintf(os.Stderr, "Unknown store command %q\n", args[0])
		os.Exit(2)
	}
}
