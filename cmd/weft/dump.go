package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/chazu/weft/bundle"
	"github.com/chazu/weft/bytecode"
	"github.com/chazu/weft/til"
)

// decodeFile reads a bundle (or, as a fallback, a raw bytecode stream)
// from path and rebuilds the IR.
func decodeFile(path string) (til.SExpr, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeBytes(data)
}

func decodeBytes(data []byte) (til.SExpr, error) {
	payload := data
	if b, err := bundle.Unmarshal(data); err == nil {
		if err := b.Verify(); err != nil {
			return nil, err
		}
		payload = b.Payload
	}
	return decodePayload(payload)
}

func decodePayload(payload []byte) (til.SExpr, error) {
	arena := til.NewArena()
	r := bytecode.NewReader(
		bytecode.NewStreamReader(bytes.NewReader(payload)),
		til.NewBuilder(arena))
	e := r.Read()
	if e == nil {
		return nil, fmt.Errorf("malformed bytecode: %w", r.Err())
	}
	return e, nil
}

// handleDumpCommand processes the `weft dump` subcommand.
func handleDumpCommand(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: weft dump <file>")
		os.Exit(2)
	}
	e, err := decodeFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Print(til.Print(e))
	fmt.Println()
}

// handleVerifyCommand processes the `weft verify` subcommand.
func handleVerifyCommand(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: weft verify <file>")
		os.Exit(2)
	}
	if _, err := decodeFile(args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("ok")
}
