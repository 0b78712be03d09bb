// Package main is the single-binary entrypoint for weft, a demonstration
// server for HTTP request-concurrency trade-offs.
package main

import "github.com/weftworks/weft/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
