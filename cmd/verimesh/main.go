// Package main is the single-binary entrypoint for VeriMesh.
package main

import "github.com/verimesh/verimesh/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
