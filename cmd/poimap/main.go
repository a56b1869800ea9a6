// Command poimap ingests point-of-interest source tables into a store and
// serves the resulting catalog to map clients.
//
// Usage:
//
//	poimap ingest              # seed every unseeded category once
//	poimap serve [--ingest]    # serve the catalog, optionally seeding first
//	poimap validate            # check source tables without writing
//	poimap categories          # list categories and their sources
//
// Configuration comes from environment variables; a .env file in the
// working directory is loaded first when present.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
