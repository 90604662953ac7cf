package main

import (
	"github.com/bnema/catalogd/internal/adapters/in/cli"
)

// Stamped with -ldflags "-X main.version=... -X main.commit=... -X main.date=...".
var (
	version string
	commit  string
	date    string
)

func main() {
	cli.Execute(version, commit, date)
}
