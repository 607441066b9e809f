// Command bulkctl lets operators inspect the bulk operation log, preview filters and roll back
// operations without going through the HTTP API.
package main

import (
	"os"
)

func main() {
	os.Exit(run())
}

func run() int {
	a := &app{out: os.Stdout}
	defer a.close()

	if err := newRootCmd(a).Execute(); err != nil {
		return 1
	}
	return 0
}
