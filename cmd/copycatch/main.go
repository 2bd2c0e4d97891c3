// Copycatch - Crawl Evidence Infringement Detection & Delivery
// Copyright 2026 The Copycatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/copycatch/copycatch

// Command copycatch runs the infringement detection and delivery
// pipeline. Exit codes: 0 on success, 1 when a run fails, 2 on usage
// or configuration errors.
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	os.Exit(run())
}

func run() int {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "copycatch: %v\n", err)
		var ue *usageError
		if errors.As(err, &ue) {
			return 2
		}
		return 1
	}
	return 0
}
