// Package main provides the gridwatch CLI: a small client for watching and
// inspecting a cached table over a local database or a websocket backend.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
