// Version command for the gridwatch CLI.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/gridcache/pkg/gridcache"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the gridwatch version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("gridwatch", gridcache.Version)
	},
}
