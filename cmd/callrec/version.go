package main

import (
	"runtime"

	"github.com/spf13/cobra"

	"callrec/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		printResponse(&VersionResponseCLI{
			Version:   version.Version,
			Commit:    version.Commit,
			BuildDate: version.BuildDate,
			Go:        runtime.Version(),
			Banner:    version.Full(),
		})
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// VersionResponseCLI carries build information.
type VersionResponseCLI struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"buildDate"`
	Go        string `json:"go"`
	Banner    string `json:"-"`
}
