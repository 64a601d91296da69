package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Build metadata, set with -ldflags "-X .../cmd.Version=..." by release builds.
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildDate = "unknown"
)

// buildInfo is what `version` reports.
type buildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// currentBuild fills the commit from the embedded VCS stamp when ldflags
// did not set it.
func currentBuild() buildInfo {
	info := buildInfo{Version: Version, Commit: CommitSHA, BuildDate: BuildDate, GoVersion: runtime.Version()}
	if info.Commit != "unknown" {
		return info
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				info.Commit = s.Value
			case "vcs.time":
				if info.BuildDate == "unknown" {
					info.BuildDate = s.Value
				}
			}
		}
	}
	return info
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the kiosk build",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := currentBuild()
		if mustGetBool(cmd, "json") {
			return json.NewEncoder(os.Stdout).Encode(info)
		}
		fmt.Printf("attendance-kiosk %s (%s)\n", info.Version, info.GoVersion)
		fmt.Printf("  commit %s, built %s\n", info.Commit, info.BuildDate)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().Bool("json", false, "Output as JSON")
}
