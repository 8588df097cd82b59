package cmd

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// version is set with -ldflags "-X github.com/abhisek/coursepilot/cmd.version=v1.2.3".
var version = ""

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build information",
	Run: func(cmd *cobra.Command, args []string) {
		v, rev, goVersion := buildInfo()
		fmt.Fprintf(cmd.OutOrStdout(), "coursepilot %s", v)
		if rev != "" {
			fmt.Fprintf(cmd.OutOrStdout(), " (%s)", rev)
		}
		fmt.Fprintf(cmd.OutOrStdout(), " %s\n", goVersion)
	},
}

// buildInfo falls back to the module version and VCS revision embedded by
// the Go toolchain when no version was injected at link time.
func buildInfo() (v, revision, goVersion string) {
	v = version
	info, ok := debug.ReadBuildInfo()
	if !ok {
		if v == "" {
			v = "(devel)"
		}
		return v, "", ""
	}
	if v == "" {
		v = info.Main.Version
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && len(s.Value) >= 12 {
			revision = s.Value[:12]
		}
	}
	return v, revision, info.GoVersion
}
