package version

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// These variables are set during build time using ldflags.
	version   = "dev"     // Default to "dev" if not set during build.
	gitCommit = "none"    // Default to "none" if not set during build.
	buildDate = "unknown" // Default to "unknown" if not set during build.
)

// VersionCmd represents the version command.
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  `Print the version number of mongoconn`,
	Run:   runVersion,
}

func runVersion(cmd *cobra.Command, _ []string) {
	fmt.Fprint(cmd.OutOrStdout(), Info())
}

// Info returns the build information.
func Info() string {
	return fmt.Sprintf("Version: %s\nGit Commit: %s\nBuild Date: %s\n", version, gitCommit, buildDate)
}
