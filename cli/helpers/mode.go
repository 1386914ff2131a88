package helpers

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// isRunningInCI checks if we're running in a CI/CD environment
func isRunningInCI() bool {
	if os.Getenv("CI") != "" {
		return true
	}
	ciVars := []string{
		"JENKINS_HOME",
		"GITHUB_ACTIONS",
		"GITLAB_CI",
		"CIRCLECI",
		"TRAVIS",
		"BUILDKITE",
		"DRONE",
		"TF_BUILD",
		"BITBUCKET_COMMIT",
		"TEAMCITY_VERSION",
		"CONTINUOUS_INTEGRATION",
	}
	for _, v := range ciVars {
		if os.Getenv(v) != "" {
			return true
		}
	}
	return false
}

// DetectMode returns ModeJSON when the command has --json set.
func DetectMode(cmd *cobra.Command) Mode {
	if cmd == nil {
		return ModeText
	}
	if on, err := cmd.Flags().GetBool(JSONFlag); err == nil && on {
		return ModeJSON
	}
	return ModeText
}

// ShouldUseColor reports whether styled output is appropriate for w.
func ShouldUseColor(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" || isRunningInCI() {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
		return false
	}
	term := os.Getenv("TERM")
	return term != "dumb" && term != ""
}
