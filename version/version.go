// Package version reports the build stamped in with
// -ldflags "-X github.com/greymatter-io/sshk/version.version=...".
package version

import "fmt"

var (
	commit  string
	version string
	branch  string
)

func Version() string {
	v := version
	if v == "" {
		v = "UNRELEASED"
	}
	if branch != "" && branch != "main" {
		v = fmt.Sprintf("%s (%s)", v, branch)
	}
	if commit != "" {
		v = fmt.Sprintf("%s %s", v, commit)
	}
	return v
}
