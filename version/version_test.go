package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersion(t *testing.T) {
	defer func(c, v, b string) { commit, version, branch = c, v, b }(commit, version, branch)

	commit, version, branch = "", "", ""
	assert.Equal(t, "UNRELEASED", Version())

	commit, version, branch = "abc123", "v0.2.0", "main"
	assert.Equal(t, "v0.2.0 abc123", Version())

	branch = "provision-fanout"
	assert.Equal(t, "v0.2.0 (provision-fanout) abc123", Version())
}
