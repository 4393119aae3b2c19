package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShortCommit(t *testing.T) {
	saved := Commit
	t.Cleanup(func() { Commit = saved })

	Commit = "0123456789abcdef"
	assert.Equal(t, "0123456", ShortCommit())

	Commit = "abc"
	assert.Equal(t, "abc", ShortCommit())
}

func TestString(t *testing.T) {
	assert.True(t, strings.HasPrefix(String(), "testfang "))
	assert.Contains(t, String(), "commit: ")
}
