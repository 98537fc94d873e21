package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevels(t *testing.T) {
	var quiet bytes.Buffer
	l := New(&quiet, false)
	l.Debug("hidden")
	l.Warn("shown", "files", 2)
	assert.NotContains(t, quiet.String(), "hidden")
	assert.Contains(t, quiet.String(), "level=WARN msg=shown files=2")

	var verbose bytes.Buffer
	New(&verbose, true).Debug("parsed", "unit", "src/main.rs")
	assert.Contains(t, verbose.String(), "level=DEBUG msg=parsed unit=src/main.rs")
}

func TestDiscard(t *testing.T) {
	Discard().Error("nothing")
}
