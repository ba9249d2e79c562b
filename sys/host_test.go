package sys

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiskFree(t *testing.T) {
	assert.NotZero(t, DiskFree(t.TempDir()))
	assert.Zero(t, DiskFree(filepath.Join(t.TempDir(), "missing", "dir")))
}
