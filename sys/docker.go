package sys

import (
	"os"
	"regexp"
	"strings"

	"github.com/mattn/go-isatty"
)

var isCgroupMatch = regexp.MustCompile("(docker|lxc|rkt|libpod|kubepods|containerd)")

// IsRunningInsideContainer returns true if the process is running inside a container environment.
func IsRunningInsideContainer() bool {
	for _, marker := range []string{"/.dockerenv", "/run/.containerenv"} {
		if Exists(marker) {
			return true
		}
	}
	buf, _ := os.ReadFile("/proc/1/cgroup")
	return isCgroupMatch.MatchString(strings.TrimSpace(string(buf)))
}

// PreferStructuredLogs reports whether logs should be JSON: stdout is not a
// terminal and the process runs in a container.
func PreferStructuredLogs() bool {
	fd := os.Stdout.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return false
	}
	return IsRunningInsideContainer()
}

// Exists reports whether a file or directory exists at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
