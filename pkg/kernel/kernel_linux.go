//go:build linux

package kernel

import (
	"bytes"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

var (
	cached    Version
	cachedErr error
	cacheOnce sync.Once
)

const (
	firstNumberOfParts  = 2
	secondNumberOfParts = 1
)

func parseKernelVersion(release string) (major, minor, patch int, flavor string, err error) {
	var partial string
	parsed, _ := fmt.Sscanf(release, "%d.%d%s", &major, &minor, &partial)
	if parsed < firstNumberOfParts {
		err = fmt.Errorf("kernel: cannot parse version %q", release)
		return
	}
	if n, _ := fmt.Sscanf(partial, ".%d%s", &patch, &flavor); n < secondNumberOfParts {
		flavor = partial
	}
	return
}

// Get returns the running kernel's parsed version, cached after the first
// call.
func Get() (Version, error) {
	cacheOnce.Do(func() {
		uts := unix.Utsname{}
		if err := unix.Uname(&uts); err != nil {
			cachedErr = err
			return
		}
		major, minor, patch, flavor, err := parseKernelVersion(string(uts.Release[:bytes.IndexByte(uts.Release[:], 0)]))
		if err != nil {
			cachedErr = err
			return
		}
		cached = Version{Major: major, Minor: minor, Patch: patch, Flavor: flavor}
	})
	return cached, cachedErr
}
