package vulkan

import (
	"fmt"

	"github.com/spaghettifunk/vizcore/engine/core"
)

// errUnknownf wraps core.ErrUnknown with a formatted message, giving every
// failure path in this package a consistent sentinel to match against
// while still carrying a human-readable detail.
func errUnknownf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", core.ErrUnknown, fmt.Sprintf(format, args...))
}
