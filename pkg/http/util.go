package http

import (
	"time"

	xutil "MotionPull/pkg/util"
)

// ParseIntDefault parses string to int or returns default if empty/invalid.
func ParseIntDefault(s string, def int) int { return xutil.ParseIntDefault(s, def) }

// ParseRange resolves optional from/to query values, defaulting to window before now.
func ParseRange(from, to string, window time.Duration) (time.Time, time.Time, error) {
	return xutil.ResolveRange(from, to, window, time.Now())
}
