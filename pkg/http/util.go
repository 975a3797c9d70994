package http

import (
	"time"

	xutil "LineGuard/pkg/util"
)

// ParseTime accepts ISO-8601 timestamps and unix seconds.
func ParseTime(s string) (time.Time, bool) { return xutil.ParseTime(s) }
