// Package version holds build metadata set with -ldflags -X.
package version

import (
	"fmt"
	"time"
)

var (
	Version   = "dev"
	Commit    = ""
	BuildTime = ""
)

// BuiltAt parses BuildTime; it is zero when unset or malformed.
func BuiltAt() time.Time {
	t, err := time.Parse(time.RFC3339, BuildTime)
	if err != nil {
		return time.Time{}
	}
	return t
}

func String() string {
	if Commit == "" {
		return Version
	}
	short := Commit
	if len(short) > 12 {
		short = short[:12]
	}
	return fmt.Sprintf("%s (%s)", Version, short)
}
