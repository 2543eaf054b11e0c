// Package retention deletes local artifacts that have aged past their
// retention window.
package retention

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rowjay/s3backup/internal/target"
)

// maxDays is the largest window expressible as a time.Duration. Any longer
// window keeps everything, since no age can exceed it.
const maxDays = int(math.MaxInt64 / int64(24*time.Hour))

// Expired reports whether something created at t is older than days at now.
// An age of exactly days*24h is still kept.
func Expired(t, now time.Time, days int) bool {
	if days > maxDays {
		return false
	}
	return now.Sub(t) > time.Duration(days)*24*time.Hour
}

// ParseArtifactTime extracts the timestamp from an artifact file name of the
// form <title>-<timestamp>.<ext>. The time is interpreted in local time.
func ParseArtifactTime(name, title string) (time.Time, bool) {
	rest, ok := strings.CutPrefix(name, title+"-")
	if !ok {
		return time.Time{}, false
	}
	if i := strings.IndexByte(rest, '.'); i >= 0 {
		rest = rest[:i]
	}
	ts, err := time.ParseInLocation(target.TimestampLayout, rest, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// SweepLocal removes files in dir whose name starts with "<title>-" and whose
// embedded timestamp is more than retentionDays old at now. Names that do not
// carry a parseable timestamp are left alone. It returns the removed paths.
func SweepLocal(dir, title string, retentionDays int, now time.Time) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var deleted []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		ts, ok := ParseArtifactTime(entry.Name(), title)
		if !ok || !Expired(ts, now, retentionDays) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			return deleted, fmt.Errorf("remove %s: %w", path, err)
		}
		deleted = append(deleted, path)
	}
	return deleted, nil
}
