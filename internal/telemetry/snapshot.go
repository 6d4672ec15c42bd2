package telemetry

import (
	"reflect"
	"time"
)

// SnapshotChanged returns true if *cur* differs from *prev* in anything
// other than the fetch timestamp. Used by the transmitter to skip
// re-publishing identical state every interval.
func SnapshotChanged(prev, cur *Snapshot) bool {
	if prev == nil && cur == nil {
		return false
	}
	if prev == nil || cur == nil {
		return true
	}

	p, c := *prev, *cur // copy
	p.FetchedAt = time.Time{}
	c.FetchedAt = time.Time{}

	return !reflect.DeepEqual(p, c)
}
