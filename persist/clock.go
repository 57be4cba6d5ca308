package persist

import "time"

// defaultClockMicros is the system clock used to auto-assign publish
// timestamps. Every Persister bumps the result forward to last+1 when it
// collides with or falls behind the previous entry's timestamp, so an
// auto-assigned Publish never fails on timestamp grounds.
func defaultClockMicros() int64 {
	return time.Now().UnixMicro()
}
