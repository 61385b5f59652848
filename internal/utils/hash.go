package utils

import "hash/fnv"

// AdvisoryLockKey folds parts into a key for pg_advisory_xact_lock. Parts are
// separated by a NUL byte so ("ab","c") and ("a","bc") differ.
func AdvisoryLockKey(parts ...string) int64 {
	h := fnv.New64a()
	for i, p := range parts {
		if i > 0 {
			_, _ = h.Write([]byte{0})
		}
		_, _ = h.Write([]byte(p))
	}
	return int64(h.Sum64())
}
