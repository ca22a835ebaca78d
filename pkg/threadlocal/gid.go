package threadlocal

import (
	"runtime"
	"strconv"
)

// stackHeader prefixes every goroutine record in runtime.Stack output,
// e.g. "goroutine 123 [running]:".
const stackHeader = "goroutine "

// goroutineID returns the runtime id of the calling goroutine.
//
// The id is parsed from the runtime.Stack header. The runtime never reuses
// goroutine ids within a process, which is what makes them safe slot keys.
func goroutineID() int64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	return parseGID(buf[:n])
}

// parseGID extracts the goroutine id from a single-goroutine stack dump.
// Returns 0 if the buffer doesn't start with a goroutine header.
func parseGID(buf []byte) int64 {
	if len(buf) < len(stackHeader) || string(buf[:len(stackHeader)]) != stackHeader {
		return 0
	}
	buf = buf[len(stackHeader):]

	end := 0
	for end < len(buf) && buf[end] >= '0' && buf[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}

	gid, err := strconv.ParseInt(string(buf[:end]), 10, 64)
	if err != nil {
		return 0
	}
	return gid
}

// liveGoroutineIDs snapshots the ids of every goroutine currently alive.
// A goroutine absent from the snapshot has already exited; one present may
// exit at any moment, so the result is only safe to use for detecting death.
func liveGoroutineIDs() map[int64]struct{} {
	buf := make([]byte, 1<<20)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			buf = buf[:n]
			break
		}
		buf = make([]byte, len(buf)*2)
	}

	ids := make(map[int64]struct{})
	for i := 0; i < len(buf); {
		// Goroutine records start at the buffer head or after a blank line.
		if i == 0 || (i >= 2 && buf[i-1] == '\n' && buf[i-2] == '\n') {
			if gid := parseGID(buf[i:]); gid != 0 {
				ids[gid] = struct{}{}
			}
		}
		// Advance to the byte after the next newline.
		for i < len(buf) && buf[i] != '\n' {
			i++
		}
		i++
	}
	return ids
}
