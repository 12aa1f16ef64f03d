// File: scheduler/gid.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package scheduler

import (
	"bytes"
	"runtime"
	"strconv"
)

// currentGoroutineHint identifies the calling goroutine well enough to
// tell whether Stop is being called from the same goroutine that
// constructed a use_caller scheduler. It is a diagnostic only: unlike
// fiber's GLS map, nothing here is keyed off this value.
func currentGoroutineHint() int64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, _ := strconv.ParseInt(string(fields[1]), 10, 64)
	return id
}
