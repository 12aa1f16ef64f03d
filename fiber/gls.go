// File: fiber/gls.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Goroutine-local state backing fiber.GetCurrent(). Go exposes no public
// thread-local-storage primitive, and GetCurrent() is a static accessor
// with no context handle to carry a value through, so this file parses
// the calling goroutine's id out of the header line of a runtime.Stack
// dump and uses it as a map key. Every task fiber's body runs in one
// dedicated goroutine for its entire lifetime (see fiber.go's run loop),
// so the map entry for that goroutine id is written exactly once and
// never needs to migrate.
package fiber

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

var (
	currentMu sync.RWMutex
	current   = make(map[int64]*Fiber)
)

// goroutineID extracts the numeric id from "goroutine 123 [running]:".
func goroutineID() int64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]
	fields := bytes.Fields(buf)
	if len(fields) < 2 {
		return 0
	}
	id, _ := strconv.ParseInt(string(fields[1]), 10, 64)
	return id
}

func setCurrent(f *Fiber) {
	currentMu.Lock()
	current[goroutineID()] = f
	currentMu.Unlock()
}

func lookupCurrent() (*Fiber, bool) {
	gid := goroutineID()
	currentMu.RLock()
	f, ok := current[gid]
	currentMu.RUnlock()
	return f, ok
}

func forgetCurrent() {
	currentMu.Lock()
	delete(current, goroutineID())
	currentMu.Unlock()
}
