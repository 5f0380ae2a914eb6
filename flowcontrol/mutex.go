package flowcontrol

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// reentrantMutex is a mutex a single goroutine may lock more than
// once without deadlocking itself, unlocking once per matching Lock
// call. The throughput controller needs this because its refresh
// callback may run on the timer goroutine while operator() holds the
// lock and schedules a further refresh — the two paths share state
// that must stay consistent across that nesting.
type reentrantMutex struct {
	mu   sync.Mutex
	ctrl sync.Mutex
	owner uint64
	count int
}

func (m *reentrantMutex) Lock() {
	gid := goroutineID()

	m.ctrl.Lock()
	if m.count > 0 && m.owner == gid {
		m.count++
		m.ctrl.Unlock()
		return
	}
	m.ctrl.Unlock()

	m.mu.Lock()

	m.ctrl.Lock()
	m.owner = gid
	m.count = 1
	m.ctrl.Unlock()
}

func (m *reentrantMutex) Unlock() {
	gid := goroutineID()

	m.ctrl.Lock()
	defer m.ctrl.Unlock()

	if m.count == 0 || m.owner != gid {
		panic("flowcontrol: Unlock of reentrantMutex not held by the calling goroutine")
	}
	m.count--
	if m.count == 0 {
		m.owner = 0
		m.mu.Unlock()
	}
}

// goroutineID extracts the calling goroutine's id from its stack
// trace header. It is only used to detect re-entrant Lock calls from
// the same goroutine, never for scheduling decisions.
func goroutineID() uint64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	buf = buf[:bytes.IndexByte(buf, ' ')]
	id, err := strconv.ParseUint(string(buf), 10, 64)
	if err != nil {
		// Should be unreachable given the stable "goroutine N [...]"
		// header format, but fail closed rather than silently
		// treating every caller as the same owner.
		panic("flowcontrol: could not parse goroutine id: " + err.Error())
	}
	return id
}
