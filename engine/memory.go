package engine

import (
	"math"
	"runtime"
	"runtime/debug"
)

// DefaultMemoryFloor is the free memory, in bytes, a transfer needs before
// it is allowed to open a socket.
const DefaultMemoryFloor = 8000

// MemoryProbe reports how much memory is still available to the process.
type MemoryProbe interface {
	FreeBytes() uint64
}

// MemoryFunc adapts a function to the MemoryProbe interface.
type MemoryFunc func() uint64

// FreeBytes implements MemoryProbe.
func (f MemoryFunc) FreeBytes() uint64 { return f() }

// RuntimeMemory measures headroom against a memory limit. With Limit zero the
// runtime soft limit (GOMEMLIMIT) is used; when that is unset there is no
// ceiling and FreeBytes reports math.MaxUint64.
type RuntimeMemory struct {
	Limit uint64
}

// FreeBytes implements MemoryProbe.
func (m RuntimeMemory) FreeBytes() uint64 {
	limit := m.Limit
	if limit == 0 {
		soft := debug.SetMemoryLimit(-1)
		if soft <= 0 || soft == math.MaxInt64 {
			return math.MaxUint64
		}
		limit = uint64(soft)
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	used := ms.Sys - ms.HeapReleased
	if used >= limit {
		return 0
	}
	return limit - used
}
