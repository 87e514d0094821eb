package netreactor

import (
	"sync/atomic"
	"testing"
	"unsafe"

	"golang.org/x/sys/cpu"
)

func Test_sizeOfCacheLine(t *testing.T) {
	actual := unsafe.Sizeof(cpu.CacheLinePad{})
	if sizeOfCacheLine < actual {
		t.Errorf("sizeOfCacheLine (%d) is less than actual cache line size (%d)", sizeOfCacheLine, actual)
	}
	if sizeOfCacheLine%actual != 0 {
		t.Errorf("sizeOfCacheLine (%d) is not a multiple of actual cache line size (%d)", sizeOfCacheLine, actual)
	}
}

func TestSizeOfAtomicUint64(t *testing.T) {
	if got := unsafe.Sizeof(atomic.Uint64{}); got != sizeOfAtomicUint64 {
		t.Errorf("expected %d got %d", sizeOfAtomicUint64, got)
	}
}

// TestFastStateAlign verifies v does not straddle a cache-line boundary
// within FastState.
func TestFastStateAlign(t *testing.T) {
	s := &FastState{}

	vOffset := unsafe.Offsetof(s.v)
	vEnd := vOffset + unsafe.Sizeof(s.v)

	lineStart := vOffset / sizeOfCacheLine * sizeOfCacheLine
	lineEnd := lineStart + sizeOfCacheLine
	if vEnd > lineEnd {
		t.Errorf("FastState.v shares a cache line (ends at %d, line ends at %d)", vEnd, lineEnd)
	}
}
