package internal

import (
	"math/rand/v2"
	"strings"
)

// roomCodeLength is the fixed width of every room code.
const roomCodeLength = 6

// CodeAllocator draws uniform random numeric codes. Candidates are not
// checked for liveness here; the registry loops Next under its own lock until
// it finds a free one, so allocation and insertion stay atomic.
type CodeAllocator struct {
	length int
}

func NewCodeAllocator() *CodeAllocator {
	return &CodeAllocator{length: roomCodeLength}
}

// Next returns one random candidate code.
func (a *CodeAllocator) Next() string {
	var sb strings.Builder
	sb.Grow(a.length)
	for i := 0; i < a.length; i++ {
		sb.WriteByte('0' + byte(rand.IntN(10)))
	}
	return sb.String()
}

// ValidCode reports whether a user-supplied string has room-code shape.
func ValidCode(code string) bool {
	if len(code) != roomCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
