package sourcemap

import (
	"fmt"
	"strings"
)

const base64Chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

var base64Index = func() [256]int8 {
	var idx [256]int8
	for i := range idx {
		idx[i] = -1
	}
	for i := 0; i < len(base64Chars); i++ {
		idx[base64Chars[i]] = int8(i)
	}
	return idx
}()

const (
	vlqShift        = 5
	vlqContinuation = 1 << vlqShift
	vlqMask         = vlqContinuation - 1
)

func writeVLQ(b *strings.Builder, v int) {
	n := v << 1
	if v < 0 {
		n = (-v << 1) | 1
	}
	for {
		digit := n & vlqMask
		n >>= vlqShift
		if n > 0 {
			digit |= vlqContinuation
		}
		b.WriteByte(base64Chars[digit])
		if n == 0 {
			return
		}
	}
}

// readVLQ decodes one value from s starting at i and returns the next offset.
func readVLQ(s string, i int) (int, int, error) {
	result, shift := 0, 0
	for {
		if i >= len(s) {
			return 0, i, fmt.Errorf("unterminated VLQ value")
		}
		digit := base64Index[s[i]]
		if digit < 0 {
			return 0, i, fmt.Errorf("invalid base64 character %q", s[i])
		}
		i++
		result += int(digit&vlqMask) << shift
		if digit&vlqContinuation == 0 {
			break
		}
		shift += vlqShift
	}
	if result&1 == 1 {
		return -(result >> 1), i, nil
	}
	return result >> 1, i, nil
}
