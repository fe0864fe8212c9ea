//go:build amd64

package simd

// No simd_amd64.s exists, so these use the same pure-Go bodies as the
// non-amd64 fallback.

func bytesEqualAVX2(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func bytesEqualSSE2(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Note: bytesContainsAVX2 and bytesContainsSSE42 use Go fallbacks for now
// Full assembly implementation would be more complex
func bytesContainsAVX2(data []byte, pattern []byte) bool {
	return bytesContainsBMH(data, pattern)
}

func bytesContainsSSE42(data []byte, pattern []byte) bool {
	return bytesContainsBMH(data, pattern)
}
