package utils

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// ImageCode formats a per-album image index as a zero-padded code ("001").
func ImageCode(index int) string {
	return fmt.Sprintf("%03d", index)
}

// ImageIndexFromFilename parses the numeric prefix a stored image file was
// named with. Returns 0 when the name carries no index.
func ImageIndexFromFilename(filename string) int {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	end := 0
	for end < len(base) && base[end] >= '0' && base[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	n, err := strconv.Atoi(base[:end])
	if err != nil {
		return 0
	}
	return n
}

// AlbumCode turns a zero-based position into an uppercase letter code:
// 0 -> "A", 25 -> "Z", 26 -> "AA".
func AlbumCode(position int) string {
	if position < 0 {
		position = 0
	}
	var b []byte
	for n := position + 1; n > 0; n = (n - 1) / 26 {
		b = append([]byte{byte('A' + (n-1)%26)}, b...)
	}
	return string(b)
}

// NormalizeAlbumCode uppercases and trims a user supplied album code.
func NormalizeAlbumCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
