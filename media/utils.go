package media

import "math"

// AspectRatio is width/height rounded to two decimals. Degenerate sizes
// yield 1 so layout placeholders stay square.
func AspectRatio(width, height int) float64 {
	if width <= 0 || height <= 0 {
		return 1
	}
	return math.Round(float64(width)/float64(height)*100) / 100
}

// fitWithin scales w x h so the longest side is at most maxSize.
func fitWithin(w, h, maxSize int) (int, int) {
	if maxSize <= 0 || (w <= maxSize && h <= maxSize) {
		return w, h
	}
	if w > h {
		return maxSize, maxInt(1, int(math.Round(float64(h)*float64(maxSize)/float64(w))))
	}
	return maxInt(1, int(math.Round(float64(w)*float64(maxSize)/float64(h)))), maxSize
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
