package media

import "time"

// ImageInfo is what ingestion needs to know about an upload before it is stored.
type ImageInfo struct {
	Width   int // as displayed, after EXIF orientation
	Height  int
	Ratio   float64
	Format  string
	TakenAt *time.Time
}

// ProcessorOptions controls thumbnail and cover generation.
type ProcessorOptions struct {
	ThumbnailMaxSize int
	WatermarkPath    string  // optional PNG overlaid on thumbnails
	WatermarkOpacity float64 // 0..1
}
