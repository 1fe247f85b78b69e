package media

import (
	"fmt"
	"image"
	"io"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/sirupsen/logrus"
)

const (
	CoverTargetWidth   = 2000
	CoverJpegQuality   = 80
	CoverFileExtension = ".jpg"

	ThumbnailJpegQuality   = 85
	ThumbnailFileExtension = ".jpg"

	DefaultThumbnailMaxSize = 600
)

// Processor handles media transformations like thumbnailing and resizing. It
// relies on a Store implementation for saving the results.
type Processor struct {
	store     Store
	opts      ProcessorOptions
	watermark image.Image
	log       logrus.FieldLogger
}

// NewProcessor loads the watermark up front so a bad WATERMARK_PATH fails
// startup rather than every upload.
func NewProcessor(store Store, opts ProcessorOptions, log logrus.FieldLogger) (*Processor, error) {
	if opts.ThumbnailMaxSize <= 0 {
		opts.ThumbnailMaxSize = DefaultThumbnailMaxSize
	}
	opts.WatermarkOpacity = clampFloat(opts.WatermarkOpacity, 0, 1)

	p := &Processor{store: store, opts: opts, log: log}
	if opts.WatermarkPath != "" {
		wm, err := imaging.Open(opts.WatermarkPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load watermark %s: %w", opts.WatermarkPath, err)
		}
		p.watermark = wm
		log.WithField("path", opts.WatermarkPath).Info("processor: watermark enabled")
	}
	return p, nil
}

// ReadImageInfo reads dimensions and EXIF data without decoding the pixels.
// Orientations 5-8 are rotated by 90 degrees, so width and height are
// swapped to match what a viewer displays. The reader is rewound afterwards.
func (p *Processor) ReadImageInfo(r io.ReadSeeker) (ImageInfo, error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return ImageInfo{}, fmt.Errorf("failed to decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return ImageInfo{}, fmt.Errorf("invalid image dimensions: %dx%d", cfg.Width, cfg.Height)
	}
	info := ImageInfo{Width: cfg.Width, Height: cfg.Height, Format: format}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return ImageInfo{}, fmt.Errorf("failed to rewind image: %w", err)
	}
	if x, err := exif.Decode(r); err == nil {
		if tag, err := x.Get(exif.Orientation); err == nil {
			if o, err := tag.Int(0); err == nil && o >= 5 && o <= 8 {
				info.Width, info.Height = info.Height, info.Width
			}
		}
		if dt, err := x.DateTime(); err == nil {
			t := dt.UTC()
			info.TakenAt = &t
		}
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return ImageInfo{}, fmt.Errorf("failed to rewind image: %w", err)
	}

	info.Ratio = AspectRatio(info.Width, info.Height)
	return info, nil
}

// GenerateThumbnail resizes the original so its longest side fits
// ThumbnailMaxSize, overlays the watermark if one is configured and saves it
// as JPEG at thumbRelPath.
func (p *Processor) GenerateThumbnail(originalRelPath, thumbRelPath string) error {
	start := time.Now()
	fullPath, err := p.store.GetFullPath(originalRelPath)
	if err != nil {
		return err
	}

	img, err := imaging.Open(fullPath, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("failed to open image %s: %w", originalRelPath, err)
	}

	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return fmt.Errorf("invalid original image dimensions: %dx%d", b.Dx(), b.Dy())
	}
	w, h := fitWithin(b.Dx(), b.Dy(), p.opts.ThumbnailMaxSize)
	thumb := imaging.Resize(img, w, h, imaging.Lanczos)
	if p.watermark != nil {
		thumb = p.applyWatermark(thumb)
	}

	if err := p.saveJPEG(thumb, thumbRelPath, ThumbnailJpegQuality); err != nil {
		return fmt.Errorf("failed to save thumbnail via store: %w", err)
	}

	p.log.WithFields(logrus.Fields{
		"original":  originalRelPath,
		"thumbnail": thumbRelPath,
		"duration":  time.Since(start),
	}).Debug("processor: generated thumbnail")
	return nil
}

// applyWatermark scales the watermark to a quarter of the thumbnail width and
// places it in the bottom-right corner.
func (p *Processor) applyWatermark(dst *image.NRGBA) *image.NRGBA {
	db := dst.Bounds()
	targetW := maxInt(1, db.Dx()/4)
	wm := imaging.Resize(p.watermark, targetW, 0, imaging.Lanczos)

	margin := targetW / 10
	x := maxInt(0, db.Dx()-wm.Bounds().Dx()-margin)
	y := maxInt(0, db.Dy()-wm.Bounds().Dy()-margin)
	return imaging.Overlay(dst, wm, image.Pt(x, y), p.opts.WatermarkOpacity)
}

// ProcessCover decodes an uploaded cover, narrows it to CoverTargetWidth and
// stores it as the gallery's cover. Returns the cover file name.
func (p *Processor) ProcessCover(galleryID uint, fileData io.Reader) (string, error) {
	img, err := imaging.Decode(fileData, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("failed to decode uploaded cover image: %w", err)
	}

	var processed image.Image = img
	if img.Bounds().Dx() > CoverTargetWidth {
		processed = imaging.Resize(img, CoverTargetWidth, 0, imaging.Lanczos)
	}

	coverFile := CoverBaseName + CoverFileExtension
	if err := p.saveJPEG(processed, CoverPath(galleryID, coverFile), CoverJpegQuality); err != nil {
		return "", fmt.Errorf("failed to save cover via store: %w", err)
	}

	p.log.WithField("gallery_id", galleryID).Info("processor: processed and saved cover")
	return coverFile, nil
}

func (p *Processor) saveJPEG(img image.Image, relPath string, quality int) error {
	reader, writer := io.Pipe()
	defer reader.Close()

	go func() {
		err := imaging.Encode(writer, img, imaging.JPEG, imaging.JPEGQuality(quality))
		if err != nil {
			writer.CloseWithError(fmt.Errorf("jpeg encoding failed: %w", err))
			return
		}
		writer.Close()
	}()

	_, err := p.store.Save(relPath, reader)
	return err
}
