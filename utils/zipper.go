package utils

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// ZipEntry is one file of an archive: either inline content or a file on disk.
type ZipEntry struct {
	Name       string // path inside the archive
	SourcePath string
	Content    []byte
	Modified   time.Time
}

// WriteZip streams entries into w as a ZIP archive. Source files that cannot
// be opened are skipped with a warning so one missing original does not sink
// the whole export. Returns the number of entries written.
func WriteZip(w io.Writer, entries []ZipEntry, log logrus.FieldLogger) (int, error) {
	zipWriter := zip.NewWriter(w)

	written := 0
	for _, entry := range entries {
		var src io.Reader
		if entry.SourcePath != "" {
			f, err := os.Open(entry.SourcePath)
			if err != nil {
				log.WithError(err).WithField("file", entry.SourcePath).Warn("zipper: failed to open file for zipping, skipping")
				continue
			}
			if entry.Modified.IsZero() {
				if info, err := f.Stat(); err == nil {
					entry.Modified = info.ModTime()
				}
			}
			src = f
		} else {
			src = bytes.NewReader(entry.Content)
		}

		header := &zip.FileHeader{Name: entry.Name, Method: zip.Deflate, Modified: entry.Modified}
		if entry.Modified.IsZero() {
			header.Modified = time.Now()
		}
		writer, err := zipWriter.CreateHeader(header)
		if err == nil {
			_, err = io.Copy(writer, src)
		}
		if c, ok := src.(io.Closer); ok {
			c.Close()
		}
		if err != nil {
			// the underlying stream is broken, nothing more can be written
			return written, fmt.Errorf("failed to write %s to zip: %w", entry.Name, err)
		}
		written++
	}

	if err := zipWriter.Close(); err != nil {
		return written, fmt.Errorf("failed to finalize zip writer: %w", err)
	}
	return written, nil
}
