package services

import (
	"context"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/camden-git/parentsgallery/media"
	"github.com/camden-git/parentsgallery/models"
	"github.com/camden-git/parentsgallery/utils"
)

const (
	ExportSpreadsheetName = "codes.xlsx"
	exportSheet           = "Codes"
)

var exportHeader = []any{"Album code", "Album name", "Image code", "Full code", "File", "Original name", "Ratio"}

// Export is a prepared gallery archive. Preparing it does every check that
// can fail with a client error, so Write only streams.
type Export struct {
	FileName string
	entries  []utils.ZipEntry
	log      logrus.FieldLogger
}

// Write streams the archive to w.
func (e *Export) Write(w io.Writer) error {
	n, err := utils.WriteZip(w, e.entries, e.log)
	if err != nil {
		return err
	}
	e.log.WithFields(logrus.Fields{"file": e.FileName, "entries": n}).Info("gallery export written")
	return nil
}

// PrepareExport builds the spreadsheet of codes and lists every original, laid
// out as {albumCode}/{filename} inside the archive.
func (s *GalleryService) PrepareExport(ctx context.Context, galleryID uint) (*Export, error) {
	g, err := s.mustGallery(ctx, galleryID)
	if err != nil {
		return nil, err
	}
	albums, err := s.repo.ListAlbumsWithImages(ctx, galleryID)
	if err != nil {
		return nil, err
	}

	sheet, err := buildCodesSpreadsheet(albums)
	if err != nil {
		return nil, err
	}

	entries := []utils.ZipEntry{{Name: ExportSpreadsheetName, Content: sheet}}
	for i := range albums {
		album := &albums[i]
		for _, img := range album.Images {
			full, err := s.store.GetFullPath(media.OriginalPath(album.GalleryID, album.ID, img.Filename))
			if err != nil {
				return nil, err
			}
			entries = append(entries, utils.ZipEntry{
				Name:       path.Join(album.Code, img.Filename),
				SourcePath: full,
			})
		}
	}

	return &Export{
		FileName: exportFileName(g),
		entries:  entries,
		log:      s.log.WithField("gallery_id", galleryID),
	}, nil
}

func buildCodesSpreadsheet(albums []models.Album) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, fmt.Errorf("failed to name export sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(exportSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to open export sheet: %w", err)
	}
	if err := sw.SetRow("A1", exportHeader); err != nil {
		return nil, fmt.Errorf("failed to write export header: %w", err)
	}

	row := 2
	for i := range albums {
		album := &albums[i]
		for j := range album.Images {
			img := &album.Images[j]
			cell, err := excelize.CoordinatesToCellName(1, row)
			if err != nil {
				return nil, err
			}
			values := []any{album.Code, album.Name, img.Code, models.FullCode(album, img), img.Filename, img.OriginalName, img.Ratio}
			if err := sw.SetRow(cell, values); err != nil {
				return nil, fmt.Errorf("failed to write export row %d: %w", row, err)
			}
			row++
		}
	}
	if err := sw.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush export sheet: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to encode export spreadsheet: %w", err)
	}
	return buf.Bytes(), nil
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func exportFileName(g *models.Gallery) string {
	name := strings.Trim(unsafeFileChars.ReplaceAllString(g.Name, "-"), "-")
	if name == "" {
		name = "gallery"
	}
	return fmt.Sprintf("%s-%d.zip", name, g.ID)
}
