package services

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/camden-git/parentsgallery/apierror"
	"github.com/camden-git/parentsgallery/database"
	"github.com/camden-git/parentsgallery/media"
	"github.com/camden-git/parentsgallery/metrics"
	"github.com/camden-git/parentsgallery/models"
	"github.com/camden-git/parentsgallery/realtime"
	"github.com/camden-git/parentsgallery/utils"
	"github.com/camden-git/parentsgallery/workers"
)

// Upload is one file received for ingestion.
type Upload struct {
	Name string
	Data io.ReadSeeker
}

// rollback runs compensating steps in reverse order. It ignores the request
// context since it usually runs after that context has failed.
type rollback struct {
	steps []func(ctx context.Context) error
	log   logrus.FieldLogger
}

func (rb *rollback) add(step func(ctx context.Context) error) {
	rb.steps = append(rb.steps, step)
}

func (rb *rollback) run() {
	ctx := context.Background()
	for i := len(rb.steps) - 1; i >= 0; i-- {
		if err := rb.steps[i](ctx); err != nil {
			rb.log.WithError(err).Error("ingest rollback step failed")
		}
	}
}

// IngestImages stores uploads in the album one after the other. Each file is
// all-or-nothing: its row, original and thumbnail either all exist or none
// do. Processing stops at the first failing file; files stored before it stay.
// A file's code is reserved before anything is written and stays consumed when
// the file fails, so a failed upload leaves a gap in the codes.
func (s *GalleryService) IngestImages(ctx context.Context, albumID uint, uploads []Upload) ([]models.Image, error) {
	album, err := s.mustAlbum(ctx, albumID)
	if err != nil {
		return nil, err
	}
	if len(uploads) == 0 {
		return nil, apierror.BadRequest("no files uploaded")
	}

	stored := make([]models.Image, 0, len(uploads))
	for _, up := range uploads {
		img, err := s.ingestOne(ctx, album, up)
		metrics.RecordUpload(err == nil)
		if err != nil {
			s.broadcastUpload(album, nil, up.Name, realtime.StatusError, err)
			if len(stored) > 0 {
				if apiErr, ok := apierror.As(err); ok {
					apiErr.Message = fmt.Sprintf("%s (%d file(s) stored before the failure)", apiErr.Message, len(stored))
				}
			}
			return stored, err
		}
		s.broadcastUpload(album, img, up.Name, realtime.StatusUploaded, nil)
		stored = append(stored, *img)
	}
	return stored, nil
}

func (s *GalleryService) ingestOne(ctx context.Context, album *models.Album, up Upload) (*models.Image, error) {
	s.broadcastUpload(album, nil, up.Name, realtime.StatusUploading, nil)
	logger := s.log.WithFields(logrus.Fields{"album_id": album.ID, "file": up.Name})

	ext, err := media.DetectImageType(up.Data)
	if err != nil {
		return nil, apierror.BadRequest("%s: %v", up.Name, err)
	}
	info, err := s.processor.ReadImageInfo(up.Data)
	if err != nil {
		return nil, apierror.BadRequest("%s: %v", up.Name, err)
	}

	index, err := s.repo.ReserveImageIndex(ctx, album.ID)
	if err != nil {
		return nil, err
	}
	code := utils.ImageCode(index)
	filename := code + ext

	rb := &rollback{log: logger}
	ok := false
	defer func() {
		if !ok {
			logger.Warn("rolling back failed image ingestion")
			rb.run()
		}
	}()

	img, err := s.repo.Images.Add(ctx, &models.Image{
		AlbumID:      album.ID,
		Code:         code,
		Filename:     filename,
		OriginalName: filepath.Base(up.Name),
		Ratio:        info.Ratio,
		Width:        info.Width,
		Height:       info.Height,
		TakenAt:      info.TakenAt,
	})
	if err != nil {
		return nil, err
	}
	imageID := img.ID
	rb.add(func(ctx context.Context) error {
		_, err := s.repo.Images.DeleteByID(ctx, imageID)
		return err
	})

	originalRel := media.OriginalPath(album.GalleryID, album.ID, filename)
	thumbRel := media.ThumbnailPath(album.GalleryID, album.ID, filename)
	rb.add(func(context.Context) error { return s.store.Delete(originalRel) })
	if _, err := s.store.Save(originalRel, up.Data); err != nil {
		return nil, err
	}

	rb.add(func(ctx context.Context) error {
		if err := s.store.Delete(thumbRel); err != nil {
			return err
		}
		_, err := database.DeleteThumbnailInfoByPrefix(ctx, s.sqlDB, originalRel)
		return err
	})
	err = s.thumbs.Generate(ctx, workers.ThumbnailJob{
		GalleryID:        album.GalleryID,
		AlbumID:          album.ID,
		ImageID:          img.ID,
		OriginalRelPath:  originalRel,
		ThumbnailRelPath: thumbRel,
	})
	if err != nil {
		return nil, fmt.Errorf("thumbnail for %s: %w", up.Name, err)
	}

	ok = true
	logger.WithField("code", code).Info("image ingested")
	return img, nil
}

func (s *GalleryService) broadcastUpload(album *models.Album, img *models.Image, name, status string, err error) {
	if s.hub == nil {
		return
	}
	event := realtime.Event{
		Type:      realtime.EventUpload,
		Status:    status,
		GalleryID: album.GalleryID,
		AlbumID:   album.ID,
		File:      name,
	}
	if img != nil {
		event.ImageID = img.ID
		event.Extra = map[string]any{"code": img.Code, "fullcode": models.FullCode(album, img)}
	}
	if err != nil {
		event.Error = err.Error()
	}
	s.hub.Broadcast(event)
}
