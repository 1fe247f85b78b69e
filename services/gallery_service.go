package services

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/camden-git/parentsgallery/apierror"
	"github.com/camden-git/parentsgallery/database"
	"github.com/camden-git/parentsgallery/media"
	"github.com/camden-git/parentsgallery/models"
	"github.com/camden-git/parentsgallery/realtime"
	"github.com/camden-git/parentsgallery/repository"
	"github.com/camden-git/parentsgallery/utils"
	"github.com/camden-git/parentsgallery/workers"
)

// ThumbnailRunner renders a thumbnail and waits for the outcome.
type ThumbnailRunner interface {
	Generate(ctx context.Context, job workers.ThumbnailJob) error
}

type GalleryServiceConfig struct {
	Repo       *repository.GalleryRepository
	Store      *media.LocalStorage
	Processor  *media.Processor
	Thumbnails ThumbnailRunner
	Hub        realtime.Broadcaster
	Log        logrus.FieldLogger
}

// GalleryService owns the gallery tree: galleries, albums and images, both
// rows and files. It implements repository.Store for galleries.
type GalleryService struct {
	repo      *repository.GalleryRepository
	store     *media.LocalStorage
	processor *media.Processor
	thumbs    ThumbnailRunner
	hub       realtime.Broadcaster
	sqlDB     *sql.DB
	log       logrus.FieldLogger
}

func NewGalleryService(cfg GalleryServiceConfig) (*GalleryService, error) {
	sqlDB, err := cfg.Repo.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB from GORM: %w", err)
	}
	return &GalleryService{
		repo:      cfg.Repo,
		store:     cfg.Store,
		processor: cfg.Processor,
		thumbs:    cfg.Thumbnails,
		hub:       cfg.Hub,
		sqlDB:     sqlDB,
		log:       cfg.Log,
	}, nil
}

var _ repository.Store[models.Gallery] = (*GalleryService)(nil)

func (s *GalleryService) All(ctx context.Context, where map[string]any, order string) ([]models.Gallery, error) {
	return s.repo.Galleries.All(ctx, where, order)
}

func (s *GalleryService) Get(ctx context.Context, id uint) (*models.Gallery, error) {
	return s.repo.Galleries.Get(ctx, id)
}

func (s *GalleryService) Latest(ctx context.Context) (*models.Gallery, error) {
	return s.repo.Galleries.Latest(ctx)
}

func (s *GalleryService) Add(ctx context.Context, g *models.Gallery) (*models.Gallery, error) {
	if g.Status == "" {
		g.Status = models.StatusDraft
	}
	return s.repo.Galleries.Add(ctx, g)
}

func (s *GalleryService) Edit(ctx context.Context, id uint, changes map[string]any) (*models.Gallery, error) {
	return s.repo.Galleries.Edit(ctx, id, changes)
}

// DeleteByID removes the gallery row (albums and images cascade in the
// database) and then its directory tree. File cleanup failures are logged;
// the rows are already gone at that point.
func (s *GalleryService) DeleteByID(ctx context.Context, id uint) (bool, error) {
	removed, err := s.repo.Galleries.DeleteByID(ctx, id)
	if err != nil || !removed {
		return removed, err
	}

	if err := s.store.RemoveGallery(id); err != nil {
		s.log.WithError(err).WithField("gallery_id", id).Warn("failed to remove gallery directory")
	}
	s.forgetThumbnails(ctx, media.GalleryDir(id)+"/")
	return true, nil
}

func (s *GalleryService) forgetThumbnails(ctx context.Context, prefix string) {
	if _, err := database.DeleteThumbnailInfoByPrefix(context.WithoutCancel(ctx), s.sqlDB, prefix); err != nil {
		s.log.WithError(err).WithField("prefix", prefix).Warn("failed to clean thumbnail index")
	}
}

func (s *GalleryService) mustGallery(ctx context.Context, id uint) (*models.Gallery, error) {
	g, err := s.repo.Galleries.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, apierror.NotFound("gallery %d not found", id)
	}
	return g, nil
}

func (s *GalleryService) mustAlbum(ctx context.Context, id uint) (*models.Album, error) {
	a, err := s.repo.Albums.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, apierror.NotFound("album %d not found", id)
	}
	return a, nil
}

// SetPassword protects the gallery. Only the bcrypt hash is stored.
func (s *GalleryService) SetPassword(ctx context.Context, id uint, password string) (*models.Gallery, error) {
	hash, err := models.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash gallery password: %w", err)
	}
	g, err := s.repo.Galleries.Edit(ctx, id, map[string]any{"password": hash})
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, apierror.NotFound("gallery %d not found", id)
	}
	return g, nil
}

func (s *GalleryService) ClearPassword(ctx context.Context, id uint) (*models.Gallery, error) {
	g, err := s.repo.Galleries.Edit(ctx, id, map[string]any{"password": nil})
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, apierror.NotFound("gallery %d not found", id)
	}
	return g, nil
}

// Unlock checks a plaintext password against a protected gallery. The caller
// issues the gallery-scoped token.
func (s *GalleryService) Unlock(ctx context.Context, id uint, password string) (*models.Gallery, error) {
	g, err := s.mustGallery(ctx, id)
	if err != nil {
		return nil, err
	}
	if !g.IsProtected() {
		return g, nil
	}
	if !models.CheckPassword(*g.PasswordHash, password) {
		return nil, apierror.Unauthorized("invalid gallery password")
	}
	return g, nil
}

// SetCover stores a new cover image for the gallery.
func (s *GalleryService) SetCover(ctx context.Context, id uint, data io.ReadSeeker) (*models.Gallery, error) {
	if _, err := s.mustGallery(ctx, id); err != nil {
		return nil, err
	}
	if _, err := media.DetectImageType(data); err != nil {
		return nil, apierror.BadRequest("cover: %v", err)
	}

	coverFile, err := s.processor.ProcessCover(id, data)
	if err != nil {
		return nil, apierror.BadRequest("cover: %v", err)
	}
	g, err := s.repo.Galleries.Edit(ctx, id, map[string]any{"cover_file": coverFile})
	if err != nil {
		return nil, err
	}
	if g == nil {
		_ = s.store.Delete(media.CoverPath(id, coverFile))
		return nil, apierror.NotFound("gallery %d not found", id)
	}
	return g, nil
}

// CoverFile returns the absolute path of the gallery's cover.
func (s *GalleryService) CoverFile(ctx context.Context, id uint) (string, error) {
	g, err := s.mustGallery(ctx, id)
	if err != nil {
		return "", err
	}
	if g.CoverFile == nil || !s.store.Exists(media.CoverPath(id, *g.CoverFile)) {
		return "", apierror.NotFound("gallery %d has no cover", id)
	}
	return s.store.GetFullPath(media.CoverPath(id, *g.CoverFile))
}

// AlbumInput is a new album. An empty code is generated from the album count.
type AlbumInput struct {
	Code string
	Name string
}

// AlbumOrder is one entry of a reorder request.
type AlbumOrder struct {
	ID         uint
	OrderIndex int
}

// ListAlbums returns the gallery's albums with their images loaded.
func (s *GalleryService) ListAlbums(ctx context.Context, galleryID uint) ([]models.Album, error) {
	if _, err := s.mustGallery(ctx, galleryID); err != nil {
		return nil, err
	}
	return s.repo.ListAlbumsWithImages(ctx, galleryID)
}

func (s *GalleryService) GetAlbum(ctx context.Context, albumID uint) (*models.Album, error) {
	return s.mustAlbum(ctx, albumID)
}

// CreateAlbum appends an album to the gallery. orderIndex continues after the
// current highest one.
func (s *GalleryService) CreateAlbum(ctx context.Context, galleryID uint, in AlbumInput) (*models.Album, error) {
	if _, err := s.mustGallery(ctx, galleryID); err != nil {
		return nil, err
	}

	code := utils.NormalizeAlbumCode(in.Code)
	if code == "" {
		generated, err := s.nextAlbumCode(ctx, galleryID)
		if err != nil {
			return nil, err
		}
		code = generated
	} else {
		taken, err := s.repo.AlbumCodeTaken(ctx, galleryID, code, 0)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apierror.Conflict(fmt.Sprintf("album code %s already exists in this gallery", code))
		}
	}

	order, err := s.repo.NextAlbumOrder(ctx, galleryID)
	if err != nil {
		return nil, err
	}
	return s.repo.Albums.Add(ctx, &models.Album{
		GalleryID:  galleryID,
		Code:       code,
		Name:       in.Name,
		OrderIndex: order,
	})
}

func (s *GalleryService) nextAlbumCode(ctx context.Context, galleryID uint) (string, error) {
	count, err := s.repo.CountAlbums(ctx, galleryID)
	if err != nil {
		return "", err
	}
	for pos := int(count); ; pos++ {
		code := utils.AlbumCode(pos)
		taken, err := s.repo.AlbumCodeTaken(ctx, galleryID, code, 0)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
}

// EditAlbum applies changes to an album. A code change is reflected in the
// fullcode of every image on its next read; image rows are untouched.
func (s *GalleryService) EditAlbum(ctx context.Context, albumID uint, changes map[string]any) (*models.Album, error) {
	album, err := s.mustAlbum(ctx, albumID)
	if err != nil {
		return nil, err
	}

	delete(changes, "gallery_id")
	delete(changes, "last_image_index")
	if raw, ok := changes["code"].(string); ok {
		code := utils.NormalizeAlbumCode(raw)
		if code == "" {
			return nil, apierror.Validation("code must not be empty")
		}
		taken, err := s.repo.AlbumCodeTaken(ctx, album.GalleryID, code, album.ID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apierror.Conflict(fmt.Sprintf("album code %s already exists in this gallery", code))
		}
		changes["code"] = code
	}

	edited, err := s.repo.Albums.Edit(ctx, albumID, changes)
	if err != nil {
		return nil, err
	}
	if edited == nil {
		return nil, apierror.NotFound("album %d not found", albumID)
	}
	return edited, nil
}

// DeleteAlbum removes the album, its images and its directory.
func (s *GalleryService) DeleteAlbum(ctx context.Context, albumID uint) error {
	album, err := s.mustAlbum(ctx, albumID)
	if err != nil {
		return err
	}
	removed, err := s.repo.Albums.DeleteByID(ctx, albumID)
	if err != nil {
		return err
	}
	if !removed {
		return apierror.NotFound("album %d not found", albumID)
	}

	if err := s.store.RemoveAlbum(album.GalleryID, album.ID); err != nil {
		s.log.WithError(err).WithField("album_id", albumID).Warn("failed to remove album directory")
	}
	s.forgetThumbnails(ctx, media.AlbumDir(album.GalleryID, album.ID)+"/")
	return nil
}

// ReorderAlbums applies each new orderIndex as its own edit. A failure part
// way leaves the earlier entries applied.
func (s *GalleryService) ReorderAlbums(ctx context.Context, galleryID uint, order []AlbumOrder) ([]models.Album, error) {
	if _, err := s.mustGallery(ctx, galleryID); err != nil {
		return nil, err
	}

	for _, o := range order {
		album, err := s.mustAlbum(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		if album.GalleryID != galleryID {
			return nil, apierror.BadRequest("album %d does not belong to gallery %d", o.ID, galleryID)
		}
		if album.OrderIndex == o.OrderIndex {
			continue
		}
		if _, err := s.repo.Albums.Edit(ctx, o.ID, map[string]any{"order_index": o.OrderIndex}); err != nil {
			return nil, err
		}
	}
	return s.repo.ListAlbums(ctx, galleryID)
}

// GalleryIDForAlbum resolves which gallery guards an album.
func (s *GalleryService) GalleryIDForAlbum(ctx context.Context, albumID uint) (uint, error) {
	album, err := s.mustAlbum(ctx, albumID)
	if err != nil {
		return 0, err
	}
	return album.GalleryID, nil
}

// GalleryIDForImage resolves which gallery guards an image.
func (s *GalleryService) GalleryIDForImage(ctx context.Context, imageID uint) (uint, error) {
	_, album, err := s.repo.AlbumByImage(ctx, imageID)
	if err != nil {
		return 0, err
	}
	if album == nil {
		return 0, apierror.NotFound("image %d not found", imageID)
	}
	return album.GalleryID, nil
}

// ListImages returns an album and its images in code order.
func (s *GalleryService) ListImages(ctx context.Context, albumID uint) (*models.Album, []models.Image, error) {
	album, err := s.mustAlbum(ctx, albumID)
	if err != nil {
		return nil, nil, err
	}
	images, err := s.repo.ListImages(ctx, albumID)
	if err != nil {
		return nil, nil, err
	}
	return album, images, nil
}

// DeleteImage removes the row, the original and the thumbnail. The image's
// code is not handed out again.
func (s *GalleryService) DeleteImage(ctx context.Context, imageID uint) error {
	img, album, err := s.repo.AlbumByImage(ctx, imageID)
	if err != nil {
		return err
	}
	if img == nil {
		return apierror.NotFound("image %d not found", imageID)
	}

	removed, err := s.repo.Images.DeleteByID(ctx, imageID)
	if err != nil {
		return err
	}
	if !removed {
		return apierror.NotFound("image %d not found", imageID)
	}

	if err := s.store.RemoveImage(album.GalleryID, album.ID, img.Filename); err != nil {
		s.log.WithError(err).WithField("image_id", imageID).Warn("failed to remove image files")
	}
	s.forgetThumbnails(ctx, media.OriginalPath(album.GalleryID, album.ID, img.Filename))
	return nil
}

// ImageFile returns the absolute path of an image's original or thumbnail.
func (s *GalleryService) ImageFile(ctx context.Context, imageID uint, thumbnail bool) (string, *models.Image, error) {
	img, album, err := s.repo.AlbumByImage(ctx, imageID)
	if err != nil {
		return "", nil, err
	}
	if img == nil {
		return "", nil, apierror.NotFound("image %d not found", imageID)
	}

	rel := media.OriginalPath(album.GalleryID, album.ID, img.Filename)
	if thumbnail {
		rel = media.ThumbnailPath(album.GalleryID, album.ID, img.Filename)
	}
	if !s.store.Exists(rel) {
		return "", nil, apierror.NotFound("file for image %d not found", imageID)
	}
	full, err := s.store.GetFullPath(rel)
	if err != nil {
		return "", nil, err
	}
	return full, img, nil
}

// ThumbnailJobs lists a thumbnail job for every stored image, for backfill.
func (s *GalleryService) ThumbnailJobs(ctx context.Context) ([]workers.ThumbnailJob, error) {
	images, err := s.repo.AllImages(ctx)
	if err != nil {
		return nil, err
	}
	albums := map[uint]*models.Album{}
	jobs := make([]workers.ThumbnailJob, 0, len(images))
	for _, img := range images {
		album, ok := albums[img.AlbumID]
		if !ok {
			album, err = s.repo.Albums.Get(ctx, img.AlbumID)
			if err != nil {
				return nil, err
			}
			albums[img.AlbumID] = album
		}
		if album == nil {
			continue
		}
		jobs = append(jobs, workers.ThumbnailJob{
			GalleryID:        album.GalleryID,
			AlbumID:          album.ID,
			ImageID:          img.ID,
			OriginalRelPath:  media.OriginalPath(album.GalleryID, album.ID, img.Filename),
			ThumbnailRelPath: media.ThumbnailPath(album.GalleryID, album.ID, img.Filename),
		})
	}
	return jobs, nil
}
