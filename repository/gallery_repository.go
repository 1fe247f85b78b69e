package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/facette/natsort"
	"gorm.io/gorm"

	"github.com/camden-git/parentsgallery/models"
	"github.com/camden-git/parentsgallery/utils"
)

// GalleryRepository groups the typed stores of the gallery tree and the
// queries that span more than one of its tables.
type GalleryRepository struct {
	DB        *gorm.DB
	Galleries *Repository[models.Gallery, *models.Gallery]
	Albums    *Repository[models.Album, *models.Album]
	Images    *Repository[models.Image, *models.Image]
}

func NewGalleryRepository(db *gorm.DB) *GalleryRepository {
	return &GalleryRepository{
		DB:        db,
		Galleries: New[models.Gallery](db),
		Albums:    New[models.Album](db),
		Images:    New[models.Image](db),
	}
}

func sortAlbums(albums []models.Album) {
	sort.SliceStable(albums, func(i, j int) bool {
		if albums[i].OrderIndex != albums[j].OrderIndex {
			return albums[i].OrderIndex < albums[j].OrderIndex
		}
		return natsort.Compare(albums[i].Code, albums[j].Code)
	})
}

func sortImages(images []models.Image) {
	sort.SliceStable(images, func(i, j int) bool {
		return natsort.Compare(images[i].Code, images[j].Code)
	})
}

// ListAlbums returns the albums of a gallery by orderIndex, ties broken by
// natural code order.
func (r *GalleryRepository) ListAlbums(ctx context.Context, galleryID uint) ([]models.Album, error) {
	albums := []models.Album{}
	err := r.DB.WithContext(ctx).Where("gallery_id = ?", galleryID).Order("order_index ASC").Find(&albums).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list albums for gallery %d: %w", galleryID, err)
	}
	sortAlbums(albums)
	return albums, nil
}

// ListAlbumsWithImages is ListAlbums with every album's images loaded in
// natural code order.
func (r *GalleryRepository) ListAlbumsWithImages(ctx context.Context, galleryID uint) ([]models.Album, error) {
	albums := []models.Album{}
	err := r.DB.WithContext(ctx).Preload("Images").Where("gallery_id = ?", galleryID).Find(&albums).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load albums with images for gallery %d: %w", galleryID, err)
	}
	sortAlbums(albums)
	for i := range albums {
		sortImages(albums[i].Images)
	}
	return albums, nil
}

// NextAlbumOrder is the orderIndex a newly created album receives.
func (r *GalleryRepository) NextAlbumOrder(ctx context.Context, galleryID uint) (int, error) {
	var next int
	err := r.DB.WithContext(ctx).Model(&models.Album{}).
		Select("COALESCE(MAX(order_index), -1) + 1").
		Where("gallery_id = ?", galleryID).
		Scan(&next).Error
	if err != nil {
		return 0, fmt.Errorf("failed to compute next album order for gallery %d: %w", galleryID, err)
	}
	return next, nil
}

// CountAlbums is used to derive a default code for a new album.
func (r *GalleryRepository) CountAlbums(ctx context.Context, galleryID uint) (int64, error) {
	var count int64
	if err := r.DB.WithContext(ctx).Model(&models.Album{}).Where("gallery_id = ?", galleryID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count albums for gallery %d: %w", galleryID, err)
	}
	return count, nil
}

// AlbumCodeTaken reports whether another album of the gallery already uses code.
func (r *GalleryRepository) AlbumCodeTaken(ctx context.Context, galleryID uint, code string, exceptID uint) (bool, error) {
	var count int64
	q := r.DB.WithContext(ctx).Model(&models.Album{}).Where("gallery_id = ? AND code = ?", galleryID, code)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check album code %s: %w", code, err)
	}
	return count > 0, nil
}

// ListImages returns the images of one album in natural code order.
func (r *GalleryRepository) ListImages(ctx context.Context, albumID uint) ([]models.Image, error) {
	images := []models.Image{}
	if err := r.DB.WithContext(ctx).Where("album_id = ?", albumID).Find(&images).Error; err != nil {
		return nil, fmt.Errorf("failed to list images for album %d: %w", albumID, err)
	}
	sortImages(images)
	return images, nil
}

// ListImagesByGallery returns every image under a gallery, used when the
// gallery tree is cleaned up.
func (r *GalleryRepository) ListImagesByGallery(ctx context.Context, galleryID uint) ([]models.Image, error) {
	images := []models.Image{}
	err := r.DB.WithContext(ctx).
		Joins("JOIN albums ON albums.id = images.album_id").
		Where("albums.gallery_id = ?", galleryID).
		Find(&images).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list images for gallery %d: %w", galleryID, err)
	}
	sortImages(images)
	return images, nil
}

// AllImages walks every stored image with its album, in id order.
func (r *GalleryRepository) AllImages(ctx context.Context) ([]models.Image, error) {
	images := []models.Image{}
	if err := r.DB.WithContext(ctx).Order("id ASC").Find(&images).Error; err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	return images, nil
}

// AlbumByImage loads an image together with its parent album. Both are nil
// when the image does not exist.
func (r *GalleryRepository) AlbumByImage(ctx context.Context, imageID uint) (*models.Image, *models.Album, error) {
	img, err := r.Images.Get(ctx, imageID)
	if err != nil || img == nil {
		return nil, nil, err
	}
	album, err := r.Albums.Get(ctx, img.AlbumID)
	if err != nil {
		return nil, nil, err
	}
	if album == nil {
		return nil, nil, nil
	}
	return img, album, nil
}

// ReserveImageIndex hands out the next image index of an album. The album's
// high-water mark is raised to at least the highest index found in the stored
// filenames, then incremented, so an index is never handed out twice even
// after the image holding it was deleted.
func (r *GalleryRepository) ReserveImageIndex(ctx context.Context, albumID uint) (int, error) {
	var index int
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var filenames []string
		if err := tx.Model(&models.Image{}).Where("album_id = ?", albumID).Pluck("filename", &filenames).Error; err != nil {
			return err
		}
		highest := 0
		for _, name := range filenames {
			if n := utils.ImageIndexFromFilename(name); n > highest {
				highest = n
			}
		}

		res := tx.Model(&models.Album{}).Where("id = ?", albumID).
			UpdateColumn("last_image_index", gorm.Expr("MAX(last_image_index, ?) + 1", highest))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		return tx.Model(&models.Album{}).Select("last_image_index").Where("id = ?", albumID).Scan(&index).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to reserve image index for album %d: %w", albumID, err)
	}
	return index, nil
}
