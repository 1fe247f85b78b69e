package models

import "time"

// Gallery owns its albums; deleting a gallery cascades to albums and images.
type Gallery struct {
	Base
	Name         string        `gorm:"not null" json:"name"`
	Description  string        `gorm:"type:text" json:"description"`
	Status       PublishStatus `gorm:"not null;default:draft;index" json:"status"`
	PasswordHash *string       `gorm:"column:password" json:"-"`
	CoverFile    *string       `json:"-"` // file name inside the gallery directory
	Albums       []Album       `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (Gallery) TableName() string {
	return "galleries"
}

func (g *Gallery) IsProtected() bool {
	return g.PasswordHash != nil && *g.PasswordHash != ""
}

// Album is an ordered section of a gallery.
type Album struct {
	Base
	GalleryID  uint   `gorm:"not null;index;uniqueIndex:idx_albums_gallery_code" json:"galleryId"`
	Code       string `gorm:"not null;uniqueIndex:idx_albums_gallery_code" json:"code"`
	Name       string `gorm:"not null" json:"name"`
	OrderIndex int    `gorm:"not null;default:0" json:"orderIndex"`
	// LastImageIndex is the highest image index ever handed out in this album,
	// so codes of deleted images are never reused.
	LastImageIndex int     `gorm:"not null;default:0" json:"-"`
	Images         []Image `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (Album) TableName() string {
	return "albums"
}

// Image is one uploaded photo. Its fullcode is derived from the parent album on read.
type Image struct {
	Base
	AlbumID      uint       `gorm:"not null;index;uniqueIndex:idx_images_album_code" json:"albumId"`
	Code         string     `gorm:"not null;uniqueIndex:idx_images_album_code" json:"code"`
	Filename     string     `gorm:"not null" json:"filename"`
	OriginalName string     `json:"originalName"`
	Ratio        float64    `gorm:"not null;default:1" json:"ratio"`
	Width        int        `json:"width"`
	Height       int        `json:"height"`
	TakenAt      *time.Time `json:"takenAt,omitempty"`
}

func (Image) TableName() string {
	return "images"
}

// FullCode concatenates the album code with the image code.
func FullCode(album *Album, image *Image) string {
	if album == nil {
		return image.Code
	}
	return album.Code + image.Code
}
