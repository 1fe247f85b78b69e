package models

import "time"

// DTOs are the wire projections of the records. Hashes and internal
// bookkeeping columns never appear here.

type UserDTO struct {
	ID        uint      `json:"id"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func ToUserDTO(u *User) UserDTO {
	return UserDTO{
		ID:        u.ID,
		Username:  u.Username,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

type BlogDTO struct {
	ID        uint          `json:"id"`
	Title     string        `json:"title"`
	Content   string        `json:"content"`
	Author    string        `json:"author"`
	Status    PublishStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

func ToBlogDTO(b *Blog) BlogDTO {
	return BlogDTO{
		ID:        b.ID,
		Title:     b.Title,
		Content:   b.Content,
		Author:    b.Author,
		Status:    b.Status,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
}

type GalleryDTO struct {
	ID          uint          `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Status      PublishStatus `json:"status"`
	IsProtected bool          `json:"isProtected"`
	HasCover    bool          `json:"hasCover"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

func ToGalleryDTO(g *Gallery) GalleryDTO {
	return GalleryDTO{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		Status:      g.Status,
		IsProtected: g.IsProtected(),
		HasCover:    g.CoverFile != nil,
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
}

type ImageDTO struct {
	ID           uint       `json:"id"`
	AlbumID      uint       `json:"albumId"`
	Code         string     `json:"code"`
	FullCode     string     `json:"fullcode"`
	Filename     string     `json:"filename"`
	OriginalName string     `json:"originalName"`
	Ratio        float64    `json:"ratio"`
	Width        int        `json:"width"`
	Height       int        `json:"height"`
	TakenAt      *time.Time `json:"takenAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// ToImageDTO needs the parent album so fullcode always reflects its current code.
func ToImageDTO(album *Album, img *Image) ImageDTO {
	return ImageDTO{
		ID:           img.ID,
		AlbumID:      img.AlbumID,
		Code:         img.Code,
		FullCode:     FullCode(album, img),
		Filename:     img.Filename,
		OriginalName: img.OriginalName,
		Ratio:        img.Ratio,
		Width:        img.Width,
		Height:       img.Height,
		TakenAt:      img.TakenAt,
		CreatedAt:    img.CreatedAt,
		UpdatedAt:    img.UpdatedAt,
	}
}

type AlbumDTO struct {
	ID         uint       `json:"id"`
	GalleryID  uint       `json:"galleryId"`
	Code       string     `json:"code"`
	Name       string     `json:"name"`
	OrderIndex int        `json:"orderIndex"`
	Images     []ImageDTO `json:"images,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

func ToAlbumDTO(a *Album) AlbumDTO {
	dto := AlbumDTO{
		ID:         a.ID,
		GalleryID:  a.GalleryID,
		Code:       a.Code,
		Name:       a.Name,
		OrderIndex: a.OrderIndex,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
	if len(a.Images) > 0 {
		dto.Images = make([]ImageDTO, len(a.Images))
		for i := range a.Images {
			dto.Images[i] = ToImageDTO(a, &a.Images[i])
		}
	}
	return dto
}

type ActionDTO struct {
	ID          uint         `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Type        ActionType   `json:"type"`
	Status      ActionStatus `json:"status"`
	GalleryID   *uint        `json:"galleryId"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

func ToActionDTO(a *Action) ActionDTO {
	return ActionDTO{
		ID:          a.ID,
		Name:        a.Name,
		Description: a.Description,
		Type:        a.Type,
		Status:      a.Status,
		GalleryID:   a.GalleryID,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}
