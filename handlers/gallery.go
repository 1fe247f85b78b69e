package handlers

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/camden-git/parentsgallery/apierror"
	"github.com/camden-git/parentsgallery/models"
	"github.com/camden-git/parentsgallery/services"
)

const (
	uploadFilesField = "files"
	coverFileField   = "file"
	imageCacheMaxAge = 24 * time.Hour
)

// GalleryHandler serves everything below /api/gallery beyond plain CRUD.
type GalleryHandler struct {
	Service        *services.GalleryService
	Tokens         *TokenManager
	Auth           *Authenticator
	MaxUploadBytes int64
	Log            logrus.FieldLogger
}

type passwordPayload struct {
	Password string `json:"password" validate:"required,min=4,max=72"`
}

type unlockPayload struct {
	Password string `json:"password" validate:"required,max=72"`
}

// UnlockResponse carries the gallery-scoped token. It is also sent in the
// X-Gallery-Token response header.
type UnlockResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	GalleryID uint      `json:"galleryId"`
}

type albumCreatePayload struct {
	Code string `json:"code" validate:"omitempty,max=8,alpha"`
	Name string `json:"name" validate:"required,max=200"`
}

type albumEditPayload struct {
	Code       *string `json:"code" validate:"omitempty,min=1,max=8,alpha"`
	Name       *string `json:"name" validate:"omitempty,min=1,max=200"`
	OrderIndex *int    `json:"orderIndex" validate:"omitempty,min=0"`
}

type albumOrderEntry struct {
	ID         uint `json:"id" validate:"required"`
	OrderIndex int  `json:"orderIndex" validate:"min=0"`
}

type albumOrderPayload struct {
	Order []albumOrderEntry `json:"order" validate:"required,min=1,dive"`
}

// galleryFromURL resolves {id} to the gallery it names.
func galleryFromURL(r *http.Request) (uint, error) {
	return parseID(r, "id")
}

func (h *GalleryHandler) galleryFromAlbum(r *http.Request) (uint, error) {
	albumID, err := parseID(r, "albumId")
	if err != nil {
		return 0, err
	}
	return h.Service.GalleryIDForAlbum(r.Context(), albumID)
}

func (h *GalleryHandler) galleryFromImage(r *http.Request) (uint, error) {
	imageID, err := parseID(r, "imageId")
	if err != nil {
		return 0, err
	}
	return h.Service.GalleryIDForImage(r.Context(), imageID)
}

// ItemGuard protects the reads of one gallery.
func (h *GalleryHandler) ItemGuard(next http.Handler) http.Handler {
	return h.Auth.OptionalAuth(h.Auth.GalleryAccess(galleryFromURL, h.Service.Get)(next))
}

func (h *GalleryHandler) guard(resolve GalleryResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return h.Auth.OptionalAuth(h.Auth.GalleryAccess(resolve, h.Service.Get)(next))
	}
}

// Routes mounts the gallery extensions. unlockLimiter throttles password
// attempts.
func (h *GalleryHandler) Routes(r chi.Router, unlockLimiter *RateLimiter) {
	admin := h.Auth.RequireRole(models.RoleAdmin)

	r.With(unlockLimiter.Handler).Post("/{id}/unlock", h.Unlock)

	r.With(h.ItemGuard).Get("/{id}/cover", h.GetCover)
	r.With(h.ItemGuard).Get("/{id}/albums", h.ListAlbums)
	r.With(h.guard(h.galleryFromAlbum)).Get("/albums/{albumId}/images", h.ListImages)
	r.With(h.guard(h.galleryFromImage)).Get("/images/{imageId}/file", h.ImageFile)
	r.With(h.guard(h.galleryFromImage)).Get("/images/{imageId}/thumbnail", h.ImageThumbnail)

	r.Group(func(r chi.Router) {
		r.Use(admin)
		r.Put("/{id}/cover", h.SetCover)
		r.Post("/{id}/password", h.SetPassword)
		r.Delete("/{id}/password", h.ClearPassword)
		r.Post("/{id}/albums", h.CreateAlbum)
		r.Patch("/{id}/albums/order", h.ReorderAlbums)
		r.Patch("/albums/{albumId}", h.EditAlbum)
		r.Delete("/albums/{albumId}", h.DeleteAlbum)
		r.Post("/albums/{albumId}/images", h.UploadImages)
		r.Delete("/images/{imageId}", h.DeleteImage)
	})
}

func (h *GalleryHandler) SetPassword(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}
	var payload passwordPayload
	if err := decodeAndValidate(w, r, &payload); err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}
	g, err := h.Service.SetPassword(r.Context(), id, payload.Password)
	if err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, MutationResponse{Message: "gallery password set", Item: models.ToGalleryDTO(g)})
}

func (h *GalleryHandler) ClearPassword(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}
	g, err := h.Service.ClearPassword(r.Context(), id)
	if err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, MutationResponse{Message: "gallery password removed", Item: models.ToGalleryDTO(g)})
}

func (h *GalleryHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}
	var payload unlockPayload
	if err := decodeAndValidate(w, r, &payload); err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}
	if _, err := h.Service.Unlock(r.Context(), id, payload.Password); err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}

	token, expiresAt, err := h.Tokens.IssueGalleryToken(id)
	if err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}
	w.Header().Set(GalleryTokenHeader, token)
	writeJSON(w, http.StatusOK, UnlockResponse{Token: token, ExpiresAt: expiresAt, GalleryID: id})
}

// formFiles parses a multipart body capped at MaxUploadBytes.
func (h *GalleryHandler) formFiles(w http.ResponseWriter, r *http.Request, field string) ([]*multipart.FileHeader, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, apierror.BadRequest("invalid multipart body: %v", err)
	}
	files := r.MultipartForm.File[field]
	if len(files) == 0 {
		return nil, apierror.BadRequest("no %q files in request", field)
	}
	return files, nil
}

func (h *GalleryHandler) SetCover(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}
	files, err := h.formFiles(w, r, coverFileField)
	if err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	f, err := files[0].Open()
	if err != nil {
		WriteAPIError(w, h.Log, fmt.Errorf("failed to open uploaded cover: %w", err))
		return
	}
	defer f.Close()

	g, err := h.Service.SetCover(r.Context(), id, f)
	if err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, MutationResponse{Message: "gallery cover updated", Item: models.ToGalleryDTO(g)})
}

func serveImage(w http.ResponseWriter, r *http.Request, path string) {
	w.Header().Set("Cache-Control", fmt.Sprintf("private, max-age=%d", int(imageCacheMaxAge.Seconds())))
	http.ServeFile(w, r, path)
}

func (h *GalleryHandler) GetCover(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}
	path, err := h.Service.CoverFile(r.Context(), id)
	if err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}
	serveImage(w, r, path)
}

func albumDTOs(albums []models.Album) []models.AlbumDTO {
	out := make([]models.AlbumDTO, len(albums))
	for i := range albums {
		out[i] = models.ToAlbumDTO(&albums[i])
	}
	return out
}

func imageDTOs(album *models.Album, images []models.Image) []models.ImageDTO {
	out := make([]models.ImageDTO, len(images))
	for i := range images {
		out[i] = models.ToImageDTO(album, &images[i])
	}
	return out
}

func (h *GalleryHandler) ListAlbums(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}
	albums, err := h.Service.ListAlbums(r.Context(), id)
	if err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, albumDTOs(albums))
}

func (h *GalleryHandler) CreateAlbum(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}
	var payload albumCreatePayload
	if err := decodeAndValidate(w, r, &payload); err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}
	album, err := h.Service.CreateAlbum(r.Context(), id, services.AlbumInput{Code: payload.Code, Name: payload.Name})
	if err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, MutationResponse{Message: "album created", Item: models.ToAlbumDTO(album)})
}

func (h *GalleryHandler) ReorderAlbums(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}
	var payload albumOrderPayload
	if err := decodeAndValidate(w, r, &payload); err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}
	order := make([]services.AlbumOrder, len(payload.Order))
	for i, o := range payload.Order {
		order[i] = services.AlbumOrder{ID: o.ID, OrderIndex: o.OrderIndex}
	}
	albums, err := h.Service.ReorderAlbums(r.Context(), id, order)
	if err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, MutationResponse{Message: "albums reordered", Item: albumDTOs(albums)})
}

func (h *GalleryHandler) EditAlbum(w http.ResponseWriter, r *http.Request) {
	albumID, err := parseID(r, "albumId")
	if err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}
	var payload albumEditPayload
	if err := decodeAndValidate(w, r, &payload); err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}
	changes := changeSet{}
	setIf(changes, "code", payload.Code)
	setIf(changes, "name", payload.Name)
	setIf(changes, "order_index", payload.OrderIndex)
	if len(changes) == 0 {
		WriteAPIError(w, h.Log, apierror.Validation("no fields to update"))
		return
	}

	album, err := h.Service.EditAlbum(r.Context(), albumID, changes)
	if err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, MutationResponse{Message: "album updated", Item: models.ToAlbumDTO(album)})
}

func (h *GalleryHandler) DeleteAlbum(w http.ResponseWriter, r *http.Request) {
	albumID, err := parseID(r, "albumId")
	if err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}
	if err := h.Service.DeleteAlbum(r.Context(), albumID); err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, MutationResponse{Message: "album deleted"})
}

func (h *GalleryHandler) ListImages(w http.ResponseWriter, r *http.Request) {
	albumID, err := parseID(r, "albumId")
	if err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}
	album, images, err := h.Service.ListImages(r.Context(), albumID)
	if err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, imageDTOs(album, images))
}

// UploadImages ingests every file of the "files" field. Files stored before a
// failing one are kept; the error reports how many there were.
func (h *GalleryHandler) UploadImages(w http.ResponseWriter, r *http.Request) {
	albumID, err := parseID(r, "albumId")
	if err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}
	headers, err := h.formFiles(w, r, uploadFilesField)
	if err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	uploads := make([]services.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			WriteAPIError(w, h.Log, fmt.Errorf("failed to open uploaded file %s: %w", fh.Filename, err))
			return
		}
		defer f.Close()
		uploads = append(uploads, services.Upload{Name: fh.Filename, Data: f})
	}

	stored, err := h.Service.IngestImages(r.Context(), albumID, uploads)
	if err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}
	album, err := h.Service.GetAlbum(r.Context(), albumID)
	if err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, MutationResponse{
		Message: fmt.Sprintf("%d image(s) uploaded", len(stored)),
		Item:    imageDTOs(album, stored),
	})
}

func (h *GalleryHandler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	imageID, err := parseID(r, "imageId")
	if err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}
	if err := h.Service.DeleteImage(r.Context(), imageID); err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, MutationResponse{Message: "image deleted"})
}

func (h *GalleryHandler) serveImageFile(w http.ResponseWriter, r *http.Request, thumbnail bool) {
	imageID, err := parseID(r, "imageId")
	if err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}
	path, _, err := h.Service.ImageFile(r.Context(), imageID, thumbnail)
	if err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}
	serveImage(w, r, path)
}

func (h *GalleryHandler) ImageFile(w http.ResponseWriter, r *http.Request) {
	h.serveImageFile(w, r, false)
}

func (h *GalleryHandler) ImageThumbnail(w http.ResponseWriter, r *http.Request) {
	h.serveImageFile(w, r, true)
}

// Export streams a zip of the gallery's originals and a spreadsheet of codes.
// It runs without the request timeout.
func (h *GalleryHandler) Export(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}
	export, err := h.Service.PrepareExport(r.Context(), id)
	if err != nil {
		WriteAPIError(w, h.Log, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName))
	w.WriteHeader(http.StatusOK)
	if err := export.Write(w); err != nil {
		// headers are gone; the client sees a truncated archive
		h.Log.WithError(err).WithField("gallery_id", id).Error("gallery export failed mid-stream")
	}
}
