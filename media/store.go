package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	ThumbnailsDirName = "thumbnails"
	CoverBaseName     = "cover"
)

// Store defines how gallery assets are saved, read and removed. Paths are
// relative to the gallery root and always use forward slashes.
type Store interface {
	Save(relativePath string, data io.Reader) (string, error)
	Get(relativePath string) (io.ReadCloser, os.FileInfo, error)
	Delete(relativePath string) error
	DeleteTree(relativeDir string) error
	GetFullPath(relativePath string) (string, error)
}

// LocalStorage keeps the gallery tree on the local filesystem:
//
//	{base}/{galleryId}/cover.jpg
//	{base}/{galleryId}/{albumId}/{filename}
//	{base}/{galleryId}/{albumId}/thumbnails/{code}.jpg
type LocalStorage struct {
	basePath string
	log      logrus.FieldLogger
}

// NewLocalStorage creates the base directory if needed.
func NewLocalStorage(basePath string, log logrus.FieldLogger) (*LocalStorage, error) {
	absBasePath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("invalid base storage path '%s': %w", basePath, err)
	}

	if err := os.MkdirAll(absBasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base storage directory '%s': %w", absBasePath, err)
	}

	log.WithField("path", absBasePath).Info("media.store: initialized local storage")
	return &LocalStorage{basePath: absBasePath, log: log}, nil
}

func (ls *LocalStorage) BasePath() string {
	return ls.basePath
}

func GalleryDir(galleryID uint) string {
	return strconv.FormatUint(uint64(galleryID), 10)
}

func AlbumDir(galleryID, albumID uint) string {
	return GalleryDir(galleryID) + "/" + strconv.FormatUint(uint64(albumID), 10)
}

func OriginalPath(galleryID, albumID uint, filename string) string {
	return AlbumDir(galleryID, albumID) + "/" + filename
}

// ThumbnailName maps an original filename to its thumbnail name; thumbnails
// are always JPEG.
func ThumbnailName(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename)) + ThumbnailFileExtension
}

func ThumbnailPath(galleryID, albumID uint, filename string) string {
	return AlbumDir(galleryID, albumID) + "/" + ThumbnailsDirName + "/" + ThumbnailName(filename)
}

func CoverPath(galleryID uint, coverFile string) string {
	return GalleryDir(galleryID) + "/" + coverFile
}

// GetFullPath resolves a relative path and refuses anything that escapes the base.
func (ls *LocalStorage) GetFullPath(relativePath string) (string, error) {
	cleanRelativePath := filepath.Clean(filepath.FromSlash(relativePath))

	absFullPath, err := filepath.Abs(filepath.Join(ls.basePath, cleanRelativePath))
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for '%s': %w", relativePath, err)
	}

	if absFullPath != ls.basePath && !strings.HasPrefix(absFullPath, ls.basePath+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid path: access denied for '%s'", relativePath)
	}
	return absFullPath, nil
}

// Save writes data to relativePath, creating parent directories. A partially
// written file is removed on failure. Returns the absolute path written.
func (ls *LocalStorage) Save(relativePath string, data io.Reader) (string, error) {
	fullSavePath, err := ls.GetFullPath(relativePath)
	if err != nil {
		return "", err
	}
	if fullSavePath == ls.basePath {
		return "", fmt.Errorf("invalid save path '%s'", relativePath)
	}

	if err := os.MkdirAll(filepath.Dir(fullSavePath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory for '%s': %w", relativePath, err)
	}

	outFile, err := os.Create(fullSavePath)
	if err != nil {
		return "", fmt.Errorf("failed to create destination file '%s': %w", fullSavePath, err)
	}

	if _, err = io.Copy(outFile, data); err != nil {
		outFile.Close()
		os.Remove(fullSavePath)
		return "", fmt.Errorf("failed to write data to '%s': %w", fullSavePath, err)
	}
	if err := outFile.Close(); err != nil {
		os.Remove(fullSavePath)
		return "", fmt.Errorf("failed to close '%s': %w", fullSavePath, err)
	}

	ls.log.WithField("path", fullSavePath).Debug("media.store: saved asset")
	return fullSavePath, nil
}

func (ls *LocalStorage) Get(relativePath string) (io.ReadCloser, os.FileInfo, error) {
	fullPath, err := ls.GetFullPath(relativePath)
	if err != nil {
		return nil, nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("asset not found at '%s': %w", relativePath, err)
		}
		return nil, nil, fmt.Errorf("failed to open asset '%s': %w", relativePath, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("failed to stat asset '%s': %w", relativePath, err)
	}
	return file, info, nil
}

// Delete removes one file. A missing file is not an error.
func (ls *LocalStorage) Delete(relativePath string) error {
	fullPath, err := ls.GetFullPath(relativePath)
	if err != nil {
		return err
	}

	err = os.Remove(fullPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete asset '%s': %w", relativePath, err)
	}
	if err == nil {
		ls.log.WithField("path", fullPath).Debug("media.store: deleted asset")
	}
	return nil
}

// DeleteTree removes a directory and everything below it. The base itself
// can never be removed.
func (ls *LocalStorage) DeleteTree(relativeDir string) error {
	fullPath, err := ls.GetFullPath(relativeDir)
	if err != nil {
		return err
	}
	if fullPath == ls.basePath {
		return fmt.Errorf("refusing to remove storage root")
	}
	if err := os.RemoveAll(fullPath); err != nil {
		return fmt.Errorf("failed to remove directory '%s': %w", relativeDir, err)
	}
	ls.log.WithField("path", fullPath).Info("media.store: removed directory")
	return nil
}

func (ls *LocalStorage) RemoveGallery(galleryID uint) error {
	return ls.DeleteTree(GalleryDir(galleryID))
}

func (ls *LocalStorage) RemoveAlbum(galleryID, albumID uint) error {
	return ls.DeleteTree(AlbumDir(galleryID, albumID))
}

// RemoveImage deletes an original and its thumbnail.
func (ls *LocalStorage) RemoveImage(galleryID, albumID uint, filename string) error {
	if err := ls.Delete(OriginalPath(galleryID, albumID, filename)); err != nil {
		return err
	}
	return ls.Delete(ThumbnailPath(galleryID, albumID, filename))
}

// Exists reports whether a regular file is present at relativePath.
func (ls *LocalStorage) Exists(relativePath string) bool {
	fullPath, err := ls.GetFullPath(relativePath)
	if err != nil {
		return false
	}
	info, err := os.Stat(fullPath)
	return err == nil && !info.IsDir()
}
