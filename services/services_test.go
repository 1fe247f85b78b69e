package services

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/camden-git/parentsgallery/apierror"
	"github.com/camden-git/parentsgallery/database"
	"github.com/camden-git/parentsgallery/media"
	"github.com/camden-git/parentsgallery/models"
	"github.com/camden-git/parentsgallery/repository"
	"github.com/camden-git/parentsgallery/workers"
)

type testEnv struct {
	db       *gorm.DB
	repo     *repository.GalleryRepository
	store    *media.LocalStorage
	gallery  *GalleryService
	actions  *ActionService
	thumbGen *workers.ThumbnailGenerator
}

type failingThumbnails struct{}

func (failingThumbnails) Generate(context.Context, workers.ThumbnailJob) error {
	return errors.New("encoder exploded")
}

type noopThumbnails struct{}

func (noopThumbnails) Generate(context.Context, workers.ThumbnailJob) error {
	return nil
}

func newTestEnv(t *testing.T, thumbs ThumbnailRunner) *testEnv {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	db, err := database.InitGormDB(filepath.Join(t.TempDir(), "test.db"), log)
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrateModels(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)

	store, err := media.NewLocalStorage(t.TempDir(), log)
	require.NoError(t, err)
	proc, err := media.NewProcessor(store, media.ProcessorOptions{ThumbnailMaxSize: 64}, log)
	require.NoError(t, err)

	env := &testEnv{db: db, store: store}
	if thumbs == nil {
		env.thumbGen = workers.NewThumbnailGenerator(proc, store, sqlDB, nil, log, 10, 1)
		thumbs = env.thumbGen
	}
	t.Cleanup(func() {
		if env.thumbGen != nil {
			env.thumbGen.Stop()
		}
		_ = database.Close(db)
	})

	env.repo = repository.NewGalleryRepository(db)
	env.gallery, err = NewGalleryService(GalleryServiceConfig{
		Repo:       env.repo,
		Store:      store,
		Processor:  proc,
		Thumbnails: thumbs,
		Log:        log,
	})
	require.NoError(t, err)
	env.actions = NewActionService(repository.New[models.Action](db), env.gallery, log)
	return env
}

func pngUpload(t *testing.T, name string, w, h int) Upload {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(w, h, color.NRGBA{R: 10, G: 120, B: 200, A: 255}), imaging.PNG))
	return Upload{Name: name, Data: bytes.NewReader(buf.Bytes())}
}

func (env *testEnv) galleryWithAlbum(t *testing.T) (*models.Gallery, *models.Album) {
	t.Helper()
	ctx := context.Background()
	g, err := env.gallery.Add(ctx, &models.Gallery{Name: "School trip", Status: models.StatusPublished})
	require.NoError(t, err)
	a, err := env.gallery.CreateAlbum(ctx, g.ID, AlbumInput{Code: "a", Name: "Morning"})
	require.NoError(t, err)
	return g, a
}

func TestIngestImages_CodesAreNeverReused(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	g, album := env.galleryWithAlbum(t)

	imgs, err := env.gallery.IngestImages(ctx, album.ID, []Upload{
		pngUpload(t, "IMG_1.png", 300, 200),
		pngUpload(t, "IMG_2.png", 200, 300),
	})
	require.NoError(t, err)
	require.Len(t, imgs, 2)
	assert.Equal(t, "001", imgs[0].Code)
	assert.Equal(t, "002", imgs[1].Code)
	assert.Equal(t, "001.png", imgs[0].Filename)
	assert.Equal(t, "IMG_1.png", imgs[0].OriginalName)
	assert.Equal(t, 1.5, imgs[0].Ratio)
	assert.Equal(t, 0.67, imgs[1].Ratio)

	assert.True(t, env.store.Exists(media.OriginalPath(g.ID, album.ID, "001.png")))
	assert.True(t, env.store.Exists(media.ThumbnailPath(g.ID, album.ID, "001.png")))

	require.NoError(t, env.gallery.DeleteImage(ctx, imgs[0].ID))
	assert.False(t, env.store.Exists(media.OriginalPath(g.ID, album.ID, "001.png")))
	assert.False(t, env.store.Exists(media.ThumbnailPath(g.ID, album.ID, "001.png")))

	third, err := env.gallery.IngestImages(ctx, album.ID, []Upload{pngUpload(t, "IMG_3.png", 10, 10)})
	require.NoError(t, err)
	require.Len(t, third, 1)
	assert.Equal(t, "003", third[0].Code)

	_, images, err := env.gallery.ListImages(ctx, album.ID)
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.Equal(t, "002", images[0].Code)
	assert.Equal(t, "003", images[1].Code)
}

func TestIngestImages_RollsBackOnThumbnailFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, failingThumbnails{})
	g, album := env.galleryWithAlbum(t)

	_, err := env.gallery.IngestImages(ctx, album.ID, []Upload{pngUpload(t, "a.png", 20, 20)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encoder exploded")

	_, images, err := env.gallery.ListImages(ctx, album.ID)
	require.NoError(t, err)
	assert.Empty(t, images, "no row may point at a missing file")
	assert.False(t, env.store.Exists(media.OriginalPath(g.ID, album.ID, "001.png")))

	// the failed file's code stays consumed
	env.gallery.thumbs = noopThumbnails{}
	stored, err := env.gallery.IngestImages(ctx, album.ID, []Upload{pngUpload(t, "b.png", 20, 20)})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "002", stored[0].Code)
}

func TestIngestImages_RejectsNonImages(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	_, album := env.galleryWithAlbum(t)

	_, err := env.gallery.IngestImages(ctx, album.ID, []Upload{{Name: "notes.txt", Data: bytes.NewReader([]byte("hello there"))}})
	require.Error(t, err)
	apiErr, ok := apierror.As(err)
	require.True(t, ok)
	assert.Equal(t, apierror.NameBadRequest, apiErr.Name)

	// Rejected files do not consume a code.
	imgs, err := env.gallery.IngestImages(ctx, album.ID, []Upload{pngUpload(t, "ok.png", 4, 4)})
	require.NoError(t, err)
	assert.Equal(t, "001", imgs[0].Code)
}

func TestIngestImages_UnknownAlbum(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.gallery.IngestImages(context.Background(), 99, []Upload{pngUpload(t, "a.png", 4, 4)})
	assert.True(t, apierror.IsNotFound(err))
}

func TestDeleteGallery_RemovesTreeAndRows(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	g, album := env.galleryWithAlbum(t)
	_, err := env.gallery.IngestImages(ctx, album.ID, []Upload{pngUpload(t, "a.png", 8, 8)})
	require.NoError(t, err)

	galleryDir, err := env.store.GetFullPath(media.GalleryDir(g.ID))
	require.NoError(t, err)
	require.DirExists(t, galleryDir)

	removed, err := env.gallery.DeleteByID(ctx, g.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	var albumCount, imageCount int64
	require.NoError(t, env.db.Model(&models.Album{}).Where("gallery_id = ?", g.ID).Count(&albumCount).Error)
	require.NoError(t, env.db.Model(&models.Image{}).Where("album_id = ?", album.ID).Count(&imageCount).Error)
	assert.Zero(t, albumCount)
	assert.Zero(t, imageCount)

	_, err = os.Stat(galleryDir)
	assert.True(t, os.IsNotExist(err))

	removed, err = env.gallery.DeleteByID(ctx, g.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestEditAlbum_CodeChangeUpdatesFullcode(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	_, album := env.galleryWithAlbum(t)
	imgs, err := env.gallery.IngestImages(ctx, album.ID, []Upload{pngUpload(t, "a.png", 8, 8)})
	require.NoError(t, err)
	before := imgs[0]
	assert.Equal(t, "A001", models.FullCode(album, &before))

	renamed, err := env.gallery.EditAlbum(ctx, album.ID, map[string]any{"code": "zz"})
	require.NoError(t, err)
	assert.Equal(t, "ZZ", renamed.Code)

	reloaded, images, err := env.gallery.ListImages(ctx, album.ID)
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, "ZZ001", models.ToImageDTO(reloaded, &images[0]).FullCode)
	assert.True(t, images[0].UpdatedAt.Equal(before.UpdatedAt), "image row must not be rewritten")
}

func TestCreateAlbum_CodesAndOrder(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	g, err := env.gallery.Add(ctx, &models.Gallery{Name: "Fair"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, g.Status)

	first, err := env.gallery.CreateAlbum(ctx, g.ID, AlbumInput{Name: "One"})
	require.NoError(t, err)
	second, err := env.gallery.CreateAlbum(ctx, g.ID, AlbumInput{Name: "Two"})
	require.NoError(t, err)
	assert.Equal(t, "A", first.Code)
	assert.Equal(t, "B", second.Code)
	assert.Equal(t, 0, first.OrderIndex)
	assert.Equal(t, 1, second.OrderIndex)

	_, err = env.gallery.CreateAlbum(ctx, g.ID, AlbumInput{Code: "b", Name: "Dup"})
	apiErr, ok := apierror.As(err)
	require.True(t, ok)
	assert.Equal(t, apierror.NameConflict, apiErr.Name)

	_, err = env.gallery.CreateAlbum(ctx, 404, AlbumInput{Name: "x"})
	assert.True(t, apierror.IsNotFound(err))
}

func TestReorderAlbums(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	g, err := env.gallery.Add(ctx, &models.Gallery{Name: "Fair"})
	require.NoError(t, err)
	a, _ := env.gallery.CreateAlbum(ctx, g.ID, AlbumInput{Name: "One"})
	b, _ := env.gallery.CreateAlbum(ctx, g.ID, AlbumInput{Name: "Two"})

	albums, err := env.gallery.ReorderAlbums(ctx, g.ID, []AlbumOrder{{ID: a.ID, OrderIndex: 1}, {ID: b.ID, OrderIndex: 0}})
	require.NoError(t, err)
	require.Len(t, albums, 2)
	assert.Equal(t, b.ID, albums[0].ID)
	assert.Equal(t, a.ID, albums[1].ID)

	other, err := env.gallery.Add(ctx, &models.Gallery{Name: "Other"})
	require.NoError(t, err)
	_, err = env.gallery.ReorderAlbums(ctx, other.ID, []AlbumOrder{{ID: a.ID, OrderIndex: 5}})
	assert.Error(t, err)
}

func TestPasswordAndUnlock(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	g, err := env.gallery.Add(ctx, &models.Gallery{Name: "PUBLIC", Description: "d", Status: models.StatusPublished})
	require.NoError(t, err)
	assert.False(t, g.IsProtected())

	_, err = env.gallery.Unlock(ctx, g.ID, "anything")
	require.NoError(t, err, "open galleries unlock with any password")

	protected, err := env.gallery.SetPassword(ctx, g.ID, "secret123")
	require.NoError(t, err)
	assert.True(t, protected.IsProtected())
	assert.NotEqual(t, "secret123", *protected.PasswordHash)

	_, err = env.gallery.Unlock(ctx, g.ID, "wrong")
	apiErr, ok := apierror.As(err)
	require.True(t, ok)
	assert.Equal(t, apierror.NameUnauthorized, apiErr.Name)

	_, err = env.gallery.Unlock(ctx, g.ID, "secret123")
	require.NoError(t, err)

	cleared, err := env.gallery.ClearPassword(ctx, g.ID)
	require.NoError(t, err)
	assert.False(t, cleared.IsProtected())

	_, err = env.gallery.SetPassword(ctx, 404, "x")
	assert.True(t, apierror.IsNotFound(err))
}

func TestSetCover(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	g, _ := env.galleryWithAlbum(t)

	_, err := env.gallery.CoverFile(ctx, g.ID)
	assert.True(t, apierror.IsNotFound(err))

	updated, err := env.gallery.SetCover(ctx, g.ID, pngUpload(t, "cover.png", 40, 20).Data)
	require.NoError(t, err)
	require.NotNil(t, updated.CoverFile)
	assert.True(t, models.ToGalleryDTO(updated).HasCover)

	path, err := env.gallery.CoverFile(ctx, g.ID)
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestPrepareExport(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	g, album := env.galleryWithAlbum(t)
	_, err := env.gallery.IngestImages(ctx, album.ID, []Upload{pngUpload(t, "a.png", 8, 8), pngUpload(t, "b.png", 8, 8)})
	require.NoError(t, err)

	export, err := env.gallery.PrepareExport(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "School-trip-1.zip", export.FileName)

	var buf bytes.Buffer
	require.NoError(t, export.Write(&buf))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	names := []string{}
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{ExportSpreadsheetName, "A/001.png", "A/002.png"}, names)

	sheetFile, err := zr.Open(ExportSpreadsheetName)
	require.NoError(t, err)
	defer sheetFile.Close()
	xl, err := excelize.OpenReader(sheetFile)
	require.NoError(t, err)
	rows, err := xl.GetRows("Codes")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Full code", rows[0][3])
	assert.Equal(t, "A001", rows[1][3])
	assert.Equal(t, "A002", rows[2][3])

	_, err = env.gallery.PrepareExport(ctx, 404)
	assert.True(t, apierror.IsNotFound(err))
}

func TestActionService_GalleryOwnership(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	action, err := env.actions.Add(ctx, &models.Action{Name: "Trip", Type: models.ActionGallery})
	require.NoError(t, err)
	require.NotNil(t, action.GalleryID)
	assert.Equal(t, models.ActionPending, action.Status)

	g, err := env.gallery.Get(ctx, *action.GalleryID)
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, "Trip", g.Name)

	renamed, err := env.actions.Edit(ctx, action.ID, map[string]any{"name": "Ski trip"})
	require.NoError(t, err)
	assert.Equal(t, "Ski trip", renamed.Name)
	g, _ = env.gallery.Get(ctx, *action.GalleryID)
	assert.Equal(t, "Ski trip", g.Name)

	removed, err := env.actions.DeleteByID(ctx, action.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	g, err = env.gallery.Get(ctx, *action.GalleryID)
	require.NoError(t, err)
	assert.Nil(t, g, "owned gallery is deleted with the action")
}

func TestActionService_Conversions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	simple, err := env.actions.Add(ctx, &models.Action{Name: "Bake sale"})
	require.NoError(t, err)
	assert.Equal(t, models.ActionSimple, simple.Type)
	assert.Nil(t, simple.GalleryID)

	converted, err := env.actions.Edit(ctx, simple.ID, map[string]any{"type": models.ActionGallery})
	require.NoError(t, err)
	require.NotNil(t, converted.GalleryID)
	galleryID := *converted.GalleryID

	back, err := env.actions.Edit(ctx, simple.ID, map[string]any{"type": models.ActionSimple})
	require.NoError(t, err)
	assert.Nil(t, back.GalleryID)

	kept, err := env.gallery.Get(ctx, galleryID)
	require.NoError(t, err)
	assert.NotNil(t, kept, "detaching keeps the gallery")
}

func TestActionService_GalleryDeleteNullsReference(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	action, err := env.actions.Add(ctx, &models.Action{Name: "Concert", Type: models.ActionGallery})
	require.NoError(t, err)

	removed, err := env.gallery.DeleteByID(ctx, *action.GalleryID)
	require.NoError(t, err)
	require.True(t, removed)

	reloaded, err := env.actions.Get(ctx, action.ID)
	require.NoError(t, err)
	assert.Nil(t, reloaded.GalleryID)
}

func TestActionService_EditKeepsDeletedGalleryDetached(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	action, err := env.actions.Add(ctx, &models.Action{Name: "Sports day", Type: models.ActionGallery})
	require.NoError(t, err)
	removed, err := env.gallery.DeleteByID(ctx, *action.GalleryID)
	require.NoError(t, err)
	require.True(t, removed)

	edited, err := env.actions.Edit(ctx, action.ID, map[string]any{"status": models.ActionCompleted})
	require.NoError(t, err)
	assert.Equal(t, models.ActionCompleted, edited.Status)
	assert.Nil(t, edited.GalleryID, "a status edit must not recreate the gallery")

	edited, err = env.actions.Edit(ctx, action.ID, map[string]any{"name": "Sports day 2"})
	require.NoError(t, err)
	assert.Nil(t, edited.GalleryID)

	galleries, err := env.gallery.All(ctx, nil, "")
	require.NoError(t, err)
	assert.Empty(t, galleries)
}

func TestActionService_FailedConversionRemovesNewGallery(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	simple, err := env.actions.Add(ctx, &models.Action{Name: "Bake sale"})
	require.NoError(t, err)

	_, err = env.actions.Edit(ctx, simple.ID, map[string]any{"type": models.ActionGallery, "no_such_column": 1})
	require.Error(t, err)

	galleries, err := env.gallery.All(ctx, nil, "")
	require.NoError(t, err)
	assert.Empty(t, galleries, "the gallery created for the conversion is removed")

	reloaded, err := env.actions.Get(ctx, simple.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ActionSimple, reloaded.Type)
	assert.Nil(t, reloaded.GalleryID)
}

func TestBootstrap(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	users := repository.New[models.User](env.db)
	blogs := repository.New[models.Blog](env.db)

	require.NoError(t, Bootstrap(ctx, users, blogs, "admin", "pw", log))
	require.NoError(t, Bootstrap(ctx, users, blogs, "admin", "other", log))

	count, err := users.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	admin, err := users.First(ctx, map[string]any{"username": "admin"})
	require.NoError(t, err)
	require.NotNil(t, admin)
	assert.Equal(t, models.RoleAdmin, admin.Role)
	assert.True(t, models.CheckPassword(admin.PasswordHash, "pw"))

	latest, err := blogs.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, models.StatusPublished, latest.Status)
}
