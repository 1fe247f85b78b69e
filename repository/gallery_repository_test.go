package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camden-git/parentsgallery/models"
)

func seedGallery(t *testing.T, repo *GalleryRepository) (*models.Gallery, *models.Album) {
	t.Helper()
	ctx := context.Background()
	g, err := repo.Galleries.Add(ctx, &models.Gallery{Name: "Carnival", Status: models.StatusPublished})
	require.NoError(t, err)
	a, err := repo.Albums.Add(ctx, &models.Album{GalleryID: g.ID, Code: "A", Name: "Parade"})
	require.NoError(t, err)
	return g, a
}

func TestGalleryRepository_ReserveImageIndexNeverReuses(t *testing.T) {
	ctx := context.Background()
	repo := NewGalleryRepository(setupTestDB(t))
	_, album := seedGallery(t, repo)

	first, err := repo.ReserveImageIndex(ctx, album.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, first)

	img, err := repo.Images.Add(ctx, &models.Image{AlbumID: album.ID, Code: "001", Filename: "001.jpg"})
	require.NoError(t, err)

	second, err := repo.ReserveImageIndex(ctx, album.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, second)

	_, err = repo.Images.DeleteByID(ctx, img.ID)
	require.NoError(t, err)

	third, err := repo.ReserveImageIndex(ctx, album.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, third)
}

func TestGalleryRepository_ReserveImageIndexSeedsFromFilenames(t *testing.T) {
	ctx := context.Background()
	repo := NewGalleryRepository(setupTestDB(t))
	_, album := seedGallery(t, repo)

	// Rows imported without touching the high-water mark.
	_, err := repo.Images.Add(ctx, &models.Image{AlbumID: album.ID, Code: "014", Filename: "014.jpg"})
	require.NoError(t, err)

	next, err := repo.ReserveImageIndex(ctx, album.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, next)
}

func TestGalleryRepository_ReserveImageIndexMissingAlbum(t *testing.T) {
	repo := NewGalleryRepository(setupTestDB(t))

	_, err := repo.ReserveImageIndex(context.Background(), 404)
	assert.Error(t, err)
}

func TestGalleryRepository_ListAlbumsOrdering(t *testing.T) {
	ctx := context.Background()
	repo := NewGalleryRepository(setupTestDB(t))
	g, err := repo.Galleries.Add(ctx, &models.Gallery{Name: "Sports day"})
	require.NoError(t, err)

	next, err := repo.NextAlbumOrder(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, next)

	for _, a := range []models.Album{
		{GalleryID: g.ID, Code: "C", Name: "Relay", OrderIndex: 1},
		{GalleryID: g.ID, Code: "A10", Name: "Sack race", OrderIndex: 0},
		{GalleryID: g.ID, Code: "A2", Name: "Long jump", OrderIndex: 0},
	} {
		a := a
		_, err := repo.Albums.Add(ctx, &a)
		require.NoError(t, err)
	}

	albums, err := repo.ListAlbums(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, albums, 3)
	assert.Equal(t, "A2", albums[0].Code)
	assert.Equal(t, "A10", albums[1].Code)
	assert.Equal(t, "C", albums[2].Code)

	next, err = repo.NextAlbumOrder(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, next)

	taken, err := repo.AlbumCodeTaken(ctx, g.ID, "C", 0)
	require.NoError(t, err)
	assert.True(t, taken)
	taken, err = repo.AlbumCodeTaken(ctx, g.ID, "C", albums[2].ID)
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestGalleryRepository_ImageQueries(t *testing.T) {
	ctx := context.Background()
	repo := NewGalleryRepository(setupTestDB(t))
	g, album := seedGallery(t, repo)

	for _, code := range []string{"010", "002", "001"} {
		_, err := repo.Images.Add(ctx, &models.Image{AlbumID: album.ID, Code: code, Filename: code + ".jpg"})
		require.NoError(t, err)
	}

	images, err := repo.ListImages(ctx, album.ID)
	require.NoError(t, err)
	require.Len(t, images, 3)
	assert.Equal(t, []string{"001", "002", "010"}, []string{images[0].Code, images[1].Code, images[2].Code})

	byGallery, err := repo.ListImagesByGallery(ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, byGallery, 3)

	withImages, err := repo.ListAlbumsWithImages(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, withImages, 1)
	require.Len(t, withImages[0].Images, 3)
	assert.Equal(t, "001", withImages[0].Images[0].Code)

	img, parent, err := repo.AlbumByImage(ctx, images[0].ID)
	require.NoError(t, err)
	require.NotNil(t, img)
	assert.Equal(t, album.ID, parent.ID)
	assert.Equal(t, "A001", models.FullCode(parent, img))
}

func TestGalleryRepository_DeleteGalleryCascades(t *testing.T) {
	ctx := context.Background()
	repo := NewGalleryRepository(setupTestDB(t))
	g, album := seedGallery(t, repo)
	_, err := repo.Images.Add(ctx, &models.Image{AlbumID: album.ID, Code: "001", Filename: "001.jpg"})
	require.NoError(t, err)

	removed, err := repo.Galleries.DeleteByID(ctx, g.ID)
	require.NoError(t, err)
	require.True(t, removed)

	albums, err := repo.ListAlbums(ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, albums)

	images, err := repo.ListImages(ctx, album.ID)
	require.NoError(t, err)
	assert.Empty(t, images)
}
