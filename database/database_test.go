package database

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetThumbnailInfo(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT thumbnail_path, last_modified FROM thumbnails WHERE original_path = \? LIMIT 1`).
		WithArgs("1/2/001.jpg").
		WillReturnRows(sqlmock.NewRows([]string{"thumbnail_path", "last_modified"}).AddRow("1/2/thumbnails/001.jpg", int64(1700000000)))

	info, err := GetThumbnailInfo(context.Background(), db, "1/2/001.jpg")
	require.NoError(t, err)
	assert.Equal(t, "1/2/thumbnails/001.jpg", info.ThumbnailPath)
	assert.Equal(t, int64(1700000000), info.LastModified)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetThumbnailInfoMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT thumbnail_path, last_modified FROM thumbnails`).
		WithArgs("nope.jpg").
		WillReturnRows(sqlmock.NewRows([]string{"thumbnail_path", "last_modified"}))

	_, err = GetThumbnailInfo(context.Background(), db, "nope.jpg")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetThumbnailInfoUpserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO thumbnails \(original_path,thumbnail_path,last_modified\) VALUES \(\?,\?,\?\) ON CONFLICT\(original_path\) DO UPDATE SET`).
		WithArgs("1/2/001.jpg", "1/2/thumbnails/001.jpg", int64(42)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = SetThumbnailInfo(context.Background(), db, "1/2/001.jpg", "1/2/thumbnails/001.jpg", 42)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteThumbnailInfoByPrefix(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM thumbnails WHERE original_path LIKE \?`).
		WithArgs("7/%").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := DeleteThumbnailInfoByPrefix(context.Background(), db, "7/")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureThumbnailTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS thumbnails`).WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, EnsureThumbnailTable(db))
	assert.NoError(t, mock.ExpectationsWereMet())
}
