package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	sq "github.com/Masterminds/squirrel"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// ThumbnailInfo records which thumbnail was produced for an original, and from
// which version of the original (its modification time).
type ThumbnailInfo struct {
	ThumbnailPath string
	LastModified  int64
}

// EnsureThumbnailTable creates the thumbnail index used by the thumbnail workers.
func EnsureThumbnailTable(db *sql.DB) error {
	sqlStmt := `
	CREATE TABLE IF NOT EXISTS thumbnails (
		original_path TEXT PRIMARY KEY,
		thumbnail_path TEXT NOT NULL,
		last_modified INTEGER NOT NULL
	);
	`
	if _, err := db.Exec(sqlStmt); err != nil {
		return fmt.Errorf("failed to create thumbnails table: %w", err)
	}
	return nil
}

// GetThumbnailInfo returns sql.ErrNoRows when no thumbnail was recorded.
func GetThumbnailInfo(ctx context.Context, db *sql.DB, originalPath string) (ThumbnailInfo, error) {
	var info ThumbnailInfo

	queryBuilder := psql.Select("thumbnail_path", "last_modified").
		From("thumbnails").
		Where(sq.Eq{"original_path": filepath.ToSlash(originalPath)}).
		Limit(1)

	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return ThumbnailInfo{}, fmt.Errorf("failed to build SQL query for GetThumbnailInfo: %w", err)
	}

	err = db.QueryRowContext(ctx, sqlStr, args...).Scan(&info.ThumbnailPath, &info.LastModified)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ThumbnailInfo{}, sql.ErrNoRows
		}
		return ThumbnailInfo{}, fmt.Errorf("failed to query or scan thumbnail info for %s: %w", originalPath, err)
	}
	return info, nil
}

// SetThumbnailInfo inserts or updates thumbnail information
func SetThumbnailInfo(ctx context.Context, db *sql.DB, originalPath, thumbnailPath string, lastModified int64) error {
	queryBuilder := psql.Insert("thumbnails").
		Columns("original_path", "thumbnail_path", "last_modified").
		Values(filepath.ToSlash(originalPath), filepath.ToSlash(thumbnailPath), lastModified).
		Suffix("ON CONFLICT(original_path) DO UPDATE SET").
		Suffix("thumbnail_path = excluded.thumbnail_path,").
		Suffix("last_modified = excluded.last_modified")

	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build SQL query for SetThumbnailInfo: %w", err)
	}

	if _, err = db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("failed to execute set thumbnail info for %s: %w", originalPath, err)
	}
	return nil
}

// DeleteThumbnailInfoByPrefix forgets every original under a directory, e.g.
// when a gallery or album tree is removed. Returns the number of rows removed.
func DeleteThumbnailInfoByPrefix(ctx context.Context, db *sql.DB, prefix string) (int64, error) {
	queryBuilder := psql.Delete("thumbnails").
		Where(sq.Like{"original_path": filepath.ToSlash(prefix) + "%"})

	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build SQL query for DeleteThumbnailInfoByPrefix: %w", err)
	}

	res, err := db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete thumbnail info under %s: %w", prefix, err)
	}
	return res.RowsAffected()
}
