package linkpreview

import (
	"context"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.mau.fi/util/dbutil"
)

//go:embed upgrades/*.sql
var upgradesFS embed.FS

var upgradeTable dbutil.UpgradeTable

func init() {
	upgradeTable.RegisterFSPath(upgradesFS, "upgrades")
}

const (
	getPreviewQuery = `
		SELECT matched_url, canonical_url, title, description, site_name, type, image_url, fetched_at, expires_at
		FROM link_preview WHERE matched_url=$1 AND expires_at>$2
	`
	putPreviewQuery = `
		INSERT INTO link_preview (matched_url, canonical_url, title, description, site_name, type, image_url, fetched_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (matched_url) DO UPDATE
			SET canonical_url=excluded.canonical_url, title=excluded.title, description=excluded.description,
			    site_name=excluded.site_name, type=excluded.type, image_url=excluded.image_url,
			    fetched_at=excluded.fetched_at, expires_at=excluded.expires_at
	`
	deleteExpiredQuery = `DELETE FROM link_preview WHERE expires_at<=$1`
)

// Store persists fetched previews in SQLite so they survive restarts.
type Store struct {
	db *dbutil.Database
	qh *dbutil.QueryHelper[*previewRow]
}

type previewRow struct {
	Preview
	ExpiresAt time.Time
}

func (r *previewRow) Scan(row dbutil.Scannable) (*previewRow, error) {
	var fetchedAt, expiresAt int64
	err := row.Scan(&r.MatchedURL, &r.CanonicalURL, &r.Title, &r.Description, &r.SiteName, &r.Type, &r.ImageURL, &fetchedAt, &expiresAt)
	if err != nil {
		return nil, err
	}
	r.FetchedAt = time.UnixMilli(fetchedAt)
	r.ExpiresAt = time.UnixMilli(expiresAt)
	return r, nil
}

func OpenStore(ctx context.Context, path string, log zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create preview cache dir: %w", err)
	}
	db, err := dbutil.NewWithDialect("file:"+path+"?_txlock=immediate&_busy_timeout=5000", "sqlite3")
	if err != nil {
		return nil, fmt.Errorf("failed to open preview cache: %w", err)
	}
	db.Log = dbutil.ZeroLogger(log.With().Str("db_section", "link_preview").Logger())
	db.UpgradeTable = upgradeTable
	if err = db.Upgrade(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to upgrade preview cache: %w", err)
	}
	return &Store{
		db: db,
		qh: dbutil.MakeQueryHelperSimple(db, func() *previewRow { return &previewRow{} }),
	}, nil
}

// Get returns the cached preview for matchedURL along with its expiry, or nil
// if it is missing or has expired.
func (s *Store) Get(ctx context.Context, matchedURL string, now time.Time) (*Preview, time.Time, error) {
	row, err := s.qh.QueryOne(ctx, getPreviewQuery, matchedURL, now.UnixMilli())
	if err != nil || row == nil {
		return nil, time.Time{}, err
	}
	return &row.Preview, row.ExpiresAt, nil
}

func (s *Store) Put(ctx context.Context, preview *Preview, expiresAt time.Time) error {
	return s.qh.Exec(ctx, putPreviewQuery,
		preview.MatchedURL, preview.CanonicalURL, preview.Title, preview.Description,
		preview.SiteName, preview.Type, preview.ImageURL,
		preview.FetchedAt.UnixMilli(), expiresAt.UnixMilli(),
	)
}

func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.Exec(ctx, deleteExpiredQuery, now.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) Close() error {
	return s.db.Close()
}
