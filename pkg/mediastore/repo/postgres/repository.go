package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-media/pkg/mediastore"
)

// DBTX is an interface that allows us to use either a connection pool or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
}

// Repository implements mediastore.Repository using PostgreSQL
type Repository struct {
	db  DBTX
	now func() time.Time
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db, now: time.Now}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return New(pool)
}

func (r *Repository) qb() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if pgErr.ConstraintName == "media_asset_content_hash_key" {
				return mediastore.ErrDuplicateHash
			}
			return fmt.Errorf("%s: duplicate entry (%s)", operation, pgErr.ConstraintName)
		case "23503": // foreign_key_violation
			return mediastore.ErrAssetNotFound
		case "42P01": // undefined_table
			return fmt.Errorf("%s: table does not exist - database migration required", operation)
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

// Asset registry

var assetColumns = []string{
	"id", "content_hash", "storage_key", "size_bytes", "media_kind", "url", "content_type", "created_at",
}

func scanAsset(row pgx.Row) (*mediastore.MediaAsset, error) {
	var a mediastore.MediaAsset
	var kind string
	if err := row.Scan(&a.ID, &a.ContentHash, &a.StorageKey, &a.SizeBytes, &kind, &a.URL, &a.ContentType, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.MediaKind = mediastore.MediaKind(kind)
	return &a, nil
}

func (r *Repository) CreateAsset(ctx context.Context, asset *mediastore.MediaAsset) error {
	sqlStr, args, err := r.qb().Insert("media_asset").
		Columns(assetColumns...).
		Values(asset.ID, asset.ContentHash, asset.StorageKey, asset.SizeBytes,
			string(asset.MediaKind), asset.URL, asset.ContentType, asset.CreatedAt).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := r.db.Exec(ctx, sqlStr, args...); err != nil {
		return r.handlePostgresError("create asset", err)
	}
	return nil
}

func (r *Repository) GetAsset(ctx context.Context, id uuid.UUID) (*mediastore.MediaAsset, error) {
	return r.getAssetWhere(ctx, "get asset", sq.Eq{"id": id})
}

func (r *Repository) GetAssetByHash(ctx context.Context, contentHash string) (*mediastore.MediaAsset, error) {
	return r.getAssetWhere(ctx, "get asset by hash", sq.Eq{"content_hash": contentHash})
}

func (r *Repository) getAssetWhere(ctx context.Context, operation string, pred sq.Eq) (*mediastore.MediaAsset, error) {
	sqlStr, args, err := r.qb().Select(assetColumns...).From("media_asset").Where(pred).ToSql()
	if err != nil {
		return nil, err
	}

	asset, err := scanAsset(r.db.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, mediastore.ErrAssetNotFound
		}
		return nil, r.handlePostgresError(operation, err)
	}
	return asset, nil
}

func (r *Repository) ListUnreferencedAssets(ctx context.Context, createdBefore time.Time) ([]*mediastore.MediaAsset, error) {
	sqlStr, args, err := r.qb().Select(assetColumns...).
		From("media_asset a").
		Where(sq.Lt{"a.created_at": createdBefore}).
		Where("NOT EXISTS (SELECT 1 FROM ownership_link l WHERE l.asset_id = a.id)").
		OrderBy("a.created_at", "a.id").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, r.handlePostgresError("list unreferenced assets", err)
	}
	defer rows.Close()

	var result []*mediastore.MediaAsset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, asset)
	}
	return result, rows.Err()
}

// DeleteAsset removes the row only while no link references it. A link
// committed concurrently makes the foreign key reject the delete.
func (r *Repository) DeleteAsset(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM media_asset a
		WHERE a.id = $1
		  AND NOT EXISTS (SELECT 1 FROM ownership_link l WHERE l.asset_id = a.id)`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return mediastore.ErrAssetReferenced
		}
		return r.handlePostgresError("delete asset", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	if _, err := r.GetAsset(ctx, id); err != nil {
		return err
	}
	return mediastore.ErrAssetReferenced
}

// Ownership ledger

// AppendLink bumps the owner's counter and inserts the link in one
// statement, so concurrent appends for an owner serialize on the counter row.
func (r *Repository) AppendLink(ctx context.Context, ownerID int64, assetID uuid.UUID) (*mediastore.OwnershipLink, error) {
	link := &mediastore.OwnershipLink{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		AssetID:   assetID,
		CreatedAt: r.now().UTC(),
	}

	err := r.db.QueryRow(ctx, `
		WITH counter AS (
			INSERT INTO media_owner (owner_id, next_order) VALUES ($1, 1)
			ON CONFLICT (owner_id) DO UPDATE SET next_order = media_owner.next_order + 1
			RETURNING next_order - 1 AS display_order
		)
		INSERT INTO ownership_link (id, owner_id, asset_id, display_order, created_at)
		SELECT $2, $1, $3, display_order, $4 FROM counter
		RETURNING display_order, created_at`,
		ownerID, link.ID, assetID, link.CreatedAt,
	).Scan(&link.DisplayOrder, &link.CreatedAt)
	if err != nil {
		return nil, r.handlePostgresError("append link", err)
	}
	return link, nil
}

func (r *Repository) GetLink(ctx context.Context, id uuid.UUID) (*mediastore.OwnershipLink, error) {
	sqlStr, args, err := r.qb().
		Select("id", "owner_id", "asset_id", "display_order", "created_at").
		From("ownership_link").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var link mediastore.OwnershipLink
	err = r.db.QueryRow(ctx, sqlStr, args...).
		Scan(&link.ID, &link.OwnerID, &link.AssetID, &link.DisplayOrder, &link.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, mediastore.ErrLinkNotFound
		}
		return nil, r.handlePostgresError("get link", err)
	}
	return &link, nil
}

func (r *Repository) ListMedia(ctx context.Context, ownerID int64) ([]*mediastore.MediaItem, error) {
	sqlStr, args, err := r.qb().
		Select("l.id", "l.asset_id", "l.owner_id", "a.url", "a.media_kind",
			"l.display_order", "a.size_bytes", "l.created_at").
		From("ownership_link l").
		Join("media_asset a ON a.id = l.asset_id").
		Where(sq.Eq{"l.owner_id": ownerID}).
		OrderBy("l.display_order", "l.created_at", "l.id").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, r.handlePostgresError("list media", err)
	}
	defer rows.Close()

	items := []*mediastore.MediaItem{}
	for rows.Next() {
		var item mediastore.MediaItem
		var kind string
		if err := rows.Scan(&item.LinkID, &item.AssetID, &item.OwnerID, &item.URL, &kind,
			&item.DisplayOrder, &item.SizeBytes, &item.CreatedAt); err != nil {
			return nil, err
		}
		item.MediaKind = mediastore.MediaKind(kind)
		items = append(items, &item)
	}
	return items, rows.Err()
}

// SetThumbnail swaps the owner's thumbnail in one transaction. The owner's
// counter row is locked so concurrent swaps and appends for the same owner
// serialize.
func (r *Repository) SetThumbnail(ctx context.Context, ownerID int64, linkID uuid.UUID) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		var linkOwner int64
		err := tx.QueryRow(ctx,
			`SELECT owner_id FROM ownership_link WHERE id = $1 FOR UPDATE`, linkID).Scan(&linkOwner)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return mediastore.ErrLinkNotFound
			}
			return r.handlePostgresError("set thumbnail", err)
		}
		if linkOwner != ownerID {
			return mediastore.ErrOwnerMismatch
		}

		if _, err := tx.Exec(ctx,
			`SELECT 1 FROM media_owner WHERE owner_id = $1 FOR UPDATE`, ownerID); err != nil {
			return r.handlePostgresError("set thumbnail", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE ownership_link SET display_order = $2 WHERE owner_id = $1`,
			ownerID, mediastore.DemotedOrder); err != nil {
			return r.handlePostgresError("set thumbnail", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE ownership_link SET display_order = $2 WHERE id = $1`,
			linkID, mediastore.ThumbnailOrder); err != nil {
			return r.handlePostgresError("set thumbnail", err)
		}
		return nil
	})
}

func (r *Repository) DeleteLink(ctx context.Context, ownerID int64, linkID uuid.UUID) (*mediastore.OwnershipLink, error) {
	var link mediastore.OwnershipLink
	err := r.db.QueryRow(ctx, `
		DELETE FROM ownership_link WHERE id = $1 AND owner_id = $2
		RETURNING id, owner_id, asset_id, display_order, created_at`, linkID, ownerID).
		Scan(&link.ID, &link.OwnerID, &link.AssetID, &link.DisplayOrder, &link.CreatedAt)
	if err == nil {
		return &link, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, r.handlePostgresError("delete link", err)
	}

	// Distinguish a missing link from one that belongs to another owner.
	if _, err := r.GetLink(ctx, linkID); err != nil {
		return nil, err
	}
	return nil, mediastore.ErrOwnerMismatch
}

func (r *Repository) DeleteOwner(ctx context.Context, ownerID int64) (int, error) {
	var n int64
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM ownership_link WHERE owner_id = $1`, ownerID)
		if err != nil {
			return r.handlePostgresError("delete owner", err)
		}
		n = tag.RowsAffected()
		if _, err := tx.Exec(ctx, `DELETE FROM media_owner WHERE owner_id = $1`, ownerID); err != nil {
			return r.handlePostgresError("delete owner", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
