package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/trunov/mediaforge/internal/entities"
)

var ErrNotFound = errors.New("media not found")

type dbStorage struct {
	dbpool *pgxpool.Pool
}

func New(ctx context.Context, databaseDSN string) (*dbStorage, error) {
	pool, err := pgxpool.New(ctx, databaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &dbStorage{dbpool: pool}, nil
}

func (s *dbStorage) Ping(ctx context.Context) error {
	return s.dbpool.Ping(ctx)
}

func (s *dbStorage) Close() {
	s.dbpool.Close()
}

func (s *dbStorage) InsertMedia(ctx context.Context, m entities.Media) error {
	_, err := s.dbpool.Exec(ctx, `
		INSERT INTO media (id, owner, object_key, original_filename, title, mime_type, size, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.Owner, m.ObjectKey, m.OriginalFilename, m.Title, m.MimeType, m.Size, m.UploadedAt,
	)
	if err != nil {
		return fmt.Errorf("insert media %q: %w", m.ID, err)
	}
	return nil
}

func (s *dbStorage) GetMedia(ctx context.Context, id string) (entities.Media, error) {
	var m entities.Media
	err := s.dbpool.QueryRow(ctx, `
		SELECT id, owner, object_key, original_filename, title, mime_type, size, uploaded_at
		FROM media WHERE id = $1`, id,
	).Scan(&m.ID, &m.Owner, &m.ObjectKey, &m.OriginalFilename, &m.Title, &m.MimeType, &m.Size, &m.UploadedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return entities.Media{}, ErrNotFound
	}
	if err != nil {
		return entities.Media{}, fmt.Errorf("get media %q: %w", id, err)
	}
	return m, nil
}

func (s *dbStorage) ListMedia(ctx context.Context, owner string, page, limit int) (entities.MediaPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}

	result := entities.MediaPage{Page: page, Limit: limit, Items: []entities.Media{}}

	err := s.dbpool.QueryRow(ctx,
		`SELECT count(*) FROM media WHERE owner = $1`, owner,
	).Scan(&result.Total)
	if err != nil {
		return result, fmt.Errorf("count media for %q: %w", owner, err)
	}

	rows, err := s.dbpool.Query(ctx, `
		SELECT id, owner, object_key, original_filename, title, mime_type, size, uploaded_at
		FROM media WHERE owner = $1
		ORDER BY uploaded_at DESC
		LIMIT $2 OFFSET $3`,
		owner, limit, (page-1)*limit,
	)
	if err != nil {
		return result, fmt.Errorf("list media for %q: %w", owner, err)
	}
	defer rows.Close()

	for rows.Next() {
		var m entities.Media
		if err := rows.Scan(&m.ID, &m.Owner, &m.ObjectKey, &m.OriginalFilename, &m.Title, &m.MimeType, &m.Size, &m.UploadedAt); err != nil {
			return result, fmt.Errorf("scan media row: %w", err)
		}
		result.Items = append(result.Items, m)
	}
	return result, rows.Err()
}
