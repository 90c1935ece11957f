package postgres

import (
	"context"
	"database/sql"

	"imagegen/internal/model"
	"imagegen/internal/repository"
)

// ImagePostgres is a PostgreSQL implementation of repository.ImageRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type ImagePostgres struct {
	db *sql.DB
}

// NewImagePostgres creates a new ImagePostgres repository.
func NewImagePostgres(db *sql.DB) *ImagePostgres {
	return &ImagePostgres{db: db}
}

var _ repository.ImageRepository = (*ImagePostgres)(nil)

// Create inserts a new history row and returns the stored record.
func (r *ImagePostgres) Create(ctx context.Context, img *model.GeneratedImage) (*model.GeneratedImage, error) {
	const q = `
		INSERT INTO generated_images (id, user_id, prompt, image_path, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, user_id, prompt, image_path, created_at
	`
	row := r.db.QueryRowContext(ctx, q,
		img.ID,
		img.UserID,
		img.Prompt,
		img.ImagePath,
		img.CreatedAt,
	)
	var out model.GeneratedImage
	if err := scanImage(row, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FindByID fetches a single row owned by userID.
func (r *ImagePostgres) FindByID(ctx context.Context, userID, id string) (*model.GeneratedImage, error) {
	const q = `
		SELECT id, user_id, prompt, image_path, created_at
		FROM generated_images
		WHERE id = $1 AND user_id = $2
	`
	var img model.GeneratedImage
	if err := scanImage(r.db.QueryRowContext(ctx, q, id, userID), &img); err != nil {
		return nil, err
	}
	return &img, nil
}

// ListByUser returns the user's rows using LIMIT/OFFSET pagination and a total count.
func (r *ImagePostgres) ListByUser(ctx context.Context, userID string, pq repository.PageQuery) (*repository.PageResult[model.GeneratedImage], error) {
	const qCount = `SELECT COUNT(*) FROM generated_images WHERE user_id = $1`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount, userID).Scan(&total); err != nil {
		return nil, err
	}

	const qList = `
		SELECT id, user_id, prompt, image_path, created_at
		FROM generated_images
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, qList, userID, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.GeneratedImage, 0)
	for rows.Next() {
		var img model.GeneratedImage
		if err := scanImage(rows, &img); err != nil {
			return nil, err
		}
		items = append(items, img)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.GeneratedImage]{
		Items: items,
		Total: total,
	}, nil
}

// Delete removes the user's row. It does not return an error if the row does not exist.
func (r *ImagePostgres) Delete(ctx context.Context, userID, id string) error {
	const q = `DELETE FROM generated_images WHERE id = $1 AND user_id = $2`
	_, err := r.db.ExecContext(ctx, q, id, userID)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanImage(s scanner, img *model.GeneratedImage) error {
	return s.Scan(
		&img.ID,
		&img.UserID,
		&img.Prompt,
		&img.ImagePath,
		&img.CreatedAt,
	)
}
