package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SergeiKhy/tinyurl/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrLinkNotFound = errors.New("link not found")
	ErrCodeExists   = errors.New("short code already exists")
)

// uniqueViolation SQLSTATE нарушения уникального ограничения
const uniqueViolation = "23505"

type LinkRepository interface {
	FindAll(ctx context.Context) ([]*models.Link, error)
	FindByCode(ctx context.Context, code string) (*models.Link, error)
	Insert(ctx context.Context, link *models.Link) error
	DeleteByCode(ctx context.Context, code string) error
	Save(ctx context.Context, link *models.Link) error
	// RecordClick атомарно увеличивает счётчик и обновляет last_clicked
	RecordClick(ctx context.Context, code string, at time.Time) (*models.Link, error)
}

type linkRepository struct {
	db *PostgresDB
}

func NewLinkRepository(db *PostgresDB) LinkRepository {
	return &linkRepository{db: db}
}

const linkColumns = `id, code, url, clicks, created_at, last_clicked`

func (r *linkRepository) FindAll(ctx context.Context) ([]*models.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links ORDER BY created_at DESC, id DESC`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	links := make([]*models.Link, 0)
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating links: %w", err)
	}

	return links, nil
}

func (r *linkRepository) FindByCode(ctx context.Context, code string) (*models.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE code = $1`

	link, err := scanLink(r.db.Pool.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get link: %w", err)
	}

	return link, nil
}

// Insert полагается на ограничение links_code_key, а не на предварительную проверку
func (r *linkRepository) Insert(ctx context.Context, link *models.Link) error {
	query := `
		INSERT INTO links (code, url, clicks, created_at)
		VALUES ($1, $2, 0, $3)
		RETURNING id, clicks, created_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		link.Code,
		link.URL,
		link.CreatedAt,
	).Scan(&link.ID, &link.Clicks, &link.CreatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrCodeExists
		}
		return fmt.Errorf("failed to create link: %w", err)
	}

	link.LastClicked = nil
	return nil
}

func (r *linkRepository) DeleteByCode(ctx context.Context, code string) error {
	query := `DELETE FROM links WHERE code = $1`

	result, err := r.db.Pool.Exec(ctx, query, code)
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrLinkNotFound
	}

	return nil
}

// Save сохраняет изменяемые поля (clicks, last_clicked); code, url и created_at не трогает
func (r *linkRepository) Save(ctx context.Context, link *models.Link) error {
	query := `UPDATE links SET clicks = $2, last_clicked = $3 WHERE code = $1`

	result, err := r.db.Pool.Exec(ctx, query, link.Code, link.Clicks, link.LastClicked)
	if err != nil {
		return fmt.Errorf("failed to save link: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrLinkNotFound
	}

	return nil
}

func (r *linkRepository) RecordClick(ctx context.Context, code string, at time.Time) (*models.Link, error) {
	// GREATEST игнорирует NULL, так что первый клик просто выставляет at
	query := `
		UPDATE links
		SET clicks = clicks + 1,
			last_clicked = GREATEST(last_clicked, $2)
		WHERE code = $1
		RETURNING ` + linkColumns

	link, err := scanLink(r.db.Pool.QueryRow(ctx, query, code, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to record click: %w", err)
	}

	return link, nil
}

func scanLink(row pgx.Row) (*models.Link, error) {
	link := &models.Link{}
	err := row.Scan(
		&link.ID,
		&link.Code,
		&link.URL,
		&link.Clicks,
		&link.CreatedAt,
		&link.LastClicked,
	)
	if err != nil {
		return nil, err
	}
	return link, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
