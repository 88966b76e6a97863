// Package directory provides display-name lookups for the entities leads
// reference: users, lead sources, and service types. The audit trail uses
// it to render foreign keys as readable names.
package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("directory entry not found")

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// User is a minimal account record used for assignment and audit display.
type User struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Roles []string  `json:"roles"`
}

// Source is a lead acquisition channel.
type Source struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Service is an offered service type leads inquire about.
type Service struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

func (r *Repository) UserName(ctx context.Context, id uuid.UUID) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `SELECT name FROM users WHERE id = $1`, id).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return name, err
}

func (r *Repository) SourceName(ctx context.Context, id uuid.UUID) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `SELECT name FROM lead_sources WHERE id = $1`, id).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return name, err
}

func (r *Repository) ServiceName(ctx context.Context, id uuid.UUID) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `SELECT name FROM service_types WHERE id = $1`, id).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return name, err
}

func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	var user User
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, email, roles FROM users WHERE id = $1
	`, id).Scan(&user.ID, &user.Name, &user.Email, &user.Roles)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return user, err
}

func (r *Repository) ListSources(ctx context.Context) ([]Source, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM lead_sources ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sources := make([]Source, 0)
	for rows.Next() {
		var source Source
		if err := rows.Scan(&source.ID, &source.Name); err != nil {
			return nil, err
		}
		sources = append(sources, source)
	}
	return sources, rows.Err()
}

func (r *Repository) ListServices(ctx context.Context) ([]Service, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM service_types ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	services := make([]Service, 0)
	for rows.Next() {
		var service Service
		if err := rows.Scan(&service.ID, &service.Name); err != nil {
			return nil, err
		}
		services = append(services, service)
	}
	return services, rows.Err()
}
