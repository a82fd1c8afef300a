package repository

import (
	"context"
	"database/sql"
	"time"

	"blerelay"
	dbinit "blerelay/internal/repository/db"
)

type Authorization interface {
	Create(username, hash string) (int, error)
	GetByUsername(username string) (*blerelay.User, error)
}

// EventRepo is the durable append-only session journal.
type EventRepo interface {
	Append(ctx context.Context, e blerelay.SessionEvent) error
	List(ctx context.Context, from, to time.Time, typ string) ([]blerelay.SessionEvent, error)
}

type Repository struct {
	EventRepo EventRepo
	Auth      Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		EventRepo: NewEventSQLite(db),
		Auth:      NewUserRepository(db),
	}
}

// InitDB re-exports the connection helper so callers wire one package.
func InitDB(path string) (*sql.DB, error) {
	return dbinit.InitDB(path)
}
