package store

import (
	"context"
	"errors"
	"time"

	"diary/internal/models"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)

// Store defines the interface for all database operations
type Store interface {
	// Days
	ListDays(ctx context.Context) ([]models.Day, error)
	ListDaysInMonth(ctx context.Context, year int, month time.Month) ([]models.Day, error)
	GetDayByDate(ctx context.Context, date models.Date) (*models.Day, error)
	CountDays(ctx context.Context) (int, error)

	// Entries
	AddEntry(ctx context.Context, date models.Date, title, text string) (*models.Entry, bool, error)
	ListEntriesByDate(ctx context.Context, date models.Date) ([]models.Entry, error)
	CountEntries(ctx context.Context) (int, error)

	// Users
	CreateUser(ctx context.Context, u *models.User) error
	// GetUserByUsername reads a user back. No page looks users up; tests use it
	// to check what CreateUser stored.
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)

	Ping(ctx context.Context) error
	Close() error
}
