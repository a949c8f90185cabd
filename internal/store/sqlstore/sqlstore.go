package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"diary/internal/models"
	"diary/internal/store"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// DBType represents the type of database
type DBType string

const (
	SQLite   DBType = "sqlite3"
	Postgres DBType = "postgres"
)

// SQLStore implements the Store interface for SQL databases
type SQLStore struct {
	db     *sql.DB
	dbType DBType
}

var _ store.Store = (*SQLStore)(nil)

// New creates a new SQLStore with the given driver and connection string
func New(driver, connStr string) (*SQLStore, error) {
	dbType := DBType(driver)
	if dbType != SQLite && dbType != Postgres {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if dbType == SQLite {
		connStr = sqliteDSN(connStr)
	}

	db, err := sql.Open(driver, connStr)
	if err != nil {
		return nil, err
	}

	if dbType == SQLite {
		// One writer at a time; also keeps a :memory: database on a single connection.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLStore{
		db:     db,
		dbType: dbType,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return s, nil
}

// NewWithDB wraps an already opened handle without touching the schema.
func NewWithDB(db *sql.DB, dbType DBType) *SQLStore {
	return &SQLStore{db: db, dbType: dbType}
}

func sqliteDSN(connStr string) string {
	if strings.Contains(connStr, "?") {
		return connStr
	}
	return connStr + "?_foreign_keys=on&_busy_timeout=5000"
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL
func (s *SQLStore) rebind(query string) string {
	if s.dbType == SQLite {
		return query
	}
	var result strings.Builder
	argNum := 1
	for _, c := range query {
		if c == '?' {
			result.WriteString(fmt.Sprintf("$%d", argNum))
			argNum++
		} else {
			result.WriteRune(c)
		}
	}
	return result.String()
}

func (s *SQLStore) initSchema() error {
	var createDayTable, createEntryTable, createUserTable string

	if s.dbType == Postgres {
		createDayTable = `
		CREATE TABLE IF NOT EXISTS day (
			id SERIAL PRIMARY KEY,
			date DATE NOT NULL UNIQUE
		);`

		createEntryTable = `
		CREATE TABLE IF NOT EXISTS entry (
			id SERIAL PRIMARY KEY,
			title VARCHAR(120) NOT NULL,
			text VARCHAR(360) NOT NULL,
			day_id INTEGER NOT NULL REFERENCES day(id)
		);`

		createUserTable = `
		CREATE TABLE IF NOT EXISTS "user" (
			id SERIAL PRIMARY KEY,
			username VARCHAR(80) NOT NULL UNIQUE,
			email VARCHAR(120) NOT NULL UNIQUE,
			created_date DATE NOT NULL DEFAULT CURRENT_DATE
		);`
	} else {
		createDayTable = `
		CREATE TABLE IF NOT EXISTS day (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			date TEXT NOT NULL UNIQUE
		);`

		createEntryTable = `
		CREATE TABLE IF NOT EXISTS entry (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title VARCHAR(120) NOT NULL,
			text VARCHAR(360) NOT NULL,
			day_id INTEGER NOT NULL,
			FOREIGN KEY(day_id) REFERENCES day(id)
		);`

		createUserTable = `
		CREATE TABLE IF NOT EXISTS "user" (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username VARCHAR(80) NOT NULL UNIQUE,
			email VARCHAR(120) NOT NULL UNIQUE,
			created_date TEXT NOT NULL DEFAULT (date('now'))
		);`
	}

	stmts := []string{
		createDayTable,
		createEntryTable,
		createUserTable,
		`CREATE INDEX IF NOT EXISTS idx_entry_day_id ON entry(day_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Day functions
func (s *SQLStore) ListDays(ctx context.Context) ([]models.Day, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, date FROM day ORDER BY date ASC")
	if err != nil {
		return nil, err
	}
	return scanDays(rows)
}

func (s *SQLStore) ListDaysInMonth(ctx context.Context, year int, month time.Month) ([]models.Day, error) {
	first := models.DateOf(time.Date(year, month, 1, 0, 0, 0, 0, time.UTC))
	// Inclusive last day: SQLite compares the TEXT form, and "10000-01-01" sorts before "9999-12-xx".
	last := models.DateOf(first.Time().AddDate(0, 1, -1))
	rows, err := s.db.QueryContext(ctx, s.rebind("SELECT id, date FROM day WHERE date >= ? AND date <= ? ORDER BY date ASC"), first, last)
	if err != nil {
		return nil, err
	}
	return scanDays(rows)
}

func scanDays(rows *sql.Rows) ([]models.Day, error) {
	defer rows.Close()

	days := []models.Day{}
	for rows.Next() {
		var d models.Day
		if err := rows.Scan(&d.ID, &d.Date); err != nil {
			return nil, fmt.Errorf("scan day: %w", err)
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

func (s *SQLStore) GetDayByDate(ctx context.Context, date models.Date) (*models.Day, error) {
	var d models.Day
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT id, date FROM day WHERE date = ?"), date).Scan(&d.ID, &d.Date)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *SQLStore) CountDays(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM day").Scan(&n)
	return n, err
}

// Entry functions

// AddEntry finds or creates the Day for date and attaches a new Entry to it in
// one transaction. The boolean reports whether the Day was created.
func (s *SQLStore) AddEntry(ctx context.Context, date models.Date, title, text string) (*models.Entry, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.rebind("INSERT INTO day (date) VALUES (?) ON CONFLICT (date) DO NOTHING"), date)
	if err != nil {
		return nil, false, fmt.Errorf("upsert day: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	var dayID int
	if err := tx.QueryRowContext(ctx, s.rebind("SELECT id FROM day WHERE date = ?"), date).Scan(&dayID); err != nil {
		return nil, false, fmt.Errorf("load day: %w", err)
	}

	entryID, err := s.insertReturningID(ctx, tx, "INSERT INTO entry (title, text, day_id) VALUES (?, ?, ?)", title, text, dayID)
	if err != nil {
		return nil, false, fmt.Errorf("insert entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}

	return &models.Entry{
		ID:    int(entryID),
		DayID: dayID,
		Title: title,
		Text:  text,
	}, affected == 1, nil
}

func (s *SQLStore) insertReturningID(ctx context.Context, tx *sql.Tx, query string, args ...any) (int64, error) {
	if s.dbType == Postgres {
		var id int64
		err := tx.QueryRowContext(ctx, s.rebind(query+" RETURNING id"), args...).Scan(&id)
		return id, err
	}
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// ListEntriesByDate returns an empty slice when no Day exists for date.
func (s *SQLStore) ListEntriesByDate(ctx context.Context, date models.Date) ([]models.Entry, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT entry.id, entry.day_id, entry.title, entry.text
		FROM entry JOIN day ON day.id = entry.day_id
		WHERE day.date = ?
		ORDER BY entry.id ASC`), date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.Entry{}
	for rows.Next() {
		var e models.Entry
		if err := rows.Scan(&e.ID, &e.DayID, &e.Title, &e.Text); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLStore) CountEntries(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entry").Scan(&n)
	return n, err
}

// User functions
func (s *SQLStore) CreateUser(ctx context.Context, u *models.User) error {
	if u.CreatedDate.IsZero() {
		u.CreatedDate = models.Today()
	}

	query := `INSERT INTO "user" (username, email, created_date) VALUES (?, ?, ?)`
	var err error
	if s.dbType == Postgres {
		err = s.db.QueryRowContext(ctx, s.rebind(query+" RETURNING id"), u.Username, u.Email, u.CreatedDate).Scan(&u.ID)
	} else {
		var result sql.Result
		result, err = s.db.ExecContext(ctx, query, u.Username, u.Email, u.CreatedDate)
		if err == nil {
			var id int64
			id, err = result.LastInsertId()
			u.ID = int(id)
		}
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("user %q: %w", u.Username, store.ErrConflict)
	}
	return err
}

func (s *SQLStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT id, username, email, created_date FROM "user" WHERE username = ?`), username).
		Scan(&u.ID, &u.Username, &u.Email, &u.CreatedDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
