package sqlstore

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"diary/internal/models"
	"diary/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := New("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustDate(t *testing.T, s string) models.Date {
	t.Helper()
	d, err := models.ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestAddEntryCreatesDayOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	date := mustDate(t, "2024-03-15")

	first, created, err := s.AddEntry(ctx, date, "Trip", "Went hiking")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, first.ID)

	second, created, err := s.AddEntry(ctx, date, "Dinner", "Pasta")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.DayID, second.DayID)

	days, err := s.CountDays(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, days)

	entries, err := s.CountEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, entries)

	day, err := s.GetDayByDate(ctx, date)
	require.NoError(t, err)
	assert.Equal(t, date, day.Date)
}

func TestAddEntryConcurrentSameDate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	date := mustDate(t, "2025-01-02")

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.AddEntry(ctx, date, "title", "text")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	days, err := s.CountDays(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, days)

	entries, err := s.ListEntriesByDate(ctx, date)
	require.NoError(t, err)
	assert.Len(t, entries, writers)
}

// Two handles on one file database write through separate connections, so
// their transactions really do race on the day insert.
func TestAddEntryConcurrentSameDateTwoHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "diary.db")
	a, err := New("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	b, err := New("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	ctx := context.Background()
	date := mustDate(t, "2025-06-30")

	const writers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		s := a
		if i%2 == 1 {
			s = b
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, isNew, err := s.AddEntry(ctx, date, "title", "text")
			if isNew {
				mu.Lock()
				created++
				mu.Unlock()
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, created)

	days, err := b.CountDays(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, days)

	entries, err := a.ListEntriesByDate(ctx, date)
	require.NoError(t, err)
	assert.Len(t, entries, writers)
}

func TestListEntriesByDateWithoutDay(t *testing.T) {
	s := newTestStore(t)

	entries, err := s.ListEntriesByDate(context.Background(), mustDate(t, "1999-12-31"))
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)

	_, err = s.GetDayByDate(context.Background(), mustDate(t, "1999-12-31"))
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestListDaysReturnsEveryDay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, d := range []string{"2024-03-15", "2023-11-01", "2024-04-01", "2024-03-01"} {
		_, _, err := s.AddEntry(ctx, mustDate(t, d), "t", "x")
		require.NoError(t, err)
	}

	days, err := s.ListDays(ctx)
	require.NoError(t, err)
	require.Len(t, days, 4)
	assert.Equal(t, "2023-11-01", days[0].Date.String())
	assert.Equal(t, "2024-04-01", days[3].Date.String())

	march, err := s.ListDaysInMonth(ctx, 2024, time.March)
	require.NoError(t, err)
	require.Len(t, march, 2)
	assert.Equal(t, "2024-03-01", march[0].Date.String())
	assert.Equal(t, "2024-03-15", march[1].Date.String())
}

func TestListDaysInMonthBounds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, d := range []string{"2024-02-29", "2024-03-01", "2024-03-31", "2024-04-01", "9999-12-05", "9999-12-31"} {
		_, _, err := s.AddEntry(ctx, mustDate(t, d), "t", "x")
		require.NoError(t, err)
	}

	march, err := s.ListDaysInMonth(ctx, 2024, time.March)
	require.NoError(t, err)
	require.Len(t, march, 2)
	assert.Equal(t, "2024-03-01", march[0].Date.String())
	assert.Equal(t, "2024-03-31", march[1].Date.String())

	december, err := s.ListDaysInMonth(ctx, 9999, time.December)
	require.NoError(t, err)
	require.Len(t, december, 2)
	assert.Equal(t, "9999-12-05", december[0].Date.String())
	assert.Equal(t, "9999-12-31", december[1].Date.String())
}

func TestCreateUserUniqueness(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := &models.User{Username: "anna", Email: "anna@example.com", CreatedDate: mustDate(t, "2024-01-05")}
	require.NoError(t, s.CreateUser(ctx, u))
	assert.NotZero(t, u.ID)

	err := s.CreateUser(ctx, &models.User{Username: "anna", Email: "other@example.com"})
	assert.ErrorIs(t, err, store.ErrConflict)

	err = s.CreateUser(ctx, &models.User{Username: "bob", Email: "anna@example.com"})
	assert.ErrorIs(t, err, store.ErrConflict)

	got, err := s.GetUserByUsername(ctx, "anna")
	require.NoError(t, err)
	assert.Equal(t, "anna@example.com", got.Email)
	assert.Equal(t, "2024-01-05", got.CreatedDate.String())

	_, err = s.GetUserByUsername(ctx, "bob")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateUserDefaultsCreatedDate(t *testing.T) {
	s := newTestStore(t)
	u := &models.User{Username: "carl", Email: "carl@example.com"}
	require.NoError(t, s.CreateUser(context.Background(), u))
	assert.Equal(t, models.Today(), u.CreatedDate)
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := New("mysql", "whatever")
	assert.Error(t, err)
}

func TestRebindPostgres(t *testing.T) {
	s := &SQLStore{dbType: Postgres}
	assert.Equal(t, "SELECT id FROM day WHERE date >= $1 AND date < $2", s.rebind("SELECT id FROM day WHERE date >= ? AND date < ?"))

	s = &SQLStore{dbType: SQLite}
	assert.Equal(t, "SELECT ?", s.rebind("SELECT ?"))
}

func TestAddEntryPostgresDialect(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	s := NewWithDB(db, Postgres)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO day \(date\) VALUES \(\$1\) ON CONFLICT \(date\) DO NOTHING`).
		WithArgs("2024-03-15").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT id FROM day WHERE date = \$1`).
		WithArgs("2024-03-15").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery(`INSERT INTO entry \(title, text, day_id\) VALUES \(\$1, \$2, \$3\) RETURNING id`).
		WithArgs("Trip", "Went hiking", 7).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))
	mock.ExpectCommit()

	entry, created, err := s.AddEntry(context.Background(), mustDate(t, "2024-03-15"), "Trip", "Went hiking")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 42, entry.ID)
	assert.Equal(t, 7, entry.DayID)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestAddEntryRollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	s := NewWithDB(db, Postgres)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO day`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT id FROM day`).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectQuery(`INSERT INTO entry`).WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	_, _, err = s.AddEntry(context.Background(), mustDate(t, "2024-03-15"), "a", "b")
	assert.Error(t, err)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestGetDayByDatePostgresNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	s := NewWithDB(db, Postgres)
	mock.ExpectQuery(`SELECT id, date FROM day WHERE date = \$1`).
		WithArgs("2020-02-29").
		WillReturnRows(sqlmock.NewRows([]string{"id", "date"}))

	_, err = s.GetDayByDate(context.Background(), mustDate(t, "2020-02-29"))
	assert.ErrorIs(t, err, store.ErrNotFound)
}
