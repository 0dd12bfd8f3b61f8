package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/alpinisme/formation-sync/internal/course"
)

func newMockedStore(t *testing.T) (*CourseStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewCourseStore(mock)
	require.NoError(t, err)
	return store, mock
}

func seatsPtr(n int) *int { return &n }

func sampleCourse() course.Course {
	return course.Course{
		Reference:      "24-SKI-0042",
		Title:          "Initiation ski de randonnée",
		Discipline:     "Ski de randonnée",
		Location:       "Chamonix",
		Lodging:        "Refuge",
		Capacity:       12,
		SeatsRemaining: seatsPtr(4),
		Price:          250,
		Organizer:      "FFCAM",
		Responsible:    "Jean Dupont",
		ContactEmail:   "stage@ffcam.fr",
		Status:         "active",
		Dates: []time.Time{
			time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		},
		Documents: []course.Document{
			{Type: "inscription", Label: "Fiche d'inscription", URL: "https://www.ffcam.example/docs/fiche.pdf"},
		},
	}
}

func TestPreloadDimensionsInsertsMissingNames(t *testing.T) {
	t.Parallel()

	store, mock := newMockedStore(t)
	batch := []course.Course{
		{Discipline: "Ski", Location: "Chamonix", Lodging: "Refuge"},
		{Discipline: "Alpinisme", Location: "Chamonix", Lodging: "Refuge"},
	}

	// Disciplines: one of two known, the other bulk-inserted then reloaded.
	mock.ExpectQuery("SELECT id, name FROM disciplines").
		WithArgs([]string{"Ski", "Alpinisme"}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "Ski"))
	mock.ExpectExec("INSERT INTO disciplines").
		WithArgs("Alpinisme").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT id, name FROM disciplines").
		WithArgs([]string{"Ski", "Alpinisme"}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), "Ski").
			AddRow(int64(2), "Alpinisme"))

	mock.ExpectQuery("SELECT id, name FROM locations").
		WithArgs([]string{"Chamonix"}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name"}).AddRow(int64(10), "Chamonix"))
	mock.ExpectQuery("SELECT id, name FROM lodgings").
		WithArgs([]string{"Refuge"}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name"}).AddRow(int64(20), "Refuge"))

	require.NoError(t, store.PreloadDimensions(context.Background(), batch))
	require.NoError(t, mock.ExpectationsWereMet())

	id, err := store.dimensionID(tableDisciplines, "Alpinisme")
	require.NoError(t, err)
	require.Equal(t, int64(2), *id)
}

func TestUpsertChunkCommitsCoursesAndDependents(t *testing.T) {
	t.Parallel()

	store, mock := newMockedStore(t)
	store.dims = dimCache{
		disciplines: map[string]int64{"Ski de randonnée": 1},
		locations:   map[string]int64{"Chamonix": 10},
		lodgings:    map[string]int64{"Refuge": 20},
	}

	now := time.Date(2024, 1, 5, 7, 0, 0, 0, time.UTC)
	rec := sampleCourse()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO courses").
		WithArgs(
			rec.Reference, rec.Title, int64Ptr(1), int64Ptr(10), int64Ptr(20),
			rec.Capacity, rec.SeatsRemaining, rec.Price, rec.Organizer,
			rec.Responsible, strPtr("stage@ffcam.fr"), rec.Status, now, now,
		).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectExec("DELETE FROM course_dates").
		WithArgs([]int64{7}).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec("DELETE FROM course_documents").
		WithArgs([]int64{7}).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("INSERT INTO course_dates").
		WithArgs(int64(7), 0, rec.Dates[0], int64(7), 1, rec.Dates[1]).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectExec("INSERT INTO course_documents").
		WithArgs(int64(7), 0, "inscription", "Fiche d'inscription", rec.Documents[0].URL).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.UpsertChunk(context.Background(), []course.Course{rec}, now))
	require.NoError(t, mock.ExpectationsWereMet())
}

// first_seen_at is written on insert but deliberately absent from the
// conflict-update column list, so a second sync can never change it while
// last_seen_at keeps advancing.
func TestUpsertQueryPreservesFirstSeenAt(t *testing.T) {
	t.Parallel()

	_, after, found := strings.Cut(upsertCourseQuery, "DO UPDATE SET")
	require.True(t, found)
	require.NotContains(t, after, "first_seen_at")
	require.Contains(t, after, "last_seen_at = EXCLUDED.last_seen_at")
}

func TestUpsertChunkRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	store, mock := newMockedStore(t)
	store.dims = dimCache{
		disciplines: map[string]int64{"Ski de randonnée": 1},
		locations:   map[string]int64{"Chamonix": 10},
		lodgings:    map[string]int64{"Refuge": 20},
	}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO courses").
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	err := store.UpsertChunk(context.Background(), []course.Course{sampleCourse()}, time.Now().UTC())
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertChunkFailsOnUnknownDimension(t *testing.T) {
	t.Parallel()

	store, mock := newMockedStore(t)
	store.dims = dimCache{} // nothing preloaded

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := store.UpsertChunk(context.Background(), []course.Course{sampleCourse()}, time.Now().UTC())
	require.Error(t, err)
	require.Contains(t, err.Error(), "not preloaded")
}

func TestGetByReferenceNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockedStore(t)
	mock.ExpectQuery("SELECT c.id, c.reference").
		WithArgs("24-SKI-9999").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetByReference(context.Background(), "24-SKI-9999")
	require.ErrorIs(t, err, course.ErrNotFound)
}

func TestGetByReferenceReconstitutesDependents(t *testing.T) {
	t.Parallel()

	store, mock := newMockedStore(t)
	first := time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC)
	last := time.Date(2024, 1, 5, 7, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT c.id, c.reference").
		WithArgs("24-SKI-0042").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "reference", "title", "discipline", "location", "lodging",
			"capacity", "seats_remaining", "price", "organizer", "responsible",
			"contact_email", "status", "first_seen_at", "last_seen_at",
		}).AddRow(
			int64(7), "24-SKI-0042", "Initiation ski de randonnée",
			"Ski de randonnée", "Chamonix", "Refuge",
			12, seatsPtr(4), 250, "FFCAM", "Jean Dupont",
			"stage@ffcam.fr", "active", first, last,
		))
	mock.ExpectQuery("SELECT course_id, session_date FROM course_dates").
		WithArgs([]int64{7}).
		WillReturnRows(pgxmock.NewRows([]string{"course_id", "session_date"}).
			AddRow(int64(7), time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)).
			AddRow(int64(7), time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC)))
	mock.ExpectQuery("SELECT course_id, doc_type, label, url FROM course_documents").
		WithArgs([]int64{7}).
		WillReturnRows(pgxmock.NewRows([]string{"course_id", "doc_type", "label", "url"}).
			AddRow(int64(7), "inscription", "Fiche", "https://www.ffcam.example/docs/fiche.pdf"))

	rec, err := store.GetByReference(context.Background(), "24-SKI-0042")
	require.NoError(t, err)
	require.Equal(t, first, rec.FirstSeenAt)
	require.Equal(t, last, rec.LastSeenAt)
	require.Len(t, rec.Dates, 2)
	require.Len(t, rec.Documents, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLastSeenAtEmptyTable(t *testing.T) {
	t.Parallel()

	store, mock := newMockedStore(t)
	mock.ExpectQuery("SELECT MAX").
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow(nil))

	got, err := store.LastSeenAt(context.Background())
	require.NoError(t, err)
	require.True(t, got.IsZero())
}

func int64Ptr(n int64) *int64 { return &n }
func strPtr(s string) *string { return &s }
