//go:build integration

package pg

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"remindr/internal/domain"
	"remindr/internal/ledger"
)

func setupTestDB(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}
	ctx := context.Background()

	schema := fmt.Sprintf("test_%d", time.Now().UnixNano())
	admin, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	_, err = admin.Exec(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()

	db, err := NewPool(ctx, u.String(), PoolOptions{MaxConns: 20})
	require.NoError(t, err)

	sql, err := os.ReadFile(filepath.Join("..", "..", "..", "migrations", "001_init.sql"))
	require.NoError(t, err)
	_, err = db.Exec(ctx, string(sql))
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
		admin.Close()
	})
	return New(db)
}

var t0 = time.Date(2024, time.January, 3, 9, 0, 0, 0, time.UTC)

func seedReminder(t *testing.T, s *Store, id string) domain.Reminder {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.UpsertRecipient(ctx, domain.Recipient{ID: "p1", AccountID: "acct", Name: "Ann", Address: "+15550001111", Confirmed: true, UpdatedAt: t0}))
	r := domain.Reminder{
		ID: id, AccountID: "acct", RecipientID: "p1", Title: "meds",
		Pattern: domain.Pattern{Kind: domain.PatternCustom, Days: domain.NewWeekdaySet(time.Monday, time.Wednesday)},
		At:      domain.TimeOfDay{Hour: 9}, NextOccurrence: t0, Status: domain.ReminderActive,
		Requirement: domain.RequireText, CreatedAt: t0, UpdatedAt: t0,
	}
	require.NoError(t, s.InsertReminder(ctx, r))
	return r
}

func TestReminderRoundTripAndDue(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	want := seedReminder(t, s, "r1")

	got, ok, err := s.GetReminder(ctx, "r1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, want.Pattern.Days, got.Pattern.Days)
	require.True(t, want.NextOccurrence.Equal(got.NextOccurrence))

	due, err := s.DueReminders(ctx, domain.DueQuery{To: t0.Add(time.Minute), Limit: 10})
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, "+15550001111", due[0].RecipientAddress)
	require.True(t, due[0].RecipientConfirmed)

	due, err = s.DueReminders(ctx, domain.DueQuery{To: t0.Add(time.Minute), Limit: 10, SkipUnconfirmed: true})
	require.NoError(t, err)
	require.Len(t, due, 1)

	ok, err = s.AdvanceReminder(ctx, "r1", t0, t0.Add(48*time.Hour), t0)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.AdvanceReminder(ctx, "r1", t0, t0.Add(96*time.Hour), t0)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestConcurrentClaimsInsertOnce(t *testing.T) {
	s := setupTestDB(t)
	seedReminder(t, s, "r1")
	l := ledger.New(s)
	ctx := context.Background()

	var mu sync.Mutex
	won := 0
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Claim(ctx, "r1", t0, false, t0); err == nil {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, won)

	key := domain.DispatchKey{ReminderID: "r1", OccurrenceAt: t0}
	require.NoError(t, l.MarkSent(ctx, key, "SM1", t0))
	require.NoError(t, l.MarkFailed(ctx, key, "late", t0))
	rec, ok, err := l.Lookup(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.DispatchSent, rec.Status)
}

func TestQuotaNeverExceedsLimit(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, s.OpenPeriod(ctx, domain.QuotaCounter{AccountID: "acct", PeriodStart: t0, PeriodEnd: t0.Add(time.Hour), Limit: 5}))

	var mu sync.Mutex
	permitted := 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _, err := s.Consume(ctx, "acct", 1, t0.Add(time.Minute))
			if err != nil {
				t.Error(err)
				return
			}
			if ok {
				mu.Lock()
				permitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 5, permitted)

	rem, err := s.Remaining(ctx, "acct", t0.Add(time.Minute))
	require.NoError(t, err)
	require.Zero(t, rem)

	ok, _, err := s.Consume(ctx, "acct", 1, t0.Add(2*time.Hour))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPendingContextsAndAnswer(t *testing.T) {
	s := setupTestDB(t)
	seedReminder(t, s, "r1")
	l := ledger.New(s)
	ctx := context.Background()

	key, err := l.Claim(ctx, "r1", t0, false, t0)
	require.NoError(t, err)
	require.NoError(t, l.MarkSent(ctx, key, "SM1", t0))

	pending, err := s.PendingContexts(ctx, "+15550001111", t0.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, domain.RequireText, pending[0].Requirement)

	require.NoError(t, s.MarkAnswered(ctx, "r1", t0.Add(time.Minute)))
	pending, err = s.PendingContexts(ctx, "+15550001111", t0.Add(-time.Hour))
	require.NoError(t, err)
	require.Empty(t, pending)

	flagged, err := s.FlagUnreachableByCarrierID(ctx, "SM1", "invalid_address", t0)
	require.NoError(t, err)
	require.True(t, flagged)
	p, _, err := s.GetRecipient(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, "invalid_address", p.Unreachable)
}
