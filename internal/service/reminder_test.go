package service

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/require"

	"remindr/internal/domain"
	"remindr/internal/store/memory"
)

// Wednesday 2024-01-03 10:00 UTC.
var now = time.Date(2024, time.January, 3, 10, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*ReminderService, *memory.Store) {
	t.Helper()
	st := memory.New()
	svc := &ReminderService{Store: st, Now: func() time.Time { return now }}
	_, err := svc.UpsertRecipient(context.Background(), RecipientRequest{ID: "p1", AccountID: "acct", Name: "Ann", Address: "+1 555 000 1111"})
	require.NoError(t, err)
	return svc, st
}

func TestCreateComputesFirstOccurrence(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	r, err := svc.Create(ctx, CreateReminderRequest{
		AccountID: "acct", RecipientID: "p1", Title: "meds",
		Schedule: PatternRequest{Kind: "custom", At: "09:35", Days: []string{"mon", "wed"}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, r.ID)
	require.Equal(t, domain.ReminderActive, r.Status)
	require.Equal(t, domain.RequireNone, r.Requirement)
	// Wednesday 09:35 has passed, so the next one is Monday.
	require.Equal(t, time.Date(2024, time.January, 8, 9, 35, 0, 0, time.UTC), r.NextOccurrence)

	got, err := svc.Get(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, r.NextOccurrence, got.NextOccurrence)
}

func TestCreateInTimeZone(t *testing.T) {
	svc, _ := newService(t)
	r, err := svc.Create(context.Background(), CreateReminderRequest{
		AccountID: "acct", RecipientID: "p1", Title: "walk",
		Schedule: PatternRequest{Kind: "daily", At: "08:00", TimeZone: "America/New_York"},
	})
	require.NoError(t, err)
	// 10:00 UTC is 05:00 in New York.
	require.Equal(t, time.Date(2024, time.January, 3, 13, 0, 0, 0, time.UTC), r.NextOccurrence.UTC())
}

func TestCreateRejectsConfigErrors(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	cases := map[string]PatternRequest{
		"empty custom": {Kind: "custom", At: "09:00"},
		"bad time":     {Kind: "daily", At: "25:00"},
		"bad weekday":  {Kind: "weekly", At: "09:00", Weekday: "someday"},
		"unknown kind": {Kind: "hourly", At: "09:00"},
		"bad zone":     {Kind: "daily", At: "09:00", TimeZone: "Mars/Olympus"},
		"once in past": {Kind: "once", OnceAt: now.Add(-time.Minute)},
		"once now":     {Kind: "once", OnceAt: now},
	}
	for name, sched := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(ctx, CreateReminderRequest{AccountID: "acct", RecipientID: "p1", Title: "x", Schedule: sched})
			require.Error(t, err)
			require.True(t, domain.IsConfigError(err), "got %v", err)
		})
	}
}

func TestCreateRequiresKnownRecipient(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Create(context.Background(), CreateReminderRequest{
		AccountID: "other", RecipientID: "p1", Title: "x",
		Schedule: PatternRequest{Kind: "daily", At: "09:00"},
	})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateOnce(t *testing.T) {
	svc, _ := newService(t)
	at := now.Add(2 * time.Hour)
	r, err := svc.Create(context.Background(), CreateReminderRequest{
		AccountID: "acct", RecipientID: "p1", Title: "call",
		Schedule: PatternRequest{Kind: "once", OnceAt: at},
	})
	require.NoError(t, err)
	require.Equal(t, at, r.NextOccurrence)
	require.Equal(t, domain.TimeOfDay{Hour: 12}, r.At)
}

func TestPauseResumeArchive(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	r, err := svc.Create(ctx, CreateReminderRequest{
		AccountID: "acct", RecipientID: "p1", Title: "meds",
		Schedule: PatternRequest{Kind: "daily", At: "09:00"},
	})
	require.NoError(t, err)

	r, err = svc.Pause(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ReminderPaused, r.Status)

	_, err = svc.Pause(ctx, r.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	// Resuming three days later skips the paused occurrences.
	now = now.Add(72 * time.Hour)
	defer func() { now = now.Add(-72 * time.Hour) }()
	r, err = svc.Resume(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ReminderActive, r.Status)
	require.Equal(t, time.Date(2024, time.January, 7, 9, 0, 0, 0, time.UTC), r.NextOccurrence)

	r, err = svc.Archive(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ReminderArchived, r.Status)

	_, err = svc.Reschedule(ctx, r.ID, PatternRequest{Kind: "daily", At: "10:00"})
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestReschedule(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	r, err := svc.Create(ctx, CreateReminderRequest{
		AccountID: "acct", RecipientID: "p1", Title: "meds",
		Schedule: PatternRequest{Kind: "daily", At: "09:00"},
	})
	require.NoError(t, err)

	r, err = svc.Reschedule(ctx, r.ID, PatternRequest{Kind: "weekly", At: "18:30", Weekday: "friday"})
	require.NoError(t, err)
	require.Equal(t, domain.PatternWeekly, r.Pattern.Kind)
	require.Equal(t, time.Date(2024, time.January, 5, 18, 30, 0, 0, time.UTC), r.NextOccurrence)

	_, err = svc.Reschedule(ctx, "missing", PatternRequest{Kind: "daily", At: "10:00"})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpsertRecipientKeepsConsent(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	require.NoError(t, st.ConfirmRecipient(ctx, "+15550001111", now))

	p, err := svc.UpsertRecipient(ctx, RecipientRequest{ID: "p1", AccountID: "acct", Name: "Ann B", Address: "+15550001111"})
	require.NoError(t, err)
	require.True(t, p.Confirmed)
	require.Equal(t, "Ann B", p.Name)

	_, err = svc.UpsertRecipient(ctx, RecipientRequest{AccountID: "acct"})
	require.ErrorIs(t, err, domain.ErrMissingFields)
}
