package repository

import (
	"context"
	"testing"
	"time"

	"helpdesk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.Ticket{}, &models.TicketStatusHistory{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func ptr(t time.Time) *time.Time { return &t }

func seedTicket(t *testing.T, store *GormTicketStore, mutate func(*models.Ticket)) *models.Ticket {
	t.Helper()
	tk := &models.Ticket{
		Title:       "VPN drops",
		Category:    models.CategoryNetwork,
		RequesterID: 100,
		Status:      models.StatusOpen,
		Priority:    models.PriorityMedium,
		SLA:         models.TicketSLA{Hours: 8, UseBusinessHours: true, Status: models.SLANotStarted},
	}
	if mutate != nil {
		mutate(tk)
	}
	require.NoError(t, store.Create(context.Background(), tk))
	return tk
}

func TestGormTicketStore_CreateAndLoad(t *testing.T) {
	store := NewGormTicketStore(newTestDB(t))
	ctx := context.Background()

	tk := seedTicket(t, store, func(tk *models.Ticket) {
		tk.StatusHistory = []models.TicketStatusHistory{{Status: models.StatusOpen, ChangedBy: 100, ChangedAt: time.Now()}}
	})
	require.NotZero(t, tk.ID)

	got, err := store.LoadByID(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "VPN drops", got.Title)
	assert.Equal(t, 8.0, got.SLA.Hours)
	assert.Equal(t, models.SLANotStarted, got.SLA.Status)
	require.Len(t, got.StatusHistory, 1)
	assert.Equal(t, uint(100), got.StatusHistory[0].ChangedBy)

	_, err = store.LoadByID(ctx, 9999)
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestGormTicketStore_SaveAppendsHistoryOnce(t *testing.T) {
	db := newTestDB(t)
	store := NewGormTicketStore(db)
	ctx := context.Background()
	tk := seedTicket(t, store, nil)

	now := time.Date(2024, 1, 8, 9, 30, 0, 0, time.UTC)
	tk.Status = models.StatusInProgress
	tk.FirstResponseAt = ptr(now)
	tk.StatusHistory = append(tk.StatusHistory, models.TicketStatusHistory{
		FromStatus: models.StatusOpen, Status: models.StatusInProgress, ChangedBy: 7, ChangedAt: now,
	})
	require.NoError(t, store.Save(ctx, tk))
	require.NoError(t, store.Save(ctx, tk))

	var count int64
	require.NoError(t, db.Model(&models.TicketStatusHistory{}).Where("ticket_id = ?", tk.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	got, err := store.LoadByID(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, got.Status)
	require.NotNil(t, got.FirstResponseAt)
	assert.True(t, now.Equal(*got.FirstResponseAt))
}

func TestGormTicketStore_SaveSLA_Conditional(t *testing.T) {
	store := NewGormTicketStore(newTestDB(t))
	ctx := context.Background()
	start := time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)
	tk := seedTicket(t, store, func(tk *models.Ticket) {
		tk.Status = models.StatusInProgress
		tk.SLA.StartTime = ptr(start)
		tk.SLA.Deadline = ptr(start.Add(8 * time.Hour))
		tk.SLA.Status = models.SLAOnTime
		tk.SLA.RemainingHours = 8
	})

	paused := *tk
	paused.SLA.IsPaused = true
	paused.SLA.Status = models.SLAPaused
	paused.SLA.PausedAt = ptr(start.Add(2 * time.Hour))
	paused.SLA.PauseReason = "waiting for user"
	ok, err := store.SaveSLA(ctx, &paused, false)
	require.NoError(t, err)
	require.True(t, ok)

	// a stale writer that still believes the clock is running is rejected
	stale := *tk
	stale.SLA.Status = models.SLABreached
	ok, err = store.SaveSLA(ctx, &stale, false)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := store.LoadByID(ctx, tk.ID)
	require.NoError(t, err)
	assert.True(t, got.SLA.IsPaused)
	assert.Equal(t, models.SLAPaused, got.SLA.Status)
	assert.Equal(t, "waiting for user", got.SLA.PauseReason)

	got.SLA.IsPaused = false
	got.SLA.PausedAt = nil
	got.SLA.PauseReason = ""
	got.SLA.Status = models.SLAOnTime
	got.SLA.PauseHistory = append(got.SLA.PauseHistory, models.SLAPauseRecord{
		PausedAt: start.Add(2 * time.Hour), ResumedAt: start.Add(3 * time.Hour), DurationHours: 1, Reason: "waiting for user",
	})
	ok, err = store.SaveSLA(ctx, got, true)
	require.NoError(t, err)
	require.True(t, ok)

	reloaded, err := store.LoadByID(ctx, tk.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.SLA.IsPaused)
	assert.Nil(t, reloaded.SLA.PausedAt)
	require.Len(t, reloaded.SLA.PauseHistory, 1)
	assert.Equal(t, 1.0, reloaded.SLA.PauseHistory[0].DurationHours)
}

func TestGormTicketStore_SavePriorityKeepsSLA(t *testing.T) {
	store := NewGormTicketStore(newTestDB(t))
	ctx := context.Background()
	start := time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)
	tk := seedTicket(t, store, func(tk *models.Ticket) {
		tk.Status = models.StatusInProgress
		tk.SLA.StartTime = ptr(start)
		tk.SLA.Deadline = ptr(start.Add(8 * time.Hour))
		tk.SLA.Status = models.SLAOnTime
	})

	// paused by someone else after tk was read
	paused := *tk
	paused.SLA.IsPaused = true
	paused.SLA.Status = models.SLAPaused
	paused.SLA.PausedAt = ptr(start.Add(time.Hour))
	ok, err := store.SaveSLA(ctx, &paused, false)
	require.NoError(t, err)
	require.True(t, ok)

	tk.Priority = models.PriorityHigh
	tk.PriorityAudits = append(tk.PriorityAudits, models.PriorityAudit{
		PreviousPriority: models.PriorityMedium, NewPriority: models.PriorityHigh, Score: 66, ChangedAt: start,
	})
	require.NoError(t, store.SavePriority(ctx, tk))

	got, err := store.LoadByID(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PriorityHigh, got.Priority)
	require.Len(t, got.PriorityAudits, 1)
	assert.True(t, got.SLA.IsPaused)
	assert.Equal(t, models.SLAPaused, got.SLA.Status)
	require.NotNil(t, got.SLA.PausedAt)
}

func TestGormTicketStore_FindActiveSLA(t *testing.T) {
	store := NewGormTicketStore(newTestDB(t))
	ctx := context.Background()
	start := time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)
	running := func(tk *models.Ticket) {
		tk.Status = models.StatusInProgress
		tk.SLA.StartTime = ptr(start)
		tk.SLA.Deadline = ptr(start.Add(8 * time.Hour))
		tk.SLA.Status = models.SLAOnTime
	}

	active := seedTicket(t, store, running)
	seedTicket(t, store, nil) // not started
	seedTicket(t, store, func(tk *models.Ticket) {
		running(tk)
		tk.SLA.IsPaused = true
		tk.SLA.Status = models.SLAPaused
	})
	seedTicket(t, store, func(tk *models.Ticket) {
		running(tk)
		tk.Status = models.StatusResolved
	})
	reopened := seedTicket(t, store, func(tk *models.Ticket) {
		running(tk)
		tk.Status = models.StatusOpen
	})

	got, err := store.FindActiveSLA(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, active.ID, got[0].ID)
	assert.Equal(t, reopened.ID, got[1].ID)

	open, err := store.FindOpen(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 5)
}

func TestGormTicketStore_RequesterHistory(t *testing.T) {
	db := newTestDB(t)
	store := NewGormTicketStore(db)
	ctx := context.Background()

	first := seedTicket(t, store, nil)
	h, err := store.RequesterHistory(ctx, 100, first.ID, time.Now().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), h.OpenRecent)
	assert.Equal(t, int64(1), h.TotalTickets)

	seedTicket(t, store, nil)
	seedTicket(t, store, func(tk *models.Ticket) { tk.Status = models.StatusInProgress })
	seedTicket(t, store, func(tk *models.Ticket) { tk.Status = models.StatusClosed })
	old := seedTicket(t, store, nil)
	require.NoError(t, db.Model(&models.Ticket{}).Where("id = ?", old.ID).
		UpdateColumn("created_at", time.Now().Add(-60*24*time.Hour)).Error)
	seedTicket(t, store, func(tk *models.Ticket) { tk.RequesterID = 200 })

	h, err = store.RequesterHistory(ctx, 100, first.ID, time.Now().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), h.OpenRecent)
	assert.Equal(t, int64(5), h.TotalTickets)
}
