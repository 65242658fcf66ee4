package slot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careline/teleconsult/internal/audit"
)

type changeLog struct {
	mu      sync.Mutex
	changes []audit.Change
}

func (c *changeLog) Observe(ch audit.Change) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changes = append(c.changes, ch)
}

func newTestLedger() (*Ledger, *MemoryRepository) {
	repo := NewMemoryRepository()
	return NewLedger(repo, zerolog.Nop()), repo
}

func day(t *testing.T, hour int) time.Time {
	t.Helper()
	return time.Date(2026, time.March, 2, hour, 0, 0, 0, time.UTC)
}

func TestBulkUpsertReplacesFreeSlots(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx := context.Background()
	owner := uuid.New()
	obs := &changeLog{}

	first, err := ledger.BulkUpsert(ctx, obs, owner, day(t, 0), []Window{
		{StartAt: day(t, 9), EndAt: day(t, 10)},
		{StartAt: day(t, 10), EndAt: day(t, 11)},
	})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Len(t, obs.changes, 2)

	// A second upsert for the same day drops the old free windows.
	second, err := ledger.BulkUpsert(ctx, obs, owner, day(t, 0), []Window{
		{StartAt: day(t, 14), EndAt: day(t, 15)},
	})
	require.NoError(t, err)
	require.Len(t, second, 1)

	var free []Slot
	for s, err := range ledger.FreeSlots(ctx, &owner, day(t, 0), day(t, 23)) {
		require.NoError(t, err)
		free = append(free, *s)
	}
	require.Len(t, free, 1)
	assert.True(t, free[0].StartAt.Equal(day(t, 14)))
}

func TestBulkUpsertRejectsOverlapWithBooked(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx := context.Background()
	owner := uuid.New()

	created, err := ledger.BulkUpsert(ctx, nil, owner, day(t, 0), []Window{
		{StartAt: day(t, 9), EndAt: day(t, 10)},
	})
	require.NoError(t, err)

	_, err = ledger.Claim(ctx, nil, created[0].ID, uuid.New())
	require.NoError(t, err)

	// Overlapping the booked 9-10 window fails the whole upsert.
	_, err = ledger.BulkUpsert(ctx, nil, owner, day(t, 0), []Window{
		{StartAt: day(t, 8), EndAt: day(t, 12)},
	})
	assert.ErrorIs(t, err, ErrSlotConflict)

	// The booked slot itself is preserved untouched.
	got, err := ledger.Get(ctx, created[0].ID)
	require.NoError(t, err)
	assert.False(t, got.Free())
}

func TestBulkUpsertRejectsOverlappingWindows(t *testing.T) {
	ledger, _ := newTestLedger()

	_, err := ledger.BulkUpsert(context.Background(), nil, uuid.New(), day(t, 0), []Window{
		{StartAt: day(t, 9), EndAt: day(t, 11)},
		{StartAt: day(t, 10), EndAt: day(t, 12)},
	})
	assert.ErrorIs(t, err, ErrSlotConflict)
}

func TestBulkUpsertRejectsInvalidWindow(t *testing.T) {
	ledger, _ := newTestLedger()

	_, err := ledger.BulkUpsert(context.Background(), nil, uuid.New(), day(t, 0), []Window{
		{StartAt: day(t, 10), EndAt: day(t, 9)},
	})
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestBulkUpsertRejectsWindowOutsideDay(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx := context.Background()
	owner := uuid.New()
	nextDay := day(t, 0).AddDate(0, 0, 1)

	// The owner already has a free 09:00-09:30 window tomorrow.
	_, err := ledger.BulkUpsert(ctx, nil, owner, nextDay, []Window{
		{StartAt: nextDay.Add(9 * time.Hour), EndAt: nextDay.Add(9*time.Hour + 30*time.Minute)},
	})
	require.NoError(t, err)

	// An upsert for today whose window lands tomorrow would dodge the
	// day-bounded replace and overlap that slot.
	_, err = ledger.BulkUpsert(ctx, nil, owner, day(t, 0), []Window{
		{StartAt: nextDay.Add(9*time.Hour + 15*time.Minute), EndAt: nextDay.Add(9*time.Hour + 45*time.Minute)},
	})
	assert.ErrorIs(t, err, ErrInvalidWindow)

	// A window crossing midnight is rejected for the same reason.
	_, err = ledger.BulkUpsert(ctx, nil, owner, day(t, 0), []Window{
		{StartAt: day(t, 23).Add(30 * time.Minute), EndAt: nextDay.Add(30 * time.Minute)},
	})
	assert.ErrorIs(t, err, ErrInvalidWindow)

	// Tomorrow's calendar is untouched.
	var free []Slot
	for s, err := range ledger.FreeSlots(ctx, &owner, day(t, 0), nextDay.AddDate(0, 0, 1)) {
		require.NoError(t, err)
		free = append(free, *s)
	}
	require.Len(t, free, 1)
	assert.True(t, free[0].StartAt.Equal(nextDay.Add(9*time.Hour)))
}

func TestClaimBooksSlotOnce(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx := context.Background()
	owner := uuid.New()
	obs := &changeLog{}

	created, err := ledger.BulkUpsert(ctx, nil, owner, day(t, 0), []Window{
		{StartAt: day(t, 9), EndAt: day(t, 10)},
	})
	require.NoError(t, err)

	consultationID := uuid.New()
	claimed, err := ledger.Claim(ctx, obs, created[0].ID, consultationID)
	require.NoError(t, err)
	require.NotNil(t, claimed.ConsultationID)
	assert.Equal(t, consultationID, *claimed.ConsultationID)

	require.Len(t, obs.changes, 1)
	ch := obs.changes[0]
	assert.Equal(t, EntityType, ch.EntityType)
	assert.Equal(t, audit.EventUpdate, ch.Event)
	assert.Equal(t, consultationID.String(), audit.Diff(ch.Before, ch.After)["consultation_id"])

	_, err = ledger.Claim(ctx, obs, created[0].ID, uuid.New())
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestClaimRaceHasOneWinner(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx := context.Background()

	created, err := ledger.BulkUpsert(ctx, nil, uuid.New(), day(t, 0), []Window{
		{StartAt: day(t, 9), EndAt: day(t, 10)},
	})
	require.NoError(t, err)
	slotID := created[0].ID

	const contenders = 16
	errs := make([]error, contenders)

	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ledger.Claim(ctx, nil, slotID, uuid.New())
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrSlotTaken)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestClaimUnknownSlot(t *testing.T) {
	ledger, _ := newTestLedger()

	_, err := ledger.Claim(context.Background(), nil, uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrSlotNotFound)
}

func TestFreeSlotsOrderedAndRestartable(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx := context.Background()
	owner := uuid.New()

	_, err := ledger.BulkUpsert(ctx, nil, owner, day(t, 0), []Window{
		{StartAt: day(t, 15), EndAt: day(t, 16)},
		{StartAt: day(t, 9), EndAt: day(t, 10)},
		{StartAt: day(t, 11), EndAt: day(t, 12)},
	})
	require.NoError(t, err)

	seq := ledger.FreeSlots(ctx, &owner, day(t, 0), day(t, 23))

	collect := func() []time.Time {
		var starts []time.Time
		for s, err := range seq {
			require.NoError(t, err)
			starts = append(starts, s.StartAt)
		}
		return starts
	}

	first := collect()
	require.Len(t, first, 3)
	assert.True(t, first[0].Equal(day(t, 9)))
	assert.True(t, first[1].Equal(day(t, 11)))
	assert.True(t, first[2].Equal(day(t, 15)))

	// Ranging again restarts from the top.
	assert.Equal(t, first, collect())

	// Early break is allowed.
	n := 0
	for _, err := range seq {
		require.NoError(t, err)
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestClaimedSlotLeavesFreeList(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx := context.Background()
	owner := uuid.New()

	created, err := ledger.BulkUpsert(ctx, nil, owner, day(t, 0), []Window{
		{StartAt: day(t, 9), EndAt: day(t, 10)},
		{StartAt: day(t, 11), EndAt: day(t, 12)},
	})
	require.NoError(t, err)

	_, err = ledger.Claim(ctx, nil, created[0].ID, uuid.New())
	require.NoError(t, err)

	for s, err := range ledger.FreeSlots(ctx, &owner, day(t, 0), day(t, 23)) {
		require.NoError(t, err)
		assert.NotEqual(t, created[0].ID, s.ID)
	}
}

func TestNearestFreeTieBreaksOnLowestID(t *testing.T) {
	repo := NewMemoryRepository()
	ledger := NewLedger(repo, zerolog.Nop())
	ctx := context.Background()
	owner := uuid.New()

	start := day(t, 9)
	low := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	high := uuid.MustParse("ffffffff-ffff-ffff-ffff-ffffffffffff")

	// Seed directly so both slots share a start time with known IDs.
	for _, id := range []uuid.UUID{high, low} {
		repo.slots[id] = &Slot{
			ID:          id,
			OwnerUserID: owner,
			StartAt:     start,
			EndAt:       start.Add(30 * time.Minute),
		}
	}

	got, err := ledger.NearestFree(ctx, &owner, day(t, 0))
	require.NoError(t, err)
	assert.Equal(t, low, got.ID)
}

func TestNearestFreeRespectsOwnerFilter(t *testing.T) {
	ledger, _ := newTestLedger()
	ctx := context.Background()
	mine := uuid.New()
	theirs := uuid.New()

	_, err := ledger.BulkUpsert(ctx, nil, theirs, day(t, 0), []Window{
		{StartAt: day(t, 8), EndAt: day(t, 9)},
	})
	require.NoError(t, err)
	_, err = ledger.BulkUpsert(ctx, nil, mine, day(t, 0), []Window{
		{StartAt: day(t, 10), EndAt: day(t, 11)},
	})
	require.NoError(t, err)

	got, err := ledger.NearestFree(ctx, &mine, day(t, 0))
	require.NoError(t, err)
	assert.Equal(t, mine, got.OwnerUserID)

	any, err := ledger.NearestFree(ctx, nil, day(t, 0))
	require.NoError(t, err)
	assert.Equal(t, theirs, any.OwnerUserID)

	_, err = ledger.NearestFree(ctx, &mine, day(t, 12))
	assert.ErrorIs(t, err, ErrSlotNotFound)
}
