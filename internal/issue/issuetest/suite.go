// Package issuetest is the behavioural contract shared by every issue.Repository driver.
package issuetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"civic-api/internal/apperr"
	"civic-api/internal/issue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty repository.
type Factory func(t *testing.T) issue.Repository

func ptr[T any](v T) *T { return &v }

// ValidInput is a Pretoria Central pothole.
func ValidInput() issue.Input {
	return issue.Input{
		Type:      "pothole",
		Latitude:  ptr(-25.7479),
		Longitude: ptr(28.2293),
		Address:   "Church Square, Pretoria",
		Notes:     ptr("deep, left lane"),
	}
}

func Run(t *testing.T, newRepo Factory) {
	t.Run("CreateAssignsDefaults", func(t *testing.T) { testCreate(t, newRepo(t)) })
	t.Run("CreateValidates", func(t *testing.T) { testCreateValidates(t, newRepo(t)) })
	t.Run("Lookups", func(t *testing.T) { testLookups(t, newRepo(t)) })
	t.Run("ListMostRecentFirst", func(t *testing.T) { testList(t, newRepo(t)) })
	t.Run("Counters", func(t *testing.T) { testCounters(t, newRepo(t)) })
	t.Run("SupportInvariant", func(t *testing.T) { testSupport(t, newRepo(t)) })
	t.Run("ConcurrentSameDevice", func(t *testing.T) { testConcurrentSameDevice(t, newRepo(t)) })
	t.Run("ConcurrentManyDevices", func(t *testing.T) { testConcurrentManyDevices(t, newRepo(t)) })
	t.Run("UpdateStatus", func(t *testing.T) { testUpdateStatus(t, newRepo(t)) })
	t.Run("Reminders", func(t *testing.T) { testReminders(t, newRepo(t)) })
}

func testCreate(t *testing.T, repo issue.Repository) {
	ctx := context.Background()
	before := time.Now().Add(-time.Minute)
	a, err := repo.Create(ctx, ValidInput())
	require.NoError(t, err)
	b, err := repo.Create(ctx, ValidInput())
	require.NoError(t, err)

	assert.Greater(t, b.ID, a.ID)
	assert.NotEmpty(t, a.ReportID)
	assert.NotEqual(t, a.ReportID, b.ReportID)
	assert.Equal(t, issue.StatusReported, a.Status)
	assert.Equal(t, int64(0), a.UpvoteCount)
	assert.True(t, a.CreatedAt.After(before))
	assert.Equal(t, "pothole", a.Type)
	assert.InDelta(t, -25.7479, a.Coordinate.Latitude, 1e-9)
	assert.InDelta(t, 28.2293, a.Coordinate.Longitude, 1e-9)
	require.NotNil(t, a.Notes)
	assert.Equal(t, "deep, left lane", *a.Notes)
	assert.Nil(t, a.PhotoURL)

	in := ValidInput()
	in.Status = ptr(issue.StatusInProgress)
	c, err := repo.Create(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, issue.StatusInProgress, c.Status)
}

func testCreateValidates(t *testing.T, repo issue.Repository) {
	ctx := context.Background()
	cases := map[string]func(*issue.Input){
		"missing type":      func(in *issue.Input) { in.Type = "" },
		"blank type":        func(in *issue.Input) { in.Type = "   " },
		"missing latitude":  func(in *issue.Input) { in.Latitude = nil },
		"missing longitude": func(in *issue.Input) { in.Longitude = nil },
		"latitude range":    func(in *issue.Input) { in.Latitude = ptr(91.0) },
		"longitude range":   func(in *issue.Input) { in.Longitude = ptr(-180.5) },
		"missing address":   func(in *issue.Input) { in.Address = "" },
		"unknown status":    func(in *issue.Input) { in.Status = ptr(issue.Status("closed")) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := ValidInput()
			mutate(&in)
			_, err := repo.Create(ctx, in)
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func testLookups(t *testing.T, repo issue.Repository) {
	ctx := context.Background()
	created, err := repo.Create(ctx, ValidInput())
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, created.ReportID, got.ReportID)

	got, err = repo.GetByReportID(ctx, created.ReportID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, created.ID, got.ID)

	missing, err := repo.GetByID(ctx, created.ID+1000)
	require.NoError(t, err)
	assert.Nil(t, missing)
	missing, err = repo.GetByReportID(ctx, "PR-NOPE")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func testList(t *testing.T, repo issue.Repository) {
	ctx := context.Background()
	var ids []int64
	for i := 0; i < 3; i++ {
		it, err := repo.Create(ctx, ValidInput())
		require.NoError(t, err)
		ids = append(ids, it.ID)
	}
	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{ids[2], ids[1], ids[0]}, []int64{all[0].ID, all[1].ID, all[2].ID})
}

func testCounters(t *testing.T, repo issue.Repository) {
	ctx := context.Background()
	it, err := repo.Create(ctx, ValidInput())
	require.NoError(t, err)

	up, err := repo.IncrementUpvoteCount(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), up.UpvoteCount)

	down, err := repo.DecrementUpvoteCount(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), down.UpvoteCount)

	down, err = repo.DecrementUpvoteCount(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), down.UpvoteCount, "decrement floors at zero")

	none, err := repo.IncrementUpvoteCount(ctx, it.ID+1000)
	require.NoError(t, err)
	assert.Nil(t, none)
	none, err = repo.DecrementUpvoteCount(ctx, it.ID+1000)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func assertInvariant(t *testing.T, repo issue.Repository, id int64, want int64) {
	t.Helper()
	ctx := context.Background()
	it, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, it)
	n, err := repo.CountSupports(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, want, it.UpvoteCount)
	assert.Equal(t, it.UpvoteCount, n, "upvote count mirrors support rows")
}

func testSupport(t *testing.T, repo issue.Repository) {
	ctx := context.Background()
	it, err := repo.Create(ctx, ValidInput())
	require.NoError(t, err)
	other, err := repo.Create(ctx, ValidInput())
	require.NoError(t, err)

	s, err := repo.FindSupport(ctx, it.ID, "dev-a")
	require.NoError(t, err)
	assert.Nil(t, s)

	updated, err := repo.AddSupport(ctx, it.ID, "dev-a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.UpvoteCount)

	s, err = repo.FindSupport(ctx, it.ID, "dev-a")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, it.ID, s.IssueID)
	assert.Equal(t, "dev-a", s.DeviceID)

	_, err = repo.AddSupport(ctx, it.ID, "dev-a")
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assertInvariant(t, repo, it.ID, 1)

	_, err = repo.AddSupport(ctx, it.ID, "dev-b")
	require.NoError(t, err)
	_, err = repo.AddSupport(ctx, other.ID, "dev-a")
	require.NoError(t, err)
	assertInvariant(t, repo, it.ID, 2)
	assertInvariant(t, repo, other.ID, 1)

	_, err = repo.AddSupport(ctx, it.ID+1000, "dev-a")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	updated, err = repo.RemoveSupport(ctx, it.ID, "dev-a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.UpvoteCount)
	_, err = repo.RemoveSupport(ctx, it.ID, "dev-a")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assertInvariant(t, repo, it.ID, 1)

	_, err = repo.AddSupport(ctx, it.ID, "dev-a")
	require.NoError(t, err)
	assertInvariant(t, repo, it.ID, 2)
}

func testConcurrentSameDevice(t *testing.T, repo issue.Repository) {
	ctx := context.Background()
	it, err := repo.Create(ctx, ValidInput())
	require.NoError(t, err)

	const n = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, conflicts := 0, 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.AddSupport(ctx, it.ID, "same-device")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case apperr.KindOf(err) == apperr.Conflict:
				conflicts++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, conflicts)
	assertInvariant(t, repo, it.ID, 1)
}

func testConcurrentManyDevices(t *testing.T, repo issue.Repository) {
	ctx := context.Background()
	it, err := repo.Create(ctx, ValidInput())
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.AddSupport(ctx, it.ID, fmt.Sprintf("device-%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assertInvariant(t, repo, it.ID, n)

	for i := 0; i < n; i += 2 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.RemoveSupport(ctx, it.ID, fmt.Sprintf("device-%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assertInvariant(t, repo, it.ID, n/2)
}

func testUpdateStatus(t *testing.T, repo issue.Repository) {
	ctx := context.Background()
	it, err := repo.Create(ctx, ValidInput())
	require.NoError(t, err)

	got, err := repo.UpdateStatus(ctx, it.ID, issue.StatusResolved)
	require.NoError(t, err)
	assert.Equal(t, issue.StatusResolved, got.Status)
	assert.Equal(t, it.ReportID, got.ReportID)
	assert.True(t, got.CreatedAt.Equal(it.CreatedAt))

	_, err = repo.UpdateStatus(ctx, it.ID, issue.Status("closed"))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	missing, err := repo.UpdateStatus(ctx, it.ID+1000, issue.StatusResolved)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func testReminders(t *testing.T, repo issue.Repository) {
	ctx := context.Background()
	open, err := repo.Create(ctx, ValidInput())
	require.NoError(t, err)
	done, err := repo.Create(ctx, ValidInput())
	require.NoError(t, err)
	_, err = repo.UpdateStatus(ctx, done.ID, issue.StatusResolved)
	require.NoError(t, err)

	future := time.Now().Add(time.Hour)
	got, err := repo.ListReminderCandidates(ctx, future, future, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, open.ID, got[0].ID)

	// nothing is old enough yet
	got, err = repo.ListReminderCandidates(ctx, time.Now().Add(-time.Hour), future, 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	sentAt := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, repo.MarkReminderSent(ctx, open.ID, sentAt))
	reloaded, err := repo.GetByID(ctx, open.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.LastReminderSentAt)
	assert.WithinDuration(t, sentAt, *reloaded.LastReminderSentAt, time.Millisecond)

	got, err = repo.ListReminderCandidates(ctx, future, sentAt.Add(-time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, got, "recently reminded issues are skipped")

	got, err = repo.ListReminderCandidates(ctx, future, sentAt.Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Len(t, got, 1, "stale reminders are due again")
}
