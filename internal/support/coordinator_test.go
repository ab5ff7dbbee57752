package support_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"civic-api/internal/apperr"
	"civic-api/internal/issue"
	"civic-api/internal/issue/issuetest"
	"civic-api/internal/logger"
	"civic-api/internal/notify"
	"civic-api/internal/notify/mocks"
	"civic-api/internal/support"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func setup(t *testing.T) (*support.Coordinator, *mocks.MockNotifier, *issue.MemoryRepository, *issue.Issue) {
	t.Helper()
	ctrl := gomock.NewController(t)
	n := mocks.NewMockNotifier(ctrl)
	repo := issue.NewMemoryRepository()
	it, err := repo.Create(context.Background(), issuetest.ValidInput())
	require.NoError(t, err)
	c := support.New(repo, n, logger.New(io.Discard, "error", "text"))
	return c, n, repo, it
}

func TestSupportThenRevoke(t *testing.T) {
	c, n, repo, it := setup(t)
	ctx := context.Background()
	n.EXPECT().Send(gomock.Any(), gomock.Any(), notify.KindSupport).
		DoAndReturn(func(_ context.Context, got issue.Issue, _ notify.Kind) notify.Result {
			assert.Equal(t, int64(1), got.UpvoteCount)
			return notify.Delivered
		}).Times(1)

	updated, err := c.Support(ctx, it.ID, "device-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.UpvoteCount)
	c.Wait()

	ok, err := c.IsSupported(ctx, it.ID, "device-1")
	require.NoError(t, err)
	assert.True(t, ok)

	updated, err = c.Revoke(ctx, it.ID, "device-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), updated.UpvoteCount)

	ok, err = c.IsSupported(ctx, it.ID, "device-1")
	require.NoError(t, err)
	assert.False(t, ok)

	n2, err := repo.CountSupports(ctx, it.ID)
	require.NoError(t, err)
	assert.Zero(t, n2)
}

func TestSupportTwiceConflicts(t *testing.T) {
	c, n, repo, it := setup(t)
	ctx := context.Background()
	n.EXPECT().Send(gomock.Any(), gomock.Any(), notify.KindSupport).Return(notify.Delivered).Times(1)

	_, err := c.Support(ctx, it.ID, "device-1")
	require.NoError(t, err)
	_, err = c.Support(ctx, it.ID, "device-1")
	assert.ErrorIs(t, err, apperr.ErrConflict)
	c.Wait()

	got, err := repo.GetByID(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.UpvoteCount)
}

func TestNotificationFailureDoesNotFailSupport(t *testing.T) {
	c, n, _, it := setup(t)
	n.EXPECT().Send(gomock.Any(), gomock.Any(), notify.KindSupport).Return(notify.Failed(errors.New("smtp timeout")))

	updated, err := c.Support(context.Background(), it.ID, "device-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.UpvoteCount)
	c.Wait()
}

func TestNotifierPanicIsContained(t *testing.T) {
	c, n, _, it := setup(t)
	n.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, issue.Issue, notify.Kind) notify.Result { panic("template exploded") })

	_, err := c.Support(context.Background(), it.ID, "device-1")
	require.NoError(t, err)
	c.Wait()
}

func TestMissingIssueAndSupport(t *testing.T) {
	c, _, _, it := setup(t)
	ctx := context.Background()

	_, err := c.Support(ctx, it.ID+99, "device-1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = c.Revoke(ctx, it.ID+99, "device-1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = c.Revoke(ctx, it.ID, "never-supported")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeviceIDValidated(t *testing.T) {
	c, _, _, it := setup(t)
	ctx := context.Background()
	_, err := c.Support(ctx, it.ID, "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = c.IsSupported(ctx, it.ID, " ")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestConcurrentSupportFromOneDevice(t *testing.T) {
	c, n, repo, it := setup(t)
	ctx := context.Background()
	n.EXPECT().Send(gomock.Any(), gomock.Any(), notify.KindSupport).Return(notify.Delivered).Times(1)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Support(ctx, it.ID, "racer"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	c.Wait()
	assert.Equal(t, 1, wins)
	got, err := repo.GetByID(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.UpvoteCount)
}

func TestNilNotifier(t *testing.T) {
	repo := issue.NewMemoryRepository()
	it, err := repo.Create(context.Background(), issuetest.ValidInput())
	require.NoError(t, err)
	c := support.New(repo, nil, logger.New(io.Discard, "error", "text"))
	_, err = c.Support(context.Background(), it.ID, "device-1")
	require.NoError(t, err)
	c.Wait()
}
