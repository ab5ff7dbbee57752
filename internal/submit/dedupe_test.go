package submit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"civic-api/internal/issue"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fp(v float64) *float64 { return &v }

func TestFingerprintRoundsToCell(t *testing.T) {
	a := issue.Input{Type: "Pothole", Latitude: fp(-25.74791), Longitude: fp(28.22931)}
	b := issue.Input{Type: "pothole ", Latitude: fp(-25.74794), Longitude: fp(28.22929)}
	c := issue.Input{Type: "pothole", Latitude: fp(-25.7490), Longitude: fp(28.2293)}
	assert.Equal(t, Fingerprint("dev", a), Fingerprint("dev", b))
	assert.NotEqual(t, Fingerprint("dev", a), Fingerprint("dev", c))
	assert.NotEqual(t, Fingerprint("dev", a), Fingerprint("other", a))
}

func TestBloomPositionsDeterministic(t *testing.T) {
	p1 := bloomPositions([]byte("x"), 1<<20, 4)
	p2 := bloomPositions([]byte("x"), 1<<20, 4)
	assert.Equal(t, p1, p2)
	assert.Len(t, p1, 4)
	for _, p := range p1 {
		assert.Less(t, p, int64(1<<20))
	}
}

func TestNilDeduperAllows(t *testing.T) {
	var d *Deduper
	r, ok, err := d.Reserve(context.Background(), "anything")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, d.Release(context.Background(), r))
	_, ok, _ = NewDeduper(nil, 0).Reserve(context.Background(), "anything")
	assert.True(t, ok)
}

func newMiniDeduper(t *testing.T) *Deduper {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewDeduper(rdb, time.Hour)
}

func TestReserveRejectsRepeat(t *testing.T) {
	d := newMiniDeduper(t)
	ctx := context.Background()

	r, ok, err := d.Reserve(ctx, "dev|pothole|1|2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotNil(t, r)

	r2, ok, err := d.Reserve(ctx, "dev|pothole|1|2")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, r2)

	_, ok, err = d.Reserve(ctx, "dev|pothole|3|4")
	require.NoError(t, err)
	assert.True(t, ok, "different fingerprint")
}

func TestReleaseAllowsRetry(t *testing.T) {
	d := newMiniDeduper(t)
	ctx := context.Background()

	r, ok, err := d.Reserve(ctx, "dev|water|1|2")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, d.Release(ctx, r))

	_, ok, err = d.Reserve(ctx, "dev|water|1|2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReserveConcurrentSingleWinner(t *testing.T) {
	d := newMiniDeduper(t)
	ctx := context.Background()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := d.Reserve(ctx, "dev|streetlight|1|2")
			if assert.NoError(t, err) && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}
