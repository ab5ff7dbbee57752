package submit

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"time"

	"civic-api/internal/issue"

	"github.com/redis/go-redis/v9"
)

// Deduper drops a repeat of the same submission (same sender, category and
// ~10 m cell) inside a short window, e.g. a double-tapped submit button. It
// is a per-window Redis bloom filter, so a rare false positive is possible.
type Deduper struct {
	rdb    *redis.Client
	window time.Duration
	bits   uint32
	hashes int
}

func NewDeduper(rdb *redis.Client, window time.Duration) *Deduper {
	if window < time.Second {
		window = time.Minute
	}
	return &Deduper{rdb: rdb, window: window, bits: 1 << 20, hashes: 4}
}

// Fingerprint rounds the coordinate to 4 decimals (about 11 m at the equator).
func Fingerprint(sender string, in issue.Input) string {
	lat, lng := 0.0, 0.0
	if in.Latitude != nil && in.Longitude != nil {
		lat = math.Round(*in.Latitude*1e4) / 1e4
		lng = math.Round(*in.Longitude*1e4) / 1e4
	}
	return fmt.Sprintf("%s|%s|%.4f|%.4f", sender, strings.ToLower(strings.TrimSpace(in.Type)), lat, lng)
}

// Reservation holds the bits a Reserve call flipped from 0 to 1.
type Reservation struct {
	key   string
	fresh []int64
}

// Reserve marks fingerprint in the current window and reports whether it was
// new. A nil Deduper or Redis client always reports true. Call Release when the
// submission is not stored so a retry is not taken for a duplicate.
func (d *Deduper) Reserve(ctx context.Context, fingerprint string) (*Reservation, bool, error) {
	if d == nil || d.rdb == nil {
		return nil, true, nil
	}
	slot := time.Now().Unix() / int64(d.window.Seconds())
	key := fmt.Sprintf("civic:dedupe:%d", slot)
	fresh, err := bloomCheckAndSet(ctx, d.rdb, key, bloomPositions([]byte(fingerprint), d.bits, d.hashes), 2*d.window)
	if err != nil {
		return nil, true, err
	}
	if len(fresh) == 0 {
		return nil, false, nil
	}
	return &Reservation{key: key, fresh: fresh}, true, nil
}

// Release clears the bits r set. Nil-safe.
func (d *Deduper) Release(ctx context.Context, r *Reservation) error {
	if d == nil || d.rdb == nil || r == nil {
		return nil
	}
	pipe := d.rdb.TxPipeline()
	for _, p := range r.fresh {
		pipe.SetBit(ctx, r.key, p, 0)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// bloomPositions derives k bit offsets from FNV-64a with an index prefix.
func bloomPositions(data []byte, m uint32, k int) []int64 {
	pos := make([]int64, k)
	for i := 0; i < k; i++ {
		h := fnv.New64a()
		h.Write([]byte{byte(i)})
		h.Write(data)
		pos[i] = int64(uint32(h.Sum64() % uint64(m)))
	}
	return pos
}

// bloomCheckAndSet sets every position in one MULTI/EXEC and returns the
// positions whose previous bit was 0. Empty means the value was already present.
func bloomCheckAndSet(ctx context.Context, rc *redis.Client, key string, positions []int64, ttl time.Duration) ([]int64, error) {
	pipe := rc.TxPipeline()
	cmds := make([]*redis.IntCmd, len(positions))
	for i, p := range positions {
		cmds[i] = pipe.SetBit(ctx, key, p, 1)
	}
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	var fresh []int64
	for i, c := range cmds {
		if c.Val() == 0 {
			fresh = append(fresh, positions[i])
		}
	}
	return fresh, nil
}
