package issue

import (
	"context"
	"sort"
	"sync"
	"time"

	"civic-api/internal/apperr"
)

type supportKey struct {
	deviceID string
	issueID  int64
}

// MemoryRepository keeps everything in process memory behind one mutex.
// Used by tests and STORE_DRIVER=memory.
type MemoryRepository struct {
	mu          sync.Mutex
	issues      map[int64]*Issue
	byReport    map[string]int64
	supports    map[supportKey]*Support
	nextIssue   int64
	nextSupport int64
	now         func() time.Time
	newReportID ReportIDFunc
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		issues:      make(map[int64]*Issue),
		byReport:    make(map[string]int64),
		supports:    make(map[supportKey]*Support),
		now:         func() time.Time { return time.Now().UTC() },
		newReportID: NewReportID,
	}
}

// WithReportIDs replaces the report id generator.
func (r *MemoryRepository) WithReportIDs(f ReportIDFunc) *MemoryRepository {
	r.newReportID = f
	return r
}

// WithClock replaces the time source.
func (r *MemoryRepository) WithClock(now func() time.Time) *MemoryRepository {
	r.now = now
	return r
}

func (r *MemoryRepository) Create(ctx context.Context, in Input) (*Issue, error) {
	if err := ValidateInput(in); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	reportID := ""
	for i := 0; i < MaxReportIDAttempts; i++ {
		id := r.newReportID()
		if _, taken := r.byReport[id]; !taken {
			reportID = id
			break
		}
	}
	if reportID == "" {
		return nil, apperr.E(apperr.Conflict, "could not allocate a unique report id")
	}
	r.nextIssue++
	now := r.now()
	it := &Issue{
		ID:         r.nextIssue,
		Type:       in.Type,
		Coordinate: in.Coordinate(),
		Address:    in.Address,
		Notes:      copyString(in.Notes),
		PhotoURL:   copyString(in.PhotoURL),
		Status:     StatusReported,
		ReportID:   reportID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if in.Status != nil {
		it.Status = *in.Status
	}
	r.issues[it.ID] = it
	r.byReport[reportID] = it.ID
	return clone(it), nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id int64) (*Issue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return clone(r.issues[id]), nil
}

func (r *MemoryRepository) GetByReportID(ctx context.Context, reportID string) (*Issue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byReport[reportID]
	if !ok {
		return nil, nil
	}
	return clone(r.issues[id]), nil
}

func (r *MemoryRepository) List(ctx context.Context) ([]Issue, error) {
	r.mu.Lock()
	out := make([]Issue, 0, len(r.issues))
	for _, it := range r.issues {
		out = append(out, *clone(it))
	}
	r.mu.Unlock()
	sortRecentFirst(out)
	return out, nil
}

func (r *MemoryRepository) UpdateStatus(ctx context.Context, id int64, status Status) (*Issue, error) {
	if !status.Valid() {
		return nil, apperr.E(apperr.Validation, "unknown status %q", status)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.issues[id]
	if !ok {
		return nil, nil
	}
	it.Status = status
	it.UpdatedAt = r.now()
	return clone(it), nil
}

func (r *MemoryRepository) IncrementUpvoteCount(ctx context.Context, id int64) (*Issue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return clone(r.adjustLocked(id, 1)), nil
}

func (r *MemoryRepository) DecrementUpvoteCount(ctx context.Context, id int64) (*Issue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return clone(r.adjustLocked(id, -1)), nil
}

func (r *MemoryRepository) adjustLocked(id int64, delta int64) *Issue {
	it, ok := r.issues[id]
	if !ok {
		return nil
	}
	it.UpvoteCount += delta
	if it.UpvoteCount < 0 {
		it.UpvoteCount = 0
	}
	it.UpdatedAt = r.now()
	return it
}

func (r *MemoryRepository) FindSupport(ctx context.Context, issueID int64, deviceID string) (*Support, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.supports[supportKey{deviceID, issueID}]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *MemoryRepository) AddSupport(ctx context.Context, issueID int64, deviceID string) (*Issue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.issues[issueID]; !ok {
		return nil, apperr.E(apperr.NotFound, "issue %d not found", issueID)
	}
	k := supportKey{deviceID, issueID}
	if _, dup := r.supports[k]; dup {
		return nil, apperr.E(apperr.Conflict, "already supported")
	}
	r.nextSupport++
	r.supports[k] = &Support{ID: r.nextSupport, IssueID: issueID, DeviceID: deviceID, CreatedAt: r.now()}
	return clone(r.adjustLocked(issueID, 1)), nil
}

func (r *MemoryRepository) RemoveSupport(ctx context.Context, issueID int64, deviceID string) (*Issue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := supportKey{deviceID, issueID}
	if _, ok := r.supports[k]; !ok {
		return nil, apperr.E(apperr.NotFound, "support not found")
	}
	delete(r.supports, k)
	return clone(r.adjustLocked(issueID, -1)), nil
}

func (r *MemoryRepository) CountSupports(ctx context.Context, issueID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k := range r.supports {
		if k.issueID == issueID {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) ListReminderCandidates(ctx context.Context, olderThan, resendBefore time.Time, limit int) ([]Issue, error) {
	r.mu.Lock()
	var out []Issue
	for _, it := range r.issues {
		if it.Status == StatusResolved || !it.CreatedAt.Before(olderThan) {
			continue
		}
		if it.LastReminderSentAt != nil && !it.LastReminderSentAt.Before(resendBefore) {
			continue
		}
		out = append(out, *clone(it))
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) MarkReminderSent(ctx context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.issues[id]
	if !ok {
		return apperr.E(apperr.NotFound, "issue %d not found", id)
	}
	t := at
	it.LastReminderSentAt = &t
	return nil
}

func sortRecentFirst(out []Issue) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
}

func clone(it *Issue) *Issue {
	if it == nil {
		return nil
	}
	cp := *it
	cp.Notes = copyString(it.Notes)
	cp.PhotoURL = copyString(it.PhotoURL)
	if it.LastReminderSentAt != nil {
		t := *it.LastReminderSentAt
		cp.LastReminderSentAt = &t
	}
	return &cp
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
