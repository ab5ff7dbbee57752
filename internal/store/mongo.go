package store

import (
	"context"
	"errors"
	"time"

	"civic-api/internal/apperr"
	"civic-api/internal/geo"
	"civic-api/internal/issue"
	"civic-api/internal/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	issuesCollection   = "issues"
	supportsCollection = "supports"
	countersCollection = "counters"
)

type issueDoc struct {
	ID                 int64      `bson:"_id"`
	Type               string     `bson:"type"`
	Latitude           float64    `bson:"latitude"`
	Longitude          float64    `bson:"longitude"`
	Address            string     `bson:"address"`
	Notes              *string    `bson:"notes,omitempty"`
	PhotoURL           *string    `bson:"photo_url,omitempty"`
	Status             string     `bson:"status"`
	UpvoteCount        int64      `bson:"upvote_count"`
	ReportID           string     `bson:"report_id"`
	CreatedAt          time.Time  `bson:"created_at"`
	UpdatedAt          time.Time  `bson:"updated_at"`
	LastReminderSentAt *time.Time `bson:"last_reminder_sent_at,omitempty"`
}

func (d issueDoc) toIssue() issue.Issue {
	return issue.Issue{
		ID:                 d.ID,
		Type:               d.Type,
		Coordinate:         geo.Coordinate{Latitude: d.Latitude, Longitude: d.Longitude},
		Address:            d.Address,
		Notes:              d.Notes,
		PhotoURL:           d.PhotoURL,
		Status:             issue.Status(d.Status),
		UpvoteCount:        d.UpvoteCount,
		ReportID:           d.ReportID,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
		LastReminderSentAt: d.LastReminderSentAt,
	}
}

type supportDoc struct {
	ID        int64     `bson:"_id"`
	IssueID   int64     `bson:"issue_id"`
	DeviceID  string    `bson:"device_id"`
	CreatedAt time.Time `bson:"created_at"`
}

// Mongo implements issue.Repository on MongoDB. Numeric ids come from a
// counters collection; the unique (device_id, issue_id) index rejects a
// second support. A failed counter update undoes the support change that
// preceded it.
type Mongo struct {
	issues      *mongo.Collection
	supports    *mongo.Collection
	counters    *mongo.Collection
	newReportID issue.ReportIDFunc
	now         func() time.Time

	// incr and decr are the counter steps of AddSupport and RemoveSupport.
	incr, decr func(ctx context.Context, id int64) (*issue.Issue, error)
}

func NewMongo(db *mongo.Database) *Mongo {
	m := &Mongo{
		issues:      db.Collection(issuesCollection),
		supports:    db.Collection(supportsCollection),
		counters:    db.Collection(countersCollection),
		newReportID: issue.NewReportID,
		now:         func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
	m.incr, m.decr = m.IncrementUpvoteCount, m.DecrementUpvoteCount
	return m
}

// WithReportIDs replaces the report id generator.
func (m *Mongo) WithReportIDs(f issue.ReportIDFunc) *Mongo {
	m.newReportID = f
	return m
}

// EnsureIndexes creates the unique and sort indexes. Keys are bson.D so order is kept.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := m.issues.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "report_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
	})
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "create issue indexes")
	}
	_, err = m.supports.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "device_id", Value: 1}, {Key: "issue_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "issue_id", Value: 1}}},
	})
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "create support indexes")
	}
	logger.L().Debug("mongo_indexes_ok")
	return nil
}

func (m *Mongo) nextID(ctx context.Context, name string) (int64, error) {
	var c struct {
		Seq int64 `bson:"seq"`
	}
	err := m.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&c)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, err, "next "+name+" id")
	}
	return c.Seq, nil
}

func (m *Mongo) findOne(ctx context.Context, filter bson.M) (*issue.Issue, error) {
	var d issueDoc
	err := m.issues.FindOne(ctx, filter).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "find issue")
	}
	it := d.toIssue()
	return &it, nil
}

func (m *Mongo) update(ctx context.Context, filter, update bson.M) (*issue.Issue, error) {
	var d issueDoc
	err := m.issues.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "update issue")
	}
	it := d.toIssue()
	return &it, nil
}

func (m *Mongo) Create(ctx context.Context, in issue.Input) (*issue.Issue, error) {
	if err := issue.ValidateInput(in); err != nil {
		return nil, err
	}
	status := issue.StatusReported
	if in.Status != nil {
		status = *in.Status
	}
	c := in.Coordinate()
	for attempt := 1; attempt <= issue.MaxReportIDAttempts; attempt++ {
		id, err := m.nextID(ctx, issuesCollection)
		if err != nil {
			return nil, err
		}
		now := m.now()
		d := issueDoc{
			ID: id, Type: in.Type, Latitude: c.Latitude, Longitude: c.Longitude, Address: in.Address,
			Notes: in.Notes, PhotoURL: in.PhotoURL, Status: string(status),
			ReportID: m.newReportID(), CreatedAt: now, UpdatedAt: now,
		}
		if _, err := m.issues.InsertOne(ctx, d); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				logger.L().Warn("report_id_collision", "report_id", d.ReportID, "attempt", attempt)
				continue
			}
			return nil, apperr.Wrap(apperr.Internal, err, "insert issue")
		}
		it := d.toIssue()
		return &it, nil
	}
	return nil, apperr.E(apperr.Conflict, "could not allocate a unique report id")
}

func (m *Mongo) GetByID(ctx context.Context, id int64) (*issue.Issue, error) {
	return m.findOne(ctx, bson.M{"_id": id})
}

func (m *Mongo) GetByReportID(ctx context.Context, reportID string) (*issue.Issue, error) {
	return m.findOne(ctx, bson.M{"report_id": reportID})
}

func (m *Mongo) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]issue.Issue, error) {
	cur, err := m.issues.Find(ctx, filter, opts)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "find issues")
	}
	defer cur.Close(ctx)
	out := []issue.Issue{}
	for cur.Next(ctx) {
		var d issueDoc
		if err := cur.Decode(&d); err != nil {
			return nil, apperr.Wrap(apperr.Internal, err, "decode issue")
		}
		out = append(out, d.toIssue())
	}
	if err := cur.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "iterate issues")
	}
	return out, nil
}

func (m *Mongo) List(ctx context.Context) ([]issue.Issue, error) {
	return m.find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}))
}

func (m *Mongo) UpdateStatus(ctx context.Context, id int64, status issue.Status) (*issue.Issue, error) {
	if !status.Valid() {
		return nil, apperr.E(apperr.Validation, "unknown status %q", status)
	}
	return m.update(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"status": string(status), "updated_at": m.now()}})
}

func (m *Mongo) IncrementUpvoteCount(ctx context.Context, id int64) (*issue.Issue, error) {
	return m.update(ctx, bson.M{"_id": id},
		bson.M{"$inc": bson.M{"upvote_count": int64(1)}, "$set": bson.M{"updated_at": m.now()}})
}

// DecrementUpvoteCount only matches a positive counter; a zero counter is
// returned unchanged.
func (m *Mongo) DecrementUpvoteCount(ctx context.Context, id int64) (*issue.Issue, error) {
	it, err := m.update(ctx, bson.M{"_id": id, "upvote_count": bson.M{"$gt": 0}},
		bson.M{"$inc": bson.M{"upvote_count": int64(-1)}, "$set": bson.M{"updated_at": m.now()}})
	if err != nil || it != nil {
		return it, err
	}
	return m.GetByID(ctx, id)
}

func (m *Mongo) FindSupport(ctx context.Context, issueID int64, deviceID string) (*issue.Support, error) {
	var d supportDoc
	err := m.supports.FindOne(ctx, bson.M{"issue_id": issueID, "device_id": deviceID}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "find support")
	}
	return &issue.Support{ID: d.ID, IssueID: d.IssueID, DeviceID: d.DeviceID, CreatedAt: d.CreatedAt}, nil
}

func (m *Mongo) AddSupport(ctx context.Context, issueID int64, deviceID string) (*issue.Issue, error) {
	existing, err := m.GetByID(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, apperr.E(apperr.NotFound, "issue %d not found", issueID)
	}
	sid, err := m.nextID(ctx, supportsCollection)
	if err != nil {
		return nil, err
	}
	d := supportDoc{ID: sid, IssueID: issueID, DeviceID: deviceID, CreatedAt: m.now()}
	if _, err := m.supports.InsertOne(ctx, d); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, apperr.E(apperr.Conflict, "already supported")
		}
		return nil, apperr.Wrap(apperr.Internal, err, "insert support")
	}
	it, err := m.incr(ctx, issueID)
	if err == nil && it == nil {
		err = apperr.E(apperr.NotFound, "issue %d not found", issueID)
	}
	if err != nil {
		if _, derr := m.supports.DeleteOne(context.WithoutCancel(ctx), bson.M{"_id": sid}); derr != nil {
			logger.L().Error("support_compensate_error", "issue_id", issueID, "err", derr)
		}
		return nil, err
	}
	return it, nil
}

func (m *Mongo) RemoveSupport(ctx context.Context, issueID int64, deviceID string) (*issue.Issue, error) {
	var d supportDoc
	err := m.supports.FindOneAndDelete(ctx, bson.M{"issue_id": issueID, "device_id": deviceID}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.E(apperr.NotFound, "support not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "delete support")
	}
	it, err := m.decr(ctx, issueID)
	if err != nil {
		if _, ierr := m.supports.InsertOne(context.WithoutCancel(ctx), d); ierr != nil {
			logger.L().Error("support_compensate_error", "issue_id", issueID, "err", ierr)
		}
		return nil, err
	}
	if it == nil {
		return nil, apperr.E(apperr.NotFound, "issue %d not found", issueID)
	}
	return it, nil
}

func (m *Mongo) CountSupports(ctx context.Context, issueID int64) (int64, error) {
	n, err := m.supports.CountDocuments(ctx, bson.M{"issue_id": issueID})
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, err, "count supports")
	}
	return n, nil
}

func (m *Mongo) ListReminderCandidates(ctx context.Context, olderThan, resendBefore time.Time, limit int) ([]issue.Issue, error) {
	filter := bson.M{
		"status":     bson.M{"$ne": string(issue.StatusResolved)},
		"created_at": bson.M{"$lt": olderThan},
		"$or": bson.A{
			bson.M{"last_reminder_sent_at": bson.M{"$exists": false}},
			bson.M{"last_reminder_sent_at": nil},
			bson.M{"last_reminder_sent_at": bson.M{"$lt": resendBefore}},
		},
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return m.find(ctx, filter, opts)
}

func (m *Mongo) MarkReminderSent(ctx context.Context, id int64, at time.Time) error {
	res, err := m.issues.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"last_reminder_sent_at": at.UTC()}})
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "mark reminder")
	}
	if res.MatchedCount == 0 {
		return apperr.E(apperr.NotFound, "issue %d not found", id)
	}
	return nil
}

var _ issue.Repository = (*Mongo)(nil)
