// Package mongo stores jobs in the jobdetails collection of a MongoDB
// database, the layout the board used from the start.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodb "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"board/internal/core"
	"board/internal/jobs"
)

// CollectionName is the collection holding job records.
const CollectionName = "jobdetails"

var _ jobs.Store = (*Store)(nil)

var byInsertion = bson.D{{Key: "_id", Value: 1}}

type Store struct {
	client *mongodb.Client
	coll   *mongodb.Collection
}

// NewStore connects to uri and uses the jobdetails collection of database.
func NewStore(ctx context.Context, uri, database string) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongodb.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	s := &Store{client: client, coll: client.Database(database).Collection(CollectionName)}
	if err := s.ensureIndexes(connectCtx); err != nil {
		slog.WarnContext(ctx, "Failed to create jobdetails indexes", "error", err)
	}
	return s, nil
}

// ensureIndexes adds a non-unique JobNumber index. Duplicates are tolerated.
func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongodb.IndexModel{
		Keys: bson.D{{Key: "JobNumber", Value: 1}},
	})
	return err
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) ListJobs(ctx context.Context) ([]core.Job, error) {
	cur, err := s.coll.Find(ctx, bson.D{}, options.Find().SetSort(byInsertion))
	if err != nil {
		return nil, fmt.Errorf("find jobs: %w", err)
	}
	var docs []jobDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode jobs: %w", err)
	}
	out := make([]core.Job, 0, len(docs))
	for _, d := range docs {
		out = append(out, fromDocument(d))
	}
	return out, nil
}

func (s *Store) GetJob(ctx context.Context, id string) (core.Job, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return core.Job{}, core.ErrNotFound
	}
	return s.findOne(ctx, bson.M{"_id": oid}, options.FindOne())
}

func (s *Store) FindByJobNumber(ctx context.Context, jobNumber string) (core.Job, error) {
	return s.findOne(ctx, bson.M{"JobNumber": jobNumber}, options.FindOne().SetSort(byInsertion))
}

func (s *Store) CreateJob(ctx context.Context, j core.Job) (core.Job, error) {
	doc := toDocument(j)
	doc.ID = primitive.NewObjectID()
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return core.Job{}, fmt.Errorf("insert job: %w", err)
	}
	return fromDocument(doc), nil
}

func (s *Store) UpdateJob(ctx context.Context, id string, p core.JobPatch) (core.Job, error) {
	if p.IsEmpty() {
		return s.GetJob(ctx, id)
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return core.Job{}, core.ErrNotFound
	}
	return s.findOneAndUpdate(ctx, bson.M{"_id": oid}, patchUpdate(p))
}

func (s *Store) DeleteJob(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return core.ErrNotFound
	}
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if res.DeletedCount == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) AddToSchedule(ctx context.Context, jobNumber, entry string) (core.Job, error) {
	return s.findOneAndUpdate(ctx, bson.M{"JobNumber": jobNumber},
		bson.M{"$addToSet": bson.M{"Schedule": entry}})
}

func (s *Store) RemoveFromSchedule(ctx context.Context, jobNumber, entry string) (core.Job, error) {
	return s.findOneAndUpdate(ctx, bson.M{"JobNumber": jobNumber},
		bson.M{"$pull": bson.M{"Schedule": entry}})
}

func (s *Store) findOne(ctx context.Context, filter bson.M, opts *options.FindOneOptions) (core.Job, error) {
	var doc jobDocument
	err := s.coll.FindOne(ctx, filter, opts).Decode(&doc)
	if errors.Is(err, mongodb.ErrNoDocuments) {
		return core.Job{}, core.ErrNotFound
	}
	if err != nil {
		return core.Job{}, fmt.Errorf("find job: %w", err)
	}
	return fromDocument(doc), nil
}

func (s *Store) findOneAndUpdate(ctx context.Context, filter, update bson.M) (core.Job, error) {
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetSort(byInsertion)
	var doc jobDocument
	err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongodb.ErrNoDocuments) {
		return core.Job{}, core.ErrNotFound
	}
	if err != nil {
		return core.Job{}, fmt.Errorf("update job: %w", err)
	}
	return fromDocument(doc), nil
}
