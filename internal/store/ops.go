package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"boletin-backend/internal/analysis"
	"boletin-backend/internal/faults"
	"boletin-backend/internal/shared/telemetry"
)

// Get loads the record for a date. A missing record is (nil, nil), not an
// error; callers treat it as a cache miss.
func (s *Store) Get(ctx context.Context, date string) (*analysis.Record, error) {
	var rec analysis.Record
	found := false

	err := s.executeWithRetry(ctx, "get", func(ctx context.Context, coll *mongo.Collection) error {
		err := coll.FindOne(ctx, bson.M{"date": date}).Decode(&rec)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return nil, faults.Classify(faults.OriginStore, err, map[string]any{"operation": "get", "date": date})
	}
	if !found {
		return nil, nil
	}
	return &rec, nil
}

// Put persists a record. A concurrent or repeated write for the same date
// degrades to a full-document replace, keeping date the sole identity.
func (s *Store) Put(ctx context.Context, rec analysis.Record) error {
	if err := validateRecord(rec); err != nil {
		return faults.New(faults.KindStoreValidation, err.Error(), map[string]any{"date": rec.Date})
	}

	err := s.executeWithRetry(ctx, "put", func(ctx context.Context, coll *mongo.Collection) error {
		_, err := coll.InsertOne(ctx, rec)
		if err == nil {
			return nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return err
		}
		telemetry.Info("store.duplicate_date", map[string]any{
			"date":   rec.Date,
			"action": "replacing existing record",
		})
		_, err = coll.ReplaceOne(ctx, bson.M{"date": rec.Date}, rec, options.Replace().SetUpsert(true))
		return err
	})
	if err != nil {
		return faults.Classify(faults.OriginStore, err, map[string]any{"operation": "put", "date": rec.Date})
	}

	telemetry.Info("store.record_saved", map[string]any{
		"date":          rec.Date,
		"changes_count": len(rec.Analysis.Changes),
	})
	return nil
}

// Exists reports whether a record is stored for the date.
func (s *Store) Exists(ctx context.Context, date string) (bool, error) {
	var count int64
	err := s.executeWithRetry(ctx, "exists", func(ctx context.Context, coll *mongo.Collection) error {
		var err error
		count, err = coll.CountDocuments(ctx, bson.M{"date": date}, options.Count().SetLimit(1))
		return err
	})
	if err != nil {
		return false, faults.Classify(faults.OriginStore, err, map[string]any{"operation": "exists", "date": date})
	}
	return count > 0, nil
}

// Delete removes the record for a date and reports whether one existed.
func (s *Store) Delete(ctx context.Context, date string) (bool, error) {
	var deleted int64
	err := s.executeWithRetry(ctx, "delete", func(ctx context.Context, coll *mongo.Collection) error {
		res, err := coll.DeleteOne(ctx, bson.M{"date": date})
		if err != nil {
			return err
		}
		deleted = res.DeletedCount
		return nil
	})
	if err != nil {
		return false, faults.Classify(faults.OriginStore, err, map[string]any{"operation": "delete", "date": date})
	}
	if deleted > 0 {
		telemetry.Info("store.record_deleted", map[string]any{"date": date})
	}
	return deleted > 0, nil
}

// Recent returns the most recently created records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]analysis.Record, error) {
	if limit <= 0 {
		limit = 10
	}

	var records []analysis.Record
	err := s.executeWithRetry(ctx, "recent", func(ctx context.Context, coll *mongo.Collection) error {
		opts := options.Find().
			SetSort(bson.D{{Key: "metadata.created_at", Value: -1}}).
			SetLimit(int64(limit))
		cursor, err := coll.Find(ctx, bson.M{}, opts)
		if err != nil {
			return err
		}
		records = records[:0]
		return cursor.All(ctx, &records)
	})
	if err != nil {
		return nil, faults.Classify(faults.OriginStore, err, map[string]any{"operation": "recent", "limit": limit})
	}
	if records == nil {
		records = []analysis.Record{}
	}
	return records, nil
}

// UpdateExpertOpinions replaces the stored opinions for a date and stamps
// the update time. It reports whether a record matched.
func (s *Store) UpdateExpertOpinions(ctx context.Context, date string, opinions []analysis.Opinion) (bool, error) {
	if opinions == nil {
		opinions = []analysis.Opinion{}
	}

	var matched int64
	err := s.executeWithRetry(ctx, "update_opinions", func(ctx context.Context, coll *mongo.Collection) error {
		res, err := coll.UpdateOne(ctx, bson.M{"date": date}, bson.M{
			"$set": bson.M{
				"expert_opinions":              opinions,
				"metadata.opinions_updated_at": time.Now().UTC(),
			},
		})
		if err != nil {
			return err
		}
		matched = res.MatchedCount
		return nil
	})
	if err != nil {
		return false, faults.Classify(faults.OriginStore, err, map[string]any{"operation": "update_opinions", "date": date})
	}
	return matched > 0, nil
}

// Stats summarizes the stored corpus.
type Stats struct {
	TotalRecords int64            `json:"total_records"`
	OldestDate   string           `json:"oldest_date,omitempty"`
	NewestDate   string           `json:"newest_date,omitempty"`
	StatusCounts map[string]int64 `json:"status_counts"`
}

// Stats computes corpus counters: total records, date range and a
// per-status breakdown.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{StatusCounts: map[string]int64{}}

	err := s.executeWithRetry(ctx, "stats", func(ctx context.Context, coll *mongo.Collection) error {
		total, err := coll.CountDocuments(ctx, bson.M{})
		if err != nil {
			return err
		}
		stats.TotalRecords = total
		if total == 0 {
			return nil
		}

		pipeline := mongo.Pipeline{
			{{Key: "$group", Value: bson.D{
				{Key: "_id", Value: nil},
				{Key: "oldest", Value: bson.D{{Key: "$min", Value: "$date"}}},
				{Key: "newest", Value: bson.D{{Key: "$max", Value: "$date"}}},
			}}},
		}
		cursor, err := coll.Aggregate(ctx, pipeline)
		if err != nil {
			return err
		}
		var rangeRows []struct {
			Oldest string `bson:"oldest"`
			Newest string `bson:"newest"`
		}
		if err := cursor.All(ctx, &rangeRows); err != nil {
			return err
		}
		if len(rangeRows) > 0 {
			stats.OldestDate = rangeRows[0].Oldest
			stats.NewestDate = rangeRows[0].Newest
		}

		statusPipeline := mongo.Pipeline{
			{{Key: "$group", Value: bson.D{
				{Key: "_id", Value: "$metadata.status"},
				{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
			}}},
		}
		cursor, err = coll.Aggregate(ctx, statusPipeline)
		if err != nil {
			return err
		}
		var statusRows []struct {
			Status string `bson:"_id"`
			Count  int64  `bson:"count"`
		}
		if err := cursor.All(ctx, &statusRows); err != nil {
			return err
		}
		for _, row := range statusRows {
			stats.StatusCounts[row.Status] = row.Count
		}
		return nil
	})
	if err != nil {
		return Stats{}, faults.Classify(faults.OriginStore, err, map[string]any{"operation": "stats"})
	}
	return stats, nil
}

// Status is a point-in-time connectivity snapshot for health reporting.
type Status struct {
	Connected       bool      `json:"connected"`
	Database        string    `json:"database"`
	Collection      string    `json:"collection"`
	LastHealthCheck time.Time `json:"last_health_check,omitempty"`
}

// Status probes the connection without triggering reconnection. It never
// returns an error; an unreachable store reports Connected false.
func (s *Store) Status(ctx context.Context) Status {
	s.mu.Lock()
	client := s.client
	lastCheck := s.lastCheck
	s.mu.Unlock()

	st := Status{
		Database:        s.cfg.Database,
		Collection:      s.cfg.Collection,
		LastHealthCheck: lastCheck,
	}
	if client == nil {
		return st
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	st.Connected = client.Ping(pingCtx, readpref.Primary()) == nil
	return st
}
