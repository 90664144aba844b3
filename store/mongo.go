package store

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/bitmark-inc/covid19-uk/schema"
)

const (
	mongoLogPrefix = "mongo"
	defaultTimeout = 30 * time.Second
)

// MongoStore - interface for mongodb operations
type MongoStore interface {
	TableSaver
	TableGetter
	Closer
	Pinger
}

// TableSaver - persist a pipeline batch
type TableSaver interface {
	Save(ctx context.Context, batch *schema.Batch) error
}

// TableGetter - read back the latest persisted tables
type TableGetter interface {
	LatestTable(ctx context.Context, name string) (*schema.Table, error)
	DatasetNames(ctx context.Context) ([]string, error)
}

// Closer - close db connection
type Closer interface {
	Close()
}

// Pinger - ping database
type Pinger interface {
	Ping() error
}

type mongoDB struct {
	client   *mongo.Client
	database string
}

// Ping - ping mongo db
func (m mongoDB) Ping() error {
	return m.client.Ping(context.Background(), nil)
}

// Close - close mongo db connections
func (m mongoDB) Close() {
	log.WithField("prefix", mongoLogPrefix).Info("closing mongo db connections")
	_ = m.client.Disconnect(context.Background())
}

// NewMongoStore - return mongo db operations
func NewMongoStore(client *mongo.Client, database string) MongoStore {
	return &mongoDB{
		client:   client,
		database: database,
	}
}

// Save - upsert every row keyed by (dataset, area, date), then drop the rows of each
// dataset that this run did not write
func (m *mongoDB) Save(ctx context.Context, batch *schema.Batch) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	db := m.client.Database(m.database)
	now := time.Now().UTC().Unix()

	for _, t := range batch.Tables {
		if len(t.Records) > 0 {
			models := make([]mongo.WriteModel, len(t.Records))
			for i, r := range t.Records {
				doc := seriesDocument(t.Name, r, batch.RunID, now)
				models[i] = mongo.NewReplaceOneModel().
					SetFilter(bson.M{"dataset": doc.Dataset, "area": doc.Area, "date": doc.Date}).
					SetReplacement(doc).
					SetUpsert(true)
			}

			res, err := db.Collection(schema.SeriesCollection).BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
			if err != nil {
				log.WithFields(log.Fields{"prefix": mongoLogPrefix, "dataset": t.Name, "error": err}).Error("upsert series")
				return fmt.Errorf("upsert %s: %w", t.Name, err)
			}
			log.WithFields(log.Fields{
				"prefix":   mongoLogPrefix,
				"dataset":  t.Name,
				"upserted": res.UpsertedCount,
				"modified": res.ModifiedCount,
			}).Debug("upsert series")
		}

		del, err := db.Collection(schema.SeriesCollection).DeleteMany(ctx, bson.M{
			"dataset": t.Name,
			"run_id":  bson.M{"$ne": batch.RunID},
		})
		if err != nil {
			log.WithField("prefix", mongoLogPrefix).Warnf("delete stale series of %s with error: %s", t.Name, err)
			return err
		}
		log.WithFields(log.Fields{"prefix": mongoLogPrefix, "dataset": t.Name, "records": del.DeletedCount}).Debug("delete stale series")

		meta := schema.DatasetDocument{
			Name:      t.Name,
			Kind:      t.Kind,
			Window:    t.Window,
			Columns:   t.Columns,
			Rows:      t.Len(),
			RunID:     batch.RunID,
			ReleaseTS: batch.Release.Unix(),
			UpdateTS:  now,
		}
		if _, err := db.Collection(schema.DatasetCollection).ReplaceOne(ctx, bson.M{"name": t.Name}, meta, options.Replace().SetUpsert(true)); err != nil {
			log.WithFields(log.Fields{"prefix": mongoLogPrefix, "dataset": t.Name, "error": err}).Error("replace dataset")
			return err
		}
	}

	return nil
}

// LatestTable - rebuild a table from the rows of its latest run
func (m *mongoDB) LatestTable(ctx context.Context, name string) (*schema.Table, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	db := m.client.Database(m.database)

	var meta schema.DatasetDocument
	if err := db.Collection(schema.DatasetCollection).FindOne(ctx, bson.M{"name": name}).Decode(&meta); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, name)
		}
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "area", Value: 1}, {Key: "date", Value: 1}})
	cur, err := db.Collection(schema.SeriesCollection).Find(ctx, bson.M{"dataset": name, "run_id": meta.RunID}, opts)
	if err != nil {
		log.WithFields(log.Fields{"prefix": mongoLogPrefix, "dataset": name, "error": err}).Error("find series")
		return nil, err
	}
	defer cur.Close(ctx)

	t := &schema.Table{
		Name:    meta.Name,
		Kind:    meta.Kind,
		Window:  meta.Window,
		Columns: meta.Columns,
		Records: make([]schema.Record, 0, meta.Rows),
	}
	for cur.Next(ctx) {
		var doc schema.SeriesDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		r, err := recordFromDocument(doc)
		if err != nil {
			return nil, err
		}
		t.Records = append(t.Records, r)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}

	return t, nil
}

// DatasetNames - every stored dataset
func (m *mongoDB) DatasetNames(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	values, err := m.client.Database(m.database).Collection(schema.DatasetCollection).Distinct(ctx, "name", bson.M{})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			names = append(names, s)
		}
	}
	return names, nil
}

func seriesDocument(dataset string, r schema.Record, runID string, now int64) schema.SeriesDocument {
	date := ""
	if !r.Date.IsZero() {
		date = r.Date.Format(schema.DateLayout)
	}
	return schema.SeriesDocument{
		Dataset:  dataset,
		Area:     r.Area,
		Date:     date,
		Metrics:  r.Metrics,
		Labels:   r.Labels,
		RunID:    runID,
		UpdateTS: now,
	}
}

func recordFromDocument(doc schema.SeriesDocument) (schema.Record, error) {
	r := schema.Record{
		Area:    doc.Area,
		Metrics: doc.Metrics,
		Labels:  doc.Labels,
	}
	if r.Metrics == nil {
		r.Metrics = make(map[string]*float64)
	}
	if doc.Date != "" {
		d, err := time.ParseInLocation(schema.DateLayout, doc.Date, time.UTC)
		if err != nil {
			return r, err
		}
		r.Date = d
	}
	return r, nil
}
