package schema

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoDBIndexer struct {
	ctx      context.Context
	dbName   string
	Client   *mongo.Client
	Database *mongo.Database
}

func NewMongoDBIndexer(client *mongo.Client, dbName string) *MongoDBIndexer {
	return &MongoDBIndexer{
		ctx:      context.Background(),
		dbName:   dbName,
		Client:   client,
		Database: client.Database(dbName),
	}
}

func (m *MongoDBIndexer) createIndex(collection string, index mongo.IndexModel) error {
	c := m.Database.Collection(collection)
	_, err := c.Indexes().CreateOne(m.ctx, index)
	return err
}

func (m *MongoDBIndexer) IndexAll() error {
	if err := m.IndexSeriesCollection(); err != nil {
		return err
	}
	return m.IndexDatasetCollection()
}

func (m *MongoDBIndexer) IndexSeriesCollection() error {
	if err := m.createIndex(SeriesCollection, mongo.IndexModel{
		Keys: bson.D{
			{Key: "dataset", Value: 1},
			{Key: "area", Value: 1},
			{Key: "date", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}

	return m.createIndex(SeriesCollection, mongo.IndexModel{
		Keys: bson.D{
			{Key: "dataset", Value: 1},
			{Key: "run_id", Value: 1},
		},
	})
}

func (m *MongoDBIndexer) IndexDatasetCollection() error {
	return m.createIndex(DatasetCollection, mongo.IndexModel{
		Keys: bson.M{
			"name": 1,
		},
		Options: options.Index().SetUnique(true),
	})
}
