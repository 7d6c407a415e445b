package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/karmashop-resbrevis/karmapurgex/config"
	"github.com/karmashop-resbrevis/karmapurgex/model"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collShortlinks = "shortlinks"
	collProfiles   = "profiles"
	collVisits     = "visitors"
	collUsage      = "daily_usage"
	collUsers      = "users"
	collActivity   = "activity"
)

// NewMongo connects to MongoDB and returns a Store over its collections.
func NewMongo(ctx context.Context, cfg config.MongoConfig) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.ConnectTimeout)*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(cfg.Database)
	if err := ensureIndexes(connectCtx, db); err != nil {
		log.Warn().Err(err).Msg("Failed to ensure MongoDB indexes")
	}

	log.Info().Str("database", cfg.Database).Msg("Connected to MongoDB")
	return newMongoStore(client, db), nil
}

func newMongoStore(client *mongo.Client, db *mongo.Database) *Store {
	return &Store{
		Shortlinks: &MongoShortlinks{coll: db.Collection(collShortlinks)},
		Profiles:   &MongoProfiles{coll: db.Collection(collProfiles)},
		Visits:     &MongoVisits{coll: db.Collection(collVisits)},
		Usage:      &MongoUsage{coll: db.Collection(collUsage)},
		Users:      &MongoUsers{coll: db.Collection(collUsers)},
		Activity:   &MongoActivity{coll: db.Collection(collActivity)},
		ping: func(ctx context.Context) error {
			return client.Ping(ctx, nil)
		},
		close: func(ctx context.Context) error {
			return client.Disconnect(ctx)
		},
	}
}

func ensureIndexes(ctx context.Context, db *mongo.Database) error {
	unique := options.Index().SetUnique(true)
	specs := map[string][]mongo.IndexModel{
		collShortlinks: {
			{Keys: bson.D{{Key: "key", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "owner", Value: 1}}},
		},
		collProfiles: {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "apiKey", Value: 1}}},
		},
		collVisits: {
			{Keys: bson.D{{Key: "shortlinkKey", Value: 1}, {Key: "ip", Value: 1}, {Key: "visitedAt", Value: -1}}},
		},
		collUsage: {
			{Keys: bson.D{{Key: "apiKey", Value: 1}, {Key: "shortlinkKey", Value: 1}, {Key: "date", Value: 1}}, Options: unique},
		},
		collUsers: {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: unique},
		},
		collActivity: {
			{Keys: bson.D{{Key: "username", Value: 1}, {Key: "timestamp", Value: -1}}},
		},
	}
	for name, models := range specs {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("indexes on %s: %w", name, err)
		}
	}
	return nil
}

func findOne(ctx context.Context, coll *mongo.Collection, filter bson.M, dst interface{}) error {
	err := coll.FindOne(ctx, filter).Decode(dst)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}

func replaceExisting(ctx context.Context, coll *mongo.Collection, filter bson.M, doc interface{}) error {
	res, err := coll.ReplaceOne(ctx, filter, doc)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func insertUnique(ctx context.Context, coll *mongo.Collection, doc interface{}) error {
	_, err := coll.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return ErrKeyExists
	}
	return err
}

type MongoShortlinks struct {
	coll *mongo.Collection
}

func (s *MongoShortlinks) GetByKey(ctx context.Context, key string) (*model.Shortlink, error) {
	var link model.Shortlink
	if err := findOne(ctx, s.coll, bson.M{"key": key}, &link); err != nil {
		return nil, err
	}
	return &link, nil
}

func (s *MongoShortlinks) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"key": key}, options.Count().SetLimit(1))
	return n > 0, err
}

func (s *MongoShortlinks) Create(ctx context.Context, link *model.Shortlink) error {
	return insertUnique(ctx, s.coll, link)
}

func (s *MongoShortlinks) Update(ctx context.Context, link *model.Shortlink) error {
	return replaceExisting(ctx, s.coll, bson.M{"key": link.Key}, link)
}

func (s *MongoShortlinks) SetLiveness(ctx context.Context, key string, update LivenessUpdate) error {
	n, err := s.coll.CountDocuments(ctx, bson.M{"key": key}, options.Count().SetLimit(1))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	if update.URL != "" {
		_, err := s.coll.UpdateOne(ctx,
			bson.M{"key": key, "url": update.URL},
			bson.M{"$set": bson.M{"primaryUrlStatus": update.Status, "updatedAt": update.CheckedAt}})
		if err != nil {
			return err
		}
	}
	if update.SecondaryURL != "" {
		_, err := s.coll.UpdateOne(ctx,
			bson.M{"key": key, "secondaryUrl": update.SecondaryURL},
			bson.M{"$set": bson.M{"secondaryUrlStatus": update.SecondaryStatus, "updatedAt": update.CheckedAt}})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *MongoShortlinks) Delete(ctx context.Context, key string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"key": key})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoShortlinks) ListByOwner(ctx context.Context, owner string) ([]model.Shortlink, error) {
	return s.find(ctx, bson.M{"owner": owner})
}

func (s *MongoShortlinks) CountByOwner(ctx context.Context, owner string) (int, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"owner": owner})
	return int(n), err
}

func (s *MongoShortlinks) ListAll(ctx context.Context) ([]model.Shortlink, error) {
	return s.find(ctx, bson.M{})
}

func (s *MongoShortlinks) find(ctx context.Context, filter bson.M) ([]model.Shortlink, error) {
	cursor, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	links := []model.Shortlink{}
	if err := cursor.All(ctx, &links); err != nil {
		return nil, err
	}
	return links, nil
}

type MongoProfiles struct {
	coll *mongo.Collection
}

func (s *MongoProfiles) Get(ctx context.Context, username string) (*model.Profile, error) {
	var p model.Profile
	if err := findOne(ctx, s.coll, bson.M{"username": username}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *MongoProfiles) GetByAPIKey(ctx context.Context, apiKey string) (*model.Profile, error) {
	var p model.Profile
	if err := findOne(ctx, s.coll, bson.M{"apiKey": apiKey}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *MongoProfiles) Create(ctx context.Context, profile *model.Profile) error {
	return insertUnique(ctx, s.coll, profile)
}

func (s *MongoProfiles) Update(ctx context.Context, profile *model.Profile) error {
	return replaceExisting(ctx, s.coll, bson.M{"username": profile.Username}, profile)
}

func (s *MongoProfiles) List(ctx context.Context) ([]model.Profile, error) {
	cursor, err := s.coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	profiles := []model.Profile{}
	if err := cursor.All(ctx, &profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

type MongoVisits struct {
	coll *mongo.Collection
}

func (s *MongoVisits) HasRecent(ctx context.Context, key, ip string, since time.Time) (bool, error) {
	filter := bson.M{
		"shortlinkKey": key,
		"ip":           ip,
		"visitedAt":    bson.M{"$gt": since},
	}
	n, err := s.coll.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	return n > 0, err
}

func (s *MongoVisits) Insert(ctx context.Context, visit *model.Visit) error {
	_, err := s.coll.InsertOne(ctx, visit)
	return err
}

func (s *MongoVisits) ListByShortlink(ctx context.Context, key string) ([]model.Visit, error) {
	cursor, err := s.coll.Find(ctx, bson.M{"shortlinkKey": key}, options.Find().SetSort(bson.D{{Key: "visitedAt", Value: 1}}))
	if err != nil {
		return nil, err
	}
	visits := []model.Visit{}
	if err := cursor.All(ctx, &visits); err != nil {
		return nil, err
	}
	return visits, nil
}

func (s *MongoVisits) DeleteByShortlink(ctx context.Context, key string) error {
	_, err := s.coll.DeleteMany(ctx, bson.M{"shortlinkKey": key})
	return err
}

type MongoUsage struct {
	coll *mongo.Collection
}

func (s *MongoUsage) Increment(ctx context.Context, apiKey, shortlink, date string) error {
	filter := bson.M{"apiKey": apiKey, "shortlinkKey": shortlink, "date": date}
	update := bson.M{
		"$inc":         bson.M{"count": 1},
		"$setOnInsert": bson.M{"createdAt": time.Now().UTC()},
	}
	_, err := s.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func (s *MongoUsage) Sum(ctx context.Context, apiKey, from, to string) (int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"apiKey": apiKey,
			"date":   bson.M{"$gte": from, "$lte": to},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"total": bson.M{"$sum": "$count"},
		}}},
	}
	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, err
	}
	var rows []struct {
		Total int64 `bson:"total"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Total, nil
}

type MongoUsers struct {
	coll *mongo.Collection
}

func (s *MongoUsers) Get(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	if err := findOne(ctx, s.coll, bson.M{"username": username}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *MongoUsers) Create(ctx context.Context, user *model.User) error {
	return insertUnique(ctx, s.coll, user)
}

func (s *MongoUsers) Update(ctx context.Context, user *model.User) error {
	return replaceExisting(ctx, s.coll, bson.M{"username": user.Username}, user)
}

type MongoActivity struct {
	coll *mongo.Collection
}

type activityDoc struct {
	Username          string `bson:"username"`
	model.ActivityLog `bson:",inline"`
}

func (s *MongoActivity) Log(ctx context.Context, username string, entry model.ActivityLog) error {
	_, err := s.coll.InsertOne(ctx, activityDoc{Username: username, ActivityLog: entry})
	return err
}

func (s *MongoActivity) List(ctx context.Context, username string, offset, limit int) ([]model.ActivityLog, int, error) {
	filter := bson.M{"username": username}
	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	var docs []activityDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, 0, err
	}
	activities := make([]model.ActivityLog, 0, len(docs))
	for _, d := range docs {
		activities = append(activities, d.ActivityLog)
	}
	return activities, int(total), nil
}
