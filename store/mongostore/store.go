// Package mongostore implements mpauth.AccountStore on MongoDB. Accounts live
// in one collection with a unique index on username.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/mpauth"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// DefaultCollection is used when New is given an empty collection name.
const DefaultCollection = "accounts"

type accountDoc struct {
	ID            string     `bson:"_id"`
	Username      string     `bson:"username"`
	PasswordHash  string     `bson:"password"`
	Nickname      string     `bson:"nickname,omitempty"`
	Avatar        string     `bson:"avatar,omitempty"`
	Tel           string     `bson:"tel,omitempty"`
	Email         string     `bson:"email,omitempty"`
	Gender        int        `bson:"gender"`
	Birthday      *time.Time `bson:"birthday,omitempty"`
	LoginAttempts int        `bson:"loginAttempts"`
	LockUntil     *time.Time `bson:"lockUntil,omitempty"`
	Version       int64      `bson:"version"`
	CreatedAt     time.Time  `bson:"createdAt"`
	UpdatedAt     time.Time  `bson:"updatedAt"`
}

func fromAccount(a *mpauth.Account) accountDoc {
	return accountDoc{
		ID: a.ID, Username: a.Username, PasswordHash: a.PasswordHash,
		Nickname: a.Nickname, Avatar: a.Avatar, Tel: a.Tel, Email: a.Email, Gender: a.Gender, Birthday: a.Birthday,
		LoginAttempts: a.LoginAttempts, LockUntil: a.LockUntil, Version: a.Version,
		CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt,
	}
}

func (d *accountDoc) account() *mpauth.Account {
	return &mpauth.Account{
		ID: d.ID, Username: d.Username, PasswordHash: d.PasswordHash,
		Nickname: d.Nickname, Avatar: d.Avatar, Tel: d.Tel, Email: d.Email, Gender: d.Gender, Birthday: d.Birthday,
		LoginAttempts: d.LoginAttempts, LockUntil: d.LockUntil, Version: d.Version,
		CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
}

// Store is a MongoDB-backed account store.
type Store struct {
	coll *mongo.Collection
	now  func() time.Time
}

// Connect opens a client for uri and pings the primary.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// New binds a store to db.collection.
func New(db *mongo.Database, collection string) *Store {
	if collection == "" {
		collection = DefaultCollection
	}
	return &Store{coll: db.Collection(collection), now: time.Now}
}

// EnsureIndexes creates the unique username index.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("username_unique"),
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", mpauth.ErrStoreUnavailable, err)
}

func (s *Store) findOne(ctx context.Context, filter bson.D) (*mpauth.Account, error) {
	var doc accountDoc
	if err := s.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, unavailable(err)
	}
	return doc.account(), nil
}

func (s *Store) FindByUsername(ctx context.Context, username string) (*mpauth.Account, error) {
	return s.findOne(ctx, bson.D{{Key: "username", Value: username}})
}

func (s *Store) FindByID(ctx context.Context, id string) (*mpauth.Account, error) {
	return s.findOne(ctx, bson.D{{Key: "_id", Value: id}})
}

func (s *Store) Insert(ctx context.Context, account *mpauth.Account) (*mpauth.Account, error) {
	rec := account.Clone()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := s.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	if rec.Version == 0 {
		rec.Version = 1
	}

	if _, err := s.coll.InsertOne(ctx, fromAccount(rec)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, mpauth.ErrUsernameTaken
		}
		return nil, unavailable(err)
	}
	return rec, nil
}

// versionFilter matches id at expectedVersion. Documents written before the
// version field existed decode as version 0, so 0 also matches a missing field.
func versionFilter(id string, expectedVersion int64) bson.D {
	if expectedVersion == 0 {
		return bson.D{
			{Key: "_id", Value: id},
			{Key: "version", Value: bson.D{{Key: "$in", Value: bson.A{int64(0), nil}}}},
		}
	}
	return bson.D{{Key: "_id", Value: id}, {Key: "version", Value: expectedVersion}}
}

// AtomicUpdate filters on {_id, version}; no match means the predicate failed.
func (s *Store) AtomicUpdate(ctx context.Context, id string, expectedVersion int64, upd mpauth.AccountUpdate) (*mpauth.Account, error) {
	filter := versionFilter(id, expectedVersion)
	update := buildUpdate(upd)

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc accountDoc
	if err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, unavailable(err)
	}
	return doc.account(), nil
}

func buildUpdate(upd mpauth.AccountUpdate) bson.D {
	set := bson.D{{Key: "updatedAt", Value: upd.UpdatedAt}}
	var unset bson.D
	if upd.SetLockout {
		set = append(set, bson.E{Key: "loginAttempts", Value: upd.LoginAttempts})
		if upd.LockUntil != nil {
			set = append(set, bson.E{Key: "lockUntil", Value: *upd.LockUntil})
		} else {
			unset = append(unset, bson.E{Key: "lockUntil", Value: ""})
		}
	}
	if upd.PasswordHash != "" {
		set = append(set, bson.E{Key: "password", Value: upd.PasswordHash})
	}

	update := bson.D{
		{Key: "$set", Value: set},
		{Key: "$inc", Value: bson.D{{Key: "version", Value: int64(1)}}},
	}
	if len(unset) > 0 {
		update = append(update, bson.E{Key: "$unset", Value: unset})
	}
	return update
}
