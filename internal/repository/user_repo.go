package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"oba-connect/internal/db"
	"oba-connect/internal/domain"
)

// ErrNotFound es el sentinel de "documento inexistente" de esta capa.
var ErrNotFound = mongo.ErrNoDocuments

// ErrDuplicateKey marca la violacion de un indice unico (email o username).
var ErrDuplicateKey = errors.New("duplicate key")

// UserRepository define el contrato de persistencia para usuarios.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByUsername(ctx context.Context, username string) (domain.User, error)
	ExistsEmail(ctx context.Context, email string) (bool, error)
	ExistsUsername(ctx context.Context, username string) (bool, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	SetVerificationToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	GetByResetToken(ctx context.Context, tokenHash string, now time.Time) (domain.User, error)
	GetByVerificationToken(ctx context.Context, tokenHash string, now time.Time) (domain.User, error)
	MarkVerified(ctx context.Context, id string, bonusPoints int) error
	RecordLogin(ctx context.Context, id string, rec domain.LoginRecord) error
	TouchLastActive(ctx context.Context, id string, at time.Time) error
	BumpTokenVersion(ctx context.Context, id string) (int64, error)
	UpdateStatus(ctx context.Context, id, status string) error
}

// MongoUserRepository implementa UserRepository sobre el document store.
type MongoUserRepository struct {
	col *mongo.Collection
}

func NewMongoUserRepository(database *mongo.Database) *MongoUserRepository {
	return &MongoUserRepository{col: database.Collection(db.ColUsers)}
}

// caseInsensitive reutiliza la collation de los indices unicos.
var caseInsensitive = &options.Collation{Locale: "en", Strength: 2}

func (r *MongoUserRepository) Create(ctx context.Context, user domain.User) error {
	_, err := r.col.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateKey
	}
	return err
}

func (r *MongoUserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id}}, nil)
}

func (r *MongoUserRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.findOne(ctx, bson.D{{Key: "email", Value: email}}, caseInsensitive)
}

func (r *MongoUserRepository) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	return r.findOne(ctx, bson.D{{Key: "username", Value: username}}, caseInsensitive)
}

func (r *MongoUserRepository) ExistsEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, bson.D{{Key: "email", Value: email}})
}

func (r *MongoUserRepository) ExistsUsername(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, bson.D{{Key: "username", Value: username}})
}

func (r *MongoUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "password_hash", Value: passwordHash},
			{Key: "updated_at", Value: time.Now().UTC()},
		}},
		{Key: "$unset", Value: bson.D{
			{Key: "reset_token_hash", Value: ""},
			{Key: "reset_expires_at", Value: ""},
		}},
	}
	return r.updateByID(ctx, id, update)
}

func (r *MongoUserRepository) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	return r.updateByID(ctx, id, bson.D{{Key: "$set", Value: bson.D{
		{Key: "reset_token_hash", Value: tokenHash},
		{Key: "reset_expires_at", Value: expiresAt},
		{Key: "updated_at", Value: time.Now().UTC()},
	}}})
}

func (r *MongoUserRepository) SetVerificationToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	return r.updateByID(ctx, id, bson.D{{Key: "$set", Value: bson.D{
		{Key: "verification_token_hash", Value: tokenHash},
		{Key: "verification_expires_at", Value: expiresAt},
		{Key: "updated_at", Value: time.Now().UTC()},
	}}})
}

func (r *MongoUserRepository) GetByResetToken(ctx context.Context, tokenHash string, now time.Time) (domain.User, error) {
	filter := bson.D{
		{Key: "reset_token_hash", Value: tokenHash},
		{Key: "reset_expires_at", Value: bson.D{{Key: "$gt", Value: now}}},
	}
	return r.findOne(ctx, filter, nil)
}

func (r *MongoUserRepository) GetByVerificationToken(ctx context.Context, tokenHash string, now time.Time) (domain.User, error) {
	filter := bson.D{
		{Key: "verification_token_hash", Value: tokenHash},
		{Key: "verification_expires_at", Value: bson.D{{Key: "$gt", Value: now}}},
	}
	return r.findOne(ctx, filter, nil)
}

func (r *MongoUserRepository) MarkVerified(ctx context.Context, id string, bonusPoints int) error {
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "email_verified", Value: true},
			{Key: "updated_at", Value: time.Now().UTC()},
		}},
		{Key: "$unset", Value: bson.D{
			{Key: "verification_token_hash", Value: ""},
			{Key: "verification_expires_at", Value: ""},
		}},
		{Key: "$inc", Value: bson.D{{Key: "points", Value: bonusPoints}}},
	}
	return r.updateByID(ctx, id, update)
}

// RecordLogin antepone el login y recorta el historial al limite.
func (r *MongoUserRepository) RecordLogin(ctx context.Context, id string, rec domain.LoginRecord) error {
	update := bson.D{
		{Key: "$push", Value: bson.D{{Key: "login_history", Value: bson.D{
			{Key: "$each", Value: bson.A{rec}},
			{Key: "$position", Value: 0},
			{Key: "$slice", Value: domain.LoginHistoryLimit},
		}}}},
		{Key: "$set", Value: bson.D{
			{Key: "last_active_at", Value: rec.At},
			{Key: "updated_at", Value: rec.At},
		}},
	}
	return r.updateByID(ctx, id, update)
}

func (r *MongoUserRepository) TouchLastActive(ctx context.Context, id string, at time.Time) error {
	return r.updateByID(ctx, id, bson.D{{Key: "$set", Value: bson.D{
		{Key: "last_active_at", Value: at},
	}}})
}

// BumpTokenVersion incrementa atomicamente la epoch de tokens del usuario.
func (r *MongoUserRepository) BumpTokenVersion(ctx context.Context, id string) (int64, error) {
	update := bson.D{
		{Key: "$inc", Value: bson.D{{Key: "token_version", Value: 1}}},
		{Key: "$set", Value: bson.D{{Key: "updated_at", Value: time.Now().UTC()}}},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var u domain.User
	err := r.col.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: id}}, update, opts).Decode(&u)
	if err != nil {
		return 0, err
	}
	return u.TokenVersion, nil
}

func (r *MongoUserRepository) UpdateStatus(ctx context.Context, id, status string) error {
	return r.updateByID(ctx, id, bson.D{{Key: "$set", Value: bson.D{
		{Key: "status", Value: status},
		{Key: "updated_at", Value: time.Now().UTC()},
	}}})
}

func (r *MongoUserRepository) findOne(ctx context.Context, filter bson.D, collation *options.Collation) (domain.User, error) {
	opts := options.FindOne()
	if collation != nil {
		opts.SetCollation(collation)
	}
	var u domain.User
	err := r.col.FindOne(ctx, filter, opts).Decode(&u)
	return u, err
}

func (r *MongoUserRepository) exists(ctx context.Context, filter bson.D) (bool, error) {
	opts := options.Count().SetLimit(1).SetCollation(caseInsensitive)
	n, err := r.col.CountDocuments(ctx, filter, opts)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *MongoUserRepository) updateByID(ctx context.Context, id string, update bson.D) error {
	res, err := r.col.UpdateOne(ctx, bson.D{{Key: "_id", Value: id}}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
