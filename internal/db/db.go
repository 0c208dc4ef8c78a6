package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ColUsers es la coleccion de usuarios.
const ColUsers = "users"

// Connect abre el cliente de MongoDB y verifica conectividad.
func Connect(ctx context.Context, uri, dbName string) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, client.Database(dbName), nil
}

// EnsureIndexes crea los indices unicos de usuarios.
// Collation strength 2 hace email y username unicos sin distinguir mayusculas.
func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	collation := &options.Collation{Locale: "en", Strength: 2}
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetCollation(collation),
		},
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true).SetCollation(collation),
		},
		{
			Keys: bson.D{{Key: "reset_token_hash", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "verification_token_hash", Value: 1}},
		},
	}
	_, err := database.Collection(ColUsers).Indexes().CreateMany(ctx, models)
	return err
}

// Disconnect cierra el cliente con un timeout corto.
func Disconnect(client *mongo.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return client.Disconnect(ctx)
}
