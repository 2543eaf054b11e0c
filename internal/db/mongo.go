package db

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/rowjay/s3backup/internal/target"
)

func pingMongo(ctx context.Context, t target.Mongo) error {
	opts := options.Client().
		SetHosts([]string{net.JoinHostPort(hostOrLocal(t.Host), strconv.Itoa(portOr(t.Port, 27017)))}).
		SetDirect(true)
	if t.User != "" {
		opts.SetAuth(options.Credential{
			Username:   t.User,
			Password:   t.Password,
			AuthSource: "admin",
		})
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return fmt.Errorf("mongo connect: %w", err)
	}
	defer client.Disconnect(context.Background())
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongo ping: %w", err)
	}
	return nil
}
