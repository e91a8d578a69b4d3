package repo

import (
	"context"
	"errors"
	"time"

	"github.com/tazhibayda/learnpath-auth/internal/apperrors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

type Store struct {
	Client *mongo.Client
	DB     *mongo.Database
	users  *mongo.Collection
}

func NewStore(ctx context.Context, uri, dbname string) (*Store, error) {
	cli, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetRetryWrites(true).
		SetMaxPoolSize(50),
	)
	if err != nil {
		return nil, err
	}
	if err := cli.Ping(ctx, nil); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, err
	}
	db := cli.Database(dbname)
	return &Store{Client: cli, DB: db, users: db.Collection("users")}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.Client.Ping(ctx, nil)
}

func (s *Store) Close(ctx context.Context) error {
	return s.Client.Disconnect(ctx)
}

// EnsureIndexes creates the indexes the users collection relies on for integrity.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_email"),
		},
		{
			Keys:    bson.D{{Key: "google_id", Value: 1}},
			Options: options.Index().SetSparse(true).SetName("google_id_sparse"),
		},
		{
			Keys:    bson.D{{Key: "reset_token", Value: 1}},
			Options: options.Index().SetSparse(true).SetName("reset_token_sparse"),
		},
	})
	return err
}

func IsDup(err error) bool {
	if mongo.IsDuplicateKeyError(err) {
		return true
	}
	var ce mongo.CommandError
	return errors.As(err, &ce) && ce.Code == 11000
}

func startSpan(ctx context.Context, op string, opts ...ddtrace.StartSpanOption) (ddtrace.Span, context.Context) {
	opts = append(opts, tracer.SpanType("mongodb"), tracer.Tag("db.collection", "users"))
	return tracer.StartSpanFromContext(ctx, op, opts...)
}

// finishSpan closes sp, tagging it with err unless the error is an expected miss.
func finishSpan(sp ddtrace.Span, err error) {
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		sp.Finish(tracer.WithError(err))
		return
	}
	sp.Finish()
}
