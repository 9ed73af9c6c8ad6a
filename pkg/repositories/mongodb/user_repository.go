// Package mongodb provides MongoDB-specific repository implementations.
package mongodb

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/TFMV/gatehouse/pkg/errors"
	mongoconn "github.com/TFMV/gatehouse/pkg/infrastructure/mongodb"
	"github.com/TFMV/gatehouse/pkg/models"
	"github.com/TFMV/gatehouse/pkg/repositories"
)

// UsersCollection is the collection holding user documents.
const UsersCollection = "users"

// userRepository implements repositories.UserRepository for MongoDB.
type userRepository struct {
	conns  repositories.ConnSource[*mongoconn.Conn]
	logger zerolog.Logger
}

// NewUserRepository creates a new MongoDB user repository.
func NewUserRepository(conns repositories.ConnSource[*mongoconn.Conn], logger zerolog.Logger) repositories.UserRepository {
	return &userRepository{
		conns:  conns,
		logger: logger,
	}
}

// EnsureIndexes creates the unique email index. It is meant to run as the
// dialer's Init hook.
func EnsureIndexes(ctx context.Context, conn *mongoconn.Conn) error {
	_, err := conn.Collection(UsersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("email_unique"),
	})
	if err != nil {
		return errors.Wrap(err, errors.CodeQueryFailed, "failed to create user indexes")
	}
	return nil
}

func (r *userRepository) users(ctx context.Context) (*mongo.Collection, error) {
	conn, err := r.conns.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return conn.Collection(UsersCollection), nil
}

// Create stores a new user.
func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	coll, err := r.users(ctx)
	if err != nil {
		return err
	}

	if _, err := coll.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errors.ErrEmailTaken
		}
		return errors.Wrap(err, errors.CodeQueryFailed, "failed to insert user")
	}

	r.logger.Debug().Str("user_id", user.ID).Msg("User created")
	return nil
}

// GetByID returns the user with the given id.
func (r *userRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id}})
}

// GetByEmail returns the user with the given email.
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, bson.D{{Key: "email", Value: email}})
}

func (r *userRepository) findOne(ctx context.Context, filter bson.D) (*models.User, error) {
	coll, err := r.users(ctx)
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := coll.FindOne(ctx, filter).Decode(&user); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, errors.ErrUserNotFound
		}
		return nil, errors.Wrap(err, errors.CodeQueryFailed, "failed to find user")
	}
	return &user, nil
}

// UpdateProfile applies an update and returns the updated user.
func (r *userRepository) UpdateProfile(ctx context.Context, id string, update models.ProfileUpdate) (*models.User, error) {
	coll, err := r.users(ctx)
	if err != nil {
		return nil, err
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var user models.User
	err = coll.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: id}}, updateDocument(update, time.Now().UTC()), opts).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, errors.ErrUserNotFound
		}
		return nil, errors.Wrap(err, errors.CodeQueryFailed, "failed to update user")
	}

	r.logger.Debug().Str("user_id", id).Msg("Profile updated")
	return &user, nil
}

func updateDocument(update models.ProfileUpdate, now time.Time) bson.D {
	set := bson.D{{Key: "updated_at", Value: now}}
	if update.Name != nil {
		set = append(set, bson.E{Key: "name", Value: *update.Name})
	}
	if update.Bio != nil {
		set = append(set, bson.E{Key: "bio", Value: *update.Bio})
	}
	return bson.D{{Key: "$set", Value: set}}
}
