package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/TFMV/gatehouse/pkg/errors"
	mongoconn "github.com/TFMV/gatehouse/pkg/infrastructure/mongodb"
	"github.com/TFMV/gatehouse/pkg/models"
)

type staticSource struct {
	conn *mongoconn.Conn
	err  error
}

func (s staticSource) Acquire(context.Context) (*mongoconn.Conn, error) {
	return s.conn, s.err
}

func newTestRepository(mt *mtest.T) *userRepository {
	logger := zerolog.New(zerolog.NewTestWriter(mt.T))
	conn := mongoconn.FromClient(mt.Client, mt.DB.Name(), logger)
	return NewUserRepository(staticSource{conn: conn}, logger).(*userRepository)
}

func userDocument(id, name, email string) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "name", Value: name},
		{Key: "email", Value: email},
		{Key: "password_hash", Value: "hash"},
		{Key: "bio", Value: ""},
	}
}

func TestUserRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ns := "db." + UsersCollection

	mt.Run("create", func(mt *mtest.T) {
		repo := newTestRepository(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		err := repo.Create(context.Background(), &models.User{ID: "u-1", Name: "Ada", Email: "ada@example.com"})
		require.NoError(mt, err)
	})

	mt.Run("create duplicate email", func(mt *mtest.T) {
		repo := newTestRepository(mt)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error",
		}))

		err := repo.Create(context.Background(), &models.User{ID: "u-2", Name: "Ada", Email: "ada@example.com"})
		require.Error(mt, err)
		assert.ErrorIs(mt, err, errors.ErrEmailTaken)
	})

	mt.Run("get by id", func(mt *mtest.T) {
		repo := newTestRepository(mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(1, ns, mtest.FirstBatch, userDocument("u-1", "Ada", "ada@example.com")))

		user, err := repo.GetByID(context.Background(), "u-1")
		require.NoError(mt, err)
		assert.Equal(mt, "u-1", user.ID)
		assert.Equal(mt, "Ada", user.Name)
		assert.Equal(mt, "hash", user.PasswordHash)
	})

	mt.Run("get by email not found", func(mt *mtest.T) {
		repo := newTestRepository(mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		_, err := repo.GetByEmail(context.Background(), "nobody@example.com")
		require.Error(mt, err)
		assert.True(mt, errors.IsNotFound(err))
	})

	mt.Run("update profile", func(mt *mtest.T) {
		repo := newTestRepository(mt)
		mt.AddMockResponses(bson.D{
			{Key: "ok", Value: 1},
			{Key: "value", Value: userDocument("u-1", "Ada L.", "ada@example.com")},
		})

		name := "Ada L."
		user, err := repo.UpdateProfile(context.Background(), "u-1", models.ProfileUpdate{Name: &name})
		require.NoError(mt, err)
		assert.Equal(mt, "Ada L.", user.Name)
	})

	mt.Run("update missing user", func(mt *mtest.T) {
		repo := newTestRepository(mt)
		mt.AddMockResponses(bson.D{
			{Key: "ok", Value: 1},
			{Key: "value", Value: nil},
		})

		bio := "hello"
		_, err := repo.UpdateProfile(context.Background(), "missing", models.ProfileUpdate{Bio: &bio})
		require.Error(mt, err)
		assert.True(mt, errors.IsNotFound(err))
	})
}

func TestUserRepository_AcquireError(t *testing.T) {
	acquireErr := errors.New(errors.CodeConnectionFailed, "failed to establish database connection")
	repo := NewUserRepository(staticSource{err: acquireErr}, zerolog.New(zerolog.NewTestWriter(t)))

	_, err := repo.GetByID(context.Background(), "u-1")
	assert.Same(t, acquireErr, err)

	err = repo.Create(context.Background(), &models.User{ID: "u-1"})
	assert.Same(t, acquireErr, err)
}

func TestUpdateDocument(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	bio := "hello"

	doc := updateDocument(models.ProfileUpdate{Bio: &bio}, now)

	require.Len(t, doc, 1)
	assert.Equal(t, "$set", doc[0].Key)
	assert.Equal(t, bson.D{
		{Key: "updated_at", Value: now},
		{Key: "bio", Value: "hello"},
	}, doc[0].Value)
}
