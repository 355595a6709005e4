package postgresql_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"

	mock_database "github.com/tareeqk/towing/internal/db/mocks"
	"github.com/tareeqk/towing/internal/repository"
	"github.com/tareeqk/towing/internal/repository/postgresql"
)

func TestUserRepo_Authenticate(t *testing.T) {
	ctx := context.Background()

	hashed, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)

	t.Run("valid credentials", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		repo := postgresql.NewUserRepo(mockDB)

		mockDB.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Eq("ahmed@example.com")).
			DoAndReturn(func(_ context.Context, dest *repository.User, _ string, _ string) error {
				*dest = repository.User{ID: 1, Email: "ahmed@example.com", Password: string(hashed), Role: "customer"}
				return nil
			})

		user, err := repo.Authenticate(ctx, "ahmed@example.com", "secret123")
		require.NoError(t, err)
		assert.Equal(t, int64(1), user.ID)
	})

	t.Run("wrong password", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		repo := postgresql.NewUserRepo(mockDB)

		mockDB.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, dest *repository.User, _ string, _ string) error {
				*dest = repository.User{ID: 1, Email: "ahmed@example.com", Password: string(hashed)}
				return nil
			})

		_, err := repo.Authenticate(ctx, "ahmed@example.com", "wrong")
		assert.ErrorIs(t, err, repository.ErrInvalidCredentials)
	})

	t.Run("unknown email reports the same error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		repo := postgresql.NewUserRepo(mockDB)

		mockDB.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(pgx.ErrNoRows)

		_, err := repo.Authenticate(ctx, "nobody@example.com", "secret123")
		assert.ErrorIs(t, err, repository.ErrInvalidCredentials)
	})
}

func TestUserRepo_GetByID(t *testing.T) {
	ctx := context.Background()

	t.Run("user found", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		repo := postgresql.NewUserRepo(mockDB)

		mockDB.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Eq(int64(1))).
			DoAndReturn(func(_ context.Context, dest *repository.User, _ string, _ int64) error {
				*dest = repository.User{ID: 1, Name: "Ahmed Al-Rashidi", Role: "customer"}
				return nil
			})

		user, err := repo.GetByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "Ahmed Al-Rashidi", user.Name)
	})

	t.Run("user missing", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		repo := postgresql.NewUserRepo(mockDB)

		mockDB.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(pgx.ErrNoRows)

		_, err := repo.GetByID(ctx, 99)
		assert.ErrorIs(t, err, repository.ErrObjectNotFound)
	})
}
