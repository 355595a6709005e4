package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	mock_database "github.com/tareeqk/towing/internal/db/mocks"
	"github.com/tareeqk/towing/internal/repository"
	mock_storage "github.com/tareeqk/towing/internal/storage/mocks"
)

type recordingProducer struct {
	topics  []string
	keys    [][]byte
	values  [][]byte
	sendErr error
}

func (p *recordingProducer) SendMessage(_ context.Context, topic string, key, value []byte) error {
	if p.sendErr != nil {
		return p.sendErr
	}
	p.topics = append(p.topics, topic)
	p.keys = append(p.keys, key)
	p.values = append(p.values, value)
	return nil
}

func (p *recordingProducer) Close() error { return nil }

func TestProcessBatch(t *testing.T) {
	t.Parallel()

	config := PublisherConfig{
		PollInterval: time.Second,
		BatchSize:    10,
		MaxAttempts:  3,
	}

	t.Run("claims tasks inside the marking transaction", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		mockDB := mock_database.NewMockDB(ctrl)
		mockTx := mock_database.NewMockTx(ctrl)
		mockRepo := mock_storage.NewMockOutboxTaskRepository(ctrl)
		producer := &recordingProducer{}

		task := &repository.OutboxTask{
			ID:       uuid.New(),
			Status:   repository.TaskStatusCreated,
			Payload:  []byte(`{"name":"request.created"}`),
			Topic:    "towing.requests",
			Attempts: 0,
		}

		mockDB.EXPECT().BeginTx(gomock.Any()).Return(mockTx, nil)
		// the FOR UPDATE SKIP LOCKED fetch must run on the same tx that
		// commits the PROCESSING mark, or the row locks are released
		// before the claim lands
		mockRepo.EXPECT().
			GetProcessableTasks(gomock.Any(), mockTx, config.BatchSize, config.MaxAttempts).
			Return([]*repository.OutboxTask{task}, nil)
		mockRepo.EXPECT().
			UpdateTaskStatusTx(gomock.Any(), mockTx, task.ID, repository.TaskStatusProcessing, 0, nil, nil).
			Return(nil)
		mockTx.EXPECT().Commit(gomock.Any()).Return(nil)
		mockTx.EXPECT().Rollback(gomock.Any()).Return(nil).AnyTimes()
		mockRepo.EXPECT().
			UpdateTaskStatus(gomock.Any(), mockDB, task.ID, repository.TaskStatusDone, 0, nil, gomock.Not(gomock.Nil())).
			Return(nil)

		publisher := NewPublisher(mockDB, mockRepo, producer, config)
		err := publisher.processBatch(context.Background())
		require.NoError(t, err)

		require.Len(t, producer.values, 1)
		assert.Equal(t, "towing.requests", producer.topics[0])
		assert.Equal(t, task.ID.String(), string(producer.keys[0]))
		assert.JSONEq(t, `{"name":"request.created"}`, string(producer.values[0]))
	})

	t.Run("empty batch commits and sends nothing", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		mockDB := mock_database.NewMockDB(ctrl)
		mockTx := mock_database.NewMockTx(ctrl)
		mockRepo := mock_storage.NewMockOutboxTaskRepository(ctrl)
		producer := &recordingProducer{}

		mockDB.EXPECT().BeginTx(gomock.Any()).Return(mockTx, nil)
		mockRepo.EXPECT().
			GetProcessableTasks(gomock.Any(), mockTx, config.BatchSize, config.MaxAttempts).
			Return(nil, nil)
		mockTx.EXPECT().Commit(gomock.Any()).Return(nil)
		mockTx.EXPECT().Rollback(gomock.Any()).Return(nil).AnyTimes()

		publisher := NewPublisher(mockDB, mockRepo, producer, config)
		err := publisher.processBatch(context.Background())
		require.NoError(t, err)
		assert.Empty(t, producer.values)
	})

	t.Run("failed send records the attempt", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		mockDB := mock_database.NewMockDB(ctrl)
		mockTx := mock_database.NewMockTx(ctrl)
		mockRepo := mock_storage.NewMockOutboxTaskRepository(ctrl)
		producer := &recordingProducer{sendErr: errors.New("broker unreachable")}

		task := &repository.OutboxTask{
			ID:       uuid.New(),
			Status:   repository.TaskStatusCreated,
			Payload:  []byte(`{"name":"request.updated"}`),
			Topic:    "towing.requests",
			Attempts: 1,
		}

		mockDB.EXPECT().BeginTx(gomock.Any()).Return(mockTx, nil)
		mockRepo.EXPECT().
			GetProcessableTasks(gomock.Any(), mockTx, config.BatchSize, config.MaxAttempts).
			Return([]*repository.OutboxTask{task}, nil)
		mockRepo.EXPECT().
			UpdateTaskStatusTx(gomock.Any(), mockTx, task.ID, repository.TaskStatusProcessing, 1, nil, nil).
			Return(nil)
		mockTx.EXPECT().Commit(gomock.Any()).Return(nil)
		mockTx.EXPECT().Rollback(gomock.Any()).Return(nil).AnyTimes()
		mockRepo.EXPECT().
			UpdateTaskStatus(gomock.Any(), mockDB, task.ID, repository.TaskStatusFailed, 2, gomock.Not(gomock.Nil()), nil).
			Return(nil)

		publisher := NewPublisher(mockDB, mockRepo, producer, config)
		err := publisher.processBatch(context.Background())
		require.NoError(t, err)
		assert.Empty(t, producer.values)
	})
}
