package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	appErr "github.com/territory-studio/engine/pkg/errors"
	"github.com/territory-studio/engine/pkg/logger"
)

func TestMain(m *testing.M) {
	_, err := logger.Init("info", "json")
	if err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

type mockWorkspace struct {
	mock.Mock
}

func (m *mockWorkspace) Load(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockWorkspace) SimplifyRegions(ctx context.Context, epsilon float64) (int, error) {
	args := m.Called(ctx, epsilon)
	return args.Int(0), args.Error(1)
}

func (m *mockWorkspace) RebuildIndex(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type mockEnqueuer struct {
	mock.Mock
}

func (m *mockEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(ctx, task)
	if v := args.Get(0); v != nil {
		return v.(*asynq.TaskInfo), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestRegionTaskHandler_HandleSimplify(t *testing.T) {
	t.Run("reloads then simplifies", func(t *testing.T) {
		ws := &mockWorkspace{}
		handler := NewRegionTaskHandler(ws)
		task, err := NewSimplifyTask(2.5)
		require.NoError(t, err)

		load := ws.On("Load", mock.Anything).Return(nil).Once()
		ws.On("SimplifyRegions", mock.Anything, 2.5).Return(3, nil).Once().NotBefore(load)

		require.NoError(t, handler.HandleSimplify(context.Background(), task))
		ws.AssertExpectations(t)
	})

	t.Run("bad payload is not retried", func(t *testing.T) {
		ws := &mockWorkspace{}
		handler := NewRegionTaskHandler(ws)

		err := handler.HandleSimplify(context.Background(), asynq.NewTask(TypeSimplifyRegions, []byte("{")))
		require.ErrorIs(t, err, asynq.SkipRetry)

		pb, _ := json.Marshal(SimplifyPayload{Epsilon: 0})
		err = handler.HandleSimplify(context.Background(), asynq.NewTask(TypeSimplifyRegions, pb))
		require.ErrorIs(t, err, asynq.SkipRetry)
		ws.AssertNotCalled(t, "Load", mock.Anything)
	})

	t.Run("load failure is returned", func(t *testing.T) {
		ws := &mockWorkspace{}
		handler := NewRegionTaskHandler(ws)
		task, _ := NewSimplifyTask(1)
		ws.On("Load", mock.Anything).Return(appErr.New(appErr.CodeIO, "disk")).Once()

		err := handler.HandleSimplify(context.Background(), task)
		require.True(t, appErr.IsCode(err, appErr.CodeIO))
		ws.AssertNotCalled(t, "SimplifyRegions", mock.Anything, mock.Anything)
	})
}

func TestRegionTaskHandler_HandleRebuildIndex(t *testing.T) {
	ws := &mockWorkspace{}
	handler := NewRegionTaskHandler(ws)
	ws.On("Load", mock.Anything).Return(nil).Once()
	ws.On("RebuildIndex", mock.Anything).Return(0, errors.New("boom")).Once()

	require.Error(t, handler.HandleRebuildIndex(context.Background(), NewRebuildIndexTask()))
	ws.AssertExpectations(t)
}

func TestNewSimplifyTaskRejectsNonPositiveEpsilon(t *testing.T) {
	_, err := NewSimplifyTask(0)
	require.True(t, appErr.IsCode(err, appErr.CodeValidation))
}

func TestEnqueue(t *testing.T) {
	ctx := context.Background()

	id, err := Enqueue(ctx, nil, NewRebuildIndexTask())
	require.NoError(t, err)
	require.Empty(t, id)

	client := &mockEnqueuer{}
	client.On("EnqueueContext", ctx, mock.MatchedBy(func(task *asynq.Task) bool {
		return task.Type() == TypeRebuildIndex
	})).Return(&asynq.TaskInfo{ID: "t-1"}, nil).Once()
	id, err = Enqueue(ctx, client, NewRebuildIndexTask())
	require.NoError(t, err)
	require.Equal(t, "t-1", id)

	failing := &mockEnqueuer{}
	failing.On("EnqueueContext", ctx, mock.Anything).Return(nil, errors.New("redis down")).Once()
	_, err = Enqueue(ctx, failing, NewRebuildIndexTask())
	require.True(t, appErr.IsCode(err, appErr.CodeUnavailable))
}
