package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/territory-studio/engine/internal/events"
	appErr "github.com/territory-studio/engine/pkg/errors"
	"github.com/territory-studio/engine/pkg/logger"
)

const (
	TypeSimplifyRegions = "regions:simplify"
	TypeRebuildIndex    = "regions:rebuild-index"
)

// SimplifyPayload is the task payload for region simplification.
type SimplifyPayload struct {
	Epsilon float64 `json:"epsilon"`
}

// Workspace is the part of the territory workspace the worker drives.
type Workspace interface {
	Load(ctx context.Context) error
	SimplifyRegions(ctx context.Context, epsilon float64) (int, error)
	RebuildIndex(ctx context.Context) (int, error)
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

func NewSimplifyTask(epsilon float64) (*asynq.Task, error) {
	if epsilon <= 0 {
		return nil, appErr.Newf(appErr.CodeValidation, "epsilon must be positive, got %v", epsilon)
	}
	pb, err := json.Marshal(SimplifyPayload{Epsilon: epsilon})
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "failed to encode task payload")
	}
	return asynq.NewTask(TypeSimplifyRegions, pb, asynq.MaxRetry(3)), nil
}

func NewRebuildIndexTask() *asynq.Task {
	return asynq.NewTask(TypeRebuildIndex, nil, asynq.MaxRetry(3))
}

// Enqueue submits a task. A nil client is logged and skipped so the API can
// run without a worker.
func Enqueue(ctx context.Context, client Enqueuer, task *asynq.Task) (string, error) {
	if client == nil {
		logger.L().Warn("asynq client not configured, skipping enqueue", zap.String("type", task.Type()))
		return "", nil
	}
	info, err := client.EnqueueContext(ctx, task)
	if err != nil {
		return "", appErr.Wrap(err, appErr.CodeUnavailable, "failed to enqueue task")
	}
	return info.ID, nil
}

// RegionTaskHandler runs region maintenance tasks against the workspace.
type RegionTaskHandler struct {
	ws Workspace
}

func NewRegionTaskHandler(ws Workspace) *RegionTaskHandler {
	return &RegionTaskHandler{ws: ws}
}

// Register adds the handler's task types to mux.
func (h *RegionTaskHandler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeSimplifyRegions, h.HandleSimplify)
	mux.HandleFunc(TypeRebuildIndex, h.HandleRebuildIndex)
}

func (h *RegionTaskHandler) HandleSimplify(ctx context.Context, t *asynq.Task) error {
	var p SimplifyPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		logger.L().Error("invalid simplify task payload", zap.Error(err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if p.Epsilon <= 0 {
		logger.L().Error("invalid simplify epsilon", zap.Float64("epsilon", p.Epsilon))
		return fmt.Errorf("epsilon must be positive: %w", asynq.SkipRetry)
	}

	logger.L().Info("handling simplify task", zap.Float64("epsilon", p.Epsilon))

	// the API process may have saved since our last load; the reload itself
	// is not broadcast
	if err := h.ws.Load(events.WithoutMirror(ctx)); err != nil {
		logger.L().Error("workspace load failed", zap.Error(err))
		return err
	}
	changed, err := h.ws.SimplifyRegions(ctx, p.Epsilon)
	if err != nil {
		logger.L().Error("simplify failed", zap.Error(err))
		return err
	}
	logger.L().Info("simplify completed", zap.Int("changed", changed))
	return nil
}

func (h *RegionTaskHandler) HandleRebuildIndex(ctx context.Context, t *asynq.Task) error {
	logger.L().Info("handling rebuild-index task")

	if err := h.ws.Load(events.WithoutMirror(ctx)); err != nil {
		logger.L().Error("workspace load failed", zap.Error(err))
		return err
	}
	linked, err := h.ws.RebuildIndex(ctx)
	if err != nil {
		logger.L().Error("rebuild index failed", zap.Error(err))
		return err
	}
	logger.L().Info("rebuild index completed", zap.Int("linked", linked))
	return nil
}
