package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"captable/internal/platform/logger"
	"captable/internal/verification"
)

// AsynqEnqueuer submits verification jobs to Redis through asynq.
type AsynqEnqueuer struct {
	client *asynq.Client
	policy Policy
}

func NewAsynqEnqueuer(client *asynq.Client, policy Policy) *AsynqEnqueuer {
	return &AsynqEnqueuer{client: client, policy: policy}
}

// Enqueue submits one task. The job id doubles as the asynq task id, so a
// repeated enqueue of the same job while it is still queued is a no-op.
func (e *AsynqEnqueuer) Enqueue(ctx context.Context, job verification.Job) error {
	task, err := NewTask(job)
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, task, TaskOptions(e.policy, job)...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("asynq enqueue: %w", err)
	}
	return nil
}

// NewTask encodes job as an asynq task.
func NewTask(job verification.Job) (*asynq.Task, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encode verification job: %w", err)
	}
	return asynq.NewTask(verification.TaskType, payload), nil
}

// TaskOptions translates the policy. asynq counts retries, not attempts.
func TaskOptions(policy Policy, job verification.Job) []asynq.Option {
	opts := []asynq.Option{
		asynq.MaxRetry(policy.maxAttempts() - 1),
		asynq.TaskID(job.JobID.String()),
	}
	if policy.Queue != "" {
		opts = append(opts, asynq.Queue(policy.Queue))
	}
	if policy.Timeout > 0 {
		opts = append(opts, asynq.Timeout(policy.Timeout))
	}
	return opts
}

// Handler adapts a Processor to asynq.
type Handler struct {
	processor   Processor
	maxAttempts int
	logger      *slog.Logger
}

// NewHandler builds the asynq handler. maxAttempts is used only when the task
// context carries no retry metadata.
func NewHandler(p Processor, maxAttempts int, log *slog.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	if maxAttempts < 1 {
		maxAttempts = verification.DefaultMaxAttempts
	}
	return &Handler{processor: p, maxAttempts: maxAttempts, logger: log}
}

func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var job verification.Job
	if err := json.Unmarshal(t.Payload(), &job); err != nil {
		h.logger.ErrorContext(ctx, "undecodable verification task", "error", err)
		return fmt.Errorf("decode verification job: %v: %w", err, asynq.SkipRetry)
	}
	err := h.processor.Process(ctx, job, AttemptFromContext(ctx, h.maxAttempts))
	if errors.Is(err, verification.ErrInvalidJob) {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}

// AttemptFromContext reads asynq's retry metadata. Outside an asynq handler
// it reports the first attempt of fallbackMax.
func AttemptFromContext(ctx context.Context, fallbackMax int) verification.Attempt {
	attempt := verification.Attempt{MaxAttempts: fallbackMax}
	if n, ok := asynq.GetRetryCount(ctx); ok {
		attempt.Number = n
	}
	if maxRetry, ok := asynq.GetMaxRetry(ctx); ok {
		attempt.MaxAttempts = maxRetry + 1
	}
	return attempt
}

// NewServeMux routes verification tasks to h.
func NewServeMux(h *Handler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(verification.TaskType, h)
	return mux
}

// ServerConfig sizes the asynq worker pool.
type ServerConfig struct {
	Concurrency     int
	Policy          Policy
	ShutdownTimeout time.Duration
}

// NewServer builds an asynq server whose retry delays follow the policy's
// backoff strategy.
func NewServer(redisOpt asynq.RedisConnOpt, cfg ServerConfig, log *slog.Logger) *asynq.Server {
	if log == nil {
		log = logger.Discard()
	}
	queueName := cfg.Policy.Queue
	if queueName == "" {
		queueName = DefaultPolicy().Queue
	}
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:     cfg.Concurrency,
		Queues:          map[string]int{queueName: 1},
		RetryDelayFunc:  RetryDelay(cfg.Policy),
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          NewLogger(log),
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			taskID, _ := asynq.GetTaskID(ctx)
			log.WarnContext(ctx, "verification task failed",
				"task_type", task.Type(),
				"job_id", taskID,
				"attempt", retried,
				"max_attempts", maxRetry+1,
				"error", err,
			)
		}),
	})
}

// RetryDelay maps asynq's retried count (zero on the first failure) onto the
// 1-indexed backoff strategy.
func RetryDelay(policy Policy) asynq.RetryDelayFunc {
	strategy := policy.strategy()
	return func(n int, _ error, _ *asynq.Task) time.Duration {
		return strategy.Delay(n + 1)
	}
}

// slogLogger adapts slog to asynq.Logger.
type slogLogger struct {
	logger *slog.Logger
}

func NewLogger(l *slog.Logger) asynq.Logger {
	return &slogLogger{logger: l.With("component", "asynq")}
}

func (l *slogLogger) Debug(args ...any) { l.logger.Debug(fmt.Sprint(args...)) }
func (l *slogLogger) Info(args ...any)  { l.logger.Info(fmt.Sprint(args...)) }
func (l *slogLogger) Warn(args ...any)  { l.logger.Warn(fmt.Sprint(args...)) }
func (l *slogLogger) Error(args ...any) { l.logger.Error(fmt.Sprint(args...)) }

func (l *slogLogger) Fatal(args ...any) {
	l.logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}
