package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"live-chat-poster-go/internal/telemetry"
	"live-chat-poster-go/internal/types"
)

var (
	// ErrTaskRunning は single ポリシーで既にタスクが動いていることを示します。
	ErrTaskRunning = errors.New("a chat poster task is already running")

	// ErrShuttingDown はシャットダウン開始後の起動要求を示します。
	ErrShuttingDown = errors.New("supervisor is shutting down")
)

// Runner はバックグラウンドで動く 1 つのタスクです。
type Runner interface {
	Run(ctx context.Context) error
}

// TaskFactory はトークンからタスクを組み立てます。ctx はタスクの寿命そのものです。
type TaskFactory func(ctx context.Context, token *oauth2.Token, logger *slog.Logger) (Runner, error)

// Handle は起動済みタスクへの参照です。
type Handle struct {
	ID        string
	StartedAt time.Time

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Done はタスク終了時に close されるチャネルを返します。
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err はタスクの終了理由を返します。Done の後でのみ意味を持ちます。
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Cancel はこのタスクだけを停止します。
func (h *Handle) Cancel() { h.cancel() }

// Supervisor はコールバックごとに起動される投稿タスクを管理します。
// タスクは HTTP リクエストではなく Supervisor の ctx から派生するため、
// レスポンス送信後も動き続け、Shutdown でまとめて停止できます。
type Supervisor struct {
	ctx     context.Context
	cancel  context.CancelFunc
	factory TaskFactory
	policy  types.SpawnPolicy
	logger  *slog.Logger

	mu     sync.Mutex
	tasks  map[string]*Handle
	closed bool
	wg     sync.WaitGroup
}

// NewSupervisor は新しい Supervisor を作成します。
func NewSupervisor(ctx context.Context, factory TaskFactory, policy types.SpawnPolicy, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Supervisor{
		ctx:     ctx,
		cancel:  cancel,
		factory: factory,
		policy:  policy,
		logger:  logger,
		tasks:   make(map[string]*Handle),
	}
}

// Spawn はトークンを新しいタスクに引き渡して起動し、すぐに戻ります。
func (s *Supervisor) Spawn(token *oauth2.Token) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.ctx.Err() != nil {
		return nil, ErrShuttingDown
	}
	if s.policy == types.SpawnSingle && len(s.tasks) > 0 {
		return nil, ErrTaskRunning
	}

	id := uuid.NewString()
	logger := s.logger.With("task_id", id)
	taskCtx, cancel := context.WithCancel(s.ctx)

	runner, err := s.factory(taskCtx, token, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("タスクの作成に失敗: %w", err)
	}

	h := &Handle{
		ID:        id,
		StartedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	s.tasks[id] = h
	s.wg.Add(1)
	telemetry.TaskStarted()

	go s.run(taskCtx, h, runner, logger)

	logger.Info("投稿タスクを起動しました。", "active", len(s.tasks))
	return h, nil
}

func (s *Supervisor) run(ctx context.Context, h *Handle, runner Runner, logger *slog.Logger) {
	defer s.wg.Done()
	defer telemetry.TaskFinished()

	err := runSafely(ctx, runner)

	s.mu.Lock()
	delete(s.tasks, h.ID)
	s.mu.Unlock()

	h.err = err
	h.cancel()
	close(h.done)

	if err != nil {
		logger.Error("投稿タスクが終了しました。", "error", err, "uptime", time.Since(h.StartedAt))
		return
	}
	logger.Info("投稿タスクが停止しました。", "uptime", time.Since(h.StartedAt))
}

func runSafely(ctx context.Context, runner Runner) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return runner.Run(ctx)
}

// Active は動作中のタスク数を返します。
func (s *Supervisor) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Shutdown は全タスクをキャンセルし、終了を待ちます。nil の Supervisor では何もしません。
func (s *Supervisor) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	s.closed = true
	active := len(s.tasks)
	s.mu.Unlock()

	s.logger.Info("全ての投稿タスクを停止します。", "active", active)
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("タスクの停止待ちがタイムアウトしました: %w", ctx.Err())
	}
}
