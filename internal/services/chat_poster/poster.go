package chat_poster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	ytapi "google.golang.org/api/youtube/v3"

	"live-chat-poster-go/internal/telemetry"
	"live-chat-poster-go/internal/types"
	"live-chat-poster-go/internal/youtube"
)

// ErrResolveFailed はライブチャットIDの解決に失敗し、タスクが終了したことを示します。
var ErrResolveFailed = errors.New("live chat id resolve failed")

// ChatService はタスクが利用するライブチャット API です。
type ChatService interface {
	LookupLiveChatID(ctx context.Context, target types.LiveTarget) (string, error)
	PostMessage(ctx context.Context, liveChatID, text string) (*ytapi.LiveChatMessage, error)
}

// State はタスクの状態です。
type State int32

const (
	StateResolving State = iota
	StatePosting
	StateFailed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateResolving:
		return "resolving"
	case StatePosting:
		return "posting"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// WaitFunc は ctx がキャンセルされるか d が経過するまで待機します。
type WaitFunc func(ctx context.Context, d time.Duration) error

// Poster はライブチャットIDを一度だけ解決し、固定メッセージを一定間隔で投稿し続けます。
type Poster struct {
	svc    ChatService
	cfg    types.PosterConfig
	policy RetryPolicy
	wait   WaitFunc
	logger *slog.Logger

	state      atomic.Int32
	liveChatID atomic.Value
	iterations atomic.Int64
}

// Option は Poster の設定を変更します。
type Option func(*Poster)

func WithRetryPolicy(policy RetryPolicy) Option {
	return func(p *Poster) { p.policy = policy }
}

func WithWaitFunc(wait WaitFunc) Option {
	return func(p *Poster) { p.wait = wait }
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Poster) { p.logger = logger }
}

// NewPoster は新しい Poster を作成します。既定の再試行ポリシーは cfg.Interval の固定間隔です。
func NewPoster(svc ChatService, cfg types.PosterConfig, opts ...Option) *Poster {
	p := &Poster{
		svc:    svc,
		cfg:    cfg,
		policy: FixedIntervalPolicy{Interval: cfg.Interval},
		wait:   sleepContext,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.state.Store(int32(StateResolving))
	return p
}

func (p *Poster) State() State {
	return State(p.state.Load())
}

// LiveChatID は解決済みのライブチャットIDを返します (未解決なら空文字)。
func (p *Poster) LiveChatID() string {
	id, _ := p.liveChatID.Load().(string)
	return id
}

// Iterations はこれまでに実行した投稿の回数 (成功・失敗を含む) を返します。
func (p *Poster) Iterations() int64 {
	return p.iterations.Load()
}

// Run はタスク本体です。ctx がキャンセルされるまで戻りません。
// 解決に失敗した場合のみ ErrResolveFailed を返し、キャンセル時は nil を返します。
func (p *Poster) Run(ctx context.Context) error {
	target := p.cfg.Target()
	p.logger.Info("ライブチャットIDを解決します。", "target", target.String())

	liveChatID, err := p.svc.LookupLiveChatID(ctx, target)
	if err != nil {
		if ctx.Err() != nil {
			p.state.Store(int32(StateStopped))
			p.logger.Info("解決中にキャンセルされました。")
			return nil
		}
		p.state.Store(int32(StateFailed))
		telemetry.ResolveFailed()
		p.logger.Error("ライブチャットIDの取得に失敗しました。タスクを終了します。",
			"target", target.String(),
			"kind", youtube.ErrorKind(err),
			"error", err,
		)
		return fmt.Errorf("%w: %w", ErrResolveFailed, err)
	}

	p.liveChatID.Store(liveChatID)
	p.state.Store(int32(StatePosting))
	p.logger.Info("ライブチャットIDを取得しました。", "live_chat_id", liveChatID)

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			break
		}

		postErr := p.postOnce(ctx, liveChatID, attempt)

		delay := p.policy.NextDelay(attempt, postErr)
		p.logger.Info("次の投稿まで待機します。", "delay", delay, "iteration", attempt)
		if err := p.wait(ctx, delay); err != nil {
			break
		}
	}

	p.state.Store(int32(StateStopped))
	p.logger.Info("投稿ループを停止しました。", "iterations", p.Iterations())
	return nil
}

// postOnce は 1 回分の投稿を行います。エラーはログに記録して呼び出し元へ返すだけで、ループは止めません。
func (p *Poster) postOnce(ctx context.Context, liveChatID string, attempt int) error {
	p.iterations.Add(1)
	p.logger.Debug("メッセージを投稿します。", "message", p.cfg.MessageText, "live_chat_id", liveChatID, "iteration", attempt)

	resp, err := p.svc.PostMessage(ctx, liveChatID, p.cfg.MessageText)
	if err != nil {
		kind := youtube.ErrorKind(err)
		telemetry.PostFailed(kind)
		if youtube.IsRateLimited(err) {
			p.logger.Warn("レート制限のため投稿できませんでした。次の間隔で再試行します。", "iteration", attempt, "kind", kind, "error", err)
			return err
		}
		p.logger.Error("メッセージの投稿に失敗しました。", "iteration", attempt, "kind", kind, "error", err)
		return err
	}

	telemetry.PostSucceeded()
	var messageID string
	if resp != nil {
		messageID = resp.Id
	}
	p.logger.Info("メッセージを投稿しました。", "iteration", attempt, "message_id", messageID)
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
