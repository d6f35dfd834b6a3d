package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"

	"live-chat-poster-go/internal/services/chat_poster"
	"live-chat-poster-go/internal/types"
)

// blockingRunner は ctx がキャンセルされるまで戻りません。
type blockingRunner struct {
	started chan struct{}
}

func (r *blockingRunner) Run(ctx context.Context) error {
	close(r.started)
	<-ctx.Done()
	return nil
}

type funcRunner func(ctx context.Context) error

func (f funcRunner) Run(ctx context.Context) error { return f(ctx) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type spawnRecorder struct {
	mu      sync.Mutex
	tokens  []*oauth2.Token
	runners []*blockingRunner
}

func (r *spawnRecorder) factory(ctx context.Context, token *oauth2.Token, logger *slog.Logger) (Runner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run := &blockingRunner{started: make(chan struct{})}
	r.tokens = append(r.tokens, token)
	r.runners = append(r.runners, run)
	return run, nil
}

func TestSpawn_MultiRunsIndependentTasks(t *testing.T) {
	rec := &spawnRecorder{}
	s := NewSupervisor(context.Background(), rec.factory, types.SpawnMulti, discardLogger())

	h1, err := s.Spawn(&oauth2.Token{AccessToken: "a"})
	require.NoError(t, err)
	h2, err := s.Spawn(&oauth2.Token{AccessToken: "b"})
	require.NoError(t, err)

	assert.NotEqual(t, h1.ID, h2.ID)
	for _, r := range rec.runners {
		<-r.started
	}
	assert.Equal(t, 2, s.Active())
	assert.Equal(t, "a", rec.tokens[0].AccessToken)
	assert.Equal(t, "b", rec.tokens[1].AccessToken)

	// 片方だけ止めてももう片方は動き続ける
	h1.Cancel()
	<-h1.Done()
	assert.NoError(t, h1.Err())
	assert.Equal(t, 1, s.Active())

	require.NoError(t, s.Shutdown(context.Background()))
	<-h2.Done()
	assert.Equal(t, 0, s.Active())
}

func TestSpawn_SinglePolicy(t *testing.T) {
	rec := &spawnRecorder{}
	s := NewSupervisor(context.Background(), rec.factory, types.SpawnSingle, discardLogger())
	defer s.Shutdown(context.Background())

	h1, err := s.Spawn(&oauth2.Token{AccessToken: "a"})
	require.NoError(t, err)

	_, err = s.Spawn(&oauth2.Token{AccessToken: "b"})
	assert.ErrorIs(t, err, ErrTaskRunning)

	h1.Cancel()
	<-h1.Done()

	_, err = s.Spawn(&oauth2.Token{AccessToken: "c"})
	assert.NoError(t, err)
}

func TestSpawn_ReturnsBeforeTaskWorks(t *testing.T) {
	release := make(chan struct{})
	var ran atomic.Bool
	factory := func(ctx context.Context, token *oauth2.Token, logger *slog.Logger) (Runner, error) {
		return funcRunner(func(ctx context.Context) error {
			<-release
			ran.Store(true)
			return nil
		}), nil
	}
	s := NewSupervisor(context.Background(), factory, types.SpawnMulti, discardLogger())

	h, err := s.Spawn(&oauth2.Token{AccessToken: "a"})
	require.NoError(t, err)
	assert.False(t, ran.Load())

	close(release)
	<-h.Done()
	assert.True(t, ran.Load())
}

func TestSpawn_FactoryError(t *testing.T) {
	boom := errors.New("boom")
	factory := func(context.Context, *oauth2.Token, *slog.Logger) (Runner, error) { return nil, boom }
	s := NewSupervisor(context.Background(), factory, types.SpawnMulti, discardLogger())

	_, err := s.Spawn(&oauth2.Token{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, s.Active())
}

func TestSpawn_TaskErrorAndPanicAreContained(t *testing.T) {
	resolveErr := errors.New("resolve failed")
	var calls atomic.Int32
	factory := func(context.Context, *oauth2.Token, *slog.Logger) (Runner, error) {
		n := calls.Add(1)
		return funcRunner(func(ctx context.Context) error {
			if n == 1 {
				return resolveErr
			}
			panic("unexpected")
		}), nil
	}
	s := NewSupervisor(context.Background(), factory, types.SpawnMulti, discardLogger())

	h1, err := s.Spawn(&oauth2.Token{})
	require.NoError(t, err)
	<-h1.Done()
	assert.ErrorIs(t, h1.Err(), resolveErr)

	h2, err := s.Spawn(&oauth2.Token{})
	require.NoError(t, err)
	<-h2.Done()
	require.Error(t, h2.Err())
	assert.Contains(t, h2.Err().Error(), "panicked")
}

func TestShutdown_RejectsNewTasksAndWaits(t *testing.T) {
	rec := &spawnRecorder{}
	s := NewSupervisor(context.Background(), rec.factory, types.SpawnMulti, discardLogger())

	h, err := s.Spawn(&oauth2.Token{})
	require.NoError(t, err)

	require.NoError(t, s.Shutdown(context.Background()))
	select {
	case <-h.Done():
	default:
		t.Fatal("task still running after Shutdown returned")
	}

	_, err = s.Spawn(&oauth2.Token{})
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestShutdown_Timeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	factory := func(context.Context, *oauth2.Token, *slog.Logger) (Runner, error) {
		return funcRunner(func(context.Context) error {
			<-release // キャンセルを無視するタスク
			return nil
		}), nil
	}
	s := NewSupervisor(context.Background(), factory, types.SpawnMulti, discardLogger())
	_, err := s.Spawn(&oauth2.Token{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Shutdown(ctx), context.DeadlineExceeded)
}

func TestShutdown_NilSupervisor(t *testing.T) {
	var s *Supervisor
	assert.NoError(t, s.Shutdown(context.Background()))
}

type staticTSP struct{}

func (staticTSP) TokenSource(_ context.Context, token *oauth2.Token) oauth2.TokenSource {
	return oauth2.StaticTokenSource(token)
}

func TestNewChatPosterFactory(t *testing.T) {
	var posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/youtube/v3/videos"):
			w.Write([]byte(`{"items":[{"id":"v","liveStreamingDetails":{"activeLiveChatId":"chat-v"}}]}`))
		case strings.HasSuffix(r.URL.Path, "/youtube/v3/liveChat/messages"):
			posts.Add(1)
			w.Write([]byte(`{"id":"m"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	cfg := types.PosterConfig{VideoID: "v", MessageText: "hello", Interval: time.Hour}
	factory := NewChatPosterFactory(staticTSP{}, cfg, option.WithEndpoint(srv.URL+"/"))

	s := NewSupervisor(context.Background(), factory, types.SpawnMulti, discardLogger())
	_, err := s.Spawn(&oauth2.Token{AccessToken: "tok", TokenType: "Bearer"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return posts.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, s.Shutdown(context.Background()))
	assert.EqualValues(t, 1, posts.Load())
}

func TestNewChatPosterFactory_BuildsPoster(t *testing.T) {
	cfg := types.PosterConfig{VideoID: "v", MessageText: "hello", Interval: time.Second}
	factory := NewChatPosterFactory(staticTSP{}, cfg)

	runner, err := factory(context.Background(), &oauth2.Token{AccessToken: "x"}, discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &chat_poster.Poster{}, runner)
}
