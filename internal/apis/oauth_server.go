package apis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/oauth2"

	"live-chat-poster-go/internal/pipeline"
)

// CallbackPath は OAuth のリダイレクト先パスです。
const CallbackPath = "/oauth2callback"

const confirmationText = "Authorization complete. Message sending loop has started. Check the logs for details."

// Authorizer は同意 URL の生成と認証コードの交換を行います。
type Authorizer interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// StateIssuer は OAuth の state を発行・検証します。
type StateIssuer interface {
	Issue() (string, error)
	Verify(state string) error
}

// TaskSpawner はトークンを受け取って投稿タスクを起動します。
type TaskSpawner interface {
	Spawn(token *oauth2.Token) (*pipeline.Handle, error)
	Active() int
}

// OAuthServer は認証ゲートウェイです。同意画面へのリダイレクトとコールバックを処理し、
// 取得したトークンを TaskSpawner に引き渡します。
type OAuthServer struct {
	auth    Authorizer
	states  StateIssuer
	spawner TaskSpawner
	logger  *slog.Logger

	// 起動時の設定エラー。nil でなければ認証フローは一切動かしません。
	configErr error
}

// NewOAuthServer は OAuthServer を作成します。
// configErr が nil でない場合、または auth が nil の場合は設定不備として扱い、
// 認証系のエンドポイントは 500 を返します。
func NewOAuthServer(auth Authorizer, states StateIssuer, spawner TaskSpawner, configErr error, logger *slog.Logger) *OAuthServer {
	if logger == nil {
		logger = slog.Default()
	}
	if configErr == nil && (auth == nil || states == nil) {
		configErr = errors.New("oauth flow is not configured")
	}
	return &OAuthServer{
		auth:      auth,
		states:    states,
		spawner:   spawner,
		logger:    logger,
		configErr: configErr,
	}
}

// Handler はゲートウェイのルーティングを返します。
func (s *OAuthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET "+CallbackPath, s.handleCallback)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// handleIndex は Google の同意画面へリダイレクトします。
func (s *OAuthServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.configErr != nil {
		http.Error(w, "Error: OAuth flow not initialized correctly", http.StatusInternalServerError)
		return
	}

	state, err := s.states.Issue()
	if err != nil {
		s.logger.Error("state の発行に失敗しました。", "error", err)
		http.Error(w, "state generation error", http.StatusInternalServerError)
		return
	}

	authURL := s.auth.AuthCodeURL(state)
	s.logger.Info("認証URLを生成しました。", "url", authURL)
	http.Redirect(w, r, authURL, http.StatusFound)
}

// handleCallback は認証コードをトークンに交換し、投稿タスクを起動します。
// タスクの完了は待たずにすぐ応答します。
func (s *OAuthServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("OAuthコールバックを受信しました。")

	if s.configErr != nil {
		http.Error(w, "Error: OAuth flow not initialized correctly", http.StatusInternalServerError)
		return
	}

	q := r.URL.Query()
	if providerErr := q.Get("error"); providerErr != "" {
		s.logger.Warn("認証が拒否されました。", "error", providerErr)
		http.Error(w, fmt.Sprintf("authorization failed: %s", providerErr), http.StatusBadRequest)
		return
	}

	code := q.Get("code")
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}
	if err := s.states.Verify(q.Get("state")); err != nil {
		s.logger.Warn("state の検証に失敗しました。", "error", err)
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}

	token, err := s.auth.Exchange(r.Context(), code)
	if err != nil {
		s.logger.Error("認証コードの交換に失敗しました。", "error", err)
		http.Error(w, "failed to exchange authorization code", http.StatusInternalServerError)
		return
	}
	s.logger.Info("認証情報を取得しました。")

	handle, err := s.spawner.Spawn(token)
	switch {
	case errors.Is(err, pipeline.ErrTaskRunning):
		http.Error(w, "a message sending loop is already running", http.StatusConflict)
		return
	case errors.Is(err, pipeline.ErrShuttingDown):
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	case err != nil:
		s.logger.Error("投稿タスクの起動に失敗しました。", "error", err)
		http.Error(w, "failed to start message sending loop", http.StatusInternalServerError)
		return
	}

	s.logger.Info("メッセージ送信タスクを開始しました。", "task_id", handle.ID)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Task-ID", handle.ID)
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, confirmationText)
}

func (s *OAuthServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	active := 0
	if s.spawner != nil {
		active = s.spawner.Active()
	}
	fmt.Fprintf(w, "ok\nactive_tasks %d\n", active)
}
