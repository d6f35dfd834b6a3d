package youtube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/youtube/v3"

	"live-chat-poster-go/internal/types"
)

// ErrExchangeFailed は認証コードからトークンへの交換に失敗したことを示します。
var ErrExchangeFailed = errors.New("authorization code exchange failed")

// DefaultScopes はライブチャットへの投稿に必要なスコープです。
var DefaultScopes = []string{youtube.YoutubeScope}

// Authorizer は OAuth2 の同意 URL 生成と認証コード交換を担当します。
// 起動時に一度だけ作られ、以降は変更されません。
type Authorizer struct {
	config *oauth2.Config
}

// NewAuthorizer は client_secret の JSON から Authorizer を作成します。
// cfg.RedirectURL が空でなければ JSON 内の redirect_uris より優先されます。
func NewAuthorizer(cfg types.GatewayConfig) (*Authorizer, error) {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	config, err := google.ConfigFromJSON(cfg.ClientSecretJSON, scopes...)
	if err != nil {
		return nil, fmt.Errorf("error parsing client secret config: %w", err)
	}
	if config.ClientID == "" {
		return nil, fmt.Errorf("client secret config has no client_id")
	}
	if cfg.RedirectURL != "" {
		config.RedirectURL = cfg.RedirectURL
	}
	// auth_uri / token_uri を省略した JSON でも Google のエンドポイントを使う
	if config.Endpoint.AuthURL == "" {
		config.Endpoint.AuthURL = google.Endpoint.AuthURL
	}
	if config.Endpoint.TokenURL == "" {
		config.Endpoint.TokenURL = google.Endpoint.TokenURL
	}

	return &Authorizer{config: config}, nil
}

// AuthCodeURL はオフラインアクセスと既存スコープの引き継ぎを要求する同意 URL を返します。
func (a *Authorizer) AuthCodeURL(state string) string {
	return a.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)
}

// Exchange は認証コードをトークンに交換します。
func (a *Authorizer) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := a.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExchangeFailed, err)
	}
	slog.Debug("トークンを取得しました。", "expiry", token.Expiry, "refresh_token_present", token.RefreshToken != "")
	return token, nil
}

// TokenSource はタスクが使うトークンソースを返します。
// リフレッシュは oauth2 ライブラリ標準の挙動に任せ、独自の更新処理は持ちません。
func (a *Authorizer) TokenSource(ctx context.Context, token *oauth2.Token) oauth2.TokenSource {
	return a.config.TokenSource(ctx, token)
}

func (a *Authorizer) ClientID() string    { return a.config.ClientID }
func (a *Authorizer) RedirectURL() string { return a.config.RedirectURL }

func (a *Authorizer) Scopes() []string {
	return append([]string(nil), a.config.Scopes...)
}
