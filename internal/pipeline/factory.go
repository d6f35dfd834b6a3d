package pipeline

import (
	"context"
	"log/slog"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"

	"live-chat-poster-go/internal/services/chat_poster"
	"live-chat-poster-go/internal/types"
	"live-chat-poster-go/internal/youtube"
)

// TokenSourceProvider はトークンからタスク用のトークンソースを作ります。
type TokenSourceProvider interface {
	TokenSource(ctx context.Context, token *oauth2.Token) oauth2.TokenSource
}

// NewChatPosterFactory は YouTube クライアントと Poster を組み立てる TaskFactory を返します。
func NewChatPosterFactory(tsp TokenSourceProvider, cfg types.PosterConfig, opts ...option.ClientOption) TaskFactory {
	return func(ctx context.Context, token *oauth2.Token, logger *slog.Logger) (Runner, error) {
		client, err := youtube.NewChatClient(ctx, tsp.TokenSource(ctx, token), opts...)
		if err != nil {
			return nil, err
		}
		return chat_poster.NewPoster(client, cfg, chat_poster.WithLogger(logger)), nil
	}
}
