package youtube

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"live-chat-poster-go/internal/types"
)

// ChatClient は YouTube Live Chat API との連携を管理します。
type ChatClient struct {
	service *youtube.Service
}

// NewChatClient はトークンソースから認証済みの ChatClient を作成します。
// ctx はタスクの寿命に紐づくものを渡してください (HTTP リクエストの ctx は不可)。
func NewChatClient(ctx context.Context, ts oauth2.TokenSource, opts ...option.ClientOption) (*ChatClient, error) {
	httpClient := oauth2.NewClient(ctx, ts)

	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("YouTubeサービスAPIの初期化に失敗: %w", err)
	}
	return &ChatClient{service: service}, nil
}

// NewChatClientWithService は既存の youtube.Service から ChatClient を作成します。
func NewChatClientWithService(service *youtube.Service) *ChatClient {
	return &ChatClient{service: service}
}

// LookupLiveChatID は対象からアクティブなライブチャットIDを解決します。
// VideoID が無い場合はチャンネルの現在のライブ配信を検索します。
func (c *ChatClient) LookupLiveChatID(ctx context.Context, target types.LiveTarget) (string, error) {
	videoID := target.VideoID
	if videoID == "" {
		var err error
		videoID, err = c.findLiveVideo(ctx, target.ChannelID)
		if err != nil {
			return "", err
		}
	}

	slog.Info("API呼び出し: ライブチャットIDを取得中", "video_id", videoID)

	resp, err := c.service.Videos.List([]string{"liveStreamingDetails"}).
		Context(ctx).
		Id(videoID).
		Do()
	if err != nil {
		return "", fmt.Errorf("動画の詳細取得に失敗: %w", err)
	}
	if len(resp.Items) == 0 {
		return "", fmt.Errorf("%w: %s", ErrVideoNotFound, videoID)
	}

	details := resp.Items[0].LiveStreamingDetails
	if details == nil || details.ActiveLiveChatId == "" {
		return "", fmt.Errorf("%w: video %s", ErrNoActiveLiveChat, videoID)
	}
	return details.ActiveLiveChatId, nil
}

// findLiveVideo はチャンネルのライブ配信中の動画IDを検索します。
func (c *ChatClient) findLiveVideo(ctx context.Context, channelID string) (string, error) {
	slog.Info("API呼び出し: ライブ配信中の動画を検索中", "channel_id", channelID)

	resp, err := c.service.Search.List([]string{"id"}).
		Context(ctx).
		ChannelId(channelID).
		EventType("live").
		Type("video").
		MaxResults(1).
		Do()
	if err != nil {
		return "", fmt.Errorf("ライブ動画の検索に失敗: %w", err)
	}
	if len(resp.Items) == 0 || resp.Items[0].Id == nil || resp.Items[0].Id.VideoId == "" {
		return "", fmt.Errorf("%w: %s", ErrNoLiveBroadcast, channelID)
	}
	return resp.Items[0].Id.VideoId, nil
}

// PostMessage はライブチャットにテキストメッセージを投稿します。
func (c *ChatClient) PostMessage(ctx context.Context, liveChatID, text string) (*youtube.LiveChatMessage, error) {
	msg := &youtube.LiveChatMessage{
		Snippet: &youtube.LiveChatMessageSnippet{
			LiveChatId: liveChatID,
			Type:       "textMessageEvent",
			TextMessageDetails: &youtube.LiveChatTextMessageDetails{
				MessageText: text,
			},
		},
	}

	resp, err := c.service.LiveChatMessages.Insert([]string{"snippet"}, msg).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("コメントの投稿に失敗: %w", err)
	}
	return resp, nil
}
