package youtube

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/api/googleapi"
)

var (
	// ErrVideoNotFound は対象の動画が存在しないことを示します。
	ErrVideoNotFound = errors.New("youtube: video not found")

	// ErrNoActiveLiveChat は動画にアクティブなライブチャットが無いことを示します。
	ErrNoActiveLiveChat = errors.New("youtube: no active live chat")

	// ErrNoLiveBroadcast はチャンネルが現在ライブ配信していないことを示します。
	ErrNoLiveBroadcast = errors.New("youtube: channel is not live")
)

// エラー種別 (ログとメトリクスのラベル)
const (
	KindRateLimited   = "rate_limited"
	KindQuotaExceeded = "quota_exceeded"
	KindChatEnded     = "chat_ended"
	KindNotLive       = "not_live"
	KindUnauthorized  = "unauthorized"
	KindForbidden     = "forbidden"
	KindNotFound      = "not_found"
	KindCanceled      = "canceled"
	KindOther         = "other"
)

// ErrorKind は YouTube API のエラーを分類します。
// 投稿ループの再試行判断には使わず、ログとメトリクスにのみ使います。
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrVideoNotFound) {
		return KindNotFound
	}
	if errors.Is(err, ErrNoLiveBroadcast) {
		return KindNotLive
	}
	if errors.Is(err, ErrNoActiveLiveChat) {
		return KindChatEnded
	}

	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		if isContextErr(err) {
			return KindCanceled
		}
		return KindOther
	}

	for _, item := range gerr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded":
			return KindRateLimited
		case "quotaExceeded", "dailyLimitExceeded":
			return KindQuotaExceeded
		case "liveChatEnded", "liveChatDisabled", "liveChatNotFound":
			return KindChatEnded
		}
	}

	switch gerr.Code {
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	default:
		return KindOther
	}
}

// IsRateLimited は err がレート制限によるものかを返します。
func IsRateLimited(err error) bool {
	return ErrorKind(err) == KindRateLimited
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
