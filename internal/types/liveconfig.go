package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig は起動時の設定検証に失敗したことを示します。
var ErrInvalidConfig = errors.New("invalid configuration")

// SpawnPolicy は OAuth コールバックごとの投稿タスク起動方針です。
type SpawnPolicy string

const (
	// SpawnMulti はコールバックのたびに独立したタスクを起動します (既定)。
	SpawnMulti SpawnPolicy = "multi"
	// SpawnSingle はプロセス内で同時に生きているタスクを 1 つに制限します。
	SpawnSingle SpawnPolicy = "single"
)

// ParseSpawnPolicy はフラグ文字列を SpawnPolicy に変換します。
func ParseSpawnPolicy(s string) (SpawnPolicy, error) {
	switch SpawnPolicy(s) {
	case SpawnMulti, "":
		return SpawnMulti, nil
	case SpawnSingle:
		return SpawnSingle, nil
	default:
		return "", fmt.Errorf("%w: unknown spawn policy %q (want multi or single)", ErrInvalidConfig, s)
	}
}

// GatewayConfig は認証ゲートウェイが両方のエンドポイントで共有する不変の設定です。
type GatewayConfig struct {
	// Google Cloud Console からダウンロードした client_secret の JSON
	ClientSecretJSON []byte

	// OAuth コールバック先 (例: https://example.com/oauth2callback)
	RedirectURL string

	Scopes []string
}

// PosterConfig はチャット投稿タスクの設定を保持します。起動後は変更されません。
type PosterConfig struct {
	// 対象のライブ配信の動画ID
	VideoID string

	// VideoID が空のとき、このチャンネルの現在のライブ配信を検索します
	ChannelID string

	// 毎回投稿する固定メッセージ
	MessageText string

	// 投稿間隔
	Interval time.Duration
}

// LiveTarget はライブチャットを解決するための対象です。VideoID が優先されます。
type LiveTarget struct {
	VideoID   string
	ChannelID string
}

func (t LiveTarget) String() string {
	if t.VideoID != "" {
		return "video:" + t.VideoID
	}
	return "channel:" + t.ChannelID
}

// Target は解決対象を返します。
func (c PosterConfig) Target() LiveTarget {
	return LiveTarget{VideoID: c.VideoID, ChannelID: c.ChannelID}
}

// Validate は PosterConfig の必須項目を検証します。
func (c PosterConfig) Validate() error {
	if c.VideoID == "" && c.ChannelID == "" {
		return fmt.Errorf("%w: video id or channel id is required", ErrInvalidConfig)
	}
	if c.MessageText == "" {
		return fmt.Errorf("%w: message text is empty", ErrInvalidConfig)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %s", ErrInvalidConfig, c.Interval)
	}
	return nil
}

// ServerConfig は HTTP サーバーのライフサイクル設定です。
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
	SpawnPolicy     SpawnPolicy
}

// Addr は待ち受けアドレスを返します。
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("0.0.0.0:%d", c.Port)
}

// Validate は ServerConfig を検証します。
func (c ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port out of range: %d", ErrInvalidConfig, c.Port)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: shutdown timeout must be positive", ErrInvalidConfig)
	}
	return nil
}
