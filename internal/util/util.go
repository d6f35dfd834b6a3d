package util

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"
)

// LiveChatMessageLimit は YouTube ライブチャットの 1 メッセージあたりの最大文字数です。
const LiveChatMessageLimit = 200

// ErrNoClientSecret は client_secret が環境変数にもファイルにも無い場合のエラーです。
var ErrNoClientSecret = errors.New("client secret not provided")

// 改行とその前後の空白 (行中の連続スペースはそのまま残す)
var lineBreakRun = regexp.MustCompile(`[ \t]*[\r\n]+\s*`)

// LoadClientSecret は OAuth クライアントの JSON を読み込みます。
// raw (CLIENT_SECRET の値) が優先され、空の場合は path のファイルを読みます。
func LoadClientSecret(raw, path string) ([]byte, error) {
	var data []byte
	switch {
	case strings.TrimSpace(raw) != "":
		data = []byte(raw)
	case path != "":
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("client secret ファイルの読み込みに失敗 (%s): %w", path, err)
		}
		data = b
	default:
		return nil, ErrNoClientSecret
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("client secret が有効な JSON ではありません")
	}
	return data, nil
}

// NormalizeMessage は投稿メッセージをライブチャットの制約に合わせて整形します。
// 前後の空白を取り除き、改行は 1 つの空白にまとめ、LiveChatMessageLimit を超える分は切り詰めます。
func NormalizeMessage(message string) string {
	message = strings.TrimSpace(message)
	message = lineBreakRun.ReplaceAllString(message, " ")

	if utf8.RuneCountInString(message) > LiveChatMessageLimit {
		slog.Warn("メッセージが長すぎるため切り詰めます。", "original_len", utf8.RuneCountInString(message), "limit", LiveChatMessageLimit)
		runes := []rune(message)
		message = string(runes[:LiveChatMessageLimit])
	}

	return message
}

// MaskSecret はログ出力用に先頭数文字だけを残します。
func MaskSecret(s string) string {
	const keep = 8
	if len(s) <= keep {
		return strings.Repeat("*", len(s))
	}
	return s[:keep] + "..."
}
