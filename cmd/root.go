package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"live-chat-poster-go/internal/types"
	"live-chat-poster-go/internal/util"
	"live-chat-poster-go/internal/youtube"
)

var (
	// コマンドラインフラグを保持する変数
	envFile          string
	logLevel         string
	logFormat        string
	clientSecretFile string
	redirectURI      string
)

// envBindings はフラグ名と環境変数の対応です。フラグが明示されていない場合に環境変数で上書きします。
var envBindings = map[string]string{
	"log-level":          "LOG_LEVEL",
	"log-format":         "LOG_FORMAT",
	"client-secret-file": "CLIENT_SECRET_FILE",
	"redirect-uri":       "REDIRECT_URI",
	"video-id":           "VIDEO_ID",
	"channel-id":         "CHANNEL_ID",
	"message":            "COMMENT_TEXT",
	"interval":           "INTERVAL",
	"port":               "PORT",
	"spawn-policy":       "SPAWN_POLICY",
	"shutdown-timeout":   "SHUTDOWN_TIMEOUT",
}

// rootCmd はアプリケーション全体のルートコマンドを定義します。
var rootCmd = &cobra.Command{
	Use:   "live-chat-poster",
	Short: "YouTube ライブチャットへ固定メッセージを一定間隔で投稿するボット",
	Long: `Live Chat Poster は OAuth 2.0 で YouTube アカウントを認可した後、
指定したライブ配信のチャットへ同じメッセージを一定間隔で投稿し続けます。

run コマンドで認証ゲートウェイを起動し、ブラウザで / を開いて認可してください。`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute はルートコマンドを実行します。
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "起動時に読み込む .env ファイル (存在しなければ無視)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "ログレベル (debug, info, warn, error)。環境変数 LOG_LEVEL で設定可能。")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "ログ形式 (text, json)。環境変数 LOG_FORMAT で設定可能。")
	rootCmd.PersistentFlags().StringVar(&clientSecretFile, "client-secret-file", "", "client_secret.json のパス。環境変数 CLIENT_SECRET (JSON 文字列) が優先されます。")
	rootCmd.PersistentFlags().StringVar(&redirectURI, "redirect-uri", "", "OAuth コールバック URL (例: http://localhost:5000/oauth2callback)。環境変数 REDIRECT_URI で設定可能。")
}

// setup は .env の読み込み、環境変数の反映、ロガーの設定を行います。
func setup(cmd *cobra.Command, args []string) error {
	if err := loadDotEnv(envFile); err != nil {
		return err
	}
	if err := applyEnv(cmd.Flags()); err != nil {
		return err
	}

	level, err := util.ParseLogLevel(logLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(util.NewLogger(os.Stderr, level, logFormat))
	return nil
}

func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf(".env ファイルの読み込みに失敗 (%s): %w", path, err)
	}
	return nil
}

// applyEnv は明示されていないフラグに環境変数の値を設定します。
func applyEnv(flags *pflag.FlagSet) error {
	for name, key := range envBindings {
		f := flags.Lookup(name)
		if f == nil || f.Changed {
			continue
		}
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			continue
		}
		// INTERVAL=45 のような秒数指定も受け付ける
		if f.Value.Type() == "duration" && isDigits(v) {
			v += "s"
		}
		if err := flags.Set(name, v); err != nil {
			return fmt.Errorf("環境変数 %s の値が不正です (%q): %w", key, v, err)
		}
	}
	return nil
}

func isDigits(s string) bool {
	return s != "" && strings.Trim(s, "0123456789") == ""
}

// loadAuthorizer は CLIENT_SECRET または --client-secret-file から Authorizer を作成します。
func loadAuthorizer() (*youtube.Authorizer, error) {
	secret, err := util.LoadClientSecret(os.Getenv("CLIENT_SECRET"), clientSecretFile)
	if err != nil {
		return nil, err
	}
	return youtube.NewAuthorizer(types.GatewayConfig{
		ClientSecretJSON: secret,
		RedirectURL:      redirectURI,
		Scopes:           youtube.DefaultScopes,
	})
}
