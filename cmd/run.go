package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"live-chat-poster-go/internal/apis"
	"live-chat-poster-go/internal/pipeline"
	"live-chat-poster-go/internal/telemetry"
	"live-chat-poster-go/internal/types"
	"live-chat-poster-go/internal/util"
	"live-chat-poster-go/internal/youtube"
)

const (
	stateTTL       = 10 * time.Minute
	defaultVideoID = "69Bc2dene40"
)

// runFlags は run コマンドのフラグを保持するための構造体です。
var runFlags struct {
	videoID         string
	channelID       string
	message         string
	interval        time.Duration
	port            int
	spawnPolicy     string
	shutdownTimeout time.Duration
}

// runCmd は認証ゲートウェイを起動し、認可後にチャット投稿を開始するコマンドです。
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "認証ゲートウェイを起動し、認可後にライブチャットへの定期投稿を開始します。",
	Long: `HTTP サーバーを起動します。/ にアクセスすると Google の同意画面へリダイレクトされ、
/oauth2callback で認可が完了するとバックグラウンドで投稿タスクが開始されます。`,
	RunE: runRunE,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runFlags.videoID, "video-id", defaultVideoID, "対象のライブ配信の動画ID。環境変数 VIDEO_ID で設定可能。")
	runCmd.Flags().StringVar(&runFlags.channelID, "channel-id", "", "このチャンネルの現在のライブ配信を対象にします。video-id を明示しない限り既定の動画IDより優先されます。環境変数 CHANNEL_ID で設定可能。")
	runCmd.Flags().StringVar(&runFlags.message, "message", "/join bunalume 913674679", "投稿するメッセージ。環境変数 COMMENT_TEXT で設定可能。")
	runCmd.Flags().DurationVar(&runFlags.interval, "interval", 45*time.Second, "投稿間隔 (例: 45s)。環境変数 INTERVAL は秒数でも指定可能。")
	runCmd.Flags().IntVar(&runFlags.port, "port", 5000, "HTTP サーバーのポート。環境変数 PORT で設定可能。")
	runCmd.Flags().StringVar(&runFlags.spawnPolicy, "spawn-policy", string(types.SpawnMulti), "コールバックごとのタスク起動方針 (multi: 毎回起動, single: 同時に 1 つまで)")
	runCmd.Flags().DurationVar(&runFlags.shutdownTimeout, "shutdown-timeout", 10*time.Second, "終了時にサーバーとタスクの停止を待つ時間")
}

func runRunE(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. 設定の構築と検証
	target := liveTarget(cmd.Flags())
	posterCfg := types.PosterConfig{
		VideoID:     target.VideoID,
		ChannelID:   target.ChannelID,
		MessageText: util.NormalizeMessage(runFlags.message),
		Interval:    runFlags.interval,
	}
	if err := posterCfg.Validate(); err != nil {
		return err
	}
	policy, err := types.ParseSpawnPolicy(runFlags.spawnPolicy)
	if err != nil {
		return err
	}
	serverCfg := types.ServerConfig{
		Port:            runFlags.port,
		ShutdownTimeout: runFlags.shutdownTimeout,
		SpawnPolicy:     policy,
	}
	if err := serverCfg.Validate(); err != nil {
		return err
	}

	telemetry.Init()

	// 2. OAuth 設定の読み込み。失敗してもプロセスは止めず、ゲートウェイが 500 を返す
	gateway, supervisor := buildGateway(ctx, posterCfg, policy)

	slog.Info("--- Live Chat Poster を起動します ---",
		"target", posterCfg.Target().String(),
		"interval", posterCfg.Interval,
		"spawn_policy", policy,
	)

	// 3. HTTP サーバーとシャットダウン処理
	srv := &http.Server{
		Addr:              serverCfg.Addr(),
		Handler:           gateway.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("📢 HTTPサーバーを起動しました。", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTPサーバーが予期せぬエラーで停止しました: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("サービスを終了します。")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
		defer cancel()
		return errors.Join(srv.Shutdown(shutdownCtx), supervisor.Shutdown(shutdownCtx))
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("アプリケーションが正常に終了しました。")
	return nil
}

// liveTarget は投稿先を決めます。channel-id が設定され video-id が
// (フラグでも環境変数でも) 明示されていなければ、既定の動画IDではなくチャンネルを使います。
func liveTarget(flags *pflag.FlagSet) types.LiveTarget {
	target := types.LiveTarget{
		VideoID:   flags.Lookup("video-id").Value.String(),
		ChannelID: flags.Lookup("channel-id").Value.String(),
	}
	if target.ChannelID != "" && !flags.Changed("video-id") {
		target.VideoID = ""
	}
	return target
}

// buildGateway は認証ゲートウェイと Supervisor を組み立てます。
// OAuth 設定が不正な場合、タスクは起動できないため Supervisor は nil です。
func buildGateway(ctx context.Context, posterCfg types.PosterConfig, policy types.SpawnPolicy) (*apis.OAuthServer, *pipeline.Supervisor) {
	authorizer, configErr := loadAuthorizer()

	var states *youtube.StateSigner
	if configErr == nil {
		states, configErr = youtube.NewStateSigner(stateTTL)
	}

	if configErr != nil {
		slog.Error("OAuth フローを初期化できませんでした。/ は 500 を返します。", "error", configErr)
		return apis.NewOAuthServer(nil, nil, nil, configErr, slog.Default()), nil
	}

	slog.Info("OAuth クライアントを読み込みました。",
		"client_id", util.MaskSecret(authorizer.ClientID()),
		"redirect_uri", authorizer.RedirectURL(),
	)
	supervisor := pipeline.NewSupervisor(ctx, pipeline.NewChatPosterFactory(authorizer, posterCfg), policy, slog.Default())
	return apis.NewOAuthServer(authorizer, states, supervisor, nil, slog.Default()), supervisor
}
