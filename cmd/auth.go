package cmd

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"live-chat-poster-go/internal/apis"
	"live-chat-poster-go/internal/util"
)

// authCmd は OAuth クライアント設定を検証するためのコマンド定義です。
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Validate the OAuth 2.0 client configuration used by the run command.",
	Long: `This command loads CLIENT_SECRET (or --client-secret-file) and REDIRECT_URI the same
way the run command does, and reports what the authorization gateway will use.`,
	RunE: authApplication,
}

func init() {
	rootCmd.AddCommand(authCmd)
}

// authApplication は設定を読み込み、内容を表示します。
func authApplication(cmd *cobra.Command, args []string) error {
	authorizer, err := loadAuthorizer()
	if err != nil {
		return fmt.Errorf("failed to load OAuth2 config. Ensure CLIENT_SECRET or --client-secret-file is set: %w", err)
	}

	redirect := authorizer.RedirectURL()
	u, err := url.Parse(redirect)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("redirect URI is not an absolute URL: %q", redirect)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "client_id:    %s\n", util.MaskSecret(authorizer.ClientID()))
	fmt.Fprintf(out, "redirect_uri: %s\n", redirect)
	fmt.Fprintf(out, "scopes:       %s\n", strings.Join(authorizer.Scopes(), " "))

	if u.Path != apis.CallbackPath {
		fmt.Fprintf(out, "⚠️ redirect URI path should be %s (got %q)\n", apis.CallbackPath, u.Path)
		return nil
	}

	u.Path = "/"
	fmt.Fprintf(out, "✅ OAuth configuration is valid. Open %s after starting the run command.\n", u.String())
	return nil
}
