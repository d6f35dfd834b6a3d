package cmd

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live-chat-poster-go/internal/types"
)

const testClientSecret = `{"web":{"client_id":"1234567890-abcdef.apps.googleusercontent.com","client_secret":"s3cr3t","redirect_uris":["http://localhost:5000/oauth2callback"],"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token"}}`

func newTestFlags() (*pflag.FlagSet, *string, *time.Duration, *int) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	msg := fs.String("message", "/join bunalume 913674679", "")
	interval := fs.Duration("interval", 45*time.Second, "")
	port := fs.Int("port", 5000, "")
	return fs, msg, interval, port
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("COMMENT_TEXT", "hello")
	t.Setenv("INTERVAL", "30")
	t.Setenv("PORT", "8080")

	fs, msg, interval, port := newTestFlags()
	require.NoError(t, applyEnv(fs))

	assert.Equal(t, "hello", *msg)
	assert.Equal(t, 30*time.Second, *interval)
	assert.Equal(t, 8080, *port)
}

func TestApplyEnv_FlagWins(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("INTERVAL", "1m")

	fs, _, interval, port := newTestFlags()
	require.NoError(t, fs.Parse([]string{"--port=9000"}))
	require.NoError(t, applyEnv(fs))

	assert.Equal(t, 9000, *port)
	assert.Equal(t, time.Minute, *interval)
}

func TestApplyEnv_Invalid(t *testing.T) {
	t.Setenv("PORT", "not-a-port")

	fs, _, _, _ := newTestFlags()
	err := applyEnv(fs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
}

func TestLoadDotEnv(t *testing.T) {
	assert.NoError(t, loadDotEnv(""))
	assert.NoError(t, loadDotEnv(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("CHAT_POSTER_TEST_VALUE=from-dotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("CHAT_POSTER_TEST_VALUE") })

	require.NoError(t, loadDotEnv(path))
	assert.Equal(t, "from-dotenv", os.Getenv("CHAT_POSTER_TEST_VALUE"))
}

func TestIsDigits(t *testing.T) {
	assert.True(t, isDigits("45"))
	assert.False(t, isDigits(""))
	assert.False(t, isDigits("45s"))
}

func TestAuthCommand(t *testing.T) {
	t.Setenv("CLIENT_SECRET", testClientSecret)
	t.Setenv("REDIRECT_URI", "http://localhost:5000/oauth2callback")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"auth", "--env-file", ""})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())

	got := out.String()
	assert.Contains(t, got, "client_id:    12345678...")
	assert.NotContains(t, got, "s3cr3t")
	assert.Contains(t, got, "https://www.googleapis.com/auth/youtube")
	assert.Contains(t, got, "Open http://localhost:5000/ after starting")
}

func newTargetFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("video-id", defaultVideoID, "")
	fs.String("channel-id", "", "")
	return fs
}

func TestLiveTarget(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
		want types.LiveTarget
	}{
		{"default video", nil, nil, types.LiveTarget{VideoID: defaultVideoID}},
		{"channel from env only", map[string]string{"VIDEO_ID": "", "CHANNEL_ID": "UCxyz"}, nil, types.LiveTarget{ChannelID: "UCxyz"}},
		{"video env wins", map[string]string{"VIDEO_ID": "abc123", "CHANNEL_ID": "UCxyz"}, nil, types.LiveTarget{VideoID: "abc123", ChannelID: "UCxyz"}},
		{"video flag wins", map[string]string{"CHANNEL_ID": "UCxyz"}, []string{"--video-id=def456"}, types.LiveTarget{VideoID: "def456", ChannelID: "UCxyz"}},
		{"channel flag", nil, []string{"--channel-id=UCabc"}, types.LiveTarget{ChannelID: "UCabc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("VIDEO_ID", "")
			t.Setenv("CHANNEL_ID", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			fs := newTargetFlags()
			require.NoError(t, fs.Parse(tt.args))
			require.NoError(t, applyEnv(fs))

			got := liveTarget(fs)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, types.PosterConfig{
				VideoID:     got.VideoID,
				ChannelID:   got.ChannelID,
				MessageText: "m",
				Interval:    time.Second,
			}.Validate())
		})
	}
}

func TestBuildGateway_Misconfigured(t *testing.T) {
	t.Setenv("CLIENT_SECRET", "")
	prev := clientSecretFile
	clientSecretFile = ""
	t.Cleanup(func() { clientSecretFile = prev })

	cfg := types.PosterConfig{VideoID: defaultVideoID, MessageText: "m", Interval: time.Second}
	gateway, supervisor := buildGateway(context.Background(), cfg, types.SpawnMulti)
	assert.Nil(t, supervisor)
	assert.NoError(t, supervisor.Shutdown(context.Background()))

	srv := httptest.NewServer(gateway.Handler())
	defer srv.Close()
	for _, path := range []string{"/", "/oauth2callback?code=c&state=s"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode, path)
	}
}
