package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GoImageBoardReader/internal/cookiestore"
	"GoImageBoardReader/internal/fetch"
	"GoImageBoardReader/internal/model"
	"GoImageBoardReader/internal/site"
)

// runCmd はルートコマンドを args で実行し、標準出力と標準エラー出力を返します。
func runCmd(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestSetupLogger_WritesToFile(t *testing.T) {
	// Arrange
	path := filepath.Join(t.TempDir(), "gibr.log")
	var console bytes.Buffer

	// Act
	logger, closer, err := setupLogger(&console, "info", true, path)
	require.NoError(t, err)
	logger.Info("テストメッセージ", "board", "g")
	require.NoError(t, closer.Close())

	// Assert
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "テストメッセージ")
	assert.Contains(t, console.String(), "board=g")
}

func TestParseCookieArgs(t *testing.T) {
	cookies, err := parseCookieArgs([]string{"cf_clearance=abc=def", " session = 1 "}, time.Hour)

	require.NoError(t, err)
	require.Len(t, cookies, 2)
	assert.Equal(t, "cf_clearance", cookies[0].Name)
	assert.Equal(t, "abc=def", cookies[0].Value)
	assert.Equal(t, 3600, cookies[0].MaxAge)
	assert.Equal(t, "session", cookies[1].Name)
	assert.Equal(t, "1", cookies[1].Value)

	_, err = parseCookieArgs([]string{"novalue"}, 0)
	assert.Error(t, err)
	_, err = parseCookieArgs([]string{"=x"}, 0)
	assert.Error(t, err)
}

func TestParseThreadArgs(t *testing.T) {
	board, no, err := parseThreadArgs([]string{"/g/", "123"})
	require.NoError(t, err)
	assert.Equal(t, "g", board)
	assert.Equal(t, int64(123), no)

	_, _, err = parseThreadArgs([]string{"g", "abc"})
	assert.Error(t, err)
	_, _, err = parseThreadArgs([]string{"g", "0"})
	assert.Error(t, err)
}

func TestSitesCommand(t *testing.T) {
	// Act - 設定ファイルが無い場合は既定の設定で動作する
	out, _, err := runCmd(t, "sites", "--site", "8kun")

	// Assert
	require.NoError(t, err)
	var views []struct {
		ID         string `json:"id"`
		EngineName string `json:"engine_name"`
		Selected   bool   `json:"selected"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	require.Len(t, views, len(site.All()))
	for _, v := range views {
		assert.Equal(t, v.ID == "8kun", v.Selected, v.ID)
	}
	assert.Equal(t, "4chan", views[0].EngineName)
}

func TestRootCommand_Errors(t *testing.T) {
	t.Run("存在しないサイト", func(t *testing.T) {
		_, _, err := runCmd(t, "sites", "--site", "nowhere")
		assert.Error(t, err)
	})
	t.Run("明示した設定ファイルが無い", func(t *testing.T) {
		_, _, err := runCmd(t, "sites", "--config", filepath.Join(t.TempDir(), "missing.json"))
		assert.Error(t, err)
	})
	t.Run("不正な設定バージョン", func(t *testing.T) {
		path := writeConfig(t, "config_version: \"0.9\"\n")
		_, _, err := runCmd(t, "sites", "--config", path)
		assert.Error(t, err)
	})
}

func TestCookiesCommands_PersistAcrossRuns(t *testing.T) {
	// Arrange
	dbPath := filepath.Join(t.TempDir(), "cookies.db")
	path := writeConfig(t, "config_version: \"1.0\"\ncookie_db_path: "+dbPath+"\nlog_level: warn\n")

	// Act
	_, _, err := runCmd(t, "cookies", "set", "--config", path, ".8kun.top", "cf_clearance=token", "a=1")
	require.NoError(t, err)
	out, _, err := runCmd(t, "cookies", "list", "--config", path)
	require.NoError(t, err)

	// Assert
	var listed map[string][]struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Contains(t, listed, "8kun.top")
	cookies := listed["8kun.top"]
	require.Len(t, cookies, 2)
	assert.Equal(t, "a", cookies[0].Name)
	assert.Equal(t, "cf_clearance", cookies[1].Name)
	assert.Equal(t, "token", cookies[1].Value)
}

func TestPromptCookies(t *testing.T) {
	challenge := &fetch.ChallengeError{URL: "https://8kun.top/b/catalog.json", RemediationURL: "https://8kun.top/b/"}

	t.Run("入力したCookieを解除先のホストに保存する", func(t *testing.T) {
		// Arrange
		store := cookiestore.NewMemory()
		in := strings.NewReader("cf_clearance=abc\n\nignored=1\n")
		var out bytes.Buffer

		// Act
		err := promptCookies(context.Background(), in, &out, store, challenge)

		// Assert
		require.NoError(t, err)
		assert.Contains(t, out.String(), "https://8kun.top/b/")
		cookies, err := store.Cookies(context.Background(), "8kun.top")
		require.NoError(t, err)
		require.Len(t, cookies, 1)
		assert.Equal(t, "cf_clearance", cookies[0].Name)
	})

	t.Run("入力が空ならエラー", func(t *testing.T) {
		err := promptCookies(context.Background(), strings.NewReader("\n"), &bytes.Buffer{}, cookiestore.NewMemory(), challenge)
		assert.Error(t, err)
	})

	t.Run("キャンセルされたら中断する", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		reader, writer, err := os.Pipe()
		require.NoError(t, err)
		defer writer.Close()
		defer reader.Close()

		err = promptCookies(ctx, reader, &bytes.Buffer{}, cookiestore.NewMemory(), challenge)

		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestDescribeError(t *testing.T) {
	challenge := &fetch.ChallengeError{URL: "https://example.org/b/0.json", RemediationURL: "https://example.org/b/"}

	err := describeError(challenge)

	_, ok := fetch.IsChallenge(err)
	assert.True(t, ok)
	assert.Contains(t, err.Error(), "https://example.org/b/")
	assert.Contains(t, err.Error(), "cookies set")
}

func TestMediaFilename(t *testing.T) {
	tests := []struct {
		name string
		ref  model.MediaRef
		want string
	}{
		{"キーと拡張子", model.MediaRef{Key: "1700000000000", Extension: "PNG"}, "1700000000000.png"},
		{"構造化パス", model.MediaRef{Key: "ignored", Path: "/.media/abc123.webm"}, "abc123.webm"},
		{"使えない文字", model.MediaRef{Key: `a:b?c`, Extension: "jpg"}, "a：b？c.jpg"},
		{"拡張子なし", model.MediaRef{Key: "raw"}, "raw"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mediaFilename(tt.ref))
		})
	}
}
