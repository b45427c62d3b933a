package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// parseLevel は設定ファイルのログレベルを slog.Level に変換します。
func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupLogger はログ出力先を設定したロガーを返します。
// enableFile が true の場合、console に加えてファイルにも出力します。
// 戻り値の io.Closer は、ファイルを開いた場合にそのファイルを閉じます。
func setupLogger(console io.Writer, level string, enableFile bool, path string) (*slog.Logger, io.Closer, error) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if !enableFile {
		return slog.New(slog.NewTextHandler(console, opts)), nopCloser{}, nil
	}

	if path == "" {
		// デフォルトは日付形式
		path = fmt.Sprintf("gibr_%s.log", time.Now().Format("2006-01-02"))
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("ログファイル '%s' を開けませんでした: %w", path, err)
	}
	// 標準エラー出力とファイルの両方に出力
	logger := slog.New(slog.NewTextHandler(io.MultiWriter(console, f), opts))
	logger.Debug("ログ出力をファイルに開始しました", "path", path)
	return logger, f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
