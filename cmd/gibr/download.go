package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"GoImageBoardReader/internal/media"
	"GoImageBoardReader/internal/model"
)

// download は添付ファイルを候補URLの順に取得し、dir に保存したパスを返します。
// 同名のファイルが既にある場合は取得せずにそのパスを返します。
func (a *app) download(ctx context.Context, dir string, ref model.MediaRef, candidates []string) (string, error) {
	path := filepath.Join(dir, mediaFilename(ref))
	if _, err := os.Stat(path); err == nil {
		a.logger.Debug("保存済みのためスキップします", "path", path)
		return path, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	data, from, err := a.fetcher.FetchMedia(ctx, candidates)
	if err != nil {
		return "", err
	}
	// 書き込み途中のファイルが残らないよう、一時ファイルに書いてから置き換える
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("ファイル書き込み失敗: path=%s, size=%d bytes: %w", tmp, len(data), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", err
	}
	a.logger.Debug("メディアを保存しました", "url", from, "path", path)
	return path, nil
}

// mediaFilename は保存時のファイル名を返します。ファイル名に使えない文字は全角に置き換えます。
func mediaFilename(ref model.MediaRef) string {
	key, ext := ref.Key, media.NormalizeExtension(ref.Extension)
	if ref.Path != "" {
		key, ext = media.KeyFromPath(ref.Path)
	}
	name := sanitizeFilename(key)
	if ext != "" {
		name += "." + ext
	}
	return name
}

func sanitizeFilename(name string) string {
	r := strings.NewReplacer(
		"/", "／",
		"\\", "＼",
		":", "：",
		"*", "＊",
		"?", "？",
		"\"", "”",
		"<", "＜",
		">", "＞",
		"|", "｜",
	)
	return r.Replace(name)
}
