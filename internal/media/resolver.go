// Package media は、投稿の添付ファイル参照からフルサイズ画像とサムネイルのURLを組み立てます。
// すべての関数は純粋関数であり、入力が不足している場合は空のURLを返します。
package media

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"GoImageBoardReader/internal/model"
	"GoImageBoardReader/internal/site"
)

const (
	// 7chan はメディアを常に正規ホストから配信する
	sevenChanCanonicalHost = "https://7chan.org"
	fourChanSpoilerURL     = "https://s.4cdn.org/image/spoiler.png"
	eightKunSpoilerFormat  = "https://8kun.top/static/assets/%s/spoiler.png"
)

// knownExtensions は、メディアとして扱う拡張子の一覧です。
var knownExtensions = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "gif": true, "webp": true, "bmp": true, "avif": true,
	"webm": true, "mp4": true, "mov": true,
	"mp3": true, "ogg": true, "wav": true, "m4a": true, "flac": true,
	"pdf": true, "swf": true,
}

// thumbPreservedExtensions は、サムネイルでも元の拡張子を維持する画像形式です。
var thumbPreservedExtensions = map[string]bool{
	"jpeg": true, "jpg": true, "png": true, "gif": true, "webp": true,
}

// Options は URL 解決時の表示設定です。
type Options struct {
	// PreferSpoiler が true の場合、スポイラー画像を常に要求します。
	PreferSpoiler bool
	// RevealSpoilers が true の場合、投稿者のスポイラー指定を無視して実画像を表示します。
	RevealSpoilers bool
}

// URLs は解決結果です。空文字列は「なし」を意味します。
type URLs struct {
	Full  string `json:"full,omitempty"`
	Thumb string `json:"thumb,omitempty"`
	// FullCandidates と ThumbCandidates は、取得を試行する順のURL一覧です (先頭が主URL)。
	FullCandidates  []string `json:"full_candidates,omitempty"`
	ThumbCandidates []string `json:"thumb_candidates,omitempty"`
}

// Empty は、フルサイズ・サムネイルのどちらも持たないかどうかを返します。
func (u URLs) Empty() bool {
	return u.Full == "" && u.Thumb == ""
}

// NormalizeExtension は、前後の空白と先頭のドット1つを取り除き、小文字化した拡張子を返します。
func NormalizeExtension(ext string) string {
	ext = strings.TrimSpace(ext)
	ext = strings.TrimPrefix(ext, ".")
	return strings.ToLower(strings.TrimSpace(ext))
}

// IsKnownExtension は、ext がメディアとして認識される拡張子かどうかを返します。
func IsKnownExtension(ext string) bool {
	return knownExtensions[NormalizeExtension(ext)]
}

// ThumbnailExtension は、画像形式ならその拡張子を、それ以外なら jpg を返します。
func ThumbnailExtension(ext string) string {
	ext = NormalizeExtension(ext)
	if thumbPreservedExtensions[ext] {
		return ext
	}
	return "jpg"
}

// Resolve は、サイト・板・添付ファイル参照からフルサイズとサムネイルのURLを組み立てます。
func Resolve(s site.Site, board string, ref model.MediaRef, opts Options) URLs {
	board = model.NormalizeBoardCode(board)
	spoiler := opts.PreferSpoiler || (ref.Spoiler && !opts.RevealSpoilers)

	if s.Engine == site.EngineLynxchan || ref.HasStructuredPath() {
		return withCandidates(resolveStructured(s, ref))
	}

	ext := NormalizeExtension(ref.Extension)
	key := strings.TrimSpace(ref.Key)
	if key == "" || !knownExtensions[ext] || board == "" {
		return URLs{}
	}

	var out URLs
	switch s.Engine {
	case site.EngineFourChan:
		out.Full = fmt.Sprintf("%s/%s/%s.%s", s.Media(), board, key, ext)
		out.Thumb = fmt.Sprintf("%s/%s/%ss.jpg", s.Media(), board, key)
		if spoiler {
			out.Thumb = fourChanSpoilerURL
		}
	case site.EngineSevenChan:
		out.Full = fmt.Sprintf("%s/%s/src/%s.%s", sevenChanCanonicalHost, board, key, ext)
		out.Thumb = fmt.Sprintf("%s/%s/thumb/%ss.%s", sevenChanCanonicalHost, board, key, ThumbnailExtension(ext))
	case site.EngineEightKun:
		if spoiler {
			spoilerURL := fmt.Sprintf(eightKunSpoilerFormat, board)
			return URLs{Full: spoilerURL, Thumb: spoilerURL}
		}
		fpath := 1
		if ref.FPath != nil {
			fpath = *ref.FPath
		}
		thumbExt := ThumbnailExtension(ext)
		if fpath == 1 {
			out.Full = fmt.Sprintf("%s/file_store/%s.%s", s.Media(), key, ext)
			out.Thumb = fmt.Sprintf("%s/file_store/thumb/%s.%s", s.Media(), key, thumbExt)
		} else {
			out.Full = fmt.Sprintf("%s/%s/src/%s.%s", s.Media(), board, key, ext)
			out.Thumb = fmt.Sprintf("%s/%s/thumb/%s.%s", s.Media(), board, key, thumbExt)
		}
	default:
		out.Full = fmt.Sprintf("%s/%s/src/%s.%s", s.Base(), board, key, ext)
		out.Thumb = fmt.Sprintf("%s/%s/thumb/%ss.jpg", s.Base(), board, key)
	}
	return withCandidates(out)
}

// resolveStructured は、サーバーが返したファイルパスをサイトのベースURLに対して解決します。
func resolveStructured(s site.Site, ref model.MediaRef) URLs {
	base, err := url.Parse(s.Base() + "/")
	if err != nil {
		return URLs{}
	}
	var out URLs
	if ref.Path != "" {
		out.Full = resolveAgainst(base, ref.Path)
	}
	if ref.ThumbPath != "" {
		out.Thumb = resolveAgainst(base, ref.ThumbPath)
	}
	return out
}

func resolveAgainst(base *url.URL, p string) string {
	ref, err := url.Parse(strings.TrimSpace(p))
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// KeyFromPath は、パスのファイル名部分からメディアキーと拡張子を取り出します。
func KeyFromPath(p string) (key, ext string) {
	name := path.Base(strings.TrimSpace(p))
	if name == "." || name == "/" {
		return "", ""
	}
	ext = path.Ext(name)
	return strings.TrimSuffix(name, ext), NormalizeExtension(ext)
}

func withCandidates(u URLs) URLs {
	if u.Full != "" {
		u.FullCandidates = MirrorCandidates(u.Full)
	}
	if u.Thumb != "" {
		u.ThumbCandidates = MirrorCandidates(u.Thumb)
	}
	return u
}
