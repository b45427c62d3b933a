// Package model は、各サイトから取得したデータを正規化した内部表現を定義します。
// すべての型は値型であり、共有される可変状態を持ちません。
package model

import (
	"strconv"
	"strings"
)

// Board は、サイト内の単一の板を表します。
type Board struct {
	Code        string `json:"code"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	IsSFW       bool   `json:"is_sfw"`
	ActiveUsers *int   `json:"active_users,omitempty"`
	ThreadCount *int   `json:"thread_count,omitempty"`
}

// Thread は、カタログやインデックスから抽出されたスレッドの情報を保持します。
// Subject と Body はサーバーから受け取ったままの HTML を含む文字列です。
type Thread struct {
	No         int64      `json:"no"`
	Subject    string     `json:"subject,omitempty"`
	Body       string     `json:"body,omitempty"`
	ReplyCount *int       `json:"reply_count,omitempty"`
	ImageCount *int       `json:"image_count,omitempty"`
	Media      []MediaRef `json:"media,omitempty"`
}

// Post は、スレッド内の単一のレスを表します。
// スレッドの最初のレスが OP です。
type Post struct {
	No        int64      `json:"no"`
	ThreadNo  int64      `json:"thread_no"`
	Timestamp int64      `json:"timestamp"`
	Author    string     `json:"author,omitempty"`
	Subject   string     `json:"subject,omitempty"`
	Body      string     `json:"body,omitempty"`
	Media     []MediaRef `json:"media,omitempty"`
}

// MediaRef は、投稿に添付されたファイルへの参照です。
// URL そのものは保持せず、必要になった時点で media パッケージが組み立てます。
type MediaRef struct {
	Key       string `json:"key"`
	Extension string `json:"extension"`
	// FPath は 8kun の新旧ファイルストア配置を区別するフラグです。nil は未指定。
	FPath    *int   `json:"fpath,omitempty"`
	Mime     string `json:"mime,omitempty"`
	Filename string `json:"filename,omitempty"`
	Spoiler  bool   `json:"spoiler,omitempty"`
	// Path と ThumbPath は、サーバーが明示的なファイルパスを返すエンジン (Lynxchan) でのみ設定されます。
	Path      string `json:"path,omitempty"`
	ThumbPath string `json:"thumb_path,omitempty"`
}

// HasStructuredPath は、サーバー提供のファイルパスを持つかどうかを返します。
func (m MediaRef) HasStructuredPath() bool {
	return m.Path != "" || m.ThumbPath != ""
}

// NormalizeBoardCode は、板コードの前後の空白とスラッシュを取り除きます。
func NormalizeBoardCode(code string) string {
	return strings.Trim(strings.TrimSpace(code), "/ \t\r\n")
}

// MergeKey は、マージ時の同一性判定に使うキーを返します。
func (t Thread) MergeKey() string {
	return strconv.FormatInt(t.No, 10)
}

// Fill は、t の空のフィールドを incoming の値で補ったコピーを返します。
// 既存の非空の値が常に優先されます。
func (t Thread) Fill(incoming Thread) Thread {
	merged := t
	if merged.Subject == "" {
		merged.Subject = incoming.Subject
	}
	if merged.Body == "" {
		merged.Body = incoming.Body
	}
	if merged.ReplyCount == nil {
		merged.ReplyCount = incoming.ReplyCount
	}
	if merged.ImageCount == nil {
		merged.ImageCount = incoming.ImageCount
	}
	if len(merged.Media) == 0 {
		merged.Media = incoming.Media
	}
	return merged
}

// IsEmpty は、番号以外に有用な情報を一切持たないスレッドかどうかを判定します。
func (t Thread) IsEmpty() bool {
	if strings.TrimSpace(t.Subject) != "" || strings.TrimSpace(t.Body) != "" {
		return false
	}
	for _, m := range t.Media {
		if m.Key != "" || m.HasStructuredPath() {
			return false
		}
	}
	return true
}

// MergeKey は板コードを返します。
func (b Board) MergeKey() string {
	return b.Code
}

// Fill は、b の空のフィールドを incoming の値で補ったコピーを返します。
// IsSFW はどちらかが true なら true になります。
func (b Board) Fill(incoming Board) Board {
	merged := b
	if merged.Title == "" {
		merged.Title = incoming.Title
	}
	if merged.Description == "" {
		merged.Description = incoming.Description
	}
	if !merged.IsSFW {
		merged.IsSFW = incoming.IsSFW
	}
	if merged.ActiveUsers == nil {
		merged.ActiveUsers = incoming.ActiveUsers
	}
	if merged.ThreadCount == nil {
		merged.ThreadCount = incoming.ThreadCount
	}
	return merged
}

// IntPtr は v へのポインタを返します。
func IntPtr(v int) *int {
	return &v
}
