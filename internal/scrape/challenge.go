// Package scrape は、JSON API が使えない場合に HTML からスレッド・レス・板の情報を抽出します。
//
// HTML をデータとして扱う前に、必ず DetectChallenge で Bot 対策のチャレンジページでないかを確認してください。
package scrape

import (
	"bytes"
)

// Fingerprint は、チャレンジページの特徴です。
// <title> 要素の文字列に Title が含まれ、かつ本文に Markers が全て含まれる場合に一致します (大文字小文字は区別しません)。
// 投稿本文に同じ語句が書かれていても、<title> はエスケープされるため一致しません。
type Fingerprint struct {
	Title   string
	Markers []string
}

// Fingerprints は、既知のチャレンジページの特徴です。
// チャレンジ提供元のマークアップ変更に合わせて追加・更新してください。
var Fingerprints = []Fingerprint{
	{Title: "just a moment", Markers: []string{"/cdn-cgi/challenge-platform"}},
	{Title: "just a moment", Markers: []string{"cf_chl_opt"}},
	{Title: "just a moment", Markers: []string{"cf-browser-verification"}},
	{Title: "attention required", Markers: []string{"cloudflare"}},
	{Title: "checking your browser", Markers: []string{"cloudflare"}},
	{Title: "ddos-guard", Markers: []string{"<script"}},
}

// DetectChallenge は、body がチャレンジページであれば true を返します。
func DetectChallenge(body []byte) bool {
	if len(body) == 0 {
		return false
	}
	lower := bytes.ToLower(body)
	title := titleText(lower)
	if title == nil {
		return false
	}
	for _, fp := range Fingerprints {
		if fp.matches(title, lower) {
			return true
		}
	}
	return false
}

func (fp Fingerprint) matches(title, lower []byte) bool {
	if fp.Title == "" || !bytes.Contains(title, []byte(fp.Title)) {
		return false
	}
	for _, marker := range fp.Markers {
		if !bytes.Contains(lower, []byte(marker)) {
			return false
		}
	}
	return true
}

// titleText は、最初の <title> 要素の中身を返します。要素が無ければ nil です。
func titleText(lower []byte) []byte {
	start := bytes.Index(lower, []byte("<title"))
	if start < 0 {
		return nil
	}
	rest := lower[start+len("<title"):]
	// <titlefoo> のような別の要素は除外する
	if len(rest) == 0 || (rest[0] != '>' && rest[0] != ' ' && rest[0] != '\t' && rest[0] != '\n' && rest[0] != '\r') {
		return nil
	}
	open := bytes.IndexByte(rest, '>')
	if open < 0 {
		return nil
	}
	rest = rest[open+1:]
	if end := bytes.Index(rest, []byte("</title")); end >= 0 {
		return rest[:end]
	}
	return rest
}
