package scrape

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"GoImageBoardReader/internal/site"
)

// Markup は、エンジンごとの HTML の目印となるパターンの集合です。
// 各パターンは最初の (空でない) キャプチャグループで値を返します。
type Markup struct {
	Name string
	// ThreadMarker はスレッドを囲むブロックの開始を示し、スレッド番号をキャプチャします。
	ThreadMarker *regexp.Regexp
	// ReplyMarker はレスのブロックの開始を示し、レス番号をキャプチャします。
	ReplyMarker *regexp.Regexp
	Subject     *regexp.Regexp
	Body        *regexp.Regexp
	Author      *regexp.Regexp
	Timestamp   *regexp.Regexp
	// File は添付ファイルへのリンクをキャプチャします。
	File *regexp.Regexp
	// Omitted は「N件のレスと M 件の画像を省略」の表記から件数をキャプチャします。
	Omitted *regexp.Regexp
	// Permalink はリンク走査で使うスレッドへのリンクで、スレッド番号をキャプチャします。
	Permalink *regexp.Regexp
	// StructuredFiles が true の場合、File のパスをそのまま MediaRef.Path として扱います。
	StructuredFiles bool
	// FirstExtraPage は、インデックスの2ページ目を表すページ番号です。
	FirstExtraPage int
	// TimeLayouts は Timestamp が Unix 秒でない場合に試す日時の書式です。
	TimeLayouts []string
}

var (
	vichanMarkup = Markup{
		Name:         "vichan",
		ThreadMarker: regexp.MustCompile(`(?i)<div[^>]*\bid="thread_(\d+)"`),
		ReplyMarker:  regexp.MustCompile(`(?i)<div[^>]*\bid="reply_(\d+)"`),
		Subject:      regexp.MustCompile(`(?is)<span class="subject"[^>]*>(.*?)</span>`),
		Body:         regexp.MustCompile(`(?is)<div class="body"[^>]*>(.*?)</div>`),
		Author:       regexp.MustCompile(`(?is)<span class="name"[^>]*>(.*?)</span>`),
		Timestamp:    regexp.MustCompile(`(?i)<time[^>]*datetime="([^"]+)"|data-utc="(\d+)"`),
		File:         regexp.MustCompile(`(?i)href="([^"]*/src/[^"/]+\.[a-z0-9]+)"`),
		Omitted:      regexp.MustCompile(`(?i)(\d+)\s+(?:posts?|replies|reply)(?:\s+and\s+(\d+)\s+(?:images?|files?))?\s+omitted`),
		Permalink:    regexp.MustCompile(`(?i)href="[^"]*/res/(\d+)\.html`),
		TimeLayouts:  []string{time.RFC3339},

		FirstExtraPage: 2,
	}

	fourChanMarkup = Markup{
		Name:         "4chan",
		ThreadMarker: regexp.MustCompile(`(?i)<div[^>]*\bclass="thread"[^>]*\bid="t(\d+)"|<div[^>]*\bid="t(\d+)"[^>]*\bclass="thread"`),
		ReplyMarker:  regexp.MustCompile(`(?i)<div[^>]*\bid="pc(\d+)"`),
		Subject:      regexp.MustCompile(`(?is)<span class="subject"[^>]*>(.*?)</span>`),
		Body:         regexp.MustCompile(`(?is)<blockquote class="postMessage"[^>]*>(.*?)</blockquote>`),
		Author:       regexp.MustCompile(`(?is)<span class="name"[^>]*>(.*?)</span>`),
		Timestamp:    regexp.MustCompile(`(?i)data-utc="(\d+)"`),
		File:         regexp.MustCompile(`(?i)href="((?:https?:)?//i\.4cdn\.org/[^"]+\.[a-z0-9]+)"`),
		Omitted:      regexp.MustCompile(`(?i)(\d+)\s+(?:posts?|replies|reply)(?:\s+and\s+(\d+)\s+(?:images?|image replies))?\s+omitted`),
		Permalink:    regexp.MustCompile(`(?i)href="[^"]*thread/(\d+)`),

		FirstExtraPage: 2,
	}

	kusabaMarkup = Markup{
		Name:         "kusaba",
		ThreadMarker: regexp.MustCompile(`(?i)<div[^>]*\bid="thread_?(\d+)[a-z_]*"`),
		ReplyMarker:  regexp.MustCompile(`(?i)<(?:div|td)[^>]*\bid="reply_?(\d+)"`),
		Subject:      regexp.MustCompile(`(?is)<span class="(?:filetitle|subject)"[^>]*>(.*?)</span>`),
		Body:         regexp.MustCompile(`(?is)<p class="message"[^>]*>(.*?)</p>|<blockquote[^>]*>(.*?)</blockquote>`),
		Author:       regexp.MustCompile(`(?is)<span class="postername"[^>]*>(.*?)</span>`),
		Timestamp:    regexp.MustCompile(`(?i)data-(?:timestamp|utc)="(\d+)"`),
		File:         regexp.MustCompile(`(?i)href="([^"]*/src/[^"/]+\.[a-z0-9]+)"`),
		Omitted:      regexp.MustCompile(`(?i)(\d+)\s+(?:posts?|replies|reply)(?:\s+and\s+(\d+)\s+(?:images?|files?))?\s+omitted`),
		Permalink:    regexp.MustCompile(`(?i)href="[^"]*/res/(\d+)\.html`),

		FirstExtraPage: 1,
	}

	lynxMarkup = Markup{
		Name:            "lynxchan",
		ThreadMarker:    regexp.MustCompile(`(?i)<div[^>]*\bclass="opCell[^"]*"[^>]*\bid="(\d+)"|<div[^>]*\bid="(\d+)"[^>]*\bclass="opCell`),
		ReplyMarker:     regexp.MustCompile(`(?i)<div[^>]*\bclass="postCell[^"]*"[^>]*\bid="(\d+)"|<div[^>]*\bid="(\d+)"[^>]*\bclass="postCell`),
		Subject:         regexp.MustCompile(`(?is)<span class="labelSubject"[^>]*>(.*?)</span>`),
		Body:            regexp.MustCompile(`(?is)<div class="divMessage"[^>]*>(.*?)</div>`),
		Author:          regexp.MustCompile(`(?is)<a class="linkName[^"]*"[^>]*>(.*?)</a>`),
		Timestamp:       regexp.MustCompile(`(?is)<span class="labelCreated"[^>]*>(.*?)</span>`),
		File:            regexp.MustCompile(`(?i)href="(/\.media/[^"]+)"`),
		Omitted:         regexp.MustCompile(`(?i)(\d+)\s+(?:posts?|replies)(?:\s+and\s+(\d+)\s+files?)?\s+omitted`),
		Permalink:       regexp.MustCompile(`(?i)href="[^"]*/res/(\d+)\.html`),
		StructuredFiles: true,
		TimeLayouts:     []string{"01/02/2006 (Mon) 15:04:05", time.RFC3339},

		FirstExtraPage: 2,
	}
)

// MarkupFor は、エンジン種別に対応する Markup を返します。
func MarkupFor(kind site.EngineKind) Markup {
	switch kind {
	case site.EngineFourChan:
		return fourChanMarkup
	case site.EngineSevenChan:
		return kusabaMarkup
	case site.EngineLynxchan:
		return lynxMarkup
	default:
		return vichanMarkup
	}
}

// firstGroup は、一致したキャプチャグループのうち最初の空でないものを返します。
func firstGroup(s string, loc []int) string {
	for i := 2; i+1 < len(loc); i += 2 {
		if loc[i] >= 0 && loc[i+1] > loc[i] {
			return s[loc[i]:loc[i+1]]
		}
	}
	return ""
}

// findFirst は、re の最初の一致の最初の空でないキャプチャグループを返します。
func findFirst(re *regexp.Regexp, s string) string {
	if re == nil {
		return ""
	}
	loc := re.FindStringSubmatchIndex(s)
	if loc == nil {
		return ""
	}
	return strings.TrimSpace(firstGroup(s, loc))
}

// parseTimestamp は Unix 秒 (ミリ秒も可) または layouts の書式の日時を Unix 秒に変換します。
// 解釈できない場合は 0 です。
func parseTimestamp(raw string, layouts []string) int64 {
	raw = strings.TrimSpace(tagPattern.ReplaceAllString(raw, ""))
	if raw == "" {
		return 0
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n > 1_000_000_000_000 {
			return n / 1000
		}
		return n
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Unix()
		}
	}
	return 0
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// StripTags は、HTML タグを取り除いたテキストを返します。
func StripTags(s string) string {
	s = strings.ReplaceAll(s, "<br>", " ")
	return strings.TrimSpace(tagPattern.ReplaceAllString(s, ""))
}
