package scrape

import (
	"strconv"
	"strings"

	"GoImageBoardReader/internal/aggregate"
	"GoImageBoardReader/internal/media"
	"GoImageBoardReader/internal/model"
)

// LinkScanWindow は、リンク走査でスレッドへのリンクの後ろを検索するバイト数です。
const LinkScanWindow = 400

// ScrapeThreads は、板のインデックス (またはカタログ) の HTML からスレッド一覧を抽出します。
//
// まずスレッドのブロックを示す目印で文書を区切り、OP の範囲 (最初のレスの目印まで) から
// 件名・本文・ファイルを取り出します。目印が見つからない、または1件も取り出せない場合に限り、
// スレッドへのリンクを走査し、その直後の一定範囲から情報を探します。
func ScrapeThreads(html string, m Markup) []model.Thread {
	if threads := scrapeStructural(html, m); len(threads) > 0 {
		return threads
	}
	return scrapeLinks(html, m)
}

func scrapeStructural(html string, m Markup) []model.Thread {
	if m.ThreadMarker == nil {
		return nil
	}
	locs := m.ThreadMarker.FindAllStringSubmatchIndex(html, -1)
	var threads []model.Thread
	for i, loc := range locs {
		no, err := strconv.ParseInt(firstGroup(html, loc), 10, 64)
		if err != nil || no <= 0 {
			continue
		}
		end := len(html)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		window := html[loc[0]:end]
		op, replies := splitReplies(window, loc[1]-loc[0], m)

		t := model.Thread{
			No:      no,
			Subject: findFirst(m.Subject, op),
			Body:    findFirst(m.Body, op),
			Media:   scrapeFiles(op, m),
		}
		t.ReplyCount, t.ImageCount = threadCounts(window, replies, m)
		threads = append(threads, t)
	}
	return aggregate.Merge(nil, threads)
}

// splitReplies は、スレッドの範囲を OP 部分と各レス部分に分けます。
// from は、スレッドの目印自体を読み飛ばすための開始位置です。
func splitReplies(window string, from int, m Markup) (op string, replies []string) {
	if m.ReplyMarker == nil {
		return window, nil
	}
	locs := m.ReplyMarker.FindAllStringIndex(window[from:], -1)
	if len(locs) == 0 {
		return window, nil
	}
	op = window[:from+locs[0][0]]
	for i, loc := range locs {
		end := len(window)
		if i+1 < len(locs) {
			end = from + locs[i+1][0]
		}
		replies = append(replies, window[from+loc[0]:end])
	}
	return op, replies
}

// threadCounts は、表示されているレス数と省略表記の件数からレス数・画像数を求めます。
// どちらも得られない場合は nil です。
func threadCounts(window string, replies []string, m Markup) (reply, images *int) {
	omittedPosts, omittedImages := 0, 0
	hasOmitted := false
	if m.Omitted != nil {
		if sm := m.Omitted.FindStringSubmatch(window); sm != nil {
			hasOmitted = true
			omittedPosts, _ = strconv.Atoi(sm[1])
			if len(sm) > 2 && sm[2] != "" {
				omittedImages, _ = strconv.Atoi(sm[2])
			}
		}
	}
	if !hasOmitted && len(replies) == 0 {
		return nil, nil
	}
	visibleImages := 0
	for _, r := range replies {
		if len(scrapeFiles(r, m)) > 0 {
			visibleImages++
		}
	}
	return model.IntPtr(omittedPosts + len(replies)), model.IntPtr(omittedImages + visibleImages)
}

func scrapeLinks(html string, m Markup) []model.Thread {
	if m.Permalink == nil {
		return nil
	}
	seen := make(map[int64]bool)
	var threads []model.Thread
	for _, loc := range m.Permalink.FindAllStringSubmatchIndex(html, -1) {
		no, err := strconv.ParseInt(firstGroup(html, loc), 10, 64)
		if err != nil || no <= 0 || seen[no] {
			continue
		}
		seen[no] = true

		end := min(loc[1]+LinkScanWindow, len(html))
		window := html[loc[1]:end]
		threads = append(threads, model.Thread{
			No:      no,
			Subject: findFirst(m.Subject, window),
			Body:    findFirst(m.Body, window),
			Media:   scrapeFiles(window, m),
		})
	}
	return threads
}

// scrapeFiles は、区間内の添付ファイルへのリンクを MediaRef に変換します。
func scrapeFiles(section string, m Markup) []model.MediaRef {
	if m.File == nil {
		return nil
	}
	seen := make(map[string]bool)
	var refs []model.MediaRef
	for _, sm := range m.File.FindAllStringSubmatch(section, -1) {
		href := strings.TrimSpace(sm[1])
		if href == "" || seen[href] {
			continue
		}
		seen[href] = true

		key, ext := media.KeyFromPath(href)
		if m.StructuredFiles {
			refs = append(refs, model.MediaRef{Key: key, Extension: ext, Path: href})
			continue
		}
		if key == "" || !media.IsKnownExtension(ext) {
			continue
		}
		refs = append(refs, model.MediaRef{Key: key, Extension: ext})
	}
	return refs
}
