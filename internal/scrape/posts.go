package scrape

import (
	"strconv"

	"GoImageBoardReader/internal/model"
)

// ScrapePosts は、スレッドページの HTML から OP とレスを抽出します。
// threadNo のスレッドのブロックが見つからない場合は文書全体を1つのスレッドとして扱います。
func ScrapePosts(html string, m Markup, threadNo int64) []model.Post {
	window, from := threadWindow(html, m, threadNo)
	op, replies := splitReplies(window, from, m)

	posts := make([]model.Post, 0, len(replies)+1)
	if opPost, ok := scrapePost(op, m, threadNo, threadNo); ok {
		posts = append(posts, opPost)
	}
	seen := map[int64]bool{threadNo: true}
	for _, section := range replies {
		no := replyNumber(section, m)
		if no <= 0 || seen[no] {
			continue
		}
		seen[no] = true
		if p, ok := scrapePost(section, m, no, threadNo); ok {
			posts = append(posts, p)
		}
	}
	return posts
}

// threadWindow は、threadNo のスレッドのブロックと、その中で目印の直後の位置を返します。
func threadWindow(html string, m Markup, threadNo int64) (string, int) {
	if m.ThreadMarker == nil {
		return html, 0
	}
	locs := m.ThreadMarker.FindAllStringSubmatchIndex(html, -1)
	for i, loc := range locs {
		no, err := strconv.ParseInt(firstGroup(html, loc), 10, 64)
		if err != nil || no != threadNo {
			continue
		}
		end := len(html)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		return html[loc[0]:end], loc[1] - loc[0]
	}
	return html, 0
}

func replyNumber(section string, m Markup) int64 {
	loc := m.ReplyMarker.FindStringSubmatchIndex(section)
	if loc == nil {
		return 0
	}
	no, err := strconv.ParseInt(firstGroup(section, loc), 10, 64)
	if err != nil {
		return 0
	}
	return no
}

// scrapePost は区間から1件のレスを組み立てます。本文もファイルも無い OP 以外の区間は捨てます。
func scrapePost(section string, m Markup, no, threadNo int64) (model.Post, bool) {
	if no <= 0 {
		return model.Post{}, false
	}
	p := model.Post{
		No:        no,
		ThreadNo:  threadNo,
		Timestamp: parseTimestamp(findFirst(m.Timestamp, section), m.TimeLayouts),
		Author:    StripTags(findFirst(m.Author, section)),
		Subject:   findFirst(m.Subject, section),
		Body:      findFirst(m.Body, section),
		Media:     scrapeFiles(section, m),
	}
	if no != threadNo && p.Body == "" && len(p.Media) == 0 {
		return model.Post{}, false
	}
	return p, true
}
