package scrape

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"GoImageBoardReader/internal/aggregate"
	"GoImageBoardReader/internal/model"
)

var (
	boardCodePattern = regexp.MustCompile(`^/?([A-Za-z0-9_+-]{1,40})/?`)
	boardHrefPattern = regexp.MustCompile(`^(?:https?://[^/]+)?/([A-Za-z0-9_+-]{1,40})/(?:index\.html|catalog\.html)?$`)
	nonDigitPattern  = regexp.MustCompile(`[^0-9]`)
)

// boardLinkIgnore は、板へのリンクと同じ形をしているが板ではないパスです。
var boardLinkIgnore = map[string]bool{
	"static": true, "js": true, "css": true, "stylesheets": true, "img": true,
	"images": true, "src": true, "thumb": true, "res": true, "mod": true,
}

// boardColumns は、板一覧テーブルの各列の位置です。-1 は列が無いことを示します。
type boardColumns struct {
	code, title, active, tags, threads int
}

func noColumns() boardColumns {
	return boardColumns{code: -1, title: -1, active: -1, tags: -1, threads: -1}
}

// detectColumns は、見出しのテキストから列の位置を推定します。
// 板コードの列が見つからない場合は false を返します。
func detectColumns(headers []string) (boardColumns, bool) {
	cols := noColumns()
	for i, h := range headers {
		h = strings.ToLower(strings.TrimSpace(h))
		switch {
		case h == "":
		case cols.code < 0 && (strings.Contains(h, "board") || strings.Contains(h, "uri")):
			cols.code = i
		case cols.title < 0 && (strings.Contains(h, "title") || strings.Contains(h, "name")):
			cols.title = i
		case h == "pph" || strings.Contains(h, "per hour"):
			// 時間あたりの投稿数は利用者数でもスレッド数でもない
		case cols.active < 0 && (strings.Contains(h, "active") || strings.Contains(h, "isp") ||
			strings.Contains(h, "users")):
			cols.active = i
		case cols.tags < 0 && strings.Contains(h, "tag"):
			cols.tags = i
		case cols.threads < 0 && (strings.Contains(h, "thread") || strings.Contains(h, "posts")):
			cols.threads = i
		}
	}
	return cols, cols.code >= 0
}

// ScrapeBoardTable は、板一覧ページの <tr>/<td> から板を抽出します。
// 見出し行から列の並びを判定し、判定できない場合は位置から推定します。
func ScrapeBoardTable(html string) []model.Board {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var boards []model.Board
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		cols, found := noColumns(), false
		table.Find("tr").Each(func(_ int, row *goquery.Selection) {
			if headers := row.Find("th"); headers.Length() > 0 {
				cols, found = detectColumns(headers.Map(func(_ int, s *goquery.Selection) string { return s.Text() }))
				return
			}
			cells := row.Find("td")
			if cells.Length() == 0 {
				return
			}
			if !found {
				// <th> を使わないテーブルでは最初の行が見出しの場合がある
				texts := cells.Map(func(_ int, s *goquery.Selection) string { return s.Text() })
				if c, ok := detectColumns(texts); ok && !looksLikeBoardRow(cells) {
					cols, found = c, true
					return
				}
			}
			if b, ok := boardFromRow(cells, cols, found); ok {
				boards = append(boards, b)
			}
		})
	})
	return aggregate.Merge(nil, boards)
}

// looksLikeBoardRow は、行の最初のセルが板へのリンクを含むかどうかを返します。
func looksLikeBoardRow(cells *goquery.Selection) bool {
	href, ok := cells.First().Find("a[href]").Attr("href")
	return ok && boardHrefPattern.MatchString(strings.TrimSpace(href))
}

func boardFromRow(cells *goquery.Selection, cols boardColumns, headerFound bool) (model.Board, bool) {
	if !headerFound {
		cols = positionalColumns(cells)
	}
	cell := func(i int) *goquery.Selection {
		if i < 0 || i >= cells.Length() {
			return nil
		}
		return cells.Eq(i)
	}
	text := func(i int) string {
		if c := cell(i); c != nil {
			return strings.TrimSpace(c.Text())
		}
		return ""
	}

	code := ""
	if c := cell(cols.code); c != nil {
		if href, ok := c.Find("a[href]").Attr("href"); ok {
			if sm := boardHrefPattern.FindStringSubmatch(strings.TrimSpace(href)); sm != nil {
				code = sm[1]
			}
		}
		if code == "" {
			if sm := boardCodePattern.FindStringSubmatch(text(cols.code)); sm != nil {
				code = sm[1]
			}
		}
	}
	code = model.NormalizeBoardCode(code)
	if code == "" {
		return model.Board{}, false
	}

	b := model.Board{
		Code:        code,
		Title:       text(cols.title),
		ActiveUsers: parseCount(text(cols.active)),
		ThreadCount: parseCount(text(cols.threads)),
	}
	if b.Title == "" {
		// "/g/ - Technology" のように板コードと名前が同じセルにある場合
		if _, rest, ok := strings.Cut(text(cols.code), " - "); ok {
			b.Title = strings.TrimSpace(rest)
		}
	}
	if tags := strings.Join(strings.Fields(text(cols.tags)), " "); tags != "" {
		b.Description = tags
	}
	return b, true
}

// positionalColumns は、見出しが無いテーブルの列を位置から推定します。
// 1列目を板コード、2列目を名前とし、以降で最初に数値だけのセルを利用者数とみなします。
func positionalColumns(cells *goquery.Selection) boardColumns {
	cols := noColumns()
	cols.code = 0
	if cells.Length() > 1 {
		cols.title = 1
	}
	for i := 2; i < cells.Length(); i++ {
		t := strings.TrimSpace(cells.Eq(i).Text())
		if isNumeric(t) {
			cols.active = i
			break
		}
	}
	return cols
}

func isNumeric(s string) bool {
	s = strings.ReplaceAll(s, ",", "")
	return s != "" && nonDigitPattern.FindStringIndex(s) == nil
}

// parseCount は、数字以外の文字を取り除いて整数として解釈します。
func parseCount(s string) *int {
	digits := nonDigitPattern.ReplaceAllString(s, "")
	if digits == "" {
		return nil
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return nil
	}
	return &n
}

// ScrapeBoardLinks は、ナビゲーションの href="/code/" 形式のリンクから板を抽出します。
// 板一覧テーブルが無いサイト向けの代替手段です。
func ScrapeBoardLinks(html string) []model.Board {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	var boards []model.Board
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		sm := boardHrefPattern.FindStringSubmatch(strings.TrimSpace(href))
		if sm == nil || boardLinkIgnore[strings.ToLower(sm[1])] {
			return
		}
		code := model.NormalizeBoardCode(sm[1])
		title, _ := a.Attr("title")
		if title == "" {
			title = strings.TrimSpace(a.Text())
		}
		title = strings.TrimSpace(strings.TrimPrefix(title, "/"+code+"/"))
		title = strings.TrimSpace(strings.TrimPrefix(title, "-"))
		if title == code {
			title = ""
		}
		boards = append(boards, model.Board{Code: code, Title: title})
	})
	return aggregate.Merge(nil, boards)
}
