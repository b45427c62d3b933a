package scrape

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// MaxPages は、インデックスのページ番号の上限です。
const MaxPages = 15

// PageStyle は、インデックスの追加ページの URL の形です。
type PageStyle int

const (
	PageStylePath  PageStyle = iota // /{board}/{n}.html
	PageStyleQuery                  // /{board}/?page={n}
)

// PageSet は、インデックス HTML から見つかったページ送りの情報です。
type PageSet struct {
	// Max は見つかった最大のページ番号 (MaxPages 以下) です。見つからない場合は 0 です。
	Max   int
	Style PageStyle
}

var (
	relativePagePattern = regexp.MustCompile(`(?i)href=["']?(?:\./)?(\d+)\.html["'\s>]`)
	queryPagePattern    = regexp.MustCompile(`(?i)[?&](?:amp;)?page=(\d+)`)
)

// DiscoverPages は、板のインデックス HTML から ページ番号へのリンクを探します。
// 板ごとの絶対パス、相対パス、クエリ文字列の3つの形を認識し、最大のページ番号を返します。
func DiscoverPages(html, board string) PageSet {
	set := PageSet{}
	consider := func(raw string, style PageStyle) {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= set.Max {
			return
		}
		set.Max = min(n, MaxPages)
		set.Style = style
	}

	if board != "" {
		absolute := regexp.MustCompile(`(?i)/` + regexp.QuoteMeta(board) + `/(\d+)\.html`)
		for _, sm := range absolute.FindAllStringSubmatch(html, -1) {
			consider(sm[1], PageStylePath)
		}
	}
	for _, sm := range relativePagePattern.FindAllStringSubmatch(html, -1) {
		consider(sm[1], PageStylePath)
	}
	for _, sm := range queryPagePattern.FindAllStringSubmatch(html, -1) {
		consider(sm[1], PageStyleQuery)
	}
	return set
}

// Pages は、firstExtra から Max までのページ番号を返します。
func (p PageSet) Pages(firstExtra int) []int {
	var pages []int
	for n := max(firstExtra, 1); n <= p.Max; n++ {
		pages = append(pages, n)
	}
	return pages
}

// URL は、板の URL (末尾スラッシュ付き) に対する n ページ目の URL を返します。
func (p PageSet) URL(boardURL string, n int) string {
	boardURL = strings.TrimRight(boardURL, "/") + "/"
	if p.Style == PageStyleQuery {
		q := url.Values{}
		q.Set("page", strconv.Itoa(n))
		return boardURL + "?" + q.Encode()
	}
	return fmt.Sprintf("%s%d.html", boardURL, n)
}
