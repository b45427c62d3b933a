package fetch

import (
	"context"
	"fmt"
	"strings"

	"GoImageBoardReader/internal/aggregate"
	"GoImageBoardReader/internal/decode"
	"GoImageBoardReader/internal/model"
	"GoImageBoardReader/internal/network"
	"GoImageBoardReader/internal/scrape"
	"GoImageBoardReader/internal/site"
)

// MinIndexBoards を下回る板数しか HTML の一覧から得られなかった場合、
// 一覧は不完全とみなし、JSON による補完を非同期で試みます。
const MinIndexBoards = 25

// EnrichFunc は、非同期の補完が完了したときに統合済みの板一覧を受け取ります。
type EnrichFunc func(boards []model.Board)

// FetchBoards は、サイトの板一覧を取得します。
//
// 8kun では板検索 API が使えない場合に HTML の一覧へフォールバックします。その結果が
// MinIndexBoards 未満なら部分的な一覧をすぐに返し、enrich が指定されていれば
// 板検索 API による補完をバックグラウンドで行って、統合した一覧を enrich に渡します。
// 補完は ctx がキャンセルされると中止されます。
func (f *Fetcher) FetchBoards(ctx context.Context, s site.Site, enrich EnrichFunc) ([]model.Board, error) {
	var (
		boards []model.Board
		err    error
	)
	switch s.Engine {
	case site.EngineEightKun:
		boards, err = f.fetchEightKunBoards(ctx, s, enrich)
	case site.EngineLynxchan:
		boards, err = f.fetchLynxBoards(ctx, s)
	default:
		boards, err = probe(ctx, f, "boards", remediationURL(s, ""), boardListCandidates(s), acceptBoards)
	}
	if err != nil {
		return nil, err
	}
	f.logger.Debug("板一覧を取得しました", "site", s.ID, "boards", len(boards))
	return boards, nil
}

// acceptBoards は、JSON または HTML の板一覧を変換します。
// HTML はテーブル形式を優先し、見つからなければメニューのリンクから板を拾います。
func acceptBoards(_ context.Context, c candidate, resp *network.Response) ([]model.Board, verdict) {
	if c.format == formatJSON {
		res := decode.DecodeBoardsBytes(resp.Body)
		if !res.Matched {
			return nil, rejected
		}
		return res.Records, accepted
	}
	html, err := scrape.DecodeHTML(resp.Body, resp.ContentType())
	if err != nil {
		return nil, rejected
	}
	boards := scrape.ScrapeBoardTable(html)
	if len(boards) == 0 {
		boards = scrape.ScrapeBoardLinks(html)
	}
	if len(boards) == 0 {
		return nil, rejected
	}
	return boards, accepted
}

func (f *Fetcher) fetchEightKunBoards(ctx context.Context, s site.Site, enrich EnrichFunc) ([]model.Board, error) {
	boards, err := f.searchEightKunBoards(ctx, s)
	if err == nil {
		return boards, nil
	}
	if _, ok := IsChallenge(err); ok {
		return nil, err
	}
	f.logger.Info("板検索APIから取得できなかったため、HTMLの一覧を使用します", "site", s.ID, "error", err)

	index, err := probe(ctx, f, "boards", remediationURL(s, ""), []candidate{htmlURL(eightKunIndexURL(s))}, acceptBoards)
	if err != nil {
		return nil, err
	}
	if len(index) >= MinIndexBoards || enrich == nil {
		return index, nil
	}

	f.logger.Info("HTMLの板一覧が少ないため、バックグラウンドで補完します", "site", s.ID, "boards", len(index))
	partial := append([]model.Board(nil), index...)
	go func() {
		api, err := f.searchEightKunBoards(ctx, s)
		if err != nil {
			f.logger.Warn("板一覧の補完に失敗しました", "site", s.ID, "error", err)
			return
		}
		enrich(MergeIndexWithAPI(partial, api))
	}()
	return index, nil
}

// searchEightKunBoards は、板検索 API の全ページを取得します。
// 後続ページの有無は omitted (未返却の板数) で判定します。
func (f *Fetcher) searchEightKunBoards(ctx context.Context, s site.Site) ([]model.Board, error) {
	remediation := remediationURL(s, "")
	tree, err := f.getJSON(ctx, eightKunSearchURL(s, 0), remediation)
	if err != nil {
		return nil, err
	}
	first, ok := decode.DecodeBoardPage(tree)
	if !ok {
		return nil, fmt.Errorf("板検索APIの応答が既知の形式に一致しません (%s)", eightKunSearchURL(s, 0))
	}
	if !hasMore(first.Omitted) {
		return aggregate.Merge(nil, first.Boards), nil
	}

	fetchPage := func(ctx context.Context, n int) ([]model.Board, bool, error) {
		tree, err := f.getJSON(ctx, eightKunSearchURL(s, n), remediation)
		if err != nil {
			return nil, true, err
		}
		page, ok := decode.DecodeBoardPage(tree)
		if !ok {
			return nil, false, nil
		}
		return page.Boards, hasMore(page.Omitted), nil
	}
	return aggregate.Collect(ctx, first.Boards, fetchPage, aggregate.Options{
		StartPage: 1,
		MaxPages:  f.maxPages,
		Logger:    f.logger,
	}), nil
}

func hasMore(omitted *int) bool {
	return omitted != nil && *omitted > 0
}

// fetchLynxBoards は、boards.js の JSON を取得し、pageCount に従って残りのページを並行して取得します。
// JSON が使えない場合は boards.js の HTML テーブルを使います。
func (f *Fetcher) fetchLynxBoards(ctx context.Context, s site.Site) ([]model.Board, error) {
	remediation := remediationURL(s, "")
	tree, err := f.getJSON(ctx, lynxBoardsURL(s, 1), remediation)
	if err != nil {
		if _, ok := IsChallenge(err); ok {
			return nil, err
		}
		f.logger.Debug("板一覧のJSONを取得できませんでした", "site", s.ID, "error", err)
	} else if first, ok := decode.DecodeBoardPage(tree); ok {
		boards := aggregate.Merge(nil, first.Boards)
		if first.PageCount == nil || *first.PageCount <= 1 {
			return boards, nil
		}
		last := min(*first.PageCount, f.maxPages)
		pages := make([]int, 0, last-1)
		for n := 2; n <= last; n++ {
			pages = append(pages, n)
		}
		fetchPage := func(ctx context.Context, n int) ([]model.Board, bool, error) {
			tree, err := f.getJSON(ctx, lynxBoardsURL(s, n), remediation)
			if err != nil {
				return nil, false, err
			}
			page, _ := decode.DecodeBoardPage(tree)
			return page.Boards, false, nil
		}
		return aggregate.CollectParallel(ctx, boards, pages, fetchPage, f.concurrency, f.logger), nil
	}

	return probe(ctx, f, "boards", remediation, []candidate{htmlURL(lynxBoardsHTMLURL(s))}, acceptBoards)
}

// placeholderTitles は、HTML の一覧で実際の値の代わりに表示される文字列です。
var placeholderTitles = map[string]bool{
	"": true, "-": true, "n/a": true, "none": true, "null": true, "untitled": true, "no title": true,
}

func isPlaceholder(value, code string) bool {
	v := strings.ToLower(strings.TrimSpace(value))
	return placeholderTitles[v] || v == strings.ToLower(code) || v == "/"+strings.ToLower(code)+"/"
}

// MergeIndexWithAPI は、HTML の一覧と API の一覧を統合します。
// 板のタイトルと説明は、HTML 側の値が空でもプレースホルダーでもない場合に限り HTML 側を採用し、
// それ以外は API 側の値を使います。API にしかない板は後ろに追加されます。
func MergeIndexWithAPI(index, api []model.Board) []model.Board {
	byCode := make(map[string]model.Board, len(api))
	for _, b := range api {
		if _, exists := byCode[b.Code]; !exists {
			byCode[b.Code] = b
		}
	}

	merged := make([]model.Board, 0, len(index))
	for _, b := range index {
		if a, ok := byCode[b.Code]; ok {
			if isPlaceholder(b.Title, b.Code) {
				b.Title = a.Title
			}
			if isPlaceholder(b.Description, b.Code) {
				b.Description = a.Description
			}
			b = b.Fill(a)
		}
		merged = append(merged, b)
	}
	return aggregate.Merge(merged, api)
}
