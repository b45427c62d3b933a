// Package fetch は、サイトごとの取得先候補を順に試し、レスポンスを正規化されたレコードに変換します。
//
// 候補は JSON を優先し、最後に HTML のスクレイピングを試します。
// 全ての候補に失敗した場合、エラーは ErrNotFound、*ChallengeError、*ExhaustedError の
// いずれかとして返され、呼び出し側はそれぞれ異なる回復処理を行えます。
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"GoImageBoardReader/internal/aggregate"
	"GoImageBoardReader/internal/decode"
	"GoImageBoardReader/internal/media"
	"GoImageBoardReader/internal/model"
	"GoImageBoardReader/internal/network"
	"GoImageBoardReader/internal/scrape"
	"GoImageBoardReader/internal/site"
)

// DefaultConcurrency は、並行取得の同時実行数の既定値です。
const DefaultConcurrency = 4

// Getter は HTTP GET を行います。*network.Client が実装します。
type Getter interface {
	Get(ctx context.Context, url string) (*network.Response, error)
}

// Option は Fetcher の追加設定です。
type Option func(*Fetcher)

// WithLogger はロガーを設定します。
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = logger }
}

// WithMaxPages は、インデックスや板一覧の追加ページ取得の上限を設定します。
func WithMaxPages(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxPages = n
		}
	}
}

// WithConcurrency は、並行取得の同時実行数を設定します。
func WithConcurrency(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

// WithMediaOptions は、メディアURL解決時のスポイラーの扱いを設定します。
func WithMediaOptions(opts media.Options) Option {
	return func(f *Fetcher) { f.mediaOpts = opts }
}

// Fetcher は、サイトから板一覧・スレッド一覧・スレッドを取得します。
type Fetcher struct {
	client      Getter
	logger      *slog.Logger
	maxPages    int
	concurrency int
	mediaOpts   media.Options
}

// New は Fetcher を生成します。
func New(client Getter, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:      client,
		logger:      slog.Default(),
		maxPages:    aggregate.DefaultMaxPages,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchCatalog は、板のスレッド一覧を取得します。
// HTML から取得した場合は、インデックスの後続ページも取得して統合します。
func (f *Fetcher) FetchCatalog(ctx context.Context, s site.Site, board string) ([]model.Thread, error) {
	board = model.NormalizeBoardCode(board)
	if board == "" {
		return nil, errors.New("板コードが指定されていません")
	}
	profile := site.ProfileFor(s.Engine)
	markup := scrape.MarkupFor(s.Engine)

	accept := func(ctx context.Context, c candidate, resp *network.Response) ([]model.Thread, verdict) {
		if c.format == formatJSON {
			res := decode.DecodeCatalogBytes(resp.Body)
			if !res.Matched {
				return nil, rejected
			}
			if profile.Usefulness != nil && !profile.Usefulness(res.Records) {
				return nil, useless
			}
			return res.Records, accepted
		}
		html, err := scrape.DecodeHTML(resp.Body, resp.ContentType())
		if err != nil {
			return nil, rejected
		}
		threads := scrape.ScrapeThreads(html, markup)
		if len(threads) == 0 {
			return nil, rejected
		}
		return f.collectIndexPages(ctx, s, board, html, markup, threads), accepted
	}

	threads, err := probe(ctx, f, "catalog", remediationURL(s, board), catalogCandidates(s, board), accept)
	if err != nil {
		return nil, err
	}
	f.logger.Debug("スレッド一覧を取得しました", "site", s.ID, "board", board, "threads", len(threads))
	return threads, nil
}

// collectIndexPages は、インデックス HTML からページ送りを検出し、後続ページのスレッドを統合します。
// 後続ページの取得失敗は結果に含まれないだけで、エラーにはなりません。
func (f *Fetcher) collectIndexPages(ctx context.Context, s site.Site, board, html string, markup scrape.Markup, first []model.Thread) []model.Thread {
	set := scrape.DiscoverPages(html, board)
	pages := set.Pages(markup.FirstExtraPage)
	if len(pages) == 0 {
		return first
	}
	last := min(set.Max, f.maxPages)
	boardURL := s.BoardURL(board)

	fetchPage := func(ctx context.Context, n int) ([]model.Thread, bool, error) {
		more := n < last
		pageURL := set.URL(boardURL, n)
		resp, err := f.client.Get(ctx, pageURL)
		if err != nil {
			return nil, more, err
		}
		if scrape.DetectChallenge(resp.Body) {
			return nil, more, &ChallengeError{URL: pageURL, RemediationURL: remediationURL(s, board)}
		}
		pageHTML, err := scrape.DecodeHTML(resp.Body, resp.ContentType())
		if err != nil {
			return nil, more, err
		}
		return scrape.ScrapeThreads(pageHTML, markup), more, nil
	}

	f.logger.Debug("インデックスの後続ページを取得します", "board", board, "from", pages[0], "to", last)
	return aggregate.Collect(ctx, first, fetchPage, aggregate.Options{
		StartPage: pages[0],
		MaxPages:  last,
		Logger:    f.logger,
	})
}

// FetchThread は、スレッドの全レスを取得します。先頭が OP です。
func (f *Fetcher) FetchThread(ctx context.Context, s site.Site, board string, no int64) ([]model.Post, error) {
	board = model.NormalizeBoardCode(board)
	if board == "" || no <= 0 {
		return nil, fmt.Errorf("スレッドの指定が不正です (board=%q, no=%d)", board, no)
	}
	markup := scrape.MarkupFor(s.Engine)

	accept := func(_ context.Context, c candidate, resp *network.Response) ([]model.Post, verdict) {
		if c.format == formatJSON {
			res := decode.DecodeThreadBytes(resp.Body, no)
			if !res.Matched {
				return nil, rejected
			}
			return res.Records, accepted
		}
		html, err := scrape.DecodeHTML(resp.Body, resp.ContentType())
		if err != nil {
			return nil, rejected
		}
		posts := scrape.ScrapePosts(html, markup, no)
		if len(posts) == 0 || (len(posts) == 1 && SummarizeThread(posts).IsEmpty()) {
			return nil, rejected
		}
		return posts, accepted
	}

	return probe(ctx, f, "thread", remediationURL(s, board), threadCandidates(s, board, no), accept)
}

// ResolveMedia は、添付ファイルのフルサイズ画像とサムネイルのURLを返します。
func (f *Fetcher) ResolveMedia(s site.Site, board string, ref model.MediaRef) media.URLs {
	return media.Resolve(s, model.NormalizeBoardCode(board), ref, f.mediaOpts)
}

// FetchMedia は、候補URLを順に試して最初に取得できた内容とそのURLを返します。
func (f *Fetcher) FetchMedia(ctx context.Context, candidates []string) ([]byte, string, error) {
	get := func(ctx context.Context, rawURL string) ([]byte, error) {
		resp, err := f.client.Get(ctx, rawURL)
		if err != nil {
			f.logger.Debug("メディアの取得に失敗しました", "url", rawURL, "error", err)
			return nil, err
		}
		return resp.Body, nil
	}
	return media.FetchFirst(ctx, get, candidates)
}
