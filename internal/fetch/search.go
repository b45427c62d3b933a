package fetch

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"
	"sync"

	"GoImageBoardReader/internal/model"
	"GoImageBoardReader/internal/scrape"
	"GoImageBoardReader/internal/site"
)

// Query は、複数の板のスレッド一覧を横断する検索条件です。
type Query struct {
	Boards []string
	// IncludeAnyText が空でない場合、いずれかを件名または本文に含むスレッドのみが対象です。
	IncludeAnyText []string
	// ExcludeKeywords のいずれかを含むスレッドは除外されます。
	ExcludeKeywords   []string
	MinimumMediaCount int
}

// Hit は検索に一致したスレッドです。
type Hit struct {
	Board  string       `json:"board"`
	Thread model.Thread `json:"thread"`
}

// Search は、q.Boards の各板のスレッド一覧を並行して取得し、条件に一致するスレッドを返します。
// 結果は板コード、スレッド番号の順に並べ替えられます。
// 一部の板の取得に失敗しても、1つでも成功していればエラーにはなりません。
func (f *Fetcher) Search(ctx context.Context, s site.Site, q Query) ([]Hit, error) {
	boards := normalizeBoards(q.Boards)
	if len(boards) == 0 {
		return nil, errors.New("検索対象の板が指定されていません")
	}

	var (
		mu        sync.Mutex
		hits      []Hit
		errs      []error
		wg        sync.WaitGroup
		semaphore = make(chan struct{}, f.concurrency)
	)

	for _, board := range boards {
		wg.Add(1)
		go func(board string) {
			defer wg.Done()
			select {
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }()
			case <-ctx.Done():
				mu.Lock()
				errs = append(errs, ctx.Err())
				mu.Unlock()
				return
			}

			threads, err := f.FetchCatalog(ctx, s, board)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				f.logger.Warn("検索対象の板の取得に失敗しました", "board", board, "error", err)
				errs = append(errs, fmt.Errorf("/%s/: %w", board, err))
				return
			}
			for _, t := range threads {
				if q.Matches(t) {
					hits = append(hits, Hit{Board: board, Thread: t})
				}
			}
		}(board)
	}
	wg.Wait()

	if len(errs) == len(boards) {
		return nil, errors.Join(errs...)
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Board != hits[j].Board {
			return hits[i].Board < hits[j].Board
		}
		return hits[i].Thread.No < hits[j].Thread.No
	})
	return hits, nil
}

// Matches は、スレッドが検索条件に一致するかどうかを判定します。
// 文字列の比較は HTML タグを除いたテキストに対して大文字小文字を区別せずに行います。
func (q Query) Matches(t model.Thread) bool {
	text := strings.ToLower(html.UnescapeString(scrape.StripTags(t.Subject + " " + t.Body)))

	if len(q.IncludeAnyText) > 0 && !containsAny(text, q.IncludeAnyText) {
		return false
	}
	if containsAny(text, q.ExcludeKeywords) {
		return false
	}
	return mediaCount(t) >= q.MinimumMediaCount
}

func containsAny(s string, substrings []string) bool {
	for _, sub := range substrings {
		sub = strings.ToLower(strings.TrimSpace(sub))
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// mediaCount は、OP の添付ファイル数とレスの画像数の合計です。
func mediaCount(t model.Thread) int {
	n := len(t.Media)
	if t.ImageCount != nil {
		n += *t.ImageCount
	}
	return n
}

func normalizeBoards(boards []string) []string {
	seen := make(map[string]bool, len(boards))
	var out []string
	for _, b := range boards {
		b = model.NormalizeBoardCode(b)
		if b == "" || seen[b] {
			continue
		}
		seen[b] = true
		out = append(out, b)
	}
	return out
}
