// Package aggregate は、ページ分割された取得結果を重複なく1つの一覧にまとめます。
//
// マージはキー (スレッド番号や板コード) 単位で行い、出力順は最初に現れた位置を保ちます。
// 同じキーが再び現れた場合は「既存の非空の値を優先し、空なら新しい値を採用する」
// 規則でフィールドごとに統合します。
package aggregate

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// DefaultMaxPages は、追加ページ取得の上限です。
const DefaultMaxPages = 15

// Item は、キーで同一性を判定し、フィールド単位で統合できる要素です。
type Item[T any] interface {
	MergeKey() string
	Fill(incoming T) T
}

// Merge は dst の後ろに src を統合した新しいスライスを返します。
// dst 自体が重複を含む場合もここで統合されます。
func Merge[T Item[T]](dst, src []T) []T {
	out := make([]T, 0, len(dst)+len(src))
	index := make(map[string]int, len(dst)+len(src))
	add := func(items []T) {
		for _, it := range items {
			key := it.MergeKey()
			if i, ok := index[key]; ok {
				out[i] = out[i].Fill(it)
				continue
			}
			index[key] = len(out)
			out = append(out, it)
		}
	}
	add(dst)
	add(src)
	return out
}

// PageFunc は、指定ページを取得します。more が false の場合、それ以降のページは存在しません。
type PageFunc[T any] func(ctx context.Context, page int) (items []T, more bool, err error)

// Options は Collect の動作を指定します。
type Options struct {
	// StartPage は最初に取得する追加ページ番号です (既定値 2)。
	StartPage int
	// MaxPages は取得するページ番号の上限です (既定値 DefaultMaxPages)。
	MaxPages int
	Logger   *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.StartPage <= 0 {
		o.StartPage = 2
	}
	if o.MaxPages <= 0 {
		o.MaxPages = DefaultMaxPages
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Collect は、取得済みの first に続けて StartPage から順にページを取得し、統合します。
// 取得に失敗したページは結果に含まれないだけで、処理は継続されます。
// ページ側から「これ以上なし」が返されるか、MaxPages に達した時点で終了します。
func Collect[T Item[T]](ctx context.Context, first []T, fetch PageFunc[T], opts Options) []T {
	opts = opts.withDefaults()
	result := Merge(nil, first)
	for page := opts.StartPage; page <= opts.MaxPages; page++ {
		if ctx.Err() != nil {
			opts.Logger.Debug("ページ集約を中断しました", "page", page, "error", ctx.Err())
			break
		}
		items, more, err := fetch(ctx, page)
		if err != nil {
			opts.Logger.Warn("ページの取得に失敗したためスキップします", "page", page, "error", err)
			continue
		}
		result = Merge(result, items)
		if !more {
			break
		}
	}
	return result
}

// CollectParallel は、pages の各ページを並行して取得し、ページ番号順に first へ統合します。
// 到着順に依存しないよう、全ページの完了を待ってから統合します。
// limit は同時実行数の上限です (0 以下なら無制限)。
func CollectParallel[T Item[T]](ctx context.Context, first []T, pages []int, fetch PageFunc[T], limit int, logger *slog.Logger) []T {
	if logger == nil {
		logger = slog.Default()
	}
	if limit <= 0 {
		limit = len(pages)
	}

	var (
		mu        sync.Mutex
		collected = make(map[int][]T, len(pages))
		wg        sync.WaitGroup
		semaphore = make(chan struct{}, max(limit, 1))
	)

	for _, page := range pages {
		wg.Add(1)
		go func(page int) {
			defer wg.Done()
			select {
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }()
			case <-ctx.Done():
				return
			}

			items, _, err := fetch(ctx, page)
			if err != nil {
				logger.Warn("ページの並行取得に失敗しました", "page", page, "error", err)
				return
			}
			mu.Lock()
			collected[page] = items
			mu.Unlock()
		}(page)
	}
	wg.Wait()

	order := make([]int, 0, len(collected))
	for page := range collected {
		order = append(order, page)
	}
	sort.Ints(order)

	result := Merge(nil, first)
	for _, page := range order {
		result = Merge(result, collected[page])
	}
	return result
}
