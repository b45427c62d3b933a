package fetch

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"GoImageBoardReader/internal/decode"
	"GoImageBoardReader/internal/model"
	"GoImageBoardReader/internal/network"
	"GoImageBoardReader/internal/site"
)

// FetchArchive は、板のアーカイブ済みスレッドの番号一覧を取得します。4chan のみ対応しています。
func (f *Fetcher) FetchArchive(ctx context.Context, s site.Site, board string) ([]int64, error) {
	board = model.NormalizeBoardCode(board)
	if s.Engine != site.EngineFourChan {
		return nil, fmt.Errorf("アーカイブ一覧 (%s): %w", s.ID, ErrUnsupported)
	}

	accept := func(_ context.Context, _ candidate, resp *network.Response) ([]int64, verdict) {
		tree, err := decode.Parse(resp.Body)
		if err != nil {
			return nil, rejected
		}
		res := decode.DecodeArchive(tree)
		if !res.Matched {
			return nil, rejected
		}
		return res.Records, accepted
	}
	return probe(ctx, f, "archive", remediationURL(s, board), []candidate{jsonURL(archiveURL(s, board))}, accept)
}

// FetchArchivedThreads は、nos の各スレッドを並行して取得し、OP の内容とレス数をまとめた一覧を返します。
// 取得に失敗したスレッドは結果に含まれません。結果はスレッド番号の昇順です。
func (f *Fetcher) FetchArchivedThreads(ctx context.Context, s site.Site, board string, nos []int64) []model.Thread {
	var (
		mu        sync.Mutex
		collected = make(map[int64]model.Thread, len(nos))
		wg        sync.WaitGroup
		semaphore = make(chan struct{}, f.concurrency)
	)

	for _, no := range nos {
		wg.Add(1)
		go func(no int64) {
			defer wg.Done()
			select {
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }()
			case <-ctx.Done():
				return
			}

			posts, err := f.FetchThread(ctx, s, board, no)
			if err != nil {
				if IsNotFound(err) {
					f.logger.Debug("アーカイブ済みスレッドは既に削除されています", "board", board, "no", no)
				} else {
					f.logger.Warn("アーカイブ済みスレッドの取得に失敗しました", "board", board, "no", no, "error", err)
				}
				return
			}
			mu.Lock()
			collected[no] = SummarizeThread(posts)
			mu.Unlock()
		}(no)
	}
	wg.Wait()

	threads := make([]model.Thread, 0, len(collected))
	for _, t := range collected {
		threads = append(threads, t)
	}
	sort.Slice(threads, func(i, j int) bool { return threads[i].No < threads[j].No })
	return threads
}

// SummarizeThread は、レスの一覧からカタログ形式のスレッド情報を作ります。
// ReplyCount と ImageCount は OP を含みません。
func SummarizeThread(posts []model.Post) model.Thread {
	if len(posts) == 0 {
		return model.Thread{}
	}
	op := posts[0]
	images := 0
	for _, p := range posts[1:] {
		if len(p.Media) > 0 {
			images++
		}
	}
	return model.Thread{
		No:         op.No,
		Subject:    op.Subject,
		Body:       op.Body,
		ReplyCount: model.IntPtr(len(posts) - 1),
		ImageCount: model.IntPtr(images),
		Media:      op.Media,
	}
}
