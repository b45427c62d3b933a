package aggregate

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GoImageBoardReader/internal/model"
)

func threadNos(threads []model.Thread) []int64 {
	nos := make([]int64, 0, len(threads))
	for _, t := range threads {
		nos = append(nos, t.No)
	}
	return nos
}

func TestMerge_FirstNonEmptyWins(t *testing.T) {
	// Arrange
	page1 := []model.Thread{{No: 1, Subject: "first"}, {No: 2}}
	page2 := []model.Thread{{No: 2, Subject: "late", ReplyCount: model.IntPtr(4)}, {No: 1, Subject: "ignored"}, {No: 3}}

	// Act
	got := Merge(page1, page2)

	// Assert
	assert.Equal(t, []int64{1, 2, 3}, threadNos(got))
	assert.Equal(t, "first", got[0].Subject)
	assert.Equal(t, "late", got[1].Subject)
	require.NotNil(t, got[1].ReplyCount)
	assert.Equal(t, 4, *got[1].ReplyCount)
}

func TestMerge_DisjointKeysCommute(t *testing.T) {
	a := []model.Thread{{No: 1}, {No: 2}}
	b := []model.Thread{{No: 3}, {No: 4}}

	ab := threadNos(Merge(a, b))
	ba := threadNos(Merge(b, a))
	sort.Slice(ba, func(i, j int) bool { return ba[i] < ba[j] })

	assert.Equal(t, ab, ba)
}

func TestMerge_Idempotent(t *testing.T) {
	a := []model.Thread{{No: 1, Subject: "x"}, {No: 2, Body: "y"}}

	once := Merge(nil, a)
	twice := Merge(once, a)

	assert.Equal(t, once, twice)
}

func TestMerge_CollapsesDuplicatesWithinInput(t *testing.T) {
	got := Merge([]model.Thread{{No: 5}, {No: 5, Subject: "s"}}, nil)

	require.Len(t, got, 1)
	assert.Equal(t, "s", got[0].Subject)
}

func TestCollect_StopsWhenNoMorePages(t *testing.T) {
	// Arrange - 3ページ目で終わり
	pages := map[int][]model.Thread{
		2: {{No: 20}, {No: 10}},
		3: {{No: 30}},
	}
	var calls []int
	fetch := func(_ context.Context, page int) ([]model.Thread, bool, error) {
		calls = append(calls, page)
		return pages[page], page < 3, nil
	}

	// Act
	got := Collect(context.Background(), []model.Thread{{No: 10}}, fetch, Options{})

	// Assert
	assert.Equal(t, []int{2, 3}, calls)
	assert.Equal(t, []int64{10, 20, 30}, threadNos(got))
}

func TestCollect_SkipsFailedPagesAndRespectsCap(t *testing.T) {
	var calls []int
	fetch := func(_ context.Context, page int) ([]model.Thread, bool, error) {
		calls = append(calls, page)
		if page == 3 {
			return nil, true, errors.New("boom")
		}
		return []model.Thread{{No: int64(page * 100)}}, true, nil
	}

	got := Collect(context.Background(), nil, fetch, Options{MaxPages: 5})

	assert.Equal(t, []int{2, 3, 4, 5}, calls)
	assert.Equal(t, []int64{200, 400, 500}, threadNos(got))
}

func TestCollect_DefaultCapIsFifteen(t *testing.T) {
	var last int
	fetch := func(_ context.Context, page int) ([]model.Thread, bool, error) {
		last = page
		return nil, true, nil
	}

	Collect(context.Background(), nil, fetch, Options{StartPage: 1})

	assert.Equal(t, DefaultMaxPages, last)
}

func TestCollect_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetch := func(_ context.Context, page int) ([]model.Thread, bool, error) {
		cancel()
		return []model.Thread{{No: int64(page)}}, true, nil
	}

	got := Collect(ctx, nil, fetch, Options{})

	assert.Equal(t, []int64{2}, threadNos(got))
}

func TestCollectParallel_MergesInPageOrder(t *testing.T) {
	// Arrange - 到着順に関わらずページ順に統合される
	var inFlight, peak int32
	fetch := func(_ context.Context, page int) ([]model.Board, bool, error) {
		n := atomic.AddInt32(&inFlight, 1)
		defer atomic.AddInt32(&inFlight, -1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		switch page {
		case 2:
			return []model.Board{{Code: "tech"}, {Code: "b", Title: "Random"}}, false, nil
		case 3:
			return nil, false, errors.New("unavailable")
		default:
			return []model.Board{{Code: "art"}}, false, nil
		}
	}
	first := []model.Board{{Code: "b"}}

	// Act
	got := CollectParallel(context.Background(), first, []int{4, 3, 2}, fetch, 2, nil)

	// Assert
	codes := make([]string, 0, len(got))
	for _, b := range got {
		codes = append(codes, b.Code)
	}
	assert.Equal(t, []string{"b", "tech", "art"}, codes)
	assert.Equal(t, "Random", got[0].Title)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}
