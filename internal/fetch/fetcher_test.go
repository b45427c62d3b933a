package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GoImageBoardReader/internal/config"
	"GoImageBoardReader/internal/model"
	"GoImageBoardReader/internal/network"
	"GoImageBoardReader/internal/site"
)

// newTestFetcher は、ダミーサーバーに接続する Fetcher と、そのサーバーを指すサイトを返します。
func newTestFetcher(t *testing.T, engine site.EngineKind, mux *http.ServeMux) (*Fetcher, site.Site) {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client, err := network.NewClient(config.NetworkSettings{RequestTimeoutMillis: 5000})
	require.NoError(t, err)

	s := site.Site{ID: "test", DisplayName: "Test", BaseURL: server.URL, Engine: engine}
	return New(client, WithConcurrency(2)), s
}

func writeJSON(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}
}

func writeHTML(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(body))
	}
}

const challengePage = `<!DOCTYPE html><html><head><title>Just a moment...</title></head>
<body><script src="/cdn-cgi/challenge-platform/h/g/orchestrate/chl_page/v1"></script></body></html>`

func TestFetchCatalog_ClassicJSON(t *testing.T) {
	// Arrange
	mux := http.NewServeMux()
	mux.HandleFunc("/g/catalog.json", writeJSON(`[{"no":111,"sub":"Hello","com":"World","tim":222,"ext":".png","replies":3,"images":1}]`))
	f, s := newTestFetcher(t, site.EngineFourChan, mux)

	// Act
	threads, err := f.FetchCatalog(context.Background(), s, "g")

	// Assert
	require.NoError(t, err)
	require.Len(t, threads, 1)
	th := threads[0]
	assert.Equal(t, int64(111), th.No)
	assert.Equal(t, "Hello", th.Subject)
	assert.Equal(t, "World", th.Body)
	require.Len(t, th.Media, 1)
	assert.Equal(t, "222", th.Media[0].Key)
	assert.Equal(t, "png", th.Media[0].Extension)
}

func TestFetchThread_AllCandidates404IsNotFound(t *testing.T) {
	mux := http.NewServeMux()
	f, s := newTestFetcher(t, site.EngineFourChan, mux)

	posts, err := f.FetchThread(context.Background(), s, "g", 12345)

	assert.Nil(t, posts)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsExhausted(err))
}

func TestFetchThread_MixedFailuresIsExhausted(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/g/res/5.json", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	f, s := newTestFetcher(t, site.EngineVichan, mux)

	_, err := f.FetchThread(context.Background(), s, "g", 5)

	require.Error(t, err)
	assert.True(t, IsExhausted(err))
	assert.False(t, IsNotFound(err))
	var httpErr *network.HTTPError
	assert.True(t, errors.As(err, &httpErr), "最後のエラーを保持していること")
}

func TestFetchCatalog_ChallengePage(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"2xxの本文", http.StatusOK},
		{"エラー応答の本文", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/b/catalog.json", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(challengePage))
			})
			f, s := newTestFetcher(t, site.EngineVichan, mux)

			_, err := f.FetchCatalog(context.Background(), s, "b")

			challenge, ok := IsChallenge(err)
			require.True(t, ok)
			assert.Equal(t, s.BaseURL+"/b/", challenge.RemediationURL)
			assert.False(t, IsExhausted(err))
		})
	}
}

func TestChallengePhrasesInPostsAreData(t *testing.T) {
	// Arrange - 投稿本文にチャレンジページと同じ語句が含まれている
	mux := http.NewServeMux()
	mux.HandleFunc("/g/catalog.json", writeJSON(`[{"page":1,"threads":[{"no":1,"com":"Cloudflare keeps checking your browser on every site. Just a moment... /cdn-cgi/challenge-platform"}]}]`))
	mux.HandleFunc("/tech/res/7.html", writeHTML(`<html><head><title>/tech/ - Technology</title></head><body>
<div class="thread" id="thread_7">
<div class="post op"><span class="subject">Attention Required</span><div class="body">Cloudflare is checking your browser, just a moment. cf_chl_opt</div></div>
<div class="post reply" id="reply_8"><div class="body">&lt;title&gt;Just a moment&lt;/title&gt;</div></div></div></body></html>`))
	f4, s4 := newTestFetcher(t, site.EngineFourChan, mux)
	fv, sv := newTestFetcher(t, site.EngineVichan, mux)

	// Act
	threads, catalogErr := f4.FetchCatalog(context.Background(), s4, "g")
	posts, threadErr := fv.FetchThread(context.Background(), sv, "tech", 7)

	// Assert
	require.NoError(t, catalogErr)
	require.Len(t, threads, 1)
	assert.Contains(t, threads[0].Body, "checking your browser")
	require.NoError(t, threadErr)
	require.Len(t, posts, 2)
	assert.Equal(t, "Attention Required", posts[0].Subject)
}

func TestFetchCatalog_HTMLPaginationSkipsFailedPage(t *testing.T) {
	// Arrange - JSON は無く、インデックス HTML の 2 ページ目だけが失敗する
	mux := http.NewServeMux()
	mux.HandleFunc("/b/index.html", writeHTML(`<div class="thread" id="thread_1"><div class="body">one</div></div>
<a href="/b/2.html">2</a> <a href="/b/3.html">3</a>`))
	mux.HandleFunc("/b/2.html", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusBadGateway)
	})
	mux.HandleFunc("/b/3.html", writeHTML(`<div class="thread" id="thread_3"><div class="body">three</div></div>
<div class="thread" id="thread_1"><div class="body">duplicate</div></div>`))
	f, s := newTestFetcher(t, site.EngineVichan, mux)

	// Act
	threads, err := f.FetchCatalog(context.Background(), s, "/b/")

	// Assert
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, int64(1), threads[0].No)
	assert.Equal(t, "one", threads[0].Body)
	assert.Equal(t, int64(3), threads[1].No)
}

func TestFetchCatalog_UselessJSONJumpsToHTML(t *testing.T) {
	// Arrange - 7chan は中身の無い JSON を返すことがある
	var secondJSON int32
	mux := http.NewServeMux()
	mux.HandleFunc("/b/catalog.json", writeJSON(`[{"no":1},{"no":2}]`))
	mux.HandleFunc("/b/0.json", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&secondJSON, 1)
		writeJSON(`[{"no":5,"sub":"from json"}]`)(w, r)
	})
	mux.HandleFunc("/b/", writeHTML(`<div id="thread_9"><span class="filetitle">from html</span><blockquote>body</blockquote></div>`))
	f, s := newTestFetcher(t, site.EngineSevenChan, mux)

	// Act
	threads, err := f.FetchCatalog(context.Background(), s, "b")

	// Assert
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, int64(9), threads[0].No)
	assert.Equal(t, "from html", threads[0].Subject)
	assert.Zero(t, atomic.LoadInt32(&secondJSON))
}

func TestFetchCatalog_UsefulJSONIsAccepted(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/b/catalog.json", writeJSON(`[{"no":1,"sub":"real"}]`))
	f, s := newTestFetcher(t, site.EngineSevenChan, mux)

	threads, err := f.FetchCatalog(context.Background(), s, "b")

	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, "real", threads[0].Subject)
}

func TestFetchThread_JSONAndHTMLFallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/g/thread/100.json", writeJSON(`{"posts":[{"no":100,"time":1700000000,"sub":"op","com":"hello"},{"no":101,"resto":100,"com":"&gt;&gt;100 hi"}]}`))
	mux.HandleFunc("/tech/res/7.html", writeHTML(`<div class="thread" id="thread_7">
<div class="post op"><span class="subject">html op</span><div class="body">first</div></div>
<div class="post reply" id="reply_8"><div class="body">second</div></div></div>`))
	f4, s4 := newTestFetcher(t, site.EngineFourChan, mux)
	fv, sv := newTestFetcher(t, site.EngineVichan, mux)

	posts, err := f4.FetchThread(context.Background(), s4, "g", 100)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "op", posts[0].Subject)
	assert.Equal(t, []int64{101}, model.BuildReplyIndex(posts)[100])

	posts, err = fv.FetchThread(context.Background(), sv, "tech", 7)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, int64(7), posts[0].No)
	assert.Equal(t, "html op", posts[0].Subject)
	assert.Equal(t, int64(8), posts[1].No)
}

func TestFetchThread_InvalidArguments(t *testing.T) {
	f, s := newTestFetcher(t, site.EngineFourChan, http.NewServeMux())

	_, err := f.FetchThread(context.Background(), s, " / ", 1)
	assert.Error(t, err)
	_, err = f.FetchThread(context.Background(), s, "g", 0)
	assert.Error(t, err)
}

func TestFetchCatalog_CanceledContext(t *testing.T) {
	f, s := newTestFetcher(t, site.EngineFourChan, http.NewServeMux())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.FetchCatalog(ctx, s, "g")

	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolveMediaAndFetchMedia(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/g/src/42.png", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("png-bytes"))
	})
	f, s := newTestFetcher(t, site.EngineVichan, mux)

	urls := f.ResolveMedia(s, "g", model.MediaRef{Key: "42", Extension: "png"})
	require.Equal(t, s.BaseURL+"/g/src/42.png", urls.Full)

	body, used, err := f.FetchMedia(context.Background(), []string{s.BaseURL + "/missing.png", urls.Full})

	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(body))
	assert.Equal(t, urls.Full, used)
}

func TestTrackerSupersedesOlderRequest(t *testing.T) {
	tracker := NewTracker()
	first := tracker.Begin(context.Background(), "8kun/b")
	second := tracker.Begin(context.Background(), "8kun/b")

	select {
	case <-first.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("古い要求がキャンセルされていません")
	}
	assert.False(t, first.Current())
	assert.True(t, second.Current())

	applied := ""
	assert.False(t, first.Commit(func() { applied = "first" }))
	assert.True(t, second.Commit(func() { applied = "second" }))
	assert.Equal(t, "second", applied)
	assert.False(t, second.Current())

	other := tracker.Begin(context.Background(), "4chan/g")
	other.Release()
	assert.False(t, other.Current())
	assert.Error(t, other.Context().Err())
}

func TestTrackerCommitRunsApplyWithoutLock(t *testing.T) {
	// Arrange - apply は出力先への書き込みのように時間がかかる
	tracker := NewTracker()
	ticket := tracker.Begin(context.Background(), "4chan/g")
	writing := make(chan struct{})
	release := make(chan struct{})
	committed := make(chan bool, 1)

	// Act
	go func() {
		committed <- ticket.Commit(func() {
			close(writing)
			<-release
		})
	}()
	<-writing
	began := make(chan *Ticket, 1)
	go func() { began <- tracker.Begin(context.Background(), "4chan/g") }()

	// Assert - 書き込み中でも新しい要求を開始できる
	var next *Ticket
	select {
	case next = <-began:
	case <-time.After(time.Second):
		t.Fatal("書き込み中に新しい要求を開始できません")
	}
	assert.True(t, next.Current())
	close(release)
	assert.True(t, <-committed)
	assert.True(t, next.Current(), "完了した要求が新しい要求を消さないこと")

	nested := tracker.Begin(context.Background(), "8kun/b")
	assert.True(t, nested.Commit(func() {
		tracker.Begin(context.Background(), "8kun/b").Release()
	}))
}

func TestRetryAfterChallenge(t *testing.T) {
	challenge := &ChallengeError{URL: "https://example.org/b/catalog.json", RemediationURL: "https://example.org/b/"}

	t.Run("解除後に1回だけ再試行", func(t *testing.T) {
		calls, solved := 0, 0
		op := func(context.Context) (int, error) {
			calls++
			if calls == 1 {
				return 0, challenge
			}
			return 7, nil
		}
		got, err := RetryAfterChallenge(context.Background(), op, func(_ context.Context, c *ChallengeError) error {
			solved++
			assert.Equal(t, "https://example.org/b/", c.RemediationURL)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 7, got)
		assert.Equal(t, 2, calls)
		assert.Equal(t, 1, solved)
	})

	t.Run("再試行でも失敗したらそのエラー", func(t *testing.T) {
		calls := 0
		op := func(context.Context) (int, error) {
			calls++
			return 0, challenge
		}
		_, err := RetryAfterChallenge(context.Background(), op, func(context.Context, *ChallengeError) error { return nil })
		_, ok := IsChallenge(err)
		assert.True(t, ok)
		assert.Equal(t, 2, calls)
	})

	t.Run("解除の失敗", func(t *testing.T) {
		op := func(context.Context) (int, error) { return 0, challenge }
		_, err := RetryAfterChallenge(context.Background(), op, func(context.Context, *ChallengeError) error {
			return errors.New("canceled by user")
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "canceled by user")
	})

	t.Run("チャレンジ以外は再試行しない", func(t *testing.T) {
		calls := 0
		op := func(context.Context) (int, error) {
			calls++
			return 0, ErrNotFound
		}
		_, err := RetryAfterChallenge(context.Background(), op, func(context.Context, *ChallengeError) error { return nil })
		assert.True(t, IsNotFound(err))
		assert.Equal(t, 1, calls)
	})
}
