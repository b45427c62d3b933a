// Package server は、取得処理をローカルの JSON API として公開します。
// 表示側のクライアントは、このAPIを通じて板一覧・カタログ・スレッドを取得します。
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"GoImageBoardReader/internal/fetch"
	"GoImageBoardReader/internal/model"
	"GoImageBoardReader/internal/site"
)

// Server は JSON API のハンドラと、その依存オブジェクトを保持します。
type Server struct {
	fetcher   *fetch.Fetcher
	selection *site.Selection
	tracker   *fetch.Tracker
	logger    *slog.Logger

	// current と lookup はサイトの解決方法です。テストでは差し替えます。
	current func() site.Site
	lookup  func(id string) (site.Site, error)
}

// New は Server を生成します。selection は /api/site で変更されます。
func New(fetcher *fetch.Fetcher, selection *site.Selection, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		fetcher:   fetcher,
		selection: selection,
		tracker:   fetch.NewTracker(),
		logger:    logger,
		current:   selection.Current,
		lookup:    site.Lookup,
	}
}

// Handler は API のルーティングを返します。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/sites", s.handleSites)
	mux.HandleFunc("GET /api/site", s.handleCurrentSite)
	mux.HandleFunc("POST /api/site", s.handleSelectSite)
	mux.HandleFunc("GET /api/boards", s.handleBoards)
	mux.HandleFunc("GET /api/boards/{board}/catalog", s.handleCatalog)
	mux.HandleFunc("GET /api/boards/{board}/archive", s.handleArchive)
	mux.HandleFunc("GET /api/boards/{board}/threads/{no}", s.handleThread)
	mux.HandleFunc("GET /api/boards/{board}/threads/{no}/media", s.handleMedia)
	mux.HandleFunc("GET /api/search", s.handleSearch)
	return mux
}

// ListenAndServe は addr で待ち受け、ctx がキャンセルされるまでリクエストを処理します。
// addr のポートに 0 を指定すると OS が空きポートを選びます。ready には実際のURLが渡されます。
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready func(url string)) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("APIサーバーの待ち受けに失敗しました (%s): %w", addr, err)
	}
	url := "http://" + listener.Addr().String()

	httpServer := &http.Server{
		Handler:     s.Handler(),
		ReadTimeout: 5 * time.Second,
		// 後続ページの取得を含むため、書き込みのタイムアウトは長めにとる
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  10 * time.Minute,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("APIサーバーを起動します", "url", url)
		errCh <- httpServer.Serve(listener)
	}()
	if ready != nil {
		ready(url)
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("APIサーバーが異常終了しました: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.logger.Info("APIサーバーをシャットダウンします")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("APIサーバーのシャットダウンに失敗しました: %w", err)
	}
	return nil
}

// resolveSite は ?site= が指定されていればそのサイトを、なければ選択中のサイトを返します。
func (s *Server) resolveSite(r *http.Request) (site.Site, error) {
	if id := r.URL.Query().Get("site"); id != "" {
		return s.lookup(id)
	}
	return s.current(), nil
}

func (s *Server) handleSites(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, site.All())
}

func (s *Server) handleCurrentSite(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.current())
}

func (s *Server) handleSelectSite(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "無効なJSON形式です", nil)
		return
	}
	if err := s.selection.Select(body.ID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	s.logger.Info("サイトを切り替えました", "site", body.ID)
	writeJSON(w, http.StatusOK, s.current())
}

func (s *Server) handleBoards(w http.ResponseWriter, r *http.Request) {
	target, err := s.resolveSite(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	boards, err := s.fetcher.FetchBoards(r.Context(), target, nil)
	if err != nil {
		s.writeFetchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, boards)
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	target, err := s.resolveSite(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	board := model.NormalizeBoardCode(r.PathValue("board"))

	// 同じカタログへの新しい要求が来たら、古い要求は結果を返さずに終了する
	ticket := s.tracker.Begin(r.Context(), "catalog:"+target.ID+"/"+board)
	threads, err := s.fetcher.FetchCatalog(ticket.Context(), target, board)
	s.commit(w, ticket, threads, err)
}

func (s *Server) handleThread(w http.ResponseWriter, r *http.Request) {
	target, board, no, ok := s.threadParams(w, r)
	if !ok {
		return
	}
	ticket := s.tracker.Begin(r.Context(), fmt.Sprintf("thread:%s/%s/%d", target.ID, board, no))
	posts, err := s.fetcher.FetchThread(ticket.Context(), target, board, no)
	if err != nil || r.URL.Query().Get("replies") == "" {
		s.commit(w, ticket, posts, err)
		return
	}

	type postView struct {
		model.Post
		Replies []int64 `json:"replies,omitempty"`
	}
	index := model.BuildReplyIndex(posts)
	views := make([]postView, 0, len(posts))
	for _, p := range posts {
		views = append(views, postView{Post: p, Replies: index.RepliesTo(p.No)})
	}
	s.commit(w, ticket, views, nil)
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	target, board, no, ok := s.threadParams(w, r)
	if !ok {
		return
	}
	posts, err := s.fetcher.FetchThread(r.Context(), target, board, no)
	if err != nil {
		s.writeFetchError(w, err)
		return
	}

	type mediaView struct {
		PostNo int64          `json:"post_no"`
		Ref    model.MediaRef `json:"ref"`
		Full   string         `json:"full,omitempty"`
		Thumb  string         `json:"thumb,omitempty"`
		Mirror []string       `json:"mirrors,omitempty"`
	}
	views := []mediaView{}
	for _, p := range posts {
		for _, ref := range p.Media {
			urls := s.fetcher.ResolveMedia(target, board, ref)
			if urls.Empty() {
				continue
			}
			views = append(views, mediaView{PostNo: p.No, Ref: ref, Full: urls.Full, Thumb: urls.Thumb, Mirror: urls.FullCandidates})
		}
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	target, err := s.resolveSite(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	nos, err := s.fetcher.FetchArchive(r.Context(), target, r.PathValue("board"))
	if err != nil {
		s.writeFetchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nos)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	target, err := s.resolveSite(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	params := r.URL.Query()
	q := fetch.Query{
		Boards:          splitList(params.Get("boards")),
		IncludeAnyText:  splitList(params.Get("include")),
		ExcludeKeywords: splitList(params.Get("exclude")),
	}
	if v := params.Get("min_media"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "min_media が不正です", nil)
			return
		}
		q.MinimumMediaCount = n
	}
	if len(q.Boards) == 0 {
		writeError(w, http.StatusBadRequest, "boards が指定されていません", nil)
		return
	}
	hits, err := s.fetcher.Search(r.Context(), target, q)
	if err != nil {
		s.writeFetchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hits)
}

func (s *Server) threadParams(w http.ResponseWriter, r *http.Request) (site.Site, string, int64, bool) {
	target, err := s.resolveSite(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return site.Site{}, "", 0, false
	}
	no, err := strconv.ParseInt(r.PathValue("no"), 10, 64)
	if err != nil || no <= 0 {
		writeError(w, http.StatusBadRequest, "スレッド番号が不正です", nil)
		return site.Site{}, "", 0, false
	}
	return target, model.NormalizeBoardCode(r.PathValue("board")), no, true
}

// commit は、要求が最新の場合に限り結果を書き込みます。置き換えられた要求には 409 を返します。
func (s *Server) commit(w http.ResponseWriter, ticket *fetch.Ticket, v any, err error) {
	if err != nil {
		superseded := !ticket.Current()
		ticket.Release()
		if superseded && errors.Is(err, context.Canceled) {
			writeError(w, http.StatusConflict, "新しい要求に置き換えられました", nil)
			return
		}
		s.writeFetchError(w, err)
		return
	}
	if !ticket.Commit(func() { writeJSON(w, http.StatusOK, v) }) {
		writeError(w, http.StatusConflict, "新しい要求に置き換えられました", nil)
	}
}

// writeFetchError は、取得エラーの種類に応じたステータスコードで応答します。
func (s *Server) writeFetchError(w http.ResponseWriter, err error) {
	if challenge, ok := fetch.IsChallenge(err); ok {
		writeError(w, http.StatusServiceUnavailable, err.Error(), map[string]string{"remediation_url": challenge.RemediationURL})
		return
	}
	switch {
	case fetch.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, fetch.ErrUnsupported):
		writeError(w, http.StatusNotImplemented, err.Error(), nil)
	case errors.Is(err, context.Canceled):
		// クライアントが切断した
		s.logger.Debug("要求がキャンセルされました", "error", err)
	default:
		s.logger.Warn("取得に失敗しました", "error", err)
		writeError(w, http.StatusBadGateway, err.Error(), nil)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string, extra map[string]string) {
	body := map[string]string{"error": message}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, status, body)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// OpenBrowser はOSのデフォルトブラウザでURLを開きます。
func OpenBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default: // Linux, BSDなど
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ブラウザの起動コマンドの実行に失敗しました: %w", err)
	}
	return nil
}
