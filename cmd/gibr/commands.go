package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"GoImageBoardReader/internal/fetch"
	"GoImageBoardReader/internal/media"
	"GoImageBoardReader/internal/model"
	"GoImageBoardReader/internal/server"
	"GoImageBoardReader/internal/site"
)

func newSitesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sites",
		Short: "対応サイトの一覧を表示します",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			type siteView struct {
				site.Site
				EngineName string `json:"engine_name"`
				Selected   bool   `json:"selected"`
			}
			current := a.site().ID
			var views []siteView
			for _, s := range site.All() {
				views = append(views, siteView{Site: s, EngineName: s.Engine.String(), Selected: s.ID == current})
			}
			return writeJSON(cmd.OutOrStdout(), views)
		},
	}
}

func newBoardsCmd(a *app) *cobra.Command {
	var enrichTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "boards",
		Short: "選択中のサイトの板一覧を表示します",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s := a.site()

			// 8kun で板一覧が不完全な場合、補完結果を一定時間待つ
			enriched := make(chan []model.Board, 1)
			enrich := func(boards []model.Board) {
				select {
				case enriched <- boards:
				default:
				}
			}
			if enrichTimeout <= 0 {
				enrich = nil
			}

			boards, err := fetch.RetryAfterChallenge(ctx, func(ctx context.Context) ([]model.Board, error) {
				return a.fetcher.FetchBoards(ctx, s, enrich)
			}, a.solver(cmd))
			if err != nil {
				return describeError(err)
			}

			if enrich != nil && len(boards) < fetch.MinIndexBoards && s.Engine == site.EngineEightKun {
				a.logger.Info("板一覧の補完を待っています", "timeout", enrichTimeout)
				select {
				case merged := <-enriched:
					boards = merged
				case <-time.After(enrichTimeout):
					a.logger.Warn("板一覧の補完が時間内に終わりませんでした。部分的な一覧を表示します。")
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return writeJSON(cmd.OutOrStdout(), boards)
		},
	}
	cmd.Flags().DurationVar(&enrichTimeout, "enrich-timeout", 30*time.Second, "8kun の板一覧の補完を待つ時間 (0 で待たない)")
	return cmd
}

func newCatalogCmd(a *app) *cobra.Command {
	var watch time.Duration
	cmd := &cobra.Command{
		Use:   "catalog <board>",
		Short: "板のスレッド一覧を表示します",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			board := model.NormalizeBoardCode(args[0])
			if watch <= 0 {
				threads, err := a.fetchCatalog(cmd.Context(), cmd, board)
				if err != nil {
					return describeError(err)
				}
				return writeJSON(cmd.OutOrStdout(), threads)
			}
			return a.watchCatalog(cmd, board, watch)
		},
	}
	cmd.Flags().DurationVar(&watch, "watch", 0, "指定した間隔でスレッド一覧を取得し続ける (例: 5m)")
	return cmd
}

func (a *app) fetchCatalog(ctx context.Context, cmd *cobra.Command, board string) ([]model.Thread, error) {
	s := a.site()
	return fetch.RetryAfterChallenge(ctx, func(ctx context.Context) ([]model.Thread, error) {
		return a.fetcher.FetchCatalog(ctx, s, board)
	}, a.solver(cmd))
}

// watchCatalog は interval ごとにスレッド一覧を取得して出力します。
// 前回の取得が終わらないうちに次の周期が来た場合、前回の取得はキャンセルされ結果も出力されません。
func (a *app) watchCatalog(cmd *cobra.Command, board string, interval time.Duration) error {
	ctx := cmd.Context()
	tracker := fetch.NewTracker()
	key := a.site().ID + "/" + board
	var wg sync.WaitGroup
	defer wg.Wait()

	a.logger.Info("監視モードを開始します", "board", board, "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		ticket := tracker.Begin(ctx, key)
		wg.Add(1)
		go func() {
			defer wg.Done()
			threads, err := a.fetchCatalog(ticket.Context(), cmd, board)
			if err != nil {
				ticket.Release()
				if !errors.Is(err, context.Canceled) {
					a.logger.Error("スレッド一覧の取得に失敗しました", "board", board, "error", describeError(err))
				}
				return
			}
			if !ticket.Commit(func() { _ = writeJSON(cmd.OutOrStdout(), threads) }) {
				a.logger.Debug("新しい取得に置き換えられたため結果を破棄します", "board", board)
			}
		}()

		select {
		case <-ctx.Done():
			a.logger.Info("シャットダウンシグナルを受信しました。監視を終了します。")
			return nil
		case <-ticker.C:
		}
	}
}

func newThreadCmd(a *app) *cobra.Command {
	var withReplies bool
	cmd := &cobra.Command{
		Use:   "thread <board> <no>",
		Short: "スレッドの全レスを表示します",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			board, no, err := parseThreadArgs(args)
			if err != nil {
				return err
			}
			posts, err := a.fetchThread(cmd, board, no)
			if err != nil {
				return describeError(err)
			}
			if !withReplies {
				return writeJSON(cmd.OutOrStdout(), posts)
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
			return writeJSON(cmd.OutOrStdout(), views)
		},
	}
	cmd.Flags().BoolVar(&withReplies, "replies", false, "各レスへの返信 (>>番号) の一覧を付ける")
	return cmd
}

func (a *app) fetchThread(cmd *cobra.Command, board string, no int64) ([]model.Post, error) {
	s := a.site()
	return fetch.RetryAfterChallenge(cmd.Context(), func(ctx context.Context) ([]model.Post, error) {
		return a.fetcher.FetchThread(ctx, s, board, no)
	}, a.solver(cmd))
}

func newMediaCmd(a *app) *cobra.Command {
	var downloadDir string
	cmd := &cobra.Command{
		Use:   "media <board> <no>",
		Short: "スレッドの添付ファイルのURLを表示し、必要ならダウンロードします",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			board, no, err := parseThreadArgs(args)
			if err != nil {
				return err
			}
			posts, err := a.fetchThread(cmd, board, no)
			if err != nil {
				return describeError(err)
			}

			type mediaView struct {
				PostNo int64          `json:"post_no"`
				Ref    model.MediaRef `json:"ref"`
				media.URLs
				SavedAs string `json:"saved_as,omitempty"`
			}
			s := a.site()
			var views []mediaView
			for _, p := range posts {
				for _, ref := range p.Media {
					urls := a.fetcher.ResolveMedia(s, board, ref)
					if urls.Empty() {
						continue
					}
					views = append(views, mediaView{PostNo: p.No, Ref: ref, URLs: urls})
				}
			}

			if downloadDir != "" {
				if err := os.MkdirAll(downloadDir, 0755); err != nil {
					return fmt.Errorf("保存先ディレクトリを作成できませんでした: %w", err)
				}
				for i := range views {
					path, err := a.download(cmd.Context(), downloadDir, views[i].Ref, views[i].FullCandidates)
					if err != nil {
						a.logger.Warn("メディアのダウンロードに失敗しました", "post", views[i].PostNo, "error", err)
						continue
					}
					views[i].SavedAs = path
				}
			}
			return writeJSON(cmd.OutOrStdout(), views)
		},
	}
	cmd.Flags().StringVar(&downloadDir, "download", "", "添付ファイルを保存するディレクトリ")
	return cmd
}

func newSearchCmd(a *app) *cobra.Command {
	var q fetch.Query
	cmd := &cobra.Command{
		Use:   "search [preset]",
		Short: "複数の板のスレッド一覧から条件に一致するスレッドを探します",
		Long: `設定ファイルの searches に定義した検索条件の名前を指定するか、
--board / --include / --exclude / --min-media で条件を直接指定します。`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.site()
			if len(args) == 1 {
				preset, ok := a.cfg.FindSearch(args[0])
				if !ok {
					return fmt.Errorf("検索条件 '%s' は設定ファイルにありません", args[0])
				}
				if preset.Site != "" {
					found, err := site.Lookup(preset.Site)
					if err != nil {
						return err
					}
					s = found
				}
				q = fetch.Query{
					Boards:            preset.Boards,
					IncludeAnyText:    preset.IncludeAnyText,
					ExcludeKeywords:   preset.ExcludeKeywords,
					MinimumMediaCount: preset.MinimumMediaCount,
				}
			}

			hits, err := fetch.RetryAfterChallenge(cmd.Context(), func(ctx context.Context) ([]fetch.Hit, error) {
				return a.fetcher.Search(ctx, s, q)
			}, a.solver(cmd))
			if err != nil {
				return describeError(err)
			}
			a.logger.Info("検索が完了しました", "site", s.ID, "hits", len(hits))
			return writeJSON(cmd.OutOrStdout(), hits)
		},
	}
	cmd.Flags().StringSliceVarP(&q.Boards, "board", "b", nil, "検索する板 (複数指定可)")
	cmd.Flags().StringSliceVar(&q.IncludeAnyText, "include", nil, "いずれかを含むスレッドに限定する")
	cmd.Flags().StringSliceVar(&q.ExcludeKeywords, "exclude", nil, "いずれかを含むスレッドを除外する")
	cmd.Flags().IntVar(&q.MinimumMediaCount, "min-media", 0, "添付ファイル数の下限")
	return cmd
}

func newArchiveCmd(a *app) *cobra.Command {
	var details bool
	var limit int
	cmd := &cobra.Command{
		Use:   "archive <board>",
		Short: "板の過去ログのスレッド番号を表示します (4chan のみ)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.site()
			board := model.NormalizeBoardCode(args[0])
			nos, err := fetch.RetryAfterChallenge(cmd.Context(), func(ctx context.Context) ([]int64, error) {
				return a.fetcher.FetchArchive(ctx, s, board)
			}, a.solver(cmd))
			if err != nil {
				return describeError(err)
			}
			if !details {
				return writeJSON(cmd.OutOrStdout(), nos)
			}

			// 新しいスレッドから limit 件だけ詳細を取得する
			sorted := append([]int64(nil), nos...)
			sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })
			if limit > 0 && len(sorted) > limit {
				sorted = sorted[:limit]
			}
			threads := a.fetcher.FetchArchivedThreads(cmd.Context(), s, board, sorted)
			return writeJSON(cmd.OutOrStdout(), threads)
		},
	}
	cmd.Flags().BoolVar(&details, "details", false, "各スレッドを取得して件名やレス数を表示する")
	cmd.Flags().IntVar(&limit, "limit", 20, "--details で取得するスレッド数の上限 (0 で無制限)")
	return cmd
}

func newCookiesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cookies",
		Short: "保存済みの Cookie を管理します",
	}

	var maxAge time.Duration
	set := &cobra.Command{
		Use:   "set <domain> <name=value>...",
		Short: "ドメインに Cookie を保存します (チャレンジページ解除後の cf_clearance など)",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cookies, err := parseCookieArgs(args[1:], maxAge)
			if err != nil {
				return err
			}
			if err := a.cookies.SetCookies(cmd.Context(), args[0], cookies); err != nil {
				return err
			}
			a.logger.Info("Cookieを保存しました", "domain", args[0], "count", len(cookies))
			return nil
		},
	}
	set.Flags().DurationVar(&maxAge, "max-age", 0, "有効期間 (0 でセッション扱い)")

	list := &cobra.Command{
		Use:   "list [domain]",
		Short: "保存済みの Cookie を表示します",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			domains := args
			if len(domains) == 0 {
				var err error
				if domains, err = a.cookies.Domains(ctx); err != nil {
					return err
				}
			}
			type cookieView struct {
				Name  string `json:"name"`
				Value string `json:"value"`
			}
			result := make(map[string][]cookieView, len(domains))
			for _, d := range domains {
				cookies, err := a.cookies.Cookies(ctx, d)
				if err != nil {
					return err
				}
				views := make([]cookieView, 0, len(cookies))
				for _, c := range cookies {
					views = append(views, cookieView{Name: c.Name, Value: c.Value})
				}
				result[d] = views
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.AddCommand(set, list)
	return cmd
}

func newServeCmd(a *app) *cobra.Command {
	var (
		addr string
		open bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "取得処理をローカルの JSON API として公開します",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			srv := server.New(a.fetcher, a.selection, a.logger)
			return srv.ListenAndServe(cmd.Context(), addr, func(url string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s/api/sites\n", url)
				if !open {
					return
				}
				if err := server.OpenBrowser(url + "/api/sites"); err != nil {
					a.logger.Warn("ブラウザの起動に失敗しました", "error", err)
				}
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:0", "待ち受けるアドレス (ポート 0 で空きポートを自動選択)")
	cmd.Flags().BoolVar(&open, "open", false, "起動後にブラウザで開く")
	return cmd
}

func parseThreadArgs(args []string) (string, int64, error) {
	board := model.NormalizeBoardCode(args[0])
	no, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || no <= 0 {
		return "", 0, fmt.Errorf("スレッド番号 '%s' が不正です", args[1])
	}
	return board, no, nil
}

// describeError は、取得エラーの種類に応じて利用者向けの説明を付けます。
func describeError(err error) error {
	if challenge, ok := fetch.IsChallenge(err); ok {
		return fmt.Errorf("%w\nブラウザで %s を開いて解除し、'gibr cookies set' で Cookie を登録するか --wait-challenge を指定してください", err, challenge.RemediationURL)
	}
	if fetch.IsNotFound(err) {
		return fmt.Errorf("見つかりませんでした: %w", err)
	}
	return err
}
