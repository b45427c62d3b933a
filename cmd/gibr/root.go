package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"GoImageBoardReader/internal/config"
	"GoImageBoardReader/internal/cookiestore"
	"GoImageBoardReader/internal/fetch"
	"GoImageBoardReader/internal/media"
	"GoImageBoardReader/internal/network"
	"GoImageBoardReader/internal/server"
	"GoImageBoardReader/internal/site"
)

// app は、サブコマンドが共有する設定と依存オブジェクトです。
// PersistentPreRunE で初期化され、PersistentPostRunE で解放されます。
type app struct {
	configPath    string
	siteID        string
	waitChallenge bool
	openBrowser   bool

	cfg       *config.Config
	logger    *slog.Logger
	selection *site.Selection
	cookies   cookiestore.Store
	client    *network.Client
	fetcher   *fetch.Fetcher
	closers   []io.Closer
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "gibr",
		Short: "複数の画像掲示板から板一覧・カタログ・スレッドを取得します",
		Long: `4chan、8kun、7chan、Lynxchan 系 (Endchan など)、vichan 系のサイトから
板一覧・カタログ・スレッドを取得し、共通の形式の JSON で出力します。

JSON API が使えないサイトでは HTML から抽出し、Bot 対策のチャレンジページを
検出した場合は解除用の URL を表示します。`,
		SilenceUsage:       true,
		PersistentPreRunE:  func(cmd *cobra.Command, _ []string) error { return a.init(cmd) },
		PersistentPostRunE: func(*cobra.Command, []string) error { return a.close() },
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "config.json", "設定ファイルのパス (.json / .yaml)")
	root.PersistentFlags().StringVarP(&a.siteID, "site", "s", "", "対象サイトのID (既定値は設定ファイルの default_site)")
	root.PersistentFlags().BoolVar(&a.waitChallenge, "wait-challenge", false, "チャレンジページを検出したら Cookie の入力を待って1回だけ再試行する")
	root.PersistentFlags().BoolVar(&a.openBrowser, "open-browser", false, "--wait-challenge で解除先のページをブラウザで開く")

	root.AddCommand(
		newSitesCmd(a),
		newBoardsCmd(a),
		newCatalogCmd(a),
		newThreadCmd(a),
		newMediaCmd(a),
		newSearchCmd(a),
		newArchiveCmd(a),
		newCookiesCmd(a),
		newServeCmd(a),
	)
	return root
}

// init は設定ファイルを読み込み、ロガー・Cookie ストア・HTTP クライアントを準備します。
func (a *app) init(cmd *cobra.Command) error {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, logCloser, err := setupLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.EnableLogFile, cfg.LogFilePath)
	if err != nil {
		return err
	}
	a.logger = logger
	a.closers = append(a.closers, logCloser)
	slog.SetDefault(logger)

	a.selection = site.NewSelection(cfg.DefaultSite)
	if a.siteID != "" {
		if err := a.selection.Select(a.siteID); err != nil {
			return err
		}
	}

	if cfg.CookieDBPath != "" {
		store, err := cookiestore.OpenSQLite(cfg.CookieDBPath)
		if err != nil {
			return err
		}
		a.cookies = store
		a.closers = append(a.closers, store)
	} else {
		a.cookies = cookiestore.NewMemory()
	}

	client, err := network.NewClient(cfg.Network, network.WithCookieSource(a.cookies), network.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("HTTPクライアントの初期化に失敗しました: %w", err)
	}
	a.client = client
	a.fetcher = fetch.New(client,
		fetch.WithLogger(logger),
		fetch.WithMaxPages(cfg.MaxIndexPages),
		fetch.WithConcurrency(cfg.MaxConcurrentFetches),
		fetch.WithMediaOptions(media.Options{RevealSpoilers: cfg.RevealSpoilers}),
	)
	return nil
}

// loadConfig は設定ファイルを読み込みます。
// --config が明示されていない場合に限り、ファイルが無ければ既定の設定を使います。
func (a *app) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if _, err := os.Stat(a.configPath); errors.Is(err, os.ErrNotExist) {
		if flag := cmd.Flag("config"); flag == nil || !flag.Changed {
			return config.Default(), nil
		}
	}
	cfg, err := config.LoadAndResolve(a.configPath)
	if err != nil {
		return nil, fmt.Errorf("設定ファイルの読み込みに失敗しました: %w", err)
	}
	return cfg, nil
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// site は現在選択中のサイトを返します。
func (a *app) site() site.Site {
	return a.selection.Current()
}

// solver は --wait-challenge が指定されている場合に、チャレンジ解除の入力を待つ関数を返します。
func (a *app) solver(cmd *cobra.Command) fetch.SolveFunc {
	if !a.waitChallenge {
		return nil
	}
	return func(ctx context.Context, challenge *fetch.ChallengeError) error {
		if a.openBrowser {
			if err := server.OpenBrowser(challenge.RemediationURL); err != nil {
				a.logger.Warn("ブラウザの起動に失敗しました", "error", err)
			}
		}
		return promptCookies(ctx, cmd.InOrStdin(), cmd.ErrOrStderr(), a.cookies, challenge)
	}
}

// promptCookies は、解除先の URL を表示し、ブラウザで得た Cookie を name=value 形式で1行ずつ受け取ります。
// 空行で入力を終え、受け取った Cookie を解除先のドメインに保存します。
func promptCookies(ctx context.Context, in io.Reader, out io.Writer, store cookiestore.Store, challenge *fetch.ChallengeError) error {
	u, err := url.Parse(challenge.RemediationURL)
	if err != nil {
		return fmt.Errorf("解除先のURLが不正です: %w", err)
	}
	fmt.Fprintf(out, "チャレンジページを検出しました。ブラウザで次のページを開いて解除してください:\n  %s\n", challenge.RemediationURL)
	fmt.Fprintln(out, "解除後、Cookie (cf_clearance など) を name=value 形式で1行ずつ入力し、空行で終了してください:")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				return
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	var entered []string
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				cookies, err := parseCookieArgs(entered, 0)
				if err != nil {
					return err
				}
				if len(cookies) == 0 {
					return errors.New("Cookie が入力されませんでした")
				}
				return store.SetCookies(ctx, u.Hostname(), cookies)
			}
			entered = append(entered, line)
		}
	}
}

// parseCookieArgs は name=value 形式の引数を Cookie に変換します。
func parseCookieArgs(args []string, maxAge time.Duration) ([]*http.Cookie, error) {
	cookies := make([]*http.Cookie, 0, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("Cookie '%s' は name=value 形式ではありません", arg)
		}
		c := &http.Cookie{Name: name, Value: strings.TrimSpace(value), Path: "/"}
		if maxAge > 0 {
			c.MaxAge = int(maxAge.Seconds())
		}
		cookies = append(cookies, c)
	}
	return cookies, nil
}

// writeJSON は v を整形した JSON として出力します。
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("JSONの出力に失敗しました: %w", err)
	}
	return nil
}
