// Package network は、掲示板サイトへの HTTP 通信に関する機能を提供します。
// Cookie Jar と外部の Cookie ストアによるセッション管理、ホストごとのリクエスト間隔の制御を
// カプセル化した、より高レベルな HTTP クライアントを実装しています。
package network

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/corpix/uarand"
	"golang.org/x/time/rate"

	"GoImageBoardReader/internal/config"
)

// maxBodyBytes は、1回のレスポンスで読み込むボディの上限です。
const maxBodyBytes = 64 << 20

// HTTPError は、HTTPリクエストで発生したエラーとステータスコードを保持します。
// Body には、チャレンジページの判定に使えるようレスポンスボディを保持します。
type HTTPError struct {
	StatusCode int
	URL        string
	Message    string
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s (URL: %s)", e.StatusCode, e.Message, e.URL)
}

// IsRetryable は、このエラーがリトライ可能かどうかを判定します。
// 4xxエラー（クライアントエラー）はリトライ不可、5xxエラー（サーバーエラー）はリトライ可能とします。
// ただし 429 Too Many Requests は時間をおけば成功する可能性があるためリトライ可能とします。
func (e *HTTPError) IsRetryable() bool {
	if e.StatusCode == http.StatusTooManyRequests {
		return true
	}
	if e.StatusCode >= 400 && e.StatusCode < 500 {
		return false
	}
	return true
}

// Response は、成功したHTTPレスポンスです。
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// URL はリダイレクト後の最終的な URL です。
	URL string
}

// ContentType は Content-Type ヘッダの値を返します。
func (r *Response) ContentType() string {
	return r.Header.Get("Content-Type")
}

// CookieSource は、ドメインに保存された Cookie を提供します。
type CookieSource interface {
	Cookies(ctx context.Context, domain string) ([]*http.Cookie, error)
}

// Option は Client の生成時の追加設定です。
type Option func(*Client)

// WithCookieSource は、リクエストごとに送信する Cookie の取得元を設定します。
func WithCookieSource(src CookieSource) Option {
	return func(c *Client) { c.cookies = src }
}

// WithLogger はロガーを設定します。
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// Client は、Cookie Jarを内包し、HTTPセッションを管理するクライアントです。
type Client struct {
	httpClient         *http.Client
	jar                *cookiejar.Jar
	cookies            CookieSource
	logger             *slog.Logger
	userAgent          string
	acceptLanguage     string
	defaultHeaders     map[string]string
	rateLimiters       map[string]*rate.Limiter // ホスト名ごとのレートリミッター
	rateLimitersMutex  sync.Mutex               // rateLimitersへのアクセスを保護するMutex
	perDomainIntervals map[string]int           // ドメインごとの設定間隔
	defaultInterval    int
}

// NewClient は NetworkSettings に基づいて HTTP クライアントを初期化します。
func NewClient(settings config.NetworkSettings, opts ...Option) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jarの作成に失敗しました: %w", err)
	}

	timeout := time.Duration(settings.RequestTimeoutMillis) * time.Millisecond
	if timeout <= 0 {
		timeout = time.Duration(config.DefaultRequestTimeoutMillis) * time.Millisecond
	}

	userAgent := strings.TrimSpace(settings.UserAgent)
	switch {
	case userAgent == "":
		userAgent = config.DefaultUserAgent
	case strings.EqualFold(userAgent, config.RandomUserAgent):
		userAgent = uarand.GetRandom()
	}
	acceptLanguage := settings.AcceptLanguage
	if acceptLanguage == "" {
		acceptLanguage = config.DefaultAcceptLanguage
	}

	intervals := make(map[string]int, len(settings.PerDomainIntervalMillis))
	for domain, ms := range settings.PerDomainIntervalMillis {
		intervals[strings.ToLower(strings.TrimPrefix(domain, "."))] = ms
	}

	c := &Client{
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: timeout,
		},
		jar:                jar,
		logger:             slog.Default(),
		userAgent:          userAgent,
		acceptLanguage:     acceptLanguage,
		defaultHeaders:     settings.DefaultHeaders,
		rateLimiters:       make(map[string]*rate.Limiter),
		perDomainIntervals: intervals,
		defaultInterval:    settings.DefaultIntervalMillis,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// UserAgent は、このクライアントが送信する User-Agent を返します。
func (c *Client) UserAgent() string {
	return c.userAgent
}

// SetCookie は、指定されたURLのドメインに対して、任意のCookieを設定します。
func (c *Client) SetCookie(domainURL string, cookie *http.Cookie) error {
	if !strings.HasPrefix(domainURL, "http") {
		domainURL = "https://" + domainURL
	}

	parsedURL, err := url.Parse(domainURL)
	if err != nil {
		return fmt.Errorf("Cookie設定のためのURL解析に失敗しました: %w", err)
	}

	c.jar.SetCookies(parsedURL, []*http.Cookie{cookie})
	return nil
}

// Get は、保存済みのCookieを使って指定されたURLにGETリクエストを送信します。
// 2xx 以外のステータスは *HTTPError として返します。
func (c *Client) Get(ctx context.Context, reqURL string) (*Response, error) {
	parsedURL, err := url.Parse(reqURL)
	if err != nil {
		return nil, fmt.Errorf("リクエストURLの解析に失敗しました (%s): %w", reqURL, err)
	}

	host := parsedURL.Hostname()
	limiter := c.getLimiterForHost(host)
	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("レートリミッター待機中にエラーが発生しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("GETリクエストの作成に失敗しました (%s): %w", reqURL, err)
	}

	for key, value := range c.defaultHeaders {
		req.Header.Set(key, value)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", c.acceptLanguage)
	c.addStoredCookies(ctx, req, host)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GETリクエストの送信に失敗しました (%s): %w", reqURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み込みに失敗しました (%s): %w", reqURL, err)
	}
	c.logger.Debug("GET", "url", reqURL, "status", resp.StatusCode, "bytes", len(body), "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			URL:        reqURL,
			Message:    http.StatusText(resp.StatusCode),
			Body:       body,
		}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		URL:        resp.Request.URL.String(),
	}, nil
}

// GetBody は Get のボディだけを返します。メディアの取得などに使います。
func (c *Client) GetBody(ctx context.Context, reqURL string) ([]byte, error) {
	resp, err := c.Get(ctx, reqURL)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// addStoredCookies は、ホストとその親ドメインに保存された Cookie をリクエストに追加します。
// Cookie Jar に同名の Cookie がある場合は、http.Client が後から追加します。
func (c *Client) addStoredCookies(ctx context.Context, req *http.Request, host string) {
	if c.cookies == nil {
		return
	}
	seen := make(map[string]bool)
	for _, domain := range DomainCandidates(host) {
		cookies, err := c.cookies.Cookies(ctx, domain)
		if err != nil {
			c.logger.Warn("保存済みCookieの取得に失敗しました", "domain", domain, "error", err)
			continue
		}
		for _, ck := range cookies {
			if seen[ck.Name] {
				continue
			}
			seen[ck.Name] = true
			req.AddCookie(&http.Cookie{Name: ck.Name, Value: ck.Value})
		}
	}
}

// DomainCandidates は、ホスト自身から順に親ドメインを返します (トップレベルドメイン単体は除く)。
// 例: boards.4chan.org -> [boards.4chan.org, 4chan.org]
func DomainCandidates(host string) []string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" {
		return nil
	}
	parts := strings.Split(host, ".")
	if len(parts) < 2 {
		return []string{host}
	}
	out := make([]string, 0, len(parts)-1)
	for i := 0; i < len(parts)-1; i++ {
		out = append(out, strings.Join(parts[i:], "."))
	}
	return out
}

// getLimiterForHost は、指定されたホスト名に対応するレートリミッターを返します。
// 存在しない場合は、ホストまたは親ドメインに設定された間隔で新しく生成します。
func (c *Client) getLimiterForHost(host string) *rate.Limiter {
	c.rateLimitersMutex.Lock()
	defer c.rateLimitersMutex.Unlock()

	if limiter, exists := c.rateLimiters[host]; exists {
		return limiter
	}

	intervalMillis := c.defaultInterval
	for _, domain := range DomainCandidates(host) {
		if val, ok := c.perDomainIntervals[domain]; ok {
			intervalMillis = val
			break
		}
	}

	limit := rate.Inf
	if intervalMillis > 0 {
		limit = rate.Every(time.Duration(intervalMillis) * time.Millisecond)
	}
	newLimiter := rate.NewLimiter(limit, 1)

	c.rateLimiters[host] = newLimiter
	return newLimiter
}
