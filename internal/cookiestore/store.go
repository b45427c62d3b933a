// Package cookiestore は、ドメインごとの Cookie を保存します。
//
// Bot 対策のチャレンジを外部のブラウザで解除した後、そのとき得た Cookie (cf_clearance など) を
// ここに書き込むと、network.Client が以降のリクエストで自動的に送信します。
package cookiestore

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// Store は、ドメインをキーとした Cookie の読み書きを提供します。
type Store interface {
	// Cookies は domain に保存されている有効期限内の Cookie を返します。
	Cookies(ctx context.Context, domain string) ([]*http.Cookie, error)
	// SetCookies は domain の Cookie を保存します。MaxAge が負の Cookie は削除されます。
	SetCookies(ctx context.Context, domain string, cookies []*http.Cookie) error
	// Domains は Cookie が保存されているドメインの一覧を返します。
	Domains(ctx context.Context) ([]string, error)
}

// NormalizeDomain は、ドメインを小文字にし、先頭のドットとポート番号を取り除きます。
func NormalizeDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	if i := strings.IndexAny(d, "/:"); i >= 0 {
		d = d[:i]
	}
	return strings.TrimPrefix(d, ".")
}

// expiry は Cookie の有効期限を返します。ゼロ値はセッション Cookie です。
func expiry(c *http.Cookie, now time.Time) time.Time {
	if c.MaxAge > 0 {
		return now.Add(time.Duration(c.MaxAge) * time.Second)
	}
	if !c.Expires.IsZero() {
		return c.Expires
	}
	return time.Time{}
}

func expired(exp, now time.Time) bool {
	return !exp.IsZero() && !exp.After(now)
}

type memoryEntry struct {
	cookie  http.Cookie
	expires time.Time
}

// Memory は、プロセス内だけで保持する Store です。
type Memory struct {
	mu      sync.RWMutex
	cookies map[string]map[string]memoryEntry
	now     func() time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory は空の Memory を返します。
func NewMemory() *Memory {
	return &Memory{cookies: make(map[string]map[string]memoryEntry), now: time.Now}
}

func memoryKey(c *http.Cookie) string {
	return c.Name + "\x00" + c.Path
}

// Cookies は Store を実装します。
func (m *Memory) Cookies(_ context.Context, domain string) ([]*http.Cookie, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	var out []*http.Cookie
	for _, e := range m.cookies[NormalizeDomain(domain)] {
		if expired(e.expires, now) {
			continue
		}
		c := e.cookie
		out = append(out, &c)
	}
	sortCookies(out)
	return out, nil
}

// SetCookies は Store を実装します。
func (m *Memory) SetCookies(_ context.Context, domain string, cookies []*http.Cookie) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := NormalizeDomain(domain)
	now := m.now()
	entries := m.cookies[d]
	if entries == nil {
		entries = make(map[string]memoryEntry)
		m.cookies[d] = entries
	}
	for _, c := range cookies {
		if c == nil || c.Name == "" {
			continue
		}
		key := memoryKey(c)
		exp := expiry(c, now)
		if c.MaxAge < 0 || expired(exp, now) {
			delete(entries, key)
			continue
		}
		entries[key] = memoryEntry{cookie: *c, expires: exp}
	}
	if len(entries) == 0 {
		delete(m.cookies, d)
	}
	return nil
}

// Domains は Store を実装します。
func (m *Memory) Domains(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	domains := make([]string, 0, len(m.cookies))
	for d := range m.cookies {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	return domains, nil
}

func sortCookies(cookies []*http.Cookie) {
	sort.Slice(cookies, func(i, j int) bool {
		if cookies[i].Name != cookies[j].Name {
			return cookies[i].Name < cookies[j].Name
		}
		return cookies[i].Path < cookies[j].Path
	})
}
