// Package site は、対応サイトとそのエンジン種別の静的な一覧を提供します。
// 一覧はビルド時に決定され、初期化後は読み取り専用です。
package site

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// EngineKind は、サイトが動作している掲示板ソフトウェアの系統です。
type EngineKind int

const (
	EngineFourChan  EngineKind = iota // 4chan 公式 API
	EngineVichan                      // vichan / Kusaba 系 JSON
	EngineEightKun                    // 8kun (vichan 派生、fpath と板検索 API を持つ)
	EngineSevenChan                   // 7chan (Kusaba 派生、HTML 主体)
	EngineLynxchan                    // Lynxchan (Endchan など)
)

// String は EngineKind を人間可読な文字列に変換します。
func (k EngineKind) String() string {
	switch k {
	case EngineFourChan:
		return "4chan"
	case EngineVichan:
		return "vichan"
	case EngineEightKun:
		return "8kun"
	case EngineSevenChan:
		return "7chan"
	case EngineLynxchan:
		return "lynxchan"
	default:
		return "unknown"
	}
}

// Site は単一の対応サイトの記述子です。
type Site struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"display_name"`
	BaseURL     string     `json:"base_url"`
	Engine      EngineKind `json:"engine"`
	// APIURL と MediaURL は BaseURL と異なるホストを使う場合のみ設定します。
	APIURL   string `json:"api_url,omitempty"`
	MediaURL string `json:"media_url,omitempty"`
}

// API は JSON API のベースURLを返します。
func (s Site) API() string {
	if s.APIURL != "" {
		return strings.TrimRight(s.APIURL, "/")
	}
	return strings.TrimRight(s.BaseURL, "/")
}

// Media はメディア配信ホストのベースURLを返します。
func (s Site) Media() string {
	if s.MediaURL != "" {
		return strings.TrimRight(s.MediaURL, "/")
	}
	return strings.TrimRight(s.BaseURL, "/")
}

// Base は末尾のスラッシュを除いた BaseURL を返します。
func (s Site) Base() string {
	return strings.TrimRight(s.BaseURL, "/")
}

// BoardURL は板の正規ページURLを返します。チャレンジページ解除先としても使われます。
func (s Site) BoardURL(board string) string {
	return fmt.Sprintf("%s/%s/", s.Base(), board)
}

// Host は BaseURL のホスト名を返します。
func (s Site) Host() string {
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// directory は対応サイトの一覧です。
var directory = []Site{
	{ID: "4chan", DisplayName: "4chan", BaseURL: "https://boards.4chan.org", APIURL: "https://a.4cdn.org", MediaURL: "https://i.4cdn.org", Engine: EngineFourChan},
	{ID: "8kun", DisplayName: "8kun", BaseURL: "https://8kun.top", MediaURL: "https://media.128ducks.com", Engine: EngineEightKun},
	{ID: "7chan", DisplayName: "7chan", BaseURL: "https://7chan.org", Engine: EngineSevenChan},
	{ID: "endchan", DisplayName: "Endchan", BaseURL: "https://endchan.net", Engine: EngineLynxchan},
	{ID: "kohlchan", DisplayName: "Kohlchan", BaseURL: "https://kohlchan.net", Engine: EngineLynxchan},
	{ID: "lainchan", DisplayName: "Lainchan", BaseURL: "https://lainchan.org", Engine: EngineVichan},
	{ID: "wizchan", DisplayName: "Wizchan", BaseURL: "https://wizchan.org", Engine: EngineVichan},
}

// DefaultSiteID は、選択が未設定のときに使われるサイトです。
const DefaultSiteID = "4chan"

// Lookup は、指定されたIDに対応するサイトを返します。
func Lookup(id string) (Site, error) {
	for _, s := range directory {
		if s.ID == id {
			return s, nil
		}
	}
	return Site{}, fmt.Errorf("サイト '%s' は登録されていません", id)
}

// All は、登録済みサイトのコピーを返します。
func All() []Site {
	out := make([]Site, len(directory))
	copy(out, directory)
	return out
}

// Selection は、現在選択中のサイトを保持します。
// 永続化は呼び出し側の責務です。
type Selection struct {
	mu sync.RWMutex
	id string
}

// NewSelection は、id を初期選択とする Selection を返します。
// 未登録の id の場合は DefaultSiteID を使います。
func NewSelection(id string) *Selection {
	if _, err := Lookup(id); err != nil {
		id = DefaultSiteID
	}
	return &Selection{id: id}
}

// Current は現在選択中のサイトを返します。
func (s *Selection) Current() Site {
	s.mu.RLock()
	defer s.mu.RUnlock()
	current, err := Lookup(s.id)
	if err != nil {
		current, _ = Lookup(DefaultSiteID)
	}
	return current
}

// Select は選択中のサイトを変更します。
func (s *Selection) Select(id string) error {
	if _, err := Lookup(id); err != nil {
		return err
	}
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
	return nil
}
