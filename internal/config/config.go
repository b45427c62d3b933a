// Package config は、アプリケーションの設定ファイル (config.json / config.yaml) の構造定義と、
// その読み込み、解決 (検索テンプレートのマージなど) に関する機能を提供します。
package config

// CompatibleVersion は、読み込み可能な設定ファイルのバージョンです。
const CompatibleVersion = "1.0"

// 既定値
const (
	DefaultUserAgent            = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	DefaultAcceptLanguage       = "en-US,en;q=0.9"
	DefaultRequestTimeoutMillis = 30000
	DefaultMaxIndexPages        = 15
	DefaultMaxConcurrentFetches = 4
	DefaultLogLevel             = "info"
	// RandomUserAgent を user_agent に指定すると、プロセスごとにブラウザの User-Agent を1つ選びます。
	RandomUserAgent = "random"
)

// Config は設定ファイル全体を表すルート構造体です。
type Config struct {
	ConfigVersion        string            `json:"config_version" yaml:"config_version"`
	Network              NetworkSettings   `json:"network" yaml:"network"`
	DefaultSite          string            `json:"default_site,omitempty" yaml:"default_site,omitempty"`
	CookieDBPath         string            `json:"cookie_db_path,omitempty" yaml:"cookie_db_path,omitempty"`
	MaxIndexPages        int               `json:"max_index_pages,omitempty" yaml:"max_index_pages,omitempty"`
	MaxConcurrentFetches int               `json:"max_concurrent_fetches,omitempty" yaml:"max_concurrent_fetches,omitempty"`
	RevealSpoilers       bool              `json:"reveal_spoilers,omitempty" yaml:"reveal_spoilers,omitempty"`
	SearchTemplates      map[string]Search `json:"search_templates,omitempty" yaml:"search_templates,omitempty"`
	Searches             []Search          `json:"searches,omitempty" yaml:"searches,omitempty"`
	EnableLogFile        bool              `json:"enable_log_file" yaml:"enable_log_file"`
	LogFilePath          string            `json:"log_file_path,omitempty" yaml:"log_file_path,omitempty"`
	LogLevel             string            `json:"log_level,omitempty" yaml:"log_level,omitempty"`
}

// NetworkSettings は、HTTPリクエストに関するグローバルな設定を保持します。
type NetworkSettings struct {
	UserAgent      string            `json:"user_agent" yaml:"user_agent"`
	AcceptLanguage string            `json:"accept_language,omitempty" yaml:"accept_language,omitempty"`
	DefaultHeaders map[string]string `json:"default_headers,omitempty" yaml:"default_headers,omitempty"`
	// PerDomainIntervalMillis はドメインごとのリクエスト間隔です。サブドメインにも適用されます。
	PerDomainIntervalMillis map[string]int `json:"per_domain_interval_ms,omitempty" yaml:"per_domain_interval_ms,omitempty"`
	// DefaultIntervalMillis は PerDomainIntervalMillis に無いホストの間隔です。0 は無制限。
	DefaultIntervalMillis int `json:"default_interval_ms,omitempty" yaml:"default_interval_ms,omitempty"`
	RequestTimeoutMillis  int `json:"request_timeout_ms" yaml:"request_timeout_ms"`
}

// Search は、複数の板をまたいだ検索の条件です。
type Search struct {
	Name              string   `json:"name,omitempty" yaml:"name,omitempty"`
	UseTemplate       string   `json:"use_template,omitempty" yaml:"use_template,omitempty"`
	Site              string   `json:"site,omitempty" yaml:"site,omitempty"`
	Boards            []string `json:"boards,omitempty" yaml:"boards,omitempty"`
	IncludeAnyText    []string `json:"include_any_text,omitempty" yaml:"include_any_text,omitempty"`
	ExcludeKeywords   []string `json:"exclude_keywords,omitempty" yaml:"exclude_keywords,omitempty"`
	MinimumMediaCount int      `json:"minimum_media_count,omitempty" yaml:"minimum_media_count,omitempty"`
}

// Default は、設定ファイルが無い場合に使う設定を返します。
func Default() *Config {
	cfg := &Config{ConfigVersion: CompatibleVersion}
	cfg.applyDefaults()
	return cfg
}

// FindSearch は、名前で検索条件を探します。
func (c *Config) FindSearch(name string) (Search, bool) {
	for _, s := range c.Searches {
		if s.Name == name {
			return s, true
		}
	}
	return Search{}, false
}

func (c *Config) applyDefaults() {
	if c.Network.UserAgent == "" {
		c.Network.UserAgent = DefaultUserAgent
	}
	if c.Network.AcceptLanguage == "" {
		c.Network.AcceptLanguage = DefaultAcceptLanguage
	}
	if c.Network.RequestTimeoutMillis <= 0 {
		c.Network.RequestTimeoutMillis = DefaultRequestTimeoutMillis
	}
	if c.DefaultSite == "" {
		c.DefaultSite = "4chan"
	}
	if c.MaxIndexPages <= 0 {
		c.MaxIndexPages = DefaultMaxIndexPages
	}
	if c.MaxConcurrentFetches <= 0 {
		c.MaxConcurrentFetches = DefaultMaxConcurrentFetches
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}
