package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"GoImageBoardReader/internal/site"
)

// searchPatch は、検索条件をデコードするための中間ヘルパー構造体です。
// nil のフィールドはテンプレートの値を引き継ぎます。
type searchPatch struct {
	Name              *string   `json:"name,omitempty" yaml:"name,omitempty"`
	UseTemplate       string    `json:"use_template,omitempty" yaml:"use_template,omitempty"`
	Site              *string   `json:"site,omitempty" yaml:"site,omitempty"`
	Boards            *[]string `json:"boards,omitempty" yaml:"boards,omitempty"`
	IncludeAnyText    *[]string `json:"include_any_text,omitempty" yaml:"include_any_text,omitempty"`
	ExcludeKeywords   *[]string `json:"exclude_keywords,omitempty" yaml:"exclude_keywords,omitempty"`
	MinimumMediaCount *int      `json:"minimum_media_count,omitempty" yaml:"minimum_media_count,omitempty"`
}

// rawConfig は、設定ファイルをデコードするための中間構造体です。
type rawConfig struct {
	ConfigVersion        string            `json:"config_version" yaml:"config_version"`
	Network              NetworkSettings   `json:"network" yaml:"network"`
	DefaultSite          string            `json:"default_site" yaml:"default_site"`
	CookieDBPath         string            `json:"cookie_db_path" yaml:"cookie_db_path"`
	MaxIndexPages        int               `json:"max_index_pages" yaml:"max_index_pages"`
	MaxConcurrentFetches int               `json:"max_concurrent_fetches" yaml:"max_concurrent_fetches"`
	RevealSpoilers       bool              `json:"reveal_spoilers" yaml:"reveal_spoilers"`
	SearchTemplates      map[string]Search `json:"search_templates" yaml:"search_templates"`
	Searches             []searchPatch     `json:"searches" yaml:"searches"`
	EnableLogFile        bool              `json:"enable_log_file" yaml:"enable_log_file"`
	LogFilePath          string            `json:"log_file_path" yaml:"log_file_path"`
	LogLevel             string            `json:"log_level" yaml:"log_level"`
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// LoadAndResolve は、指定されたパスから設定ファイルを読み込み、解析と解決を行います。
// 拡張子が .yaml / .yml の場合は YAML、それ以外は JSON として解析します。
func LoadAndResolve(path string) (*Config, error) {
	absPath, _ := filepath.Abs(path)
	cwd, _ := os.Getwd()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイル '%s' の読み込みに失敗しました (Abs: '%s', Cwd: '%s'): %w", path, absPath, cwd, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseAndResolveYAML(data)
	default:
		return ParseAndResolve(data)
	}
}

// ParseAndResolve は、JSON の設定データを解析し、テンプレートを解決して最終的な設定を返します。
func ParseAndResolve(data []byte) (*Config, error) {
	var rawCfg rawConfig
	if err := json.Unmarshal(data, &rawCfg); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError

		if errors.As(err, &syntaxErr) {
			line, col := computeLineAndColumn(data, syntaxErr.Offset)
			return nil, fmt.Errorf("設定ファイルのJSON構文エラー (行 %d, 列 %d): %w", line, col, err)
		}
		if errors.As(err, &typeErr) {
			line, col := computeLineAndColumn(data, typeErr.Offset)
			return nil, fmt.Errorf("設定ファイルの型エラー (行 %d, 列 %d, フィールド '%s'): 期待値 %v, 実際 %v - %w",
				line, col, typeErr.Field, typeErr.Type, typeErr.Value, err)
		}
		return nil, fmt.Errorf("設定ファイルの解析に失敗しました: %w", err)
	}
	return resolve(&rawCfg)
}

// ParseAndResolveYAML は、YAML の設定データを解析し、テンプレートを解決して最終的な設定を返します。
// yaml.v3 のエラーメッセージには行番号が含まれます。
func ParseAndResolveYAML(data []byte) (*Config, error) {
	var rawCfg rawConfig
	if err := yaml.Unmarshal(data, &rawCfg); err != nil {
		return nil, fmt.Errorf("設定ファイルのYAML解析に失敗しました: %w", err)
	}
	return resolve(&rawCfg)
}

func resolve(rawCfg *rawConfig) (*Config, error) {
	if rawCfg.ConfigVersion != CompatibleVersion {
		return nil, fmt.Errorf("サポートされていない設定バージョン '%s' です。'%s' が必要です。", rawCfg.ConfigVersion, CompatibleVersion)
	}

	resolvedConfig := &Config{
		ConfigVersion:        rawCfg.ConfigVersion,
		Network:              rawCfg.Network,
		DefaultSite:          strings.TrimSpace(rawCfg.DefaultSite),
		CookieDBPath:         rawCfg.CookieDBPath,
		MaxIndexPages:        rawCfg.MaxIndexPages,
		MaxConcurrentFetches: rawCfg.MaxConcurrentFetches,
		RevealSpoilers:       rawCfg.RevealSpoilers,
		SearchTemplates:      rawCfg.SearchTemplates,
		Searches:             make([]Search, 0, len(rawCfg.Searches)),
		EnableLogFile:        rawCfg.EnableLogFile,
		LogFilePath:          rawCfg.LogFilePath,
		LogLevel:             strings.ToLower(strings.TrimSpace(rawCfg.LogLevel)),
	}
	resolvedConfig.applyDefaults()

	for _, patch := range rawCfg.Searches {
		var resolved Search
		if patch.UseTemplate != "" {
			template, ok := rawCfg.SearchTemplates[patch.UseTemplate]
			if !ok {
				name := "unknown"
				if patch.Name != nil {
					name = *patch.Name
				}
				return nil, fmt.Errorf("検索 '%s' が未定義のテンプレート '%s' を使用しています", name, patch.UseTemplate)
			}
			resolved = template
		}
		applyPatch(&resolved, &patch)
		if resolved.Site == "" {
			resolved.Site = resolvedConfig.DefaultSite
		}
		resolvedConfig.Searches = append(resolvedConfig.Searches, resolved)
	}

	if err := resolvedConfig.validate(); err != nil {
		return nil, err
	}
	return resolvedConfig, nil
}

// validate は、解決済みの設定の整合性を検証します。
func (c *Config) validate() error {
	if _, err := site.Lookup(c.DefaultSite); err != nil {
		return fmt.Errorf("default_site が不正です: %w", err)
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("log_level '%s' は不正です (debug, info, warn, error のいずれか)", c.LogLevel)
	}
	if c.EnableLogFile && c.LogFilePath == "" {
		return errors.New("enable_log_file が true の場合は log_file_path が必要です")
	}
	for domain, interval := range c.Network.PerDomainIntervalMillis {
		if interval < 0 {
			return fmt.Errorf("per_domain_interval_ms の '%s' が負の値です: %d", domain, interval)
		}
	}
	seen := make(map[string]bool, len(c.Searches))
	for i, s := range c.Searches {
		if s.Name == "" {
			return fmt.Errorf("searches[%d] に name がありません", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("検索 '%s' が重複しています", s.Name)
		}
		seen[s.Name] = true
		if _, err := site.Lookup(s.Site); err != nil {
			return fmt.Errorf("検索 '%s' のサイトが不正です: %w", s.Name, err)
		}
		if len(s.Boards) == 0 {
			return fmt.Errorf("検索 '%s' に boards がありません", s.Name)
		}
	}
	return nil
}

// applyPatch は、patchの非nilフィールドをtargetに上書きします。
func applyPatch(target *Search, patch *searchPatch) {
	target.UseTemplate = patch.UseTemplate
	if patch.Name != nil {
		target.Name = *patch.Name
	}
	if patch.Site != nil {
		target.Site = *patch.Site
	}
	if patch.Boards != nil {
		target.Boards = *patch.Boards
	}
	if patch.IncludeAnyText != nil {
		target.IncludeAnyText = *patch.IncludeAnyText
	}
	if patch.ExcludeKeywords != nil {
		target.ExcludeKeywords = *patch.ExcludeKeywords
	}
	if patch.MinimumMediaCount != nil {
		target.MinimumMediaCount = *patch.MinimumMediaCount
	}
}

// computeLineAndColumn は、バイトオフセットから行番号と列番号（1始まり）を計算します。
func computeLineAndColumn(data []byte, offset int64) (int, int) {
	if offset < 0 || int(offset) > len(data) {
		return 0, 0
	}
	line := 1
	lastLineStart := 0
	for i, b := range data {
		if int64(i) == offset {
			return line, i - lastLineStart + 1
		}
		if b == '\n' {
			line++
			lastLineStart = i + 1
		}
	}
	return line, int(offset) - lastLineStart + 1
}
