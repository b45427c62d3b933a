package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndResolve_SearchTemplates(t *testing.T) {
	// Arrange
	data, err := os.ReadFile(filepath.Join("testdata", "test_config.json"))
	require.NoError(t, err)

	// Act
	cfg, err := ParseAndResolve(data)

	// Assert
	require.NoError(t, err)
	require.Len(t, cfg.Searches, 3)

	withTemplate := cfg.Searches[0]
	assert.Equal(t, "Search With Template", withTemplate.Name)
	assert.Equal(t, "lainchan", withTemplate.Site)
	assert.Equal(t, []string{"tech", "lam"}, withTemplate.Boards)
	assert.Equal(t, []string{"emacs"}, withTemplate.IncludeAnyText)
	assert.Equal(t, 1, withTemplate.MinimumMediaCount)

	without := cfg.Searches[1]
	assert.Equal(t, "4chan", without.Site)
	assert.Equal(t, []string{"g"}, without.Boards)
	assert.Zero(t, without.MinimumMediaCount)

	override := cfg.Searches[2]
	assert.Equal(t, []string{"cyb"}, override.Boards)
	assert.Zero(t, override.MinimumMediaCount)

	found, ok := cfg.FindSearch("Search Without Template")
	assert.True(t, ok)
	assert.Equal(t, without, found)
}

func TestParseAndResolve_AppliesDefaults(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", "test_config.json"))
	require.NoError(t, err)

	cfg, err := ParseAndResolve(data)

	require.NoError(t, err)
	assert.Equal(t, "TestAgent/1.0", cfg.Network.UserAgent)
	assert.Equal(t, DefaultAcceptLanguage, cfg.Network.AcceptLanguage)
	assert.Equal(t, DefaultRequestTimeoutMillis, cfg.Network.RequestTimeoutMillis)
	assert.Equal(t, 1000, cfg.Network.PerDomainIntervalMillis["4cdn.org"])
	assert.Equal(t, DefaultMaxIndexPages, cfg.MaxIndexPages)
	assert.Equal(t, DefaultMaxConcurrentFetches, cfg.MaxConcurrentFetches)
	assert.Equal(t, "lainchan", cfg.DefaultSite)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadAndResolve_YAML(t *testing.T) {
	cfg, err := LoadAndResolve(filepath.Join("testdata", "test_config.yaml"))

	require.NoError(t, err)
	assert.Equal(t, RandomUserAgent, cfg.Network.UserAgent)
	assert.Equal(t, "ja,en;q=0.8", cfg.Network.AcceptLanguage)
	assert.Equal(t, "https://boards.4chan.org/", cfg.Network.DefaultHeaders["Referer"])
	assert.Equal(t, 15000, cfg.Network.RequestTimeoutMillis)
	assert.Equal(t, "8kun", cfg.DefaultSite)
	assert.Equal(t, 5, cfg.MaxIndexPages)
	assert.True(t, cfg.EnableLogFile)
	assert.Equal(t, "gibr.log", cfg.LogFilePath)
	require.Len(t, cfg.Searches, 1)
	assert.Equal(t, "8kun", cfg.Searches[0].Site)
}

func TestParseAndResolve_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"構文エラー", "{\n  \"config_version\": \"1.0\",\n  \"network\": {,\n}", "行 3"},
		{"型エラー", `{"config_version": "1.0", "max_index_pages": "many"}`, "max_index_pages"},
		{"バージョン", `{"config_version": "0.9"}`, "0.9"},
		{"未定義テンプレート", `{"config_version": "1.0", "searches": [{"name": "x", "use_template": "nope"}]}`, "nope"},
		{"不明なサイト", `{"config_version": "1.0", "default_site": "nowhere"}`, "default_site"},
		{"ログレベル", `{"config_version": "1.0", "log_level": "verbose"}`, "verbose"},
		{"ログファイル", `{"config_version": "1.0", "enable_log_file": true}`, "log_file_path"},
		{"板なし", `{"config_version": "1.0", "searches": [{"name": "x"}]}`, "boards"},
		{"重複", `{"config_version": "1.0", "searches": [{"name": "x", "boards": ["a"]}, {"name": "x", "boards": ["b"]}]}`, "重複"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAndResolve([]byte(tt.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseAndResolveYAML_SyntaxError(t *testing.T) {
	_, err := ParseAndResolveYAML([]byte("config_version: \"1.0\"\nnetwork: [unclosed\n"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "YAML")
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, CompatibleVersion, cfg.ConfigVersion)
	assert.Equal(t, DefaultUserAgent, cfg.Network.UserAgent)
	assert.Equal(t, "4chan", cfg.DefaultSite)
	assert.NoError(t, cfg.validate())
}

func TestComputeLineAndColumn(t *testing.T) {
	data := []byte("ab\ncd\nef")

	line, col := computeLineAndColumn(data, 4)
	assert.Equal(t, 2, line)
	assert.Equal(t, 2, col)

	line, col = computeLineAndColumn(data, 100)
	assert.Equal(t, 0, line)
	assert.Equal(t, 0, col)
}
