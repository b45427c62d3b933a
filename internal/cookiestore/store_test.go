package cookiestore

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDomain(t *testing.T) {
	tests := map[string]string{
		"Boards.4chan.org":         "boards.4chan.org",
		".4chan.org":               "4chan.org",
		"https://endchan.net/art/": "endchan.net",
		"localhost:8080":           "localhost",
		"  kohlchan.net  ":         "kohlchan.net",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeDomain(in), in)
	}
}

// exerciseStore は Memory と SQLite の共通の振る舞いを検証します。
func exerciseStore(t *testing.T, store Store, setNow func(time.Time)) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	setNow(base)

	// Arrange
	err := store.SetCookies(ctx, ".8kun.top", []*http.Cookie{
		{Name: "cf_clearance", Value: "abc", Path: "/", MaxAge: 3600},
		{Name: "session", Value: "s1"},
		{Name: "", Value: "ignored"},
	})
	require.NoError(t, err)

	// Act
	got, err := store.Cookies(ctx, "8KUN.top")

	// Assert
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "cf_clearance", got[0].Name)
	assert.Equal(t, "abc", got[0].Value)
	assert.Equal(t, "session", got[1].Name)

	// 上書き
	require.NoError(t, store.SetCookies(ctx, "8kun.top", []*http.Cookie{{Name: "session", Value: "s2"}}))
	got, err = store.Cookies(ctx, "8kun.top")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "s2", got[1].Value)

	domains, err := store.Domains(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"8kun.top"}, domains)

	// 期限切れ
	setNow(base.Add(2 * time.Hour))
	got, err = store.Cookies(ctx, "8kun.top")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "session", got[0].Name)

	// 削除
	require.NoError(t, store.SetCookies(ctx, "8kun.top", []*http.Cookie{{Name: "session", MaxAge: -1}}))
	got, err = store.Cookies(ctx, "8kun.top")
	require.NoError(t, err)
	assert.Empty(t, got)

	other, err := store.Cookies(ctx, "endchan.net")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestMemory(t *testing.T) {
	store := NewMemory()
	exerciseStore(t, store, func(now time.Time) { store.now = func() time.Time { return now } })
}

func TestSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cookies.db")
	store, err := OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	exerciseStore(t, store, func(now time.Time) { store.now = func() time.Time { return now } })
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cookies.db")

	first, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, first.SetCookies(ctx, "endchan.net", []*http.Cookie{{Name: "captchaid", Value: "x", HttpOnly: true}}))
	require.NoError(t, first.Close())

	second, err := OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { second.Close() })

	got, err := second.Cookies(ctx, "endchan.net")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "x", got[0].Value)
	assert.True(t, got[0].HttpOnly)
}
