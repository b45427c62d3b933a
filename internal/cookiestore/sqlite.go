package cookiestore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite は、SQLite のファイルに Cookie を永続化する Store です。
type SQLite struct {
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

var _ Store = (*SQLite)(nil)

// OpenSQLite は dbPath の SQLite データベースを開き、必要ならスキーマを作成します。
func OpenSQLite(dbPath string) (*SQLite, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("Cookie DB のディレクトリ作成に失敗しました: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("Cookie DB を開けませんでした: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma %q の設定に失敗しました: %w", pragma, err)
		}
	}

	store := &SQLite{db: db, dbPath: dbPath, now: time.Now}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("Cookie DB のスキーマ作成に失敗しました: %w", err)
	}

	slog.Debug("Cookie DB を初期化しました", "path", dbPath)
	return store, nil
}

func (s *SQLite) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cookies (
		domain     TEXT NOT NULL,
		name       TEXT NOT NULL,
		path       TEXT NOT NULL DEFAULT '',
		value      TEXT NOT NULL DEFAULT '',
		expires_at INTEGER NOT NULL DEFAULT 0,
		secure     BOOLEAN NOT NULL DEFAULT 0,
		http_only  BOOLEAN NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (domain, name, path)
	);
	CREATE INDEX IF NOT EXISTS idx_cookies_domain ON cookies(domain);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close はデータベースを閉じます。
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Cookies は Store を実装します。期限切れの Cookie は返しません。
func (s *SQLite) Cookies(ctx context.Context, domain string) ([]*http.Cookie, error) {
	now := s.now()
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, path, value, expires_at, secure, http_only
		FROM cookies
		WHERE domain = ? AND (expires_at = 0 OR expires_at > ?)
		ORDER BY name, path`, NormalizeDomain(domain), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("Cookie の読み込みに失敗しました (%s): %w", domain, err)
	}
	defer rows.Close()

	var cookies []*http.Cookie
	for rows.Next() {
		var (
			c         http.Cookie
			expiresAt int64
		)
		if err := rows.Scan(&c.Name, &c.Path, &c.Value, &expiresAt, &c.Secure, &c.HttpOnly); err != nil {
			return nil, fmt.Errorf("Cookie の読み込みに失敗しました (%s): %w", domain, err)
		}
		if expiresAt > 0 {
			c.Expires = time.Unix(expiresAt, 0)
		}
		cookies = append(cookies, &c)
	}
	return cookies, rows.Err()
}

// SetCookies は Store を実装します。同じ名前とパスの Cookie は上書きされます。
func (s *SQLite) SetCookies(ctx context.Context, domain string, cookies []*http.Cookie) error {
	d := NormalizeDomain(domain)
	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	for _, c := range cookies {
		if c == nil || c.Name == "" {
			continue
		}
		exp := expiry(c, now)
		if c.MaxAge < 0 || expired(exp, now) {
			if _, err := tx.ExecContext(ctx, `DELETE FROM cookies WHERE domain = ? AND name = ? AND path = ?`, d, c.Name, c.Path); err != nil {
				return fmt.Errorf("Cookie '%s' の削除に失敗しました: %w", c.Name, err)
			}
			continue
		}
		var expiresAt int64
		if !exp.IsZero() {
			expiresAt = exp.Unix()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cookies (domain, name, path, value, expires_at, secure, http_only, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(domain, name, path) DO UPDATE SET
				value = excluded.value,
				expires_at = excluded.expires_at,
				secure = excluded.secure,
				http_only = excluded.http_only,
				updated_at = excluded.updated_at`,
			d, c.Name, c.Path, c.Value, expiresAt, c.Secure, c.HttpOnly, now.Unix())
		if err != nil {
			return fmt.Errorf("Cookie '%s' の保存に失敗しました: %w", c.Name, err)
		}
	}
	return tx.Commit()
}

// Domains は Store を実装します。
func (s *SQLite) Domains(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT domain FROM cookies
		WHERE expires_at = 0 OR expires_at > ?
		ORDER BY domain`, s.now().Unix())
	if err != nil {
		return nil, fmt.Errorf("ドメイン一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var domains []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("ドメイン一覧の取得に失敗しました: %w", err)
		}
		domains = append(domains, d)
	}
	return domains, rows.Err()
}
