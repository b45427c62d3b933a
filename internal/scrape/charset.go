package scrape

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

// DecodeHTML は、Content-Type ヘッダと <meta charset> から文字コードを判定し、UTF-8 の文字列に変換します。
// 判定に失敗した場合は UTF-8 とみなします。
func DecodeHTML(body []byte, contentType string) (string, error) {
	body = bytes.TrimPrefix(body, []byte("\xef\xbb\xbf"))
	enc, name, _ := charset.DetermineEncoding(body, contentType)
	if enc == nil || name == "utf-8" {
		if !utf8.Valid(body) {
			slog.Debug("UTF-8 として不正なバイト列を含むHTMLです", "content_type", contentType)
		}
		return string(body), nil
	}

	reader := transform.NewReader(bytes.NewReader(body), enc.NewDecoder())
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("文字コード(%s)の変換に失敗しました: %w", name, err)
	}
	return string(decoded), nil
}
