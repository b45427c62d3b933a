package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"GoImageBoardReader/internal/decode"
	"GoImageBoardReader/internal/network"
	"GoImageBoardReader/internal/scrape"
)

// verdict は、候補のレスポンスを採用するかどうかの判定です。
type verdict int

const (
	rejected verdict = iota
	accepted
	// useless は、JSON として復元できたが中身が実用に足らないことを示します。
	// 残りの JSON 候補は試さずに HTML へ進みます。
	useless
)

// acceptFunc は、2xx のレスポンスをレコードに変換し、採用の可否を判定します。
type acceptFunc[T any] func(ctx context.Context, c candidate, resp *network.Response) ([]T, verdict)

// probe は、候補を先頭から1つずつ順に試し、最初に採用されたレコードを返します。
//
// ネットワークエラー、2xx 以外のステータス、形式の不一致の場合は次の候補へ進みます。
// チャレンジページを検出した時点で *ChallengeError を返して終了します。
// 全ての候補に失敗した場合、得られた HTTP レスポンスが全て 404 であれば ErrNotFound、
// それ以外は *ExhaustedError を返します。
func probe[T any](ctx context.Context, f *Fetcher, op, remediation string, cands []candidate, accept acceptFunc[T]) ([]T, error) {
	var (
		lastErr  error
		lastURL  string
		notFound int
		answered int
		skipJSON bool
	)

	for _, c := range cands {
		if skipJSON && c.format == formatJSON {
			f.logger.Debug("有用でないJSONを受け取ったため、JSON候補をスキップします", "op", op, "url", c.url)
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		lastURL = c.url
		resp, err := f.client.Get(ctx, c.url)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			var httpErr *network.HTTPError
			if errors.As(err, &httpErr) {
				if scrape.DetectChallenge(httpErr.Body) {
					return nil, &ChallengeError{URL: c.url, RemediationURL: remediation}
				}
				if httpErr.StatusCode == http.StatusNotFound {
					notFound++
				} else {
					answered++
				}
			}
			f.logger.Debug("候補の取得に失敗しました", "op", op, "url", c.url, "format", c.format, "error", err)
			lastErr = err
			continue
		}

		answered++
		if isChallengeBody(c, resp.Body) {
			return nil, &ChallengeError{URL: c.url, RemediationURL: remediation}
		}

		records, v := accept(ctx, c, resp)
		switch v {
		case accepted:
			f.logger.Debug("候補を採用しました", "op", op, "url", c.url, "format", c.format, "records", len(records))
			return records, nil
		case useless:
			skipJSON = true
			lastErr = fmt.Errorf("%s: 有用な内容を含まない応答です", c.url)
		default:
			lastErr = fmt.Errorf("%s: 既知の形式に一致しません", c.url)
		}
		f.logger.Debug("候補を採用しませんでした", "op", op, "url", c.url, "format", c.format, "reason", lastErr)
	}

	if notFound > 0 && answered == 0 {
		return nil, fmt.Errorf("%s (%s): %w", op, lastURL, ErrNotFound)
	}
	return nil, &ExhaustedError{Op: op, URL: lastURL, Last: lastErr}
}

// getJSON は url を取得して汎用ツリーに変換します。チャレンジページは *ChallengeError になります。
func (f *Fetcher) getJSON(ctx context.Context, url, remediation string) (any, error) {
	resp, err := f.client.Get(ctx, url)
	if err != nil {
		var httpErr *network.HTTPError
		if errors.As(err, &httpErr) && scrape.DetectChallenge(httpErr.Body) {
			return nil, &ChallengeError{URL: url, RemediationURL: remediation}
		}
		return nil, err
	}
	if !json.Valid(resp.Body) && scrape.DetectChallenge(resp.Body) {
		return nil, &ChallengeError{URL: url, RemediationURL: remediation}
	}
	tree, err := decode.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("JSONの解析に失敗しました (%s): %w", url, err)
	}
	return tree, nil
}

// isChallengeBody は、2xx の応答がチャレンジページかどうかを判定します。
// JSON 候補で JSON として正しい応答はデータとして扱い、検査しません。
func isChallengeBody(c candidate, body []byte) bool {
	if c.format == formatJSON && json.Valid(body) {
		return false
	}
	return scrape.DetectChallenge(body)
}
