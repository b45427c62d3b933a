package media

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

// unreliableHosts は、配信が不安定なホストと、その代替ホストの一覧 (試行順) です。
var unreliableHosts = map[string][]string{
	"media.128ducks.com": {"media.8kun.top", "8kun.top"},
}

// MirrorCandidates は、rawURL を先頭に、既知のミラーホストに置き換えたURLを順に並べて返します。
// 対象外のホストであれば rawURL のみを返します。
func MirrorCandidates(rawURL string) []string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return []string{rawURL}
	}
	mirrors, ok := unreliableHosts[u.Hostname()]
	if !ok {
		return []string{rawURL}
	}
	candidates := make([]string, 0, len(mirrors)+1)
	candidates = append(candidates, rawURL)
	for _, host := range mirrors {
		alt := *u
		alt.Host = host
		candidates = append(candidates, alt.String())
	}
	return candidates
}

// GetFunc は、URLの内容を取得する関数です。
type GetFunc func(ctx context.Context, rawURL string) ([]byte, error)

// FetchFirst は candidates を順に取得し、最初に成功した内容とそのURLを返します。
// 成功した時点で残りの候補は破棄されます。
func FetchFirst(ctx context.Context, get GetFunc, candidates []string) ([]byte, string, error) {
	if len(candidates) == 0 {
		return nil, "", errors.New("取得候補のURLがありません")
	}
	var lastErr error
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		body, err := get(ctx, c)
		if err == nil {
			return body, c, nil
		}
		lastErr = err
	}
	return nil, "", fmt.Errorf("全てのミラー (%d件) で取得に失敗しました: %w", len(candidates), lastErr)
}
