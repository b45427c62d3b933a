package fetch

import (
	"context"
	"fmt"
)

// SolveFunc は、チャレンジの解除を利用者に依頼し、解除できたら nil を返します。
// 例えば RemediationURL をブラウザで開いてもらい、得た Cookie をストアに保存します。
type SolveFunc func(ctx context.Context, challenge *ChallengeError) error

// RetryAfterChallenge は op を実行し、チャレンジページで失敗した場合は solve の完了後に1回だけ再実行します。
func RetryAfterChallenge[T any](ctx context.Context, op func(ctx context.Context) (T, error), solve SolveFunc) (T, error) {
	result, err := op(ctx)
	if err == nil {
		return result, nil
	}
	challenge, ok := IsChallenge(err)
	if !ok || solve == nil {
		return result, err
	}
	if solveErr := solve(ctx, challenge); solveErr != nil {
		var zero T
		return zero, fmt.Errorf("チャレンジを解除できませんでした (%s): %w", challenge.RemediationURL, solveErr)
	}
	return op(ctx)
}
