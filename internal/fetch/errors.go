package fetch

import (
	"errors"
	"fmt"
)

// ErrNotFound は、全ての候補が HTTP 404 を返したことを示します。
// スレッドの場合は、削除済みまたは落ちたものとして扱われます。
var ErrNotFound = errors.New("対象が見つかりません (404)")

// ErrUnsupported は、サイトのエンジンがその操作に対応していないことを示します。
var ErrUnsupported = errors.New("このサイトでは対応していない操作です")

// ChallengeError は、Bot 対策のチャレンジページによって取得が阻まれたことを示します。
// RemediationURL をブラウザで開いて解除し、得た Cookie を保存した後に再試行します。
type ChallengeError struct {
	URL            string
	RemediationURL string
}

func (e *ChallengeError) Error() string {
	return fmt.Sprintf("チャレンジページを検出しました (URL: %s, 解除先: %s)", e.URL, e.RemediationURL)
}

// ExhaustedError は、全ての候補の取得に失敗したことを示します。
// Last には最後に発生したエラーが入ります。
type ExhaustedError struct {
	Op   string
	URL  string
	Last error
}

func (e *ExhaustedError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("%s: 全ての候補で取得に失敗しました", e.Op)
	}
	return fmt.Sprintf("%s: 全ての候補で取得に失敗しました (最後のURL: %s): %v", e.Op, e.URL, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// IsNotFound は err が ErrNotFound かどうかを判定します。
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsChallenge は err が ChallengeError を含むかどうかを判定し、含む場合はそれを返します。
func IsChallenge(err error) (*ChallengeError, bool) {
	var ce *ChallengeError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// IsExhausted は err が ExhaustedError かどうかを判定します。
func IsExhausted(err error) bool {
	var ee *ExhaustedError
	return errors.As(err, &ee)
}
