// Package decode は、各エンジンの JSON レスポンスを正規化されたレコードに変換します。
//
// 各デコーダはJSONを汎用ツリー (map[string]any / []any) として受け取る純粋関数で、
// 形が合わない場合はエラーではなく NoMatch を返します。呼び出し側は次のデコーダ
// (または次のエンドポイント候補) を試すことができます。
package decode

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Result は、デコードの結果を表すタグ付きの値です。
type Result[T any] struct {
	Records []T
	Matched bool
}

// Match は、records を保持する一致結果を返します。
// records が空の場合は NoMatch と同じ扱いになります。
func Match[T any](records []T) Result[T] {
	return Result[T]{Records: records, Matched: len(records) > 0}
}

// NoMatch は、形が合わなかったことを示す結果を返します。
func NoMatch[T any]() Result[T] {
	return Result[T]{}
}

// Parse は、JSON のバイト列を汎用ツリーに変換します。数値は json.Number として保持されます。
func Parse(body []byte) (any, error) {
	body = bytes.TrimPrefix(body, []byte("\xef\xbb\xbf"))
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func asObject(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func asArray(v any) ([]any, bool) {
	a, ok := v.([]any)
	return a, ok
}

// intOf は、JSON の数値・数値文字列・Go の整数型を int64 として解釈します。
func intOf(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return int64(f), true
		}
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return int64(f), true
		}
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// intField は、keys の順に最初に整数として解釈できた値を返します。
func intField(obj map[string]any, keys ...string) (int64, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			if i, ok := intOf(v); ok {
				return i, true
			}
		}
	}
	return 0, false
}

// intPtrField は intField の結果を *int で返します。見つからない場合は nil です。
func intPtrField(obj map[string]any, keys ...string) *int {
	if i, ok := intField(obj, keys...); ok {
		v := int(i)
		return &v
	}
	return nil
}

// stringField は、keys の順に最初に見つかった空でない文字列を返します。
func stringField(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}

// boolField は、1/true/"1"/"true" を真として解釈します。
func boolField(obj map[string]any, keys ...string) bool {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case bool:
			if v {
				return true
			}
		case string:
			s := strings.ToLower(strings.TrimSpace(v))
			if s == "1" || s == "true" || s == "yes" {
				return true
			}
		default:
			if i, ok := intOf(v); ok && i != 0 {
				return true
			}
		}
	}
	return false
}

func hasAnyKey(obj map[string]any, keys ...string) bool {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return true
		}
	}
	return false
}
