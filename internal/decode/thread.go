package decode

import (
	"strings"
	"time"

	"GoImageBoardReader/internal/model"
)

// ThreadDecoder は、汎用ツリーからスレッド内のレス一覧を復元するデコーダです。
// threadNo は、レスが属するスレッド番号として各 Post に設定されます。
type ThreadDecoder func(tree any, threadNo int64) Result[model.Post]

// ThreadChain は、スレッド用デコーダを試行順に並べたものです。
var ThreadChain = []ThreadDecoder{
	DecodeWrappedPosts,
	DecodeIDPostArray,
	DecodeClassicPostArray,
	DecodeSinglePost,
}

// DecodeThread は、ThreadChain を順に試し、最初に一致した結果を返します。
func DecodeThread(tree any, threadNo int64) Result[model.Post] {
	for _, dec := range ThreadChain {
		if res := dec(tree, threadNo); res.Matched {
			return res
		}
	}
	return NoMatch[model.Post]()
}

// DecodeThreadBytes は、body を解析して DecodeThread を適用します。
func DecodeThreadBytes(body []byte, threadNo int64) Result[model.Post] {
	tree, err := Parse(body)
	if err != nil {
		return NoMatch[model.Post]()
	}
	return DecodeThread(tree, threadNo)
}

// DecodeWrappedPosts は {posts:[...]} 形式を扱います。
// Lynxchan のスレッドJSONはラッパー自体が OP なので、posts の前に置きます。
func DecodeWrappedPosts(tree any, threadNo int64) Result[model.Post] {
	obj, ok := asObject(tree)
	if !ok {
		return NoMatch[model.Post]()
	}
	entries, ok := asArray(obj["posts"])
	if !ok {
		return NoMatch[model.Post]()
	}

	var posts []model.Post
	if hasAnyKey(obj, "threadId") {
		if op, ok := postFromLynx(obj, threadNo); ok {
			posts = append(posts, op)
		}
	}
	for _, e := range entries {
		eo, ok := asObject(e)
		if !ok {
			continue
		}
		if p, ok := postFromAny(eo, threadNo); ok {
			posts = append(posts, p)
		}
	}
	return Match(dedupePosts(posts))
}

// DecodeIDPostArray は、postId/threadId を持つオブジェクトの配列を扱います。
func DecodeIDPostArray(tree any, threadNo int64) Result[model.Post] {
	arr, ok := asArray(tree)
	if !ok {
		return NoMatch[model.Post]()
	}
	var posts []model.Post
	for _, e := range arr {
		eo, ok := asObject(e)
		if !ok || !isIDObject(eo) {
			continue
		}
		if p, ok := postFromAny(eo, threadNo); ok {
			posts = append(posts, p)
		}
	}
	return Match(dedupePosts(posts))
}

// DecodeClassicPostArray は、no/time/name/sub/com 形式のオブジェクトの配列を扱います。
func DecodeClassicPostArray(tree any, threadNo int64) Result[model.Post] {
	arr, ok := asArray(tree)
	if !ok {
		return NoMatch[model.Post]()
	}
	var posts []model.Post
	for _, e := range arr {
		eo, ok := asObject(e)
		if !ok {
			continue
		}
		if p, ok := postFromClassic(eo, threadNo); ok {
			posts = append(posts, p)
		}
	}
	return Match(dedupePosts(posts))
}

// DecodeSinglePost は、レスが1件だけのスレッドが単一オブジェクトで返される場合を扱います。
func DecodeSinglePost(tree any, threadNo int64) Result[model.Post] {
	obj, ok := asObject(tree)
	if !ok {
		return NoMatch[model.Post]()
	}
	if p, ok := postFromAny(obj, threadNo); ok {
		return Match([]model.Post{p})
	}
	return NoMatch[model.Post]()
}

func postFromAny(obj map[string]any, threadNo int64) (model.Post, bool) {
	if hasAnyKey(obj, "no") {
		return postFromClassic(obj, threadNo)
	}
	if hasAnyKey(obj, idKeys...) {
		return postFromLynx(obj, threadNo)
	}
	return model.Post{}, false
}

func postFromClassic(obj map[string]any, threadNo int64) (model.Post, bool) {
	no, ok := intField(obj, "no")
	if !ok || no <= 0 {
		return model.Post{}, false
	}
	ts, _ := intField(obj, "time")
	return model.Post{
		No:        no,
		ThreadNo:  owningThread(obj, no, threadNo),
		Timestamp: ts,
		Author:    stringField(obj, "name"),
		Subject:   stringField(obj, "sub"),
		Body:      stringField(obj, "com"),
		Media:     classicMedia(obj),
	}, true
}

func postFromLynx(obj map[string]any, threadNo int64) (model.Post, bool) {
	no, ok := intField(obj, "postId", "threadId", "id", "no")
	if !ok || no <= 0 {
		return model.Post{}, false
	}
	return model.Post{
		No:        no,
		ThreadNo:  owningThread(obj, no, threadNo),
		Timestamp: lynxTimestamp(obj),
		Author:    stringField(obj, "name"),
		Subject:   stringField(obj, "subject"),
		Body:      stringField(obj, "markdown", "message"),
		Media:     lynxMedia(obj),
	}, true
}

// owningThread は、呼び出し側が指定したスレッド番号を優先し、
// 未指定 (0) の場合はレス側の情報 (resto / threadId) から補います。
func owningThread(obj map[string]any, no, threadNo int64) int64 {
	if threadNo > 0 {
		return threadNo
	}
	if resto, ok := intField(obj, "resto"); ok && resto > 0 {
		return resto
	}
	if tid, ok := intField(obj, "threadId"); ok && tid > 0 {
		return tid
	}
	return no
}

// lynxTimestamp は creation (RFC3339) を Unix 秒に変換します。解析できない場合は 0 です。
func lynxTimestamp(obj map[string]any) int64 {
	if s := strings.TrimSpace(stringField(obj, "creation")); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.Unix()
		}
	}
	if ts, ok := intField(obj, "time"); ok {
		return ts
	}
	return 0
}

// dedupePosts は、同じ番号のレスを最初の出現だけ残して取り除きます。
func dedupePosts(posts []model.Post) []model.Post {
	seen := make(map[int64]struct{}, len(posts))
	out := posts[:0:0]
	for _, p := range posts {
		if _, ok := seen[p.No]; ok {
			continue
		}
		seen[p.No] = struct{}{}
		out = append(out, p)
	}
	return out
}
