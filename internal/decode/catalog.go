package decode

import (
	"GoImageBoardReader/internal/aggregate"
	"GoImageBoardReader/internal/model"
)

// idKeys は、Lynxchan 系のスレッド/レス番号として扱うキーです。
var idKeys = []string{"threadId", "postId", "id"}

// isIDObject は、obj が ID 系フィールドで番号を表すオブジェクトかどうかを返します。
// 4chan/vichan の id は投稿者IDなので、no を持つオブジェクトの id は番号として扱いません。
func isIDObject(obj map[string]any) bool {
	if hasAnyKey(obj, "threadId", "postId") {
		return true
	}
	return hasAnyKey(obj, "id") && !hasAnyKey(obj, "no")
}

// CatalogDecoder は、汎用ツリーからスレッド一覧を復元するデコーダです。
type CatalogDecoder func(tree any) Result[model.Thread]

// CatalogChain は、カタログ用デコーダを試行順に並べたものです。
var CatalogChain = []CatalogDecoder{
	DecodeWrappedThreads,
	DecodeIDThreadArray,
	DecodeClassicThreadArray,
	DecodeThreadPages,
}

// DecodeCatalog は、CatalogChain を順に試し、最初に一致した結果を返します。
func DecodeCatalog(tree any) Result[model.Thread] {
	for _, dec := range CatalogChain {
		if res := dec(tree); res.Matched {
			return res
		}
	}
	return NoMatch[model.Thread]()
}

// DecodeCatalogBytes は、body を解析して DecodeCatalog を適用します。
// JSON として解析できない場合は NoMatch です。
func DecodeCatalogBytes(body []byte) Result[model.Thread] {
	tree, err := Parse(body)
	if err != nil {
		return NoMatch[model.Thread]()
	}
	return DecodeCatalog(tree)
}

// DecodeWrappedThreads は {threads:[...]} 形式 (Lynxchan の板ページ、4chan のインデックスページ) を扱います。
func DecodeWrappedThreads(tree any) Result[model.Thread] {
	obj, ok := asObject(tree)
	if !ok {
		return NoMatch[model.Thread]()
	}
	var entries []any
	for _, key := range []string{"threads", "catalog"} {
		if arr, ok := asArray(obj[key]); ok {
			entries = arr
			break
		}
	}
	var threads []model.Thread
	for _, e := range entries {
		eo, ok := asObject(e)
		if !ok {
			continue
		}
		if t, ok := threadFromAny(eo); ok {
			threads = append(threads, t)
		}
	}
	return Match(aggregate.Merge(nil, threads))
}

// DecodeIDThreadArray は、threadId などのID系フィールドを持つオブジェクトの配列を扱います。
func DecodeIDThreadArray(tree any) Result[model.Thread] {
	arr, ok := asArray(tree)
	if !ok {
		return NoMatch[model.Thread]()
	}
	var threads []model.Thread
	for _, e := range arr {
		eo, ok := asObject(e)
		if !ok || !isIDObject(eo) {
			continue
		}
		if t, ok := threadFromAny(eo); ok {
			threads = append(threads, t)
		}
	}
	return Match(aggregate.Merge(nil, threads))
}

// DecodeClassicThreadArray は、no/sub/com/tim/ext 形式のオブジェクトの配列を扱います。
func DecodeClassicThreadArray(tree any) Result[model.Thread] {
	arr, ok := asArray(tree)
	if !ok {
		return NoMatch[model.Thread]()
	}
	var threads []model.Thread
	for _, e := range arr {
		eo, ok := asObject(e)
		if !ok {
			continue
		}
		if t, ok := threadFromClassic(eo); ok {
			threads = append(threads, t)
		}
	}
	return Match(aggregate.Merge(nil, threads))
}

// DecodeThreadPages は、[{page:1, threads:[...]}, ...] 形式を扱います。
// threads が単一オブジェクトのページや、ページ自体がスレッドである場合も受け付けます。
func DecodeThreadPages(tree any) Result[model.Thread] {
	arr, ok := asArray(tree)
	if !ok {
		return NoMatch[model.Thread]()
	}
	var threads []model.Thread
	for _, p := range arr {
		page, ok := asObject(p)
		if !ok {
			continue
		}
		switch inner := page["threads"].(type) {
		case []any:
			for _, e := range inner {
				if eo, ok := asObject(e); ok {
					if t, ok := threadFromAny(eo); ok {
						threads = append(threads, t)
					}
				}
			}
		case map[string]any:
			if t, ok := threadFromAny(inner); ok {
				threads = append(threads, t)
			}
		default:
			if t, ok := threadFromAny(page); ok {
				threads = append(threads, t)
			}
		}
	}
	return Match(aggregate.Merge(nil, threads))
}

// threadFromAny は、classic / ID 系 / posts ラッパーのいずれかとしてスレッドを復元します。
func threadFromAny(obj map[string]any) (model.Thread, bool) {
	if hasAnyKey(obj, "no") {
		return threadFromClassic(obj)
	}
	if hasAnyKey(obj, idKeys...) {
		return threadFromIDObject(obj)
	}
	if posts, ok := asArray(obj["posts"]); ok && len(posts) > 0 {
		return threadFromPostsWrapper(obj, posts)
	}
	return model.Thread{}, false
}

func threadFromClassic(obj map[string]any) (model.Thread, bool) {
	no, ok := intField(obj, "no")
	if !ok || no <= 0 {
		return model.Thread{}, false
	}
	return model.Thread{
		No:         no,
		Subject:    stringField(obj, "sub"),
		Body:       stringField(obj, "com"),
		ReplyCount: intPtrField(obj, "replies"),
		ImageCount: intPtrField(obj, "images"),
		Media:      classicMedia(obj),
	}, true
}

func threadFromIDObject(obj map[string]any) (model.Thread, bool) {
	no, ok := intField(obj, "threadId", "postId", "id", "no")
	if !ok || no <= 0 {
		return model.Thread{}, false
	}
	t := model.Thread{
		No:      no,
		Subject: stringField(obj, "subject", "sub"),
		Body:    stringField(obj, "markdown", "message", "com"),
	}
	t.ReplyCount, t.ImageCount = lynxCounts(obj)
	if t.ReplyCount == nil {
		t.ReplyCount = intPtrField(obj, "replies")
	}
	if t.ImageCount == nil {
		t.ImageCount = intPtrField(obj, "images")
	}
	t.Media = lynxMedia(obj)
	if len(t.Media) == 0 {
		t.Media = classicMedia(obj)
	}
	return t, true
}

// threadFromPostsWrapper は {posts:[OP, ...], omitted_posts} 形式 (4chan/vichan のインデックス) を扱います。
func threadFromPostsWrapper(obj map[string]any, posts []any) (model.Thread, bool) {
	op, ok := asObject(posts[0])
	if !ok {
		return model.Thread{}, false
	}
	t, ok := threadFromAny(op)
	if !ok {
		return model.Thread{}, false
	}
	if t.ReplyCount == nil {
		omitted, _ := intField(op, "omitted_posts")
		if o, ok := intField(obj, "omitted_posts"); ok {
			omitted = o
		}
		t.ReplyCount = model.IntPtr(int(omitted) + len(posts) - 1)
	}
	if t.ImageCount == nil {
		omitted, _ := intField(op, "omitted_images")
		if o, ok := intField(obj, "omitted_images"); ok {
			omitted = o
		}
		visible := 0
		for _, p := range posts[1:] {
			if po, ok := asObject(p); ok && len(classicMedia(po)) > 0 {
				visible++
			}
		}
		t.ImageCount = model.IntPtr(int(omitted) + visible)
	}
	return t, true
}

// lynxCounts は Lynxchan のレス数と画像数を計算します。
// レス数 = 省略レス数 + 表示されているレス数。
// 画像数 = 省略ファイル数 + OPのファイル数 (省略ファイル数がある場合)、
// なければ OP のファイル数 (正の場合)、それもなければ nil。
func lynxCounts(obj map[string]any) (reply, images *int) {
	posts, hasPosts := asArray(obj["posts"])
	omittedPosts, hasOmittedPosts := intField(obj, "ommitedPosts", "omittedPosts")
	switch {
	case hasPosts || hasOmittedPosts:
		reply = model.IntPtr(int(omittedPosts) + len(posts))
	default:
		reply = intPtrField(obj, "postCount")
	}

	opFiles := lynxFileCount(obj)
	omittedFiles, hasOmittedFiles := intField(obj, "omittedFiles")
	switch {
	case hasOmittedFiles:
		images = model.IntPtr(int(omittedFiles) + opFiles)
	case opFiles > 0:
		images = model.IntPtr(opFiles)
	default:
		images = intPtrField(obj, "fileCount")
	}
	return reply, images
}
