package decode

import (
	"sort"
	"strings"

	"GoImageBoardReader/internal/aggregate"
	"GoImageBoardReader/internal/model"
)

// BoardPage は、ページ分割された板一覧の1ページ分です。
// Omitted (8kun) と PageCount (Lynxchan) は、後続ページの有無の判定に使います。
type BoardPage struct {
	Boards    []model.Board
	Omitted   *int
	PageCount *int
}

// DecodeBoardPage は、次の形式の板一覧を扱います。
//
//	{boards:[...] | {...}, omitted}        8kun board-search
//	{status, data:{boards, pageCount}}     Lynxchan boards.js?json=1
//	{boards:[...], pageCount}              Lynxchan (ラッパーなし)
//	{boards:[{board,title,ws_board}]}      4chan boards.json
func DecodeBoardPage(tree any) (BoardPage, bool) {
	obj, ok := asObject(tree)
	if !ok {
		return BoardPage{}, false
	}
	if data, ok := asObject(obj["data"]); ok {
		return DecodeBoardPage(data)
	}
	raw, ok := obj["boards"]
	if !ok {
		return BoardPage{}, false
	}
	page := BoardPage{
		Boards:    boardsFromAny(raw),
		Omitted:   intPtrField(obj, "omitted"),
		PageCount: intPtrField(obj, "pageCount", "page_count"),
	}
	return page, len(page.Boards) > 0
}

// DecodeBoards は、板一覧を形式を問わずに復元します。
// DecodeBoardPage の形式に加え、トップレベルの配列、および板コードをキーとするマップを受け付けます。
func DecodeBoards(tree any) Result[model.Board] {
	if page, ok := DecodeBoardPage(tree); ok {
		return Match(page.Boards)
	}
	switch v := tree.(type) {
	case []any:
		return Match(boardsFromAny(v))
	case map[string]any:
		if _, hasBoards := v["boards"]; hasBoards {
			return NoMatch[model.Board]()
		}
		return Match(boardsFromAny(v))
	}
	return NoMatch[model.Board]()
}

// DecodeBoardsBytes は、body を解析して DecodeBoards を適用します。
func DecodeBoardsBytes(body []byte) Result[model.Board] {
	tree, err := Parse(body)
	if err != nil {
		return NoMatch[model.Board]()
	}
	return DecodeBoards(tree)
}

// DecodeArchive は、4chan の archive.json (スレッド番号の配列) を復元します。
func DecodeArchive(tree any) Result[int64] {
	arr, ok := asArray(tree)
	if !ok {
		return NoMatch[int64]()
	}
	nos := make([]int64, 0, len(arr))
	seen := make(map[int64]struct{}, len(arr))
	for _, v := range arr {
		no, ok := intOf(v)
		if !ok || no <= 0 {
			continue
		}
		if _, dup := seen[no]; dup {
			continue
		}
		seen[no] = struct{}{}
		nos = append(nos, no)
	}
	return Match(nos)
}

func boardsFromAny(raw any) []model.Board {
	var boards []model.Board
	switch v := raw.(type) {
	case []any:
		for _, e := range v {
			if eo, ok := asObject(e); ok {
				if b, ok := boardFromObject(eo, ""); ok {
					boards = append(boards, b)
				}
			}
		}
	case map[string]any:
		// マップの反復順は不定なので、キー順に並べてから処理する
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if eo, ok := asObject(v[k]); ok {
				if b, ok := boardFromObject(eo, k); ok {
					boards = append(boards, b)
				}
			}
		}
	}
	return aggregate.Merge(nil, boards)
}

func boardFromObject(obj map[string]any, fallbackCode string) (model.Board, bool) {
	code := model.NormalizeBoardCode(stringField(obj, "uri", "boardUri", "board", "code"))
	if code == "" {
		code = model.NormalizeBoardCode(fallbackCode)
	}
	if code == "" {
		return model.Board{}, false
	}
	return model.Board{
		Code:        code,
		Title:       strings.TrimSpace(stringField(obj, "title", "boardName", "name")),
		Description: strings.TrimSpace(stringField(obj, "description", "subtitle", "boardDescription", "meta_description")),
		IsSFW:       boardIsSFW(obj),
		ActiveUsers: intPtrField(obj, "active", "active_users", "uniqueIps", "isps"),
		ThreadCount: intPtrField(obj, "threads", "threadCount", "thread_count"),
	}, true
}

// boardIsSFW は、ws_board (4chan)、sfw (8kun)、specialSettings (Lynxchan) のいずれかから全年齢板かを判定します。
func boardIsSFW(obj map[string]any) bool {
	if boolField(obj, "ws_board", "sfw", "is_sfw") {
		return true
	}
	if settings, ok := asArray(obj["specialSettings"]); ok {
		for _, s := range settings {
			if str, ok := s.(string); ok && strings.EqualFold(str, "sfw") {
				return true
			}
		}
	}
	return false
}
