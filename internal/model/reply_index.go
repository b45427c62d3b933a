package model

import (
	"regexp"
	"sort"
	"strconv"
)

// 本文中の引用マーカー (>>12345)。HTML エスケープされた形式も対象にします。
var quoteMarkerPattern = regexp.MustCompile(`(?:>>|&gt;&gt;)(\d+)`)

// ReplyIndex は、レス番号からそのレスを引用しているレス番号の一覧への対応です。
type ReplyIndex map[int64][]int64

// BuildReplyIndex は、posts の本文から引用関係を抽出して ReplyIndex を構築します。
// 各一覧は昇順で重複を含みません。自己引用は無視します。
func BuildReplyIndex(posts []Post) ReplyIndex {
	seen := make(map[int64]map[int64]bool)
	for _, p := range posts {
		for _, m := range quoteMarkerPattern.FindAllStringSubmatch(p.Body, -1) {
			target, err := strconv.ParseInt(m[1], 10, 64)
			if err != nil || target == p.No {
				continue
			}
			if seen[target] == nil {
				seen[target] = make(map[int64]bool)
			}
			seen[target][p.No] = true
		}
	}

	index := make(ReplyIndex, len(seen))
	for target, from := range seen {
		list := make([]int64, 0, len(from))
		for no := range from {
			list = append(list, no)
		}
		sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
		index[target] = list
	}
	return index
}

// RepliesTo は、no を引用しているレス番号の一覧を返します。
func (r ReplyIndex) RepliesTo(no int64) []int64 {
	return r[no]
}
