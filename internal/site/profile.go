package site

import "GoImageBoardReader/internal/model"

// UsefulnessFunc は、JSON から復元したスレッド一覧が実用に足るかを判定します。
type UsefulnessFunc func(threads []model.Thread) bool

// Profile は、エンジンごとの取得時の振る舞いを表します。
type Profile struct {
	// Usefulness が nil でない場合、JSON の結果はこの判定を通過したときのみ採用されます。
	Usefulness UsefulnessFunc
	// HTMLBoardIndex は、板一覧を HTML のテーブルから取得できるかどうかです。
	HTMLBoardIndex bool
}

// ProfileFor は、エンジン種別に対応する Profile を返します。
func ProfileFor(kind EngineKind) Profile {
	switch kind {
	case EngineSevenChan:
		// 7chan は件名・本文・ファイルのいずれも持たない JSON を返すことがある
		return Profile{Usefulness: HasUsefulContent}
	case EngineEightKun, EngineLynxchan, EngineVichan:
		return Profile{HTMLBoardIndex: true}
	default:
		return Profile{}
	}
}

// HasUsefulContent は、少なくとも1件のスレッドが件名・本文・メディアのいずれかを持つときに true を返します。
func HasUsefulContent(threads []model.Thread) bool {
	for _, t := range threads {
		if !t.IsEmpty() {
			return true
		}
	}
	return false
}
