package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThreadFill_FirstNonEmptyWins(t *testing.T) {
	existing := Thread{No: 1, Subject: "", Body: "hi"}
	incoming := Thread{No: 1, Subject: "Title", Body: "bye"}

	merged := existing.Fill(incoming)

	assert.Equal(t, "Title", merged.Subject)
	assert.Equal(t, "hi", merged.Body)
}

func TestThreadFill_IdenticalDuplicateIsIdempotent(t *testing.T) {
	a := Thread{No: 7, Subject: "s", Body: "b", ReplyCount: IntPtr(3), Media: []MediaRef{{Key: "1", Extension: "png"}}}

	assert.Equal(t, a, a.Fill(a))
}

func TestThreadFill_CountsAndMedia(t *testing.T) {
	existing := Thread{No: 1}
	incoming := Thread{No: 1, ReplyCount: IntPtr(5), ImageCount: IntPtr(2), Media: []MediaRef{{Key: "9", Extension: "jpg"}}}

	merged := existing.Fill(incoming)

	assert.Equal(t, 5, *merged.ReplyCount)
	assert.Equal(t, 2, *merged.ImageCount)
	assert.Len(t, merged.Media, 1)
}

func TestBoardFill(t *testing.T) {
	existing := Board{Code: "b", Title: "Random"}
	incoming := Board{Code: "b", Title: "Other", Description: "desc", IsSFW: true, ActiveUsers: IntPtr(10)}

	merged := existing.Fill(incoming)

	assert.Equal(t, "Random", merged.Title)
	assert.Equal(t, "desc", merged.Description)
	assert.True(t, merged.IsSFW)
	assert.Equal(t, 10, *merged.ActiveUsers)
}

func TestNormalizeBoardCode(t *testing.T) {
	tests := map[string]string{
		"/g/":    "g",
		"  b ":   "b",
		"/tech":  "tech",
		"  //  ": "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeBoardCode(in), "input %q", in)
	}
}

func TestThreadIsEmpty(t *testing.T) {
	assert.True(t, Thread{No: 1}.IsEmpty())
	assert.True(t, Thread{No: 1, Subject: "   ", Media: []MediaRef{{}}}.IsEmpty())
	assert.False(t, Thread{No: 1, Body: "x"}.IsEmpty())
	assert.False(t, Thread{No: 1, Media: []MediaRef{{Key: "123"}}}.IsEmpty())
	assert.False(t, Thread{No: 1, Media: []MediaRef{{Path: "/.media/a.png"}}}.IsEmpty())
}

func TestBuildReplyIndex(t *testing.T) {
	posts := []Post{
		{No: 100, Body: "OP"},
		{No: 101, Body: `<a href="#p100" class="quotelink">&gt;&gt;100</a> hi`},
		{No: 102, Body: ">>100 >>101 >>100"},
		{No: 103, Body: ">>103 self"},
		{No: 104, Body: "&gt;&gt;101"},
	}

	index := BuildReplyIndex(posts)

	assert.Equal(t, []int64{101, 102}, index.RepliesTo(100))
	assert.Equal(t, []int64{102, 104}, index.RepliesTo(101))
	assert.Empty(t, index.RepliesTo(103))
	assert.Len(t, index, 2)
}
