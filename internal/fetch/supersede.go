package fetch

import (
	"context"
	"sync"
)

// Tracker は、同じ論理リソース (例: 「8kun の /b/ のカタログ」) に対する新しい要求が
// 古い要求を置き換えるように管理します。古い要求の結果は反映されません。
type Tracker struct {
	mu      sync.Mutex
	seq     uint64
	current map[string]*Ticket
}

// NewTracker は空の Tracker を返します。
func NewTracker() *Tracker {
	return &Tracker{current: make(map[string]*Ticket)}
}

// Ticket は、Begin で開始された1回の要求です。
type Ticket struct {
	tracker *Tracker
	key     string
	id      uint64
	ctx     context.Context
	cancel  context.CancelFunc
}

// Begin は key に対する新しい要求を開始します。同じ key の進行中の要求はキャンセルされます。
func (t *Tracker) Begin(parent context.Context, key string) *Ticket {
	ctx, cancel := context.WithCancel(parent)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	if prev, ok := t.current[key]; ok {
		prev.cancel()
	}
	ticket := &Ticket{tracker: t, key: key, id: t.seq, ctx: ctx, cancel: cancel}
	t.current[key] = ticket
	return ticket
}

// Context は、この要求に使うコンテキストです。後続の要求が開始されるとキャンセルされます。
func (tk *Ticket) Context() context.Context {
	return tk.ctx
}

// Current は、この要求がまだ最新かどうかを返します。
func (tk *Ticket) Current() bool {
	tk.tracker.mu.Lock()
	defer tk.tracker.mu.Unlock()
	return tk.tracker.current[tk.key] == tk
}

// Commit は、この要求が最新の場合に限り要求を完了させ、apply を実行します。
// 最新かどうかの確認だけをロック下で行い、apply はロックの外で呼ばれます。
// apply の実行中に開始された要求は、この結果を置き換えません。
func (tk *Ticket) Commit(apply func()) bool {
	tk.tracker.mu.Lock()
	if tk.tracker.current[tk.key] != tk {
		tk.tracker.mu.Unlock()
		return false
	}
	delete(tk.tracker.current, tk.key)
	tk.tracker.mu.Unlock()

	defer tk.cancel()
	apply()
	return true
}

// Release は、結果を反映せずに要求を終了します。
func (tk *Ticket) Release() {
	tk.tracker.mu.Lock()
	defer tk.tracker.mu.Unlock()
	if tk.tracker.current[tk.key] == tk {
		delete(tk.tracker.current, tk.key)
	}
	tk.cancel()
}
