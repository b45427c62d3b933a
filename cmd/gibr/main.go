// gibr は、複数の画像掲示板から板一覧・カタログ・スレッドを取得して JSON で出力するコマンドです。
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// main関数はGIBRアプリケーションのエントリーポイントです。
func main() {
	// シグナルを受け取ったら実行中の取得をキャンセルする
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
