// Package followup は放棄カートのフォローアップを起動するジョブを提供する。
// 決済未完了の注文を持つユーザーを走査し、ユーザーごとに順番に
// フォローアップ関数を呼び出す。メール送信の判定は関数側で行う。
// 実行間隔は外部のスケジューラが決める。
package followup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tastiest/functions/internal/document"
	"github.com/tastiest/functions/internal/horus"
)

// Dispatcher はフォローアップ関数の呼び出しを抽象化するインターフェース。
// *horus.Client を受け付ける。
type Dispatcher interface {
	Post(ctx context.Context, route horus.Route, body any) (horus.Response, error)
}

// FollowupJob は放棄カートのフォローアップジョブ。
// 何度実行しても関数側でフォローアップ済みの注文は除外される。
type FollowupJob struct {
	scanner    document.Scanner
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewFollowupJob は新しいFollowupJobを生成する。
func NewFollowupJob(scanner document.Scanner, dispatcher Dispatcher, logger *slog.Logger) *FollowupJob {
	return &FollowupJob{
		scanner:    scanner,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

type followupRequest struct {
	UserID string `json:"userId"`
}

// Run は対象ユーザーを列挙してフォローアップ関数を呼び出す。
// 個々の呼び出しの失敗はログに記録するだけで、走査に失敗した場合のみエラーを返す。
func (j *FollowupJob) Run(ctx context.Context) error {
	start := time.Now()

	userIDs, err := document.UsersWithOpenOrders(ctx, j.scanner)
	if err != nil {
		j.logger.Error("フォローアップ対象ユーザーの取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("フォローアップ対象の取得に失敗: %w", err)
	}

	var dispatched, failed int
	for _, userID := range userIDs {
		if ctx.Err() != nil {
			break
		}
		if err := j.dispatch(ctx, userID); err != nil {
			failed++
			j.logger.Warn("フォローアップ関数の呼び出しに失敗しました",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
			continue
		}
		dispatched++
	}

	j.logger.Info("放棄カートのフォローアップジョブが完了しました",
		slog.Int("candidates", len(userIDs)),
		slog.Int("dispatched", dispatched),
		slog.Int("failed", failed),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return ctx.Err()
}

func (j *FollowupJob) dispatch(ctx context.Context, userID string) error {
	resp, err := j.dispatcher.Post(ctx, horus.RouteFunctionAbandonedCart, followupRequest{UserID: userID})
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("関数がエラーを返しました: %s", resp.Error)
	}
	return nil
}
