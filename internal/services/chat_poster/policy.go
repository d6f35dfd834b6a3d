package chat_poster

import "time"

// RetryPolicy は各イテレーション後の待機時間を決めます。
// attempt は 1 始まりのイテレーション番号、err はそのイテレーションの投稿結果です。
type RetryPolicy interface {
	NextDelay(attempt int, err error) time.Duration
}

// FixedIntervalPolicy は成功・失敗にかかわらず常に同じ間隔を返します。
// バックオフ、再試行回数の上限、エラーの分類は行いません。
type FixedIntervalPolicy struct {
	Interval time.Duration
}

func (p FixedIntervalPolicy) NextDelay(int, error) time.Duration {
	return p.Interval
}
