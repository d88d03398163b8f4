package support

import (
	"time"
)

// DefaultInactivityThreshold 超过该时长没有消息视为访客离开后又回来
const DefaultInactivityThreshold = 2 * time.Minute

// IsInactive 判断会话是否已不活跃
// 新建的会话永远不算不活跃
func IsInactive(now, lastMessageAt time.Time, isNewSession bool, threshold time.Duration) bool {
	if isNewSession || lastMessageAt.IsZero() {
		return false
	}
	if threshold <= 0 {
		threshold = DefaultInactivityThreshold
	}
	return now.Sub(lastMessageAt) > threshold
}
