package utils

import (
	"math"
	"time"
)

// RoundHours 小时数保留两位小数
func RoundHours(h float64) float64 {
	return math.Round(h*100) / 100
}

// HoursToDuration 将小时数换算为精确到秒的时长
func HoursToDuration(h float64) time.Duration {
	return time.Duration(math.Round(h*3600)) * time.Second
}

// 时间格式化
func FormatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// FormatTimePtr 空指针返回 "-"
func FormatTimePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return FormatTime(*t)
}
