package domain

import "time"

// Shift 是一个周期性的值班岗位，按部门定义
// StartTime 和 EndTime 只表示一天内的时刻，格式为 15:04:05
type Shift struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	StartTime   string    `json:"startTime"`
	EndTime     string    `json:"endTime"`
	Department  string    `json:"department"`
	RequiredNum int32     `json:"requiredNum"`
	CreatedBy   int64     `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
	Version     int32     `json:"-"`
}
