package domain

import "time"

// Assignment 表示某一天中一名员工对某个班次的分配
type Assignment struct {
	UserID   int64  `json:"userID"`
	UserName string `json:"userName"`
	ShiftID  int64  `json:"shiftID"`
}

// ScheduleDay 是排班输出的基本单位：一个日历日期加上当天的分配列表
// 持久化时以 (department, date) 为键整体覆盖，重新生成是破坏性替换
type ScheduleDay struct {
	ID          int64        `json:"id"`
	Department  string       `json:"department"`
	Date        Date         `json:"date"`
	Assignments []Assignment `json:"assignments"`
	CreatedAt   time.Time    `json:"createdAt"`
	Version     int32        `json:"-"`
}

// UnderstaffedShift 记录某天某个班次人手不足，这是需要人工处理的事实而不是错误
type UnderstaffedShift struct {
	Date        Date   `json:"date"`
	ShiftID     int64  `json:"shiftID"`
	ShiftName   string `json:"shiftName"`
	RequiredNum int32  `json:"requiredNum"`
	AssignedNum int32  `json:"assignedNum"`
}

type ShiftSummary struct {
	ShiftID          int64  `json:"shiftID"`
	ShiftName        string `json:"shiftName"`
	AssignedCount    int32  `json:"assignedCount"`
	UnderstaffedDays int32  `json:"understaffedDays"`
}

type EmployeeSummary struct {
	UserID       int64   `json:"userID"`
	UserName     string  `json:"userName"`
	AssignedDays int32   `json:"assignedDays"`
	MaxWorkDays  int32   `json:"maxWorkDays"`
	Utilization  float64 `json:"utilization"`
}

// ScheduleResult 是一次生成运行的完整输出：
// 整个区间内每一天的排班，加上用于报表的统计信息
type ScheduleResult struct {
	Days              []*ScheduleDay      `json:"days"`
	ShiftSummaries    []ShiftSummary      `json:"shiftSummaries"`
	EmployeeSummaries []EmployeeSummary   `json:"employeeSummaries"`
	Understaffed      []UnderstaffedShift `json:"understaffed"`
}
