package domain

import "time"

// EmployeeAvailability 是某个员工在某个部门下的排班约束，
// 每个 (department, userID) 只有一条记录，更新时整条替换而不是部分修改，
// 避免界面上只改了 maxWorkDays 却残留旧的 allowedShiftIDs
type EmployeeAvailability struct {
	ID               int64     `json:"id"`
	UserID           int64     `json:"userID"`
	UserName         string    `json:"userName"`
	Department       string    `json:"department"`
	MaxWorkDays      int32     `json:"maxWorkDays"`
	UnavailableDates []Date    `json:"unavailableDates"`
	AllowedShiftIDs  []int64   `json:"allowedShiftIDs"` // 为空表示该员工不参与任何排班
	WeeklyOffDay     *int32    `json:"weeklyOffDay"`    // 1 表示周一，7 表示周日，nil 表示没有固定休息日
	CreatedAt        time.Time `json:"createdAt"`
	Version          int32     `json:"-"`
}
