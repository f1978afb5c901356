package utils

import (
	"testing"
	"time"

	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/domain"
)

func TestValidateShiftTime(t *testing.T) {
	cases := []struct {
		name      string
		startTime string
		endTime   string
		wantErr   bool
	}{
		{"合法班次", "08:00:00", "16:00:00", false},
		{"开始时间格式错误", "8点", "16:00:00", true},
		{"结束时间格式错误", "08:00:00", "下午四点", true},
		{"开始时间晚于结束时间", "16:00:00", "08:00:00", true},
		{"开始时间等于结束时间", "08:00:00", "08:00:00", true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			shift := &domain.Shift{Name: "早班", StartTime: c.startTime, EndTime: c.endTime}
			err := ValidateShiftTime(shift)
			if c.wantErr && err == nil {
				t.Error("期望校验失败，实际通过")
			}
			if !c.wantErr && err != nil {
				t.Errorf("期望校验通过，实际失败: %v", err)
			}
		})
	}
}

func TestValidateAvailabilityWithShifts(t *testing.T) {
	shifts := []*domain.Shift{
		{ID: 1, Name: "早班", Department: "前台"},
		{ID: 2, Name: "晚班", Department: "前台"},
	}

	newAvailability := func() *domain.EmployeeAvailability {
		return &domain.EmployeeAvailability{
			UserID:           1,
			Department:       "前台",
			MaxWorkDays:      22,
			UnavailableDates: make([]domain.Date, 0),
			AllowedShiftIDs:  []int64{1, 2},
		}
	}

	if err := ValidateAvailabilityWithShifts(newAvailability(), shifts); err != nil {
		t.Errorf("合法的排班约束不应校验失败: %v", err)
	}

	negative := newAvailability()
	negative.MaxWorkDays = -1
	if err := ValidateAvailabilityWithShifts(negative, shifts); err == nil {
		t.Error("最大值班天数为负数时应校验失败")
	}

	for _, offDay := range []int32{0, 8} {
		invalid := newAvailability()
		invalid.WeeklyOffDay = &offDay
		if err := ValidateAvailabilityWithShifts(invalid, shifts); err == nil {
			t.Errorf("每周休息日为 %d 时应校验失败", offDay)
		}
	}

	unknownShift := newAvailability()
	unknownShift.AllowedShiftIDs = []int64{1, 99}
	if err := ValidateAvailabilityWithShifts(unknownShift, shifts); err == nil {
		t.Error("引用不存在的班次时应校验失败")
	}

	duplicateShift := newAvailability()
	duplicateShift.AllowedShiftIDs = []int64{1, 1}
	if err := ValidateAvailabilityWithShifts(duplicateShift, shifts); err == nil {
		t.Error("可值班班次重复时应校验失败")
	}

	duplicateDate := newAvailability()
	date := domain.NewDate(2025, time.March, 7)
	duplicateDate.UnavailableDates = []domain.Date{date, date}
	if err := ValidateAvailabilityWithShifts(duplicateDate, shifts); err == nil {
		t.Error("不可值班日期重复时应校验失败")
	}
}

func TestValidateScheduleResult(t *testing.T) {
	shifts := []*domain.Shift{
		{ID: 1, Name: "早班", RequiredNum: 1},
	}

	offDay := int32(5) // 2025-03-07 是周五
	availabilities := []*domain.EmployeeAvailability{
		{
			UserID:           1,
			UserName:         "张三",
			MaxWorkDays:      1,
			UnavailableDates: []domain.Date{domain.NewDate(2025, time.March, 4)},
			AllowedShiftIDs:  []int64{1},
			WeeklyOffDay:     &offDay,
		},
	}

	dayWith := func(date domain.Date, assignments ...domain.Assignment) *domain.ScheduleDay {
		return &domain.ScheduleDay{Date: date, Assignments: assignments}
	}
	resultWith := func(days ...*domain.ScheduleDay) *domain.ScheduleResult {
		return &domain.ScheduleResult{Days: days}
	}
	assign := func(userID int64, shiftID int64) domain.Assignment {
		return domain.Assignment{UserID: userID, UserName: "张三", ShiftID: shiftID}
	}

	monday := domain.NewDate(2025, time.March, 3)

	cases := []struct {
		name    string
		result  *domain.ScheduleResult
		wantErr bool
	}{
		{
			"合法结果",
			resultWith(dayWith(monday, assign(1, 1))),
			false,
		},
		{
			"同一天分配多个班次",
			resultWith(dayWith(monday, assign(1, 1), assign(1, 1))),
			true,
		},
		{
			"引用不存在的班次",
			resultWith(dayWith(monday, assign(1, 99))),
			true,
		},
		{
			"没有排班约束的员工被分配",
			resultWith(dayWith(monday, assign(2, 1))),
			true,
		},
		{
			"不可值班日期被分配",
			resultWith(dayWith(domain.NewDate(2025, time.March, 4), assign(1, 1))),
			true,
		},
		{
			"每周休息日被分配",
			resultWith(dayWith(domain.NewDate(2025, time.March, 7), assign(1, 1))),
			true,
		},
		{
			"超过最大值班天数",
			resultWith(
				dayWith(monday, assign(1, 1)),
				dayWith(domain.NewDate(2025, time.March, 5), assign(1, 1)),
			),
			true,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := ValidateScheduleResult(c.result, shifts, availabilities)
			if c.wantErr && err == nil {
				t.Error("期望校验失败，实际通过")
			}
			if !c.wantErr && err != nil {
				t.Errorf("期望校验通过，实际失败: %v", err)
			}
		})
	}
}
