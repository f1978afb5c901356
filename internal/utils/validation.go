package utils

import (
	"fmt"
	"slices"
	"time"

	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/domain"
)

const shiftTimeLayout = "15:04:05"

func ValidateShiftTime(shift *domain.Shift) error {
	startTime, err := time.Parse(shiftTimeLayout, shift.StartTime)
	if err != nil {
		return fmt.Errorf("班次 %s 的开始时间格式错误", shift.Name)
	}
	endTime, err := time.Parse(shiftTimeLayout, shift.EndTime)
	if err != nil {
		return fmt.Errorf("班次 %s 的结束时间格式错误", shift.Name)
	}
	if !startTime.Before(endTime) {
		return fmt.Errorf("班次 %s 的开始时间必须早于结束时间", shift.Name)
	}
	return nil
}

// ValidateAvailabilityWithShifts 检查排班约束引用的班次是否都存在于该部门
func ValidateAvailabilityWithShifts(availability *domain.EmployeeAvailability, shifts []*domain.Shift) error {
	if availability.MaxWorkDays < 0 {
		return fmt.Errorf("最大值班天数不能为负数")
	}
	if availability.WeeklyOffDay != nil && (*availability.WeeklyOffDay < 1 || *availability.WeeklyOffDay > 7) {
		return fmt.Errorf("每周休息日必须在 1 到 7 之间")
	}

	shiftIDs := make([]int64, 0, len(shifts))
	for _, shift := range shifts {
		shiftIDs = append(shiftIDs, shift.ID)
	}

	seen := make(map[int64]bool)
	for _, shiftID := range availability.AllowedShiftIDs {
		if !slices.Contains(shiftIDs, shiftID) {
			return fmt.Errorf("班次 %d 不存在于部门 %s 中", shiftID, availability.Department)
		}
		if seen[shiftID] {
			return fmt.Errorf("可值班班次中存在重复的班次 %d", shiftID)
		}
		seen[shiftID] = true
	}

	seenDates := make(map[domain.Date]bool)
	for _, date := range availability.UnavailableDates {
		if seenDates[date] {
			return fmt.Errorf("不可值班日期中存在重复的日期 %s", date)
		}
		seenDates[date] = true
	}

	return nil
}

func getAvailabilityByUserID(availabilities []*domain.EmployeeAvailability, userID int64) *domain.EmployeeAvailability {
	for _, availability := range availabilities {
		if availability.UserID == userID {
			return availability
		}
	}
	return nil
}

// ValidateScheduleResult 校验生成的排班结果是否满足输入快照中的全部硬约束：
// 每人每天至多一个班次、班次人数不超过要求、不可值班日期、每周休息日、
// 班次资格以及最大值班天数
func ValidateScheduleResult(result *domain.ScheduleResult, shifts []*domain.Shift, availabilities []*domain.EmployeeAvailability) error {
	requiredNums := make(map[int64]int32, len(shifts))
	for _, shift := range shifts {
		requiredNums[shift.ID] = shift.RequiredNum
	}

	assignedDays := make(map[int64]int32)

	for _, day := range result.Days {
		seen := make(map[int64]bool)
		assignedPerShift := make(map[int64]int32)

		for _, assignment := range day.Assignments {
			if seen[assignment.UserID] {
				return fmt.Errorf("员工 %d 在 %s 被分配了多个班次", assignment.UserID, day.Date)
			}
			seen[assignment.UserID] = true
			assignedPerShift[assignment.ShiftID]++
			assignedDays[assignment.UserID]++

			requiredNum, exists := requiredNums[assignment.ShiftID]
			if !exists {
				return fmt.Errorf("排班结果引用了不存在的班次 %d", assignment.ShiftID)
			}
			if assignedPerShift[assignment.ShiftID] > requiredNum {
				return fmt.Errorf("班次 %d 在 %s 的分配人数超过了要求", assignment.ShiftID, day.Date)
			}

			availability := getAvailabilityByUserID(availabilities, assignment.UserID)
			if availability == nil {
				return fmt.Errorf("员工 %d 没有提交排班约束却被分配了班次", assignment.UserID)
			}
			if slices.Contains(availability.UnavailableDates, day.Date) {
				return fmt.Errorf("员工 %d 在不可值班日期 %s 被分配了班次", assignment.UserID, day.Date)
			}
			if availability.WeeklyOffDay != nil && day.Date.Weekday() == *availability.WeeklyOffDay {
				return fmt.Errorf("员工 %d 在每周休息日 %s 被分配了班次", assignment.UserID, day.Date)
			}
			if !slices.Contains(availability.AllowedShiftIDs, assignment.ShiftID) {
				return fmt.Errorf("员工 %d 被分配到了没有资格的班次 %d", assignment.UserID, assignment.ShiftID)
			}
		}
	}

	for userID, days := range assignedDays {
		availability := getAvailabilityByUserID(availabilities, userID)
		if availability != nil && days > availability.MaxWorkDays {
			return fmt.Errorf("员工 %d 的分配天数 %d 超过了最大值班天数 %d", userID, days, availability.MaxWorkDays)
		}
	}

	return nil
}
