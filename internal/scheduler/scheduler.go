package scheduler

import (
	"errors"
	"sort"

	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/domain"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/utils"
)

var (
	ErrNoShifts         = errors.New("没有任何班次，无法生成排班")
	ErrNoAvailabilities = errors.New("没有任何员工提交排班约束，无法生成排班")
	ErrInvalidDateRange = errors.New("排班区间不合法")
)

// Scheduler 对一份输入快照执行一次排班生成
// 它是纯计算：不读写数据库，快照的获取和结果的持久化都由调用方负责
// 对同一份快照和同一个区间，重复调用 Schedule 会得到完全相同的结果
type Scheduler struct {
	shifts         []*domain.Shift                // 已按 (开始时间, ID) 升序排序
	availabilities []*domain.EmployeeAvailability // 已按 userID 升序排序
	period         domain.DateRange

	unavailable map[int64]map[domain.Date]bool // userID -> 不可值班日期集合
	allowed     map[int64]map[int64]bool       // userID -> 可值班班次集合
}

func New(shifts []*domain.Shift, availabilities []*domain.EmployeeAvailability, period domain.DateRange) (*Scheduler, error) {
	if len(shifts) == 0 {
		return nil, ErrNoShifts
	}
	if len(availabilities) == 0 {
		return nil, ErrNoAvailabilities
	}
	if err := period.Validate(); err != nil {
		return nil, ErrInvalidDateRange
	}

	s := &Scheduler{
		shifts:         make([]*domain.Shift, len(shifts)),
		availabilities: make([]*domain.EmployeeAvailability, len(availabilities)),
		period:         period,
		unavailable:    make(map[int64]map[domain.Date]bool),
		allowed:        make(map[int64]map[int64]bool),
	}

	// 拷贝后再排序，避免修改调用方传入的快照
	copy(s.shifts, shifts)
	copy(s.availabilities, availabilities)

	// 开始时间早的班次优先排人，开始时间相同时按 ID 排序以保证确定性
	sort.Slice(s.shifts, func(i, j int) bool {
		if s.shifts[i].StartTime != s.shifts[j].StartTime {
			return s.shifts[i].StartTime < s.shifts[j].StartTime
		}
		return s.shifts[i].ID < s.shifts[j].ID
	})

	sort.Slice(s.availabilities, func(i, j int) bool {
		return s.availabilities[i].UserID < s.availabilities[j].UserID
	})

	for _, availability := range s.availabilities {
		dates := make(map[domain.Date]bool, len(availability.UnavailableDates))
		for _, date := range availability.UnavailableDates {
			dates[date] = true
		}
		s.unavailable[availability.UserID] = dates

		shiftIDs := make(map[int64]bool, len(availability.AllowedShiftIDs))
		for _, shiftID := range availability.AllowedShiftIDs {
			shiftIDs[shiftID] = true
		}
		s.allowed[availability.UserID] = shiftIDs
	}

	return s, nil
}

// Schedule 按时间顺序逐天生成排班
// 人手不足不会中断生成，只会被记入统计信息
func (s *Scheduler) Schedule() (*domain.ScheduleResult, error) {
	workload := make(workloadCounter)
	dates := s.period.Dates()

	result := &domain.ScheduleResult{
		Days:         make([]*domain.ScheduleDay, 0, len(dates)),
		Understaffed: make([]domain.UnderstaffedShift, 0),
	}

	understaffedDays := make(map[int64]int32) // shiftID -> 人手不足的天数

	for _, date := range dates {
		day := &domain.ScheduleDay{
			Date:        date,
			Assignments: make([]domain.Assignment, 0),
		}
		assignedToday := make(map[int64]bool)

		for _, shift := range s.shifts {
			pool := s.buildCandidatePool(shift, date, workload, assignedToday)

			// 已分配天数少的员工优先，天数相同时按 userID 排序以保证确定性
			sort.Slice(pool, func(i, j int) bool {
				if pool[i].workload != pool[j].workload {
					return pool[i].workload < pool[j].workload
				}
				return pool[i].userID < pool[j].userID
			})

			taken := len(pool)
			if taken > int(shift.RequiredNum) {
				taken = int(shift.RequiredNum)
			}

			for _, c := range pool[:taken] {
				day.Assignments = append(day.Assignments, domain.Assignment{
					UserID:   c.userID,
					UserName: c.userName,
					ShiftID:  shift.ID,
				})
				assignedToday[c.userID] = true
				workload[c.userID]++
			}

			if int32(taken) < shift.RequiredNum {
				result.Understaffed = append(result.Understaffed, domain.UnderstaffedShift{
					Date:        date,
					ShiftID:     shift.ID,
					ShiftName:   shift.Name,
					RequiredNum: shift.RequiredNum,
					AssignedNum: int32(taken),
				})
				understaffedDays[shift.ID]++
			}
		}

		result.Days = append(result.Days, day)
	}

	s.summarize(result, workload, understaffedDays)

	// 返回前再对结果做一次约束校验，防止上面的实现出错时把非法排班交出去
	if err := utils.ValidateScheduleResult(result, s.shifts, s.availabilities); err != nil {
		return nil, err
	}

	return result, nil
}

// buildCandidatePool 收集某天某个班次的全部可用员工
// 所有约束冲突都通过把员工排除出候选池来解决，而不是报错
func (s *Scheduler) buildCandidatePool(shift *domain.Shift, date domain.Date, workload workloadCounter, assignedToday map[int64]bool) []candidate {
	pool := make([]candidate, 0, len(s.availabilities))

	for _, availability := range s.availabilities {
		if assignedToday[availability.UserID] {
			continue // 每人每天至多一个班次
		}
		if s.unavailable[availability.UserID][date] {
			continue
		}
		if availability.WeeklyOffDay != nil && date.Weekday() == *availability.WeeklyOffDay {
			continue
		}
		if workload[availability.UserID] >= availability.MaxWorkDays {
			continue
		}
		if !s.allowed[availability.UserID][shift.ID] {
			continue
		}

		pool = append(pool, candidate{
			userID:   availability.UserID,
			userName: availability.UserName,
			workload: workload[availability.UserID],
		})
	}

	return pool
}

// summarize 推导报表用的统计信息：
// 每个班次在区间内的总分配数，以及每个员工的已分配天数和负载率
func (s *Scheduler) summarize(result *domain.ScheduleResult, workload workloadCounter, understaffedDays map[int64]int32) {
	assignedPerShift := make(map[int64]int32)
	for _, day := range result.Days {
		for _, assignment := range day.Assignments {
			assignedPerShift[assignment.ShiftID]++
		}
	}

	result.ShiftSummaries = make([]domain.ShiftSummary, 0, len(s.shifts))
	for _, shift := range s.shifts {
		result.ShiftSummaries = append(result.ShiftSummaries, domain.ShiftSummary{
			ShiftID:          shift.ID,
			ShiftName:        shift.Name,
			AssignedCount:    assignedPerShift[shift.ID],
			UnderstaffedDays: understaffedDays[shift.ID],
		})
	}

	result.EmployeeSummaries = make([]domain.EmployeeSummary, 0, len(s.availabilities))
	for _, availability := range s.availabilities {
		summary := domain.EmployeeSummary{
			UserID:       availability.UserID,
			UserName:     availability.UserName,
			AssignedDays: workload[availability.UserID],
			MaxWorkDays:  availability.MaxWorkDays,
		}
		if availability.MaxWorkDays > 0 {
			summary.Utilization = float64(summary.AssignedDays) / float64(availability.MaxWorkDays)
		}
		result.EmployeeSummaries = append(result.EmployeeSummaries, summary)
	}
}
