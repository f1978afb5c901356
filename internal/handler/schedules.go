package handler

import (
	"encoding/csv"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/domain"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/repository"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/scheduler"
)

// GenerateSchedule 对某个部门的某个日期区间执行一次排班生成
// 引擎在输入快照上纯计算，算完后整批写入数据库并把完整结果返回给调用方
func (h *Handler) GenerateSchedule(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Department  string      `json:"department" validate:"required"`
		PeriodStart domain.Date `json:"periodStart" validate:"required"`
		PeriodEnd   domain.Date `json:"periodEnd" validate:"required"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	if !h.requireDepartmentAccess(w, r, req.Department) {
		return
	}

	period := domain.DateRange{Start: req.PeriodStart, End: req.PeriodEnd}
	if err := period.Validate(); err != nil {
		h.badRequest(w, r, err)
		return
	}

	// 获取输入快照：班次和排班约束只在这里读取一次，
	// 生成过程中其他人的并发修改要等下一次生成才会生效
	shifts, err := h.repository.GetShiftsByDepartment(req.Department)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	availabilities, err := h.repository.GetAvailabilitiesByDepartment(req.Department)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	s, err := scheduler.New(shifts, availabilities, period)
	if err != nil {
		switch {
		case errors.Is(err, scheduler.ErrNoShifts), errors.Is(err, scheduler.ErrNoAvailabilities), errors.Is(err, scheduler.ErrInvalidDateRange):
			h.badRequest(w, r, err)
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	result, err := s.Schedule()
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	for _, day := range result.Days {
		day.Department = req.Department
	}

	// 持久化整批结果，部分失败时把失败的日期告知调用方以便重试
	if err := h.repository.BatchUpsertScheduleDays(req.Department, result.Days); err != nil {
		var batchErr *repository.BatchUpsertError
		switch {
		case errors.As(err, &batchErr):
			h.logInternalServerError(r, batchErr)
			h.writeJSON(w, r, http.StatusOK, Response{
				Success: false,
				Message: batchErr.Error(),
				Data:    batchErr,
			})
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	h.successResponse(w, r, "生成排班成功", result)
}

func (h *Handler) getScheduleQueryParams(w http.ResponseWriter, r *http.Request) (string, domain.DateRange, bool) {
	department := r.URL.Query().Get("department")
	if department == "" {
		h.errorResponse(w, r, "缺少 department 参数")
		return "", domain.DateRange{}, false
	}

	from, err := domain.ParseDate(r.URL.Query().Get("from"))
	if err != nil {
		h.badRequest(w, r, err)
		return "", domain.DateRange{}, false
	}

	to, err := domain.ParseDate(r.URL.Query().Get("to"))
	if err != nil {
		h.badRequest(w, r, err)
		return "", domain.DateRange{}, false
	}

	period := domain.DateRange{Start: from, End: to}
	if err := period.Validate(); err != nil {
		h.badRequest(w, r, err)
		return "", domain.DateRange{}, false
	}

	return department, period, true
}

func (h *Handler) GetScheduleDays(w http.ResponseWriter, r *http.Request) {
	department, period, ok := h.getScheduleQueryParams(w, r)
	if !ok {
		return
	}

	days, err := h.repository.GetScheduleDays(department, period.Start, period.End)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取排班成功", days)
}

// ExportScheduleCSV 把已持久化的排班导出为 CSV
// 这是一个纯读操作，不会改动任何已存储的排班
func (h *Handler) ExportScheduleCSV(w http.ResponseWriter, r *http.Request) {
	department, period, ok := h.getScheduleQueryParams(w, r)
	if !ok {
		return
	}

	days, err := h.repository.GetScheduleDays(department, period.Start, period.End)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	shifts, err := h.repository.GetShiftsByDepartment(department)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	shiftNames := make(map[int64]string, len(shifts))
	for _, shift := range shifts {
		shiftNames[shift.ID] = shift.Name
	}

	// 部门名称来自查询参数，必须经过编码才能放进响应头
	filename := fmt.Sprintf("schedule_%s_%s_%s.csv", department, period.Start, period.End)
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))

	writer := csv.NewWriter(w)
	_ = writer.Write([]string{"日期", "班次", "员工ID", "员工姓名"})

	weekdayNames := []string{"周一", "周二", "周三", "周四", "周五", "周六", "周日"}

	for _, day := range days {
		for _, assignment := range day.Assignments {
			shiftName := shiftNames[assignment.ShiftID]
			if shiftName == "" {
				// 班次定义可能在生成之后被删除，历史排班仍然要能导出
				shiftName = fmt.Sprintf("班次 %d", assignment.ShiftID)
			}
			_ = writer.Write([]string{
				fmt.Sprintf("%s（%s）", day.Date, weekdayNames[day.Date.Weekday()-1]),
				shiftName,
				fmt.Sprintf("%d", assignment.UserID),
				assignment.UserName,
			})
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		h.logInternalServerError(r, err)
	}
}
