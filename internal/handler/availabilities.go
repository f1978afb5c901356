package handler

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/domain"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/utils"
)

// UpsertAvailability 整条替换某个员工的排班约束
// 这里不做部分更新，防止界面只提交了部分字段时残留旧数据
func (h *Handler) UpsertAvailability(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID           int64         `json:"userID" validate:"required"`
		Department       string        `json:"department" validate:"required"`
		MaxWorkDays      *int32        `json:"maxWorkDays" validate:"omitempty,gte=0"`
		UnavailableDates []domain.Date `json:"unavailableDates"`
		AllowedShiftIDs  []int64       `json:"allowedShiftIDs"`
		WeeklyOffDay     *int32        `json:"weeklyOffDay" validate:"omitempty,gte=1,lte=7"`
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

	user, err := h.repository.GetUserByID(req.UserID)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			h.errorResponse(w, r, "员工不存在")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	availability := &domain.EmployeeAvailability{
		UserID:           user.ID,
		UserName:         user.FullName,
		Department:       req.Department,
		MaxWorkDays:      h.config.Schedule.DefaultMaxWorkDays,
		UnavailableDates: req.UnavailableDates,
		AllowedShiftIDs:  req.AllowedShiftIDs,
		WeeklyOffDay:     req.WeeklyOffDay,
	}
	if req.MaxWorkDays != nil {
		availability.MaxWorkDays = *req.MaxWorkDays
	}
	if availability.UnavailableDates == nil {
		availability.UnavailableDates = make([]domain.Date, 0)
	}
	if availability.AllowedShiftIDs == nil {
		availability.AllowedShiftIDs = make([]int64, 0)
	}

	// 检查引用的班次是否都存在于该部门
	shifts, err := h.repository.GetShiftsByDepartment(req.Department)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}
	if err := utils.ValidateAvailabilityWithShifts(availability, shifts); err != nil {
		h.badRequest(w, r, err)
		return
	}

	if err := h.repository.UpsertAvailability(availability); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "保存排班约束成功", availability)
}

func (h *Handler) GetDepartmentAvailabilities(w http.ResponseWriter, r *http.Request) {
	department := r.URL.Query().Get("department")
	if department == "" {
		h.errorResponse(w, r, "缺少 department 参数")
		return
	}

	if !h.requireDepartmentAccess(w, r, department) {
		return
	}

	availabilities, err := h.repository.GetAvailabilitiesByDepartment(department)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取排班约束列表成功", availabilities)
}

func (h *Handler) GetEmployeeAvailability(w http.ResponseWriter, r *http.Request) {
	department := r.URL.Query().Get("department")
	if department == "" {
		h.errorResponse(w, r, "缺少 department 参数")
		return
	}

	userIDParam := chi.URLParam(r, "userId")
	userID, err := strconv.ParseInt(userIDParam, 10, 64)
	if err != nil {
		h.errorResponse(w, r, "用户ID无效")
		return
	}

	// 员工只能查看自己的排班约束，查看他人的需要主管或管理员身份
	myInfo := r.Context().Value(MyInfoCtx).(*domain.User)
	if myInfo.ID != userID {
		if myInfo.Role == domain.RoleEmployee {
			h.errorResponse(w, r, "权限不足，只能查看自己的排班约束")
			return
		}
		if !h.requireDepartmentAccess(w, r, department) {
			return
		}
	}

	availability, err := h.repository.GetAvailabilityByUserID(department, userID)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// 还没有记录不算错误，前端会用默认值渲染表单，保存时再创建
			h.successResponse(w, r, "该员工还没有排班约束", nil)
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	h.successResponse(w, r, "获取排班约束成功", availability)
}

func (h *Handler) DeleteAvailability(w http.ResponseWriter, r *http.Request) {
	department := r.URL.Query().Get("department")
	if department == "" {
		h.errorResponse(w, r, "缺少 department 参数")
		return
	}

	if !h.requireDepartmentAccess(w, r, department) {
		return
	}

	userIDParam := chi.URLParam(r, "userId")
	userID, err := strconv.ParseInt(userIDParam, 10, 64)
	if err != nil {
		h.errorResponse(w, r, "用户ID无效")
		return
	}

	if err := h.repository.DeleteAvailability(department, userID); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			h.errorResponse(w, r, "排班约束不存在")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	h.successResponse(w, r, "删除排班约束成功", nil)
}
