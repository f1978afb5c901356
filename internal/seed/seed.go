package seed

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/domain"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/repository"
)

var requiredHeaders = []string{"用户名", "姓名", "邮箱", "部门", "最大值班天数", "休息日", "不可值班日期", "可值班班次"}

// SeedRosterFromCSV 从 CSV 文件导入一个部门的员工名单和排班约束
// 员工不存在时会先创建账号，排班约束整条替换
func SeedRosterFromCSV(r *repository.Repository, path string) {
	file, err := os.Open(path)
	if err != nil {
		slog.Error("打开文件失败", "error", err)
		return
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// 读取表头
	headers, err := reader.Read()
	if err != nil {
		slog.Error("读取表头失败", "error", err)
		return
	}

	headerIndex := make(map[string]int)
	for i, header := range headers {
		headerIndex[header] = i
	}
	for _, header := range requiredHeaders {
		if _, exists := headerIndex[header]; !exists {
			slog.Error("缺少必需的列", "header", header)
			return
		}
	}

	// 逐行导入
	count := 0
	for {
		row, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			slog.Error("读取文件失败", "error", err)
			return
		}

		record := make(map[string]string)
		for i, value := range row {
			if i < len(headers) {
				record[headers[i]] = value
			}
		}

		username := record["用户名"]
		if username == "" {
			slog.Error("没有找到用户名", "record", record)
			continue
		}
		department := record["部门"]

		// 先尝试获取员工
		user, err := r.GetUserByUsername(username)
		if err != nil {
			switch {
			case errors.Is(err, sql.ErrNoRows):
				// 表示该员工不在数据库中，需要新建并插入
				user = &domain.User{
					Username:     username,
					PasswordHash: "$2a$10$aUTaWl3vmXuQFocBkb9Qx.YJPAzNoaAcj2VC5tI45l1Roh24meCgO", // roster@test8403
					FullName:     record["姓名"],
					Email:        record["邮箱"],
					Department:   department,
					Role:         domain.RoleEmployee,
				}

				if err := r.CreateUser(user); err != nil {
					slog.Error("插入员工失败", "error", err)
					continue
				}
			default:
				slog.Error("获取员工失败", "error", err)
				continue
			}
		}

		availability := &domain.EmployeeAvailability{
			UserID:           user.ID,
			UserName:         user.FullName,
			Department:       department,
			MaxWorkDays:      22,
			UnavailableDates: make([]domain.Date, 0),
			AllowedShiftIDs:  make([]int64, 0),
		}

		if value := record["最大值班天数"]; value != "" {
			maxWorkDays, err := strconv.Atoi(value)
			if err != nil {
				slog.Error("转换最大值班天数失败", "value", value)
				continue
			}
			availability.MaxWorkDays = int32(maxWorkDays)
		}

		if value := record["休息日"]; value != "" {
			offDay, err := strconv.Atoi(value)
			if err != nil || offDay < 1 || offDay > 7 {
				slog.Error("休息日必须是 1 到 7 之间的数字", "value", value)
				continue
			}
			offDay32 := int32(offDay)
			availability.WeeklyOffDay = &offDay32
		}

		skip := false
		for _, value := range strings.Split(record["不可值班日期"], ";") {
			if value == "" {
				continue
			}
			date, err := domain.ParseDate(strings.TrimSpace(value))
			if err != nil {
				slog.Error("转换不可值班日期失败", "value", value)
				skip = true
				break
			}
			availability.UnavailableDates = append(availability.UnavailableDates, date)
		}
		if skip {
			continue
		}

		// 可值班班次按名称引用，需要先查出该部门的班次定义
		shifts, err := r.GetShiftsByDepartment(department)
		if err != nil {
			slog.Error("获取部门班次失败", "error", err)
			continue
		}

		for _, value := range strings.Split(record["可值班班次"], ";") {
			name := strings.TrimSpace(value)
			if name == "" {
				continue
			}

			var shiftID int64 = 0
			for _, shift := range shifts {
				if shift.Name == name {
					shiftID = shift.ID
					break
				}
			}

			if shiftID == 0 {
				slog.Error("没有找到班次", "name", name, "department", department)
				continue
			}

			availability.AllowedShiftIDs = append(availability.AllowedShiftIDs, shiftID)
		}

		if err := r.UpsertAvailability(availability); err != nil {
			slog.Error("插入排班约束失败", "error", err)
			continue
		}

		count++
	}

	slog.Info("导入名单成功", "count", count)
}
