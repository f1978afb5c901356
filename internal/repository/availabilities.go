package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/domain"
)

// UpsertAvailability 整条替换某个员工在某个部门下的排班约束
// 先删后插，避免部分更新导致旧的子表数据残留
func (r *Repository) UpsertAvailability(availability *domain.EmployeeAvailability) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.TransactionTimeout)*time.Second)
	defer cancel()

	tx, err := r.dbpool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `DELETE FROM employee_availabilities WHERE user_id = $1 AND department = $2`
	if _, err := tx.ExecContext(ctx, query, availability.UserID, availability.Department); err != nil {
		return err
	}

	query = `
		INSERT INTO employee_availabilities (user_id, user_name, department, max_work_days, weekly_off_day)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, version
	`
	args := []any{availability.UserID, availability.UserName, availability.Department, availability.MaxWorkDays, availability.WeeklyOffDay}
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&availability.ID, &availability.CreatedAt, &availability.Version); err != nil {
		return err
	}

	for _, date := range availability.UnavailableDates {
		query := `
			INSERT INTO availability_unavailable_dates (availability_id, unavailable_date)
			VALUES ($1, $2)
		`
		if _, err := tx.ExecContext(ctx, query, availability.ID, date); err != nil {
			return err
		}
	}

	for _, shiftID := range availability.AllowedShiftIDs {
		query := `
			INSERT INTO availability_allowed_shifts (availability_id, shift_id)
			VALUES ($1, $2)
		`
		if _, err := tx.ExecContext(ctx, query, availability.ID, shiftID); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	return nil
}

func (r *Repository) GetAvailabilityByUserID(department string, userID int64) (*domain.EmployeeAvailability, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	query := `
		SELECT id, user_name, max_work_days, weekly_off_day, created_at, version
		FROM employee_availabilities
		WHERE department = $1 AND user_id = $2
	`

	availability := &domain.EmployeeAvailability{
		UserID:           userID,
		Department:       department,
		UnavailableDates: make([]domain.Date, 0),
		AllowedShiftIDs:  make([]int64, 0),
	}

	dst := []any{&availability.ID, &availability.UserName, &availability.MaxWorkDays, &availability.WeeklyOffDay, &availability.CreatedAt, &availability.Version}
	if err := r.dbpool.QueryRowContext(ctx, query, department, userID).Scan(dst...); err != nil {
		return nil, err
	}

	query = `
		SELECT unavailable_date FROM availability_unavailable_dates
		WHERE availability_id = $1
		ORDER BY unavailable_date
	`
	rows, err := r.dbpool.QueryContext(ctx, query, availability.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var date domain.Date
		if err := rows.Scan(&date); err != nil {
			return nil, err
		}
		availability.UnavailableDates = append(availability.UnavailableDates, date)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	query = `
		SELECT shift_id FROM availability_allowed_shifts
		WHERE availability_id = $1
		ORDER BY shift_id
	`
	rows, err = r.dbpool.QueryContext(ctx, query, availability.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var shiftID int64
		if err := rows.Scan(&shiftID); err != nil {
			return nil, err
		}
		availability.AllowedShiftIDs = append(availability.AllowedShiftIDs, shiftID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return availability, nil
}

func (r *Repository) GetAvailabilitiesByDepartment(department string) ([]*domain.EmployeeAvailability, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	query := `
		SELECT
			ea.id,
			ea.user_id,
			ea.user_name,
			ea.max_work_days,
			ea.weekly_off_day,
			ea.created_at,
			ea.version,
			aud.unavailable_date,
			aas.shift_id
		FROM employee_availabilities ea
		LEFT JOIN availability_unavailable_dates aud ON ea.id = aud.availability_id
		LEFT JOIN availability_allowed_shifts aas ON ea.id = aas.availability_id
		WHERE ea.department = $1
		ORDER BY ea.user_id, aud.unavailable_date, aas.shift_id
	`

	rows, err := r.dbpool.QueryContext(ctx, query, department)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	availabilitiesMap := make(map[int64]*domain.EmployeeAvailability)
	seenDates := make(map[int64]map[domain.Date]bool)
	seenShifts := make(map[int64]map[int64]bool)
	order := make([]int64, 0)

	for rows.Next() {
		var row struct {
			ID           int64
			UserID       int64
			UserName     string
			MaxWorkDays  int32
			WeeklyOffDay sql.NullInt32
			CreatedAt    time.Time
			Version      int32

			UnavailableDate sql.Null[domain.Date]
			ShiftID         sql.NullInt64
		}

		dst := []any{
			&row.ID,
			&row.UserID,
			&row.UserName,
			&row.MaxWorkDays,
			&row.WeeklyOffDay,
			&row.CreatedAt,
			&row.Version,
			&row.UnavailableDate,
			&row.ShiftID,
		}
		if err := rows.Scan(dst...); err != nil {
			return nil, err
		}

		availability, exists := availabilitiesMap[row.UserID]
		if !exists {
			// 说明此时是第一次查到这个员工的排班约束，需要初始化
			availability = &domain.EmployeeAvailability{
				ID:               row.ID,
				UserID:           row.UserID,
				UserName:         row.UserName,
				Department:       department,
				MaxWorkDays:      row.MaxWorkDays,
				UnavailableDates: make([]domain.Date, 0),
				AllowedShiftIDs:  make([]int64, 0),
				CreatedAt:        row.CreatedAt,
				Version:          row.Version,
			}
			if row.WeeklyOffDay.Valid {
				offDay := row.WeeklyOffDay.Int32
				availability.WeeklyOffDay = &offDay
			}
			availabilitiesMap[row.UserID] = availability
			seenDates[row.UserID] = make(map[domain.Date]bool)
			seenShifts[row.UserID] = make(map[int64]bool)
			order = append(order, row.UserID)
		}

		// 两个子表的 LEFT JOIN 会产生笛卡尔积，这里需要去重
		if row.UnavailableDate.Valid && !seenDates[row.UserID][row.UnavailableDate.V] {
			seenDates[row.UserID][row.UnavailableDate.V] = true
			availability.UnavailableDates = append(availability.UnavailableDates, row.UnavailableDate.V)
		}

		if row.ShiftID.Valid && !seenShifts[row.UserID][row.ShiftID.Int64] {
			seenShifts[row.UserID][row.ShiftID.Int64] = true
			availability.AllowedShiftIDs = append(availability.AllowedShiftIDs, row.ShiftID.Int64)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	availabilities := make([]*domain.EmployeeAvailability, 0, len(order))
	for _, userID := range order {
		availabilities = append(availabilities, availabilitiesMap[userID])
	}

	return availabilities, nil
}

func (r *Repository) DeleteAvailability(department string, userID int64) error {
	query := `
		DELETE FROM employee_availabilities WHERE department = $1 AND user_id = $2
	`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	result, err := r.dbpool.ExecContext(ctx, query, department, userID)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}
