package repository

import (
	"context"
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/domain"
)

// FailedDate 记录批量写入中单个日期的失败原因
type FailedDate struct {
	Date domain.Date `json:"date"`
	Err  error       `json:"-"`
}

// BatchUpsertError 在批量写入部分失败时返回
// 其中列出了所有失败的日期，调用方可以只重试这些日期，
// 由于单日写入是幂等的，重试不会破坏已经成功写入的日期
type BatchUpsertError struct {
	Failed []FailedDate `json:"failed"`
}

func (e *BatchUpsertError) Error() string {
	dates := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		dates = append(dates, f.Date.String())
	}
	return fmt.Sprintf("部分日期的排班写入失败: %s", strings.Join(dates, ", "))
}

// UpsertScheduleDay 以 (department, date) 为键整体覆盖某一天的排班
// 先删后插放在同一个事务中，重复调用的结果完全一致
func (r *Repository) UpsertScheduleDay(day *domain.ScheduleDay) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.TransactionTimeout)*time.Second)
	defer cancel()

	tx, err := r.dbpool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `DELETE FROM schedule_days WHERE department = $1 AND schedule_date = $2`
	if _, err := tx.ExecContext(ctx, query, day.Department, day.Date); err != nil {
		return err
	}

	query = `
		INSERT INTO schedule_days (department, schedule_date)
		VALUES ($1, $2)
		RETURNING id, created_at, version
	`
	if err := tx.QueryRowContext(ctx, query, day.Department, day.Date).Scan(&day.ID, &day.CreatedAt, &day.Version); err != nil {
		return err
	}

	for position, assignment := range day.Assignments {
		query := `
			INSERT INTO schedule_assignments (schedule_day_id, position, user_id, user_name, shift_id)
			VALUES ($1, $2, $3, $4, $5)
		`
		args := []any{day.ID, position, assignment.UserID, assignment.UserName, assignment.ShiftID}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	return nil
}

// BatchUpsertScheduleDays 把一次生成运行的全部结果写入数据库
// 整个批次持有该部门的咨询锁，防止两个并发的重新生成请求交错写入同一个月；
// 每一天仍然是独立的事务，部分失败时通过 BatchUpsertError 告知调用方哪些日期需要重试
func (r *Repository) BatchUpsertScheduleDays(department string, days []*domain.ScheduleDay) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.TransactionTimeout)*time.Second*time.Duration(len(days)+1))
	defer cancel()

	// 咨询锁必须在同一个连接上加锁和解锁，所以这里单独占用一个连接
	conn, err := r.dbpool.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock(hashtext($1))`, department); err != nil {
		return err
	}
	defer func() {
		// 批次上下文此时可能已经超时，解锁必须用新的短时上下文
		unlockCtx, unlockCancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
		defer unlockCancel()

		if _, err := conn.ExecContext(unlockCtx, `SELECT pg_advisory_unlock(hashtext($1))`, department); err != nil {
			// 解锁失败时绝不能把仍然持锁的会话放回连接池，
			// 否则这个部门后续的批量写入会一直阻塞在加锁上；
			// 标记连接损坏使其被真正关闭，由 Postgres 在会话结束时释放锁
			_ = conn.Raw(func(driverConn any) error {
				return driver.ErrBadConn
			})
		}
	}()

	batchErr := &BatchUpsertError{Failed: make([]FailedDate, 0)}
	for _, day := range days {
		if err := r.UpsertScheduleDay(day); err != nil {
			batchErr.Failed = append(batchErr.Failed, FailedDate{Date: day.Date, Err: err})
		}
	}

	if len(batchErr.Failed) > 0 {
		return batchErr
	}

	return nil
}

// GetScheduleDays 返回区间内已持久化的排班，没有排班的日期不会出现在结果中
func (r *Repository) GetScheduleDays(department string, from domain.Date, to domain.Date) ([]*domain.ScheduleDay, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	query := `
		SELECT
			sd.id,
			sd.schedule_date,
			sd.created_at,
			sd.version,
			sa.user_id,
			sa.user_name,
			sa.shift_id
		FROM schedule_days sd
		LEFT JOIN schedule_assignments sa ON sd.id = sa.schedule_day_id
		WHERE sd.department = $1 AND sd.schedule_date BETWEEN $2 AND $3
		ORDER BY sd.schedule_date, sa.position
	`

	rows, err := r.dbpool.QueryContext(ctx, query, department, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	days := make([]*domain.ScheduleDay, 0)
	var current *domain.ScheduleDay

	for rows.Next() {
		var row struct {
			ID        int64
			Date      domain.Date
			CreatedAt time.Time
			Version   int32

			UserID   *int64
			UserName *string
			ShiftID  *int64
		}

		dst := []any{&row.ID, &row.Date, &row.CreatedAt, &row.Version, &row.UserID, &row.UserName, &row.ShiftID}
		if err := rows.Scan(dst...); err != nil {
			return nil, err
		}

		if current == nil || current.ID != row.ID {
			current = &domain.ScheduleDay{
				ID:          row.ID,
				Department:  department,
				Date:        row.Date,
				Assignments: make([]domain.Assignment, 0),
				CreatedAt:   row.CreatedAt,
				Version:     row.Version,
			}
			days = append(days, current)
		}

		if row.UserID == nil {
			// 说明这一天没有任何分配，当天所有班次都没有可用员工时会出现这种情况
			continue
		}

		current.Assignments = append(current.Assignments, domain.Assignment{
			UserID:   *row.UserID,
			UserName: *row.UserName,
			ShiftID:  *row.ShiftID,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return days, nil
}
