package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/config"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/domain"
)

// ── 内存版排班存储 ──
// 模拟 Postgres 的最小行为：按 (部门, 日期) 存储排班、事务的先删后插、
// 部门咨询锁以及会话结束时释放锁，用于仓库层测试

type fakeStoredDay struct {
	id          int64
	department  string
	date        time.Time
	createdAt   time.Time
	version     int32
	assignments []domain.Assignment
}

type fakeScheduleStore struct {
	mu     sync.Mutex
	nextID int64
	days   map[string]*fakeStoredDay // 部门|日期 -> 当天排班

	lockHolder map[string]*fakeScheduleConn // 部门咨询锁的持有连接

	failInsertDates map[string]bool // 这些日期的排班日写入会失败
	failUnlock      bool            // 解锁语句会失败
}

func fakeDayKey(department string, date time.Time) string {
	return department + "|" + date.Format("2006-01-02")
}

var (
	fakeStoresMu sync.Mutex
	fakeStores   = make(map[string]*fakeScheduleStore)
	fakeStoreSeq int
)

type fakeScheduleDriver struct{}

func (d *fakeScheduleDriver) Open(name string) (driver.Conn, error) {
	fakeStoresMu.Lock()
	defer fakeStoresMu.Unlock()

	store, exists := fakeStores[name]
	if !exists {
		return nil, fmt.Errorf("未知的测试存储 %s", name)
	}
	return &fakeScheduleConn{store: store}, nil
}

func init() {
	sql.Register("fakeschedule", &fakeScheduleDriver{})
}

type fakeScheduleConn struct {
	store *fakeScheduleStore
	tx    *fakeScheduleTx
}

func (c *fakeScheduleConn) Prepare(query string) (driver.Stmt, error) {
	return nil, errors.New("不支持预编译语句")
}

// Close 模拟 Postgres 会话结束时释放该会话持有的全部咨询锁
func (c *fakeScheduleConn) Close() error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	for key, holder := range c.store.lockHolder {
		if holder == c {
			delete(c.store.lockHolder, key)
		}
	}
	return nil
}

func (c *fakeScheduleConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *fakeScheduleConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	c.tx = &fakeScheduleTx{conn: c, pending: make(map[int64]*fakeStoredDay)}
	return c.tx, nil
}

// fakeScheduleTx 把事务中的修改缓存起来，只有提交时才应用，
// 回滚时直接丢弃，使失败的先删后插不会破坏已提交的数据
type fakeScheduleTx struct {
	conn    *fakeScheduleConn
	ops     []func(*fakeScheduleStore)
	pending map[int64]*fakeStoredDay
}

func (tx *fakeScheduleTx) Commit() error {
	store := tx.conn.store
	store.mu.Lock()
	defer store.mu.Unlock()

	for _, op := range tx.ops {
		op(store)
	}
	tx.conn.tx = nil
	return nil
}

func (tx *fakeScheduleTx) Rollback() error {
	tx.conn.tx = nil
	return nil
}

func (c *fakeScheduleConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	store := c.store

	switch {
	case strings.Contains(query, "pg_advisory_lock("):
		department := args[0].Value.(string)
		store.mu.Lock()
		defer store.mu.Unlock()

		if holder, held := store.lockHolder[department]; held && holder != c {
			return nil, fmt.Errorf("部门 %s 的锁已被其他连接持有", department)
		}
		store.lockHolder[department] = c
		return driver.RowsAffected(0), nil
	case strings.Contains(query, "pg_advisory_unlock("):
		if store.failUnlock {
			return nil, errors.New("连接已超时")
		}

		department := args[0].Value.(string)
		store.mu.Lock()
		defer store.mu.Unlock()

		if store.lockHolder[department] == c {
			delete(store.lockHolder, department)
		}
		return driver.RowsAffected(0), nil
	case strings.Contains(query, "DELETE FROM schedule_days"):
		if c.tx == nil {
			return nil, errors.New("删除排班日必须在事务中执行")
		}

		key := fakeDayKey(args[0].Value.(string), args[1].Value.(time.Time))
		c.tx.ops = append(c.tx.ops, func(s *fakeScheduleStore) {
			delete(s.days, key)
		})
		return driver.RowsAffected(1), nil
	case strings.Contains(query, "INSERT INTO schedule_assignments"):
		if c.tx == nil {
			return nil, errors.New("插入排班分配必须在事务中执行")
		}

		dayID := args[0].Value.(int64)
		day, exists := c.tx.pending[dayID]
		if !exists {
			return nil, fmt.Errorf("排班日 %d 不在当前事务中", dayID)
		}

		day.assignments = append(day.assignments, domain.Assignment{
			UserID:   args[2].Value.(int64),
			UserName: args[3].Value.(string),
			ShiftID:  args[4].Value.(int64),
		})
		return driver.RowsAffected(1), nil
	}

	return nil, fmt.Errorf("不支持的语句: %s", query)
}

func (c *fakeScheduleConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	store := c.store

	switch {
	case strings.Contains(query, "INSERT INTO schedule_days"):
		if c.tx == nil {
			return nil, errors.New("插入排班日必须在事务中执行")
		}

		department := args[0].Value.(string)
		date := args[1].Value.(time.Time)

		store.mu.Lock()
		if store.failInsertDates[date.Format("2006-01-02")] {
			store.mu.Unlock()
			return nil, fmt.Errorf("模拟的写入失败: %s", date.Format("2006-01-02"))
		}
		store.nextID++
		day := &fakeStoredDay{
			id:          store.nextID,
			department:  department,
			date:        date,
			createdAt:   time.Now(),
			version:     1,
			assignments: make([]domain.Assignment, 0),
		}
		store.mu.Unlock()

		c.tx.pending[day.id] = day
		key := fakeDayKey(department, date)
		c.tx.ops = append(c.tx.ops, func(s *fakeScheduleStore) {
			s.days[key] = day
		})

		return &fakeRows{
			columns: []string{"id", "created_at", "version"},
			values:  [][]driver.Value{{day.id, day.createdAt, int64(day.version)}},
		}, nil
	case strings.Contains(query, "FROM schedule_days sd"):
		department := args[0].Value.(string)
		from := args[1].Value.(time.Time)
		to := args[2].Value.(time.Time)

		store.mu.Lock()
		defer store.mu.Unlock()

		days := make([]*fakeStoredDay, 0)
		for _, day := range store.days {
			if day.department != department || day.date.Before(from) || day.date.After(to) {
				continue
			}
			days = append(days, day)
		}
		sort.Slice(days, func(i, j int) bool {
			return days[i].date.Before(days[j].date)
		})

		rows := &fakeRows{
			columns: []string{"id", "schedule_date", "created_at", "version", "user_id", "user_name", "shift_id"},
		}
		for _, day := range days {
			if len(day.assignments) == 0 {
				rows.values = append(rows.values, []driver.Value{day.id, day.date, day.createdAt, int64(day.version), nil, nil, nil})
				continue
			}
			for _, assignment := range day.assignments {
				rows.values = append(rows.values, []driver.Value{day.id, day.date, day.createdAt, int64(day.version), assignment.UserID, assignment.UserName, assignment.ShiftID})
			}
		}
		return rows, nil
	}

	return nil, fmt.Errorf("不支持的查询: %s", query)
}

type fakeRows struct {
	columns []string
	values  [][]driver.Value
	idx     int
}

func (r *fakeRows) Columns() []string { return r.columns }

func (r *fakeRows) Close() error { return nil }

func (r *fakeRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.idx])
	r.idx++
	return nil
}

// ── 测试辅助 ──

func newFakeScheduleRepo(t *testing.T) (*Repository, *fakeScheduleStore) {
	t.Helper()

	store := &fakeScheduleStore{
		days:            make(map[string]*fakeStoredDay),
		lockHolder:      make(map[string]*fakeScheduleConn),
		failInsertDates: make(map[string]bool),
	}

	fakeStoresMu.Lock()
	fakeStoreSeq++
	name := fmt.Sprintf("store_%d", fakeStoreSeq)
	fakeStores[name] = store
	fakeStoresMu.Unlock()

	dbpool, err := sql.Open("fakeschedule", name)
	if err != nil {
		t.Fatalf("无法打开测试存储: %v", err)
	}
	t.Cleanup(func() {
		_ = dbpool.Close()
	})

	cfg := &config.Config{}
	cfg.Database.QueryTimeout = 5
	cfg.Database.TransactionTimeout = 5

	return NewRepository(cfg, dbpool), store
}

func newStoredScheduleDay(t *testing.T, department string, dateValue string, assignments ...domain.Assignment) *domain.ScheduleDay {
	t.Helper()

	date, err := domain.ParseDate(dateValue)
	if err != nil {
		t.Fatalf("解析日期 %s 失败: %v", dateValue, err)
	}
	if assignments == nil {
		assignments = make([]domain.Assignment, 0)
	}
	return &domain.ScheduleDay{
		Department:  department,
		Date:        date,
		Assignments: assignments,
	}
}

// snapshotSchedule 把已持久化的排班转成与自增 ID 无关的逻辑状态
func snapshotSchedule(t *testing.T, repo *Repository, department string, fromValue string, toValue string) map[string][]domain.Assignment {
	t.Helper()

	from, _ := domain.ParseDate(fromValue)
	to, _ := domain.ParseDate(toValue)

	days, err := repo.GetScheduleDays(department, from, to)
	if err != nil {
		t.Fatalf("获取排班失败: %v", err)
	}

	snapshot := make(map[string][]domain.Assignment)
	for _, day := range days {
		snapshot[day.Date.String()] = day.Assignments
	}
	return snapshot
}

// ── 持久化性质 ──

// 同一份生成结果写入两次，持久化状态应该完全相同
func TestBatchUpsertScheduleDays_Idempotent(t *testing.T) {
	repo, _ := newFakeScheduleRepo(t)

	days := []*domain.ScheduleDay{
		newStoredScheduleDay(t, "前台", "2025-03-03",
			domain.Assignment{UserID: 1, UserName: "张三", ShiftID: 1},
			domain.Assignment{UserID: 2, UserName: "李四", ShiftID: 2},
		),
		newStoredScheduleDay(t, "前台", "2025-03-04",
			domain.Assignment{UserID: 2, UserName: "李四", ShiftID: 1},
		),
	}

	if err := repo.BatchUpsertScheduleDays("前台", days); err != nil {
		t.Fatalf("第一次写入失败: %v", err)
	}
	first := snapshotSchedule(t, repo, "前台", "2025-03-03", "2025-03-04")

	if err := repo.BatchUpsertScheduleDays("前台", days); err != nil {
		t.Fatalf("第二次写入失败: %v", err)
	}
	second := snapshotSchedule(t, repo, "前台", "2025-03-03", "2025-03-04")

	if !reflect.DeepEqual(first, second) {
		t.Errorf("重复写入后持久化状态不一致:\n第一次: %v\n第二次: %v", first, second)
	}
	if len(first) != 2 {
		t.Errorf("期望持久化 2 天排班，实际 %d 天", len(first))
	}
}

// 对同一个日期重新生成是整体覆盖，不能在旧分配上追加
func TestBatchUpsertScheduleDays_ReplacesNotAppends(t *testing.T) {
	repo, _ := newFakeScheduleRepo(t)

	old := []*domain.ScheduleDay{
		newStoredScheduleDay(t, "前台", "2025-03-03",
			domain.Assignment{UserID: 1, UserName: "张三", ShiftID: 1},
			domain.Assignment{UserID: 2, UserName: "李四", ShiftID: 1},
		),
	}
	if err := repo.BatchUpsertScheduleDays("前台", old); err != nil {
		t.Fatalf("写入旧排班失败: %v", err)
	}

	regenerated := []*domain.ScheduleDay{
		newStoredScheduleDay(t, "前台", "2025-03-03",
			domain.Assignment{UserID: 3, UserName: "王五", ShiftID: 1},
		),
	}
	if err := repo.BatchUpsertScheduleDays("前台", regenerated); err != nil {
		t.Fatalf("重新写入失败: %v", err)
	}

	snapshot := snapshotSchedule(t, repo, "前台", "2025-03-03", "2025-03-03")
	want := []domain.Assignment{{UserID: 3, UserName: "王五", ShiftID: 1}}
	if !reflect.DeepEqual(snapshot["2025-03-03"], want) {
		t.Errorf("重新生成后应只保留新分配，实际为 %v", snapshot["2025-03-03"])
	}
}

// 部分日期写入失败时，返回的错误要列出失败的日期，
// 失败日期原有的排班保持不变，其余日期正常写入
func TestBatchUpsertScheduleDays_ReportsFailedDates(t *testing.T) {
	repo, store := newFakeScheduleRepo(t)

	initial := []*domain.ScheduleDay{
		newStoredScheduleDay(t, "前台", "2025-03-04",
			domain.Assignment{UserID: 1, UserName: "张三", ShiftID: 1},
		),
	}
	if err := repo.BatchUpsertScheduleDays("前台", initial); err != nil {
		t.Fatalf("写入初始排班失败: %v", err)
	}

	store.failInsertDates["2025-03-04"] = true

	days := []*domain.ScheduleDay{
		newStoredScheduleDay(t, "前台", "2025-03-03",
			domain.Assignment{UserID: 2, UserName: "李四", ShiftID: 1},
		),
		newStoredScheduleDay(t, "前台", "2025-03-04",
			domain.Assignment{UserID: 3, UserName: "王五", ShiftID: 1},
		),
		newStoredScheduleDay(t, "前台", "2025-03-05",
			domain.Assignment{UserID: 2, UserName: "李四", ShiftID: 1},
		),
	}

	err := repo.BatchUpsertScheduleDays("前台", days)
	var batchErr *BatchUpsertError
	if !errors.As(err, &batchErr) {
		t.Fatalf("期望返回 BatchUpsertError，实际返回 %v", err)
	}
	if len(batchErr.Failed) != 1 || batchErr.Failed[0].Date.String() != "2025-03-04" {
		t.Fatalf("失败日期记录不正确: %+v", batchErr.Failed)
	}

	snapshot := snapshotSchedule(t, repo, "前台", "2025-03-03", "2025-03-05")

	// 失败日期保持写入前的状态
	wantKept := []domain.Assignment{{UserID: 1, UserName: "张三", ShiftID: 1}}
	if !reflect.DeepEqual(snapshot["2025-03-04"], wantKept) {
		t.Errorf("失败日期的原有排班被破坏: %v", snapshot["2025-03-04"])
	}

	// 其余日期正常写入
	if len(snapshot["2025-03-03"]) != 1 || snapshot["2025-03-03"][0].UserID != 2 {
		t.Errorf("2025-03-03 的排班没有写入: %v", snapshot["2025-03-03"])
	}
	if len(snapshot["2025-03-05"]) != 1 || snapshot["2025-03-05"][0].UserID != 2 {
		t.Errorf("2025-03-05 的排班没有写入: %v", snapshot["2025-03-05"])
	}
}

// ── 咨询锁 ──

// 批量写入结束后部门咨询锁必须被释放
func TestBatchUpsertScheduleDays_ReleasesAdvisoryLock(t *testing.T) {
	repo, store := newFakeScheduleRepo(t)

	days := []*domain.ScheduleDay{
		newStoredScheduleDay(t, "前台", "2025-03-03",
			domain.Assignment{UserID: 1, UserName: "张三", ShiftID: 1},
		),
	}
	if err := repo.BatchUpsertScheduleDays("前台", days); err != nil {
		t.Fatalf("批量写入失败: %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.lockHolder) != 0 {
		t.Error("批量写入结束后咨询锁没有被释放")
	}
}

// 解锁语句失败时要关闭持锁的连接，而不是让它带着锁回到连接池，
// 否则这个部门后续的批量写入会一直阻塞
func TestBatchUpsertScheduleDays_UnlockFailureClosesLockedConn(t *testing.T) {
	repo, store := newFakeScheduleRepo(t)
	store.failUnlock = true

	days := []*domain.ScheduleDay{
		newStoredScheduleDay(t, "前台", "2025-03-03",
			domain.Assignment{UserID: 1, UserName: "张三", ShiftID: 1},
		),
	}
	if err := repo.BatchUpsertScheduleDays("前台", days); err != nil {
		t.Fatalf("批量写入失败: %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.lockHolder) != 0 {
		t.Error("解锁失败后持锁的连接没有被关闭，锁仍然被占用")
	}
}
