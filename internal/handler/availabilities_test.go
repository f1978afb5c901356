package handler

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/config"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/domain"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/repository"
)

// ── 测试辅助 ──
// 权限相关的测试只关心 handler 在到达数据库之前的行为，
// 这里用一个任何查询都返回空结果的驱动代替真实数据库

type emptyDBDriver struct{}

func (emptyDBDriver) Open(name string) (driver.Conn, error) {
	return &emptyDBConn{}, nil
}

type emptyDBConn struct{}

func (*emptyDBConn) Prepare(query string) (driver.Stmt, error) {
	return nil, errors.New("不支持预编译语句")
}

func (*emptyDBConn) Close() error { return nil }

func (*emptyDBConn) Begin() (driver.Tx, error) {
	return nil, errors.New("不支持事务")
}

func (*emptyDBConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	return &emptyDBRows{}, nil
}

func (*emptyDBConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	return driver.RowsAffected(0), nil
}

type emptyDBRows struct{}

func (*emptyDBRows) Columns() []string { return nil }

func (*emptyDBRows) Close() error { return nil }

func (*emptyDBRows) Next(dest []driver.Value) error { return io.EOF }

func init() {
	sql.Register("emptydb", emptyDBDriver{})
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()

	dbpool, err := sql.Open("emptydb", "")
	if err != nil {
		t.Fatalf("无法打开测试数据库: %v", err)
	}
	t.Cleanup(func() {
		_ = dbpool.Close()
	})

	cfg := &config.Config{}
	cfg.Database.QueryTimeout = 5
	cfg.Database.TransactionTimeout = 5

	h, err := NewHandler(cfg, repository.NewRepository(cfg, dbpool), nil, nil)
	if err != nil {
		t.Fatalf("无法创建 handler: %v", err)
	}
	return h
}

// availabilityRequest 构造一个带登录用户和路由参数的查询排班约束请求
func availabilityRequest(me *domain.User, targetUserID int64, department string) *http.Request {
	target := "/availabilities/" + strconv.FormatInt(targetUserID, 10) + "?department=" + url.QueryEscape(department)
	req := httptest.NewRequest(http.MethodGet, target, nil)

	chiCtx := chi.NewRouteContext()
	chiCtx.URLParams.Add("userId", strconv.FormatInt(targetUserID, 10))

	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, chiCtx)
	ctx = context.WithValue(ctx, MyInfoCtx, me)
	return req.WithContext(ctx)
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	return resp
}

// ── 查询排班约束的权限 ──

// 普通员工不能查看他人的排班约束
func TestGetEmployeeAvailability_EmployeeCannotReadOthers(t *testing.T) {
	h := newTestHandler(t)
	me := &domain.User{ID: 1, Username: "zhangsan", Department: "前台", Role: domain.RoleEmployee}

	rec := httptest.NewRecorder()
	h.GetEmployeeAvailability(rec, availabilityRequest(me, 2, "前台"))

	resp := decodeResponse(t, rec)
	if resp.Success {
		t.Error("普通员工查看他人的排班约束应被拒绝")
	}
}

// 主管不能查看其他部门的排班约束
func TestGetEmployeeAvailability_ManagerLimitedToOwnDepartment(t *testing.T) {
	h := newTestHandler(t)
	me := &domain.User{ID: 1, Username: "zhangsan", Department: "前台", Role: domain.RoleManager}

	rec := httptest.NewRecorder()
	h.GetEmployeeAvailability(rec, availabilityRequest(me, 2, "后勤"))

	resp := decodeResponse(t, rec)
	if resp.Success {
		t.Error("主管查看其他部门的排班约束应被拒绝")
	}
}

// 员工可以查看自己的排班约束，还没有记录时按成功返回空数据
func TestGetEmployeeAvailability_OwnRecordAllowed(t *testing.T) {
	h := newTestHandler(t)
	me := &domain.User{ID: 1, Username: "zhangsan", Department: "前台", Role: domain.RoleEmployee}

	rec := httptest.NewRecorder()
	h.GetEmployeeAvailability(rec, availabilityRequest(me, 1, "前台"))

	resp := decodeResponse(t, rec)
	if !resp.Success {
		t.Errorf("员工查看自己的排班约束应被允许，实际返回: %s", resp.Message)
	}
	if resp.Data != nil {
		t.Errorf("还没有记录时应返回空数据，实际返回: %v", resp.Data)
	}
}

// 主管可以查看本部门员工的排班约束
func TestGetEmployeeAvailability_ManagerReadsOwnDepartment(t *testing.T) {
	h := newTestHandler(t)
	me := &domain.User{ID: 1, Username: "zhangsan", Department: "前台", Role: domain.RoleManager}

	rec := httptest.NewRecorder()
	h.GetEmployeeAvailability(rec, availabilityRequest(me, 2, "前台"))

	resp := decodeResponse(t, rec)
	if !resp.Success {
		t.Errorf("主管查看本部门的排班约束应被允许，实际返回: %s", resp.Message)
	}
}
