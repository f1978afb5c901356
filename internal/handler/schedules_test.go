package handler

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

// 部门名称来自查询参数，导出时不能让其中的控制字符进入响应头
func TestExportScheduleCSV_SanitizesFilenameHeader(t *testing.T) {
	h := newTestHandler(t)

	params := url.Values{}
	params.Set("department", "前台\r\nX-Injected: 1")
	params.Set("from", "2025-03-01")
	params.Set("to", "2025-03-02")

	req := httptest.NewRequest(http.MethodGet, "/schedules/export?"+params.Encode(), nil)
	rec := httptest.NewRecorder()
	h.ExportScheduleCSV(rec, req)

	disposition := rec.Header().Get("Content-Disposition")
	if disposition == "" {
		t.Fatal("缺少 Content-Disposition 响应头")
	}
	if strings.ContainsAny(disposition, "\r\n") {
		t.Errorf("响应头中包含未过滤的换行符: %q", disposition)
	}
	if !strings.HasPrefix(disposition, "attachment") {
		t.Errorf("响应头应以 attachment 开头: %q", disposition)
	}
	if rec.Header().Get("X-Injected") != "" {
		t.Error("查询参数中的内容被注入成了独立的响应头")
	}
}

// 中文部门名要能正常放进文件名参数
func TestExportScheduleCSV_ChineseDepartmentFilename(t *testing.T) {
	h := newTestHandler(t)

	params := url.Values{}
	params.Set("department", "前台")
	params.Set("from", "2025-03-01")
	params.Set("to", "2025-03-31")

	req := httptest.NewRequest(http.MethodGet, "/schedules/export?"+params.Encode(), nil)
	rec := httptest.NewRecorder()
	h.ExportScheduleCSV(rec, req)

	disposition := rec.Header().Get("Content-Disposition")
	if !strings.Contains(disposition, "filename") {
		t.Errorf("响应头中缺少文件名参数: %q", disposition)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv") {
		t.Errorf("导出的内容类型不正确: %q", rec.Header().Get("Content-Type"))
	}
}
