package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Date 表示一个不带时区、不带时刻的日历日期
// 排班相关的所有日期比较（不可值班日期、星期判断等）都必须使用这个类型，
// 禁止用带时区的 time.Time 做日期运算
type Date struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
	Day   int        `json:"day"`
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Year: year, Month: month, Day: day}
}

// DateOf 丢弃 t 的时刻和时区信息，只保留日历日期
func DateOf(t time.Time) Date {
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("日期格式错误，应为 %s: %w", dateLayout, err)
	}
	return DateOf(t), nil
}

// toTime 返回该日期在 UTC 的零点，仅用于内部的日期运算
func (d Date) toTime() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) String() string {
	return d.toTime().Format(dateLayout)
}

// Weekday 返回 ISO 星期，1 表示周一，7 表示周日
func (d Date) Weekday() int32 {
	wd := int32(d.toTime().Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

func (d Date) Next() Date {
	return DateOf(d.toTime().AddDate(0, 0, 1))
}

func (d Date) Before(other Date) bool {
	return d.toTime().Before(other.toTime())
}

func (d Date) After(other Date) bool {
	return d.toTime().After(other.toTime())
}

func (d Date) Equal(other Date) bool {
	return d == other
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) Value() (driver.Value, error) {
	return d.toTime(), nil
}

func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*d = DateOf(v)
		return nil
	case string:
		parsed, err := ParseDate(v)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	default:
		return fmt.Errorf("无法将 %T 扫描为 Date", src)
	}
}

// DateRange 表示一段闭区间的日历日期，通常为一个自然月
type DateRange struct {
	Start Date `json:"start"`
	End   Date `json:"end"`
}

func (r DateRange) Validate() error {
	if r.Start.After(r.End) {
		return fmt.Errorf("起始日期 %s 不能晚于结束日期 %s", r.Start, r.End)
	}
	return nil
}

// Dates 按时间顺序枚举区间内的每一天（包含两端）
func (r DateRange) Dates() []Date {
	dates := make([]Date, 0)
	for d := r.Start; !d.After(r.End); d = d.Next() {
		dates = append(dates, d)
	}
	return dates
}
