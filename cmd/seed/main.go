package main

import (
	"context"
	"database/sql"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/config"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/domain"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/repository"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/seed"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	var op int
	var n int
	var department string
	var from string
	var to string
	var file string

	flag.IntVar(&op, "op", 0, "要执行的操作 (1: 插入随机用户, 2: 插入随机班次, 3: 插入随机排班约束, 4: 从 CSV 文件导入名单)")
	flag.IntVar(&n, "n", 5, "要插入的记录数量")
	flag.StringVar(&department, "department", "", "部门名称")
	flag.StringVar(&from, "from", "", "排班周期的开始日期 (格式为 2006-01-02)")
	flag.StringVar(&to, "to", "", "排班周期的结束日期 (格式为 2006-01-02)")
	flag.StringVar(&file, "file", "", "要导入的 CSV 文件路径")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	// 读取配置文件
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("无法读取配置文件", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 创建数据库连接池
	dbpool, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		logger.Error("无法创建数据库连接池", "error", err)
		return
	}
	defer dbpool.Close()

	dbpool.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	dbpool.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	dbpool.SetConnMaxIdleTime(time.Duration(cfg.Database.MaxIdleTime) * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Database.ConnectTimeout)*time.Second)
	defer cancel()

	// sql.Open 只是创建数据库连接池对象，并不会立即连接到数据库，因此需要显式地 ping 一下
	if err := dbpool.PingContext(ctx); err != nil {
		logger.Error("无法连接到数据库", "error", err)
		return
	}

	// 创建 repository
	repo := repository.NewRepository(cfg, dbpool)

	// 执行操作
	switch op {
	case 0:
		slog.Error("未指定操作")
	case 1:
		if n <= 0 {
			slog.Error("请输入合法的用户数量")
			return
		}
		if department == "" {
			slog.Error("请指定部门名称")
			return
		}

		cnt := n
		for i := 0; i < n; i++ {
			user, err := utils.GenerateRandomUser(cfg.Seed.User.Password, cfg.Email.UserDomain, department)
			if err != nil {
				slog.Error("无法生成随机用户", slog.String("error", err.Error()))
				continue
			}

			if err := repo.CreateUser(user); err != nil {
				slog.Error("无法插入用户", slog.String("error", err.Error()))
				continue
			}

			cnt--
		}

		slog.Info("插入用户成功", slog.Int("count", n-cnt))
	case 2:
		if department == "" {
			slog.Error("请指定部门名称")
			return
		}

		// 班次由初始管理员创建
		admin, err := repo.GetUserByUsername(cfg.InitialAdmin.Username)
		if err != nil {
			slog.Error("无法获取初始管理员", slog.String("error", err.Error()))
			return
		}

		cnt := 0
		for _, shift := range utils.GenerateDemoShifts(department, admin.ID) {
			if err := repo.CreateShift(shift); err != nil {
				slog.Error("无法插入班次", slog.String("error", err.Error()))
				continue
			}

			cnt++
		}

		slog.Info("插入班次成功", slog.Int("count", cnt))
	case 3:
		if department == "" {
			slog.Error("请指定部门名称")
			return
		}

		startDate, err := domain.ParseDate(from)
		if err != nil {
			slog.Error("开始日期格式非法", slog.String("from", from))
			return
		}
		endDate, err := domain.ParseDate(to)
		if err != nil {
			slog.Error("结束日期格式非法", slog.String("to", to))
			return
		}
		period := domain.DateRange{Start: startDate, End: endDate}
		if err := period.Validate(); err != nil {
			slog.Error("排班周期非法", slog.String("error", err.Error()))
			return
		}

		shifts, err := repo.GetShiftsByDepartment(department)
		if err != nil {
			slog.Error("无法获取部门班次", slog.String("error", err.Error()))
			return
		}
		if len(shifts) == 0 {
			slog.Error("该部门还没有任何班次，请先插入班次")
			return
		}

		users, err := repo.GetAllUsers()
		if err != nil {
			slog.Error("无法获取所有用户", slog.String("error", err.Error()))
			return
		}

		cnt := 0
		for _, user := range users {
			if user.Department != department {
				continue
			}

			availability := utils.GenerateRandomAvailability(user, shifts, period, cfg.Schedule.DefaultMaxWorkDays)
			if err := repo.UpsertAvailability(availability); err != nil {
				slog.Error("无法插入排班约束", slog.String("error", err.Error()))
				continue
			}

			cnt++
		}

		slog.Info("插入排班约束成功", slog.Int("count", cnt))
	case 4:
		if file == "" {
			slog.Error("请指定要导入的 CSV 文件路径")
			return
		}

		seed.SeedRosterFromCSV(repo, file)
	default:
		slog.Error("指定的操作非法")
	}
}
