package utils

import (
	"math/rand"

	"github.com/mozillazg/go-pinyin"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

var commonSurnames = []string{
	"王", "李", "张", "刘", "陈", "杨", "赵", "黄", "周", "吴",
	"徐", "孙", "胡", "朱", "高", "林", "何", "郭", "马", "罗",
}
var commonNameCharacters = []string{
	"伟", "强", "芳", "敏", "静", "丽", "刚", "杰", "娟", "勇",
	"艳", "涛", "明", "军", "磊", "洋", "勇", "霞", "飞", "玲",
	"超", "华", "平", "辉", "梅", "鑫", "龙", "鹏", "玉", "斌",
	"庆", "建", "丹", "彬", "凤", "旭", "宁", "乐", "成", "欣",
}

func GenerateRandomChineseName() string {
	surname := commonSurnames[rand.Intn(len(commonSurnames))]
	nameLength := rand.Intn(2) + 1
	name := ""

	for i := 0; i < nameLength; i++ {
		name += commonNameCharacters[rand.Intn(len(commonNameCharacters))]
	}
	return surname + name
}

var digits = "0123456789"

func GenerateUsernameFromChineseName(chineseName string) string {
	pinyinArray := pinyin.LazyConvert(chineseName, nil)
	username := ""

	for _, pinyin := range pinyinArray {
		length := rand.Intn(len(pinyin)) + 1
		username += pinyin[:length]
	}

	digitsLength := rand.Intn(3) + 1
	for i := 0; i < digitsLength; i++ {
		username += string(digits[rand.Intn(len(digits))])
	}

	return username
}

const passwordCharacters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func GenerateRandomPassword(length int) string {
	password := make([]byte, length)
	for i := range password {
		password[i] = passwordCharacters[rand.Intn(len(passwordCharacters))]
	}
	return string(password)
}

func GenerateRandomOTP() string {
	otp := make([]byte, 6)
	for i := range otp {
		otp[i] = digits[rand.Intn(len(digits))]
	}
	return string(otp)
}

func GenerateRandomUser(password string, emailDomainName string, department string) (*domain.User, error) {
	fullName := GenerateRandomChineseName()
	username := GenerateUsernameFromChineseName(fullName)
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Username:     username,
		PasswordHash: string(passwordHash),
		FullName:     fullName,
		Email:        username + "@" + emailDomainName,
		Department:   department,
		Role:         domain.RoleEmployee,
	}

	return user, nil
}

var demoShifts = []domain.Shift{
	{Name: "早班", StartTime: "08:00:00", EndTime: "12:00:00", RequiredNum: 2},
	{Name: "午班", StartTime: "12:00:00", EndTime: "18:00:00", RequiredNum: 3},
	{Name: "晚班", StartTime: "18:00:00", EndTime: "22:00:00", RequiredNum: 2},
}

// GenerateDemoShifts 为某个部门生成一套早中晚的演示班次
func GenerateDemoShifts(department string, createdBy int64) []*domain.Shift {
	shifts := make([]*domain.Shift, 0, len(demoShifts))
	for _, demo := range demoShifts {
		shift := demo
		shift.Department = department
		shift.CreatedBy = createdBy
		shifts = append(shifts, &shift)
	}
	return shifts
}

// GenerateRandomAvailability 为某个员工生成一条随机的排班约束，
// 在传入的班次中随机挑选可值班班次，并随机决定是否设置每周休息日
func GenerateRandomAvailability(user *domain.User, shifts []*domain.Shift, period domain.DateRange, maxWorkDays int32) *domain.EmployeeAvailability {
	availability := &domain.EmployeeAvailability{
		UserID:           user.ID,
		UserName:         user.FullName,
		Department:       user.Department,
		MaxWorkDays:      maxWorkDays,
		UnavailableDates: make([]domain.Date, 0),
		AllowedShiftIDs:  make([]int64, 0),
	}

	for _, shift := range shifts {
		if rand.Intn(4) != 0 { // 大约四分之三的班次可以值
			availability.AllowedShiftIDs = append(availability.AllowedShiftIDs, shift.ID)
		}
	}

	dates := period.Dates()
	for _, date := range dates {
		if rand.Intn(10) == 0 {
			availability.UnavailableDates = append(availability.UnavailableDates, date)
		}
	}

	if rand.Intn(2) == 0 {
		offDay := int32(rand.Intn(7) + 1)
		availability.WeeklyOffDay = &offDay
	}

	return availability
}
