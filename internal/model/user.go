package model

import (
	"time"
)

// User 用户表
// 一个用户可以开多个账户，认证信息（用户名/邮箱/证件号/手机号）全局唯一
type User struct {
	ID         int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	FirstName  string     `gorm:"type:varchar(64);not null" json:"first_name"`
	MiddleName string     `gorm:"type:varchar(64)" json:"middle_name"`
	LastName   string     `gorm:"type:varchar(64);not null" json:"last_name"`
	BirthDate  *time.Time `gorm:"type:date" json:"birth_date"`
	NationalID string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"national_id"`
	Phone      string     `gorm:"type:varchar(32);uniqueIndex;not null" json:"phone"`
	Username   string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	Email      string     `gorm:"type:varchar(128);uniqueIndex;not null" json:"email"`
	Password   string     `gorm:"type:varchar(255);not null" json:"-"` // bcrypt 哈希，禁止序列化
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
