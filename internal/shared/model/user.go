package model

import (
	"regexp"
	"strings"
	"time"
)

// Role 账号角色（封闭集合，授权判定处使用穷举 switch）
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// Valid 是否为合法角色
func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleAdmin:
		return true
	}
	return false
}

// User 系统账号（患者 / 医生 / 管理员）
//
// Specialization 和 Verified 仅对医生角色有意义，其他角色忽略这两个字段。
type User struct {
	ID             string    `json:"id" bson:"_id"`
	Name           string    `json:"name" bson:"name"`
	Email          string    `json:"email" bson:"email"`
	PasswordHash   string    `json:"-" bson:"password_hash"` // never expose in JSON
	Role           Role      `json:"role" bson:"role"`
	Specialization string    `json:"specialization,omitempty" bson:"specialization,omitempty"`
	Verified       bool      `json:"verified" bson:"verified"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" bson:"updated_at"`
}

// IsVerifiedDoctor 是否为已认证医生
func (u *User) IsVerifiedDoctor() bool {
	return u.Role == RoleDoctor && u.Verified
}

// UserRef 关联展示用的账号摘要（病例中携带的医生/患者信息）
type UserRef struct {
	ID             string `json:"id" bson:"_id"`
	Name           string `json:"name" bson:"name"`
	Email          string `json:"email,omitempty" bson:"email,omitempty"`
	Specialization string `json:"specialization,omitempty" bson:"specialization,omitempty"`
}

// Ref 转换为账号摘要
func (u *User) Ref() *UserRef {
	return &UserRef{ID: u.ID, Name: u.Name, Email: u.Email, Specialization: u.Specialization}
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidEmail 校验邮箱格式
func ValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// NormalizeEmail 邮箱归一化：去空白并转小写（邮箱唯一性不区分大小写）
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateName 校验显示名称，合法时返回空串
func ValidateName(name string) string {
	if len(strings.TrimSpace(name)) < 2 {
		return "Name must be at least 2 characters long"
	}
	return ""
}

// ValidatePassword 校验密码强度，合法时返回空串
func ValidatePassword(password string) string {
	if len(password) < 6 {
		return "Password must be at least 6 characters long"
	}
	return ""
}
