package model

import (
	"strings"
	"time"
)

// ConsultationStatus 病例状态
//
// 状态单向推进：pending → assigned → resolved，不允许回退。
type ConsultationStatus string

const (
	ConsultationStatusPending  ConsultationStatus = "pending"
	ConsultationStatusAssigned ConsultationStatus = "assigned"
	ConsultationStatusResolved ConsultationStatus = "resolved"
)

// Valid 是否为合法状态
func (s ConsultationStatus) Valid() bool {
	switch s {
	case ConsultationStatusPending, ConsultationStatusAssigned, ConsultationStatusResolved:
		return true
	}
	return false
}

// CanTransitionTo 状态推进合法性检查
func (s ConsultationStatus) CanTransitionTo(next ConsultationStatus) bool {
	switch s {
	case ConsultationStatusPending:
		return next == ConsultationStatusAssigned
	case ConsultationStatusAssigned:
		return next == ConsultationStatusResolved
	}
	return false
}

// 病例文本字段长度限制
const (
	SymptomsMinLen = 10
	SymptomsMaxLen = 1000
	SolutionMaxLen = 2000
)

// Consultation 患者提交的病例
//
// 不变式：
//   - Doctor == nil 当且仅当 Status == pending
//   - Solution 非空 当且仅当 Status == resolved
//   - Patient 创建后不可变更
type Consultation struct {
	ID        string             `json:"id" bson:"_id"`
	Patient   string             `json:"patient" bson:"patient"`
	Doctor    *string            `json:"doctor" bson:"doctor"`
	Symptoms  string             `json:"symptoms" bson:"symptoms"`
	Solution  string             `json:"solution" bson:"solution"`
	Status    ConsultationStatus `json:"status" bson:"status"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time          `json:"updated_at" bson:"updated_at"`

	// 列表/详情响应中按需填充，不落库
	PatientInfo *UserRef `json:"patient_info,omitempty" bson:"-"`
	DoctorInfo  *UserRef `json:"doctor_info,omitempty" bson:"-"`
}

// AssignedTo 病例是否已指派给指定医生
func (c *Consultation) AssignedTo(doctorID string) bool {
	return c.Doctor != nil && *c.Doctor == doctorID
}

// ValidateSymptoms 校验症状描述，合法时返回空串
func ValidateSymptoms(symptoms string) string {
	symptoms = strings.TrimSpace(symptoms)
	if symptoms == "" {
		return "Symptoms description is required"
	}
	if len(symptoms) < SymptomsMinLen {
		return "Symptoms must be at least 10 characters long"
	}
	if len(symptoms) > SymptomsMaxLen {
		return "Symptoms description cannot exceed 1000 characters"
	}
	return ""
}

// ValidateSolution 校验处置方案，合法时返回空串
func ValidateSolution(solution string) string {
	solution = strings.TrimSpace(solution)
	if solution == "" {
		return "Solution is required"
	}
	if len(solution) > SolutionMaxLen {
		return "Solution cannot exceed 2000 characters"
	}
	return ""
}
