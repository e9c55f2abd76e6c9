package storage

import (
	"context"

	"consult-portal/internal/shared/model"
)

// UserStore 账号存储接口
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	ListUsers(ctx context.Context) ([]*model.User, error)
	ListVerifiedDoctors(ctx context.Context) ([]*model.User, error)
	UpdateUser(ctx context.Context, user *model.User) error
	VerifyDoctor(ctx context.Context, id string) error
	DeleteUser(ctx context.Context, id string) error
}

// ConsultationStore 病例存储接口
//
// AssignConsultation / ResolveConsultation 是条件单文档更新：
// 前置状态在存储层一次写入中校验，两名医生竞抢同一病例时恰有一方
// 收到 ErrConflict，不会出现静默覆盖。
type ConsultationStore interface {
	CreateConsultation(ctx context.Context, c *model.Consultation) error
	GetConsultation(ctx context.Context, id string) (*model.Consultation, error)
	ListConsultationsByPatient(ctx context.Context, patientID string) ([]*model.Consultation, error)
	ListPendingConsultations(ctx context.Context) ([]*model.Consultation, error)
	ListAssignedConsultations(ctx context.Context, doctorID string) ([]*model.Consultation, error)
	ListConsultations(ctx context.Context) ([]*model.Consultation, error)
	AssignConsultation(ctx context.Context, id, doctorID string) (*model.Consultation, error)
	ResolveConsultation(ctx context.Context, id, doctorID, solution string) (*model.Consultation, error)
	DeleteConsultation(ctx context.Context, id string) error
}

// PersistentStore 持久化存储组合接口
type PersistentStore interface {
	UserStore
	ConsultationStore

	Close() error
}
