package mongostore

import (
	"context"
	"time"

	"consult-portal/internal/shared/model"
	"consult-portal/internal/shared/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ============================================================================
// ConsultationStore
// ============================================================================

func (s *Store) CreateConsultation(ctx context.Context, c *model.Consultation) error {
	return insertOne(ctx, s.col(ColConsultations), c)
}

func (s *Store) GetConsultation(ctx context.Context, id string) (*model.Consultation, error) {
	return findOne[model.Consultation](ctx, s.col(ColConsultations), bson.D{{Key: "_id", Value: id}})
}

// ListConsultationsByPatient 患者名下全部病例，新建在前
func (s *Store) ListConsultationsByPatient(ctx context.Context, patientID string) ([]*model.Consultation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return findMany[model.Consultation](ctx, s.col(ColConsultations), bson.D{{Key: "patient", Value: patientID}}, opts)
}

// ListPendingConsultations 待接诊病例，先提交的排前（先到先得）
func (s *Store) ListPendingConsultations(ctx context.Context) ([]*model.Consultation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	filter := bson.D{{Key: "status", Value: model.ConsultationStatusPending}}
	return findMany[model.Consultation](ctx, s.col(ColConsultations), filter, opts)
}

// ListAssignedConsultations 指定医生名下尚未完结的病例，先接诊的排前
func (s *Store) ListAssignedConsultations(ctx context.Context, doctorID string) ([]*model.Consultation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	filter := bson.D{
		{Key: "doctor", Value: doctorID},
		{Key: "status", Value: model.ConsultationStatusAssigned},
	}
	return findMany[model.Consultation](ctx, s.col(ColConsultations), filter, opts)
}

// ListConsultations 全部病例（管理员视角），新建在前
func (s *Store) ListConsultations(ctx context.Context) ([]*model.Consultation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return findMany[model.Consultation](ctx, s.col(ColConsultations), bson.D{}, opts)
}

// AssignConsultation pending → assigned 的条件转移
//
// 前置状态 status=pending 在同一次写入中校验，两个并发请求
// 竞抢同一病例时只有一方命中，另一方收到 ErrConflict。
func (s *Store) AssignConsultation(ctx context.Context, id, doctorID string) (*model.Consultation, error) {
	filter := bson.D{{Key: "status", Value: model.ConsultationStatusPending}}
	update := bson.D{
		{Key: "doctor", Value: doctorID},
		{Key: "status", Value: model.ConsultationStatusAssigned},
		{Key: "updated_at", Value: time.Now()},
	}
	return updateOneIf[model.Consultation](ctx, s.col(ColConsultations), id, filter, update)
}

// ResolveConsultation assigned → resolved 的条件转移
//
// 仅当病例处于 assigned 且指派医生为 doctorID 时命中，
// 防止未指派医生越权完结或对已完结病例重复写入。
func (s *Store) ResolveConsultation(ctx context.Context, id, doctorID, solution string) (*model.Consultation, error) {
	filter := bson.D{
		{Key: "status", Value: model.ConsultationStatusAssigned},
		{Key: "doctor", Value: doctorID},
	}
	update := bson.D{
		{Key: "solution", Value: solution},
		{Key: "status", Value: model.ConsultationStatusResolved},
		{Key: "updated_at", Value: time.Now()},
	}
	return updateOneIf[model.Consultation](ctx, s.col(ColConsultations), id, filter, update)
}

func (s *Store) DeleteConsultation(ctx context.Context, id string) error {
	return deleteByID(ctx, s.col(ColConsultations), id)
}

// Compile-time interface check
var _ storage.ConsultationStore = (*Store)(nil)
