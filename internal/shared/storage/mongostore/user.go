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
// UserStore
// ============================================================================

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	return insertOne(ctx, s.col(ColUsers), user)
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return findOne[model.User](ctx, s.col(ColUsers), bson.D{{Key: "_id", Value: id}})
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return findOne[model.User](ctx, s.col(ColUsers), bson.D{{Key: "email", Value: model.NormalizeEmail(email)}})
}

func (s *Store) ListUsers(ctx context.Context) ([]*model.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return findMany[model.User](ctx, s.col(ColUsers), bson.D{}, opts)
}

func (s *Store) ListVerifiedDoctors(ctx context.Context) ([]*model.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	filter := bson.D{
		{Key: "role", Value: model.RoleDoctor},
		{Key: "verified", Value: true},
	}
	return findMany[model.User](ctx, s.col(ColUsers), filter, opts)
}

func (s *Store) UpdateUser(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now()
	return updateFields(ctx, s.col(ColUsers), user.ID, bson.D{
		{Key: "name", Value: user.Name},
		{Key: "email", Value: user.Email},
		{Key: "specialization", Value: user.Specialization},
		{Key: "verified", Value: user.Verified},
		{Key: "updated_at", Value: user.UpdatedAt},
	})
}

// VerifyDoctor 将未认证医生标记为已认证
// 条件更新：仅当账号是未认证的医生时命中；已认证返回 ErrConflict
func (s *Store) VerifyDoctor(ctx context.Context, id string) error {
	filter := bson.D{
		{Key: "role", Value: model.RoleDoctor},
		{Key: "verified", Value: false},
	}
	update := bson.D{
		{Key: "verified", Value: true},
		{Key: "updated_at", Value: time.Now()},
	}
	_, err := updateOneIf[model.User](ctx, s.col(ColUsers), id, filter, update)
	return err
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	return deleteByID(ctx, s.col(ColUsers), id)
}

// Compile-time interface check
var _ storage.UserStore = (*Store)(nil)
