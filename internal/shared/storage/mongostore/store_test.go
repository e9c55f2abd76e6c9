package mongostore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"consult-portal/internal/shared/model"
	"consult-portal/internal/shared/storage"
)

// testStore 创建测试用 Store，使用独立数据库避免污染
func testStore(t *testing.T) *Store {
	t.Helper()

	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}

	s, err := NewStore(uri, "consult_portal_test")
	if err != nil {
		t.Skipf("MongoDB not available: %v", err)
	}

	ctx := context.Background()
	if err := s.db.Drop(ctx); err != nil {
		t.Fatalf("Failed to drop test database: %v", err)
	}
	if err := s.ensureIndexes(ctx); err != nil {
		t.Fatalf("Failed to create indexes: %v", err)
	}

	t.Cleanup(func() {
		s.db.Drop(context.Background())
		s.Close()
	})

	return s
}

// Compile-time interface check
var _ storage.PersistentStore = (*Store)(nil)

func testUser(id string, role model.Role, verified bool) *model.User {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &model.User{
		ID:           id,
		Name:         "Test " + id,
		Email:        id + "@example.com",
		PasswordHash: "$2a$12$hash",
		Role:         role,
		Verified:     verified,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestUserCRUD(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	u := testUser("usr-001", model.RolePatient, false)
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	// 邮箱唯一索引：重复邮箱应返回 ErrDuplicate
	dup := testUser("usr-002", model.RolePatient, false)
	dup.Email = u.Email
	if err := s.CreateUser(ctx, dup); !errors.Is(err, storage.ErrDuplicate) {
		t.Fatalf("CreateUser duplicate email: err = %v, want ErrDuplicate", err)
	}

	got, err := s.GetUserByEmail(ctx, "USR-001@Example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if got == nil || got.ID != "usr-001" {
		t.Fatalf("GetUserByEmail = %+v, want usr-001", got)
	}

	// 不存在的账号返回 (nil, nil)
	missing, err := s.GetUserByID(ctx, "usr-nope")
	if err != nil || missing != nil {
		t.Fatalf("GetUserByID(absent) = (%v, %v), want (nil, nil)", missing, err)
	}

	if err := s.DeleteUser(ctx, "usr-001"); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if err := s.DeleteUser(ctx, "usr-001"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("DeleteUser twice: err = %v, want ErrNotFound", err)
	}
}

func TestVerifyDoctor(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	doc := testUser("usr-doc", model.RoleDoctor, false)
	if err := s.CreateUser(ctx, doc); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	if err := s.VerifyDoctor(ctx, "usr-doc"); err != nil {
		t.Fatalf("VerifyDoctor: %v", err)
	}
	got, _ := s.GetUserByID(ctx, "usr-doc")
	if !got.Verified {
		t.Error("doctor not verified after VerifyDoctor")
	}

	// 重复认证：前置条件 verified=false 失效
	if err := s.VerifyDoctor(ctx, "usr-doc"); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("VerifyDoctor twice: err = %v, want ErrConflict", err)
	}
	if err := s.VerifyDoctor(ctx, "usr-nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("VerifyDoctor(absent): err = %v, want ErrNotFound", err)
	}
}

func testConsultation(id, patientID string) *model.Consultation {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &model.Consultation{
		ID:        id,
		Patient:   patientID,
		Doctor:    nil,
		Symptoms:  "Persistent cough for 5 days",
		Solution:  "",
		Status:    model.ConsultationStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestConsultationLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	c := testConsultation("con-001", "usr-pat")
	if err := s.CreateConsultation(ctx, c); err != nil {
		t.Fatalf("CreateConsultation: %v", err)
	}

	// pending → assigned
	assigned, err := s.AssignConsultation(ctx, "con-001", "usr-doc1")
	if err != nil {
		t.Fatalf("AssignConsultation: %v", err)
	}
	if assigned.Status != model.ConsultationStatusAssigned {
		t.Errorf("Status = %s, want assigned", assigned.Status)
	}
	if assigned.Doctor == nil || *assigned.Doctor != "usr-doc1" {
		t.Errorf("Doctor = %v, want usr-doc1", assigned.Doctor)
	}

	// 第二个医生竞抢已指派病例：前置条件失效，记录不被覆盖
	if _, err := s.AssignConsultation(ctx, "con-001", "usr-doc2"); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("AssignConsultation non-pending: err = %v, want ErrConflict", err)
	}
	got, _ := s.GetConsultation(ctx, "con-001")
	if *got.Doctor != "usr-doc1" {
		t.Errorf("Doctor overwritten to %s after losing race", *got.Doctor)
	}

	// 非指派医生完结：过滤条件不命中
	if _, err := s.ResolveConsultation(ctx, "con-001", "usr-doc2", "rest"); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("ResolveConsultation wrong doctor: err = %v, want ErrConflict", err)
	}

	// assigned → resolved
	resolved, err := s.ResolveConsultation(ctx, "con-001", "usr-doc1", "Rest and hydration")
	if err != nil {
		t.Fatalf("ResolveConsultation: %v", err)
	}
	if resolved.Status != model.ConsultationStatusResolved || resolved.Solution != "Rest and hydration" {
		t.Errorf("resolved = %+v", resolved)
	}

	// resolved 后不再接受任何转移
	if _, err := s.ResolveConsultation(ctx, "con-001", "usr-doc1", "again"); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("ResolveConsultation twice: err = %v, want ErrConflict", err)
	}

	// 不存在的病例
	if _, err := s.AssignConsultation(ctx, "con-nope", "usr-doc1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("AssignConsultation(absent): err = %v, want ErrNotFound", err)
	}
}

func TestConsultationListOrdering(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i, id := range []string{"con-a", "con-b", "con-c"} {
		c := testConsultation(id, "usr-pat")
		c.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := s.CreateConsultation(ctx, c); err != nil {
			t.Fatalf("CreateConsultation %s: %v", id, err)
		}
	}

	// 患者视角：新建在前
	mine, err := s.ListConsultationsByPatient(ctx, "usr-pat")
	if err != nil {
		t.Fatalf("ListConsultationsByPatient: %v", err)
	}
	if len(mine) != 3 || mine[0].ID != "con-c" {
		t.Errorf("patient list order = %v", ids(mine))
	}

	// 医生视角：先提交的排前
	pending, err := s.ListPendingConsultations(ctx)
	if err != nil {
		t.Fatalf("ListPendingConsultations: %v", err)
	}
	if len(pending) != 3 || pending[0].ID != "con-a" {
		t.Errorf("pending list order = %v", ids(pending))
	}

	// 接诊后从 pending 列表消失，出现在医生的 assigned 列表
	if _, err := s.AssignConsultation(ctx, "con-a", "usr-doc1"); err != nil {
		t.Fatalf("AssignConsultation: %v", err)
	}
	pending, _ = s.ListPendingConsultations(ctx)
	if len(pending) != 2 {
		t.Errorf("pending after assign = %d, want 2", len(pending))
	}
	assigned, _ := s.ListAssignedConsultations(ctx, "usr-doc1")
	if len(assigned) != 1 || assigned[0].ID != "con-a" {
		t.Errorf("assigned list = %v", ids(assigned))
	}
}

func ids(cs []*model.Consultation) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}
