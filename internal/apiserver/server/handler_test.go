package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"consult-portal/internal/apiserver/auth"
	"consult-portal/internal/shared/model"
	"consult-portal/internal/shared/storage"
)

// ============================================================================
// 内存版 PersistentStore — 供全链路路由测试使用
// ============================================================================

type memStore struct {
	mu            sync.Mutex
	users         map[string]*model.User
	consultations map[string]*model.Consultation
}

func newMemStore() *memStore {
	return &memStore{
		users:         make(map[string]*model.User),
		consultations: make(map[string]*model.Consultation),
	}
}

func (m *memStore) CreateUser(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return storage.ErrDuplicate
		}
	}
	m.users[user.ID] = user
	return nil
}

func (m *memStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id], nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = model.NormalizeEmail(email)
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListUsers(_ context.Context) ([]*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.User{}
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

func (m *memStore) ListVerifiedDoctors(_ context.Context) ([]*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.User{}
	for _, u := range m.users {
		if u.IsVerifiedDoctor() {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memStore) UpdateUser(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return storage.ErrNotFound
	}
	m.users[user.ID] = user
	return nil
}

func (m *memStore) VerifyDoctor(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.Role != model.RoleDoctor {
		return storage.ErrNotFound
	}
	if u.Verified {
		return storage.ErrConflict
	}
	u.Verified = true
	return nil
}

func (m *memStore) DeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *memStore) CreateConsultation(_ context.Context, c *model.Consultation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consultations[c.ID] = c
	return nil
}

func (m *memStore) GetConsultation(_ context.Context, id string) (*model.Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consultations[id], nil
}

func (m *memStore) list(filter func(*model.Consultation) bool) []*model.Consultation {
	out := []*model.Consultation{}
	for _, c := range m.consultations {
		if filter(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *memStore) ListConsultationsByPatient(_ context.Context, patientID string) ([]*model.Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list(func(c *model.Consultation) bool { return c.Patient == patientID }), nil
}

func (m *memStore) ListPendingConsultations(_ context.Context) ([]*model.Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list(func(c *model.Consultation) bool { return c.Status == model.ConsultationStatusPending }), nil
}

func (m *memStore) ListAssignedConsultations(_ context.Context, doctorID string) ([]*model.Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list(func(c *model.Consultation) bool {
		return c.Status == model.ConsultationStatusAssigned && c.AssignedTo(doctorID)
	}), nil
}

func (m *memStore) ListConsultations(_ context.Context) ([]*model.Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list(func(*model.Consultation) bool { return true }), nil
}

func (m *memStore) AssignConsultation(_ context.Context, id, doctorID string) (*model.Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.consultations[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if c.Status != model.ConsultationStatusPending {
		return nil, storage.ErrConflict
	}
	c.Doctor = &doctorID
	c.Status = model.ConsultationStatusAssigned
	c.UpdatedAt = time.Now()
	return c, nil
}

func (m *memStore) ResolveConsultation(_ context.Context, id, doctorID, solution string) (*model.Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.consultations[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if c.Status != model.ConsultationStatusAssigned || !c.AssignedTo(doctorID) {
		return nil, storage.ErrConflict
	}
	c.Solution = solution
	c.Status = model.ConsultationStatusResolved
	c.UpdatedAt = time.Now()
	return c, nil
}

func (m *memStore) DeleteConsultation(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.consultations[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.consultations, id)
	return nil
}

func (m *memStore) Close() error { return nil }

// ============================================================================
// Router 全链路测试
//
// 指标使用 Prometheus 默认注册表，Handler 在包内只创建一次。
// ============================================================================

var (
	routerOnce   sync.Once
	sharedStore  *memStore
	sharedRouter http.Handler
)

func testRouter() (*memStore, http.Handler) {
	routerOnce.Do(func() {
		sharedStore = newMemStore()
		cfg := auth.Config{JWTSecret: "router-test-secret", TokenTTL: time.Hour}
		sharedRouter = NewHandler(sharedStore, cfg).Router()
	})
	return sharedStore, sharedRouter
}

func doRequest(router http.Handler, method, path, body string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRouter(t *testing.T) {
	store, router := testRouter()

	t.Run("health", func(t *testing.T) {
		w := doRequest(router, "GET", "/health", "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), `"status":"ok"`) {
			t.Errorf("body = %s", w.Body.String())
		}
	})

	t.Run("metrics endpoint exposed", func(t *testing.T) {
		w := doRequest(router, "GET", "/metrics", "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
	})

	t.Run("protected route without session", func(t *testing.T) {
		w := doRequest(router, "GET", "/user/my", "", nil)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
	})

	t.Run("cors preflight", func(t *testing.T) {
		req := httptest.NewRequest("OPTIONS", "/auth/login", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
			t.Errorf("Allow-Origin = %q", got)
		}
		if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
			t.Errorf("Allow-Credentials = %q", got)
		}
	})

	// 患者注册 → 提交病例 → 查询本人病例
	t.Run("patient flow", func(t *testing.T) {
		w := doRequest(router, "POST", "/auth/signup",
			`{"name":"Alice","email":"alice@example.com","password":"secret1"}`, nil)
		if w.Code != http.StatusCreated {
			t.Fatalf("signup: expected 201, got %d: %s", w.Code, w.Body.String())
		}
		session := w.Result().Cookies()

		w = doRequest(router, "POST", "/user",
			`{"symptoms":"persistent headache and dizziness"}`, session)
		if w.Code != http.StatusCreated {
			t.Fatalf("create consultation: expected 201, got %d: %s", w.Code, w.Body.String())
		}

		w = doRequest(router, "GET", "/user/my", "", session)
		if w.Code != http.StatusOK {
			t.Fatalf("list: expected 200, got %d", w.Code)
		}
		var resp struct {
			Consultations []*model.Consultation `json:"consultations"`
		}
		json.Unmarshal(w.Body.Bytes(), &resp)
		if len(resp.Consultations) != 1 {
			t.Fatalf("expected 1 consultation, got %d", len(resp.Consultations))
		}

		// 患者不能访问医生/管理员路由
		w = doRequest(router, "GET", "/doctor/pending", "", session)
		if w.Code != http.StatusForbidden {
			t.Errorf("doctor route as patient: expected 403, got %d", w.Code)
		}
		w = doRequest(router, "GET", "/admin/users", "", session)
		if w.Code != http.StatusForbidden {
			t.Errorf("admin route as patient: expected 403, got %d", w.Code)
		}
	})

	// 医生领诊 → 完结
	t.Run("doctor flow", func(t *testing.T) {
		hash, _ := auth.HashPassword("secret1")
		store.users["doc-1"] = &model.User{
			ID: "doc-1", Name: "Dr. Chen", Email: "chen@example.com", PasswordHash: hash,
			Role: model.RoleDoctor, Specialization: "Neurology", Verified: true,
			CreatedAt: time.Now(), UpdatedAt: time.Now(),
		}

		w := doRequest(router, "POST", "/auth/login",
			`{"email":"chen@example.com","password":"secret1"}`, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("login: expected 200, got %d: %s", w.Code, w.Body.String())
		}
		session := w.Result().Cookies()

		w = doRequest(router, "GET", "/doctor/pending", "", session)
		if w.Code != http.StatusOK {
			t.Fatalf("pending: expected 200, got %d", w.Code)
		}
		var resp struct {
			Consultations []*model.Consultation `json:"consultations"`
		}
		json.Unmarshal(w.Body.Bytes(), &resp)
		if len(resp.Consultations) == 0 {
			t.Fatal("expected pending consultation from patient flow")
		}
		id := resp.Consultations[0].ID

		w = doRequest(router, "PUT", "/doctor/assign/"+id, "", session)
		if w.Code != http.StatusOK {
			t.Fatalf("assign: expected 200, got %d: %s", w.Code, w.Body.String())
		}

		w = doRequest(router, "PUT", "/doctor/solve/"+id,
			`{"solution":"Rest and plenty of fluids"}`, session)
		if w.Code != http.StatusOK {
			t.Fatalf("solve: expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if store.consultations[id].Status != model.ConsultationStatusResolved {
			t.Errorf("status = %s, want resolved", store.consultations[id].Status)
		}
	})
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/health", "/health"},
		{"/user/my", "/user/my"},
		{"/user/con-abc123", "/user/{id}"},
		{"/doctor/assign/con-abc123", "/doctor/assign/{id}"},
		{"/doctor/solve/con-abc123", "/doctor/solve/{id}"},
		{"/doctor/consultation/con-abc123", "/doctor/consultation/{id}"},
		{"/admin/users/usr-abc123", "/admin/users/{id}"},
		{"/admin/doctors/usr-abc123", "/admin/doctors/{id}"},
		{"/admin/doctors/verify/usr-abc123", "/admin/doctors/verify/{id}"},
		{"/admin/consultations/con-abc123", "/admin/consultations/{id}"},
		{"/admin/consultations/assign/con-abc123", "/admin/consultations/assign/{id}"},
	}
	for _, tt := range tests {
		if got := normalizePath(tt.in); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
