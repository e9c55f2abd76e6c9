// Package admin 管理员侧账号与病例管理接口
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"consult-portal/internal/apiserver/auth"
	"consult-portal/internal/shared/model"
	"consult-portal/internal/shared/storage"
)

// Store 管理域用到的存储接口子集
type Store interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	ListUsers(ctx context.Context) ([]*model.User, error)
	ListVerifiedDoctors(ctx context.Context) ([]*model.User, error)
	UpdateUser(ctx context.Context, user *model.User) error
	VerifyDoctor(ctx context.Context, id string) error
	DeleteUser(ctx context.Context, id string) error

	GetConsultation(ctx context.Context, id string) (*model.Consultation, error)
	ListConsultations(ctx context.Context) ([]*model.Consultation, error)
	AssignConsultation(ctx context.Context, id, doctorID string) (*model.Consultation, error)
	DeleteConsultation(ctx context.Context, id string) error
}

// Handler 管理域 HTTP 处理器
type Handler struct {
	store Store
}

// NewHandler 创建管理处理器
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes 注册管理相关路由（整组挂 admin 角色门禁）
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	gate := auth.RequireRole(model.RoleAdmin)

	mux.HandleFunc("GET /admin/users", gate(h.ListUsers))
	mux.HandleFunc("DELETE /admin/users/{id}", gate(h.DeleteUser))

	mux.HandleFunc("POST /admin/doctors", gate(h.CreateDoctor))
	mux.HandleFunc("GET /admin/doctors", gate(h.ListDoctors))
	mux.HandleFunc("GET /admin/doctors/{id}", gate(h.GetDoctor))
	mux.HandleFunc("PUT /admin/doctors/{id}", gate(h.UpdateDoctor))
	mux.HandleFunc("DELETE /admin/doctors/{id}", gate(h.DeleteDoctor))
	mux.HandleFunc("PUT /admin/doctors/verify/{id}", gate(h.VerifyDoctor))

	mux.HandleFunc("GET /admin/consultations", gate(h.ListConsultations))
	mux.HandleFunc("GET /admin/consultations/{id}", gate(h.GetConsultation))
	mux.HandleFunc("PUT /admin/consultations/assign/{id}", gate(h.AssignConsultation))
	mux.HandleFunc("DELETE /admin/consultations/{id}", gate(h.DeleteConsultation))
}

// ============================================================================
// 账号管理
// ============================================================================

// ListUsers 全部账号列表（响应中不含密码哈希）
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		log.Printf("[admin] ListUsers error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

// DeleteUser 删除任意账号，管理员不能删除自己
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	admin := auth.CurrentUser(r.Context())
	id := r.PathValue("id")

	if id == admin.ID {
		writeError(w, http.StatusBadRequest, "Admin cannot delete their own account")
		return
	}

	if err := h.store.DeleteUser(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		log.Printf("[admin] DeleteUser error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	log.Printf("[admin] User deleted: %s by %s", id, admin.ID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "User deleted successfully"})
}

// ============================================================================
// 医生管理
// ============================================================================

type createDoctorRequest struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	Specialization string `json:"specialization"`
}

// CreateDoctor 管理员新增医生，免审直接 verified=true
func (h *Handler) CreateDoctor(w http.ResponseWriter, r *http.Request) {
	var req createDoctorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Name == "" || req.Email == "" || req.Password == "" || req.Specialization == "" {
		writeError(w, http.StatusBadRequest, "Please provide all fields")
		return
	}
	email := model.NormalizeEmail(req.Email)
	if !model.ValidEmail(email) {
		writeError(w, http.StatusBadRequest, "Please fill a valid email address")
		return
	}
	if msg := model.ValidatePassword(req.Password); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	existing, err := h.store.GetUserByEmail(r.Context(), email)
	if err != nil {
		log.Printf("[admin] GetUserByEmail error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if existing != nil {
		writeError(w, http.StatusBadRequest, "Doctor with this email already exists")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Printf("[admin] HashPassword error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	now := time.Now()
	doctor := &model.User{
		ID:             auth.GenerateUserID(),
		Name:           req.Name,
		Email:          email,
		PasswordHash:   hash,
		Role:           model.RoleDoctor,
		Specialization: req.Specialization,
		Verified:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := h.store.CreateUser(r.Context(), doctor); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, http.StatusBadRequest, "Doctor with this email already exists")
			return
		}
		log.Printf("[admin] CreateUser error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	log.Printf("[admin] Doctor created: %s (%s)", doctor.Email, doctor.ID)
	writeJSON(w, http.StatusCreated, doctor)
}

// ListDoctors 已认证医生名录
func (h *Handler) ListDoctors(w http.ResponseWriter, r *http.Request) {
	doctors, err := h.store.ListVerifiedDoctors(r.Context())
	if err != nil {
		log.Printf("[admin] ListVerifiedDoctors error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"doctors": doctors})
}

// GetDoctor 医生详情，仅已认证的医生可检索
func (h *Handler) GetDoctor(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	doctor, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		log.Printf("[admin] GetUserByID error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if doctor == nil || !doctor.IsVerifiedDoctor() {
		writeError(w, http.StatusNotFound, "Doctor not found or not verified")
		return
	}
	writeJSON(w, http.StatusOK, doctor)
}

type updateDoctorRequest struct {
	Name           *string `json:"name,omitempty"`
	Email          *string `json:"email,omitempty"`
	Specialization *string `json:"specialization,omitempty"`
	Verified       *bool   `json:"verified,omitempty"`
}

// UpdateDoctor 覆盖医生资料字段，校验规则与创建一致
func (h *Handler) UpdateDoctor(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	doctor, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		log.Printf("[admin] GetUserByID error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if doctor == nil || doctor.Role != model.RoleDoctor {
		writeError(w, http.StatusNotFound, "Doctor not found")
		return
	}

	var req updateDoctorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Name != nil {
		if msg := model.ValidateName(*req.Name); msg != "" {
			writeError(w, http.StatusBadRequest, msg)
			return
		}
		doctor.Name = *req.Name
	}
	if req.Email != nil {
		email := model.NormalizeEmail(*req.Email)
		if !model.ValidEmail(email) {
			writeError(w, http.StatusBadRequest, "Please fill a valid email address")
			return
		}
		doctor.Email = email
	}
	if req.Specialization != nil {
		doctor.Specialization = *req.Specialization
	}
	if req.Verified != nil {
		doctor.Verified = *req.Verified
	}

	if err := h.store.UpdateUser(r.Context(), doctor); err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, "Doctor not found")
		case errors.Is(err, storage.ErrDuplicate):
			writeError(w, http.StatusBadRequest, "Doctor with this email already exists")
		default:
			log.Printf("[admin] UpdateUser error: %v", err)
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
		}
		return
	}

	log.Printf("[admin] Doctor updated: %s", id)
	writeJSON(w, http.StatusOK, doctor)
}

// DeleteDoctor 删除医生账号，目标必须是医生角色
func (h *Handler) DeleteDoctor(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	doctor, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		log.Printf("[admin] GetUserByID error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if doctor == nil {
		writeError(w, http.StatusNotFound, "Doctor not found")
		return
	}
	if doctor.Role != model.RoleDoctor {
		writeError(w, http.StatusBadRequest, "This user is not a doctor")
		return
	}

	if err := h.store.DeleteUser(r.Context(), id); err != nil {
		log.Printf("[admin] DeleteUser error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	log.Printf("[admin] Doctor deleted: %s", id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Doctor deleted successfully"})
}

// VerifyDoctor 审核通过医生账号
func (h *Handler) VerifyDoctor(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	doctor, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		log.Printf("[admin] GetUserByID error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if doctor == nil || doctor.Role != model.RoleDoctor {
		writeError(w, http.StatusNotFound, "Doctor not found")
		return
	}
	if doctor.Verified {
		writeError(w, http.StatusBadRequest, "Doctor is already verified")
		return
	}

	if err := h.store.VerifyDoctor(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, "Doctor not found")
		case errors.Is(err, storage.ErrConflict):
			writeError(w, http.StatusBadRequest, "Doctor is already verified")
		default:
			log.Printf("[admin] VerifyDoctor error: %v", err)
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
		}
		return
	}

	log.Printf("[admin] Doctor verified: %s", id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Doctor verified successfully"})
}

// ============================================================================
// 病例管理（可信角色，不做归属检查）
// ============================================================================

// ListConsultations 全部病例，新建在前，双方信息齐附
func (h *Handler) ListConsultations(w http.ResponseWriter, r *http.Request) {
	consultations, err := h.store.ListConsultations(r.Context())
	if err != nil {
		log.Printf("[admin] ListConsultations error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	h.populate(r.Context(), consultations)
	writeJSON(w, http.StatusOK, map[string]interface{}{"consultations": consultations})
}

// GetConsultation 任意病例详情
func (h *Handler) GetConsultation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	c, err := h.store.GetConsultation(r.Context(), id)
	if err != nil {
		log.Printf("[admin] GetConsultation error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "Consultation not found")
		return
	}

	h.populate(r.Context(), []*model.Consultation{c})
	writeJSON(w, http.StatusOK, c)
}

// AssignConsultation 管理员将 pending 病例指派给指定已认证医生
func (h *Handler) AssignConsultation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req struct {
		DoctorID string `json:"doctorId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.DoctorID == "" {
		writeError(w, http.StatusBadRequest, "Doctor ID is required in the body")
		return
	}

	doctor, err := h.store.GetUserByID(r.Context(), req.DoctorID)
	if err != nil {
		log.Printf("[admin] GetUserByID error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if doctor == nil {
		writeError(w, http.StatusNotFound, "Doctor not found")
		return
	}
	if !doctor.IsVerifiedDoctor() {
		writeError(w, http.StatusBadRequest, "This user is not a verified doctor")
		return
	}

	updated, err := h.store.AssignConsultation(r.Context(), id, doctor.ID)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, "Consultation not found")
		case errors.Is(err, storage.ErrConflict):
			// 转移失败时带上当前状态，便于前端提示
			c, gerr := h.store.GetConsultation(r.Context(), id)
			status := "unknown"
			if gerr == nil && c != nil {
				status = string(c.Status)
			}
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("Consultation cannot be assigned, status is already: %s", status))
		default:
			log.Printf("[admin] AssignConsultation error: %v", err)
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
		}
		return
	}

	h.populate(r.Context(), []*model.Consultation{updated})
	log.Printf("[admin] Consultation %s assigned to %s", id, doctor.ID)
	writeJSON(w, http.StatusOK, updated)
}

// DeleteConsultation 无条件删除病例
func (h *Handler) DeleteConsultation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.store.DeleteConsultation(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Consultation not found")
			return
		}
		log.Printf("[admin] DeleteConsultation error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	log.Printf("[admin] Consultation deleted: %s", id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Consultation deleted successfully"})
}

// populate 附加患者与医生摘要
func (h *Handler) populate(ctx context.Context, consultations []*model.Consultation) {
	cache := map[string]*model.User{}
	lookup := func(id string) *model.User {
		if u, ok := cache[id]; ok {
			return u
		}
		u, err := h.store.GetUserByID(ctx, id)
		if err != nil {
			return nil
		}
		cache[id] = u
		return u
	}

	for _, c := range consultations {
		if patient := lookup(c.Patient); patient != nil {
			c.PatientInfo = &model.UserRef{ID: patient.ID, Name: patient.Name, Email: patient.Email}
		}
		if c.Doctor != nil {
			if doctor := lookup(*c.Doctor); doctor != nil {
				c.DoctorInfo = &model.UserRef{ID: doctor.ID, Name: doctor.Name, Specialization: doctor.Specialization}
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"Error": message})
}
