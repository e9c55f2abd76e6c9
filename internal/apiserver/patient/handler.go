// Package patient 患者侧病例接口
package patient

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"consult-portal/internal/apiserver/auth"
	"consult-portal/internal/shared/model"
)

// Store 患者域用到的存储接口子集
type Store interface {
	CreateConsultation(ctx context.Context, c *model.Consultation) error
	GetConsultation(ctx context.Context, id string) (*model.Consultation, error)
	ListConsultationsByPatient(ctx context.Context, patientID string) ([]*model.Consultation, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// Handler 患者域 HTTP 处理器
type Handler struct {
	store Store
}

// NewHandler 创建患者处理器
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes 注册患者相关路由（整组挂 patient 角色门禁）
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	gate := auth.RequireRole(model.RolePatient)
	mux.HandleFunc("POST /user", gate(h.Create))
	mux.HandleFunc("GET /user/my", gate(h.ListMine))
	mux.HandleFunc("GET /user/{id}", gate(h.Get))
}

// Create 提交新病例
//
// 病例以 pending 状态创建，医生字段为空，患者取自当前会话。
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	user := auth.CurrentUser(r.Context())

	var req struct {
		Symptoms string `json:"symptoms"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if msg := model.ValidateSymptoms(req.Symptoms); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	now := time.Now()
	c := &model.Consultation{
		ID:        generateID("con"),
		Patient:   user.ID,
		Doctor:    nil,
		Symptoms:  strings.TrimSpace(req.Symptoms),
		Solution:  "",
		Status:    model.ConsultationStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.store.CreateConsultation(r.Context(), c); err != nil {
		log.Printf("[patient] CreateConsultation error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	log.Printf("[patient] Consultation created: %s by %s", c.ID, user.ID)
	writeJSON(w, http.StatusCreated, c)
}

// ListMine 当前患者的全部病例，新建在前，附医生姓名/专科
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	user := auth.CurrentUser(r.Context())

	consultations, err := h.store.ListConsultationsByPatient(r.Context(), user.ID)
	if err != nil {
		log.Printf("[patient] ListConsultationsByPatient error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	h.populateDoctors(r.Context(), consultations)
	writeJSON(w, http.StatusOK, map[string]interface{}{"consultations": consultations})
}

// Get 病例详情，仅本人可见
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	user := auth.CurrentUser(r.Context())
	id := r.PathValue("id")

	c, err := h.store.GetConsultation(r.Context(), id)
	if err != nil {
		log.Printf("[patient] GetConsultation error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "Consultation not found")
		return
	}
	if c.Patient != user.ID {
		writeError(w, http.StatusForbidden, "Not authorized to view this consultation")
		return
	}

	c.PatientInfo = user.Ref()
	h.populateDoctors(r.Context(), []*model.Consultation{c})
	writeJSON(w, http.StatusOK, c)
}

// populateDoctors 为病例批量附加医生摘要，同一医生只查一次
func (h *Handler) populateDoctors(ctx context.Context, consultations []*model.Consultation) {
	cache := map[string]*model.UserRef{}
	for _, c := range consultations {
		if c.Doctor == nil {
			continue
		}
		ref, ok := cache[*c.Doctor]
		if !ok {
			doctor, err := h.store.GetUserByID(ctx, *c.Doctor)
			if err != nil || doctor == nil {
				continue
			}
			ref = &model.UserRef{ID: doctor.ID, Name: doctor.Name, Specialization: doctor.Specialization}
			cache[*c.Doctor] = ref
		}
		c.DoctorInfo = ref
	}
}

func generateID(prefix string) string {
	b := make([]byte, 6)
	rand.Read(b)
	return prefix + "-" + hex.EncodeToString(b)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"Error": message})
}
