// Package doctor 医生侧病例接口（整组路由要求已认证医生）
package doctor

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"consult-portal/internal/apiserver/auth"
	"consult-portal/internal/shared/model"
	"consult-portal/internal/shared/storage"
)

// Store 医生域用到的存储接口子集
type Store interface {
	GetConsultation(ctx context.Context, id string) (*model.Consultation, error)
	ListPendingConsultations(ctx context.Context) ([]*model.Consultation, error)
	ListAssignedConsultations(ctx context.Context, doctorID string) ([]*model.Consultation, error)
	AssignConsultation(ctx context.Context, id, doctorID string) (*model.Consultation, error)
	ResolveConsultation(ctx context.Context, id, doctorID, solution string) (*model.Consultation, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// Handler 医生域 HTTP 处理器
type Handler struct {
	store Store
}

// NewHandler 创建医生处理器
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes 注册医生相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	gate := auth.RequireVerifiedDoctor
	mux.HandleFunc("GET /doctor/pending", gate(h.Pending))
	mux.HandleFunc("PUT /doctor/assign/{id}", gate(h.Assign))
	mux.HandleFunc("GET /doctor/assigned", gate(h.Assigned))
	mux.HandleFunc("PUT /doctor/solve/{id}", gate(h.Solve))
	mux.HandleFunc("GET /doctor/consultation/{id}", gate(h.Get))
}

// Pending 待接诊病例列表，先提交的排前，附患者信息
func (h *Handler) Pending(w http.ResponseWriter, r *http.Request) {
	consultations, err := h.store.ListPendingConsultations(r.Context())
	if err != nil {
		log.Printf("[doctor] ListPendingConsultations error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	h.populatePatients(r.Context(), consultations)
	writeJSON(w, http.StatusOK, map[string]interface{}{"consultations": consultations})
}

// Assign 医生自领 pending 病例
//
// 转移在存储层做条件更新，两名医生并发抢同一病例时恰有一方成功。
func (h *Handler) Assign(w http.ResponseWriter, r *http.Request) {
	user := auth.CurrentUser(r.Context())
	id := r.PathValue("id")

	updated, err := h.store.AssignConsultation(r.Context(), id, user.ID)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, "Consultation not found")
		case errors.Is(err, storage.ErrConflict):
			writeError(w, http.StatusBadRequest, "Consultation is already assigned or resolved")
		default:
			log.Printf("[doctor] AssignConsultation error: %v", err)
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
		}
		return
	}

	log.Printf("[doctor] Consultation %s assigned to %s", id, user.ID)
	writeJSON(w, http.StatusOK, updated)
}

// Assigned 当前医生名下未完结病例，先接诊的排前
func (h *Handler) Assigned(w http.ResponseWriter, r *http.Request) {
	user := auth.CurrentUser(r.Context())

	consultations, err := h.store.ListAssignedConsultations(r.Context(), user.ID)
	if err != nil {
		log.Printf("[doctor] ListAssignedConsultations error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	h.populatePatients(r.Context(), consultations)
	writeJSON(w, http.StatusOK, map[string]interface{}{"consultations": consultations})
}

// Solve 指派医生完结病例并给出处置方案
func (h *Handler) Solve(w http.ResponseWriter, r *http.Request) {
	user := auth.CurrentUser(r.Context())
	id := r.PathValue("id")

	var req struct {
		Solution string `json:"solution"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if msg := model.ValidateSolution(req.Solution); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	// 越权判定需要区分 403 与状态冲突，先读一次当前记录
	c, err := h.store.GetConsultation(r.Context(), id)
	if err != nil {
		log.Printf("[doctor] GetConsultation error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "Consultation not found")
		return
	}
	// 未指派（doctor 为空）或指派给他人的病例一律拒绝
	if !c.AssignedTo(user.ID) {
		writeError(w, http.StatusForbidden, "Not authorized to resolve this consultation")
		return
	}

	updated, err := h.store.ResolveConsultation(r.Context(), id, user.ID, strings.TrimSpace(req.Solution))
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, "Consultation not found")
		case errors.Is(err, storage.ErrConflict):
			writeError(w, http.StatusBadRequest, "Consultation is already resolved")
		default:
			log.Printf("[doctor] ResolveConsultation error: %v", err)
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
		}
		return
	}

	log.Printf("[doctor] Consultation %s resolved by %s", id, user.ID)
	writeJSON(w, http.StatusOK, updated)
}

// Get 病例详情，仅指派给当前医生的病例可见
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	user := auth.CurrentUser(r.Context())
	id := r.PathValue("id")

	c, err := h.store.GetConsultation(r.Context(), id)
	if err != nil {
		log.Printf("[doctor] GetConsultation error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "Consultation not found")
		return
	}
	if !c.AssignedTo(user.ID) {
		writeError(w, http.StatusForbidden, "Not authorized to view this consultation")
		return
	}

	h.populatePatients(r.Context(), []*model.Consultation{c})
	c.DoctorInfo = &model.UserRef{ID: user.ID, Name: user.Name, Specialization: user.Specialization}
	writeJSON(w, http.StatusOK, c)
}

// populatePatients 为病例批量附加患者摘要，同一患者只查一次
func (h *Handler) populatePatients(ctx context.Context, consultations []*model.Consultation) {
	cache := map[string]*model.UserRef{}
	for _, c := range consultations {
		ref, ok := cache[c.Patient]
		if !ok {
			patient, err := h.store.GetUserByID(ctx, c.Patient)
			if err != nil || patient == nil {
				continue
			}
			ref = &model.UserRef{ID: patient.ID, Name: patient.Name, Email: patient.Email}
			cache[c.Patient] = ref
		}
		c.PatientInfo = ref
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
