package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"consult-portal/internal/shared/model"
	"consult-portal/internal/shared/storage"
)

// UserStore 账号存储接口（auth 包用到的子集）
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

// Handler 认证 HTTP 处理器
type Handler struct {
	store UserStore
	cfg   Config
}

// NewHandler 创建认证处理器
func NewHandler(store UserStore, cfg Config) *Handler {
	return &Handler{store: store, cfg: cfg}
}

// RegisterRoutes 注册认证相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/signup", h.Signup)
	mux.HandleFunc("POST /auth/login", h.Login)
	mux.HandleFunc("POST /auth/logout", h.Logout)
	mux.HandleFunc("GET /auth/verify", h.Verify)
}

// ============================================================================
// 请求类型
// ============================================================================

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ============================================================================
// Handlers
// ============================================================================

// Signup 患者注册
//
// 角色强制为 patient，成功后直接签发会话。
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Name == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Please provide all fields")
		return
	}
	if msg := model.ValidateName(req.Name); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
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

	// 检查邮箱是否已注册
	existing, err := h.store.GetUserByEmail(r.Context(), email)
	if err != nil {
		log.Printf("[auth.signup] GetUserByEmail error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if existing != nil {
		writeError(w, http.StatusBadRequest, "User already exists")
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		log.Printf("[auth.signup] HashPassword error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	now := time.Now()
	user := &model.User{
		ID:           GenerateUserID(),
		Name:         req.Name,
		Email:        email,
		PasswordHash: hash,
		Role:         model.RolePatient,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := h.store.CreateUser(r.Context(), user); err != nil {
		// 唯一索引兜底：并发注册同一邮箱时后到的一方在此失败
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, http.StatusBadRequest, "User already exists")
			return
		}
		log.Printf("[auth.signup] CreateUser error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	token, err := GenerateToken(h.cfg, user.ID, user.Role)
	if err != nil {
		log.Printf("[auth.signup] GenerateToken error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	SetSessionCookie(w, h.cfg, token)

	log.Printf("[auth] User registered: %s (%s)", user.Email, user.ID)
	writeJSON(w, http.StatusCreated, user)
}

// Login 登录
//
// 账号不存在与密码错误返回同一条消息，避免账号枚举。
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Please provide all fields")
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		log.Printf("[auth.login] GetUserByEmail error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if user == nil || !CheckPassword(req.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	token, err := GenerateToken(h.cfg, user.ID, user.Role)
	if err != nil {
		log.Printf("[auth.login] GenerateToken error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	SetSessionCookie(w, h.cfg, token)

	log.Printf("[auth] User logged in: %s", user.Email)
	writeJSON(w, http.StatusOK, user)
}

// Logout 登出：清除客户端 Cookie，重复调用幂等
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	ClearSessionCookie(w, h.cfg)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// Verify 返回当前会话对应的账号视图
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Not authorized, no user data")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ============================================================================
// Admin Bootstrap
// ============================================================================

// EnsureAdminUser 确保管理员账号存在（启动时调用）
// 如果配置了 adminEmail 且数据库中不存在该账号，则自动创建
func EnsureAdminUser(store UserStore, adminEmail, adminPassword string) error {
	if adminEmail == "" || adminPassword == "" {
		return nil
	}

	ctx := context.Background()
	existing, err := store.GetUserByEmail(ctx, adminEmail)
	if err != nil {
		return fmt.Errorf("check admin user: %w", err)
	}
	if existing != nil {
		log.Printf("[auth] Admin user already exists: %s (%s)", adminEmail, existing.ID)
		return nil
	}

	hash, err := HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	now := time.Now()
	user := &model.User{
		ID:           GenerateUserID(),
		Name:         "Admin",
		Email:        model.NormalizeEmail(adminEmail),
		PasswordHash: hash,
		Role:         model.RoleAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	log.Printf("[auth] Created admin user: %s (%s)", adminEmail, user.ID)
	return nil
}

// GenerateUserID 生成账号标识符，格式 usr-xxxxxxxxxxxx
func GenerateUserID() string {
	b := make([]byte, 6)
	rand.Read(b)
	return "usr-" + hex.EncodeToString(b)
}
