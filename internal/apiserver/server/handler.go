// Package server 路由配置与核心基础设施
//
// 本文件定义 HTTP API 路由，将请求分发到各领域独立包。
// 各领域包自带角色门禁，本包负责装配认证/指标/日志中间件。
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"consult-portal/internal/apiserver/admin"
	"consult-portal/internal/apiserver/auth"
	"consult-portal/internal/apiserver/doctor"
	"consult-portal/internal/apiserver/patient"
	"consult-portal/internal/shared/storage"
	"consult-portal/pkg/logging"
)

// Handler API 处理器
//
// Handler 是所有 HTTP API 的入口，负责：
//   - 路由请求到对应的领域包
//   - 管理存储层连接
//   - 装配认证、指标、请求日志中间件
type Handler struct {
	store   storage.PersistentStore
	authCfg auth.Config
	metrics *Metrics
	logger  *logging.Logger
}

// NewHandler 创建 Handler 实例
func NewHandler(store storage.PersistentStore, authCfg auth.Config) *Handler {
	return &Handler{
		store:   store,
		authCfg: authCfg,
		metrics: NewMetrics("consult_portal"),
		logger:  logging.Default("api-server"),
	}
}

// Router 返回配置好的 HTTP 路由
//
// 路由规则：
//
// 健康检查:
//   - GET /health - 服务健康检查
//   - GET /metrics - Prometheus 指标
//
// 认证 (Auth):
//   - POST /auth/signup  - 患者注册
//   - POST /auth/login   - 登录
//   - POST /auth/logout  - 登出
//   - GET  /auth/verify  - 校验当前会话
//
// 患者 (Patient):
//   - POST /user        - 提交病例
//   - GET  /user/my     - 本人病例列表
//   - GET  /user/{id}   - 病例详情
//
// 医生 (Doctor):
//   - GET /doctor/pending            - 待接诊列表
//   - PUT /doctor/assign/{id}        - 自领病例
//   - GET /doctor/assigned           - 名下病例
//   - PUT /doctor/solve/{id}         - 完结病例
//   - GET /doctor/consultation/{id}  - 病例详情
//
// 管理员 (Admin):
//   - GET    /admin/users                     - 账号列表
//   - DELETE /admin/users/{id}                - 删除账号
//   - POST   /admin/doctors                   - 新增医生
//   - GET    /admin/doctors                   - 医生名录
//   - GET    /admin/doctors/{id}              - 医生详情
//   - PUT    /admin/doctors/{id}              - 更新医生
//   - DELETE /admin/doctors/{id}              - 删除医生
//   - PUT    /admin/doctors/verify/{id}       - 审核医生
//   - GET    /admin/consultations             - 病例总览
//   - GET    /admin/consultations/{id}        - 病例详情
//   - PUT    /admin/consultations/assign/{id} - 指派病例
//   - DELETE /admin/consultations/{id}        - 删除病例
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	// 健康检查
	mux.HandleFunc("GET /health", h.Health)

	// Prometheus 指标端点
	mux.Handle("GET /metrics", MetricsHandler())

	// 认证接口
	authHandler := auth.NewHandler(h.store, h.authCfg)
	authHandler.RegisterRoutes(mux)

	// 患者接口
	patientHandler := patient.NewHandler(h.store)
	patientHandler.RegisterRoutes(mux)

	// 医生接口
	doctorHandler := doctor.NewHandler(h.store)
	doctorHandler.RegisterRoutes(mux)

	// 管理员接口
	adminHandler := admin.NewHandler(h.store)
	adminHandler.RegisterRoutes(mux)

	// 中间件由内向外：指标 → 认证 → 请求日志 → CORS
	apiHandler := h.metrics.MetricsMiddleware(mux)
	authedHandler := auth.Middleware(h.store, h.authCfg)(apiHandler)
	loggedHandler := h.requestLogMiddleware(authedHandler)

	return corsMiddleware(loggedHandler)
}

// Health 健康检查接口
//
// 路由: GET /health
//
// 用于负载均衡器和监控系统检查服务状态。
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// requestLogMiddleware 结构化请求日志
func (h *Handler) requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		h.logger.HTTPRequestLog(r.Method, r.URL.Path, wrapped.statusCode, time.Since(start), r.RemoteAddr)
	})
}

// corsMiddleware 添加 CORS 头支持跨域请求
//
// 会话走 Cookie，凭据模式下 Origin 不能用通配符
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
