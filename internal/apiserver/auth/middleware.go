package auth

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"consult-portal/internal/shared/model"
)

// UserLoader 中间件加载当前账号所需的最小存储接口
type UserLoader interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// 免认证路由白名单（前缀匹配）
var publicPrefixes = []string{
	"/auth/signup",
	"/auth/login",
	"/auth/logout",
	"/health",
	"/metrics",
}

func isPublicRoute(path string) bool {
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Middleware 创建会话认证中间件
//
// 从 jwt Cookie 解析令牌并从存储层加载账号注入 context。
// 每次请求都回查账号：已删除账号的存量令牌立即失效。
func Middleware(store UserLoader, cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 公开路由：直接放行
			if isPublicRoute(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			cookie, err := r.Cookie(CookieName)
			if err != nil || cookie.Value == "" {
				writeError(w, http.StatusUnauthorized, "Not authorized, no token")
				return
			}

			claims, err := ParseToken(cfg, cookie.Value)
			if err != nil {
				log.Printf("[auth] token parse error: %v", err)
				writeError(w, http.StatusUnauthorized, "Not authorized, token failed")
				return
			}

			user, err := store.GetUserByID(r.Context(), claims.Subject)
			if err != nil {
				log.Printf("[auth] GetUserByID error: %v", err)
				writeError(w, http.StatusInternalServerError, "Internal Server Error")
				return
			}
			if user == nil {
				writeError(w, http.StatusUnauthorized, "Not authorized, user not found")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// ============================================================================
// 角色门禁（认证之后、业务处理之前的纯谓词）
// ============================================================================

// RequireRole 角色门禁：认证账号的角色必须等于 role
//
// 角色是封闭集合，这里对取值穷举 switch，新增角色时此处无法编译通过。
func RequireRole(role model.Role) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			user := CurrentUser(r.Context())
			if user == nil {
				writeError(w, http.StatusUnauthorized, "Not authorized, no user data")
				return
			}
			if user.Role != role {
				switch role {
				case model.RoleAdmin:
					writeError(w, http.StatusForbidden, "Not authorized. Admin access only.")
				case model.RoleDoctor:
					writeError(w, http.StatusForbidden, "Not authorized. Doctor access only.")
				case model.RolePatient:
					writeError(w, http.StatusForbidden, "Not authorized. Patient access only.")
				}
				return
			}
			next(w, r)
		}
	}
}

// RequireVerifiedDoctor 已认证医生门禁
//
// 未认证的医生与非医生角色分别给出不同的拒绝理由。
func RequireVerifiedDoctor(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r.Context())
		if user == nil {
			writeError(w, http.StatusUnauthorized, "Not authorized, no user data")
			return
		}
		if user.Role != model.RoleDoctor {
			writeError(w, http.StatusForbidden, "Not authorized. Doctor access only.")
			return
		}
		if !user.Verified {
			writeError(w, http.StatusForbidden, "Not authorized. Doctor account not verified.")
			return
		}
		next(w, r)
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
