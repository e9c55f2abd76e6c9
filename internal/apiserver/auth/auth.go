// Package auth 会话认证：JWT 令牌管理、密码哈希、HTTP 中间件与角色门禁
package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"consult-portal/internal/shared/model"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// CookieName 会话 Cookie 名称
const CookieName = "jwt"

// contextKey context 键类型
type contextKey string

const ctxKeyCurrentUser contextKey = "current_user"

// Config 认证配置
type Config struct {
	JWTSecret string        `yaml:"-"`          // 只从 JWT_SECRET 环境变量读取
	TokenTTL  time.Duration `yaml:"token_ttl"`  // 会话有效期
	SecureTLS bool          `yaml:"secure_tls"` // 生产环境下 Cookie 附带 Secure 标记
}

// DefaultConfig 返回默认认证配置
func DefaultConfig() Config {
	return Config{
		JWTSecret: "",
		TokenTTL:  30 * 24 * time.Hour,
		SecureTLS: true,
	}
}

// ============================================================================
// 密码哈希
// ============================================================================

// HashPassword 使用 bcrypt 哈希密码
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	return string(bytes), err
}

// CheckPassword 验证密码
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ============================================================================
// JWT Token
// ============================================================================

// Claims JWT 声明
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// GenerateToken 签发会话令牌
func GenerateToken(cfg Config, userID string, role model.Role) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(cfg.TokenTTL)),
		},
		Role: string(role),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}

// ParseToken 解析并验证 JWT
func ParseToken(cfg Config, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// ============================================================================
// 会话 Cookie
// ============================================================================

// SetSessionCookie 在响应上种会话 Cookie
//
// HttpOnly + SameSite=Strict。服务端没有吊销列表，
// 登出只是客户端清除 Cookie，被窃取的令牌在自然过期前仍然有效。
func SetSessionCookie(w http.ResponseWriter, cfg Config, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(cfg.TokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   cfg.SecureTLS,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearSessionCookie 清除会话 Cookie（登出）
func ClearSessionCookie(w http.ResponseWriter, cfg Config) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.SecureTLS,
		SameSite: http.SameSiteStrictMode,
	})
}

// ============================================================================
// Context 辅助函数
// ============================================================================

// WithUser 将认证账号注入 context
func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, ctxKeyCurrentUser, user)
}

// CurrentUser 从 context 获取认证账号，未认证时返回 nil
func CurrentUser(ctx context.Context) *model.User {
	user, _ := ctx.Value(ctxKeyCurrentUser).(*model.User)
	return user
}
