// Package config 统一配置管理
//
// 配置加载策略：
//  1. 从 .env 加载敏感信息（JWT 密钥、管理员初始账号）和 APP_ENV
//  2. 根据 APP_ENV 加载对应的 configs/{env}.yaml 配置文件
//  3. 环境变量可覆盖 YAML 配置
//
// 凭据单一数据源：密钥/密码只存在 .env 中，YAML 不存储任何密码。
//
// 使用方式：
//   - 开发环境: APP_ENV=dev (默认)
//   - 测试环境: APP_ENV=test
//   - 生产环境: APP_ENV=prod
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment 环境类型
type Environment string

const (
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
	EnvDevelopment Environment = "dev"
)

// YAMLConfig YAML 配置文件结构
type YAMLConfig struct {
	Server ServerConfig `yaml:"server"`
	Mongo  MongoConfig  `yaml:"mongo"`
	Auth   AuthConfig   `yaml:"auth"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type MongoConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
}

// AuthConfig 认证配置
// 注意：JWTSecret/AdminEmail/AdminPassword 只从环境变量读取，不存储在 YAML 中
type AuthConfig struct {
	JWTSecret     string `yaml:"-"`         // 只从 JWT_SECRET 环境变量读取
	TokenTTL      string `yaml:"token_ttl"` // 例如 "720h"（30 天）
	SecureCookie  bool   `yaml:"secure_cookie"`
	AdminEmail    string `yaml:"-"` // 只从 ADMIN_EMAIL 环境变量读取
	AdminPassword string `yaml:"-"` // 只从 ADMIN_PASSWORD 环境变量读取
}

// Config 应用配置（最终使用的配置）
type Config struct {
	Env           Environment
	MongoURI      string
	MongoDatabase string
	APIPort       string
	JWTSecret     string
	TokenTTL      time.Duration
	SecureCookie  bool
	AdminEmail    string
	AdminPassword string
}

var configPaths = []string{
	"configs",
	"../configs",
	"../../configs",
	"../../../configs",
}

var envPaths = []string{
	".env",
	"../.env",
	"../../.env",
	"../../../.env",
}

// Load 加载配置
// 1. 加载 .env（敏感信息 + APP_ENV）
// 2. 根据 APP_ENV 加载 configs/{env}.yaml
// 3. 构建最终配置
func Load() *Config {
	// 加载 .env
	for _, p := range envPaths {
		if err := godotenv.Load(p); err == nil {
			break
		}
	}

	// 解析环境
	env := parseEnv(getEnv("APP_ENV", "dev"))

	// 加载 YAML 配置
	yamlCfg := loadYAMLConfig(env)

	// 构建最终配置
	cfg := &Config{
		Env:           env,
		MongoURI:      resolveMongoURI(yamlCfg.Mongo),
		MongoDatabase: getEnv("MONGO_DATABASE", yamlCfg.Mongo.Database),
		APIPort:       getEnv("API_PORT", yamlCfg.Server.Port),
		JWTSecret:     getEnv("JWT_SECRET", ""),
		TokenTTL:      parseTTL(yamlCfg.Auth.TokenTTL),
		SecureCookie:  yamlCfg.Auth.SecureCookie,
		AdminEmail:    getEnv("ADMIN_EMAIL", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
	}

	return cfg
}

// loadYAMLConfig 加载 YAML 配置文件
// 加载顺序：默认值 → common.yaml → {env}.yaml
func loadYAMLConfig(env Environment) *YAMLConfig {
	// 1. 初始化默认值
	cfg := &YAMLConfig{
		Server: ServerConfig{Port: "8080"},
		Mongo:  MongoConfig{Host: "localhost", Port: 27017, Database: "consult_portal"},
		Auth:   AuthConfig{TokenTTL: "720h", SecureCookie: false},
	}

	// 2. 加载 common.yaml（公共配置）
	for _, base := range configPaths {
		path := filepath.Join(base, "common.yaml")
		if data, err := os.ReadFile(path); err == nil {
			yaml.Unmarshal(data, cfg)
			break
		}
	}

	// 3. 加载 {env}.yaml（环境特定配置，覆盖公共配置）
	filename := fmt.Sprintf("%s.yaml", env)
	for _, base := range configPaths {
		path := filepath.Join(base, filename)
		if data, err := os.ReadFile(path); err == nil {
			yaml.Unmarshal(data, cfg)
			break
		}
	}

	return cfg
}

// resolveMongoURI 构建 MongoDB 连接字符串
// MONGO_URI 环境变量优先（可携带认证信息），否则由 host/port 拼装
func resolveMongoURI(mongo MongoConfig) string {
	if uri := os.Getenv("MONGO_URI"); uri != "" {
		return uri
	}
	return fmt.Sprintf("mongodb://%s:%d", mongo.Host, mongo.Port)
}

func parseTTL(s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return 30 * 24 * time.Hour
}

func parseEnv(env string) Environment {
	switch strings.ToLower(env) {
	case "test":
		return EnvTest
	case "prod", "production":
		return EnvProduction
	default:
		return EnvDevelopment
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// IsTest 是否为测试环境
func (c *Config) IsTest() bool {
	return c.Env == EnvTest
}

// String 打印配置摘要（不含敏感信息）
func (c *Config) String() string {
	return fmt.Sprintf("env=%s port=%s mongo_db=%s token_ttl=%s secure_cookie=%t",
		c.Env, c.APIPort, c.MongoDatabase, c.TokenTTL, c.SecureCookie)
}
