// Package main API Server 入口
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"consult-portal/internal/apiserver/auth"
	"consult-portal/internal/apiserver/server"
	"consult-portal/internal/config"
	"consult-portal/internal/shared/storage/mongostore"
)

func main() {
	// 加载配置（自动加载 .env，根据 APP_ENV 切换 YAML）
	cfg := config.Load()

	log.Printf("Starting API Server... [env=%s]", cfg.Env)
	log.Printf("Config: %s", cfg.String())

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	// 初始化 MongoDB（持久化业务数据）
	store, err := mongostore.NewStore(cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer store.Close()
	log.Println("Connected to MongoDB")

	authCfg := auth.Config{
		JWTSecret: cfg.JWTSecret,
		TokenTTL:  cfg.TokenTTL,
		SecureTLS: cfg.SecureCookie,
	}

	// 初始管理员账号（不存在则创建）
	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		if err := auth.EnsureAdminUser(store, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			log.Fatalf("Failed to ensure admin user: %v", err)
		}
	} else {
		log.Println("ADMIN_EMAIL/ADMIN_PASSWORD not set, skipping admin bootstrap")
	}

	h := server.NewHandler(store, authCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      h.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 优雅关闭
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("API Server listening on :%s", cfg.APIPort)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	fmt.Println("Server stopped")
}
