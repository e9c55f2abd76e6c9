// Package storage 定义存储层抽象接口与领域错误
//
// 领域错误用于隔离业务层与底层存储引擎的错误类型，
// 驱动实现（mongostore）负责将底层错误转换为这些领域错误。
package storage

import "errors"

var (
	// ErrNotFound 实体不存在
	// 替代 mongo.ErrNoDocuments
	ErrNotFound = errors.New("entity not found")

	// ErrConflict 条件更新前置条件失效（状态机竞争中落败的一方收到此错误）
	ErrConflict = errors.New("conflict: precondition failed")

	// ErrDuplicate 唯一键冲突（如邮箱已注册）
	ErrDuplicate = errors.New("duplicate: entity already exists")
)
