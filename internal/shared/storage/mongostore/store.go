// Package mongostore 实现基于 MongoDB 的 PersistentStore
//
// 使用 mongo-go-driver v2，通过 bson tag 实现 model 结构体的序列化/反序列化。
// 所有 Collection 名称和索引在 ensureIndexes 中统一管理。
package mongostore

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Collection 名称常量
const (
	ColUsers         = "users"
	ColConsultations = "consultations"
)

// Store 实现 storage.PersistentStore 接口的 MongoDB 驱动
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewStore 创建 MongoDB 存储实例
//
// uri: MongoDB 连接 URI，如 "mongodb://localhost:27017"
// dbName: 数据库名称，如 "consult_portal"
func NewStore(uri, dbName string) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect failed: %w", err)
	}

	// 验证连接
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongostore: ping failed: %w", err)
	}

	db := client.Database(dbName)
	s := &Store{client: client, db: db}

	// 创建索引
	if err := s.ensureIndexes(ctx); err != nil {
		log.Printf("WARNING: mongostore: ensure indexes failed: %v", err)
	}

	return s, nil
}

// Close 关闭 MongoDB 连接
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// col 获取指定 Collection
func (s *Store) col(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// ensureIndexes 创建所有必要的索引
func (s *Store) ensureIndexes(ctx context.Context) error {
	type idx struct {
		col    string
		keys   bson.D
		unique bool
	}

	indexes := []idx{
		// users：邮箱全局唯一（唯一索引兜底应用层的重复检查）
		{ColUsers, bson.D{{Key: "email", Value: 1}}, true},
		{ColUsers, bson.D{{Key: "role", Value: 1}}, false},

		// consultations
		{ColConsultations, bson.D{{Key: "patient", Value: 1}, {Key: "created_at", Value: -1}}, false},
		{ColConsultations, bson.D{{Key: "doctor", Value: 1}, {Key: "status", Value: 1}}, false},
		{ColConsultations, bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}, false},
	}

	for _, i := range indexes {
		m := mongo.IndexModel{Keys: i.keys}
		if i.unique {
			m.Options = options.Index().SetUnique(true)
		}
		if _, err := s.col(i.col).Indexes().CreateOne(ctx, m); err != nil {
			return fmt.Errorf("create index on %s: %w", i.col, err)
		}
	}

	return nil
}
