package mongostore

import (
	"context"
	"errors"

	"consult-portal/internal/shared/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// wrapError 将 MongoDB 错误转换为领域错误
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return storage.ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return storage.ErrDuplicate
	}
	return err
}

// findOne 查找单个文档并解码到 result
// 文档不存在时返回 (nil, nil)，调用方通过 nil 判断缺失
func findOne[T any](ctx context.Context, col *mongo.Collection, filter bson.D) (*T, error) {
	var result T
	err := col.FindOne(ctx, filter).Decode(&result)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, wrapError(err)
	}
	return &result, nil
}

// findMany 查找多个文档，结果为空时返回空切片而非 nil
func findMany[T any](ctx context.Context, col *mongo.Collection, filter bson.D, opts ...options.Lister[options.FindOptions]) ([]*T, error) {
	cursor, err := col.Find(ctx, filter, opts...)
	if err != nil {
		return nil, wrapError(err)
	}
	defer cursor.Close(ctx)

	var results []*T
	for cursor.Next(ctx) {
		var item T
		if err := cursor.Decode(&item); err != nil {
			return nil, err
		}
		results = append(results, &item)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	if results == nil {
		results = []*T{}
	}
	return results, nil
}

// insertOne 插入单个文档
func insertOne(ctx context.Context, col *mongo.Collection, doc interface{}) error {
	_, err := col.InsertOne(ctx, doc)
	return wrapError(err)
}

// deleteByID 按 _id 删除
func deleteByID(ctx context.Context, col *mongo.Collection, id string) error {
	res, err := col.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return wrapError(err)
	}
	if res.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// updateFields 按 _id 更新指定字段
func updateFields(ctx context.Context, col *mongo.Collection, id string, update bson.D) error {
	res, err := col.UpdateOne(ctx, bson.D{{Key: "_id", Value: id}}, bson.D{{Key: "$set", Value: update}})
	if err != nil {
		return wrapError(err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// updateOneIf 条件单文档更新：filter 同时携带 _id 和前置条件，
// 原子地校验前置状态并写入，返回更新后的文档。
//
// 未命中时区分两种失败：文档不存在 → ErrNotFound；
// 文档存在但前置条件失效（竞争落败）→ ErrConflict。
func updateOneIf[T any](ctx context.Context, col *mongo.Collection, id string, filter bson.D, update bson.D) (*T, error) {
	fullFilter := append(bson.D{{Key: "_id", Value: id}}, filter...)
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var result T
	err := col.FindOneAndUpdate(ctx, fullFilter, bson.D{{Key: "$set", Value: update}}, opts).Decode(&result)
	if err == nil {
		return &result, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, wrapError(err)
	}

	// 未命中：查明文档是否存在以区分 NotFound 与前置条件冲突
	n, err := col.CountDocuments(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return nil, wrapError(err)
	}
	if n == 0 {
		return nil, storage.ErrNotFound
	}
	return nil, storage.ErrConflict
}
