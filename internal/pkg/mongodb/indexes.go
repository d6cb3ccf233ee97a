package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"storyreel/internal/model/run"
)

// EnsureIndexes 启动时为所有模型创建索引
func EnsureIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return EnsureAllIndexes(ctx, db, &run.Run{})
}
