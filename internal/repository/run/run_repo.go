package run

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storyreel/internal/model/run"
)

// ErrNotFound 运行记录不存在
var ErrNotFound = errors.New("run not found")

// RunRepository 运行记录仓库接口
type RunRepository interface {
	Create(ctx context.Context, r *run.Run) error
	FindByID(ctx context.Context, id string) (*run.Run, error)
	List(ctx context.Context, page, pageSize int64, status string) ([]*run.Run, int64, error)
	Update(ctx context.Context, r *run.Run) error
}

func normalizePage(page, pageSize int64) (int64, int64) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 20
	}
	return page, pageSize
}

// Repo MongoDB 实现
type Repo struct {
	coll *mongo.Collection
}

// NewRepo 创建运行记录仓库
func NewRepo(db *mongo.Database) *Repo {
	var r run.Run
	return &Repo{coll: db.Collection(r.Collection())}
}

// Create 创建运行记录
func (r *Repo) Create(ctx context.Context, rec *run.Run) error {
	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	_, err := r.coll.InsertOne(ctx, rec)
	return err
}

// FindByID 根据ID查询
func (r *Repo) FindByID(ctx context.Context, id string) (*run.Run, error) {
	var rec run.Run
	if err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// List 按创建时间倒序分页查询，可按状态筛选
func (r *Repo) List(ctx context.Context, page, pageSize int64, status string) ([]*run.Run, int64, error) {
	page, pageSize = normalizePage(page, pageSize)

	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip((page - 1) * pageSize).
		SetLimit(pageSize)

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)

	var list []*run.Run
	if err := cur.All(ctx, &list); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// Update 更新运行记录
func (r *Repo) Update(ctx context.Context, rec *run.Run) error {
	rec.UpdatedAt = time.Now()
	res, err := r.coll.UpdateOne(ctx, bson.M{"id": rec.ID}, bson.M{"$set": rec})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// MemoryRepo 未配置 MongoDB 时使用的进程内实现
type MemoryRepo struct {
	mu   sync.RWMutex
	runs map[string]*run.Run
}

// NewMemoryRepo 创建内存仓库
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{runs: make(map[string]*run.Run)}
}

func clone(r *run.Run) *run.Run {
	c := *r
	c.Keywords = append([]string(nil), r.Keywords...)
	if r.Assets != nil {
		c.Assets = make(map[string]string, len(r.Assets))
		for k, v := range r.Assets {
			c.Assets[k] = v
		}
	}
	return &c
}

// Create 创建运行记录
func (m *MemoryRepo) Create(ctx context.Context, rec *run.Run) error {
	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[rec.ID]; ok {
		return errors.New("duplicate run id")
	}
	m.runs[rec.ID] = clone(rec)
	return nil
}

// FindByID 根据ID查询
func (m *MemoryRepo) FindByID(ctx context.Context, id string) (*run.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(rec), nil
}

// List 按创建时间倒序分页查询
func (m *MemoryRepo) List(ctx context.Context, page, pageSize int64, status string) ([]*run.Run, int64, error) {
	page, pageSize = normalizePage(page, pageSize)

	m.mu.RLock()
	var all []*run.Run
	for _, rec := range m.runs {
		if status == "" || string(rec.Status) == status {
			all = append(all, clone(rec))
		}
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := int64(len(all))
	start := (page - 1) * pageSize
	if start >= total {
		return []*run.Run{}, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

// Update 更新运行记录
func (m *MemoryRepo) Update(ctx context.Context, rec *run.Run) error {
	rec.UpdatedAt = time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[rec.ID]; !ok {
		return ErrNotFound
	}
	m.runs[rec.ID] = clone(rec)
	return nil
}
