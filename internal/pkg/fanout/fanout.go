package fanout

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Result 单个任务的结果，位置与输入一致
type Result[T any] struct {
	Value T
	Err   error
}

// Map 并发执行 fn，结果按提交顺序返回
// 单个任务的错误或 panic 只记录在对应位置，不会取消其他任务
// limit <= 0 表示不限并发
func Map[I, O any](ctx context.Context, items []I, limit int, fn func(ctx context.Context, i int, item I) (O, error)) []Result[O] {
	results := make([]Result[O], len(items))
	if len(items) == 0 {
		return results
	}

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, item := range items {
		g.Go(func() error {
			results[i] = run(ctx, i, item, fn)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func run[I, O any](ctx context.Context, i int, item I, fn func(ctx context.Context, i int, item I) (O, error)) (res Result[O]) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Int("index", i).Interface("panic", r).Str("stack", string(debug.Stack())).Msg("并发任务 panic")
			res = Result[O]{Err: fmt.Errorf("unit %d panicked: %v", i, r)}
		}
	}()
	if err := ctx.Err(); err != nil {
		return Result[O]{Err: err}
	}
	v, err := fn(ctx, i, item)
	return Result[O]{Value: v, Err: err}
}

// Values 取出所有结果值（失败位置为零值）
func Values[T any](results []Result[T]) []T {
	out := make([]T, len(results))
	for i, r := range results {
		out[i] = r.Value
	}
	return out
}

// FirstError 返回第一个失败位置的错误
func FirstError[T any](results []Result[T]) error {
	for i, r := range results {
		if r.Err != nil {
			return fmt.Errorf("unit %d: %w", i, r.Err)
		}
	}
	return nil
}
