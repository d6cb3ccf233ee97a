package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"storyreel/internal/model/story"
)

const (
	DefaultInterval = 5 * time.Second
	DefaultMaxWait  = 300 * time.Second
)

var (
	// ErrTimeout 超过最大等待时间仍未进入终态
	ErrTimeout = errors.New("poll timed out")
	// ErrJobFailed 任务以 FAILED/DELETED 结束
	ErrJobFailed = errors.New("generation job failed")
)

// Kind 轮询结论
type Kind int

const (
	Complete Kind = iota + 1
	Failed
	TimedOut
)

// String 返回结论的字符串表示
func (k Kind) String() string {
	switch k {
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Snapshot 一次状态查询的结果
type Snapshot[T any] struct {
	Status  story.JobStatus
	Payload T
}

// FetchFunc 查询任务状态，返回错误视为立即失败
type FetchFunc[T any] func(ctx context.Context, jobID string) (Snapshot[T], error)

// Outcome 轮询结果，Kind 只有 Complete/Failed/TimedOut 三种
type Outcome[T any] struct {
	Kind    Kind
	JobID   string
	Status  story.JobStatus // 最后一次观察到的状态
	Payload T               // 仅 Complete 时有意义
	Polls   int
}

// Err 把非成功结论转换为错误
func (o Outcome[T]) Err() error {
	switch o.Kind {
	case Complete:
		return nil
	case TimedOut:
		return fmt.Errorf("job %s: %w", o.JobID, ErrTimeout)
	default:
		return fmt.Errorf("job %s ended with %s: %w", o.JobID, o.Status, ErrJobFailed)
	}
}

// Options 轮询参数
type Options struct {
	Interval time.Duration
	MaxWait  time.Duration
	// Sleep/Now 便于测试注入，nil 时使用真实时钟
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.MaxWait <= 0 {
		o.MaxWait = DefaultMaxWait
	}
	if o.Sleep == nil {
		o.Sleep = sleepContext
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Poll 反复查询直到任务进入终态或超时
// fetch 返回的错误（网络错误、非 2xx 等）直接返回，不再重试
func Poll[T any](ctx context.Context, jobID string, fetch FetchFunc[T], opts Options) (Outcome[T], error) {
	opts = opts.withDefaults()
	out := Outcome[T]{JobID: jobID}
	start := opts.Now()
	var last story.JobStatus

	for {
		snap, err := fetch(ctx, jobID)
		out.Polls++
		if err != nil {
			out.Kind = Failed
			return out, fmt.Errorf("fetch status of job %s: %w", jobID, err)
		}

		out.Status = snap.Status
		if snap.Status != last {
			log.Trace().Str("job_id", jobID).Str("from", last.String()).Str("to", snap.Status.String()).Msg("任务状态变化")
			last = snap.Status
		}

		if snap.Status.IsTerminal() {
			if snap.Status == story.JobStatusComplete {
				out.Kind = Complete
				out.Payload = snap.Payload
			} else {
				out.Kind = Failed
			}
			return out, nil
		}

		if opts.Now().Sub(start) >= opts.MaxWait {
			log.Warn().Str("job_id", jobID).Dur("max_wait", opts.MaxWait).Int("polls", out.Polls).Msg("等待任务超时")
			out.Kind = TimedOut
			return out, nil
		}

		if err := opts.Sleep(ctx, opts.Interval); err != nil {
			out.Kind = Failed
			return out, err
		}
	}
}
