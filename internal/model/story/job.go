package story

import "strings"

// JobKind 外部生成任务类型
type JobKind string

const (
	JobKindImage  JobKind = "image"
	JobKindMotion JobKind = "motion"
)

// JobStatus 外部生成任务状态
// COMPLETE/FAILED/DELETED 为终态，进入后不再变化
type JobStatus string

const (
	JobStatusPending  JobStatus = "PENDING"
	JobStatusComplete JobStatus = "COMPLETE"
	JobStatusFailed   JobStatus = "FAILED"
	JobStatusDeleted  JobStatus = "DELETED"
)

// ParseJobStatus 归一化远端返回的状态字符串，未知状态视为 PENDING
func ParseJobStatus(s string) JobStatus {
	switch JobStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case JobStatusComplete:
		return JobStatusComplete
	case JobStatusFailed:
		return JobStatusFailed
	case JobStatusDeleted:
		return JobStatusDeleted
	default:
		return JobStatusPending
	}
}

// IsTerminal 是否终态
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusComplete, JobStatusFailed, JobStatusDeleted:
		return true
	default:
		return false
	}
}

// String 返回状态的字符串表示
func (s JobStatus) String() string {
	return string(s)
}

// GenerationJob 已提交的外部任务
type GenerationJob struct {
	ID     string    `json:"id"`
	Kind   JobKind   `json:"kind"`
	Status JobStatus `json:"status"`
}
