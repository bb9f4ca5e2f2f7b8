package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// TaskInput is a task as submitted by a client.
type TaskInput struct {
	URL         string `json:"url"`
	Description string `json:"description"`
}

type EnrichedTask struct {
	URL         string `json:"url"`
	Description string `json:"description"`
	TaskID      string `json:"task_id"`
	TaskName    string `json:"task_name"`
}

// TaskList is stored as a JSONB array. A nil list is written as an empty
// array; a nil *TaskList is written as NULL.
type TaskList []EnrichedTask

func (l TaskList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *TaskList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = TaskList{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into TaskList", src)
	}

	var tasks TaskList
	if err := json.Unmarshal(raw, &tasks); err != nil {
		return err
	}
	if tasks == nil {
		tasks = TaskList{}
	}
	*l = tasks
	return nil
}

type Report struct {
	ID         string     `db:"id" json:"id"`
	UserID     string     `db:"user_id" json:"userId"`
	ReportDate time.Time  `db:"report_date" json:"reportDate"`
	Developer  string     `db:"developer" json:"developer"`
	Yesterday  TaskList   `db:"yesterday" json:"yesterday"`
	Today      TaskList   `db:"today" json:"today"`
	Blockers   TaskList   `db:"blockers" json:"blockers"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt  *time.Time `db:"updated_at" json:"updatedAt,omitempty"`
	IsDeleted  bool       `db:"is_deleted" json:"isDeleted"`
	DeletedAt  *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`
}

type CreateReportParams struct {
	UserID     string
	ReportDate time.Time
	Developer  string
	Yesterday  TaskList
	Today      TaskList
	Blockers   TaskList
}

// UpdateReportParams carries a partial update. Nil fields are left as they are.
type UpdateReportParams struct {
	ReportDate *time.Time
	Developer  *string
	Yesterday  *TaskList
	Today      *TaskList
	Blockers   *TaskList
}

func (p UpdateReportParams) IsEmpty() bool {
	return p.ReportDate == nil && p.Developer == nil &&
		p.Yesterday == nil && p.Today == nil && p.Blockers == nil
}

type ReportFilter struct {
	OwnerID *string
	Date    *time.Time
	Limit   int
	Offset  int
}
