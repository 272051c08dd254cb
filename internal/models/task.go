package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TaskStatus string

const (
	TaskBacklog    TaskStatus = "Backlog"
	TaskToDo       TaskStatus = "To Do"
	TaskInProgress TaskStatus = "In Progress"
	TaskDone       TaskStatus = "Done"
	TaskCancelled  TaskStatus = "Cancelled"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskBacklog, TaskToDo, TaskInProgress, TaskDone, TaskCancelled:
		return true
	}
	return false
}

type Task struct {
	ID             uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey"`
	ProjectID      uuid.UUID        `json:"projectId" gorm:"type:uuid;index:idx_tasks_project_phase;not null"`
	PhaseID        uuid.UUID        `json:"phaseId" gorm:"type:uuid;index:idx_tasks_project_phase;not null"`
	Phase          *Phase           `json:"phase,omitempty" gorm:"foreignKey:PhaseID"`
	AssigneeID     *uuid.UUID       `json:"assigneeId" gorm:"type:uuid;index"`
	Assignee       *User            `json:"assignee,omitempty" gorm:"foreignKey:AssigneeID"`
	Name           string           `json:"name" gorm:"not null"`
	Description    string           `json:"description"`
	Weight         float64          `json:"weight" gorm:"not null;default:0"`
	Status         TaskStatus       `json:"status" gorm:"not null;default:'To Do'"`
	StartDate      time.Time        `json:"startDate"`
	DueDate        time.Time        `json:"dueDate"`
	CompletionDate *time.Time       `json:"completionDate"`
	Remarks        []TaskRemark     `json:"remarks" gorm:"foreignKey:TaskID"`
	Attachments    []TaskAttachment `json:"attachments" gorm:"foreignKey:TaskID"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// LastRemark returns the text of the most recent remark, or "" when there is none.
func (t *Task) LastRemark() string {
	if len(t.Remarks) == 0 {
		return ""
	}
	latest := t.Remarks[0]
	for _, r := range t.Remarks[1:] {
		if !r.CreatedAt.Before(latest.CreatedAt) {
			latest = r
		}
	}
	return latest.Text
}

type TaskRemark struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	TaskID    uuid.UUID `json:"taskId" gorm:"type:uuid;index;not null"`
	Text      string    `json:"text" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"createdAt"`
}

func (r *TaskRemark) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

type TaskAttachment struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	TaskID    uuid.UUID `json:"taskId" gorm:"type:uuid;index;not null"`
	Name      string    `json:"name" gorm:"not null"`
	URL       string    `json:"url" gorm:"not null"`
	CreatedAt time.Time `json:"createdAt"`
}

func (a *TaskAttachment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// Task DTOs
type AttachmentInput struct {
	ID   *uuid.UUID `json:"id"`
	Name string     `json:"name"`
	URL  string     `json:"url"`
}

type TaskRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Phase       uuid.UUID         `json:"phase"`
	Assignee    *uuid.UUID        `json:"assignee"`
	Weight      float64           `json:"weight"`
	Status      TaskStatus        `json:"status"`
	StartDate   time.Time         `json:"startDate"`
	DueDate     time.Time         `json:"dueDate"`
	Remark      string            `json:"remark"`
	Attachments []AttachmentInput `json:"attachments"`
}
