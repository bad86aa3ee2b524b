package core

import (
	"time"
)

// TriggerMode selects how a task's next run is computed.
type TriggerMode string

const (
	TriggerCron      TriggerMode = "cron"
	TriggerFixedTime TriggerMode = "fixed_time"
)

// Period is the recurrence of a fixed-time trigger.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// TaskStatus describes the outcome of the most recent run of a task.
type TaskStatus string

const (
	TaskStatusIdle    TaskStatus = "idle"
	TaskStatusRunning TaskStatus = "running"
	TaskStatusSuccess TaskStatus = "success"
	TaskStatusFailed  TaskStatus = "failed"
	TaskStatusPaused  TaskStatus = "paused"
)

// MatchMode selects how a file name pattern is compared.
type MatchMode string

const (
	MatchExact MatchMode = "exact"
	MatchFuzzy MatchMode = "fuzzy"
)

// TimeOption is a quick selection for the file creation time window.
type TimeOption string

const (
	TimeToday     TimeOption = "today"
	TimeYesterday TimeOption = "yesterday"
	TimeThisWeek  TimeOption = "this_week"
	TimeCustom    TimeOption = "custom"
)

// FixedTimeConfig describes a wall-clock trigger.
type FixedTimeConfig struct {
	Time     string `json:"time"`
	Period   Period `json:"period"`
	WeekDay  *int   `json:"weekDay,omitempty"`
	MonthDay *int   `json:"monthDay,omitempty"`
}

// Trigger is the part of a task that decides when it fires.
type Trigger struct {
	Mode      TriggerMode
	Cron      string
	FixedTime *FixedTimeConfig
}

// NameFilter matches candidate files by name.
type NameFilter struct {
	Mode    MatchMode `json:"mode"`
	Pattern string    `json:"pattern"`
}

// TimeFilter matches candidate files by creation time.
type TimeFilter struct {
	QuickOption TimeOption `json:"quickOption"`
	StartTime   *time.Time `json:"startTime,omitempty"`
	EndTime     *time.Time `json:"endTime,omitempty"`
}

// FileFilter combines the name and time predicates; both must pass.
type FileFilter struct {
	FileName NameFilter `json:"fileName"`
	Time     TimeFilter `json:"time"`
}

// SyncTarget identifies the remote table a file is synced into.
type SyncTarget struct {
	SpreadsheetToken string `json:"spreadsheetToken"`
	SheetID          string `json:"sheetId,omitempty"`
	SheetName        string `json:"sheetName,omitempty"`
	AppID            string `json:"appId,omitempty"`
	AppSecret        string `json:"appSecret,omitempty"`
}

// TaskSpec is the externally owned configuration of a scheduled sync task.
// The engine treats it as immutable for the duration of a run.
type TaskSpec struct {
	ID                    string           `json:"id"`
	Name                  string           `json:"name"`
	TemplateID            string           `json:"templateId"`
	TemplateName          string           `json:"templateName,omitempty"`
	Enabled               bool             `json:"enabled"`
	TriggerMode           TriggerMode      `json:"triggerMode"`
	CronExpression        string           `json:"cronExpression,omitempty"`
	FixedTimeConfig       *FixedTimeConfig `json:"fixedTimeConfig,omitempty"`
	Paths                 []string         `json:"paths"`
	FileFilter            FileFilter       `json:"fileFilter"`
	ValidateBeforeTrigger bool             `json:"validateBeforeTrigger"`
	MaxRetries            int              `json:"maxRetries"`
	SyncTarget            *SyncTarget      `json:"syncTarget,omitempty"`
	CreatedAt             time.Time        `json:"createdAt"`
	UpdatedAt             time.Time        `json:"updatedAt"`
	LastRunAt             *time.Time       `json:"lastRunAt,omitempty"`
	LastRunStatus         TaskStatus       `json:"lastRunStatus,omitempty"`
	LastRunMessage        string           `json:"lastRunMessage,omitempty"`
}

// Trigger extracts the scheduling part of the task.
func (t TaskSpec) Trigger() Trigger {
	return Trigger{Mode: t.TriggerMode, Cron: t.CronExpression, FixedTime: t.FixedTimeConfig}
}

// Clone returns a deep copy so callers cannot mutate engine state through shared slices or pointers.
func (t TaskSpec) Clone() TaskSpec {
	c := t
	if t.Paths != nil {
		c.Paths = append([]string(nil), t.Paths...)
	}
	if t.FixedTimeConfig != nil {
		ft := *t.FixedTimeConfig
		if ft.WeekDay != nil {
			v := *ft.WeekDay
			ft.WeekDay = &v
		}
		if ft.MonthDay != nil {
			v := *ft.MonthDay
			ft.MonthDay = &v
		}
		c.FixedTimeConfig = &ft
	}
	if t.SyncTarget != nil {
		st := *t.SyncTarget
		c.SyncTarget = &st
	}
	if t.LastRunAt != nil {
		v := *t.LastRunAt
		c.LastRunAt = &v
	}
	return c
}

// FileDescriptor is a file reported by a directory listing.
type FileDescriptor struct {
	Name          string    `json:"name"`
	Path          string    `json:"path"`
	Size          int64     `json:"size"`
	CreatedAt     time.Time `json:"createdAt"`
	ModifiedAt    time.Time `json:"modifiedAt"`
	Extension     string    `json:"extension"`
	IsSpreadsheet bool      `json:"isSpreadsheet"`
}

// ExecutionLogEntry records one run of one task.
type ExecutionLogEntry struct {
	ID             string     `json:"id"`
	TaskID         string     `json:"taskId"`
	StartTime      time.Time  `json:"startTime"`
	EndTime        *time.Time `json:"endTime,omitempty"`
	Status         TaskStatus `json:"status"`
	Message        string     `json:"message"`
	FilesProcessed int        `json:"filesProcessed"`
	RowsSynced     int        `json:"rowsSynced"`
	ErrorDetails   string     `json:"errorDetails,omitempty"`
}

// ExecutionResult is the structured outcome of a run. Runs never return errors;
// every exit path produces one of these.
type ExecutionResult struct {
	Success        bool      `json:"success"`
	FilesProcessed int       `json:"filesProcessed"`
	FilesFailed    int       `json:"filesFailed"`
	RowsSynced     int       `json:"rowsSynced"`
	Message        string    `json:"message"`
	Error          string    `json:"error,omitempty"`
	StartedAt      time.Time `json:"startedAt"`
	FinishedAt     time.Time `json:"finishedAt"`
}

// Status maps the result onto the task status enum.
func (r ExecutionResult) Status() TaskStatus {
	if r.Success {
		return TaskStatusSuccess
	}
	return TaskStatusFailed
}

// SyncResult is what the sync collaborator reports for one file.
type SyncResult struct {
	RowsSynced int
}
