package domain

import (
	"strconv"
	"time"
)

// Field names recorded in change records.
const (
	FieldName           = "name"
	FieldDescription    = "description"
	FieldDueDate        = "dueDate"
	FieldCompletionDate = "completionDate"
	FieldPriority       = "priority"
	FieldStatus         = "status"
	FieldAssignee       = "assignee"
)

// NullValue is the text recorded for an absent optional value. It is distinct from the empty string.
const NullValue = "null"

// DateLayout is the text form of calendar dates in change records.
const DateLayout = "2006-01-02"

// ChangeRecord is one immutable field-level change to a task.
type ChangeRecord struct {
	ID        int64
	TaskID    int64
	ChangedBy int64
	FieldName string
	OldValue  string
	NewValue  string
	ChangedAt time.Time
}

// FieldChange is a pending change computed before it is recorded.
type FieldChange struct {
	Field string
	Old   string
	New   string
}

// FormatDate renders a calendar date.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// FormatOptionalID renders a user id, or NullValue when id is nil.
func FormatOptionalID(id *int64) string {
	if id == nil {
		return NullValue
	}
	return strconv.FormatInt(*id, 10)
}

// FormatOptionalDate renders a calendar date, or NullValue when t is nil.
func FormatOptionalDate(t *time.Time) string {
	if t == nil {
		return NullValue
	}
	return FormatDate(*t)
}
