// Package intake validates message and employee records at the input
// boundary. Malformed records are rejected one by one; the rest of the
// batch continues.
package intake

import (
	"bytes"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"crm_server/core/domain"
	"crm_server/pkg/apperr"
	"crm_server/pkg/validator"

	playground "github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// ID accepts either a JSON string or a JSON number.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or a number")
	}
	*id = ID(n.String())
	return nil
}

// MessageRecord is the input shape of a message.
type MessageRecord struct {
	ID        ID     `json:"id"`
	Email     string `json:"email" validate:"required"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Timestamp string `json:"timestamp" validate:"required,timestamp"`
	Role      string `json:"role" validate:"required,oneof=customer internal"`
	Sentiment string `json:"sentiment" validate:"omitempty,oneof=Positive Neutral Negative"`
}

// EmployeeRecord is the input shape of an employee.
type EmployeeRecord struct {
	ID                   ID       `json:"id" validate:"required"`
	Name                 string   `json:"name" validate:"required"`
	Email                string   `json:"email" validate:"omitempty,email"`
	Role                 string   `json:"role"`
	RoleTitle            string   `json:"role_title"`
	Skills               []string `json:"skills"`
	ExperienceYears      float64  `json:"experience_years" validate:"gte=0"`
	PerformanceScore     *float64 `json:"performance_score" validate:"omitempty,gte=0,lte=100"`
	AllocatedDepartment  *string  `json:"allocated_department" validate:"omitempty,department"`
	AllocationConfidence *int     `json:"allocation_confidence" validate:"omitempty,gte=0,lte=100"`
	Available            *bool    `json:"available"`
}

// TaskRecord is the input shape of a task.
type TaskRecord struct {
	ID           ID     `json:"id" validate:"required"`
	Title        string `json:"title" validate:"required"`
	Description  string `json:"description"`
	ClientEmail  string `json:"client_email"`
	Status       string `json:"status" validate:"omitempty,oneof=open assigned done"`
	AssignedTo   ID     `json:"assigned_to"`
	AssignedName string `json:"assigned_name"`
}

// MessageBatch holds the accepted messages in input order plus one error per
// rejected record.
type MessageBatch struct {
	Messages []domain.RawMessage
	Rejected []*apperr.AppError
}

// EmployeeBatch holds the accepted employees in input order plus one error
// per rejected record.
type EmployeeBatch struct {
	Employees []domain.Employee
	Rejected  []*apperr.AppError
}

// TaskBatch holds the accepted tasks in input order plus one error per
// rejected record.
type TaskBatch struct {
	Tasks    []domain.Task
	Rejected []*apperr.AppError
}

// Validator checks decoded records.
type Validator struct {
	v *validator.Validator
}

// customRules are the tags the record structs use beyond the built-in set.
var customRules = map[string]playground.Func{
	"timestamp": func(fl playground.FieldLevel) bool {
		_, err := ParseTimestamp(fl.Field().String())
		return err == nil
	},
	"department": func(fl playground.FieldLevel) bool {
		return domain.IsKnownDepartment(domain.Department(fl.Field().String()))
	},
}

// NewValidator registers the custom timestamp and department rules.
func NewValidator() (*Validator, error) {
	v := validator.New()
	if err := registerRules(v, customRules); err != nil {
		return nil, err
	}
	return &Validator{v: v}, nil
}

// MustNewValidator is NewValidator for package init and wiring code.
func MustNewValidator() *Validator {
	v, err := NewValidator()
	if err != nil {
		panic(err)
	}
	return v
}

func registerRules(v *validator.Validator, rules map[string]playground.Func) error {
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("register %q rule: %w", tag, err)
		}
	}
	return nil
}

var defaultValidator = MustNewValidator()

// DecodeMessages parses a JSON array of message records.
func DecodeMessages(data []byte) (MessageBatch, error) {
	return defaultValidator.DecodeMessages(data)
}

// DecodeEmployees parses a JSON array of employee records.
func DecodeEmployees(data []byte) (EmployeeBatch, error) {
	return defaultValidator.DecodeEmployees(data)
}

// DecodeTasks parses a JSON array of task records.
func DecodeTasks(data []byte) (TaskBatch, error) {
	return defaultValidator.DecodeTasks(data)
}

// DecodeMessages parses a JSON array of message records. Only a payload that
// is not a JSON array fails as a whole.
func (v *Validator) DecodeMessages(data []byte) (MessageBatch, error) {
	raw, err := splitArray(data)
	if err != nil {
		return MessageBatch{}, err
	}

	batch := MessageBatch{Messages: make([]domain.RawMessage, 0, len(raw))}
	for i, item := range raw {
		var rec MessageRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			batch.Rejected = append(batch.Rejected, apperr.InvalidRecord(i, "record", err.Error()))
			continue
		}
		msg, appErr := v.Message(i, rec)
		if appErr != nil {
			batch.Rejected = append(batch.Rejected, appErr)
			continue
		}
		batch.Messages = append(batch.Messages, msg)
	}
	return batch, nil
}

// DecodeEmployees parses a JSON array of employee records. Only a payload
// that is not a JSON array fails as a whole.
func (v *Validator) DecodeEmployees(data []byte) (EmployeeBatch, error) {
	raw, err := splitArray(data)
	if err != nil {
		return EmployeeBatch{}, err
	}

	batch := EmployeeBatch{Employees: make([]domain.Employee, 0, len(raw))}
	for i, item := range raw {
		var rec EmployeeRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			batch.Rejected = append(batch.Rejected, apperr.InvalidRecord(i, "record", err.Error()))
			continue
		}
		emp, appErr := v.Employee(i, rec)
		if appErr != nil {
			batch.Rejected = append(batch.Rejected, appErr)
			continue
		}
		batch.Employees = append(batch.Employees, emp)
	}
	return batch, nil
}

// DecodeTasks parses a JSON array of task records. Only a payload that is
// not a JSON array fails as a whole.
func (v *Validator) DecodeTasks(data []byte) (TaskBatch, error) {
	raw, err := splitArray(data)
	if err != nil {
		return TaskBatch{}, err
	}

	batch := TaskBatch{Tasks: make([]domain.Task, 0, len(raw))}
	for i, item := range raw {
		var rec TaskRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			batch.Rejected = append(batch.Rejected, apperr.InvalidRecord(i, "record", err.Error()))
			continue
		}
		task, appErr := v.Task(i, rec)
		if appErr != nil {
			batch.Rejected = append(batch.Rejected, appErr)
			continue
		}
		batch.Tasks = append(batch.Tasks, task)
	}
	return batch, nil
}

// Message validates rec and converts it. index is reported on rejection.
func (v *Validator) Message(index int, rec MessageRecord) (domain.RawMessage, *apperr.AppError) {
	rec.Email = strings.TrimSpace(rec.Email)
	rec.Role = strings.ToLower(strings.TrimSpace(rec.Role))
	if err := v.v.Struct(rec); err != nil {
		return domain.RawMessage{}, rejection(index, err)
	}
	ts, _ := ParseTimestamp(rec.Timestamp)
	return domain.RawMessage{
		ExternalID: string(rec.ID),
		Sender:     rec.Email,
		Subject:    rec.Subject,
		Body:       rec.Body,
		Timestamp:  ts,
		Role:       domain.Role(rec.Role),
		Sentiment:  rec.Sentiment,
	}, nil
}

// Employee validates rec and converts it. index is reported on rejection.
func (v *Validator) Employee(index int, rec EmployeeRecord) (domain.Employee, *apperr.AppError) {
	rec.Name = strings.TrimSpace(rec.Name)
	if err := v.v.Struct(rec); err != nil {
		return domain.Employee{}, rejection(index, err)
	}
	emp := domain.Employee{
		ID:                   string(rec.ID),
		Name:                 rec.Name,
		Email:                rec.Email,
		RoleTitle:            rec.RoleTitle,
		Skills:               rec.Skills,
		ExperienceYears:      rec.ExperienceYears,
		PerformanceScore:     rec.PerformanceScore,
		AllocationConfidence: rec.AllocationConfidence,
		Available:            rec.Available,
	}
	if emp.RoleTitle == "" {
		emp.RoleTitle = rec.Role
	}
	if emp.Skills == nil {
		emp.Skills = []string{}
	}
	if rec.AllocatedDepartment != nil {
		emp.AllocatedDepartment = domain.Department(*rec.AllocatedDepartment)
	}
	return emp, nil
}

// Task validates rec and converts it. A task with an assignee is assigned
// unless the record says otherwise; one without is open.
func (v *Validator) Task(index int, rec TaskRecord) (domain.Task, *apperr.AppError) {
	rec.Title = strings.TrimSpace(rec.Title)
	rec.Status = strings.ToLower(strings.TrimSpace(rec.Status))
	if err := v.v.Struct(rec); err != nil {
		return domain.Task{}, rejection(index, err)
	}
	task := domain.Task{
		ID:           string(rec.ID),
		Title:        rec.Title,
		Description:  rec.Description,
		ClientEmail:  strings.TrimSpace(rec.ClientEmail),
		Status:       domain.TaskStatus(rec.Status),
		AssignedTo:   string(rec.AssignedTo),
		AssignedName: rec.AssignedName,
	}
	if task.Status == "" {
		task.Status = domain.TaskStatusOpen
		if task.IsAssigned() {
			task.Status = domain.TaskStatusAssigned
		}
	}
	return task, nil
}

func rejection(index int, err error) *apperr.AppError {
	if fe, ok := validator.FirstError(err); ok {
		return apperr.InvalidRecord(index, fe.Field, reasonFor(fe))
	}
	return apperr.InvalidRecord(index, "record", err.Error())
}

func reasonFor(fe validator.FieldError) string {
	switch fe.Reason {
	case "failed 'timestamp' validation":
		return "must be an RFC 3339 or RFC 5322 date"
	case "failed 'department' validation":
		return "unknown department"
	}
	return fe.Reason
}

func splitArray(data []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, apperr.BadRequest("payload must be a JSON array").WithError(err)
	}
	return raw, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp accepts RFC 3339, the same without a zone (read as UTC),
// a plain date, a mail Date header, or Unix seconds.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if t, err := mail.ParseDate(s); err == nil {
		return t.UTC(), nil
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
