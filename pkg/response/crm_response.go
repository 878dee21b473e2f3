// Package response builds the JSON envelope every API route answers with.
package response

import (
	"net/http"
	"reflect"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Response is the standard API response structure.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

// ErrorInfo contains error details.
type ErrorInfo struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Meta contains pagination metadata.
type Meta struct {
	Total   int  `json:"total"`
	Offset  int  `json:"offset"`
	Limit   int  `json:"limit"`
	HasMore bool `json:"has_more"`
}

// OK returns a successful response.
func OK(c *fiber.Ctx, data any) error {
	return c.JSON(Response{Success: true, Data: data})
}

// OKWithMeta returns a successful response with metadata.
func OKWithMeta(c *fiber.Ctx, data any, meta *Meta) error {
	return c.JSON(Response{Success: true, Data: data, Meta: meta})
}

// Accepted returns a 202 response for work queued to the worker.
func Accepted(c *fiber.Ctx, data any) error {
	return c.Status(http.StatusAccepted).JSON(Response{Success: true, Data: data})
}

// Error returns an error response.
func Error(c *fiber.Ctx, status int, code, message string) error {
	return ErrorWithDetails(c, status, code, message, nil)
}

// ErrorWithDetails returns an error response carrying structured details.
func ErrorWithDetails(c *fiber.Ctx, status int, code, message string, details map[string]any) error {
	return c.Status(status).JSON(Response{
		Success: false,
		Error:   &ErrorInfo{Code: code, Message: message, Details: details},
	})
}

// BadRequest returns a 400 bad request response.
func BadRequest(c *fiber.Ctx, message string) error {
	return Error(c, http.StatusBadRequest, "BAD_REQUEST", message)
}

// SelectFields filters struct fields by the comma separated "fields" query.
// Usage: GET /api/v1/employees?fields=id,name,allocated_department
func SelectFields(c *fiber.Ctx, data any) any {
	param := c.Query("fields")
	if param == "" {
		return data
	}

	fields := make(map[string]bool)
	for _, f := range strings.Split(param, ",") {
		if f = strings.TrimSpace(strings.ToLower(f)); f != "" {
			fields[f] = true
		}
	}
	return filterFields(data, fields)
}

func filterFields(data any, fields map[string]bool) any {
	if data == nil {
		return nil
	}

	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Slice:
		result := make([]map[string]any, v.Len())
		for i := 0; i < v.Len(); i++ {
			result[i] = filterStructFields(v.Index(i), fields)
		}
		return result
	case reflect.Struct:
		return filterStructFields(v, fields)
	default:
		return data
	}
}

func filterStructFields(v reflect.Value, fields map[string]bool) map[string]any {
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	t := v.Type()
	result := make(map[string]any)
	for i := 0; i < v.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		if tag == "" || tag == "-" {
			continue
		}
		name := strings.Split(tag, ",")[0]
		if fields[strings.ToLower(name)] {
			result[name] = v.Field(i).Interface()
		}
	}
	return result
}

// Pagination holds offset/limit query parameters.
type Pagination struct {
	Offset int
	Limit  int
}

// GetPagination reads offset and limit, clamping limit to maxLimit.
func GetPagination(c *fiber.Ctx, defaultLimit, maxLimit int) Pagination {
	limit := c.QueryInt("limit", defaultLimit)
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}
	return Pagination{Offset: offset, Limit: limit}
}
