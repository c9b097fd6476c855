package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hospital/inpatient/internal/platform/auth"
)

const apiPrefix = "/api/v1/"

// AuditEntry records who changed or read which ward resource.
type AuditEntry struct {
	Timestamp  time.Time
	RequestID  string
	UserID     string
	UserRoles  []string
	Action     string
	Resource   string
	SubjectID  string
	Operation  string
	PatientID  string
	Method     string
	Path       string
	IPAddress  string
	StatusCode int
}

type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit logs every /api/v1 request after it completes. Reads log at debug,
// writes at info. Recorders receive every entry.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !strings.HasPrefix(req.URL.Path, apiPrefix) {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok && !c.Response().Committed {
				status = he.Code
			}
			resource, subject, op := splitAPIPath(req.URL.Path)
			entry := AuditEntry{
				Timestamp:  time.Now().UTC(),
				UserID:     auth.UserIDFromContext(req.Context()),
				UserRoles:  auth.RolesFromContext(req.Context()),
				Action:     httpMethodToAction(req.Method),
				Resource:   resource,
				SubjectID:  subject,
				Operation:  op,
				PatientID:  c.QueryParam("patient_id"),
				Method:     req.Method,
				Path:       req.URL.Path,
				IPAddress:  c.RealIP(),
				StatusCode: status,
			}
			entry.RequestID, _ = c.Get("request_id").(string)

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).Str("request_id", entry.RequestID).Msg("failed to record audit entry")
				}
			}

			evt := logger.Info()
			if entry.Action == "read" {
				evt = logger.Debug()
			}
			evt.
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("action", entry.Action).
				Str("resource", entry.Resource).
				Str("subject_id", entry.SubjectID).
				Str("operation", entry.Operation).
				Str("patient_id", entry.PatientID).
				Int("status", entry.StatusCode).
				Msg("ward_access")

			return err
		}
	}
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// splitAPIPath breaks /api/v1/admissions/a1/discharge/pay into
// ("admissions", "a1", "discharge/pay").
func splitAPIPath(path string) (resource, subject, op string) {
	segments := strings.SplitN(strings.Trim(strings.TrimPrefix(path, apiPrefix), "/"), "/", 3)
	switch len(segments) {
	case 3:
		op = segments[2]
		fallthrough
	case 2:
		subject = segments[1]
		fallthrough
	case 1:
		resource = segments[0]
	}
	if resource == "" {
		resource = "unknown"
	}
	return resource, subject, op
}
