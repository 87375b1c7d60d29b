package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/saude/saude/internal/platform/auth"
)

// AuditEntry says who touched whose health data, how, and with what result.
type AuditEntry struct {
	At        time.Time
	RequestID string
	AccountID string
	Role      string
	ActorID   int64 // person or provider id of the caller, 0 before onboarding
	SubjectID int64 // person whose data was addressed, 0 when none
	Route     string
	Method    string
	Action    string
	Status    int
	RemoteIP  string
	UserAgent string
}

// AuditRecorder stores audit entries somewhere durable. Without one the
// middleware only logs.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry) error
}

type AuditRecorderFunc func(ctx context.Context, entry AuditEntry) error

func (f AuditRecorderFunc) Record(ctx context.Context, entry AuditEntry) error { return f(ctx, entry) }

// Audit writes one phi_access line, and hands the entry to recorder when
// given, for every /api/v1 call except authentication.
func Audit(logger zerolog.Logger, recorder ...AuditRecorder) echo.MiddlewareFunc {
	var rec AuditRecorder
	if len(recorder) > 0 {
		rec = recorder[0]
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !audited(c.Request().URL.Path) {
				return next(c)
			}
			err := next(c)

			entry := newAuditEntry(c, responseStatus(c, err))
			if rec != nil {
				if recErr := rec.Record(context.WithoutCancel(c.Request().Context()), entry); recErr != nil {
					logger.Error().Err(recErr).Str("request_id", entry.RequestID).Msg("audit record failed")
				}
			}
			logger.Info().
				Str("request_id", entry.RequestID).
				Str("account_id", entry.AccountID).
				Str("role", entry.Role).
				Int64("actor_id", entry.ActorID).
				Int64("subject_id", entry.SubjectID).
				Str("route", entry.Route).
				Str("action", entry.Action).
				Int("status", entry.Status).
				Str("remote_ip", entry.RemoteIP).
				Msg("phi_access")
			return err
		}
	}
}

func audited(path string) bool {
	return strings.HasPrefix(path, "/api/v1/") && !strings.HasPrefix(path, "/api/v1/auth/")
}

func newAuditEntry(c echo.Context, status int) AuditEntry {
	req := c.Request()
	ctx := req.Context()
	profile := auth.ProfileFromContext(ctx)

	route := c.Path()
	if route == "" {
		route = req.URL.Path
	}
	rid, _ := c.Get("request_id").(string)

	e := AuditEntry{
		At:        time.Now().UTC(),
		RequestID: rid,
		AccountID: auth.UserIDFromContext(ctx),
		Role:      profile.Role,
		Route:     route,
		Method:    req.Method,
		Action:    actionOf(req.Method),
		Status:    status,
		RemoteIP:  c.RealIP(),
		UserAgent: req.UserAgent(),
		SubjectID: subjectOf(c),
	}
	switch {
	case profile.PersonID != 0:
		e.ActorID = profile.PersonID
		if e.SubjectID == 0 {
			// Persons only ever reach their own records.
			e.SubjectID = profile.PersonID
		}
	case profile.ProviderID != 0:
		e.ActorID = profile.ProviderID
	}
	return e
}

func actionOf(method string) string {
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

// subjectOf reads the addressed person from the :person_id route param or,
// when the route is not matched yet, from /provider/persons/<id> paths.
func subjectOf(c echo.Context) int64 {
	raw := c.Param("person_id")
	if raw == "" {
		const prefix = "/api/v1/provider/persons/"
		if rest, ok := strings.CutPrefix(c.Request().URL.Path, prefix); ok {
			raw, _, _ = strings.Cut(rest, "/")
		}
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}
