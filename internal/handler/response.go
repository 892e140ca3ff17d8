package handler

import (
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/access-control-api/internal/service"
)

// Status tags carried in the envelope.
const (
	TagOK               = "OK"
	TagBadRequest       = "BAD_REQUEST"
	TagValidationFailed = "VALIDATION_FAILED"
	TagConflict         = "CONFLICT"
	TagNotFound         = "NOT_FOUND"
	TagUnauthorized     = "UNAUTHORIZED"
	TagForbidden        = "FORBIDDEN"
	TagNotInvited       = "NOT_INVITED"
	TagTooManyRequests  = "TOO_MANY_REQUESTS"
	TagInternal         = "INTERNAL_SERVER_ERROR"
	TagUnavailable      = "SERVICE_UNAVAILABLE"
)

const internalMessage = "an unexpected error occurred"

// Envelope wraps every JSON response.
type Envelope struct {
	Success   bool      `json:"success"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
	Errors    []string  `json:"errors"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

func requestID(c echo.Context) string {
	if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		return id
	}
	return c.Request().Header.Get(echo.HeaderXRequestID)
}

func respond(c echo.Context, status int, message string, data any) error {
	return c.JSON(status, Envelope{
		Success:   true,
		Status:    TagOK,
		Message:   message,
		Data:      data,
		Errors:    []string{},
		Timestamp: time.Now().UTC(),
		RequestID: requestID(c),
	})
}

func ok(c echo.Context, message string, data any) error {
	return respond(c, http.StatusOK, message, data)
}

func created(c echo.Context, message string, data any) error {
	return respond(c, http.StatusCreated, message, data)
}

// classify maps an error to its HTTP status, tag, client message and field
// errors. Anything unrecognised is internal.
func classify(err error) (int, string, string, []string) {
	var se *service.Error
	if errors.As(err, &se) {
		switch se.Kind {
		case service.KindValidation:
			return http.StatusBadRequest, TagValidationFailed, se.Message, fieldList(se.Fields)
		case service.KindConflict:
			return http.StatusConflict, TagConflict, se.Message, []string{}
		case service.KindNotFound:
			return http.StatusNotFound, TagNotFound, se.Message, []string{}
		case service.KindUnauthenticated:
			return http.StatusUnauthorized, TagUnauthorized, se.Message, []string{}
		case service.KindForbidden:
			return http.StatusForbidden, TagForbidden, se.Message, []string{}
		case service.KindInvitationInvalid:
			return http.StatusBadRequest, TagNotInvited, service.NotInvitedMessage, []string{}
		}
		return http.StatusInternalServerError, TagInternal, internalMessage, []string{}
	}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		return http.StatusBadRequest, TagValidationFailed, "validation failed", describe(ve)
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, isStr := he.Message.(string); isStr && s != "" {
			msg = s
		}
		switch he.Code {
		case http.StatusBadRequest, http.StatusUnsupportedMediaType, http.StatusRequestEntityTooLarge:
			return he.Code, TagBadRequest, msg, []string{}
		case http.StatusUnauthorized:
			return he.Code, TagUnauthorized, msg, []string{}
		case http.StatusForbidden:
			return he.Code, TagForbidden, msg, []string{}
		case http.StatusNotFound, http.StatusMethodNotAllowed:
			return he.Code, TagNotFound, msg, []string{}
		case http.StatusTooManyRequests:
			return he.Code, TagTooManyRequests, msg, []string{}
		}
		if he.Code < 500 {
			return he.Code, TagBadRequest, msg, []string{}
		}
	}
	return http.StatusInternalServerError, TagInternal, internalMessage, []string{}
}

func fieldList(fields []string) []string {
	if fields == nil {
		return []string{}
	}
	return fields
}

// ErrorHandler renders every error as an Envelope. Internal failures are
// logged with the request id; their detail never reaches the client.
func ErrorHandler(log logrus.FieldLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, tag, msg, errs := classify(err)
		if status >= http.StatusInternalServerError {
			log.WithError(err).WithFields(logrus.Fields{
				"request_id": requestID(c),
				"path":       c.Path(),
			}).Error("unhandled error")
		}
		body := Envelope{
			Success:   false,
			Status:    tag,
			Message:   msg,
			Errors:    errs,
			Timestamp: time.Now().UTC(),
			RequestID: requestID(c),
		}
		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			log.WithError(werr).Warn("write error response")
		}
	}
}

// Validator adapts go-playground/validator to echo. Field names in errors
// use the json tag.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{v: v}
}

func (cv *Validator) Validate(i any) error { return cv.v.Struct(i) }

func describe(ve validator.ValidationErrors) []string {
	out := make([]string, 0, len(ve))
	for _, fe := range ve {
		switch fe.Tag() {
		case "required", "required_without_all":
			out = append(out, fe.Field()+" is required")
		case "email":
			out = append(out, fe.Field()+" must be a valid email")
		case "min":
			out = append(out, fe.Field()+" must be at least "+fe.Param())
		case "max":
			out = append(out, fe.Field()+" must be at most "+fe.Param())
		case "eqfield":
			out = append(out, fe.Field()+" must match "+lowerFirst(fe.Param()))
		default:
			out = append(out, fe.Field()+" is invalid")
		}
	}
	return out
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// bind decodes the body into dst and validates it.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return c.Validate(dst)
}

// pathID parses the named path parameter as a positive int64.
func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}
