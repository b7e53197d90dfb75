// README: Base handler utilities (JSON helpers, error mapping, request binding).
package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"carpool/internal/apperr"
	"carpool/internal/types"
)

var (
	errBadJSON    = apperr.Validation("invalid_json", "request body is not valid JSON")
	errValidation = apperr.Validation("invalid_request", "request validation failed")
	errBadID      = apperr.Validation("invalid_id", "malformed identifier")
	errTooLarge   = apperr.Validation("body_too_large", "request body is too large")
)

// maxBodyBytes caps JSON request bodies; every payload here is a small form.
const maxBodyBytes = 64 << 10

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

// statusOf maps an error kind to its HTTP status. Payment failures are 402
// so clients can tell them apart from other upstream outages.
func statusOf(e *apperr.Error) int {
	switch e.Kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindUpstream:
		if strings.HasPrefix(e.Code, "payment_") {
			return http.StatusPaymentRequired
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err in the shared error envelope. Unclassified errors
// are logged by the access log via c.Error and reach the client as a generic
// internal error.
func writeError(c *gin.Context, err error) {
	e := apperr.From(err)
	if e.Kind == apperr.KindInternal {
		_ = c.Error(err)
	}
	writeJSON(c, statusOf(e), errorResponse{Error: errorBody{Code: e.Code, Message: e.Message, Fields: e.Fields}})
}

// isValidID accepts the identifiers this service issues: UUIDs and the
// opaque UIDs of the identity provider.
func isValidID(v string) bool {
	if v == "" || len(v) > 128 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func pathID(c *gin.Context) (types.ID, bool) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, errBadID.WithField("id", "must be alphanumeric"))
		return "", false
	}
	return types.ID(id), true
}

// bind decodes the body into dst after alias normalization and runs the
// struct's validate tags. An empty body decodes as {}.
func bind(c *gin.Context, dst any) bool {
	var body io.Reader
	if c.Request.Body != nil {
		body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	}
	if err := decodeBody(body, dst); err != nil {
		writeError(c, err)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(c, validationError(err))
		return false
	}
	return true
}

// bindQuery is bind for query parameters; the first value of each key is used.
func bindQuery(c *gin.Context, dst any) bool {
	raw := make(map[string]any)
	for k, vs := range c.Request.URL.Query() {
		if len(vs) > 0 && vs[0] != "" {
			raw[k] = vs[0]
		}
	}
	if err := decodeMap(raw, dst); err != nil {
		writeError(c, err)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(c, validationError(err))
		return false
	}
	return true
}

func decodeBody(body io.Reader, dst any) error {
	raw := map[string]any{}
	if body != nil {
		data, err := io.ReadAll(body)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errTooLarge
		}
		if err != nil {
			return errBadJSON
		}
		if len(bytes.TrimSpace(data)) > 0 {
			if err := json.Unmarshal(data, &raw); err != nil {
				return errBadJSON
			}
		}
	}
	return decodeMap(raw, dst)
}

func decodeMap(raw map[string]any, dst any) error {
	canon, err := Normalize(raw)
	if err != nil {
		return err
	}
	data, err := json.Marshal(canon)
	if err != nil {
		return errBadJSON
	}
	if err := json.Unmarshal(data, dst); err != nil {
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) {
			return errValidation.WithField(te.Field, "must be a "+te.Type.String())
		}
		var pe *time.ParseError
		if errors.As(err, &pe) {
			return errValidation.WithField("time", "must be RFC 3339")
		}
		return errBadJSON
	}
	return nil
}

func validationError(err error) error {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return errValidation
	}
	out := errValidation
	for _, fe := range ves {
		out = out.WithField(fe.Field(), ruleMessage(fe))
	}
	return out
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "latitude", "longitude":
		return "must be a valid " + fe.Tag()
	case "len":
		return "must have length " + fe.Param()
	case "e164":
		return "must be in E.164 format"
	default:
		return "failed " + fe.Tag()
	}
}

// queryInt reads an optional integer query parameter.
func queryInt(c *gin.Context, key string, def int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errValidation.WithField(key, "must be an integer")
	}
	return n, nil
}
