package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/keithlinneman/linnemanlabs-api/internal/apierr"
	"github.com/keithlinneman/linnemanlabs-api/internal/log"
	"github.com/keithlinneman/linnemanlabs-api/internal/sanitize"
	"github.com/keithlinneman/linnemanlabs-api/internal/store"
	"github.com/keithlinneman/linnemanlabs-api/internal/xerrors"
)

// emailPattern has no room for markup or whitespace, so accepted addresses
// are already stable under sanitize.Text.
var emailPattern = regexp.MustCompile(`^[^\s<>&]+@[^\s<>&]+\.[^\s<>&]+$`)

const minSanitizedName = 2

// dataInput is the POST /data body. Pointers distinguish missing from zero.
type dataInput struct {
	Name  *string `json:"name" validate:"required,min=2,max=50"`
	Age   *int    `json:"age" validate:"required,min=0,max=120"`
	Email *string `json:"email" validate:"required,email_safe"`
}

type dataResponse struct {
	Message  string     `json:"message"`
	Received store.User `json:"received"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report json names, not Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("email_safe", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})
	return v
}

func (a *API) createData(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	L := log.FromContext(ctx)

	var in dataInput
	if err := decodeJSON(r.Body, &in); err != nil {
		return err
	}
	if err := a.validate.Struct(in); err != nil {
		return validationError(err)
	}

	name := sanitize.Text(*in.Name)
	if utf8.RuneCountInString(name) < minSanitizedName {
		return apierr.NewValidation(apierr.FieldError{
			Field:   "name",
			Message: "must contain at least 2 characters after sanitization",
		})
	}

	u, err := a.users.Create(ctx, store.NewUser{Name: name, Age: *in.Age, Email: *in.Email})
	if errors.Is(err, store.ErrInvalidUser) {
		return apierr.NewValidation(apierr.FieldError{Field: "body", Message: "rejected by store"})
	}
	if err != nil {
		return xerrors.Wrap(err, "create user")
	}

	a.hooks.IncUsersCreated()
	L.Info(ctx, "data received", "user_id", u.ID, "name", u.Name)
	apierr.WriteJSON(w, http.StatusOK, dataResponse{Message: "Data received successfully", Received: u})
	return nil
}

// decodeJSON reads exactly one JSON object. Malformed or unknown input is a
// validation failure; a body over the MaxBody limit surfaces as 413.
func decodeJSON(body io.Reader, dst any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err == nil {
		if dec.Decode(&struct{}{}) != io.EOF {
			return apierr.NewValidation(apierr.FieldError{Field: "body", Message: "must contain a single JSON object"})
		}
		return nil
	}

	var (
		mbe    *http.MaxBytesError
		syntax *json.SyntaxError
		typ    *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &mbe):
		return err
	case errors.Is(err, io.EOF):
		return apierr.NewValidation(apierr.FieldError{Field: "body", Message: "field required"})
	case errors.As(err, &syntax), errors.Is(err, io.ErrUnexpectedEOF):
		return apierr.NewValidation(apierr.FieldError{Field: "body", Message: "invalid JSON"})
	case errors.As(err, &typ):
		field := typ.Field
		if field == "" {
			field = "body"
		}
		return apierr.NewValidation(apierr.FieldError{
			Field:   sanitize.Text(field),
			Message: "must be of type " + typ.Type.String(),
		})
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
		return apierr.NewValidation(apierr.FieldError{
			Field:   sanitize.Text(field),
			Message: "extra fields not permitted",
		})
	default:
		return apierr.NewValidation(apierr.FieldError{Field: "body", Message: "invalid JSON"})
	}
}

func validationError(err error) error {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return xerrors.Wrap(err, "validate")
	}
	details := make([]apierr.FieldError, 0, len(ves))
	for _, fe := range ves {
		details = append(details, apierr.FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	return apierr.NewValidation(details...)
}

func fieldMessage(fe validator.FieldError) string {
	isString := fe.Kind() == reflect.String
	switch fe.Tag() {
	case "required":
		return "field required"
	case "min":
		if isString {
			return "must be at least " + fe.Param() + " characters"
		}
		return "must be greater than or equal to " + fe.Param()
	case "max":
		if isString {
			return "must be at most " + fe.Param() + " characters"
		}
		return "must be less than or equal to " + fe.Param()
	case "email_safe":
		return "must be a valid email address"
	default:
		return "failed " + fe.Tag() + " check"
	}
}
