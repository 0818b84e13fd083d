package httpserver

import (
	"errors"
	"net/http"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const (
	NON_FIELD_ERRORS = "non_field_errors"

	msgRequired      = "This field is required."
	msgBlank         = "This field may not be blank."
	msgNotFound      = "Not found."
	msgNoFile        = "No file was submitted."
	msgInvalidJSON   = "Value must be valid JSON."
	msgBadDate       = "Date has wrong format. Use one of these formats instead: YYYY-MM-DD."
	msgBadDatetime   = "Datetime has wrong format. Use one of these formats instead: YYYY-MM-DDThh:mm[:ss[.uuuuuu]][+HH:MM|-HH:MM|Z]."
	msgNoCoordinates = "No GPS coordinates could be read. Enter lat/lon manually."
)

type APIErrorResponse struct {
	Error string `json:"error"`
}

type APIDetailResponse struct {
	Detail string `json:"detail"`
}

// FieldErrors is the per-field validation error body: {"field": ["msg", ...]}.
type FieldErrors map[string][]string

func (errs FieldErrors) Add(field, message string) {
	errs[field] = append(errs[field], message)
}

// Merge adds the messages of 'other' for fields without errors so far.
func (errs FieldErrors) Merge(other FieldErrors) {
	for field, messages := range other {
		if _, ok := errs[field]; !ok {
			errs[field] = messages
		}
	}
}

// Fields returns the field names with errors, sorted.
func (errs FieldErrors) Fields() []string {
	fields := make([]string, 0, len(errs))
	for field := range errs {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// First is the first message for 'field', for templates.
func (errs FieldErrors) First(field string) string {
	if messages := errs[field]; len(messages) > 0 {
		return messages[0]
	}
	return ""
}

var registerTagNameOnce sync.Once

// formValidator is gin's validator engine, reporting fields by their json name.
func formValidator() *validator.Validate {
	v, _ := binding.Validator.Engine().(*validator.Validate)
	registerTagNameOnce.Do(func() {
		if v == nil {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return v
}

func validationMessage(fe validator.FieldError, present bool) string {
	switch fe.Tag() {
	case "required":
		if present {
			return msgBlank
		}
		return msgRequired
	case "max":
		return "Ensure this field has no more than " + fe.Param() + " characters."
	case "datetime":
		return msgBadDate
	case "number", "numeric":
		return "A valid integer is required."
	case "latitude":
		return "Ensure this value is a valid latitude between -90 and 90."
	case "longitude":
		return "Ensure this value is a valid longitude between -180 and 180."
	}
	return "Invalid value."
}

// validateForm runs the binding tags of 'form'. 'fields' tells apart
// missing fields from blank ones and may be nil.
func validateForm(form any, fields *requestFields) FieldErrors {
	errs := make(FieldErrors)

	formValidator()

	if err := binding.Validator.ValidateStruct(form); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			errs.Add(NON_FIELD_ERRORS, err.Error())
			return errs
		}
		for _, fe := range verrs {
			name := fe.Field()
			errs.Add(name, validationMessage(fe, fields != nil && fields.Has(name)))
		}
	}

	return errs
}

func (srv *HTTPServer) notFound(c *gin.Context) {
	if c.GetBool(htmlViewKey) {
		srv.render(c, http.StatusNotFound, "error.html", gin.H{"Message": "No encontrado."})
		return
	}
	c.JSON(http.StatusNotFound, APIDetailResponse{Detail: msgNotFound})
}

func (srv *HTTPServer) internalError(c *gin.Context, component string, err error) {
	srv.logger.Errorf("%s: %v", component, err)
	if c.GetBool(htmlViewKey) {
		srv.render(c, http.StatusInternalServerError, "error.html", gin.H{"Message": "Error interno."})
		return
	}
	c.JSON(http.StatusInternalServerError, APIErrorResponse{
		Error: "an internal error occurred: check the logs",
	})
}
