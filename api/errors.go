package api

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/Domenick1991/travelbooking/internal/auth"
	"github.com/Domenick1991/travelbooking/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

type fieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
	}
}

var statusByKind = map[domain.ErrorKind]int{
	domain.KindUnauthorized: http.StatusUnauthorized,
	domain.KindForbidden:    http.StatusForbidden,
	domain.KindNotFound:     http.StatusNotFound,
	domain.KindConflict:     http.StatusConflict,
	domain.KindValidation:   http.StatusBadRequest,
	domain.KindUpstream:     http.StatusInternalServerError,
	domain.KindInternal:     http.StatusInternalServerError,
}

// writeError maps a service error to a response. Internal details are not exposed;
// upstream errors keep the provider's message.
func writeError(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	message := "internal error"

	var de *domain.Error
	if errors.As(err, &de) {
		switch kind {
		case domain.KindUpstream:
			message = de.Error()
		case domain.KindInternal:
		default:
			message = de.Message
		}
	}
	_ = c.Error(err)
	c.JSON(statusByKind[kind], gin.H{"error": message, "code": kind})
}

// writeBindError reports malformed bodies and failed binding rules as 400.
func writeBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]fieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fieldError{Field: fe.Field(), Rule: fe.Tag(), Param: fe.Param()})
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "code": domain.KindValidation, "fields": fields})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "code": domain.KindValidation})
}

func currentUser(c *gin.Context) (domain.User, bool) {
	user, ok := auth.UserFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": domain.KindUnauthorized})
	}
	return user, ok
}
