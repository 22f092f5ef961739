package handler

import (
	"context"
	"errors"
	"net/http"
	"reflect"

	"traceability/internal/apierror"
	"traceability/internal/apperr"
	"traceability/internal/middleware"
	"traceability/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

func init() {
	// decimal.Decimal is a struct; without this "required" never sees zero.
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if v, ok := field.Interface().(decimal.Decimal); ok {
			if v.IsZero() {
				return nil
			}
			f, _ := v.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
}

// bindAndValidate binds the JSON body and runs the validator tags. On failure
// it writes the response and returns false.
func bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid JSON: "+err.Error()))
		return false
	}
	return validateStruct(c, req)
}

// bindOptional treats an empty body as a zero request, then validates it.
// Transitions that only carry an optional note accept a bare POST.
func bindOptional(c *gin.Context, req interface{}) bool {
	if c.Request.ContentLength == 0 {
		return validateStruct(c, req)
	}
	return bindAndValidate(c, req)
}

// bindQuery is bindAndValidate for query strings.
func bindQuery(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid query: "+err.Error()))
		return false
	}
	return validateStruct(c, req)
}

func validateStruct(c *gin.Context, req interface{}) bool {
	err := validate.Struct(req)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		c.JSON(http.StatusBadRequest, apierror.New(err.Error()))
		return false
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Namespace()] = fe.Tag()
	}
	c.JSON(http.StatusUnprocessableEntity, apierror.NewValidation(fields))
	return false
}

// statusOf maps an engine error kind to its HTTP status.
func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation, apperr.KindTraversalLimit:
		return http.StatusUnprocessableEntity
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict, apperr.KindConcurrencyConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes classified engine errors with their kind and code.
// Anything else is attached to the context and answered with a bare 500 by
// middleware.ErrorHandler.
func respondError(c *gin.Context, err error) {
	var e *apperr.Error
	if errors.As(err, &e) {
		c.JSON(statusOf(e.Kind), apierror.WithCode(string(e.Kind), string(e.Code), e.Message))
		return
	}
	_ = c.Error(err)
}

// scopeOf builds the tenant scope from the verified claims. Routes are only
// mounted behind JWTAuth or HeaderTenant, which guarantee a valid organization.
func scopeOf(c *gin.Context) (service.Scope, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, apierror.New("authentication required"))
		return service.Scope{}, false
	}
	org, err := uuid.Parse(claims.OrganizationID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, apierror.New("token has no organization"))
		return service.Scope{}, false
	}
	scope := service.Scope{OrganizationID: org}
	if claims.PlantID != nil {
		if id, err := uuid.Parse(*claims.PlantID); err == nil {
			scope.PlantID = &id
		}
	}
	if id, err := uuid.Parse(claims.UserID); err == nil {
		scope.UserID = &id
	}
	return scope, true
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

// withRetry runs fn under RetryOnConflict and returns its last result.
func withRetry[T any](ctx context.Context, attempts int, fn func() (T, error)) (T, error) {
	var out T
	err := service.RetryOnConflict(ctx, attempts, func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}

// mutation binds a T body for the entity at :id, runs fn with conflict
// retries and answers 200 with its result.
func mutation[T, R any](retries int, fn func(ctx context.Context, scope service.Scope, id uuid.UUID, req T) (R, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		scope, ok := scopeOf(c)
		if !ok {
			return
		}
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		var req T
		if !bindOptional(c, &req) {
			return
		}
		ctx := c.Request.Context()
		resp, err := withRetry(ctx, retries, func() (R, error) {
			return fn(ctx, scope, id, req)
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}
