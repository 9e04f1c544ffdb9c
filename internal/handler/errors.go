package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-timetable/internal/response"
	"github.com/stemsi/exstem-timetable/internal/service"
)

// PostgreSQL error codes the handlers translate.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// failFromError maps service and storage errors onto the response envelope.
func failFromError(c *gin.Context, err error) {
	var (
		validationErr *service.ValidationError
		conflictErr   *service.ConflictError
		pgErr         *pgconn.PgError
	)

	switch {
	case errors.As(err, &validationErr):
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
			map[string]string{validationErr.Field: validationErr.Reason})
	case errors.As(err, &conflictErr):
		response.FailWithDetail(c, http.StatusConflict, response.ErrTimetableConflict,
			conflictErr.Error(), conflictErr.Fields())
	case errors.Is(err, service.ErrTeacherNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrUsernameTaken):
		response.FailWithDetail(c, http.StatusConflict, response.ErrConflict, err.Error(), nil)
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
	case errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation:
		response.Fail(c, http.StatusConflict, response.ErrConflict)
	case errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation:
		// Timetable written for a teacher that does not exist.
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	default:
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("Request failed")
		_ = c.Error(err)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
