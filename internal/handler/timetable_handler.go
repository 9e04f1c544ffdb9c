package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-timetable/internal/middleware"
	"github.com/stemsi/exstem-timetable/internal/model"
	"github.com/stemsi/exstem-timetable/internal/response"
	"github.com/stemsi/exstem-timetable/internal/service"
	"github.com/stemsi/exstem-timetable/internal/validator"
)

// TimetableHandler serves teacher timetables and class grids.
type TimetableHandler struct {
	timetableService *service.TimetableService
}

// NewTimetableHandler creates a new TimetableHandler.
func NewTimetableHandler(timetableService *service.TimetableService) *TimetableHandler {
	return &TimetableHandler{timetableService: timetableService}
}

type teacherTimetableQuery struct {
	Term      string `form:"term" binding:"required,max=50"`
	TeacherID int    `form:"teacher_id" binding:"required,min=1"`
}

type classTimetableQuery struct {
	Term      string `form:"term" binding:"required,max=50"`
	ClassName string `form:"class_name" binding:"required,max=100"`
}

// GetTeacherTimetable godoc
// GET /api/v1/timetable/teacher?term=&teacher_id=
// Returns the teacher's periods ordered by period number.
func (h *TimetableHandler) GetTeacherTimetable(c *gin.Context) {
	var q teacherTimetableQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if !h.authorize(c, q.Term, q.TeacherID) {
		return
	}

	periods, err := h.timetableService.GetTeacherTimetable(c.Request.Context(), q.Term, q.TeacherID)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"timetable": periods})
}

// ReplaceTeacherTimetable godoc
// PUT /api/v1/timetable/teacher
// Replaces the teacher's whole timetable. Entry i of "periods" becomes period i+1;
// entries without a class are dropped. Returns 409 with the clashing slot when
// another teacher already holds it on overlapping days.
func (h *TimetableHandler) ReplaceTeacherTimetable(c *gin.Context) {
	var req model.ReplaceTimetableRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if !h.authorize(c, req.Term, req.TeacherID) {
		return
	}

	if err := h.timetableService.ReplaceTimetable(c.Request.Context(), req.Term, req.TeacherID, req.Periods); err != nil {
		failFromError(c, err)
		return
	}

	periods, err := h.timetableService.GetTeacherTimetable(c.Request.Context(), req.Term, req.TeacherID)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message":   "timetable saved successfully",
		"timetable": periods,
	})
}

// GetClassTimetable godoc
// GET /api/v1/timetable/class?term=&class_name=
// Returns the class's weekly grid; cells read "<teacher> — <assignment>".
func (h *TimetableHandler) GetClassTimetable(c *gin.Context) {
	var q classTimetableQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	slots, err := h.timetableService.GetClassTimetable(c.Request.Context(), q.Term, q.ClassName)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"timetable": slots})
}

type termQuery struct {
	Term string `form:"term" binding:"required,max=50"`
}

// ListClasses godoc
// GET /api/v1/timetable/classes?term=
// Lists the classes that have at least one scheduled period.
func (h *TimetableHandler) ListClasses(c *gin.Context) {
	var q termQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	classes, err := h.timetableService.ListClasses(c.Request.Context(), q.Term)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"classes": classes})
}

func (h *TimetableHandler) authorize(c *gin.Context, term string, teacherID int) bool {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return false
	}
	if !claims.CanAccessTeacher(term, teacherID) {
		response.Fail(c, http.StatusForbidden, response.ErrNotOwnTimetable)
		return false
	}
	return true
}
