package httpapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"sitcomledger/pkg/domain"
)

type grantRequest struct {
	StudentID    uint64 `json:"student_id"`
	CompetenceID uint16 `json:"competence_id"`
	Semester     uint16 `json:"semester" validate:"required"`
	Year         uint16 `json:"year" validate:"required"`
}

type approveRequest struct {
	StudentID  uint64 `json:"student_id"`
	ActivityID uint32 `json:"activity_id"`
	Semester   uint16 `json:"semester" validate:"required"`
	Year       uint16 `json:"year" validate:"required"`
}

type violationResponse struct {
	Rule     string          `json:"rule"`
	Severity domain.Severity `json:"severity"`
	Message  string          `json:"message"`
}

type recordResponse struct {
	Kind     domain.RecordKind   `json:"kind"`
	Record   domain.Record       `json:"record"`
	Warnings []violationResponse `json:"warnings,omitempty"`
}

func newRecordResponse(rec domain.Record, res domain.Result) recordResponse {
	out := recordResponse{Kind: rec.Kind(), Record: rec}
	for _, v := range res.Violations {
		out.Warnings = append(out.Warnings, violationResponse{Rule: v.Rule, Severity: v.Severity, Message: v.Message})
	}
	return out
}

func (s *Server) caller(c echo.Context) (domain.Identity, error) {
	id, err := s.resolver.Resolve(c.Request())
	if err != nil {
		return "", httpError(err)
	}
	return id, nil
}

func (s *Server) grantCompetence(c echo.Context) error {
	var req grantRequest
	caller, err := s.caller(c)
	if err != nil {
		return err
	}
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	rec, res, err := s.ledger.GrantCompetenceByStaff(c.Request().Context(), caller,
		domain.StudentID(req.StudentID), domain.CompetenceID(req.CompetenceID), req.Semester, req.Year)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, newRecordResponse(rec, res))
}

func (s *Server) approveActivity(c echo.Context) error {
	var req approveRequest
	caller, err := s.caller(c)
	if err != nil {
		return err
	}
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	rec, res, err := s.ledger.ApproveActivity(c.Request().Context(), caller,
		domain.StudentID(req.StudentID), domain.ActivityID(req.ActivityID), req.Semester, req.Year)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, newRecordResponse(rec, res))
}

func studentParam(c echo.Context) (domain.StudentID, error) {
	raw := c.Param("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid student id "+strconv.Quote(raw))
	}
	return domain.StudentID(id), nil
}

func (s *Server) competencies(c echo.Context) error {
	student, err := studentParam(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"student_id":   student,
		"competencies": s.ledger.CompetenciesOf(c.Request().Context(), student),
	})
}

func (s *Server) activities(c echo.Context) error {
	student, err := studentParam(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"student_id": student,
		"activities": s.ledger.ActivitiesOf(c.Request().Context(), student),
	})
}

func (s *Server) recordsInTerm(c echo.Context) error {
	term, err := domain.ParseTermKey(c.Param("term"))
	if err != nil {
		return httpError(err)
	}
	kind, err := domain.ParseRecordKind(c.Param("kind"))
	if err != nil {
		return httpError(err)
	}
	ids, err := s.ledger.RecordsInTerm(c.Request().Context(), kind, term)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"term":       term,
		"kind":       kind,
		"record_ids": ids,
	})
}

func (s *Server) record(c echo.Context) error {
	kind, err := domain.ParseRecordKind(c.Param("kind"))
	if err != nil {
		return httpError(err)
	}
	id, err := domain.ParseRecordID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rec, ok, err := s.ledger.RecordByID(c.Request().Context(), kind, id)
	if err != nil {
		return httpError(err)
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "record not found")
	}
	return c.JSON(http.StatusOK, newRecordResponse(rec, domain.Result{}))
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"records": s.ledger.Counts(),
	})
}
