// Package httpapi exposes the ledger over HTTP using echo.
package httpapi

import (
	"context"
	"errors"
	"expvar"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sitcomledger/pkg/domain"
)

// Ledger is the subset of the ledger service served over HTTP.
type Ledger interface {
	GrantCompetenceByStaff(ctx context.Context, caller domain.Identity, student domain.StudentID, competence domain.CompetenceID, semester, year uint16) (domain.StaffGrantedCompetence, domain.Result, error)
	ApproveActivity(ctx context.Context, caller domain.Identity, student domain.StudentID, activity domain.ActivityID, semester, year uint16) (domain.ApprovedActivity, domain.Result, error)
	RecordByID(ctx context.Context, kind domain.RecordKind, id domain.RecordID) (domain.Record, bool, error)
	CompetenciesOf(ctx context.Context, student domain.StudentID) []domain.CompetenceID
	ActivitiesOf(ctx context.Context, student domain.StudentID) []domain.ActivityID
	RecordsInTerm(ctx context.Context, kind domain.RecordKind, term domain.TermKey) ([]domain.RecordID, error)
	Counts() map[domain.RecordKind]int
}

// Option configures a Server.
type Option func(*Server)

// WithResolver sets the caller resolver. Without one every request is anonymous.
func WithResolver(r CallerResolver) Option {
	return func(s *Server) {
		if r != nil {
			s.resolver = r
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithGatherer exposes g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithDebugVars exposes the process expvars on /debug/vars.
func WithDebugVars() Option {
	return func(s *Server) { s.debugVars = true }
}

// Server hosts the HTTP routes.
type Server struct {
	echo      *echo.Echo
	ledger    Ledger
	resolver  CallerResolver
	logger    *slog.Logger
	gatherer  prometheus.Gatherer
	debugVars bool
}

var anonymous = CallerResolverFunc(func(*http.Request) (domain.Identity, error) { return "", nil })

// New builds a server for l.
func New(l Ledger, opts ...Option) *Server {
	s := &Server{
		echo:     echo.New(),
		ledger:   l,
		resolver: anonymous,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Validator = newRequestValidator()
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}
			level := slog.LevelInfo
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
				if v.Status >= http.StatusInternalServerError {
					level = slog.LevelError
				}
			}
			s.logger.LogAttrs(c.Request().Context(), level, "http request", attrs...)
			return nil
		},
	}))
	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.GET("/healthz", s.health)
	if s.gatherer != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
	if s.debugVars {
		s.echo.GET("/debug/vars", echo.WrapHandler(expvar.Handler()))
	}
	v1 := s.echo.Group("/v1")
	v1.POST("/competencies", s.grantCompetence)
	v1.POST("/activities", s.approveActivity)
	v1.GET("/students/:id/competencies", s.competencies)
	v1.GET("/students/:id/activities", s.activities)
	v1.GET("/terms/:term/:kind", s.recordsInTerm)
	v1.GET("/records/:kind/:id", s.record)
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the listener, waiting for in-flight requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
	}
	return s.echo.Shutdown(ctx)
}

type requestValidator struct {
	validate *validator.Validate
}

func newRequestValidator() *requestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &requestValidator{validate: v}
}

// Validate implements echo.Validator.
func (rv *requestValidator) Validate(i any) error {
	err := rv.validate.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return echo.NewHTTPError(http.StatusBadRequest, map[string]any{
		"message": "invalid request",
		"fields":  fields,
	}).SetInternal(err)
}
