package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	slogecho "github.com/samber/slog-echo"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
)

// request metrics register with the default prometheus registry, so only once per process
var adminMetrics = echoprometheus.NewMiddleware("editguard_admin")

type GenericStatus struct {
	Daemon  string `json:"daemon"`
	Status  string `json:"status"`
	Message string `json:"msg,omitempty"`
}

type TrustedList struct {
	Owner   int64   `json:"owner"`
	Members []int64 `json:"members"`
}

// Read-only admin API. Mutations of the trusted list only happen through bot commands.
func (s *Server) setupAPI(bind string) {
	e := echo.New()

	// httpd
	var (
		httpTimeout        = 1 * time.Minute
		httpMaxHeaderBytes = 1 * (1024 * 1024)
	)

	s.echo = e
	s.httpd = &http.Server{
		Handler:        e,
		Addr:           bind,
		WriteTimeout:   httpTimeout,
		ReadTimeout:    httpTimeout,
		MaxHeaderBytes: httpMaxHeaderBytes,
	}

	e.HideBanner = true
	e.Use(slogecho.New(s.logger))
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("editguard"))
	e.Use(adminMetrics)
	e.HTTPErrorHandler = s.errorHandler

	e.GET("/_health", s.HandleHealthCheck)
	e.GET("/trusted", s.HandleTrusted)
	e.GET("/ledger/:chat/:msg", s.HandleLedgerEntry)
	e.GET("/audit/:chat/:msg", s.HandleAuditHistory)
}

func (s *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	var errorMessage string
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		errorMessage = fmt.Sprintf("%s", he.Message)
	}
	if code >= 500 {
		slog.Warn("editguard-http-internal-error", "err", err)
	}
	c.JSON(code, GenericStatus{Status: "error", Daemon: "editguard", Message: errorMessage})
}

func (s *Server) HandleHealthCheck(c echo.Context) error {
	return c.JSON(200, GenericStatus{Status: "ok", Daemon: "editguard"})
}

func (s *Server) HandleTrusted(c echo.Context) error {
	return c.JSON(200, TrustedList{
		Owner:   s.trust.Owner(),
		Members: s.trust.Members(),
	})
}

func parseMessageKey(c echo.Context) (int64, int64, error) {
	chatID, err := strconv.ParseInt(c.Param("chat"), 10, 64)
	if err != nil {
		return 0, 0, echo.NewHTTPError(http.StatusBadRequest, "invalid chat ID")
	}
	msgID, err := strconv.ParseInt(c.Param("msg"), 10, 64)
	if err != nil {
		return 0, 0, echo.NewHTTPError(http.StatusBadRequest, "invalid message ID")
	}
	return chatID, msgID, nil
}

func (s *Server) HandleLedgerEntry(c echo.Context) error {
	chatID, msgID, err := parseMessageKey(c)
	if err != nil {
		return err
	}
	ent, ok := s.ledger.Lookup(chatID, msgID)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "message not in ledger")
	}
	return c.JSON(200, ent)
}

func (s *Server) HandleAuditHistory(c echo.Context) error {
	if s.audit == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "audit log not configured")
	}
	chatID, msgID, err := parseMessageKey(c)
	if err != nil {
		return err
	}
	hist, err := s.audit.History(c.Request().Context(), chatID, msgID)
	if err != nil {
		return err
	}
	return c.JSON(200, hist)
}
