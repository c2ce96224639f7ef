package cmd

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	orchestratorx "github.com/tanpawarit/query-router/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/query-router/agent/contract"
)

type queryAnswerer interface {
	AnswerWithID(ctx context.Context, queryID, text string) (orchestratorx.Result, error)
}

type queryRequest struct {
	Query   string `json:"query"`
	QueryID string `json:"query_id,omitempty"`
}

type errorResponse struct {
	Error    string `json:"error"`
	Attempts int    `json:"attempts,omitempty"`
}

func newServer(answerer queryAnswerer, store contractx.TraceStore, metrics http.Handler, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := logger.Info()
			if v.Error != nil {
				ev = logger.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("http request")
			return nil
		},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}

	v1 := e.Group("/v1")
	v1.POST("/query", func(c echo.Context) error {
		var req queryRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		}
		if strings.TrimSpace(req.Query) == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "query is required"})
		}

		res, err := answerer.AnswerWithID(c.Request().Context(), req.QueryID, req.Query)
		if err != nil {
			var pf *contractx.PlanningFailure
			switch {
			case errors.As(err, &pf):
				return c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Attempts: pf.Attempts})
			case errors.Is(err, contractx.ErrValidation):
				return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			default:
				return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
			}
		}
		return c.JSON(http.StatusOK, newQueryResponse(res))
	})

	v1.GET("/traces/:id", func(c echo.Context) error {
		if store == nil {
			return c.JSON(http.StatusNotFound, errorResponse{Error: contractx.ErrRecordNotFound.Error()})
		}
		rec, err := store.FindByQueryID(c.Request().Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, contractx.ErrRecordNotFound) {
				return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
			}
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusOK, rec)
	})

	return e
}
