package server

import (
	"net/http"
	"time"

	"github.com/xn--nding-jua/mqtt2victron/internal/core/domain"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/meters", s.ListMetersHandler)
	e.GET("/meters/:service/values", s.MeterValuesHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) ListMetersHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ListMetersRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.NoContent(http.StatusServiceUnavailable)
	}
	response, ok := res.(domain.ListMetersResponse)
	if !ok || response.HasResponseError() {
		return c.NoContent(http.StatusServiceUnavailable)
	}
	return c.JSON(http.StatusOK, response.Meters)
}

func (s *Server) MeterValuesHandler(c echo.Context) error {
	req := domain.GetMeterValuesRequest{Service: c.Param("service")}
	res, err := s.rootContext.RequestFuture(s.masterActor, req, 10*time.Second).Result()
	if err != nil {
		return c.NoContent(http.StatusServiceUnavailable)
	}
	response, ok := res.(domain.GetMeterValuesResponse)
	if !ok {
		return c.NoContent(http.StatusServiceUnavailable)
	}
	if response.HasResponseError() {
		return c.String(http.StatusNotFound, response.GetResponseError().Error())
	}
	return c.JSON(http.StatusOK, echo.Map{
		"service":      response.Service,
		"service_name": response.ServiceName,
		"values":       response.Values,
	})
}
