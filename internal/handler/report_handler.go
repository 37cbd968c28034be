package handler

import (
	"encoding/csv"
	"fmt"
	"net/http"

	"github.com/Go-ku/landlord-app-sub001/internal/service"
	"github.com/Go-ku/landlord-app-sub001/pkg/logger"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

func reportRange(c echo.Context) (service.Range, error) {
	from, err := queryDate(c, "from")
	if err != nil {
		return service.Range{}, err
	}
	to, err := queryDate(c, "to")
	if err != nil {
		return service.Range{}, err
	}
	return service.Range{From: from, To: to}, nil
}

// GetReport runs a named report over an optional from/to range
func (h *Handler) GetReport(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "run report")
	}
	r, err := reportRange(c)
	if err != nil {
		return respond(c, log, err, "run report")
	}

	name := c.Param("name")
	report, err := h.svc.Reports.Run(c.Request().Context(), a, name, r)
	if err != nil {
		return respond(c, log, err, "run report")
	}

	log.Info("Report generated", zap.String("report", name))
	return c.JSON(http.StatusOK, report)
}

// ExportReport streams a named report as CSV
func (h *Handler) ExportReport(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "export report")
	}
	r, err := reportRange(c)
	if err != nil {
		return respond(c, log, err, "export report")
	}

	name := c.Param("name")
	header, rows, err := h.svc.Reports.Table(c.Request().Context(), a, name, r)
	if err != nil {
		return respond(c, log, err, "export report")
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	res.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name+".csv"))
	res.WriteHeader(http.StatusOK)

	w := csv.NewWriter(res)
	if err := w.Write(header); err != nil {
		log.Error("Failed to write report header", zap.Error(err))
		return nil
	}
	if err := w.WriteAll(rows); err != nil {
		log.Error("Failed to write report rows", zap.Error(err))
		return nil
	}

	log.Info("Report exported", zap.String("report", name), zap.Int("rows", len(rows)))
	return nil
}

// Dashboard returns the caller's summary
func (h *Handler) Dashboard(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "load dashboard")
	}

	dashboard, err := h.svc.Reports.Dashboard(c.Request().Context(), a)
	if err != nil {
		return respond(c, log, err, "load dashboard")
	}
	return c.JSON(http.StatusOK, dashboard)
}
