package dashboard

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ehr/patientsim/internal/platform/metrics"
)

// Handler serves the latest snapshots over HTTP.
type Handler struct {
	store    *Store
	gatherer prometheus.Gatherer
}

// NewHandler serves store. A nil gatherer leaves /metrics unregistered.
func NewHandler(store *Store, gatherer prometheus.Gatherer) *Handler {
	return &Handler{store: store, gatherer: gatherer}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	metrics.RegisterRoutes(e, h.gatherer)
	e.GET("/", h.RenderText)
	api := e.Group("/api/v1")
	api.GET("/snapshots", h.ListSnapshots)
	api.GET("/snapshots/:dataset", h.GetSnapshot)
}

func (h *Handler) ListSnapshots(c echo.Context) error {
	return c.JSON(http.StatusOK, h.store.All())
}

func (h *Handler) GetSnapshot(c echo.Context) error {
	kind := Kind(c.Param("dataset"))
	if kind != KindConstant && kind != KindChanging {
		return echo.NewHTTPError(http.StatusBadRequest, "dataset must be constant or changing")
	}
	snap, ok := h.store.Get(kind)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no snapshot yet for "+string(kind))
	}
	return c.JSON(http.StatusOK, snap)
}

func (h *Handler) RenderText(c echo.Context) error {
	snaps := h.store.All()
	if len(snaps) == 0 {
		return c.String(http.StatusOK, "No data yet.\n")
	}
	parts := make([]string, len(snaps))
	for i, s := range snaps {
		parts[i] = RenderText(s)
	}
	return c.String(http.StatusOK, strings.Join(parts, "\n"))
}
