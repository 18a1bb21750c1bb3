package api

import (
	"errors"
	"net/http"

	"github.com/txn2/bi-proxy/pkg/biproxy"
)

// listKPIs returns the configured KPIs.
//
// @Summary      List KPIs
// @Tags         KPI
// @Produce      json
// @Success      200  {array}  biproxy.KPI
// @Security     ApiKeyAuth
// @Security     BearerAuth
// @Router       /kpi [get]
func (h *Handler) listKPIs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.BI.KPIs())
}

// kpi returns one normalized KPI.
//
// @Summary      Get a KPI
// @Description  Executes the KPI's card through the cache and returns it as a scalar, table or timeseries.
// @Tags         KPI
// @Produce      json
// @Param        slug    path      string  true   "KPI slug"
// @Param        tenant  query     string  false  "Tenant"
// @Success      200     {object}  biproxy.KPIResult
// @Failure      404     {object}  errorResponse
// @Failure      502     {object}  errorResponse
// @Security     ApiKeyAuth
// @Security     BearerAuth
// @Router       /kpi/{slug} [get]
func (h *Handler) kpi(w http.ResponseWriter, r *http.Request) {
	tenant := h.resolveTenant(r, "")
	if !authorizeTenant(w, r, tenant) {
		return
	}

	res, err := h.deps.BI.KPI(r.Context(), r.PathValue("slug"), tenant)
	switch {
	case errors.Is(err, biproxy.ErrUnknownKPI):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, engineStatus(err), err.Error())
	default:
		writeJSON(w, http.StatusOK, res)
	}
}
