package api

import (
	"net/http"
)

// status reports proxy state.
//
// @Summary      Proxy status
// @Description  Reports whether a Metabase session is held, cache statistics and uptime.
// @Tags         System
// @Produce      json
// @Success      200  {object}  biproxy.Status
// @Security     ApiKeyAuth
// @Security     BearerAuth
// @Router       /bi/status [get]
func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.BI.Status(r.Context()))
}

// health checks Metabase reachability.
//
// @Summary      Metabase connection test
// @Tags         System
// @Produce      json
// @Success      200  {object}  biproxy.ConnectionStatus
// @Failure      503  {object}  biproxy.ConnectionStatus
// @Security     ApiKeyAuth
// @Security     BearerAuth
// @Router       /bi/health [get]
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	st := h.deps.BI.TestConnection(r.Context())
	if !st.Success {
		writeJSON(w, http.StatusServiceUnavailable, st)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
