// internal/handler/campaign_handler.go
package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/mailcampaign-sender/internal/service"
)

// CampaignHandler serves read-only campaign views
type CampaignHandler struct {
	Service *service.CampaignService
}

func NewCampaignHandler(svc *service.CampaignService) *CampaignHandler {
	return &CampaignHandler{Service: svc}
}

// GetCampaignStatusHandler returns the campaign, its recipient breakdown,
// progress and the most recent events.
func (h *CampaignHandler) GetCampaignStatusHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		WriteError(w, http.StatusBadRequest, "campaign id is required")
		return
	}

	status, err := h.Service.GetCampaignStatus(r.Context(), id)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    status,
	})
}
