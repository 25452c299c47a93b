// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/mailcampaign-sender/internal/handler"
	"github.com/unclebandit/mailcampaign-sender/internal/service"
)

const startedMessage = "Campaign processing started in background."

type CampaignController struct {
	CampaignService *service.CampaignService
}

// SendCampaign accepts {"campaign_id": "..."} and launches a background run.
func (c *CampaignController) SendCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CampaignID string `json:"campaign_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		handler.WriteError(w, http.StatusBadRequest, "invalid body")
		return
	}
	c.launch(w, r, body.CampaignID)
}

// SendCampaignByID launches a background run for the campaign in the path.
func (c *CampaignController) SendCampaignByID(w http.ResponseWriter, r *http.Request) {
	c.launch(w, r, chi.URLParam(r, "id"))
}

func (c *CampaignController) launch(w http.ResponseWriter, r *http.Request, campaignID string) {
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		handler.WriteError(w, http.StatusBadRequest, "Campaign ID is required")
		return
	}

	if err := c.CampaignService.StartSend(r.Context(), campaignID); err != nil {
		handler.WriteServiceError(w, r, err)
		return
	}

	handler.WriteJSON(w, http.StatusAccepted, map[string]any{
		"success":     true,
		"message":     startedMessage,
		"campaign_id": campaignID,
	})
}

func (c *CampaignController) RetryFailed(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := c.CampaignService.RetryFailedRecipients(r.Context(), id)
	if err != nil {
		handler.WriteServiceError(w, r, err)
		return
	}

	status := http.StatusOK
	if n > 0 {
		status = http.StatusAccepted
	}
	handler.WriteJSON(w, status, map[string]any{
		"success":     true,
		"campaign_id": id,
		"requeued":    n,
	})
}

func (c *CampaignController) Pause(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := c.CampaignService.PauseCampaign(r.Context(), id); err != nil {
		handler.WriteServiceError(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "campaign_id": id, "status": "paused"})
}

func (c *CampaignController) Resume(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := c.CampaignService.ResumeCampaign(r.Context(), id); err != nil {
		handler.WriteServiceError(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusAccepted, map[string]any{
		"success":     true,
		"campaign_id": id,
		"message":     startedMessage,
	})
}

func (c *CampaignController) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := c.CampaignService.CancelCampaign(r.Context(), id)
	if err != nil {
		handler.WriteServiceError(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, map[string]any{
		"success":              true,
		"campaign_id":          id,
		"status":               "cancelled",
		"recipients_cancelled": n,
	})
}
