package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/jmercier/aegis/internal/models"
	"github.com/jmercier/aegis/internal/services"
	pkghttp "github.com/jmercier/aegis/pkg/http"
)

// AuditHandler exposes read-only access to the audit trail.
type AuditHandler struct {
	audit *services.AuditService
}

func NewAuditHandler(audit *services.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

type AuditListResponse struct {
	Entries []AuditLogResponse `json:"entries"`
	Total   int64              `json:"total"`
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := models.AuditFilter{
		Username: q.Get("username"),
		Action:   q.Get("action"),
	}

	if s := q.Get("success"); s != "" {
		success, err := strconv.ParseBool(s)
		if err != nil {
			pkghttp.WriteBadRequest(w, "success must be true or false")
			return
		}
		filter.Success = &success
	}

	if from := q.Get("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			pkghttp.WriteBadRequest(w, "from must be RFC3339")
			return
		}
		filter.From = &t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			pkghttp.WriteBadRequest(w, "to must be RFC3339")
			return
		}
		filter.To = &t
	}

	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	entries, total, err := h.audit.List(r.Context(), filter, limit, offset)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, AuditListResponse{
		Entries: toAuditLogResponses(entries),
		Total:   total,
	})
}
