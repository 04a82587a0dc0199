package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/collectdesk/collectdesk/internal/domain"
	"github.com/collectdesk/collectdesk/internal/ports"
	"github.com/collectdesk/collectdesk/pkg/apperror"
)

// BatchRequestBody is the body of POST /api/v1/assignments/batch
type BatchRequestBody struct {
	Specialization *domain.ProductType `json:"specialization,omitempty"`
	Limit          int                 `json:"limit"`
	ExcludeOwned   *bool               `json:"exclude_owned,omitempty"`
}

// ReassignRequestBody is the body of POST /api/v1/customers/{id}/reassign
type ReassignRequestBody struct {
	OfficerID string `json:"officer_id"`
	Reason    string `json:"reason"`
}

// AssignmentHandler handles HTTP requests for the assignment engine
type AssignmentHandler struct {
	service     ports.AssignmentService
	systemActor string
}

// NewAssignmentHandler creates a new assignment handler
func NewAssignmentHandler(service ports.AssignmentService, systemActor string) *AssignmentHandler {
	return &AssignmentHandler{service: service, systemActor: systemActor}
}

// RegisterRoutes registers assignment routes
func (h *AssignmentHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/assignments/batch", h.RunBatch).Methods("POST")
	router.HandleFunc("/api/v1/assignments/audit", h.Audit).Methods("GET")
	router.HandleFunc("/api/v1/assignments/stats", h.Stats).Methods("GET")
	router.HandleFunc("/api/v1/customers/{id}/reassign", h.Reassign).Methods("POST")
}

// RunBatch handles a distribution batch
func (h *AssignmentHandler) RunBatch(w http.ResponseWriter, r *http.Request) {
	var body BatchRequestBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, apperror.NewBadRequest("Invalid request body"))
		return
	}

	excludeOwned := true
	if body.ExcludeOwned != nil {
		excludeOwned = *body.ExcludeOwned
	}

	result, err := h.service.RunBatch(r.Context(), domain.BatchRequest{
		Specialization: body.Specialization,
		Limit:          body.Limit,
		ExcludeOwned:   excludeOwned,
		RequestedBy:    h.actor(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Batch completed", result)
}

// Reassign handles a manual reassignment
func (h *AssignmentHandler) Reassign(w http.ResponseWriter, r *http.Request) {
	customerID := mux.Vars(r)["id"]
	if customerID == "" {
		writeError(w, apperror.NewBadRequest("Customer ID is required"))
		return
	}

	var body ReassignRequestBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, apperror.NewBadRequest("Invalid request body"))
		return
	}
	if body.OfficerID == "" {
		writeError(w, apperror.NewBadRequest("officer_id is required"))
		return
	}

	outcome, err := h.service.Reassign(r.Context(), domain.ReassignRequest{
		CustomerID:  customerID,
		OfficerID:   body.OfficerID,
		Reason:      body.Reason,
		RequestedBy: h.actor(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Customer reassigned", outcome)
}

// Audit handles a consistency audit
func (h *AssignmentHandler) Audit(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Audit(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Audit completed", report)
}

// Stats handles assignment statistics
func (h *AssignmentHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Statistics retrieved", stats)
}

// actor resolves the requesting principal: token subject, then the
// X-User-ID header, then the system actor
func (h *AssignmentHandler) actor(r *http.Request) string {
	if p, ok := PrincipalFrom(r.Context()); ok && p.Subject != "" {
		return p.Subject
	}
	if userID := r.Header.Get(UserIDHeader); userID != "" {
		return userID
	}
	return h.systemActor
}

// decodeBody decodes a JSON body; an empty body leaves dst untouched
func decodeBody(r *http.Request, dst interface{}) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
