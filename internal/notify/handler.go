package notify

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/crewsync/fieldnotify/internal/domain"
	"github.com/crewsync/fieldnotify/internal/pkg/httputil"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrRecipientNotFound, Status: http.StatusNotFound, Message: "recipient not found"},
}

// Handler handles HTTP requests for the notification engine.
type Handler struct {
	engine     *Engine
	dispatcher *Dispatcher
	validator  *validator.Validate
}

// NewHandler creates a new notifications handler.
func NewHandler(engine *Engine, dispatcher *Dispatcher) *Handler {
	return &Handler{
		engine:     engine,
		dispatcher: dispatcher,
		validator:  validator.New(),
	}
}

// RegisterRoutes registers notification routes (require auth).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Post("/", h.Notify)
		r.Post("/decide", h.Decide)
		r.Get("/stats", h.GetStats)
	})
}

// NotifyRequest is the request body for admission and dispatch.
// Identity fields are not required: missing values fall back to their
// empty representation in the fingerprint, though callers are expected
// to populate them meaningfully.
type NotifyRequest struct {
	EventType   string            `json:"event_type" validate:"max=128"`
	EntityID    string            `json:"entity_id" validate:"max=256"`
	RecipientID string            `json:"recipient_id" validate:"max=256"`
	Content     ContentBody       `json:"content"`
	Source      string            `json:"source" validate:"max=128"`
	Priority    string            `json:"priority" validate:"omitempty,oneof=normal high urgent"`
	Metadata    map[string]string `json:"metadata"`
}

// ContentBody is the displayed content of a notification.
type ContentBody struct {
	Title          string         `json:"title" validate:"max=512"`
	Body           string         `json:"body" validate:"max=4096"`
	StructuredData map[string]any `json:"structured_data"`
}

// NotifyResponse pairs the admission decision with the delivery result.
// Delivery is null when the request was blocked or for decide-only
// calls; delivery failure is a separate fact from admission.
type NotifyResponse struct {
	Decision *Decision       `json:"decision"`
	Delivery *DeliveryResult `json:"delivery,omitempty"`
}

// Notify handles POST /notifications: decide, then dispatch if allowed.
func (h *Handler) Notify(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	decision := h.engine.Decide(r.Context(), req)
	resp := NotifyResponse{Decision: decision}

	if decision.Allowed {
		delivery, err := h.dispatcher.Dispatch(r.Context(), decision.Event, req.RecipientID)
		if err != nil {
			httputil.HandleError(r.Context(), w, err, errorMappings)
			return
		}
		resp.Delivery = delivery
	}

	httputil.Success(w, http.StatusOK, resp)
}

// Decide handles POST /notifications/decide: admission only.
func (h *Handler) Decide(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	decision := h.engine.Decide(r.Context(), req)
	httputil.Success(w, http.StatusOK, NotifyResponse{Decision: decision})
}

// GetStats handles GET /notifications/stats.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	httputil.Success(w, http.StatusOK, h.engine.Stats())
}

func (h *Handler) decodeRequest(w http.ResponseWriter, r *http.Request) (*domain.NotificationRequest, bool) {
	var body NotifyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}

	if err := h.validator.Struct(body); err != nil {
		httputil.ValidationError(w, err)
		return nil, false
	}

	return &domain.NotificationRequest{
		EventType:   body.EventType,
		EntityID:    body.EntityID,
		RecipientID: body.RecipientID,
		Content: domain.Content{
			Title:          body.Content.Title,
			Body:           body.Content.Body,
			StructuredData: body.Content.StructuredData,
		},
		Source:   body.Source,
		Priority: domain.Priority(body.Priority),
		Metadata: body.Metadata,
	}, true
}
