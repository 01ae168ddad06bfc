package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/vogiaan1904/consultroom/internal/models"
	"github.com/vogiaan1904/consultroom/internal/service"
	pkgErrors "github.com/vogiaan1904/consultroom/pkg/errors"
	"github.com/vogiaan1904/consultroom/pkg/logger"
	"github.com/vogiaan1904/consultroom/pkg/response"
)

type HTTPHandler struct {
	matching  service.MatchingService
	sessions  service.SessionManager
	ledger    service.LedgerService
	registry  service.RegistryService
	bc        service.Broadcaster
	processor service.QueueProcessor
	logger    logger.Logger
	validator *validator.Validate
	upgrader  websocket.Upgrader
}

type Services struct {
	Matching    service.MatchingService
	Sessions    service.SessionManager
	Ledger      service.LedgerService
	Registry    service.RegistryService
	Broadcaster service.Broadcaster
	// Processor is optional; health reports its status when set.
	Processor service.QueueProcessor
}

func NewHTTPHandler(svcs Services, allowedOrigins []string, logger logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		matching:  svcs.Matching,
		sessions:  svcs.Sessions,
		ledger:    svcs.Ledger,
		registry:  svcs.Registry,
		bc:        svcs.Broadcaster,
		processor: svcs.Processor,
		logger:    logger,
		validator: validator.New(validator.WithRequiredStructEnabled()),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// HealthCheck handles health check requests
func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	var status *service.ProcessorStatus
	if h.processor != nil {
		st := h.processor.GetStatus()
		status = &st
	}
	h.respondJSON(w, r, http.StatusOK, newHealthResp(h.sessions.ActiveCount(), status))
}

// RequestConsultation answers 201 when admitted, 202 when queued and 409 when rejected.
func (h *HTTPHandler) RequestConsultation(w http.ResponseWriter, r *http.Request) {
	var req requestConsultationReq
	if !h.decode(w, r, &req) {
		return
	}

	out, err := h.matching.RequestConsultation(r.Context(), req.toInput())
	if err != nil {
		h.respondError(w, r, "RequestConsultation", err)
		return
	}

	code := http.StatusCreated
	switch out.Outcome {
	case service.OutcomeQueued:
		code = http.StatusAccepted
	case service.OutcomeRejected:
		code = http.StatusConflict
	}
	h.respondJSON(w, r, code, newConsultationResp(out))
}

func (h *HTTPHandler) GetQueueStatus(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestId")

	out, err := h.matching.GetQueueStatus(r.Context(), requestID)
	if err != nil {
		h.respondError(w, r, "GetQueueStatus", err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, newQueueStatusResp(out))
}

// CancelQueueEntry always answers 204 for a well-formed id, even if the entry is already gone.
func (h *HTTPHandler) CancelQueueEntry(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestId")

	if err := h.matching.CancelQueueEntry(r.Context(), requestID); err != nil {
		h.respondError(w, r, "CancelQueueEntry", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.GetSession(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		h.respondError(w, r, "GetSession", err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, newSessionResp(s))
}

func (h *HTTPHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	var req endSessionReq
	if !h.decode(w, r, &req) {
		return
	}

	s, err := h.sessions.EndSession(r.Context(), chi.URLParam(r, "sessionId"), models.EndReason(req.Reason))
	if err != nil {
		h.respondError(w, r, "EndSession", err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, newSessionResp(s))
}

func (h *HTTPHandler) ValidateRoomToken(w http.ResponseWriter, r *http.Request) {
	var req validateRoomReq
	if !h.decode(w, r, &req) {
		return
	}

	claims, err := h.sessions.ValidateRoomToken(r.Context(), req.Token)
	if err != nil {
		h.respondError(w, r, "ValidateRoomToken", err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, claims)
}

func (h *HTTPHandler) UpsertConsultant(w http.ResponseWriter, r *http.Request) {
	var req upsertConsultantReq
	if !h.decode(w, r, &req) {
		return
	}

	snap, err := h.registry.UpsertConsultant(r.Context(), req.toInput(chi.URLParam(r, "consultantId")))
	if err != nil {
		h.respondError(w, r, "UpsertConsultant", err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, newAvailabilityResp(snap))
}

func (h *HTTPHandler) SetPresence(w http.ResponseWriter, r *http.Request) {
	var req presenceReq
	if !h.decode(w, r, &req) {
		return
	}

	snap, err := h.matching.SetPresence(r.Context(), chi.URLParam(r, "consultantId"), *req.Online)
	if err != nil {
		h.respondError(w, r, "SetPresence", err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, newAvailabilityResp(snap))
}

func (h *HTTPHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	snap, err := h.registry.Snapshot(r.Context(), chi.URLParam(r, "consultantId"))
	if err != nil {
		h.respondError(w, r, "GetAvailability", err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, newAvailabilityResp(snap))
}

func (h *HTTPHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	bal, err := h.ledger.GetBalance(r.Context(), chi.URLParam(r, "clientId"))
	if err != nil {
		h.respondError(w, r, "GetBalance", err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, newBalanceResp(bal))
}

func (h *HTTPHandler) AddCredits(w http.ResponseWriter, r *http.Request) {
	var req creditReq
	if !h.decode(w, r, &req) {
		return
	}

	bal, err := h.ledger.Credit(r.Context(), service.CreditInput{
		ClientID:  chi.URLParam(r, "clientId"),
		Amount:    models.Money(req.Amount),
		Kind:      models.CreditKind(req.Kind),
		Reference: req.Reference,
	})
	if err != nil {
		h.respondError(w, r, "AddCredits", err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, newBalanceResp(bal))
}

// TransferCredits moves normal credits from the path client to to_client_id.
func (h *HTTPHandler) TransferCredits(w http.ResponseWriter, r *http.Request) {
	var req transferReq
	if !h.decode(w, r, &req) {
		return
	}

	out, err := h.ledger.Transfer(r.Context(), service.TransferInput{
		FromClientID: chi.URLParam(r, "clientId"),
		ToClientID:   req.ToClientID,
		Amount:       models.Money(req.Amount),
	})
	if err != nil {
		h.respondError(w, r, "TransferCredits", err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, newTransferResp(out))
}

func (h *HTTPHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ledger.ListTransactions(r.Context(), chi.URLParam(r, "clientId"), queryLimit(r))
	if err != nil {
		h.respondError(w, r, "ListTransactions", err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, newLedgerEntryResps(entries))
}

func (h *HTTPHandler) ListClientSessions(w http.ResponseWriter, r *http.Request) {
	ss, err := h.sessions.ListClientSessions(r.Context(), chi.URLParam(r, "clientId"), queryLimit(r))
	if err != nil {
		h.respondError(w, r, "ListClientSessions", err)
		return
	}

	out := make([]*sessionResp, 0, len(ss))
	for _, s := range ss {
		out = append(out, newSessionResp(s))
	}
	h.respondJSON(w, r, http.StatusOK, out)
}

func (h *HTTPHandler) GetClientStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.sessions.ClientStats(r.Context(), chi.URLParam(r, "clientId"))
	if err != nil {
		h.respondError(w, r, "GetClientStats", err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, stats)
}

func (h *HTTPHandler) GetConsultantStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.sessions.ConsultantStats(r.Context(), chi.URLParam(r, "consultantId"))
	if err != nil {
		h.respondError(w, r, "GetConsultantStats", err)
		return
	}
	h.respondJSON(w, r, http.StatusOK, stats)
}

// Helper functions

func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return n
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Debugf(r.Context(), "delivery.http.decode: %v", err)
		_ = response.Error(w, errInvalidBody, nil)
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		_ = response.Error(w, errValidationFailed, validationDetails(err))
		return false
	}
	return true
}

func validationDetails(err error) []string {
	var out []string
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			out = append(out, fe.Field()+": "+fe.Tag())
		}
	}
	return out
}

func (h *HTTPHandler) respondJSON(w http.ResponseWriter, r *http.Request, statusCode int, data any) {
	if err := response.JSON(w, statusCode, data); err != nil {
		h.logger.Errorf(r.Context(), "delivery.http.respondJSON: %v", err)
	}
}

func (h *HTTPHandler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	mapped := mapHTTPError(err)

	var httpErr *pkgErrors.HTTPError
	if errors.As(mapped, &httpErr) {
		h.logger.Debugf(r.Context(), "delivery.http.HTTPHandler.%s: %v", op, err)
	} else {
		h.logger.Errorf(r.Context(), "delivery.http.HTTPHandler.%s: %v", op, err)
	}

	if err := response.Error(w, mapped, nil); err != nil {
		h.logger.Errorf(r.Context(), "delivery.http.respondError: %v", err)
	}
}
