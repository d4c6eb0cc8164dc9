package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"printcraftAPI/internal/orders"
	"printcraftAPI/middleware"
	"printcraftAPI/services"

	"github.com/gorilla/mux"
)

type OrderHandler struct {
	orderService   *services.OrderService
	sessionManager *services.CanvasSessionManager
}

func NewOrderHandler(orderService *services.OrderService, sessionManager *services.CanvasSessionManager) *OrderHandler {
	return &OrderHandler{
		orderService:   orderService,
		sessionManager: sessionManager,
	}
}

// SubmitOrder runs checkout for a canvas session. Mounted behind
// OptionalAuthMiddleware: a verified bearer token selects the authenticated
// order procedure, no token selects the guest one.
func (h *OrderHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	vars := mux.Vars(r)
	session, exists := h.sessionManager.GetSession(vars["sessionID"])
	if !exists {
		respondWithError(w, http.StatusNotFound, "Canvas session not found")
		return
	}

	var req services.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	bearerToken := middleware.GetBearerToken(ctx)

	response, err := h.orderService.SubmitOrder(ctx, session, req, bearerToken)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrAuthRequired):
			respondWithError(w, http.StatusUnauthorized, err.Error())
		case errors.Is(err, services.ErrNoProduct),
			errors.Is(err, services.ErrNoImageElement),
			errors.Is(err, services.ErrDesignUnsettled):
			respondWithError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			var remote *orders.RemoteError
			if errors.As(err, &remote) {
				respondWithError(w, http.StatusConflict, remote.Message)
				return
			}
			respondWithError(w, http.StatusInternalServerError, "failed to place order")
		}
		return
	}

	respondWithJSON(w, http.StatusCreated, response)
}
