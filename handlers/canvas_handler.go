package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"printcraftAPI/internal/compositor"
	"printcraftAPI/middleware"
	"printcraftAPI/services"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// uploads are compressed server side, but refuse anything absurd outright
const maxUploadRequestBytes = 25 << 20

type CanvasHandler struct {
	sessionManager *services.CanvasSessionManager
	productService *services.ProductService
}

func NewCanvasHandler(sessionManager *services.CanvasSessionManager, productService *services.ProductService) *CanvasHandler {
	return &CanvasHandler{
		sessionManager: sessionManager,
		productService: productService,
	}
}

// CreateCanvasSession opens a canvas for a product. If the caller is signed
// in and has a saved design for it, the canvas starts from that design.
func (h *CanvasHandler) CreateCanvasSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var req struct {
		ProductID string `json:"product_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	clerkID, _ := middleware.GetClerkID(ctx)
	detail, err := h.productService.GetDetail(ctx, req.ProductID, clerkID)
	if err != nil {
		respondWithError(w, http.StatusNotFound, err.Error())
		return
	}

	sessionID := uuid.New().String()
	session := h.sessionManager.CreateSession(sessionID, &detail.Product, detail.Mockup)

	if detail.SavedDesign != nil {
		if err := session.LoadDesign(detail.SavedDesign.Design); err != nil {
			log.Printf("Failed to load saved design into session %s: %v", sessionID, err)
		}
	}

	response := map[string]string{
		"sessionId": sessionID,
		"wsUrl":     "/api/v1/canvas/ws/" + sessionID,
	}

	respondWithJSON(w, http.StatusOK, response)
}

// JoinCanvas upgrades to a websocket and attaches the client to the session.
func (h *CanvasHandler) JoinCanvas(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sessionID := vars["sessionID"]

	session, exists := h.sessionManager.GetSession(sessionID)
	if !exists {
		http.Error(w, "Canvas session not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	client := &services.CanvasClient{
		Session: session,
		Conn:    conn,
		Send:    make(chan []byte, 256),
	}

	client.Session.Register <- client
	go client.WritePump()
	go client.ReadPump()
}

// UploadImage places an uploaded image onto the canvas. The response returns
// as soon as the placeholder element exists; compression and durable upload
// settle in the background.
func (h *CanvasHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	vars := mux.Vars(r)
	session, exists := h.sessionManager.GetSession(vars["sessionID"])
	if !exists {
		respondWithError(w, http.StatusNotFound, "Canvas session not found")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadRequestBytes)
	if err := r.ParseMultipartForm(maxUploadRequestBytes); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "failed to read image")
		return
	}

	elementID, _, err := session.IngestImage(ctx, data)
	if err != nil {
		respondWithError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	middleware.RecordUpload("design")

	respondWithJSON(w, http.StatusAccepted, map[string]string{"element_id": elementID})
}

// CaptureCanvas renders the session's canvas and returns the PNG data URI.
func (h *CanvasHandler) CaptureCanvas(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	vars := mux.Vars(r)
	session, exists := h.sessionManager.GetSession(vars["sessionID"])
	if !exists {
		respondWithError(w, http.StatusNotFound, "Canvas session not found")
		return
	}

	artifact, err := session.Capture(ctx)
	if err != nil {
		middleware.RecordCapture(false)
		switch {
		case errors.Is(err, compositor.ErrCaptureInProgress):
			respondWithError(w, http.StatusConflict, err.Error())
		case errors.Is(err, compositor.ErrBlankCapture), errors.Is(err, compositor.ErrNoCanvas):
			respondWithError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			respondWithError(w, http.StatusInternalServerError, "failed to capture canvas")
		}
		return
	}
	middleware.RecordCapture(true)

	respondWithJSON(w, http.StatusOK, map[string]string{"image": artifact})
}
