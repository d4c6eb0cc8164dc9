package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"printcraftAPI/middleware"
	"printcraftAPI/services"

	"github.com/gorilla/mux"
)

type ProductHandler struct {
	productService *services.ProductService
}

func NewProductHandler(productService *services.ProductService) *ProductHandler {
	return &ProductHandler{
		productService: productService,
	}
}

func (h *ProductHandler) GetProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	category := r.URL.Query().Get("category")

	products, err := h.productService.GetProducts(ctx, category)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to load products")
		return
	}

	respondWithJSON(w, http.StatusOK, products)
}

// GetProductDetail returns the product plus its mockup overlay and, for
// signed-in callers, their saved design.
func (h *ProductHandler) GetProductDetail(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	vars := mux.Vars(r)
	clerkID, _ := middleware.GetClerkID(ctx)

	detail, err := h.productService.GetDetail(ctx, vars["productID"], clerkID)
	if err != nil {
		respondWithError(w, http.StatusNotFound, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, detail)
}

func (h *ProductHandler) SaveDesign(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	vars := mux.Vars(r)

	var req struct {
		Design json.RawMessage `json:"design"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	saved, err := h.productService.SaveDesign(ctx, vars["productID"], clerkID, req.Design)
	if err != nil {
		respondWithError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, saved)
}

func (h *ProductHandler) GetSavedDesign(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	vars := mux.Vars(r)

	saved, err := h.productService.GetSavedDesign(ctx, vars["productID"], clerkID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if saved == nil {
		respondWithError(w, http.StatusNotFound, "no saved design for this product")
		return
	}

	respondWithJSON(w, http.StatusOK, saved)
}
