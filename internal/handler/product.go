package handler

import (
	"net/http"

	"github.com/go-faster/errors"

	"github.com/PavaniPriya06/CLOUTH-AG/internal/domain/product"
)

type productResponse struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Image    string  `json:"image,omitempty"`
	Category string  `json:"category,omitempty"`
	Stock    int     `json:"stock"`
}

// ListProducts returns every product in the catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		respondInternal(w, r, "list products", err)
		return
	}

	out := make([]productResponse, len(products))
	for i, p := range products {
		out[i] = h.toProductResponse(p)
	}
	respondJSON(w, http.StatusOK, out)
}

// GetProduct returns a single product by ID.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			respondError(w, http.StatusNotFound, "product not found")
			return
		}
		respondInternal(w, r, "get product", err)
		return
	}
	respondJSON(w, http.StatusOK, h.toProductResponse(*p))
}

// toProductResponse converts a domain product into the response shape.
// Relative image paths are prefixed with the configured base URL.
func (h *Handler) toProductResponse(p product.Product) productResponse {
	image := p.Image
	if image != "" {
		image = h.cfg.ImageBaseURL + image
	}
	return productResponse{
		ID:       p.ID,
		Name:     p.Name,
		Price:    p.Price.InexactFloat64(),
		Image:    image,
		Category: p.Category,
		Stock:    p.Stock,
	}
}
