package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"storefront-catalog/internal/catalog"
	"storefront-catalog/internal/domain"
	"storefront-catalog/internal/store"
)

// maxBulkBody bounds the bulk import payload.
const maxBulkBody = 32 << 20

// HTTPHandler holds dependencies for HTTP handlers.
type HTTPHandler struct {
	service  *catalog.Service
	limits   catalog.Limits
	adminKey string
	logger   *log.Logger
}

// NewHTTPHandler creates a new HTTPHandler with dependencies. An empty
// adminKey disables the admin routes.
func NewHTTPHandler(svc *catalog.Service, limits catalog.Limits, adminKey string, logger *log.Logger) *HTTPHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &HTTPHandler{
		service:  svc,
		limits:   limits,
		adminKey: adminKey,
		logger:   logger,
	}
}

// --- Helpers ---

// ErrorResponse defines the structure for JSON error responses.
type ErrorResponse struct {
	Error string `json:"error"`
	SKU   string `json:"sku,omitempty"`
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			log.Printf("ERROR: Failed to encode JSON response: %v", err)
		}
	}
}

func setCacheHit(w http.ResponseWriter, hit bool) {
	w.Header().Set("X-Cache-Hit", strconv.FormatBool(hit))
}

// respondWithServiceError maps catalog and store errors to HTTP statuses.
// Client errors carry their message; server errors are logged and answered
// with a generic one.
func (h *HTTPHandler) respondWithServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, store.ErrProductNotFound):
		respondWithError(w, http.StatusNotFound, "Product not found")
	case errors.Is(err, catalog.ErrSKURequired):
		respondWithError(w, http.StatusBadRequest, "SKU is required")
	case errors.Is(err, catalog.ErrInvalidInput):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, catalog.ErrStoreUnavailable):
		h.logger.Printf("ERROR: %s: %v", op, err)
		respondWithError(w, http.StatusServiceUnavailable, "Service temporarily unavailable, please retry")
	default:
		h.logger.Printf("ERROR: %s: %v", op, err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// --- Public Handlers ---

// ProductEnvelope wraps a single product response.
type ProductEnvelope struct {
	Product *domain.Product `json:"product"`
}

// ListProducts serves a filtered product page, or a single product when a
// sku parameter is given.
func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	filter := catalog.ParseFilter(r.URL.Query(), h.limits)
	if filter.SKU != "" {
		h.writeProduct(w, r, filter.SKU)
		return
	}

	page, hit, err := h.service.Search(r.Context(), filter)
	if err != nil {
		h.respondWithServiceError(w, "ListProducts", err)
		return
	}
	setCacheHit(w, hit)
	respondWithJSON(w, http.StatusOK, page)
}

// GetProductBySKU serves one product by its path SKU.
func (h *HTTPHandler) GetProductBySKU(w http.ResponseWriter, r *http.Request) {
	sku := catalog.CleanSKU(chi.URLParam(r, "sku"))
	if sku == "" {
		respondWithError(w, http.StatusBadRequest, "SKU is required")
		return
	}
	h.writeProduct(w, r, sku)
}

func (h *HTTPHandler) writeProduct(w http.ResponseWriter, r *http.Request, sku string) {
	product, hit, err := h.service.Product(r.Context(), sku)
	if err != nil {
		if errors.Is(err, store.ErrProductNotFound) {
			respondWithJSON(w, http.StatusNotFound, ErrorResponse{Error: "Product not found", SKU: sku})
			return
		}
		h.respondWithServiceError(w, "GetProductBySKU", err)
		return
	}
	setCacheHit(w, hit)
	respondWithJSON(w, http.StatusOK, ProductEnvelope{Product: product})
}

func (h *HTTPHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	pairs, hit, err := h.service.Categories(r.Context())
	if err != nil {
		h.respondWithServiceError(w, "ListCategories", err)
		return
	}
	setCacheHit(w, hit)
	respondWithJSON(w, http.StatusOK, pairs)
}

func (h *HTTPHandler) ListTags(w http.ResponseWriter, r *http.Request) {
	tags, hit, err := h.service.Tags(r.Context())
	if err != nil {
		h.respondWithServiceError(w, "ListTags", err)
		return
	}
	setCacheHit(w, hit)
	respondWithJSON(w, http.StatusOK, tags)
}

func (h *HTTPHandler) GetHome(w http.ResponseWriter, r *http.Request) {
	bundle, hit, err := h.service.Home(r.Context())
	if err != nil {
		h.respondWithServiceError(w, "GetHome", err)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	setCacheHit(w, hit)
	respondWithJSON(w, http.StatusOK, bundle)
}

// Healthz reports whether the store answers.
func (h *HTTPHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Engine().Ping(r.Context()); err != nil {
		h.logger.Printf("WARN: Health check failed: %v", err)
		respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Admin Handlers ---

// AdminListProducts lists products newest first, or returns one product when
// sku is given. limit and page are optional; no limit lists everything.
func (h *HTTPHandler) AdminListProducts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if raw := query.Get("sku"); raw != "" {
		product, err := h.service.AdminProduct(r.Context(), catalog.CleanSKU(raw))
		if err != nil && !errors.Is(err, store.ErrProductNotFound) {
			h.respondWithServiceError(w, "AdminListProducts", err)
			return
		}
		respondWithJSON(w, http.StatusOK, ProductEnvelope{Product: product})
		return
	}

	limit := catalog.ClampInt(query.Get("limit"), 0, h.limits.MaxPerPage, 0)
	page := catalog.ClampInt(query.Get("page"), 1, h.limits.MaxPage, 1)
	result, err := h.service.AdminProducts(r.Context(), limit, (page-1)*limit)
	if err != nil {
		h.respondWithServiceError(w, "AdminListProducts", err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// UpsertProduct updates the product named by the payload's sku or inserts it.
func (h *HTTPHandler) UpsertProduct(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var input domain.ProductInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	result, err := h.service.UpsertProduct(r.Context(), input)
	if err != nil {
		h.respondWithServiceError(w, "UpsertProduct", err)
		return
	}
	code := http.StatusOK
	if result.Action == domain.ActionInserted {
		code = http.StatusCreated
	}
	respondWithJSON(w, code, result)
}

// DeleteResult reports a deletion by SKU.
type DeleteResult struct {
	SKU     string `json:"sku"`
	Deleted int    `json:"deleted"`
}

func (h *HTTPHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	sku := chi.URLParam(r, "sku")
	if err := h.service.DeleteProduct(r.Context(), sku); err != nil {
		if errors.Is(err, store.ErrProductNotFound) {
			respondWithJSON(w, http.StatusNotFound, ErrorResponse{Error: "Product not found", SKU: sku})
			return
		}
		h.respondWithServiceError(w, "DeleteProduct", err)
		return
	}
	respondWithJSON(w, http.StatusOK, DeleteResult{SKU: sku, Deleted: 1})
}

// BulkResult is the bulk import summary.
type BulkResult struct {
	domain.ImportResult
	Total int `json:"total"`
}

var utf8BOM = []byte("\xEF\xBB\xBF")

// BulkImport applies a JSON array of products in one transaction.
func (h *HTTPHandler) BulkImport(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBulkBody))
	if err != nil {
		respondWithError(w, http.StatusRequestEntityTooLarge, "Payload too large")
		return
	}
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if len(bytes.TrimSpace(raw)) == 0 {
		respondWithError(w, http.StatusBadRequest, "No JSON payload provided")
		return
	}

	var inputs []domain.ProductInput
	if err := json.Unmarshal(raw, &inputs); err != nil {
		respondWithError(w, http.StatusBadRequest, "JSON must be an array of product objects: "+err.Error())
		return
	}

	result, err := h.service.ImportProducts(r.Context(), inputs)
	if err != nil {
		h.respondWithServiceError(w, "BulkImport", err)
		return
	}
	respondWithJSON(w, http.StatusOK, BulkResult{ImportResult: result, Total: len(inputs)})
}

// DeleteTagInput names the tag to strip from every product.
type DeleteTagInput struct {
	Tag string `json:"tag"`
}

// DeleteCategoryInput names the category to clear from every product.
type DeleteCategoryInput struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// AffectedResult reports how many products a bulk edit changed.
type AffectedResult struct {
	DeletedFrom int64 `json:"deleted_from"`
}

func (h *HTTPHandler) DeleteTag(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var input DeleteTagInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	n, err := h.service.DeleteTag(r.Context(), input.Tag)
	if err != nil {
		h.respondWithServiceError(w, "DeleteTag", err)
		return
	}
	respondWithJSON(w, http.StatusOK, AffectedResult{DeletedFrom: int64(n)})
}

func (h *HTTPHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var input DeleteCategoryInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	n, err := h.service.DeleteCategory(r.Context(), store.CategoryField(input.Type), input.Name)
	if err != nil {
		h.respondWithServiceError(w, "DeleteCategory", err)
		return
	}
	respondWithJSON(w, http.StatusOK, AffectedResult{DeletedFrom: n})
}

// ClearCacheResult reports a cache clear.
type ClearCacheResult struct {
	FilesCleared int `json:"files_cleared"`
}

func (h *HTTPHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.ClearCache(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Cache partially cleared (%d entries)", n))
		return
	}
	respondWithJSON(w, http.StatusOK, ClearCacheResult{FilesCleared: n})
}

func (h *HTTPHandler) RefreshHome(w http.ResponseWriter, r *http.Request) {
	bundle, stored, err := h.service.RefreshHome(r.Context())
	if err != nil {
		h.respondWithServiceError(w, "RefreshHome", err)
		return
	}
	if !stored {
		respondWithError(w, http.StatusInternalServerError, "Failed to write home cache")
		return
	}
	respondWithJSON(w, http.StatusOK, bundle)
}

// --- Route Registration ---

// RegisterRoutes sets up the HTTP routes for the service.
func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/healthz", h.Healthz)
		r.Get("/categories", h.ListCategories)
		r.Get("/tags", h.ListTags)
		r.Get("/home", h.GetHome)
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Get("/{sku}", h.GetProductBySKU)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAPIKey(h.adminKey))
			r.Route("/products", func(r chi.Router) {
				r.Get("/", h.AdminListProducts)
				r.Put("/", h.UpsertProduct)
				r.Post("/bulk", h.BulkImport)
				r.Delete("/{sku}", h.DeleteProduct)
			})
			r.Delete("/tags", h.DeleteTag)
			r.Delete("/categories", h.DeleteCategory)
			r.Post("/cache/clear", h.ClearCache)
			r.Post("/cache/home", h.RefreshHome)
		})
	})

	// Legacy storefront endpoints.
	r.Get("/api/products.php", h.ListProducts)
	r.Get("/api/categories.php", h.ListCategories)
	r.Get("/api/tags.php", h.ListTags)
	r.Get("/api/home.php", h.GetHome)
}
