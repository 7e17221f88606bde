package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/httpx"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/pagination"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/services"
)

const maxCatalogBodySize = 64 * 1024

// CatalogHandlers serves product and category browsing plus the admin catalog endpoints.
type CatalogHandlers struct {
	catalog   services.CatalogService
	inventory services.InventoryService
}

// NewCatalogHandlers constructs catalog handlers. inventory may be nil when stock top-ups are disabled.
func NewCatalogHandlers(catalog services.CatalogService, inventory services.InventoryService) *CatalogHandlers {
	return &CatalogHandlers{
		catalog:   catalog,
		inventory: inventory,
	}
}

// ProductRoutes registers the public /products endpoints.
func (h *CatalogHandlers) ProductRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listProducts)
	r.Get("/{productID}", h.getProduct)
}

// CategoryRoutes registers the public /categories endpoints.
func (h *CatalogHandlers) CategoryRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listCategories)
	r.Get("/{slug}", h.getCategory)
}

// AdminRoutes registers catalog management endpoints. The caller mounts them behind admin auth.
func (h *CatalogHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/products", h.createProduct)
	r.Put("/products/{productID}", h.updateProduct)
	r.Delete("/products/{productID}", h.deleteProduct)
	r.Post("/products/{productID}/images", h.uploadProductImage)
	r.Post("/products/{productID}/stock", h.restockProduct)

	r.Post("/categories", h.createCategory)
	r.Put("/categories/{categoryID}", h.updateCategory)
	r.Delete("/categories/{categoryID}", h.deleteCategory)
}

type productListResponse struct {
	Items         []productPayload `json:"items"`
	NextPageToken string           `json:"nextPageToken,omitempty"`
}

type productResponse struct {
	Product productPayload `json:"product"`
}

type categoryListResponse struct {
	Items []categoryPayload `json:"items"`
}

type categoryResponse struct {
	Category categoryPayload `json:"category"`
}

type upsertProductRequest struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	CategoryID    string   `json:"categoryId"`
	Images        []string `json:"images"`
	OriginalPrice int64    `json:"originalPrice"`
	DiscountPrice *int64   `json:"discountPrice"`
	ShippingFee   int64    `json:"shippingFee"`
	Stock         *int     `json:"stock"`
}

func (req upsertProductRequest) command(productID string) services.UpsertProductCommand {
	return services.UpsertProductCommand{
		ProductID:     productID,
		Name:          req.Name,
		Description:   req.Description,
		CategoryID:    strings.TrimSpace(req.CategoryID),
		Images:        req.Images,
		OriginalPrice: req.OriginalPrice,
		DiscountPrice: req.DiscountPrice,
		ShippingFee:   req.ShippingFee,
		Stock:         req.Stock,
	}
}

type restockRequest struct {
	Quantity int `json:"quantity"`
}

type stockResponse struct {
	ProductID string `json:"productId"`
	Stock     int    `json:"stock"`
}

type upsertCategoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(w, r)
		return
	}
	page, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	query := r.URL.Query()
	filter := services.ProductListFilter{
		CategoryID:   strings.TrimSpace(query.Get("category")),
		CategorySlug: strings.TrimSpace(query.Get("categorySlug")),
		Search:       strings.TrimSpace(firstNonEmpty(query.Get("search"), query.Get("q"))),
		Sort:         strings.TrimSpace(query.Get("sort")),
		Pagination:   services.Pagination{PageSize: page.PageSize, PageToken: page.PageToken},
	}
	result, err := h.catalog.ListProducts(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productListResponse{
		Items:         buildProductPayloads(result.Items),
		NextPageToken: result.NextPageToken,
	})
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(w, r)
		return
	}
	product, err := h.catalog.GetProduct(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func (h *CatalogHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	h.saveProduct(w, r, "", http.StatusCreated, func(ctx context.Context, cmd services.UpsertProductCommand) (services.Product, error) {
		return h.catalog.CreateProduct(ctx, cmd)
	})
}

func (h *CatalogHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	h.saveProduct(w, r, chi.URLParam(r, "productID"), http.StatusOK, func(ctx context.Context, cmd services.UpsertProductCommand) (services.Product, error) {
		return h.catalog.UpdateProduct(ctx, cmd)
	})
}

func (h *CatalogHandlers) saveProduct(w http.ResponseWriter, r *http.Request, productID string, status int, save func(ctx context.Context, cmd services.UpsertProductCommand) (services.Product, error)) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(w, r)
		return
	}
	var req upsertProductRequest
	if !decodeJSONBody(w, r, maxCatalogBodySize, &req) {
		return
	}
	product, err := save(ctx, req.command(productID))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, status, productResponse{Product: buildProductPayload(product)})
}

func (h *CatalogHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(w, r)
		return
	}
	if err := h.catalog.DeleteProduct(ctx, chi.URLParam(r, "productID")); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CatalogHandlers) uploadProductImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(w, r)
		return
	}
	upload, ok := readUploadedFile(w, r, "image", "file")
	if !ok {
		return
	}
	defer upload.file.Close()

	product, err := h.catalog.AddProductImage(ctx, services.ProductImageCommand{
		ProductID:   chi.URLParam(r, "productID"),
		FileName:    upload.header.Filename,
		ContentType: upload.contentType(),
		Size:        upload.header.Size,
		Body:        upload.file,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, productResponse{Product: buildProductPayload(product)})
}

func (h *CatalogHandlers) restockProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}
	var req restockRequest
	if !decodeJSONBody(w, r, maxCatalogBodySize, &req) {
		return
	}
	cmd := services.RestockCommand{
		ProductID: chi.URLParam(r, "productID"),
		Quantity:  req.Quantity,
		ActorID:   actorID(r),
	}
	stock, err := h.inventory.Restock(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, stockResponse{ProductID: cmd.ProductID, Stock: stock})
}

func (h *CatalogHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(w, r)
		return
	}
	categories, err := h.catalog.ListCategories(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := categoryListResponse{Items: make([]categoryPayload, 0, len(categories))}
	for _, c := range categories {
		resp.Items = append(resp.Items, buildCategoryPayload(c))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *CatalogHandlers) getCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(w, r)
		return
	}
	category, err := h.catalog.GetCategoryBySlug(ctx, chi.URLParam(r, "slug"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, categoryResponse{Category: buildCategoryPayload(category)})
}

func (h *CatalogHandlers) createCategory(w http.ResponseWriter, r *http.Request) {
	h.saveCategory(w, r, "", http.StatusCreated, func(ctx context.Context, cmd services.UpsertCategoryCommand) (services.Category, error) {
		return h.catalog.CreateCategory(ctx, cmd)
	})
}

func (h *CatalogHandlers) updateCategory(w http.ResponseWriter, r *http.Request) {
	h.saveCategory(w, r, chi.URLParam(r, "categoryID"), http.StatusOK, func(ctx context.Context, cmd services.UpsertCategoryCommand) (services.Category, error) {
		return h.catalog.UpdateCategory(ctx, cmd)
	})
}

func (h *CatalogHandlers) saveCategory(w http.ResponseWriter, r *http.Request, categoryID string, status int, save func(ctx context.Context, cmd services.UpsertCategoryCommand) (services.Category, error)) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(w, r)
		return
	}
	var req upsertCategoryRequest
	if !decodeJSONBody(w, r, maxCatalogBodySize, &req) {
		return
	}
	category, err := save(ctx, services.UpsertCategoryCommand{
		CategoryID:  categoryID,
		Name:        req.Name,
		Description: req.Description,
		Image:       req.Image,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, status, categoryResponse{Category: buildCategoryPayload(category)})
}

func (h *CatalogHandlers) deleteCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeCatalogUnavailable(w, r)
		return
	}
	if err := h.catalog.DeleteCategory(ctx, chi.URLParam(r, "categoryID")); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeCatalogUnavailable(w http.ResponseWriter, r *http.Request) {
	httpx.WriteError(r.Context(), w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
}
