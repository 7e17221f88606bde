package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/Rushan-dev/jeyani-gift-shop/internal/domain"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/platform/auth"
	"github.com/Rushan-dev/jeyani-gift-shop/internal/services"
)

var errStubNotConfigured = errors.New("stub not configured")

func withIdentity(req *http.Request, identity *auth.Identity) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

type stubCartService struct {
	getFunc    func(ctx context.Context, userID string) (services.CartView, error)
	addFunc    func(ctx context.Context, cmd services.AddCartItemCommand) (services.CartView, error)
	updateFunc func(ctx context.Context, cmd services.UpdateCartItemCommand) (services.CartView, error)
	removeFunc func(ctx context.Context, userID, itemID string) (services.CartView, error)
	clearFunc  func(ctx context.Context, userID string) error
}

func (s *stubCartService) GetCart(ctx context.Context, userID string) (services.CartView, error) {
	if s.getFunc == nil {
		return services.CartView{}, errStubNotConfigured
	}
	return s.getFunc(ctx, userID)
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.AddCartItemCommand) (services.CartView, error) {
	if s.addFunc == nil {
		return services.CartView{}, errStubNotConfigured
	}
	return s.addFunc(ctx, cmd)
}

func (s *stubCartService) UpdateItem(ctx context.Context, cmd services.UpdateCartItemCommand) (services.CartView, error) {
	if s.updateFunc == nil {
		return services.CartView{}, errStubNotConfigured
	}
	return s.updateFunc(ctx, cmd)
}

func (s *stubCartService) RemoveItem(ctx context.Context, userID, itemID string) (services.CartView, error) {
	if s.removeFunc == nil {
		return services.CartView{}, errStubNotConfigured
	}
	return s.removeFunc(ctx, userID, itemID)
}

func (s *stubCartService) ClearCart(ctx context.Context, userID string) error {
	if s.clearFunc == nil {
		return errStubNotConfigured
	}
	return s.clearFunc(ctx, userID)
}

type stubCheckoutService struct {
	createFunc func(ctx context.Context, cmd services.CreateOrderCommand) (services.CheckoutResult, error)
}

func (s *stubCheckoutService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (services.CheckoutResult, error) {
	if s.createFunc == nil {
		return services.CheckoutResult{}, errStubNotConfigured
	}
	return s.createFunc(ctx, cmd)
}

type stubPaymentReconciler struct {
	verifyFunc    func(ctx context.Context, cmd services.VerifyPaymentCommand) (services.PaymentVerification, error)
	webhookFunc   func(ctx context.Context, payload []byte, signature string) error
	reconcileFunc func(ctx context.Context, cmd services.ReconcilePendingCommand) (services.ReconcileSummary, error)
}

func (s *stubPaymentReconciler) VerifyAndFinalize(ctx context.Context, cmd services.VerifyPaymentCommand) (services.PaymentVerification, error) {
	if s.verifyFunc == nil {
		return services.PaymentVerification{}, errStubNotConfigured
	}
	return s.verifyFunc(ctx, cmd)
}

func (s *stubPaymentReconciler) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.webhookFunc == nil {
		return errStubNotConfigured
	}
	return s.webhookFunc(ctx, payload, signature)
}

func (s *stubPaymentReconciler) ReconcilePending(ctx context.Context, cmd services.ReconcilePendingCommand) (services.ReconcileSummary, error) {
	if s.reconcileFunc == nil {
		return services.ReconcileSummary{}, errStubNotConfigured
	}
	return s.reconcileFunc(ctx, cmd)
}

type stubOrderService struct {
	getFunc           func(ctx context.Context, viewer services.Viewer, orderID string) (services.Order, error)
	listUserFunc      func(ctx context.Context, userID string) ([]services.Order, error)
	listFunc          func(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error)
	slipFunc          func(ctx context.Context, cmd services.UploadPaymentSlipCommand) (services.Order, error)
	statusFunc        func(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error)
	paymentStatusFunc func(ctx context.Context, cmd services.UpdatePaymentStatusCommand) (services.Order, error)
	trackingFunc      func(ctx context.Context, cmd services.UpdateTrackingCommand) (services.Order, error)
}

func (s *stubOrderService) GetOrder(ctx context.Context, viewer services.Viewer, orderID string) (services.Order, error) {
	if s.getFunc == nil {
		return services.Order{}, errStubNotConfigured
	}
	return s.getFunc(ctx, viewer, orderID)
}

func (s *stubOrderService) ListUserOrders(ctx context.Context, userID string) ([]services.Order, error) {
	if s.listUserFunc == nil {
		return nil, errStubNotConfigured
	}
	return s.listUserFunc(ctx, userID)
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	if s.listFunc == nil {
		return domain.CursorPage[services.Order]{}, errStubNotConfigured
	}
	return s.listFunc(ctx, filter)
}

func (s *stubOrderService) UploadPaymentSlip(ctx context.Context, cmd services.UploadPaymentSlipCommand) (services.Order, error) {
	if s.slipFunc == nil {
		return services.Order{}, errStubNotConfigured
	}
	return s.slipFunc(ctx, cmd)
}

func (s *stubOrderService) UpdateOrderStatus(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
	if s.statusFunc == nil {
		return services.Order{}, errStubNotConfigured
	}
	return s.statusFunc(ctx, cmd)
}

func (s *stubOrderService) UpdatePaymentStatus(ctx context.Context, cmd services.UpdatePaymentStatusCommand) (services.Order, error) {
	if s.paymentStatusFunc == nil {
		return services.Order{}, errStubNotConfigured
	}
	return s.paymentStatusFunc(ctx, cmd)
}

func (s *stubOrderService) UpdateTracking(ctx context.Context, cmd services.UpdateTrackingCommand) (services.Order, error) {
	if s.trackingFunc == nil {
		return services.Order{}, errStubNotConfigured
	}
	return s.trackingFunc(ctx, cmd)
}

type stubCatalogService struct {
	listProductsFunc   func(ctx context.Context, filter services.ProductListFilter) (domain.CursorPage[services.Product], error)
	getProductFunc     func(ctx context.Context, productID string) (services.Product, error)
	createProductFunc  func(ctx context.Context, cmd services.UpsertProductCommand) (services.Product, error)
	updateProductFunc  func(ctx context.Context, cmd services.UpsertProductCommand) (services.Product, error)
	deleteProductFunc  func(ctx context.Context, productID string) error
	addImageFunc       func(ctx context.Context, cmd services.ProductImageCommand) (services.Product, error)
	listCategoriesFunc func(ctx context.Context) ([]services.Category, error)
	getCategoryFunc    func(ctx context.Context, slug string) (services.Category, error)
	createCategoryFunc func(ctx context.Context, cmd services.UpsertCategoryCommand) (services.Category, error)
	updateCategoryFunc func(ctx context.Context, cmd services.UpsertCategoryCommand) (services.Category, error)
	deleteCategoryFunc func(ctx context.Context, categoryID string) error
}

func (s *stubCatalogService) ListProducts(ctx context.Context, filter services.ProductListFilter) (domain.CursorPage[services.Product], error) {
	if s.listProductsFunc == nil {
		return domain.CursorPage[services.Product]{}, errStubNotConfigured
	}
	return s.listProductsFunc(ctx, filter)
}

func (s *stubCatalogService) GetProduct(ctx context.Context, productID string) (services.Product, error) {
	if s.getProductFunc == nil {
		return services.Product{}, errStubNotConfigured
	}
	return s.getProductFunc(ctx, productID)
}

func (s *stubCatalogService) CreateProduct(ctx context.Context, cmd services.UpsertProductCommand) (services.Product, error) {
	if s.createProductFunc == nil {
		return services.Product{}, errStubNotConfigured
	}
	return s.createProductFunc(ctx, cmd)
}

func (s *stubCatalogService) UpdateProduct(ctx context.Context, cmd services.UpsertProductCommand) (services.Product, error) {
	if s.updateProductFunc == nil {
		return services.Product{}, errStubNotConfigured
	}
	return s.updateProductFunc(ctx, cmd)
}

func (s *stubCatalogService) DeleteProduct(ctx context.Context, productID string) error {
	if s.deleteProductFunc == nil {
		return errStubNotConfigured
	}
	return s.deleteProductFunc(ctx, productID)
}

func (s *stubCatalogService) AddProductImage(ctx context.Context, cmd services.ProductImageCommand) (services.Product, error) {
	if s.addImageFunc == nil {
		return services.Product{}, errStubNotConfigured
	}
	return s.addImageFunc(ctx, cmd)
}

func (s *stubCatalogService) ListCategories(ctx context.Context) ([]services.Category, error) {
	if s.listCategoriesFunc == nil {
		return nil, errStubNotConfigured
	}
	return s.listCategoriesFunc(ctx)
}

func (s *stubCatalogService) GetCategoryBySlug(ctx context.Context, slug string) (services.Category, error) {
	if s.getCategoryFunc == nil {
		return services.Category{}, errStubNotConfigured
	}
	return s.getCategoryFunc(ctx, slug)
}

func (s *stubCatalogService) CreateCategory(ctx context.Context, cmd services.UpsertCategoryCommand) (services.Category, error) {
	if s.createCategoryFunc == nil {
		return services.Category{}, errStubNotConfigured
	}
	return s.createCategoryFunc(ctx, cmd)
}

func (s *stubCatalogService) UpdateCategory(ctx context.Context, cmd services.UpsertCategoryCommand) (services.Category, error) {
	if s.updateCategoryFunc == nil {
		return services.Category{}, errStubNotConfigured
	}
	return s.updateCategoryFunc(ctx, cmd)
}

func (s *stubCatalogService) DeleteCategory(ctx context.Context, categoryID string) error {
	if s.deleteCategoryFunc == nil {
		return errStubNotConfigured
	}
	return s.deleteCategoryFunc(ctx, categoryID)
}

type stubInventoryService struct {
	restockFunc func(ctx context.Context, cmd services.RestockCommand) (int, error)
}

func (s *stubInventoryService) CheckAvailability(context.Context, string, int) (bool, error) {
	return false, errStubNotConfigured
}

func (s *stubInventoryService) Decrement(context.Context, string, int) (int, error) {
	return 0, errStubNotConfigured
}

func (s *stubInventoryService) Restock(ctx context.Context, cmd services.RestockCommand) (int, error) {
	if s.restockFunc == nil {
		return 0, errStubNotConfigured
	}
	return s.restockFunc(ctx, cmd)
}

type stubReviewService struct {
	listFunc   func(ctx context.Context, productID string) ([]services.Review, error)
	createFunc func(ctx context.Context, cmd services.CreateReviewCommand) (services.Review, error)
	updateFunc func(ctx context.Context, cmd services.UpdateReviewCommand) (services.Review, error)
	deleteFunc func(ctx context.Context, cmd services.DeleteReviewCommand) error
}

func (s *stubReviewService) ListProductReviews(ctx context.Context, productID string) ([]services.Review, error) {
	if s.listFunc == nil {
		return nil, errStubNotConfigured
	}
	return s.listFunc(ctx, productID)
}

func (s *stubReviewService) CreateReview(ctx context.Context, cmd services.CreateReviewCommand) (services.Review, error) {
	if s.createFunc == nil {
		return services.Review{}, errStubNotConfigured
	}
	return s.createFunc(ctx, cmd)
}

func (s *stubReviewService) UpdateReview(ctx context.Context, cmd services.UpdateReviewCommand) (services.Review, error) {
	if s.updateFunc == nil {
		return services.Review{}, errStubNotConfigured
	}
	return s.updateFunc(ctx, cmd)
}

func (s *stubReviewService) DeleteReview(ctx context.Context, cmd services.DeleteReviewCommand) error {
	if s.deleteFunc == nil {
		return errStubNotConfigured
	}
	return s.deleteFunc(ctx, cmd)
}

type stubUserService struct {
	registerFunc       func(ctx context.Context, cmd services.RegisterUserCommand) (services.User, error)
	loginFunc          func(ctx context.Context, cmd services.RegisterUserCommand) (services.User, error)
	profileFunc        func(ctx context.Context, userID string) (services.User, error)
	wishlistFunc       func(ctx context.Context, userID string) ([]services.Product, error)
	addWishlistFunc    func(ctx context.Context, userID, productID string) ([]services.Product, error)
	removeWishlistFunc func(ctx context.Context, userID, productID string) ([]services.Product, error)
}

func (s *stubUserService) Register(ctx context.Context, cmd services.RegisterUserCommand) (services.User, error) {
	if s.registerFunc == nil {
		return services.User{}, errStubNotConfigured
	}
	return s.registerFunc(ctx, cmd)
}

func (s *stubUserService) Login(ctx context.Context, cmd services.RegisterUserCommand) (services.User, error) {
	if s.loginFunc == nil {
		return services.User{}, errStubNotConfigured
	}
	return s.loginFunc(ctx, cmd)
}

func (s *stubUserService) GetProfile(ctx context.Context, userID string) (services.User, error) {
	if s.profileFunc == nil {
		return services.User{}, errStubNotConfigured
	}
	return s.profileFunc(ctx, userID)
}

func (s *stubUserService) GetWishlist(ctx context.Context, userID string) ([]services.Product, error) {
	if s.wishlistFunc == nil {
		return nil, errStubNotConfigured
	}
	return s.wishlistFunc(ctx, userID)
}

func (s *stubUserService) AddToWishlist(ctx context.Context, userID, productID string) ([]services.Product, error) {
	if s.addWishlistFunc == nil {
		return nil, errStubNotConfigured
	}
	return s.addWishlistFunc(ctx, userID, productID)
}

func (s *stubUserService) RemoveFromWishlist(ctx context.Context, userID, productID string) ([]services.Product, error) {
	if s.removeWishlistFunc == nil {
		return nil, errStubNotConfigured
	}
	return s.removeWishlistFunc(ctx, userID, productID)
}

type stubSettingsService struct {
	getFunc    func(ctx context.Context) (services.ShippingFeeSetting, error)
	updateFunc func(ctx context.Context, cmd services.UpdateShippingFeeCommand) (services.ShippingFeeSetting, error)
}

func (s *stubSettingsService) ShippingFee(ctx context.Context) (services.ShippingFeeSetting, error) {
	if s.getFunc == nil {
		return services.ShippingFeeSetting{}, errStubNotConfigured
	}
	return s.getFunc(ctx)
}

func (s *stubSettingsService) UpdateShippingFee(ctx context.Context, cmd services.UpdateShippingFeeCommand) (services.ShippingFeeSetting, error) {
	if s.updateFunc == nil {
		return services.ShippingFeeSetting{}, errStubNotConfigured
	}
	return s.updateFunc(ctx, cmd)
}
