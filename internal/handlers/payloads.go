package handlers

import (
	"github.com/Rushan-dev/jeyani-gift-shop/internal/services"
)

type userPayload struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Email     string   `json:"email"`
	Phone     string   `json:"phone,omitempty"`
	PhotoURL  string   `json:"photoUrl,omitempty"`
	Role      string   `json:"role"`
	Wishlist  []string `json:"wishlist"`
	CreatedAt string   `json:"createdAt,omitempty"`
}

func buildUserPayload(user services.User) userPayload {
	wishlist := user.Wishlist
	if wishlist == nil {
		wishlist = []string{}
	}
	return userPayload{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Phone:     user.Phone,
		PhotoURL:  user.PhotoURL,
		Role:      user.Role,
		Wishlist:  wishlist,
		CreatedAt: formatTime(user.CreatedAt),
	}
}

type productPayload struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	CategoryID    string   `json:"categoryId"`
	Images        []string `json:"images"`
	OriginalPrice int64    `json:"originalPrice"`
	DiscountPrice *int64   `json:"discountPrice,omitempty"`
	Price         int64    `json:"price"`
	ShippingFee   int64    `json:"shippingFee"`
	Stock         int      `json:"stock"`
	InStock       bool     `json:"inStock"`
	Rating        float64  `json:"rating"`
	NumReviews    int      `json:"numReviews"`
	CreatedAt     string   `json:"createdAt,omitempty"`
	UpdatedAt     string   `json:"updatedAt,omitempty"`
}

func buildProductPayload(p services.Product) productPayload {
	images := p.Images
	if images == nil {
		images = []string{}
	}
	return productPayload{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		CategoryID:    p.CategoryID,
		Images:        images,
		OriginalPrice: p.OriginalPrice,
		DiscountPrice: p.DiscountPrice,
		Price:         p.UnitPrice(),
		ShippingFee:   p.ShippingFee,
		Stock:         p.Stock,
		InStock:       p.Stock > 0,
		Rating:        p.Rating,
		NumReviews:    p.NumReviews,
		CreatedAt:     formatTime(p.CreatedAt),
		UpdatedAt:     formatTime(p.UpdatedAt),
	}
}

func buildProductPayloads(products []services.Product) []productPayload {
	out := make([]productPayload, 0, len(products))
	for _, p := range products {
		out = append(out, buildProductPayload(p))
	}
	return out
}

type categoryPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
}

func buildCategoryPayload(c services.Category) categoryPayload {
	return categoryPayload{
		ID:          c.ID,
		Name:        c.Name,
		Slug:        c.Slug,
		Description: c.Description,
		Image:       c.Image,
		CreatedAt:   formatTime(c.CreatedAt),
	}
}

type reviewPayload struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

func buildReviewPayload(r services.Review) reviewPayload {
	return reviewPayload{
		ID:        r.ID,
		ProductID: r.ProductID,
		UserID:    r.UserID,
		UserName:  r.UserName,
		Rating:    r.Rating,
		Comment:   r.Comment,
		CreatedAt: formatTime(r.CreatedAt),
		UpdatedAt: formatTime(r.UpdatedAt),
	}
}

type cartPayload struct {
	UserID     string            `json:"userId"`
	Items      []cartItemPayload `json:"items"`
	ItemsCount int               `json:"itemsCount"`
	Subtotal   int64             `json:"subtotal"`
	UpdatedAt  string            `json:"updatedAt,omitempty"`
}

type cartItemPayload struct {
	ID        string              `json:"id"`
	ProductID string              `json:"productId"`
	Quantity  int                 `json:"quantity"`
	AddedAt   string              `json:"addedAt,omitempty"`
	LineTotal int64               `json:"lineTotal"`
	Product   *cartProductPayload `json:"product"`
}

type cartProductPayload struct {
	Name        string `json:"name"`
	Price       int64  `json:"price"`
	Image       string `json:"image,omitempty"`
	Stock       int    `json:"stock"`
	ShippingFee int64  `json:"shippingFee"`
}

func buildCartPayload(cart services.CartView) cartPayload {
	payload := cartPayload{
		UserID:    cart.UserID,
		Items:     make([]cartItemPayload, 0, len(cart.Items)),
		Subtotal:  cart.Subtotal,
		UpdatedAt: formatTime(cart.UpdatedAt),
	}
	for _, line := range cart.Items {
		item := cartItemPayload{
			ID:        line.Item.ID,
			ProductID: line.Item.ProductID,
			Quantity:  line.Item.Quantity,
			AddedAt:   formatTime(line.Item.AddedAt),
		}
		if p := line.Product; p != nil {
			item.Product = &cartProductPayload{
				Name:        p.Name,
				Price:       p.UnitPrice(),
				Stock:       p.Stock,
				ShippingFee: p.ShippingFee,
			}
			if len(p.Images) > 0 {
				item.Product.Image = p.Images[0]
			}
			item.LineTotal = p.UnitPrice() * int64(line.Item.Quantity)
		}
		payload.ItemsCount += line.Item.Quantity
		payload.Items = append(payload.Items, item)
	}
	return payload
}

type orderPayload struct {
	ID               string                 `json:"id"`
	Reference        string                 `json:"reference"`
	UserID           string                 `json:"userId"`
	Items            []orderItemPayload     `json:"items"`
	ShippingAddress  shippingAddressPayload `json:"shippingAddress"`
	PaymentMethod    string                 `json:"paymentMethod"`
	PaymentStatus    string                 `json:"paymentStatus"`
	OrderStatus      string                 `json:"orderStatus"`
	Subtotal         int64                  `json:"subtotal"`
	ShippingFee      int64                  `json:"shippingFee"`
	TotalAmount      int64                  `json:"totalAmount"`
	PaymentSlipURL   string                 `json:"paymentSlipUrl,omitempty"`
	PaymentSessionID string                 `json:"paymentSessionId,omitempty"`
	TrackingNumber   string                 `json:"trackingNumber,omitempty"`
	TrackingHistory  []trackingEventPayload `json:"trackingHistory"`
	Finalized        bool                   `json:"finalized"`
	FinalizedAt      string                 `json:"finalizedAt,omitempty"`
	CreatedAt        string                 `json:"createdAt"`
	UpdatedAt        string                 `json:"updatedAt,omitempty"`
}

type orderItemPayload struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Image     string `json:"image,omitempty"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"`
	LineTotal int64  `json:"lineTotal"`
}

type shippingAddressPayload struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
}

type trackingEventPayload struct {
	Status      string `json:"status"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
	Timestamp   string `json:"timestamp"`
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:        order.ID,
		Reference: order.ShortID(),
		UserID:    order.UserID,
		Items:     make([]orderItemPayload, 0, len(order.Items)),
		ShippingAddress: shippingAddressPayload{
			Name:       order.ShippingAddress.Name,
			Phone:      order.ShippingAddress.Phone,
			Address:    order.ShippingAddress.Address,
			City:       order.ShippingAddress.City,
			PostalCode: order.ShippingAddress.PostalCode,
		},
		PaymentMethod:    string(order.PaymentMethod),
		PaymentStatus:    string(order.PaymentStatus),
		OrderStatus:      string(order.OrderStatus),
		Subtotal:         order.Subtotal,
		ShippingFee:      order.ShippingFee,
		TotalAmount:      order.TotalAmount,
		PaymentSlipURL:   order.PaymentSlipURL,
		PaymentSessionID: order.PaymentSessionID,
		TrackingNumber:   order.TrackingNumber,
		TrackingHistory:  make([]trackingEventPayload, 0, len(order.TrackingHistory)),
		Finalized:        order.Finalized,
		CreatedAt:        formatTime(order.CreatedAt),
		UpdatedAt:        formatTime(order.UpdatedAt),
	}
	if order.FinalizedAt != nil {
		payload.FinalizedAt = formatTime(*order.FinalizedAt)
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ProductID: item.ProductID,
			Name:      item.Name,
			Image:     item.Image,
			Quantity:  item.Quantity,
			Price:     item.Price,
			LineTotal: item.LineTotal(),
		})
	}
	for _, event := range order.TrackingHistory {
		payload.TrackingHistory = append(payload.TrackingHistory, trackingEventPayload{
			Status:      event.Status,
			Location:    event.Location,
			Description: event.Description,
			Timestamp:   formatTime(event.Timestamp),
		})
	}
	return payload
}

func buildOrderPayloads(orders []services.Order) []orderPayload {
	out := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		out = append(out, buildOrderPayload(order))
	}
	return out
}

type shippingFeePayload struct {
	Enabled   bool   `json:"enabled"`
	Amount    int64  `json:"amount"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

func buildShippingFeePayload(setting services.ShippingFeeSetting) shippingFeePayload {
	return shippingFeePayload{
		Enabled:   setting.Enabled,
		Amount:    setting.Amount,
		UpdatedAt: formatTime(setting.UpdatedAt),
	}
}
