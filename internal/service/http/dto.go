package httpsvc

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/bulk-oms/internal/domain"
	"github.com/vladislavdragonenkov/bulk-oms/internal/service/ordering"
)

type placeOrderItemRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

type placeOrderRequest struct {
	BuyerName       string                  `json:"buyerName"`
	ContactInfo     string                  `json:"contactInfo"`
	DeliveryAddress string                  `json:"deliveryAddress"`
	Items           []placeOrderItemRequest `json:"items"`
}

func (r placeOrderRequest) toService() ordering.PlaceOrderRequest {
	lines := make([]domain.OrderLine, 0, len(r.Items))
	for _, item := range r.Items {
		lines = append(lines, domain.OrderLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return ordering.PlaceOrderRequest{
		BuyerName:       r.BuyerName,
		ContactInfo:     r.ContactInfo,
		DeliveryAddress: r.DeliveryAddress,
		Items:           lines,
	}
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type productRequest struct {
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type confirmationResponse struct {
	OrderID   int64     `json:"orderId"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

type orderItemResponse struct {
	ID        int64       `json:"id"`
	ProductID int64       `json:"productId"`
	Name      string      `json:"name"`
	UnitPrice json.Number `json:"unitPrice"`
	Quantity  int         `json:"quantity"`
}

type orderHeaderResponse struct {
	ID              int64     `json:"id"`
	BuyerName       string    `json:"buyerName"`
	ContactInfo     string    `json:"contactInfo"`
	DeliveryAddress string    `json:"deliveryAddress"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
}

type orderResponse struct {
	orderHeaderResponse
	Items []orderItemResponse `json:"items"`
}

type orderStatusResponse struct {
	OrderID int64  `json:"orderId"`
	Status  string `json:"status"`
}

type productResponse struct {
	ID        int64       `json:"id"`
	Name      string      `json:"name"`
	UnitPrice json.Number `json:"unitPrice"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// money печатает цену JSON-числом ровно с двумя знаками: 2.50, а не 2.5.
func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(domain.PriceScale))
}

func toConfirmation(c ordering.Confirmation) confirmationResponse {
	return confirmationResponse{
		OrderID:   c.OrderID,
		Status:    string(c.Status),
		CreatedAt: c.CreatedAt.UTC(),
	}
}

func toOrderHeader(o domain.Order) orderHeaderResponse {
	return orderHeaderResponse{
		ID:              o.ID,
		BuyerName:       o.BuyerName,
		ContactInfo:     o.ContactInfo,
		DeliveryAddress: o.DeliveryAddress,
		Status:          string(o.Status),
		CreatedAt:       o.CreatedAt.UTC(),
	}
}

func toOrder(o domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderItemResponse{
			ID:        item.ID,
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: money(item.UnitPrice),
			Quantity:  item.Quantity,
		})
	}
	return orderResponse{orderHeaderResponse: toOrderHeader(o), Items: items}
}

func toProduct(p domain.Product) productResponse {
	return productResponse{ID: p.ID, Name: p.Name, UnitPrice: money(p.UnitPrice)}
}
