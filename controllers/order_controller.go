package controllers

import (
	"strconv"
	"strings"

	"vibe-drinks/middlewares"
	"vibe-drinks/models"
	"vibe-drinks/pkg/resp"
	"vibe-drinks/services"
	"vibe-drinks/store"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type OrderController struct {
	orders    *services.OrderService
	delivery  *services.DeliveryService
	addresses store.AddressStore
}

func NewOrderController(orders *services.OrderService, delivery *services.DeliveryService, addresses store.AddressStore) *OrderController {
	return &OrderController{orders: orders, delivery: delivery, addresses: addresses}
}

// ===== Create =====

type OrderItemIn struct {
	ProductID   *string         `json:"productId"`
	ProductName string          `json:"productName" binding:"required"`
	Quantity    int             `json:"quantity" binding:"required,min=1"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

type CreateOrderReq struct {
	Source    models.OrderSource `json:"source"`
	OrderType models.OrderType   `json:"orderType" binding:"required"`
	AddressID *string            `json:"addressId"`
	// Address is an unsaved delivery address, priced like a saved one.
	Address          *services.AddressQuery `json:"address"`
	Items            []OrderItemIn          `json:"items" binding:"required,min=1,dive"`
	Discount         decimal.Decimal        `json:"discount"`
	DeliveryFee      *decimal.Decimal       `json:"deliveryFee"` // staff only
	DeliveryDistance *float64               `json:"deliveryDistance"`
	PaymentMethod    models.PaymentMethod   `json:"paymentMethod" binding:"required"`
	ChangeFor        *decimal.Decimal       `json:"changeFor"`
	Notes            string                 `json:"notes"`
}

func (oc *OrderController) Create(c *gin.Context) {
	var req CreateOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.BadRequest(c, err.Error())
		return
	}
	if req.Source == "" {
		req.Source = models.SourceCheckout
	}
	if req.Source != models.SourceCheckout && req.Source != models.SourcePOS {
		resp.BadRequest(c, "source must be checkout or pos")
		return
	}
	staff := middlewares.IsStaff(c)
	if req.Source == models.SourcePOS && !staff {
		resp.Forbidden(c, "point of sale orders require a staff account")
		return
	}

	in := models.CreateOrderInput{
		Source:           req.Source,
		AddressID:        req.AddressID,
		OrderType:        req.OrderType,
		Discount:         req.Discount,
		DeliveryFee:      req.DeliveryFee,
		DeliveryDistance: req.DeliveryDistance,
		PaymentMethod:    req.PaymentMethod,
		ChangeFor:        req.ChangeFor,
		Notes:            strings.TrimSpace(req.Notes),
	}
	if uid := middlewares.CurrentUserID(c); uid != "" {
		in.UserID = &uid
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, models.OrderItemInput{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		})
	}

	// Only staff may set a fee by hand; customers are always quoted.
	if !staff {
		in.DeliveryFee, in.DeliveryDistance = nil, nil
	}

	query := req.Address
	if in.AddressID != nil {
		addr, err := oc.callerAddress(c, *in.AddressID, in.UserID, staff)
		if err != nil {
			respondError(c, err)
			return
		}
		query = &services.AddressQuery{
			Street:       addr.Street,
			Number:       addr.Number,
			Neighborhood: addr.Neighborhood,
			City:         addr.City,
			State:        addr.State,
		}
	}

	if in.OrderType == models.OrderTypeDelivery && in.DeliveryFee == nil && query != nil {
		q, err := oc.delivery.Quote(c.Request.Context(), *query)
		if err != nil {
			respondError(c, err)
			return
		}
		fee := decimal.NewFromFloat(q.Fee).Round(2)
		in.DeliveryFee = &fee
		in.DeliveryDistance = q.DistanceKm
	}

	o, err := oc.orders.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	resp.Created(c, o)
}

// callerAddress loads a saved address the caller may order to: their own,
// or any address when staff take the order.
func (oc *OrderController) callerAddress(c *gin.Context, id string, userID *string, staff bool) (*models.Address, error) {
	addr, err := oc.addresses.GetAddress(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if staff {
		return addr, nil
	}
	if userID == nil || addr.UserID != *userID {
		return nil, store.ErrNotFound
	}
	return addr, nil
}

// ===== Read =====

func (oc *OrderController) Detail(c *gin.Context) {
	o, err := oc.orders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	resp.OK(c, o)
}

// List accepts ?status=ready,dispatched&userId=&motoboyId=&limit=
func (oc *OrderController) List(c *gin.Context) {
	var f models.OrderFilter
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				f.Statuses = append(f.Statuses, models.OrderStatus(s))
			}
		}
	}
	f.UserID = c.Query("userId")
	f.MotoboyID = c.Query("motoboyId")
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			resp.BadRequest(c, "limit must be a non-negative integer")
			return
		}
		f.Limit = n
	}

	orders, err := oc.orders.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	resp.OK(c, orders)
}

// ===== Lifecycle =====

type UpdateStatusReq struct {
	Status models.OrderStatus `json:"status" binding:"required"`
}

func (oc *OrderController) UpdateStatus(c *gin.Context) {
	var req UpdateStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.BadRequest(c, err.Error())
		return
	}
	ctx := services.WithActor(c.Request.Context(), middlewares.CurrentUserID(c))
	o, err := oc.orders.Transition(ctx, c.Param("id"), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	resp.OK(c, o)
}

type AssignReq struct {
	MotoboyID string `json:"motoboyId" binding:"required"`
}

func (oc *OrderController) Assign(c *gin.Context) {
	var req AssignReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.BadRequest(c, err.Error())
		return
	}
	ctx := services.WithActor(c.Request.Context(), middlewares.CurrentUserID(c))
	o, err := oc.orders.Assign(ctx, c.Param("id"), req.MotoboyID)
	if err != nil {
		respondError(c, err)
		return
	}
	resp.OK(c, o)
}

type AdjustFeeReq struct {
	DeliveryFee *decimal.Decimal `json:"deliveryFee" binding:"required"`
}

func (oc *OrderController) AdjustDeliveryFee(c *gin.Context) {
	var req AdjustFeeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.BadRequest(c, err.Error())
		return
	}
	o, err := oc.orders.AdjustDeliveryFee(c.Request.Context(), c.Param("id"), *req.DeliveryFee)
	if err != nil {
		respondError(c, err)
		return
	}
	resp.OK(c, o)
}
