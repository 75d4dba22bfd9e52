package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vibe-drinks/config"
	"vibe-drinks/models"
	"vibe-drinks/realtime"
	"vibe-drinks/services"
	"vibe-drinks/store"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type stubGeocoder struct {
	pt  *services.GeoPoint
	err error
}

func (g *stubGeocoder) Resolve(_ context.Context, _ services.AddressQuery) (*services.GeoPoint, error) {
	return g.pt, g.err
}

type testServer struct {
	r    *gin.Engine
	mem  *store.Memory
	auth *services.AuthService
	geo  *stubGeocoder
	b    *realtime.Broadcaster
}

func newTestServer(t *testing.T, secret string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	mem := store.NewMemory()
	b := realtime.NewBroadcaster(log)
	geo := &stubGeocoder{pt: &services.GeoPoint{Lat: -23.5613, Lng: -46.6565, DisplayName: "Avenida Paulista"}}
	delivery := services.NewDeliveryService(geo, services.DefaultZoneTable(), config.DeliveryConfig{
		StoreLat:      -23.5874,
		StoreLng:      -46.6576,
		RatePerKm:     2.5,
		MinFee:        5,
		MaxDistanceKm: 15,
		PrepMinutes:   15,
		MinutesPerKm:  3,
	}, log)
	auth := services.NewAuthService(mem, secret, time.Hour)

	r := gin.New()
	RegisterRoutes(r, Deps{
		Store:       mem,
		Orders:      services.NewOrderService(mem, b, log),
		Delivery:    delivery,
		Auth:        auth,
		Geocoder:    geo,
		Broadcaster: b,
		JWTSecret:   secret,
		Log:         log,
	})
	return &testServer{r: r, mem: mem, auth: auth, geo: geo, b: b}
}

func (s *testServer) token(t *testing.T, userID string, role models.Role) string {
	t.Helper()
	tok, err := s.auth.IssueToken(&models.User{ID: userID, Role: role})
	require.NoError(t, err)
	return tok
}

type envelope struct {
	OK              bool            `json:"ok"`
	Data            json.RawMessage `json:"data"`
	Error           string          `json:"error"`
	CurrentStatus   string          `json:"currentStatus"`
	RequestedStatus string          `json:"requestedStatus"`
	Allowed         []string        `json:"allowed"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.r.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func decodeOrder(t *testing.T, env envelope) models.Order {
	t.Helper()
	var o models.Order
	require.NoError(t, json.Unmarshal(env.Data, &o))
	return o
}

func counterOrder() gin.H {
	return gin.H{
		"orderType":     "counter",
		"paymentMethod": "pix",
		"items": []gin.H{
			{"productName": "Gin Tônica", "quantity": 2, "unitPrice": 32.5},
		},
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, "")
	code, env := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.OK)
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t, "")

	code, env := s.do(t, http.MethodPost, "/orders", "", counterOrder())
	require.Equal(t, http.StatusCreated, code, env.Error)
	o := decodeOrder(t, env)
	assert.Equal(t, models.StatusPending, o.Status)
	assert.True(t, o.Total.Equal(decimal.RequireFromString("65")))
	assert.True(t, o.DeliveryFee.IsZero())

	code, env = s.do(t, http.MethodPatch, "/orders/"+o.ID+"/status", "", gin.H{"status": "accepted"})
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Equal(t, models.StatusAccepted, decodeOrder(t, env).Status)

	// A second accept from another terminal is rejected with the live status.
	code, env = s.do(t, http.MethodPatch, "/orders/"+o.ID+"/status", "", gin.H{"status": "accepted"})
	assert.Equal(t, http.StatusConflict, code)
	assert.False(t, env.OK)
	assert.Equal(t, "accepted", env.CurrentStatus)
	assert.Equal(t, "accepted", env.RequestedStatus)
	assert.Equal(t, []string{"preparing", "cancelled"}, env.Allowed)

	code, env = s.do(t, http.MethodGet, "/orders/"+o.ID, "", nil)
	require.Equal(t, http.StatusOK, code)
	got := decodeOrder(t, env)
	assert.NotNil(t, got.AcceptedAt)

	code, _ = s.do(t, http.MethodGet, "/orders/does-not-exist", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCreateOrderValidation(t *testing.T) {
	s := newTestServer(t, "")

	tests := []struct {
		name string
		body gin.H
		want int
	}{
		{"no items", gin.H{"orderType": "counter", "paymentMethod": "pix", "items": []gin.H{}}, http.StatusBadRequest},
		{"unknown source", gin.H{"source": "app", "orderType": "counter", "paymentMethod": "pix",
			"items": []gin.H{{"productName": "Água", "quantity": 1, "unitPrice": 5}}}, http.StatusBadRequest},
		{"unknown payment", gin.H{"orderType": "counter", "paymentMethod": "cheque",
			"items": []gin.H{{"productName": "Água", "quantity": 1, "unitPrice": 5}}}, http.StatusBadRequest},
		{"delivery without fee or address", gin.H{"orderType": "delivery", "paymentMethod": "pix",
			"items": []gin.H{{"productName": "Água", "quantity": 1, "unitPrice": 5}}}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		code, env := s.do(t, http.MethodPost, "/orders", "", tt.body)
		if code != tt.want {
			t.Errorf("%s: status = %d, want %d (%s)", tt.name, code, tt.want, env.Error)
		}
	}
}

func TestStaffRoutesRequireStaffToken(t *testing.T) {
	s := newTestServer(t, testSecret)

	code, _ := s.do(t, http.MethodGet, "/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = s.do(t, http.MethodGet, "/orders", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = s.do(t, http.MethodGet, "/orders", s.token(t, "c1", models.RoleCustomer), nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env := s.do(t, http.MethodGet, "/orders", s.token(t, "k1", models.RoleKitchen), nil)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestListOrdersFilters(t *testing.T) {
	s := newTestServer(t, "")

	_, env := s.do(t, http.MethodPost, "/orders", "", counterOrder())
	first := decodeOrder(t, env)
	s.do(t, http.MethodPost, "/orders", "", counterOrder())
	s.do(t, http.MethodPatch, "/orders/"+first.ID+"/status", "", gin.H{"status": "accepted"})

	code, env := s.do(t, http.MethodGet, "/orders?status=accepted,preparing", "", nil)
	require.Equal(t, http.StatusOK, code)
	var list []models.Order
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, first.ID, list[0].ID)

	code, _ = s.do(t, http.MethodGet, "/orders?status=arrived", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodGet, "/orders?limit=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestPointOfSaleOrdersNeedStaff(t *testing.T) {
	s := newTestServer(t, testSecret)
	body := counterOrder()
	body["source"] = "pos"

	code, _ := s.do(t, http.MethodPost, "/orders", "", body)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(t, http.MethodPost, "/orders", s.token(t, "c1", models.RoleCustomer), body)
	assert.Equal(t, http.StatusForbidden, code)

	code, env := s.do(t, http.MethodPost, "/orders", s.token(t, "p1", models.RolePOS), body)
	require.Equal(t, http.StatusCreated, code, env.Error)
	o := decodeOrder(t, env)
	assert.Equal(t, models.StatusAccepted, o.Status)
	assert.NotNil(t, o.AcceptedAt)
}

func TestDeliveryOrderPricedFromSavedAddress(t *testing.T) {
	s := newTestServer(t, testSecret)
	customer := s.token(t, "cust-1", models.RoleCustomer)

	code, env := s.do(t, http.MethodPost, "/addresses", customer, gin.H{
		"street":       "Avenida Paulista",
		"number":       "1000",
		"neighborhood": "Bela Vista",
		"city":         "São Paulo",
		"state":        "SP",
		"isDefault":    true,
	})
	require.Equal(t, http.StatusCreated, code, env.Error)
	var addr models.Address
	require.NoError(t, json.Unmarshal(env.Data, &addr))
	require.NotNil(t, addr.Lat)
	assert.Equal(t, -23.5613, *addr.Lat)
	assert.Equal(t, "cust-1", addr.UserID)

	body := gin.H{
		"orderType":     "delivery",
		"addressId":     addr.ID,
		"paymentMethod": "pix",
		"items":         []gin.H{{"productName": "Caipirinha", "quantity": 2, "unitPrice": 35}},
	}
	code, env = s.do(t, http.MethodPost, "/orders", customer, body)
	require.Equal(t, http.StatusCreated, code, env.Error)
	o := decodeOrder(t, env)
	assert.True(t, o.DeliveryFee.Equal(decimal.RequireFromString("7.25")), o.DeliveryFee.String())
	assert.True(t, o.Total.Equal(decimal.RequireFromString("77.25")), o.Total.String())
	require.NotNil(t, o.DeliveryDistance)
	assert.Equal(t, 2.90, *o.DeliveryDistance)
	require.NotNil(t, o.UserID)
	assert.Equal(t, "cust-1", *o.UserID)

	// Someone else's address is invisible.
	code, _ = s.do(t, http.MethodPost, "/orders", s.token(t, "cust-2", models.RoleCustomer), body)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = s.do(t, http.MethodPost, "/orders", "", body)
	assert.Equal(t, http.StatusNotFound, code)

	body["addressId"] = "6f1c2a52-0000-4000-8000-000000000000"
	code, _ = s.do(t, http.MethodPost, "/orders", s.token(t, "p1", models.RolePOS), body)
	assert.Equal(t, http.StatusNotFound, code)

	code, env = s.do(t, http.MethodGet, "/addresses", customer, nil)
	require.Equal(t, http.StatusOK, code)
	var list []models.Address
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 1)
}

func TestCheckoutDeliveryFeeIsQuoted(t *testing.T) {
	s := newTestServer(t, testSecret)
	items := []gin.H{{"productName": "Caipirinha", "quantity": 2, "unitPrice": 35}}

	code, env := s.do(t, http.MethodPost, "/orders", s.token(t, "cust-1", models.RoleCustomer), gin.H{
		"orderType":     "delivery",
		"paymentMethod": "pix",
		"deliveryFee":   0,
		"address":       gin.H{"street": "Avenida Paulista", "number": "1000", "neighborhood": "Bela Vista"},
		"items":         items,
	})
	require.Equal(t, http.StatusCreated, code, env.Error)
	o := decodeOrder(t, env)
	assert.True(t, o.DeliveryFee.Equal(decimal.RequireFromString("7.25")), o.DeliveryFee.String())
	assert.True(t, o.Total.Equal(decimal.RequireFromString("77.25")), o.Total.String())

	code, env = s.do(t, http.MethodPost, "/orders", "", gin.H{
		"orderType":     "delivery",
		"paymentMethod": "pix",
		"deliveryFee":   0,
		"items":         items,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, code, env.Error)

	s.geo.pt, s.geo.err = nil, services.ErrGeocodeUnresolved
	code, env = s.do(t, http.MethodPost, "/orders", "", gin.H{
		"orderType":     "delivery",
		"paymentMethod": "pix",
		"deliveryFee":   0,
		"address":       gin.H{"street": "Rua Sem Nome", "neighborhood": "Nowhere"},
		"items":         items,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, env.Error, "taxa de entrega")
	list, err := s.mem.ListOrders(context.Background(), models.OrderFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCreateOrderRejectsMalformedProductID(t *testing.T) {
	s := newTestServer(t, "")
	body := counterOrder()
	body["items"] = []gin.H{{"productId": "sku-42", "productName": "Gin Tônica", "quantity": 1, "unitPrice": 32.5}}

	code, env := s.do(t, http.MethodPost, "/orders", "", body)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, env.Error, "productId")

	body["items"] = []gin.H{{"productId": "0b6f2d7e-4c1a-4f0e-9d55-3a1b2c3d4e5f", "productName": "Gin Tônica", "quantity": 1, "unitPrice": 32.5}}
	code, env = s.do(t, http.MethodPost, "/orders", "", body)
	assert.Equal(t, http.StatusCreated, code, env.Error)
}

func TestDeliveryCalculate(t *testing.T) {
	s := newTestServer(t, "")

	code, env := s.do(t, http.MethodPost, "/delivery/calculate", "", gin.H{"street": "Avenida Paulista", "number": "1000"})
	require.Equal(t, http.StatusOK, code, env.Error)
	var q map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &q))
	assert.Equal(t, 2.9, q["distanciaKm"])
	assert.Equal(t, 7.25, q["taxaEntrega"])
	assert.Equal(t, float64(24), q["tempoEstimadoMinutos"])
	assert.Equal(t, -23.5613, q["clienteLat"])
	assert.Equal(t, true, q["dentroDoRaio"])
	assert.Equal(t, "geocode", q["fonte"])

	s.geo.pt, s.geo.err = nil, services.ErrGeocodeUnresolved
	code, env = s.do(t, http.MethodPost, "/delivery/calculate", "", gin.H{"street": "Rua Domingos de Morais", "neighborhood": "vila mariana"})
	require.Equal(t, http.StatusOK, code, env.Error)
	q = nil
	require.NoError(t, json.Unmarshal(env.Data, &q))
	assert.Nil(t, q["distanciaKm"])
	assert.Equal(t, 8.9, q["taxaEntrega"])
	assert.Equal(t, "zone", q["fonte"])
	assert.Equal(t, "B", q["zona"])

	code, env = s.do(t, http.MethodPost, "/delivery/calculate", "", gin.H{"street": "Rua Sem Nome", "neighborhood": "Atlântida"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, env.Error, "taxa de entrega")

	code, _ = s.do(t, http.MethodPost, "/delivery/calculate", "", gin.H{})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestLogin(t *testing.T) {
	s := newTestServer(t, testSecret)
	_, _, err := s.auth.Register(context.Background(), services.RegisterInput{
		Name: "Cozinha", Whatsapp: "+55 (11) 91234-5678", Role: models.RoleKitchen, Password: "segredo123",
	})
	require.NoError(t, err)

	code, env := s.do(t, http.MethodPost, "/auth/login", "", gin.H{"whatsapp": "5511912345678", "password": "segredo123"})
	require.Equal(t, http.StatusOK, code, env.Error)
	var res struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, models.RoleKitchen, res.User.Role)

	code, _ = s.do(t, http.MethodGet, "/orders", res.Token, nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = s.do(t, http.MethodPost, "/auth/login", "", gin.H{"whatsapp": "5511912345678", "password": "errada"})
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestLoginReturnsLinkedMotoboy(t *testing.T) {
	s := newTestServer(t, testSecret)
	u, _, err := s.auth.Register(context.Background(), services.RegisterInput{
		Name: "Rafa", Whatsapp: "11988887777", Role: models.RoleMotoboy, Password: "moto1234",
	})
	require.NoError(t, err)
	m, err := s.mem.GetMotoboyByUserID(context.Background(), u.ID)
	require.NoError(t, err)

	code, env := s.do(t, http.MethodPost, "/auth/login", "", gin.H{"whatsapp": "11988887777", "password": "moto1234"})
	require.Equal(t, http.StatusOK, code, env.Error)
	var res struct {
		Token     string `json:"token"`
		MotoboyID string `json:"motoboyId"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, m.ID, res.MotoboyID)

	// Other roles carry no courier id.
	_, _, err = s.auth.Register(context.Background(), services.RegisterInput{
		Name: "Caixa", Whatsapp: "11955554444", Role: models.RolePOS, Password: "caixa1234",
	})
	require.NoError(t, err)
	code, env = s.do(t, http.MethodPost, "/auth/login", "", gin.H{"whatsapp": "11955554444", "password": "caixa1234"})
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.NotContains(t, string(env.Data), "motoboyId")
}

func TestAssignAndAdjustFee(t *testing.T) {
	s := newTestServer(t, testSecret)
	admin := s.token(t, "a1", models.RoleAdmin)
	kitchen := s.token(t, "k1", models.RoleKitchen)

	m := &models.Motoboy{Name: "Rafa", Whatsapp: "11988887777", Active: true}
	require.NoError(t, s.mem.CreateMotoboy(context.Background(), m))

	code, env := s.do(t, http.MethodPost, "/orders", s.token(t, "p1", models.RolePOS), gin.H{
		"orderType":        "delivery",
		"paymentMethod":    "cash",
		"changeFor":        100,
		"deliveryFee":      8.90,
		"deliveryDistance": 3.4,
		"items":            []gin.H{{"productName": "Caipirinha", "quantity": 2, "unitPrice": 35}},
	})
	require.Equal(t, http.StatusCreated, code, env.Error)
	o := decodeOrder(t, env)

	code, _ = s.do(t, http.MethodPatch, "/orders/"+o.ID+"/delivery-fee", kitchen, gin.H{"deliveryFee": 5})
	assert.Equal(t, http.StatusForbidden, code)

	code, env = s.do(t, http.MethodPatch, "/orders/"+o.ID+"/delivery-fee", admin, gin.H{"deliveryFee": 5})
	require.Equal(t, http.StatusOK, code, env.Error)
	adjusted := decodeOrder(t, env)
	assert.True(t, adjusted.Total.Equal(decimal.RequireFromString("75")))
	require.NotNil(t, adjusted.OriginalDeliveryFee)
	assert.True(t, adjusted.OriginalDeliveryFee.Equal(decimal.RequireFromString("8.9")))

	code, _ = s.do(t, http.MethodPatch, "/orders/"+o.ID+"/delivery-fee", admin, gin.H{"deliveryFee": 4})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = s.do(t, http.MethodPatch, "/orders/"+o.ID+"/assign", kitchen, gin.H{"motoboyId": m.ID})
	assert.Equal(t, http.StatusConflict, code)

	for _, st := range []string{"accepted", "preparing", "ready"} {
		code, env = s.do(t, http.MethodPatch, "/orders/"+o.ID+"/status", kitchen, gin.H{"status": st})
		require.Equal(t, http.StatusOK, code, env.Error)
	}

	code, _ = s.do(t, http.MethodPatch, "/orders/"+o.ID+"/assign", kitchen, gin.H{"motoboyId": "nobody"})
	assert.Equal(t, http.StatusNotFound, code)

	code, env = s.do(t, http.MethodPatch, "/orders/"+o.ID+"/assign", kitchen, gin.H{"motoboyId": m.ID})
	require.Equal(t, http.StatusOK, code, env.Error)
	dispatched := decodeOrder(t, env)
	assert.Equal(t, models.StatusDispatched, dispatched.Status)
	require.NotNil(t, dispatched.MotoboyID)
	assert.Equal(t, m.ID, *dispatched.MotoboyID)
	assert.NotNil(t, dispatched.DispatchedAt)

	history := s.mem.History(o.ID)
	require.NotEmpty(t, history)
	last := history[len(history)-1]
	require.NotNil(t, last.ActorID)
	assert.Equal(t, "k1", *last.ActorID)
}

func TestEventStreamCarriesOrderEvents(t *testing.T) {
	s := newTestServer(t, "")
	srv := httptest.NewServer(s.r)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, "text/event-stream", res.Header.Get("Content-Type"))

	frames := make(chan realtime.Frame, 8)
	go func() {
		_ = realtime.ReadFrames(res.Body, func(f realtime.Frame) { frames <- f })
	}()

	next := func() realtime.Frame {
		select {
		case f := <-frames:
			return f
		case <-time.After(2 * time.Second):
			t.Fatal("no frame received")
			return realtime.Frame{}
		}
	}

	assert.Equal(t, realtime.EventConnected, next().Event)

	code, env := s.do(t, http.MethodPost, "/orders", "", counterOrder())
	require.Equal(t, http.StatusCreated, code)
	o := decodeOrder(t, env)

	f := next()
	require.Equal(t, realtime.EventOrderCreated, f.Event)
	var p realtime.OrderCreatedPayload
	require.NoError(t, f.Decode(&p))
	assert.Equal(t, o.ID, p.OrderID)
	assert.Equal(t, models.StatusPending, p.Status)
}
