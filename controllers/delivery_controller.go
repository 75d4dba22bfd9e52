package controllers

import (
	"vibe-drinks/pkg/resp"
	"vibe-drinks/services"

	"github.com/gin-gonic/gin"
)

type DeliveryController struct {
	delivery *services.DeliveryService
}

func NewDeliveryController(delivery *services.DeliveryService) *DeliveryController {
	return &DeliveryController{delivery: delivery}
}

// QuoteRes keeps the field names the storefront already reads.
type QuoteRes struct {
	DistanceKm   *float64 `json:"distanciaKm"`
	Fee          float64  `json:"taxaEntrega"`
	ETAMinutes   int      `json:"tempoEstimadoMinutos"`
	Lat          *float64 `json:"clienteLat"`
	Lng          *float64 `json:"clienteLng"`
	WithinRange  bool     `json:"dentroDoRaio"`
	Source       string   `json:"fonte"`
	Zone         string   `json:"zona,omitempty"`
	ResolvedName string   `json:"enderecoEncontrado,omitempty"`
}

// Calculate handles POST /delivery/calculate.
func (dc *DeliveryController) Calculate(c *gin.Context) {
	var req services.AddressQuery
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.BadRequest(c, err.Error())
		return
	}

	q, err := dc.delivery.Quote(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	resp.OK(c, QuoteRes{
		DistanceKm:   q.DistanceKm,
		Fee:          q.Fee,
		ETAMinutes:   q.ETAMinutes,
		Lat:          q.Lat,
		Lng:          q.Lng,
		WithinRange:  q.WithinRange,
		Source:       string(q.Source),
		Zone:         q.Zone.Name,
		ResolvedName: q.DisplayName,
	})
}
