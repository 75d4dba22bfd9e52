package controllers

import (
	"log/slog"
	"strings"

	"vibe-drinks/middlewares"
	"vibe-drinks/models"
	"vibe-drinks/pkg/resp"
	"vibe-drinks/services"
	"vibe-drinks/store"

	"github.com/gin-gonic/gin"
)

type AddressController struct {
	addresses store.AddressStore
	geocoder  services.Geocoder
	log       *slog.Logger
}

func NewAddressController(addresses store.AddressStore, geocoder services.Geocoder, log *slog.Logger) *AddressController {
	return &AddressController{addresses: addresses, geocoder: geocoder, log: log}
}

type SaveAddressReq struct {
	Street       string `json:"street" binding:"required"`
	Number       string `json:"number"`
	Complement   string `json:"complement"`
	Neighborhood string `json:"neighborhood" binding:"required"`
	City         string `json:"city"`
	State        string `json:"state"`
	ZipCode      string `json:"zipCode"`
	IsDefault    bool   `json:"isDefault"`
}

// Create saves an address for the caller. Coordinates are filled in when the
// geocoder resolves it; an unresolved address is still saved.
func (ac *AddressController) Create(c *gin.Context) {
	userID := middlewares.CurrentUserID(c)
	if userID == "" {
		resp.Unauthorized(c, "login required")
		return
	}
	var req SaveAddressReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.BadRequest(c, err.Error())
		return
	}

	a := &models.Address{
		UserID:       userID,
		Street:       strings.TrimSpace(req.Street),
		Number:       strings.TrimSpace(req.Number),
		Complement:   strings.TrimSpace(req.Complement),
		Neighborhood: strings.TrimSpace(req.Neighborhood),
		City:         strings.TrimSpace(req.City),
		State:        strings.TrimSpace(req.State),
		ZipCode:      strings.TrimSpace(req.ZipCode),
		IsDefault:    req.IsDefault,
	}
	if ac.geocoder != nil {
		pt, err := ac.geocoder.Resolve(c.Request.Context(), services.AddressQuery{
			Street:       a.Street,
			Number:       a.Number,
			Neighborhood: a.Neighborhood,
			City:         a.City,
			State:        a.State,
		})
		if err != nil {
			ac.log.Info("address saved without coordinates", "userID", userID, "error", err)
		} else {
			a.Lat, a.Lng = &pt.Lat, &pt.Lng
		}
	}

	if err := ac.addresses.SaveAddress(c.Request.Context(), a); err != nil {
		respondError(c, err)
		return
	}
	resp.Created(c, a)
}

func (ac *AddressController) List(c *gin.Context) {
	userID := middlewares.CurrentUserID(c)
	if userID == "" {
		resp.Unauthorized(c, "login required")
		return
	}
	list, err := ac.addresses.ListAddresses(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if list == nil {
		list = []models.Address{}
	}
	resp.OK(c, list)
}
