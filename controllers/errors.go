package controllers

import (
	"errors"

	"vibe-drinks/pkg/resp"
	"vibe-drinks/services"
	"vibe-drinks/store"

	"github.com/gin-gonic/gin"
)

const unresolvedDeliveryMsg = "não foi possível calcular a taxa de entrega para este endereço; confira o bairro ou peça ao atendente para aplicar a taxa mínima"

// respondError maps service errors onto the response envelope.
func respondError(c *gin.Context, err error) {
	var (
		ite *services.InvalidTransitionError
		ve  *services.ValidationError
	)
	switch {
	case errors.As(err, &ite):
		resp.Conflict(c, ite.Error(), gin.H{
			"currentStatus":   ite.Current,
			"requestedStatus": ite.Requested,
			"allowed":         ite.Allowed,
		})
	case errors.As(err, &ve):
		resp.BadRequest(c, ve.Error())
	case errors.Is(err, store.ErrNotFound):
		resp.NotFound(c, "not found")
	case errors.Is(err, services.ErrDeliveryUnresolved):
		resp.Unprocessable(c, unresolvedDeliveryMsg)
	case errors.Is(err, services.ErrMotoboyInactive):
		resp.Unprocessable(c, err.Error())
	case errors.Is(err, services.ErrFeeAlreadyAdjusted),
		errors.Is(err, services.ErrFeeNotAdjustable),
		errors.Is(err, store.ErrStaleStatus):
		resp.Conflict(c, err.Error(), nil)
	case errors.Is(err, store.ErrDuplicate):
		resp.Conflict(c, "already exists", nil)
	case errors.Is(err, services.ErrInvalidCredentials):
		resp.Unauthorized(c, err.Error())
	default:
		resp.ServerError(c, err)
	}
}
