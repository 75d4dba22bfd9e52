package controllers

import (
	"errors"

	"vibe-drinks/models"
	"vibe-drinks/pkg/resp"
	"vibe-drinks/services"
	"vibe-drinks/store"

	"github.com/gin-gonic/gin"
)

type AuthController struct {
	auth *services.AuthService
}

func NewAuthController(auth *services.AuthService) *AuthController {
	return &AuthController{auth: auth}
}

type LoginReq struct {
	Whatsapp string `json:"whatsapp" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (ac *AuthController) Login(c *gin.Context) {
	var req LoginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.BadRequest(c, err.Error())
		return
	}

	token, user, err := ac.auth.Login(c.Request.Context(), req.Whatsapp, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	out := gin.H{"token": token, "user": user}
	if user.Role == models.RoleMotoboy {
		m, err := ac.auth.MotoboyForUser(c.Request.Context(), user)
		switch {
		case err == nil:
			out["motoboyId"] = m.ID
		case !errors.Is(err, store.ErrNotFound):
			respondError(c, err)
			return
		}
	}
	resp.OK(c, out)
}
