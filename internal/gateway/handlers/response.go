package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"performa-system/internal/auth"
	"performa-system/internal/errs"
	"performa-system/internal/gateway/middleware"
	"performa-system/internal/identity"
)

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func successResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	}
}

func errorResponse(message string) APIResponse {
	return APIResponse{
		Success: false,
		Message: message,
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(errs.HTTPStatus(err), errorResponse(err.Error()))
}

// resolveActor turns the request's verified claims into a full acting
// identity. Responds and returns false when the identity cannot be resolved.
func resolveActor(c *gin.Context, resolver *identity.Resolver) (auth.Actor, bool) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("missing authentication claims"))
		return auth.Actor{}, false
	}
	actor, err := resolver.Actor(c.Request.Context(), claims)
	if err != nil {
		respondError(c, err)
		return auth.Actor{}, false
	}
	return actor, true
}
