package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"distributed-kvstore/internal/apierr"
)

// writeError maps err onto the shared error taxonomy's HTTP status and
// writes a uniform JSON envelope.
func writeError(c *gin.Context, err error) {
	kind := apierr.KindOf(err)
	c.JSON(statusFor(kind), gin.H{"error": err.Error()})
}

func statusFor(kind apierr.Kind) int {
	switch kind {
	case apierr.BadRequest:
		return http.StatusBadRequest
	case apierr.NotFound:
		return http.StatusNotFound
	case apierr.QuorumNotMet:
		return http.StatusServiceUnavailable
	case apierr.Unauthorized:
		return http.StatusUnauthorized
	case apierr.PayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case apierr.StorageUnavailable, apierr.ReplicaUnreachable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
