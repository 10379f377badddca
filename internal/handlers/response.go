package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/onegreenvn/green-outreach-services-backend/internal/apperrors"
	"github.com/onegreenvn/green-outreach-services-backend/internal/middleware"
)

// tenantID returns the tenant set by the tenant auth middleware
func tenantID(c *gin.Context) string {
	return c.MustGet(middleware.TenantIDKey).(string)
}

// respondError writes err with the status its kind maps to. Unclassified
// errors are logged and reported with the fallback message.
func respondError(c *gin.Context, err error, fallback string) {
	status := apperrors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		logrus.WithField("path", c.FullPath()).Errorf("%s: %v", fallback, err)
		c.JSON(status, gin.H{"error": fallback, "details": err.Error()})
		return
	}

	body := gin.H{"error": err.Error(), "kind": apperrors.KindOf(err)}
	var funds *apperrors.InsufficientFundsError
	if errors.As(err, &funds) {
		body["required"] = funds.Required
		body["available"] = funds.Available
	}
	c.JSON(status, body)
}
