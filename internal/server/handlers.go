package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/optiview/adminrelay/internal/engine"
	"github.com/optiview/adminrelay/internal/models"
)

// userKey is the gin-context key holding the authenticated user id.
const userKey = "adminrelay_user"

// userIdentity resolves the caller identity set by the upstream auth layer.
// Requests without one are rejected before any orchestration work.
func userIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.GetHeader("X-User-Id")
		if user == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

// formsRequest is the bulk-create / bulk-update payload.
type formsRequest[D any] struct {
	Forms []D `json:"forms" binding:"required"`
}

// namesRequest is the bulk-delete payload.
type namesRequest struct {
	Names []string `json:"names" binding:"required"`
}

// mutate builds a create or update handler for one resource type.
func mutate[D any](eng *engine.Engine, a engine.Adapter[D], op models.Operation) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req formsRequest[D]
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request: " + err.Error()})
			return
		}
		resp := engine.Run(c.Request.Context(), eng, a, c.GetString(userKey), op, req.Forms)
		c.JSON(statusFor(resp), resp)
	}
}

// remove builds a delete handler for one resource type. Deletes are addressed
// by remote name; fromName lifts each into the resource's descriptor.
func remove[D any](eng *engine.Engine, a engine.Adapter[D], fromName func(string) D) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req namesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request: " + err.Error()})
			return
		}
		forms := make([]D, 0, len(req.Names))
		for _, name := range req.Names {
			forms = append(forms, fromName(name))
		}
		resp := engine.Run(c.Request.Context(), eng, a, c.GetString(userKey), models.OpDelete, forms)
		c.JSON(statusFor(resp), resp)
	}
}

// statusFor maps a batch verdict to an HTTP status. Partial and classified
// failures still carry the full body; only the code varies.
func statusFor(resp *models.BatchResponse) int {
	switch {
	case resp.Success:
		return http.StatusOK
	case resp.NotFoundError:
		return http.StatusNotFound
	case resp.LimitReached:
		return http.StatusForbidden
	default:
		return http.StatusUnprocessableEntity
	}
}

// bulk registers the three bulk operations for one resource type.
func bulk[D any](g *gin.RouterGroup, eng *engine.Engine, a engine.Adapter[D], fromName func(string) D) {
	r := g.Group("/" + a.Resource())
	r.POST("/bulk-create", mutate(eng, a, models.OpCreate))
	r.POST("/bulk-update", mutate(eng, a, models.OpUpdate))
	r.POST("/bulk-delete", remove(eng, a, fromName))
}

func registerRoutes(g *gin.RouterGroup, eng *engine.Engine) {
	bulk(g, eng, engine.Accounts{}, func(name string) models.AccountForm {
		return models.AccountForm{Name: name}
	})
	bulk(g, eng, engine.Properties{}, func(name string) models.PropertyForm {
		return models.PropertyForm{Name: name}
	})
	bulk(g, eng, engine.DataStreams{}, func(name string) models.DataStreamForm {
		return models.DataStreamForm{Name: name}
	})
	bulk(g, eng, engine.Audiences{}, func(name string) models.AudienceForm {
		return models.AudienceForm{Name: name}
	})
	bulk(g, eng, engine.CustomMetrics{}, func(name string) models.CustomMetricForm {
		return models.CustomMetricForm{Name: name}
	})
	bulk(g, eng, engine.KeyEvents{}, func(name string) models.KeyEventForm {
		return models.KeyEventForm{Name: name}
	})
	bulk(g, eng, engine.AdvertiserLinks{}, func(name string) models.AdvertiserLinkForm {
		return models.AdvertiserLinkForm{Name: name}
	})
}
