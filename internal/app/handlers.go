package app

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/atlasgraph-backend/internal/handlers"
	"github.com/yungbote/atlasgraph-backend/internal/middleware"
	"github.com/yungbote/atlasgraph-backend/internal/platform/logger"
	"github.com/yungbote/atlasgraph-backend/internal/server"
)

type Middleware struct {
	Tenant *middleware.TenantMiddleware
}

type Handlers struct {
	Proposal *handlers.ProposalHandler
}

func wireHandlers(log *logger.Logger, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Proposal: handlers.NewProposalHandler(log, services.Proposal),
	}
}

func wireMiddleware(log *logger.Logger) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Tenant: middleware.NewTenantMiddleware(log),
	}
}

func wireRouter(h Handlers, mw Middleware) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		ProposalHandler:  h.Proposal,
		TenantMiddleware: mw.Tenant,
	})
}
