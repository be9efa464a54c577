package tenant

import (
	"github.com/postdeskhq/postdesk/internal/tenant/repository"
	"github.com/postdeskhq/postdesk/internal/tenant/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tenant.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
