package audit

import (
	"github.com/postdeskhq/postdesk/internal/audit/repository"
	"github.com/postdeskhq/postdesk/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
