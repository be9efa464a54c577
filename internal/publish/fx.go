package publish

import (
	"github.com/postdeskhq/postdesk/internal/publish/repository"
	"github.com/postdeskhq/postdesk/internal/publish/service"
	"go.uber.org/fx"
)

var Module = fx.Module("publish.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
