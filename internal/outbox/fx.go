package outbox

import (
	"github.com/postdeskhq/postdesk/internal/outbox/dispatcher"
	"github.com/postdeskhq/postdesk/internal/outbox/domain"
	"github.com/postdeskhq/postdesk/internal/outbox/repository"
	"github.com/postdeskhq/postdesk/internal/outbox/service"
	"go.uber.org/fx"
)

var Module = fx.Module("outbox.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(dispatcher.NewLogSender),
	fx.Provide(dispatcher.New),
	fx.Provide(func(d *dispatcher.Dispatcher) domain.Dispatcher { return d }),
	fx.Invoke(dispatcher.Register),
)
