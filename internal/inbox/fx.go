package inbox

import (
	"github.com/postdeskhq/postdesk/internal/inbox/service"
	"go.uber.org/fx"
)

var Module = fx.Module("inbox.service",
	fx.Provide(service.NewService),
)
