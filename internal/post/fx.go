package post

import (
	"github.com/postdeskhq/postdesk/internal/post/repository"
	"github.com/postdeskhq/postdesk/internal/post/service"
	"go.uber.org/fx"
)

var Module = fx.Module("post.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
