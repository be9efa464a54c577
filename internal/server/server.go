package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/postdeskhq/postdesk/internal/access"
	"github.com/postdeskhq/postdesk/internal/audit"
	auditdomain "github.com/postdeskhq/postdesk/internal/audit/domain"
	"github.com/postdeskhq/postdesk/internal/config"
	"github.com/postdeskhq/postdesk/internal/inbox"
	inboxdomain "github.com/postdeskhq/postdesk/internal/inbox/domain"
	"github.com/postdeskhq/postdesk/internal/observability"
	obsmiddleware "github.com/postdeskhq/postdesk/internal/observability/logger"
	obsmetrics "github.com/postdeskhq/postdesk/internal/observability/metrics"
	obstracing "github.com/postdeskhq/postdesk/internal/observability/tracing"
	"github.com/postdeskhq/postdesk/internal/outbox"
	outboxdomain "github.com/postdeskhq/postdesk/internal/outbox/domain"
	"github.com/postdeskhq/postdesk/internal/post"
	postdomain "github.com/postdeskhq/postdesk/internal/post/domain"
	"github.com/postdeskhq/postdesk/internal/publish"
	publishdomain "github.com/postdeskhq/postdesk/internal/publish/domain"
	"github.com/postdeskhq/postdesk/internal/ratelimit"
	"github.com/postdeskhq/postdesk/internal/tenant"
	tenantdomain "github.com/postdeskhq/postdesk/internal/tenant/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	access.Module,
	audit.Module,
	inbox.Module,
	tenant.Module,
	post.Module,
	publish.Module,
	outbox.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(obsmetrics.HTTP()))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	db         *gorm.DB
	genID      *snowflake.Node
	accessSvc  access.Service
	auditSvc   auditdomain.Service
	inboxSvc   inboxdomain.Service
	tenantSvc  tenantdomain.Service
	postSvc    postdomain.Service
	publishSvc publishdomain.Service
	outboxSvc  outboxdomain.Service
	limiter    *ratelimit.TenantLimiter
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	DB         *gorm.DB
	GenID      *snowflake.Node
	AccessSvc  access.Service
	AuditSvc   auditdomain.Service
	InboxSvc   inboxdomain.Service
	TenantSvc  tenantdomain.Service
	PostSvc    postdomain.Service
	PublishSvc publishdomain.Service
	OutboxSvc  outboxdomain.Service
	Limiter    *ratelimit.TenantLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		db:         p.DB,
		genID:      p.GenID,
		accessSvc:  p.AccessSvc,
		auditSvc:   p.AuditSvc,
		inboxSvc:   p.InboxSvc,
		tenantSvc:  p.TenantSvc,
		postSvc:    p.PostSvc,
		publishSvc: p.PublishSvc,
		outboxSvc:  p.OutboxSvc,
		limiter:    p.Limiter,
	}

	svc.registerAPIRoutes()
	svc.registerWorkerRoutes()

	return svc
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")
	v1.Use(s.PrincipalContext())

	v1.POST("/tenants", s.RequireAdmin(), s.createTenant)
	v1.GET("/tenants", s.listTenants)

	t := v1.Group("/tenants/:tenant_id")
	t.Use(s.TenantContext(), s.RateLimit())

	t.GET("", s.getTenant)
	t.PATCH("", s.RequireAdmin(), s.updateTenant)
	t.DELETE("", s.RequireAdmin(), s.deleteTenant)
	t.POST("/activate", s.RequireAdmin(), s.activateTenant)
	t.POST("/deactivate", s.RequireAdmin(), s.deactivateTenant)
	t.GET("/members", s.listMembers)
	t.POST("/members", s.RequireAdmin(), s.addMember)
	t.DELETE("/members/:user_id", s.RequireAdmin(), s.removeMember)

	t.POST("/posts", s.createPost)
	t.GET("/posts", s.listPosts)
	t.GET("/posts/:post_id", s.getPost)
	t.PATCH("/posts/:post_id", s.updatePost)
	t.POST("/posts/:post_id/send-for-approval", s.sendForApproval)
	t.POST("/posts/:post_id/approve", s.approvePost)
	t.POST("/posts/:post_id/request-changes", s.requestChanges)
	t.POST("/posts/:post_id/archive", s.archivePost)
	t.GET("/posts/:post_id/comments", s.listComments)

	t.POST("/posts/:post_id/publish", s.publishPost)
	t.POST("/posts/:post_id/delete-remote", s.deleteRemote)
	t.POST("/posts/:post_id/sync-comments", s.syncComments)
	t.GET("/posts/:post_id/channels", s.listChannels)

	t.GET("/jobs", s.listJobs)
	t.GET("/jobs/:job_id", s.getJob)
	t.POST("/jobs/:job_id/requeue", s.requeueJob)

	t.GET("/inbox", s.listInbox)
	t.POST("/inbox/:item_id/read", s.markInboxRead)

	t.GET("/audit-logs", s.listAuditLogs)
}

// registerWorkerRoutes exposes the completion callback the external worker
// reports through. It authenticates with a shared token rather than a user
// identity.
func (s *Server) registerWorkerRoutes() {
	w := s.engine.Group("/worker")
	w.Use(s.WorkerAuth())

	w.POST("/jobs/:job_id/complete", s.completeJob)
}
