package http

import (
	"os"
	"time"

	"github.com/NolanKnievel/bucket-list-sub001/internal/adapters/signal"
	"github.com/NolanKnievel/bucket-list-sub001/internal/app"
	"github.com/NolanKnievel/bucket-list-sub001/internal/app/stats"
	"github.com/NolanKnievel/bucket-list-sub001/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware tags every browser with a long-lived token used to
// correlate its requests in the logs.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// RequestLogger replaces gin.Logger with a zerolog line per request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("module", "adapters.http").
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client", c.GetString("client_token")).
			Msg("request")
	}
}

type Deps struct {
	Groups *app.Orchestrator
	Stats  *stats.Service
	Signal *signal.SignalWSController
}

func SetupRouter(cfg *config.Config, deps Deps) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 30, HttpOnly: true})
	r.Use(sessions.Sessions("BucketSessions", store))
	r.Use(ClientTokenMiddleware())
	if cfg.Mode == "debug" {
		r.Use(RequestLogger())
	}

	if cfg.StaticPath != "" {
		if _, err := os.Stat(cfg.StaticPath); err == nil {
			r.Static("/static", cfg.StaticPath)
			r.GET("/", func(c *gin.Context) {
				c.File(cfg.StaticPath + "/index.html")
			})
		} else {
			log.Warn().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("static path missing, not serving")
		}
	}

	h := &handlers{groups: deps.Groups, stats: deps.Stats, signal: deps.Signal}

	r.GET("/healthz", h.health)

	api := r.Group("/api")
	groups := api.Group("/groups")
	groups.POST("", h.createGroup)
	groups.GET("/:groupId", h.getGroup)
	groups.POST("/:groupId/join", h.joinGroup)
	groups.POST("/:groupId/items", h.addItem)
	groups.PATCH("/:groupId/items/:itemId", h.updateItem)

	ws := api.Group("/ws")
	ws.GET("/groups/:groupId", h.upgrade)
	ws.GET("/rooms/stats", h.allRoomStats)
	ws.GET("/rooms/:groupId/stats", h.roomStats)

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
