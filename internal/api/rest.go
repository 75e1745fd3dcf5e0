package api

import (
	"context"
	"sync"

	"github.com/ankyy/musicbox/internal/api/downloads"
	"github.com/ankyy/musicbox/internal/api/history"
	"github.com/ankyy/musicbox/internal/api/libraries"
	"github.com/ankyy/musicbox/internal/event"
	"github.com/ankyy/musicbox/internal/http/websocket"
	"github.com/ankyy/musicbox/pkg/logger"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

var log = logger.Get("API")

type (
	RestConfig struct {
		HostAddr string `yaml:"host_address" env:"API_HOST_ADDR" env-default:"0.0.0.0:8080"`

		// LibraryDir points at the downloaders output directory so the
		// library controller can remove files alongside their records.
		LibraryDir string `yaml:"-" env:"-"`
	}

	controller interface {
		SetRoutes(*echo.Group)
	}

	// dataStore is the union of persistence behaviour the controllers and
	// the broadcaster consume.
	dataStore interface {
		history.Store
		libraries.Store
		statsStore
	}

	// The RestGateway is a thin wrapper around the Echo HTTP router. Its
	// sole responsibility is to create the routes the engine exposes, manage
	// ongoing web socket connections, and enforce the identity middleware
	// where applicable.
	RestGateway struct {
		*broadcaster
		config              *RestConfig
		ec                  *echo.Echo
		socket              *websocket.SocketHub
		downloadsController controller
		historyController   controller
		libraryController   controller
	}
)

// NewRestGateway constructs the Echo router and populates it with all the
// routes defined by the various controllers. The identity middleware runs on
// every route; the extraction controller itself performs the quota check
// once the submission has passed validation.
func NewRestGateway(
	config *RestConfig,
	resolver IdentityResolver,
	admissionController downloads.Admitter,
	downloadService downloads.Service,
	prober downloads.Prober,
	store dataStore,
	eventBus event.EventCoordinator,
) *RestGateway {
	ec := echo.New()
	ec.OnAddRouteHandler = func(host string, route echo.Route, handler echo.HandlerFunc, middleware []echo.MiddlewareFunc) {
		log.Emit(logger.DEBUG, "Registered new route %s %s\n", route.Method, route.Path)
	}
	ec.HidePort = true
	ec.HideBanner = true

	socket := websocket.New()
	gateway := &RestGateway{
		broadcaster:         newBroadcaster(socket, store, eventBus),
		config:              config,
		ec:                  ec,
		socket:              socket,
		downloadsController: downloads.New(downloadService, prober, admissionController),
		historyController:   history.New(store),
		libraryController:   libraries.New(store, eventBus, config.LibraryDir),
	}

	socket.WithConnectionCallback(gateway.broadcaster.StatsSnapshot)

	ec.Use(middleware.Logger())
	ec.Use(middleware.Recover())
	ec.Use(middleware.CORS())
	ec.Use(resolveIdentity(resolver))
	ec.Pre(middleware.AddTrailingSlash())

	ec.GET("/api/musicbox/v1/activity/ws/", func(ec echo.Context) error {
		gateway.socket.UpgradeToSocket(ec.Response(), ec.Request())
		return nil
	})

	extraction := ec.Group("/api/musicbox/v1")
	gateway.downloadsController.SetRoutes(extraction)

	historyGroup := ec.Group("/api/musicbox/v1/history")
	gateway.historyController.SetRoutes(historyGroup)

	libraryGroup := ec.Group("/api/musicbox/v1/library")
	gateway.libraryController.SetRoutes(libraryGroup)

	return gateway
}

func (gateway *RestGateway) Run(parentCtx context.Context) error {
	ctx, ctxCancel := context.WithCancelCause(parentCtx)
	wg := &sync.WaitGroup{}

	// Start echo router
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := gateway.ec.Start(gateway.config.HostAddr); err != nil {
			ctxCancel(err)
		}
	}()

	// Start thread to listen for context cancellation
	go func(ec *echo.Echo) {
		<-ctx.Done()
		ec.Close()
	}(gateway.ec)

	// Start websocket
	wg.Add(1)
	go func() {
		defer wg.Done()
		gateway.socket.Start(ctx)
	}()

	wg.Wait()

	// Return cancellation cause if any, otherwise nil as parent context
	// cancellation is not an error case we should report.
	if cause := context.Cause(ctx); cause != ctx.Err() {
		return cause
	}

	return nil
}
