package router

import (
	"context"
	"database/sql"
	"net/http"

	mem "shipment-control/internal/adapters/storage/memory"
	pg "shipment-control/internal/adapters/storage/postgres"
	"shipment-control/internal/domain/aliquots"
	"shipment-control/internal/domain/imports"
	"shipment-control/internal/domain/locations"
	"shipment-control/internal/domain/shipments"
	"shipment-control/internal/domain/tracking"
	"shipment-control/internal/middleware"
	"shipment-control/internal/platform/logger"
	"shipment-control/internal/ports/ecrf"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

type Options struct {
	// Opcional: si viene, usa Postgres. Si no, in-memory.
	DB *sql.DB

	// Opcional: cliente de la plataforma eCRF. Sin él, los endpoints de
	// tracking e imports no se publican (modo solo-ledger).
	Remote ecrf.Client

	// Token de servicio del header X-API-Token. Vacío = modo dev.
	ServiceToken string

	Log logger.Logger

	// Configuración de los imports de ficheros; Mapping puede ser nil si el
	// import de RedCAP no está configurado.
	Imports imports.Config
	Mapping *imports.Mapping
}

func NewRouter(opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Use(middleware.ServiceToken(opts.ServiceToken))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	log := opts.Log
	if log == nil {
		log = logger.NewFromEnv()
	}

	var (
		locationRepo locations.Repository
		aliquotRepo  aliquots.Repository
		shipmentRepo shipments.Repository
		trackingRepo tracking.Repository
	)

	if opts.DB != nil {
		locationRepo = pg.NewLocationsRepo(opts.DB)
		aliquotRepo = pg.NewAliquotsRepo(opts.DB)
		shipmentRepo = pg.NewShipmentsRepo(opts.DB)
		trackingRepo = pg.NewTrackingRepo(opts.DB)
	} else {
		locationRepo = mem.NewLocationRepo()
		aliquotRepo = mem.NewAliquotRepo()
		shipmentRepo = mem.NewShipmentRepo()
		trackingRepo = mem.NewTrackingRepo(shipmentRepo, aliquotRepo)
	}

	// Services por módulo
	locationsSvc := locations.NewService(locationRepo, opts.Remote)
	ledger := aliquots.NewService(aliquotRepo)

	var users shipments.UserDirectory
	if opts.Remote != nil {
		users = remoteUsers{c: opts.Remote}
	}
	shipmentsSvc := shipments.NewService(shipmentRepo, ledger, users)

	scanner := tracking.NewScanner(trackingRepo, shipmentsSvc)

	// Rutas por módulo
	locations.RegisterRoutes(r, locationsSvc)
	aliquots.RegisterRoutes(r, ledger)
	shipments.RegisterRoutes(r, shipmentsSvc)

	if opts.Remote != nil {
		sync := tracking.NewSynchronizer(scanner, shipmentsSvc, ledger, opts.Remote, opts.Imports.ProgramCode, log)
		tracking.RegisterRoutes(r, sync)

		importsSvc := imports.NewService(opts.Remote, ledger, opts.Mapping, opts.Imports, log)
		imports.RegisterRoutes(r, importsSvc)
	}

	return r
}

// remoteUsers adapta el cliente eCRF al directorio de usuarios que resuelve
// nombres de emisor/receptor.
type remoteUsers struct {
	c ecrf.Client
}

func (u remoteUsers) User(ctx context.Context, userID string) (string, error) {
	usr, err := u.c.User(ctx, userID)
	if err != nil {
		return "", err
	}
	return usr.FullName, nil
}
