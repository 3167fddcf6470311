package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"time"

	"github.com/caarlos0/env/v11"

	"shipment-control/internal/adapters/ecrf/linkcare"
	pg "shipment-control/internal/adapters/storage/postgres"
	"shipment-control/internal/domain/imports"
	"shipment-control/internal/domain/locations"
	"shipment-control/internal/platform/logger"
	"shipment-control/internal/ports/ecrf"
	"shipment-control/internal/router"
)

type config struct {
	Port         string `env:"PORT" envDefault:"8080"`
	DBDSN        string `env:"DB_DSN"`
	ServiceToken string `env:"API_TOKEN"`

	RemoteURL      string        `env:"ECRF_URL"`
	RemoteUser     string        `env:"ECRF_USER"`
	RemotePassword string        `env:"ECRF_PASSWORD"`
	RemoteTimeout  time.Duration `env:"ECRF_TIMEOUT" envDefault:"30s"`

	ProgramCode string `env:"PROGRAM_CODE" envDefault:"ONCOIVD"`
	TeamCode    string `env:"TEAM_CODE"`
	RefPrefix   string `env:"REF_PREFIX" envDefault:"ONCOIVD"`

	RedCAPDir   string `env:"REDCAP_IMPORT_DIR"`
	AliquotsDir string `env:"ALIQUOTS_IMPORT_DIR"`
	MappingFile string `env:"REDCAP_MAPPING_FILE"`

	// Teams remotos que se registran como locations en el deploy.
	LabTeams  []string `env:"LAB_TEAMS" envSeparator:","`
	SiteTeams []string `env:"SITE_TEAMS" envSeparator:","`
}

func main() {
	log := logger.NewFromEnv()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Error("invalid configuration", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	ctx := context.Background()

	var remote ecrf.Client
	if cfg.RemoteURL != "" {
		client, err := linkcare.New(linkcare.Config{
			BaseURL:  cfg.RemoteURL,
			User:     cfg.RemoteUser,
			Password: cfg.RemotePassword,
			Timeout:  cfg.RemoteTimeout,
		})
		if err != nil {
			log.Error("ecrf client setup failed", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
		remote = client
	}

	opts := router.Options{
		Remote:       remote,
		ServiceToken: cfg.ServiceToken,
		Log:          log,
		Imports: imports.Config{
			RedCAPDir:   cfg.RedCAPDir,
			AliquotsDir: cfg.AliquotsDir,
			ProgramCode: cfg.ProgramCode,
			TeamCode:    cfg.TeamCode,
			RefPrefix:   cfg.RefPrefix,
		},
	}

	if cfg.MappingFile != "" {
		mapping, err := imports.LoadMapping(cfg.MappingFile)
		if err != nil {
			log.Error("mapping file load failed", map[string]any{"file": cfg.MappingFile, "error": err.Error()})
			os.Exit(1)
		}
		opts.Mapping = mapping
	}

	if cfg.DBDSN != "" {
		db, err := pg.Open(cfg.DBDSN)
		if err != nil {
			log.Error("database connection failed", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
		defer db.Close()

		if err := pg.Deploy(ctx, db, nil); err != nil {
			log.Error("schema deploy failed", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
		opts.DB = db

		// Con plataforma remota disponible, los teams configurados se
		// registran como locations (best-effort, igual que el deploy).
		if remote != nil {
			seedLocations(ctx, db, remote, cfg, log)
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router.NewRouter(opts),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.Info("starting server", map[string]any{"addr": srv.Addr})
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
}

func seedLocations(ctx context.Context, db *sql.DB, remote ecrf.Client, cfg config, log logger.Logger) {
	seeds := make([]locations.TeamSeed, 0, len(cfg.LabTeams)+len(cfg.SiteTeams))
	for _, code := range cfg.LabTeams {
		seeds = append(seeds, locations.TeamSeed{TeamCode: code, IsLab: true})
	}
	for _, code := range cfg.SiteTeams {
		seeds = append(seeds, locations.TeamSeed{TeamCode: code, IsClinicalSite: true})
	}
	if len(seeds) == 0 {
		return
	}

	svc := locations.NewService(pg.NewLocationsRepo(db), remote)
	logs, err := svc.SeedFromTeams(ctx, seeds)
	for _, line := range logs {
		log.Info(line, nil)
	}
	if err != nil {
		log.Error("locations seed failed", map[string]any{"error": err.Error()})
	}
}
