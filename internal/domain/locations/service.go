package locations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"shipment-control/internal/domain/servicerr"
	"shipment-control/internal/ports/ecrf"
)

type Service struct {
	repo   Repository
	remote ecrf.Client // puede ser nil (tests, modo offline)
}

func NewService(repo Repository, remote ecrf.Client) *Service {
	return &Service{repo: repo, remote: remote}
}

func (s *Service) GetByID(ctx context.Context, id string) (Location, error) {
	l, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Location{}, fmt.Errorf("location %s: %w", id, servicerr.ErrNotFound)
	}
	return l, nil
}

func (s *Service) ListLabs(ctx context.Context) ([]Location, error) {
	return s.repo.ListLabs(ctx)
}

// Ensure registra (o refresca) una location. Se usa la primera vez que un
// sitio aparece referenciado en un envío o en un seed de despliegue.
func (s *Service) Ensure(ctx context.Context, l Location) error {
	if strings.TrimSpace(l.ID) == "" {
		return fmt.Errorf("location id: %w", servicerr.ErrDataMissing)
	}
	return s.repo.Upsert(ctx, l)
}

// SeedFromTeams resuelve cada team configurado contra la plataforma remota y
// lo registra como location. Un team irresoluble se reporta en el log de
// resultados pero no aborta el seed (igual que el despliegue original).
type TeamSeed struct {
	TeamCode       string
	IsLab          bool
	IsClinicalSite bool
}

func (s *Service) SeedFromTeams(ctx context.Context, seeds []TeamSeed) ([]string, error) {
	if s.remote == nil {
		return nil, errors.New("locations: remote client not configured")
	}

	logs := make([]string, 0, len(seeds))
	for _, seed := range seeds {
		team, err := s.remote.Team(ctx, seed.TeamCode)
		if err != nil {
			logs = append(logs, fmt.Sprintf("Team %s could not be added to the locations table: %v", seed.TeamCode, err))
			continue
		}

		err = s.repo.Upsert(ctx, Location{
			ID:             team.ID,
			Code:           team.Code,
			Name:           team.Name,
			IsLab:          seed.IsLab,
			IsClinicalSite: seed.IsClinicalSite,
		})
		if err != nil {
			return logs, fmt.Errorf("locations: adding %q: %w", team.Name, err)
		}
		logs = append(logs, fmt.Sprintf("Team %s added to the locations table", seed.TeamCode))
	}
	return logs, nil
}
