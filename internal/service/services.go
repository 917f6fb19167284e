package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"live_engagement/internal/config"
	"live_engagement/internal/repository"
	"live_engagement/pkg/logger"
)

type Services struct {
	Engagement   EngagementService
	Orchestrator Orchestrator
	Hub          Hub
	Personas     PersonaService
	Generation   GenerationClient
	RateLimit    RateLimitService
	Audit        AuditService
	Metrics      *Metrics
}

func NewServices(repos *repository.Repositories, cfg *config.Config, reg prometheus.Registerer, log logger.Logger) (*Services, error) {
	metrics := NewMetrics(reg)

	generation, err := NewGenerationClient(cfg.Generation, repos.Thread, log.With("component", "generation"))
	if err != nil {
		return nil, err
	}

	services := &Services{
		Hub:        NewHub(metrics, log.With("component", "hub")),
		Personas:   NewPersonaService(cfg.Personas),
		Generation: generation,
		RateLimit:  NewRateLimitService(repos.RateLimit, log),
		Audit:      NewAuditService(repos.Audit, log),
		Metrics:    metrics,
	}

	services.Orchestrator = NewOrchestrator(OrchestratorDeps{
		Sessions:    repos.Session,
		State:       repos.RoomState,
		Queue:       repos.TriggerQueue,
		Messages:    repos.Message,
		Generator:   services.Generation,
		Personas:    services.Personas,
		Broadcaster: services.Hub,
		Audit:       services.Audit,
		Metrics:     metrics,
	}, cfg.Orchestrator, log.With("component", "orchestrator"))

	services.Engagement = NewEngagementService(EngagementDeps{
		Sessions:    repos.Session,
		Guests:      repos.Guest,
		Messages:    repos.Message,
		RoomState:   repos.RoomState,
		Queue:       repos.TriggerQueue,
		Generator:   services.Generation,
		Personas:    services.Personas,
		Broadcaster: services.Hub,
		Dispatcher:  services.Orchestrator,
		Audit:       services.Audit,
		Metrics:     metrics,
	}, log)

	log.Info("Services initialized", "generation_provider", cfg.Generation.Provider)

	return services, nil
}
