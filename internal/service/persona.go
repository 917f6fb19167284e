package service

import (
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"live_engagement/internal/config"
	"live_engagement/internal/domain"
)

// PersonaService выдает персоны: фиксированных ведущих и случайного "зрителя" из ростера
type PersonaService interface {
	Host(kind domain.EngagementKind) domain.Persona
	// Random - равновероятный выбор из ростера
	Random() domain.Persona
	Roster() []domain.Persona
	// GuestIdentity придумывает имя и аватар новому гостю
	GuestIdentity() (string, string)
}

type personaService struct {
	host   domain.Persona
	qanda  domain.Persona
	roster []domain.Persona
	base   string

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewPersonaService(cfg config.PersonaConfig) PersonaService {
	return NewPersonaServiceWithRand(cfg, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewPersonaServiceWithRand позволяет тестам зафиксировать источник случайности
func NewPersonaServiceWithRand(cfg config.PersonaConfig, rnd *rand.Rand) PersonaService {
	s := &personaService{
		host:  domain.Persona{Name: cfg.HostName, Image: cfg.HostImage},
		qanda: domain.Persona{Name: cfg.QAndAName, Image: cfg.QAndAImage},
		base:  strings.TrimRight(cfg.AvatarsBase, "/"),
		rnd:   rnd,
	}
	for _, name := range cfg.Roster {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		s.roster = append(s.roster, domain.Persona{Name: name, Image: s.avatar(name)})
	}
	if s.host.Image == "" {
		s.host.Image = s.avatar(s.host.Name)
	}
	if s.qanda.Image == "" {
		s.qanda.Image = s.avatar(s.qanda.Name)
	}
	return s
}

func (s *personaService) avatar(seed string) string {
	if s.base == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s.png", s.base, url.PathEscape(strings.ToLower(seed)))
}

func (s *personaService) Host(kind domain.EngagementKind) domain.Persona {
	if kind == domain.KindQAndA {
		return s.qanda
	}
	return s.host
}

func (s *personaService) Random() domain.Persona {
	if len(s.roster) == 0 {
		return s.host
	}
	s.mu.Lock()
	i := s.rnd.Intn(len(s.roster))
	s.mu.Unlock()
	return s.roster[i]
}

func (s *personaService) Roster() []domain.Persona {
	out := make([]domain.Persona, len(s.roster))
	copy(out, s.roster)
	return out
}

func (s *personaService) GuestIdentity() (string, string) {
	s.mu.Lock()
	n := s.rnd.Intn(10000)
	s.mu.Unlock()
	name := fmt.Sprintf("Guest %04d", n)
	return name, s.avatar(name)
}
