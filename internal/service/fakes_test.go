package service

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"live_engagement/internal/config"
	"live_engagement/internal/domain"
	"live_engagement/internal/repository"
	apperrors "live_engagement/pkg/errors"
	"live_engagement/pkg/logger"
)

var (
	testRoom      = domain.NewRoomKey("R1", domain.CategorySlide)
	testPresenter = "presenter-1"
	testRoster    = []string{"Alex", "Maria", "Kenji"}
)

func testPersonaConfig() config.PersonaConfig {
	return config.PersonaConfig{
		HostName:    "Host",
		QAndAName:   "Q&A Host",
		Roster:      testRoster,
		AvatarsBase: "https://avatars.test",
	}
}

func newTestPersonas() PersonaService {
	return NewPersonaServiceWithRand(testPersonaConfig(), rand.New(rand.NewSource(1)))
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

// fakeSessions

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[domain.RoomKey]*domain.Session
}

func newFakeSessions(sessions ...*domain.Session) *fakeSessions {
	f := &fakeSessions{sessions: make(map[domain.RoomKey]*domain.Session)}
	for _, s := range sessions {
		f.sessions[s.Room()] = s
	}
	return f
}

func openSession(room domain.RoomKey, allowComment, allowQuestion bool) *domain.Session {
	return &domain.Session{
		Code:            room.Code,
		Category:        room.Category,
		Title:           "Quarterly review",
		PresenterID:     testPresenter,
		AllowAIComment:  allowComment,
		AllowAIQuestion: allowQuestion,
		CreatedAt:       time.Now().UTC(),
	}
}

func (f *fakeSessions) GetByCode(_ context.Context, room domain.RoomKey) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[room]
	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessions) add(s *domain.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.Room()] = s
}

// checkOpen повторяет проверку строки сессии, которую делает Postgres при вставке сообщения
func (f *fakeSessions) checkOpen(room domain.RoomKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[room]
	if !ok {
		return apperrors.ErrSessionNotFound
	}
	if s.EndedAt != nil {
		return apperrors.ErrSessionEnded
	}
	return nil
}

func (f *fakeSessions) MarkEnded(_ context.Context, room domain.RoomKey, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[room]; ok && s.EndedAt == nil {
		s.EndedAt = &at
	}
	return nil
}

// fakeMessages

type fakeMessages struct {
	mu       sync.Mutex
	sessions *fakeSessions
	order    []uuid.UUID
	messages map[uuid.UUID]*domain.Message
}

func newFakeMessages(sessions *fakeSessions) *fakeMessages {
	return &fakeMessages{sessions: sessions, messages: make(map[uuid.UUID]*domain.Message)}
}

func copyMessage(m *domain.Message) *domain.Message {
	cp := *m
	cp.Replies = append([]uuid.UUID{}, m.Replies...)
	cp.LikedBy = append([]string{}, m.LikedBy...)
	return &cp
}

func (f *fakeMessages) Create(_ context.Context, message *domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.sessions.checkOpen(message.Room()); err != nil {
		return err
	}
	if message.ParentID != nil {
		parent, ok := f.messages[*message.ParentID]
		if !ok || parent.Room() != message.Room() {
			return apperrors.ErrMessageNotFound
		}
		parent.Replies = append(parent.Replies, message.ID)
	}
	f.messages[message.ID] = copyMessage(message)
	f.order = append(f.order, message.ID)
	return nil
}

func (f *fakeMessages) GetByID(_ context.Context, id uuid.UUID) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok {
		return nil, apperrors.ErrMessageNotFound
	}
	return copyMessage(m), nil
}

func (f *fakeMessages) Replies(_ context.Context, parentID uuid.UUID) ([]*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.Message, 0)
	for _, id := range f.order {
		m := f.messages[id]
		if m.ParentID != nil && *m.ParentID == parentID {
			out = append(out, copyMessage(m))
		}
	}
	return out, nil
}

func (f *fakeMessages) ListThreads(_ context.Context, room domain.RoomKey, kind domain.EngagementKind) ([]*domain.MessageThread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := make([]*domain.Message, 0)
	for _, id := range f.order {
		m := f.messages[id]
		if m.Room() == room && m.Kind == kind {
			list = append(list, copyMessage(m))
		}
	}
	return repository.BuildThreads(list), nil
}

func (f *fakeMessages) Like(_ context.Context, id uuid.UUID, participantID string) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok {
		return nil, apperrors.ErrMessageNotFound
	}
	for _, p := range m.LikedBy {
		if p == participantID {
			return copyMessage(m), nil
		}
	}
	m.LikedBy = append(m.LikedBy, participantID)
	m.LikeCount++
	return copyMessage(m), nil
}

func (f *fakeMessages) all() []*domain.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.Message, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, copyMessage(f.messages[id]))
	}
	return out
}

func (f *fakeMessages) aiAuthored() []*domain.Message {
	out := make([]*domain.Message, 0)
	for _, m := range f.all() {
		if m.IsAIAuthored {
			out = append(out, m)
		}
	}
	return out
}

// seed кладет сообщение напрямую, минуя сервис
func (f *fakeMessages) seed(t *testing.T, m *domain.Message) *domain.Message {
	t.Helper()
	require.NoError(t, f.Create(context.Background(), m))
	return m
}

// fakeGuests

type fakeGuests struct {
	mu     sync.Mutex
	guests map[string]*domain.Guest
}

func newFakeGuests() *fakeGuests {
	return &fakeGuests{guests: make(map[string]*domain.Guest)}
}

func (f *fakeGuests) GetByIP(_ context.Context, ip string) (*domain.Guest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.guests[ip]
	if !ok {
		return nil, apperrors.ErrGuestNotFound
	}
	return g, nil
}

func (f *fakeGuests) GetOrCreate(_ context.Context, guest *domain.Guest) (*domain.Guest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if g, ok := f.guests[guest.IPAddress]; ok {
		return g, nil
	}
	f.guests[guest.IPAddress] = guest
	return guest, nil
}

// recordingBroadcaster

type recordedEvent struct {
	Room    domain.RoomKey
	Type    string
	Payload any
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (b *recordingBroadcaster) Broadcast(room domain.RoomKey, eventType string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{Room: room, Type: eventType, Payload: payload})
}

func (b *recordingBroadcaster) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.Type)
	}
	return out
}

func (b *recordingBroadcaster) ofType(eventType string) []recordedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]recordedEvent, 0)
	for _, e := range b.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (b *recordingBroadcaster) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}

// scriptedGenerator

type scriptedGenerator struct {
	mu    sync.Mutex
	calls []GenerationRequest
	fn    func(call int, req GenerationRequest) (*GenerationResult, error)
}

func (g *scriptedGenerator) Generate(_ context.Context, req GenerationRequest) (*GenerationResult, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	n := len(g.calls)
	g.mu.Unlock()
	if g.fn == nil {
		return &GenerationResult{Text: "generated reply", ThreadID: "thread-" + req.Author.Name}, nil
	}
	return g.fn(n, req)
}

func (g *scriptedGenerator) requests() []GenerationRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]GenerationRequest{}, g.calls...)
}

// recordingDispatcher

type recordingDispatcher struct {
	mu    sync.Mutex
	kicks []domain.RoomKey
}

func (d *recordingDispatcher) Kick(room domain.RoomKey) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.kicks = append(d.kicks, room)
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.kicks)
}

// fakeAudit

type fakeAudit struct {
	mu     sync.Mutex
	events []string
}

func (a *fakeAudit) LogEvent(_ context.Context, _ *string, _ string, _ domain.RoomKey, eventType string, _ map[string]interface{}) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, eventType)
	return nil
}

func (a *fakeAudit) types() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string{}, a.events...)
}

// engagementFixture собирает оркестратор и сервис поверх одних и тех же хранилищ
type engagementFixture struct {
	sessions     *fakeSessions
	messages     *fakeMessages
	guests       *fakeGuests
	state        repository.RoomStateRepository
	queue        repository.TriggerQueueRepository
	generator    *scriptedGenerator
	personas     PersonaService
	broadcaster  *recordingBroadcaster
	dispatcher   *recordingDispatcher
	audit        *fakeAudit
	metrics      *Metrics
	orchestrator Orchestrator
	engagement   EngagementService
}

func newEngagementFixture(t *testing.T, session *domain.Session, cfg config.OrchestratorConfig) *engagementFixture {
	t.Helper()
	rdb := newTestRedis(t)
	log := logger.Nop()

	sessions := newFakeSessions(session)
	f := &engagementFixture{
		sessions:    sessions,
		messages:    newFakeMessages(sessions),
		guests:      newFakeGuests(),
		state:       repository.NewRoomStateRepository(rdb, log),
		queue:       repository.NewTriggerQueueRepository(rdb, log),
		generator:   &scriptedGenerator{},
		personas:    newTestPersonas(),
		broadcaster: &recordingBroadcaster{},
		dispatcher:  &recordingDispatcher{},
		audit:       &fakeAudit{},
		metrics:     NewMetrics(nil),
	}
	f.orchestrator = f.newOrchestrator(f.generator, cfg)
	f.engagement = NewEngagementService(EngagementDeps{
		Sessions:    f.sessions,
		Guests:      f.guests,
		Messages:    f.messages,
		RoomState:   f.state,
		Queue:       f.queue,
		Generator:   f.generator,
		Personas:    f.personas,
		Broadcaster: f.broadcaster,
		Dispatcher:  f.dispatcher,
		Audit:       f.audit,
		Metrics:     f.metrics,
	}, log)
	return f
}

func (f *engagementFixture) newOrchestrator(generator GenerationClient, cfg config.OrchestratorConfig) Orchestrator {
	return NewOrchestrator(OrchestratorDeps{
		Sessions:    f.sessions,
		State:       f.state,
		Queue:       f.queue,
		Messages:    f.messages,
		Generator:   generator,
		Personas:    f.personas,
		Broadcaster: f.broadcaster,
		Audit:       f.audit,
		Metrics:     f.metrics,
	}, cfg, logger.Nop())
}

func (f *engagementFixture) step(t *testing.T) domain.Step {
	t.Helper()
	step, err := f.state.CurrentStep(context.Background(), testRoom)
	require.NoError(t, err)
	return step
}

func (f *engagementFixture) queued(t *testing.T) []*domain.Trigger {
	t.Helper()
	triggers, err := f.queue.All(context.Background(), testRoom)
	require.NoError(t, err)
	return triggers
}
