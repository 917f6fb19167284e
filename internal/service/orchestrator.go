package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"live_engagement/internal/config"
	"live_engagement/internal/domain"
	"live_engagement/internal/repository"
	apperrors "live_engagement/pkg/errors"
	"live_engagement/pkg/logger"
)

// Dispatcher будит обработку очереди комнаты
type Dispatcher interface {
	Kick(room domain.RoomKey)
}

// Orchestrator ведет по одной очереди на комнату: шаг цикла, поиск триггера, генерация, рассылка
type Orchestrator interface {
	Dispatcher
	Start(ctx context.Context)
	Stop()
	// Process синхронно разбирает очередь комнаты, пока тик не скажет остановиться
	Process(ctx context.Context, room domain.RoomKey) error
	ActiveWorkers() int
}

type OrchestratorDeps struct {
	Sessions    repository.SessionRepository
	State       repository.RoomStateRepository
	Queue       repository.TriggerQueueRepository
	Messages    repository.MessageRepository
	Generator   GenerationClient
	Personas    PersonaService
	Broadcaster Broadcaster
	Audit       AuditService
	Metrics     *Metrics
}

type roomWorker struct {
	room    domain.RoomKey
	wake    chan struct{}
	drain   sync.Mutex
	running bool
	users   int
}

type orchestrator struct {
	OrchestratorDeps
	cfg config.OrchestratorConfig
	log logger.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	workers map[domain.RoomKey]*roomWorker
}

func NewOrchestrator(deps OrchestratorDeps, cfg config.OrchestratorConfig, log logger.Logger) Orchestrator {
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(nil)
	}
	return &orchestrator{
		OrchestratorDeps: deps,
		cfg:              cfg,
		log:              log,
		workers:          make(map[domain.RoomKey]*roomWorker),
	}
}

func (o *orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.ctx != nil && o.ctx.Err() == nil {
		o.mu.Unlock()
		return
	}
	o.ctx, o.cancel = context.WithCancel(ctx)
	o.mu.Unlock()

	o.log.Info("Orchestrator started",
		"tick_interval", o.cfg.TickInterval.String(),
		"max_trigger_failures", o.cfg.MaxTriggerFailures,
	)
	o.resume(ctx)
}

// resume будит комнаты, очереди которых пережили рестарт процесса
func (o *orchestrator) resume(ctx context.Context) {
	rooms, err := o.Queue.Rooms(ctx)
	if err != nil {
		o.log.Error("Failed to list pending rooms", "error", err)
		return
	}
	for _, room := range rooms {
		o.Kick(room)
	}
	if len(rooms) > 0 {
		o.log.Info("Resumed rooms with pending triggers", "rooms", len(rooms))
	}
}

func (o *orchestrator) Stop() {
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	o.wg.Wait()
	o.log.Info("Orchestrator stopped")
}

func (o *orchestrator) Kick(room domain.RoomKey) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ctx == nil || o.ctx.Err() != nil {
		o.log.Warn("Orchestrator is not running, kick ignored", "room", room)
		return
	}

	w := o.workerLocked(room)
	if !w.running {
		w.running = true
		o.wg.Add(1)
		go o.run(o.ctx, w)
	}
	// Один ожидающий сигнал покрывает любое число толчков, пришедших во время разбора
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (o *orchestrator) ActiveWorkers() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, w := range o.workers {
		if w.running {
			n++
		}
	}
	return n
}

func (o *orchestrator) workerLocked(room domain.RoomKey) *roomWorker {
	w, ok := o.workers[room]
	if !ok {
		w = &roomWorker{room: room, wake: make(chan struct{}, 1)}
		o.workers[room] = w
	}
	return w
}

func (o *orchestrator) run(ctx context.Context, w *roomWorker) {
	defer o.wg.Done()
	o.Metrics.ActiveWorkers.Inc()
	defer o.Metrics.ActiveWorkers.Dec()

	idle := time.NewTimer(o.idleTimeout())
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			o.mu.Lock()
			w.running = false
			o.mu.Unlock()
			return
		case <-w.wake:
			if err := o.Process(ctx, w.room); err != nil && !errors.Is(err, context.Canceled) {
				o.log.Error("Room processing stopped with error", "error", err, "room", w.room)
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(o.idleTimeout())
		case <-idle.C:
			o.mu.Lock()
			if len(w.wake) == 0 && w.users == 0 {
				w.running = false
				delete(o.workers, w.room)
				o.mu.Unlock()
				o.log.Debug("Room worker retired", "room", w.room)
				return
			}
			o.mu.Unlock()
			idle.Reset(o.idleTimeout())
		}
	}
}

func (o *orchestrator) idleTimeout() time.Duration {
	if o.cfg.IdleWorkerTimeout > 0 {
		return o.cfg.IdleWorkerTimeout
	}
	return 5 * time.Minute
}

func (o *orchestrator) Process(ctx context.Context, room domain.RoomKey) error {
	o.mu.Lock()
	w := o.workerLocked(room)
	w.users++
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		w.users--
		if !w.running && w.users == 0 {
			delete(o.workers, room)
		}
		o.mu.Unlock()
	}()

	w.drain.Lock()
	defer w.drain.Unlock()
	return o.drain(ctx, room)
}

func (o *orchestrator) drain(ctx context.Context, room domain.RoomKey) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing room %s: %v", room, r)
			o.Broadcaster.Broadcast(room, domain.EventError, domain.ErrorPayload{Message: "engagement processing failed"})
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		more, err := o.tick(ctx, room)
		if err != nil {
			if ctx.Err() == nil {
				o.Metrics.TicksTotal.WithLabelValues("error").Inc()
				o.Broadcaster.Broadcast(room, domain.EventError, domain.ErrorPayload{Message: "engagement processing failed"})
			}
			return err
		}
		if !more {
			return nil
		}

		if o.cfg.TickInterval > 0 {
			timer := time.NewTimer(o.cfg.TickInterval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
}

// tick выполняет один шаг; false означает, что разбор комнаты пора остановить
func (o *orchestrator) tick(ctx context.Context, room domain.RoomKey) (bool, error) {
	step, err := o.State.CurrentStep(ctx, room)
	if err != nil {
		return false, err
	}
	kind := step.Kind()

	triggers, err := o.Queue.All(ctx, room)
	if err != nil {
		return false, err
	}
	if len(triggers) == 0 {
		o.Metrics.TicksTotal.WithLabelValues("empty").Inc()
		return false, nil
	}

	ended, err := o.State.IsEnded(ctx, room)
	if err != nil {
		return false, err
	}

	session, err := o.Sessions.GetByCode(ctx, room)
	if err != nil {
		if errors.Is(err, apperrors.ErrSessionNotFound) {
			o.log.Warn("Queue belongs to unknown session, purging", "room", room, "queued", len(triggers))
			return false, o.purge(ctx, room, triggers)
		}
		return false, err
	}

	if ended || session.EndedAt != nil {
		o.Metrics.TicksTotal.WithLabelValues("ended").Inc()
		return false, o.purge(ctx, room, triggers)
	}

	eligible, err := o.eligibility(ctx, room, session)
	if err != nil {
		return false, err
	}

	// Ни один триггер в очереди сейчас не может быть обработан: ждем следующего толчка
	if !anyEligible(triggers, eligible) {
		o.Metrics.TicksTotal.WithLabelValues("ineligible").Inc()
		return false, nil
	}

	var match *domain.Trigger
	for _, t := range triggers {
		if t.Matches(kind, step) {
			match = t
			break
		}
	}

	if match == nil || !eligible[kind] {
		o.Metrics.TicksTotal.WithLabelValues("advance").Inc()
		return true, o.advance(ctx, room, step)
	}

	return o.handle(ctx, room, step, match)
}

func (o *orchestrator) eligibility(ctx context.Context, room domain.RoomKey, session *domain.Session) (map[domain.EngagementKind]bool, error) {
	eligible := make(map[domain.EngagementKind]bool, 2)
	for _, kind := range []domain.EngagementKind{domain.KindComment, domain.KindQAndA} {
		override, err := o.State.Override(ctx, room, kind)
		if err != nil {
			return nil, err
		}
		eligible[kind] = session.AllowsAI(kind) && (override == nil || *override)
	}
	return eligible, nil
}

func anyEligible(triggers []*domain.Trigger, eligible map[domain.EngagementKind]bool) bool {
	for _, t := range triggers {
		if eligible[t.Kind] {
			return true
		}
	}
	return false
}

func (o *orchestrator) advance(ctx context.Context, room domain.RoomKey, step domain.Step) error {
	return o.State.SetCurrentStep(ctx, room, step.Next())
}

func (o *orchestrator) purge(ctx context.Context, room domain.RoomKey, triggers []*domain.Trigger) error {
	if err := o.Queue.Purge(ctx, room); err != nil {
		return err
	}
	o.log.Info("Room queue purged", "room", room, "purged", len(triggers))
	return nil
}

// actingPersona: ответы на реплики ИИ всегда пишет ведущий, ответы людям - случайный персонаж
func (o *orchestrator) actingPersona(step domain.Step) domain.Persona {
	if step.TargetsAI() {
		return o.Personas.Host(step.Kind())
	}
	return o.Personas.Random()
}

func (o *orchestrator) handle(ctx context.Context, room domain.RoomKey, step domain.Step, trigger *domain.Trigger) (bool, error) {
	kind := step.Kind()
	log := o.log.With("room", room.String(), "trigger_id", trigger.ID, "step", step.String())

	parent, err := o.Messages.GetByID(ctx, trigger.ParentMessageID)
	if errors.Is(err, apperrors.ErrMessageNotFound) {
		log.Warn("Trigger references missing message, skipping")
		return true, o.consume(ctx, room, step, trigger, "skipped")
	}
	if err != nil {
		return false, err
	}

	replies, err := o.Messages.Replies(ctx, parent.ID)
	if err != nil {
		return false, err
	}

	persona := o.actingPersona(step)
	req := GenerationRequest{
		Prompt: replyPrompt(trigger, buildTranscript(replies, trigger.SenderName, persona)),
		Author: persona,
		Kind:   kind,
	}
	if step.TargetsAI() {
		req.ThreadID = parent.ThreadID
	}

	o.Broadcaster.Broadcast(room, domain.TypingEvent(kind), domain.TypingPayload{Kind: kind, IsTyping: true, Persona: persona})
	started := time.Now()
	result, genErr := o.Generator.Generate(ctx, req)
	o.Metrics.GenerationSeconds.Observe(time.Since(started).Seconds())
	o.Broadcaster.Broadcast(room, domain.TypingEvent(kind), domain.TypingPayload{Kind: kind, IsTyping: false, Persona: persona})

	if genErr != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return o.generationFailed(ctx, room, step, trigger, genErr)
	}

	// Комнату могли завершить, пока шла генерация
	ended, err := o.State.IsEnded(ctx, room)
	if err != nil {
		return false, err
	}
	if ended {
		log.Info("Room ended during generation, discarding reply")
		triggers, err := o.Queue.All(ctx, room)
		if err != nil {
			return false, err
		}
		return false, o.purge(ctx, room, triggers)
	}

	reply := domain.NewMessage(room, kind, result.Text, persona.Name, persona.Image, true, &parent.ID)
	if result.ThreadID != "" {
		threadID := result.ThreadID
		reply.ThreadID = &threadID
	}
	if err := o.Messages.Create(ctx, reply); err != nil {
		if errors.Is(err, apperrors.ErrSessionEnded) {
			log.Info("Session ended before reply was stored, discarding reply")
			triggers, err := o.Queue.All(ctx, room)
			if err != nil {
				return false, err
			}
			return false, o.purge(ctx, room, triggers)
		}
		if errors.Is(err, apperrors.ErrMessageNotFound) {
			log.Warn("Parent message disappeared before reply was stored, skipping")
			return true, o.consume(ctx, room, step, trigger, "skipped")
		}
		return false, err
	}

	if err := o.consume(ctx, room, step, trigger, "replied"); err != nil {
		return false, err
	}

	o.Broadcaster.Broadcast(room, domain.ReplyEvent(kind), reply)
	publishListing(ctx, o.Messages, o.Broadcaster, o.log, room, kind)
	log.Info("AI reply published", "persona", persona.Name, "message_id", reply.ID)
	return true, nil
}

// consume убирает триггер из очереди и сдвигает шаг цикла
func (o *orchestrator) consume(ctx context.Context, room domain.RoomKey, step domain.Step, trigger *domain.Trigger, result string) error {
	if _, err := o.Queue.Remove(ctx, room, trigger.ID); err != nil {
		return err
	}
	o.Metrics.TriggersProcessed.WithLabelValues(step.String(), result).Inc()
	o.Metrics.TicksTotal.WithLabelValues(result).Inc()
	return o.advance(ctx, room, step)
}

func (o *orchestrator) generationFailed(ctx context.Context, room domain.RoomKey, step domain.Step, trigger *domain.Trigger, genErr error) (bool, error) {
	// Счетчик живет рядом с очередью в Redis и переживает рестарт процесса
	failures, err := o.Queue.RecordFailure(ctx, room, trigger.ID)
	if err != nil {
		return false, err
	}

	o.Metrics.GenerationFailures.Inc()
	o.Metrics.TicksTotal.WithLabelValues("generation_failed").Inc()
	o.log.Error("Generation exhausted for trigger",
		"error", genErr,
		"room", room,
		"trigger_id", trigger.ID,
		"step", step.String(),
		"failures", failures,
	)
	o.Broadcaster.Broadcast(room, domain.EventError, domain.ErrorPayload{
		Message:   "AI reply could not be generated",
		TriggerID: trigger.ID,
		Step:      step.String(),
	})

	if o.cfg.MaxTriggerFailures <= 0 || failures < o.cfg.MaxTriggerFailures {
		// Триггер остается в очереди, шаг не меняется; повтор по следующему толчку
		return false, nil
	}

	if err := o.Queue.DeadLetter(ctx, trigger); err != nil {
		return false, err
	}
	o.Metrics.TriggersProcessed.WithLabelValues(step.String(), "dead_lettered").Inc()

	if o.Audit != nil {
		_ = o.Audit.LogEvent(ctx, nil, domain.ActorRoleSystem, room, domain.EventTypeTriggerDead, map[string]interface{}{
			"trigger_id": trigger.ID,
			"step":       step.String(),
			"failures":   failures,
			"error":      genErr.Error(),
		})
	}
	o.log.Warn("Trigger moved to dead letters", "room", room, "trigger_id", trigger.ID, "failures", failures)

	return true, o.advance(ctx, room, step)
}
