package timeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"lifestory/internal/config"
	"lifestory/internal/domain"
	"lifestory/internal/events"
	"lifestory/internal/metrics"
	"lifestory/internal/models"
	"lifestory/internal/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrUnknownItemType = errors.New("unknown item type")
	ErrNotInitialized  = errors.New("timeline store is not initialized")
	ErrItemNotFound    = errors.New("timeline item not found")
)

// Options tunes retry and polling behaviour.
type Options struct {
	RetryPolicy       worker.RetryPolicy
	RetryInterval     time.Duration
	PollInterval      time.Duration
	PollErrorInterval time.Duration
	// PollTimeout bounds transcription polling. Zero polls until the server
	// reports a terminal status.
	PollTimeout time.Duration
	Source      string
}

// DefaultOptions mirrors the mobile client: 30s retry cycle, 5s base
// backoff, three retries, 3s transcription polls.
func DefaultOptions() Options {
	return Options{
		RetryPolicy:       worker.DefaultRetryPolicy(),
		RetryInterval:     models.DefaultRetryInterval,
		PollInterval:      models.DefaultPollInterval,
		PollErrorInterval: models.DefaultPollErrorInterval,
		PollTimeout:       models.DefaultPollTimeout,
		Source:            models.DefaultSource,
	}
}

// OptionsFromConfig converts configuration into store options.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := Options{
		RetryPolicy: worker.RetryPolicy{
			MaxRetries:    cfg.Timeline.MaxRetries,
			InitialDelay:  cfg.Timeline.BaseBackoff,
			BackoffFactor: 2,
		},
		RetryInterval:     cfg.Timeline.RetryInterval,
		PollInterval:      cfg.Timeline.PollInterval,
		PollErrorInterval: cfg.Timeline.PollErrorInterval,
		Source:            cfg.API.Source,
	}
	if cfg.Timeline.PollTimeout != nil {
		opts.PollTimeout = *cfg.Timeline.PollTimeout
	}
	return opts
}

// Deps are the collaborators a Store is built from.
type Deps struct {
	KV       domain.KVStore
	Uploader domain.Uploader
	Clock    domain.Clock
	Logger   *zerolog.Logger
}

var _ domain.TimelineService = (*Store)(nil)

// Store is the optimistic timeline state container.
type Store struct {
	kv       domain.KVStore
	uploader domain.Uploader
	clock    domain.Clock
	logger   zerolog.Logger
	opts     Options

	bus       *events.EventBus
	scheduler *worker.Scheduler

	mu          sync.Mutex
	items       map[string]*models.TimelineItem
	retryQueue  []models.RetryQueueEntry
	initialized bool
	started     bool
	// aliases maps temporary ids to the server ids they were re-keyed to.
	aliases map[string]string

	// notifyMu serialises notifications so each delivered snapshot is
	// taken after the mutation that triggered it.
	notifyMu sync.Mutex
}

// NewStore builds a store from deps, filling unset options with defaults.
func NewStore(deps Deps, opts Options) (*Store, error) {
	if deps.KV == nil {
		return nil, errors.New("timeline store requires a key-value store")
	}
	if deps.Uploader == nil {
		return nil, errors.New("timeline store requires an uploader")
	}
	if deps.Clock == nil {
		deps.Clock = domain.SystemClock{}
	}
	logger := zerolog.Nop()
	if deps.Logger != nil {
		logger = deps.Logger.With().Str("component", "timeline").Logger()
	}

	defaults := DefaultOptions()
	if opts.RetryPolicy.InitialDelay <= 0 {
		opts.RetryPolicy = defaults.RetryPolicy
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = defaults.RetryInterval
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaults.PollInterval
	}
	if opts.PollErrorInterval <= 0 {
		opts.PollErrorInterval = defaults.PollErrorInterval
	}
	if opts.Source == "" {
		opts.Source = defaults.Source
	}

	return &Store{
		kv:        deps.KV,
		uploader:  deps.Uploader,
		clock:     deps.Clock,
		logger:    logger,
		opts:      opts,
		bus:       events.NewEventBus(&logger),
		scheduler: worker.NewScheduler(context.Background(), &logger),
		items:     make(map[string]*models.TimelineItem),
		aliases:   make(map[string]string),
	}, nil
}

// Init loads persisted state. Read failures are logged and leave the store
// empty. Subscribers are notified once loading finishes.
func (s *Store) Init(ctx context.Context) {
	items, queue, requeued := s.load(ctx)

	s.mu.Lock()
	s.items = items
	s.retryQueue = queue
	s.initialized = true
	if requeued > 0 {
		_ = s.saveQueueLocked(ctx)
	}
	s.mu.Unlock()

	s.logger.Info().Int("items", len(items)).Int("retry_queue", len(queue)).Msg("timeline loaded")
	s.notify()
}

// Start initializes the store if needed, resumes interrupted uploads and
// transcription polls, and begins the periodic retry cycle.
func (s *Store) Start(ctx context.Context) error {
	s.mu.Lock()
	initialized, started := s.initialized, s.started
	s.started = true
	s.mu.Unlock()

	if started {
		return errors.New("timeline store already started")
	}
	if !initialized {
		s.Init(ctx)
	}

	s.resume()
	s.scheduler.Every("retry-cycle", s.opts.RetryInterval, func(ctx context.Context) {
		s.ProcessRetryQueue(ctx)
	})
	return nil
}

// Close stops the retry cycle, pending polls and in-flight uploads.
func (s *Store) Close() {
	s.scheduler.Stop()
}

// Subscribe registers a listener invoked with the full state after every
// mutation. Listener errors and panics are logged and isolated. Listeners
// run on the mutating goroutine and must not mutate the store synchronously.
func (s *Store) Subscribe(observer domain.TimelineObserver) func() {
	return s.bus.Subscribe(events.EventStateChanged, func(event *events.Event) error {
		return observer(event.State)
	})
}

// OnItemEvent registers a handler for item_finalized or item_failed events.
func (s *Store) OnItemEvent(eventType string, handler func(item models.TimelineItem)) func() {
	return s.bus.Subscribe(eventType, func(event *events.Event) error {
		if event.Item != nil {
			handler(*event.Item)
		}
		return nil
	})
}

// State returns the current snapshot: items sorted newest first, a copy of
// the retry queue and the initialized flag.
func (s *Store) State() models.TimelineState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Store) stateLocked() models.TimelineState {
	return models.TimelineState{
		Items:       s.sortedItemsLocked(),
		RetryQueue:  append([]models.RetryQueueEntry(nil), s.retryQueue...),
		Initialized: s.initialized,
	}
}

func (s *Store) sortedItemsLocked() []models.TimelineItem {
	out := make([]models.TimelineItem, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, *item)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *Store) notify() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	state := s.State()
	stats := computeStats(state)
	byStatus := make(map[string]int, len(stats.ByStatus))
	for status, count := range stats.ByStatus {
		byStatus[string(status)] = count
	}
	metrics.SetTimelineStats(byStatus, stats.RetryQueueSize)

	s.bus.Publish(&events.Event{Type: events.EventStateChanged, State: state})
}

func (s *Store) publishItem(eventType string, item models.TimelineItem) {
	s.bus.Publish(&events.Event{Type: eventType, Item: &item})
}

func (s *Store) now() time.Time {
	return s.clock.Now().UTC()
}

// newTempID returns a provisional id built from the clock and a random part.
func (s *Store) newTempID() string {
	random := uuid.NewString()
	return models.TempIDPrefix + strconv.FormatInt(s.now().UnixMilli(), 10) + "_" + random[:8]
}

func (s *Store) removeFromQueueLocked(id string) bool {
	for i, entry := range s.retryQueue {
		if entry.ID == id {
			s.retryQueue = append(s.retryQueue[:i:i], s.retryQueue[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Store) inQueueLocked(id string) bool {
	for _, entry := range s.retryQueue {
		if entry.ID == id {
			return true
		}
	}
	return false
}

func (s *Store) wrapPersistErr(what string, err error) error {
	return fmt.Errorf("persist %s: %w", what, err)
}
