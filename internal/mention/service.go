package mention

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultDebounce     = 500 * time.Millisecond
	DefaultFetchTimeout = 10 * time.Second
)

type Options struct {
	// Debounce is the quiet period after the last trigger change before
	// members are fetched. Zero means DefaultDebounce.
	Debounce time.Duration
	// FetchTimeout bounds a single member fetch. Zero means
	// DefaultFetchTimeout, negative disables the timeout.
	FetchTimeout time.Duration
	Log          *zerolog.Logger
}

// Trigger is the active partial mention token, e.g. "@ali".
type Trigger struct {
	Value  string `json:"trigger,omitempty"`
	Active bool   `json:"active"`
}

type FetchError struct {
	Trigger string
	Err     error
}

func (fe *FetchError) Error() string {
	return "failed to fetch members for " + fe.Trigger + ": " + fe.Err.Error()
}

func (fe *FetchError) Unwrap() error {
	return fe.Err
}

// Service turns composer text into debounced mention suggestions for a
// single composer session.
type Service struct {
	source       MemberSource
	log          zerolog.Logger
	debounce     time.Duration
	fetchTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	// publishMu orders sequence checks with the publications they guard.
	publishMu sync.Mutex
	mu        sync.Mutex
	slot      Trigger
	timer     *time.Timer
	timerGen  uint64
	seq       uint64
	snapshot  []SuggestionItem
	closed    bool

	items   *observable[[]SuggestionItem]
	trigger *observable[Trigger]
	errors  *observable[*FetchError]
}

func NewService(source MemberSource, opts Options) *Service {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.FetchTimeout == 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	log := zerolog.Nop()
	if opts.Log != nil {
		log = *opts.Log
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		source:       source,
		log:          log,
		debounce:     opts.Debounce,
		fetchTimeout: opts.FetchTimeout,
		ctx:          ctx,
		cancel:       cancel,
		items:        newObservable([]SuggestionItem{}),
		trigger:      newObservable(Trigger{}),
		errors:       newSignal[*FetchError](),
	}
}

// ProcessTextMessage clears the current suggestions and trigger, then
// publishes the trigger found at the end of text, if any. Members are
// fetched once the trigger has been stable for the debounce period.
func (s *Service) ProcessTextMessage(text string) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	previous := s.slot
	s.seq++
	s.stopTimerLocked()
	s.slot = Trigger{}
	token, ok := ParseTrigger(text)
	if ok {
		s.slot = Trigger{Value: token, Active: true}
		s.startTimerLocked()
	}
	current := s.slot
	s.mu.Unlock()

	// Trigger first, so item listeners already see the new trigger.
	if previous.Active {
		s.trigger.Set(Trigger{})
	}
	if current.Active {
		s.trigger.Set(current)
	}
	s.items.Set([]SuggestionItem{})
}

func (s *Service) CurrentTextTrigger() (string, bool) {
	t := s.trigger.Get()
	return t.Value, t.Active
}

func (s *Service) Items() []SuggestionItem {
	return s.items.Get()
}

// Subscribe registers fn for suggestion list updates. fn is called with the
// current list immediately. Listeners must not call ProcessTextMessage
// synchronously.
func (s *Service) Subscribe(fn func([]SuggestionItem)) func() {
	return s.items.Subscribe(fn)
}

func (s *Service) SubscribeTrigger(fn func(Trigger)) func() {
	return s.trigger.Subscribe(fn)
}

func (s *Service) SubscribeErrors(fn func(*FetchError)) func() {
	return s.errors.Subscribe(fn)
}

func (s *Service) Close() {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stopTimerLocked()
	s.cancel()
	s.mu.Unlock()

	s.items.Clear()
	s.trigger.Clear()
	s.errors.Clear()
}

func (s *Service) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerGen++
}

func (s *Service) startTimerLocked() {
	gen := s.timerGen
	s.timer = time.AfterFunc(s.debounce, func() {
		s.fire(gen)
	})
}

func (s *Service) fire(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.timerGen || !s.slot.Active {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	trigger := s.slot.Value
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	s.fetch(seq, trigger)
}

func (s *Service) fetch(seq uint64, trigger string) {
	log := s.log.With().Str("trigger", trigger).Uint64("seq", seq).Logger()
	ctx := s.ctx
	if s.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
	}
	log.Debug().Msg("Fetching members for mention trigger")
	members, err := s.source.FetchMembers(ctx)

	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	s.mu.Lock()
	isLatest := !s.closed && seq == s.seq
	var items []SuggestionItem
	if isLatest && err == nil {
		items = Project(members)
		s.snapshot = items
	}
	s.mu.Unlock()

	if !isLatest {
		log.Debug().Err(err).Msg("Discarding stale member fetch result")
		return
	} else if err != nil {
		log.Warn().Err(err).Msg("Failed to fetch members for mention suggestions")
		s.errors.Set(&FetchError{Trigger: trigger, Err: err})
		return
	}
	filtered := Filter(items, PartialName(trigger))
	log.Debug().Int("members", len(items)).Int("matches", len(filtered)).Msg("Publishing mention suggestions")
	s.items.Set(filtered)
}
