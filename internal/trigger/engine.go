// Package trigger decides whether a matched clip should be played.
//
// An [Engine] evaluates three gates in a fixed order: whether there are
// candidates at all, whether the cooldown is active and whether a random draw
// passes the configured trigger probability. When all gates pass, one of the
// candidates is selected, preferring the clips that matched the most specific
// tag. Triggering does not start the cooldown: the cooldown starts when the
// client reports that playback has ended (see [Engine.StartCooldown]).
//
// All methods are safe for concurrent use. The check-then-select sequence of
// [Engine.AttemptTrigger] and [Engine.StartCooldown] are serialized by a
// single mutex.
package trigger

import (
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/mgoltzsche/sobub/internal/model"
)

const (
	DefaultCooldown    = 180 * time.Second
	DefaultProbability = 50.0
)

// Outcome is the result kind of a trigger attempt.
type Outcome string

const (
	Triggered            Outcome = "triggered"
	BlockedByCooldown    Outcome = "cooldown"
	BlockedByProbability Outcome = "probability"
	NoCandidates         Outcome = "no-candidates"
)

// Decision is the result of [Engine.AttemptTrigger].
type Decision struct {
	Outcome Outcome
	// Clip is set when Outcome is Triggered.
	Clip *model.Clip
	// CooldownRemaining is set in seconds when Outcome is BlockedByCooldown.
	CooldownRemaining int
}

// Status is a snapshot of the engine state.
type Status struct {
	CooldownSeconds   int        `json:"cooldown_seconds"`
	Probability       float64    `json:"trigger_probability"`
	CooldownActive    bool       `json:"cooldown_active"`
	CooldownRemaining int        `json:"cooldown_remaining"`
	LastTrigger       *time.Time `json:"last_trigger_time"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithRand replaces the random source.
// draw must return a value within [0,100), pick one within [0,n).
func WithRand(draw func() float64, pick func(n int) int) Option {
	return func(e *Engine) {
		e.draw = draw
		e.pick = pick
	}
}

// WithCooldown sets the initial cooldown duration.
func WithCooldown(d time.Duration) Option {
	return func(e *Engine) {
		e.cooldown = max(d, 0)
	}
}

// WithProbability sets the initial trigger probability.
func WithProbability(p float64) Option {
	return func(e *Engine) {
		e.probability = clamp(p)
	}
}

// Engine gates and selects clip playback.
type Engine struct {
	mutex       sync.Mutex
	cooldown    time.Duration
	probability float64
	lastTrigger time.Time
	now         func() time.Time
	draw        func() float64
	pick        func(n int) int
}

// New creates an Engine using the default cooldown and probability.
func New(opts ...Option) *Engine {
	e := &Engine{
		cooldown:    DefaultCooldown,
		probability: DefaultProbability,
		now:         time.Now,
		draw:        func() float64 { return rand.Float64() * 100 },
		pick:        rand.IntN,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// AttemptTrigger decides whether one of the candidates should be played.
// scores maps matched tags to their specificity and may be nil.
func (e *Engine) AttemptTrigger(candidates []model.Clip, scores map[string]int) Decision {
	if len(candidates) == 0 {
		return Decision{Outcome: NoCandidates}
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()

	if remaining := e.remaining(); remaining > 0 {
		return Decision{Outcome: BlockedByCooldown, CooldownRemaining: remaining}
	}

	if !e.shouldTrigger() {
		return Decision{Outcome: BlockedByProbability}
	}

	clip := e.selectClip(candidates, scores)

	return Decision{Outcome: Triggered, Clip: &clip}
}

func (e *Engine) selectClip(candidates []model.Clip, scores map[string]int) model.Clip {
	if len(scores) == 0 {
		return candidates[e.pick(len(candidates))]
	}

	lowered := make(map[string]int, len(scores))
	for tag, score := range scores {
		lowered[strings.ToLower(tag)] = max(lowered[strings.ToLower(tag)], score)
	}

	best := make([]int, 0, len(candidates))
	bestScore := -1

	for i, c := range candidates {
		score := clipScore(c, lowered)

		switch {
		case score > bestScore:
			bestScore = score
			best = append(best[:0], i)
		case score == bestScore:
			best = append(best, i)
		}
	}

	return candidates[best[e.pick(len(best))]]
}

func clipScore(c model.Clip, scores map[string]int) int {
	score := 0

	for _, tag := range c.Tags {
		if s, ok := scores[strings.ToLower(tag)]; ok && s > score {
			score = s
		}
	}

	return score
}

// ShouldTrigger draws a random number and reports whether it is lower than
// the configured probability.
func (e *Engine) ShouldTrigger() bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return e.shouldTrigger()
}

func (e *Engine) shouldTrigger() bool {
	return e.draw() < e.probability
}

// SetCooldown sets the minimum interval between playback end and the next trigger.
func (e *Engine) SetCooldown(d time.Duration) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.cooldown = max(d, 0)
}

// SetProbability sets the trigger probability, clamped into [0,100].
func (e *Engine) SetProbability(p float64) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.probability = clamp(p)
}

// StartCooldown starts the cooldown at the current time.
func (e *Engine) StartCooldown() {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if now := e.now(); now.After(e.lastTrigger) {
		e.lastTrigger = now
	}
}

// ResetCooldown deactivates the cooldown.
func (e *Engine) ResetCooldown() {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.lastTrigger = time.Time{}
}

// IsCooldownActive reports whether a trigger would currently be blocked by the cooldown.
func (e *Engine) IsCooldownActive() bool {
	return e.CooldownRemaining() > 0
}

// CooldownRemaining returns the remaining cooldown in whole seconds, rounded up.
func (e *Engine) CooldownRemaining() int {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return e.remaining()
}

func (e *Engine) remaining() int {
	if e.lastTrigger.IsZero() {
		return 0
	}

	left := e.cooldown - e.now().Sub(e.lastTrigger)
	if left <= 0 {
		return 0
	}

	return int(math.Ceil(left.Seconds()))
}

// Status returns a snapshot of the engine state.
func (e *Engine) Status() Status {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	remaining := e.remaining()
	s := Status{
		CooldownSeconds:   int(e.cooldown / time.Second),
		Probability:       e.probability,
		CooldownActive:    remaining > 0,
		CooldownRemaining: remaining,
	}

	if !e.lastTrigger.IsZero() {
		t := e.lastTrigger
		s.LastTrigger = &t
	}

	return s
}

func clamp(p float64) float64 {
	if math.IsNaN(p) {
		return 0
	}

	return math.Min(100, math.Max(0, p))
}
