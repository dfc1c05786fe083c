package engine

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"capeline/internal/config"
	"capeline/internal/domain"
	"capeline/internal/events"
	"capeline/internal/gateway"
	"capeline/internal/repo"
	"capeline/internal/state"
)

var (
	ErrTransitionInProgress = errors.New("a day transition is already processing for this save")
	ErrTransitionCancelled  = errors.New("day transition cancelled; results were not saved and may be incomplete")
	ErrTaskLocked           = errors.New("task is locked")
	ErrIdentityMismatch     = errors.New("task requires the other identity")
	ErrEffortExhausted      = errors.New("no effort left today")
	ErrNoDowntime           = errors.New("no downtime left today")
	ErrAlreadyCompleted     = errors.New("task already completed today")
	ErrNoPendingNews        = errors.New("no news issue is waiting for review")
	ErrOptionUnavailable    = errors.New("option requirement not met")
	ErrInsufficientFunds    = errors.New("not enough money")
)

// TransitionError is the single user-facing failure of a day transition. The day was not
// advanced and nothing was saved; the caller may retry.
type TransitionError struct {
	Slot string
	Day  int
	Err  error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("day %d could not be completed for save %s: %v", e.Day, e.Slot, e.Err)
}

func (e *TransitionError) Unwrap() error { return e.Err }

type actorKey struct{}

// WithActor attributes the events recorded under ctx to actorID.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

func actorFrom(ctx context.Context) string {
	id, _ := ctx.Value(actorKey{}).(string)
	return id
}

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Config  *config.Config
	Gateway gateway.Service
	Runtime *Runtime
	Dice    *Dice
	Logger  *log.Logger
	Now     func() time.Time
}

func New(db *sql.DB, cfg *config.Config, gw gateway.Service) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if gw == nil {
		gw = gateway.Disabled{}
	}
	return Engine{
		DB:      db,
		Repo:    repo.Repo{DB: db},
		Events:  events.Writer{DB: db},
		Config:  cfg,
		Gateway: gw,
		Runtime: NewRuntime(),
		Dice:    NewDice(time.Now().UnixNano()),
		Now:     time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}

func (e Engine) config() *config.Config {
	if e.Config != nil {
		return e.Config
	}
	return config.Default()
}

func (e Engine) gateway() gateway.Service {
	if e.Gateway != nil {
		return e.Gateway
	}
	return gateway.Disabled{}
}

var sharedRuntime = NewRuntime()

func (e Engine) runtime() *Runtime {
	if e.Runtime != nil {
		return e.Runtime
	}
	return sharedRuntime
}

// rng forks an operation-local generator so concurrent operations never share one.
func (e Engine) rng() *rand.Rand {
	if e.Dice == nil {
		return rand.New(rand.NewSource(e.now().UnixNano()))
	}
	return e.Dice.Fork()
}

func (e Engine) tuning() state.Tuning {
	cfg := e.config()
	return state.Tuning{StatXPPerPoint: cfg.Economy.StatXPPerPoint, PowerXPPerLevel: cfg.Economy.PowerXPPerLevel}
}

// Dice hands out seeded generators. Safe for concurrent use.
type Dice struct {
	mu  sync.Mutex
	src *rand.Rand
}

func NewDice(seed int64) *Dice {
	return &Dice{src: rand.New(rand.NewSource(seed))}
}

// Fork returns a new generator seeded from the shared sequence.
func (d *Dice) Fork() *rand.Rand {
	d.mu.Lock()
	defer d.mu.Unlock()
	return rand.New(rand.NewSource(d.src.Int63()))
}

// change is what one player action commits: transitions plus the event describing them.
type change struct {
	Transitions []state.Transition
	Event       string
	EntityKind  string
	EntityID    string
	Payload     events.EventPayload
}

// apply loads the slot, plans a change against it and commits the reduced save with its
// event in one transaction. Edits are refused while the slot is mid-transition.
func (e Engine) apply(ctx context.Context, slot string, plan func(s domain.SaveFile) (change, error)) (domain.SaveFile, error) {
	if e.runtime().Busy(slot) {
		return domain.SaveFile{}, ErrTransitionInProgress
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.SaveFile{}, err
	}
	defer tx.Rollback()

	current, err := e.Repo.GetSaveTx(ctx, tx, slot)
	if err != nil {
		return domain.SaveFile{}, err
	}
	ch, err := plan(current)
	if err != nil {
		return domain.SaveFile{}, err
	}
	next, applied := state.Reduce(current, ch.Transitions...)
	if err := e.Repo.UpsertSaveTx(ctx, tx, slot, next, e.stamp()); err != nil {
		return domain.SaveFile{}, fmt.Errorf("save %s: %w", slot, err)
	}
	payload := ch.Payload
	if payload == nil {
		payload = events.EventPayload{}
	}
	payload["transitions"] = applied
	if err := e.Events.Append(ctx, tx, ch.Event, slot, ch.EntityKind, ch.EntityID, actorFrom(ctx), payload); err != nil {
		return domain.SaveFile{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.SaveFile{}, err
	}
	return next, nil
}

func sameSave(a, b domain.SaveFile) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(ab, bb)
}
