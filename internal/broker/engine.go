// Package broker implements the paper-trading execution engine: a simulated
// brokerage that maintains balances, open positions, and conditional exit
// orders, reacts to a live price stream, and settles fills through a bounded
// slippage model.
package broker

import (
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/tradecanvas/paperbroker/internal/broker/pricebook"
	"github.com/tradecanvas/paperbroker/internal/broker/slippage"
	"github.com/tradecanvas/paperbroker/internal/logger"
	"github.com/tradecanvas/paperbroker/internal/persistence"
	"github.com/tradecanvas/paperbroker/internal/types"
	"github.com/tradecanvas/paperbroker/pkg/errors"
	"go.uber.org/zap"
)

// DefaultHistoryLimit bounds the order-history projection handed to the UI.
const DefaultHistoryLimit = 50

// Config holds the engine's tunables.
type Config struct {
	// InitialBalanceUSD funds a fresh account when no snapshot exists.
	InitialBalanceUSD float64 `yaml:"initial_balance_usd"`
	// SnapshotKey addresses the persisted snapshot; empty uses the default.
	SnapshotKey string `yaml:"snapshot_key"`
	// SlippageSeed seeds the slippage random source for reproducible runs.
	// Zero seeds from the wall clock.
	SlippageSeed int64 `yaml:"slippage_seed"`
	// HistoryLimit bounds the order-history projection (0 = default).
	HistoryLimit int `yaml:"history_limit"`
}

type request struct {
	fn func()
}

// Engine owns the ledger exclusively. Ticks and commands are serialized onto
// a single goroutine so no two transitions interleave; persistence is
// decoupled from the decision path through a latest-wins snapshot channel,
// so a write failure never rolls back a settled trade.
type Engine struct {
	cfg       Config
	log       *logger.Logger
	gateway   *persistence.Gateway
	slip      *slippage.Model
	evaluator *TickEvaluator
	book      *pricebook.Book
	validate  *validator.Validate
	clock     func() time.Time

	ledger Ledger

	requests chan request
	flushCh  chan types.Snapshot
	quit     chan struct{}
	wg       sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// Option customizes an Engine at construction time.
type Option func(*Engine)

// WithClock injects a time source; tests use it for deterministic stamps.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithSlippageModel replaces the seeded slippage model.
func WithSlippageModel(model *slippage.Model) Option {
	return func(e *Engine) {
		e.slip = model
	}
}

// NewEngine hydrates the ledger from the gateway (a fresh funded account
// when no snapshot exists) and starts the event loop and the persistence
// flusher.
func NewEngine(cfg Config, gateway *persistence.Gateway, log *logger.Logger, opts ...Option) *Engine {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}

	seed := cfg.SlippageSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	e := &Engine{
		cfg:      cfg,
		log:      log,
		gateway:  gateway,
		slip:     slippage.New(seed),
		book:     pricebook.New(),
		validate: validator.New(),
		clock:    func() time.Time { return time.Now().UTC() },
		requests: make(chan request),
		flushCh:  make(chan types.Snapshot, 1),
		quit:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.evaluator = NewTickEvaluator(e.slip, log)

	if snapshot := gateway.Read(); snapshot.IsSome() {
		e.ledger = LedgerFromSnapshot(snapshot.Unwrap())
		log.Info("hydrated account from snapshot",
			zap.Float64("usd_balance", e.ledger.USDBalance()),
			zap.Int("open_positions", len(e.ledger.OpenPositions)),
			zap.Int("open_orders", len(e.ledger.OpenOrders)),
		)
	} else {
		e.ledger = NewLedger(cfg.InitialBalanceUSD, e.clock())
		log.Info("created fresh account", zap.Float64("initial_balance_usd", cfg.InitialBalanceUSD))
	}

	e.wg.Add(2)
	go e.loop()
	go e.flusher()

	return e
}

// loop is the single mutation goroutine: every tick and command runs here.
func (e *Engine) loop() {
	defer e.wg.Done()

	for {
		select {
		case req := <-e.requests:
			req.fn()
		case <-e.quit:
			return
		}
	}
}

// flusher drains the latest-wins snapshot channel. Failed writes are logged;
// the in-memory ledger stays authoritative until the next successful write.
func (e *Engine) flusher() {
	defer e.wg.Done()

	for {
		select {
		case snapshot := <-e.flushCh:
			if err := e.gateway.Write(&snapshot); err != nil {
				e.log.Error("failed to persist snapshot", zap.Error(err))
			}
		case <-e.quit:
			return
		}
	}
}

// do runs fn on the loop goroutine and waits for it to finish.
func (e *Engine) do(fn func()) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()

		return errors.New(errors.ErrCodeEngineClosed, "engine is closed")
	}
	e.mu.Unlock()

	done := make(chan struct{})

	select {
	case e.requests <- request{fn: func() {
		fn()
		close(done)
	}}:
	case <-e.quit:
		return errors.New(errors.ErrCodeEngineClosed, "engine is closed")
	}

	select {
	case <-done:
		return nil
	case <-e.quit:
		return errors.New(errors.ErrCodeEngineClosed, "engine is closed")
	}
}

// commit installs a new ledger, records audit events, and schedules an
// asynchronous snapshot write. Runs on the loop goroutine only.
func (e *Engine) commit(next Ledger, events []types.ExecutionEvent) {
	e.ledger = next

	if err := e.gateway.RecordEvents(events); err != nil {
		e.log.Warn("failed to record execution events", zap.Error(err))
	}

	snapshot := next.Snapshot

	// Latest-wins: replace any snapshot still waiting to be flushed.
	select {
	case e.flushCh <- snapshot:
	default:
		select {
		case <-e.flushCh:
		default:
		}

		select {
		case e.flushCh <- snapshot:
		default:
		}
	}
}

// OnTick folds one price tick into the engine: the pricebook first, then the
// full scan-and-settle pass. The pass completes before the next tick or
// command is processed.
func (e *Engine) OnTick(tick types.Tick) error {
	return e.do(func() {
		if !tick.Valid() {
			e.log.Debug("discarded invalid tick", zap.String("symbol", tick.Symbol), zap.Float64("price", tick.Price))

			return
		}

		e.book.Apply(tick)

		next, events := e.evaluator.Evaluate(e.ledger, tick)
		e.commit(next, events)
	})
}

// OpenPosition opens a position at the given entry price, debiting margin.
func (e *Engine) OpenPosition(params OpenPositionParams) (types.Position, error) {
	if err := e.validate.Struct(params); err != nil {
		return types.Position{}, errors.Wrap(errors.ErrCodeInvalidCommand, "invalid open-position command", err)
	}

	var (
		position types.Position
		cmdErr   error
	)

	err := e.do(func() {
		next, p, events, err := e.ledger.OpenPosition(params, e.clock())
		if err != nil {
			cmdErr = err
			// Rejections still record their error event.
			if errors.IsRejection(err) {
				e.commit(next, events)
			}

			return
		}

		position = p
		e.commit(next, events)
	})
	if err != nil {
		return types.Position{}, err
	}

	return position, cmdErr
}

// PlaceExitOrder attaches a conditional exit order to an open position. The
// returned warnings flag suspicious but legal inputs; the order is created
// regardless.
func (e *Engine) PlaceExitOrder(params PlaceExitOrderParams) (types.Order, []types.ValidationWarning, error) {
	if err := e.validate.Struct(params); err != nil {
		return types.Order{}, nil, errors.Wrap(errors.ErrCodeInvalidCommand, "invalid place-exit-order command", err)
	}

	var (
		order    types.Order
		warnings []types.ValidationWarning
		cmdErr   error
	)

	err := e.do(func() {
		positionOpt := e.ledger.GetPosition(params.PositionID)

		var lastPrice optional.Option[float64]
		if positionOpt.IsSome() {
			lastPrice = e.book.LastPrice(positionOpt.Unwrap().Symbol)
		}

		next, placed, w, events, err := e.ledger.PlaceExitOrder(params, lastPrice, e.clock())
		if err != nil {
			cmdErr = err

			return
		}

		order = placed
		warnings = w
		e.commit(next, events)
	})
	if err != nil {
		return types.Order{}, nil, err
	}

	return order, warnings, cmdErr
}

// ModifyExitOrder updates an open exit order in place. The order keeps its
// type; a type change is rejected.
func (e *Engine) ModifyExitOrder(orderID string, params PlaceExitOrderParams) ([]types.ValidationWarning, error) {
	if err := e.validate.Struct(params); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidCommand, "invalid modify-exit-order command", err)
	}

	var (
		warnings []types.ValidationWarning
		cmdErr   error
	)

	err := e.do(func() {
		orderOpt := e.ledger.GetOrder(orderID)

		var lastPrice optional.Option[float64]
		if orderOpt.IsSome() {
			lastPrice = e.book.LastPrice(orderOpt.Unwrap().Symbol)
		}

		next, w, events, err := e.ledger.ModifyExitOrder(orderID, params, lastPrice, e.clock())
		if err != nil {
			cmdErr = err

			return
		}

		warnings = w
		e.commit(next, events)
	})
	if err != nil {
		return nil, err
	}

	return warnings, cmdErr
}

// CancelExitOrder cancels an open order. Canceling an already-settled order
// is a no-op: a cancel racing an in-flight fill resolves as fill-wins.
func (e *Engine) CancelExitOrder(orderID string) error {
	var cmdErr error

	err := e.do(func() {
		next, events, err := e.ledger.CancelOrder(orderID, e.clock())
		if err != nil {
			cmdErr = err

			return
		}

		e.commit(next, events)
	})
	if err != nil {
		return err
	}

	return cmdErr
}

// ClosePosition closes fraction (0, 1] of a position at the current market
// price passed through the slippage model.
func (e *Engine) ClosePosition(positionID string, fraction float64) error {
	var cmdErr error

	err := e.do(func() {
		positionOpt := e.ledger.GetPosition(positionID)
		if positionOpt.IsNone() {
			cmdErr = errors.Newf(errors.ErrCodeUnknownPosition, "position %s does not exist", positionID)

			return
		}

		position := positionOpt.Unwrap()

		lastPriceOpt := e.book.LastPrice(position.Symbol)
		if lastPriceOpt.IsNone() {
			cmdErr = errors.Newf(errors.ErrCodeNonFinitePrice, "no market price observed for %s", position.Symbol)

			return
		}

		side := types.OrderSideSell
		if position.Side == types.PositionSideShort {
			side = types.OrderSideBuy
		}

		fillPrice := e.slip.Apply(lastPriceOpt.Unwrap(), side, position.Amount*fraction, e.ledger.SlippageConfig)

		next, events, err := e.ledger.ClosePosition(positionID, fraction, fillPrice, e.clock())
		if err != nil {
			cmdErr = err

			return
		}

		e.commit(next, events)
	})
	if err != nil {
		return err
	}

	return cmdErr
}

// SetSlippageConfig replaces the account-wide slippage configuration.
func (e *Engine) SetSlippageConfig(cfg types.SlippageConfig) error {
	if err := e.validate.Struct(cfg); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidCommand, "invalid slippage config", err)
	}

	return e.do(func() {
		e.commit(e.ledger.SetSlippageConfig(cfg, e.clock()), nil)
	})
}

// ResetAccount discards all state and funds a fresh account.
func (e *Engine) ResetAccount(initialUSD float64) error {
	if !types.IsFinite(initialUSD) || initialUSD < 0 {
		return errors.Newf(errors.ErrCodeInvalidAmount, "initial balance %v is not a non-negative finite number", initialUSD)
	}

	return e.do(func() {
		e.commit(NewLedger(initialUSD, e.clock()), nil)
	})
}

// Close stops the loop and synchronously flushes the final snapshot so no
// settled state is lost on shutdown.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()

		return nil
	}

	e.closed = true
	e.mu.Unlock()

	close(e.quit)
	e.wg.Wait()

	snapshot := e.ledger.Snapshot
	if err := e.gateway.Write(&snapshot); err != nil {
		e.log.Error("failed to flush final snapshot", zap.Error(err))

		return err
	}

	return nil
}
