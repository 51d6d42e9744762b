package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"poolLedger/internal/amm"
	"poolLedger/internal/model"
	"poolLedger/internal/storage"
)

// ErrNoEventSource is returned by Events when neither the store nor the
// journal can read events back.
var ErrNoEventSource = errors.New("no event source configured")

// Config holds runtime settings for the ledger service.
type Config struct {
	MaxRetries   int
	RetryBackoff time.Duration
	// Now stamps events; defaults to time.Now.
	Now func() time.Time
}

// Service runs pool operations against a store. Each operation reads the
// pool, computes the outcome and commits it in one store transaction.
type Service struct {
	cfg     Config
	store   storage.Store
	journal storage.Journal
	logger  *zap.Logger
	metrics *Metrics
}

// NewService builds a Service. journal and metrics may be nil.
func NewService(cfg Config, store storage.Store, journal storage.Journal, logger *zap.Logger, metrics *Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		cfg:     cfg,
		store:   store,
		journal: journal,
		logger:  logger,
		metrics: metrics,
	}
}

// CreatePool initializes the pool for an ordered asset pair.
func (s *Service) CreatePool(ctx context.Context, params amm.InitParams) (amm.Outcome, error) {
	out, err := amm.Initialize(params)
	event := s.event(out)
	if err == nil {
		err = s.store.CreatePool(ctx, out, event)
	}
	if err != nil {
		s.reject(model.EventInitialize, amm.PoolID(params.AssetA, params.AssetB), err)
		return amm.Outcome{}, err
	}
	s.commit(model.EventInitialize, out, event)
	return out, nil
}

// Credit funds a custody account from outside the ledger.
func (s *Service) Credit(ctx context.Context, asset, custody common.Address, amount uint64) error {
	if amount == 0 {
		return amm.ErrInvalidAmount
	}
	if err := s.store.Credit(ctx, asset, custody, amount); err != nil {
		return fmt.Errorf("credit: %w", err)
	}
	s.logger.Info("credited",
		zap.String("asset", asset.Hex()),
		zap.String("custody", custody.Hex()),
		zap.Uint64("amount", amount),
	)
	return nil
}

func (s *Service) Deposit(ctx context.Context, id common.Hash, req amm.DepositRequest) (amm.Outcome, error) {
	return s.execute(ctx, model.EventDeposit, id, func(tx storage.Tx) (amm.Outcome, error) {
		return amm.Deposit(tx.Pool(), req)
	})
}

func (s *Service) Withdraw(ctx context.Context, id common.Hash, req amm.WithdrawRequest) (amm.Outcome, error) {
	return s.execute(ctx, model.EventWithdraw, id, func(tx storage.Tx) (amm.Outcome, error) {
		held, err := tx.ShareBalance(req.Owner)
		if err != nil {
			return amm.Outcome{}, fmt.Errorf("share balance: %w", err)
		}
		return amm.Withdraw(tx.Pool(), held, req)
	})
}

func (s *Service) Swap(ctx context.Context, id common.Hash, req amm.SwapRequest) (amm.Outcome, error) {
	return s.execute(ctx, model.EventSwap, id, func(tx storage.Tx) (amm.Outcome, error) {
		return amm.Swap(tx.Pool(), req)
	})
}

func (s *Service) WithdrawProtocolFees(ctx context.Context, id common.Hash, req amm.FeeWithdrawRequest) (amm.Outcome, error) {
	return s.execute(ctx, model.EventWithdrawProtocolFees, id, func(tx storage.Tx) (amm.Outcome, error) {
		return amm.WithdrawProtocolFees(tx.Pool(), req)
	})
}

func (s *Service) SetPaused(ctx context.Context, id common.Hash, caller common.Address, paused bool) (amm.Outcome, error) {
	return s.execute(ctx, model.EventPause, id, func(tx storage.Tx) (amm.Outcome, error) {
		return amm.SetPaused(tx.Pool(), caller, paused)
	})
}

// QuoteSwap prices a swap against the current pool state without executing it.
func (s *Service) QuoteSwap(ctx context.Context, id common.Hash, amountIn uint64, dir amm.Direction) (amm.SwapQuote, error) {
	pool, err := s.store.Pool(ctx, id)
	if err != nil {
		return amm.SwapQuote{}, err
	}
	return amm.QuoteSwap(pool, amountIn, dir)
}

func (s *Service) Pool(ctx context.Context, id common.Hash) (amm.Pool, error) {
	return s.store.Pool(ctx, id)
}

func (s *Service) Pools(ctx context.Context) ([]amm.Pool, error) {
	return s.store.Pools(ctx)
}

func (s *Service) ShareBalance(ctx context.Context, id common.Hash, owner common.Address) (uint64, error) {
	return s.store.ShareBalance(ctx, id, owner)
}

func (s *Service) Balance(ctx context.Context, asset, custody common.Address) (uint64, error) {
	return s.store.Balance(ctx, asset, custody)
}

// Events returns the committed events of a pool, preferring the store's own
// event table over the journal.
func (s *Service) Events(ctx context.Context, id common.Hash) ([]model.LedgerEventRecord, error) {
	if _, err := s.store.Pool(ctx, id); err != nil {
		return nil, err
	}
	if reader, ok := s.store.(storage.EventReader); ok {
		return reader.Events(ctx, id)
	}
	if reader, ok := s.journal.(storage.EventReader); ok {
		return reader.Events(ctx, id)
	}
	return nil, ErrNoEventSource
}

func (s *Service) execute(ctx context.Context, op string, id common.Hash, fn func(tx storage.Tx) (amm.Outcome, error)) (amm.Outcome, error) {
	var (
		out     amm.Outcome
		event   model.LedgerEvent
		attempt int
	)
	err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, isConflict, func(ctx context.Context) error {
		attempt++
		err := s.store.UpdatePool(ctx, id, func(tx storage.Tx) error {
			next, err := fn(tx)
			if err != nil {
				return err
			}
			ev := s.event(next)
			if err := tx.Apply(next, ev); err != nil {
				return err
			}
			out, event = next, ev
			return nil
		})
		if isConflict(err) {
			s.logger.Warn("pool version conflict",
				zap.String("op", op),
				zap.String("pool", id.Hex()),
				zap.Int("attempt", attempt),
			)
		}
		return err
	})
	if err != nil {
		s.reject(op, id, err)
		return amm.Outcome{}, err
	}
	s.commit(op, out, event)
	return out, nil
}

func (s *Service) event(out amm.Outcome) model.LedgerEvent {
	return model.LedgerEvent{
		PoolID:    out.Pool.ID.Hex(),
		Version:   out.Pool.Version,
		EventName: out.Event.Name,
		Timestamp: uint64(s.cfg.Now().Unix()),
		Decoded:   out.Event.Data,
	}
}

// commit runs the post-commit side effects. Journal failures are logged,
// never returned: the operation is already durable in the store.
func (s *Service) commit(op string, out amm.Outcome, event model.LedgerEvent) {
	s.metrics.Operations.WithLabelValues(op, "ok").Inc()
	if data, ok := out.Event.Data.(model.SwapEventData); ok {
		assetIn := out.Pool.AssetA
		if data.Direction == amm.BtoA.String() {
			assetIn = out.Pool.AssetB
		}
		s.metrics.SwapVolume.WithLabelValues(assetIn.Hex()).Add(float64(data.AmountIn))
		s.metrics.ProtocolFees.WithLabelValues(assetIn.Hex()).Add(float64(data.ProtocolFee))
	}

	if s.journal != nil {
		if err := s.journal.PutEvents([]model.LedgerEvent{event}); err != nil {
			s.logger.Warn("journal write failed", zap.String("op", op), zap.Error(err))
		}
	}

	s.logger.Info("operation committed",
		zap.String("op", op),
		zap.String("pool", out.Pool.ID.Hex()),
		zap.Uint64("version", out.Pool.Version),
		zap.Uint64("reserve_a", out.Pool.ReserveA),
		zap.Uint64("reserve_b", out.Pool.ReserveB),
		zap.Uint64("share_supply", out.Pool.ShareSupply),
		zap.Int("transfers", len(out.Transfers)),
	)
}

func (s *Service) reject(op string, id common.Hash, err error) {
	result := Classify(err)
	s.metrics.Operations.WithLabelValues(op, result).Inc()
	s.logger.Warn("operation failed",
		zap.String("op", op),
		zap.String("pool", id.Hex()),
		zap.String("result", result),
		zap.Error(err),
	)
}

func isConflict(err error) bool {
	return errors.Is(err, storage.ErrVersionConflict)
}

// rejections are failures caused by the request rather than the ledger.
var rejections = []error{
	amm.ErrInvalidFeeConfig,
	amm.ErrDuplicateAsset,
	amm.ErrInsufficientInitialLiquidity,
	amm.ErrSlippageExceeded,
	amm.ErrInsufficientShareBalance,
	amm.ErrInsufficientLiquidity,
	amm.ErrArithmeticOverflow,
	amm.ErrDivisionByZero,
	amm.ErrUnauthorized,
	amm.ErrInsufficientFeeBalance,
	amm.ErrInvalidAmount,
	amm.ErrPoolPaused,
	storage.ErrPoolNotFound,
	storage.ErrPoolExists,
	storage.ErrInsufficientFunds,
}

// Classify returns the metric result label for an operation error.
func Classify(err error) string {
	if err == nil {
		return "ok"
	}
	if isConflict(err) {
		return "conflict"
	}
	for _, target := range rejections {
		if errors.Is(err, target) {
			return "rejected"
		}
	}
	return "error"
}
