package core

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ledgersim/config"
	coreerrors "ledgersim/core/errors"
	"ledgersim/core/events"
	"ledgersim/core/state"
	"ledgersim/core/types"
	"ledgersim/core/vm"
	"ledgersim/crypto"
	"ledgersim/observability"
	"ledgersim/observability/logging"
)

type newAddressKey struct {
	creator crypto.Address
	nonce   uint64
}

// Executor applies transactions to a ledger one at a time. Every top-level
// transaction either commits all of its effects or none of them, except for
// the sender nonce which is consumed as soon as the input is accepted.
type Executor struct {
	mu           sync.Mutex
	ledger       *state.Ledger
	registry     *Registry
	block        types.BlockContext
	gas          config.Gas
	maxDepth     int
	logger       *slog.Logger
	logOut       io.Writer
	metrics      *observability.ExecutorMetrics
	tracer       trace.Tracer
	emitter      events.Emitter
	newAddresses map[newAddressKey]crypto.Address
}

// Option customises an Executor.
type Option func(*Executor)

// WithLogger sets the logger used for transaction outcomes.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLogOutput sets where the logger built from the logging configuration
// writes. It has no effect together with WithLogger.
func WithLogOutput(w io.Writer) Option {
	return func(e *Executor) {
		if w != nil {
			e.logOut = w
		}
	}
}

// WithEmitter forwards committed events to emitter.
func WithEmitter(emitter events.Emitter) Option {
	return func(e *Executor) {
		if emitter != nil {
			e.emitter = emitter
		}
	}
}

// WithMetrics overrides the metrics registry. A nil registry disables
// metrics.
func WithMetrics(metrics *observability.ExecutorMetrics) Option {
	return func(e *Executor) { e.metrics = metrics }
}

// WithBlockContext overrides the block fixtures taken from the configuration.
func WithBlockContext(block types.BlockContext) Option {
	return func(e *Executor) { e.block = block }
}

// NewExecutor builds an executor over ledger and registry.
func NewExecutor(ledger *state.Ledger, registry *Registry, cfg *config.Config, opts ...Option) (*Executor, error) {
	if ledger == nil {
		return nil, fmt.Errorf("executor: ledger required")
	}
	if registry == nil {
		return nil, fmt.Errorf("executor: registry required")
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	block, err := cfg.Block.Context()
	if err != nil {
		return nil, err
	}
	e := &Executor{
		ledger:       ledger,
		registry:     registry,
		block:        block,
		gas:          cfg.Gas,
		maxDepth:     cfg.MaxCallDepth,
		logOut:       os.Stderr,
		metrics:      observability.Executor(),
		tracer:       otel.Tracer("ledgersim/core"),
		emitter:      events.NoopEmitter{},
		newAddresses: make(map[newAddressKey]crypto.Address),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.New(e.logOut, cfg.Logging.Service, cfg.Logging.Env, slog.LevelInfo)
	}
	return e, nil
}

// Ledger exposes the underlying ledger.
func (e *Executor) Ledger() *state.Ledger { return e.ledger }

// Block returns the block fixtures visible to contracts.
func (e *Executor) Block() types.BlockContext { return e.block }

// SetNewAddress pins the address assigned to the contract deployed by creator
// with the given account nonce.
func (e *Executor) SetNewAddress(creator crypto.Address, nonce uint64, addr crypto.Address) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.newAddresses[newAddressKey{creator: creator, nonce: nonce}] = addr
}

// Execute applies one call or transfer. Contract failures are reported
// through the result status; only arena faults and panics raised by entry
// points propagate, after the ledger has been reverted.
func (e *Executor) Execute(ctx context.Context, tx *types.TxInput) *types.TxResult {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "executor.execute",
		trace.WithAttributes(txAttributes(tx)...))
	defer span.End()

	if err := validateTx(tx); err != nil {
		return e.reject(span, "call", err, start)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.ledger.IncrementNonce(tx.From)
	run := e.newRun(ctx, tx.TxHash, tx.GasLimit)
	run.gas.charge(e.gas.TxBase)
	run.gas.chargeArgs(tx.Args)

	result := run.atomically(func() error {
		out, err := run.invoke(tx.From, tx.To, tx.NativeValue(), tx.TokenTransfers, tx.Function, tx.Args)
		run.out = out
		if err != nil {
			return err
		}
		return run.drainAsync()
	})
	e.finish(span, "call", tx.From, tx.To, tx.Function, run, result, start)
	return result
}

// Deploy installs a registered contract at a new address and runs its init
// endpoint when present. The returned address is zero when the deployment was
// rejected before an address was assigned.
func (e *Executor) Deploy(ctx context.Context, in *DeployInput) (crypto.Address, *types.TxResult) {
	start := time.Now()
	var attrs []attribute.KeyValue
	if in != nil {
		attrs = append(attrs, attribute.String("tx.from", in.From.String()), attribute.String("tx.code", in.Code))
	}
	ctx, span := e.tracer.Start(ctx, "executor.deploy", trace.WithAttributes(attrs...))
	defer span.End()

	if err := validateDeploy(in); err != nil {
		return crypto.Address{}, e.reject(span, "deploy", err, start)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	nonce := e.ledger.Account(in.From).Nonce
	e.ledger.IncrementNonce(in.From)
	addr, ok := e.newAddresses[newAddressKey{creator: in.From, nonce: nonce}]
	if !ok {
		addr = crypto.NewContractAddress(in.From, nonce)
	}

	run := e.newRun(ctx, in.TxHash, in.GasLimit)
	run.gas.charge(e.gas.TxBase + e.gas.Deploy)
	run.gas.chargeArgs(in.Args)
	value := new(big.Int)
	if in.Value != nil {
		value.Set(in.Value)
	}

	result := run.atomically(func() error {
		contract, ok := e.registry.Lookup(in.Code)
		if !ok {
			return fmt.Errorf("%w: %s", coreerrors.ErrContractNotFound, in.Code)
		}
		if e.ledger.Account(addr).HasCode() {
			return fmt.Errorf("%w: %s", coreerrors.ErrAccountAlreadyDeployed, addr)
		}
		creator := in.From
		if err := e.ledger.SetCode(addr, contract.Code, &creator); err != nil {
			return err
		}
		if _, ok := contract.Endpoint(InitFunction); !ok {
			_, err := run.invoke(in.From, addr, value, nil, "", nil)
			return err
		}
		out, err := run.invoke(in.From, addr, value, nil, InitFunction, in.Args)
		run.out = out
		if err != nil {
			return err
		}
		return run.drainAsync()
	})
	e.finish(span, "deploy", in.From, addr, InitFunction, run, result, start)
	if !result.Succeeded() {
		return crypto.Address{}, result
	}
	span.SetAttributes(attribute.String("contract.address", addr.String()))
	return addr, result
}

// ValidatorReward credits amount directly to a validator account. No nonce
// is consumed and no code runs.
func (e *Executor) ValidatorReward(ctx context.Context, validator crypto.Address, amount *big.Int) error {
	_, span := e.tracer.Start(ctx, "executor.validator_reward",
		trace.WithAttributes(attribute.String("validator", validator.String())))
	defer span.End()

	if validator.IsZero() {
		return coreerrors.ErrMissingReceiver
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ledger.CreditNative(validator, amount); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	e.publish([]events.Event{events.ValidatorReward{Validator: validator, Amount: new(big.Int).Set(amount)}})
	span.SetStatus(codes.Ok, "reward credited")
	return nil
}

func (e *Executor) newRun(ctx context.Context, txHash common.Hash, gasLimit uint64) *txRun {
	return &txRun{
		ctx:    ctx,
		exec:   e,
		txHash: txHash,
		arena:  vm.NewArena(),
		gas:    newGasMeter(e.gas, gasLimit),
	}
}

func (e *Executor) reject(span trace.Span, kind string, err error, start time.Time) *types.TxResult {
	result := &types.TxResult{Status: types.StatusInvalidInput, Message: err.Error()}
	if !coreerrors.IsInputError(err) {
		result.Status, result.Message = statusFor(err)
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	e.metrics.ObserveTx(kind, result.Status.String(), 0, 0, time.Since(start))
	e.logger.Debug("tx rejected", "kind", kind, "error", err)
	return result
}

func (e *Executor) finish(span trace.Span, kind string, from, to crypto.Address, function string, run *txRun, result *types.TxResult, start time.Time) {
	span.SetAttributes(
		attribute.Int64("tx.status", int64(result.Status)),
		attribute.Int64("tx.gas_used", int64(result.GasUsed)),
		attribute.Int("tx.max_depth", run.maxDepth),
	)
	e.metrics.ObserveTx(kind, result.Status.String(), run.maxDepth, result.GasUsed, time.Since(start))
	args := []any{"kind", kind, "from", from.String(), "to", to.String(), "function", function, "status", result.Status.String()}
	if result.Succeeded() {
		span.SetStatus(codes.Ok, "committed")
		e.logger.Debug("tx committed", append(args, "events", len(result.Events), "gasUsed", result.GasUsed)...)
		return
	}
	span.RecordError(stderrors.New(result.Message))
	span.SetStatus(codes.Error, result.Message)
	e.logger.Info("tx rolled back", append(args, "error", result.Message)...)
}

func (e *Executor) publish(evts []events.Event) []*types.Event {
	out := make([]*types.Event, 0, len(evts))
	for _, evt := range evts {
		payload := evt.Event()
		if payload == nil {
			continue
		}
		out = append(out, payload)
		e.emitter.Emit(evt)
		observability.Events().RecordEvent(payload.Type)
		switch t := evt.(type) {
		case events.Transfer:
			observability.Events().RecordTransfer(types.MOAXIdentifier)
		case events.TokenTransfer:
			observability.Events().RecordTransfer(t.Identifier)
		}
	}
	return out
}

func txAttributes(tx *types.TxInput) []attribute.KeyValue {
	if tx == nil {
		return nil
	}
	return []attribute.KeyValue{
		attribute.String("tx.from", tx.From.String()),
		attribute.String("tx.to", tx.To.String()),
		attribute.String("tx.function", tx.Function),
		attribute.Int("tx.token_transfers", len(tx.TokenTransfers)),
	}
}

// statusFor maps an execution error onto the VM return code numbering.
func statusFor(err error) (types.Status, string) {
	var userErr *coreerrors.UserError
	switch {
	case err == nil:
		return types.StatusOK, ""
	case stderrors.Is(err, coreerrors.ErrCallStackOverflow):
		return types.StatusCallStackOverflow, coreerrors.ErrCallStackOverflow.Error()
	case stderrors.Is(err, coreerrors.ErrFunctionNotFound):
		return types.StatusFunctionNotFound, coreerrors.ErrFunctionNotFound.Error()
	case stderrors.Is(err, coreerrors.ErrContractNotFound):
		return types.StatusContractNotFound, err.Error()
	case stderrors.Is(err, coreerrors.ErrInsufficientFunds):
		return types.StatusOutOfFunds, err.Error()
	case stderrors.Is(err, coreerrors.ErrInsufficientTokenFunds),
		stderrors.Is(err, coreerrors.ErrInvalidRoyalties),
		stderrors.Is(err, coreerrors.ErrActionNotAllowed),
		stderrors.Is(err, coreerrors.ErrAccountAlreadyDeployed):
		return types.StatusExecutionFailed, err.Error()
	case stderrors.As(err, &userErr):
		return types.StatusUserError, userErr.Message
	case coreerrors.IsPaymentPolicy(err):
		return types.StatusUserError, err.Error()
	}
	return types.StatusUserError, err.Error()
}
