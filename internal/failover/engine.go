package failover

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dsrplatform/fleetcore/infrastructure/errors"
	"github.com/dsrplatform/fleetcore/infrastructure/logging"
	"github.com/dsrplatform/fleetcore/infrastructure/state"
	"github.com/dsrplatform/fleetcore/internal/fleetclock"
)

const historyKeyPrefix = "failover:history:"

// defaultStepTimeout and defaultSequenceTimeout back §5's per-step and
// full-sequence timeout defaults when a sequence specifies none.
const (
	defaultStepTimeout     = 2 * time.Minute
	defaultSequenceTimeout = 10 * time.Minute
)

// Engine executes Sequences against a registry of per-step-type adapters.
type Engine struct {
	adapters map[StepType]StepAdapter
	verifier Verifier
	history  state.PersistenceBackend
	clock    fleetclock.Clock
	ids      fleetclock.IDGenerator
	logger   *logging.Logger
}

func NewEngine(adapters map[StepType]StepAdapter, verifier Verifier, history state.PersistenceBackend, clock fleetclock.Clock, ids fleetclock.IDGenerator, logger *logging.Logger) *Engine {
	if clock == nil {
		clock = fleetclock.Default
	}
	if ids == nil {
		ids = fleetclock.DefaultIDs
	}
	if logger == nil {
		logger = logging.NewFromEnv("failover-engine")
	}
	return &Engine{adapters: adapters, verifier: verifier, history: history, clock: clock, ids: ids, logger: logger}
}

// Execute runs sequence's steps in order, verifies, and rolls back on any
// critical-step or verification failure. The returned Execution's Status
// is always terminal (COMPLETED, FAILED, or ROLLED_BACK).
func (e *Engine) Execute(ctx context.Context, seq Sequence) (Execution, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultSequenceTimeout)
	defer cancel()

	exec := Execution{
		ID:         e.ids.NewID(),
		SequenceID: seq.ID,
		SourceSite: seq.SourceSite,
		TargetSite: seq.TargetSite,
		StartTime:  e.clock.WallNow(),
		Status:     InProgress,
	}
	e.record(ctx, exec)

	completed := make([]int, 0, len(seq.Steps))
	var failure error

	for i, step := range seq.Steps {
		select {
		case <-ctx.Done():
			failure = errors.Cancelled("failover-sequence")
		default:
		}
		if failure != nil {
			break
		}

		result, err := e.runStep(ctx, step, seq.SourceSite, seq.TargetSite)
		exec.Steps = append(exec.Steps, result)
		if err != nil {
			if step.Critical {
				failure = err
				break
			}
			e.logger.WithError(err).Warn("non-critical failover step failed")
		}
		completed = append(completed, i)
	}

	if failure == nil && e.verifier != nil {
		if err := e.verifier.Verify(ctx, seq.TargetSite); err != nil {
			failure = err
		}
	}

	if failure != nil {
		exec.Status = Failed
		exec.EndTime = e.clock.WallNow()
		e.record(ctx, exec)

		if rolledBack, _ := e.finishRollback(ctx, seq, completed, &exec); rolledBack {
			exec.Status = RolledBack
		}
		exec.EndTime = e.clock.WallNow()
		e.record(ctx, exec)
		return exec, failure
	}

	exec.Status = Completed
	exec.EndTime = e.clock.WallNow()
	e.record(ctx, exec)
	return exec, nil
}

func (e *Engine) runStep(ctx context.Context, step Step, sourceSite, targetSite string) (StepResult, error) {
	stepCtx, cancel := context.WithTimeout(ctx, defaultStepTimeout)
	defer cancel()

	adapter, ok := e.adapters[step.Type]
	if !ok {
		return StepResult{Name: step.Name, Type: step.Type, Success: false, Error: "no adapter registered"},
			errors.AdapterFailure(string(step.Type), nil)
	}

	start := e.clock.Now()
	err := adapter.Run(stepCtx, sourceSite, targetSite)
	duration := e.clock.Now().Sub(start)

	if err != nil {
		return StepResult{Name: step.Name, Type: step.Type, Success: false, Error: err.Error(), Duration: duration}, err
	}
	return StepResult{Name: step.Name, Type: step.Type, Success: true, Duration: duration}, nil
}

// finishRollback undoes completed steps in reverse order using each step's
// inverse adapter. Steps with no meaningful inverse (HEALTH_CHECK,
// NOTIFICATION) report success without acting.
func (e *Engine) finishRollback(ctx context.Context, seq Sequence, completed []int, exec *Execution) (bool, error) {
	allOK := true
	for i := len(completed) - 1; i >= 0; i-- {
		idx := completed[i]
		step := seq.Steps[idx]
		adapter, ok := e.adapters[step.Type]
		if !ok {
			continue
		}
		stepCtx, cancel := context.WithTimeout(ctx, defaultStepTimeout)
		err := adapter.Rollback(stepCtx, seq.SourceSite, seq.TargetSite)
		cancel()

		if idx < len(exec.Steps) {
			exec.Steps[idx].RolledBack = err == nil
			if err != nil {
				exec.Steps[idx].RollbackErr = err.Error()
				allOK = false
			}
		}
	}
	return allOK, nil
}

func (e *Engine) record(ctx context.Context, exec Execution) {
	if e.history == nil {
		return
	}
	data, err := json.Marshal(exec)
	if err != nil {
		return
	}
	_ = e.history.Save(ctx, historyKeyPrefix+exec.ID, data)
}

// History returns every persisted execution record, most recent last.
func (e *Engine) History(ctx context.Context) ([]Execution, error) {
	if e.history == nil {
		return nil, nil
	}
	keys, err := e.history.List(ctx, historyKeyPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]Execution, 0, len(keys))
	for _, key := range keys {
		data, err := e.history.Load(ctx, key)
		if err != nil {
			continue
		}
		var exec Execution
		if err := json.Unmarshal(data, &exec); err != nil {
			continue
		}
		out = append(out, exec)
	}
	return out, nil
}
