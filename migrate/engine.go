package migrate

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dualtier/dtman/common"
	"github.com/dualtier/dtman/config"
	"github.com/dualtier/dtman/log"
	"github.com/dualtier/dtman/model"
	"github.com/dualtier/dtman/repository"
	"github.com/go-basic/uuid"
	"github.com/pkg/errors"
)

const migrationLockId = "schema_migration"

// Engine applies versioned migration units against the durable store. The
// schema version history table is the only source of truth for what has
// been applied; the engine never inspects live schema objects.
type Engine struct {
	cfg    *config.MigrationConfig
	ps     repository.PersistentMgr
	holder string
}

func NewEngine(cfg *config.MigrationConfig, ps repository.PersistentMgr) *Engine {
	return &Engine{
		cfg:    cfg,
		ps:     ps,
		holder: uuid.New(),
	}
}

func (e *Engine) CurrentVersion() (int64, error) {
	return e.ps.GetCurrentVersion()
}

// Status reports the applied history alongside the units still pending in
// the migration directory.
func (e *Engine) Status() (model.MigrationStatus, error) {
	var status model.MigrationStatus
	current, err := e.ps.GetCurrentVersion()
	if err != nil {
		return status, err
	}
	status.CurrentVersion = current

	history, err := e.ps.GetSchemaVersions()
	if err != nil {
		return status, err
	}
	applied := make(map[int64]model.SchemaVersionRecord, len(history))
	for _, record := range history {
		if record.RolledBack {
			continue
		}
		applied[record.Version] = record
		status.Applied = append(status.Applied, record.Version)
	}
	sort.Slice(status.Applied, func(i, j int) bool { return status.Applied[i] < status.Applied[j] })

	units, err := LoadUnits(e.cfg.Dir)
	if err != nil {
		return status, err
	}
	for _, unit := range units {
		record, ok := applied[unit.Version]
		if !ok {
			status.Pending = append(status.Pending, unit)
			continue
		}
		if record.Checksum != unit.Checksum {
			status.Failed = append(status.Failed,
				errors.Errorf("unit %s changed after apply, checksum mismatch", unit.Id).Error())
		}
	}
	return status, nil
}

// Plan returns the units that would run, in execution order. A target of
// zero means everything pending; otherwise units above target are cut.
func (e *Engine) Plan(target int64) ([]model.MigrationUnit, error) {
	units, err := LoadUnits(e.cfg.Dir)
	if err != nil {
		return nil, err
	}
	if e.cfg.Validate {
		if err = ValidateUnits(units); err != nil {
			return nil, err
		}
	}
	ordered, err := TopoSort(units)
	if err != nil {
		return nil, err
	}

	applied, err := e.appliedVersions()
	if err != nil {
		return nil, err
	}
	satisfied := make(map[string]bool, len(applied))
	var highWater int64
	for _, record := range applied {
		satisfied[record.UnitId] = true
		if record.Version > highWater {
			highWater = record.Version
		}
	}
	var pending []model.MigrationUnit
	for _, unit := range ordered {
		if _, ok := applied[unit.Version]; ok {
			continue
		}
		// a unit filed after a higher version already ran must not sneak in
		// behind the applied history
		if unit.Version <= highWater {
			log.Logger.Warnf("unit %s (version %d) is behind the applied high-water mark %d, skipped", unit.Id, unit.Version, highWater)
			continue
		}
		if target > 0 && unit.Version > target {
			continue
		}
		// a unit whose dependency got cut by the target waits too
		runnable := true
		for _, dep := range unit.Depends {
			if !satisfied[dep] {
				runnable = false
				break
			}
		}
		if !runnable {
			log.Logger.Warnf("unit %s waits for unapplied dependencies, skipped this run", unit.Id)
			continue
		}
		satisfied[unit.Id] = true
		pending = append(pending, unit)
	}
	return pending, nil
}

// Apply runs every pending unit up to target under the advisory lock.
// The first failing unit halts the run; its dependents are reported as
// skipped and nothing is recorded for failed units.
func (e *Engine) Apply(ctx context.Context, target int64) ([]model.MigrationResult, error) {
	pending, err := e.Plan(target)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		log.Logger.Infof("schema is up to date, nothing to apply")
		return nil, nil
	}

	if err = e.acquireLock(); err != nil {
		return nil, err
	}
	defer e.releaseLock()

	if e.cfg.DryRun {
		return e.dryRun(pending), nil
	}
	if e.cfg.Parallel {
		return e.applyParallel(ctx, pending)
	}
	return e.applySequential(ctx, pending)
}

func (e *Engine) dryRun(pending []model.MigrationUnit) []model.MigrationResult {
	results := make([]model.MigrationResult, 0, len(pending))
	for _, unit := range pending {
		log.Logger.Infof("dry run: would apply %s (version %d)", unit.Id, unit.Version)
		results = append(results, model.MigrationResult{
			UnitId:  unit.Id,
			Version: unit.Version,
			Outcome: model.UnitSkipped,
		})
	}
	return results
}

func (e *Engine) applySequential(ctx context.Context, pending []model.MigrationUnit) ([]model.MigrationResult, error) {
	results := make([]model.MigrationResult, 0, len(pending))
	for i, unit := range pending {
		result := e.applyUnit(ctx, unit)
		results = append(results, result)
		if result.Outcome == model.UnitFailed {
			for _, skipped := range pending[i+1:] {
				results = append(results, model.MigrationResult{
					UnitId:  skipped.Id,
					Version: skipped.Version,
					Outcome: model.UnitSkipped,
				})
			}
			return results, errors.Errorf("unit %s failed: %s", unit.Id, result.Error)
		}
	}
	return results, nil
}

// applyParallel runs dependency waves one at a time; units inside a wave
// share the worker pool. A failure anywhere in a wave halts before the
// next wave starts.
func (e *Engine) applyParallel(ctx context.Context, pending []model.MigrationUnit) ([]model.MigrationResult, error) {
	pool := common.NewWorkerPool(e.cfg.MaxConcurrency, len(pending))
	defer pool.Close()

	var results []model.MigrationResult
	layers := Layers(pending)
	for li, layer := range layers {
		var mu sync.Mutex
		layerResults := make([]model.MigrationResult, 0, len(layer))
		for _, unit := range layer {
			unit := unit
			_ = pool.Submit(func() {
				result := e.applyUnit(ctx, unit)
				mu.Lock()
				layerResults = append(layerResults, result)
				mu.Unlock()
			})
		}
		pool.Wait()

		sort.Slice(layerResults, func(i, j int) bool { return layerResults[i].Version < layerResults[j].Version })
		results = append(results, layerResults...)

		var failed string
		for _, result := range layerResults {
			if result.Outcome == model.UnitFailed {
				failed = result.UnitId
				break
			}
		}
		if failed != "" {
			for _, layer := range layers[li+1:] {
				for _, skipped := range layer {
					results = append(results, model.MigrationResult{
						UnitId:  skipped.Id,
						Version: skipped.Version,
						Outcome: model.UnitSkipped,
					})
				}
			}
			return results, errors.Errorf("unit %s failed, run halted", failed)
		}
	}
	return results, nil
}

func (e *Engine) applyUnit(ctx context.Context, unit model.MigrationUnit) model.MigrationResult {
	log.Logger.Infof("applying %s (version %d)", unit.Id, unit.Version)
	start := time.Now()
	err := e.execWithTimeout(ctx, unit.Up)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		log.Logger.Errorf("unit %s failed after %dms: %v", unit.Id, duration, err)
		return model.MigrationResult{
			UnitId:     unit.Id,
			Version:    unit.Version,
			Outcome:    model.UnitFailed,
			Error:      err.Error(),
			DurationMs: duration,
		}
	}

	record := model.SchemaVersionRecord{
		Version:     unit.Version,
		UnitId:      unit.Id,
		Name:        unit.Name,
		Checksum:    unit.Checksum,
		AppliedAt:   time.Now(),
		DurationMs:  duration,
		RollbackSql: unit.Down,
	}
	if err = e.ps.CreateSchemaVersion(record); err != nil {
		log.Logger.Errorf("record version %d failed: %v", unit.Version, err)
		return model.MigrationResult{
			UnitId:     unit.Id,
			Version:    unit.Version,
			Outcome:    model.UnitFailed,
			Error:      err.Error(),
			DurationMs: duration,
		}
	}
	log.Logger.Infof("applied %s in %dms", unit.Id, duration)
	return model.MigrationResult{
		UnitId:     unit.Id,
		Version:    unit.Version,
		Outcome:    model.UnitApplied,
		DurationMs: duration,
	}
}

// RollbackTo reverts applied units above target, newest first. The run is
// fail-closed: when any unit in range has no rollback script, nothing at
// all executes.
func (e *Engine) RollbackTo(ctx context.Context, target int64) ([]model.MigrationResult, error) {
	history, err := e.ps.GetSchemaVersions()
	if err != nil {
		return nil, err
	}
	var toRevert []model.SchemaVersionRecord
	for _, record := range history {
		if !record.RolledBack && record.Version > target {
			toRevert = append(toRevert, record)
		}
	}
	if len(toRevert) == 0 {
		log.Logger.Infof("nothing above version %d to roll back", target)
		return nil, nil
	}
	sort.Slice(toRevert, func(i, j int) bool { return toRevert[i].Version > toRevert[j].Version })

	for _, record := range toRevert {
		if record.RollbackSql == "" {
			return nil, errors.Errorf("unit %s (version %d) has no rollback script, refusing to roll back anything", record.UnitId, record.Version)
		}
	}

	if err = e.acquireLock(); err != nil {
		return nil, err
	}
	defer e.releaseLock()

	results := make([]model.MigrationResult, 0, len(toRevert))
	for _, record := range toRevert {
		log.Logger.Infof("rolling back %s (version %d)", record.UnitId, record.Version)
		start := time.Now()
		if err = e.execWithTimeout(ctx, record.RollbackSql); err != nil {
			results = append(results, model.MigrationResult{
				UnitId:     record.UnitId,
				Version:    record.Version,
				Outcome:    model.UnitFailed,
				Error:      err.Error(),
				DurationMs: time.Since(start).Milliseconds(),
			})
			return results, errors.Errorf("rollback of %s failed, run halted", record.UnitId)
		}
		if err = e.ps.MarkRolledBack(record.Version); err != nil {
			return results, err
		}
		results = append(results, model.MigrationResult{
			UnitId:     record.UnitId,
			Version:    record.Version,
			Outcome:    model.UnitRolledBack,
			DurationMs: time.Since(start).Milliseconds(),
		})
	}
	return results, nil
}

func (e *Engine) appliedVersions() (map[int64]model.SchemaVersionRecord, error) {
	history, err := e.ps.GetSchemaVersions()
	if err != nil {
		return nil, err
	}
	applied := make(map[int64]model.SchemaVersionRecord, len(history))
	for _, record := range history {
		if !record.RolledBack {
			applied[record.Version] = record
		}
	}
	return applied, nil
}

func (e *Engine) acquireLock() error {
	now := time.Now()
	err := e.ps.AcquireLock(model.MigrationLock{
		LockId:    migrationLockId,
		Holder:    e.holder,
		LockedAt:  now,
		ExpiresAt: now.Add(time.Duration(e.cfg.LockTTL) * time.Second),
	})
	if errors.Is(err, repository.ErrLockHeld) {
		return errors.Wrap(repository.ErrLockHeld, "another migration run is in progress")
	}
	return err
}

func (e *Engine) releaseLock() {
	if err := e.ps.ReleaseLock(migrationLockId, e.holder); err != nil {
		log.Logger.Errorf("release migration lock failed: %v", err)
	}
}

// execWithTimeout bounds a single statement batch; the durable adapters
// expose no context-aware Exec so the timeout is enforced around the call.
func (e *Engine) execWithTimeout(ctx context.Context, sql string) error {
	timeout := time.Duration(e.cfg.Timeout) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- e.ps.Exec(sql)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return errors.Errorf("statement did not finish within %s", timeout)
	}
}
