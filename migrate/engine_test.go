package migrate

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dualtier/dtman/config"
	"github.com/dualtier/dtman/log"
	"github.com/dualtier/dtman/model"
	"github.com/dualtier/dtman/repository"
	"github.com/dualtier/dtman/repository/local"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	log.InitLoggerConsole()
	m.Run()
}

// sqlRecorder captures executed statements and can fail on demand; schema
// bookkeeping is delegated to the wrapped store.
type sqlRecorder struct {
	repository.PersistentMgr
	mu       sync.Mutex
	executed []string
	failOn   string
}

func (sr *sqlRecorder) Exec(sql string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if sr.failOn != "" && strings.Contains(sql, sr.failOn) {
		return errors.New("syntax error near " + sr.failOn)
	}
	sr.executed = append(sr.executed, sql)
	return nil
}

func (sr *sqlRecorder) executedCount() int {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return len(sr.executed)
}

func newRecorder(t *testing.T) *sqlRecorder {
	t.Helper()
	ps := local.NewLocalPersistent()
	require.NoError(t, ps.Init(local.LocalConfig{DataDir: t.TempDir()}))
	return &sqlRecorder{PersistentMgr: ps}
}

func writeUnit(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path.Join(dir, name), []byte(body), 0644))
}

func unitFile(version int64, name, up, down string, depends ...string) string {
	dep := ""
	if len(depends) > 0 {
		dep = fmt.Sprintf(`,"depends":["%s"]`, strings.Join(depends, `","`))
	}
	return fmt.Sprintf(`{"version":%d,"name":"%s","up":"%s","down":"%s"%s}`, version, name, up, down, dep)
}

func testEngine(t *testing.T, ps repository.PersistentMgr, dir string) *Engine {
	t.Helper()
	return NewEngine(&config.MigrationConfig{
		Dir:            dir,
		Validate:       true,
		MaxConcurrency: 4,
		Timeout:        10,
		LockTTL:        600,
	}, ps)
}

func threeChainedUnits(t *testing.T, dir string) {
	writeUnit(t, dir, "001_orders.json",
		unitFile(1, "orders", "CREATE TABLE orders (id TEXT)", "SELECT 1"))
	writeUnit(t, dir, "002_items.json",
		unitFile(2, "items", "CREATE TABLE items (id TEXT)", "SELECT 2", "000001_orders"))
	writeUnit(t, dir, "003_index.json",
		unitFile(3, "index", "CREATE INDEX idx_items ON items (id)", "SELECT 3", "000002_items"))
}

func TestApplyChain(t *testing.T) {
	dir := t.TempDir()
	threeChainedUnits(t, dir)
	ps := newRecorder(t)
	engine := testEngine(t, ps, dir)

	results, err := engine.Apply(context.Background(), 0)
	assert.NoError(t, err)
	assert.Len(t, results, 3)
	for _, result := range results {
		assert.Equal(t, model.UnitApplied, result.Outcome)
	}
	assert.Equal(t, 3, ps.executedCount())

	current, err := engine.CurrentVersion()
	assert.NoError(t, err)
	assert.Equal(t, int64(3), current)

	// second run is a no-op
	results, err = engine.Apply(context.Background(), 0)
	assert.NoError(t, err)
	assert.Empty(t, results)
}

func TestApplyStopsAtTarget(t *testing.T) {
	dir := t.TempDir()
	threeChainedUnits(t, dir)
	ps := newRecorder(t)
	engine := testEngine(t, ps, dir)

	results, err := engine.Apply(context.Background(), 2)
	assert.NoError(t, err)
	assert.Len(t, results, 2)

	current, _ := engine.CurrentVersion()
	assert.Equal(t, int64(2), current)
}

func TestApplyHaltsOnFailure(t *testing.T) {
	dir := t.TempDir()
	threeChainedUnits(t, dir)
	ps := newRecorder(t)
	ps.failOn = "items"
	engine := testEngine(t, ps, dir)

	results, err := engine.Apply(context.Background(), 0)
	assert.Error(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, model.UnitApplied, results[0].Outcome)
	assert.Equal(t, model.UnitFailed, results[1].Outcome)
	assert.Equal(t, model.UnitSkipped, results[2].Outcome)

	// the failed unit leaves no history row
	current, _ := engine.CurrentVersion()
	assert.Equal(t, int64(1), current)
	history, err := ps.GetSchemaVersions()
	assert.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestApplyValidationFailsClosed(t *testing.T) {
	dir := t.TempDir()
	writeUnit(t, dir, "001_drop.json",
		unitFile(1, "drop", "DROP TABLE orders", ""))
	ps := newRecorder(t)
	engine := testEngine(t, ps, dir)

	_, err := engine.Apply(context.Background(), 0)
	assert.Error(t, err)
	assert.Equal(t, 0, ps.executedCount())
}

func TestApplyDryRun(t *testing.T) {
	dir := t.TempDir()
	threeChainedUnits(t, dir)
	ps := newRecorder(t)
	engine := testEngine(t, ps, dir)
	engine.cfg.DryRun = true

	results, err := engine.Apply(context.Background(), 0)
	assert.NoError(t, err)
	assert.Len(t, results, 3)
	for _, result := range results {
		assert.Equal(t, model.UnitSkipped, result.Outcome)
	}
	assert.Equal(t, 0, ps.executedCount())
	current, _ := engine.CurrentVersion()
	assert.Equal(t, int64(0), current)
}

func TestApplyParallelIndependentUnits(t *testing.T) {
	dir := t.TempDir()
	writeUnit(t, dir, "001_a.json", unitFile(1, "a", "CREATE TABLE a (id TEXT)", ""))
	writeUnit(t, dir, "002_b.json", unitFile(2, "b", "CREATE TABLE b (id TEXT)", ""))
	writeUnit(t, dir, "003_c.json",
		unitFile(3, "c", "CREATE TABLE c (id TEXT)", "", "000001_a", "000002_b"))
	ps := newRecorder(t)
	engine := testEngine(t, ps, dir)
	engine.cfg.Parallel = true

	results, err := engine.Apply(context.Background(), 0)
	assert.NoError(t, err)
	assert.Len(t, results, 3)
	// c runs after both a and b
	assert.Equal(t, int64(3), results[2].Version)
	current, _ := engine.CurrentVersion()
	assert.Equal(t, int64(3), current)
}

func TestApplyRefusesWhenLockHeld(t *testing.T) {
	dir := t.TempDir()
	threeChainedUnits(t, dir)
	ps := newRecorder(t)
	engine := testEngine(t, ps, dir)

	require.NoError(t, ps.AcquireLock(model.MigrationLock{
		LockId:    migrationLockId,
		Holder:    "someone-else",
		LockedAt:  time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	_, err := engine.Apply(context.Background(), 0)
	assert.ErrorIs(t, err, repository.ErrLockHeld)
	assert.Equal(t, 0, ps.executedCount())
}

func TestApplyReclaimsExpiredLock(t *testing.T) {
	dir := t.TempDir()
	threeChainedUnits(t, dir)
	ps := newRecorder(t)
	engine := testEngine(t, ps, dir)

	require.NoError(t, ps.AcquireLock(model.MigrationLock{
		LockId:    migrationLockId,
		Holder:    "crashed-run",
		LockedAt:  time.Now().Add(-2 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	}))

	_, err := engine.Apply(context.Background(), 0)
	assert.NoError(t, err)
	current, _ := engine.CurrentVersion()
	assert.Equal(t, int64(3), current)
}

func TestRollbackTo(t *testing.T) {
	dir := t.TempDir()
	threeChainedUnits(t, dir)
	ps := newRecorder(t)
	engine := testEngine(t, ps, dir)

	_, err := engine.Apply(context.Background(), 0)
	require.NoError(t, err)

	results, err := engine.RollbackTo(context.Background(), 1)
	assert.NoError(t, err)
	require.Len(t, results, 2)
	// newest first
	assert.Equal(t, int64(3), results[0].Version)
	assert.Equal(t, int64(2), results[1].Version)
	for _, result := range results {
		assert.Equal(t, model.UnitRolledBack, result.Outcome)
	}

	current, _ := engine.CurrentVersion()
	assert.Equal(t, int64(1), current)
}

func TestRollbackFailClosedOnMissingDownScript(t *testing.T) {
	dir := t.TempDir()
	writeUnit(t, dir, "001_a.json", unitFile(1, "a", "CREATE TABLE a (id TEXT)", "SELECT 1"))
	writeUnit(t, dir, "002_b.json", unitFile(2, "b", "CREATE TABLE b (id TEXT)", ""))
	ps := newRecorder(t)
	engine := testEngine(t, ps, dir)

	_, err := engine.Apply(context.Background(), 0)
	require.NoError(t, err)
	executedBefore := ps.executedCount()

	_, err = engine.RollbackTo(context.Background(), 0)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no rollback script")
	// nothing ran, including the unit that does have a script
	assert.Equal(t, executedBefore, ps.executedCount())
	current, _ := engine.CurrentVersion()
	assert.Equal(t, int64(2), current)
}

func TestPlanSkipsUnitBehindHighWaterMark(t *testing.T) {
	dir := t.TempDir()
	writeUnit(t, dir, "001_a.json", unitFile(1, "a", "CREATE TABLE a (id TEXT)", ""))
	writeUnit(t, dir, "003_c.json", unitFile(3, "c", "CREATE TABLE c (id TEXT)", ""))
	ps := newRecorder(t)
	engine := testEngine(t, ps, dir)

	_, err := engine.Apply(context.Background(), 0)
	require.NoError(t, err)
	executedBefore := ps.executedCount()

	// a version 2 unit filed after version 3 already ran never executes
	writeUnit(t, dir, "002_b.json", unitFile(2, "b", "CREATE TABLE b (id TEXT)", ""))

	pending, err := engine.Plan(0)
	assert.NoError(t, err)
	assert.Empty(t, pending)

	results, err := engine.Apply(context.Background(), 0)
	assert.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, executedBefore, ps.executedCount())
	current, _ := engine.CurrentVersion()
	assert.Equal(t, int64(3), current)
}

func TestRolledBackUnitIsPendingAgain(t *testing.T) {
	dir := t.TempDir()
	threeChainedUnits(t, dir)
	ps := newRecorder(t)
	engine := testEngine(t, ps, dir)

	_, err := engine.Apply(context.Background(), 0)
	require.NoError(t, err)
	_, err = engine.RollbackTo(context.Background(), 2)
	require.NoError(t, err)

	pending, err := engine.Plan(0)
	assert.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(3), pending[0].Version)
}

func TestStatusReportsChecksumMismatch(t *testing.T) {
	dir := t.TempDir()
	writeUnit(t, dir, "001_a.json", unitFile(1, "a", "CREATE TABLE a (id TEXT)", ""))
	ps := newRecorder(t)
	engine := testEngine(t, ps, dir)

	_, err := engine.Apply(context.Background(), 0)
	require.NoError(t, err)

	// edit the unit after it was applied
	writeUnit(t, dir, "001_a.json", unitFile(1, "a", "CREATE TABLE a (id TEXT, extra TEXT)", ""))

	status, err := engine.Status()
	assert.NoError(t, err)
	assert.Equal(t, int64(1), status.CurrentVersion)
	assert.Empty(t, status.Pending)
	require.Len(t, status.Failed, 1)
	assert.Contains(t, status.Failed[0], "checksum mismatch")
}

func TestLoadUnitsRejectsDuplicateVersions(t *testing.T) {
	dir := t.TempDir()
	writeUnit(t, dir, "001_a.json", unitFile(1, "a", "SELECT 1", ""))
	writeUnit(t, dir, "001_b.json", unitFile(1, "b", "SELECT 1", ""))

	_, err := LoadUnits(dir)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate version")
}

func TestLoadUnitsDefaults(t *testing.T) {
	dir := t.TempDir()
	writeUnit(t, dir, "007_wide.json", `{"version":7,"up":"SELECT 1"}`)

	units, err := LoadUnits(dir)
	assert.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "007_wide", units[0].Name)
	assert.Equal(t, "000007_007_wide", units[0].Id)
	assert.NotEmpty(t, units[0].Checksum)
}
