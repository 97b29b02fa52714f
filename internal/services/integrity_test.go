package services

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/atlasgraph-backend/internal/domain"
	"github.com/yungbote/atlasgraph-backend/internal/platform/logger"
)

type fakeGraphReader struct {
	edges  []types.EdgePair
	counts map[string]int
	delay  time.Duration
	err    error
}

func (f *fakeGraphReader) EdgesOfKind(ctx context.Context, tenantID uuid.UUID, edgeKind string) ([]types.EdgePair, error) {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.edges, nil
}

func (f *fakeGraphReader) BasisCounts(ctx context.Context, tenantID uuid.UUID, nodeKind, edgeKind string) (map[string]int, error) {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]int{}
	for k, v := range f.counts {
		out[k] = v
	}
	return out, nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

func TestIntegrityGate_CleanPass(t *testing.T) {
	reader := &fakeGraphReader{
		edges:  []types.EdgePair{{FromUID: "T2", ToUID: "T3"}},
		counts: map[string]int{"S1": 2},
	}
	gate := NewIntegrityGate(reader, DefaultIntegrityRules(), time.Second, testLogger(t))

	ops := []types.Operation{
		{
			OpID:     "op-1",
			Kind:     types.OpCreateRel,
			TargetID: "r-1",
			Rel:      &types.RelSpec{Kind: "PREREQ", FromUID: "T1", ToUID: "T2"},
		},
	}
	report, err := gate.Check(context.Background(), uuid.New(), ops)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !report.OK || report.Deferred {
		t.Fatalf("expected clean pass, got %+v", report)
	}
}

func TestIntegrityGate_PendingEdgeClosesCycle(t *testing.T) {
	// Stored: T2 -> T1. The proposal adds T1 -> T2, closing the loop.
	reader := &fakeGraphReader{edges: []types.EdgePair{{FromUID: "T2", ToUID: "T1"}}}
	gate := NewIntegrityGate(reader, DefaultIntegrityRules(), time.Second, testLogger(t))

	ops := []types.Operation{
		{
			OpID:     "op-1",
			Kind:     types.OpCreateRel,
			TargetID: "r-1",
			Rel:      &types.RelSpec{Kind: "PREREQ", FromUID: "T1", ToUID: "T2"},
		},
	}
	report, err := gate.Check(context.Background(), uuid.New(), ops)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if report.OK {
		t.Fatal("expected cycle violation")
	}
	want := [][]string{{"T1", "T2", "T1"}}
	if !reflect.DeepEqual(report.Violations.PrereqCycles, want) {
		t.Fatalf("unexpected cycles: %#v", report.Violations.PrereqCycles)
	}
}

func TestIntegrityGate_PendingDeleteBreaksCycle(t *testing.T) {
	reader := &fakeGraphReader{edges: []types.EdgePair{
		{FromUID: "T1", ToUID: "T2"},
		{FromUID: "T2", ToUID: "T1"},
	}}
	gate := NewIntegrityGate(reader, DefaultIntegrityRules(), time.Second, testLogger(t))

	ops := []types.Operation{
		{
			OpID:     "op-1",
			Kind:     types.OpDeleteRel,
			TargetID: "r-1",
			Rel:      &types.RelSpec{Kind: "PREREQ", FromUID: "T2", ToUID: "T1"},
		},
	}
	report, err := gate.Check(context.Background(), uuid.New(), ops)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !report.OK {
		t.Fatalf("expected cycle broken by pending delete, got %#v", report.Violations)
	}
}

func TestIntegrityGate_BasisViolationKindsStayDistinct(t *testing.T) {
	rules := DefaultIntegrityRules()
	rules.BasisMin = 2
	rules.BasisMax = 3
	reader := &fakeGraphReader{counts: map[string]int{
		"S-none": 0,
		"S-few":  1,
		"S-ok":   2,
		"S-many": 4,
	}}
	gate := NewIntegrityGate(reader, rules, time.Second, testLogger(t))

	report, err := gate.Check(context.Background(), uuid.New(), []types.Operation{
		{OpID: "op-1", Kind: types.OpUpdateNode, TargetID: "S-ok", Props: map[string]any{"name": "renamed"}},
	})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if report.OK {
		t.Fatal("expected violations")
	}
	v := report.Violations
	if !reflect.DeepEqual(v.MissingBasis, []string{"S-none"}) {
		t.Fatalf("missing_basis: %#v", v.MissingBasis)
	}
	if !reflect.DeepEqual(v.BasisTooFew, []string{"S-few"}) {
		t.Fatalf("basis_too_few: %#v", v.BasisTooFew)
	}
	if !reflect.DeepEqual(v.BasisTooMany, []string{"S-many"}) {
		t.Fatalf("basis_too_many: %#v", v.BasisTooMany)
	}
}

func TestIntegrityGate_PendingOpsAdjustBasisCounts(t *testing.T) {
	reader := &fakeGraphReader{counts: map[string]int{"S1": 1}}
	gate := NewIntegrityGate(reader, DefaultIntegrityRules(), time.Second, testLogger(t))

	// New Skill node arrives with its basis edge in the same batch.
	ops := []types.Operation{
		{
			OpID:     "op-1",
			Kind:     types.OpCreateNode,
			TargetID: "S2",
			Props:    map[string]any{"type": "Skill", "name": "Recursion"},
		},
		{
			OpID:     "op-2",
			Kind:     types.OpCreateRel,
			TargetID: "r-1",
			Rel:      &types.RelSpec{Kind: "BASED_ON", FromUID: "S2", ToUID: "src-1"},
		},
	}
	report, err := gate.Check(context.Background(), uuid.New(), ops)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !report.OK {
		t.Fatalf("expected clean pass, got %#v", report.Violations)
	}

	// The same node without its edge must be flagged.
	report, err = gate.Check(context.Background(), uuid.New(), ops[:1])
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if report.OK || len(report.Violations.MissingBasis) != 1 || report.Violations.MissingBasis[0] != "S2" {
		t.Fatalf("expected S2 missing basis, got %#v", report.Violations)
	}
}

func TestIntegrityGate_DefersWhenBudgetExceeded(t *testing.T) {
	reader := &fakeGraphReader{delay: 200 * time.Millisecond}
	gate := NewIntegrityGate(reader, DefaultIntegrityRules(), 20*time.Millisecond, testLogger(t))

	report, err := gate.Check(context.Background(), uuid.New(), nil)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !report.Deferred {
		t.Fatalf("expected deferral, got %+v", report)
	}
}

func TestIntegrityGate_NoBudgetRunsToCompletion(t *testing.T) {
	reader := &fakeGraphReader{
		delay:  50 * time.Millisecond,
		counts: map[string]int{"S1": 1},
	}
	gate := NewIntegrityGate(reader, DefaultIntegrityRules(), 0, testLogger(t))

	report, err := gate.Check(context.Background(), uuid.New(), nil)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if report.Deferred || !report.OK {
		t.Fatalf("expected completed clean pass, got %+v", report)
	}
}

func TestIntegrityGate_CallerCancellationIsAnError(t *testing.T) {
	reader := &fakeGraphReader{delay: 200 * time.Millisecond}
	gate := NewIntegrityGate(reader, DefaultIntegrityRules(), time.Second, testLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := gate.Check(ctx, uuid.New(), nil); err == nil {
		t.Fatal("expected caller deadline to surface as an error")
	}
}

func TestLoadIntegrityRules_OverlaysFileOntoDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("basis_min: 2\nbasis_max: 5\n"), 0o600); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	rules := LoadIntegrityRules(path, testLogger(t))
	if rules.BasisMin != 2 || rules.BasisMax != 5 {
		t.Fatalf("overrides not applied: %+v", rules)
	}
	// Keys absent from the file keep their defaults.
	if rules.PrereqEdgeKind != "PREREQ" || rules.BasisNodeKind != "Skill" {
		t.Fatalf("defaults lost: %+v", rules)
	}

	if got := LoadIntegrityRules(filepath.Join(t.TempDir(), "absent.yaml"), testLogger(t)); got != DefaultIntegrityRules() {
		t.Fatalf("missing file must yield defaults, got %+v", got)
	}
}

func TestDetectCycles_MultipleDisjointCycles(t *testing.T) {
	cycles := detectCycles([]types.EdgePair{
		{FromUID: "A", ToUID: "B"},
		{FromUID: "B", ToUID: "A"},
		{FromUID: "C", ToUID: "D"},
		{FromUID: "D", ToUID: "C"},
		{FromUID: "X", ToUID: "Y"},
	})
	if len(cycles) != 2 {
		t.Fatalf("expected 2 cycles, got %#v", cycles)
	}
	for _, cycle := range cycles {
		if cycle[0] != cycle[len(cycle)-1] {
			t.Fatalf("cycle does not close on itself: %#v", cycle)
		}
	}
}
