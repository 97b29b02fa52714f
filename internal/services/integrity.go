package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	types "github.com/yungbote/atlasgraph-backend/internal/domain"
	"github.com/yungbote/atlasgraph-backend/internal/observability"
	"github.com/yungbote/atlasgraph-backend/internal/platform/logger"
)

// GraphReader is the read-only slice of the graph store the gate needs.
type GraphReader interface {
	EdgesOfKind(ctx context.Context, tenantID uuid.UUID, edgeKind string) ([]types.EdgePair, error)
	BasisCounts(ctx context.Context, tenantID uuid.UUID, nodeKind, edgeKind string) (map[string]int, error)
}

// IntegrityRules configures which relationship kinds the gate polices and the
// cardinality bounds on basis edges.
type IntegrityRules struct {
	PrereqEdgeKind string `yaml:"prereq_edge_kind"`
	BasisNodeKind  string `yaml:"basis_node_kind"`
	BasisEdgeKind  string `yaml:"basis_edge_kind"`
	BasisMin       int    `yaml:"basis_min"`
	BasisMax       int    `yaml:"basis_max"`
}

func DefaultIntegrityRules() IntegrityRules {
	return IntegrityRules{
		PrereqEdgeKind: "PREREQ",
		BasisNodeKind:  "Skill",
		BasisEdgeKind:  "BASED_ON",
		BasisMin:       1,
		BasisMax:       8,
	}
}

// LoadIntegrityRules overlays a yaml rules file onto the defaults. A missing
// path just yields the defaults.
func LoadIntegrityRules(path string, log *logger.Logger) IntegrityRules {
	rules := DefaultIntegrityRules()
	path = strings.TrimSpace(path)
	if path == "" {
		return rules
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if log != nil {
			log.Warn("integrity rules file unreadable, using defaults", "path", path, "error", err)
		}
		return rules
	}
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		if log != nil {
			log.Warn("integrity rules file invalid, using defaults", "path", path, "error", err)
		}
		return DefaultIntegrityRules()
	}
	return rules
}

// IntegrityReport is the gate's verdict. Deferred means the budget ran out
// before the checks finished; nothing was mutated and the proposal should move
// to ASYNC_CHECK_REQUIRED.
type IntegrityReport struct {
	OK         bool
	Deferred   bool
	Elapsed    time.Duration
	Violations types.Violations
}

type IntegrityGate interface {
	Check(ctx context.Context, tenantID uuid.UUID, ops []types.Operation) (*IntegrityReport, error)
}

type integrityGate struct {
	log    *logger.Logger
	reader GraphReader
	rules  IntegrityRules
	budget time.Duration
}

// NewIntegrityGate builds the pre-commit validator. budget <= 0 disables the
// deadline; the recheck worker uses that to finish deferred proposals.
func NewIntegrityGate(reader GraphReader, rules IntegrityRules, budget time.Duration, baseLog *logger.Logger) IntegrityGate {
	return &integrityGate{
		log:    baseLog.With("service", "IntegrityGate"),
		reader: reader,
		rules:  rules,
		budget: budget,
	}
}

func (g *integrityGate) Check(ctx context.Context, tenantID uuid.UUID, ops []types.Operation) (*IntegrityReport, error) {
	if g == nil || g.reader == nil {
		return nil, fmt.Errorf("integrity gate not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	cctx := ctx
	if g.budget > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, g.budget)
		defer cancel()
	}

	var (
		cycles          [][]string
		missing, tooFew []string
		tooMany         []string
	)

	grp, gctx := errgroup.WithContext(cctx)
	grp.Go(func() error {
		found, err := g.checkPrereqCycles(gctx, tenantID, ops)
		if err != nil {
			return err
		}
		cycles = found
		return nil
	})
	grp.Go(func() error {
		m, few, many, err := g.checkBasis(gctx, tenantID, ops)
		if err != nil {
			return err
		}
		missing, tooFew, tooMany = m, few, many
		return nil
	})
	err := grp.Wait()
	elapsed := time.Since(start)

	if err != nil {
		// A budget overrun defers the decision; only our own deadline counts,
		// a caller cancellation propagates as an error.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			if g.log != nil {
				g.log.Warn("integrity check exceeded budget, deferring",
					"tenant_id", tenantID.String(),
					"budget_ms", g.budget.Milliseconds(),
					"elapsed_ms", elapsed.Milliseconds(),
				)
			}
			if m := observability.Current(); m != nil {
				m.CountIntegrityDeferred()
			}
			return &IntegrityReport{Deferred: true, Elapsed: elapsed}, nil
		}
		return nil, err
	}

	report := &IntegrityReport{
		Elapsed: elapsed,
		Violations: types.Violations{
			PrereqCycles: cycles,
			MissingBasis: missing,
			BasisTooFew:  tooFew,
			BasisTooMany: tooMany,
		},
	}
	report.OK = report.Violations.Empty()

	if m := observability.Current(); m != nil {
		m.ObserveIntegrityLatency(elapsed.Seconds())
		m.CountViolations(report.Violations)
	}
	return report, nil
}

// checkPrereqCycles unions stored prereq edges with the proposal's pending
// edge adds/removals and walks the result depth-first.
func (g *integrityGate) checkPrereqCycles(ctx context.Context, tenantID uuid.UUID, ops []types.Operation) ([][]string, error) {
	stored, err := g.reader.EdgesOfKind(ctx, tenantID, g.rules.PrereqEdgeKind)
	if err != nil {
		return nil, err
	}

	edges := map[string]types.EdgePair{}
	for _, e := range stored {
		edges[edgeKey(e.FromUID, e.ToUID)] = e
	}
	deletedNodes := map[string]bool{}
	for _, op := range ops {
		switch {
		case op.Kind == types.OpDeleteNode && op.Detach:
			deletedNodes[op.TargetID] = true
		case op.Rel != nil && op.Rel.Kind == g.rules.PrereqEdgeKind:
			switch op.Kind {
			case types.OpCreateRel, types.OpMergeRel:
				edges[edgeKey(op.Rel.FromUID, op.Rel.ToUID)] = types.EdgePair{FromUID: op.Rel.FromUID, ToUID: op.Rel.ToUID}
			case types.OpDeleteRel:
				delete(edges, edgeKey(op.Rel.FromUID, op.Rel.ToUID))
			}
		}
	}

	pairs := make([]types.EdgePair, 0, len(edges))
	for _, e := range edges {
		if deletedNodes[e.FromUID] || deletedNodes[e.ToUID] {
			continue
		}
		pairs = append(pairs, e)
	}
	return detectCycles(pairs), nil
}

// checkBasis projects the proposal onto the stored basis-edge counts and
// classifies qualifying nodes into the three distinct violation kinds.
func (g *integrityGate) checkBasis(ctx context.Context, tenantID uuid.UUID, ops []types.Operation) (missing, tooFew, tooMany []string, err error) {
	counts, err := g.reader.BasisCounts(ctx, tenantID, g.rules.BasisNodeKind, g.rules.BasisEdgeKind)
	if err != nil {
		return nil, nil, nil, err
	}
	effective := make(map[string]int, len(counts))
	for k, v := range counts {
		effective[k] = v
	}

	for _, op := range ops {
		switch op.Kind {
		case types.OpCreateNode, types.OpMergeNode:
			if kind, _ := op.Props["type"].(string); kind == g.rules.BasisNodeKind {
				if _, ok := effective[op.TargetID]; !ok {
					effective[op.TargetID] = 0
				}
			}
		case types.OpDeleteNode:
			delete(effective, op.TargetID)
		case types.OpCreateRel, types.OpMergeRel:
			if op.Rel != nil && op.Rel.Kind == g.rules.BasisEdgeKind {
				if _, ok := effective[op.Rel.FromUID]; ok {
					effective[op.Rel.FromUID]++
				}
			}
		case types.OpDeleteRel:
			if op.Rel != nil && op.Rel.Kind == g.rules.BasisEdgeKind {
				if n, ok := effective[op.Rel.FromUID]; ok && n > 0 {
					effective[op.Rel.FromUID] = n - 1
				}
			}
		}
	}

	for uid, n := range effective {
		switch {
		case n == 0:
			missing = append(missing, uid)
		case n < g.rules.BasisMin:
			tooFew = append(tooFew, uid)
		case g.rules.BasisMax > 0 && n > g.rules.BasisMax:
			tooMany = append(tooMany, uid)
		}
	}
	sort.Strings(missing)
	sort.Strings(tooFew)
	sort.Strings(tooMany)
	return missing, tooFew, tooMany, nil
}

func edgeKey(from, to string) string { return from + "\x00" + to }

// detectCycles runs an iteratively-rooted DFS with a recursion stack. Each
// back edge yields one cycle reported as the ordered uid list closing on its
// first node (e.g. [T1 T2 T1]).
func detectCycles(edges []types.EdgePair) [][]string {
	adj := map[string][]string{}
	nodeSet := map[string]bool{}
	for _, e := range edges {
		adj[e.FromUID] = append(adj[e.FromUID], e.ToUID)
		nodeSet[e.FromUID] = true
		nodeSet[e.ToUID] = true
	}
	nodes := make([]string, 0, len(nodeSet))
	for n := range nodeSet {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	for n := range adj {
		sort.Strings(adj[n])
	}

	const (
		white = 0
		grey  = 1
		black = 2
	)
	state := map[string]int{}
	var stack []string
	var cycles [][]string

	var dfs func(n string)
	dfs = func(n string) {
		state[n] = grey
		stack = append(stack, n)
		for _, m := range adj[n] {
			switch state[m] {
			case white:
				dfs(m)
			case grey:
				for i, s := range stack {
					if s == m {
						cycle := make([]string, 0, len(stack)-i+1)
						cycle = append(cycle, stack[i:]...)
						cycle = append(cycle, m)
						cycles = append(cycles, cycle)
						break
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[n] = black
	}

	for _, n := range nodes {
		if state[n] == white {
			dfs(n)
		}
	}
	return cycles
}
