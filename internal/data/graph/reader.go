package graph

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	types "github.com/yungbote/atlasgraph-backend/internal/domain"
	"github.com/yungbote/atlasgraph-backend/internal/platform/logger"
	"github.com/yungbote/atlasgraph-backend/internal/platform/neo4jdb"
)

// Reader serves the integrity gate's read-only queries. It never writes; the
// gate runs strictly before the applier.
type Reader struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewReader(client *neo4jdb.Client, baseLog *logger.Logger) *Reader {
	return &Reader{client: client, log: baseLog.With("component", "GraphReader")}
}

// EdgesOfKind returns every stored (from, to) pair for the given relationship
// kind in the tenant's graph.
func (r *Reader) EdgesOfKind(ctx context.Context, tenantID uuid.UUID, edgeKind string) ([]types.EdgePair, error) {
	if !relKindPattern.MatchString(edgeKind) {
		return nil, fmt.Errorf("invalid relationship type %q", edgeKind)
	}
	query := fmt.Sprintf(`
MATCH (a:Entity {tenant_id: $tenant_id})-[:%s]->(b:Entity {tenant_id: $tenant_id})
RETURN a.uid AS from_uid, b.uid AS to_uid
`, edgeKind)

	var out []types.EdgePair
	err := r.read(ctx, query, map[string]any{"tenant_id": tenantID.String()}, func(rec *neo4j.Record) {
		from, _ := rec.Get("from_uid")
		to, _ := rec.Get("to_uid")
		f, _ := from.(string)
		t, _ := to.(string)
		if f != "" && t != "" {
			out = append(out, types.EdgePair{FromUID: f, ToUID: t})
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// BasisCounts returns, for every active node of nodeKind, how many outgoing
// edges of edgeKind it has (zero included).
func (r *Reader) BasisCounts(ctx context.Context, tenantID uuid.UUID, nodeKind, edgeKind string) (map[string]int, error) {
	if !relKindPattern.MatchString(edgeKind) {
		return nil, fmt.Errorf("invalid relationship type %q", edgeKind)
	}
	query := fmt.Sprintf(`
MATCH (n:Entity {tenant_id: $tenant_id})
WHERE n.type = $node_kind AND coalesce(n.lifecycle_status, 'ACTIVE') = 'ACTIVE'
OPTIONAL MATCH (n)-[e:%s]->(:Entity {tenant_id: $tenant_id})
RETURN n.uid AS uid, count(e) AS basis_count
`, edgeKind)

	out := map[string]int{}
	err := r.read(ctx, query, map[string]any{
		"tenant_id": tenantID.String(),
		"node_kind": nodeKind,
	}, func(rec *neo4j.Record) {
		uidVal, _ := rec.Get("uid")
		cntVal, _ := rec.Get("basis_count")
		uid, _ := uidVal.(string)
		cnt, _ := cntVal.(int64)
		if uid != "" {
			out[uid] = int(cnt)
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Reader) read(ctx context.Context, query string, params map[string]any, collect func(*neo4j.Record)) error {
	if r == nil || r.client == nil || r.client.Driver == nil {
		return fmt.Errorf("graph reader not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	session := r.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: r.client.Database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		for res.Next(ctx) {
			collect(res.Record())
		}
		return nil, res.Err()
	})
	return err
}
