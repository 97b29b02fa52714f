package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	types "github.com/yungbote/atlasgraph-backend/internal/domain"
	"github.com/yungbote/atlasgraph-backend/internal/platform/logger"
	"github.com/yungbote/atlasgraph-backend/internal/platform/neo4jdb"
)

// Applier executes an accepted proposal's operations as one graph-store write
// transaction. Either every statement commits or none do.
type Applier struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewApplier(client *neo4jdb.Client, baseLog *logger.Logger) *Applier {
	return &Applier{client: client, log: baseLog.With("component", "GraphApplier")}
}

// EnsureSchema creates identity constraints. Best-effort; restricted users may
// not hold schema privileges.
func (a *Applier) EnsureSchema(ctx context.Context) {
	if a == nil || a.client == nil || a.client.Driver == nil {
		return
	}
	session := a.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: a.client.Database,
	})
	defer session.Close(ctx)

	stmts := []string{
		`CREATE CONSTRAINT entity_identity IF NOT EXISTS FOR (n:Entity) REQUIRE (n.tenant_id, n.uid) IS UNIQUE`,
		`CREATE INDEX entity_type_idx IF NOT EXISTS FOR (n:Entity) ON (n.tenant_id, n.type)`,
	}
	for _, q := range stmts {
		if res, err := session.Run(ctx, q, nil); err != nil {
			if a.log != nil {
				a.log.Warn("neo4j schema init failed (continuing)", "error", err)
			}
		} else {
			_, _ = res.Consume(ctx)
		}
	}
}

func (a *Applier) ApplyOperations(ctx context.Context, tenantID uuid.UUID, ops []types.Operation) error {
	if a == nil || a.client == nil || a.client.Driver == nil {
		return fmt.Errorf("graph applier not configured")
	}
	if tenantID == uuid.Nil {
		return fmt.Errorf("graph apply: missing tenant id")
	}
	if len(ops) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	// Build everything up front so a malformed op aborts before the
	// transaction opens.
	var stmts []statement
	for _, op := range ops {
		s, err := buildStatements(tenantID.String(), now, op)
		if err != nil {
			return err
		}
		stmts = append(stmts, s...)
	}

	session := a.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: a.client.Database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, s := range stmts {
			res, err := tx.Run(ctx, s.query, s.params)
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("graph apply: %w", err)
	}
	return nil
}
