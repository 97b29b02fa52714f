package graph

import (
	"fmt"
	"regexp"

	types "github.com/yungbote/atlasgraph-backend/internal/domain"
)

type statement struct {
	query  string
	params map[string]any
}

// Relationship kinds cannot be parameterized in cypher; they are validated
// against this pattern before interpolation.
var relKindPattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// buildStatements normalizes one operation into its cypher statements. Merge
// stamps lifecycle metadata only ON CREATE so replaying the same merge leaves
// the node untouched; `SET += ` with a null delta value removes that property.
func buildStatements(tenantID, now string, op types.Operation) ([]statement, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}

	props := map[string]any{}
	for k, v := range op.Props {
		props[k] = v
	}

	var out []statement
	switch op.Kind {
	case types.OpCreateNode, types.OpMergeNode:
		props[types.PropUID] = op.TargetID
		out = append(out, statement{
			query: `
MERGE (n:Entity {uid: $uid, tenant_id: $tenant_id})
ON CREATE SET n.created_at = $now, n.lifecycle_status = 'ACTIVE'
SET n += $props
`,
			params: map[string]any{
				"uid":       op.TargetID,
				"tenant_id": tenantID,
				"now":       now,
				"props":     props,
			},
		})

	case types.OpUpdateNode:
		out = append(out, statement{
			query: `
MATCH (n:Entity {uid: $uid, tenant_id: $tenant_id})
SET n += $props
`,
			params: map[string]any{
				"uid":       op.TargetID,
				"tenant_id": tenantID,
				"props":     props,
			},
		})

	case types.OpDeleteNode:
		q := `
MATCH (n:Entity {uid: $uid, tenant_id: $tenant_id})
DELETE n
`
		if op.Detach {
			q = `
MATCH (n:Entity {uid: $uid, tenant_id: $tenant_id})
DETACH DELETE n
`
		}
		out = append(out, statement{
			query: q,
			params: map[string]any{
				"uid":       op.TargetID,
				"tenant_id": tenantID,
			},
		})

	case types.OpCreateRel, types.OpMergeRel:
		kind, err := safeRelKind(op)
		if err != nil {
			return nil, err
		}
		out = append(out, statement{
			query: fmt.Sprintf(`
MATCH (a:Entity {uid: $from_uid, tenant_id: $tenant_id})
MATCH (b:Entity {uid: $to_uid, tenant_id: $tenant_id})
MERGE (a)-[r:%s]->(b)
ON CREATE SET r.uid = $uid, r.created_at = $now
SET r += $props
`, kind),
			params: map[string]any{
				"uid":       op.TargetID,
				"from_uid":  op.Rel.FromUID,
				"to_uid":    op.Rel.ToUID,
				"tenant_id": tenantID,
				"now":       now,
				"props":     props,
			},
		})

	case types.OpUpdateRel:
		kind, err := safeRelKind(op)
		if err != nil {
			return nil, err
		}
		out = append(out, statement{
			query: fmt.Sprintf(`
MATCH (a:Entity {uid: $from_uid, tenant_id: $tenant_id})-[r:%s]->(b:Entity {uid: $to_uid, tenant_id: $tenant_id})
WHERE r.uid = $uid OR $uid = ''
SET r += $props
`, kind),
			params: map[string]any{
				"uid":       op.TargetID,
				"from_uid":  op.Rel.FromUID,
				"to_uid":    op.Rel.ToUID,
				"tenant_id": tenantID,
				"props":     props,
			},
		})

	case types.OpDeleteRel:
		kind, err := safeRelKind(op)
		if err != nil {
			return nil, err
		}
		out = append(out, statement{
			query: fmt.Sprintf(`
MATCH (a:Entity {uid: $from_uid, tenant_id: $tenant_id})-[r:%s]->(b:Entity {uid: $to_uid, tenant_id: $tenant_id})
WHERE r.uid = $uid OR $uid = ''
DELETE r
`, kind),
			params: map[string]any{
				"uid":       op.TargetID,
				"from_uid":  op.Rel.FromUID,
				"to_uid":    op.Rel.ToUID,
				"tenant_id": tenantID,
			},
		})

	default:
		return nil, fmt.Errorf("operation %s: unknown op_type %q", op.OpID, op.Kind)
	}

	if op.Evidence != nil && op.IsCreateOrMerge() {
		out = append(out, evidenceStatement(tenantID, now, op))
	}
	return out, nil
}

// evidenceStatement links the touched entity to its provenance source. For
// relationship ops the link hangs off the from-endpoint, tagged with the edge
// uid, since edges cannot anchor edges.
func evidenceStatement(tenantID, now string, op types.Operation) statement {
	anchor := op.TargetID
	relUID := ""
	if op.IsRel() {
		anchor = op.Rel.FromUID
		relUID = op.TargetID
	}
	return statement{
		query: `
MATCH (n:Entity {uid: $anchor_uid, tenant_id: $tenant_id})
MERGE (s:Source {id: $source_id, tenant_id: $tenant_id})
MERGE (n)-[e:DERIVED_FROM]->(s)
SET e.text = $text, e.rel_uid = $rel_uid, e.recorded_at = $now
`,
		params: map[string]any{
			"anchor_uid": anchor,
			"tenant_id":  tenantID,
			"source_id":  op.Evidence.SourceID,
			"text":       op.Evidence.Text,
			"rel_uid":    relUID,
			"now":        now,
		},
	}
}

func safeRelKind(op types.Operation) (string, error) {
	if op.Rel == nil || !relKindPattern.MatchString(op.Rel.Kind) {
		return "", fmt.Errorf("operation %s: invalid relationship type", op.OpID)
	}
	return op.Rel.Kind, nil
}
