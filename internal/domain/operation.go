package types

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// OpKind is the closed set of graph edits a proposal may carry.
type OpKind string

const (
	OpCreateNode OpKind = "CREATE_NODE"
	OpMergeNode  OpKind = "MERGE_NODE"
	OpUpdateNode OpKind = "UPDATE_NODE"
	OpDeleteNode OpKind = "DELETE_NODE"
	OpCreateRel  OpKind = "CREATE_REL"
	OpMergeRel   OpKind = "MERGE_REL"
	OpUpdateRel  OpKind = "UPDATE_REL"
	OpDeleteRel  OpKind = "DELETE_REL"
)

// Relationship kinds are interpolated into cypher, so they are restricted to
// plain upper-snake identifiers.
var relKindPattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

const (
	// Reserved property key carrying entity identity; immutable after create.
	PropUID = "uid"

	propRelType = "type"
	propFromUID = "from_uid"
	propToUID   = "to_uid"
)

// RelSpec routes a relationship operation: edge kind plus endpoint node uids.
type RelSpec struct {
	Kind    string `json:"type"`
	FromUID string `json:"from_uid"`
	ToUID   string `json:"to_uid"`
}

// Evidence links an operation to the source it was generated from. It never
// mutates the target; the applier materializes it as a provenance edge.
type Evidence struct {
	SourceID string `json:"source_id"`
	Text     string `json:"text,omitempty"`
}

// Operation is one atomic graph edit. Relationship routing keys are lifted out
// of the wire properties_delta into Rel at decode time so apply code never
// touches loosely typed payloads.
type Operation struct {
	OpID     string
	Kind     OpKind
	TargetID string
	Props    map[string]any
	Rel      *RelSpec
	Evidence *Evidence
	Detach   bool
}

func (o Operation) IsRel() bool {
	switch o.Kind {
	case OpCreateRel, OpMergeRel, OpUpdateRel, OpDeleteRel:
		return true
	}
	return false
}

func (o Operation) IsCreateOrMerge() bool {
	switch o.Kind {
	case OpCreateNode, OpMergeNode, OpCreateRel, OpMergeRel:
		return true
	}
	return false
}

// Targets returns every graph identity this operation touches: the target
// itself plus, for relationship ops, both endpoints. The rebase checker keys
// conflict detection off this set.
func (o Operation) Targets() []string {
	out := make([]string, 0, 3)
	if o.TargetID != "" {
		out = append(out, o.TargetID)
	}
	if o.Rel != nil {
		if o.Rel.FromUID != "" {
			out = append(out, o.Rel.FromUID)
		}
		if o.Rel.ToUID != "" {
			out = append(out, o.Rel.ToUID)
		}
	}
	return out
}

func (o Operation) Validate() error {
	if strings.TrimSpace(o.OpID) == "" {
		return fmt.Errorf("operation: missing op_id")
	}
	switch o.Kind {
	case OpCreateNode, OpMergeNode, OpUpdateNode, OpDeleteNode,
		OpCreateRel, OpMergeRel, OpUpdateRel, OpDeleteRel:
	default:
		return fmt.Errorf("operation %s: unknown op_type %q", o.OpID, o.Kind)
	}
	if strings.TrimSpace(o.TargetID) == "" {
		return fmt.Errorf("operation %s: missing target_id", o.OpID)
	}
	if o.IsRel() {
		if o.Rel == nil {
			return fmt.Errorf("operation %s: relationship op without type/from_uid/to_uid", o.OpID)
		}
		if !relKindPattern.MatchString(o.Rel.Kind) {
			return fmt.Errorf("operation %s: invalid relationship type %q", o.OpID, o.Rel.Kind)
		}
		if strings.TrimSpace(o.Rel.FromUID) == "" || strings.TrimSpace(o.Rel.ToUID) == "" {
			return fmt.Errorf("operation %s: relationship op missing endpoints", o.OpID)
		}
	}
	if o.Kind == OpUpdateNode || o.Kind == OpUpdateRel {
		if _, ok := o.Props[PropUID]; ok {
			return fmt.Errorf("operation %s: %s may not rewrite %q", o.OpID, o.Kind, PropUID)
		}
	}
	if o.Evidence != nil && strings.TrimSpace(o.Evidence.SourceID) == "" {
		return fmt.Errorf("operation %s: evidence without source_id", o.OpID)
	}
	return nil
}

type wireOperation struct {
	OpID     string         `json:"op_id"`
	OpType   OpKind         `json:"op_type"`
	TargetID string         `json:"target_id,omitempty"`
	Props    map[string]any `json:"properties_delta,omitempty"`
	Evidence *Evidence      `json:"evidence,omitempty"`
	Detach   bool           `json:"detach,omitempty"`
}

func (o *Operation) UnmarshalJSON(data []byte) error {
	var w wireOperation
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	op := Operation{
		OpID:     w.OpID,
		Kind:     w.OpType,
		TargetID: w.TargetID,
		Evidence: w.Evidence,
		Detach:   w.Detach,
	}
	if len(w.Props) > 0 {
		op.Props = make(map[string]any, len(w.Props))
		for k, v := range w.Props {
			op.Props[k] = v
		}
	}
	if op.IsRel() {
		rel := &RelSpec{}
		if v, ok := stringProp(op.Props, propRelType); ok {
			rel.Kind = v
			delete(op.Props, propRelType)
		}
		if v, ok := stringProp(op.Props, propFromUID); ok {
			rel.FromUID = v
			delete(op.Props, propFromUID)
		}
		if v, ok := stringProp(op.Props, propToUID); ok {
			rel.ToUID = v
			delete(op.Props, propToUID)
		}
		if rel.Kind != "" || rel.FromUID != "" || rel.ToUID != "" {
			op.Rel = rel
		}
	}
	*o = op
	return nil
}

func (o Operation) MarshalJSON() ([]byte, error) {
	w := wireOperation{
		OpID:     o.OpID,
		OpType:   o.Kind,
		TargetID: o.TargetID,
		Evidence: o.Evidence,
		Detach:   o.Detach,
	}
	if len(o.Props) > 0 || o.Rel != nil {
		w.Props = make(map[string]any, len(o.Props)+3)
		for k, v := range o.Props {
			w.Props[k] = v
		}
		if o.Rel != nil {
			w.Props[propRelType] = o.Rel.Kind
			w.Props[propFromUID] = o.Rel.FromUID
			w.Props[propToUID] = o.Rel.ToUID
		}
	}
	return json.Marshal(w)
}

// DecodeOperations parses a proposal's stored operation list, synthesizes
// identities for create/merge ops that omit one, and validates every op.
func DecodeOperations(raw []byte) ([]Operation, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("operations: empty payload")
	}
	var ops []Operation
	if err := json.Unmarshal(raw, &ops); err != nil {
		return nil, fmt.Errorf("operations: decode: %w", err)
	}
	if len(ops) == 0 {
		return nil, fmt.Errorf("operations: empty list")
	}
	for i := range ops {
		if strings.TrimSpace(ops[i].TargetID) == "" && ops[i].IsCreateOrMerge() {
			ops[i].TargetID = uuid.NewString()
		}
		if err := ops[i].Validate(); err != nil {
			return nil, err
		}
	}
	return ops, nil
}

// EncodeOperations is the inverse of DecodeOperations, used when persisting
// applied/revert operation lists on the audit entry.
func EncodeOperations(ops []Operation) ([]byte, error) {
	return json.Marshal(ops)
}

func stringProp(props map[string]any, key string) (string, bool) {
	if props == nil {
		return "", false
	}
	v, ok := props[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(s), true
}
