package types

import (
	"encoding/json"
	"testing"
)

func TestDecodeOperations_LiftsRelRoutingKeys(t *testing.T) {
	raw := []byte(`[{
		"op_id": "op-1",
		"op_type": "CREATE_REL",
		"target_id": "rel-1",
		"properties_delta": {
			"type": "PREREQ",
			"from_uid": "T1",
			"to_uid": "T2",
			"weight": 0.9
		}
	}]`)

	ops, err := DecodeOperations(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	op := ops[0]
	if op.Rel == nil {
		t.Fatal("expected rel spec")
	}
	if op.Rel.Kind != "PREREQ" || op.Rel.FromUID != "T1" || op.Rel.ToUID != "T2" {
		t.Fatalf("unexpected rel spec: %#v", op.Rel)
	}
	if _, ok := op.Props["type"]; ok {
		t.Fatal("routing key left in props")
	}
	if op.Props["weight"] != 0.9 {
		t.Fatalf("unexpected props: %#v", op.Props)
	}
}

func TestDecodeOperations_SynthesizesTargetForCreate(t *testing.T) {
	raw := []byte(`[{
		"op_id": "op-1",
		"op_type": "CREATE_NODE",
		"properties_delta": {"type": "Skill", "name": "Recursion"}
	}]`)

	ops, err := DecodeOperations(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ops[0].TargetID == "" {
		t.Fatal("expected synthesized target_id")
	}
}

func TestDecodeOperations_RejectsUpdateWithoutTarget(t *testing.T) {
	raw := []byte(`[{
		"op_id": "op-1",
		"op_type": "UPDATE_NODE",
		"properties_delta": {"name": "x"}
	}]`)

	if _, err := DecodeOperations(raw); err == nil {
		t.Fatal("expected error for UPDATE_NODE without target_id")
	}
}

func TestValidate_RejectsUIDRewrite(t *testing.T) {
	op := Operation{
		OpID:     "op-1",
		Kind:     OpUpdateNode,
		TargetID: "n-1",
		Props:    map[string]any{"uid": "other"},
	}
	if err := op.Validate(); err == nil {
		t.Fatal("expected uid rewrite to be rejected")
	}
}

func TestValidate_RejectsBadRelKind(t *testing.T) {
	op := Operation{
		OpID:     "op-1",
		Kind:     OpCreateRel,
		TargetID: "r-1",
		Rel:      &RelSpec{Kind: "prereq; DROP", FromUID: "a", ToUID: "b"},
	}
	if err := op.Validate(); err == nil {
		t.Fatal("expected invalid relationship type to be rejected")
	}
}

func TestOperation_JSONRoundTrip(t *testing.T) {
	op := Operation{
		OpID:     "op-1",
		Kind:     OpMergeRel,
		TargetID: "r-1",
		Props:    map[string]any{"weight": 0.5},
		Rel:      &RelSpec{Kind: "BASED_ON", FromUID: "s-1", ToUID: "src-1"},
		Evidence: &Evidence{SourceID: "doc-9", Text: "observed"},
	}
	raw, err := json.Marshal([]Operation{op})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	back, err := DecodeOperations(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := back[0]
	if got.Rel == nil || got.Rel.Kind != "BASED_ON" || got.Rel.FromUID != "s-1" || got.Rel.ToUID != "src-1" {
		t.Fatalf("rel lost in round trip: %#v", got.Rel)
	}
	if got.Evidence == nil || got.Evidence.SourceID != "doc-9" {
		t.Fatalf("evidence lost in round trip: %#v", got.Evidence)
	}
	if got.Props["weight"] != 0.5 {
		t.Fatalf("props lost in round trip: %#v", got.Props)
	}
}

func TestTargets_IncludesRelEndpoints(t *testing.T) {
	op := Operation{
		OpID:     "op-1",
		Kind:     OpCreateRel,
		TargetID: "r-1",
		Rel:      &RelSpec{Kind: "PREREQ", FromUID: "T1", ToUID: "T2"},
	}
	got := op.Targets()
	want := map[string]bool{"r-1": true, "T1": true, "T2": true}
	if len(got) != 3 {
		t.Fatalf("unexpected targets: %#v", got)
	}
	for _, target := range got {
		if !want[target] {
			t.Fatalf("unexpected target %q", target)
		}
	}
}

func TestTransitionAllowed(t *testing.T) {
	allowed := [][2]string{
		{ProposalStatusDraft, ProposalStatusApproved},
		{ProposalStatusDraft, ProposalStatusRejected},
		{ProposalStatusApproved, ProposalStatusDone},
		{ProposalStatusApproved, ProposalStatusFailed},
		{ProposalStatusApproved, ProposalStatusConflict},
		{ProposalStatusApproved, ProposalStatusAsyncCheckRequired},
		{ProposalStatusAsyncCheckRequired, ProposalStatusDone},
	}
	for _, pair := range allowed {
		if !TransitionAllowed(pair[0], pair[1]) {
			t.Errorf("%s -> %s should be allowed", pair[0], pair[1])
		}
	}
	denied := [][2]string{
		{ProposalStatusDraft, ProposalStatusDone},
		{ProposalStatusRejected, ProposalStatusApproved},
		{ProposalStatusDone, ProposalStatusFailed},
		{ProposalStatusConflict, ProposalStatusDone},
	}
	for _, pair := range denied {
		if TransitionAllowed(pair[0], pair[1]) {
			t.Errorf("%s -> %s should be denied", pair[0], pair[1])
		}
	}
}
