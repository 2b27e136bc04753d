package reconcile

import (
	"testing"

	"github.com/google/uuid"

	"github.com/brokkr-io/brokkr/pkg/stack"
)

func TestSelectLatestPerStack_KeepsHighestSequencePerStack(t *testing.T) {
	s1, s2 := uuid.New(), uuid.New()
	do1 := stack.DeploymentObject{ID: uuid.New(), StackID: s1, SequenceID: 1}
	do2 := stack.DeploymentObject{ID: uuid.New(), StackID: s1, SequenceID: 2}
	do3 := stack.DeploymentObject{ID: uuid.New(), StackID: s2, SequenceID: 3}

	objects := []stack.DeploymentObject{do1, do2, do3} // ascending sequence_id, as the broker returns them

	out := selectLatestPerStack(objects, map[uuid.UUID]uuid.UUID{})

	byStack := map[uuid.UUID]stack.DeploymentObject{}
	for _, o := range out {
		byStack[o.StackID] = o
	}

	if len(out) != 2 {
		t.Fatalf("got %d objects, want 2 (one per stack)", len(out))
	}
	if byStack[s1].ID != do2.ID {
		t.Errorf("stack s1 selected %v, want the highest sequence_id object %v", byStack[s1].ID, do2.ID)
	}
	if byStack[s2].ID != do3.ID {
		t.Errorf("stack s2 selected %v, want %v", byStack[s2].ID, do3.ID)
	}
}

func TestSelectLatestPerStack_SkipsAlreadyApplied(t *testing.T) {
	s1 := uuid.New()
	do1 := stack.DeploymentObject{ID: uuid.New(), StackID: s1, SequenceID: 1}

	applied := map[uuid.UUID]uuid.UUID{s1: do1.ID}
	out := selectLatestPerStack([]stack.DeploymentObject{do1}, applied)

	if len(out) != 0 {
		t.Errorf("got %d objects, want 0 (already applied)", len(out))
	}
}

func TestSelectLatestPerStack_ReappliesWhenNewerArrives(t *testing.T) {
	s1 := uuid.New()
	do1 := stack.DeploymentObject{ID: uuid.New(), StackID: s1, SequenceID: 1}
	do2 := stack.DeploymentObject{ID: uuid.New(), StackID: s1, SequenceID: 2}

	applied := map[uuid.UUID]uuid.UUID{s1: do1.ID}
	out := selectLatestPerStack([]stack.DeploymentObject{do1, do2}, applied)

	if len(out) != 1 || out[0].ID != do2.ID {
		t.Errorf("selectLatestPerStack() = %v, want only the newer object %v", out, do2.ID)
	}
}

func TestSelectLatestPerStack_Empty(t *testing.T) {
	out := selectLatestPerStack(nil, map[uuid.UUID]uuid.UUID{})
	if len(out) != 0 {
		t.Errorf("got %d objects, want 0", len(out))
	}
}
