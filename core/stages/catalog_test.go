package stages

import (
	"errors"
	"testing"
)

func TestDefaultCatalogHasElevenOrderedStages(t *testing.T) {
	catalog := Default()

	if catalog.Count() != 11 {
		t.Fatalf("expected 11 stages, got %d", catalog.Count())
	}

	first, err := catalog.StageAt(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Domain != DomainIntroduction || first.Name != "greeting" {
		t.Fatalf("expected greeting introduction stage first, got %+v", first)
	}

	last, err := catalog.StageAt(10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if last.Domain != DomainConclusion {
		t.Fatalf("expected conclusion stage last, got %q", last.Domain)
	}

	for i, def := range catalog.Stages() {
		if def.Index != i {
			t.Fatalf("expected stage %d to carry index %d, got %d", i, i, def.Index)
		}
		if def.Prompt == "" {
			t.Fatalf("expected stage %d to have a prompt", i)
		}
	}
}

func TestStageAtOutOfRangeIsNotFound(t *testing.T) {
	catalog := Default()

	for _, index := range []int{-1, catalog.Count(), catalog.Count() + 5} {
		if _, err := catalog.StageAt(index); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound for index %d, got %v", index, err)
		}
	}
}

func TestNewReindexesAndCopiesDefinitions(t *testing.T) {
	defs := []Definition{
		{Index: 7, Name: "a", Domain: DomainMemory, Prompt: "first"},
		{Index: 3, Name: "b", Domain: DomainLanguage, Prompt: "second"},
	}
	catalog := New(defs...)
	defs[0].Prompt = "mutated"

	first, _ := catalog.StageAt(0)
	if first.Index != 0 || first.Prompt != "first" {
		t.Fatalf("expected reindexed unmodified copy, got %+v", first)
	}

	stages := catalog.Stages()
	stages[1].Prompt = "mutated"
	second, _ := catalog.StageAt(1)
	if second.Prompt != "second" {
		t.Fatalf("expected catalog to be unaffected by caller mutation")
	}
}
