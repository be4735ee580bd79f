package criteria

import (
	"errors"
	"reflect"
	"testing"
)

func TestDefault_StepFunction(t *testing.T) {
	cases := []struct {
		height uint64
		want   Criteria
	}{
		{2_405_920, Criteria772M},
		{2_605_920, Criteria772M},
		{Height7B - 1, Criteria772M},
		{Height7B, Criteria7B},
		{Height7B + 1, Criteria7B},
	}
	table := Default()
	for _, tc := range cases {
		got, ok := table.For(tc.height)
		if !ok {
			t.Fatalf("For(%d): no tier", tc.height)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("For(%d): got %+v want %+v", tc.height, got, tc.want)
		}
	}
}

func TestTable_BelowFirstTier(t *testing.T) {
	table, err := NewTable(Tier{Height: 100, Criteria: Criteria772M})
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	if _, ok := table.For(99); ok {
		t.Fatalf("expected no tier below first threshold")
	}
	if _, ok := table.For(100); !ok {
		t.Fatalf("expected lower bound to be inclusive")
	}
}

func TestNewTable_SortsAndRejectsDuplicates(t *testing.T) {
	table, err := NewTable(
		Tier{Height: 50, Criteria: Criteria7B},
		Tier{Height: 0, Criteria: Criteria772M},
	)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	if got, _ := table.For(10); got.MaxParameters != Criteria772M.MaxParameters {
		t.Fatalf("unsorted table lookup: got %+v", got)
	}
	if _, err := NewTable(Tier{Height: 1}, Tier{Height: 1}); err == nil {
		t.Fatalf("expected duplicate threshold error")
	}
}

func TestCriteria_CheckSize(t *testing.T) {
	c := Criteria{MaxBytes: 10}
	if err := c.CheckSize(10); err != nil {
		t.Fatalf("at limit: %v", err)
	}
	if err := c.CheckSize(11); !errors.Is(err, ErrIneligible) {
		t.Fatalf("over limit: got %v", err)
	}
	if err := (Criteria{}).CheckSize(1 << 40); err != nil {
		t.Fatalf("unbounded: %v", err)
	}
}

func TestCriteria_AllowsType(t *testing.T) {
	if !Criteria7B.AllowsType("GemmaForCausalLM") {
		t.Fatalf("expected Gemma allowed in 7B tier")
	}
	if Criteria7B.AllowsType("GPT2LMHeadModel") {
		t.Fatalf("expected GPT2 disallowed in 7B tier")
	}
}
