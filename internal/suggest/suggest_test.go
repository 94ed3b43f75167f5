package suggest

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	model "github.com/and161185/hcservices/internal/model"
)

func TestDistinct(t *testing.T) {
	t.Parallel()
	items := []string{"Ram Kumar", " ram kumar ", "", "Shyam", "RAMESH", "Shyam", "Sita"}
	id := func(s string) string { return s }

	tests := []struct {
		name  string
		term  string
		limit int
		want  []string
	}{
		{"all", "", 0, []string{"Ram Kumar", "Shyam", "RAMESH", "Sita"}},
		{"filtered", "ram", 0, []string{"Ram Kumar", "RAMESH"}},
		{"limited", "", 2, []string{"Ram Kumar", "Shyam"}},
		{"no match", "zzz", 0, []string{}},
	}
	for _, tt := range tests {
		if got := Distinct(items, id, tt.term, tt.limit); !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestCaseField(t *testing.T) {
	t.Parallel()
	c := model.CaseSummary{PetName: "P", ResName: "R"}
	f, ok := CaseField("res_name")
	if !ok || f(c) != "R" {
		t.Fatalf("res_name selector broken")
	}
	if _, ok := CaseField("cino; drop"); ok {
		t.Fatalf("unknown field accepted")
	}
}

func TestDebouncer_OnlyLastProceeds(t *testing.T) {
	t.Parallel()
	d := NewDebouncer(40 * time.Millisecond)

	var wg sync.WaitGroup
	var passed atomic.Int32
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := d.Wait(context.Background(), "session-1")
			if err != nil {
				t.Errorf("Wait: %v", err)
			}
			if ok {
				passed.Add(1)
			}
		}()
		time.Sleep(5 * time.Millisecond)
	}
	wg.Wait()

	if passed.Load() != 1 {
		t.Fatalf("passed=%d, want 1", passed.Load())
	}
	if d.Pending() != 0 {
		t.Fatalf("pending=%d after burst", d.Pending())
	}
}

func TestDebouncer_MarkOrderWins(t *testing.T) {
	t.Parallel()
	d := NewDebouncer(30 * time.Millisecond)

	const n = 40
	seqs := make([]uint64, n)
	for i := range seqs {
		seqs[i] = d.Mark("k")
	}
	var wg sync.WaitGroup
	passed := make([]bool, n)
	// start in reverse so scheduling cannot stand in for mark order
	for i := n - 1; i >= 0; i-- {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			passed[i], _ = d.WaitFor(context.Background(), "k", seqs[i])
		}(i)
	}
	wg.Wait()

	for i, ok := range passed {
		if ok != (i == n-1) {
			t.Fatalf("call %d passed=%v", i, ok)
		}
	}
	if d.Pending() != 0 {
		t.Fatalf("pending=%d", d.Pending())
	}
}

func TestDebouncer_KeysIndependent(t *testing.T) {
	t.Parallel()
	d := NewDebouncer(10 * time.Millisecond)

	var wg sync.WaitGroup
	res := make([]bool, 2)
	for i, key := range []string{"a", "b"} {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			res[i], _ = d.Wait(context.Background(), key)
		}(i, key)
	}
	wg.Wait()
	if !res[0] || !res[1] {
		t.Fatalf("independent keys debounced together: %v", res)
	}
}

func TestDebouncer_Cancel(t *testing.T) {
	t.Parallel()
	d := NewDebouncer(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := d.Wait(ctx, "k")
	if ok || !errors.Is(err, context.Canceled) {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if d.Pending() != 0 {
		t.Fatalf("canceled wait left state behind")
	}
}

func TestDebouncer_DefaultDelay(t *testing.T) {
	t.Parallel()
	if NewDebouncer(0).delay != DefaultDelay {
		t.Fatalf("default delay not applied")
	}
}

func TestSuggester_Suggest(t *testing.T) {
	t.Parallel()
	field, _ := CaseField("pet_name")
	s := New(NewDebouncer(10*time.Millisecond), field, 10)

	var calls atomic.Int32
	list := func(context.Context) ([]model.CaseSummary, error) {
		calls.Add(1)
		return []model.CaseSummary{{PetName: "Ram"}, {PetName: "RAM"}, {PetName: "Ramesh"}, {PetName: "Gita"}}, nil
	}
	got, ok, err := s.Suggest(context.Background(), "sess", "ra", list)
	if err != nil || !ok {
		t.Fatalf("Suggest: ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(got, []string{"Ram", "Ramesh"}) {
		t.Fatalf("got %q", got)
	}
	if calls.Load() != 1 {
		t.Fatalf("list calls=%d", calls.Load())
	}
}

func TestSuggester_SupersededSkipsSearch(t *testing.T) {
	t.Parallel()
	s := New(NewDebouncer(50*time.Millisecond), func(c model.CaseSummary) string { return c.PetName }, 0)

	var calls atomic.Int32
	list := func(context.Context) ([]model.CaseSummary, error) {
		calls.Add(1)
		return nil, nil
	}
	first := make(chan bool, 1)
	go func() {
		_, ok, _ := s.Suggest(context.Background(), "sess", "r", list)
		first <- ok
	}()
	time.Sleep(10 * time.Millisecond)
	if _, ok, err := s.Suggest(context.Background(), "sess", "ra", list); !ok || err != nil {
		t.Fatalf("latest call did not proceed: %v %v", ok, err)
	}
	if <-first {
		t.Fatalf("superseded call proceeded")
	}
	if calls.Load() != 1 {
		t.Fatalf("list calls=%d, want 1", calls.Load())
	}
}

func TestSuggester_ListError(t *testing.T) {
	t.Parallel()
	s := New(NewDebouncer(time.Millisecond), func(c model.CaseSummary) string { return c.PetName }, 0)
	boom := errors.New("gateway down")
	_, ok, err := s.Suggest(context.Background(), "x", "", func(context.Context) ([]model.CaseSummary, error) {
		return nil, boom
	})
	if !ok || !errors.Is(err, boom) {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}
