package core

import (
	"reflect"
	"testing"
)

func TestRegistryRegisterIsIdempotent(t *testing.T) {
	once := NewRegistry()
	once.Register("food")

	twice := NewRegistry()
	twice.Register("food")
	twice.Register(" FOOD ")

	if !reflect.DeepEqual(once.Labels(), twice.Labels()) {
		t.Fatalf("once=%v twice=%v", once.Labels(), twice.Labels())
	}
	if !reflect.DeepEqual(twice.Labels(), []string{"Food"}) {
		t.Fatalf("labels = %v", twice.Labels())
	}
}

func TestRegistryIgnoresBlank(t *testing.T) {
	r := NewRegistry()
	r.Register("")
	r.Register("   ")
	if len(r.Labels()) != 0 {
		t.Fatalf("labels = %v", r.Labels())
	}
}

func TestRegistrySuggest(t *testing.T) {
	r := NewRegistry()
	r.Register("Fuel")
	r.Register("Food")
	r.Register("Travel")

	if got := r.Suggest("f"); !reflect.DeepEqual(got, []string{"Food", "Fuel"}) {
		t.Fatalf("Suggest(f) = %v", got)
	}
	if got := r.Suggest("FO"); !reflect.DeepEqual(got, []string{"Food"}) {
		t.Fatalf("Suggest(FO) = %v", got)
	}
	if got := r.Suggest(""); len(got) != 3 {
		t.Fatalf("Suggest('') = %v", got)
	}
	if got := r.Suggest("x"); len(got) != 0 {
		t.Fatalf("Suggest(x) = %v", got)
	}
}

func TestRegistryRemoveIsLocal(t *testing.T) {
	records := []ExpenseRecord{
		rec("1", "1", 1, "Food", refNow),
		rec("2", "1", 1, "Fuel", refNow),
	}
	r := NewRegistry()
	r.ReconcileFromRecords(records)
	r.Remove("food")
	r.Remove("missing")

	if !reflect.DeepEqual(r.Labels(), []string{"Fuel"}) {
		t.Fatalf("labels = %v", r.Labels())
	}
	if records[0].Category != "Food" {
		t.Fatal("removing a category touched a record")
	}

	// Categories still in use return with the next snapshot.
	r.ReconcileFromRecords(records)
	if !reflect.DeepEqual(r.Labels(), []string{"Food", "Fuel"}) {
		t.Fatalf("labels after reconcile = %v", r.Labels())
	}
}

func TestRegistryReconcileKeepsPending(t *testing.T) {
	r := NewRegistry()
	r.Register("gifts")
	r.Register("food")
	r.ReconcileFromRecords([]ExpenseRecord{
		rec("1", "1", 1, "FOOD", refNow),
		rec("2", "1", 1, "travel", refNow),
	})
	if !reflect.DeepEqual(r.Labels(), []string{"Food", "Gifts", "Travel"}) {
		t.Fatalf("labels = %v", r.Labels())
	}
	if !reflect.DeepEqual(r.Pending(), []string{"Gifts"}) {
		t.Fatalf("pending = %v", r.Pending())
	}

	// Once used, Food is no longer pending and leaves with its last record.
	r.ReconcileFromRecords(nil)
	if !reflect.DeepEqual(r.Labels(), []string{"Gifts"}) {
		t.Fatalf("labels = %v", r.Labels())
	}
}

func TestRegistryReconcileRestoresEveryCategory(t *testing.T) {
	records := sampleRecords()
	r := NewRegistry("Other")
	r.ReconcileFromRecords(records)
	for _, rc := range records {
		if !r.Contains(rc.Category) {
			t.Fatalf("category %q missing after reconcile", rc.Category)
		}
	}
}

func TestRegistrySlug(t *testing.T) {
	r := NewRegistry()
	r.Register("eating out")
	if got := Slug("Eating out"); got != "eating-out" {
		t.Fatalf("Slug = %q", got)
	}
	label, ok := r.BySlug("eating-out")
	if !ok || label != "Eating out" {
		t.Fatalf("BySlug = %q %v", label, ok)
	}
	if _, ok := r.BySlug("nope"); ok {
		t.Fatal("unexpected match")
	}
}

func TestRegistrySlugCollisions(t *testing.T) {
	r := NewRegistry("Eating-out", "Eating out")
	keys := r.Keys("")
	want := []CategoryKey{{"Eating out", "eating-out"}, {"Eating-out", "eating-out-2"}}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("Keys = %+v, want %+v", keys, want)
	}
	if label, ok := r.BySlug("eating-out-2"); !ok || label != "Eating-out" {
		t.Fatalf("BySlug(eating-out-2) = %q %v", label, ok)
	}
	if s, ok := r.SlugOf("eating-OUT"); !ok || s != "eating-out-2" {
		t.Fatalf("SlugOf = %q %v", s, ok)
	}

	single := NewRegistry("Eating out")
	if other, ok := single.SlugConflict("eating-out"); !ok || other != "Eating out" {
		t.Fatalf("SlugConflict = %q %v", other, ok)
	}
	if _, ok := single.SlugConflict("EATING OUT"); ok {
		t.Fatal("a label conflicts with itself")
	}
}

func TestRegistryClosest(t *testing.T) {
	r := NewRegistry("Food", "Fuel", "Travel")
	if got, ok := r.Closest("fod"); !ok || got != "Food" {
		t.Fatalf("Closest(fod) = %q %v", got, ok)
	}
	if _, ok := r.Closest("food"); ok {
		t.Fatal("exact match should not produce a hint")
	}
	if _, ok := r.Closest("groceries"); ok {
		t.Fatal("distant label should not produce a hint")
	}
}
