package feed

import "testing"

func i64(v int64) *int64 { return &v }

func TestResolveNeitherBound(t *testing.T) {
	r := Resolve(Window{})
	if r.Order != Desc || r.Before != nil || r.After != nil {
		t.Fatalf("Resolve(neither) = %+v, want Desc with no bounds", r)
	}
}

func TestResolveOnlyAfter(t *testing.T) {
	r := Resolve(Window{After: i64(100)})
	if r.Order != Asc {
		t.Fatalf("order = %v, want Asc", r.Order)
	}
	if r.After == nil || *r.After != 100 {
		t.Fatalf("After = %v, want 100", r.After)
	}
	if r.Before != nil {
		t.Fatal("expected no Before bound")
	}
}

func TestResolveOnlyBefore(t *testing.T) {
	r := Resolve(Window{Before: i64(300)})
	if r.Order != Desc {
		t.Fatalf("order = %v, want Desc", r.Order)
	}
	if r.Before == nil || *r.Before != 300 {
		t.Fatalf("Before = %v, want 300", r.Before)
	}
}

func TestResolveBothBounds(t *testing.T) {
	r := Resolve(Window{Before: i64(300), After: i64(100)})
	if r.Order != Desc {
		t.Fatalf("order = %v, want Desc", r.Order)
	}
	if r.Before == nil || *r.Before != 300 || r.After == nil || *r.After != 100 {
		t.Fatalf("bounds = %+v, want [100,300)", r)
	}
}
