package pagination

import "testing"

func TestNormalize(t *testing.T) {
	got := Pagination{Limit: 500, Offset: -3}.Normalize()
	if got.Limit != MaxLimit || got.Offset != 0 {
		t.Fatalf("unexpected normalized pagination %+v", got)
	}
	if got := (Pagination{}).Normalize(); got.Limit != DefaultLimit {
		t.Fatalf("expected default limit, got %d", got.Limit)
	}
}

func TestBuildOffsetPageInfo(t *testing.T) {
	p := Pagination{Limit: 2, Offset: 4}
	items, info := BuildOffsetPageInfo([]int{1, 2, 3}, p)
	if len(items) != 2 || !info.HasMore || info.NextOffset == nil || *info.NextOffset != 6 {
		t.Fatalf("unexpected page %v %+v", items, info)
	}

	items, info = BuildOffsetPageInfo([]int{1}, p)
	if len(items) != 1 || info.HasMore || info.NextOffset != nil {
		t.Fatalf("unexpected last page %v %+v", items, info)
	}
}
