package ops

import (
	"context"
	"fmt"
	"testing"

	"github.com/hpungsan/autoledger/internal/config"
	"github.com/hpungsan/autoledger/internal/errors"
)

func seedRows(t *testing.T, cfg *config.Config, times ...string) {
	t.Helper()
	for i, ts := range times {
		_, err := Append(context.Background(), cfg, AppendInput{
			Time:     ts,
			Amount:   fmt.Sprintf("-%d", i+1),
			Merchant: fmt.Sprintf("m%d", i),
		})
		if err != nil {
			t.Fatalf("Append(%s) failed: %v", ts, err)
		}
	}
}

func TestList_NewestFirst(t *testing.T) {
	_, cfg, _ := setup(t)
	seedRows(t, cfg, "2026-03-01 10:00", "2026-03-03 09:00", "2026-03-02 18:00")

	out, err := List(context.Background(), cfg, ListInput{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(out.Items) != 3 {
		t.Fatalf("len(Items) = %d, want 3", len(out.Items))
	}
	want := []string{"2026-03-03 09:00", "2026-03-02 18:00", "2026-03-01 10:00"}
	for i, w := range want {
		if out.Items[i].Time != w {
			t.Errorf("Items[%d].Time = %q, want %q", i, out.Items[i].Time, w)
		}
	}
	if out.Pagination.Total != 3 || out.Pagination.HasMore {
		t.Errorf("Pagination = %+v", out.Pagination)
	}
	if out.Sort != "time_desc" {
		t.Errorf("Sort = %q", out.Sort)
	}
}

func TestList_PrefixAndPagination(t *testing.T) {
	_, cfg, _ := setup(t)
	seedRows(t, cfg,
		"2026-02-28 10:00",
		"2026-03-01 10:00",
		"2026-03-02 10:00",
		"2026-03-03 10:00",
	)

	out, err := List(context.Background(), cfg, ListInput{Prefix: "2026-03", Limit: 2})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if out.Pagination.Total != 3 {
		t.Errorf("Total = %d, want 3", out.Pagination.Total)
	}
	if !out.Pagination.HasMore {
		t.Error("HasMore = false, want true")
	}
	if len(out.Items) != 2 || out.Items[0].Time != "2026-03-03 10:00" {
		t.Errorf("first page = %+v", out.Items)
	}

	out, err = List(context.Background(), cfg, ListInput{Prefix: "2026-03", Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(out.Items) != 1 || out.Pagination.HasMore {
		t.Errorf("second page = %+v, %+v", out.Items, out.Pagination)
	}

	out, err = List(context.Background(), cfg, ListInput{Offset: 50})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if out.Items == nil || len(out.Items) != 0 {
		t.Errorf("offset past end: Items = %#v, want empty non-nil", out.Items)
	}
}

func TestList_MissingLedger(t *testing.T) {
	_, cfg, _ := setup(t)
	out, err := List(context.Background(), cfg, ListInput{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(out.Items) != 0 || out.Pagination.Total != 0 {
		t.Errorf("expected empty list, got %+v", out)
	}
}

func TestGetRow_NotFound(t *testing.T) {
	_, cfg, _ := setup(t)
	seedRows(t, cfg, "2026-03-01 10:00")

	if _, err := GetRow(context.Background(), cfg, "deadbeef"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := GetRow(context.Background(), cfg, " "); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}
}
