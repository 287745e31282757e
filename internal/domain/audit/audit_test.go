package audit

import (
	"testing"
)

func TestBuildBaseQueryNumbersPlaceholders(t *testing.T) {
	query, args := buildBaseQuery("SELECT COUNT(1)", "t1", Filter{EntityType: EntityKPIBonusRecord, ActorUser: "u1"})
	want := "SELECT COUNT(1) FROM audit_events WHERE tenant_id = $1 AND entity_type = $2 AND actor_user_id = $3"
	if query != want {
		t.Fatalf("unexpected query:\n%s\nwant:\n%s", query, want)
	}
	if len(args) != 3 || args[1] != EntityKPIBonusRecord || args[2] != "u1" {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestBuildBaseQueryWithoutFilters(t *testing.T) {
	query, args := buildBaseQuery("SELECT id", "t1", Filter{})
	if query != "SELECT id FROM audit_events WHERE tenant_id = $1" || len(args) != 1 {
		t.Fatalf("unexpected query %q args %v", query, args)
	}
}

func TestMarshalStateNil(t *testing.T) {
	out, err := marshalState(nil)
	if err != nil || out != nil {
		t.Fatalf("expected nil payload, got %s err=%v", out, err)
	}
	out, err = marshalState(map[string]string{"status": "draft"})
	if err != nil || string(out) != `{"status":"draft"}` {
		t.Fatalf("unexpected payload %s err=%v", out, err)
	}
}
