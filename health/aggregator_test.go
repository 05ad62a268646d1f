package health

import "testing"

func TestSnapshotOKWhenAllComponentsOK(t *testing.T) {
	agg := New()
	agg.Register("scanner", func() (bool, string) { return true, "idle" })
	agg.Register("tunnel", func() (bool, string) { return true, "connected" })

	report := agg.Snapshot()
	if !report.OK {
		t.Fatalf("expected overall OK, got %+v", report)
	}
	if len(report.Components) != 2 {
		t.Fatalf("expected 2 components, got %d", len(report.Components))
	}
}

func TestSnapshotNotOKWhenAnyComponentFails(t *testing.T) {
	agg := New()
	agg.Register("scanner", func() (bool, string) { return true, "idle" })
	agg.Register("tunnel", func() (bool, string) { return false, "disconnected" })

	report := agg.Snapshot()
	if report.OK {
		t.Fatalf("expected overall not-OK when tunnel is down")
	}
}

func TestRegisterReplacesExistingCheck(t *testing.T) {
	agg := New()
	agg.Register("scanner", func() (bool, string) { return false, "dir_missing" })
	agg.Register("scanner", func() (bool, string) { return true, "idle" })

	report := agg.Snapshot()
	if len(report.Components) != 1 {
		t.Fatalf("expected re-registering the same name to replace, not append, got %d components", len(report.Components))
	}
	if !report.Components[0].OK {
		t.Fatalf("expected the replaced check to be used")
	}
}
