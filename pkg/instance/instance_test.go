package instance

import "testing"

func TestIDPrefersExplicitInstance(t *testing.T) {
	t.Setenv("MIVAHUB_INSTANCE_ID", "api-2")
	t.Setenv("HOSTNAME", "pod-abc")
	if got := ID(); got != "api-2" {
		t.Fatalf("expected api-2 got %s", got)
	}
}

func TestIDFallsBackToHostname(t *testing.T) {
	t.Setenv("MIVAHUB_INSTANCE_ID", "")
	t.Setenv("HOSTNAME", "pod-abc")
	if got := ID(); got != "pod-abc" {
		t.Fatalf("expected pod-abc got %s", got)
	}
}

func TestIDDefault(t *testing.T) {
	t.Setenv("MIVAHUB_INSTANCE_ID", "")
	t.Setenv("HOSTNAME", " ")
	if got := ID(); got != fallbackID {
		t.Fatalf("expected %s got %s", fallbackID, got)
	}
}
