package cachekey

import (
	"net/url"
	"strings"
	"testing"
)

func TestKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{
			name: "simple url no params",
			key:  Key{URL: "/api/profile"},
			want: "frende:api/profile",
		},
		{
			name: "url with single param",
			key: Key{
				URL:    "/api/tasks",
				Params: map[string]string{"status": "open"},
			},
			want: "frende:api/tasks:status=open",
		},
		{
			name: "url with multiple params (sorted)",
			key: Key{
				URL: "/api/chat/7/messages",
				Params: map[string]string{
					"limit":  "50",
					"before": "1000",
				},
			},
			want: "frende:api/chat/7/messages:before=1000:limit=50",
		},
		{
			name: "trailing slash normalized",
			key:  Key{URL: "/api/matches/"},
			want: "frende:api/matches",
		},
		{
			name: "empty url",
			key:  Key{},
			want: "frende",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.key.String()
			if got != tt.want {
				t.Errorf("Key.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestKey_InsertionOrderIndependence ensures keys are identical regardless
// of the order parameters were inserted into the map.
func TestKey_InsertionOrderIndependence(t *testing.T) {
	a := map[string]string{}
	a["page"] = "1"
	a["limit"] = "20"
	a["sort"] = "created"

	b := map[string]string{}
	b["sort"] = "created"
	b["limit"] = "20"
	b["page"] = "1"

	keyA := Key{URL: "/api/tasks", Params: a}
	keyB := Key{URL: "/api/tasks", Params: b}

	if keyA.String() != keyB.String() {
		t.Errorf("keys differ for same params: %q vs %q", keyA.String(), keyB.String())
	}
}

func TestKey_Determinism(t *testing.T) {
	key := Key{
		URL: "/api/matches",
		Params: map[string]string{
			"status": "active",
			"page":   "2",
			"limit":  "10",
		},
	}

	first := key.String()
	for i := 0; i < 10; i++ {
		if got := key.String(); got != first {
			t.Fatalf("iteration %d: got %v, want %v (not deterministic)", i, got, first)
		}
	}
}

func TestPrefix(t *testing.T) {
	key := Key{URL: "/api/tasks/42", Params: map[string]string{"full": "true"}}

	if !strings.HasPrefix(key.String(), Prefix("/api/tasks")) {
		t.Errorf("key %q does not start with prefix %q", key.String(), Prefix("/api/tasks"))
	}
	if strings.HasPrefix(key.String(), Prefix("/api/matches")) {
		t.Errorf("key %q unexpectedly matches prefix %q", key.String(), Prefix("/api/matches"))
	}
}

func TestFromValues(t *testing.T) {
	values := url.Values{
		"page":  []string{"1"},
		"limit": []string{"20"},
	}

	key := FromValues("/api/tasks", values)
	want := "frende:api/tasks:limit=20:page=1"
	if key.String() != want {
		t.Errorf("FromValues key = %v, want %v", key.String(), want)
	}

	empty := FromValues("/api/tasks", nil)
	if empty.String() != "frende:api/tasks" {
		t.Errorf("FromValues with nil values = %v", empty.String())
	}
}
