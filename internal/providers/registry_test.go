package providers

import "testing"

func TestRegistryGetUnknownProviderErrors(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("anthropic"); err == nil {
		t.Fatalf("expected error for unregistered provider")
	}
}

func TestRegistryRegisterThenGetReturnsSameProvider(t *testing.T) {
	r := NewRegistry()
	p := &fakeProvider{name: "anthropic"}
	r.Register(p)

	got, err := r.Get("anthropic")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != Provider(p) {
		t.Fatalf("expected the same registered provider back")
	}
}

func TestRegistryRegisterOverwritesSameName(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeProvider{name: "openai"})
	second := &fakeProvider{name: "openai"}
	r.Register(second)

	got, err := r.Get("openai")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != Provider(second) {
		t.Fatalf("expected the second registration to win")
	}
}

func TestRegistryListIsSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeProvider{name: "openai"})
	r.Register(&fakeProvider{name: "anthropic"})
	r.Register(&fakeProvider{name: "gemini"})

	got := r.List()
	want := []string{"anthropic", "gemini", "openai"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
