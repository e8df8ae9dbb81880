package activity

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

type stubSource struct {
	list []Activity
	err  error
}

func (s stubSource) Events(context.Context) ([]Activity, error) { return s.list, s.err }

func TestLoadUsesFetchedList(t *testing.T) {
	src := stubSource{list: []Activity{{ID: "a1", Name: "Board games"}}}
	l := Load(context.Background(), src, zerolog.Nop())

	if l.Fallback || l.Err != nil {
		t.Fatalf("unexpected fallback: %+v", l)
	}
	if len(l.Activities) != 1 || l.Activities[0].ID != "a1" {
		t.Fatalf("unexpected activities %+v", l.Activities)
	}
	all := l.All()
	if len(all) != 1+len(Featured()) || all[0].ID != "a1" {
		t.Errorf("featured events must follow member activities, got %d entries", len(all))
	}
}

func TestLoadFallsBackOnError(t *testing.T) {
	boom := errors.New("connection refused")
	l := Load(context.Background(), stubSource{err: boom}, zerolog.Nop())

	if !l.Fallback || !errors.Is(l.Err, boom) {
		t.Fatalf("expected fallback with error, got %+v", l)
	}
	if len(l.Activities) != len(Defaults()) {
		t.Fatalf("expected %d default activities, got %d", len(Defaults()), len(l.Activities))
	}
	if _, ok := l.Find("1sefsef"); !ok {
		t.Error("featured event missing from fallback listing")
	}
}

func TestLoadNilListIsEmpty(t *testing.T) {
	l := Load(context.Background(), stubSource{}, zerolog.Nop())
	if l.Activities == nil {
		t.Fatal("expected non-nil empty list")
	}
}

func TestDefaultsHaveUniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for _, a := range append(Defaults(), Featured()...) {
		if a.ID == "" || seen[a.ID] {
			t.Errorf("duplicate or empty id %q", a.ID)
		}
		seen[a.ID] = true
	}
}

func TestDefaultIcebreakersArePrintable(t *testing.T) {
	for _, a := range append(Defaults(), Featured()...) {
		if a.Icebreaker == "" {
			continue
		}
		if !strings.Contains(strings.TrimSpace(a.Icebreaker), " ") {
			t.Errorf("activity %s: icebreaker %q is a placeholder, not a prompt", a.ID, a.Icebreaker)
		}
	}
}

func TestDateString(t *testing.T) {
	d := Date{Month: 5, Day: 20, Weekday: "Sat", Time: "07:30"}
	if got := d.String(); got != "5/20 Sat 07:30" {
		t.Errorf("unexpected %q", got)
	}
}
