package registry

import (
	"testing"

	"github.com/vovakirdan/railsim/internal/sim"
)

type fake struct{ id string }

func (f fake) ID() string             { return f.id }
func (f fake) Title() string          { return "Fake " + f.id }
func (f fake) Build(*sim.World) error { return nil }

func TestRegistry(t *testing.T) {
	Register("zeta", func() Scenario { return fake{"zeta"} })
	Register("alpha", func() Scenario { return fake{"alpha"} })

	list := List()
	if len(list) != 2 || list[0].ID != "alpha" || list[1].ID != "zeta" {
		t.Fatalf("List() = %v, want alpha then zeta", list)
	}
	if list[0].Title != "Fake alpha" {
		t.Errorf("Title = %q", list[0].Title)
	}

	s, err := Create("zeta")
	if err != nil || s.ID() != "zeta" {
		t.Errorf("Create(zeta) = %v, %v", s, err)
	}
	if _, err := Create("missing"); err == nil {
		t.Error("Create(missing) should fail")
	}
	if !Exists("alpha") || Exists("missing") {
		t.Error("Exists gave the wrong answer")
	}

	defer func() {
		if recover() == nil {
			t.Error("duplicate Register should panic")
		}
	}()
	Register("alpha", func() Scenario { return fake{"alpha"} })
}
