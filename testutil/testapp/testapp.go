// Package testapp defines the component types the test suites exercise the
// engine with: people, things, and user accounts.
package testapp

import (
	"context"
	"testing"

	"github.com/chirino/ontology/model"
	registrycomponent "github.com/chirino/ontology/registry/component"
	registrystore "github.com/chirino/ontology/registry/store"
)

const (
	ThingType  = "testapp.thing"
	PersonType = "testapp.person"
	UserType   = "testapp.user"
)

type Thing struct {
	model.ComponentBase
	Slug string `gorm:"size:100;not null"`
}

func (Thing) ComponentType() string { return ThingType }
func (Thing) TableName() string     { return "testapp_things" }

type Person struct {
	model.ComponentBase
	Slug string `gorm:"size:100;not null"`
}

func (Person) ComponentType() string { return PersonType }
func (Person) TableName() string     { return "testapp_people" }

type UserAccount struct {
	model.ComponentBase
	Username string `gorm:"size:100;not null"`
}

func (UserAccount) ComponentType() string { return UserType }
func (UserAccount) TableName() string     { return "testapp_users" }

func init() {
	registrycomponent.Register(&Thing{})
	registrycomponent.Register(&Person{})
	registrycomponent.Register(&UserAccount{})
}

// SeedPermissions installs the host permission catalog the tests rely on.
func SeedPermissions(tb testing.TB, ctx context.Context, st registrystore.Store) {
	tb.Helper()
	perms := []struct{ appLabel, codename, contentType string }{
		{"testapp", "can_use_thing", ThingType},
		{"testapp", "can_fix_thing", ThingType},
		{"testapp", "can_greet_person", PersonType},
	}
	for _, p := range perms {
		if _, err := st.EnsurePermission(ctx, p.appLabel, p.codename, p.contentType); err != nil {
			tb.Fatalf("seed permission %s.%s: %v", p.appLabel, p.codename, err)
		}
	}
}
