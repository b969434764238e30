// steps.go — таблица шагов reconciliation realm GoGetAction.
//
// Порядок объявления — порядок setup: realm, клиенты, роль, пользователи,
// назначение роли, identity providers. Rollback проходит таблицу в обратном порядке,
// кроме пользователей: они удаляются в порядке объявления (testuser, затем campaigner).
package blueprint

import (
	"context"

	"github.com/gogetaction/gogetaction/keycloak-setup/internal/config"
	"github.com/gogetaction/gogetaction/keycloak-setup/internal/keycloak"
	"github.com/gogetaction/gogetaction/keycloak-setup/internal/reconcile"
)

// usersGroup — группа отката пользователей.
const usersGroup = "users"

// Settings — параметры realm из конфигурации.
type Settings struct {
	Realm            string
	FrontendClientID string
	BackendClientID  string
}

// SettingsFromConfig извлекает параметры realm из конфигурации.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Realm:            cfg.RealmName,
		FrontendClientID: cfg.FrontendClientID,
		BackendClientID:  cfg.BackendClientID,
	}
}

// Steps строит таблицу шагов поверх клиента Admin API.
func Steps(c *keycloak.Client, s Settings) []reconcile.Step {
	role := roleStep(c, s.Realm, Campaigner())
	campaigner := userStep(c, s.Realm, User(CampaignerUsername))

	return []reconcile.Step{
		realmStep(c, Realm(s.Realm)),
		clientStep(c, s.Realm, FrontendClient(s.FrontendClientID)),
		clientStep(c, s.Realm, BackendClient(s.BackendClientID)),
		role,
		userStep(c, s.Realm, User(TestUsername)),
		campaigner,
		assignmentStep(c, s.Realm, role, campaigner),
		identityProviderStep(c, s.Realm, Facebook()),
		identityProviderStep(c, s.Realm, Instagram()),
	}
}

func realmStep(c *keycloak.Client, expected keycloak.RealmRepresentation) *reconcile.Resource[keycloak.RealmRepresentation] {
	name := expected.Realm
	return &reconcile.Resource[keycloak.RealmRepresentation]{
		Key:      name,
		Kind:     reconcile.KindRealm,
		Expected: expected,
		Compare:  realmFields,
		Probe: func(ctx context.Context) (*keycloak.Snapshot[keycloak.RealmRepresentation], error) {
			return c.GetRealm(ctx, name)
		},
		Create: func(ctx context.Context, r keycloak.RealmRepresentation) error {
			return c.CreateRealm(ctx, r)
		},
		Update: func(ctx context.Context, _ *keycloak.Snapshot[keycloak.RealmRepresentation], merged map[string]any) error {
			return c.UpdateRealm(ctx, name, merged)
		},
		Delete: func(ctx context.Context, _ *keycloak.Snapshot[keycloak.RealmRepresentation]) error {
			return c.DeleteRealm(ctx, name)
		},
	}
}

func clientStep(c *keycloak.Client, realm string, expected keycloak.ClientRepresentation) *reconcile.Resource[keycloak.ClientRepresentation] {
	return &reconcile.Resource[keycloak.ClientRepresentation]{
		Key:      expected.ClientID,
		Kind:     reconcile.KindClient,
		Expected: expected,
		Compare:  clientFields,
		Probe: func(ctx context.Context) (*keycloak.Snapshot[keycloak.ClientRepresentation], error) {
			return c.FindClient(ctx, realm, expected.ClientID)
		},
		Create: func(ctx context.Context, cl keycloak.ClientRepresentation) error {
			_, err := c.CreateClient(ctx, realm, cl)
			return err
		},
		Update: func(ctx context.Context, current *keycloak.Snapshot[keycloak.ClientRepresentation], merged map[string]any) error {
			return c.UpdateClient(ctx, realm, current.Value.ID, merged)
		},
		Delete: func(ctx context.Context, current *keycloak.Snapshot[keycloak.ClientRepresentation]) error {
			return c.DeleteClient(ctx, realm, current.Value.ID)
		},
	}
}

func roleStep(c *keycloak.Client, realm string, expected keycloak.RoleRepresentation) *reconcile.Resource[keycloak.RoleRepresentation] {
	return &reconcile.Resource[keycloak.RoleRepresentation]{
		Key:      expected.Name,
		Kind:     reconcile.KindRole,
		Expected: expected,
		Compare:  roleFields,
		Probe: func(ctx context.Context) (*keycloak.Snapshot[keycloak.RoleRepresentation], error) {
			return c.GetRealmRole(ctx, realm, expected.Name)
		},
		Create: func(ctx context.Context, r keycloak.RoleRepresentation) error {
			return c.CreateRealmRole(ctx, realm, r)
		},
		Update: func(ctx context.Context, _ *keycloak.Snapshot[keycloak.RoleRepresentation], merged map[string]any) error {
			return c.UpdateRealmRole(ctx, realm, expected.Name, merged)
		},
		Delete: func(ctx context.Context, _ *keycloak.Snapshot[keycloak.RoleRepresentation]) error {
			return c.DeleteRealmRole(ctx, realm, expected.Name)
		},
	}
}

func userStep(c *keycloak.Client, realm string, expected keycloak.UserRepresentation) *reconcile.Resource[keycloak.UserRepresentation] {
	return &reconcile.Resource[keycloak.UserRepresentation]{
		Key:      expected.Username,
		Kind:     reconcile.KindUser,
		Expected: expected,
		Compare:  userFields,
		Group:    usersGroup,
		Probe: func(ctx context.Context) (*keycloak.Snapshot[keycloak.UserRepresentation], error) {
			return c.FindUser(ctx, realm, expected.Username)
		},
		Create: func(ctx context.Context, u keycloak.UserRepresentation) error {
			_, err := c.CreateUser(ctx, realm, u)
			return err
		},
		Update: func(ctx context.Context, current *keycloak.Snapshot[keycloak.UserRepresentation], merged map[string]any) error {
			return c.UpdateUser(ctx, realm, current.Value.ID, merged)
		},
		Delete: func(ctx context.Context, current *keycloak.Snapshot[keycloak.UserRepresentation]) error {
			return c.DeleteUser(ctx, realm, current.Value.ID)
		},
	}
}

func assignmentStep(c *keycloak.Client, realm string, role *reconcile.Resource[keycloak.RoleRepresentation], user *reconcile.Resource[keycloak.UserRepresentation]) *reconcile.Assignment {
	return &reconcile.Assignment{
		Key:  user.Key + "/" + role.Key,
		Role: role,
		User: user,
		ListRoles: func(ctx context.Context, userID string) ([]keycloak.RoleRepresentation, error) {
			return c.ListUserRealmRoles(ctx, realm, userID)
		},
		Assign: func(ctx context.Context, userID string, r keycloak.RoleRepresentation) error {
			return c.AddUserRealmRoles(ctx, realm, userID, []keycloak.RoleRepresentation{{ID: r.ID, Name: r.Name}})
		},
	}
}

func identityProviderStep(c *keycloak.Client, realm string, expected keycloak.IdentityProviderRepresentation) *reconcile.Resource[keycloak.IdentityProviderRepresentation] {
	return &reconcile.Resource[keycloak.IdentityProviderRepresentation]{
		Key:      expected.Alias,
		Kind:     reconcile.KindIdentityProvider,
		Expected: expected,
		Compare:  identityProviderFields,
		Probe: func(ctx context.Context) (*keycloak.Snapshot[keycloak.IdentityProviderRepresentation], error) {
			return c.GetIdentityProvider(ctx, realm, expected.Alias)
		},
		Create: func(ctx context.Context, idp keycloak.IdentityProviderRepresentation) error {
			return c.CreateIdentityProvider(ctx, realm, idp)
		},
		Update: func(ctx context.Context, _ *keycloak.Snapshot[keycloak.IdentityProviderRepresentation], merged map[string]any) error {
			return c.UpdateIdentityProvider(ctx, realm, expected.Alias, merged)
		},
		Delete: func(ctx context.Context, _ *keycloak.Snapshot[keycloak.IdentityProviderRepresentation]) error {
			return c.DeleteIdentityProvider(ctx, realm, expected.Alias)
		},
	}
}
