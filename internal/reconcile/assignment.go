// assignment.go — составной шаг назначения роли realm пользователю.
//
// Setup: роль и пользователь разрешаются (probe-or-create), затем читаются
// текущие role-mappings; назначение отправляется, только если роли ещё нет.
// Rollback: шаг пропускается, назначение удаляется вместе с пользователем.
package reconcile

import (
	"context"
	"fmt"

	"github.com/gogetaction/gogetaction/keycloak-setup/internal/keycloak"
)

// Assignment — назначение роли Role пользователю User.
type Assignment struct {
	Key  string
	Role *Resource[keycloak.RoleRepresentation]
	User *Resource[keycloak.UserRepresentation]

	// ListRoles возвращает роли realm, назначенные пользователю.
	ListRoles func(ctx context.Context, userID string) ([]keycloak.RoleRepresentation, error)
	// Assign добавляет роль пользователю.
	Assign func(ctx context.Context, userID string, role keycloak.RoleRepresentation) error
}

// Describe возвращает ключ шага и вид role-mapping.
func (a *Assignment) Describe() (key, kind string) {
	return a.Key, KindRoleMapping
}

// Exists сообщает, назначена ли роль. Ничего не создаёт.
func (a *Assignment) Exists(ctx context.Context) (bool, error) {
	assigned, _, err := a.probe(ctx)
	return assigned, err
}

// Apply выполняет шаг в режиме mode.
func (a *Assignment) Apply(ctx context.Context, mode Mode) (Change, error) {
	switch mode {
	case ModeSetup:
		return a.setup(ctx)
	case ModeRollback:
		return Change{Outcome: OutcomeSkipped}, nil
	case ModeStatus:
		assigned, found, err := a.probe(ctx)
		switch {
		case err != nil:
			return Change{}, err
		case !found:
			return Change{Outcome: OutcomeAbsent}, nil
		case !assigned:
			return Change{Outcome: OutcomeDivergent, Diverged: []string{"realmRoles"}}, nil
		}
		return Change{Outcome: OutcomePresent}, nil
	}
	return Change{}, fmt.Errorf("неизвестный режим %q", mode)
}

func (a *Assignment) setup(ctx context.Context) (Change, error) {
	role, _, err := a.Role.Ensure(ctx)
	if err != nil {
		return Change{}, fmt.Errorf("разрешение роли %s: %w", a.Role.Key, err)
	}
	user, _, err := a.User.Ensure(ctx)
	if err != nil {
		return Change{}, fmt.Errorf("разрешение пользователя %s: %w", a.User.Key, err)
	}

	roles, err := a.ListRoles(ctx, user.Value.ID)
	if err != nil {
		return Change{}, err
	}
	if hasRole(roles, role.Value.Name) {
		return Change{Outcome: OutcomeUnchanged}, nil
	}

	if err := a.Assign(ctx, user.Value.ID, role.Value); err != nil {
		return Change{}, err
	}
	return Change{Outcome: OutcomeCreated}, nil
}

// probe проверяет назначение без изменений.
// found == false — роли или пользователя нет.
func (a *Assignment) probe(ctx context.Context) (assigned, found bool, err error) {
	role, err := a.Role.Probe(ctx)
	if err != nil {
		return false, false, err
	}
	user, err := a.User.Probe(ctx)
	if err != nil {
		return false, false, err
	}
	if role == nil || user == nil {
		return false, false, nil
	}

	roles, err := a.ListRoles(ctx, user.Value.ID)
	if err != nil {
		return false, true, err
	}
	return hasRole(roles, role.Value.Name), true, nil
}

func hasRole(roles []keycloak.RoleRepresentation, name string) bool {
	for _, r := range roles {
		if r.Name == name {
			return true
		}
	}
	return false
}
