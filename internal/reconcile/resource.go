// resource.go — декларативный шаг для одного ресурса Keycloak.
//
// Resource описывает ресурс таблицей: ожидаемое описание, компаратор
// и функции probe/create/update/delete. Логика check-then-act общая
// для setup, rollback и status.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"

	"dario.cat/mergo"

	"github.com/gogetaction/gogetaction/keycloak-setup/internal/keycloak"
)

// Resource — шаг reconciliation для ресурса с представлением T.
type Resource[T any] struct {
	// Key — естественный ключ ресурса (имя realm, clientId, username, alias).
	Key string
	// Kind — вид ресурса (realm, client, role, user, identity-provider).
	Kind string
	// Expected — ожидаемое описание.
	Expected T
	// Compare — сравниваемые пути.
	Compare Comparator
	// Group — группа отката (см. Grouped); пусто — без группы.
	Group string

	// Probe читает ресурс; nil, nil — ресурса нет.
	Probe func(ctx context.Context) (*keycloak.Snapshot[T], error)
	// Create создаёт ресурс по описанию.
	Create func(ctx context.Context, expected T) error
	// Update отправляет объединённое представление (текущее + ожидаемое).
	// nil — расхождение только сообщается.
	Update func(ctx context.Context, current *keycloak.Snapshot[T], merged map[string]any) error
	// Delete удаляет ресурс. nil — при откате шаг пропускается.
	Delete func(ctx context.Context, current *keycloak.Snapshot[T]) error
}

// Describe возвращает ключ и вид ресурса.
func (r *Resource[T]) Describe() (key, kind string) {
	return r.Key, r.Kind
}

// RollbackGroup возвращает группу отката ресурса.
func (r *Resource[T]) RollbackGroup() string {
	return r.Group
}

// Exists проверяет существование ресурса.
func (r *Resource[T]) Exists(ctx context.Context) (bool, error) {
	snap, err := r.Probe(ctx)
	return snap != nil, err
}

// Apply выполняет шаг в режиме mode.
func (r *Resource[T]) Apply(ctx context.Context, mode Mode) (Change, error) {
	snap, err := r.Probe(ctx)
	if err != nil {
		return Change{}, err
	}

	switch mode {
	case ModeSetup:
		return r.setup(ctx, snap)
	case ModeRollback:
		return r.rollback(ctx, snap)
	case ModeStatus:
		return r.status(snap)
	}
	return Change{}, fmt.Errorf("неизвестный режим %q", mode)
}

// Ensure возвращает ресурс, создавая его при отсутствии (probe-or-create).
func (r *Resource[T]) Ensure(ctx context.Context) (*keycloak.Snapshot[T], bool, error) {
	snap, err := r.Probe(ctx)
	if err != nil || snap != nil {
		return snap, false, err
	}

	if err := r.Create(ctx, r.Expected); err != nil {
		return nil, false, err
	}
	snap, err = r.Probe(ctx)
	if err != nil {
		return nil, true, err
	}
	if snap == nil {
		return nil, true, fmt.Errorf("%s %s не найден после создания", r.Kind, r.Key)
	}
	return snap, true, nil
}

func (r *Resource[T]) setup(ctx context.Context, snap *keycloak.Snapshot[T]) (Change, error) {
	if snap == nil {
		if err := r.Create(ctx, r.Expected); err != nil {
			return Change{}, err
		}
		return Change{Outcome: OutcomeCreated}, nil
	}

	expected, err := json.Marshal(r.Expected)
	if err != nil {
		return Change{}, fmt.Errorf("сериализация описания %s: %w", r.Key, err)
	}

	diverged := r.Compare.Diff(snap.Raw, expected)
	if len(diverged) == 0 {
		return Change{Outcome: OutcomeUnchanged}, nil
	}
	if r.Update == nil {
		return Change{Outcome: OutcomeDivergent, Diverged: diverged}, nil
	}

	merged, err := Merge(snap.Raw, expected)
	if err != nil {
		return Change{}, fmt.Errorf("объединение описания %s: %w", r.Key, err)
	}
	if err := r.Update(ctx, snap, merged); err != nil {
		return Change{}, err
	}
	return Change{
		Outcome:     OutcomeUpdated,
		Diverged:    diverged,
		Resubmitted: r.Compare.Resubmitted(expected),
	}, nil
}

func (r *Resource[T]) rollback(ctx context.Context, snap *keycloak.Snapshot[T]) (Change, error) {
	if snap == nil {
		return Change{Outcome: OutcomeAbsent}, nil
	}
	if r.Delete == nil {
		return Change{Outcome: OutcomeSkipped}, nil
	}
	if err := r.Delete(ctx, snap); err != nil {
		return Change{}, err
	}
	return Change{Outcome: OutcomeDeleted}, nil
}

func (r *Resource[T]) status(snap *keycloak.Snapshot[T]) (Change, error) {
	if snap == nil {
		return Change{Outcome: OutcomeAbsent}, nil
	}
	expected, err := json.Marshal(r.Expected)
	if err != nil {
		return Change{}, fmt.Errorf("сериализация описания %s: %w", r.Key, err)
	}
	if diverged := r.Compare.Diff(snap.Raw, expected); len(diverged) > 0 {
		return Change{Outcome: OutcomeDivergent, Diverged: diverged}, nil
	}
	return Change{Outcome: OutcomePresent}, nil
}

// Merge объединяет удалённое представление с ожидаемым: серверные поля
// сохраняются, значения из expected имеют приоритет (вложенные объекты
// объединяются рекурсивно).
func Merge(current, expected []byte) (map[string]any, error) {
	merged := map[string]any{}
	if err := json.Unmarshal(current, &merged); err != nil {
		return nil, fmt.Errorf("декодирование текущего состояния: %w", err)
	}
	var want map[string]any
	if err := json.Unmarshal(expected, &want); err != nil {
		return nil, fmt.Errorf("декодирование описания: %w", err)
	}
	if err := mergo.Merge(&merged, want, mergo.WithOverride); err != nil {
		return nil, err
	}
	return merged, nil
}
