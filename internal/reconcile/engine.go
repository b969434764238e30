// Пакет reconcile — идемпотентный движок reconciliation ресурсов Keycloak.
//
// Engine выполняет упорядоченную таблицу шагов строго последовательно:
// probe → (create | update при расхождении | delete) → запись в журнал.
// Первая ошибка прерывает прогон; повторный запуск продолжает с того же места.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"
)

// Mode — режим прогона.
type Mode string

const (
	// ModeSetup приводит ресурсы к описанию.
	ModeSetup Mode = "setup"
	// ModeRollback удаляет ресурсы в обратном порядке.
	ModeRollback Mode = "rollback"
	// ModeStatus только сравнивает, без изменений.
	ModeStatus Mode = "status"
)

// ParseMode преобразует строку в Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeSetup, ModeRollback, ModeStatus:
		return m, nil
	}
	return "", fmt.Errorf("неизвестный режим %q, допустимые: setup, rollback, status", s)
}

// Outcome — результат шага.
type Outcome string

const (
	// OutcomeCreated — ресурс отсутствовал и создан.
	OutcomeCreated Outcome = "created"
	// OutcomeUpdated — ресурс расходился с описанием и обновлён.
	OutcomeUpdated Outcome = "updated"
	// OutcomeUnchanged — ресурс совпадает с описанием.
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeDeleted — ресурс удалён при откате.
	OutcomeDeleted Outcome = "deleted"
	// OutcomeAbsent — ресурса нет (rollback, status).
	OutcomeAbsent Outcome = "absent"
	// OutcomePresent — ресурс есть и совпадает с описанием (status).
	OutcomePresent Outcome = "present"
	// OutcomeDivergent — ресурс расходится с описанием (status или шаг без Update).
	OutcomeDivergent Outcome = "divergent"
	// OutcomeSkipped — шаг не выполняет действий в этом режиме.
	OutcomeSkipped Outcome = "skipped"
)

// Виды ресурсов.
const (
	KindRealm            = "realm"
	KindClient           = "client"
	KindRole             = "role"
	KindUser             = "user"
	KindRoleMapping      = "role-mapping"
	KindIdentityProvider = "identity-provider"
)

// Change — что сделал шаг.
type Change struct {
	Outcome Outcome
	// Diverged — пути, по которым найдено расхождение.
	Diverged []string
	// Resubmitted — write-only пути, повторно отправленные при обновлении.
	Resubmitted []string
}

// Step — один шаг таблицы reconciliation.
type Step interface {
	// Describe возвращает естественный ключ и вид ресурса.
	Describe() (key, kind string)
	// Exists проверяет существование ресурса без изменений.
	Exists(ctx context.Context) (bool, error)
	// Apply выполняет шаг в заданном режиме.
	Apply(ctx context.Context, mode Mode) (Change, error)
}

// Grouped — шаг с группой отката. Соседние шаги одной группы при откате
// сохраняют порядок объявления, остальные идут в обратном порядке.
type Grouped interface {
	RollbackGroup() string
}

// rollbackGroup возвращает группу отката шага или "".
func rollbackGroup(step Step) string {
	if g, ok := step.(Grouped); ok {
		return g.RollbackGroup()
	}
	return ""
}

// rollbackOrder возвращает порядок отката: обратный порядок объявления,
// внутри непрерывной группы — прямой.
func rollbackOrder(steps []Step) []Step {
	order := slices.Clone(steps)
	slices.Reverse(order)

	for i := 0; i < len(order); {
		group := rollbackGroup(order[i])
		j := i + 1
		for group != "" && j < len(order) && rollbackGroup(order[j]) == group {
			j++
		}
		slices.Reverse(order[i:j])
		i = j
	}
	return order
}

// Result — итог одного шага.
type Result struct {
	Key      string
	Kind     string
	Outcome  Outcome
	Diverged []string
}

// Report — итог прогона: результаты шагов в порядке выполнения,
// включая шаги, завершённые до ошибки.
type Report struct {
	Mode     Mode
	Results  []Result
	Counts   map[Outcome]int
	Duration time.Duration
}

func (r *Report) add(res Result) {
	r.Results = append(r.Results, res)
	r.Counts[res.Outcome]++
}

// Count возвращает количество шагов с результатом o.
func (r *Report) Count(o Outcome) int {
	return r.Counts[o]
}

// Mutations возвращает количество шагов, изменивших Keycloak.
func (r *Report) Mutations() int {
	return r.Counts[OutcomeCreated] + r.Counts[OutcomeUpdated] + r.Counts[OutcomeDeleted]
}

// StepError — ошибка шага с его ключом.
type StepError struct {
	Key  string
	Kind string
	Mode Mode
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("шаг %s %s (%s): %v", e.Kind, e.Key, e.Mode, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Engine — исполнитель таблицы шагов.
type Engine struct {
	logger  *slog.Logger
	metrics *Metrics
}

// NewEngine создаёт движок. metrics может быть nil.
func NewEngine(logger *slog.Logger, metrics *Metrics) *Engine {
	return &Engine{
		logger:  logger.With(slog.String("component", "reconcile")),
		metrics: metrics,
	}
}

// Run выполняет шаги в режиме mode. steps — в порядке объявления
// (порядок setup); rollback проходит их в обратном порядке
// с учётом групп отката (Grouped).
// Первый шаг считается корневым (realm): при откате его отсутствие
// означает, что удалять нечего.
func (e *Engine) Run(ctx context.Context, mode Mode, steps []Step) (*Report, error) {
	startedAt := time.Now()
	report := &Report{Mode: mode, Counts: make(map[Outcome]int)}
	defer func() {
		report.Duration = time.Since(startedAt)
		e.metrics.observeRun(mode, report.Duration)
	}()

	logger := e.logger.With(slog.String("mode", string(mode)))
	logger.Info("Запуск reconciliation", slog.Int("steps", len(steps)))

	order := steps
	if mode == ModeRollback {
		order = rollbackOrder(steps)

		if len(steps) > 0 {
			present, err := steps[0].Exists(ctx)
			if err != nil {
				return report, e.fail(logger, mode, steps[0], err)
			}
			if !present {
				key, _ := steps[0].Describe()
				logger.Info("Realm отсутствует, откатывать нечего", slog.String("step", key))
				for _, step := range order {
					e.record(logger, report, mode, step, Change{Outcome: OutcomeAbsent})
				}
				return report, nil
			}
		}
	}

	for _, step := range order {
		if err := ctx.Err(); err != nil {
			return report, e.fail(logger, mode, step, err)
		}

		change, err := step.Apply(ctx, mode)
		if err != nil {
			return report, e.fail(logger, mode, step, err)
		}
		e.record(logger, report, mode, step, change)
	}

	logger.Info("Reconciliation завершён",
		slog.Int("created", report.Count(OutcomeCreated)),
		slog.Int("updated", report.Count(OutcomeUpdated)),
		slog.Int("unchanged", report.Count(OutcomeUnchanged)),
		slog.Int("deleted", report.Count(OutcomeDeleted)),
		slog.Int("absent", report.Count(OutcomeAbsent)),
		slog.Int("divergent", report.Count(OutcomeDivergent)),
	)
	return report, nil
}

func (e *Engine) record(logger *slog.Logger, report *Report, mode Mode, step Step, change Change) {
	key, kind := step.Describe()
	report.add(Result{Key: key, Kind: kind, Outcome: change.Outcome, Diverged: change.Diverged})
	e.metrics.observeStep(mode, kind, string(change.Outcome))

	attrs := []any{
		slog.String("step", key),
		slog.String("kind", kind),
		slog.String("outcome", string(change.Outcome)),
	}
	if len(change.Diverged) > 0 {
		attrs = append(attrs, slog.Any("diverged", change.Diverged))
	}

	if change.Outcome == OutcomeDivergent {
		logger.Warn("Ресурс расходится с описанием", attrs...)
	} else {
		logger.Info("Шаг выполнен", attrs...)
	}

	// Значения write-only полей нельзя прочитать: описание перезаписывает
	// то, что настроено в Keycloak вручную
	if len(change.Resubmitted) > 0 {
		logger.Warn("Обновление повторно отправило write-only поля из описания",
			slog.String("step", key),
			slog.String("kind", kind),
			slog.Any("fields", change.Resubmitted),
		)
	}
}

func (e *Engine) fail(logger *slog.Logger, mode Mode, step Step, err error) error {
	key, kind := step.Describe()
	e.metrics.observeStep(mode, kind, outcomeFailed)
	logger.Error("Шаг завершился ошибкой",
		slog.String("step", key),
		slog.String("kind", kind),
		slog.String("error", err.Error()),
	)
	return &StepError{Key: key, Kind: kind, Mode: mode, Err: err}
}
