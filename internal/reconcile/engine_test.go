package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"slices"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/gogetaction/gogetaction/keycloak-setup/internal/keycloak"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// widget — тестовое представление ресурса.
type widget struct {
	ID     string            `json:"id,omitempty"`
	Name   string            `json:"name"`
	Color  string            `json:"color,omitempty"`
	Config map[string]string `json:"config,omitempty"`
}

// backend — in-memory хранилище ресурсов с журналом вызовов.
type backend struct {
	objects  map[string]map[string]any
	calls    []string
	probeErr map[string]error
}

func newBackend() *backend {
	return &backend{objects: map[string]map[string]any{}, probeErr: map[string]error{}}
}

// mutations возвращает изменяющие вызовы (без GET).
func (b *backend) mutations() []string {
	var out []string
	for _, c := range b.calls {
		if !strings.HasPrefix(c, "GET ") {
			out = append(out, c)
		}
	}
	return out
}

func (b *backend) resource(kind, key string, expected widget) *Resource[widget] {
	return &Resource[widget]{
		Key:      key,
		Kind:     kind,
		Expected: expected,
		Compare:  Comparator{Fields: []string{"color", "config.mode", "config.secret"}, WriteOnly: []string{"config.secret"}},
		Probe: func(ctx context.Context) (*keycloak.Snapshot[widget], error) {
			b.calls = append(b.calls, "GET "+key)
			if err := b.probeErr[key]; err != nil {
				return nil, err
			}
			obj, ok := b.objects[key]
			if !ok {
				return nil, nil
			}
			raw, _ := json.Marshal(obj)
			snap := &keycloak.Snapshot[widget]{Raw: raw}
			_ = json.Unmarshal(raw, &snap.Value)
			return snap, nil
		},
		Create: func(ctx context.Context, w widget) error {
			b.calls = append(b.calls, "POST "+key)
			raw, _ := json.Marshal(w)
			var obj map[string]any
			_ = json.Unmarshal(raw, &obj)
			obj["id"] = "id-" + key
			obj["server"] = "managed"
			// Секрет не возвращается при чтении
			if cfg, ok := obj["config"].(map[string]any); ok {
				delete(cfg, "secret")
			}
			b.objects[key] = obj
			return nil
		},
		Update: func(ctx context.Context, current *keycloak.Snapshot[widget], merged map[string]any) error {
			b.calls = append(b.calls, "PUT "+key)
			if cfg, ok := merged["config"].(map[string]any); ok {
				delete(cfg, "secret")
			}
			b.objects[key] = merged
			return nil
		},
		Delete: func(ctx context.Context, current *keycloak.Snapshot[widget]) error {
			b.calls = append(b.calls, "DELETE "+key)
			delete(b.objects, key)
			return nil
		},
	}
}

// table возвращает корень и два зависимых ресурса.
func (b *backend) table() []Step {
	return []Step{
		b.resource(KindRealm, "root", widget{Name: "root", Color: "blue"}),
		b.resource(KindClient, "first", widget{Name: "first", Color: "red"}),
		b.resource(KindIdentityProvider, "second", widget{Name: "second", Config: map[string]string{"mode": "a", "secret": "x"}}),
	}
}

func TestParseMode(t *testing.T) {
	for _, s := range []string{"setup", "rollback", "status"} {
		if m, err := ParseMode(s); err != nil || string(m) != s {
			t.Errorf("ParseMode(%q) = %q, %v", s, m, err)
		}
	}
	if _, err := ParseMode("apply"); err == nil {
		t.Error("ParseMode(apply) не вернул ошибку")
	}
}

func TestEngine_SetupCreatesThenNoop(t *testing.T) {
	b := newBackend()
	engine := NewEngine(testLogger(), nil)
	ctx := context.Background()

	report, err := engine.Run(ctx, ModeSetup, b.table())
	if err != nil {
		t.Fatalf("Run() вернул ошибку: %v", err)
	}
	if report.Count(OutcomeCreated) != 3 {
		t.Errorf("created = %d, ожидается 3", report.Count(OutcomeCreated))
	}

	b.calls = nil
	report, err = engine.Run(ctx, ModeSetup, b.table())
	if err != nil {
		t.Fatalf("повторный Run() вернул ошибку: %v", err)
	}
	if report.Count(OutcomeUnchanged) != 3 || report.Mutations() != 0 {
		t.Errorf("повторный прогон: %+v, ожидается 3 unchanged", report.Counts)
	}
	if len(b.mutations()) != 0 {
		t.Errorf("повторный прогон изменил ресурсы: %v", b.mutations())
	}
	if len(b.calls) != 3 {
		t.Errorf("ожидалось 3 probe, было %d: %v", len(b.calls), b.calls)
	}
}

func TestEngine_SetupUpdatesDivergent(t *testing.T) {
	b := newBackend()
	engine := NewEngine(testLogger(), nil)
	ctx := context.Background()

	if _, err := engine.Run(ctx, ModeSetup, b.table()); err != nil {
		t.Fatalf("Run() вернул ошибку: %v", err)
	}
	b.objects["root"]["color"] = "green"
	b.calls = nil

	report, err := engine.Run(ctx, ModeSetup, b.table())
	if err != nil {
		t.Fatalf("Run() вернул ошибку: %v", err)
	}
	if !slices.Equal(b.mutations(), []string{"PUT root"}) {
		t.Errorf("изменения = %v, ожидается [PUT root]", b.mutations())
	}
	if report.Results[0].Outcome != OutcomeUpdated {
		t.Errorf("outcome = %s, ожидается updated", report.Results[0].Outcome)
	}
	if !slices.Equal(report.Results[0].Diverged, []string{"color"}) {
		t.Errorf("diverged = %v, ожидается [color]", report.Results[0].Diverged)
	}
	// Серверное поле сохранено при обновлении
	if b.objects["root"]["server"] != "managed" || b.objects["root"]["color"] != "blue" {
		t.Errorf("после обновления: %v", b.objects["root"])
	}
}

func TestEngine_WriteOnlyResubmitWarning(t *testing.T) {
	b := newBackend()
	ctx := context.Background()
	if _, err := NewEngine(testLogger(), nil).Run(ctx, ModeSetup, b.table()); err != nil {
		t.Fatalf("Run() вернул ошибку: %v", err)
	}

	// Меняется только несекретное поле, но секрет уходит вместе с обновлением
	b.objects["second"]["config"].(map[string]any)["mode"] = "b"

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	report, err := NewEngine(logger, nil).Run(ctx, ModeSetup, b.table())
	if err != nil {
		t.Fatalf("Run() вернул ошибку: %v", err)
	}
	if report.Count(OutcomeUpdated) != 1 {
		t.Errorf("updated = %d, ожидается 1", report.Count(OutcomeUpdated))
	}
	if !strings.Contains(buf.String(), "write-only") || !strings.Contains(buf.String(), "config.secret") {
		t.Errorf("ожидалось предупреждение о config.secret, вывод: %s", buf.String())
	}
}

func TestEngine_RollbackReverseOrder(t *testing.T) {
	b := newBackend()
	engine := NewEngine(testLogger(), nil)
	ctx := context.Background()

	if _, err := engine.Run(ctx, ModeSetup, b.table()); err != nil {
		t.Fatalf("Run() вернул ошибку: %v", err)
	}
	b.calls = nil

	report, err := engine.Run(ctx, ModeRollback, b.table())
	if err != nil {
		t.Fatalf("Run() вернул ошибку: %v", err)
	}
	want := []string{"DELETE second", "DELETE first", "DELETE root"}
	if !slices.Equal(b.mutations(), want) {
		t.Errorf("порядок удаления = %v, ожидается %v", b.mutations(), want)
	}
	if report.Count(OutcomeDeleted) != 3 {
		t.Errorf("deleted = %d, ожидается 3", report.Count(OutcomeDeleted))
	}
	if report.Results[0].Key != "second" {
		t.Errorf("первый результат = %s, ожидается second", report.Results[0].Key)
	}
}

// grouped возвращает ресурс с группой отката.
func (b *backend) grouped(key, group string) *Resource[widget] {
	r := b.resource(KindUser, key, widget{Name: key, Color: "green"})
	r.Group = group
	return r
}

func TestEngine_RollbackGroupKeepsOrder(t *testing.T) {
	b := newBackend()
	engine := NewEngine(testLogger(), nil)
	ctx := context.Background()
	table := func() []Step {
		return []Step{
			b.resource(KindRealm, "root", widget{Name: "root", Color: "blue"}),
			b.resource(KindRole, "role", widget{Name: "role"}),
			b.grouped("alice", "users"),
			b.grouped("bob", "users"),
			b.resource(KindClient, "last", widget{Name: "last"}),
		}
	}

	if _, err := engine.Run(ctx, ModeSetup, table()); err != nil {
		t.Fatalf("Run() вернул ошибку: %v", err)
	}
	b.calls = nil

	if _, err := engine.Run(ctx, ModeRollback, table()); err != nil {
		t.Fatalf("Run() вернул ошибку: %v", err)
	}
	want := []string{"DELETE last", "DELETE alice", "DELETE bob", "DELETE role", "DELETE root"}
	if !slices.Equal(b.mutations(), want) {
		t.Errorf("порядок удаления = %v, ожидается %v", b.mutations(), want)
	}
}

func TestRollbackOrder_SplitGroup(t *testing.T) {
	b := newBackend()
	// Группа, разделённая другим шагом, не объединяется
	steps := []Step{
		b.resource(KindRealm, "root", widget{Name: "root"}),
		b.grouped("alice", "users"),
		b.resource(KindRole, "role", widget{Name: "role"}),
		b.grouped("bob", "users"),
		b.grouped("carol", "users"),
	}

	var got []string
	for _, step := range rollbackOrder(steps) {
		key, _ := step.Describe()
		got = append(got, key)
	}
	want := []string{"bob", "carol", "role", "alice", "root"}
	if !slices.Equal(got, want) {
		t.Errorf("rollbackOrder() = %v, ожидается %v", got, want)
	}
	if key, _ := steps[0].Describe(); key != "root" {
		t.Error("rollbackOrder() изменил исходную таблицу")
	}
}

func TestEngine_RollbackRootAbsent(t *testing.T) {
	b := newBackend()
	// Остаток без корня не трогается: при отсутствии realm удалять нечего
	b.objects["first"] = map[string]any{"name": "first"}

	report, err := NewEngine(testLogger(), nil).Run(context.Background(), ModeRollback, b.table())
	if err != nil {
		t.Fatalf("Run() вернул ошибку: %v", err)
	}
	if !slices.Equal(b.calls, []string{"GET root"}) {
		t.Errorf("вызовы = %v, ожидается только GET root", b.calls)
	}
	if report.Count(OutcomeAbsent) != 3 {
		t.Errorf("absent = %d, ожидается 3", report.Count(OutcomeAbsent))
	}
}

func TestEngine_RollbackSkipsWithoutDelete(t *testing.T) {
	b := newBackend()
	steps := b.table()
	second := steps[2].(*Resource[widget])
	second.Delete = nil
	b.objects["root"] = map[string]any{"name": "root"}
	b.objects["second"] = map[string]any{"name": "second"}

	report, err := NewEngine(testLogger(), nil).Run(context.Background(), ModeRollback, steps)
	if err != nil {
		t.Fatalf("Run() вернул ошибку: %v", err)
	}
	got := []Outcome{report.Results[0].Outcome, report.Results[1].Outcome, report.Results[2].Outcome}
	want := []Outcome{OutcomeSkipped, OutcomeAbsent, OutcomeDeleted}
	if !slices.Equal(got, want) {
		t.Errorf("outcomes = %v, ожидается %v", got, want)
	}
}

func TestEngine_ProbeErrorAborts(t *testing.T) {
	b := newBackend()
	probeErr := &keycloak.Error{Kind: keycloak.ErrProbe, Op: "Probe", Status: 500}
	b.probeErr["first"] = probeErr

	report, err := NewEngine(testLogger(), nil).Run(context.Background(), ModeSetup, b.table())
	if err == nil {
		t.Fatal("Run() не вернул ошибку")
	}
	if !errors.Is(err, keycloak.ErrProbe) {
		t.Errorf("ожидалась ErrProbe, получена %v", err)
	}

	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Key != "first" {
		t.Errorf("ожидалась StepError для first, получена %v", err)
	}
	// Шаг до ошибки попал в отчёт, после ошибки ничего не выполнялось
	if len(report.Results) != 1 || report.Results[0].Key != "root" {
		t.Errorf("результаты = %+v, ожидается только root", report.Results)
	}
	if !slices.Equal(b.mutations(), []string{"POST root"}) {
		t.Errorf("изменения = %v, ожидается [POST root]", b.mutations())
	}
	if slices.Contains(b.calls, "GET second") {
		t.Error("шаг после ошибки не должен выполняться")
	}
}

func TestEngine_ProbeErrorBeforeAnyMutation(t *testing.T) {
	b := newBackend()
	b.probeErr["root"] = &keycloak.Error{Kind: keycloak.ErrProbe, Status: 500}

	for _, mode := range []Mode{ModeSetup, ModeRollback, ModeStatus} {
		b.calls = nil
		if _, err := NewEngine(testLogger(), nil).Run(context.Background(), mode, b.table()); err == nil {
			t.Errorf("%s: Run() не вернул ошибку", mode)
		}
		if len(b.mutations()) != 0 {
			t.Errorf("%s: изменения после ошибки probe: %v", mode, b.mutations())
		}
	}
}

func TestEngine_Status(t *testing.T) {
	b := newBackend()
	b.objects["root"] = map[string]any{"name": "root", "color": "blue"}
	b.objects["first"] = map[string]any{"name": "first", "color": "black"}

	report, err := NewEngine(testLogger(), nil).Run(context.Background(), ModeStatus, b.table())
	if err != nil {
		t.Fatalf("Run() вернул ошибку: %v", err)
	}
	got := []Outcome{report.Results[0].Outcome, report.Results[1].Outcome, report.Results[2].Outcome}
	want := []Outcome{OutcomePresent, OutcomeDivergent, OutcomeAbsent}
	if !slices.Equal(got, want) {
		t.Errorf("outcomes = %v, ожидается %v", got, want)
	}
	if len(b.mutations()) != 0 {
		t.Errorf("status изменил ресурсы: %v", b.mutations())
	}
}

func TestEngine_CancelledContext(t *testing.T) {
	b := newBackend()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine(testLogger(), nil).Run(ctx, ModeSetup, b.table())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("ожидалась context.Canceled, получена %v", err)
	}
	if len(b.calls) != 0 {
		t.Errorf("после отмены выполнены вызовы: %v", b.calls)
	}
}

func TestEngine_Metrics(t *testing.T) {
	b := newBackend()
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	engine := NewEngine(testLogger(), metrics)

	if _, err := engine.Run(context.Background(), ModeSetup, b.table()); err != nil {
		t.Fatalf("Run() вернул ошибку: %v", err)
	}
	if got := testutil.ToFloat64(metrics.steps.WithLabelValues("setup", KindRealm, "created")); got != 1 {
		t.Errorf("steps{setup,realm,created} = %v, ожидается 1", got)
	}

	b.probeErr["first"] = errors.New("сеть недоступна")
	_, _ = engine.Run(context.Background(), ModeSetup, b.table())
	if got := testutil.ToFloat64(metrics.steps.WithLabelValues("setup", KindClient, "failed")); got != 1 {
		t.Errorf("steps{setup,client,failed} = %v, ожидается 1", got)
	}

	if count := testutil.CollectAndCount(metrics.duration); count != 1 {
		t.Errorf("серий длительности = %d, ожидается 1", count)
	}
}
