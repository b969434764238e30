package blueprint

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"strings"
	"testing"

	"github.com/gogetaction/gogetaction/keycloak-setup/internal/config"
	"github.com/gogetaction/gogetaction/keycloak-setup/internal/keycloak"
	"github.com/gogetaction/gogetaction/keycloak-setup/internal/keycloak/keycloaktest"
	"github.com/gogetaction/gogetaction/keycloak-setup/internal/reconcile"
)

const realmName = "gogetaction"

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

var testSettings = Settings{
	Realm:            realmName,
	FrontendClientID: "frontend-client",
	BackendClientID:  "backend-client",
}

// harness — имитация Keycloak, клиент и таблица шагов realm.
type harness struct {
	kc     *keycloaktest.Server
	client *keycloak.Client
	engine *reconcile.Engine
}

func setup(t *testing.T) *harness {
	t.Helper()

	kc := keycloaktest.New(t)
	session, err := keycloak.Acquire(context.Background(), kc.Client(), kc.URL, keycloaktest.AdminUser, keycloaktest.AdminPassword)
	if err != nil {
		t.Fatalf("Ошибка получения токена: %v", err)
	}
	return &harness{
		kc:     kc,
		client: keycloak.New(session, kc.Client(), testLogger()),
		engine: reconcile.NewEngine(testLogger(), nil),
	}
}

// run выполняет прогон со свежим журналом вызовов.
func (h *harness) run(t *testing.T, mode reconcile.Mode) *reconcile.Report {
	t.Helper()
	h.kc.ResetCalls()
	report, err := h.engine.Run(context.Background(), mode, Steps(h.client, testSettings))
	if err != nil {
		t.Fatalf("%s вернул ошибку: %v", mode, err)
	}
	return report
}

// mutations возвращает "METHOD path" изменяющих вызовов.
func (h *harness) mutations() []string {
	var out []string
	for _, c := range h.kc.Mutations() {
		out = append(out, c.String())
	}
	return out
}

func outcomes(report *reconcile.Report) map[string]reconcile.Outcome {
	out := make(map[string]reconcile.Outcome, len(report.Results))
	for _, r := range report.Results {
		out[r.Key] = r.Outcome
	}
	return out
}

func TestSteps_Order(t *testing.T) {
	h := setup(t)

	var keys []string
	for _, step := range Steps(h.client, testSettings) {
		key, _ := step.Describe()
		keys = append(keys, key)
	}
	want := []string{
		realmName, "frontend-client", "backend-client", CampaignerRole,
		TestUsername, CampaignerUsername, "campaigner/Campaigner",
		FacebookAlias, InstagramAlias,
	}
	if !slices.Equal(keys, want) {
		t.Errorf("порядок шагов = %v, ожидается %v", keys, want)
	}
}

func TestSetup_CreatesRealm(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	report := h.run(t, reconcile.ModeSetup)
	if report.Count(reconcile.OutcomeCreated) != 9 {
		t.Errorf("created = %d, ожидается 9: %+v", report.Count(reconcile.OutcomeCreated), report.Results)
	}

	// Все ресурсы существуют
	for _, step := range Steps(h.client, testSettings) {
		key, _ := step.Describe()
		exists, err := step.Exists(ctx)
		if err != nil || !exists {
			t.Errorf("%s: Exists() = %v, %v, ожидается true", key, exists, err)
		}
	}

	if got := h.kc.UserRoles(realmName, CampaignerUsername); !slices.Equal(got, []string{CampaignerRole}) {
		t.Errorf("роли campaigner = %v, ожидается [Campaigner]", got)
	}
	if got := h.kc.UserRoles(realmName, TestUsername); len(got) != 0 {
		t.Errorf("роли testuser = %v, ожидается пусто", got)
	}

	realm := h.kc.Realm(realmName)
	if realm["sslRequired"] != "external" || realm["displayName"] != "Go Get Action" {
		t.Errorf("realm создан с настройками %v", realm)
	}
	smtp, _ := realm["smtpServer"].(map[string]any)
	if smtp["host"] != "mailpit" || smtp["port"] != "1025" {
		t.Errorf("smtpServer = %v, ожидается mailpit:1025", smtp)
	}
}

func TestSetup_Idempotent(t *testing.T) {
	h := setup(t)
	h.run(t, reconcile.ModeSetup)

	report := h.run(t, reconcile.ModeSetup)
	if report.Mutations() != 0 {
		t.Errorf("повторный прогон: %+v", report.Counts)
	}
	if report.Count(reconcile.OutcomeUnchanged) != 9 {
		t.Errorf("unchanged = %d, ожидается 9", report.Count(reconcile.OutcomeUnchanged))
	}
	if m := h.mutations(); len(m) != 0 {
		t.Errorf("повторный прогон изменил Keycloak: %v", m)
	}
	if h.kc.Count(realmName, "users") != 2 || h.kc.Count(realmName, "clients") != 2 {
		t.Error("повторный прогон создал дубликаты")
	}
}

func TestSetup_RoleAssignmentOnce(t *testing.T) {
	h := setup(t)

	assignments := func() int {
		n := 0
		for _, c := range h.kc.Mutations() {
			if c.Method == http.MethodPost && strings.HasSuffix(c.Path, "/role-mappings/realm") {
				n++
			}
		}
		return n
	}

	h.run(t, reconcile.ModeSetup)
	if n := assignments(); n != 1 {
		t.Errorf("первый прогон: назначений %d, ожидается 1", n)
	}
	h.run(t, reconcile.ModeSetup)
	if n := assignments(); n != 0 {
		t.Errorf("второй прогон: назначений %d, ожидается 0", n)
	}
}

func TestSetup_RealmDivergence(t *testing.T) {
	h := setup(t)
	h.run(t, reconcile.ModeSetup)
	h.kc.SetRealmField(realmName, "sslRequired", "none")

	report := h.run(t, reconcile.ModeSetup)
	if m := h.mutations(); !slices.Equal(m, []string{"PUT /admin/realms/" + realmName}) {
		t.Errorf("изменения = %v, ожидается одно обновление realm", m)
	}
	if report.Results[0].Outcome != reconcile.OutcomeUpdated {
		t.Errorf("realm: %s, ожидается updated", report.Results[0].Outcome)
	}
	if !slices.Equal(report.Results[0].Diverged, []string{"sslRequired"}) {
		t.Errorf("diverged = %v, ожидается [sslRequired]", report.Results[0].Diverged)
	}

	realm := h.kc.Realm(realmName)
	if realm["sslRequired"] != "external" {
		t.Errorf("sslRequired = %v, ожидается external", realm["sslRequired"])
	}
	// Серверные поля сохраняются при обновлении
	if _, ok := realm["notBefore"]; !ok {
		t.Error("обновление потеряло серверное поле notBefore")
	}
}

func TestRollback_Order(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	h.run(t, reconcile.ModeSetup)

	ids := map[string]string{}
	for _, id := range []string{"frontend-client", "backend-client"} {
		snap, err := h.client.FindClient(ctx, realmName, id)
		if err != nil || snap == nil {
			t.Fatalf("FindClient(%s) = %v, %v", id, snap, err)
		}
		ids[id] = snap.Value.ID
	}
	for _, username := range []string{TestUsername, CampaignerUsername} {
		snap, err := h.client.FindUser(ctx, realmName, username)
		if err != nil || snap == nil {
			t.Fatalf("FindUser(%s) = %v, %v", username, snap, err)
		}
		ids[username] = snap.Value.ID
	}

	report := h.run(t, reconcile.ModeRollback)

	base := "DELETE /admin/realms/" + realmName
	want := []string{
		base + "/identity-provider/instances/instagram",
		base + "/identity-provider/instances/facebook",
		base + "/users/" + ids[TestUsername],
		base + "/users/" + ids[CampaignerUsername],
		base + "/roles/Campaigner",
		base + "/clients/" + ids["backend-client"],
		base + "/clients/" + ids["frontend-client"],
		base,
	}
	if m := h.mutations(); !slices.Equal(m, want) {
		t.Errorf("порядок удаления:\n%v\nожидается:\n%v", m, want)
	}
	if report.Count(reconcile.OutcomeDeleted) != 8 {
		t.Errorf("deleted = %d, ожидается 8", report.Count(reconcile.OutcomeDeleted))
	}
	if outcomes(report)["campaigner/Campaigner"] != reconcile.OutcomeSkipped {
		t.Error("назначение роли при откате должно пропускаться")
	}
	if h.kc.HasRealm(realmName) {
		t.Error("realm не удалён")
	}
}

func TestRollback_Twice(t *testing.T) {
	h := setup(t)
	h.run(t, reconcile.ModeSetup)
	h.run(t, reconcile.ModeRollback)

	report := h.run(t, reconcile.ModeRollback)
	if report.Count(reconcile.OutcomeAbsent) != 9 {
		t.Errorf("absent = %d, ожидается 9", report.Count(reconcile.OutcomeAbsent))
	}
	calls := h.kc.Calls()
	if len(calls) != 1 || calls[0].String() != "GET /admin/realms/"+realmName {
		t.Errorf("вызовы = %v, ожидается только проверка realm", calls)
	}

	exists, err := Steps(h.client, testSettings)[0].Exists(context.Background())
	if err != nil || exists {
		t.Errorf("realm после отката: %v, %v", exists, err)
	}
}

func TestSetup_ProbeFailureAborts(t *testing.T) {
	h := setup(t)
	h.kc.FailOn(http.MethodGet, "/admin/realms/"+realmName, http.StatusInternalServerError)

	_, err := h.engine.Run(context.Background(), reconcile.ModeSetup, Steps(h.client, testSettings))
	if !errors.Is(err, keycloak.ErrProbe) {
		t.Fatalf("ожидалась ErrProbe, получена %v", err)
	}
	if m := h.mutations(); len(m) != 0 {
		t.Errorf("после ошибки probe выполнены изменения: %v", m)
	}
}

func TestSetup_ProbeFailureMidRun(t *testing.T) {
	h := setup(t)
	h.kc.FailOn(http.MethodGet, "/admin/realms/"+realmName+"/roles/"+CampaignerRole, http.StatusForbidden)

	report, err := h.engine.Run(context.Background(), reconcile.ModeSetup, Steps(h.client, testSettings))
	var stepErr *reconcile.StepError
	if !errors.As(err, &stepErr) || stepErr.Key != CampaignerRole {
		t.Fatalf("ожидалась ошибка шага Campaigner, получена %v", err)
	}
	var kcErr *keycloak.Error
	if !errors.As(err, &kcErr) || kcErr.Status != http.StatusForbidden {
		t.Errorf("ожидалась *keycloak.Error со статусом 403, получена %v", err)
	}
	if len(report.Results) != 3 {
		t.Errorf("до ошибки выполнено %d шагов, ожидается 3", len(report.Results))
	}

	// Повторный запуск после устранения причины продолжает с того же места
	h.kc.ClearFailures()
	report = h.run(t, reconcile.ModeSetup)
	if report.Count(reconcile.OutcomeUnchanged) != 3 || report.Count(reconcile.OutcomeCreated) != 6 {
		t.Errorf("повторный прогон: %+v", report.Counts)
	}
}

func TestSetup_IdentityProviderSecret(t *testing.T) {
	h := setup(t)
	h.run(t, reconcile.ModeSetup)

	// Реальный секрет задан вручную: секрет не сравнивается, обновления нет
	h.kc.SetIDPConfig(realmName, FacebookAlias, "clientSecret", "real-secret")
	report := h.run(t, reconcile.ModeSetup)
	if report.Mutations() != 0 {
		t.Errorf("изменение только секрета вызвало обновление: %v", h.mutations())
	}
	if h.kc.IDPConfig(realmName, FacebookAlias)["clientSecret"] != "real-secret" {
		t.Error("секрет перезаписан без расхождения")
	}

	// Расхождение несекретного поля: обновление отправляет и секрет из описания
	h.kc.SetIDPConfig(realmName, FacebookAlias, "clientId", "real-app-id")
	report = h.run(t, reconcile.ModeSetup)
	if outcomes(report)[FacebookAlias] != reconcile.OutcomeUpdated {
		t.Errorf("facebook: %s, ожидается updated", outcomes(report)[FacebookAlias])
	}
	cfg := h.kc.IDPConfig(realmName, FacebookAlias)
	if cfg["clientId"] != "YOUR_FACEBOOK_APP_ID" {
		t.Errorf("clientId = %v, ожидается значение из описания", cfg["clientId"])
	}
	if cfg["clientSecret"] != "YOUR_FACEBOOK_APP_SECRET" {
		t.Errorf("clientSecret = %v, ожидается значение из описания", cfg["clientSecret"])
	}
}

func TestStatus(t *testing.T) {
	h := setup(t)

	report := h.run(t, reconcile.ModeStatus)
	if report.Count(reconcile.OutcomeAbsent) != 9 {
		t.Errorf("до setup absent = %d, ожидается 9", report.Count(reconcile.OutcomeAbsent))
	}

	h.run(t, reconcile.ModeSetup)
	h.kc.SetRealmField(realmName, "bruteForceProtected", false)

	report = h.run(t, reconcile.ModeStatus)
	if m := h.mutations(); len(m) != 0 {
		t.Errorf("status изменил Keycloak: %v", m)
	}
	got := outcomes(report)
	if got[realmName] != reconcile.OutcomeDivergent {
		t.Errorf("realm: %s, ожидается divergent", got[realmName])
	}
	if report.Count(reconcile.OutcomePresent) != 8 {
		t.Errorf("present = %d, ожидается 8", report.Count(reconcile.OutcomePresent))
	}
}

func TestUser_CredentialsNotCompared(t *testing.T) {
	current := []byte(`{"id":"1","username":"testuser","email":"testuser@example.com","enabled":true,"emailVerified":true}`)
	expected := []byte(`{"username":"testuser","email":"testuser@example.com","enabled":true,"emailVerified":true,"credentials":[{"type":"password","value":"password123"}]}`)

	if diff := userFields.Diff(current, expected); len(diff) != 0 {
		t.Errorf("Diff() = %v, ожидается пусто", diff)
	}
}

func TestSettingsFromConfig(t *testing.T) {
	s := SettingsFromConfig(&config.Config{RealmName: "gga-dev", FrontendClientID: "web", BackendClientID: "api"})
	if s.Realm != "gga-dev" || s.FrontendClientID != "web" || s.BackendClientID != "api" {
		t.Errorf("SettingsFromConfig() = %+v", s)
	}
}

func TestSteps_UseSettings(t *testing.T) {
	h := setup(t)
	s := Settings{Realm: "gga-dev", FrontendClientID: "web", BackendClientID: "api"}

	steps := Steps(h.client, s)
	key, kind := steps[0].Describe()
	if key != "gga-dev" || kind != reconcile.KindRealm {
		t.Errorf("корневой шаг = %s/%s, ожидается gga-dev/realm", key, kind)
	}
	if key, _ := steps[1].Describe(); key != "web" {
		t.Errorf("frontend = %s, ожидается web", key)
	}
	if key, _ := steps[2].Describe(); key != "api" {
		t.Errorf("backend = %s, ожидается api", key)
	}
}
