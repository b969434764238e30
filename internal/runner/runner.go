// Пакет runner — один прогон keycloak-setup: получение токена администратора,
// preflight-проверка master realm, таблица шагов realm и отправка метрик.
package runner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/gogetaction/gogetaction/keycloak-setup/internal/blueprint"
	"github.com/gogetaction/gogetaction/keycloak-setup/internal/config"
	"github.com/gogetaction/gogetaction/keycloak-setup/internal/keycloak"
	"github.com/gogetaction/gogetaction/keycloak-setup/internal/reconcile"
)

// pushJob — имя job в Pushgateway.
const pushJob = "keycloak_setup"

// Run выполняет прогон в режиме mode по конфигурации cfg.
// Отчёт возвращается и при ошибке шага (с шагами, выполненными до неё);
// nil — ошибка произошла до начала reconciliation.
func Run(ctx context.Context, cfg *config.Config, mode reconcile.Mode, logger *slog.Logger) (*reconcile.Report, error) {
	runID := uuid.NewString()
	logger = logger.With(slog.String("run_id", runID))

	registry := prometheus.NewRegistry()
	if cfg.PushgatewayURL != "" {
		defer pushMetrics(ctx, cfg, registry, logger)
	}

	logger.Info("Запуск keycloak-setup",
		slog.String("version", config.Version),
		slog.String("mode", string(mode)),
		slog.String("keycloak", cfg.KeycloakHost),
		slog.String("realm", cfg.RealmName),
	)

	httpClient := keycloak.NewHTTPClient(cfg.HTTPTimeout, nil, registry)

	session, err := keycloak.Acquire(ctx, httpClient, cfg.KeycloakHost, cfg.AdminUser, cfg.AdminPassword)
	if err != nil {
		return nil, fmt.Errorf("получение токена администратора: %w", err)
	}
	logger.Info("Токен администратора получен",
		slog.Time("expires_at", session.Credential().ExpiresAt),
	)

	client := keycloak.New(session, httpClient, logger)

	// Rollback не требует preflight: при отсутствии realm он ничего не делает
	if mode != reconcile.ModeRollback {
		if err := client.VerifyMaster(ctx); err != nil {
			return nil, fmt.Errorf("проверка master realm: %w", err)
		}
		logger.Info("Права администратора подтверждены")
	}

	engine := reconcile.NewEngine(logger, reconcile.NewMetrics(registry))
	steps := blueprint.Steps(client, blueprint.SettingsFromConfig(cfg))

	return engine.Run(ctx, mode, steps)
}

// pushMetrics отправляет метрики прогона в Pushgateway (группа job + realm).
// Ошибка отправки не влияет на результат прогона.
func pushMetrics(ctx context.Context, cfg *config.Config, gatherer prometheus.Gatherer, logger *slog.Logger) {
	err := push.New(cfg.PushgatewayURL, pushJob).
		Gatherer(gatherer).
		Grouping("realm", cfg.RealmName).
		PushContext(context.WithoutCancel(ctx))
	if err != nil {
		logger.Warn("Не удалось отправить метрики в Pushgateway",
			slog.String("url", cfg.PushgatewayURL),
			slog.String("error", err.Error()),
		)
		return
	}
	logger.Debug("Метрики отправлены в Pushgateway", slog.String("url", cfg.PushgatewayURL))
}
