// Пакет config — загрузка и валидация конфигурации keycloak-setup
// из JSON-файла (keycloak.dev.env) и переменных окружения KC_SETUP_*.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// DefaultPath — имя конфигурационного файла по умолчанию.
const DefaultPath = "keycloak.dev.env"

// envPrefix — префикс переменных окружения, переопределяющих ключи файла.
const envPrefix = "KC_SETUP"

// Ключи конфигурационного файла.
const (
	keyKeycloakHost     = "keycloakHost"
	keyAdminUser        = "adminUser"
	keyAdminPassword    = "adminPassword"
	keyRealmName        = "realmName"
	keyFrontendClientID = "frontendClientId"
	keyBackendClientID  = "backendClientId"
	keyLogLevel         = "logLevel"
	keyLogFormat        = "logFormat"
	keyHTTPTimeout      = "httpTimeout"
	keyPushgatewayURL   = "pushgatewayURL"
)

// Config содержит все параметры запуска keycloak-setup.
type Config struct {
	// --- Keycloak ---

	// Базовый URL Keycloak (например, http://localhost:8080)
	KeycloakHost string
	// Администратор master realm (password grant через admin-cli)
	AdminUser string
	// Пароль администратора
	AdminPassword string
	// Realm, которым управляет утилита
	RealmName string
	// clientId публичного клиента SPA
	FrontendClientID string
	// clientId bearer-only клиента API
	BackendClientID string

	// --- Логирование ---

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP ---

	// Таймаут одного HTTP-запроса к Keycloak
	HTTPTimeout time.Duration

	// --- Метрики ---

	// URL Prometheus Pushgateway (опционально, пусто — без отправки)
	PushgatewayURL string
}

// Load читает конфигурацию из файла path (JSON) и переменных окружения,
// валидирует обязательные поля и возвращает Config или ошибку.
// Пустой path — только переменные окружения и значения по умолчанию.
// Отсутствующий файл по умолчанию (DefaultPath) не считается ошибкой.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault(keyRealmName, "gogetaction")
	v.SetDefault(keyFrontendClientID, "frontend-client")
	v.SetDefault(keyBackendClientID, "backend-client")
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyLogFormat, "text")
	v.SetDefault(keyHTTPTimeout, "30s")

	for _, key := range []string{
		keyKeycloakHost, keyAdminUser, keyAdminPassword, keyRealmName,
		keyFrontendClientID, keyBackendClientID, keyLogLevel, keyLogFormat,
		keyHTTPTimeout, keyPushgatewayURL,
	} {
		if err := v.BindEnv(key, EnvName(key)); err != nil {
			return nil, fmt.Errorf("привязка переменной %s: %w", EnvName(key), err)
		}
	}

	if path == DefaultPath {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}

	if path != "" {
		// Файл в исходном формате — JSON, несмотря на расширение .env
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("чтение конфигурации %s: %w", path, err)
		}
	}

	cfg := &Config{}
	var err error

	// --- Keycloak ---

	cfg.KeycloakHost, err = required(v, keyKeycloakHost)
	if err != nil {
		return nil, err
	}
	cfg.KeycloakHost = strings.TrimRight(cfg.KeycloakHost, "/")
	if err := validateHost(cfg.KeycloakHost); err != nil {
		return nil, fmt.Errorf("%s: %w", keyKeycloakHost, err)
	}

	cfg.AdminUser, err = required(v, keyAdminUser)
	if err != nil {
		return nil, err
	}

	cfg.AdminPassword, err = required(v, keyAdminPassword)
	if err != nil {
		return nil, err
	}

	cfg.RealmName, err = required(v, keyRealmName)
	if err != nil {
		return nil, err
	}
	if cfg.RealmName == "master" {
		return nil, fmt.Errorf("%s: realm master не может управляться утилитой", keyRealmName)
	}

	cfg.FrontendClientID, err = required(v, keyFrontendClientID)
	if err != nil {
		return nil, err
	}

	cfg.BackendClientID, err = required(v, keyBackendClientID)
	if err != nil {
		return nil, err
	}
	if cfg.FrontendClientID == cfg.BackendClientID {
		return nil, fmt.Errorf("%s и %s совпадают: %q", keyFrontendClientID, keyBackendClientID, cfg.BackendClientID)
	}

	// --- Логирование ---

	cfg.LogLevel, err = parseLogLevel(v.GetString(keyLogLevel))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", keyLogLevel, err)
	}

	cfg.LogFormat = v.GetString(keyLogFormat)
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("%s: недопустимое значение %q, допустимые: json, text", keyLogFormat, cfg.LogFormat)
	}

	// --- HTTP ---

	cfg.HTTPTimeout, err = parseDuration(v.GetString(keyHTTPTimeout))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", keyHTTPTimeout, err)
	}

	// --- Метрики ---

	cfg.PushgatewayURL = strings.TrimRight(v.GetString(keyPushgatewayURL), "/")
	if cfg.PushgatewayURL != "" {
		if err := validateHost(cfg.PushgatewayURL); err != nil {
			return nil, fmt.Errorf("%s: %w", keyPushgatewayURL, err)
		}
	}

	return cfg, nil
}

// EnvName возвращает имя переменной окружения для ключа файла:
// adminPassword → KC_SETUP_ADMIN_PASSWORD, pushgatewayURL → KC_SETUP_PUSHGATEWAY_URL.
func EnvName(key string) string {
	var b strings.Builder
	b.WriteString(envPrefix)
	b.WriteByte('_')

	runes := []rune(key)
	for i, r := range runes {
		upper := r >= 'A' && r <= 'Z'
		// Граница слова: строчная → заглавная (clientId → CLIENT_ID)
		if upper && i > 0 && runes[i-1] >= 'a' && runes[i-1] <= 'z' {
			b.WriteByte('_')
		}
		b.WriteString(strings.ToUpper(string(r)))
	}
	return b.String()
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
// Логи пишутся в w (обычно os.Stdout — это и есть журнал шагов для оператора).
func SetupLogger(cfg *Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// required возвращает непустое значение ключа или ошибку.
func required(v *viper.Viper, key string) (string, error) {
	val := strings.TrimSpace(v.GetString(key))
	if val == "" {
		return "", fmt.Errorf("%s: обязательный параметр не задан (файл или %s)", key, EnvName(key))
	}
	return val, nil
}

// validateHost проверяет, что значение — абсолютный http(s) URL.
func validateHost(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("некорректный URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("некорректный URL %q: ожидается схема http или https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("некорректный URL %q: не указан хост", raw)
	}
	return nil
}

// parseDuration разбирает длительность в формате Go (30s, 1m).
func parseDuration(val string) (time.Duration, error) {
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1m)", val)
	}
	if d <= 0 {
		return 0, fmt.Errorf("длительность должна быть положительной: %q", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
