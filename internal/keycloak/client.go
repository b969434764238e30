// client.go — HTTP-клиент к Keycloak Admin REST API.
// Все запросы авторизуются токеном явной Session.
//
// Проверки существования (probe): 2xx — ресурс есть, 404 — ресурса нет,
// любой другой ответ — ErrProbe. Изменения: не 2xx — ErrMutation.
// Операции: realm, clients, realm roles, users, role-mappings, identity providers.
package keycloak

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

// Client — HTTP-клиент к Keycloak Admin REST API.
type Client struct {
	session    *Session
	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт клиент Admin REST API поверх полученной сессии.
// httpClient — HTTP-клиент (может содержать метрики и TLS конфигурацию).
func New(session *Session, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient(0, nil, nil)
	}

	return &Client{
		session:    session,
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "keycloak_client")),
	}
}

// --- Пути ---

// RealmPath возвращает путь Admin API к realm и его подресурсам.
// Сегменты экранируются: RealmPath("gga", "roles", "Campaigner") → /admin/realms/gga/roles/Campaigner.
func RealmPath(realm string, segments ...string) string {
	var b strings.Builder
	b.WriteString("/admin/realms/")
	b.WriteString(url.PathEscape(realm))
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}

// --- HTTP helpers ---

// doAuthorized выполняет HTTP-запрос к Admin REST API с авторизацией.
// path — путь относительно хоста Keycloak (с query string при необходимости).
func (c *Client) doAuthorized(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("сериализация тела запроса: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.session.Host()+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}

	c.session.authorize(req)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("Запрос к Keycloak",
		slog.String("method", method),
		slog.String("path", path),
	)

	return c.httpClient.Do(req)
}

// probe читает ресурс. found == false и err == nil означают 404.
func (c *Client) probe(ctx context.Context, op, path string) (body []byte, found bool, err error) {
	probeErr := func(status int, body string, cause error) error {
		return &Error{Kind: ErrProbe, Op: op, Method: http.MethodGet, Path: path, Status: status, Body: body, Err: cause}
	}

	resp, err := c.doAuthorized(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, false, probeErr(0, "", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, probeErr(resp.StatusCode, "", fmt.Errorf("чтение ответа Keycloak: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, false, probeErr(resp.StatusCode, truncateBody(data), nil)
	}

	return data, true, nil
}

// mutate выполняет POST/PUT/DELETE. Возвращает Location (для POST) или пустую строку.
func (c *Client) mutate(ctx context.Context, op, method, path string, body any) (string, error) {
	mutationErr := func(status int, body string, cause error) error {
		return &Error{Kind: ErrMutation, Op: op, Method: method, Path: path, Status: status, Body: body, Err: cause}
	}

	resp, err := c.doAuthorized(ctx, method, path, body)
	if err != nil {
		return "", mutationErr(0, "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return "", mutationErr(resp.StatusCode, truncateBody(data), nil)
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.Header.Get("Location"), nil
}

// idFromLocation извлекает ID созданного ресурса из Location: .../users/{id}.
func idFromLocation(location string) string {
	location = strings.TrimRight(location, "/")
	if i := strings.LastIndex(location, "/"); i >= 0 {
		return location[i+1:]
	}
	return location
}

// getSnapshot читает одиночный ресурс. nil, nil — ресурса нет.
func getSnapshot[T any](ctx context.Context, c *Client, op, path string) (*Snapshot[T], error) {
	data, found, err := c.probe(ctx, op, path)
	if err != nil || !found {
		return nil, err
	}

	snap := &Snapshot[T]{Raw: json.RawMessage(data)}
	if err := json.Unmarshal(data, &snap.Value); err != nil {
		return nil, &Error{Kind: ErrProbe, Op: op, Method: http.MethodGet, Path: path,
			Err: fmt.Errorf("декодирование ответа Keycloak: %w", err)}
	}
	return snap, nil
}

// findSnapshot ищет ресурс в списке по естественному ключу keyField.
// Поиск Keycloak нечёткий (prefix/ilike), поэтому совпадение проверяется здесь.
// 404 (например, realm отсутствует) и пустой список — ресурса нет.
func findSnapshot[T any](ctx context.Context, c *Client, op, path, keyField, want string, foldCase bool) (*Snapshot[T], error) {
	data, found, err := c.probe(ctx, op, path)
	if err != nil || !found {
		return nil, err
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, &Error{Kind: ErrProbe, Op: op, Method: http.MethodGet, Path: path,
			Err: fmt.Errorf("декодирование списка Keycloak: %w", err)}
	}

	for _, item := range items {
		got := gjson.GetBytes(item, keyField).String()
		if got != want && !(foldCase && strings.EqualFold(got, want)) {
			continue
		}

		snap := &Snapshot[T]{Raw: item}
		if err := json.Unmarshal(item, &snap.Value); err != nil {
			return nil, &Error{Kind: ErrProbe, Op: op, Method: http.MethodGet, Path: path,
				Err: fmt.Errorf("декодирование ответа Keycloak: %w", err)}
		}
		return snap, nil
	}

	return nil, nil
}

// --- Existence prober ---

// Exists проверяет существование ресурса по пути Admin API.
// 404 — false без ошибки; любой другой не-2xx ответ — ErrProbe.
func (c *Client) Exists(ctx context.Context, path string) (bool, error) {
	_, found, err := c.probe(ctx, "Exists", path)
	return found, err
}

// VerifyMaster читает master realm: подтверждает, что токен даёт права администратора.
func (c *Client) VerifyMaster(ctx context.Context) error {
	found, err := c.Exists(ctx, RealmPath("master"))
	if err != nil {
		return err
	}
	if !found {
		return &Error{Kind: ErrProbe, Op: "VerifyMaster", Method: http.MethodGet, Path: RealmPath("master"),
			Status: http.StatusNotFound, Body: "master realm не найден"}
	}
	return nil
}

// --- Realm API ---

// GetRealm возвращает realm. nil, nil — realm не существует.
func (c *Client) GetRealm(ctx context.Context, realm string) (*Snapshot[RealmRepresentation], error) {
	return getSnapshot[RealmRepresentation](ctx, c, "GetRealm", RealmPath(realm))
}

// CreateRealm создаёт realm.
func (c *Client) CreateRealm(ctx context.Context, realm RealmRepresentation) error {
	_, err := c.mutate(ctx, "CreateRealm", http.MethodPost, "/admin/realms", realm)
	return err
}

// UpdateRealm обновляет настройки realm.
func (c *Client) UpdateRealm(ctx context.Context, realm string, body any) error {
	_, err := c.mutate(ctx, "UpdateRealm", http.MethodPut, RealmPath(realm), body)
	return err
}

// DeleteRealm удаляет realm вместе со всеми его ресурсами.
func (c *Client) DeleteRealm(ctx context.Context, realm string) error {
	_, err := c.mutate(ctx, "DeleteRealm", http.MethodDelete, RealmPath(realm), nil)
	return err
}

// --- Clients API ---

// FindClient ищет клиента по clientId (естественный ключ, не внутренний ID).
func (c *Client) FindClient(ctx context.Context, realm, clientID string) (*Snapshot[ClientRepresentation], error) {
	path := RealmPath(realm, "clients") + "?clientId=" + url.QueryEscape(clientID)
	return findSnapshot[ClientRepresentation](ctx, c, "FindClient", path, "clientId", clientID, false)
}

// CreateClient создаёт клиента. Возвращает внутренний ID из Location.
func (c *Client) CreateClient(ctx context.Context, realm string, client ClientRepresentation) (string, error) {
	location, err := c.mutate(ctx, "CreateClient", http.MethodPost, RealmPath(realm, "clients"), client)
	if err != nil {
		return "", err
	}
	return idFromLocation(location), nil
}

// UpdateClient обновляет клиента по внутреннему ID.
func (c *Client) UpdateClient(ctx context.Context, realm, id string, body any) error {
	_, err := c.mutate(ctx, "UpdateClient", http.MethodPut, RealmPath(realm, "clients", id), body)
	return err
}

// DeleteClient удаляет клиента по внутреннему ID.
func (c *Client) DeleteClient(ctx context.Context, realm, id string) error {
	_, err := c.mutate(ctx, "DeleteClient", http.MethodDelete, RealmPath(realm, "clients", id), nil)
	return err
}

// --- Realm roles API ---

// GetRealmRole возвращает роль realm по имени.
func (c *Client) GetRealmRole(ctx context.Context, realm, name string) (*Snapshot[RoleRepresentation], error) {
	return getSnapshot[RoleRepresentation](ctx, c, "GetRealmRole", RealmPath(realm, "roles", name))
}

// CreateRealmRole создаёт роль realm.
func (c *Client) CreateRealmRole(ctx context.Context, realm string, role RoleRepresentation) error {
	_, err := c.mutate(ctx, "CreateRealmRole", http.MethodPost, RealmPath(realm, "roles"), role)
	return err
}

// UpdateRealmRole обновляет роль realm по имени.
func (c *Client) UpdateRealmRole(ctx context.Context, realm, name string, body any) error {
	_, err := c.mutate(ctx, "UpdateRealmRole", http.MethodPut, RealmPath(realm, "roles", name), body)
	return err
}

// DeleteRealmRole удаляет роль realm по имени.
func (c *Client) DeleteRealmRole(ctx context.Context, realm, name string) error {
	_, err := c.mutate(ctx, "DeleteRealmRole", http.MethodDelete, RealmPath(realm, "roles", name), nil)
	return err
}

// --- Users API ---

// FindUser ищет пользователя по username (exact=true).
// Keycloak хранит username в нижнем регистре, сравнение без учёта регистра.
func (c *Client) FindUser(ctx context.Context, realm, username string) (*Snapshot[UserRepresentation], error) {
	path := RealmPath(realm, "users") + "?username=" + url.QueryEscape(username) + "&exact=true"
	return findSnapshot[UserRepresentation](ctx, c, "FindUser", path, "username", username, true)
}

// CreateUser создаёт пользователя. Возвращает ID из Location.
func (c *Client) CreateUser(ctx context.Context, realm string, user UserRepresentation) (string, error) {
	location, err := c.mutate(ctx, "CreateUser", http.MethodPost, RealmPath(realm, "users"), user)
	if err != nil {
		return "", err
	}
	return idFromLocation(location), nil
}

// UpdateUser обновляет пользователя по ID.
func (c *Client) UpdateUser(ctx context.Context, realm, id string, body any) error {
	_, err := c.mutate(ctx, "UpdateUser", http.MethodPut, RealmPath(realm, "users", id), body)
	return err
}

// DeleteUser удаляет пользователя по ID.
func (c *Client) DeleteUser(ctx context.Context, realm, id string) error {
	_, err := c.mutate(ctx, "DeleteUser", http.MethodDelete, RealmPath(realm, "users", id), nil)
	return err
}

// --- Role mappings API ---

// ListUserRealmRoles возвращает роли realm, назначенные пользователю.
// Отсутствие пользователя (404) — ErrProbe: к этому моменту ID уже разрешён.
func (c *Client) ListUserRealmRoles(ctx context.Context, realm, userID string) ([]RoleRepresentation, error) {
	path := RealmPath(realm, "users", userID, "role-mappings", "realm")
	data, found, err := c.probe(ctx, "ListUserRealmRoles", path)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &Error{Kind: ErrProbe, Op: "ListUserRealmRoles", Method: http.MethodGet, Path: path,
			Status: http.StatusNotFound, Body: "пользователь не найден"}
	}

	var roles []RoleRepresentation
	if err := json.Unmarshal(data, &roles); err != nil {
		return nil, &Error{Kind: ErrProbe, Op: "ListUserRealmRoles", Method: http.MethodGet, Path: path,
			Err: fmt.Errorf("декодирование ответа Keycloak: %w", err)}
	}
	return roles, nil
}

// AddUserRealmRoles назначает пользователю роли realm.
func (c *Client) AddUserRealmRoles(ctx context.Context, realm, userID string, roles []RoleRepresentation) error {
	path := RealmPath(realm, "users", userID, "role-mappings", "realm")
	_, err := c.mutate(ctx, "AddUserRealmRoles", http.MethodPost, path, roles)
	return err
}

// --- Identity providers API ---

// GetIdentityProvider возвращает identity provider по alias.
func (c *Client) GetIdentityProvider(ctx context.Context, realm, alias string) (*Snapshot[IdentityProviderRepresentation], error) {
	return getSnapshot[IdentityProviderRepresentation](ctx, c, "GetIdentityProvider",
		RealmPath(realm, "identity-provider", "instances", alias))
}

// CreateIdentityProvider создаёт identity provider.
func (c *Client) CreateIdentityProvider(ctx context.Context, realm string, idp IdentityProviderRepresentation) error {
	_, err := c.mutate(ctx, "CreateIdentityProvider", http.MethodPost,
		RealmPath(realm, "identity-provider", "instances"), idp)
	return err
}

// UpdateIdentityProvider обновляет identity provider по alias.
func (c *Client) UpdateIdentityProvider(ctx context.Context, realm, alias string, body any) error {
	_, err := c.mutate(ctx, "UpdateIdentityProvider", http.MethodPut,
		RealmPath(realm, "identity-provider", "instances", alias), body)
	return err
}

// DeleteIdentityProvider удаляет identity provider по alias.
func (c *Client) DeleteIdentityProvider(ctx context.Context, realm, alias string) error {
	_, err := c.mutate(ctx, "DeleteIdentityProvider", http.MethodDelete,
		RealmPath(realm, "identity-provider", "instances", alias), nil)
	return err
}
