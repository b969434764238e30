// Пакет keycloak — HTTP-клиент к Keycloak Admin REST API.
// models.go — модели данных Keycloak.
//
// Поля настроек объявлены указателями с omitempty: дескриптор передаёт
// в Keycloak только то, что задано явно, и false/0 не теряются при сериализации.
package keycloak

import "encoding/json"

// TokenResponse — ответ token endpoint на password grant.
type TokenResponse struct {
	AccessToken string `json:"access_token"` //nolint:gosec // G117: структура токена OAuth2
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Snapshot — прочитанное состояние удалённого ресурса.
// Value — типизированное представление (id, имена), Raw — JSON как его вернул Keycloak,
// включая серверные поля, которых нет в модели.
type Snapshot[T any] struct {
	Value T
	Raw   json.RawMessage
}

// RealmRepresentation — realm и его настройки.
type RealmRepresentation struct {
	ID                                 string            `json:"id,omitempty"`
	Realm                              string            `json:"realm"`
	DisplayName                        string            `json:"displayName,omitempty"`
	DisplayNameHTML                    string            `json:"displayNameHtml,omitempty"`
	Enabled                            *bool             `json:"enabled,omitempty"`
	SSLRequired                        string            `json:"sslRequired,omitempty"`
	RegistrationAllowed                *bool             `json:"registrationAllowed,omitempty"`
	EditUsernameAllowed                *bool             `json:"editUsernameAllowed,omitempty"`
	ResetPasswordAllowed               *bool             `json:"resetPasswordAllowed,omitempty"`
	BruteForceProtected                *bool             `json:"bruteForceProtected,omitempty"`
	FailureFactor                      *int              `json:"failureFactor,omitempty"`
	RefreshTokenMaxReuse               *int              `json:"refreshTokenMaxReuse,omitempty"`
	AccessTokenLifespan                *int              `json:"accessTokenLifespan,omitempty"`
	AccessTokenLifespanForImplicitFlow *int              `json:"accessTokenLifespanForImplicitFlow,omitempty"`
	SSOSessionIdleTimeout              *int              `json:"ssoSessionIdleTimeout,omitempty"`
	SSOSessionMaxLifespan              *int              `json:"ssoSessionMaxLifespan,omitempty"`
	OfflineSessionIdleTimeout          *int              `json:"offlineSessionIdleTimeout,omitempty"`
	AccessCodeLifespan                 *int              `json:"accessCodeLifespan,omitempty"`
	AccessCodeLifespanLogin            *int              `json:"accessCodeLifespanLogin,omitempty"`
	AccessCodeLifespanUserAction       *int              `json:"accessCodeLifespanUserAction,omitempty"`
	SMTPServer                         *SMTPServer       `json:"smtpServer,omitempty"`
	Attributes                         map[string]string `json:"attributes,omitempty"`
}

// SMTPServer — настройки почтового сервера realm.
// Keycloak хранит порт строкой.
type SMTPServer struct {
	From            string `json:"from,omitempty"`
	FromDisplayName string `json:"fromDisplayName,omitempty"`
	Host            string `json:"host,omitempty"`
	Port            string `json:"port,omitempty"`
}

// ClientRepresentation — OIDC-клиент realm.
// Естественный ключ — ClientID, ID — внутренний идентификатор Keycloak.
type ClientRepresentation struct {
	ID                        string            `json:"id,omitempty"`
	ClientID                  string            `json:"clientId"`
	Name                      string            `json:"name,omitempty"`
	Enabled                   *bool             `json:"enabled,omitempty"`
	PublicClient              *bool             `json:"publicClient,omitempty"`
	BearerOnly                *bool             `json:"bearerOnly,omitempty"`
	RedirectURIs              []string          `json:"redirectUris,omitempty"`
	WebOrigins                []string          `json:"webOrigins,omitempty"`
	StandardFlowEnabled       *bool             `json:"standardFlowEnabled,omitempty"`
	DirectAccessGrantsEnabled *bool             `json:"directAccessGrantsEnabled,omitempty"`
	Attributes                map[string]string `json:"attributes,omitempty"`
}

// RoleRepresentation — роль realm.
type RoleRepresentation struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// UserRepresentation — пользователь realm.
// Credentials только записываются: Keycloak не возвращает их при чтении.
type UserRepresentation struct {
	ID            string                     `json:"id,omitempty"`
	Username      string                     `json:"username"`
	Email         string                     `json:"email,omitempty"`
	Enabled       *bool                      `json:"enabled,omitempty"`
	EmailVerified *bool                      `json:"emailVerified,omitempty"`
	Credentials   []CredentialRepresentation `json:"credentials,omitempty"`
}

// CredentialRepresentation — учётные данные пользователя (пароль).
type CredentialRepresentation struct {
	Type      string `json:"type"`
	Value     string `json:"value"` //nolint:gosec // G117: пароль передаётся в Keycloak
	Temporary *bool  `json:"temporary,omitempty"`
}

// IdentityProviderRepresentation — внешний провайдер входа (Facebook, Instagram).
// Естественный ключ — Alias. Config.clientSecret Keycloak при чтении не отдаёт.
type IdentityProviderRepresentation struct {
	InternalID                string            `json:"internalId,omitempty"`
	Alias                     string            `json:"alias"`
	DisplayName               string            `json:"displayName,omitempty"`
	ProviderID                string            `json:"providerId"`
	Enabled                   *bool             `json:"enabled,omitempty"`
	StoreToken                *bool             `json:"storeToken,omitempty"`
	AddReadTokenRoleOnCreate  *bool             `json:"addReadTokenRoleOnCreate,omitempty"`
	AuthenticateByDefault     *bool             `json:"authenticateByDefault,omitempty"`
	FirstBrokerLoginFlowAlias string            `json:"firstBrokerLoginFlowAlias,omitempty"`
	Config                    map[string]string `json:"config,omitempty"`
}

// Bool возвращает указатель на значение (для полей дескрипторов).
func Bool(v bool) *bool { return &v }

// Int возвращает указатель на значение (для полей дескрипторов).
func Int(v int) *int { return &v }
