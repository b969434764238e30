// Пакет blueprint — описание realm GoGetAction: настройки realm, клиенты,
// роли, тестовые пользователи и identity providers, а также таблица шагов
// reconciliation в порядке зависимостей.
//
// descriptors.go — ожидаемые описания ресурсов и сравниваемые поля.
package blueprint

import (
	"github.com/gogetaction/gogetaction/keycloak-setup/internal/keycloak"
	"github.com/gogetaction/gogetaction/keycloak-setup/internal/reconcile"
)

// Имена ресурсов, не зависящие от конфигурации.
const (
	CampaignerRole     = "Campaigner"
	TestUsername       = "testuser"
	CampaignerUsername = "campaigner"
	FacebookAlias      = "facebook"
	InstagramAlias     = "instagram"

	// DefaultPassword — пароль тестовых пользователей стенда разработки.
	DefaultPassword = "password123" //nolint:gosec // G101: тестовые учётные данные dev-стенда
)

// Realm возвращает описание realm name. Создание отправляет описание целиком
// (включая SMTP), поэтому повторный запуск не находит расхождений.
func Realm(name string) keycloak.RealmRepresentation {
	return keycloak.RealmRepresentation{
		Realm:                              name,
		DisplayName:                        "Go Get Action",
		DisplayNameHTML:                    `<div class="kc-logo-text">Go Get Action</div>`,
		Enabled:                            keycloak.Bool(true),
		SSLRequired:                        "external",
		RegistrationAllowed:                keycloak.Bool(false),
		EditUsernameAllowed:                keycloak.Bool(false),
		ResetPasswordAllowed:               keycloak.Bool(true),
		BruteForceProtected:                keycloak.Bool(true),
		FailureFactor:                      keycloak.Int(3),
		RefreshTokenMaxReuse:               keycloak.Int(0),
		AccessTokenLifespan:                keycloak.Int(300),
		AccessTokenLifespanForImplicitFlow: keycloak.Int(900),
		SSOSessionIdleTimeout:              keycloak.Int(1800),
		SSOSessionMaxLifespan:              keycloak.Int(36000),
		OfflineSessionIdleTimeout:          keycloak.Int(2592000),
		AccessCodeLifespan:                 keycloak.Int(60),
		AccessCodeLifespanLogin:            keycloak.Int(1800),
		AccessCodeLifespanUserAction:       keycloak.Int(300),
		SMTPServer: &keycloak.SMTPServer{
			From:            "no-reply@gogetaction.com",
			FromDisplayName: "Go Get Action",
			Host:            "mailpit",
			Port:            "1025",
		},
		Attributes: map[string]string{
			"pkceCodeChallengeMethod": "S256",
		},
	}
}

// FrontendClient возвращает описание публичного клиента SPA (PKCE S256).
func FrontendClient(clientID string) keycloak.ClientRepresentation {
	return keycloak.ClientRepresentation{
		ClientID:                  clientID,
		Enabled:                   keycloak.Bool(true),
		PublicClient:              keycloak.Bool(true),
		RedirectURIs:              []string{"https://localhost/*"},
		WebOrigins:                []string{"+"},
		StandardFlowEnabled:       keycloak.Bool(true),
		DirectAccessGrantsEnabled: keycloak.Bool(false),
		Attributes: map[string]string{
			"pkce.code.challenge.method": "S256",
		},
	}
}

// BackendClient возвращает описание bearer-only клиента API.
func BackendClient(clientID string) keycloak.ClientRepresentation {
	return keycloak.ClientRepresentation{
		ClientID:     clientID,
		Enabled:      keycloak.Bool(true),
		BearerOnly:   keycloak.Bool(true),
		PublicClient: keycloak.Bool(false),
	}
}

// Campaigner возвращает описание роли Campaigner.
func Campaigner() keycloak.RoleRepresentation {
	return keycloak.RoleRepresentation{
		Name:        CampaignerRole,
		Description: "Can create and manage campaigns",
	}
}

// User возвращает описание тестового пользователя с постоянным паролем.
func User(username string) keycloak.UserRepresentation {
	return keycloak.UserRepresentation{
		Username:      username,
		Email:         username + "@example.com",
		Enabled:       keycloak.Bool(true),
		EmailVerified: keycloak.Bool(true),
		Credentials: []keycloak.CredentialRepresentation{
			{Type: "password", Value: DefaultPassword, Temporary: keycloak.Bool(false)},
		},
	}
}

// IdentityProvider возвращает описание внешнего провайдера входа.
// clientId и clientSecret — заглушки, реальные значения задаются в консоли Keycloak.
func IdentityProvider(alias, displayName, clientID, clientSecret string) keycloak.IdentityProviderRepresentation {
	return keycloak.IdentityProviderRepresentation{
		Alias:                     alias,
		DisplayName:               displayName,
		ProviderID:                alias,
		Enabled:                   keycloak.Bool(true),
		StoreToken:                keycloak.Bool(false),
		AddReadTokenRoleOnCreate:  keycloak.Bool(false),
		AuthenticateByDefault:     keycloak.Bool(false),
		FirstBrokerLoginFlowAlias: "first broker login",
		Config: map[string]string{
			"clientId":     clientID,
			"clientSecret": clientSecret,
		},
	}
}

// Facebook возвращает описание identity provider facebook.
func Facebook() keycloak.IdentityProviderRepresentation {
	return IdentityProvider(FacebookAlias, "Facebook", "YOUR_FACEBOOK_APP_ID", "YOUR_FACEBOOK_APP_SECRET")
}

// Instagram возвращает описание identity provider instagram.
func Instagram() keycloak.IdentityProviderRepresentation {
	return IdentityProvider(InstagramAlias, "Instagram", "YOUR_INSTAGRAM_APP_ID", "YOUR_INSTAGRAM_APP_SECRET")
}

// --- Сравниваемые поля ---

var realmFields = reconcile.Comparator{
	Fields: []string{
		"displayName",
		"displayNameHtml",
		"enabled",
		"sslRequired",
		"registrationAllowed",
		"editUsernameAllowed",
		"resetPasswordAllowed",
		"bruteForceProtected",
		"failureFactor",
		"refreshTokenMaxReuse",
		"accessTokenLifespan",
		"accessTokenLifespanForImplicitFlow",
		"ssoSessionIdleTimeout",
		"ssoSessionMaxLifespan",
		"offlineSessionIdleTimeout",
		"accessCodeLifespan",
		"accessCodeLifespanLogin",
		"accessCodeLifespanUserAction",
		"attributes.pkceCodeChallengeMethod",
		"smtpServer.from",
		"smtpServer.fromDisplayName",
		"smtpServer.host",
		"smtpServer.port",
	},
}

var clientFields = reconcile.Comparator{
	Fields: []string{
		"enabled",
		"publicClient",
		"bearerOnly",
		"redirectUris",
		"webOrigins",
		"standardFlowEnabled",
		"directAccessGrantsEnabled",
		`attributes.pkce\.code\.challenge\.method`,
	},
}

var roleFields = reconcile.Comparator{
	Fields: []string{"description"},
}

var userFields = reconcile.Comparator{
	Fields:    []string{"email", "enabled", "emailVerified"},
	WriteOnly: []string{"credentials"},
}

var identityProviderFields = reconcile.Comparator{
	Fields: []string{
		"alias",
		"displayName",
		"providerId",
		"enabled",
		"storeToken",
		"addReadTokenRoleOnCreate",
		"authenticateByDefault",
		"firstBrokerLoginFlowAlias",
		"config.clientId",
	},
	WriteOnly: []string{"config.clientSecret"},
}
