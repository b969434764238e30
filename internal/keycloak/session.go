// session.go — сессия администратора Keycloak.
// Токен получается один раз за запуск через password grant (admin-cli)
// в master realm и не обновляется: запуск утилиты короче времени жизни токена.
package keycloak

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// adminCLIClientID — публичный клиент master realm для password grant.
const adminCLIClientID = "admin-cli"

// Credential — bearer-токен администратора.
type Credential struct {
	AccessToken string
	TokenType   string
	// ExpiresAt — момент истечения (из claim exp или expires_in); нулевой, если неизвестен.
	ExpiresAt time.Time
}

// Session — явная сессия администратора, передаваемая в Client.
// Токен записывается один раз при Acquire и далее только читается.
type Session struct {
	host       string
	credential Credential
}

// Acquire получает токен администратора через password grant.
// Любой отказ token endpoint'а — ошибка вида ErrAuth.
func Acquire(ctx context.Context, httpClient *http.Client, host, adminUser, adminPassword string) (*Session, error) {
	host = strings.TrimRight(host, "/")
	path := "/realms/master/protocol/openid-connect/token"
	authErr := func(status int, body string, cause error) error {
		return &Error{Kind: ErrAuth, Op: "Acquire", Method: http.MethodPost, Path: path, Status: status, Body: body, Err: cause}
	}

	data := url.Values{
		"grant_type": {"password"},
		"client_id":  {adminCLIClientID},
		"username":   {adminUser},
		"password":   {adminPassword},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, host+path, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, authErr(0, "", fmt.Errorf("создание запроса токена: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, authErr(0, "", fmt.Errorf("запрос токена Keycloak: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, authErr(resp.StatusCode, truncateBody(body), nil)
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, authErr(resp.StatusCode, "", fmt.Errorf("декодирование токена Keycloak: %w", err))
	}
	if token.AccessToken == "" {
		return nil, authErr(resp.StatusCode, "", fmt.Errorf("пустой access_token в ответе"))
	}

	now := time.Now()
	credential := Credential{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
		ExpiresAt:   tokenExpiry(token, now),
	}
	if !credential.ExpiresAt.IsZero() && !credential.ExpiresAt.After(now) {
		return nil, authErr(resp.StatusCode, "", fmt.Errorf("полученный токен уже истёк (%s)", credential.ExpiresAt.UTC().Format(time.RFC3339)))
	}

	return &Session{host: host, credential: credential}, nil
}

// NewSession создаёт сессию из уже полученного токена.
func NewSession(host string, credential Credential) *Session {
	return &Session{host: strings.TrimRight(host, "/"), credential: credential}
}

// Host возвращает базовый URL Keycloak, для которого выдан токен.
func (s *Session) Host() string {
	return s.host
}

// Credential возвращает копию токена.
func (s *Session) Credential() Credential {
	return s.credential
}

// authorize добавляет Authorization заголовок к запросу.
func (s *Session) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.credential.AccessToken)
}

// tokenExpiry определяет момент истечения токена.
// Keycloak выдаёт JWT, поэтому сначала читается claim exp без проверки подписи:
// токен проверяет сам Keycloak при каждом вызове Admin API.
func tokenExpiry(token TokenResponse, now time.Time) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token.AccessToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}

	if token.ExpiresIn > 0 {
		return now.Add(time.Duration(token.ExpiresIn) * time.Second)
	}
	return time.Time{}
}
