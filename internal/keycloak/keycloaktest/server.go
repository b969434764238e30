// Пакет keycloaktest — in-memory имитация Keycloak Admin REST API для тестов.
//
// Поддерживает token endpoint (password grant), realm, clients, realm roles,
// users, role-mappings и identity providers. Все запросы к /admin
// записываются в журнал вызовов для проверки порядка и количества операций;
// на любой путь можно подставить ошибочный ответ (FailOn).
package keycloaktest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Учётные данные администратора по умолчанию.
const (
	AdminUser     = "admin"
	AdminPassword = "admin"
)

// Call — запись об одном запросе к Admin API.
type Call struct {
	Method string
	Path   string
	Query  string
}

// String возвращает "METHOD path".
func (c Call) String() string {
	return c.Method + " " + c.Path
}

type failure struct {
	method string
	path   string
	status int
}

type realmState struct {
	rep      map[string]any
	clients  []map[string]any
	roles    []map[string]any
	users    []map[string]any
	mappings map[string][]string // userID → roleID
	idps     []map[string]any
}

// Server — имитация Keycloak.
type Server struct {
	*httptest.Server

	// TokenTTL — время жизни выдаваемого токена (по умолчанию 5 минут).
	TokenTTL time.Duration

	signingKey []byte

	mu            sync.Mutex
	realms        map[string]*realmState
	tokens        map[string]bool
	calls         []Call
	tokenRequests int
	failures      []failure
}

// New запускает имитацию Keycloak с существующим master realm.
// Сервер останавливается через t.Cleanup.
func New(t *testing.T) *Server {
	t.Helper()

	s := &Server{
		TokenTTL:   5 * time.Minute,
		signingKey: []byte("keycloaktest-" + uuid.NewString()),
		realms:     make(map[string]*realmState),
		tokens:     make(map[string]bool),
	}
	s.realms["master"] = newRealmState(map[string]any{
		"id": uuid.NewString(), "realm": "master", "enabled": true,
	})

	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

func newRealmState(rep map[string]any) *realmState {
	return &realmState{rep: rep, mappings: make(map[string][]string)}
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Post("/realms/{realm}/protocol/openid-connect/token", s.token)

	r.Route("/admin/realms", func(r chi.Router) {
		r.Use(s.record, s.authenticate, s.inject)

		r.Post("/", s.createRealm)

		r.Route("/{realm}", func(r chi.Router) {
			r.Use(s.requireRealm)

			r.Get("/", s.getRealm)
			r.Put("/", s.updateRealm)
			r.Delete("/", s.deleteRealm)

			r.Get("/clients", s.listClients)
			r.Post("/clients", s.createClient)
			r.Get("/clients/{id}", s.getClient)
			r.Put("/clients/{id}", s.updateClient)
			r.Delete("/clients/{id}", s.deleteClient)

			r.Get("/roles", s.listRoles)
			r.Post("/roles", s.createRole)
			r.Get("/roles/{name}", s.getRole)
			r.Put("/roles/{name}", s.updateRole)
			r.Delete("/roles/{name}", s.deleteRole)

			r.Get("/users", s.listUsers)
			r.Post("/users", s.createUser)
			r.Get("/users/{id}", s.getUser)
			r.Put("/users/{id}", s.updateUser)
			r.Delete("/users/{id}", s.deleteUser)
			r.Get("/users/{id}/role-mappings/realm", s.listUserRoles)
			r.Post("/users/{id}/role-mappings/realm", s.addUserRoles)

			r.Get("/identity-provider/instances", s.listIDPs)
			r.Post("/identity-provider/instances", s.createIDP)
			r.Get("/identity-provider/instances/{alias}", s.getIDP)
			r.Put("/identity-provider/instances/{alias}", s.updateIDP)
			r.Delete("/identity-provider/instances/{alias}", s.deleteIDP)
		})
	})

	return r
}

// --- Управление имитацией ---

// FailOn заставляет сервер отвечать status на method+path (method "" — любой метод).
func (s *Server) FailOn(method, path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure{method: method, path: path, status: status})
}

// ClearFailures снимает все подставленные ошибки.
func (s *Server) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = nil
}

// Calls возвращает журнал запросов к Admin API.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Mutations возвращает только изменяющие запросы (POST, PUT, DELETE).
func (s *Server) Mutations() []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Method != http.MethodGet {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls очищает журнал запросов.
func (s *Server) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// TokenRequests возвращает количество запросов к token endpoint.
func (s *Server) TokenRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenRequests
}

// HasRealm сообщает, существует ли realm.
func (s *Server) HasRealm(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.realms[name]
	return ok
}

// Realm возвращает копию представления realm (nil, если его нет).
func (s *Server) Realm(name string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.realms[name]
	if !ok {
		return nil
	}
	return clone(rs.rep)
}

// SetRealmField меняет поле realm в обход API (ручное изменение между запусками).
func (s *Server) SetRealmField(name, field string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rs, ok := s.realms[name]; ok {
		rs.rep[field] = value
	}
}

// SetIDPConfig меняет поле config identity provider в обход API.
func (s *Server) SetIDPConfig(realm, alias, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.realms[realm]
	if !ok {
		return
	}
	if idp := find(rs.idps, "alias", alias); idp != nil {
		cfg, _ := idp["config"].(map[string]any)
		if cfg == nil {
			cfg = map[string]any{}
			idp["config"] = cfg
		}
		cfg[key] = value
	}
}

// IDPConfig возвращает config identity provider вместе с секретом (как он хранится).
func (s *Server) IDPConfig(realm, alias string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.realms[realm]
	if !ok {
		return nil
	}
	if idp := find(rs.idps, "alias", alias); idp != nil {
		cfg, _ := idp["config"].(map[string]any)
		return clone(cfg)
	}
	return nil
}

// UserRoles возвращает имена ролей realm, назначенных пользователю username.
func (s *Server) UserRoles(realm, username string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.realms[realm]
	if !ok {
		return nil
	}
	user := find(rs.users, "username", strings.ToLower(username))
	if user == nil {
		return nil
	}
	var names []string
	for _, roleID := range rs.mappings[user["id"].(string)] {
		if role := find(rs.roles, "id", roleID); role != nil {
			names = append(names, role["name"].(string))
		}
	}
	return names
}

// Count возвращает количество ресурсов вида kind ("clients", "roles", "users", "idps") в realm.
func (s *Server) Count(realm, kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.realms[realm]
	if !ok {
		return 0
	}
	switch kind {
	case "clients":
		return len(rs.clients)
	case "roles":
		return len(rs.roles)
	case "users":
		return len(rs.users)
	case "idps":
		return len(rs.idps)
	}
	return 0
}

// --- Middleware ---

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls = append(s.calls, Call{Method: r.Method, Path: strings.TrimRight(r.URL.Path, "/"), Query: r.URL.RawQuery})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		ok := s.tokens[token]
		s.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "HTTP 401 Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimRight(r.URL.Path, "/")
		s.mu.Lock()
		status := 0
		for _, f := range s.failures {
			if (f.method == "" || f.method == r.Method) && f.path == path {
				status = f.status
				break
			}
		}
		s.mu.Unlock()
		if status != 0 {
			writeJSON(w, status, map[string]any{"error": "injected failure"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireRealm(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.HasRealm(chi.URLParam(r, "realm")) {
			notFound(w, "Realm not found.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- Token endpoint ---

func (s *Server) token(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.tokenRequests++
	s.mu.Unlock()

	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_request"})
		return
	}
	if chi.URLParam(r, "realm") != "master" || r.PostForm.Get("client_id") != "admin-cli" ||
		r.PostForm.Get("grant_type") != "password" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unauthorized_client"})
		return
	}
	if r.PostForm.Get("username") != AdminUser || r.PostForm.Get("password") != AdminPassword {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"error": "invalid_grant", "error_description": "Invalid user credentials",
		})
		return
	}

	now := time.Now()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": uuid.NewString(),
		"azp": "admin-cli",
		"iat": now.Unix(),
		"exp": now.Add(s.TokenTTL).Unix(),
	}).SignedString(s.signingKey)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	s.mu.Lock()
	s.tokens[signed] = true
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": signed,
		"token_type":   "Bearer",
		"expires_in":   int(s.TokenTTL.Seconds()),
	})
}

// --- Realm ---

func (s *Server) createRealm(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeObject(w, r)
	if !ok {
		return
	}
	name, _ := body["realm"].(string)
	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"errorMessage": "realm name is required"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.realms[name]; exists {
		conflict(w, "Conflict detected. See logs for details")
		return
	}
	body["id"] = uuid.NewString()
	body["notBefore"] = 0
	s.realms[name] = newRealmState(body)
	w.Header().Set("Location", s.URL+"/admin/realms/"+name)
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) getRealm(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.realms[chi.URLParam(r, "realm")].rep)
}

func (s *Server) updateRealm(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeObject(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rs := s.realms[chi.URLParam(r, "realm")]
	for k, v := range body {
		if k == "id" || k == "realm" {
			continue
		}
		rs.rep[k] = v
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteRealm(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.realms, chi.URLParam(r, "realm"))
	w.WriteHeader(http.StatusNoContent)
}

// --- Clients ---

func (s *Server) listClients(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs := s.realms[chi.URLParam(r, "realm")]
	filter := r.URL.Query().Get("clientId")
	out := []map[string]any{}
	for _, c := range rs.clients {
		if filter == "" || strings.Contains(c["clientId"].(string), filter) {
			out = append(out, c)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createClient(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeObject(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rs := s.realms[chi.URLParam(r, "realm")]
	clientID, _ := body["clientId"].(string)
	if find(rs.clients, "clientId", clientID) != nil {
		conflict(w, "Client "+clientID+" already exists")
		return
	}
	id := uuid.NewString()
	body["id"] = id
	body["surrogateAuthRequired"] = false
	rs.clients = append(rs.clients, body)
	w.Header().Set("Location", r.URL.Path+"/"+id)
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) getClient(w http.ResponseWriter, r *http.Request) {
	s.getByKey(w, r, func(rs *realmState) []map[string]any { return rs.clients }, "id", chi.URLParam(r, "id"))
}

func (s *Server) updateClient(w http.ResponseWriter, r *http.Request) {
	s.updateByKey(w, r, func(rs *realmState) []map[string]any { return rs.clients }, "id", chi.URLParam(r, "id"))
}

func (s *Server) deleteClient(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs := s.realms[chi.URLParam(r, "realm")]
	var removed bool
	rs.clients, removed = remove(rs.clients, "id", chi.URLParam(r, "id"))
	if !removed {
		notFound(w, "Could not find client")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Roles ---

func (s *Server) listRoles(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs := s.realms[chi.URLParam(r, "realm")]
	writeJSON(w, http.StatusOK, append([]map[string]any{}, rs.roles...))
}

func (s *Server) createRole(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeObject(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rs := s.realms[chi.URLParam(r, "realm")]
	name, _ := body["name"].(string)
	if find(rs.roles, "name", name) != nil {
		conflict(w, "Role with name "+name+" already exists")
		return
	}
	body["id"] = uuid.NewString()
	body["composite"] = false
	body["clientRole"] = false
	rs.roles = append(rs.roles, body)
	w.Header().Set("Location", r.URL.Path+"/"+name)
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) getRole(w http.ResponseWriter, r *http.Request) {
	s.getByKey(w, r, func(rs *realmState) []map[string]any { return rs.roles }, "name", chi.URLParam(r, "name"))
}

func (s *Server) updateRole(w http.ResponseWriter, r *http.Request) {
	s.updateByKey(w, r, func(rs *realmState) []map[string]any { return rs.roles }, "name", chi.URLParam(r, "name"))
}

func (s *Server) deleteRole(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs := s.realms[chi.URLParam(r, "realm")]
	role := find(rs.roles, "name", chi.URLParam(r, "name"))
	if role == nil {
		notFound(w, "Could not find role")
		return
	}
	roleID := role["id"].(string)
	rs.roles, _ = remove(rs.roles, "id", roleID)
	for userID, ids := range rs.mappings {
		kept := ids[:0]
		for _, id := range ids {
			if id != roleID {
				kept = append(kept, id)
			}
		}
		rs.mappings[userID] = kept
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Users ---

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs := s.realms[chi.URLParam(r, "realm")]
	q := r.URL.Query()
	username := strings.ToLower(q.Get("username"))
	exact := q.Get("exact") == "true"
	out := []map[string]any{}
	for _, u := range rs.users {
		name := u["username"].(string)
		switch {
		case username == "":
		case exact && name != username:
			continue
		case !exact && !strings.Contains(name, username):
			continue
		}
		out = append(out, u)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeObject(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rs := s.realms[chi.URLParam(r, "realm")]
	username, _ := body["username"].(string)
	username = strings.ToLower(username)
	if find(rs.users, "username", username) != nil {
		conflict(w, "User exists with same username")
		return
	}
	// Учётные данные не хранятся в представлении и не возвращаются при чтении
	delete(body, "credentials")
	id := uuid.NewString()
	body["id"] = id
	body["username"] = username
	body["createdTimestamp"] = time.Now().UnixMilli()
	rs.users = append(rs.users, body)
	w.Header().Set("Location", r.URL.Path+"/"+id)
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	s.getByKey(w, r, func(rs *realmState) []map[string]any { return rs.users }, "id", chi.URLParam(r, "id"))
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	s.updateByKey(w, r, func(rs *realmState) []map[string]any { return rs.users }, "id", chi.URLParam(r, "id"))
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs := s.realms[chi.URLParam(r, "realm")]
	id := chi.URLParam(r, "id")
	var removed bool
	rs.users, removed = remove(rs.users, "id", id)
	if !removed {
		notFound(w, "User not found")
		return
	}
	delete(rs.mappings, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listUserRoles(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs := s.realms[chi.URLParam(r, "realm")]
	id := chi.URLParam(r, "id")
	if find(rs.users, "id", id) == nil {
		notFound(w, "User not found")
		return
	}
	out := []map[string]any{}
	for _, roleID := range rs.mappings[id] {
		if role := find(rs.roles, "id", roleID); role != nil {
			out = append(out, role)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) addUserRoles(w http.ResponseWriter, r *http.Request) {
	var roles []map[string]any
	if err := json.NewDecoder(r.Body).Decode(&roles); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rs := s.realms[chi.URLParam(r, "realm")]
	id := chi.URLParam(r, "id")
	if find(rs.users, "id", id) == nil {
		notFound(w, "User not found")
		return
	}
	for _, role := range roles {
		roleID, _ := role["id"].(string)
		if find(rs.roles, "id", roleID) == nil {
			notFound(w, "Role not found")
			return
		}
		assigned := false
		for _, existing := range rs.mappings[id] {
			if existing == roleID {
				assigned = true
			}
		}
		if !assigned {
			rs.mappings[id] = append(rs.mappings[id], roleID)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Identity providers ---

func (s *Server) listIDPs(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs := s.realms[chi.URLParam(r, "realm")]
	out := []map[string]any{}
	for _, idp := range rs.idps {
		out = append(out, withoutSecret(idp))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createIDP(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeObject(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rs := s.realms[chi.URLParam(r, "realm")]
	alias, _ := body["alias"].(string)
	if find(rs.idps, "alias", alias) != nil {
		conflict(w, "Identity Provider "+alias+" already exists")
		return
	}
	body["internalId"] = uuid.NewString()
	body["updateProfileFirstLoginMode"] = "on"
	rs.idps = append(rs.idps, body)
	w.Header().Set("Location", r.URL.Path+"/"+alias)
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) getIDP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs := s.realms[chi.URLParam(r, "realm")]
	idp := find(rs.idps, "alias", chi.URLParam(r, "alias"))
	if idp == nil {
		notFound(w, "Could not find identity provider")
		return
	}
	writeJSON(w, http.StatusOK, withoutSecret(idp))
}

func (s *Server) updateIDP(w http.ResponseWriter, r *http.Request) {
	s.updateByKey(w, r, func(rs *realmState) []map[string]any { return rs.idps }, "alias", chi.URLParam(r, "alias"))
}

func (s *Server) deleteIDP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs := s.realms[chi.URLParam(r, "realm")]
	var removed bool
	rs.idps, removed = remove(rs.idps, "alias", chi.URLParam(r, "alias"))
	if !removed {
		notFound(w, "Could not find identity provider")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Общие обработчики ---

func (s *Server) getByKey(w http.ResponseWriter, r *http.Request, items func(*realmState) []map[string]any, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := find(items(s.realms[chi.URLParam(r, "realm")]), key, value)
	if item == nil {
		notFound(w, "Could not find "+key+" "+value)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) updateByKey(w http.ResponseWriter, r *http.Request, items func(*realmState) []map[string]any, key, value string) {
	body, ok := decodeObject(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	item := find(items(s.realms[chi.URLParam(r, "realm")]), key, value)
	if item == nil {
		notFound(w, "Could not find "+key+" "+value)
		return
	}
	delete(body, "credentials")
	for k, v := range body {
		if k == key || k == "id" || k == "internalId" {
			continue
		}
		item[k] = v
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Вспомогательные функции ---

func find(items []map[string]any, key, value string) map[string]any {
	for _, item := range items {
		if v, _ := item[key].(string); v == value {
			return item
		}
	}
	return nil
}

func remove(items []map[string]any, key, value string) ([]map[string]any, bool) {
	for i, item := range items {
		if v, _ := item[key].(string); v == value {
			return append(items[:i], items[i+1:]...), true
		}
	}
	return items, false
}

// withoutSecret возвращает копию identity provider без config.clientSecret.
func withoutSecret(idp map[string]any) map[string]any {
	out := clone(idp)
	if cfg, ok := out["config"].(map[string]any); ok {
		delete(cfg, "clientSecret")
	}
	return out
}

// clone делает глубокую копию через JSON.
func clone(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	data, _ := json.Marshal(m)
	var out map[string]any
	_ = json.Unmarshal(data, &out)
	return out
}

func decodeObject(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return nil, false
	}
	return body, true
}

func notFound(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusNotFound, map[string]any{"error": msg})
}

func conflict(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusConflict, map[string]any{"errorMessage": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
