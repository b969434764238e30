// errors.go — классификация ошибок обращения к Keycloak.
// Все три вида фатальны: запуск прерывается, повторный запуск продолжает с того же места.
package keycloak

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAuth — не удалось получить токен администратора.
	ErrAuth = errors.New("ошибка аутентификации в Keycloak")
	// ErrProbe — проверка существования вернула неоднозначный ответ (не 2xx и не 404).
	ErrProbe = errors.New("ошибка проверки существования ресурса")
	// ErrMutation — создание, обновление или удаление ресурса не выполнено.
	ErrMutation = errors.New("ошибка изменения ресурса")
)

// Error — детали неудачного обращения к Keycloak.
// Status == 0 означает, что ответ не был получен (сеть, отмена контекста).
type Error struct {
	Kind   error // ErrAuth, ErrProbe или ErrMutation
	Op     string
	Method string
	Path   string
	Status int
	Body   string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Op, e.Kind)
	if e.Method != "" {
		fmt.Fprintf(&b, " (%s %s)", e.Method, e.Path)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, ": Keycloak вернул статус %d", e.Status)
		if e.Body != "" {
			fmt.Fprintf(&b, ": %s", e.Body)
		}
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap позволяет errors.Is находить и вид ошибки, и её причину.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// maxBodyLen — сколько байт тела ответа сохраняется в ошибке.
const maxBodyLen = 2048

func truncateBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxBodyLen {
		return s[:maxBodyLen] + "…"
	}
	return s
}
