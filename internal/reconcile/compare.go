// compare.go — сравнение удалённого состояния с ожидаемым описанием
// по явному списку JSON-путей (синтаксис gjson: attributes.pkceCodeChallengeMethod,
// точка внутри ключа экранируется: attributes.pkce\.code\.challenge\.method).
//
// Полное сравнение объектов не используется: Keycloak добавляет серверные поля
// (id, notBefore, createdTimestamp), которых нет в описании.
package reconcile

import (
	"reflect"
	"slices"

	"github.com/tidwall/gjson"
)

// Comparator — набор сравниваемых путей одного вида ресурсов.
type Comparator struct {
	// Fields — пути, расхождение по которым требует обновления.
	Fields []string
	// WriteOnly — пути, которые Keycloak не возвращает при чтении (секреты, пароли).
	// Никогда не сравниваются.
	WriteOnly []string
}

// Diff возвращает пути, по которым current расходится с expected.
// Путь, отсутствующий в expected, не проверяется; присутствующий в expected,
// но отсутствующий в current, считается расхождением.
func (c Comparator) Diff(current, expected []byte) []string {
	var diverged []string
	for _, path := range c.Fields {
		if slices.Contains(c.WriteOnly, path) {
			continue
		}

		want := gjson.GetBytes(expected, path)
		if !want.Exists() {
			continue
		}
		got := gjson.GetBytes(current, path)
		if !got.Exists() || !reflect.DeepEqual(got.Value(), want.Value()) {
			diverged = append(diverged, path)
		}
	}
	return diverged
}

// Resubmitted возвращает write-only пути, заданные в expected:
// при обновлении они отправляются в Keycloak как есть.
func (c Comparator) Resubmitted(expected []byte) []string {
	var paths []string
	for _, path := range c.WriteOnly {
		if gjson.GetBytes(expected, path).Exists() {
			paths = append(paths, path)
		}
	}
	return paths
}
