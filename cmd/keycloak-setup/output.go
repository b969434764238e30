// output.go — итоговая строка прогона и сообщение об ошибке для stderr.

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogetaction/gogetaction/keycloak-setup/internal/keycloak"
	"github.com/gogetaction/gogetaction/keycloak-setup/internal/reconcile"
)

// summaryOrder — порядок счётчиков в итоговой строке.
var summaryOrder = []reconcile.Outcome{
	reconcile.OutcomeCreated,
	reconcile.OutcomeUpdated,
	reconcile.OutcomeUnchanged,
	reconcile.OutcomeDeleted,
	reconcile.OutcomeAbsent,
	reconcile.OutcomePresent,
	reconcile.OutcomeDivergent,
	reconcile.OutcomeSkipped,
}

// summary возвращает итоговую строку прогона, например "setup: created=9".
func summary(report *reconcile.Report) string {
	parts := make([]string, 0, len(summaryOrder))
	for _, o := range summaryOrder {
		if n := report.Count(o); n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", o, n))
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%s: шагов нет", report.Mode)
	}
	return fmt.Sprintf("%s: %s", report.Mode, strings.Join(parts, " "))
}

// formatError формирует сообщение для stderr: шаг, статус и тело ответа
// Keycloak, если они известны, иначе исходный текст ошибки.
func formatError(err error) string {
	var b strings.Builder
	b.WriteString("Ошибка: ")

	var stepErr *reconcile.StepError
	if errors.As(err, &stepErr) {
		fmt.Fprintf(&b, "шаг %s %s", stepErr.Kind, stepErr.Key)
	}

	var kcErr *keycloak.Error
	if errors.As(err, &kcErr) && kcErr.Status != 0 {
		if stepErr != nil {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "HTTP %d", kcErr.Status)
		if kcErr.Body != "" {
			fmt.Fprintf(&b, ": %s", kcErr.Body)
		}
	}

	if stepErr == nil && (kcErr == nil || kcErr.Status == 0) {
		b.WriteString(err.Error())
		return b.String()
	}
	fmt.Fprintf(&b, "\n%s", err.Error())
	return b.String()
}
