// Точка входа keycloak-setup — идемпотентная настройка realm GoGetAction.
// Подкоманды setup, rollback и status; конфигурация из файла (--config)
// и переменных окружения KC_SETUP_*. Код выхода 1 при любой фатальной ошибке.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gogetaction/gogetaction/keycloak-setup/internal/config"
	"github.com/gogetaction/gogetaction/keycloak-setup/internal/reconcile"
	"github.com/gogetaction/gogetaction/keycloak-setup/internal/runner"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run выполняет команду с аргументами args и возвращает код выхода:
// 0 при успехе, 1 при любой фатальной ошибке.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, formatError(err))
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "keycloak-setup",
		Short:         "Настройка realm GoGetAction в Keycloak",
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "путь к JSON-файлу конфигурации")

	root.AddCommand(
		modeCmd(reconcile.ModeSetup, "Создать или привести в соответствие realm и его ресурсы", &configPath),
		modeCmd(reconcile.ModeRollback, "Удалить ресурсы realm в обратном порядке", &configPath),
		modeCmd(reconcile.ModeStatus, "Показать расхождения без изменений", &configPath),
	)
	return root
}

// modeCmd создаёт подкоманду для режима прогона.
func modeCmd(mode reconcile.Mode, short string, configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   string(mode),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("загрузка конфигурации: %w", err)
			}
			logger := config.SetupLogger(cfg, cmd.OutOrStdout())

			report, err := runner.Run(cmd.Context(), cfg, mode, logger)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), summary(report))
			return nil
		},
	}
}
