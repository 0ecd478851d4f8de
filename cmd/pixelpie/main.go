package main

import (
	"context"
	"fmt"

	"github.com/alecthomas/kong"

	"pixelpie/internal/config"
	"pixelpie/internal/infrastructure/database"
	"pixelpie/internal/monitoring"
)

var version = "dev"

// Globals флаги, общие для всех команд
type Globals struct {
	EnvFile string `name:"env-file" default:".env" help:"Файл с переменными окружения."`
}

type CLI struct {
	Globals

	Serve   ServeCmd         `cmd:"" default:"1" help:"Запустить бота, воркеры и HTTP-сервер."`
	Migrate MigrateCmd       `cmd:"" help:"Применить миграции базы данных и выйти."`
	Version kong.VersionFlag `help:"Показать версию и выйти."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("pixelpie"),
		kong.Description("PixelPie: Telegram-бот для генерации фото с персональными аватарами."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)
	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}

// MigrateCmd применяет миграции и завершает работу
type MigrateCmd struct{}

func (c *MigrateCmd) Run(g *Globals) error {
	cfg, err := config.LoadForMigrate(g.EnvFile)
	if err != nil {
		return err
	}
	log := monitoring.NewLogger(monitoring.LoggerOptions{Level: cfg.LogLevel, File: cfg.LogFile})

	ctx := context.Background()
	db, err := database.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx, log.WithField("component", "goose")); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.WithField("driver", cfg.DBDriver).Info("✅ Миграции применены")
	return nil
}
