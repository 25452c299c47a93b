//cmd/seeder/main.go
package main

import (
	"context"
	"embed"
	"flag"
	"io/fs"
	"sort"

	"github.com/unclebandit/mailcampaign-sender/internal/config"
	"github.com/unclebandit/mailcampaign-sender/internal/db"
	"github.com/unclebandit/mailcampaign-sender/internal/logx"
)

//go:embed sql/*.sql
var seedFS embed.FS

func main() {
	schemaOnly := flag.Bool("schema-only", false, "create tables without demo data")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logx.L().Fatalw("config_invalid", "error", err)
	}
	logx.Init(cfg.LogLevel)
	defer logx.Sync()

	ctx := context.Background()
	conn, err := db.Open(ctx, cfg.DBDSN)
	if err != nil {
		logx.L().Fatalw("db_connect_failed", "error", err)
	}
	defer conn.Close()

	files, err := fs.Glob(seedFS, "sql/*.sql")
	if err != nil {
		logx.L().Fatalw("seed_list_failed", "error", err)
	}
	sort.Strings(files)
	if *schemaOnly {
		files = files[:1]
	}

	for _, file := range files {
		content, err := seedFS.ReadFile(file)
		if err != nil {
			logx.L().Fatalw("seed_read_failed", "file", file, "error", err)
		}
		if _, err := conn.ExecContext(ctx, string(content)); err != nil {
			logx.L().Fatalw("seed_exec_failed", "file", file, "error", err)
		}
		logx.L().Infow("seeded", "file", file)
	}

	logx.L().Infow("database_seeding_completed")
}
