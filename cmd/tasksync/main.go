package main

import (
	"bufio"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"task-sync/internal/config"
	"task-sync/internal/handlers"
	httpapi "task-sync/internal/http"
	"task-sync/internal/logging"
	"task-sync/internal/repos"
	"task-sync/internal/services"
	_ "modernc.org/sqlite"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel)

	db, err := sql.Open("sqlite", cfg.DatabaseURL)
	if err != nil {
		panic(err)
	}
	defer db.Close()

	if err := runMigrations(db, cfg.MigrationsDir); err != nil {
		panic(err)
	}

	repo := repos.NewSyncRepo(db)
	taskSvc := services.NewTaskService(repo, log)
	syncSvc := services.NewSyncService(repo, log, cfg.MaxRetry)
	th := handlers.NewTaskHandler(taskSvc)
	sh := handlers.NewSyncHandler(taskSvc, syncSvc, cfg)
	r := httpapi.NewRouter(log, th, sh)

	addr := ":" + cfg.Port
	log.Infof("task-sync listening on %s", addr)
	if err := r.Run(addr); err != nil {
		panic(err)
	}
}

func runMigrations(db *sql.DB, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(e.Name()), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	for _, f := range files {
		path := filepath.Join(dir, f)
		if err := applySQLFile(db, path); err != nil {
			return fmt.Errorf("apply migration %s: %w", f, err)
		}
	}
	return nil
}

func applySQLFile(db *sql.DB, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1024), 1024*1024)
	var sb strings.Builder
	for scanner.Scan() {
		sb.WriteString(scanner.Text())
		sb.WriteString("\n")
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	_, err = db.Exec(sb.String())
	return err
}
