package main

import (
	"bufio"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"kixikila/internal/config"
	"kixikila/internal/db"
	"kixikila/internal/logging"

	"github.com/jmoiron/sqlx"
)

const downMarker = "-- +migrate Down"

// Usage: migrate [up|down]. "down" reverts the most recently applied file.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("load config")
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	database, err := db.Connect(cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("connect database")
	}
	defer database.Close()

	if _, err := database.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (filename text primary key, applied_at timestamptz default now())`); err != nil {
		logging.Fatal().Err(err).Msg("ensure schema_migrations")
	}

	direction := "up"
	if len(os.Args) > 1 {
		direction = os.Args[1]
	}
	switch direction {
	case "up":
		err = up(database)
	case "down":
		err = down(database)
	default:
		err = fmt.Errorf("unknown direction %q", direction)
	}
	if err != nil {
		logging.Fatal().Err(err).Str("direction", direction).Msg("migrate")
	}
}

func up(database *sqlx.DB) error {
	files, err := filepath.Glob("migrations/*.sql")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		filename := filepath.Base(file)
		var exists bool
		if err := database.Get(&exists, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, filename); err != nil {
			return fmt.Errorf("read migration state: %w", err)
		}
		if exists {
			continue
		}
		if err := applyFile(database, file, true); err != nil {
			return fmt.Errorf("apply %s: %w", filename, err)
		}
		if _, err := database.Exec(`INSERT INTO schema_migrations (filename) VALUES ($1)`, filename); err != nil {
			return fmt.Errorf("record %s: %w", filename, err)
		}
		logging.Info().Str("file", filename).Msg("applied migration")
	}
	return nil
}

func down(database *sqlx.DB) error {
	var filename string
	err := database.Get(&filename, `SELECT filename FROM schema_migrations ORDER BY filename DESC LIMIT 1`)
	if err == sql.ErrNoRows {
		logging.Info().Msg("nothing to revert")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read migration state: %w", err)
	}
	if err := applyFile(database, filepath.Join("migrations", filename), false); err != nil {
		return fmt.Errorf("revert %s: %w", filename, err)
	}
	if _, err := database.Exec(`DELETE FROM schema_migrations WHERE filename = $1`, filename); err != nil {
		return fmt.Errorf("forget %s: %w", filename, err)
	}
	logging.Info().Str("file", filename).Msg("reverted migration")
	return nil
}

func applyFile(db execer, path string, upward bool) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	upSQL, downSQL, _ := strings.Cut(string(content), downMarker)
	section := upSQL
	if !upward {
		section = downSQL
	}
	for _, stmt := range splitSQL(section) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// splitSQL cuts on lines containing ';'. Migration files must keep every
// statement terminator at the end of a line.
func splitSQL(sqlText string) []string {
	var statements []string
	var current strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(sqlText))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		current.WriteString(line)
		current.WriteRune('\n')
		if strings.Contains(line, ";") {
			statements = append(statements, current.String())
			current.Reset()
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		statements = append(statements, current.String())
	}
	return statements
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}
