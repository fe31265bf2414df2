package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	"owl-alerts/common/database"
	"owl-alerts/internal/config"
	"owl-alerts/migrations"
)

// 用法: apply-migration [migration_name ...]
// 不带参数时按顺序执行全部内嵌迁移；每个迁移在一个事务中执行
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	all, err := migrations.All()
	if err != nil {
		log.Fatalf("Failed to load migrations: %v", err)
	}

	selected := all
	if len(os.Args) > 1 {
		byName := make(map[string]migrations.Migration, len(all))
		for _, m := range all {
			byName[m.Name] = m
		}
		selected = selected[:0:0]
		for _, name := range os.Args[1:] {
			m, ok := byName[name]
			if !ok {
				log.Fatalf("Unknown migration: %s", name)
			}
			selected = append(selected, m)
		}
	}

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Cannot connect to database: %v", err)
	}
	defer db.Close()

	fmt.Printf("Connected to database: %s\n\n", cfg.Database.Database)

	ctx := context.Background()
	for i, m := range selected {
		fmt.Printf("Applying migration %d/%d: %s...\n", i+1, len(selected), m.Name)
		err := database.WithTx(ctx, db, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, m.SQL)
			return err
		})
		if err != nil {
			log.Fatalf("Failed to apply migration %s: %v", m.Name, err)
		}
		fmt.Printf("✅ Migration %s applied\n\n", m.Name)
	}

	fmt.Println("✅ Migration completed successfully!")
}
