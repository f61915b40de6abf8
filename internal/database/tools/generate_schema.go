// Command generate_schema prints the schema every migration set produces,
// for review alongside migration changes:
//
//	go run ./internal/database/tools > schema.sql
package main

import (
	"fmt"
	"os"

	"gitpub-go/internal/database"
	"gitpub-go/internal/database/migrations"
)

func main() {
	db, err := database.OpenConnection(":memory:")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	for _, set := range []migrations.Set{migrations.History, migrations.DocStore} {
		if err := migrations.MigrateUp(db, set); err != nil {
			fmt.Fprintf(os.Stderr, "Migrating %s failed: %v\n", set, err)
			os.Exit(1)
		}
	}

	schema, err := database.DumpSchema(db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to extract schema: %v\n", err)
		os.Exit(1)
	}

	fmt.Print("-- Generated from internal/database/migrations/files. Do not edit.\n\n" + schema)
}
