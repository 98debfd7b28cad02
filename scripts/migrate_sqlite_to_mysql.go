package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// Moves the local accounts store from the embedded sqlite file (the dev
// default) to MySQL for multi-instance deployments. Run the server once
// against MySQL first so the schema exists, then run this with SQLITE_PATH
// and MYSQL_DSN set.

type MigrationStats struct {
	Accounts      int
	RefreshTokens int
	Errors        []string
}

func main() {
	sqlitePath := getEnv("SQLITE_PATH", "./neuro.db")
	mysqlDSN := getEnv("MYSQL_DSN", "")

	if mysqlDSN == "" {
		log.Fatal("❌ MYSQL_DSN environment variable required\n   Format: user:pass@tcp(host:port)/dbname")
	}

	log.Println("🔄 Starting SQLite → MySQL accounts migration...")
	log.Printf("   SQLite: %s", sqlitePath)
	log.Printf("   MySQL:  %s\n", maskDSN(mysqlDSN))

	sqliteDB, err := sql.Open("sqlite", sqlitePath)
	if err != nil {
		log.Fatalf("❌ Failed to open SQLite: %v", err)
	}
	defer sqliteDB.Close()

	mysqlDB, err := sql.Open("mysql", mysqlDSN+"?parseTime=true&charset=utf8mb4&collation=utf8mb4_unicode_ci")
	if err != nil {
		log.Fatalf("❌ Failed to open MySQL: %v", err)
	}
	defer mysqlDB.Close()

	if err := sqliteDB.Ping(); err != nil {
		log.Fatalf("❌ SQLite connection failed: %v", err)
	}
	if err := mysqlDB.Ping(); err != nil {
		log.Fatalf("❌ MySQL connection failed: %v", err)
	}

	log.Println("✅ Database connections established")

	stats := &MigrationStats{}

	tx, err := mysqlDB.Begin()
	if err != nil {
		log.Fatalf("❌ Failed to start transaction: %v", err)
	}
	defer tx.Rollback() // Rollback if we don't commit

	steps := []struct {
		name string
		fn   func(*sql.DB, *sql.Tx, *MigrationStats) error
	}{
		{"accounts", migrateAccounts},
		{"refresh_tokens", migrateRefreshTokens},
	}

	for _, step := range steps {
		log.Printf("📦 Migrating %s...", step.name)
		if err := step.fn(sqliteDB, tx, stats); err != nil {
			log.Printf("❌ %s migration failed: %v\n", step.name, err)
			log.Println("⚠️  Transaction will be rolled back")
			return
		}
	}

	if err := tx.Commit(); err != nil {
		log.Fatalf("❌ Failed to commit transaction: %v", err)
	}

	printSummary(stats)
}

func migrateAccounts(sqlite *sql.DB, mysql *sql.Tx, stats *MigrationStats) error {
	rows, err := sqlite.Query(`
		SELECT uid, email, password_hash, COALESCE(full_name, ''),
		       COALESCE(role, 'user'), created_at, last_login_at
		FROM accounts
		ORDER BY created_at
	`)
	if err != nil {
		if strings.Contains(err.Error(), "no such table") {
			log.Println("   ⚠️  Table doesn't exist in SQLite, skipping")
			return nil
		}
		return fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	stmt, err := mysql.Prepare(`
		INSERT INTO accounts (uid, email, password_hash, full_name, role,
		                      created_at, last_login_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare failed: %w", err)
	}
	defer stmt.Close()

	for rows.Next() {
		var (
			uid, email, passwordHash, fullName, role string
			createdAt                                string
			lastLoginAt                              sql.NullString
		)

		if err := rows.Scan(&uid, &email, &passwordHash, &fullName, &role,
			&createdAt, &lastLoginAt); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("account scan: %v", err))
			continue
		}

		_, err := stmt.Exec(uid, email, passwordHash, fullName, role,
			createdAt, nullString(lastLoginAt.String))
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("account insert %s: %v", email, err))
			continue
		}
		stats.Accounts++
	}

	log.Printf("   ✅ Migrated %d accounts\n", stats.Accounts)
	return nil
}

func migrateRefreshTokens(sqlite *sql.DB, mysql *sql.Tx, stats *MigrationStats) error {
	// Only live sessions are worth carrying over; expired and revoked rows
	// would be swept by the prune job anyway.
	rows, err := sqlite.Query(`
		SELECT token, uid, expires_at, created_at, COALESCE(revoked, 0)
		FROM refresh_tokens
		WHERE revoked = 0 AND expires_at > CURRENT_TIMESTAMP
		ORDER BY created_at
	`)
	if err != nil {
		if strings.Contains(err.Error(), "no such table") {
			log.Println("   ⚠️  Table doesn't exist in SQLite, skipping")
			return nil
		}
		return fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	stmt, err := mysql.Prepare(`
		INSERT INTO refresh_tokens (token, uid, expires_at, created_at, revoked)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare failed: %w", err)
	}
	defer stmt.Close()

	for rows.Next() {
		var (
			token, uid, expiresAt, createdAt string
			revoked                          bool
		)

		if err := rows.Scan(&token, &uid, &expiresAt, &createdAt, &revoked); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("token scan: %v", err))
			continue
		}

		if _, err := stmt.Exec(token, uid, expiresAt, createdAt, revoked); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("token insert for %s: %v", uid, err))
			continue
		}
		stats.RefreshTokens++
	}

	log.Printf("   ✅ Migrated %d refresh tokens\n", stats.RefreshTokens)
	return nil
}

func printSummary(stats *MigrationStats) {
	log.Println("\n" + strings.Repeat("=", 60))
	log.Println("✅ MIGRATION COMPLETE")
	log.Println(strings.Repeat("=", 60))
	log.Printf("📊 Accounts:       %d migrated\n", stats.Accounts)
	log.Printf("📊 Refresh Tokens: %d migrated\n", stats.RefreshTokens)

	if len(stats.Errors) > 0 {
		log.Printf("\n⚠️  %d errors occurred:\n", len(stats.Errors))
		for i, err := range stats.Errors {
			if i < 10 { // Show first 10
				log.Printf("   %d. %s\n", i+1, err)
			}
		}
		if len(stats.Errors) > 10 {
			log.Printf("   ... and %d more\n", len(stats.Errors)-10)
		}
	} else {
		log.Println("\n✅ No errors - perfect migration!")
	}
	log.Println(strings.Repeat("=", 60))
}

// Helper functions
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func maskDSN(dsn string) string {
	// Mask password in DSN for logging
	// user:pass@tcp(host:port)/dbname → user:***@tcp(host:port)/dbname
	parts := strings.Split(dsn, "@")
	if len(parts) < 2 {
		return dsn
	}
	userPass := strings.Split(parts[0], ":")
	if len(userPass) < 2 {
		return dsn
	}
	return userPass[0] + ":***@" + parts[1]
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
