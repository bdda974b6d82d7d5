package engines

import (
	"context"
	"database/sql"
	"os"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteTester opens a database file read-only. DatabaseName is the path.
type SQLiteTester struct{}

var _ Tester = (*SQLiteTester)(nil)

func NewSQLiteTester() *SQLiteTester { return &SQLiteTester{} }

func (s *SQLiteTester) DefaultPort() int { return 0 }

func (s *SQLiteTester) Test(ctx context.Context, creds Credentials) (*TestResult, error) {
	if _, err := os.Stat(creds.DatabaseName); err != nil {
		return failed("No se encontró el archivo de base de datos: %v", err), nil
	}
	dsn := "file:" + creds.DatabaseName + "?mode=ro"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return failed("No se pudo abrir la base de datos: %v", err), nil
	}
	defer db.Close()

	var version string
	if err := db.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&version); err != nil {
		return failed("La consulta de prueba falló: %v", err), nil
	}
	return &TestResult{Success: true, Message: "Conexión exitosa", Version: "SQLite " + version}, nil
}
