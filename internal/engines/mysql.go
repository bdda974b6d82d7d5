package engines

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"

	"github.com/go-sql-driver/mysql"
)

// MySQLTester probes MySQL and MariaDB with go-sql-driver/mysql.
type MySQLTester struct{}

var _ Tester = (*MySQLTester)(nil)

func NewMySQLTester() *MySQLTester { return &MySQLTester{} }

func (m *MySQLTester) DefaultPort() int { return 3306 }

// DSN builds the driver DSN; the password is escaped by the driver config.
func (m *MySQLTester) DSN(creds Credentials) string {
	cfg := mysql.NewConfig()
	cfg.User = creds.Username
	cfg.Passwd = creds.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(creds.Host, strconv.Itoa(creds.Port))
	cfg.DBName = creds.DatabaseName
	cfg.ParseTime = true
	if creds.SSLMode == "require" {
		cfg.TLSConfig = "true"
	}
	return cfg.FormatDSN()
}

func (m *MySQLTester) Test(ctx context.Context, creds Credentials) (*TestResult, error) {
	db, err := sql.Open("mysql", m.DSN(creds))
	if err != nil {
		return failed("Configuración inválida: %v", err), nil
	}
	defer db.Close()

	var version string
	if err := db.QueryRowContext(ctx, "SELECT VERSION()").Scan(&version); err != nil {
		return failed("No se pudo conectar a MySQL: %v", err), nil
	}
	return &TestResult{Success: true, Message: "Conexión exitosa", Version: fmt.Sprintf("MySQL %s", version)}, nil
}
