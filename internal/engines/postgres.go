package engines

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// PostgresTester probes PostgreSQL with pgx.
type PostgresTester struct{}

var _ Tester = (*PostgresTester)(nil)

func NewPostgresTester() *PostgresTester { return &PostgresTester{} }

func (p *PostgresTester) DefaultPort() int { return 5432 }

func (p *PostgresTester) ConnConfig(creds Credentials) (*pgx.ConnConfig, error) {
	sslMode := creds.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s sslmode=%s",
		creds.Host, creds.Port, creds.DatabaseName, creds.Username, sslMode)
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	// Set after parsing so special characters never need escaping.
	cfg.Password = creds.Password
	return cfg, nil
}

func (p *PostgresTester) Test(ctx context.Context, creds Credentials) (*TestResult, error) {
	cfg, err := p.ConnConfig(creds)
	if err != nil {
		return failed("Configuración inválida: %v", err), nil
	}
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return failed("No se pudo conectar a PostgreSQL: %v", err), nil
	}
	defer conn.Close(context.Background())

	var version string
	if err := conn.QueryRow(ctx, "SELECT version()").Scan(&version); err != nil {
		return failed("Conectado, pero la consulta de prueba falló: %v", err), nil
	}
	return &TestResult{Success: true, Message: "Conexión exitosa", Version: version}, nil
}
