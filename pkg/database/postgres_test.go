package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/ems-program-api/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{
		Host:     "db",
		Port:     5433,
		User:     "ems",
		Password: "secret",
		Name:     "ems_program",
		SSLMode:  "require",
	})
	assert.Equal(t, "host=db port=5433 user=ems password=secret dbname=ems_program sslmode=require", dsn)
}
