package db

import "time"

type Config struct {
	Type            string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxIdleConn     int
	MaxOpenConn     int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// Metrics registers the gorm prometheus plugin on the connection.
	Metrics bool
	// Tracing registers the otelgorm plugin on the connection.
	Tracing bool
}
