package migration

import (
	"strings"

	"github.com/smallbiznis/subtrack/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(Migrate),
)

// Migrate brings the schema up to date. Postgres runs the embedded SQL
// migrations; the other dialects are built from the gorm models.
func Migrate(conn *gorm.DB, cfg db.Config, log *zap.Logger) error {
	if strings.EqualFold(strings.TrimSpace(cfg.Type), db.TypePostgres) {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		log.Info("applying embedded migrations")
		return RunMigrations(sqlDB)
	}
	log.Info("applying schema with auto migrate", zap.String("type", cfg.Type))
	return AutoMigrate(conn)
}
