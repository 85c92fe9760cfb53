package notification

import (
	"github.com/smallbiznis/subtrack/internal/config"
	notificationdomain "github.com/smallbiznis/subtrack/internal/notification/domain"
	"github.com/smallbiznis/subtrack/internal/notification/repository"
	"github.com/smallbiznis/subtrack/internal/notification/service"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(provideComposer),
)

func provideComposer(cfg config.Config) notificationdomain.Composer {
	return notificationdomain.Composer{
		Currency:      cfg.Currency,
		MinorExponent: cfg.CurrencyExponent,
	}
}
