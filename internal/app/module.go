package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/fatflowers/cashier-stripe/internal/app/api/server"
	"github.com/fatflowers/cashier-stripe/internal/app/service/charge"
	"github.com/fatflowers/cashier-stripe/internal/app/service/checkout"
	"github.com/fatflowers/cashier-stripe/internal/app/service/claim"
	notificationlog "github.com/fatflowers/cashier-stripe/internal/app/service/notification_log"
	"github.com/fatflowers/cashier-stripe/internal/app/service/order"
	"github.com/fatflowers/cashier-stripe/internal/app/service/paymentmethod"
	"github.com/fatflowers/cashier-stripe/internal/app/service/session"
	"github.com/fatflowers/cashier-stripe/internal/app/service/statistics"
	"github.com/fatflowers/cashier-stripe/internal/app/service/webhook"
	"github.com/fatflowers/cashier-stripe/internal/platform/db"
	"github.com/fatflowers/cashier-stripe/internal/platform/stripe"
	"github.com/fatflowers/cashier-stripe/pkg/config"
	"github.com/fatflowers/cashier-stripe/pkg/logger"
	"github.com/fatflowers/cashier-stripe/pkg/metrics"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 40 * time.Second
)

// ServiceModule is everything below the HTTP layer, shared by the API and cashierctl.
var ServiceModule = fx.Options(
	logger.Module,
	config.Module,
	metrics.Module,
	stripe.Module,
	paymentmethod.Module,
	order.Module,
	session.Module,
	claim.Module,
	charge.Module,
	checkout.Module,
	notificationlog.Module,
	webhook.Module,
	statistics.Module,
)

var Module = fx.Options(
	ServiceModule,
	db.Module,
	server.Module,
)
