// README: Entry point; loads config, wires services, starts HTTP server and the scheduler loop.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dishpatch/internal/config"
	httptransport "dishpatch/internal/http"
	"dishpatch/internal/infra"
	"dishpatch/internal/modules/group"
	"dishpatch/internal/modules/order"
	"dishpatch/internal/modules/schedule"
	"dishpatch/internal/modules/tracking"
	"dishpatch/internal/notify"
	"dishpatch/internal/payments"
	"dishpatch/internal/restaurants"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal(err)
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)
	defer redisClient.Close()

	notifier := notify.NewRedis(redisClient, "orders.events")
	directory := restaurants.NewPostgresDirectory(dbPool)
	orderStore := order.NewPostgresStore(dbPool)

	orderSvc := order.NewService(orderStore, directory, payments.Nop{}, notifier, order.Config{
		Pricing: order.PricingConfig{
			TaxRate:            cfg.Pricing.TaxRate,
			BaseDeliveryFee:    cfg.Pricing.BaseDeliveryFee,
			PerKmFeeBeyondFree: cfg.Pricing.PerKmFeeBeyondFree,
			FreeDeliveryKm:     cfg.Pricing.FreeDeliveryKm,
		},
		RatingRequestDelay: cfg.RatingRequestDelay,
	})

	pool := tracking.NewRedisPool(redisClient)
	trackingSvc := tracking.NewService(orderStore, pool, directory, notifier, tracking.Config{
		SearchRadiusKm:     cfg.Dispatch.SearchRadiusKm,
		ETAChangeThreshold: cfg.Dispatch.ETAChangeThreshold,
	})
	orderSvc.SetDriverAssigner(trackingSvc)

	groupSvc := group.NewService(orderSvc, directory, notifier, group.Config{JoinWindow: cfg.Group.JoinWindow})
	scheduleSvc := schedule.NewService(orderSvc, schedule.Config{Tick: cfg.Schedule.Tick})

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Order:    orderSvc,
		Tracking: trackingSvc,
		Group:    groupSvc,
		Schedule: scheduleSvc,
		Pool:     pool,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler.Routes()}

	go scheduleSvc.Run(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Printf("dishpatch-api listening on %s", cfg.HTTP.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
