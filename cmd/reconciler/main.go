package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/adisetyo/go-storefront-orders/internal/config"
	"github.com/adisetyo/go-storefront-orders/internal/invoice"
	kafkax "github.com/adisetyo/go-storefront-orders/internal/kafka"
	"github.com/adisetyo/go-storefront-orders/internal/notify"
	"github.com/adisetyo/go-storefront-orders/internal/orders"
	"github.com/adisetyo/go-storefront-orders/internal/payment"
	"github.com/adisetyo/go-storefront-orders/internal/postgres"
	"github.com/adisetyo/go-storefront-orders/internal/recon"
	"github.com/adisetyo/go-storefront-orders/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PGMaxConns)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, notify.TopicNotifications, 1024)
	prod.Start(ctx)

	var invoicer recon.Invoicer
	if cfg.InvoiceBaseURL != "" {
		invoicer = invoice.NewClient(cfg.InvoiceBaseURL, cfg.InvoiceAPIKey)
	}

	engine := &recon.Engine{
		Store:    &orders.Repo{DB: db},
		Gateway:  payment.NewClient(cfg.GatewayBaseURL, cfg.GatewayAccessToken),
		Notify:   &notify.Dispatcher{Producer: prod, Service: cfg.ServiceName + "-reconciler"},
		Invoicer: invoicer,
		Cache:    &redisx.Cache{R: rdb},
	}
	worker := &recon.Worker{
		Engine:   engine,
		Interval: cfg.ReconcileInterval,
		Cutoff:   cfg.ReconcileCutoff,
	}
	go worker.Run(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down reconciler...")
	cancel()
	prod.Close()
	prod.WaitClosed()
}
