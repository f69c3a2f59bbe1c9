package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/adisetyo/go-storefront-orders/internal/cart"
	"github.com/adisetyo/go-storefront-orders/internal/catalog"
	"github.com/adisetyo/go-storefront-orders/internal/config"
	"github.com/adisetyo/go-storefront-orders/internal/httpx"
	"github.com/adisetyo/go-storefront-orders/internal/invoice"
	kafkax "github.com/adisetyo/go-storefront-orders/internal/kafka"
	"github.com/adisetyo/go-storefront-orders/internal/metrics"
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
	dispatcher := &notify.Dispatcher{Producer: prod, Service: cfg.ServiceName}

	gateway := payment.NewClient(cfg.GatewayBaseURL, cfg.GatewayAccessToken)

	catalogRepo := &catalog.Repo{DB: db}
	cartRepo := &cart.Repo{DB: db}
	cartSvc := &cart.Service{Store: cartRepo, Catalog: catalogRepo, MaxLineQty: cfg.MaxLineQty}

	orderRepo := &orders.Repo{DB: db}
	orderSvc := &orders.Service{
		Store:         orderRepo,
		Gateway:       gateway,
		Notify:        dispatcher,
		PublicBaseURL: cfg.PublicBaseURL,
		Shipping:      orders.ShippingPolicy{Cents: cfg.ShippingCents, FreeOverCents: cfg.FreeShippingCents},
	}

	var invoicer recon.Invoicer
	if cfg.InvoiceBaseURL != "" {
		invoicer = invoice.NewClient(cfg.InvoiceBaseURL, cfg.InvoiceAPIKey)
	}
	engine := &recon.Engine{
		Store:    orderRepo,
		Gateway:  gateway,
		Notify:   dispatcher,
		Invoicer: invoicer,
		Cache:    &redisx.Cache{R: rdb},
	}

	m := metrics.NewServerMetrics("api")
	router := httpx.NewRouter()
	router.Use(httpx.MetricsMiddleware(m))
	router.Handle("/metrics", metrics.Handler())

	sh := &httpx.StoreHandler{
		Carts:     cartSvc,
		CartStore: cartRepo,
		Orders:    orderSvc,
		OrderRepo: orderRepo,
		Catalog:   catalogRepo,
		Redis:     rdb,
	}
	sh.Register(router)
	wh := &httpx.WebhookHandler{Engine: engine, Metrics: m}
	wh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()
	cancel()
	prod.WaitClosed()
}
