package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/adisetyo/go-storefront-orders/internal/config"
	kafkax "github.com/adisetyo/go-storefront-orders/internal/kafka"
	"github.com/adisetyo/go-storefront-orders/internal/notify"
	"github.com/adisetyo/go-storefront-orders/internal/redisx"
)

// The notifier bridges notification events to the external mail service.
// Delivery, templating and retry policy live on the other side; this side
// only dedups and forwards.
type forwarder struct {
	redis   *redis.Client
	httpc   *http.Client
	mailURL string
}

func (f *forwarder) handle(ctx context.Context, m kafkago.Message) error {
	var ev notify.Envelope
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		log.Printf("notifier: bad envelope, skipping: %v", err)
		return nil // poison message, commit and move on
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, "notifier", ev.EventID)
	if seen, _ := redisx.Exists(ctx, f.redis, dkey); seen {
		return nil
	}

	if f.mailURL != "" {
		body, _ := json.Marshal(ev)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.mailURL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := f.httpc.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("mail service http %d", resp.StatusCode)
		}
	} else {
		log.Printf("notifier: %s order=%s (no mail service configured)", ev.EventType, ev.OrderID)
	}

	_ = f.redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	return nil
}

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	f := &forwarder{
		redis:   rdb,
		httpc:   &http.Client{Timeout: 10 * time.Second},
		mailURL: cfg.MailServiceURL,
	}

	group := getenv("NOTIFIER_GROUP", "notifier-svc")
	workers := mustAtoi(os.Getenv("NOTIFIER_WORKERS"), "4")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, notify.TopicNotifications, workers)

	go func() {
		log.Printf("notifier consumer started: group=%s topic=%s workers=%d", group, notify.TopicNotifications, workers)
		if err := cons.Start(ctx, f.handle); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down notifier...")
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}
