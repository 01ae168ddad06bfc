package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/vogiaan1904/consultroom/config"
	grpcSvc "github.com/vogiaan1904/consultroom/internal/delivery/grpc"
	httpDelivery "github.com/vogiaan1904/consultroom/internal/delivery/http"
	"github.com/vogiaan1904/consultroom/internal/delivery/kafka/consumer"
	"github.com/vogiaan1904/consultroom/internal/delivery/kafka/producer"
	"github.com/vogiaan1904/consultroom/internal/models"
	"github.com/vogiaan1904/consultroom/internal/service"
	pkgKafka "github.com/vogiaan1904/consultroom/pkg/kafka"
	pkgLog "github.com/vogiaan1904/consultroom/pkg/logger"
	"golang.org/x/sync/errgroup"
)

const publisherBuffer = 1024

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	l := pkgLog.InitializeZapLogger(pkgLog.ZapConfig{
		Level:    cfg.Log.Level,
		Mode:     cfg.Log.Mode,
		Encoding: cfg.Log.Encoding,
	})

	st, err := openStores(ctx, cfg, l)
	if err != nil {
		l.Fatalf(ctx, "Failed to open store: %v", err)
	}
	defer st.close()

	// Kafka producer and consumer group
	var (
		prod   = producer.NewNopProducer(l)
		consGr sarama.ConsumerGroup
	)
	if cfg.Kafka.Enabled {
		syncProd, err := pkgKafka.NewProducer(pkgKafka.ProducerConfig{
			Brokers:      cfg.Kafka.Brokers,
			RetryMax:     cfg.Kafka.ProducerRetryMax,
			RequiredAcks: cfg.Kafka.ProducerRequiredAcks,
		})
		if err != nil {
			l.Fatalf(ctx, "Failed to initialize Kafka producer: %v", err)
		}
		prod = producer.NewProducer(syncProd, l)

		consGr, err = pkgKafka.NewConsumer(pkgKafka.ConsumerConfig{
			Brokers: cfg.Kafka.Brokers,
			GroupID: cfg.Kafka.ConsumerGroupID,
		})
		if err != nil {
			l.Fatalf(ctx, "Failed to initialize Kafka consumer: %v", err)
		}
	} else {
		l.Warn(ctx, "Kafka disabled; domain events are not published")
	}

	pub := service.NewAsyncPublisher(prod, l, publisherBuffer)
	bc := service.NewBroadcaster(l)

	// Initialize services
	ledger := service.NewLedgerService(st.balances, pub, cfg.Billing.TransactionHistoryLimit, l)
	registry := service.NewRegistryService(st.consultants, cfg.Matching.DefaultCapacity, l)
	sessions := service.NewSessionManager(st.sessions, registry, ledger, pub, bc, cfg.Billing, cfg.JWT, l)
	matching := service.NewMatchingService(registry, ledger, sessions, st.queues, pub, bc,
		cfg.Matching, models.Money(cfg.Billing.MinStartBalanceCents), l)
	sessions.SetCapacityFreedHandler(matching.OnCapacityFreed)

	if n, err := sessions.RecoverOrphans(ctx); err != nil {
		l.Errorf(ctx, "Failed to recover orphaned sessions: %v", err)
	} else if n > 0 {
		l.Warnf(ctx, "Closed %d sessions left active by a previous run", n)
	}

	processor := service.NewQueueProcessor(matching, sessions, l, cfg.Matching)
	if err := processor.Start(ctx); err != nil {
		l.Fatalf(ctx, "Failed to start queue processor: %v", err)
	}

	var cons *consumer.Consumer
	if consGr != nil {
		cons = consumer.NewConsumer(consGr, registry, matching, sessions, ledger, l)
		if err := cons.Start(ctx); err != nil {
			l.Fatalf(ctx, "Failed to start Kafka consumer: %v", err)
		}
	}

	// gRPC server
	gRpcSrv, healthSrv := grpcSvc.NewServer(grpcSvc.NewGrpcService(matching, sessions, ledger, bc, l))
	lnr, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRpcPort))
	if err != nil {
		l.Fatalf(ctx, "gRPC server failed to listen: %v", err)
	}

	// HTTP server
	h := httpDelivery.NewHTTPHandler(httpDelivery.Services{
		Matching:    matching,
		Sessions:    sessions,
		Ledger:      ledger,
		Registry:    registry,
		Broadcaster: bc,
		Processor:   processor,
	}, cfg.CORS.AllowedOrigins, l)
	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      httpDelivery.NewRouter(h, cfg.CORS.AllowedOrigins),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		l.Infof(ctx, "gRPC server is listening on port: %d", cfg.Server.GRpcPort)
		if err := gRpcSrv.Serve(lnr); err != nil {
			return fmt.Errorf("serve gRPC: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		l.Infof(ctx, "HTTP server is listening on port: %d", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve HTTP: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		l.Info(ctx, "Server shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		healthSrv.Shutdown()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			l.Errorf(ctx, "HTTP server shutdown: %v", err)
		}

		stopped := make(chan struct{})
		go func() {
			gRpcSrv.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			gRpcSrv.Stop()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		l.Errorf(ctx, "Server error: %v", err)
	}

	shutdown(cfg.Server.ShutdownTimeout, l, processor, cons, matching, sessions, pub, prod)
	l.Info(context.Background(), "Server exited")
}

// shutdown stops intake before live sessions so nothing is admitted while sessions are being closed.
func shutdown(
	timeout time.Duration,
	l pkgLog.Logger,
	processor service.QueueProcessor,
	cons *consumer.Consumer,
	matching service.MatchingService,
	sessions service.SessionManager,
	pub *service.AsyncPublisher,
	prod producer.Producer,
) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := processor.Stop(); err != nil {
		l.Errorf(ctx, "Queue processor stop: %v", err)
	}

	if cons != nil {
		if err := cons.Close(); err != nil {
			l.Errorf(ctx, "Kafka consumer close: %v", err)
		}
	}

	matching.Close()

	if err := sessions.Close(ctx); err != nil {
		l.Errorf(ctx, "Session manager close: %v", err)
	}

	pub.Close()

	if err := prod.Close(); err != nil {
		l.Errorf(ctx, "Kafka producer close: %v", err)
	}
}
