package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/totegamma/concrnt-parallel/internal/config"
	"github.com/totegamma/concrnt-parallel/internal/infra/database"
	"github.com/totegamma/concrnt-parallel/internal/infra/gateway"
	"github.com/totegamma/concrnt-parallel/internal/infra/repository"
	"github.com/totegamma/concrnt-parallel/internal/present/rest"
	restmw "github.com/totegamma/concrnt-parallel/internal/present/rest/middleware"
	"github.com/totegamma/concrnt-parallel/internal/service"
	"github.com/totegamma/concrnt-parallel/internal/usecase"
)

const serviceName = "concrnt-parallel"

var configPath string

func main() {
	root := &cobra.Command{
		Use:          "parallel",
		Short:        "Index and query concrnt archives",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/concrnt/config/config.yaml", "path to the config file")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Serve the index over http",
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "archives",
			Short: "List the archives in scope",
			RunE:  runArchives,
		},
		&cobra.Command{
			Use:   "prune",
			Short: "Remove archives the owner no longer follows",
			RunE:  runPrune,
		},
		&cobra.Command{
			Use:   "destroy",
			Short: "Delete every archive and record of the index",
			RunE:  runDestroy,
		},
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func openStore(conf config.Config) (usecase.Store, error) {
	switch conf.Server.Store {
	case config.StorePostgres:
		db, err := database.NewPostgres(conf.Server.PostgresDsn)
		if err != nil {
			return nil, fmt.Errorf("failed to connect database: %w", err)
		}
		if err := database.MigratePostgres(db); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		return repository.NewPostgresStore(db), nil
	default:
		db, err := database.NewBadger(conf.Server.BadgerPath)
		if err != nil {
			return nil, err
		}
		return repository.NewBadgerStore(db), nil
	}
}

func openIndex(ctx context.Context, conf config.Config, deps usecase.Deps) (*usecase.Index, error) {
	store, err := openStore(conf)
	if err != nil {
		return nil, err
	}
	deps.Store = store
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	idx, err := usecase.Open(ctx, deps, usecase.Options{
		Owner:   conf.NodeInfo.CCID,
		Variant: conf.NodeInfo.Variant,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	return idx, nil
}

func setupTraceProvider(ctx context.Context, endpoint string) (func(context.Context), error) {
	exporter, err := otlptracehttp.New(
		ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
		)),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown trace provider", slog.String("error", err.Error()))
		}
	}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conf, err := config.Load(configPath)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	slog.Info("Concrnt Parallel starting",
		slog.String("fqdn", conf.NodeInfo.FQDN),
		slog.String("ccid", conf.NodeInfo.CCID),
		slog.String("variant", string(conf.NodeInfo.Variant)),
		slog.String("store", conf.Server.Store),
	)

	if conf.Server.EnableTrace {
		shutdown, err := setupTraceProvider(ctx, conf.Server.TraceEndpoint)
		if err != nil {
			return fmt.Errorf("failed to setup trace provider: %w", err)
		}
		defer shutdown(context.Background())
	}

	var deps usecase.Deps
	var realtime rest.Realtime
	if conf.Server.RedisAddr != "" {
		rdb := database.NewRedis(conf.Server.RedisAddr, "", conf.Server.RedisDB)
		if err := database.PingRedis(ctx, rdb, 5*time.Second); err != nil {
			return fmt.Errorf("failed to connect redis: %w", err)
		}
		defer rdb.Close()

		signalService := service.NewSignalService(rdb)
		deps.Publisher = signalService
		realtime = signalService
	}

	if conf.Server.MinioEndpoint != "" {
		client, err := database.NewMinio(
			conf.Server.MinioEndpoint,
			conf.Server.MinioAccessKey,
			conf.Server.MinioSecretKey,
			conf.Server.MinioUseSSL,
		)
		if err != nil {
			return err
		}
		if err := database.EnsureBucket(ctx, client, conf.Server.MinioBucket); err != nil {
			return err
		}
		deps.Files = gateway.NewArchiveFiles(client, conf.Server.MinioBucket)
	}

	idx, err := openIndex(ctx, conf, deps)
	if err != nil {
		return err
	}
	defer func() {
		if err := idx.Close(context.Background(), false); err != nil {
			slog.Error("failed to close index", slog.String("error", err.Error()))
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	if conf.Server.EnableTrace {
		e.Use(otelecho.Middleware(serviceName))
	}
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(restmw.RequestID)
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.InfoContext(c.Request().Context(), "request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("module", "rest"),
			)
			return nil
		},
	}))

	auth := restmw.NewAuthMiddleware(service.NewAuthService(conf.Domain()))
	var limits []echo.MiddlewareFunc
	if conf.Server.RateLimit > 0 {
		limiter := restmw.NewRateLimiter(conf.Server.RateLimit, conf.Server.RateBurst)
		limits = append(limits, limiter.Middleware)
	}

	handler := rest.NewHandler(conf.Domain(), idx, realtime)
	handler.RegisterRoutes(e, auth, limits...)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	go func() {
		if err := e.Start(conf.Server.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server stopped", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func runArchives(cmd *cobra.Command, args []string) error {
	conf, err := config.Load(configPath)
	if err != nil {
		return err
	}

	idx, err := openIndex(cmd.Context(), conf, usecase.Deps{})
	if err != nil {
		return err
	}
	defer idx.Close(context.Background(), false)

	archives, err := idx.Scope.ListArchives(cmd.Context())
	if err != nil {
		return err
	}
	for _, archive := range archives {
		fmt.Fprintln(cmd.OutOrStdout(), archive)
	}
	return nil
}

func runPrune(cmd *cobra.Command, args []string) error {
	conf, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if conf.NodeInfo.CCID == "" {
		return fmt.Errorf("prune needs an owner: set nodeInfo.privatekey")
	}

	idx, err := openIndex(cmd.Context(), conf, usecase.Deps{})
	if err != nil {
		return err
	}
	defer idx.Close(context.Background(), false)

	idx.Wait()
	return idx.Scope.PruneUnfollowedArchives(cmd.Context(), idx.Owner())
}

func runDestroy(cmd *cobra.Command, args []string) error {
	conf, err := config.Load(configPath)
	if err != nil {
		return err
	}
	conf.NodeInfo.CCID = ""

	idx, err := openIndex(cmd.Context(), conf, usecase.Deps{})
	if err != nil {
		return err
	}
	return idx.Close(cmd.Context(), true)
}
