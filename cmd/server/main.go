package main

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"forest-tile-server/internal/cache"
	"forest-tile-server/internal/config"
	"forest-tile-server/internal/database"
	"forest-tile-server/internal/geostore"
	"forest-tile-server/internal/logger"
	"forest-tile-server/internal/metrics"
	"forest-tile-server/internal/raster"
	"forest-tile-server/internal/registry"
	"forest-tile-server/internal/storage"
	"forest-tile-server/internal/tiles"
	"forest-tile-server/internal/vector"
)

func main() {
	// Load configuration
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)

	// Initialize database
	pool := database.NewPool(cfg.DatabaseURL(), cfg.QueryTimeout())
	defer pool.Close()

	// Initialize Redis
	redisClient := cache.NewRedisClient(cfg.RedisAddr())
	defer redisClient.Close()

	// Initialize object storage
	minioClient, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3Secure,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("cannot connect to object storage")
	}
	api := storage.MinioAPI{Client: minioClient}

	m := metrics.New()
	dataLakeBucket := storage.NewBucket(api, cfg.DataLakeBucket, log, nil)
	originBucket := storage.NewBucket(api, cfg.TileCacheBucket, log, m.StoreFailures)

	// Domain services
	reg := registry.New(&registry.SQLStore{DB: pool})
	engine := vector.NewEngine(pool)
	datalake := raster.NewDataLake(dataLakeBucket)

	var upstream *raster.TileCache
	if cfg.TileCacheURL != "" {
		upstream = raster.NewTileCache(cfg.TileCacheURL)
	}

	var gs geostore.Fetcher
	if cfg.GeostoreURL != "" {
		gs = geostore.NewClient(cfg.GeostoreURL)
	}

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = tiles.ErrorHandler(log)

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))
	e.Use(tiles.NoCacheRoot())
	e.Use(tiles.RedirectLatest(reg))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":   "ok",
			"database": "connected",
			"redis":    "connected",
		})
	})
	e.GET("/metrics", echo.WrapHandler(m.Handler()))

	// Tile endpoints
	handler := tiles.NewHandler(cfg, log, engine, reg, gs, datalake, upstream,
		originBucket, redisClient, m)
	handler.Register(e)

	// Start server
	addr := fmt.Sprintf(":%s", cfg.BackendPort)
	log.Info().Str("addr", addr).Msg("tile server starting")
	e.Logger.Fatal(e.Start(addr))
}
