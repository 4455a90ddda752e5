package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-service/apperrors"
	"storefront-service/cache"
	"storefront-service/controllers"
	"storefront-service/database"
	"storefront-service/events"
	applogger "storefront-service/logger"
	"storefront-service/middleware"
	awspkg "storefront-service/pkg/aws"
	"storefront-service/repository"
	"storefront-service/routes"
	"storefront-service/seed"
	"storefront-service/services"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const serviceName = "storefront-service"

type store struct {
	products repository.ProductRepository
	users    repository.UserRepository
	close    func()
}

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	var awsCfg aws.Config
	if cfg.NeedsAWS() {
		awsCfg, err = awspkg.LoadAWSConfig(ctx)
		if err != nil {
			log.Fatalf("Failed to load AWS config: %v", err)
		}
	}

	var cwLogs *awspkg.CloudWatchLogsClient
	if cfg.CloudWatchLogs {
		cwLogs, err = awspkg.NewCloudWatchLogsClient(ctx, awsCfg, cfg.CloudWatchLogGroup, serviceName)
		if err != nil {
			log.Printf("CloudWatch logs unavailable, logging to stdout only: %v", err)
			cwLogs = nil
		}
	}

	var logger *zap.Logger
	if cwLogs != nil {
		logger, err = applogger.New(cfg.Env, cwLogs)
	} else {
		logger, err = applogger.New(cfg.Env, nil)
	}
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck
	zap.ReplaceGlobals(logger)

	if cfg.UseSecrets {
		cfg.ApplySecrets(ctx, awspkg.NewSecretsClient(awsCfg))
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	st, err := openStore(ctx, cfg, awsCfg, logger)
	if err != nil {
		logger.Fatal("Failed to open product store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer st.close()

	policy := services.RestockPolicy{Threshold: cfg.RestockThreshold, Ratio: cfg.RestockRatio}

	var metricsClient *awspkg.MetricsClient
	var metrics services.MetricsRecorder
	if cfg.MetricsEnabled {
		metricsClient = awspkg.NewMetricsClient(awsCfg, cfg.MetricsNamespace, true)
		metrics = metricsClient
	}

	var productCache services.ProductCache
	if cfg.CacheEnabled {
		redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("Redis unavailable, product cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			productCache = cache.NewProductCache(redisClient, cfg.CacheTTL, logger)
			logger.Info("Product cache enabled", zap.Duration("ttl", cfg.CacheTTL))
		}
	}

	publisher, err := openPublisher(ctx, cfg, awsCfg, logger)
	if err != nil {
		logger.Fatal("Failed to set up event publisher", zap.String("driver", cfg.EventsDriver), zap.Error(err))
	}
	if publisher != nil {
		defer publisher.Close() //nolint:errcheck
	}

	verifier, err := openVerifier(ctx, cfg, st, logger)
	if err != nil {
		logger.Fatal("Failed to set up credential verifier", zap.Error(err))
	}

	tokens, err := services.NewTokenService(cfg.JWTSecret, cfg.SessionTTL)
	if err != nil {
		logger.Fatal("Failed to set up token service", zap.Error(err))
	}

	if cfg.SeedData {
		if _, err := seed.Products(ctx, st.products, policy.NeedsRestock, logger); err != nil {
			logger.Fatal("Failed to seed products", zap.Error(err))
		}
	}

	var presigner controllers.ImagePresigner
	if cfg.S3Bucket != "" {
		presigner = awspkg.NewImagePresigner(awsCfg, cfg.S3Bucket, cfg.S3Prefix, cfg.PublicBaseURL)
	}

	inventory := services.NewInventoryService(st.products, policy, publisher, productCache, metrics, logger)
	auth := services.NewAuthService(verifier, tokens, metrics, logger)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Metrics(metricsClient, serviceName))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(apperrors.ErrorMiddleware(logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": serviceName})
	})

	loginLimiter := middleware.NewRateLimiter(rate.Every(time.Minute/time.Duration(cfg.LoginRateLimit)), cfg.LoginRateLimit, 10*time.Minute)
	defer loginLimiter.Stop()

	routes.RegisterRoutes(r, routes.Handlers{
		Products: controllers.NewProductController(inventory),
		Restock:  controllers.NewRestockController(inventory),
		Auth:     controllers.NewAuthController(auth),
		Uploads:  controllers.NewUploadController(presigner),
	}, middleware.RequireAdmin(tokens, cfg.AuthRequired), loginLimiter.Handler())

	if !cfg.AuthRequired {
		logger.Warn("Admin authentication is disabled")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	logger.Info("Storefront service started",
		zap.String("port", cfg.Port),
		zap.String("store", cfg.StoreDriver),
		zap.String("events", cfg.EventsDriver),
	)
	<-quit
	logger.Info("Shutting down storefront service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	logger.Info("Server exited cleanly")
}

func openStore(ctx context.Context, cfg *Config, awsCfg aws.Config, logger *zap.Logger) (*store, error) {
	switch cfg.StoreDriver {
	case "postgres":
		db, err := database.ConnectPostgres(cfg.Postgres, logger)
		if err != nil {
			return nil, err
		}
		return &store{
			products: repository.NewGormProductRepository(db),
			users:    repository.NewGormUserRepository(db),
			close: func() {
				if err := database.ClosePostgres(db); err != nil {
					logger.Warn("Failed to close postgres", zap.Error(err))
				}
			},
		}, nil

	case "dynamodb":
		client := database.NewDynamoClient(awsCfg)
		if cfg.DDBCreate {
			if err := database.EnsureProductTable(ctx, client, cfg.DDBTable); err != nil {
				return nil, err
			}
		}
		logger.Info("Using DynamoDB product store", zap.String("table", cfg.DDBTable))
		return &store{products: repository.NewDynamoProductRepository(client, cfg.DDBTable), close: func() {}}, nil

	case "mongo":
		client, db, err := database.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		repo, err := repository.NewMongoProductRepository(ctx, db)
		if err != nil {
			_ = database.DisconnectMongo(ctx, client)
			return nil, err
		}
		logger.Info("Using MongoDB product store", zap.String("database", cfg.MongoDB))
		return &store{
			products: repo,
			close: func() {
				dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := database.DisconnectMongo(dctx, client); err != nil {
					logger.Warn("Failed to disconnect mongo", zap.Error(err))
				}
			},
		}, nil

	default:
		logger.Warn("Using in-memory product store; data is lost on restart")
		return &store{products: repository.NewMemoryProductRepository(), close: func() {}}, nil
	}
}

// openPublisher returns a nil publisher for EVENTS_DRIVER=none.
func openPublisher(ctx context.Context, cfg *Config, awsCfg aws.Config, logger *zap.Logger) (events.Publisher, error) {
	switch cfg.EventsDriver {
	case "sns":
		return events.NewSNSPublisher(awspkg.NewSNSClient(awsCfg), cfg.SNSTopicArn), nil
	case "sqs":
		queueURL := cfg.SQSQueueURL
		if queueURL == "" {
			url, err := awspkg.ResolveQueueURL(ctx, sqs.NewFromConfig(awsCfg), cfg.SQSQueueName)
			if err != nil {
				return nil, err
			}
			queueURL = url
		}
		return events.NewSQSPublisher(awspkg.NewSQSProducer(awsCfg, queueURL)), nil
	case "kafka":
		return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger), nil
	case "log":
		return events.NewLogPublisher(logger), nil
	default:
		return nil, nil
	}
}

func openVerifier(ctx context.Context, cfg *Config, st *store, logger *zap.Logger) (services.CredentialVerifier, error) {
	if cfg.AuthVerifier != "db" {
		return services.NewStaticVerifier(cfg.AdminUsername, cfg.AdminPassword)
	}
	if st.users == nil {
		return nil, errors.New("user store is not available for this product store")
	}
	if cfg.SeedData && cfg.AdminPassword != "" {
		if err := seed.AdminUser(ctx, st.users, cfg.AdminUsername, cfg.AdminPassword, logger); err != nil {
			return nil, err
		}
	}
	return services.NewUserStoreVerifier(st.users), nil
}
