// cmd/container.go
//
// Composition root. Owns infrastructure (DB, Redis, file storage, mail, jobs)
// and composes the bounded-context containers.
package main

import (
	"context"
	"time"

	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/Abraxas-365/tenantry/pkg/billing/billingcontainer"
	"github.com/Abraxas-365/tenantry/pkg/config"
	"github.com/Abraxas-365/tenantry/pkg/database"
	"github.com/Abraxas-365/tenantry/pkg/fsx"
	"github.com/Abraxas-365/tenantry/pkg/fsx/fsxlocal"
	"github.com/Abraxas-365/tenantry/pkg/fsx/fsxs3"
	"github.com/Abraxas-365/tenantry/pkg/iam/iamcontainer"
	"github.com/Abraxas-365/tenantry/pkg/jobx"
	"github.com/Abraxas-365/tenantry/pkg/jobx/jobxredis"
	"github.com/Abraxas-365/tenantry/pkg/logx"
	"github.com/Abraxas-365/tenantry/pkg/notifx"
	"github.com/Abraxas-365/tenantry/pkg/notifx/notifxconsole"
	"github.com/Abraxas-365/tenantry/pkg/notifx/notifxses"
)

// Container holds shared infrastructure and the composed module containers.
type Container struct {
	Config *config.Config

	// Infrastructure (shared across all modules)
	DB         *sqlx.DB
	Redis      *redis.Client
	FileSystem fsx.FileSystem
	Mailer     *notifx.Client
	Jobs       *jobx.Client

	// Bounded-context containers
	IAM     *iamcontainer.Container
	Billing *billingcontainer.Container
}

func NewContainer(cfg *config.Config) *Container {
	logx.Info("🔧 Initializing application container...")

	c := &Container{Config: cfg}

	c.initInfrastructure()
	c.initModules()

	logx.Info("✅ Application container initialized")
	return c
}

// ---------------------------------------------------------------------------
// Infrastructure
// ---------------------------------------------------------------------------

func (c *Container) initInfrastructure() {
	logx.Info("🏗️ Initializing infrastructure...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 1. Database
	db, err := database.Connect(ctx, c.Config.Database)
	if err != nil {
		logx.Fatalf("Failed to connect to database: %v", err)
	}
	c.DB = db

	// 2. Redis
	c.Redis = redis.NewClient(&redis.Options{
		Addr:     c.Config.Redis.Address(),
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
	})
	if _, err := c.Redis.Ping(ctx).Result(); err != nil {
		logx.Fatalf("Failed to connect to Redis: %v (Redis is required)", err)
	}
	logx.Info("  ✅ Redis connected")

	// 3. File storage
	c.initFileStorage(ctx)

	// 4. Email
	c.initMailer(ctx)

	// 5. Background jobs
	c.initJobs()

	logx.Info("✅ Infrastructure initialized")
}

func (c *Container) initFileStorage(ctx context.Context) {
	storage := c.Config.Storage

	switch storage.Mode {
	case "s3":
		awsCfg, err := awsConfig.LoadDefaultConfig(ctx, awsConfig.WithRegion(storage.Region))
		if err != nil {
			logx.Fatalf("Unable to load AWS SDK config: %v", err)
		}
		c.FileSystem = fsxs3.NewS3FileSystem(s3.NewFromConfig(awsCfg), storage.Bucket, "")
		logx.Infof("  ✅ S3 file system configured (bucket: %s, region: %s)", storage.Bucket, storage.Region)

	case "local":
		localFS, err := fsxlocal.NewLocalFileSystem(storage.UploadDir)
		if err != nil {
			logx.Fatalf("Failed to initialize local file system: %v", err)
		}
		c.FileSystem = localFS
		logx.Infof("  ✅ Local file system configured (path: %s)", localFS.GetBasePath())

	default:
		logx.Fatalf("Unknown STORAGE_MODE: %s (use 'local' or 's3')", storage.Mode)
	}
}

func (c *Container) initMailer(ctx context.Context) {
	n := c.Config.Notifx

	var provider notifx.EmailSender
	switch n.Provider {
	case "ses":
		awsCfg, err := awsConfig.LoadDefaultConfig(ctx, awsConfig.WithRegion(n.AWSRegion))
		if err != nil {
			logx.Fatalf("Unable to load AWS SDK config for SES: %v", err)
		}
		provider = notifxses.NewSESProvider(ses.NewFromConfig(awsCfg), n.FromAddress)
		logx.Infof("  ✅ SES email provider configured (region: %s)", n.AWSRegion)
	default:
		provider = notifxconsole.NewConsoleProvider()
		logx.Warn("  ⚠️  Console email provider in use, messages are only logged")
	}
	c.Mailer = notifx.NewClient(provider, n.FromAddress, n.FromName)
}

func (c *Container) initJobs() {
	j := c.Config.Jobx
	if !j.Enabled {
		logx.Warn("  ⚠️  Background jobs disabled, free plans will not activate")
		return
	}
	c.Jobs = jobx.NewClient(
		jobxredis.NewRedisQueue(c.Redis),
		jobx.WithQueues(j.Queues...),
		jobx.WithConcurrency(j.Concurrency),
		jobx.WithPollInterval(j.PollInterval),
		jobx.WithShutdownTimeout(j.ShutdownTimeout),
		jobx.WithDequeueTimeout(j.DequeueTimeout),
		jobx.WithDefaultRetryDelay(j.DefaultRetryDelay),
		jobx.WithMaxRetries(j.MaxRetries),
	)
	logx.Infof("  ✅ Job client configured (queues: %v)", j.Queues)
}

// ---------------------------------------------------------------------------
// Module composition
// ---------------------------------------------------------------------------

func (c *Container) initModules() {
	logx.Info("📦 Initializing modules...")

	c.IAM = iamcontainer.New(iamcontainer.Deps{
		DB:         c.DB,
		Redis:      c.Redis,
		FileSystem: c.FileSystem,
		Mailer:     c.Mailer,
		Cfg:        c.Config,
	})

	c.Billing = billingcontainer.New(billingcontainer.Deps{
		DB:         c.DB,
		Redis:      c.Redis,
		FileSystem: c.FileSystem,
		Mailer:     c.Mailer,
		Jobs:       c.Jobs,
		Cfg:        c.Config,
		Tokens:     c.IAM.TenantService,
		Auth:       c.IAM.AuthMiddleware,
	})
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func (c *Container) StartBackgroundServices(ctx context.Context) {
	logx.Info("🔄 Starting background services...")

	c.IAM.StartBackgroundServices(ctx)

	if c.Jobs != nil {
		go func() {
			if err := c.Jobs.Start(ctx); err != nil {
				logx.WithError(err).Error("Job workers stopped")
			}
		}()
		logx.Info("  ✅ Job workers started")
	}
}

func (c *Container) Cleanup() {
	logx.Info("🧹 Cleaning up resources...")

	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			logx.Errorf("Error closing database: %v", err)
		} else {
			logx.Info("  ✅ Database connection closed")
		}
	}

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logx.Errorf("Error closing Redis: %v", err)
		} else {
			logx.Info("  ✅ Redis connection closed")
		}
	}

	logx.Info("✅ Cleanup complete")
}
