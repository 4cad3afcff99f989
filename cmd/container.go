package main

import (
	"context"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/clavehr/identity/pkg/config"
	"github.com/clavehr/identity/pkg/iam/iamcontainer"
	"github.com/clavehr/identity/pkg/logx"
	"github.com/clavehr/identity/pkg/notifx"
	"github.com/clavehr/identity/pkg/notifx/notifxconsole"
	"github.com/clavehr/identity/pkg/notifx/notifxses"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

// Container wires the application's external resources and the IAM module.
type Container struct {
	Cfg   *config.Config
	DB    *sqlx.DB
	Redis *redis.Client
	IAM   *iamcontainer.Container
}

// NewContainer builds the full dependency graph. Any failure here is fatal;
// the process must not accept traffic half-wired.
func NewContainer(cfg *config.Config) (*Container, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	logx.Info("Connected to PostgreSQL")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logx.WithError(err).Warn("Redis unreachable at startup")
	} else {
		logx.Info("Connected to Redis")
	}

	mailer, err := buildMailer(cfg)
	if err != nil {
		return nil, err
	}

	iam, err := iamcontainer.New(iamcontainer.Deps{
		DB:     db,
		Redis:  redisClient,
		Cfg:    cfg,
		Mailer: mailer,
	})
	if err != nil {
		return nil, err
	}

	return &Container{
		Cfg:   cfg,
		DB:    db,
		Redis: redisClient,
		IAM:   iam,
	}, nil
}

// buildMailer selects the email provider: SES in production, console
// otherwise.
func buildMailer(cfg *config.Config) (*notifx.Client, error) {
	if cfg.Notifx.Provider == "ses" {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(cfg.Notifx.AWSRegion),
		)
		if err != nil {
			return nil, err
		}
		provider := notifxses.NewSESProvider(ses.NewFromConfig(awsCfg), cfg.Notifx.FromAddress)
		logx.Info("Email delivery via SES")
		return notifx.NewClient(provider), nil
	}

	logx.Warn("Email delivery via console (development only)")
	return notifx.NewClient(notifxconsole.NewConsoleProvider()), nil
}

// Cleanup closes external resources.
func (c *Container) Cleanup() {
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			logx.WithError(err).Error("failed to close database")
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logx.WithError(err).Error("failed to close redis client")
		}
	}
}
