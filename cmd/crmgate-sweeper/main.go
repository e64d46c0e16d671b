package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/crmgate/pkg/audit"
	"github.com/platinummonkey/crmgate/pkg/config"
	"github.com/platinummonkey/crmgate/pkg/observability"
	"github.com/platinummonkey/crmgate/pkg/reports"
	"github.com/platinummonkey/crmgate/pkg/storage/postgres"
	"github.com/platinummonkey/crmgate/pkg/tenants"
	"github.com/platinummonkey/crmgate/pkg/users"
)

var (
	runOnce = flag.Bool("run-once", false, "Run the integrity sweep and report archive once and exit")
	repair  = flag.Bool("repair", true, "Clear broken manager edges found by the sweep")
	year    = flag.Int("year", 0, "Financial year label to archive (default each tenant's current year). Only used with --run-once")
)

type sweeper struct {
	checker  *users.IntegrityChecker
	reports  *reports.Service
	archiver *reports.Archiver
	audit    audit.Logger
	logger   *observability.Logger
}

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	ctx := context.Background()

	cm, err := postgres.NewConnectionManager(ctx, postgres.ConnectionConfig{
		PrimaryURL:   cfg.Database.URL,
		ReplicaURLs:  cfg.Database.ReplicaURLs,
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		Timeout:      cfg.Database.ConnectTimeout,
		MaxLifetime:  cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	defer cm.Close()

	dbAudit, err := audit.NewDBLogger(cm.Primary())
	if err != nil {
		logger.WithError(err).Error("Failed to create audit logger")
		os.Exit(1)
	}

	s := &sweeper{
		// The API servers cache hierarchies for at most the scope cache TTL,
		// so repairs made here become visible without an invalidation.
		checker: users.NewIntegrityChecker(cm.Primary(), nil, nil),
		reports: reports.NewService(cm.Replica(), tenants.NewStore(cm.Replica()), nil, cfg.Reports.FanOutLimit),
		audit:   audit.NewMultiLogger(audit.NewLogLogger(logger), dbAudit),
		logger:  logger,
	}
	defer s.audit.Close()

	if cfg.Reports.ArchiveEnabled() {
		client, err := reports.NewS3Client(ctx, cfg.Reports)
		if err != nil {
			logger.WithError(err).Error("Failed to create S3 client")
			os.Exit(1)
		}
		s.archiver = reports.NewArchiver(client, cfg.Reports.S3Bucket, nil)
	} else {
		logger.Warn("CRMGATE_S3_BUCKET is not set, report archiving is disabled")
	}

	// Run once mode (for testing or backfilling)
	if *runOnce {
		if err := s.sweep(ctx); err != nil {
			logger.WithError(err).Error("Integrity sweep failed")
			os.Exit(1)
		}
		if err := s.archive(ctx, *year); err != nil {
			logger.WithError(err).Error("Report archive failed")
			os.Exit(1)
		}
		logger.Info("Sweep completed successfully")
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.Reports.SweepSchedule, func() {
		if err := s.sweep(context.Background()); err != nil {
			logger.WithError(err).Error("Integrity sweep failed")
		}
	}); err != nil {
		logger.WithError(err).Error("Failed to schedule integrity sweep")
		os.Exit(1)
	}
	if s.archiver != nil {
		if _, err := c.AddFunc(cfg.Reports.ArchiveSchedule, func() {
			if err := s.archive(context.Background(), 0); err != nil {
				logger.WithError(err).Error("Report archive failed")
			}
		}); err != nil {
			logger.WithError(err).Error("Failed to schedule report archive")
			os.Exit(1)
		}
	}

	c.Start()
	logger.Info("crmgate sweeper started")
	logger.Infof("Integrity sweep schedule: %s", cfg.Reports.SweepSchedule)
	logger.Infof("Report archive schedule: %s", cfg.Reports.ArchiveSchedule)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down gracefully...")

	stopped := c.Stop()
	<-stopped.Done()
	logger.Info("Sweeper stopped")
}

func (s *sweeper) jobContext(ctx context.Context, job string) context.Context {
	ctx = observability.WithLogger(ctx, s.logger.WithField("job", job))
	return audit.WithLogger(ctx, s.audit)
}

// sweep finds broken manager edges and optionally clears them
func (s *sweeper) sweep(ctx context.Context) error {
	defer observability.RecoverPanic(s.logger, "integrity sweep")
	ctx = s.jobContext(ctx, "integrity")

	issues, err := s.checker.Check(ctx)
	if err != nil {
		return err
	}
	if len(issues) == 0 {
		s.logger.Debug("No hierarchy issues found")
		return nil
	}
	s.logger.Warnf("Found %d hierarchy issue(s)", len(issues))
	if !*repair {
		for _, issue := range issues {
			s.logger.WithFields(map[string]interface{}{
				"user_id":    issue.UserID,
				"manager_id": issue.ManagerID,
				"kind":       issue.Kind,
			}).Warn("broken manager edge")
		}
		return nil
	}

	repaired, err := s.checker.Repair(ctx, issues)
	if err != nil {
		return err
	}
	s.logger.Infof("Cleared %d broken manager edge(s)", repaired)
	return nil
}

// archive snapshots every tenant's financial report to object storage
func (s *sweeper) archive(ctx context.Context, year int) error {
	if s.archiver == nil {
		return nil
	}
	defer observability.RecoverPanic(s.logger, "report archive")
	ctx = s.jobContext(ctx, "archive")

	summaries, err := s.reports.Snapshot(ctx, year)
	if err != nil {
		return fmt.Errorf("failed to build reports: %w", err)
	}
	keys, err := s.archiver.ArchiveAll(ctx, summaries)
	if err != nil {
		return err
	}
	s.logger.Infof("Archived %d report(s)", len(keys))
	return nil
}
