package cli

import (
	"context"
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/optiview/adminrelay/internal/models"
	"github.com/optiview/adminrelay/internal/quota"
)

// validFeatures guards the --feature flag.
var validFeatures = map[string]struct{}{
	models.FeatureAccount:        {},
	models.FeatureProperty:       {},
	models.FeatureDataStream:     {},
	models.FeatureAudience:       {},
	models.FeatureCustomMetric:   {},
	models.FeatureKeyEvent:       {},
	models.FeatureAdvertiserLink: {},
}

func newTierCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tier",
		Short: "Manage per-user usage tiers",
	}
	cmd.AddCommand(newTierSetCmd())
	return cmd
}

func newTierSetCmd() *cobra.Command {
	var (
		userID  string
		feature string
		creates int64
		updates int64
		deletes int64
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Create or replace a tier row for a user and feature",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, ok := validFeatures[feature]; !ok {
				return fmt.Errorf("unknown feature %q", feature)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			db, err := gorm.Open(sqlite.Open(cfg.Storage.SQLitePath), &gorm.Config{
				Logger: gormlogger.Default.LogMode(gormlogger.Silent),
			})
			if err != nil {
				return fmt.Errorf("open ledger database: %w", err)
			}
			ledger, err := quota.NewLedger(db)
			if err != nil {
				return err
			}

			id, err := ledger.SetTier(context.Background(), quota.TierLimit{
				UserID:      userID,
				Feature:     feature,
				CreateLimit: creates,
				UpdateLimit: updates,
				DeleteLimit: deletes,
			})
			if err != nil {
				return err
			}

			logger.Info().
				Str("ledger", id).
				Str("user", userID).
				Str("feature", feature).
				Msg("tier saved")
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User id the tier applies to")
	cmd.Flags().StringVar(&feature, "feature", "", "Feature name (account, property, datastream, audience, custommetric, keyevent, advertiserlink)")
	cmd.Flags().Int64Var(&creates, "create-limit", 0, "Maximum create operations")
	cmd.Flags().Int64Var(&updates, "update-limit", 0, "Maximum update operations")
	cmd.Flags().Int64Var(&deletes, "delete-limit", 0, "Maximum delete operations")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("feature")

	return cmd
}
