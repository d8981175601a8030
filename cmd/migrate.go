package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/discord2vrc/discord2vrc/config"
	"github.com/discord2vrc/discord2vrc/database"
	"github.com/discord2vrc/discord2vrc/database/models"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// migrateCmd 创建表结构与索引
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Run: func(cmd *cobra.Command, args []string) {
		config.InitConfig()
		factory, err := database.NewFactory(config.Get())
		if err != nil {
			log.Fatalf("Failed to connect database: %v", err)
		}
		defer factory.Close()

		if err := factory.AutoMigrate(); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
	},
}

// migrateCopyCmd 在两个数据库之间复制数据
var migrateCopyCmd = &cobra.Command{
	Use:   "copy",
	Short: "Copy channels and images to another database",
	Long: `Copy channels and images from a source database to a target database.

Examples:
  # Copy from SQLite to PostgreSQL
  discord2vrc migrate copy --from-sqlite ./data/discord2vrc.db --to-postgres "host=localhost user=postgres password=secret dbname=discord2vrc port=5432"

  # Stop on the first conflicting record
  discord2vrc migrate copy --from-sqlite ./data/discord2vrc.db --to-postgres "..." --on-conflict=error`,
	Run: func(cmd *cobra.Command, args []string) {
		fromType, _ := cmd.Flags().GetString("from-type")
		toType, _ := cmd.Flags().GetString("to-type")
		fromDSN, _ := cmd.Flags().GetString("from-dsn")
		toDSN, _ := cmd.Flags().GetString("to-dsn")
		fromSQLite, _ := cmd.Flags().GetString("from-sqlite")
		toPostgres, _ := cmd.Flags().GetString("to-postgres")
		batchSize, _ := cmd.Flags().GetInt("batch-size")
		onConflict, _ := cmd.Flags().GetString("on-conflict")

		if fromSQLite != "" {
			fromType, fromDSN = "sqlite", fromSQLite
		}
		if toPostgres != "" {
			toType, toDSN = "postgres", toPostgres
		}

		opts := copyOptions{
			fromType:   fromType,
			fromDSN:    fromDSN,
			toType:     toType,
			toDSN:      toDSN,
			batchSize:  batchSize,
			onConflict: onConflict,
		}
		if err := runCopy(cmd.Context(), opts); err != nil {
			log.Fatalf("Copy failed: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateCopyCmd)

	migrateCopyCmd.Flags().String("from-type", "", "Source database type (sqlite, postgres)")
	migrateCopyCmd.Flags().String("to-type", "", "Target database type (sqlite, postgres)")
	migrateCopyCmd.Flags().String("from-dsn", "", "Source database DSN/connection string")
	migrateCopyCmd.Flags().String("to-dsn", "", "Target database DSN/connection string")
	migrateCopyCmd.Flags().String("from-sqlite", "", "Source SQLite file path (shortcut)")
	migrateCopyCmd.Flags().String("to-postgres", "", "Target PostgreSQL connection string (shortcut)")
	migrateCopyCmd.Flags().Int("batch-size", 500, "Batch size for image copy")
	migrateCopyCmd.Flags().String("on-conflict", "skip", "Conflict resolution strategy: skip (default), error")
}

type copyOptions struct {
	fromType, fromDSN string
	toType, toDSN     string
	batchSize         int
	onConflict        string
}

// copyStats 复制统计
type copyStats struct {
	channels int64
	images   int64
	skipped  int64
}

func (o copyOptions) validate() error {
	if o.onConflict != "skip" && o.onConflict != "error" {
		return fmt.Errorf("invalid on-conflict strategy: %s (must be skip or error)", o.onConflict)
	}
	if o.fromType == "" || o.toType == "" {
		return fmt.Errorf("both --from-type and --to-type are required")
	}
	if o.fromDSN == "" || o.toDSN == "" {
		return fmt.Errorf("both --from-dsn and --to-dsn (or shortcuts) are required")
	}
	if o.fromType == o.toType && o.fromDSN == o.toDSN {
		return fmt.Errorf("source and target databases are the same")
	}
	if o.batchSize <= 0 {
		return fmt.Errorf("batch-size must be positive")
	}
	return nil
}

// runCopy 复制全部频道与图片，保留主键以维持关联
func runCopy(ctx context.Context, o copyOptions) error {
	if err := o.validate(); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	log.Printf("Copying from %s to %s", o.fromType, o.toType)
	log.Printf("Source: %s", maskDSN(o.fromDSN))
	log.Printf("Target: %s", maskDSN(o.toDSN))

	sourceDB, err := openDatabase(o.fromType, o.fromDSN)
	if err != nil {
		return fmt.Errorf("failed to connect to source database: %w", err)
	}
	defer closeDatabase(sourceDB)

	targetDB, err := openDatabase(o.toType, o.toDSN)
	if err != nil {
		return fmt.Errorf("failed to connect to target database: %w", err)
	}
	defer closeDatabase(targetDB)

	if err := targetDB.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate target schema: %w", err)
	}

	stats := &copyStats{}
	if err := copyChannels(ctx, sourceDB, targetDB, stats, o.onConflict); err != nil {
		return err
	}
	if err := copyImages(ctx, sourceDB, targetDB, stats, o.batchSize, o.onConflict); err != nil {
		return err
	}
	if err := resetSequences(targetDB); err != nil {
		return err
	}

	log.Printf("Copied %d channels and %d images (skipped: %d)", stats.channels, stats.images, stats.skipped)
	return nil
}

// insert 按冲突策略写入一批记录，返回实际写入数
func insert(tx *gorm.DB, rows interface{}, onConflict string) (int64, error) {
	// 显式列出全部字段，带默认值的零值字段也要写入
	tx = tx.Select("*")
	if onConflict == "skip" {
		tx = tx.Clauses(clause.OnConflict{DoNothing: true})
	}
	result := tx.Create(rows)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func copyChannels(ctx context.Context, sourceDB, targetDB *gorm.DB, stats *copyStats, onConflict string) error {
	var list []models.Channel
	if err := sourceDB.WithContext(ctx).Order("id").Find(&list).Error; err != nil {
		return fmt.Errorf("failed to read channels: %w", err)
	}
	if len(list) == 0 {
		return nil
	}

	n, err := insert(targetDB.WithContext(ctx), &list, onConflict)
	if err != nil {
		return fmt.Errorf("failed to copy channels: %w", err)
	}
	stats.channels += n
	stats.skipped += int64(len(list)) - n
	return nil
}

func copyImages(ctx context.Context, sourceDB, targetDB *gorm.DB, stats *copyStats, batchSize int, onConflict string) error {
	var total int64
	if err := sourceDB.WithContext(ctx).Model(&models.Image{}).Count(&total).Error; err != nil {
		return fmt.Errorf("failed to count images: %w", err)
	}

	var lastID uint
	var done int64
	for {
		var batch []models.Image
		err := sourceDB.WithContext(ctx).Where("id > ?", lastID).Order("id").Limit(batchSize).Find(&batch).Error
		if err != nil {
			return fmt.Errorf("failed to read images: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		n, err := insert(targetDB.WithContext(ctx), &batch, onConflict)
		if err != nil {
			return fmt.Errorf("failed to copy images after id %d: %w", lastID, err)
		}
		stats.images += n
		stats.skipped += int64(len(batch)) - n
		done += int64(len(batch))
		lastID = batch[len(batch)-1].ID
		log.Printf("Copied %d/%d images...", done, total)
	}
	return nil
}

// resetSequences 显式写入主键后同步 PostgreSQL 序列
func resetSequences(db *gorm.DB) error {
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	for _, table := range []string{"channels", "images"} {
		stmt := fmt.Sprintf("SELECT setval(pg_get_serial_sequence('%s', 'id'), COALESCE((SELECT MAX(id) FROM %s), 1))", table, table)
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to reset %s sequence: %w", table, err)
		}
	}
	return nil
}

// openDatabase 打开数据库连接
func openDatabase(dbType, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch dbType {
	case "sqlite", "sqlite3":
		dialector = sqlite.Open(dsn)
	case "postgres", "postgresql":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

func closeDatabase(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// maskDSN 隐藏敏感信息
func maskDSN(dsn string) string {
	if len(dsn) > 50 {
		return dsn[:50] + "..."
	}
	return dsn
}
