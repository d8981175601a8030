package cmd

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/discord2vrc/discord2vrc/cache"
	"github.com/discord2vrc/discord2vrc/config"
	"github.com/spf13/cobra"
)

// cacheCmd 缓存管理命令
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Cache management commands",
	Long:  "Manage the shared image record cache.",
}

// cacheInvalidateCmd 删除图片记录缓存
var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate <attachment_id>...",
	Short: "Drop cached image records",
	Long: `Drop cached image records by attachment id.
Only useful with cache_type=redis; the memory cache lives inside each serve process.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runCacheInvalidate(cmd.Context(), args); err != nil {
			log.Fatalf("Cache invalidate failed: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheInvalidateCmd)
}

func runCacheInvalidate(ctx context.Context, args []string) error {
	ids, err := parseAttachmentIDs(args)
	if err != nil {
		return err
	}

	config.InitConfig()
	provider, err := cache.NewProvider(config.Get())
	if err != nil {
		return err
	}
	defer provider.Close()

	if ctx == nil {
		ctx = context.Background()
	}
	for _, id := range ids {
		if err := provider.Delete(ctx, cache.ImageMeta.BuildID(id)); err != nil {
			return fmt.Errorf("failed to delete cache for %d: %w", id, err)
		}
	}
	log.Printf("[Cache] Invalidated %d image records in %s cache", len(ids), provider.Name())
	return nil
}

func parseAttachmentIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid attachment id: %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
