package cmd

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/discord2vrc/discord2vrc/internal/bot"
	"github.com/discord2vrc/discord2vrc/internal/capture"
	"github.com/discord2vrc/discord2vrc/internal/chat/discord"
	"github.com/discord2vrc/discord2vrc/internal/metrics"
	"github.com/discord2vrc/discord2vrc/internal/worker"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// botQueueSize 等待处理的消息上限
const botQueueSize = 1000

// botCmd 启动采集机器人
var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Start Discord capture bot",
	Run: func(cmd *cobra.Command, args []string) {
		RunBot()
	},
}

func init() {
	rootCmd.AddCommand(botCmd)
}

func RunBot() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container := initContainer(ctx)
	cfg := container.GetConfig()
	scheduler := startReloader(container)

	gateway, err := discord.NewGateway(cfg.DiscordToken)
	if err != nil {
		log.Fatalf("Failed to create Discord gateway: %v", err)
	}
	transport := gateway.Transport()

	pipeline, err := container.Pipeline(transport, capture.WithSelfID(gateway.SelfID))
	if err != nil {
		log.Fatalf("Failed to initialize capture pipeline: %v", err)
	}

	pool := worker.NewPool(cfg.WorkerCount, botQueueSize)
	b := bot.New(cfg, transport, container.GetRegistry(), pipeline, container.ImagesRepo,
		bot.WithSelfID(gateway.SelfID),
		bot.WithPool(pool),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return gateway.Run(gctx, b.Listener(gctx))
	})

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			log.Printf("[Metrics] Listening on %s", cfg.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()

	// 网关已关闭，不会再有新任务提交
	pool.Stop()
	scheduler.Stop()
	if closeErr := container.Close(); closeErr != nil {
		log.Printf("Error closing container: %v", closeErr)
	}

	if err != nil {
		log.Fatalf("Bot exited with error: %v", err)
	}
	log.Println("Bot exited successfully")
}
