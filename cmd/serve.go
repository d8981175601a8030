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

	"github.com/discord2vrc/discord2vrc/api/core"
	"github.com/discord2vrc/discord2vrc/config"
	"github.com/discord2vrc/discord2vrc/internal/app"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP query server",
	Run: func(cmd *cobra.Command, args []string) {
		RunServer()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// initContainer 加载配置并初始化依赖容器，失败时退出进程
func initContainer(ctx context.Context) *app.Container {
	config.InitConfig()
	container := app.NewContainer(config.Get())
	if err := container.Init(ctx); err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	return container
}

// startReloader 启动注册表定时刷新，失败时退出进程
func startReloader(container *app.Container) *app.Scheduler {
	scheduler, err := app.NewScheduler(container.GetConfig().RegistryReloadSpec, container.GetRegistry())
	if err != nil {
		log.Fatalf("Failed to schedule registry reload: %v", err)
	}
	scheduler.Start()
	return scheduler
}

func RunServer() {
	// 处理退出signal
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container := initContainer(ctx)
	cfg := container.GetConfig()
	scheduler := startReloader(container)

	server, cleanup := core.NewServer(&core.ServerDependencies{
		Config:   cfg,
		DB:       container.GetDatabaseProvider(),
		Cache:    container.GetCache(),
		Storage:  container.GetStorage(),
		Query:    container.GetQuery(),
		Registry: container.GetRegistry(),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("Server started on %s", cfg.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err := g.Wait()

	cleanup()
	scheduler.Stop()
	if closeErr := container.Close(); closeErr != nil {
		log.Printf("Error closing container: %v", closeErr)
	}

	if err != nil {
		log.Fatalf("Server exited with error: %v", err)
	}
	log.Println("Server exited successfully")
}
