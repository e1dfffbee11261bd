// Command timelapsed schedules periodic frame captures from camera/stream
// URLs, keeps the capture database and filesystem in sync, assembles
// captured frames into timelapse videos on demand, and serves all of that
// over an HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/kernelkaribou/timelapse-manager/internal/capture"
	"github.com/kernelkaribou/timelapse-manager/internal/clock"
	"github.com/kernelkaribou/timelapse-manager/internal/config"
	"github.com/kernelkaribou/timelapse-manager/internal/httpapi"
	"github.com/kernelkaribou/timelapse-manager/internal/scheduler"
	"github.com/kernelkaribou/timelapse-manager/internal/store"
	"github.com/kernelkaribou/timelapse-manager/internal/thumbnail"
	"github.com/kernelkaribou/timelapse-manager/internal/video"
)

func main() {
	envFile := flag.String("env-file", "", "optional .env-style file to seed the process environment before reading config")
	flag.Parse()

	if *envFile != "" {
		if err := config.LoadEnvFile(*envFile); err != nil {
			log.Fatalf("load env file: %v", err)
		}
	}
	cfg := config.Load()

	if err := os.MkdirAll(cfg.DefaultCapturesPath, 0o755); err != nil {
		log.Printf("warning: could not create default captures path %s: %v", cfg.DefaultCapturesPath, err)
	}
	if err := os.MkdirAll(cfg.DefaultVideosPath, 0o755); err != nil {
		log.Printf("warning: could not create default videos path %s: %v", cfg.DefaultVideosPath, err)
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	clk := clock.New(cfg.TZ)
	calc := scheduler.NewCalculator(clk)
	grabber := capture.NewGrabber(cfg.FFmpegPath, cfg.FFmpegTimeout)
	thumbs := thumbnail.NewGenerator(cfg.FFmpegPath, cfg.FFmpegTimeout)
	executor := capture.NewExecutor(st, grabber, thumbs, cfg.WorkerCount)
	sched := scheduler.New(st, calc, executor, cfg.TickInterval)
	assembler := video.NewAssembler(st, cfg.FFmpegPath)

	server := httpapi.NewServer(st, calc, clk, grabber, thumbs, assembler,
		cfg.DefaultCapturesPath, cfg.DefaultVideosPath, cfg.DefaultNamingPattern,
		cfg.FFmpegPath, cfg.FFprobePath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if n, err := sched.HydrateCount(ctx); err != nil {
		log.Printf("scheduler: hydrate count: %v", err)
	} else {
		log.Printf("scheduler: %d job(s) currently scheduled for a future capture", n)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	if err := server.Run(ctx, addr); err != nil {
		log.Fatalf("httpapi: %v", err)
	}

	wg.Wait()
	fmt.Println("timelapsed: stopped")
}
