// cmd/server is the main entrypoint for a KV store node.
//
// Configuration is resolved via internal/config, which binds the full
// knob surface through Cobra flags and Viper (flag > environment >
// config file > default), generalizing a flag-only startup into a fuller knob surface.
//
// Example — single node:
//
//	./server --node-id node1 --http-addr :8080 --wal-dir /var/kvstore/node1/wal
//
// Example — 3-node cluster:
//
//	./server --node-id node1 --http-addr :8080 --wal-dir /tmp/n1/wal --snapshot-dir /tmp/n1/snap \
//	         --peers node2=http://localhost:8081,node3=http://localhost:8082
//	./server --node-id node2 --http-addr :8081 --wal-dir /tmp/n2/wal --snapshot-dir /tmp/n2/snap \
//	         --peers node1=http://localhost:8080,node3=http://localhost:8082
//	./server --node-id node3 --http-addr :8082 --wal-dir /tmp/n3/wal --snapshot-dir /tmp/n3/snap \
//	         --peers node1=http://localhost:8080,node2=http://localhost:8081
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"distributed-kvstore/internal/antientropy"
	"distributed-kvstore/internal/config"
	"distributed-kvstore/internal/coordinator"
	"distributed-kvstore/internal/metrics"
	"distributed-kvstore/internal/quorum"
	"distributed-kvstore/internal/repair"
	"distributed-kvstore/internal/ring"
	"distributed-kvstore/internal/storage"

	kvapi "distributed-kvstore/internal/api"
)

const (
	latencyEWMAAlpha    = 0.2
	latencyWindowSize   = 128
	stalenessWindowSize = 256
)

func main() {
	v := viper.New()
	root := &cobra.Command{
		Use:   "server",
		Short: "Run one node of the distributed KV store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}
	config.BindFlags(root, v)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(logFile string) (*zap.Logger, error) {
	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	var sink zapcore.WriteSyncer
	if logFile == "" {
		sink = zapcore.AddSync(os.Stderr)
	} else {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     28,
		})
	}
	core := zapcore.NewCore(encoder, sink, zap.InfoLevel)
	return zap.New(core, zap.AddCaller()), nil
}

func run(cfg config.Config) error {
	log, err := newLogger(cfg.LogFile)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()

	store, err := storage.Open(storage.Config{
		NodeID:          cfg.NodeID,
		WALDir:          cfg.WALDir,
		SnapshotDir:     cfg.SnapshotDir,
		WALRotateBytes:  cfg.WALRotateBytes,
		DedupeTTL:       cfg.DedupeTTL,
		SnapshotEveryOp: cfg.SnapshotEveryOp,
	}, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	nodeIDs := []string{cfg.NodeID}
	for _, p := range cfg.Peers {
		nodeIDs = append(nodeIDs, p.ID)
	}
	hashRing := ring.Build(nodeIDs, cfg.VnodesPerNode)

	latency := quorum.NewReplicaLatencyTracker(latencyEWMAAlpha, latencyWindowSize)
	budget := quorum.NewStalenessBudgetTracker(stalenessWindowSize)

	registry := prometheus.NewRegistry()
	sloMetrics := quorum.NewSloMetrics(registry)
	nodeMetrics := metrics.New(registry)

	local := coordinator.NewLocalClient(cfg.NodeID, store)
	replicas := map[string]coordinator.ReplicaClient{cfg.NodeID: local}
	antiEntropyPeers := make(antientropy.StaticPeers, 0, len(cfg.Peers))
	for _, p := range cfg.Peers {
		addr := p.Address
		if !strings.Contains(addr, "://") {
			addr = "http://" + addr
		}
		remote := coordinator.NewRemoteClient(p.ID, addr)
		replicas[p.ID] = remote
		antiEntropyPeers = append(antiEntropyPeers, remote)
	}

	replicaList := make([]coordinator.ReplicaClient, 0, len(replicas))
	for _, c := range replicas {
		replicaList = append(replicaList, c)
	}

	hotnessTracker := repair.NewHotnessTracker(0.3)

	coord := coordinator.New(coordinator.Config{
		NodeID:            cfg.NodeID,
		Replicas:          replicaList,
		Ring:              hashRing,
		ReplicationFactor: cfg.ReplicationFactor,
		BaseReadQuorum:    cfg.ReadQuorum,
		BaseWriteQuorum:   cfg.WriteQuorum,
		Latency:           latency,
		Budget:            budget,
		Slo:               sloMetrics,
		Hotness:           hotnessTracker,
		Metrics:           nodeMetrics,
		Log:               log,
	})

	repairMode := repair.FIFO
	if cfg.AntiEntropyMode == config.ModeRAAE {
		repairMode = repair.RAAE
	}
	scheduler := repair.NewScheduler(repair.Config{
		Mode:               repairMode,
		Hotness:            hotnessTracker,
		Divergence:         repair.NewDivergenceTracker(),
		Limiter:            repair.NewRateLimiter(cfg.RepairRate.Capacity, cfg.RepairRate.RefillPerSecond),
		GlobalBandwidthCap: cfg.RepairRate.Capacity,
		MaxTokensPerRun:    cfg.RepairRate.Capacity,
		Metrics:            nodeMetrics,
	})
	repairExecutor := coordinator.NewRepairExecutor(store, ring.TokenForKey, replicas, scheduler, log)
	session := antientropy.NewSession(store, ring.TokenForKey, cfg.MerkleLeafCount, repairExecutor, nodeMetrics)
	daemon := antientropy.NewDaemon(session, antiEntropyPeers, antientropy.FullRange(), cfg.GossipInterval, log)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(kvapi.Logger(log), kvapi.Recovery(log), nodeMetrics.GinMiddleware())
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	handler := kvapi.NewHandler(kvapi.Config{
		Coordinator: coord,
		Store:       store,
		Session:     session,
		NodeID:      cfg.NodeID,
		AuthToken:   cfg.AuthToken,
	})
	handler.Register(router)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go daemon.Run(ctx)

	go func() {
		log.Info("node listening",
			zap.String("nodeId", cfg.NodeID), zap.String("addr", cfg.HTTPAddr),
			zap.Int("replicationFactor", cfg.ReplicationFactor),
			zap.Int("writeQuorum", cfg.WriteQuorum), zap.Int("readQuorum", cfg.ReadQuorum))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := store.Snapshot(); err != nil {
				log.Warn("periodic snapshot failed", zap.Error(err))
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down", zap.String("nodeId", cfg.NodeID))
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := store.Snapshot(); err != nil {
		log.Warn("final snapshot failed", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown error", zap.Error(err))
	}
	return nil
}
