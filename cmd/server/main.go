// cmd/server is the main entrypoint for a KoruDelta node.
//
// Configuration is entirely via flags so a single binary can serve any
// role in a reconciling cluster.
//
// Example — single node:
//
//	./server --id node1 --addr :8080 --data-dir /var/korudelta/node1
//
// Example — 3-node cluster, each reconciling with its peers:
//
//	./server --id node1 --addr :8080 --data-dir /tmp/n1 \
//	         --peers node2=localhost:8081,node3=localhost:8082
//	./server --id node2 --addr :8081 --data-dir /tmp/n2 \
//	         --peers node1=localhost:8080,node3=localhost:8082
//	./server --id node3 --addr :8082 --data-dir /tmp/n3 \
//	         --peers node1=localhost:8080,node2=localhost:8081
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"koru-delta/internal/api"
	"koru-delta/internal/cluster"
	"koru-delta/internal/config"
	"koru-delta/internal/engine"
	"koru-delta/internal/reconcile"
)

func main() {
	// ── Flags ──────────────────────────────────────────────────────────────
	nodeID := flag.String("id", "node1", "Unique node identifier")
	addr := flag.String("addr", ":8080", "Listen address (host:port)")
	dataDir := flag.String("data-dir", "", "Directory for the WAL, Cold containers, and genome (empty = in-memory only)")
	peersFlag := flag.String("peers", "", "Comma-separated list of peer nodes: id=host:port")
	annEnabled := flag.Bool("ann", false, "Enable the ANN vector index")
	reconcileInterval := flag.Duration("reconcile-interval", 30*time.Second, "How often to reconcile with each known peer")
	flag.Parse()

	// ── Engine ─────────────────────────────────────────────────────────────
	cfg := config.Default()
	if *dataDir != "" {
		cfg.StoragePath = fmt.Sprintf("%s/%s", *dataDir, *nodeID)
	}
	cfg.ANNEnabled = *annEnabled

	eng, err := engine.StartWithConfig(cfg)
	if err != nil {
		log.Fatalf("start engine: %v", err)
	}
	defer eng.Shutdown()

	// ── Peer membership ────────────────────────────────────────────────────
	selfNode := cluster.Node{ID: *nodeID, Address: *addr, IsAlive: true}
	nodes := []cluster.Node{selfNode}

	if *peersFlag != "" {
		for _, entry := range strings.Split(*peersFlag, ",") {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				log.Fatalf("invalid peer format %q: expected id=host:port", entry)
			}
			nodes = append(nodes, cluster.Node{ID: parts[0], Address: parts[1]})
		}
	}
	membership := cluster.NewMembership(nodes, 150)

	// ── HTTP server ────────────────────────────────────────────────────────
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(api.Logger(), api.Recovery())

	handler := api.NewHandler(eng, membership, *nodeID)
	handler.Register(router)

	// Health check endpoint — useful for load balancers and readiness probes.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"node":   *nodeID,
			"status": "ok",
			"peers":  membership.Ring().NodeCount(),
		})
	})

	srv := &http.Server{
		Addr:         *addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Node %s listening on %s", *nodeID, *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Background reconciliation: each tick, pull/diff/apply against every
	// known live peer — the teacher's background-snapshot ticker pattern,
	// generalized from "save a local snapshot" to "converge with peers".
	go func() {
		ticker := time.NewTicker(*reconcileInterval)
		defer ticker.Stop()
		for range ticker.C {
			for _, peer := range membership.Live() {
				if peer.ID == *nodeID {
					continue
				}
				transport := reconcile.NewHTTPTransport(peer.Address)
				session := eng.NewReconcileSession(transport)
				ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				applied, err := session.Run(ctx)
				cancel()
				if err != nil {
					log.Printf("reconcile with %s failed: %v", peer.ID, err)
					membership.MarkAlive(peer.ID, false)
					continue
				}
				if applied > 0 {
					log.Printf("reconciled %d versions from %s", applied, peer.ID)
				}
			}
		}
	}()

	// ── Graceful shutdown ──────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down node", *nodeID)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
}
