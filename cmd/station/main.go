// cmd/station/main.go

// The station agent runs at a scanning point on the production floor. In
// service mode (station credentials configured) it holds a long-lived
// service session and applies scans unattended; in manual mode a human
// operator signs in and the user session manager keeps their tokens fresh.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"glasstrace-service/internal/config"
	"glasstrace-service/internal/domain/order"
	"glasstrace-service/internal/pkg/clock"
	"glasstrace-service/internal/stationsession"
	"glasstrace-service/internal/store"
	"glasstrace-service/internal/usersession"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("[MAIN] No .env file found, relying on system env vars")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	cfg := config.LoadStation()

	stateDir := os.Getenv("STATION_STATE_DIR")
	if stateDir == "" {
		stateDir = "."
	}

	backend := store.NewHTTPStore(cfg.ServerURL, cfg.APIKey, stateDir, logger)
	clk := clock.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ----- User session (manual mode) -----
	userMgr := usersession.NewManager(backend, clk, logger)
	defer userMgr.Close()

	unsubscribe := userMgr.Subscribe(func(snap usersession.Snapshot) {
		switch {
		case snap.Loading:
			logger.Info("session state: loading")
		case snap.Authenticated():
			logger.Info("session state: authenticated",
				zap.Int64("subject_id", snap.Session.SubjectID),
				zap.Bool("refreshing", snap.IsRefreshing))
		default:
			logger.Info("session state: signed out")
		}
	})
	defer unsubscribe()

	if err := userMgr.Initialize(ctx); err != nil {
		logger.Warn("user session initialization ended unauthenticated", zap.Error(err))
	}

	// ----- Service session (unattended mode) -----
	var stationMgr *stationsession.Manager
	if cfg.StationID != "" && cfg.StationSecret != "" {
		stationMgr, err = stationsession.New(backend, clk, cfg.StationID, cfg.StationSecret, logger)
		if err != nil {
			logger.Fatal("failed to build station session manager", zap.Error(err))
		}
		if err := stationMgr.Initialize(ctx); err != nil {
			// Lazy re-auth recovers this on the first scan, keep running.
			logger.Error("station authentication failed at startup", zap.Error(err))
		}
	} else {
		logger.Info("no station credentials configured, running in manual mode")
	}

	go scanLoop(ctx, cfg, userMgr, stationMgr, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()

	if stationMgr != nil {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cleanupCancel()
		if err := stationMgr.Cleanup(cleanupCtx); err != nil {
			logger.Warn("service session cleanup failed", zap.Error(err))
		}
	}
}

// scanLoop reads barcodes from stdin, one per line. A bare barcode applies
// the station's configured status; "barcode status" applies an explicit
// one; "? barcode" just looks the piece up.
func scanLoop(ctx context.Context, cfg config.StationConfig, userMgr *usersession.Manager, stationMgr *stationsession.Manager, logger *zap.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		userMgr.RecordActivity()

		if stationMgr == nil {
			logger.Warn("scan ignored: no station credentials configured", zap.String("input", line))
			continue
		}

		opCtx, opCancel := context.WithTimeout(ctx, 20*time.Second)
		handleScan(opCtx, line, cfg.ScanStatus, stationMgr, logger)
		opCancel()
	}

	if err := scanner.Err(); err != nil {
		logger.Error("stdin read failed", zap.Error(err))
	}
}

func handleScan(ctx context.Context, line, defaultStatus string, mgr *stationsession.Manager, logger *zap.Logger) {
	if barcode, ok := strings.CutPrefix(line, "? "); ok {
		pw, err := mgr.GetPieceInfo(ctx, strings.TrimSpace(barcode))
		if err != nil {
			logger.Error("piece lookup failed", zap.String("barcode", barcode), zap.Error(err))
			return
		}
		fmt.Printf("%s  order %s (%s)  client %s  glass %s %.1fmm  status %s\n",
			pw.Piece.Barcode, pw.OrderNumber, pw.OrderPriority, pw.ClientName,
			pw.GlassType, pw.ThicknessMM, pw.Piece.Status)
		return
	}

	barcode := line
	status := defaultStatus
	if fields := strings.Fields(line); len(fields) == 2 {
		barcode, status = fields[0], fields[1]
	}
	if status == "" {
		logger.Warn("scan ignored: no status configured and none given",
			zap.String("barcode", barcode))
		return
	}

	piece, err := mgr.UpdatePieceStatus(ctx, barcode, order.PieceStatus(status), "")
	if err != nil {
		logger.Error("scan rejected",
			zap.String("barcode", barcode),
			zap.String("status", status),
			zap.Error(err))
		return
	}

	fmt.Printf("%s -> %s\n", piece.Barcode, piece.Status)
}
