package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"robosim/internal/admin"
	"robosim/internal/bridge"
	"robosim/internal/broadcast"
	"robosim/internal/command"
	"robosim/internal/config"
	"robosim/internal/sim"
	"robosim/internal/telemetry"
	"robosim/internal/update"
)

var (
	simPrintOnly  bool
	simConfigPath string
	simSchemaPath string
	simTick       time.Duration
	simLogFile    string
	simTUI        bool
	simAdminAddr  string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the real-time robot fleet simulator",
	Long:  "simulate starts the fleet simulator and serves telemetry over MQTT, WebSocket, and the admin API.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(simConfigPath, simSchemaPath)
		if err != nil {
			return err
		}
		if fleetID := os.Getenv("FLEET_ID"); fleetID != "" {
			cfg.FleetID = fleetID
		}
		if broker := os.Getenv("MQTT_BROKER"); broker != "" {
			cfg.Broker.URL = broker
		}

		tickInterval := simTick
		if envTick := os.Getenv("TICK_INTERVAL"); envTick != "" {
			d, err := time.ParseDuration(envTick)
			if err != nil {
				return err
			}
			tickInterval = d
		}

		writer, eventWriter, cleanup, err := newWriters(simPrintOnly, simLogFile)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		tws := []sim.TelemetryWriter{writer}
		ews := []sim.EventWriter{eventWriter}

		var tui *sim.TUIWriter
		if simTUI {
			tui = sim.NewTUIWriter(cfg)
			defer tui.Close()
			// The TUI owns the terminal; drop the stdout writer.
			tws = tws[:0]
			ews = ews[:0]
			tws = append(tws, tui)
			ews = append(ews, tui)
		}

		// The broadcast manager needs the simulator for connect-time
		// snapshots and the simulator needs the manager as a sink, so the
		// snapshot side is resolved through a closure.
		var simulator *sim.Simulator
		bm := broadcast.NewManager(cfg.Broadcast, func() []telemetry.TelemetryRow {
			if simulator == nil {
				return nil
			}
			return simulator.TelemetrySnapshot()
		})
		tws = append(tws, bm)
		ews = append(ews, bm)
		mw := sim.NewMultiWriter(tws, ews)
		simulator = sim.NewSimulator(cfg, mw, mw, tickInterval)

		validator := command.NewValidator(
			time.Duration(cfg.Tuning.RateLimitWindowMS)*time.Millisecond,
			cfg.Tuning.RateLimitBurst,
			simulator.EStopLookup,
			simulator.Events(),
		)
		updates := update.NewCoordinator(cfg.Update, simulator.Events(), nil)
		updates.SetOnProgress(func(rec update.Record) {
			bm.Broadcast(updateBroadcastClass(rec), telemetry.MsgUpdateProgress, rec.RobotID, rec)
		})

		if tui != nil {
			tui.SetCommandSender(func(robotID string, msg telemetry.CommandMessage) {
				c, err := validator.Validate(robotID, msg)
				if err != nil {
					return
				}
				_ = simulator.SubmitCommand(robotID, c)
			})
		}

		if cfg.Broker.URL != "" {
			b := bridge.New(cfg.Broker, cfg.FleetID, simulator, validator)
			if err := b.Connect(); err != nil {
				log.Printf("[Main] MQTT connect failed, bridge will keep retrying: %v", err)
			}
			go b.Run(ctx)
		}

		srv := admin.NewServer(simulator, validator, updates, bm)
		go func() {
			log.Printf("[Main] Admin API listening on %s", simAdminAddr)
			if err := srv.Start(simAdminAddr); err != nil {
				log.Fatalf("Admin server failed: %v", err)
			}
		}()
		if tui != nil {
			tui.SetAdminStatus(true)
		}

		go updates.Run(ctx)
		go simulator.Run(ctx)

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		<-sigs

		cancel()
		bm.CloseAll()
		log.Println("[Main] Robot simulation stopped.")
		return nil
	},
}

// updateBroadcastClass maps update records to broadcast classes. Terminal
// records must reach every session; in-progress steps are droppable.
func updateBroadcastClass(rec update.Record) broadcast.MessageClass {
	if rec.Status == update.StatusSuccess || rec.Status == update.StatusFailed {
		return broadcast.ClassAlert
	}
	return broadcast.ClassTelemetry
}

func init() {
	simulateCmd.Flags().BoolVar(&simPrintOnly, "print-only", false, "Print telemetry to STDOUT instead of writing to DB")
	simulateCmd.Flags().StringVar(&simConfigPath, "config", "config/simulation.yaml", "Path to simulation configuration YAML")
	simulateCmd.Flags().StringVar(&simSchemaPath, "schema", "schemas/simulation.cue", "Path to CUE schema file")
	simulateCmd.Flags().DurationVar(&simTick, "tick", 150*time.Millisecond, "Simulation tick interval (e.g. 150ms, 1s)")
	simulateCmd.Flags().StringVar(&simLogFile, "log-file", "", "Path to export telemetry/event logs (JSONL)")
	simulateCmd.Flags().BoolVar(&simTUI, "tui", false, "Render telemetry in the interactive terminal UI")
	simulateCmd.Flags().StringVar(&simAdminAddr, "admin-addr", ":8080", "Listen address for the admin API")
}
