package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinicdesk/clinicdesk/internal/config"
	"github.com/clinicdesk/clinicdesk/internal/domain/appointment"
	"github.com/clinicdesk/clinicdesk/internal/domain/backup"
	"github.com/clinicdesk/clinicdesk/internal/domain/inventory"
	"github.com/clinicdesk/clinicdesk/internal/domain/patient"
	"github.com/clinicdesk/clinicdesk/internal/domain/settings"
	"github.com/clinicdesk/clinicdesk/internal/domain/visit"
	"github.com/clinicdesk/clinicdesk/internal/platform/flatrec"
	"github.com/clinicdesk/clinicdesk/internal/platform/middleware"
	"github.com/clinicdesk/clinicdesk/internal/platform/storage"
	"github.com/clinicdesk/clinicdesk/internal/platform/store"
	"github.com/clinicdesk/clinicdesk/internal/platform/websocket"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinicdesk",
		Short: "Offline-first clinic record keeper",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(backupCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(exportCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the clinic API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func backupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create or restore backup bundles",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Write a full backup bundle to a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			if out == "" {
				return fmt.Errorf("--out is required")
			}

			a, err := buildApp(newLogger())
			if err != nil {
				return err
			}
			defer a.Close()

			bundle, err := a.backupMgr.Export()
			if err != nil {
				return err
			}
			raw, err := json.MarshalIndent(bundle, "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, raw, 0o600); err != nil {
				return err
			}
			fmt.Printf("Backup written to %s\n", out)
			return nil
		},
	}
	createCmd.Flags().String("out", "", "Output file for the backup bundle")
	cmd.AddCommand(createCmd)

	restoreCmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore a backup bundle from a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, _ := cmd.Flags().GetString("in")
			if in == "" {
				return fmt.Errorf("--in is required")
			}
			raw, err := os.ReadFile(in)
			if err != nil {
				return err
			}

			a, err := buildApp(newLogger())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.backupMgr.Restore(raw); err != nil {
				return err
			}
			fmt.Println("Backup restored.")
			return nil
		},
	}
	restoreCmd.Flags().String("in", "", "Backup bundle file to restore")
	cmd.AddCommand(restoreCmd)

	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <patients|inventory|appointments>",
		Short: "Import flat records from a JSON row file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, _ := cmd.Flags().GetString("in")
			if in == "" {
				return fmt.Errorf("--in is required")
			}
			raw, err := os.ReadFile(in)
			if err != nil {
				return err
			}
			var rows []flatrec.Row
			if err := json.Unmarshal(raw, &rows); err != nil {
				return fmt.Errorf("parse rows: %w", err)
			}

			a, err := buildApp(newLogger())
			if err != nil {
				return err
			}
			defer a.Close()

			var n int
			switch args[0] {
			case "patients":
				n, err = a.patientSvc.ImportRows(rows)
			case "inventory":
				n, err = a.inventorySvc.ImportRows(rows)
			case "appointments":
				n, err = a.appointmentSvc.ImportRows(rows)
			default:
				return fmt.Errorf("unknown collection %q", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Printf("Imported %d record(s) into %s\n", n, args[0])
			return nil
		},
	}
	cmd.Flags().String("in", "", "JSON file holding an array of flat rows")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <patients|inventory|appointments>",
		Short: "Export a collection as flat JSON rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(newLogger())
			if err != nil {
				return err
			}
			defer a.Close()

			var rows []flatrec.Row
			switch args[0] {
			case "patients":
				rows = a.patientSvc.ExportRows()
			case "inventory":
				rows = a.inventorySvc.ExportRows()
			case "appointments":
				rows = a.appointmentSvc.ExportRows()
			default:
				return fmt.Errorf("unknown collection %q", args[0])
			}
			raw, err := json.MarshalIndent(rows, "", "  ")
			if err != nil {
				return err
			}

			out, _ := cmd.Flags().GetString("out")
			if out == "" {
				_, err = os.Stdout.Write(append(raw, '\n'))
				return err
			}
			if err := os.WriteFile(out, raw, 0o600); err != nil {
				return err
			}
			fmt.Printf("Exported %d record(s) to %s\n", len(rows), out)
			return nil
		},
	}
	cmd.Flags().String("out", "", "Output file (default: stdout)")
	return cmd
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

// app holds the wired application: storage, collections, services and the
// websocket hub. The serve command mounts it on an echo server; the backup
// commands use the manager directly.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	medium storage.Medium
	hub    *websocket.Hub

	patientSvc     *patient.Service
	inventorySvc   *inventory.Service
	appointmentSvc *appointment.Service
	settingsSvc    *settings.Service
	backupMgr      *backup.Manager
	engine         *visit.Engine
}

func buildApp(logger zerolog.Logger) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Driver() != storage.DriverMemory {
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	medium, err := storage.Open(cfg.Driver(), cfg.DataDir, cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	hub := websocket.NewHub(logger)

	patients := store.NewCollection[*patient.Patient](patient.CollectionKey, medium,
		store.WithBus[*patient.Patient](hub), store.WithLogger[*patient.Patient](logger))
	items := store.NewCollection[*inventory.Item](inventory.CollectionKey, medium,
		store.WithBus[*inventory.Item](hub), store.WithLogger[*inventory.Item](logger))
	appts := store.NewCollection[*appointment.Appointment](appointment.CollectionKey, medium,
		store.WithBus[*appointment.Appointment](hub), store.WithLogger[*appointment.Appointment](logger))
	settingsCol := store.NewCollection[*settings.Settings](settings.CollectionKey, medium,
		store.WithBus[*settings.Settings](hub), store.WithLogger[*settings.Settings](logger),
		store.WithSeed([]*settings.Settings{settings.Defaults()}))

	triage := store.NewCollection[*visit.TriageRecord](visit.TriageCollectionKey, medium,
		store.WithBus[*visit.TriageRecord](hub), store.WithLogger[*visit.TriageRecord](logger))
	queue := store.NewCollection[*visit.QueueEntry](visit.QueueCollectionKey, medium,
		store.WithBus[*visit.QueueEntry](hub), store.WithLogger[*visit.QueueEntry](logger))
	consultations := store.NewCollection[*visit.Consultation](visit.ConsultationCollectionKey, medium,
		store.WithBus[*visit.Consultation](hub), store.WithLogger[*visit.Consultation](logger))
	prescriptions := store.NewCollection[*visit.Prescription](visit.PrescriptionCollectionKey, medium,
		store.WithBus[*visit.Prescription](hub), store.WithLogger[*visit.Prescription](logger))
	labOrders := store.NewCollection[*visit.LabOrder](visit.LabOrderCollectionKey, medium,
		store.WithBus[*visit.LabOrder](hub), store.WithLogger[*visit.LabOrder](logger))

	patientSvc := patient.NewService(patients)
	inventorySvc := inventory.NewService(items)
	appointmentSvc := appointment.NewService(appts)
	settingsSvc := settings.NewService(settingsCol)

	engine := visit.NewEngine(visit.Collections{
		Appointments:  appts,
		Patients:      patients,
		Triage:        triage,
		Queue:         queue,
		Consultations: consultations,
		Prescriptions: prescriptions,
		LabOrders:     labOrders,
	}, logger)

	return &app{
		cfg:            cfg,
		logger:         logger,
		medium:         medium,
		hub:            hub,
		patientSvc:     patientSvc,
		inventorySvc:   inventorySvc,
		appointmentSvc: appointmentSvc,
		settingsSvc:    settingsSvc,
		backupMgr:      backup.NewManager(patients, items, appts, settingsSvc),
		engine:         engine,
	}, nil
}

func (a *app) Close() {
	if err := a.medium.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("closing storage")
	}
}

// mount registers all routes and middleware on the echo server.
func (a *app) mount(e *echo.Echo) {
	e.HideBanner = true
	e.HidePort = true

	timeout := 30 * time.Second
	if d, err := time.ParseDuration(a.cfg.RequestTimeout); err == nil {
		timeout = d
	}

	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.Actor(a.cfg.DefaultActor))
	e.Use(middleware.BodyLimit(a.cfg.BodyLimit, a.cfg.ImportLimit))
	e.Use(middleware.RequestTimeout(timeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Content-Type", "X-Request-ID", "X-Actor"},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	apiV1 := e.Group("/api/v1")
	patient.NewHandler(a.patientSvc).RegisterRoutes(apiV1)
	inventory.NewHandler(a.inventorySvc).RegisterRoutes(apiV1)
	appointment.NewHandler(a.appointmentSvc).RegisterRoutes(apiV1)
	settings.NewHandler(a.settingsSvc).RegisterRoutes(apiV1)
	backup.NewHandler(a.backupMgr).RegisterRoutes(apiV1)
	visit.NewHandler(a.engine).RegisterRoutes(apiV1)

	websocket.NewHandler(a.hub).RegisterRoutes(e.Group(""))
}

func runServer() error {
	logger := newLogger()

	a, err := buildApp(logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build application")
		return err
	}
	defer a.Close()

	e := echo.New()
	a.mount(e)

	go func() {
		addr := ":" + a.cfg.Port
		logger.Info().Str("addr", addr).Str("driver", a.cfg.StorageDriver).Msg("server starting")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(ctx)
}
