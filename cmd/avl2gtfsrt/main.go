package main

import (
	"context"
	"fmt"
	logger "log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ardanlabs/conf"
	"github.com/nats-io/nats.go"

	"github.com/sebastianknopf/avl2gtfsrt/business/gtfsrt"
	"github.com/sebastianknopf/avl2gtfsrt/business/ioevents"
	"github.com/sebastianknopf/avl2gtfsrt/business/model"
	"github.com/sebastianknopf/avl2gtfsrt/business/nominal"
	"github.com/sebastianknopf/avl2gtfsrt/business/nominal/otp"
	"github.com/sebastianknopf/avl2gtfsrt/business/store"
	"github.com/sebastianknopf/avl2gtfsrt/business/vehicle"
	"github.com/sebastianknopf/avl2gtfsrt/foundation/database"
)

var build = "develop"

func main() {
	log := logger.New(os.Stdout, "AVL2GTFSRT : ", logger.LstdFlags|logger.Lmicroseconds|logger.Lshortfile)
	if err := run(log); err != nil {
		log.Printf("main: error: %+v", err)
		os.Exit(1)
	}
}

func run(log *logger.Logger) error {
	var cfg struct {
		conf.Version
		Args conf.Args

		Debug          bool   `conf:"default:false"`
		InstanceId     string `conf:"default:avl2gtfsrt-1"`
		OrganisationId string `conf:"default:default"`
		ItcsId         string `conf:"default:default"`
		Timezone       string `conf:"default:Europe/Berlin"`
		ServerTimezone string `conf:"default:UTC"`

		OperatingDayEnd string `conf:"default:27:00:00"`

		Matching struct {
			MaxInterval           int     `conf:"default:5"`
			MaxFailures           int     `conf:"default:5"`
			DataReviewSeconds     int     `conf:"default:120"`
			MaxDataPoints         int     `conf:"default:60"`
			ShapeFilterEnabled    bool    `conf:"default:false"`
			ShapeFilterDistance   float64 `conf:"default:50"`
		}

		Nominal struct {
			AdapterType            string `conf:"default:otp"`
			OtpEndpoint            string `conf:"default:http://localhost:8080/otp/routers/default/index/graphql"`
			RequestTimeoutSeconds  int    `conf:"default:5"`
		}

		DB struct {
			User       string `conf:"default:postgres"`
			Password   string `conf:"default:postgres,noprint"`
			Host       string `conf:"default:0.0.0.0"`
			Name       string `conf:"default:postgres"`
			DisableTLS bool   `conf:"default:true"`
		}

		NATS struct {
			URL                     string `conf:"default:localhost"`
			ItcsInboxQueueGroup     string `conf:"default:avl2gtfsrt"`
			PhysicalPositionQueueGroup string `conf:"default:avl2gtfsrt"`
		}

		MQTT struct {
			BrokerURL     string `conf:"default:tcp://localhost:1883"`
			ClientId      string `conf:"default:avl2gtfsrt"`
			Username      string `conf:"default:"`
			Password      string `conf:"default:,noprint"`
			PushMinInterval int  `conf:"default:2"`
		}

		WorkerPoolSize int `conf:"default:10"`
		QueueCapacity  int `conf:"default:100"`
		HTTPPort       int `conf:"default:8080"`
	}
	cfg.Version.SVN = build
	cfg.Version.Desc = "Converts AVL positioning events into GTFS-Realtime VehiclePosition and TripUpdate feeds"

	const prefix = "AVL2GTFSRT"
	if err := conf.Parse(os.Args[1:], prefix, &cfg); err != nil {
		switch err {
		case conf.ErrHelpWanted:
			usage, err := conf.Usage(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config usage: %w", err)
			}
			fmt.Println(usage)
			return nil
		case conf.ErrVersionWanted:
			version, err := conf.VersionString(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config version: %w", err)
			}
			fmt.Println(version)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	log.Printf("main: Started : Application initializing : version %s", build)
	defer log.Println("main: Completed")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Printf("main: Config :\n%v\n", out)

	operatingDayEndSeconds, err := model.ParseOperatingDayEnd(cfg.OperatingDayEnd)
	if err != nil {
		return fmt.Errorf("parsing OPERATING_DAY_END: %w", err)
	}

	serverLocation, err := time.LoadLocation(cfg.ServerTimezone)
	if err != nil {
		return fmt.Errorf("loading server timezone %q: %w", cfg.ServerTimezone, err)
	}

	// =========================================================================
	// Start Database

	log.Println("main: Initializing database support")

	db, err := database.Open(database.Config{
		User:       cfg.DB.User,
		Password:   cfg.DB.Password,
		Host:       cfg.DB.Host,
		Name:       cfg.DB.Name,
		DisableTLS: cfg.DB.DisableTLS,
	})
	if err != nil {
		return fmt.Errorf("connecting to db: %w", err)
	}
	defer func() {
		log.Printf("main: Database Stopping : %s", cfg.DB.Host)
		if err := db.Close(); err != nil {
			log.Printf("main: error closing database: %v", err)
		}
	}()

	if _, err := db.Exec(store.Schema); err != nil {
		return fmt.Errorf("applying store schema: %w", err)
	}

	st := store.New(db, cfg.Matching.DataReviewSeconds, cfg.Matching.MaxDataPoints)

	// =========================================================================
	// Start nominal adapter

	log.Printf("main: Configuring nominal adapter %q", cfg.Nominal.AdapterType)

	var nominalAdapter nominal.Adapter
	switch cfg.Nominal.AdapterType {
	case "otp":
		nominalAdapter = otp.NewAdapter(cfg.Nominal.OtpEndpoint,
			time.Duration(cfg.Nominal.RequestTimeoutSeconds)*time.Second, operatingDayEndSeconds)
	default:
		return fmt.Errorf("unsupported NOMINAL_ADAPTER_TYPE: %s", cfg.Nominal.AdapterType)
	}
	nominalClient := nominal.NewClient(nominalAdapter)

	// =========================================================================
	// Start NATS

	log.Printf("main: Connecting to NATS\n")
	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("unable to establish connection to nats server: %w", err)
	}
	defer func() {
		log.Printf("main: closing connection to NATS")
		natsConnection.Close()
	}()
	bus := ioevents.NewBus(natsConnection, log)
	defer bus.Close()

	// =========================================================================
	// Start MQTT differential publisher

	log.Printf("main: Connecting to MQTT broker %s\n", cfg.MQTT.BrokerURL)
	publisher, err := ioevents.NewDifferentialPublisher(cfg.MQTT.BrokerURL, cfg.MQTT.ClientId,
		cfg.MQTT.Username, cfg.MQTT.Password, ioevents.DifferentialTopicTemplate, log)
	if err != nil {
		return fmt.Errorf("connecting to mqtt broker: %w", err)
	}
	defer publisher.Close()

	// =========================================================================
	// Wire the vehicle pipeline

	assembler := gtfsrt.NewAssembler(st, serverLocation)
	pushTrigger := gtfsrt.NewPushTrigger(assembler, publisher,
		time.Duration(cfg.MQTT.PushMinInterval)*time.Second, log)

	machineConfig := vehicle.Config{
		MatchingMaxInterval:       time.Duration(cfg.Matching.MaxInterval) * time.Second,
		MatchingMaxFailures:       cfg.Matching.MaxFailures,
		OperatingDayEndSeconds:    operatingDayEndSeconds,
		ShapeFilterEnabled:        cfg.Matching.ShapeFilterEnabled,
		ShapeFilterDistanceMeters: cfg.Matching.ShapeFilterDistance,
	}
	machine := vehicle.NewMachine(st, nominalClient, machineConfig, log)

	backgroundCtx := context.Background()
	dispatcher := vehicle.NewDispatcher(log,
		ioevents.RunGnssUpdateHandler(backgroundCtx, machine, st, pushTrigger, log),
		cfg.WorkerPoolSize, cfg.QueueCapacity)
	defer dispatcher.Close()

	processor := ioevents.NewProcessor(cfg.OrganisationId, cfg.ItcsId, bus, dispatcher, machine, st, pushTrigger, log)
	if err := processor.Start(); err != nil {
		return fmt.Errorf("starting event processor: %w", err)
	}

	// =========================================================================
	// Start the HTTP feed server

	httpServer := gtfsrt.NewHTTPServer(log, assembler, cfg.HTTPPort)
	log.Printf("main: Starting feed server on port %d", cfg.HTTPPort)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil {
			log.Printf("main: feed server ListenAndServe ended: %s", err)
		}
	}()

	// =========================================================================
	// Shutdown orchestration

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	log.Printf("main: avl2gtfsrt instance %s ready", cfg.InstanceId)

	<-shutdown
	log.Printf("main: shutdown signal received, shutting down")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: error shutting down feed server: %s", err)
		}
	}()
	wg.Wait()

	log.Printf("main: subroutines shut down, exiting avl2gtfsrt")
	return nil
}
