// README: Entry point; loads config, wires stores, services and transports, starts the HTTP server.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"fieldops/internal/config"
	"fieldops/internal/distance"
	"fieldops/internal/events"
	httptransport "fieldops/internal/http"
	"fieldops/internal/infra"
	"fieldops/internal/modules/appointment"
	"fieldops/internal/modules/dispatch"
	"fieldops/internal/modules/gapfill"
	"fieldops/internal/modules/location"
	"fieldops/internal/modules/route"
	"fieldops/internal/modules/scoring"
	"fieldops/internal/modules/technician"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Firebase.ProjectID == "" {
		log.Fatal("DISPATCH_FIREBASE_PROJECT_ID is required")
	}
	fb, err := infra.NewFirebase(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile, cfg.Firebase.DatabaseURL)
	if err != nil {
		log.Fatalf("firebase init: %v", err)
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal(err)
	}
	defer dbPool.Close()

	redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr)
	if err != nil {
		log.Fatal(err)
	}
	defer redisClient.Close()

	var publisher events.Publisher = events.Nop{}
	if cfg.RabbitMQ.URL != "" {
		conn, ch, err := infra.NewRabbitChannel(cfg.RabbitMQ.URL)
		if err != nil {
			log.Fatal(err)
		}
		defer conn.Close()
		rabbit, err := events.NewRabbitPublisher(ch, cfg.RabbitMQ.Exchange)
		if err != nil {
			log.Fatal(err)
		}
		publisher = rabbit
	} else {
		log.Printf("DISPATCH_RABBITMQ_URL not set; domain events are dropped")
	}

	var mirrors []location.Mirror
	if fb.Database != nil {
		mirrors = append(mirrors, location.NewRTDBMirror(fb.Database))
	}
	if len(cfg.Kafka.Brokers) > 0 {
		stream := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.LocationTopic)
		defer stream.Close()
		mirrors = append(mirrors, location.NewStreamMirror(stream))
	}

	var remote distance.Provider
	if cfg.Maps.APIKey != "" {
		google, err := distance.NewGoogleMatrixProvider(cfg.Maps.APIKey, cfg.Maps.RatePerSecond,
			distance.NewMatrixCache(redisClient, cfg.Maps.CacheTTL))
		if err != nil {
			log.Fatal(err)
		}
		remote = google
	} else {
		log.Printf("DISPATCH_MAPS_API_KEY not set; routes use local distance estimates")
	}

	appointmentStore := appointment.NewStore(dbPool)
	technicianStore := technician.NewStore(dbPool)

	locationSvc := location.NewService(location.NewStore(dbPool), location.NewCache(redisClient), mirrors...)

	hub := dispatch.NewHub(cfg.Hub.SendBuffer)
	dispatchSvc := dispatch.NewService(hub, locationSvc, appointmentStore, publisher)

	routeSvc := route.NewService(route.NewStore(dbPool), appointmentStore, route.NewOptimizer(remote, cfg.Maps.Timeout), publisher)
	routeSvc.SetNotifier(dispatchSvc)

	scoringSvc := scoring.NewService(technicianStore, appointmentStore, locationSvc)
	gapfillSvc := gapfill.NewService(appointmentStore, technicianStore, locationSvc)

	gin.SetMode(gin.ReleaseMode)
	router := httptransport.NewRouter(httptransport.RouterDeps{
		Verifier:  fb.Verifier,
		Hub:       hub,
		Routes:    routeSvc,
		Dispatch:  dispatchSvc,
		Locations: locationSvc,
		Scoring:   scoringSvc,
		GapFill:   gapfillSvc,
		Jobs:      appointmentStore,
	})

	if err := httptransport.NewServer(cfg.HTTP.Addr, router).Run(ctx); err != nil {
		log.Fatal(err)
	}
}
