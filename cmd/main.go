package main

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/vehicle-recon/internal/auth"
	"github.com/ukydev/vehicle-recon/internal/bottleneck"
	"github.com/ukydev/vehicle-recon/internal/config"
	"github.com/ukydev/vehicle-recon/internal/db"
	"github.com/ukydev/vehicle-recon/internal/handlers"
	"github.com/ukydev/vehicle-recon/internal/middleware"
	"github.com/ukydev/vehicle-recon/internal/notify"
	"github.com/ukydev/vehicle-recon/internal/progression"
	"github.com/ukydev/vehicle-recon/internal/steps"
	"github.com/ukydev/vehicle-recon/internal/workitems"
)

func main() {
	cfg := config.Load()
	cfg.ConfigureLogging()

	client, err := db.ConnectMongo()
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	log.Info("Connected to MongoDB")
	database := client.Database(cfg.MongoDB)

	stepCollection := &db.MongoStepCollection{
		Collection: database.Collection("steps"),
		Meta:       database.Collection("registry_meta"),
	}
	assignmentCollection := &db.MongoAssignmentCollection{Collection: database.Collection("step_assignments")}
	vehicleCollection := &db.MongoVehicleCollection{Collection: database.Collection("vehicles")}
	stateCollection := &db.MongoStepStateCollection{Collection: database.Collection("vehicle_step_states")}
	workItemCollection := &db.MongoWorkItemCollection{Collection: database.Collection("work_items")}
	transitionCollection := &db.MongoTransitionCollection{Collection: database.Collection("work_item_transitions")}
	templateCollection := &db.MongoTemplateCollection{Collection: database.Collection("work_item_templates")}
	notificationCollection := &db.MongoNotificationCollection{Collection: database.Collection("notifications")}
	preferenceCollection := &db.MongoPreferenceCollection{Collection: database.Collection("notification_preferences")}
	userCollection := &db.MongoUserCollection{Collection: database.Collection("users")}

	// Outbound channels ride on MQTT. The server stays up without a broker,
	// only in-app notifications are recorded then.
	var channels []notify.Channel
	mqttClient, err := notify.ConnectMQTT()
	if err != nil {
		log.WithError(err).Warn("MQTT unavailable, transport channels disabled")
	} else {
		log.WithField("broker", cfg.MQTTBroker).Info("Connected to MQTT broker")
		publisher := &notify.MQTTPublisher{Client: mqttClient}
		channels = append(channels,
			notify.NewEmailChannel(publisher),
			notify.NewSoundChannel(publisher),
			notify.NewDesktopChannel(publisher),
		)
	}

	dispatcher := notify.NewDispatcher(preferenceCollection, assignmentCollection, userCollection, notificationCollection, channels...)
	inbox := notify.NewInbox(notificationCollection, preferenceCollection)

	registry := steps.NewRegistry(stepCollection, assignmentCollection, stateCollection)
	tracker := progression.NewTracker(stepCollection, stateCollection, vehicleCollection, dispatcher)
	lifecycle := workitems.NewService(workItemCollection, transitionCollection, templateCollection, stateCollection, dispatcher)
	detector := bottleneck.NewDetector(stepCollection, stateCollection)

	if mqttClient != nil {
		if err := notify.SubscribeEvents(mqttClient, dispatcher); err != nil {
			log.WithError(err).Warn("External event ingress disabled")
		}
	}

	go scanAlerts(detector, dispatcher, time.Duration(cfg.AlertScanSeconds)*time.Second)

	authService, err := auth.NewService()
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize auth service")
	}
	authMiddleware := middleware.NewAuthMiddleware(authService)
	rateLimiter := middleware.NewRateLimitMiddleware()

	authHandler := handlers.NewAuthHandler(authService, userCollection, preferenceCollection)
	stepHandler := handlers.NewStepHandler(registry, detector)
	vehicleHandler := handlers.NewVehicleHandler(vehicleCollection, tracker)
	workItemHandler := handlers.NewWorkItemHandler(lifecycle, templateCollection)
	notificationHandler := handlers.NewNotificationHandler(inbox)

	mux := http.NewServeMux()
	perm := func(action string, h http.HandlerFunc) http.Handler {
		return authMiddleware.RequirePermission(action)(h)
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.HandleFunc("GET /api/auth/profile", authHandler.GetProfile)
	mux.HandleFunc("PUT /api/auth/profile", authHandler.UpdateProfile)
	mux.HandleFunc("POST /api/auth/change-password", authHandler.ChangePassword)

	mux.Handle("GET /api/steps", perm("view_steps", stepHandler.List))
	mux.Handle("POST /api/steps", perm("manage_steps", stepHandler.Create))
	mux.Handle("PUT /api/steps/reorder", perm("manage_steps", stepHandler.Reorder))
	mux.Handle("PUT /api/steps/{id}", perm("manage_steps", stepHandler.Update))
	mux.Handle("DELETE /api/steps/{id}", perm("manage_steps", stepHandler.Delete))
	mux.Handle("PUT /api/steps/{id}/assignments", perm("manage_steps", stepHandler.Assign))
	mux.Handle("GET /api/steps/{id}/sla", perm("view_alerts", stepHandler.SLAStatus))
	mux.Handle("GET /api/steps/summary", perm("view_steps", stepHandler.Summary))
	mux.Handle("GET /api/alerts", perm("view_alerts", stepHandler.Alerts))

	mux.Handle("POST /api/vehicles", perm("move_vehicle", vehicleHandler.Create))
	mux.Handle("GET /api/vehicles", perm("view_vehicles", vehicleHandler.List))
	mux.Handle("GET /api/vehicles/{id}", perm("view_vehicles", vehicleHandler.Get))
	mux.Handle("POST /api/vehicles/{id}/move", perm("move_vehicle", vehicleHandler.Move))
	mux.Handle("GET /api/vehicles/{id}/step-state", perm("view_vehicles", vehicleHandler.StepState))
	mux.Handle("GET /api/vehicles/{id}/history", perm("view_vehicles", vehicleHandler.History))
	mux.Handle("GET /api/vehicles/{id}/work-items", perm("view_work_items", workItemHandler.ListByVehicle))

	mux.Handle("POST /api/work-items", perm("create_work_item", workItemHandler.Create))
	mux.Handle("POST /api/work-items/from-template", perm("create_work_item", workItemHandler.CreateFromTemplate))
	mux.Handle("GET /api/work-items/{id}", perm("view_work_items", workItemHandler.Get))
	mux.Handle("PUT /api/work-items/{id}", perm("create_work_item", workItemHandler.Update))
	mux.Handle("DELETE /api/work-items/{id}", perm("transition_work_item", workItemHandler.Delete))
	mux.Handle("GET /api/work-items/{id}/history", perm("view_work_items", workItemHandler.History))
	mux.Handle("POST /api/work-items/{id}/approve", perm("transition_work_item", workItemHandler.Approve))
	mux.Handle("POST /api/work-items/{id}/decline", perm("transition_work_item", workItemHandler.Decline))
	mux.Handle("POST /api/work-items/{id}/schedule", perm("transition_work_item", workItemHandler.Schedule))
	mux.Handle("POST /api/work-items/{id}/start", perm("transition_work_item", workItemHandler.Start))
	mux.Handle("POST /api/work-items/{id}/pause", perm("transition_work_item", workItemHandler.Pause))
	mux.Handle("POST /api/work-items/{id}/resume", perm("transition_work_item", workItemHandler.Resume))
	mux.Handle("POST /api/work-items/{id}/block", perm("transition_work_item", workItemHandler.Block))
	mux.Handle("POST /api/work-items/{id}/unblock", perm("transition_work_item", workItemHandler.Unblock))
	mux.Handle("POST /api/work-items/{id}/complete", perm("transition_work_item", workItemHandler.Complete))
	mux.Handle("POST /api/work-items/{id}/cancel", perm("transition_work_item", workItemHandler.Cancel))
	mux.Handle("POST /api/work-item-templates", perm("manage_steps", workItemHandler.CreateTemplate))
	mux.Handle("GET /api/work-item-templates", perm("create_work_item", workItemHandler.ListTemplates))

	mux.HandleFunc("GET /api/notifications", notificationHandler.List)
	mux.HandleFunc("GET /api/notifications/unread-count", notificationHandler.UnreadCount)
	mux.HandleFunc("POST /api/notifications/{id}/read", notificationHandler.MarkRead)
	mux.HandleFunc("GET /api/notifications/preferences", notificationHandler.GetPreferences)
	mux.HandleFunc("PUT /api/notifications/preferences", notificationHandler.UpdatePreferences)

	handler := rateLimiter.RateLimit(300, 60)(authMiddleware.Authenticate(mux))

	log.WithField("port", cfg.Port).Info("HTTP server listening")
	if err := http.ListenAndServe(":"+cfg.Port, handler); err != nil {
		log.WithError(err).Fatal("HTTP server stopped")
	}
}

// scanAlerts periodically recomputes bottleneck alerts and feeds them to the
// dispatcher.
func scanAlerts(detector *bottleneck.Detector, dispatcher *notify.Dispatcher, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		alerts, err := detector.ComputeAlerts(ctx)
		if err != nil {
			log.WithError(err).Error("Alert scan failed")
			cancel()
			continue
		}
		for _, alert := range alerts {
			dispatcher.Publish(ctx, notify.EventFromAlert(alert))
		}
		if len(alerts) > 0 {
			log.WithField("count", len(alerts)).Info("Bottleneck alerts dispatched")
		}
		cancel()
	}
}
