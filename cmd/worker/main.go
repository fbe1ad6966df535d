package main

import (
	"context"
	"log"

	"go.temporal.io/sdk/client"
	temporalworker "go.temporal.io/sdk/worker"

	"tareas/api/internal/config"
	"tareas/api/internal/email"
	"tareas/api/internal/notify"
	"tareas/api/internal/store"
	"tareas/api/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx := context.Background()

	database, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer database.Close()
	dataStore := store.NewPostgresStore(database)

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	dispatcher := notify.NewDispatcher(dataStore, notify.Options{
		Pusher:     notify.NewExpoClient(cfg.ExpoPushURL, cfg.ExpoPushToken),
		Mailer:     mailer,
		AppBaseURL: cfg.AppBaseURL,
		Retention:  cfg.NotificationRetention,
	})

	c, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalHostPort,
		Namespace: cfg.TemporalNamespace,
	})
	if err != nil {
		log.Fatalf("unable to create Temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.TemporalTaskQueue, &worker.Activities{Store: dataStore, Notifier: dispatcher})
	if err := worker.StartCronJobs(ctx, c, cfg.TemporalTaskQueue, worker.DefaultJobs()); err != nil {
		log.Fatalf("schedule cron jobs: %v", err)
	}

	log.Printf("worker: started (taskQueue=%s)", cfg.TemporalTaskQueue)
	if err := w.Run(temporalworker.InterruptCh()); err != nil {
		log.Fatalf("worker exited: %v", err)
	}
}
