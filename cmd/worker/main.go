package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"rollcall/internal/attendance"
	"rollcall/internal/config"
	"rollcall/internal/queue"
	"rollcall/internal/store"
)

// Worker consumes attempt messages and writes the attendance audit log.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "rollcall:attempts")
	}

	repo := attendance.NewRepository(db.Client)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("audit worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != queue.TypeAttempt {
			continue
		}

		var rec attendance.AuditRecord
		if err := json.Unmarshal(msg.Body, &rec); err != nil {
			log.Printf("undecodable attempt message: %v", err)
			continue
		}

		saved, err := repo.InsertAudit(ctx, rec)
		if err != nil {
			log.Printf("insert audit for user %s class %s failed: %v", rec.UserID, rec.ClassID, err)
			continue
		}
		log.Printf("audit %s recorded: user %s class %s outcome %s", saved.ID, saved.UserID, saved.ClassID, saved.Outcome)
	}

	log.Println("audit worker stopped")
}
