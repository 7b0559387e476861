package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"time"

	"library-service/config"
	"library-service/handlers"
	"library-service/library"
	"library-service/payment"
	"library-service/storage"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	_ "github.com/mattn/go-sqlite3"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		ForceColors:     true,
		DisableQuote:    true,
		PadLevelText:    true,
	})

	cfg := config.Load()

	db, err := sql.Open("sqlite3", cfg.SQLitePath)
	if err != nil {
		logger.Fatalf("failed to open DB: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	store := &storage.Storage{DB: db}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := store.InitSchema(ctx); err != nil {
		logger.Fatalf("failed to initialize schema: %v", err)
	}

	svc := &library.Service{
		Store:   store,
		Gateway: payment.NewGateway(),
		Log:     logger,
		// UTC keeps the stored DATETIME strings comparable.
		Now: func() time.Time { return time.Now().UTC() },
	}

	handler := &handlers.Handler{
		Library: svc,
		Log:     logger,
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.CORSOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middleware.Logger)

	r.Post("/books", handler.AddBook)
	r.Get("/books", handler.ListBooks)
	r.Get("/books/{bookID}", handler.GetBook)
	r.Post("/loans", handler.BorrowBook)
	r.Post("/returns", handler.ReturnBook)
	r.Get("/patrons/{patronID}/report", handler.PatronReport)
	r.Get("/patrons/{patronID}/fees/{bookID}", handler.LateFee)
	r.Post("/payments", handler.PayLateFees)
	r.Post("/payments/{transactionID}/refund", handler.RefundPayment)
	r.Get("/payments/{transactionID}", handler.VerifyPayment)
	r.Post("/reports/overdue", handler.OverdueSweep)

	if cfg.WithDailyOverdueScan {
		c := cron.New()
		_, err := c.AddFunc(cfg.OverdueScanSchedule, func() {
			logger.Info("Scheduled overdue sweep triggered")
			if _, err := svc.OverdueSweep(context.Background()); err != nil {
				logger.Errorf("scheduled overdue sweep failed: %v", err)
			}
		})
		if err != nil {
			logger.Fatalf("failed to schedule cron: %v", err)
		}
		c.Start()
	}

	logger.Infof("starting on port %s...", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		logger.Fatal(err)
	}
}
