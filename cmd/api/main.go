package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rollcall/internal/account"
	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/config"
	"rollcall/internal/geo"
	"rollcall/internal/httpmiddleware"
	"rollcall/internal/queue"
	"rollcall/internal/roster"
	"rollcall/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.AutoMigrate {
		if err := db.Migrate("migrations"); err != nil {
			return err
		}
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "rollcall:attempts")
	}

	accounts := account.NewService(account.NewRepository(db.Client))
	classes := roster.NewService(roster.NewRepository(db.Client))
	attRepo := attendance.NewRepository(db.Client)
	att := attendance.NewService(attRepo, attendance.Config{
		GeofenceRadiusFeet: cfg.GeofenceRadiusFeet,
		WindowBefore:       cfg.WindowBefore,
		WindowAfter:        cfg.WindowAfter,
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/v1/accounts/register", func(c *gin.Context) {
		var req struct {
			Name     string `json:"name" binding:"required"`
			Email    string `json:"email" binding:"required,email"`
			Password string `json:"password" binding:"required,min=8"`
			Role     string `json:"role" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		acc, err := accounts.Register(c.Request.Context(), req.Name, req.Email, req.Password, req.Role)
		if err != nil {
			switch {
			case errors.Is(err, account.ErrEmailTaken), errors.Is(err, account.ErrInvalidRole):
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			default:
				log.Printf("register failed: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
			}
			return
		}

		tokens, err := auth.Issue(acc.ID, acc.Email, acc.Role, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"account":       acc,
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	r.POST("/v1/accounts/login", func(c *gin.Context) {
		var req struct {
			Email    string `json:"email" binding:"required,email"`
			Password string `json:"password" binding:"required"`
			Role     string `json:"role"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		acc, err := accounts.Login(c.Request.Context(), req.Email, req.Password, req.Role)
		if err != nil {
			if errors.Is(err, account.ErrInvalidCredentials) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
				return
			}
			log.Printf("login failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
			return
		}

		tokens, err := auth.Issue(acc.ID, acc.Email, acc.Role, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"account":       acc,
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	authGroup := r.Group("/v1", auth.RequireAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	authGroup.GET("/classes", func(c *gin.Context) {
		claims, _ := auth.FromContext(c)
		list, err := classes.ClassesForUser(c.Request.Context(), claims.Subject)
		if err != nil {
			log.Printf("list classes failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "list classes failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"classes": list})
	})

	authGroup.POST("/classes", auth.RequireRole(account.RoleTeacher), func(c *gin.Context) {
		claims, _ := auth.FromContext(c)
		var in roster.CreateClassInput
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cls, err := classes.CreateClass(c.Request.Context(), claims.Subject, in)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"class": cls})
	})

	authGroup.POST("/classes/join", func(c *gin.Context) {
		claims, _ := auth.FromContext(c)
		var req struct {
			EntryCode string `json:"entry_code" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cls, err := classes.JoinClass(c.Request.Context(), claims.Subject, req.EntryCode)
		if err != nil {
			c.JSON(rosterStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"class": cls})
	})

	authGroup.POST("/classes/:id/leave", func(c *gin.Context) {
		claims, _ := auth.FromContext(c)
		if err := classes.LeaveClass(c.Request.Context(), claims.Subject, c.Param("id")); err != nil {
			c.JSON(rosterStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"left": true})
	})

	authGroup.DELETE("/classes/:id", auth.RequireRole(account.RoleTeacher), func(c *gin.Context) {
		claims, _ := auth.FromContext(c)
		if err := classes.DeleteClass(c.Request.Context(), claims.Subject, c.Param("id")); err != nil {
			c.JSON(rosterStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": true})
	})

	authGroup.GET("/classes/:id/students", auth.RequireRole(account.RoleTeacher), func(c *gin.Context) {
		claims, _ := auth.FromContext(c)
		students, err := classes.Students(c.Request.Context(), claims.Subject, c.Param("id"))
		if err != nil {
			c.JSON(rosterStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"students": students})
	})

	authGroup.POST("/attendance", func(c *gin.Context) {
		claims, _ := auth.FromContext(c)
		var req struct {
			ClassID   string   `json:"class_id" binding:"required"`
			Latitude  *float64 `json:"latitude"`
			Longitude *float64 `json:"longitude"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// Geolocation denied or unavailable arrives as missing coordinates
		// and fails the geofence check closed.
		pos := geo.Point{Latitude: math.NaN(), Longitude: math.NaN()}
		if req.Latitude != nil && req.Longitude != nil {
			pos = geo.Point{Latitude: *req.Latitude, Longitude: *req.Longitude}
		}

		res, err := att.Mark(c.Request.Context(), claims.Email, req.ClassID, pos)
		if err != nil {
			log.Printf("mark attendance failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "attendance attempt failed"})
			return
		}

		publishAttempt(c.Request.Context(), q, claims.Subject, req.ClassID, pos, res)

		if !res.Marked {
			c.JSON(http.StatusOK, gin.H{"marked": false, "reason": res.Reason})
			return
		}
		c.JSON(http.StatusOK, gin.H{"marked": true})
	})

	authGroup.GET("/attendance/log", auth.RequireRole(account.RoleTeacher), func(c *gin.Context) {
		limit, offset := 50, 0
		if v := c.Query("limit"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				limit = parsed
			}
		}
		if v := c.Query("offset"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				offset = parsed
			}
		}
		records, err := attRepo.ListAudit(c.Request.Context(), c.Query("user_id"), c.Query("class_id"), limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// publishAttempt queues the audit record best-effort; a queue failure never
// fails the attempt.
func publishAttempt(ctx context.Context, q queue.Queue, userID, classID string, pos geo.Point, res attendance.Result) {
	outcome := string(res.Reason)
	if res.Marked {
		outcome = "marked"
	}
	if !pos.Valid() {
		// NaN is not representable in JSON.
		pos = geo.Point{}
	}
	body, err := json.Marshal(attendance.AuditRecord{
		UserID:     userID,
		ClassID:    classID,
		OccurredAt: time.Now().UTC(),
		Latitude:   pos.Latitude,
		Longitude:  pos.Longitude,
		Outcome:    outcome,
	})
	if err != nil {
		log.Printf("encode audit record failed: %v", err)
		return
	}
	if err := q.Publish(ctx, queue.Message{Type: queue.TypeAttempt, Body: body}); err != nil {
		log.Printf("queue publish failed: %v", err)
	}
}

func rosterStatus(err error) int {
	switch {
	case errors.Is(err, roster.ErrNotFound), errors.Is(err, roster.ErrBadEntryCode):
		return http.StatusNotFound
	case errors.Is(err, roster.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, roster.ErrAlreadyJoined):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
