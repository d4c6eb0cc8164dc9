package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	clerk "github.com/clerk/clerk-sdk-go/v2"
	gorilllaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"printcraftAPI/handlers"
	"printcraftAPI/internal/imageproxy"
	"printcraftAPI/internal/orders"
	"printcraftAPI/internal/storage"
	"printcraftAPI/middleware"
	"printcraftAPI/services"

	_ "net/http/pprof"
)

var (
	dbPool          *pgxpool.Pool
	firebaseStorage *storage.FirebaseStorage
	orderClient     *orders.FunctionsClient
	productService  *services.ProductService
	orderService    *services.OrderService
	sessionManager  *services.CanvasSessionManager
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	clerkSecretKey := os.Getenv("CLERK_SECRET_KEY")
	if clerkSecretKey == "" {
		log.Fatal("CLERK_SECRET_KEY environment variable is not set")
	}
	clerk.SetKey(clerkSecretKey)
	log.Println("Clerk initialized successfully")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		log.Fatal("Failed to parse database URL:", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	dbPool, err = pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Fatal("Failed to create connection pool:", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Fatal("Failed to ping database:", err)
	}

	log.Println("Successfully connected to NeonDB")

	bucketName := os.Getenv("FIREBASE_STORAGE_BUCKET")
	if bucketName == "" {
		log.Fatal("FIREBASE_STORAGE_BUCKET environment variable is not set")
	}
	firebaseStorage, err = storage.NewFirebaseStorage("./serviceAccountKey.json", bucketName)
	if err != nil {
		log.Fatal("Failed to initialize Firebase storage:", err)
	}
	log.Println("Firebase storage initialized successfully")

	functionsURL := os.Getenv("ORDER_FUNCTIONS_URL")
	if functionsURL == "" {
		log.Fatal("ORDER_FUNCTIONS_URL environment variable is not set")
	}
	orderClient = orders.NewFunctionsClient(functionsURL, os.Getenv("ORDER_ANON_KEY"), nil)

	publicBaseURL := os.Getenv("PUBLIC_BASE_URL")
	if publicBaseURL == "" {
		publicBaseURL = "http://localhost:3333"
	}
	proxyRewrite := imageproxy.Rewrite(publicBaseURL + "/api/v1/proxy/image")

	trackingBaseURL := os.Getenv("TRACKING_BASE_URL")
	if trackingBaseURL == "" {
		trackingBaseURL = publicBaseURL
	}

	productService = services.NewProductService(dbPool)
	sessionManager = services.NewCanvasSessionManager(firebaseStorage, proxyRewrite)
	orderService = services.NewOrderService(productService, orderClient, firebaseStorage, trackingBaseURL)

	middleware.InitPrometheus()
}

func main() {
	defer func() {
		log.Println("Closing database connection pool...")
		dbPool.Close()
	}()

	// Initialize handlers
	productHandler := handlers.NewProductHandler(productService)
	canvasHandler := handlers.NewCanvasHandler(sessionManager, productService)
	orderHandler := handlers.NewOrderHandler(orderService, sessionManager)
	proxyHandler := imageproxy.NewHandler(&http.Client{Timeout: 15 * time.Second})

	r := mux.NewRouter()

	r.HandleFunc("/api/v1/canvas/ws/{sessionID}", canvasHandler.JoinCanvas)

	standardRouter := r.PathPrefix("/").Subrouter()

	go middleware.CleanupVisitors()

	standardRouter.Use(middleware.RateLimitMiddleware)
	standardRouter.Use(middleware.MonitorMiddleware)

	standardRouter.Handle("/metrics", middleware.BasicAuthMiddleware(promhttp.Handler()))
	standardRouter.PathPrefix("/debug/pprof/").Handler(middleware.PprofSecurityMiddleware(http.DefaultServeMux))

	assetsDir := "./assets"
	fs := http.FileServer(http.Dir(assetsDir))
	standardRouter.PathPrefix("/assets/").Handler(http.StripPrefix("/assets/", fs))
	log.Printf("Serving static files from %s at /assets/", assetsDir)

	standardRouter.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := dbPool.Ping(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status": "unhealthy", "error": "database connection failed"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "printcraft-api"}`))
	}).Methods("GET")

	// -------------------------------------------------------------------------
	// API V1 SUBROUTER
	// -------------------------------------------------------------------------
	// This inherits middleware from standardRouter
	api := standardRouter.PathPrefix("/api/v1").Subrouter()

	api.Handle("/proxy/image", proxyHandler).Methods("GET")

	api.HandleFunc("/products", productHandler.GetProducts).Methods("GET")

	// -------------------------------------------------------------------------
	// OPTIONAL AUTH ROUTES (guest allowed, token picks up saved designs and
	// the authenticated order procedure)
	// -------------------------------------------------------------------------
	optional := api.PathPrefix("").Subrouter()
	optional.Use(middleware.OptionalAuthMiddleware)

	optional.HandleFunc("/products/{productID}", productHandler.GetProductDetail).Methods("GET")
	optional.HandleFunc("/canvas/create", canvasHandler.CreateCanvasSession).Methods("POST")
	optional.HandleFunc("/canvas/{sessionID}/image", canvasHandler.UploadImage).Methods("POST")
	optional.HandleFunc("/canvas/{sessionID}/capture", canvasHandler.CaptureCanvas).Methods("POST")
	optional.HandleFunc("/canvas/{sessionID}/order", orderHandler.SubmitOrder).Methods("POST")

	// -------------------------------------------------------------------------
	// PROTECTED ROUTES (REQUIRE AUTH HEADER)
	// -------------------------------------------------------------------------
	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.ClerkAuthMiddleware)

	protected.HandleFunc("/products/{productID}/design", productHandler.SaveDesign).Methods("PUT")
	protected.HandleFunc("/products/{productID}/design", productHandler.GetSavedDesign).Methods("GET")

	// CORS configuration
	corsHandler := gorilllaHandlers.CORS(
		gorilllaHandlers.AllowedOrigins([]string{"*"}),
		gorilllaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorilllaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Pprof-Secret"}),
		gorilllaHandlers.ExposedHeaders([]string{"Content-Length"}),
		gorilllaHandlers.AllowCredentials(),
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = "3333"
	}
	port = ":" + port

	server := http.Server{
		Addr:         port,
		Handler:      corsHandler(r), // Pass the root router 'r'
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Error starting server:", err)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	sig := <-sigChan
	log.Println("Got signal:", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server shutdown complete")
}
