package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"dexflow/internal/auth"
	"dexflow/internal/chain"
	"dexflow/internal/config"
	"dexflow/internal/database"
	"dexflow/internal/engine"
	"dexflow/internal/ledger"
	"dexflow/internal/metrics"
	"dexflow/internal/orders"
	"dexflow/internal/pricing"
	"dexflow/internal/security"
	"dexflow/internal/types"
	"dexflow/pkg/middleware"
)

const (
	minOrders     = 10
	maxOrders     = 40
	numWorkers    = 4
	serverAddress = "http://localhost:8080"
	settleTimeout = 90 * time.Second
)

var networks = []struct {
	name      string
	token     string
	quote     string
	basePrice decimal.Decimal
	wallet    string
}{
	{"SOL", "SOL", "USDT", decimal.NewFromInt(150), "4Nd1mYvhGkXxXiPZLRmQmUXnPmRqbtmmN81ByTdm5cvM"},
	{"TON", "TON", "USDT", decimal.NewFromInt(6), "EQAvDfWFG0oYX7YM82PNNyi8TdWcYCi1YjknFzGTsH1Z23aM"},
}

var orderTypes = []string{types.OrderTypeMarket, types.OrderTypeStopLoss, types.OrderTypeTakeProfit}

// prices is shared between the embedded server and the simulation driver so
// the driver can steer quotes across trigger thresholds.
var prices = pricing.NewStaticSource()

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	// Configure pretty logging
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	// Sort durations for percentile calculations
	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	// Calculate mean
	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))

	// Calculate median
	median = rs.durations[len(rs.durations)/2]

	// Calculate percentiles
	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient handles HTTP communication with the order API
type simulationClient struct {
	baseURL   string
	authToken string
	client    *http.Client
	stats     map[string]*routeStats
}

// newSimulationClient creates and initializes a new simulation client
// It authenticates with the API and prepares performance tracking
func newSimulationClient() (*simulationClient, error) {
	// Create HTTP client with timeout
	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	sc := &simulationClient{
		baseURL: serverAddress,
		client:  client,
		stats: map[string]*routeStats{
			"auth":         {name: "Authentication"},
			"create":       {name: "Create Order"},
			"get":          {name: "Get Order"},
			"transactions": {name: "List Transactions"},
		},
	}

	// Get auth token
	token, err := sc.authenticate()
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	sc.authToken = token

	return sc, nil
}

// authenticate performs API authentication and returns a JWT token
func (sc *simulationClient) authenticate() (string, error) {
	start := time.Now()
	defer func() {
		sc.stats["auth"].addDuration(time.Since(start))
	}()

	credentials := map[string]string{
		"api_key":    auth.TestAPIKey,
		"api_secret": auth.TestAPISecret,
	}

	body, err := json.Marshal(credentials)
	if err != nil {
		return "", err
	}

	resp, err := sc.client.Post(
		fmt.Sprintf("%s/api/v1/auth/token", sc.baseURL),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("authentication failed with status: %d", resp.StatusCode)
	}

	var result struct {
		Token string `json:"jwt_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	return result.Token, nil
}

// createOrder submits a new order to the API
// Returns the order ID on success
func (sc *simulationClient) createOrder(req *orders.CreateOrderRequest) (string, error) {
	start := time.Now()
	defer func() {
		sc.stats["create"].addDuration(time.Since(start))
	}()

	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequest(
		"POST",
		fmt.Sprintf("%s/api/v1/orders", sc.baseURL),
		bytes.NewBuffer(body),
	)
	if err != nil {
		return "", err
	}

	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := sc.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("response", string(respBody)).Msg("Create order response")

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		sc.stats["create"].failures++
		return "", fmt.Errorf("create order failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Success bool `json:"success"`
		Data    struct {
			OrderID string `json:"order_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	if result.Data.OrderID == "" {
		return "", fmt.Errorf("no order ID in response: %s", string(respBody))
	}

	return result.Data.OrderID, nil
}

// getOrder retrieves the current status of an order
func (sc *simulationClient) getOrder(orderID string) (*types.OrderResponse, error) {
	start := time.Now()
	defer func() {
		sc.stats["get"].addDuration(time.Since(start))
	}()

	req, err := http.NewRequest(
		"GET",
		fmt.Sprintf("%s/api/v1/orders/%s", sc.baseURL, orderID),
		nil,
	)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))

	resp, err := sc.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		sc.stats["get"].failures++
		return nil, fmt.Errorf("get order failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Success bool                `json:"success"`
		Data    types.OrderResponse `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	return &result.Data, nil
}

// getTransactions retrieves the submission attempts recorded for an order
func (sc *simulationClient) getTransactions(orderID string) ([]types.TransactionResponse, error) {
	start := time.Now()
	defer func() {
		sc.stats["transactions"].addDuration(time.Since(start))
	}()

	req, err := http.NewRequest(
		"GET",
		fmt.Sprintf("%s/api/v1/orders/%s/transactions", sc.baseURL, orderID),
		nil,
	)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))

	resp, err := sc.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		sc.stats["transactions"].failures++
		return nil, fmt.Errorf("list transactions failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Success bool                        `json:"success"`
		Data    []types.TransactionResponse `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	return result.Data, nil
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\n📊 API Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, stats := range sc.stats {
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// main runs the conditional order simulation
// It starts a local API server, places a mix of market and conditional orders,
// then steers prices across trigger thresholds and waits for settlement
func main() {
	// Start the server in a goroutine
	go func() {
		if err := startServer(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for server to start
	time.Sleep(2 * time.Second)

	// Initialize simulation client
	simClient, err := newSimulationClient()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize simulation client")
	}

	// Generate random number of orders to place
	targetOrders := rand.Intn(maxOrders-minOrders) + minOrders
	log.Info().Int("target_orders", targetOrders).Msg("Starting simulation")

	// Channel to collect order IDs
	ordersChan := make(chan string, targetOrders)
	var wg sync.WaitGroup

	// Start worker goroutines
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			placeOrdersHTTP(workerID, targetOrders/numWorkers, simClient, ordersChan)
		}(i)
	}

	// Wait for all orders to be created
	wg.Wait()
	close(ordersChan)

	// Collect all order IDs
	var orderIDs []string
	for orderID := range ordersChan {
		orderIDs = append(orderIDs, orderID)
	}

	log.Info().Int("orders_created", len(orderIDs)).Msg("All orders placed")

	// Force every conditional order across its trigger threshold: first crash
	// the market 20% below base (fires stop losses), then rally 20% above
	// (fires take profits). The monitor picks each move up on its next scan.
	go steerPrices()

	stats := struct {
		TotalOrders  int
		Completed    int
		Failed       int
		Pending      int
		TotalGas     int64
		Attempts     int
		StartTime    time.Time
		OrderTypes   map[string]int
		Networks     map[string]int
		FailReasons  map[string]int
	}{
		StartTime:   time.Now(),
		OrderTypes:  make(map[string]int),
		Networks:    make(map[string]int),
		FailReasons: make(map[string]int),
	}
	stats.TotalOrders = len(orderIDs)

	// Poll until every order reaches a terminal status or the deadline hits
	deadline := time.Now().Add(settleTimeout)
	remaining := make(map[string]bool, len(orderIDs))
	for _, id := range orderIDs {
		remaining[id] = true
	}

	for len(remaining) > 0 && time.Now().Before(deadline) {
		for orderID := range remaining {
			order, err := simClient.getOrder(orderID)
			if err != nil {
				log.Error().Err(err).Str("order_id", orderID).Msg("Failed to get order")
				continue
			}

			if order.Status == types.OrderStatusPending {
				continue
			}
			delete(remaining, orderID)

			stats.OrderTypes[order.OrderType]++
			stats.Networks[order.Network]++

			switch order.Status {
			case types.OrderStatusCompleted:
				stats.Completed++
			case types.OrderStatusFailed:
				stats.Failed++
				stats.FailReasons[order.Error]++
			}

			txs, err := simClient.getTransactions(orderID)
			if err == nil {
				stats.Attempts += len(txs)
				for _, tx := range txs {
					stats.TotalGas += tx.GasUsed
				}
			}

			log.Info().
				Str("order_id", orderID).
				Str("order_type", order.OrderType).
				Str("network", order.Network).
				Str("status", order.Status).
				Int("attempts", len(txs)).
				Msg("Order settled")
		}
		time.Sleep(time.Second)
	}
	stats.Pending = len(remaining)

	// Print summary
	duration := time.Since(stats.StartTime)
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("🚀 CONDITIONAL ORDER SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Printf(`
📊 Order Statistics
------------------
Total Orders:     %d
Completed:        %d
Failed:           %d
Still Pending:    %d
Attempts Logged:  %d
Total Gas Used:   %d
Duration:         %v

📈 Order Type Distribution
------------------------
`, stats.TotalOrders, stats.Completed, stats.Failed, stats.Pending,
		stats.Attempts, stats.TotalGas, duration.Round(time.Millisecond))

	// Print order type distribution with simple ASCII bar chart
	maxTypeCount := 0
	for _, count := range stats.OrderTypes {
		if count > maxTypeCount {
			maxTypeCount = count
		}
	}

	for orderType, count := range stats.OrderTypes {
		barLength := int(float64(count) / float64(maxTypeCount) * 20)
		bar := strings.Repeat("█", barLength)
		fmt.Printf("%-12s: %s (%d)\n", orderType, bar, count)
	}

	fmt.Println("\n📉 Network Distribution")
	fmt.Println("---------------------")
	for network, count := range stats.Networks {
		barLength := int(float64(count) / float64(stats.TotalOrders) * 20)
		bar := strings.Repeat("█", barLength)
		fmt.Printf("%-4s: %s (%d)\n", network, bar, count)
	}

	if len(stats.FailReasons) > 0 {
		fmt.Println("\n⚠️  Failure Reasons")
		fmt.Println("-----------------")
		for reason, count := range stats.FailReasons {
			fmt.Printf("%-40s: %d\n", reason, count)
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 80))

	// Success rate calculation
	settled := stats.Completed + stats.Failed
	successRate := float64(stats.Completed) / float64(stats.TotalOrders) * 100
	log.Info().
		Float64("success_rate", successRate).
		Int("total_orders", stats.TotalOrders).
		Int("settled", settled).
		Int64("total_gas", stats.TotalGas).
		Dur("duration", duration).
		Msg("Simulation completed")

	simClient.printPerformanceStats()
}

// placeOrdersHTTP generates and submits random orders to the API
// Runs as a worker goroutine, sending created order IDs to ordersChan
func placeOrdersHTTP(workerID, numOrders int, simClient *simulationClient, ordersChan chan<- string) {
	for i := 0; i < numOrders; i++ {
		net := networks[rand.Intn(len(networks))]
		orderType := orderTypes[rand.Intn(len(orderTypes))]

		req := &orders.CreateOrderRequest{
			OrderType: orderType,
			Network:   net.name,
			FromToken: net.token,
			ToToken:   net.quote,
			Amount:    decimal.NewFromInt(int64(rand.Intn(10) + 1)),
		}

		// Conditional orders get a target within the ±20% band steerPrices
		// sweeps, so every one of them eventually fires.
		if orderType == types.OrderTypeStopLoss {
			offset := decimal.NewFromFloat(1 - rand.Float64()*0.15)
			expiry := time.Now().Add(time.Hour)
			req.Conditions = &types.Conditions{
				TargetPrice: net.basePrice.Mul(offset),
				ExpiresAt:   &expiry,
			}
		} else if orderType == types.OrderTypeTakeProfit {
			offset := decimal.NewFromFloat(1 + rand.Float64()*0.15)
			expiry := time.Now().Add(time.Hour)
			req.Conditions = &types.Conditions{
				TargetPrice: net.basePrice.Mul(offset),
				ExpiresAt:   &expiry,
			}
		}

		orderID, err := simClient.createOrder(req)
		if err != nil {
			log.Error().Err(err).
				Int("worker_id", workerID).
				Str("order_type", orderType).
				Str("network", net.name).
				Msg("Failed to create order")
			continue
		}

		ordersChan <- orderID
		log.Info().
			Int("worker_id", workerID).
			Str("order_id", orderID).
			Str("order_type", orderType).
			Str("network", net.name).
			Str("amount", req.Amount.String()).
			Msg("Order placed")

		// Random sleep between orders
		time.Sleep(time.Duration(rand.Intn(300)) * time.Millisecond)
	}
}

// steerPrices walks every pair down to 80% of base, then up to 120%, in 2%
// steps spaced wider than the monitor interval so each level gets scanned.
func steerPrices() {
	sweep := func(from, to, step float64) {
		for pct := from; ; pct += step {
			for _, net := range networks {
				price := net.basePrice.Mul(decimal.NewFromFloat(pct))
				prices.Set(net.name, net.token, net.quote, price)
			}
			time.Sleep(750 * time.Millisecond)
			if (step > 0 && pct >= to) || (step < 0 && pct <= to) {
				return
			}
		}
	}

	sweep(1.0, 0.80, -0.02)
	sweep(0.80, 1.20, 0.02)
}

// startServer initializes and starts the order API server
// Sets up all required services, the execution engine and routes
func startServer() error {
	cfg := config.Default()
	cfg.Database.Path = "simulation.db"
	// Scan fast so triggers fire within the polling window
	cfg.Engine.MonitorInterval = 500 * time.Millisecond
	// Simulation traffic should not trip the per-user placement limit
	cfg.Security.CreateOrder.Requests = 1000

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize services
	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret, "sim-user")

	securityService := security.NewService(db, cfg)
	ledgerService := ledger.NewService(db)
	orderService := orders.NewService(db, securityService)
	emitter := metrics.NewService(db)

	for _, net := range networks {
		prices.Set(net.name, net.token, net.quote, net.basePrice)
		if err := orderService.DB().CreateWallet(&types.Wallet{
			UserID:  "sim-user",
			Network: net.name,
			Address: net.wallet,
		}); err != nil {
			log.Debug().Err(err).Str("network", net.name).Msg("Wallet already provisioned")
		}
	}

	adapter := chain.NewSimulatedAdapter(time.Now().UnixNano())

	coordinator := engine.NewCoordinator(cfg, orderService.DB(), ledgerService, securityService, adapter, prices, emitter)
	orderService.SetDispatcher(coordinator)
	orderService.SetClaimGuard(coordinator.Claims())

	monitor := engine.NewMonitor(cfg, orderService.DB(), coordinator, prices, emitter)
	go monitor.Start(context.Background())

	// Initialize router
	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()
	authHandlers := auth.NewGinHandlers(authService)
	orderHandlers := orders.NewGinHandlers(orderService, ledgerService)

	// Setup routes
	setupRoutes(router, cfg, authHandlers, orderHandlers)

	// Start the server
	return router.Run(":8080")
}

// setupRoutes configures all API endpoints and their handlers
// Groups routes by functionality and applies appropriate middleware
func setupRoutes(
	router *gin.Engine,
	cfg *config.Config,
	authHandlers *auth.GinHandlers,
	orderHandlers *orders.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Order routes
		orderGroup := v1.Group("/orders")
		orderGroup.Use(middleware.JWTAuth(cfg.Auth.JWTSecret))
		{
			orderGroup.POST("", orderHandlers.CreateOrderHandler())
			orderGroup.GET("", orderHandlers.ListOrdersHandler())
			orderGroup.GET("/:order_id", orderHandlers.GetOrderHandler())
			orderGroup.GET("/:order_id/transactions", orderHandlers.ListOrderTransactionsHandler())
			orderGroup.DELETE("/:order_id", orderHandlers.CancelOrderHandler())
		}
	}
}
