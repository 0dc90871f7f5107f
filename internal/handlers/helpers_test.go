package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/tripnest/booking-backend/internal/database/memory"
	"github.com/tripnest/booking-backend/internal/models"
	"github.com/tripnest/booking-backend/internal/services"
	"github.com/tripnest/booking-backend/pkg/events"
	"github.com/tripnest/booking-backend/pkg/idempotency"
	"github.com/tripnest/booking-backend/pkg/jwt"
)

const testWebhookSecret = "webhook-test-secret"

type caller struct {
	id    uuid.UUID
	token string
}

// apiEnv serves the full router over an in-memory store
type apiEnv struct {
	store       *memory.Store
	ledger      *services.InventoryLedger
	coordinator *services.ReservationCoordinator
	router      *gin.Engine

	traveller caller
	stranger  caller
	vendor    caller
	rival     caller // a second vendor
	admin     caller
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := quietLogger()
	store := memory.NewStore()
	retry := services.RetryPolicy{
		MaxRetries: 1,
		Initial:    time.Millisecond,
		Max:        time.Millisecond,
		MaxElapsed: time.Second,
		Multiplier: 2,
	}

	ledger := services.NewInventoryLedger(store.Departures(), services.InventoryLedgerConfig{MaxCASAttempts: 20, Retry: retry}, logger)
	lifecycle := services.NewBookingLifecycleService(store.Bookings(), 20, retry, logger)
	cfg := services.DefaultReservationCoordinatorConfig()
	cfg.Retry = retry
	coordinator := services.NewReservationCoordinator(
		ledger, lifecycle, store.Bookings(), store.Plans(), store.Releases(), store.Audits(),
		events.NoopPublisher{}, cfg, logger,
	)
	departures := services.NewDepartureService(ledger, store.Departures(), store.Plans(), retry, logger)
	worker := services.NewReleaseWorker(coordinator, ledger, store.Bookings(), store.Releases(), services.DefaultReleaseWorkerConfig(), logger)
	cron := services.NewCronService(coordinator, ledger, store.Departures(), store.Bookings(), services.DefaultCronConfig(), logger)

	jwtService := jwt.NewService("handler-test-secret", "test", time.Hour)
	router := gin.New()
	RegisterRoutes(router, Handlers{
		Booking:   NewBookingHandler(coordinator, logger),
		Departure: NewDepartureHandler(departures, logger),
		Admin:     NewAdminHandler(coordinator, worker, cron, logger),
		Webhook:   NewWebhookHandler(coordinator, idempotency.NewMemoryStore(time.Hour, time.Minute), testWebhookSecret, logger),
	}, jwtService)

	newCaller := func(roles ...string) caller {
		id := uuid.New()
		token, err := jwtService.GenerateAccessToken(id, id.String()+"@example.com", roles)
		require.NoError(t, err)
		return caller{id: id, token: token}
	}

	return &apiEnv{
		store:       store,
		ledger:      ledger,
		coordinator: coordinator,
		router:      router,
		traveller:   newCaller(jwt.RoleUser),
		stranger:    newCaller(jwt.RoleUser),
		vendor:      newCaller(jwt.RoleVendor),
		rival:       newCaller(jwt.RoleVendor),
		admin:       newCaller(jwt.RoleAdmin),
	}
}

// seedDeparture stores a plan owned by the env vendor and one departure on it
func (e *apiEnv) seedDeparture(t *testing.T, capacity int) *models.Departure {
	t.Helper()
	ctx := context.Background()

	plan := &models.Plan{VendorID: e.vendor.id.String(), Name: "Knuckles Range Trek", Price: 120, IsActive: true}
	require.NoError(t, e.store.Plans().Create(ctx, plan))

	d := &models.Departure{
		PlanID:         plan.ID,
		DepartureTime:  time.Now().UTC().Add(72 * time.Hour),
		PickupLocation: "Kandy Clock Tower",
		PickupTime:     "06:00",
		TotalCapacity:  capacity,
		Status:         models.DepartureStatusScheduled,
	}
	require.NoError(t, e.ledger.Open(ctx, d))
	return d
}

func (e *apiEnv) bookedSeats(t *testing.T, departureID string) int {
	t.Helper()
	d, err := e.ledger.Get(context.Background(), departureID)
	require.NoError(t, err)
	return d.BookedSeats
}

// do sends a JSON request as who (nil for anonymous)
func (e *apiEnv) do(t *testing.T, who *caller, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Linux; Android 13; Pixel 7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/116.0.0.0 Mobile Safari/537.36")
	if who != nil {
		req.Header.Set("Authorization", "Bearer "+who.token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// webhook posts a signed gateway notification
func (e *apiEnv) webhook(t *testing.T, id, eventType, bookingID string) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(map[string]interface{}{
		"id":   id,
		"type": eventType,
		"data": map[string]interface{}{"booking_id": bookingID, "reference": "gw-" + id},
	})
	require.NoError(t, err)
	return e.rawWebhook(t, raw, SignPayload([]byte(testWebhookSecret), raw))
}

func (e *apiEnv) rawWebhook(t *testing.T, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// bookingFrom decodes {"booking": {...}}
func bookingFrom(t *testing.T, w *httptest.ResponseRecorder) *models.Booking {
	t.Helper()
	var resp struct {
		Booking *models.Booking `json:"booking"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Booking)
	return resp.Booking
}

func errorFrom(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// book creates a booking for the env traveller
func (e *apiEnv) book(t *testing.T, departureID string, seats int) *models.Booking {
	t.Helper()
	w := e.do(t, &e.traveller, http.MethodPost, "/api/v1/bookings", models.CreateBookingRequest{
		DepartureID: departureID,
		NumPeople:   seats,
		Amount:      float64(seats) * 120,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return bookingFrom(t, w)
}
