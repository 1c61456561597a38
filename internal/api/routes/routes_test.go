package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"shiptrack-api-server/internal/api/handlers"
	"shiptrack-api-server/internal/auth"
	"shiptrack-api-server/internal/geocode"
	"shiptrack-api-server/internal/issue"
	"shiptrack-api-server/internal/messaging"
	"shiptrack-api-server/internal/models"
	"shiptrack-api-server/internal/notification"
	"shiptrack-api-server/internal/profile"
	"shiptrack-api-server/internal/realtime"
	"shiptrack-api-server/internal/shipment"
	"shiptrack-api-server/internal/socket"
	"shiptrack-api-server/internal/storage/memory"
)

type fakeUploader struct{ keys []string }

func (f *fakeUploader) UploadFile(_ context.Context, r io.Reader, key, _ string) (string, error) {
	if _, err := io.ReadAll(r); err != nil {
		return "", err
	}
	f.keys = append(f.keys, key)
	return "https://cdn.example.com/" + key, nil
}

type testServer struct {
	router *gin.Engine
	tokens *auth.TokenManager
	upload *fakeUploader
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	auth.BcryptCost = 4
	log := zap.NewNop()
	ctx := context.Background()

	profiles := memory.NewProfileRepo()
	for _, p := range []models.UserProfile{
		{ID: "AGT001", Email: "kofi@example.com", Name: "Kofi Boateng", Phone: "+233205550123", Role: models.RoleAgent},
		{ID: "staff-1", Email: "desk@example.com", Name: "Front Desk", Role: models.RoleStaff},
	} {
		p := p
		require.NoError(t, profiles.Insert(ctx, &p))
	}

	bus := realtime.NewBus(log)
	shipRepo := memory.NewShipmentRepo()
	dispatcher := notification.NewDispatcher(memory.NewNotificationRepo(), profiles, bus, log)
	shipments := shipment.NewService(shipRepo, log,
		shipment.WithNotifier(dispatcher),
		shipment.WithPublisher(bus),
		shipment.WithProfiles(profiles),
		shipment.WithProofs(memory.NewProofRepo()),
	)
	tokens := auth.NewTokenManager("test-secret", time.Hour, "shiptrack-test")
	profileSvc := profile.NewService(profiles, tokens, log)
	upload := &fakeUploader{}

	router := SetupRouter(Dependencies{
		Tokens:        tokens,
		Shipments:     &handlers.ShipmentHandler{Shipments: shipments, Profiles: profileSvc, Uploader: upload, MaxUploadBytes: 1 << 20, Log: log},
		Notifications: &handlers.NotificationHandler{Notifications: dispatcher},
		Messages:      &handlers.MessageHandler{Messages: messaging.NewChannel(memory.NewMessageRepo(), shipRepo, bus, dispatcher, log)},
		Issues:        &handlers.IssueHandler{Issues: issue.NewService(memory.NewIssueRepo(), shipRepo, dispatcher, log)},
		Profiles:      &handlers.ProfileHandler{Profiles: profileSvc, Uploader: upload, Log: log},
		Geocode:       &handlers.GeocodeHandler{Geocoder: geocode.New("http://127.0.0.1:1/reverse", "shiptrack-test", 100*time.Millisecond, nil, log)},
		WebSocket:     &handlers.WebSocketHandler{Hub: socket.NewHub(bus, shipments, log), Log: log},
		Log:           log,
	})
	return testServer{router: router, tokens: tokens, upload: upload}
}

func (s testServer) token(t *testing.T, id, role string) string {
	t.Helper()
	tok, err := s.tokens.Generate(id, id+"@example.com", role)
	require.NoError(t, err)
	return tok
}

func (s testServer) do(t *testing.T, method, path, token string, body any, headers ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	out := map[string]any{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func register(t *testing.T, s testServer) string {
	t.Helper()
	w, body := s.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"email": "Kwame@Example.com", "password": "secret1", "name": "Kwame Mensah", "phone": "+233201110001",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	tok, _ := body["token"].(string)
	require.NotEmpty(t, tok)
	return tok
}

var booking = map[string]any{
	"itemName":           "Laptop",
	"weight":             "2",
	"pickupType":         "office",
	"destinationCity":    "Kumasi",
	"destinationAddress": "12 Adum Road",
	"recipientName":      "Ama Owusu",
	"recipientPhone":     "+233244000111",
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)
	w, body := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])

	w, _ = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)
	w, _ := s.do(t, http.MethodGet, "/api/v1/shipments", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/v1/shipments", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)
	register(t, s)

	w, body := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{"email": "kwame@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, body["token"])

	w, body = s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{"email": "kwame@example.com", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHENTICATED", body["code"])
}

func TestShipmentLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	customer := register(t, s)
	staff := s.token(t, "staff-1", models.RoleStaff)
	agent := s.token(t, "AGT001", models.RoleAgent)

	w, created := s.do(t, http.MethodPost, "/api/v1/shipments", customer, booking)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := created["id"].(string)
	assert.Equal(t, "pending_approval", created["status"])
	assert.Equal(t, "Kwame Mensah", created["customerName"])

	w, _ = s.do(t, http.MethodPost, "/api/v1/shipments/"+id+"/approve", agent, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body := s.do(t, http.MethodPost, "/api/v1/shipments/"+id+"/approve", staff, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "approved", body["status"])

	w, body = s.do(t, http.MethodPost, "/api/v1/shipments/"+id+"/approve", staff, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_TRANSITION", body["code"])
	details := body["details"].(map[string]any)
	assert.Equal(t, "approved", details["found"])

	assign := map[string]any{"agentName": "Kofi Boateng", "agentId": "AGT001"}
	w, body = s.do(t, http.MethodPost, "/api/v1/shipments/"+id+"/assign", staff, assign, "Idempotency-Key", "assign-1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "+233205550123", body["agentPhone"])
	w, body = s.do(t, http.MethodPost, "/api/v1/shipments/"+id+"/assign", staff, assign, "Idempotency-Key", "assign-1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "assigned", body["status"])

	w, tasks := s.do(t, http.MethodGet, "/api/v1/agent/tasks", agent, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, tasks["count"])

	for _, step := range []string{"accept", "pickup"} {
		w, _ = s.do(t, http.MethodPost, "/api/v1/shipments/"+id+"/"+step, agent, nil)
		require.Equal(t, http.StatusOK, w.Code, step+": "+w.Body.String())
	}
	w, body = s.do(t, http.MethodPost, "/api/v1/shipments/"+id+"/in-transit", agent, map[string]any{"lat": 5.6037, "lng": -0.187})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.InDelta(t, 5.6037, body["currentLat"], 1e-9)

	w, _ = s.do(t, http.MethodPut, "/api/v1/shipments/"+id+"/location", agent, map[string]any{"lat": 6.0, "lng": -1.2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, _ = s.do(t, http.MethodPost, "/api/v1/shipments/"+id+"/deliver", agent, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	photoURL := uploadPhoto(t, s, agent, id)
	w, body = s.do(t, http.MethodPost, "/api/v1/shipments/"+id+"/deliver", agent, map[string]any{"deliveryPhotoUrl": photoURL})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "delivered", body["status"])
	assert.Equal(t, photoURL, body["deliveryPhotoUrl"])

	w, body = s.do(t, http.MethodGet, "/api/v1/shipments/"+id+"/history", customer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["history"], 7)

	w, body = s.do(t, http.MethodGet, "/api/v1/notifications", customer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 7, body["unread_count"])
	first := body["notifications"].([]any)[0].(map[string]any)

	w, body = s.do(t, http.MethodPost, "/api/v1/notifications/"+first["id"].(string)+"/read", customer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 6, body["unread_count"])

	w, body = s.do(t, http.MethodDelete, "/api/v1/notifications", customer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, body["unread_count"])
}

func uploadPhoto(t *testing.T, s testServer, token, id string) string {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="photo"; filename="door.jpg"`)
	hdr.Set("Content-Type", "image/jpeg")
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write([]byte("jpeg-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/shipments/"+id+"/delivery-photo", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body["photoHash"], 64)
	require.Len(t, s.upload.keys, 1)
	return body["deliveryPhotoUrl"].(string)
}

func TestCustomerScopingAndMessaging(t *testing.T) {
	s := newTestServer(t)
	customer := register(t, s)
	stranger := s.token(t, "cust-9", models.RoleCustomer)

	w, created := s.do(t, http.MethodPost, "/api/v1/shipments", customer, booking)
	require.Equal(t, http.StatusCreated, w.Code)
	id := created["id"].(string)

	w, _ = s.do(t, http.MethodGet, "/api/v1/shipments/"+id, stranger, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body := s.do(t, http.MethodGet, "/api/v1/shipments", stranger, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, body["count"])

	w, _ = s.do(t, http.MethodGet, "/api/v1/shipments?status=lost", customer, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/v1/shipments/SHP404", customer, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body = s.do(t, http.MethodPost, "/api/v1/shipments/"+id+"/messages", customer, map[string]any{"content": "When will it be picked up?", "receiver_id": "staff-1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "When will it be picked up?", body["content"])

	w, body = s.do(t, http.MethodGet, "/api/v1/shipments/"+id+"/messages", customer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["messages"], 1)

	w, _ = s.do(t, http.MethodGet, "/api/v1/shipments/"+id+"/messages", stranger, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestIssuesOverHTTP(t *testing.T) {
	s := newTestServer(t)
	customer := register(t, s)
	staff := s.token(t, "staff-1", models.RoleStaff)

	_, created := s.do(t, http.MethodPost, "/api/v1/shipments", customer, booking)
	id := created["id"].(string)

	w, body := s.do(t, http.MethodPost, "/api/v1/issues", customer, map[string]any{"shipment_id": id, "issue_type": "delayed", "description": "No update for two days"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	issueID := body["id"].(string)

	w, _ = s.do(t, http.MethodPost, "/api/v1/issues", staff, map[string]any{"shipment_id": id, "issue_type": "delayed"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body = s.do(t, http.MethodPost, "/api/v1/issues/"+issueID+"/resolve", staff, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "resolved", body["status"])

	w, _ = s.do(t, http.MethodPost, "/api/v1/issues/"+issueID+"/resolve", staff, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, body = s.do(t, http.MethodGet, "/api/v1/issues", customer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["issues"], 1)
}

func TestProfileAndGeocode(t *testing.T) {
	s := newTestServer(t)
	customer := register(t, s)

	w, body := s.do(t, http.MethodGet, "/api/v1/profile", customer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "kwame@example.com", body["email"])
	assert.Nil(t, body["password"])

	w, body = s.do(t, http.MethodPut, "/api/v1/profile", customer, map[string]any{"address": "5 Oxford Street, Osu"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "5 Oxford Street, Osu", body["address"])
	assert.Equal(t, "customer", body["role"])

	w, body = s.do(t, http.MethodGet, "/api/v1/geocode/reverse?lat=5.6037&lng=-0.187", customer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Location at 5.6037, -0.1870", body["label"])

	w, _ = s.do(t, http.MethodGet, "/api/v1/geocode/reverse?lat=abc&lng=0", customer, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
