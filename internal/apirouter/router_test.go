package apirouter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webhookhub/webhookhub/internal/ingest"
	"github.com/webhookhub/webhookhub/internal/models"
)

type stubIngestor struct {
	deliveries []models.Delivery

	lastSource    string
	lastEventType string
	lastBody      []byte
	lastSignature string
	err           error
}

func (s *stubIngestor) Ingest(_ context.Context, sourceName, eventType string, rawBody []byte, suppliedSig string) ([]models.Delivery, error) {
	s.lastSource = sourceName
	s.lastEventType = eventType
	s.lastBody = rawBody
	s.lastSignature = suppliedSig
	if s.err != nil {
		return nil, s.err
	}
	return s.deliveries, nil
}

type stubHealth struct {
	healthy bool
}

func (s *stubHealth) Healthy() bool {
	return s.healthy
}

func newTestRouter(ingestor Ingestor, health HealthChecker) *gin.Engine {
	return NewRouter(RouterConfig{ServiceName: "webhookhub-test", GinMode: gin.TestMode}, ingestor, health)
}

func postIngest(router *gin.Engine, source, eventType, body, sig string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest/"+source+"/"+eventType, strings.NewReader(body))
	if sig != "" {
		req.Header.Set(SignatureHeader, sig)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestIngestAccepted(t *testing.T) {
	t.Parallel()

	delivery := models.Delivery{
		ID:          uuid.New(),
		EventID:     uuid.New(),
		Status:      models.DeliveryStatusPending,
		MaxAttempts: 5,
	}
	ingestor := &stubIngestor{deliveries: []models.Delivery{delivery}}
	router := newTestRouter(ingestor, &stubHealth{healthy: true})

	w := postIngest(router, "stripe", "payment.succeeded", `{"amount": 100}`, "deadbeef")

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "stripe", ingestor.lastSource)
	assert.Equal(t, "payment.succeeded", ingestor.lastEventType)
	assert.Equal(t, `{"amount": 100}`, string(ingestor.lastBody))
	assert.Equal(t, "deadbeef", ingestor.lastSignature)

	var resp struct {
		Deliveries []models.Delivery `json:"deliveries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Deliveries, 1)
	assert.Equal(t, delivery.ID, resp.Deliveries[0].ID)
	assert.Equal(t, models.DeliveryStatusPending, resp.Deliveries[0].Status)
}

func TestIngestDuplicateReturnsEmptyList(t *testing.T) {
	t.Parallel()

	ingestor := &stubIngestor{deliveries: []models.Delivery{}}
	router := newTestRouter(ingestor, &stubHealth{healthy: true})

	w := postIngest(router, "stripe", "payment.succeeded", `{}`, "deadbeef")

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"deliveries": []}`, w.Body.String())
}

func TestIngestErrorStatusMapping(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name           string
		err            error
		expectedStatus int
	}{
		{
			name:           "validation",
			err:            &ingest.Error{Kind: ingest.KindValidation, Message: "event type must not be blank"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "source not found",
			err:            &ingest.Error{Kind: ingest.KindSourceNotFound, Message: `source "nope" not found`},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "source inactive",
			err:            &ingest.Error{Kind: ingest.KindSourceInactive, Message: `source "old" is inactive`},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "missing signature",
			err:            &ingest.Error{Kind: ingest.KindMissingSignature, Message: "signature is missing"},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "invalid signature",
			err:            &ingest.Error{Kind: ingest.KindInvalidSignature, Message: "signature does not match"},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "storage failure",
			err:            &ingest.Error{Kind: ingest.KindStorage, Message: "storage failure", Err: errors.New("boom")},
			expectedStatus: http.StatusInternalServerError,
		},
		{
			name:           "broker failure",
			err:            &ingest.Error{Kind: ingest.KindBroker, Message: "broker publish failure", Err: errors.New("boom")},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			router := newTestRouter(&stubIngestor{err: tc.err}, &stubHealth{healthy: true})
			w := postIngest(router, "stripe", "payment.succeeded", `{}`, "deadbeef")

			assert.Equal(t, tc.expectedStatus, w.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tc.expectedStatus, resp.Status)
			if tc.expectedStatus == http.StatusInternalServerError {
				assert.Equal(t, "internal server error", resp.Message, "internal details are not leaked")
			} else {
				assert.NotEmpty(t, resp.Message)
			}
		})
	}
}

func TestIngestUnexpectedErrorIsOpaque(t *testing.T) {
	t.Parallel()

	router := newTestRouter(&stubIngestor{err: errors.New("pgx: connection refused")}, &stubHealth{healthy: true})
	w := postIngest(router, "stripe", "payment.succeeded", `{}`, "deadbeef")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "pgx")
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	router := newTestRouter(&stubIngestor{}, &stubHealth{healthy: true})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	router = newTestRouter(&stubIngestor{}, &stubHealth{healthy: false})
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
