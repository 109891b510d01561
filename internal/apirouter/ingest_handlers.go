package apirouter

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/webhookhub/webhookhub/internal/models"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Webhook-Signature"

type IngestHandlers struct {
	ingestor Ingestor
}

func NewIngestHandlers(ingestor Ingestor) *IngestHandlers {
	return &IngestHandlers{ingestor: ingestor}
}

type ingestResponse struct {
	Deliveries []models.Delivery `json:"deliveries"`
}

// Ingest accepts a signed webhook body. Responds 202 with the created
// delivery records; duplicates also get 202, with an empty list.
func (h *IngestHandlers) Ingest(c *gin.Context) {
	sourceName := c.Param("source")
	eventType := c.Param("type")
	suppliedSig := c.GetHeader(SignatureHeader)

	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Error(NewErrBadRequest(err))
		return
	}

	deliveries, err := h.ingestor.Ingest(c.Request.Context(), sourceName, eventType, rawBody, suppliedSig)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusAccepted, ingestResponse{Deliveries: deliveries})
}
