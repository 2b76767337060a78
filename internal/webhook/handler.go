package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet-ledger/internal/processor"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw body.
const SignatureHeader = "X-Webhook-Signature"

// payload is the callback body networks post.
type payload struct {
	ProcessorRef string `json:"processor_ref"`
	EventType    string `json:"event_type"`
	Reference    string `json:"reference"`
	Reason       string `json:"reason"`
}

// Handler exposes the settlement callback endpoint.
type Handler struct {
	reconciler *Reconciler
	secret     []byte
	networks   map[processor.Network]bool
}

// NewHandler constructs a webhook handler. Callbacks for networks outside
// networks are rejected.
func NewHandler(reconciler *Reconciler, secret string, networks []processor.Network) *Handler {
	known := make(map[processor.Network]bool, len(networks))
	for _, n := range networks {
		known[n] = true
	}
	return &Handler{reconciler: reconciler, secret: []byte(secret), networks: known}
}

// Receive verifies and applies a settlement callback.
func (h *Handler) Receive(c *fiber.Ctx) error {
	network := processor.Network(c.Params("network"))
	if !h.networks[network] {
		return fiber.NewError(http.StatusNotFound, "unknown network")
	}
	body := c.Body()
	if !Verify(h.secret, body, c.Get(SignatureHeader)) {
		return fiber.NewError(http.StatusUnauthorized, "invalid signature")
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	raw := make(json.RawMessage, len(body))
	copy(raw, body)

	event, err := h.reconciler.Handle(c.UserContext(), Incoming{
		Network:      network,
		ProcessorRef: p.ProcessorRef,
		Type:         p.EventType,
		Reference:    p.Reference,
		Reason:       p.Reason,
		Payload:      raw,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidEvent) {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, "reconciliation failed")
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"event_id":    event.ID,
		"disposition": event.Disposition,
	})
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks signature against body in constant time.
func Verify(secret, body []byte, signature string) bool {
	got, err := hex.DecodeString(signature)
	if err != nil || len(got) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
