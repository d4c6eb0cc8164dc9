package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"

	"printcraftAPI/internal/blob"
	"printcraftAPI/internal/design"
	"printcraftAPI/internal/orders"
	"printcraftAPI/internal/storage"
	"printcraftAPI/middleware"
	"printcraftAPI/utils"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
)

// Validation failures callers turn into 4xx responses. Anything else out of
// SubmitOrder is a 5xx or a RemoteError from the order procedure.
var (
	ErrNoProduct       = errors.New("no product loaded for this session")
	ErrNoImageElement  = errors.New("add an image to your design before ordering")
	ErrDesignUnsettled = errors.New("your design images are still uploading, try again in a moment")
	ErrAuthRequired    = errors.New("card payment requires a signed-in account")
)

// StockExhaustedUserMessage replaces the raw procedure message when the
// product sells out mid-checkout.
const StockExhaustedUserMessage = "This product just sold out. Please choose a different product."

// InventoryMirror is the local catalog stock bookkeeping. Satisfied by
// ProductService.
type InventoryMirror interface {
	DecrementInventory(ctx context.Context, productID string) error
}

type OrderService struct {
	products        InventoryMirror
	placer          orders.Placer
	uploader        storage.Uploader
	trackingBaseURL string
}

func NewOrderService(products InventoryMirror, placer orders.Placer, uploader storage.Uploader, trackingBaseURL string) *OrderService {
	return &OrderService{
		products:        products,
		placer:          placer,
		uploader:        uploader,
		trackingBaseURL: trackingBaseURL,
	}
}

// OrderRequest is what the checkout form submits alongside the session.
type OrderRequest struct {
	Customer         orders.CustomerDetails `json:"customer"`
	PaymentMethod    string                 `json:"payment_method"`
	PaymentReference string                 `json:"payment_reference"`
	IsDemo           bool                   `json:"is_demo"`
}

// OrderResponse is the success envelope, QR included so the confirmation
// screen can show a scannable tracking link.
type OrderResponse struct {
	OrderID          string `json:"order_id"`
	ArtifactURL      string `json:"artifact_url"`
	TrackingURL      string `json:"tracking_url"`
	TrackingQRBase64 string `json:"tracking_qr_base64"`
	Message          string `json:"message,omitempty"`
}

// SubmitOrder runs the whole checkout: validate, capture, upload the print
// artifact, call the order procedure, decrement the local inventory mirror.
// Validation happens before any side effect; a failed capture aborts before
// anything is uploaded or placed.
func (s *OrderService) SubmitOrder(ctx context.Context, session *CanvasSession, req OrderRequest, bearerToken string) (*OrderResponse, error) {
	if session.Product == nil {
		return nil, ErrNoProduct
	}
	if req.PaymentMethod == "card" && bearerToken == "" {
		return nil, ErrAuthRequired
	}

	elements := session.Elements()
	hasImage := false
	for _, el := range elements {
		if el.Type == design.TypeImage {
			hasImage = true
		}
		if blob.IsEphemeral(el.Value) {
			return nil, ErrDesignUnsettled
		}
	}
	if !hasImage {
		return nil, ErrNoImageElement
	}

	artifact, err := session.Capture(ctx)
	if err != nil {
		middleware.RecordCapture(false)
		return nil, fmt.Errorf("failed to capture design: %w", err)
	}
	middleware.RecordCapture(true)

	_, png, err := utils.DecodeDataURI(artifact)
	if err != nil {
		return nil, fmt.Errorf("failed to decode capture artifact: %w", err)
	}

	objectPath := fmt.Sprintf("orders/%s.png", uuid.New().String())
	artifactURL, err := s.uploader.Upload(ctx, png, "image/png", objectPath)
	if err != nil {
		return nil, fmt.Errorf("failed to upload order artifact: %w", err)
	}
	middleware.RecordUpload("order")

	designDoc, err := session.SerializeDesign()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize design: %w", err)
	}

	orderType := "standard"
	if req.IsDemo {
		orderType = "demo"
	}

	payload := orders.Payload{
		Customer:         req.Customer,
		ProductID:        session.Product.ID.String(),
		TotalPrice:       session.Product.Price,
		PaymentMethod:    req.PaymentMethod,
		PaymentReference: req.PaymentReference,
		Status:           "pending",
		Design:           designDoc,
		ArtifactURL:      artifactURL,
		OrderType:        orderType,
	}

	// session presence picks the procedure; the payload shape is the same
	var env *orders.Envelope
	if bearerToken != "" {
		env, err = s.placer.PlaceOrder(ctx, payload, bearerToken)
	} else {
		env, err = s.placer.PlaceGuestOrder(ctx, payload)
	}
	if err != nil {
		var remote *orders.RemoteError
		if errors.As(err, &remote) && remote.Message == orders.StockExhaustedMessage {
			return nil, &orders.RemoteError{Message: StockExhaustedUserMessage}
		}
		return nil, err
	}
	middleware.RecordOrderPlaced()

	// The remote procedure already decremented real stock; mirror it locally
	// so the catalog listing stays honest. Best effort.
	if err := s.products.DecrementInventory(ctx, payload.ProductID); err != nil {
		log.Printf("Failed to mirror inventory decrement for product %s: %v", payload.ProductID, err)
	}

	trackingURL := fmt.Sprintf("%s/orders/%s", s.trackingBaseURL, env.OrderID)
	qrBase64, err := trackingQR(trackingURL)
	if err != nil {
		// the order went through, a missing QR should not fail the checkout
		log.Printf("Failed to generate tracking QR for order %s: %v", env.OrderID, err)
	}

	return &OrderResponse{
		OrderID:          env.OrderID,
		ArtifactURL:      artifactURL,
		TrackingURL:      trackingURL,
		TrackingQRBase64: qrBase64,
		Message:          env.Message,
	}, nil
}

func trackingQR(url string) (string, error) {
	pngBytes, err := qrcode.Encode(url, qrcode.Medium, 256)
	if err != nil {
		return "", fmt.Errorf("failed to generate QR png: %w", err)
	}
	return base64.StdEncoding.EncodeToString(pngBytes), nil
}
