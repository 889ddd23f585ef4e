package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/lab-inventory/internal/model"
	"github.com/iliyamo/lab-inventory/internal/queue"
	"github.com/iliyamo/lab-inventory/internal/service"
)

// LoanHandler exposes the loan state machine over HTTP. After a successful
// transition it publishes a loan event to the broker; publishing is
// best-effort and never fails the request.
type LoanHandler struct {
	Svc *service.Inventory
}

func NewLoanHandler(svc *service.Inventory) *LoanHandler {
	return &LoanHandler{Svc: svc}
}

type loanReq struct {
	DeviceID uint64 `json:"device_id"`
	// BorrowerID books the loan against another user (a manager checking a
	// device out on someone's behalf). Zero means the caller borrows.
	BorrowerID    uint64     `json:"borrower_id"`
	UsageLocation *string    `json:"usage_location"`
	DueDate       *time.Time `json:"due_date"`
	Notes         *string    `json:"notes"`
}

type returnReq struct {
	DeviceID uint64  `json:"device_id"`
	Notes    *string `json:"notes"`
}

type scanReq struct {
	InventoryNumber string `json:"inventory_number"`
}

// List returns the full loan history, newest first.
func (h *LoanHandler) List(c echo.Context) error {
	loans, err := h.Svc.ListLoans(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, loans)
}

// Loan checks a device out to the caller.
func (h *LoanHandler) Loan(c echo.Context) error {
	var req loanReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.DeviceID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "device_id required"})
	}

	actor := actorFrom(c)
	loan, device, err := h.Svc.Checkout(c.Request().Context(), actor, model.LoanRequest{
		DeviceID:      req.DeviceID,
		BorrowerID:    req.BorrowerID,
		UsageLocation: req.UsageLocation,
		DueDate:       req.DueDate,
		Notes:         req.Notes,
	})
	if err != nil {
		return writeError(c, err)
	}
	publishLoanEvent(loan, device, actor.Username, "loan")
	return c.JSON(http.StatusCreated, loan)
}

// Return closes the open loan on a device.
func (h *LoanHandler) Return(c echo.Context) error {
	var req returnReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.DeviceID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "device_id required"})
	}

	actor := actorFrom(c)
	loan, device, err := h.Svc.Return(c.Request().Context(), actor, req.DeviceID, req.Notes)
	if err != nil {
		return writeError(c, err)
	}
	publishLoanEvent(loan, device, actor.Username, "return")
	return c.JSON(http.StatusOK, loan)
}

// Scan resolves an inventory number to the implied next action for the
// device, for barcode scanner clients that do not know the device state.
func (h *LoanHandler) Scan(c echo.Context) error {
	var req scanReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.InventoryNumber = strings.TrimSpace(req.InventoryNumber)
	if req.InventoryNumber == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "inventory_number required"})
	}

	decision, err := h.Svc.Scan(c.Request().Context(), actorFrom(c), req.InventoryNumber)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, decision)
}

// publishLoanEvent fires the broker notification in the background. The
// request context is deliberately not used: the response must not wait for
// the broker, and a cancelled request must not drop the event.
func publishLoanEvent(loan model.Loan, device model.Device, actedBy, action string) {
	ev := queue.LoanEvent{
		LoanID:          loan.ID,
		DeviceID:        device.ID,
		InventoryNumber: device.InventoryNumber,
		DeviceName:      device.Name,
		BorrowerID:      loan.BorrowerID,
		ActedBy:         actedBy,
		Action:          action,
		OccurredAt:      time.Now().UTC().Format(time.RFC3339),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = queue.PublishLoanEvent(ctx, ev)
	}()
}
