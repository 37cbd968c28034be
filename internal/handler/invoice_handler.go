package handler

import (
	"net/http"
	"time"

	"github.com/Go-ku/landlord-app-sub001/internal/model"
	"github.com/Go-ku/landlord-app-sub001/internal/service"
	"github.com/Go-ku/landlord-app-sub001/pkg/logger"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// MonthLayout is the wire format of a billed month.
const MonthLayout = "2006-01"

// ItemRequest is one invoice line
type ItemRequest struct {
	Description string  `json:"description" validate:"required"`
	Quantity    float64 `json:"quantity" validate:"gt=0"`
	UnitPrice   float64 `json:"unit_price" validate:"gte=0"`
}

// InvoiceRequest drafts an invoice
type InvoiceRequest struct {
	LeaseID   uint          `json:"lease_id" validate:"required"`
	IssueDate string        `json:"issue_date"`
	DueDate   string        `json:"due_date"`
	Items     []ItemRequest `json:"items" validate:"required,min=1,dive"`
	TaxRate   float64       `json:"tax_rate" validate:"gte=0,lte=100"`
	Notes     string        `json:"notes"`
}

// InvoiceUpdateRequest edits a draft or sent invoice
type InvoiceUpdateRequest struct {
	IssueDate *string        `json:"issue_date"`
	DueDate   *string        `json:"due_date"`
	Items     *[]ItemRequest `json:"items"`
	TaxRate   *float64       `json:"tax_rate" validate:"omitempty,gte=0,lte=100"`
	Notes     *string        `json:"notes"`
}

// GenerateRequest drafts the monthly rent invoice of a lease
type GenerateRequest struct {
	LeaseID uint   `json:"lease_id" validate:"required"`
	Month   string `json:"month"`
}

func itemInputs(items []ItemRequest) []service.ItemInput {
	out := make([]service.ItemInput, 0, len(items))
	for _, it := range items {
		out = append(out, service.ItemInput{
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		})
	}
	return out
}

// ListInvoices returns the invoices visible to the caller
func (h *Handler) ListInvoices(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "list invoices")
	}

	filter := service.InvoiceFilter{Status: model.InvoiceStatus(c.QueryParam("status"))}
	if filter.LeaseID, err = queryID(c, "lease_id"); err != nil {
		return respond(c, log, err, "list invoices")
	}
	if filter.PropertyID, err = queryID(c, "property_id"); err != nil {
		return respond(c, log, err, "list invoices")
	}
	if filter.TenantID, err = queryID(c, "tenant_id"); err != nil {
		return respond(c, log, err, "list invoices")
	}
	if filter.DueBefore, err = queryDate(c, "due_before"); err != nil {
		return respond(c, log, err, "list invoices")
	}

	invoices, err := h.svc.Invoices.List(c.Request().Context(), a, filter)
	if err != nil {
		return respond(c, log, err, "list invoices")
	}

	log.Info("Invoices listed", zap.Int("count", len(invoices)))
	return c.JSON(http.StatusOK, invoices)
}

// GetInvoice returns one invoice with its items
func (h *Handler) GetInvoice(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "get invoice")
	}
	id, err := parseID(c, "id")
	if err != nil {
		return respond(c, log, err, "get invoice")
	}

	invoice, err := h.svc.Invoices.Get(c.Request().Context(), a, id)
	if err != nil {
		return respond(c, log, err, "get invoice")
	}
	return c.JSON(http.StatusOK, invoice)
}

// CreateInvoice drafts an invoice from line items
func (h *Handler) CreateInvoice(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "create invoice")
	}

	var req InvoiceRequest
	if err := bind(c, &req); err != nil {
		return respond(c, log, err, "create invoice")
	}
	issue, err := parseDate("issue_date", req.IssueDate)
	if err != nil {
		return respond(c, log, err, "create invoice")
	}
	due, err := parseDate("due_date", req.DueDate)
	if err != nil {
		return respond(c, log, err, "create invoice")
	}

	invoice, err := h.svc.Invoices.Create(c.Request().Context(), a, service.InvoiceInput{
		LeaseID:   req.LeaseID,
		IssueDate: issue,
		DueDate:   due,
		Items:     itemInputs(req.Items),
		TaxRate:   req.TaxRate,
		Notes:     req.Notes,
	})
	if err != nil {
		return respond(c, log, err, "create invoice")
	}

	log.Info("Invoice created",
		zap.Uint("invoice_id", invoice.ID),
		zap.String("number", invoice.Number),
		zap.Float64("total", invoice.Total))
	return c.JSON(http.StatusCreated, invoice)
}

// GenerateInvoice drafts the rent invoice of a lease for one month
func (h *Handler) GenerateInvoice(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "generate invoice")
	}

	var req GenerateRequest
	if err := bind(c, &req); err != nil {
		return respond(c, log, err, "generate invoice")
	}
	var month time.Time
	if req.Month != "" {
		if month, err = time.Parse(MonthLayout, req.Month); err != nil {
			return respond(c, log, badRequest("month must be formatted as "+MonthLayout), "generate invoice")
		}
	}

	invoice, err := h.svc.Invoices.Generate(c.Request().Context(), a, req.LeaseID, month)
	if err != nil {
		return respond(c, log, err, "generate invoice")
	}

	log.Info("Rent invoice generated",
		zap.Uint("invoice_id", invoice.ID),
		zap.Uint("lease_id", invoice.LeaseID),
		zap.String("number", invoice.Number))
	return c.JSON(http.StatusCreated, invoice)
}

// UpdateInvoice edits a draft or sent invoice
func (h *Handler) UpdateInvoice(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "update invoice")
	}
	id, err := parseID(c, "id")
	if err != nil {
		return respond(c, log, err, "update invoice")
	}

	var req InvoiceUpdateRequest
	if err := bind(c, &req); err != nil {
		return respond(c, log, err, "update invoice")
	}
	in := service.InvoiceUpdate{TaxRate: req.TaxRate, Notes: req.Notes}
	if in.IssueDate, err = parseDatePtr("issue_date", req.IssueDate); err != nil {
		return respond(c, log, err, "update invoice")
	}
	if in.DueDate, err = parseDatePtr("due_date", req.DueDate); err != nil {
		return respond(c, log, err, "update invoice")
	}
	if req.Items != nil {
		items := itemInputs(*req.Items)
		in.Items = &items
	}

	invoice, err := h.svc.Invoices.Update(c.Request().Context(), a, id, in)
	if err != nil {
		return respond(c, log, err, "update invoice")
	}

	log.Info("Invoice updated",
		zap.Uint("invoice_id", invoice.ID),
		zap.Float64("total", invoice.Total))
	return c.JSON(http.StatusOK, invoice)
}

// DeleteInvoice removes a draft invoice
func (h *Handler) DeleteInvoice(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "delete invoice")
	}
	id, err := parseID(c, "id")
	if err != nil {
		return respond(c, log, err, "delete invoice")
	}

	if err := h.svc.Invoices.Delete(c.Request().Context(), a, id); err != nil {
		return respond(c, log, err, "delete invoice")
	}

	log.Info("Invoice deleted", zap.Uint("invoice_id", id))
	return c.NoContent(http.StatusNoContent)
}

// SendInvoice marks a draft invoice as sent
func (h *Handler) SendInvoice(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "send invoice")
	}
	id, err := parseID(c, "id")
	if err != nil {
		return respond(c, log, err, "send invoice")
	}

	invoice, err := h.svc.Invoices.Send(c.Request().Context(), a, id)
	if err != nil {
		return respond(c, log, err, "send invoice")
	}

	log.Info("Invoice sent", zap.Uint("invoice_id", invoice.ID))
	return c.JSON(http.StatusOK, invoice)
}

// CancelInvoice cancels an invoice with nothing paid against it
func (h *Handler) CancelInvoice(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "cancel invoice")
	}
	id, err := parseID(c, "id")
	if err != nil {
		return respond(c, log, err, "cancel invoice")
	}

	invoice, err := h.svc.Invoices.Cancel(c.Request().Context(), a, id)
	if err != nil {
		return respond(c, log, err, "cancel invoice")
	}

	log.Info("Invoice cancelled", zap.Uint("invoice_id", invoice.ID))
	return c.JSON(http.StatusOK, invoice)
}

// ShareInvoice returns WhatsApp, email and calendar links for an invoice
func (h *Handler) ShareInvoice(c echo.Context) error {
	log := logger.FromContext(c)
	a, err := actor(c)
	if err != nil {
		return respond(c, log, err, "share invoice")
	}
	id, err := parseID(c, "id")
	if err != nil {
		return respond(c, log, err, "share invoice")
	}

	links, err := h.svc.Invoices.ShareLinks(c.Request().Context(), a, id)
	if err != nil {
		return respond(c, log, err, "share invoice")
	}
	return c.JSON(http.StatusOK, links)
}
