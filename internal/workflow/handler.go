package workflow

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/wholesale/internal/inventory"
	"github.com/odyssey-erp/wholesale/internal/platform/httpx"
	"github.com/odyssey-erp/wholesale/internal/procurement"
	"github.com/odyssey-erp/wholesale/internal/rbac"
	"github.com/odyssey-erp/wholesale/internal/sales"
	"github.com/odyssey-erp/wholesale/internal/shared"
	"github.com/odyssey-erp/wholesale/internal/suppliers"
)

// Handler exposes the workflow as a JSON API.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers workflow routes, grouped by the capability they need.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.CapViewReports))
		r.Get("/items/{id}", h.checkStock)
		r.Get("/items/{id}/suppliers", h.findSuppliers)
		r.Get("/items/{id}/suppliers/primary", h.primarySupplier)
		r.Get("/stock/report", h.stockReport)
		r.Get("/suppliers", h.listSuppliers)
		r.Get("/requisitions", h.listRequisitions)
		r.Get("/orders", h.listOrders)
		r.Get("/orders/{id}", h.getOrder)
		r.Get("/sales", h.listSales)
		r.Get("/sales/{id}", h.getSale)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.CapManageItems))
		r.Post("/items", h.registerItem)
		r.Patch("/items/{id}", h.updateItem)
		r.Post("/items/{id}/deactivate", h.deactivateItem)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.CapAdjustStock))
		r.Post("/items/{id}/adjust", h.adjustStock)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.CapManageSuppliers))
		r.Post("/suppliers", h.registerSupplier)
		r.Patch("/suppliers/{id}", h.updateSupplier)
		r.Put("/suppliers/{id}/items/{itemID}", h.linkSupplierItem)
		r.Delete("/suppliers/{id}/items/{itemID}", h.unlinkSupplierItem)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.CapRaiseRequisition))
		r.Post("/requisitions", h.raiseRequisition)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.CapCreateOrder))
		r.Post("/orders", h.createOrder)
		r.Post("/orders/{id}/items", h.addOrderItem)
		r.Delete("/orders/{id}/items/{index}", h.removeOrderItem)
		r.Post("/orders/{id}/submit", h.submitOrder)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.CapApproveOrder))
		r.Post("/orders/{id}/approve", h.approveOrder)
		r.Post("/orders/{id}/reject", h.rejectOrder)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.CapReceiveOrder))
		r.Post("/orders/{id}/receive", h.receiveOrder)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.CapCreateSale))
		r.Post("/sales", h.createSale)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.CapReadMessages))
		r.Get("/messages", h.inbox)
		r.Post("/messages/{id}/read", h.markRead)
	})
}

type page[T any] struct {
	Data       []T               `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func paginate[T any](r *http.Request, items []T) page[T] {
	p, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	data, meta := shared.Paginate(items, p, perPage)
	return page[T]{Data: data, Pagination: meta}
}

func (h *Handler) principal(r *http.Request) rbac.Principal {
	p, _ := rbac.PrincipalFromContext(r.Context())
	return p
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "workflow request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}
	httpx.RespondError(w, err)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return false
	}
	return true
}

func (h *Handler) checkStock(w http.ResponseWriter, r *http.Request) {
	check, err := h.service.CheckStock(r.Context(), h.principal(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, check)
}

func (h *Handler) findSuppliers(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.FindSuppliers(r.Context(), h.principal(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) primarySupplier(w http.ResponseWriter, r *http.Request) {
	sup, err := h.service.PrimarySupplier(r.Context(), h.principal(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sup)
}

func (h *Handler) stockReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.StockReport(r.Context(), h.principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) listSuppliers(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListSuppliers(r.Context(), h.principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, paginate(r, list))
}

func (h *Handler) listRequisitions(w http.ResponseWriter, r *http.Request) {
	status := procurement.PRStatus(r.URL.Query().Get("status"))
	list, err := h.service.ListRequisitions(r.Context(), h.principal(r), status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, paginate(r, list))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	status := procurement.POStatus(r.URL.Query().Get("status"))
	list, err := h.service.ListOrders(r.Context(), h.principal(r), status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, paginate(r, list))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	po, err := h.service.GetOrder(r.Context(), h.principal(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListSales(r.Context(), h.principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, paginate(r, list))
}

func (h *Handler) getSale(w http.ResponseWriter, r *http.Request) {
	sale, err := h.service.GetSale(r.Context(), h.principal(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) registerItem(w http.ResponseWriter, r *http.Request) {
	var input inventory.ItemInput
	if !h.decode(w, r, &input) {
		return
	}
	item, err := h.service.RegisterItem(r.Context(), h.principal(r), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	var update inventory.ItemUpdate
	if !h.decode(w, r, &update) {
		return
	}
	item, err := h.service.UpdateItem(r.Context(), h.principal(r), chi.URLParam(r, "id"), update)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) deactivateItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.DeactivateItem(r.Context(), h.principal(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

type adjustRequest struct {
	Delta int    `json:"delta"`
	Note  string `json:"note"`
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if !h.decode(w, r, &req) {
		return
	}
	change, err := h.service.AdjustStock(r.Context(), h.principal(r), chi.URLParam(r, "id"), req.Delta, req.Note)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, change)
}

func (h *Handler) registerSupplier(w http.ResponseWriter, r *http.Request) {
	var input suppliers.SupplierInput
	if !h.decode(w, r, &input) {
		return
	}
	sup, err := h.service.RegisterSupplier(r.Context(), h.principal(r), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sup)
}

func (h *Handler) updateSupplier(w http.ResponseWriter, r *http.Request) {
	var update suppliers.SupplierUpdate
	if !h.decode(w, r, &update) {
		return
	}
	sup, err := h.service.UpdateSupplier(r.Context(), h.principal(r), chi.URLParam(r, "id"), update)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sup)
}

func (h *Handler) linkSupplierItem(w http.ResponseWriter, r *http.Request) {
	sup, err := h.service.LinkSupplierItem(r.Context(), h.principal(r), chi.URLParam(r, "id"), chi.URLParam(r, "itemID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sup)
}

func (h *Handler) unlinkSupplierItem(w http.ResponseWriter, r *http.Request) {
	sup, err := h.service.UnlinkSupplierItem(r.Context(), h.principal(r), chi.URLParam(r, "id"), chi.URLParam(r, "itemID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sup)
}

type requisitionRequest struct {
	Lines []procurement.RequisitionLine `json:"lines"`
	Note  string                        `json:"note"`
}

func (h *Handler) raiseRequisition(w http.ResponseWriter, r *http.Request) {
	var req requisitionRequest
	if !h.decode(w, r, &req) {
		return
	}
	pr, err := h.service.RaiseRequisition(r.Context(), h.principal(r), req.Lines, req.Note)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, pr)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var input procurement.CreateOrderInput
	if !h.decode(w, r, &input) {
		return
	}
	po, err := h.service.CreatePurchaseOrder(r.Context(), h.principal(r), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, po)
}

func (h *Handler) addOrderItem(w http.ResponseWriter, r *http.Request) {
	var line procurement.POItemInput
	if !h.decode(w, r, &line) {
		return
	}
	po, err := h.service.AddOrderItem(r.Context(), h.principal(r), chi.URLParam(r, "id"), line)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) removeOrderItem(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "line index must be an integer")
		return
	}
	po, err := h.service.RemoveOrderItem(r.Context(), h.principal(r), chi.URLParam(r, "id"), index)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) submitOrder(w http.ResponseWriter, r *http.Request) {
	po, err := h.service.SubmitOrder(r.Context(), h.principal(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) approveOrder(w http.ResponseWriter, r *http.Request) {
	po, err := h.service.ApproveOrder(r.Context(), h.principal(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) rejectOrder(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if !h.decode(w, r, &req) {
		return
	}
	po, err := h.service.RejectOrder(r.Context(), h.principal(r), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) receiveOrder(w http.ResponseWriter, r *http.Request) {
	var record procurement.DeliveryRecord
	if r.ContentLength != 0 && !h.decode(w, r, &record) {
		return
	}
	po, err := h.service.ReceiveOrder(r.Context(), h.principal(r), chi.URLParam(r, "id"), record)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	var input sales.CreateSaleInput
	if !h.decode(w, r, &input) {
		return
	}
	sale, err := h.service.CreateSale(r.Context(), h.principal(r), input)
	if err != nil {
		if short, ok := inventory.AsInsufficientStock(err); ok {
			httpx.JSON(w, http.StatusUnprocessableEntity, map[string]any{
				"type":      "urn:wholesale:error:" + string(shared.KindConsistency),
				"title":     "Insufficient Stock",
				"status":    http.StatusUnprocessableEntity,
				"detail":    err.Error(),
				"item_id":   short.ItemID,
				"requested": short.Requested,
				"available": short.Available,
			})
			return
		}
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) inbox(w http.ResponseWriter, r *http.Request) {
	unread := r.URL.Query().Get("unread") == "true"
	box, err := h.service.Inbox(r.Context(), h.principal(r), unread)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, box)
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	msg, err := h.service.MarkMessageRead(r.Context(), h.principal(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, msg)
}
