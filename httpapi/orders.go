package httpapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-record-services/aggregate"
	"github.com/goliatone/go-record-services/errs"
	"github.com/goliatone/go-record-services/pagination"
	"github.com/goliatone/go-record-services/repository"
	"github.com/goliatone/go-record-services/service"
	"github.com/goliatone/go-record-services/store"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

// OrderHandler serves /order.
type OrderHandler struct {
	svc        *service.Orders
	logger     *slog.Logger
	pagination pagination.Calculator
}

// NewOrderHandler builds the order handler.
func NewOrderHandler(svc *service.Orders, logger *slog.Logger) *OrderHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderHandler{svc: svc, logger: logger, pagination: pagination.New()}
}

// Register mounts the order routes on r.
func (h *OrderHandler) Register(r *mux.Router) {
	const (
		listPath = "/order/{index}/{doc_type}"
		itemPath = listPath + "/{id}"
	)
	r.HandleFunc(listPath, h.list).Methods(http.MethodGet)
	r.HandleFunc(itemPath, h.create).Methods(http.MethodPost)
	r.HandleFunc(itemPath, h.get).Methods(http.MethodGet)
	r.HandleFunc(itemPath, h.update).Methods(http.MethodPut)
	r.HandleFunc(itemPath, h.delete).Methods(http.MethodDelete)
}

type orderRequest struct {
	UserID          *int64           `json:"user_id"`
	ItemDescription string           `json:"item_description"`
	ItemQuantity    int              `json:"item_quantity"`
	ItemPrice       decimal.Decimal  `json:"item_price"`
	TotalValue      *decimal.Decimal `json:"total_value"`
}

func (o orderRequest) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.UserID, validation.Required),
		validation.Field(&o.ItemDescription, validation.Required, validation.Length(1, 255)),
		validation.Field(&o.ItemQuantity, validation.Required, validation.Min(1)),
	)
}

func (o orderRequest) toOrder() repository.Order {
	order := repository.Order{
		UserID:          *o.UserID,
		ItemDescription: o.ItemDescription,
		ItemQuantity:    o.ItemQuantity,
		ItemPrice:       o.ItemPrice,
	}
	order.TotalValue = order.Subtotal()
	if o.TotalValue != nil {
		order.TotalValue = *o.TotalValue
	}
	return order
}

func collection(r *http.Request) store.Collection {
	vars := mux.Vars(r)
	return store.Collection{Name: vars["index"], RecordType: vars["doc_type"]}
}

func (h *OrderHandler) create(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, h.logger, r, invalid(err))
		return
	}

	id, err := h.svc.Create(r.Context(), collection(r), mux.Vars(r)["id"], req.toOrder())
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *OrderHandler) get(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.Get(r.Context(), collection(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result{Result: o})
}

func (h *OrderHandler) update(w http.ResponseWriter, r *http.Request) {
	var patch repository.OrderPatch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if len(patch.Fields()) == 0 {
		writeError(w, h.logger, r, errs.InvalidField("invalid body", "nothing to update"))
		return
	}

	version, err := h.svc.Update(r.Context(), collection(r), mux.Vars(r)["id"], patch)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"version": version})
}

func (h *OrderHandler) delete(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Delete(r.Context(), collection(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result{Result: res})
}

func (h *OrderHandler) list(w http.ResponseWriter, r *http.Request) {
	q := aggregate.Query{Collection: collection(r), URL: requestURL(r)}

	var err error
	if q.PageNumber, err = intParam(r, h.pagination.PageParam, defaultPage); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if q.PageSize, err = intParam(r, h.pagination.PageSizeParam, defaultPageSize); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		uid, err := pathID(raw)
		if err != nil {
			writeError(w, h.logger, r, err)
			return
		}
		q.UserID = &uid
	}

	page, err := h.svc.List(r.Context(), q)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// invalid turns ozzo validation errors into one InvalidField with a detail
// per field.
func invalid(err error) error {
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return errs.Wrap(errs.KindInvalidField, err, "invalid body", err.Error())
	}
	names := make([]string, 0, len(verrs))
	for name := range verrs {
		names = append(names, name)
	}
	sort.Strings(names)
	details := make([]string, 0, len(names))
	for _, name := range names {
		details = append(details, fmt.Sprintf("%s: %v", name, verrs[name]))
	}
	return errs.Wrap(errs.KindInvalidField, err, "invalid body", details...)
}
