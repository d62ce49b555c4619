package httpapi

import (
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/goliatone/go-record-services/errs"
	"github.com/goliatone/go-record-services/pagination"
	"github.com/goliatone/go-record-services/repository"
	"github.com/goliatone/go-record-services/service"
	"github.com/gorilla/mux"
)

// UserHandler serves /user.
type UserHandler struct {
	svc        *service.Users
	logger     *slog.Logger
	pagination pagination.Calculator
}

// NewUserHandler builds the user handler.
func NewUserHandler(svc *service.Users, logger *slog.Logger) *UserHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserHandler{svc: svc, logger: logger, pagination: pagination.New()}
}

// Register mounts the user routes on r.
func (h *UserHandler) Register(r *mux.Router) {
	r.HandleFunc("/user", h.create).Methods(http.MethodPost)
	r.HandleFunc("/user", h.list).Methods(http.MethodGet)
	r.HandleFunc("/user/{id:[0-9]+}", h.get).Methods(http.MethodGet)
	r.HandleFunc("/user/{id:[0-9]+}", h.update).Methods(http.MethodPut)
	r.HandleFunc("/user/{id:[0-9]+}", h.delete).Methods(http.MethodDelete)
}

type userRequest struct {
	Name        string  `json:"name"`
	CPF         string  `json:"cpf"`
	Email       *string `json:"email"`
	PhoneNumber string  `json:"phone_number"`
}

func (u userRequest) Validate() error {
	return validation.ValidateStruct(&u,
		validation.Field(&u.Name, validation.Required, validation.Length(1, 100)),
		validation.Field(&u.CPF, validation.Required),
		validation.Field(&u.Email, validation.NilOrNotEmpty, is.EmailFormat),
		validation.Field(&u.PhoneNumber, validation.Required),
	)
}

func (h *UserHandler) create(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, h.logger, r, invalid(err))
		return
	}

	u, err := h.svc.Create(r.Context(), repository.User{
		Name:        req.Name,
		CPF:         req.CPF,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result{Result: []repository.User{u}})
}

func (h *UserHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	u, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result{Result: u})
}

func (h *UserHandler) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	var patch repository.UserPatch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if len(patch.Fields()) == 0 {
		writeError(w, h.logger, r, errs.InvalidField("invalid body", "nothing to update"))
		return
	}

	if err := h.svc.Update(r.Context(), id, patch); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	u, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result{Result: u})
}

func (h *UserHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	res, err := h.svc.Delete(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result{Result: res})
}

type userPage struct {
	Result     []repository.User `json:"result"`
	Pagination pagination.Links  `json:"pagination"`
}

func (h *UserHandler) list(w http.ResponseWriter, r *http.Request) {
	page, err := intParam(r, h.pagination.PageParam, defaultPage)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	size, err := intParam(r, h.pagination.PageSizeParam, defaultPageSize)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	users, total, err := h.svc.List(r.Context(), size, page)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userPage{
		Result: users,
		Pagination: h.pagination.Calculate(pagination.Request{
			URL:      requestURL(r),
			Page:     page,
			PageSize: size,
			Total:    total,
			Returned: len(users),
		}),
	})
}
