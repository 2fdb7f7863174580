package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/steward-platform/apiserver/internal/services"
	"github.com/steward-platform/apiserver/types"
)

// AccountHandler provides HTTP handlers for managed accounts.
type AccountHandler struct {
	accountService *services.AccountService
	errs           errorResponder
}

// NewAccountHandler constructs an AccountHandler.
func NewAccountHandler(accountService *services.AccountService, logger *slog.Logger, verbose bool) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
		errs:           errorResponder{logger: logger, verbose: verbose},
	}
}

// AccountRouter registers account routes. Every route requires authentication.
func AccountRouter(r chi.Router, handler *AccountHandler, authMiddleware func(http.Handler) http.Handler) {
	r.Use(authMiddleware)

	r.Get("/", handler.ListAccounts)
	r.Post("/submit", handler.SubmitAccount)
	r.Get("/owner", handler.ListOwnerAccounts)
	r.Get("/manager", handler.ListManagerAccounts)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", handler.GetAccount)
		r.Put("/", handler.UpdateAccount)
		r.Delete("/", handler.DeleteAccount)
		r.Put("/status", handler.UpdateStatus)
		r.Post("/manager", handler.AssignManager)
		r.Delete("/manager", handler.UnassignManager)
		r.Put("/instructions", handler.UpdateInstructions)
	})
}

type statusRequest[T any] struct {
	Status T `json:"status"`
}

type managerRequest struct {
	ManagerID int `json:"manager_id"`
}

type instructionsRequest struct {
	Instructions string `json:"instructions"`
}

// SubmitAccount stores a new pending account for the caller.
func (h *AccountHandler) SubmitAccount(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	var req services.Submission
	if err := decodeJSON(r, &req); err != nil {
		h.errs.fail(w, r, "submit account", err)
		return
	}
	account, err := h.accountService.Submit(r.Context(), actor, req)
	if err != nil {
		h.errs.fail(w, r, "submit account", err)
		return
	}
	writeData(w, http.StatusCreated, account)
}

// GetAccount returns an account with decrypted credentials.
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id", "account")
	if err != nil {
		h.errs.fail(w, r, "get account", err)
		return
	}
	account, err := h.accountService.Get(r.Context(), actor, id)
	if err != nil {
		h.errs.fail(w, r, "get account", err)
		return
	}
	writeData(w, http.StatusOK, account)
}

func (h *AccountHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id", "account")
	if err != nil {
		h.errs.fail(w, r, "update account", err)
		return
	}
	var update types.AccountUpdate
	if err := decodeJSON(r, &update); err != nil {
		h.errs.fail(w, r, "update account", err)
		return
	}
	account, err := h.accountService.Update(r.Context(), actor, id, update)
	if err != nil {
		h.errs.fail(w, r, "update account", err)
		return
	}
	writeData(w, http.StatusOK, account)
}

func (h *AccountHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id", "account")
	if err != nil {
		h.errs.fail(w, r, "delete account", err)
		return
	}
	if err := h.accountService.Delete(r.Context(), actor, id); err != nil {
		h.errs.fail(w, r, "delete account", err)
		return
	}
	writeDeleted(w, "Account deleted successfully")
}

func (h *AccountHandler) ListOwnerAccounts(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	accounts, err := h.accountService.ListOwned(r.Context(), actor)
	if err != nil {
		h.errs.fail(w, r, "list owner accounts", err)
		return
	}
	writeList(w, accounts)
}

func (h *AccountHandler) ListManagerAccounts(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	accounts, err := h.accountService.ListManaged(r.Context(), actor)
	if err != nil {
		h.errs.fail(w, r, "list manager accounts", err)
		return
	}
	writeList(w, accounts)
}

// ListAccounts lists every account, filtered by status and type. Admin only.
func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	filter := types.AccountFilter{AccountType: queryString(r, "account_type")}
	if status := queryString(r, "status"); status != nil {
		value := types.AccountStatus(*status)
		filter.Status = &value
	}
	var err error
	if filter.Limit, err = queryInt(r, "limit"); err != nil {
		h.errs.fail(w, r, "list accounts", err)
		return
	}
	if filter.Offset, err = queryInt(r, "offset"); err != nil {
		h.errs.fail(w, r, "list accounts", err)
		return
	}
	accounts, err := h.accountService.List(r.Context(), actor, filter)
	if err != nil {
		h.errs.fail(w, r, "list accounts", err)
		return
	}
	writeList(w, accounts)
}

func (h *AccountHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id", "account")
	if err != nil {
		h.errs.fail(w, r, "update account status", err)
		return
	}
	var req statusRequest[types.AccountStatus]
	if err := decodeJSON(r, &req); err != nil {
		h.errs.fail(w, r, "update account status", err)
		return
	}
	account, err := h.accountService.UpdateStatus(r.Context(), actor, id, req.Status)
	if err != nil {
		h.errs.fail(w, r, "update account status", err)
		return
	}
	writeData(w, http.StatusOK, account)
}

func (h *AccountHandler) AssignManager(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id", "account")
	if err != nil {
		h.errs.fail(w, r, "assign account manager", err)
		return
	}
	var req managerRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errs.fail(w, r, "assign account manager", err)
		return
	}
	account, err := h.accountService.AssignManager(r.Context(), actor, id, req.ManagerID)
	if err != nil {
		h.errs.fail(w, r, "assign account manager", err)
		return
	}
	writeData(w, http.StatusOK, account)
}

func (h *AccountHandler) UnassignManager(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id", "account")
	if err != nil {
		h.errs.fail(w, r, "unassign account manager", err)
		return
	}
	account, err := h.accountService.UnassignManager(r.Context(), actor, id)
	if err != nil {
		h.errs.fail(w, r, "unassign account manager", err)
		return
	}
	writeData(w, http.StatusOK, account)
}

func (h *AccountHandler) UpdateInstructions(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id", "account")
	if err != nil {
		h.errs.fail(w, r, "update account instructions", err)
		return
	}
	var req instructionsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errs.fail(w, r, "update account instructions", err)
		return
	}
	account, err := h.accountService.UpdateInstructions(r.Context(), actor, id, req.Instructions)
	if err != nil {
		h.errs.fail(w, r, "update account instructions", err)
		return
	}
	writeData(w, http.StatusOK, account)
}
