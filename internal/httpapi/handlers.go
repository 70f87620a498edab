package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"lunamatcha/backend/internal/bucket"
	"lunamatcha/backend/internal/domain"
	"lunamatcha/backend/internal/service"
)

func (a *API) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := a.service.ListOrders(r.Context(), service.OrderQuery{
		Date:      queryValue(r, "date"),
		StartDate: queryValue(r, "startDate"),
		EndDate:   queryValue(r, "endDate"),
	})
	if err != nil {
		writeServiceError(w, r, "order", err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (a *API) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := a.service.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, "order", err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (a *API) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.OrderCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	order, err := a.service.CreateOrder(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, "order", err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (a *API) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.OrderUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	order, err := a.service.UpdateItems(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, r, "order", err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (a *API) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteOrder(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, "order", err)
		return
	}
	writeMessage(w, http.StatusOK, "Order deleted successfully")
}

func (a *API) handleHoldOrder(w http.ResponseWriter, r *http.Request) {
	order, err := a.service.HoldOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, "order", err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (a *API) handleRestoreOrder(w http.ResponseWriter, r *http.Request) {
	order, err := a.service.RestoreOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, "order", err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (a *API) handleCompleteOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.OrderCompleteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	order, err := a.service.CompleteOrder(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, r, "order", err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (a *API) handleListHeldOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := a.service.ListHeldOrders(r.Context())
	if err != nil {
		writeServiceError(w, r, "order", err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (a *API) handleGetShift(w http.ResponseWriter, r *http.Request) {
	shift, err := a.service.GetShift(r.Context(), queryValue(r, "date"))
	if err != nil {
		writeServiceError(w, r, "shift", err)
		return
	}
	writeJSON(w, http.StatusOK, shift)
}

func (a *API) handleListShifts(w http.ResponseWriter, r *http.Request) {
	shifts, err := a.service.ListShifts(r.Context(), queryValue(r, "startDate"), queryValue(r, "endDate"))
	if err != nil {
		writeServiceError(w, r, "shift", err)
		return
	}
	writeJSON(w, http.StatusOK, shifts)
}

func (a *API) handleSetStartAmount(w http.ResponseWriter, r *http.Request) {
	var req domain.StartAmountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	shift, err := a.service.SetStartAmount(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, r, "shift", err)
		return
	}
	writeJSON(w, http.StatusOK, shift)
}

func (a *API) handlePeriod(kind bucket.Kind, param string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := a.analytics.Period(r.Context(), kind, queryValue(r, param))
		if err != nil {
			writeServiceError(w, r, "report", err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func (a *API) handlePeakHours(w http.ResponseWriter, r *http.Request) {
	report, err := a.analytics.PeakHours(r.Context(), queryValue(r, "date"))
	if err != nil {
		writeServiceError(w, r, "report", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleTopProducts(w http.ResponseWriter, r *http.Request) {
	report, err := a.analytics.TopProducts(r.Context(), queryValue(r, "period"), queryValue(r, "startDate"), queryValue(r, "endDate"))
	if err != nil {
		writeServiceError(w, r, "report", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
