package panel

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/odyssey-erp/catalog-admin/internal/dashboard"
	"github.com/odyssey-erp/catalog-admin/internal/pricehistory"
	"github.com/odyssey-erp/catalog-admin/internal/shared"
	"github.com/odyssey-erp/catalog-admin/internal/suppliers"
	"github.com/odyssey-erp/catalog-admin/internal/view"
	"github.com/odyssey-erp/catalog-admin/internal/viewstate"
)

func assignForm(r *http.Request) suppliers.AssignForm {
	return suppliers.AssignForm{
		SupplierID: r.PostFormValue(view.Fields.SupplierID),
		Price:      r.PostFormValue(view.Fields.SupplierPrice),
		Date:       r.PostFormValue(view.Fields.SupplierDate),
	}
}

// renderCreate re-renders the create form with everything typed so far. The pending list
// lives in the same form, so its buttons post the whole form back here.
func (h *Handler) renderCreate(w http.ResponseWriter, r *http.Request, st *viewstate.State, data adminPage, status int) {
	if err := st.SwitchTab(dashboard.TabProducts); err != nil {
		h.logger.Error("switch tab", slog.Any("error", err))
	}
	data.Form = productForm(r)
	data.FormToken = r.PostFormValue(view.Fields.FormToken)
	h.renderAdmin(w, r, st, data, status)
}

func (h *Handler) addPending(w http.ResponseWriter, r *http.Request) {
	if err := parseMultipart(r); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess, st := h.state(r)
	form := assignForm(r)
	entry, err := h.suppliers.ParsePending(form)
	if err != nil {
		fields, _ := fieldErrors(err)
		h.renderCreate(w, r, st, adminPage{PendingForm: form, PendingErrors: fields}, http.StatusUnprocessableEntity)
		return
	}

	p := promptFrom(r)
	data := adminPage{}
	switch st.Pending.Add(entry, p.confirm) {
	case suppliers.Declined:
		data.PendingForm = form
		data.PendingPrompt = p.asked
	case suppliers.Replaced:
		h.logger.Debug("pending supplier replaced", slog.Int64("supplier_id", entry.SupplierID))
	}
	h.saveState(sess, st)
	h.renderCreate(w, r, st, data, http.StatusOK)
}

func (h *Handler) cancelPending(w http.ResponseWriter, r *http.Request) {
	if err := parseMultipart(r); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	_, st := h.state(r)
	h.renderCreate(w, r, st, adminPage{}, http.StatusOK)
}

func (h *Handler) removePending(w http.ResponseWriter, r *http.Request) {
	supplierID, ok := pathID(r, "supplierID")
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := parseMultipart(r); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess, st := h.state(r)
	if st.Pending.Remove(supplierID) {
		h.saveState(sess, st)
	}
	h.renderCreate(w, r, st, adminPage{}, http.StatusOK)
}

func (h *Handler) supplierOptions(w http.ResponseWriter, r *http.Request) {
	list, err := h.suppliers.Suppliers(r.Context())
	if err != nil {
		h.failPage(w, r, err, "/admin")
		return
	}
	h.fragment(w, r, http.StatusOK, "fragment/supplier_options", adminPage{Suppliers: list})
}

func (h *Handler) assignSupplier(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}
	release, ok := h.claim(w, r, "supplier:assign", editURL(id))
	if !ok {
		return
	}
	_, st := h.state(r)
	form := assignForm(r)
	link, err := h.suppliers.Assign(r.Context(), id, form)
	if err != nil {
		release()
		if h.expired(w, r, err) {
			return
		}
		fields, ok := fieldErrors(err)
		status := http.StatusUnprocessableEntity
		if !ok {
			h.logger.Warn("assign supplier", slog.Int64("product_id", id), slog.Any("error", err))
			fields = map[string]string{"general": userMessage(err)}
			status = statusFor(err)
		}
		h.renderEdit(w, r, st, id, editPage{AssignForm: form, AssignErrors: fields}, status)
		return
	}
	addFlash(r, shared.FlashSuccess, fmt.Sprintf("Proveedor %s asignado", h.suppliers.Name(r.Context(), link.SupplierID)))
	http.Redirect(w, r, editURL(id), http.StatusSeeOther)
}

func (h *Handler) unassignSupplier(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	supplierID, ok2 := pathID(r, "supplierID")
	if !ok || !ok2 {
		http.NotFound(w, r)
		return
	}
	p := promptFrom(r)
	err := h.suppliers.Unassign(r.Context(), id, supplierID, p.confirm)
	if errors.Is(err, shared.ErrCancelled) {
		h.confirmPage(w, r, p.asked, r.URL.Path, editURL(id), nil)
		return
	}
	if err != nil {
		h.fail(w, r, err, editURL(id))
		return
	}
	sess, st := h.state(r)
	if st.History != nil && st.History.ProductID == id && st.History.SupplierID == supplierID {
		st.CloseHistory()
		h.saveState(sess, st)
	}
	addFlash(r, shared.FlashSuccess, "Proveedor desasignado")
	http.Redirect(w, r, editURL(id), http.StatusSeeOther)
}

func historyURL(productID, supplierID int64) string {
	return fmt.Sprintf("/admin/productos/%d/proveedores/%d/historial", productID, supplierID)
}

func (h *Handler) showHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	supplierID, ok2 := pathID(r, "supplierID")
	if !ok || !ok2 {
		http.NotFound(w, r)
		return
	}
	sess, st := h.state(r)
	st.OpenEdit(id)
	st.OpenHistory(id, supplierID)
	h.saveState(sess, st)
	h.renderEdit(w, r, st, id, editPage{}, http.StatusOK)
}

func (h *Handler) addPrice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	supplierID, ok2 := pathID(r, "supplierID")
	if !ok || !ok2 {
		http.NotFound(w, r)
		return
	}
	back := historyURL(id, supplierID)
	release, ok := h.claim(w, r, "history:add", back)
	if !ok {
		return
	}
	sess, st := h.state(r)
	st.OpenEdit(id)
	st.OpenHistory(id, supplierID)
	h.saveState(sess, st)

	form := pricehistory.EntryForm{
		Price: r.PostFormValue(view.Fields.HistoryPrice),
		Date:  r.PostFormValue(view.Fields.HistoryDate),
		Notes: r.PostFormValue(view.Fields.HistoryNotes),
	}
	refresh, err := h.history.Add(r.Context(), id, supplierID, form)
	if err != nil && !errors.Is(err, pricehistory.ErrRefresh) {
		release()
		if h.expired(w, r, err) {
			return
		}
		fields, ok := fieldErrors(err)
		status := http.StatusUnprocessableEntity
		if !ok {
			h.logger.Warn("add price entry", slog.Int64("product_id", id), slog.Int64("supplier_id", supplierID), slog.Any("error", err))
			fields = map[string]string{"general": userMessage(err)}
			status = statusFor(err)
		}
		h.renderEdit(w, r, st, id, editPage{History: &historyPanel{Form: form, Errors: fields}}, status)
		return
	}
	h.afterHistoryChange(w, r, refresh, err, "Precio agregado al historial")
}

func (h *Handler) closeHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}
	sess, st := h.state(r)
	st.CloseHistory()
	h.saveState(sess, st)
	http.Redirect(w, r, editURL(id), http.StatusSeeOther)
}

func (h *Handler) deletePrice(w http.ResponseWriter, r *http.Request) {
	entryID, ok := pathID(r, "entryID")
	if !ok {
		http.NotFound(w, r)
		return
	}
	productID, ok := formID(r, view.Fields.ProductID)
	supplierID, ok2 := formID(r, view.Fields.SupplierID)
	if !ok || !ok2 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	p := promptFrom(r)
	refresh, err := h.history.Delete(r.Context(), entryID, productID, supplierID, p.confirm)
	if errors.Is(err, shared.ErrCancelled) {
		h.confirmPage(w, r, p.asked, r.URL.Path, historyURL(productID, supplierID), map[string]string{
			view.Fields.ProductID:  strconv.FormatInt(productID, 10),
			view.Fields.SupplierID: strconv.FormatInt(supplierID, 10),
		})
		return
	}
	if err != nil && !errors.Is(err, pricehistory.ErrRefresh) {
		h.fail(w, r, err, historyURL(productID, supplierID))
		return
	}
	h.afterHistoryChange(w, r, refresh, err, "Registro eliminado del historial")
}

// afterHistoryChange shows the refreshed history and links of the pair that was written.
// Fragment callers get them directly; browsers are redirected to the history view. A
// reloadErr means the write is done but the lists are stale: the change is reported as
// saved and the form token stays claimed.
func (h *Handler) afterHistoryChange(w http.ResponseWriter, r *http.Request, refresh pricehistory.Refresh, reloadErr error, message string) {
	sess, st := h.state(r)
	st.OpenEdit(refresh.ProductID)
	if reloadErr != nil {
		st.CloseHistory()
		h.saveState(sess, st)
		h.logger.Warn("reload price history",
			slog.Int64("product_id", refresh.ProductID),
			slog.Int64("supplier_id", refresh.SupplierID),
			slog.Any("error", reloadErr))
		if h.expired(w, r, reloadErr) {
			return
		}
		if isFragment(r) {
			http.Error(w, message+". "+staleHistoryMessage, http.StatusBadGateway)
			return
		}
		addFlash(r, shared.FlashWarning, message+". "+staleHistoryMessage)
		http.Redirect(w, r, editURL(refresh.ProductID), http.StatusSeeOther)
		return
	}
	st.OpenHistory(refresh.ProductID, refresh.SupplierID)
	h.saveState(sess, st)

	if isFragment(r) {
		links := refresh.Links
		if links == nil {
			links = []suppliers.LinkView{}
		}
		entries := refresh.Entries
		if entries == nil {
			entries = []pricehistory.Entry{}
		}
		h.renderEdit(w, r, st, refresh.ProductID, editPage{
			Links:   links,
			History: &historyPanel{Entries: entries},
		}, http.StatusOK)
		return
	}
	addFlash(r, shared.FlashSuccess, message)
	http.Redirect(w, r, historyURL(refresh.ProductID, refresh.SupplierID), http.StatusSeeOther)
}

const staleHistoryMessage = "El historial no se pudo recargar"
