package web

import (
	"bytes"
	"errors"
	"html/template"
	"net/http"
	"strconv"

	"xpstore/internal/logger"
	"xpstore/internal/security"
	"xpstore/internal/storefront"
)

var pageTmpl = template.Must(template.New("index.tmpl").Funcs(template.FuncMap{
	"messageClass": messageClass,
	"messageIcon":  messageIcon,
}).ParseFS(templateFS, "templates/index.tmpl"))

type pageData struct {
	storefront.Snapshot
	CSRFToken string
}

func messageClass(kind storefront.MessageKind) string {
	if kind == storefront.KindSuccess {
		return "success-message"
	}
	return "error-message"
}

func messageIcon(kind storefront.MessageKind) string {
	if kind == storefront.KindSuccess {
		return "✅"
	}
	return "❌"
}

// IndexHandler renders the catalog and, when a flow is open, the confirmation modal.
func (h *Handler) IndexHandler(w http.ResponseWriter, r *http.Request) {
	logger.LogHTTPRequest(r)

	data := pageData{
		Snapshot:  h.view.Snapshot(),
		CSRFToken: security.GenerateCSRFToken(),
	}

	var buf bytes.Buffer
	if err := pageTmpl.ExecuteTemplate(&buf, "index.tmpl", data); err != nil {
		logger.LogHTTPError(r, http.StatusInternalServerError, err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	buf.WriteTo(w)
}

// BuyHandler opens the confirmation for the posted offering_id.
func (h *Handler) BuyHandler(w http.ResponseWriter, r *http.Request) {
	logger.LogHTTPRequest(r)

	id, err := strconv.ParseInt(r.FormValue("offering_id"), 10, 64)
	if err != nil {
		logger.LogHTTPError(r, http.StatusBadRequest, err)
		http.Error(w, "Invalid offering", http.StatusBadRequest)
		return
	}

	if err := h.view.Open(id); err != nil {
		switch {
		case errors.Is(err, storefront.ErrUnknownOffering):
			logger.LogHTTPError(r, http.StatusBadRequest, err)
			http.Error(w, "Invalid offering", http.StatusBadRequest)
			return
		case errors.Is(err, storefront.ErrInFlight):
			// The page shows the pending purchase; nothing else to do.
			logger.LogInfo("Ignoring buy click while a purchase is in flight")
		}
	}
	redirectHome(w, r)
}

// ConfirmHandler submits the selected offering and waits for the webhook.
func (h *Handler) ConfirmHandler(w http.ResponseWriter, r *http.Request) {
	logger.LogHTTPRequest(r)

	if _, err := h.view.Submit(detached(r)); err != nil {
		logger.LogInfo("Confirm ignored: %v", err)
	}
	redirectHome(w, r)
}

func (h *Handler) CancelHandler(w http.ResponseWriter, r *http.Request) {
	logger.LogHTTPRequest(r)

	h.view.Cancel()
	redirectHome(w, r)
}

func redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
