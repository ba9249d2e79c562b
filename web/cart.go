package web

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/agentuity/storefront/checkout"
	"github.com/agentuity/storefront/menu"
	"github.com/cockroachdb/errors"
)

type cartPage struct {
	Lines           []checkout.Line
	Subtotal        float64
	CheckoutSuccess bool
}

func (s *Server) cartView(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)
	completed := sess.CheckoutSuccess
	sess.CheckoutSuccess = false
	if completed && sess.Cart.IsEmpty() {
		s.redirect(w, r, sess, "/cart?checkout=success")
		return
	}
	lines, subtotal := checkout.Lines(r.Context(), s.catalog, sess.Cart)
	s.render(w, r, sess, http.StatusOK, "cart", "Your cart", cartPage{
		Lines:           lines,
		Subtotal:        subtotal,
		CheckoutSuccess: r.URL.Query().Get("checkout") == "success",
	})
}

// backTo returns the local page the form was posted from, or fallback.
func backTo(r *http.Request, fallback string) string {
	ref, err := url.Parse(r.Referer())
	if err != nil || ref.Path == "" || (ref.Host != "" && ref.Host != r.Host) {
		return fallback
	}
	if ref.RawQuery != "" {
		return ref.Path + "?" + ref.RawQuery
	}
	return ref.Path
}

func (s *Server) cartAdd(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)
	id, err := strconv.ParseInt(strings.TrimSpace(r.FormValue("item_id")), 10, 64)
	var item menu.Item
	found := err == nil
	if found {
		item, found = s.catalog.Item(r.Context(), id)
	}
	if !found {
		if wantsJSON(r) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Item not found"})
			return
		}
		sess.AddFlash("danger", "Item not found")
		s.redirect(w, r, sess, backTo(r, "/"))
		return
	}
	qty, err := strconv.Atoi(strings.TrimSpace(r.FormValue("qty")))
	if err != nil {
		qty = 1
	}
	sess.Cart.Add(strconv.FormatInt(item.ID, 10), qty)
	if wantsJSON(r) {
		s.save(w, r, sess)
		writeJSON(w, http.StatusOK, sess.Cart.Status())
		return
	}
	sess.AddFlash("success", "Added "+item.Name+" to cart")
	s.redirect(w, r, sess, backTo(r, "/"))
}

func (s *Server) cartRemove(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)
	sess.Cart.Remove(strings.TrimSpace(r.FormValue("item_id")))
	if wantsJSON(r) {
		s.save(w, r, sess)
		writeJSON(w, http.StatusOK, sess.Cart.Status())
		return
	}
	s.redirect(w, r, sess, "/cart")
}

func (s *Server) cartStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session(r).Cart.Status())
}

func (s *Server) cartCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := s.session(r)
	site := s.settings.Site(ctx)

	result, err := checkout.Checkout(ctx, s.catalog, sess.Cart, r.FormValue("customer_name"), site.WhatsAppPhone, s.now())
	if err != nil {
		var verr *menu.ValidationError
		switch {
		case errors.As(err, &verr):
			sess.AddFlash("danger", verr.Message)
		case errors.Is(err, checkout.ErrEmptyCart), errors.Is(err, checkout.ErrNotConfigured):
			sess.AddFlash("warning", err.Error())
		default:
			s.log.Error("checkout failed: %s", err)
			sess.AddFlash("danger", "Checkout failed, please try again")
		}
		s.redirect(w, r, sess, "/cart")
		return
	}
	if note := result.InventoryNote(); note != "" {
		s.log.Warn("inventory update pending for %s", strings.Join(result.InventoryPending, ", "))
		sess.AddFlash("info", note)
	}
	s.log.Info("order placed by %s: %d lines, subtotal %s", result.Order.Customer, len(result.Order.Lines), menu.FormatPrice(result.Order.Subtotal))
	sess.CheckoutSuccess = true
	s.redirect(w, r, sess, result.URL)
}
