package web

import (
	"context"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/agentuity/storefront/catalog"
	"github.com/agentuity/storefront/menu"
	"github.com/agentuity/storefront/session"
	"github.com/agentuity/storefront/settings"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

func (s *Server) loginForm(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)
	if sess.Admin {
		s.redirect(w, r, sess, "/admin")
		return
	}
	s.render(w, r, sess, http.StatusOK, "login", "Admin login", nil)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)
	if !checkPassword(s.password, r.FormValue("password")) {
		s.log.Warn("failed admin login from %s", r.RemoteAddr)
		sess.AddFlash("danger", "Invalid password")
		s.redirect(w, r, sess, "/admin/login")
		return
	}
	sess.Regenerate()
	sess.Admin = true
	sess.AddFlash("success", "Logged in")
	s.redirect(w, r, sess, "/admin")
}

// logout ends the whole session so a copied cookie cannot be replayed.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Destroy(w, r, s.session(r)); err != nil {
		s.log.Error("session destroy failed: %s", err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type adminItem struct {
	menu.Item
	Category string
	Orphaned bool
}

type dashboardPage struct {
	Settings   map[string]string
	Categories []menu.Category
	Items      []adminItem
	Status     []catalog.SnapshotStatus
	Queued     []catalog.Task
	Failed     []catalog.Task
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := s.session(r)
	categories := s.catalog.Categories(ctx)
	names := make(map[int64]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}
	var items []adminItem
	for _, item := range s.catalog.Items(ctx) {
		name, ok := names[item.CategoryID]
		if !ok {
			name = catalog.UncategorizedName
		}
		items = append(items, adminItem{Item: item, Category: name, Orphaned: !ok})
	}
	s.render(w, r, sess, http.StatusOK, "admin", "Admin", dashboardPage{
		Settings:   s.settings.All(ctx),
		Categories: categories,
		Items:      items,
		Status:     s.catalog.Status(),
		Queued:     s.mirror.Queued(),
		Failed:     s.mirror.Failed(),
	})
}

// fail flashes err. Validation messages are shown as is, anything else is
// logged and reported generically.
func (s *Server) fail(sess *session.Session, action string, err error) {
	var verr *menu.ValidationError
	switch {
	case errors.As(err, &verr):
		sess.AddFlash("danger", verr.Message)
	case errors.Is(err, menu.ErrNotFound):
		sess.AddFlash("warning", "Not found")
	default:
		s.log.Error("%s: %s", action, err)
		sess.AddFlash("danger", "Could not "+action+", please try again")
	}
}

func (s *Server) saveSettings(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)
	if err := r.ParseForm(); err != nil {
		s.fail(sess, "read the form", err)
		s.redirect(w, r, sess, "/admin")
		return
	}
	values := map[string]string{
		settings.ShowPrices: menu.FormatBool(menu.ParseBool(r.PostForm.Get(settings.ShowPrices))),
	}
	for _, key := range settings.Keys {
		if key == settings.ShowPrices || key == settings.LogoURL {
			continue
		}
		if _, ok := r.PostForm[key]; ok {
			values[key] = strings.TrimSpace(r.PostForm.Get(key))
		}
	}
	if err := s.settings.SetAll(r.Context(), values); err != nil {
		s.fail(sess, "save settings", err)
	} else {
		sess.AddFlash("success", "Settings saved")
	}
	s.redirect(w, r, sess, "/admin")
}

// uploadName keeps a readable, URL safe form of the client's file name.
func uploadName(filename string) string {
	ext := strings.ToLower(path.Ext(path.Base(filename)))
	stem := menu.Slugify(strings.TrimSuffix(path.Base(filename), path.Ext(filename)))
	if stem == "" {
		stem = uuid.NewString()
	}
	if len(ext) > 10 || strings.ContainsAny(ext, "/\\ ") {
		ext = ""
	}
	return stem + ext
}

// readUpload returns the image posted as field, or nil when none was sent.
func readUpload(r *http.Request, field string) ([]byte, string, string, error) {
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return nil, "", "", errors.Wrap(err, "parse upload")
	}
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, "", "", nil
	}
	if err != nil {
		return nil, "", "", errors.Wrap(err, "read upload")
	}
	defer file.Close()
	if header.Size > MaxUploadSize {
		return nil, "", "", menu.NewValidationError(field, "Image is too large")
	}
	data, err := io.ReadAll(io.LimitReader(file, MaxUploadSize+1))
	if err != nil {
		return nil, "", "", errors.Wrap(err, "read upload")
	}
	if len(data) == 0 {
		return nil, "", "", nil
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return nil, "", "", menu.NewValidationError(field, "Upload must be an image")
	}
	return data, contentType, uploadName(header.Filename), nil
}

func (s *Server) uploadBranding(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := s.session(r)
	data, contentType, name, err := readUpload(r, "logo")
	switch {
	case err != nil:
		s.fail(sess, "read the logo", err)
	case data == nil:
		sess.AddFlash("warning", "Choose an image to upload")
	default:
		url, err := s.store.UploadAsset(ctx, data, contentType, "branding/"+name)
		if err != nil {
			s.log.Error("logo upload failed: %s", err)
			sess.AddFlash("warning", "Logo upload failed")
			break
		}
		if err := s.settings.Set(ctx, settings.LogoURL, url); err != nil {
			s.fail(sess, "save the logo", err)
			break
		}
		sess.AddFlash("success", "Logo updated")
	}
	s.redirect(w, r, sess, "/admin")
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func (s *Server) createCategory(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)
	if c, err := s.catalog.CreateCategory(r.Context(), r.FormValue("name")); err != nil {
		s.fail(sess, "create the category", err)
	} else {
		sess.AddFlash("success", "Category "+c.Name+" created")
	}
	s.redirect(w, r, sess, "/admin")
}

func (s *Server) updateCategory(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)
	if c, err := s.catalog.UpdateCategory(r.Context(), pathID(r), r.FormValue("name")); err != nil {
		s.fail(sess, "rename the category", err)
	} else {
		sess.AddFlash("success", "Category "+c.Name+" saved")
	}
	s.redirect(w, r, sess, "/admin")
}

func (s *Server) deleteCategory(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)
	if err := s.catalog.DeleteCategory(r.Context(), pathID(r)); err != nil {
		s.fail(sess, "delete the category", err)
	} else {
		sess.AddFlash("success", "Category deleted")
	}
	s.redirect(w, r, sess, "/admin")
}

func itemInput(r *http.Request) menu.ItemInput {
	return menu.ItemInput{
		CategoryID:  r.FormValue("category_id"),
		Name:        r.FormValue("name"),
		Description: r.FormValue("description"),
		Price:       r.FormValue("price"),
		Quantity:    r.FormValue("quantity"),
	}
}

// attachImage uploads the posted image for item. Failures only warn: the
// item itself is already saved.
func (s *Server) attachImage(ctx context.Context, sess *session.Session, item menu.Item, data []byte, contentType, name string) {
	if data == nil {
		return
	}
	objectPath := "items/" + strconv.FormatInt(item.ID, 10) + "/" + name
	url, err := s.store.UploadAsset(ctx, data, contentType, objectPath)
	if err != nil {
		s.log.Warn("image upload for item %d failed: %s", item.ID, err)
		sess.AddFlash("warning", "Item saved, but the image upload failed")
		return
	}
	if _, err := s.catalog.SetItemImage(ctx, item.ID, url); err != nil {
		s.fail(sess, "attach the image", err)
	}
}

func (s *Server) createItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := s.session(r)
	data, contentType, name, err := readUpload(r, "image")
	if err != nil {
		s.fail(sess, "read the image", err)
		s.redirect(w, r, sess, "/admin")
		return
	}
	item, err := s.catalog.CreateItem(ctx, itemInput(r))
	if err != nil {
		s.fail(sess, "create the item", err)
		s.redirect(w, r, sess, "/admin")
		return
	}
	s.attachImage(ctx, sess, item, data, contentType, name)
	sess.AddFlash("success", "Item "+item.Name+" created")
	s.redirect(w, r, sess, "/admin")
}

func (s *Server) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := s.session(r)
	data, contentType, name, err := readUpload(r, "image")
	if err != nil {
		s.fail(sess, "read the image", err)
		s.redirect(w, r, sess, "/admin")
		return
	}
	item, err := s.catalog.UpdateItem(ctx, pathID(r), itemInput(r))
	if err != nil {
		s.fail(sess, "save the item", err)
		s.redirect(w, r, sess, "/admin")
		return
	}
	s.attachImage(ctx, sess, item, data, contentType, name)
	sess.AddFlash("success", "Item "+item.Name+" saved")
	s.redirect(w, r, sess, "/admin")
}

func (s *Server) deleteItem(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)
	if err := s.catalog.DeleteItem(r.Context(), pathID(r)); err != nil {
		s.fail(sess, "delete the item", err)
	} else {
		sess.AddFlash("success", "Item deleted")
	}
	s.redirect(w, r, sess, "/admin")
}

func formKind(r *http.Request) catalog.Kind {
	return catalog.Kind(strings.TrimSpace(r.FormValue("kind")))
}

func (s *Server) syncRefresh(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)
	if err := s.catalog.Refresh(r.Context(), formKind(r)); err != nil {
		s.log.Warn("manual refresh failed: %s", err)
		sess.AddFlash("warning", "Refresh failed, serving cached data")
	} else {
		sess.AddFlash("success", "Menu refreshed from the store")
	}
	s.redirect(w, r, sess, "/admin")
}

func (s *Server) syncRequeue(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)
	n := s.mirror.Requeue()
	sess.AddFlash("info", strconv.Itoa(n)+" failed change(s) queued for retry")
	s.redirect(w, r, sess, "/admin")
}

func (s *Server) syncDiscard(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)
	n := s.mirror.Discard(formKind(r))
	sess.AddFlash("info", strconv.Itoa(n)+" failed change(s) discarded")
	s.redirect(w, r, sess, "/admin")
}
