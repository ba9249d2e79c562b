package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/agentuity/storefront/catalog"
	"github.com/agentuity/storefront/menu"
	"github.com/agentuity/storefront/sys"
	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/gorilla/mux"
)

type menuPage struct {
	Sections   []catalog.Section
	Categories []menu.Category
	Current    *menu.Category
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := s.session(r)
	s.render(w, r, sess, http.StatusOK, "index", "", menuPage{
		Sections:   s.catalog.Menu(ctx),
		Categories: s.catalog.Categories(ctx),
	})
}

func (s *Server) category(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := s.session(r)
	category, ok := s.catalog.CategoryBySlug(ctx, mux.Vars(r)["slug"])
	if !ok {
		s.render(w, r, sess, http.StatusNotFound, "notfound", "Not found", nil)
		return
	}
	s.render(w, r, sess, http.StatusOK, "index", category.Name, menuPage{
		Sections:   []catalog.Section{{Category: category, Items: s.catalog.ItemsByCategory(ctx, category.ID)}},
		Categories: s.catalog.Categories(ctx),
		Current:    &category,
	})
}

type apiSection struct {
	Category menu.Category `json:"category"`
	Items    []menu.Item   `json:"items"`
}

type apiMenu struct {
	Site struct {
		Name       string `json:"name"`
		ShowPrices bool   `json:"show_prices"`
	} `json:"site"`
	Sections []apiSection `json:"sections"`
}

// apiMenu returns the grouped menu as JSON with an ETag over the body.
func (s *Server) apiMenu(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	site := s.settings.Site(ctx)

	var out apiMenu
	out.Site.Name = site.Name
	out.Site.ShowPrices = site.ShowPrices
	out.Sections = []apiSection{}
	for _, section := range s.catalog.Menu(ctx) {
		items := section.Items
		if items == nil {
			items = []menu.Item{}
		}
		if !site.ShowPrices {
			items = withoutPrices(items)
		}
		out.Sections = append(out.Sections, apiSection{Category: section.Category, Items: items})
	}

	body, err := json.Marshal(out)
	if err != nil {
		s.log.Error("encode menu: %s", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	etag := fmt.Sprintf(`"%016x"`, xxhash.Sum64(body))
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if match := r.Header.Get("If-None-Match"); match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

func withoutPrices(items []menu.Item) []menu.Item {
	out := make([]menu.Item, len(items))
	for i, item := range items {
		item.Price = nil
		out[i] = item
	}
	return out
}

type health struct {
	Status    string                   `json:"status"`
	Snapshots []catalog.SnapshotStatus `json:"snapshots"`
	Queued    int                      `json:"queued"`
	Failed    int                      `json:"failed"`
	DiskFree  uint64                   `json:"cache_disk_free"`
	Memory    uint64                   `json:"memory_available"`
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, health{
		Status:    "ok",
		Snapshots: s.catalog.Status(),
		Queued:    len(s.mirror.Queued()),
		Failed:    len(s.mirror.Failed()),
		DiskFree:  sys.DiskFree(s.catalog.Dir()),
		Memory:    sys.MemoryAvailable(),
	})
}

// asset serves objects uploaded to the local store.
func (s *Server) asset(w http.ResponseWriter, r *http.Request) {
	if s.assets == nil {
		s.notFound(w, r)
		return
	}
	vars := mux.Vars(r)
	data, contentType, err := s.assets.ReadAsset(r.Context(), vars["bucket"], vars["path"])
	if errors.Is(err, menu.ErrNotFound) {
		s.notFound(w, r)
		return
	}
	if err != nil {
		s.log.Error("read asset %s/%s: %s", vars["bucket"], vars["path"], err)
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}
