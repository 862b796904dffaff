package inspect

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/brisklabs/buildengine/pkg/entrydb"
)

// Server exposes db's stored Entries over HTTP for `ectl get`, in
// the same "LIST vs single GET" shape the teacher's own ectl get/apply
// client speaks, simplified to an ordinary GET since Entries are
// computed, never user-written.
type Server struct {
	db entrydb.Database
}

func NewServer(db entrydb.Database) *Server {
	return &Server{db: db}
}

// ServeHTTP handles GET /db/<tag> (every stored entry with that rule tag)
// and GET /db/<tag>/<key-json> (one entry, keyed by its canonical JSON
// payload as produced by key.Key.Bytes).
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/db/")
	tag, rest, hasKey := strings.Cut(path, "/")
	if tag == "" {
		http.Error(w, "rule tag required", http.StatusBadRequest)
		return
	}

	keys, err := s.db.ListKeys()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if hasKey {
		for _, k := range keys {
			if string(k.Tag()) != tag || string(k.Bytes()) != rest {
				continue
			}
			entry, err := s.db.GetEntry(k)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, entry)
			return
		}
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	var entries []*entrydb.Entry
	for _, k := range keys {
		if string(k.Tag()) != tag {
			continue
		}
		entry, err := s.db.GetEntry(k)
		if err != nil && !errors.Is(err, entrydb.ErrNotExist) {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if err == nil {
			entries = append(entries, entry)
		}
	}
	writeJSON(w, entries)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{err.Error()})
}
