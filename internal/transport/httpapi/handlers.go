package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"ambush/internal/eventbus"
	"ambush/internal/repo"
	"ambush/pkg/logx"
)

// maxUploadBytes caps a single sound upload.
const maxUploadBytes = 16 << 20

type handlers struct {
	sounds *repo.Sounds
	conf   *repo.Config
	log    logx.Logger
}

type soundJSON struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Size      int    `json:"size"`
	CreatedAt int64  `json:"created_at"`
}

// GET /api/sounds
func (h *handlers) listSounds(w http.ResponseWriter, r *http.Request) {
	infos, err := h.sounds.List(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	out := make([]soundJSON, 0, len(infos))
	for _, s := range infos {
		out = append(out, soundJSON{ID: s.ID, Name: s.Name, Size: s.Size, CreatedAt: s.CreatedAt.Unix()})
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /api/sounds (multipart: file, optional name)
func (h *handlers) uploadSound(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		http.Error(w, "reading upload failed", http.StatusBadRequest)
		return
	}
	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		name = hdr.Filename
	}

	snd, err := h.sounds.Create(r.Context(), name, data, eventbus.SourceWeb)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, soundJSON{ID: snd.ID, Name: snd.Name, Size: len(snd.Data), CreatedAt: snd.CreatedAt.Unix()})
}

// GET /api/sounds/{id}
func (h *handlers) downloadSound(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	snd, err := h.sounds.Get(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+snd.Name+`"`)
	_, _ = w.Write(snd.Data)
}

// PATCH /api/sounds/{id} {"name": "..."}
func (h *handlers) renameSound(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if err := h.sounds.Rename(r.Context(), id, body.Name, eventbus.SourceWeb); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DELETE /api/sounds/{id}
func (h *handlers) deleteSound(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.sounds.Delete(r.Context(), id, eventbus.SourceWeb); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/config/interval
func (h *handlers) getInterval(w http.ResponseWriter, r *http.Request) {
	v, err := h.conf.Interval(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"interval": v})
}

// PUT /api/config/interval {"interval": n}
func (h *handlers) setInterval(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Interval int `json:"interval"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if err := h.conf.SetInterval(r.Context(), body.Interval, eventbus.SourceWeb); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/config/volume
func (h *handlers) getVolume(w http.ResponseWriter, r *http.Request) {
	v, err := h.conf.Volume(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"volume": v})
}

// PUT /api/config/volume {"volume": n}
func (h *handlers) setVolume(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Volume int `json:"volume"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if err := h.conf.SetVolume(r.Context(), body.Volume, eventbus.SourceWeb); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case repo.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
