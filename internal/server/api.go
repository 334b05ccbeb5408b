package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"strconv"

	"github.com/mgoltzsche/sobub/internal/library"
	"github.com/mgoltzsche/sobub/internal/settings"
)

const maxFormMemory = 8 * 1024 * 1024

var errBadRequest = errors.New("bad request")

func (s *Server) listMemes(w http.ResponseWriter, req *http.Request) {
	clips, err := s.Store.AllClips(req.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, clips)
}

func (s *Server) createMeme(w http.ResponseWriter, req *http.Request) {
	req.Body = http.MaxBytesReader(w, req.Body, library.MaxFileSize+maxFormMemory)

	err := req.ParseMultipartForm(maxFormMemory)
	if err != nil {
		writeError(w, fmt.Errorf("%w: parse multipart form: %w", errBadRequest, err))
		return
	}

	file, header, err := req.FormFile("file")
	if err != nil {
		writeError(w, fmt.Errorf("%w: file: %w", errBadRequest, err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, library.MaxFileSize+1))
	if err != nil {
		writeError(w, fmt.Errorf("%w: read file: %w", errBadRequest, err))
		return
	}

	clip, err := s.Library.Add(req.Context(), header.Filename, data, library.ParseTags(req.FormValue("tags")))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, clip)
}

func (s *Server) getMeme(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		writeError(w, err)
		return
	}

	clip, err := s.Store.Clip(req.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, clip)
}

type tagsRequest struct {
	Tags []string `json:"tags"`
}

// updateMeme accepts the tags either as JSON list or as comma separated form value.
func (s *Server) updateMeme(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		writeError(w, err)
		return
	}

	var tags []string

	mediaType, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var body tagsRequest

		err = json.NewDecoder(http.MaxBytesReader(w, req.Body, maxFormMemory)).Decode(&body)
		if err != nil {
			writeError(w, fmt.Errorf("%w: decode request body: %w", errBadRequest, err))
			return
		}

		tags = body.Tags
	} else {
		tags = library.ParseTags(req.FormValue("tags"))
	}

	clip, err := s.Library.UpdateTags(req.Context(), id, tags)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, clip)
}

func (s *Server) deleteMeme(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		writeError(w, err)
		return
	}

	err = s.Library.Delete(req.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Meme deleted successfully"})
}

func (s *Server) getMemeAudio(w http.ResponseWriter, req *http.Request) {
	id, err := pathID(req)
	if err != nil {
		writeError(w, err)
		return
	}

	clip, err := s.Store.Clip(req.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	f, err := os.Open(s.Library.Path(clip.Filename))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeJSON(w, http.StatusNotFound, errorResponse{Detail: "Audio file not found"})
			return
		}

		writeError(w, err)
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", library.ContentType(clip.Filename))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": clip.Filename}))
	http.ServeContent(w, req, clip.Filename, fi.ModTime(), f)
}

type tagsResponse struct {
	Tags []string `json:"tags"`
}

func (s *Server) listTags(w http.ResponseWriter, req *http.Request) {
	tags, err := s.Store.Tags(req.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tagsResponse{Tags: tags})
}

func (s *Server) getSettings(w http.ResponseWriter, req *http.Request) {
	current, err := settings.Load(req.Context(), s.Store)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, current)
}

// updateSettings stores the given settings and applies the trigger settings
// to all engines immediately.
func (s *Server) updateSettings(w http.ResponseWriter, req *http.Request) {
	var update settings.Update

	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxFormMemory))
	dec.DisallowUnknownFields()

	err := dec.Decode(&update)
	if err != nil {
		writeError(w, fmt.Errorf("%w: decode settings: %w", errBadRequest, err))
		return
	}

	err = update.Save(req.Context(), s.Store)
	if err != nil {
		writeError(w, err)
		return
	}

	if update.CooldownSeconds != nil || update.TriggerProbability != nil {
		current, err := settings.Load(req.Context(), s.Store)
		if err != nil {
			writeError(w, err)
			return
		}

		current.Apply(s.Engines)
		s.Sessions.BroadcastStatus()

		slog.Info(fmt.Sprintf("trigger settings changed: cooldown %ds, probability %.1f%%", current.CooldownSeconds, current.TriggerProbability))
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Settings updated successfully"})
}

// getStatus returns the status of the shared engine or, with session
// scoped engines, of the engine of the client given by the client query parameter.
func (s *Server) getStatus(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, s.Engines.Engine(req.URL.Query().Get("client")).Status())
}

func (s *Server) resetCooldown(w http.ResponseWriter, _ *http.Request) {
	s.Engines.ResetAll()
	s.Sessions.BroadcastStatus()

	slog.Info("cooldown reset")

	writeJSON(w, http.StatusOK, messageResponse{Message: "Cooldown reset"})
}

func pathID(req *http.Request) (int64, error) {
	id, err := strconv.ParseInt(req.PathValue("id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid meme id %q", errBadRequest, req.PathValue("id"))
	}

	return id, nil
}
