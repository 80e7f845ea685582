package httpapi

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/avezhov/filestorage/internal/common"
	"github.com/avezhov/filestorage/internal/logging"
	"github.com/avezhov/filestorage/internal/server/services"
)

// uploads are parsed with up to this much multipart data held in memory
const maxMultipartMemory = 32 << 20

type handlers struct {
	users  *services.UserService
	files  *services.FileService
	db     *sql.DB
	logger logging.Logger
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.users.Register(r.Context(), req.Username, req.Password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, map[string]string{"created": "ok"})
	case errors.Is(err, common.ErrUserAlreadyExists):
		writeError(w, http.StatusConflict, "User with this username already exist")
	case errors.Is(err, common.ErrFieldRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.serverError(w, r, "register failed", err)
	}
}

func (h *handlers) authenticate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}

	token, err := h.users.Login(r.Context(), r.PostFormValue("username"), r.PostFormValue("password"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{
			"access_token": token,
			"token_type":   "bearer",
		})
	case errors.Is(err, common.ErrInvalidCredentials):
		unauthorized(w, "Incorrect username or password")
	default:
		h.serverError(w, r, "auth failed", err)
	}
}

func (h *handlers) upload(w http.ResponseWriter, r *http.Request) {
	principal := principalFromContext(r.Context())
	rawPath := r.URL.Query().Get("path")

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is missing")
		return
	}
	defer file.Close()

	view, err := h.files.Upload(r.Context(), principal, rawPath,
		header.Header.Get("Content-Type"), header.Filename, header.Size, file)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, view)
	case errors.Is(err, common.ErrFileConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, common.ErrFileSize),
		errors.Is(err, common.ErrFileType),
		errors.Is(err, common.ErrFileTypeMismatch),
		errors.Is(err, common.ErrFileNameMissing),
		errors.Is(err, common.ErrFilePath),
		errors.Is(err, common.ErrFieldRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.serverError(w, r, "upload failed", err)
	}
}

func (h *handlers) download(w http.ResponseWriter, r *http.Request) {
	principal := principalFromContext(r.Context())
	locator := r.URL.Query().Get("path")

	dl, err := h.files.Download(r.Context(), principal, locator)
	switch {
	case err == nil:
	case errors.Is(err, common.ErrFilePath):
		writeError(w, http.StatusNotFound, err.Error())
		return
	default:
		h.serverError(w, r, "download failed", err)
		return
	}
	defer dl.Body.Close()

	w.Header().Set("Content-Type", dl.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(dl.File.Size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dl.File.Name))
	if _, err := io.Copy(w, dl.Body); err != nil {
		h.logger.Error(r.Context(), "can't stream file", "path", dl.File.Path, "error", err.Error())
	}
}

func (h *handlers) list(w http.ResponseWriter, r *http.Request) {
	principal := principalFromContext(r.Context())

	view, err := h.files.List(r.Context(), principal)
	if err != nil {
		h.serverError(w, r, "list failed", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *handlers) ping(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if err := h.db.PingContext(r.Context()); err != nil {
		h.logger.Error(r.Context(), "database unreachable", "error", err.Error())
		writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"latency": time.Since(start).String(),
	})
}

func (h *handlers) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(r.Context(), msg, "error", err.Error())
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
