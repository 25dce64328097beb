package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/trunov/mediaforge/internal/config"
	"github.com/trunov/mediaforge/internal/entities"
	"github.com/trunov/mediaforge/internal/jobtracker"
	"github.com/trunov/mediaforge/internal/linker"
	"github.com/trunov/mediaforge/internal/metastore"
	"github.com/trunov/mediaforge/internal/queue"
	"github.com/trunov/mediaforge/internal/repository/storage"
	"github.com/trunov/mediaforge/internal/s3store"
	use_case "github.com/trunov/mediaforge/internal/use-case"
)

type UseCase interface {
	UploadMedia(ctx context.Context, owner, title, filename, fileType string, data []byte) (entities.Media, error)
	GetMedia(ctx context.Context, owner, id string) (entities.Media, error)
	ListMedia(ctx context.Context, owner string, page, limit int) (entities.MediaPage, error)
	CreateUploadHandle(ctx context.Context, owner, filename, contentType string) (*s3store.UploadHandle, error)
	DownloadURL(ctx context.Context, key, disposition string) (string, error)
	EnqueueTask(ctx context.Context, task queue.Task) error
	SubmitTranscode(ctx context.Context, owner, mediaID string, p entities.TranscodeParams) (entities.Job, error)
	SyncTranscode(ctx context.Context, owner, mediaID string, p entities.TranscodeParams) (string, error)
	GetJob(owner, id string) (entities.Job, error)
	ListJobs(owner string) []entities.Job
	ListItems(ctx context.Context, owner string, limit int32, cursor string) ([]metastore.Record, string, error)
	DeleteItem(ctx context.Context, owner, itemID string) error
	CreateShareLink(ctx context.Context, key string, ttl time.Duration) (string, error)
	ResolveShareLink(ctx context.Context, token string) (string, error)
}

type WebhookSecrets interface {
	WebhookSecret(ctx context.Context) (string, error)
}

// Pinger reports whether the media registry is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	useCase   UseCase
	secrets   WebhookSecrets
	db        Pinger
	cfg       *config.Config
	validator *validator.Validate
}

func New(useCase UseCase, secrets WebhookSecrets, db Pinger, cfg *config.Config) *Handler {
	return &Handler{
		useCase:   useCase,
		secrets:   secrets,
		db:        db,
		cfg:       cfg,
		validator: validator.New(),
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			writeJSONError(w, "registry database unreachable", http.StatusServiceUnavailable)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) UploadMedia(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Upload.MaxRequestBodyMB<<20)

	maxMultipartMem := h.cfg.Upload.MaxMultipartMemoryMB
	if err := r.ParseMultipartForm(maxMultipartMem << 20); err != nil {
		writeMultipartError(w, err)
		return
	}

	file, fh, err := r.FormFile("file")
	if err != nil {
		if strings.Contains(err.Error(), "no such file") {
			writeJSONError(w, `missing media file: form field key should be "file"`, http.StatusBadRequest)
		} else {
			writeJSONError(w, "an error occurred while uploading the file: "+err.Error(), http.StatusBadRequest)
		}
		return
	}
	defer file.Close()

	mime, err := mimetype.DetectReader(file)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if _, err = file.Seek(0, 0); err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	fileType := mime.String()
	if err := validateMimeType(fileType); err != nil {
		writeJSONError(w, "unsupported file type: "+fileType, http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	media, err := h.useCase.UploadMedia(r.Context(), ownerFrom(r), r.Form.Get("title"), fh.Filename, fileType, data)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, media)
}

func (h *Handler) ListMedia(w http.ResponseWriter, r *http.Request) {
	page := parseIntDefault(r.URL.Query().Get("page"), 1)
	limit := parseIntDefault(r.URL.Query().Get("limit"), 10)

	result, err := h.useCase.ListMedia(r.Context(), ownerFrom(r), page, limit)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) GetMedia(w http.ResponseWriter, r *http.Request) {
	media, err := h.useCase.GetMedia(r.Context(), ownerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeNotFoundOr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, media)
}

func (h *Handler) CreateUploadURL(w http.ResponseWriter, r *http.Request) {
	var req UploadURLRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	handle, err := h.useCase.CreateUploadHandle(r.Context(), ownerFrom(r), req.Filename, req.ContentType)
	if err != nil {
		writeJSONError(w, "failed to get presigned URL", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, handle)
}

func (h *Handler) GetDownloadURL(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Query().Get("key"), "/")
	if key == "" {
		writeJSONError(w, "missing key", http.StatusBadRequest)
		return
	}
	disposition := r.URL.Query().Get("disposition")

	url, err := h.useCase.DownloadURL(r.Context(), key, disposition)
	if err != nil {
		writeJSONError(w, "failed to get download URL", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url, "key": key})
}

func (h *Handler) EnqueueTask(w http.ResponseWriter, r *http.Request) {
	var req TaskRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	task := queue.Task{
		Type:    queue.TaskType(req.Type),
		Key:     req.Key,
		ItemID:  req.ItemID,
		Owner:   ownerFrom(r),
		Options: req.Options,
	}
	if err := h.useCase.EnqueueTask(r.Context(), task); err != nil {
		if errors.Is(err, queue.ErrUnconfigured) {
			writeJSONError(w, "task queue is not configured", http.StatusServiceUnavailable)
			return
		}
		writeJSONError(w, err.Error(), http.StatusBadGateway)
		return
	}

	// Always accepted; callers poll the item record for the outcome.
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true, "type": req.Type, "key": req.Key})
}

func (h *Handler) SubmitTranscode(w http.ResponseWriter, r *http.Request) {
	req, ok := h.transcodeRequest(w, r)
	if !ok {
		return
	}

	job, err := h.useCase.SubmitTranscode(r.Context(), ownerFrom(r), req.ID, transcodeParams(req))
	if err != nil {
		if errors.Is(err, jobtracker.ErrBacklogFull) {
			writeJSONError(w, "transcode backlog is full, retry later", http.StatusServiceUnavailable)
			return
		}
		writeNotFoundOr(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": job.ID, "status": string(job.Status)})
}

func (h *Handler) SyncTranscode(w http.ResponseWriter, r *http.Request) {
	req, ok := h.transcodeRequest(w, r)
	if !ok {
		return
	}

	output, err := h.useCase.SyncTranscode(r.Context(), ownerFrom(r), req.ID, transcodeParams(req))
	if err != nil {
		if errors.Is(err, use_case.ErrNotFound) || errors.Is(err, storage.ErrNotFound) {
			writeJSONError(w, "not found", http.StatusNotFound)
			return
		}
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "done", "output": output})
}

func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.useCase.ListJobs(ownerFrom(r)))
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.useCase.GetJob(ownerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeNotFoundOr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 20)

	items, next, err := h.useCase.ListItems(r.Context(), ownerFrom(r), int32(limit), r.URL.Query().Get("cursor"))
	if err != nil {
		if errors.Is(err, metastore.ErrMissingOwner) {
			writeJSONError(w, "unidentified owner", http.StatusUnauthorized)
			return
		}
		writeJSONError(w, err.Error(), http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items, "next": next})
}

func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.useCase.DeleteItem(r.Context(), ownerFrom(r), chi.URLParam(r, "itemID")); err != nil {
		if errors.Is(err, metastore.ErrMissingOwner) {
			writeJSONError(w, "unidentified owner", http.StatusUnauthorized)
			return
		}
		writeJSONError(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) CreateShareLink(w http.ResponseWriter, r *http.Request) {
	var req ShareRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	url, err := h.useCase.CreateShareLink(r.Context(), req.Key, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"url": url})
}

func (h *Handler) ResolveShareLink(w http.ResponseWriter, r *http.Request) {
	url, err := h.useCase.ResolveShareLink(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		if errors.Is(err, linker.ErrExpired) {
			writeJSONError(w, "link expired", http.StatusNotFound)
			return
		}
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// Webhook verifies the HMAC signature of inbound notifications against the
// shared secret before doing anything with the payload.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeJSONError(w, "failed to read body", http.StatusBadRequest)
		return
	}

	secret, err := h.secrets.WebhookSecret(r.Context())
	if err != nil {
		writeJSONError(w, "webhook secret unavailable", http.StatusServiceUnavailable)
		return
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	provided := r.Header.Get("X-Signature")
	if provided == "" || !hmac.Equal([]byte(provided), []byte(expected)) {
		writeJSONError(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) transcodeRequest(w http.ResponseWriter, r *http.Request) (TranscodeRequest, bool) {
	var req TranscodeRequest
	if !h.decodeAndValidate(w, r, &req) {
		return req, false
	}
	return req, true
}

func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, "invalid json body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	if err := h.validator.Struct(v); err != nil {
		writeJSON(w, http.StatusBadRequest, validationErrorsToMap(err))
		return false
	}
	return true
}

func transcodeParams(req TranscodeRequest) entities.TranscodeParams {
	return entities.TranscodeParams{
		Format:       req.Format,
		Resolution:   req.Resolution,
		CRF:          req.CRF,
		Preset:       req.Preset,
		ExtraFilters: req.ExtraFilters,
	}
}

func writeNotFoundOr(w http.ResponseWriter, err error) {
	if errors.Is(err, use_case.ErrNotFound) ||
		errors.Is(err, storage.ErrNotFound) ||
		errors.Is(err, jobtracker.ErrNotFound) {
		writeJSONError(w, "not found", http.StatusNotFound)
		return
	}
	writeJSONError(w, err.Error(), http.StatusInternalServerError)
}
