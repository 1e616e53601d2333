package person

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/person-api/backend/internal/model/person"
	"github.com/zhouzirui/person-api/backend/internal/service/events"
	"github.com/zhouzirui/person-api/backend/pkg/utils"
)

const maxBodyBytes = 1 << 20

var (
	errInvalidID   = errors.New("invalid person id")
	errInvalidBody = errors.New("invalid request body")
)

// Handler person服务的HTTP处理器
type Handler struct {
	persons person.Store
	events  events.Publisher
	logger  zerolog.Logger
}

// New 创建person处理器. publisher may be nil when no change feed is wired.
func New(persons person.Store, publisher events.Publisher, logger zerolog.Logger) *Handler {
	return &Handler{
		persons: persons,
		events:  publisher,
		logger:  logger.With().Str("component", "person").Logger(),
	}
}

// RegisterRoutes 注册person相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/all", h.handleList)
	r.Get("/person/*", h.handleGet)
	r.Post("/add", h.handleAdd)
	r.Delete("/delete/*", h.handleDelete)
	r.Put("/update/*", h.handleUpdate)
}

// handleList 列出所有person
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, person.List{List: h.persons.List()})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	p, err := h.persons.FindByID(id)
	if err != nil {
		h.respondStoreError(w, err, fmt.Sprintf("Person id : %d Not Found", id))
		return
	}
	utils.RespondJSON(w, http.StatusOK, p)
}

func (h *Handler) handleAdd(w http.ResponseWriter, r *http.Request) {
	name, ok := h.bodyName(w, r)
	if !ok {
		return
	}

	p := h.persons.Add(name)
	h.logger.Info().Uint64("person_id", p.ID).Msg("person added")
	h.publish(events.Added, p)
	utils.RespondText(w, http.StatusOK, "New Person added!")
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	removed, err := h.persons.Delete(id)
	if err != nil {
		h.respondStoreError(w, err, fmt.Sprintf("Person id : %d Not Found", id))
		return
	}
	h.logger.Info().Uint64("person_id", id).Msg("person removed")
	h.publish(events.Removed, removed)
	utils.RespondText(w, http.StatusOK, fmt.Sprintf("Person id : %d removed", id))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	name, ok := h.bodyName(w, r)
	if !ok {
		return
	}

	p, err := h.persons.Update(id, name)
	if err != nil {
		h.respondStoreError(w, err, fmt.Sprintf("Person id : %d not found", id))
		return
	}
	h.logger.Info().Uint64("person_id", id).Msg("person updated")
	h.publish(events.Updated, p)
	utils.RespondText(w, http.StatusOK, fmt.Sprintf("Person id : %d updated", id))
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := parsePathID(r.URL.Path)
	if err != nil {
		h.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("rejecting request")
		utils.RespondError(w, http.StatusBadRequest, errInvalidID.Error())
		return 0, false
	}
	return id, true
}

func (h *Handler) bodyName(w http.ResponseWriter, r *http.Request) (string, bool) {
	name, err := decodeName(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("rejecting request")
		utils.RespondError(w, http.StatusBadRequest, errInvalidBody.Error())
		return "", false
	}
	return name, true
}

func (h *Handler) respondStoreError(w http.ResponseWriter, err error, notFound string) {
	if errors.Is(err, person.ErrNotFound) {
		utils.RespondText(w, http.StatusNotFound, notFound)
		return
	}
	h.logger.Error().Err(err).Msg("store operation failed")
	utils.RespondError(w, http.StatusInternalServerError, "internal error")
}

func (h *Handler) publish(t events.Type, p person.Person) {
	if h.events == nil {
		return
	}
	h.events.Publish(events.NewEvent(t, p))
}

// parsePathID reads the id from the third "/"-separated segment of path, so
// "/person/7" and "/person/7/extra" both yield 7.
func parsePathID(path string) (uint64, error) {
	segments := strings.Split(path, "/")
	if len(segments) < 3 || segments[2] == "" {
		return 0, fmt.Errorf("%w: missing segment", errInvalidID)
	}
	id, err := strconv.ParseUint(segments[2], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errInvalidID, err)
	}
	return id, nil
}

// decodeName parses a {"name": string} document. The key is matched exactly,
// must appear once and must hold a string; other keys are skipped.
func decodeName(body io.Reader) (string, error) {
	dec := json.NewDecoder(body)

	if err := expectDelim(dec, '{'); err != nil {
		return "", err
	}

	var name *string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return "", fmt.Errorf("%w: %v", errInvalidBody, err)
		}
		key, _ := tok.(string)
		if key != "name" {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return "", fmt.Errorf("%w: %v", errInvalidBody, err)
			}
			continue
		}
		if name != nil {
			return "", fmt.Errorf("%w: duplicate name field", errInvalidBody)
		}
		var value *string
		if err := dec.Decode(&value); err != nil {
			return "", fmt.Errorf("%w: %v", errInvalidBody, err)
		}
		if value == nil {
			return "", fmt.Errorf("%w: name must be a string", errInvalidBody)
		}
		name = value
	}

	if err := expectDelim(dec, '}'); err != nil {
		return "", err
	}
	if _, err := dec.Token(); err != io.EOF {
		return "", fmt.Errorf("%w: trailing data after document", errInvalidBody)
	}
	if name == nil {
		return "", fmt.Errorf("%w: name is required", errInvalidBody)
	}
	return *name, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("%w: expected %q", errInvalidBody, want)
	}
	return nil
}
