package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"sales-event-service/internal/domain"
	"sales-event-service/internal/geo"
	"sales-event-service/internal/metrics"
	"sales-event-service/internal/store"
	"sales-event-service/internal/timelocal"
)

// HTTPHandler holds dependencies for HTTP handlers.
type HTTPHandler struct {
	catalogStore store.CatalogStorer
	eventStore   store.EventStorer
	metrics      *metrics.Registry
	validate     *validator.Validate
}

// NewHTTPHandler creates a new HTTPHandler with dependencies.
func NewHTTPHandler(cs store.CatalogStorer, es store.EventStorer, m *metrics.Registry) *HTTPHandler {
	return &HTTPHandler{
		catalogStore: cs,
		eventStore:   es,
		metrics:      m,
		validate:     validator.New(),
	}
}

// --- Helpers ---

// ErrorResponse defines the structure for JSON error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil { // Avoid writing empty body for 204 No Content
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			log.Printf("ERROR: Failed to encode JSON response: %v", err)
			http.Error(w, `{"error": "Internal server error during JSON encoding"}`, http.StatusInternalServerError)
		}
	}
}

// Pagination matches the envelope used across list endpoints.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

func paginationFrom(page, limit, totalCount int) Pagination {
	totalPages := 0
	if totalCount > 0 {
		totalPages = (totalCount + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, TotalItems: totalCount, TotalPages: totalPages}
}

func parsePageParams(r *http.Request, defaultLimit, maxLimit int) (page, limit, offset int) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	page, err = strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page <= 0 {
		page = 1
	}
	return page, limit, (page - 1) * limit
}

// parseDate parses a "YYYY-MM-DD" query value into a decomposed date. The
// fields are only shape-checked here; calendar legality is the store's call.
func parseDate(value string) (*timelocal.Date, error) {
	parts := strings.Split(value, "-")
	if len(parts) != 3 {
		return nil, errors.New("date must be YYYY-MM-DD")
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, errors.New("date must be YYYY-MM-DD")
		}
		nums[i] = n
	}
	return &timelocal.Date{Year: nums[0], Month: nums[1], Day: nums[2]}, nil
}

// parseBBox parses "minLat,minLon,maxLat,maxLon".
func parseBBox(value string) (*geo.BoundingBox, error) {
	parts := strings.Split(value, ",")
	if len(parts) != 4 {
		return nil, errors.New("bbox must be minLat,minLon,maxLat,maxLon")
	}
	nums := make([]float64, 4)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, errors.New("bbox must contain four decimal numbers")
		}
		nums[i] = f
	}
	box := &geo.BoundingBox{MinLat: nums[0], MinLon: nums[1], MaxLat: nums[2], MaxLon: nums[3]}
	if !box.Valid() {
		return nil, errors.New("bbox bounds are not ordered")
	}
	return box, nil
}

// --- Item handlers ---

// ItemUpsertInput defines the expected input for upserting an item.
type ItemUpsertInput struct {
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description" validate:"omitempty"`
	UnitOfSale  string `json:"unitofsale" validate:"omitempty,max=32"`
}

func (h *HTTPHandler) UpsertItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemId")
	if itemID == "" {
		respondWithError(w, http.StatusBadRequest, "Missing item ID")
		return
	}

	var input ItemUpsertInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	item := &domain.Item{
		ItemID:      itemID,
		Name:        input.Name,
		Description: input.Description,
		UnitOfSale:  input.UnitOfSale,
	}

	upserted, err := h.catalogStore.UpsertItem(r.Context(), item)
	if err != nil {
		log.Printf("ERROR: UpsertItem store operation failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to upsert item")
		return
	}

	respondWithJSON(w, http.StatusOK, upserted)
}

func (h *HTTPHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemId")

	item, err := h.catalogStore.GetItem(r.Context(), itemID)
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			respondWithError(w, http.StatusNotFound, store.ErrItemNotFound.Error())
		} else {
			log.Printf("ERROR: GetItem store operation for %q failed: %v", itemID, err)
			respondWithError(w, http.StatusInternalServerError, "Failed to retrieve item")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, item)
}

func (h *HTTPHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	page, limit, offset := parsePageParams(r, 10, 100)

	items, totalCount, err := h.catalogStore.ListItems(r.Context(), store.ListParams{Limit: limit, Offset: offset})
	if err != nil {
		log.Printf("ERROR: ListItems store operation failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve items")
		return
	}

	respondWithJSON(w, http.StatusOK, struct {
		Data       []domain.Item `json:"data"`
		Pagination Pagination    `json:"pagination"`
	}{Data: items, Pagination: paginationFrom(page, limit, totalCount)})
}

func (h *HTTPHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemId")

	err := h.catalogStore.DeleteItem(r.Context(), itemID)
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			respondWithError(w, http.StatusNotFound, store.ErrItemNotFound.Error())
		} else {
			log.Printf("ERROR: DeleteItem store operation for %q failed: %v", itemID, err)
			respondWithError(w, http.StatusInternalServerError, "Failed to delete item")
		}
		return
	}

	respondWithJSON(w, http.StatusNoContent, nil)
}

// --- Location handlers ---

// LocationUpsertInput defines the expected input for upserting a location.
// Latitude/longitude stay textual end to end.
type LocationUpsertInput struct {
	Name                 string `json:"name" validate:"required,max=255"`
	Description          string `json:"description" validate:"omitempty"`
	Address              string `json:"address" validate:"omitempty"`
	Contact              string `json:"contact" validate:"omitempty,max=255"`
	Latitude             string `json:"latitude" validate:"omitempty,max=32"`
	Longitude            string `json:"longitude" validate:"omitempty,max=32"`
	StoreCategory        string `json:"storecategory" validate:"omitempty,max=64"`
	LocationCategory     string `json:"locationcategory" validate:"omitempty,max=64"`
	StoreCategoryNote    string `json:"storecategorynote" validate:"omitempty"`
	LocationCategoryNote string `json:"locationcategorynote" validate:"omitempty"`
}

func (h *HTTPHandler) UpsertLocation(w http.ResponseWriter, r *http.Request) {
	locID := chi.URLParam(r, "locId")
	if locID == "" {
		respondWithError(w, http.StatusBadRequest, "Missing location ID")
		return
	}

	var input LocationUpsertInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	loc := &domain.Location{
		LocID:                locID,
		Name:                 input.Name,
		Description:          input.Description,
		Address:              input.Address,
		Contact:              input.Contact,
		Latitude:             input.Latitude,
		Longitude:            input.Longitude,
		StoreCategory:        input.StoreCategory,
		LocationCategory:     input.LocationCategory,
		StoreCategoryNote:    input.StoreCategoryNote,
		LocationCategoryNote: input.LocationCategoryNote,
	}

	upserted, err := h.catalogStore.UpsertLocation(r.Context(), loc)
	if err != nil {
		log.Printf("ERROR: UpsertLocation store operation failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to upsert location")
		return
	}

	respondWithJSON(w, http.StatusOK, upserted)
}

func (h *HTTPHandler) GetLocation(w http.ResponseWriter, r *http.Request) {
	locID := chi.URLParam(r, "locId")

	loc, err := h.catalogStore.GetLocation(r.Context(), locID)
	if err != nil {
		if errors.Is(err, store.ErrLocationNotFound) {
			respondWithError(w, http.StatusNotFound, store.ErrLocationNotFound.Error())
		} else {
			log.Printf("ERROR: GetLocation store operation for %q failed: %v", locID, err)
			respondWithError(w, http.StatusInternalServerError, "Failed to retrieve location")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, loc)
}

func (h *HTTPHandler) ListLocations(w http.ResponseWriter, r *http.Request) {
	page, limit, offset := parsePageParams(r, 10, 100)

	locations, totalCount, err := h.catalogStore.ListLocations(r.Context(), store.ListParams{Limit: limit, Offset: offset})
	if err != nil {
		log.Printf("ERROR: ListLocations store operation failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve locations")
		return
	}

	respondWithJSON(w, http.StatusOK, struct {
		Data       []domain.Location `json:"data"`
		Pagination Pagination        `json:"pagination"`
	}{Data: locations, Pagination: paginationFrom(page, limit, totalCount)})
}

func (h *HTTPHandler) DeleteLocation(w http.ResponseWriter, r *http.Request) {
	locID := chi.URLParam(r, "locId")

	err := h.catalogStore.DeleteLocation(r.Context(), locID)
	if err != nil {
		if errors.Is(err, store.ErrLocationNotFound) {
			respondWithError(w, http.StatusNotFound, store.ErrLocationNotFound.Error())
		} else {
			log.Printf("ERROR: DeleteLocation store operation for %q failed: %v", locID, err)
			respondWithError(w, http.StatusInternalServerError, "Failed to delete location")
		}
		return
	}

	respondWithJSON(w, http.StatusNoContent, nil)
}

// --- Event handlers ---

// EventAppendInput defines the expected input for appending a sale event.
// locid/itemid are soft references and may name catalog entries that do not
// (yet) exist; quantity and calendar legality are validated by the store.
type EventAppendInput struct {
	LocID         string  `json:"locid" validate:"omitempty,max=255"`
	ItemID        string  `json:"itemid" validate:"omitempty,max=255"`
	SaleQty       float64 `json:"saleqty"`
	Year          int     `json:"year"`
	Month         int     `json:"month"`
	Day           int     `json:"day"`
	Hour          int     `json:"hour"`
	Minute        int     `json:"minute"`
	Second        int     `json:"second"`
	EventTimezone string  `json:"event_timezone" validate:"omitempty,max=64"`
}

func (h *HTTPHandler) AppendEvent(w http.ResponseWriter, r *http.Request) {
	var input EventAppendInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	event, err := h.eventStore.AppendEvent(r.Context(), store.AppendEventParams{
		LocID:   input.LocID,
		ItemID:  input.ItemID,
		SaleQty: input.SaleQty,
		Time: timelocal.Fields{
			Year:   input.Year,
			Month:  input.Month,
			Day:    input.Day,
			Hour:   input.Hour,
			Minute: input.Minute,
			Second: input.Second,
		},
		Timezone: input.EventTimezone,
	})
	if err != nil {
		switch {
		case errors.Is(err, timelocal.ErrInvalidCalendar):
			h.metrics.EventsRejected.WithLabelValues("invalid_calendar").Inc()
			respondWithError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrInvalidQuantity):
			h.metrics.EventsRejected.WithLabelValues("invalid_quantity").Inc()
			respondWithError(w, http.StatusBadRequest, err.Error())
		default:
			log.Printf("ERROR: AppendEvent store operation failed: %v", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to append event")
		}
		return
	}

	h.metrics.EventsAppended.Inc()
	respondWithJSON(w, http.StatusCreated, event)
}

// EventBatchInput wraps a batch of events for bulk append. The batch is
// all-or-nothing: one invalid event rejects the whole request.
type EventBatchInput struct {
	Events []EventAppendInput `json:"events" validate:"required,min=1,max=1000,dive"`
}

func (h *HTTPHandler) BulkAppendEvents(w http.ResponseWriter, r *http.Request) {
	var input EventBatchInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	batch := make([]store.AppendEventParams, len(input.Events))
	for i, in := range input.Events {
		batch[i] = store.AppendEventParams{
			LocID:   in.LocID,
			ItemID:  in.ItemID,
			SaleQty: in.SaleQty,
			Time: timelocal.Fields{
				Year:   in.Year,
				Month:  in.Month,
				Day:    in.Day,
				Hour:   in.Hour,
				Minute: in.Minute,
				Second: in.Second,
			},
			Timezone: in.EventTimezone,
		}
	}

	events, err := h.eventStore.BulkAppendEvents(r.Context(), batch)
	if err != nil {
		switch {
		case errors.Is(err, timelocal.ErrInvalidCalendar):
			h.metrics.EventsRejected.WithLabelValues("invalid_calendar").Inc()
			respondWithError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrInvalidQuantity):
			h.metrics.EventsRejected.WithLabelValues("invalid_quantity").Inc()
			respondWithError(w, http.StatusBadRequest, err.Error())
		default:
			log.Printf("ERROR: BulkAppendEvents store operation failed: %v", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to append events")
		}
		return
	}

	h.metrics.EventsAppended.Add(float64(len(events)))
	respondWithJSON(w, http.StatusCreated, struct {
		Data  []domain.SaleEvent `json:"data"`
		Count int                `json:"count"`
	}{Data: events, Count: len(events)})
}

func (h *HTTPHandler) GetSaleEvent(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "eventId")
	eventID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || eventID <= 0 {
		respondWithError(w, http.StatusBadRequest, "Invalid event ID format")
		return
	}

	event, err := h.eventStore.GetSaleEvent(r.Context(), eventID)
	if err != nil {
		if errors.Is(err, store.ErrEventNotFound) {
			respondWithError(w, http.StatusNotFound, store.ErrEventNotFound.Error())
		} else {
			log.Printf("ERROR: GetSaleEvent store operation for ID %d failed: %v", eventID, err)
			respondWithError(w, http.StatusInternalServerError, "Failed to retrieve event")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, event)
}

func (h *HTTPHandler) queryParamsFrom(r *http.Request) (store.QueryEventsParams, string, error) {
	qParams := r.URL.Query()
	var params store.QueryEventsParams

	if locID := qParams.Get("locid"); locID != "" {
		params.LocID = &locID
	}
	if itemID := qParams.Get("itemid"); itemID != "" {
		params.ItemID = &itemID
	}
	if from := qParams.Get("date_from"); from != "" {
		d, err := parseDate(from)
		if err != nil {
			return params, "", errors.New("Invalid date_from: " + err.Error())
		}
		params.DateFrom = d
	}
	if to := qParams.Get("date_to"); to != "" {
		d, err := parseDate(to)
		if err != nil {
			return params, "", errors.New("Invalid date_to: " + err.Error())
		}
		params.DateTo = d
	}
	if bbox := qParams.Get("bbox"); bbox != "" {
		box, err := parseBBox(bbox)
		if err != nil {
			return params, "", errors.New("Invalid bbox: " + err.Error())
		}
		params.Box = box
	}
	if refStr := qParams.Get("check_refs"); refStr != "" {
		b, err := strconv.ParseBool(refStr)
		if err != nil {
			return params, "", errors.New("Invalid check_refs value: must be true or false")
		}
		params.CheckRefs = b
	}

	order := qParams.Get("order")
	if order == "" {
		order = "local"
	}
	if order != "local" && order != "instant" {
		return params, "", errors.New("Invalid order value. Allowed: local, instant")
	}
	return params, order, nil
}

func (h *HTTPHandler) QueryEvents(w http.ResponseWriter, r *http.Request) {
	params, order, err := h.queryParamsFrom(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, limit, offset := parsePageParams(r, 100, 1000)
	params.Limit = limit
	params.Offset = offset

	h.metrics.QueriesServed.Inc()

	if order == "instant" {
		events, excluded, err := h.eventStore.QueryEventsByInstant(r.Context(), params)
		if err != nil {
			h.respondQueryError(w, err)
			return
		}
		h.metrics.UnresolvableZones.Add(float64(excluded))
		respondWithJSON(w, http.StatusOK, struct {
			Data                 []domain.EventView `json:"data"`
			ExcludedUnresolvable int                `json:"excluded_unresolvable"`
			Pagination           Pagination         `json:"pagination"`
		}{Data: events, ExcludedUnresolvable: excluded, Pagination: Pagination{Page: page, Limit: limit, TotalItems: len(events)}})
		return
	}

	seq, err := h.eventStore.QueryEvents(r.Context(), params)
	if err != nil {
		h.respondQueryError(w, err)
		return
	}
	events, err := store.Collect(seq)
	if err != nil {
		log.Printf("ERROR: QueryEvents iteration failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve events")
		return
	}

	totalCount, err := h.eventStore.CountEvents(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: CountEvents failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve events")
		return
	}

	respondWithJSON(w, http.StatusOK, struct {
		Data       []domain.EventView `json:"data"`
		Pagination Pagination         `json:"pagination"`
	}{Data: events, Pagination: paginationFrom(page, limit, totalCount)})
}

func (h *HTTPHandler) respondQueryError(w http.ResponseWriter, err error) {
	if errors.Is(err, timelocal.ErrInvalidCalendar) {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	log.Printf("ERROR: QueryEvents store operation failed: %v", err)
	respondWithError(w, http.StatusInternalServerError, "Failed to retrieve events")
}

func (h *HTTPHandler) AggregateEvents(w http.ResponseWriter, r *http.Request) {
	queryParams, _, err := h.queryParamsFrom(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	var groupBy store.GroupBy
	for _, dim := range strings.Split(r.URL.Query().Get("group_by"), ",") {
		switch strings.TrimSpace(dim) {
		case "locid":
			groupBy.Location = true
		case "itemid":
			groupBy.Item = true
		case "date":
			groupBy.Date = true
		case "":
		default:
			respondWithError(w, http.StatusBadRequest, "Invalid group_by dimension. Allowed: locid, itemid, date")
			return
		}
	}

	params := store.AggregateParams{
		LocID:    queryParams.LocID,
		ItemID:   queryParams.ItemID,
		DateFrom: queryParams.DateFrom,
		DateTo:   queryParams.DateTo,
		Box:      queryParams.Box,
		GroupBy:  groupBy,
	}

	rows, err := h.eventStore.Aggregate(r.Context(), params)
	if err != nil {
		if errors.Is(err, timelocal.ErrInvalidCalendar) {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("ERROR: Aggregate store operation failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to aggregate events")
		return
	}

	h.metrics.AggregatesServed.Inc()
	respondWithJSON(w, http.StatusOK, struct {
		Data []domain.AggregateRow `json:"data"`
	}{Data: rows})
}

// --- Route registration ---

// RegisterRoutes sets up the HTTP routes for the service.
func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/items", func(r chi.Router) {
		r.Get("/", h.ListItems) // GET /api/v1/items
		r.Route("/{itemId}", func(r chi.Router) {
			r.Put("/", h.UpsertItem)    // PUT /api/v1/items/{itemId}
			r.Get("/", h.GetItem)       // GET /api/v1/items/{itemId}
			r.Delete("/", h.DeleteItem) // DELETE /api/v1/items/{itemId}
		})
	})

	r.Route("/api/v1/locations", func(r chi.Router) {
		r.Get("/", h.ListLocations)
		r.Route("/{locId}", func(r chi.Router) {
			r.Put("/", h.UpsertLocation)
			r.Get("/", h.GetLocation)
			r.Delete("/", h.DeleteLocation)
		})
	})

	r.Route("/api/v1/events", func(r chi.Router) {
		r.Post("/", h.AppendEvent)           // POST /api/v1/events
		r.Post("/bulk", h.BulkAppendEvents)  // POST /api/v1/events/bulk
		r.Get("/", h.QueryEvents)            // GET /api/v1/events
		// Registered before {eventId} so "aggregate" is not parsed as an ID.
		r.Get("/aggregate", h.AggregateEvents) // GET /api/v1/events/aggregate
		r.Get("/{eventId}", h.GetSaleEvent)    // GET /api/v1/events/{eventId}
	})
}
