package server

import (
	"encoding/json"
	"errors"
	"github.com/gorilla/mux"
	"herald_bot/dal"
	"herald_bot/dto"
	"herald_bot/logic"
	"herald_bot/shared"
	"net/http"
	"strconv"
)

const defaultDraftListLimit = 100

type draftHandlerGroup struct {
	cfg     *shared.Config
	logger  shared.ILogger
	metrics logic.IMetrics
	drafts  logic.IDraftService
}

func NewDraftHandlerGroup(
	cfg *shared.Config,
	logger shared.ILogger,
	metrics logic.IMetrics,
	drafts logic.IDraftService,
) IHandlerGroup {
	res := draftHandlerGroup{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		drafts:  drafts,
	}
	return &res
}

func (hg *draftHandlerGroup) Prefix() string {
	return "/api/drafts"
}

func (hg *draftHandlerGroup) GroupDefs() []handlerDef {
	return []handlerDef{
		{"GET", "", func(w http.ResponseWriter, r *http.Request) { hg.getDrafts(w, r) }},
		{"GET", "/{id}", func(w http.ResponseWriter, r *http.Request) { hg.getDraft(w, r) }},
		{"POST", "/{id}/approve", func(w http.ResponseWriter, r *http.Request) { hg.postApprove(w, r) }},
		{"POST", "/{id}/reject", func(w http.ResponseWriter, r *http.Request) { hg.postReject(w, r) }},
	}
}

func (hg *draftHandlerGroup) AuthMW() func(next http.Handler) http.Handler {
	return apiKeyMW(hg.cfg, hg.logger)
}

func toDraftDto(d *dal.DraftEntry) dto.Draft {
	return dto.Draft{
		Id:             d.Id,
		Text:           d.Text,
		Kind:           string(d.Kind),
		Status:         string(d.Status),
		ReplyToId:      d.ReplyToId,
		ConversationId: d.ConversationId,
		AuthorId:       d.AuthorId,
		CreatedAt:      d.CreatedAt,
		DecidedAt:      d.DecidedAt,
		PostedAt:       d.PostedAt,
		ExpiredAt:      d.ExpiredAt,
		RejectReason:   d.RejectReason,
		PostId:         d.PostId,
	}
}

func validDraftStatus(s string) bool {
	switch dal.DraftStatus(s) {
	case "", dal.DraftPending, dal.DraftApproved, dal.DraftRejected, dal.DraftPosted, dal.DraftExpired:
		return true
	}
	return false
}

// writeDraftError maps draft service errors onto HTTP statuses.
func (hg *draftHandlerGroup) writeDraftError(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, dal.ErrNotFound):
		writeErrorResponse(w, notFoundStr, http.StatusNotFound)
	case errors.Is(err, dal.ErrInvalidTransition):
		writeErrorResponse(w, conflictStr, http.StatusConflict)
	default:
		hg.logger.Errorf("Draft %s: %v", id, err)
		writeErrorResponse(w, internalErrorStr, http.StatusInternalServerError)
	}
}

func (hg *draftHandlerGroup) getDrafts(w http.ResponseWriter, r *http.Request) {
	defer hg.metrics.StartWebRequestIn("drafts_list").Finish()

	status := r.URL.Query().Get("status")
	if !validDraftStatus(status) {
		writeErrorResponse(w, badRequestStr, http.StatusBadRequest)
		return
	}
	limit := defaultDraftListLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		var err error
		if limit, err = strconv.Atoi(limitStr); err != nil || limit < 0 {
			writeErrorResponse(w, badRequestStr, http.StatusBadRequest)
			return
		}
	}

	drafts, err := hg.drafts.List(dal.DraftStatus(status), limit)
	if err != nil {
		hg.logger.Errorf("Failed to list drafts: %v", err)
		writeErrorResponse(w, internalErrorStr, http.StatusInternalServerError)
		return
	}
	resp := make([]dto.Draft, 0, len(drafts))
	for _, d := range drafts {
		resp = append(resp, toDraftDto(d))
	}
	writeJsonResponse(hg.logger, w, resp)
}

func (hg *draftHandlerGroup) getDraft(w http.ResponseWriter, r *http.Request) {
	defer hg.metrics.StartWebRequestIn("drafts_get").Finish()

	id := mux.Vars(r)["id"]
	draft, err := hg.drafts.Get(id)
	if err != nil {
		hg.writeDraftError(w, id, err)
		return
	}
	writeJsonResponse(hg.logger, w, toDraftDto(draft))
}

func (hg *draftHandlerGroup) postApprove(w http.ResponseWriter, r *http.Request) {
	defer hg.metrics.StartWebRequestIn("drafts_approve").Finish()

	id := mux.Vars(r)["id"]
	hg.logger.Infof("POST /api/drafts/%s/approve", id)
	if err := hg.drafts.Approve(id); err != nil {
		hg.writeDraftError(w, id, err)
		return
	}
	hg.respondWithDraft(w, id)
}

func (hg *draftHandlerGroup) postReject(w http.ResponseWriter, r *http.Request) {
	defer hg.metrics.StartWebRequestIn("drafts_reject").Finish()

	id := mux.Vars(r)["id"]
	hg.logger.Infof("POST /api/drafts/%s/reject", id)

	// Body is optional
	var req dto.RejectRequest
	body := readBody(hg.logger, w, r)
	if body == nil {
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			hg.logger.Infof("Invalid reject request body: %v", err)
			writeErrorResponse(w, badRequestStr, http.StatusBadRequest)
			return
		}
	}

	if err := hg.drafts.Reject(id, req.Reason); err != nil {
		hg.writeDraftError(w, id, err)
		return
	}
	hg.respondWithDraft(w, id)
}

func (hg *draftHandlerGroup) respondWithDraft(w http.ResponseWriter, id string) {
	draft, err := hg.drafts.Get(id)
	if err != nil {
		hg.writeDraftError(w, id, err)
		return
	}
	writeJsonResponse(hg.logger, w, toDraftDto(draft))
}
