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
)

type settingsHandlerGroup struct {
	cfg     *shared.Config
	logger  shared.ILogger
	metrics logic.IMetrics
	repo    dal.ISettingsRepo
	gate    logic.IGate
}

func NewSettingsHandlerGroup(
	cfg *shared.Config,
	logger shared.ILogger,
	metrics logic.IMetrics,
	repo dal.ISettingsRepo,
	gate logic.IGate,
) IHandlerGroup {
	res := settingsHandlerGroup{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		repo:    repo,
		gate:    gate,
	}
	return &res
}

func (hg *settingsHandlerGroup) Prefix() string {
	return "/api/settings"
}

func (hg *settingsHandlerGroup) GroupDefs() []handlerDef {
	return []handlerDef{
		{"GET", "", func(w http.ResponseWriter, r *http.Request) { hg.getSettings(w, r) }},
		{"PUT", "/{key}", func(w http.ResponseWriter, r *http.Request) { hg.putSetting(w, r) }},
	}
}

func (hg *settingsHandlerGroup) AuthMW() func(next http.Handler) http.Handler {
	return apiKeyMW(hg.cfg, hg.logger)
}

func (hg *settingsHandlerGroup) getSettings(w http.ResponseWriter, r *http.Request) {
	defer hg.metrics.StartWebRequestIn("settings_get").Finish()

	stored, err := hg.repo.ListSettings()
	if err != nil {
		hg.logger.Errorf("Failed to list settings: %v", err)
		writeErrorResponse(w, internalErrorStr, http.StatusInternalServerError)
		return
	}
	resp := dto.Settings{
		SafeMode:         hg.gate.SafeMode(),
		ApprovalRequired: hg.gate.ApprovalRequired(),
		Stored:           make([]dto.Setting, 0, len(stored)),
	}
	for _, s := range stored {
		updatedAt := s.UpdatedAt
		resp.Stored = append(resp.Stored, dto.Setting{Key: s.Key, Value: s.Value, UpdatedAt: &updatedAt})
	}
	writeJsonResponse(hg.logger, w, resp)
}

func (hg *settingsHandlerGroup) putSetting(w http.ResponseWriter, r *http.Request) {
	defer hg.metrics.StartWebRequestIn("settings_put").Finish()

	key := mux.Vars(r)["key"]
	body := readBody(hg.logger, w, r)
	if body == nil {
		return
	}
	var req dto.SettingUpdate
	if err := json.Unmarshal(body, &req); err != nil {
		hg.logger.Infof("Invalid setting update body: %v", err)
		writeErrorResponse(w, badRequestStr, http.StatusBadRequest)
		return
	}

	err := hg.gate.SetOverride(key, req.Value)
	if errors.Is(err, logic.ErrUnknownSetting) {
		writeErrorResponse(w, notFoundStr, http.StatusNotFound)
		return
	}
	if errors.Is(err, logic.ErrInvalidValue) {
		writeErrorResponse(w, badRequestStr, http.StatusBadRequest)
		return
	}
	if err != nil {
		hg.logger.Errorf("Failed to store setting %s: %v", key, err)
		writeErrorResponse(w, internalErrorStr, http.StatusInternalServerError)
		return
	}
	hg.logger.Infof("PUT /api/settings/%s: %s", key, req.Value)

	val, _, err := hg.repo.GetSetting(key)
	if err != nil {
		hg.logger.Errorf("Failed to read back setting %s: %v", key, err)
		writeErrorResponse(w, internalErrorStr, http.StatusInternalServerError)
		return
	}
	writeJsonResponse(hg.logger, w, dto.Setting{Key: key, Value: val})
}
