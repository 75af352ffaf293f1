package httpapi

import (
	"assemblycore/internal/core"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

type partRequest struct {
	Barcode     string         `json:"barcode"`
	Type        string         `json:"type"`
	PartVersion string         `json:"part_version"`
	Notes       string         `json:"notes"`
	State       core.PartState `json:"state"`
}

type partTypeRequest struct {
	Name string `json:"name"`
}

type designRequest struct {
	Name          string              `json:"name"`
	RequiredParts []core.RequiredPart `json:"required_parts"`
}

type instanceRequest struct {
	Barcode  string `json:"barcode"`
	DesignID string `json:"design_id"`
	Notes    string `json:"notes"`
}

type assignRequest struct {
	Barcode string `json:"barcode"`
}

// mutation carries the written entity plus any non-blocking rule findings.
type mutation struct {
	Data       any              `json:"data"`
	Violations []core.Violation `json:"violations,omitempty"`
}

func writeMutation(w http.ResponseWriter, status int, data any, res core.Result) {
	writeJSON(w, status, mutation{Data: data, Violations: res.Violations})
}

// Parts

func (h *Handler) listParts(w http.ResponseWriter, r *http.Request) {
	parts, err := h.service.ListParts(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"parts": parts})
}

func (h *Handler) availableParts(w http.ResponseWriter, r *http.Request) {
	parts, err := h.service.AvailableParts(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"parts": parts})
}

func (h *Handler) createPart(w http.ResponseWriter, r *http.Request) {
	var req partRequest
	if !decode(w, r, &req) {
		return
	}
	part, res, err := h.service.CreatePart(r.Context(), core.Part{
		Barcode:     req.Barcode,
		Type:        req.Type,
		PartVersion: req.PartVersion,
		Notes:       req.Notes,
		State:       req.State,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeMutation(w, http.StatusCreated, part, res)
}

func (h *Handler) getPart(w http.ResponseWriter, r *http.Request) {
	part, err := h.service.GetPart(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"part": part})
}

func (h *Handler) updatePart(w http.ResponseWriter, r *http.Request) {
	var patch core.PartPatch
	if !decode(w, r, &patch) {
		return
	}
	part, res, err := h.service.UpdatePart(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeMutation(w, http.StatusOK, part, res)
}

func (h *Handler) deletePart(w http.ResponseWriter, r *http.Request) {
	if _, err := h.service.DeletePart(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Part types

func (h *Handler) listPartTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.service.ListPartTypes(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"part_types": types})
}

func (h *Handler) addPartType(w http.ResponseWriter, r *http.Request) {
	var req partTypeRequest
	if !decode(w, r, &req) {
		return
	}
	pt, res, err := h.service.AddPartType(r.Context(), strings.TrimSpace(req.Name))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeMutation(w, http.StatusCreated, pt, res)
}

func (h *Handler) deletePartType(w http.ResponseWriter, r *http.Request) {
	if _, err := h.service.DeletePartType(r.Context(), chi.URLParam(r, "name")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Robot designs

func (h *Handler) listDesigns(w http.ResponseWriter, r *http.Request) {
	designs, err := h.service.ListRobotDesigns(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"robot_designs": designs})
}

func (h *Handler) createDesign(w http.ResponseWriter, r *http.Request) {
	var req designRequest
	if !decode(w, r, &req) {
		return
	}
	design, res, err := h.service.CreateRobotDesign(r.Context(), core.RobotDesign{
		Name:          req.Name,
		RequiredParts: req.RequiredParts,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeMutation(w, http.StatusCreated, design, res)
}

func (h *Handler) getDesign(w http.ResponseWriter, r *http.Request) {
	design, err := h.service.GetRobotDesign(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"robot_design": design})
}

func (h *Handler) updateDesign(w http.ResponseWriter, r *http.Request) {
	var patch core.DesignPatch
	if !decode(w, r, &patch) {
		return
	}
	design, res, err := h.service.UpdateRobotDesign(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeMutation(w, http.StatusOK, design, res)
}

func (h *Handler) deleteDesign(w http.ResponseWriter, r *http.Request) {
	if _, err := h.service.DeleteRobotDesign(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Robot instances

func (h *Handler) listInstances(w http.ResponseWriter, r *http.Request) {
	instances, err := h.service.ListRobotInstances(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"robot_instances": instances})
}

func (h *Handler) createInstance(w http.ResponseWriter, r *http.Request) {
	var req instanceRequest
	if !decode(w, r, &req) {
		return
	}
	inst, res, err := h.service.CreateRobotInstance(r.Context(), core.RobotInstance{
		Barcode:  req.Barcode,
		DesignID: req.DesignID,
		Notes:    req.Notes,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeMutation(w, http.StatusCreated, inst, res)
}

func (h *Handler) getInstance(w http.ResponseWriter, r *http.Request) {
	inst, err := h.service.GetRobotInstance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"robot_instance": inst})
}

func (h *Handler) updateInstance(w http.ResponseWriter, r *http.Request) {
	var patch core.InstancePatch
	if !decode(w, r, &patch) {
		return
	}
	inst, res, err := h.service.UpdateRobotInstance(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeMutation(w, http.StatusOK, inst, res)
}

func (h *Handler) deleteInstance(w http.ResponseWriter, r *http.Request) {
	if _, err := h.service.DeleteRobotInstance(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) instanceStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.InstanceStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) assignPart(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Barcode) == "" {
		writeError(w, http.StatusBadRequest, "barcode is required", "invalid_input")
		return
	}
	inst, res, err := h.service.AssignPart(r.Context(), chi.URLParam(r, "id"), req.Barcode)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeMutation(w, http.StatusOK, inst, res)
}

func (h *Handler) removePart(w http.ResponseWriter, r *http.Request) {
	inst, res, err := h.service.RemovePart(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "partID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeMutation(w, http.StatusOK, inst, res)
}

// History

func (h *Handler) history(entity core.EntityType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := h.service.History(r.Context(), entity, chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"history": entries})
	}
}

func (h *Handler) archive(entity core.EntityType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := h.service.ArchiveHistory(r.Context(), entity, chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"archive": info})
	}
}
