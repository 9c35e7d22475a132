package web

import (
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"

	"github.com/codefionn/driveagent/internal/consts"
	"github.com/codefionn/driveagent/internal/drive"
)

type filesResponse struct {
	Files []drive.FileSummary `json:"files"`
}

// handleFiles lists a folder, or the most recent files without folder_id.
func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	folderID := strings.TrimSpace(r.URL.Query().Get("folder_id"))
	files, err := s.repo.List(r.Context(), folderID, consts.MaxListResults)
	if err != nil {
		s.log.Warn("list files failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, filesResponse{Files: nonNil(files)})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "No query.")
		return
	}
	files, err := s.repo.Search(r.Context(), query, consts.DefaultSearchResults)
	if err != nil {
		s.log.Warn("search failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, filesResponse{Files: nonNil(files)})
}

func nonNil(files []drive.FileSummary) []drive.FileSummary {
	if files == nil {
		return []drive.FileSummary{}
	}
	return files
}
