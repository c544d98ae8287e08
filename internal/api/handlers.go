package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/p-n-ai/pai-progress/internal/export"
	"github.com/p-n-ai/pai-progress/internal/progress"
	"github.com/p-n-ai/pai-progress/internal/session"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type submissionRequest struct {
	Text string `json:"text"`
}

type ratingRequest struct {
	Topic  string `json:"topic"`
	Rating int    `json:"rating"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *Server) handleStudents(w http.ResponseWriter, r *http.Request) {
	names, err := s.engine.Students(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"students": names})
}

func (s *Server) handleSubmission(w http.ResponseWriter, r *http.Request) {
	var req submissionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.engine.Analyze(r.Context(), r.PathValue("name"), req.Text)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleRating(w http.ResponseWriter, r *http.Request) {
	var req ratingRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	state, err := s.engine.Rate(r.Context(), r.PathValue("name"), req.Topic, session.Rating(req.Rating))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	rec, err := s.engine.Record(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress.Summary(rec))
}

func (s *Server) handleWeakTopics(w http.ResponseWriter, r *http.Request) {
	minEncounters := progress.DefaultMinEncounters
	if v := r.URL.Query().Get("min_encounters"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "min_encounters must be a non-negative integer")
			return
		}
		minEncounters = n
	}

	rec, err := s.engine.Record(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"weak_topics": progress.WeakTopics(rec, minEncounters)})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	name, ok := s.studentName(w, r)
	if !ok {
		return
	}
	report, err := s.analytics.WeeklyReport(r.Context(), name)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	name, ok := s.studentName(w, r)
	if !ok {
		return
	}
	recs, err := s.analytics.Recommendations(r.Context(), name)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"recommendations": recs})
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	name, ok := s.studentName(w, r)
	if !ok {
		return
	}
	plan, err := s.analytics.StudyPlan(r.Context(), name)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request) {
	name, ok := s.studentName(w, r)
	if !ok {
		return
	}
	rows, err := s.analytics.TopicProgress(r.Context(), name)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.PracticeTask(r.Context(), r.PathValue("name"), r.PathValue("topic"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleRandomPractice(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.RandomPractice(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.engine.Dashboard(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	rec, err := s.engine.Record(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	now := s.analytics.Now()
	f, err := export.Workbook(rec, now)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(rec.Student, now)))
	if _, err := f.WriteTo(w); err != nil {
		s.logger.Warn("export write failed", "student", rec.Student, "error", err)
	}
}

// studentName validates the {name} path value for handlers that go straight
// to the analytics service.
func (s *Server) studentName(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := strings.TrimSpace(r.PathValue("name"))
	if name == "" {
		s.writeFailure(w, r, session.ErrEmptyStudent)
		return "", false
	}
	return name, true
}
