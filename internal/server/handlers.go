package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/studyforge/internal/extraction"
	"github.com/jonathan/studyforge/internal/server/middleware"
	"github.com/jonathan/studyforge/internal/types"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads a JSON body into dst.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &ErrValidation{Message: "request body is empty"}
		}
		return &ErrValidation{Message: "invalid JSON body: " + err.Error()}
	}
	return nil
}

// pathID parses the {id} path value.
func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, &ErrValidation{Field: "id", Message: "must be a UUID"}
	}
	return id, nil
}

// ownedCourse loads a course and hides courses that belong to other subjects.
func (s *Server) ownedCourse(ctx context.Context, subjectID, courseID uuid.UUID) (*types.Course, error) {
	course, err := s.store.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course.SubjectID != subjectID {
		return nil, fmt.Errorf("%w: course %s", types.ErrNotFound, courseID)
	}
	return course, nil
}

// request resolves the subject and the {id} path value, writing the error
// response itself when either is missing.
func (s *Server) request(w http.ResponseWriter, r *http.Request) (subject, id uuid.UUID, ok bool) {
	subject, err := middleware.SubjectID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "unauthorized")
		return uuid.Nil, uuid.Nil, false
	}
	if r.PathValue("id") == "" {
		return subject, uuid.Nil, true
	}
	id, err = pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return uuid.Nil, uuid.Nil, false
	}
	return subject, id, true
}

// writeEnvelope responds with a pipeline result. Fresh results are 201,
// stored ones 200.
func writeEnvelope[A any](s *Server, w http.ResponseWriter, r *http.Request, env *extraction.Envelope[A], err error) {
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusCreated
	if env.AlreadyCompleted {
		status = http.StatusOK
	}
	s.jsonResponse(w, status, env)
}

func (s *Server) handleCreateCourse(w http.ResponseWriter, r *http.Request) {
	subject, _, ok := s.request(w, r)
	if !ok {
		return
	}
	var req types.CreateCourseRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.validator.Struct(req); err != nil {
		s.fail(w, r, err)
		return
	}

	course := &types.Course{SubjectID: subject, Title: req.Title, Material: req.Material}
	if err := s.store.CreateCourse(r.Context(), course); err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, course)
}

func (s *Server) handleListCourses(w http.ResponseWriter, r *http.Request) {
	subject, _, ok := s.request(w, r)
	if !ok {
		return
	}
	courses, err := s.store.ListCourses(r.Context(), subject)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if courses == nil {
		courses = []types.Course{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"courses": courses})
}

func (s *Server) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	subject, courseID, ok := s.request(w, r)
	if !ok {
		return
	}
	if _, err := s.ownedCourse(r.Context(), subject, courseID); err != nil {
		s.fail(w, r, err)
		return
	}
	questions, err := s.store.ListQuestions(r.Context(), courseID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if questions == nil {
		questions = []types.Question{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"questions": questions})
}

// questionSetResponse reports generated questions and the clustering and
// difficulty runs chained after them.
type questionSetResponse struct {
	*extraction.Envelope[[]types.Question]
	Topics         *extraction.Envelope[types.TopicResult]            `json:"topics,omitempty"`
	Difficulty     *extraction.Envelope[[]types.DifficultyAssignment] `json:"difficulty,omitempty"`
	FollowupErrors []string                                           `json:"followup_errors,omitempty"`
}

func (s *Server) handleGenerateQuestions(w http.ResponseWriter, r *http.Request) {
	subject, courseID, ok := s.request(w, r)
	if !ok {
		return
	}
	var body types.GenerateQuestionsRequest
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	req := types.QuestionSetRequest{CourseID: courseID, NumQuestions: body.NumQuestions}
	if err := s.validator.Struct(req); err != nil {
		s.fail(w, r, err)
		return
	}
	if _, err := s.ownedCourse(r.Context(), subject, courseID); err != nil {
		s.fail(w, r, err)
		return
	}

	env, err := s.engine.QuestionSet.Run(r.Context(), s.model, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if env.AlreadyCompleted {
		s.jsonResponse(w, http.StatusOK, questionSetResponse{Envelope: env})
		return
	}

	resp := questionSetResponse{Envelope: env}
	s.chainAfterGeneration(r.Context(), courseID, &resp)
	s.jsonResponse(w, http.StatusCreated, resp)
}

// chainAfterGeneration clusters and rates freshly generated questions. Failures
// are reported alongside the questions, which are already stored.
func (s *Server) chainAfterGeneration(ctx context.Context, courseID uuid.UUID, resp *questionSetResponse) {
	req := types.CourseRequest{CourseID: courseID}
	log := s.log.With("entity_id", courseID.String())

	topics, err := s.engine.Topics.Run(ctx, s.model, req)
	if err != nil {
		log.Warn("topic clustering after generation failed", "error", err)
		resp.FollowupErrors = append(resp.FollowupErrors, err.Error())
	} else {
		resp.Topics = topics
	}

	difficulty, err := s.engine.Difficulty.Run(ctx, s.model, req)
	if err != nil {
		log.Warn("difficulty assignment after generation failed", "error", err)
		resp.FollowupErrors = append(resp.FollowupErrors, err.Error())
	} else {
		resp.Difficulty = difficulty
	}

	if refreshed, err := s.store.ListQuestions(ctx, courseID); err == nil {
		resp.Accepted = refreshed
	}
}

func (s *Server) handleClusterTopics(w http.ResponseWriter, r *http.Request) {
	subject, courseID, ok := s.request(w, r)
	if !ok {
		return
	}
	if _, err := s.ownedCourse(r.Context(), subject, courseID); err != nil {
		s.fail(w, r, err)
		return
	}
	env, err := s.engine.Topics.Run(r.Context(), s.model, types.CourseRequest{CourseID: courseID})
	writeEnvelope(s, w, r, env, err)
}

func (s *Server) handleAssignDifficulty(w http.ResponseWriter, r *http.Request) {
	subject, courseID, ok := s.request(w, r)
	if !ok {
		return
	}
	if _, err := s.ownedCourse(r.Context(), subject, courseID); err != nil {
		s.fail(w, r, err)
		return
	}
	env, err := s.engine.Difficulty.Run(r.Context(), s.model, types.CourseRequest{CourseID: courseID})
	writeEnvelope(s, w, r, env, err)
}

func (s *Server) handleSubmitAssessment(w http.ResponseWriter, r *http.Request) {
	subject, _, ok := s.request(w, r)
	if !ok {
		return
	}
	var req types.SubmitAssessmentRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.validator.Struct(req); err != nil {
		s.fail(w, r, err)
		return
	}
	a, err := s.assessments.Submit(r.Context(), subject, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, a)
}

func (s *Server) handleGetAssessment(w http.ResponseWriter, r *http.Request) {
	subject, id, ok := s.request(w, r)
	if !ok {
		return
	}
	a, err := s.assessments.Get(r.Context(), subject, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, a)
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	subject, id, ok := s.request(w, r)
	if !ok {
		return
	}
	if _, err := s.assessments.Get(r.Context(), subject, id); err != nil {
		s.fail(w, r, err)
		return
	}
	env, err := s.engine.Suggestions.Run(r.Context(), s.model, types.SuggestionRequest{AssessmentID: id})
	writeEnvelope(s, w, r, env, err)
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	subject, id, ok := s.request(w, r)
	if !ok {
		return
	}
	var body types.CreatePlanRequest
	if err := decodeJSON(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.validator.Struct(body); err != nil {
		s.fail(w, r, err)
		return
	}
	// Formats were checked above.
	start, _ := time.Parse(time.DateOnly, body.StartDate)
	end, _ := time.Parse(time.DateOnly, body.EndDate)

	req := types.PlanRequest{
		AssessmentID:  id,
		Goals:         body.Goals,
		StartDate:     start,
		EndDate:       end,
		WeeklyHours:   body.WeeklyHours,
		AvailableDays: body.AvailableDays,
	}
	if err := s.validator.Struct(req); err != nil {
		s.fail(w, r, err)
		return
	}
	if _, err := s.assessments.Get(r.Context(), subject, id); err != nil {
		s.fail(w, r, err)
		return
	}

	env, err := s.engine.StudyPlan.Run(r.Context(), s.model, req)
	writeEnvelope(s, w, r, env, err)
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	subject, id, ok := s.request(w, r)
	if !ok {
		return
	}
	if _, err := s.assessments.Get(r.Context(), subject, id); err != nil {
		s.fail(w, r, err)
		return
	}
	plan, err := s.store.GetPlanByAssessment(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, plan)
}
