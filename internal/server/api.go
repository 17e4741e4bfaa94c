package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrWong99/rhymeslikedimes/internal/observe"
	"github.com/MrWong99/rhymeslikedimes/internal/rhyme"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 64 << 10

// analyzeRequest is the body of POST /api/analyze and the data of a
// WebSocket "analyze" message. Absent limits take the configured defaults.
type analyzeRequest struct {
	Bar        string `json:"bar"`
	MaxResults *int   `json:"max_results,omitempty"`
	NgramMax   *int   `json:"ngram_max,omitempty"`
}

// options resolves r against defaults.
func (r analyzeRequest) options(defaults rhyme.Options) rhyme.Options {
	opts := defaults
	if r.MaxResults != nil {
		opts.MaxResultsPerCategory = *r.MaxResults
	}
	if r.NgramMax != nil {
		opts.MaxPhraseLength = *r.NgramMax
	}
	return opts
}

type analyzeResponse struct {
	Fragments   json.RawMessage `json:"fragments"`
	OriginalBar string          `json:"original_bar"`
}

func newAnalyzeResponse(res *rhyme.AnalysisResult) (analyzeResponse, error) {
	frags, err := res.MarshalFragments()
	if err != nil {
		return analyzeResponse{}, err
	}
	return analyzeResponse{Fragments: frags, OriginalBar: res.OriginalLine}, nil
}

// suggestionRequest is the optional body of POST /api/suggestions/{word}
// and the data of a WebSocket "suggestion" message.
type suggestionRequest struct {
	Word       string `json:"word,omitempty"`
	RhymeType  string `json:"rhyme_type,omitempty"`
	MaxResults int    `json:"max_results,omitempty"`
}

type suggestionResponse struct {
	Word        string                `json:"word"`
	RhymeType   string                `json:"rhyme_type"`
	Suggestions *rhyme.FragmentResult `json:"suggestions"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Bar) == "" {
		writeError(w, http.StatusBadRequest, "bar cannot be empty")
		return
	}

	res, err := s.analyzer.Analyze(r.Context(), req.Bar, req.options(s.defaults()))
	if err != nil {
		s.writeAnalyzerError(w, r, "analyze", err)
		return
	}
	body, err := newAnalyzeResponse(res)
	if err != nil {
		s.writeAnalyzerError(w, r, "analyze", err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	req := suggestionRequest{
		RhymeType: r.URL.Query().Get("rhyme_type"),
	}
	if v := r.URL.Query().Get("max_results"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("max_results: %v", err))
			return
		}
		req.MaxResults = n
	}
	if r.Method == http.MethodPost && r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	req.Word = r.PathValue("word")

	resp, err := s.suggest(r.Context(), req)
	if err != nil {
		s.writeAnalyzerError(w, r, "suggest", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// suggest resolves req and runs it against the analyzer.
func (s *Server) suggest(ctx context.Context, req suggestionRequest) (suggestionResponse, error) {
	filter, err := rhyme.ParseFilter(req.RhymeType)
	if err != nil {
		return suggestionResponse{}, err
	}
	limit := req.MaxResults
	if limit == 0 {
		limit = rhyme.DefaultSuggestResults
	}
	res, err := s.analyzer.Suggest(ctx, req.Word, filter, limit)
	if err != nil {
		return suggestionResponse{}, err
	}
	return suggestionResponse{Word: req.Word, RhymeType: filter.String(), Suggestions: res}, nil
}

// writeAnalyzerError maps analyzer errors to status codes. A request whose
// client has gone away gets no body.
func (s *Server) writeAnalyzerError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, rhyme.ErrInvalidOptions):
		writeError(w, http.StatusBadRequest, err.Error())
	case r.Context().Err() != nil:
		observe.Logger(r.Context(), "server").Debug("client went away", "op", op, "err", err)
	default:
		observe.Logger(r.Context(), "server").Error("request failed", "op", op, "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeBody decodes a single JSON object from the request body.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
