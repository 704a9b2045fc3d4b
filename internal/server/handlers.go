package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/thedevsaddam/govalidator"

	"github.com/amishk599/promptopt/internal/model"
)

// Wire bodies are decoded as plain strings; the api key only becomes a
// model.APIKey once it leaves the decoder.
type scoreBody struct {
	Text   string `json:"text"`
	APIKey string `json:"api_key"`
}

type suggestBody struct {
	LastPrompt   string `json:"last_prompt"`
	LastResponse string `json:"last_response"`
	APIKey       string `json:"api_key"`
}

type metadataBody struct {
	Prompt string `json:"prompt"`
	APIKey string `json:"api_key"`
}

type healthBody struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthBody{Status: "healthy", Service: ServiceName})
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var body scoreBody
	if err := s.decode(w, r, &body, govalidator.MapData{
		"text":    []string{"required"},
		"api_key": []string{"required"},
	}); err != nil {
		s.fail(w, r, err)
		return
	}

	result, err := s.svc.Score(r.Context(), clientFrom(r.Context()), model.ScoreRequest{
		Text:   body.Text,
		APIKey: model.APIKey(body.APIKey),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSuggestNext(w http.ResponseWriter, r *http.Request) {
	var body suggestBody
	if err := s.decode(w, r, &body, govalidator.MapData{
		"last_prompt":   []string{"required"},
		"last_response": []string{"required"},
		"api_key":       []string{"required"},
	}); err != nil {
		s.fail(w, r, err)
		return
	}

	result, err := s.svc.SuggestNext(r.Context(), clientFrom(r.Context()), model.SuggestRequest{
		LastPrompt:   body.LastPrompt,
		LastResponse: body.LastResponse,
		APIKey:       model.APIKey(body.APIKey),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleInferMetadata(w http.ResponseWriter, r *http.Request) {
	var body metadataBody
	if err := s.decode(w, r, &body, govalidator.MapData{
		"prompt":  []string{"required"},
		"api_key": []string{"required"},
	}); err != nil {
		s.fail(w, r, err)
		return
	}

	result, err := s.svc.InferMetadata(r.Context(), clientFrom(r.Context()), model.MetadataRequest{
		Prompt: body.Prompt,
		APIKey: model.APIKey(body.APIKey),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// decode reads a bounded JSON body into dst and checks field presence.
// A body over the cap is payload_too_large; one that is not a JSON object of
// strings reports the "body" field.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any, rules govalidator.MapData) error {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return model.NewError(model.KindPayloadTooLarge,
				fmt.Sprintf("request body too large, limit is %d bytes", tooLarge.Limit), err)
		}
		return model.NewValidationError([]string{"body"}, "could not read request body")
	}
	r.Body = io.NopCloser(bytes.NewReader(data))

	v := govalidator.New(govalidator.Options{
		Request: r,
		Data:    dst,
		Rules:   rules,
	})
	bag := v.ValidateJSON()
	if len(bag) == 0 {
		return nil
	}
	if _, ok := bag["_error"]; ok {
		return model.NewValidationError([]string{"body"}, "request body must be a JSON object with string fields")
	}

	fields := make([]string, 0, len(bag))
	for f := range bag {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return model.NewValidationError(fields, "missing or empty fields")
}

// fail logs err at a level matching its kind and writes the error response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := model.KindOf(err)
	s.metrics.IncError(kind)

	status := statusFor(err)
	attrs := []any{
		"request_id", requestIDFrom(r.Context()),
		"client", clientFrom(r.Context()),
		"kind", kind,
		"status", status,
		"error", err,
	}
	if status >= 500 {
		s.logger.Error("request failed", attrs...)
	} else {
		s.logger.Info("request rejected", attrs...)
	}
	writeError(w, err)
}
