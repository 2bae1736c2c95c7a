//
// Copyright (C) 2026 The loom Authors. All rights reserved.
//
// loom is licensed under the Apache License Version 2.0.
//
//

// Package debug provides an HTTP server for inspecting and driving graph
// executors during development: invoking runs, resuming interrupted
// threads, streaming events over SSE and browsing checkpoint history.
package debug

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/loomhq/loom/graph"
	"github.com/loomhq/loom/log"
)

// Server exposes registered graph executors over HTTP. It is meant for
// development and debugging, not as a production API surface.
type Server struct {
	executors map[string]*graph.Executor
	router    *mux.Router
}

// Option configures the Server instance.
type Option func(*Server)

// New creates a debug server over the given executors, keyed by graph
// name. The caller owns the executors; the server never closes them.
func New(executors map[string]*graph.Executor, opts ...Option) *Server {
	s := &Server{
		executors: executors,
		router:    mux.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Length", "Content-Type"},
	})
	s.router.Use(c.Handler)
	s.registerRoutes()
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/graphs", s.handleListGraphs).Methods(http.MethodGet)
	s.router.HandleFunc("/graphs/{graph}/dot", s.handleDOT).Methods(http.MethodGet)
	s.router.HandleFunc("/graphs/{graph}/invoke", s.handleInvoke).Methods(http.MethodPost)
	s.router.HandleFunc("/graphs/{graph}/resume", s.handleResume).Methods(http.MethodPost)
	s.router.HandleFunc("/graphs/{graph}/stream", s.handleStream).Methods(http.MethodPost)
	s.router.HandleFunc("/graphs/{graph}/threads/{thread}/state",
		s.handleThreadState).Methods(http.MethodGet)
	s.router.HandleFunc("/graphs/{graph}/threads/{thread}/history",
		s.handleThreadHistory).Methods(http.MethodGet)

	preflight := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
	s.router.HandleFunc("/graphs/{graph}/invoke", preflight).Methods(http.MethodOptions)
	s.router.HandleFunc("/graphs/{graph}/resume", preflight).Methods(http.MethodOptions)
	s.router.HandleFunc("/graphs/{graph}/stream", preflight).Methods(http.MethodOptions)
}

// runRequest is the body of invoke, resume and stream requests.
type runRequest struct {
	ThreadID       string         `json:"thread_id,omitempty"`
	Initial        map[string]any `json:"initial,omitempty"`
	RecursionLimit int            `json:"recursion_limit,omitempty"`
	StreamModes    []string       `json:"stream_modes,omitempty"`
	SubgraphEvents bool           `json:"subgraph_events,omitempty"`

	// Resume fields.
	Resume    any            `json:"resume,omitempty"`
	ResumeMap map[string]any `json:"resume_map,omitempty"`
	Update    map[string]any `json:"update,omitempty"`
	GoTo      string         `json:"goto,omitempty"`
}

// runResponse is the body of invoke and resume responses.
type runResponse struct {
	ThreadID  string            `json:"thread_id,omitempty"`
	State     map[string]any    `json:"state,omitempty"`
	Interrupt *interruptPayload `json:"interrupt,omitempty"`
}

type interruptPayload struct {
	Value  any    `json:"value"`
	NodeID string `json:"node_id"`
	TaskID string `json:"task_id"`
	Step   int    `json:"step"`
}

func (s *Server) executor(w http.ResponseWriter, r *http.Request) (*graph.Executor, bool) {
	name := mux.Vars(r)["graph"]
	exec, ok := s.executors[name]
	if !ok {
		http.Error(w, fmt.Sprintf("unknown graph %q", name), http.StatusNotFound)
		return nil, false
	}
	return exec, true
}

func (s *Server) handleListGraphs(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.executors))
	for name := range s.executors {
		names = append(names, name)
	}
	s.writeJSON(w, names)
}

func (s *Server) handleDOT(w http.ResponseWriter, r *http.Request) {
	exec, ok := s.executor(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/vnd.graphviz")
	fmt.Fprint(w, exec.Graph().DOT())
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	exec, ok := s.executor(w, r)
	if !ok {
		return
	}
	req, ok := decodeRunRequest(w, r)
	if !ok {
		return
	}

	final, err := exec.Invoke(r.Context(), graph.State(req.Initial), runOptions(req)...)
	s.writeRunResult(w, req.ThreadID, final, err)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	exec, ok := s.executor(w, r)
	if !ok {
		return
	}
	req, ok := decodeRunRequest(w, r)
	if !ok {
		return
	}
	if req.ThreadID == "" {
		http.Error(w, "thread_id is required", http.StatusBadRequest)
		return
	}

	cmd := &graph.Command{
		Resume:    req.Resume,
		ResumeMap: req.ResumeMap,
		Update:    graph.State(req.Update),
		GoTo:      req.GoTo,
	}
	final, err := exec.Resume(r.Context(), cmd, runOptions(req)...)
	s.writeRunResult(w, req.ThreadID, final, err)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	exec, ok := s.executor(w, r)
	if !ok {
		return
	}
	req, ok := decodeRunRequest(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	opts := runOptions(req)
	if len(req.StreamModes) > 0 {
		modes := make([]graph.StreamMode, 0, len(req.StreamModes))
		for _, m := range req.StreamModes {
			modes = append(modes, graph.StreamMode(m))
		}
		opts = append(opts, graph.WithStreamModes(modes...))
	}
	if req.SubgraphEvents {
		opts = append(opts, graph.WithSubgraphEvents(true))
	}
	if req.Resume != nil || len(req.ResumeMap) > 0 || req.GoTo != "" {
		opts = append(opts, graph.WithCommand(&graph.Command{
			Resume:    req.Resume,
			ResumeMap: req.ResumeMap,
			Update:    graph.State(req.Update),
			GoTo:      req.GoTo,
		}))
	}

	ch, err := exec.Stream(r.Context(), graph.State(req.Initial), opts...)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for evt := range ch {
		data, err := json.Marshal(evt)
		if err != nil {
			log.Errorf("debug server: marshal event %s: %v", evt.ID, err)
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
}

func (s *Server) handleThreadState(w http.ResponseWriter, r *http.Request) {
	exec, ok := s.executor(w, r)
	if !ok {
		return
	}
	ckpt, err := exec.CurrentState(r.Context(), mux.Vars(r)["thread"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	if ckpt == nil {
		http.Error(w, "thread has no checkpoints", http.StatusNotFound)
		return
	}
	s.writeJSON(w, ckpt)
}

func (s *Server) handleThreadHistory(w http.ResponseWriter, r *http.Request) {
	exec, ok := s.executor(w, r)
	if !ok {
		return
	}
	history, err := exec.StateHistory(r.Context(), mux.Vars(r)["thread"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, history)
}

func decodeRunRequest(w http.ResponseWriter, r *http.Request) (*runRequest, bool) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	defer r.Body.Close()
	return &req, true
}

func runOptions(req *runRequest) []graph.RunOption {
	var opts []graph.RunOption
	if req.ThreadID != "" {
		opts = append(opts, graph.WithThreadID(req.ThreadID))
	}
	if req.RecursionLimit > 0 {
		opts = append(opts, graph.WithRecursionLimit(req.RecursionLimit))
	}
	return opts
}

func (s *Server) writeRunResult(w http.ResponseWriter, threadID string, final graph.State, err error) {
	if ie, ok := graph.AsInterruptError(err); ok {
		s.writeJSON(w, runResponse{
			ThreadID: threadID,
			Interrupt: &interruptPayload{
				Value:  ie.Value,
				NodeID: ie.NodeID,
				TaskID: ie.TaskID,
				Step:   ie.Step,
			},
		})
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, runResponse{ThreadID: threadID, State: final})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, graph.ErrNoPendingInterrupt),
		errors.Is(err, graph.ErrPersistenceRequired),
		errors.Is(err, graph.ErrUnknownNode):
		status = http.StatusBadRequest
	}
	http.Error(w, err.Error(), status)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("debug server: encode response: %v", err)
	}
}

// ListenAndServe starts the server on addr and blocks until it exits.
func (s *Server) ListenAndServe(addr string) error {
	log.Infof("debug server listening on %s", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}
