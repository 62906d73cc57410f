package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"GuardianEye/internal/agent"
	"GuardianEye/internal/auth"
	"GuardianEye/internal/job"
	"GuardianEye/internal/observability/metrics"
	"GuardianEye/internal/orchestrator"
	"GuardianEye/internal/retrieval"
)

// Server 负责暴露 REST 接口，供外部驱动编排层执行安全分析。
type Server struct {
	addr         string
	orchestrator *orchestrator.Orchestrator
	jobs         *job.Service
	retriever    retrieval.Retriever
	auth         *auth.Service
}

// Option 配置 Server 的可选依赖。
type Option func(*Server)

// WithJobs 启用异步任务端点。
func WithJobs(service *job.Service) Option {
	return func(s *Server) {
		s.jobs = service
	}
}

// WithRetriever 启用知识库端点。
func WithRetriever(retriever retrieval.Retriever) Option {
	return func(s *Server) {
		s.retriever = retriever
	}
}

// WithAuth 启用身份认证。
func WithAuth(service *auth.Service) Option {
	return func(s *Server) {
		s.auth = service
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, orch *orchestrator.Orchestrator, opts ...Option) *Server {
	s := &Server{addr: addr, orchestrator: orch}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Routes()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Routes 组装全部路由，独立暴露以便测试。
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/api/v1/execute", s.protect("execute", http.HandlerFunc(s.handleExecute)))
	mux.Handle("/api/v1/agents/", s.protect("agents", http.HandlerFunc(s.handleAgent)))
	mux.Handle("/api/v1/jobs", s.protect("jobs", http.HandlerFunc(s.handleJobs)))
	mux.Handle("/api/v1/jobs/", s.protect("jobs", http.HandlerFunc(s.handleJobByID)))
	mux.Handle("/api/v1/knowledge", s.protect("knowledge", http.HandlerFunc(s.handleKnowledge)))
	mux.HandleFunc("/api/v1/auth/token", s.handleToken)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())

	return mux
}

// protect 串联指标采集与身份认证中间件。
func (s *Server) protect(handlerName string, next http.Handler) http.Handler {
	instrumented := instrument(handlerName, next)
	if s.auth == nil || s.auth.Mode() == auth.ModeDisabled {
		return instrumented
	}
	middleware := s.auth.Middleware(auth.MiddlewareConfig{AuditEvent: handlerName})
	return middleware(instrumented)
}

func instrument(handlerName string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		metrics.ObserveHTTPRequest(handlerName, r.Method, recorder.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// handleExecute 处理一次完整的编排请求。
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.orchestrator == nil {
		http.Error(w, "编排器未初始化", http.StatusServiceUnavailable)
		return
	}

	var req orchestrator.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		http.Error(w, "query 不能为空", http.StatusBadRequest)
		return
	}
	if subject := auth.SubjectFromContext(r.Context()); subject != nil && req.UserID == "" {
		req.UserID = subject.Username
	}

	resp := s.orchestrator.Execute(r.Context(), req)
	writeJSON(w, http.StatusOK, resp)
}

// handleAgent 将请求直接分派给指定专家，绕过两级路由。
func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.orchestrator == nil {
		http.Error(w, "编排器未初始化", http.StatusServiceUnavailable)
		return
	}

	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/agents/"), "/")
	if !agent.IsSpecialist(name) {
		http.Error(w, "未知的专家: "+name, http.StatusNotFound)
		return
	}

	var req orchestrator.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		http.Error(w, "query 不能为空", http.StatusBadRequest)
		return
	}
	if subject := auth.SubjectFromContext(r.Context()); subject != nil && req.UserID == "" {
		req.UserID = subject.Username
	}

	resp := s.orchestrator.ExecuteAgent(r.Context(), name, req)
	writeJSON(w, http.StatusOK, resp)
}

// handleJobs 负责任务的提交与列表查询。
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		http.Error(w, "任务服务未启用", http.StatusServiceUnavailable)
		return
	}
	switch r.Method {
	case http.MethodPost:
		s.handleSubmitJob(w, r)
	case http.MethodGet:
		s.handleListJobs(w, r)
	default:
		http.Error(w, "仅支持 GET/POST", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req job.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	if subject := auth.SubjectFromContext(r.Context()); subject != nil && req.UserID == "" {
		req.UserID = subject.Username
	}

	submitted, err := s.jobs.Submit(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusAccepted, submitted)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	opts := listOptionsFromQuery(r)
	jobs, err := s.jobs.List(r.Context(), opts...)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// handleJobByID 负责单个任务查询与任务统计。
func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		http.Error(w, "任务服务未启用", http.StatusServiceUnavailable)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/"), "/")
	if id == "stats" {
		stats, err := s.jobs.Stats(r.Context(), listOptionsFromQuery(r)...)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, stats)
		return
	}
	if id == "" {
		http.Error(w, "缺少任务 ID", http.StatusBadRequest)
		return
	}

	found, err := s.jobs.Get(r.Context(), id)
	if err != nil {
		if job.IsJobError(err, job.CodeJobNotFound) {
			http.Error(w, "任务不存在", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

// handleKnowledge 负责知识库的检索与写入。
func (s *Server) handleKnowledge(w http.ResponseWriter, r *http.Request) {
	if s.retriever == nil {
		http.Error(w, "知识库未启用", http.StatusServiceUnavailable)
		return
	}
	switch r.Method {
	case http.MethodGet:
		query := strings.TrimSpace(r.URL.Query().Get("q"))
		if query == "" {
			http.Error(w, "缺少查询参数 q", http.StatusBadRequest)
			return
		}
		k := 3
		if raw := r.URL.Query().Get("k"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				k = parsed
			}
		}
		docs, err := s.retriever.Search(r.Context(), query, k)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, docs)
	case http.MethodPost:
		var docs []retrieval.Document
		if err := json.NewDecoder(r.Body).Decode(&docs); err != nil {
			http.Error(w, "请求体解析失败", http.StatusBadRequest)
			return
		}
		ids, err := s.retriever.AddDocuments(r.Context(), docs)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, map[string][]string{"ids": ids})
	default:
		http.Error(w, "仅支持 GET/POST", http.StatusMethodNotAllowed)
	}
}

// handleToken 签发访问令牌。
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.auth == nil || s.auth.Mode() == auth.ModeDisabled {
		http.Error(w, "身份认证未启用", http.StatusNotFound)
		return
	}

	var req auth.TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	pair, err := s.auth.Authenticate(r.Context(), req)
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, auth.ErrUnsupportedGrant) {
			status = http.StatusBadRequest
		}
		http.Error(w, http.StatusText(status), status)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func listOptionsFromQuery(r *http.Request) []job.ListOption {
	var opts []job.ListOption
	query := r.URL.Query()
	if raw := query.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			opts = append(opts, job.WithLimit(parsed))
		}
	}
	if raw := query.Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			opts = append(opts, job.WithOffset(parsed))
		}
	}
	if raw := query.Get("status"); raw != "" {
		statuses := make([]job.Status, 0, 4)
		for _, value := range strings.Split(raw, ",") {
			statuses = append(statuses, job.Status(strings.TrimSpace(value)))
		}
		opts = append(opts, job.WithStatuses(statuses...))
	}
	if raw := query.Get("q"); raw != "" {
		opts = append(opts, job.WithQuery(raw))
	}
	if query.Get("order") == "asc" {
		opts = append(opts, job.WithSortOrder(job.SortByUpdatedAsc))
	}
	return opts
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
