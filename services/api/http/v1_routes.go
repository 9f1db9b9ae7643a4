package http

// registerV1Routes sets up /api/v1/sync. Bearer auth guards the group when
// API_BEARER_TOKEN is set.
func (s *Server) registerV1Routes() {
	v1 := s.engine.Group("/api/v1")
	v1.Use(apiVersionMiddleware())
	if s.cfg.BearerToken != "" {
		v1.Use(bearerAuthMiddleware(s.cfg.BearerToken))
	}

	sync := v1.Group("/sync")
	{
		sync.POST("/run", s.handleV1SyncRun)
		sync.POST("/recent", s.handleV1SyncRecent)
		sync.GET("/status", s.handleV1SyncStatus)
	}
}
