package pageguard

import (
	"context"
	"time"
)

// ExplainRequest is a minimal request shape for diagnostics tooling: it
// builds an EvaluationContext from flat fields and runs a full-trace
// evaluation.
type ExplainRequest struct {
	Path      string   `json:"path"`
	UserID    string   `json:"user_id,omitempty"`
	Email     string   `json:"email,omitempty"`
	Role      string   `json:"role,omitempty"`
	Groups    []string `json:"groups,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	IP        string   `json:"ip,omitempty"`
	UserAgent string   `json:"user_agent,omitempty"`
	Country   string   `json:"country,omitempty"`
}

func (e *Engine) ExplainRequest(ctx context.Context, req *ExplainRequest) *AccessDecision {
	ec := &EvaluationContext{
		Request: RequestInfo{IP: req.IP, UserAgent: req.UserAgent},
		Time:    NewTimeInfo(time.Now()),
	}
	if req.Country != "" {
		ec.Request.Geo = &GeoInfo{Country: req.Country}
	}
	// any identity field present means an authenticated caller
	if req.UserID != "" || req.Email != "" {
		ec.User = &UserContext{
			ID:     req.UserID,
			Email:  req.Email,
			Role:   req.Role,
			Groups: req.Groups,
			Tags:   req.Tags,
		}
	}
	return e.Explain(ctx, req.Path, ec)
}
