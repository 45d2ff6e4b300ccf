package server

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/txn2/sql-gateway/pkg/apperror"
	"github.com/txn2/sql-gateway/pkg/audit"
	httpmw "github.com/txn2/sql-gateway/pkg/http"
)

const defaultAuditPageSize = 100

func (s *Server) handleAuditEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, end, err := timeRange(q)
	if err != nil {
		httpmw.WriteError(w, err)
		return
	}
	filter := audit.QueryFilter{
		ID:        q.Get("id"),
		StartTime: start,
		EndTime:   end,
		RequestID: q.Get("request_id"),
		UserID:    q.Get("user_id"),
		Backend:   q.Get("backend"),
		Kind:      q.Get("kind"),
	}
	if v := q.Get("success"); v != "" {
		ok, err := strconv.ParseBool(v)
		if err != nil {
			httpmw.WriteError(w, apperror.Newf(apperror.Validation, "success %q is not a boolean", v))
			return
		}
		filter.Success = &ok
	}
	if filter.Limit, err = intParam(q, "limit", defaultAuditPageSize); err != nil {
		httpmw.WriteError(w, err)
		return
	}
	if filter.Offset, err = intParam(q, "offset", 0); err != nil {
		httpmw.WriteError(w, err)
		return
	}

	events, err := s.platform.AuditLogger().Query(r.Context(), filter)
	if errors.Is(err, audit.ErrQueryUnsupported) {
		writeNotImplemented(w, err)
		return
	}
	if err != nil {
		httpmw.WriteError(w, err)
		return
	}
	httpmw.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleAuditOverview(w http.ResponseWriter, r *http.Request) {
	reporter, ok := s.platform.AuditLogger().(audit.Reporter)
	if !ok {
		writeNotImplemented(w, errors.New("audit logger does not aggregate events"))
		return
	}
	start, end, err := timeRange(r.URL.Query())
	if err != nil {
		httpmw.WriteError(w, err)
		return
	}
	overview, err := reporter.Overview(r.Context(), start, end)
	if err != nil {
		httpmw.WriteError(w, err)
		return
	}
	httpmw.WriteJSON(w, http.StatusOK, overview)
}

func (s *Server) handleAuditBreakdown(w http.ResponseWriter, r *http.Request) {
	reporter, ok := s.platform.AuditLogger().(audit.Reporter)
	if !ok {
		writeNotImplemented(w, errors.New("audit logger does not aggregate events"))
		return
	}
	q := r.URL.Query()
	groupBy := audit.BreakdownDimension(q.Get("group_by"))
	if groupBy == "" {
		groupBy = audit.BreakdownByBackend
	}
	if !audit.ValidBreakdownDimensions[groupBy] {
		httpmw.WriteError(w, apperror.Newf(apperror.Validation, "group_by %q is not a breakdown dimension", groupBy))
		return
	}
	start, end, err := timeRange(q)
	if err != nil {
		httpmw.WriteError(w, err)
		return
	}
	limit, err := intParam(q, "limit", 0)
	if err != nil {
		httpmw.WriteError(w, err)
		return
	}

	entries, err := reporter.Breakdown(r.Context(), audit.BreakdownFilter{
		GroupBy:   groupBy,
		Limit:     limit,
		StartTime: start,
		EndTime:   end,
	})
	if err != nil {
		httpmw.WriteError(w, err)
		return
	}
	httpmw.WriteJSON(w, http.StatusOK, map[string]any{"group_by": groupBy, "entries": entries})
}

func timeRange(q url.Values) (start, end *time.Time, err error) {
	parse := func(name string) (*time.Time, error) {
		v := q.Get(name)
		if v == "" {
			return nil, nil
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, apperror.Newf(apperror.Validation, "%s %q is not an RFC 3339 time", name, v)
		}
		return &t, nil
	}
	if start, err = parse("start"); err != nil {
		return nil, nil, err
	}
	if end, err = parse("end"); err != nil {
		return nil, nil, err
	}
	return start, end, nil
}

func intParam(q url.Values, name string, def int) (int, error) {
	v := q.Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, apperror.Newf(apperror.Validation, "%s %q must be a non-negative integer", name, v)
	}
	return n, nil
}

func writeNotImplemented(w http.ResponseWriter, err error) {
	httpmw.WriteJSON(w, http.StatusNotImplemented, map[string]string{"error": err.Error()})
}
