package toolbroker

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Surface is the six-operation contract consumed by the calling agent. Each
// method is a thin composition over the Broker and returns both a
// human-readable summary and the typed payload behind it. Every method is
// safe to call repeatedly and in any order.
type Surface struct {
	broker *Broker
}

// NewSurface wraps a Broker.
func NewSurface(b *Broker) *Surface {
	return &Surface{broker: b}
}

// Broker exposes the underlying broker for callers that need direct access,
// such as the default-path invocation.
func (s *Surface) Broker() *Broker { return s.broker }

// ServerListing reports every configured server.
type ServerListing struct {
	Summary string       `json:"summary"`
	Servers []ServerView `json:"servers"`
}

// ListServers reports the name, connection status, and catalog summary of
// every configured server. It performs no I/O.
func (s *Surface) ListServers() *ServerListing {
	views := s.broker.Servers()
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d server(s) configured:\n", len(views))
	for _, v := range views {
		fmt.Fprintf(&sb, "- %s: %s", v.Name, describeServer(v))
		sb.WriteString("\n")
	}
	return &ServerListing{Summary: strings.TrimRight(sb.String(), "\n"), Servers: views}
}

func describeServer(v ServerView) string {
	switch {
	case v.Status == StatusConnected:
		names := make([]string, 0, len(v.Operations))
		for _, op := range v.Operations {
			names = append(names, op.Name)
		}
		label := "connected"
		if v.Active {
			label = "connected, active"
		}
		if len(names) == 0 {
			return fmt.Sprintf("%s, no operations listed", label)
		}
		return fmt.Sprintf("%s, %d operation(s): %s", label, len(names), strings.Join(names, ", "))
	case v.CatalogKnown:
		return fmt.Sprintf("not connected, %d operation(s) known from a previous connection", len(v.Operations))
	default:
		return "not connected, operations unknown until connected"
	}
}

// ConnectOutcome reports a successful connect.
type ConnectOutcome struct {
	Summary        string `json:"summary"`
	Server         string `json:"server"`
	OperationCount int    `json:"operationCount"`
	// CatalogWarning is set when the connection came up but the operation
	// listing failed; the catalog slice for the server is empty.
	CatalogWarning string `json:"catalogWarning,omitempty"`
}

// ConnectToServer connects the named server and makes it the active one. When
// the dial succeeds but the catalog listing fails, the outcome still reports
// the connection with the listing failure as a warning.
func (s *Surface) ConnectToServer(ctx context.Context, name string) (*ConnectOutcome, error) {
	count, err := s.broker.Connect(ctx, name)
	var catErr *CatalogError
	if err != nil && !errors.As(err, &catErr) {
		return nil, err
	}
	out := &ConnectOutcome{Server: name, OperationCount: count}
	if catErr != nil {
		out.CatalogWarning = catErr.Error()
		out.Summary = fmt.Sprintf("Connected to %q (now active), but listing its operations failed: %v", name, catErr.Cause)
	} else {
		out.Summary = fmt.Sprintf("Connected to %q (now active) with %d operation(s)", name, count)
	}
	return out, nil
}

// ActiveReport names the active server, if any.
type ActiveReport struct {
	Summary string `json:"summary"`
	Server  string `json:"server,omitempty"`
}

// GetActiveServer reports which server currently carries the active marker.
func (s *Surface) GetActiveServer() *ActiveReport {
	name, ok := s.broker.ActiveServer()
	if !ok {
		return &ActiveReport{Summary: "No active server"}
	}
	return &ActiveReport{Summary: fmt.Sprintf("Active server: %q", name), Server: name}
}

// DisconnectOutcome reports a completed disconnect.
type DisconnectOutcome struct {
	Summary string `json:"summary"`
	Server  string `json:"server"`
}

// DisconnectFromServer disconnects the named server, or the active one when
// name is empty. Disconnecting from a server that is already disconnected
// succeeds without touching the connector.
func (s *Surface) DisconnectFromServer(ctx context.Context, name string) (*DisconnectOutcome, error) {
	if name == "" {
		active, ok := s.broker.ActiveServer()
		if !ok {
			return nil, &NoActiveServerError{}
		}
		name = active
	}
	if err := s.broker.Disconnect(ctx, name); err != nil {
		return nil, err
	}
	return &DisconnectOutcome{
		Summary: fmt.Sprintf("Disconnected from %q", name),
		Server:  name,
	}, nil
}

// SearchOutcome reports ranked catalog matches.
type SearchOutcome struct {
	Summary string         `json:"summary"`
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
}

// SearchTools ranks every known operation, across connected and disconnected
// servers, against a free-text query.
func (s *Surface) SearchTools(query string, limit int) *SearchOutcome {
	results := s.broker.Search(query, limit, 0)
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d result(s) for %q:\n", len(results), query)
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s (%.0f%%)", i+1, r.Operation.Key(), r.Score*100)
		if r.Operation.Description != "" {
			fmt.Fprintf(&sb, " — %s", r.Operation.Description)
		}
		sb.WriteString("\n")
	}
	return &SearchOutcome{
		Summary: strings.TrimRight(sb.String(), "\n"),
		Query:   query,
		Results: results,
	}
}

// InvokeOutcome reports a completed cross-server invocation.
type InvokeOutcome struct {
	Summary    string      `json:"summary"`
	Invocation *Invocation `json:"invocation"`
}

// UseToolFromServer invokes an operation on the named server, connecting it
// on demand, without changing which server is active.
func (s *Surface) UseToolFromServer(ctx context.Context, server, operation string, args map[string]any) (*InvokeOutcome, error) {
	inv, err := s.broker.Invoke(ctx, server, operation, args)
	if err != nil {
		return nil, err
	}
	summary := fmt.Sprintf("Invoked %q on %q", operation, server)
	if inv.Result != nil && inv.Result.IsError {
		summary += " (the server reported an operation error)"
	}
	return &InvokeOutcome{Summary: summary, Invocation: inv}, nil
}
