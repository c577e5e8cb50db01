package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/policygraph/internal/rag"
)

var interactiveGraph string

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Read JSON requests from stdin, one per line",
	Long: `Interactive keeps one graph in memory and answers JSON requests read
from stdin, one object per line. Each response is written to stdout as
indented JSON.

Requests:
  {"document": "policy.pdf", "query": "List the main compliance requirements."}
  {"query": "Which data must be encrypted?"}
  {"action": "modify", "node_id": "req_1_1", "new_details": "..."}
  {"action": "delete", "node_id": "e1"}
  {"action": "open", "graph": "policy"}
  {"action": "save"}
  {"action": "show"}
  {"action": "stats"}
  {"action": "exit"}`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}
		if interactiveGraph != "" {
			if err := s.OpenGraph(interactiveGraph); err != nil {
				return err
			}
		}
		return runInteractive(cmd.Context(), s, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	interactiveCmd.Flags().StringVar(&interactiveGraph, "graph", "", "saved graph to open first")
	rootCmd.AddCommand(interactiveCmd)
}

type interactiveRequest struct {
	Action     string `json:"action"`
	Document   string `json:"document"`
	Query      string `json:"query"`
	NodeID     string `json:"node_id"`
	NewDetails string `json:"new_details"`
	Graph      string `json:"graph"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type statusResponse struct {
	GraphStatus string `json:"graph_status"`
	Path        string `json:"path,omitempty"`
}

type visualizationResponse struct {
	Visualization string `json:"visualization"`
}

// maxRequestLine bounds a single request line
const maxRequestLine = 1 << 20

// runInteractive serves requests from in until EOF or an exit action
func runInteractive(ctx context.Context, s *rag.Session, in io.Reader, out io.Writer) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRequestLine)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var req interactiveRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			if err := enc.Encode(errorResponse{Error: fmt.Sprintf("Invalid JSON format: %v", err)}); err != nil {
				return err
			}
			continue
		}

		resp, done := handleRequest(ctx, s, req)
		if done {
			return nil
		}
		if err := enc.Encode(resp); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read requests: %w", err)
	}
	return nil
}

// handleRequest dispatches one request; done is true for exit
func handleRequest(ctx context.Context, s *rag.Session, req interactiveRequest) (resp any, done bool) {
	action := strings.ToLower(strings.TrimSpace(req.Action))

	switch action {
	case "exit", "quit":
		return nil, true

	case "modify":
		return s.ModifyNode(strings.TrimSpace(req.NodeID), strings.TrimSpace(req.NewDetails)), false

	case "delete":
		return s.DeleteNode(strings.TrimSpace(req.NodeID)), false

	case "show":
		return visualizationResponse{Visualization: s.Visualize()}, false

	case "stats":
		if s.Graph().NumNodes() == 0 {
			return errorResponse{Error: "No graph loaded"}, false
		}
		return s.Stats(), false

	case "open":
		if err := s.OpenGraph(strings.TrimSpace(req.Graph)); err != nil {
			return errorResponse{Error: err.Error()}, false
		}
		g := s.Graph()
		return statusResponse{GraphStatus: fmt.Sprintf("Graph %s loaded with %d nodes and %d edges", s.Name(), g.NumNodes(), g.NumEdges())}, false

	case "save":
		path, err := s.SaveGraph()
		if err != nil {
			return errorResponse{Error: err.Error()}, false
		}
		return statusResponse{GraphStatus: "Graph saved", Path: path}, false

	case "":
		document := strings.TrimSpace(req.Document)
		query := strings.TrimSpace(req.Query)
		switch {
		case document != "":
			return s.ProcessDocument(ctx, document, query), false
		case query != "":
			return s.Query(ctx, query), false
		default:
			return errorResponse{Error: "'document' or 'query' field is required"}, false
		}

	default:
		return errorResponse{Error: fmt.Sprintf("Unknown action: %s", req.Action)}, false
	}
}
